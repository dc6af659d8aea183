package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwasham/numzy/config"
	"github.com/kwasham/numzy/internal/entity"
	"github.com/kwasham/numzy/internal/pkg/storage"
)

type fakeReceiptRepo struct {
	mu       sync.Mutex
	receipts map[string]*entity.Receipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{receipts: make(map[string]*entity.Receipt)}
}

func (r *fakeReceiptRepo) Create(ctx context.Context, receipt *entity.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt.CreatedAt = time.Now()
	receipt.UpdatedAt = time.Now()
	r.receipts[receipt.ID] = receipt
	return nil
}

func (r *fakeReceiptRepo) GetByID(ctx context.Context, id string) (*entity.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return nil, entity.ErrReceiptNotFound
	}
	return receipt, nil
}

func (r *fakeReceiptRepo) List(ctx context.Context, status entity.ReceiptStatus, limit, offset int) ([]*entity.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Receipt
	for _, receipt := range r.receipts {
		if status == "" || receipt.Status == status {
			out = append(out, receipt)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeReceiptRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.receipts[id]; !ok {
		return entity.ErrReceiptNotFound
	}
	delete(r.receipts, id)
	return nil
}

func (r *fakeReceiptRepo) UpdateStatus(ctx context.Context, id string, status entity.ReceiptStatus, failReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return entity.ErrReceiptNotFound
	}
	receipt.Status = status
	receipt.FailReason = failReason
	receipt.UpdatedAt = time.Now()
	return nil
}

func (r *fakeReceiptRepo) UpdateCompression(ctx context.Context, id string, compressedPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return entity.ErrReceiptNotFound
	}
	receipt.CompressedPath = compressedPath
	return nil
}

func (r *fakeReceiptRepo) UpdateExtraction(ctx context.Context, id string, data *entity.ExtractedData, result *entity.ValidationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return entity.ErrReceiptNotFound
	}
	receipt.Merchant = data.Merchant
	receipt.Subtotal = data.Subtotal
	receipt.Tax = data.Tax
	receipt.Total = data.Total
	receipt.Items = data.Items
	receipt.Audit = result.Flags
	receipt.Status = entity.StatusProcessed
	receipt.UpdatedAt = time.Now()
	return nil
}

func (r *fakeReceiptRepo) SetReviewed(ctx context.Context, id string, reviewed bool, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return entity.ErrReceiptNotFound
	}
	receipt.Reviewed = reviewed
	receipt.ReviewNote = note
	return nil
}

func (r *fakeReceiptRepo) ListStuck(ctx context.Context, before time.Time) ([]*entity.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Receipt
	for _, receipt := range r.receipts {
		if receipt.Status == entity.StatusProcessing && receipt.UpdatedAt.Before(before) {
			out = append(out, receipt)
		}
	}
	return out, nil
}

func (r *fakeReceiptRepo) ListFailedBefore(ctx context.Context, before time.Time) ([]*entity.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Receipt
	for _, receipt := range r.receipts {
		if receipt.Status == entity.StatusFailed && receipt.UpdatedAt.Before(before) {
			out = append(out, receipt)
		}
	}
	return out, nil
}

func (r *fakeReceiptRepo) GetStats(ctx context.Context) (*entity.ReceiptStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &entity.ReceiptStats{}
	for _, receipt := range r.receipts {
		stats.Total++
		switch receipt.Status {
		case entity.StatusUploaded:
			stats.Uploaded++
		case entity.StatusProcessing:
			stats.Processing++
		case entity.StatusProcessed:
			stats.Processed++
		case entity.StatusFailed:
			stats.Failed++
		}
		if receipt.Audit.NeedsManualReview && !receipt.Reviewed {
			stats.NeedsReview++
		}
	}
	return stats, nil
}

type sentMessage struct {
	topic   string
	message interface{}
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (p *fakeProducer) SendMessage(topic string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentMessage{topic: topic, message: message})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) messages() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.sent...)
}

func newTestService(t *testing.T) (ReceiptService, *fakeReceiptRepo, *fakeProducer, storage.FileStorage) {
	t.Helper()

	repo := newFakeReceiptRepo()
	producer := &fakeProducer{}
	store := storage.NewLocalStorage(t.TempDir())
	cfg := &config.Config{}
	cfg.Kafka.Topic = "receipt-processing"
	cfg.Processing.MaxUploadBytes = 1024
	cfg.Retention.StuckTimeout = 15 * time.Minute
	cfg.Retention.MaxAge = 30 * 24 * time.Hour

	svc := NewReceiptService(repo, nil, store, producer, cfg)
	return svc, repo, producer, store
}

func TestUploadReceiptStoresFileAndEnqueues(t *testing.T) {
	svc, _, producer, store := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.UploadReceipt(ctx, &UploadRequest{
		FileName:    "dinner.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("fake jpeg bytes"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, entity.StatusUploaded, receipt.Status)
	assert.Equal(t, "image/jpeg", receipt.ContentType)
	assert.True(t, store.Exists(ctx, receipt.StoredPath))

	msgs := producer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "receipt-processing", msgs[0].topic)
	task, ok := msgs[0].message.(entity.ProcessingTask)
	require.True(t, ok)
	assert.Equal(t, receipt.ID, task.ReceiptID)
	assert.Equal(t, receipt.StoredPath, task.StoredPath)
}

func TestUploadReceiptRejectsEmptyFile(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.UploadReceipt(context.Background(), &UploadRequest{
		FileName:    "empty.jpg",
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, entity.ErrEmptyFile)
}

func TestUploadReceiptRejectsUnsupportedType(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.UploadReceipt(context.Background(), &UploadRequest{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("lunch: $12"),
	})
	assert.ErrorIs(t, err, entity.ErrUnsupportedType)
}

func TestUploadReceiptRejectsOversizedFile(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.UploadReceipt(context.Background(), &UploadRequest{
		FileName:    "huge.jpg",
		ContentType: "image/jpeg",
		Data:        make([]byte, 2048),
	})
	assert.ErrorIs(t, err, entity.ErrFileTooLarge)
}

func TestUploadReceiptNormalizesContentType(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	receipt, err := svc.UploadReceipt(context.Background(), &UploadRequest{
		FileName:    "scan.jpg",
		ContentType: "image/JPG; charset=binary",
		Data:        []byte("bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", receipt.ContentType)
}

func TestGetReceiptFileFallsBackToOriginal(t *testing.T) {
	svc, repo, _, store := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.UploadReceipt(ctx, &UploadRequest{
		FileName:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("original bytes"),
	})
	require.NoError(t, err)

	rc, contentType, err := svc.GetReceiptFile(ctx, receipt.ID, "")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "original bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	// Once a compressed variant exists it is preferred.
	compressedPath := "compressed/" + receipt.ID + ".jpg"
	require.NoError(t, store.Save(ctx, compressedPath, strings.NewReader("smaller bytes"), "image/jpeg"))
	require.NoError(t, repo.UpdateCompression(ctx, receipt.ID, compressedPath))

	rc, contentType, err = svc.GetReceiptFile(ctx, receipt.ID, "")
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "smaller bytes", string(data))
	assert.Equal(t, "image/jpeg", contentType)

	rc, contentType, err = svc.GetReceiptFile(ctx, receipt.ID, "original")
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "original bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	_, _, err = svc.GetReceiptFile(ctx, receipt.ID, "thumbnail")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestReviewReceiptRequiresProcessedStatus(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.UploadReceipt(ctx, &UploadRequest{
		FileName:    "scan.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("bytes"),
	})
	require.NoError(t, err)

	_, err = svc.ReviewReceipt(ctx, receipt.ID, true, "looks fine")
	assert.ErrorIs(t, err, entity.ErrInvalidStatus)

	require.NoError(t, repo.UpdateStatus(ctx, receipt.ID, entity.StatusProcessed, ""))

	reviewed, err := svc.ReviewReceipt(ctx, receipt.ID, true, "looks fine")
	require.NoError(t, err)
	assert.True(t, reviewed.Reviewed)
	assert.Equal(t, "looks fine", reviewed.ReviewNote)
}

func TestDeleteReceiptRemovesFiles(t *testing.T) {
	svc, repo, _, store := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.UploadReceipt(ctx, &UploadRequest{
		FileName:    "scan.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("bytes"),
	})
	require.NoError(t, err)
	storedPath := receipt.StoredPath

	require.NoError(t, svc.DeleteReceipt(ctx, receipt.ID))

	_, err = repo.GetByID(ctx, receipt.ID)
	assert.ErrorIs(t, err, entity.ErrReceiptNotFound)
	assert.False(t, store.Exists(ctx, storedPath))

	assert.ErrorIs(t, svc.DeleteReceipt(ctx, receipt.ID), entity.ErrReceiptNotFound)
}

func TestListReceiptsRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ListReceipts(context.Background(), "archived", 10, 0)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestExpireStuckFailsOldProcessingReceipts(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	receipt := &entity.Receipt{
		ID:          "stuck-1",
		FileName:    "scan.jpg",
		ContentType: "image/jpeg",
		Status:      entity.StatusProcessing,
		StoredPath:  "original/stuck-1.jpg",
	}
	require.NoError(t, repo.Create(ctx, receipt))
	repo.receipts["stuck-1"].UpdatedAt = time.Now().Add(-time.Hour)

	expired, err := svc.ExpireStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	updated, err := repo.GetByID(ctx, "stuck-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, updated.Status)
	assert.Equal(t, "processing timed out", updated.FailReason)
}

func TestPurgeFailedRemovesOldReceipts(t *testing.T) {
	svc, repo, _, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "original/old.jpg", strings.NewReader("bytes"), "image/jpeg"))
	receipt := &entity.Receipt{
		ID:          "old-failure",
		FileName:    "old.jpg",
		ContentType: "image/jpeg",
		Status:      entity.StatusFailed,
		StoredPath:  "original/old.jpg",
	}
	require.NoError(t, repo.Create(ctx, receipt))
	repo.receipts["old-failure"].UpdatedAt = time.Now().Add(-60 * 24 * time.Hour)

	purged, err := svc.PurgeFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = repo.GetByID(ctx, "old-failure")
	assert.ErrorIs(t, err, entity.ErrReceiptNotFound)
	assert.False(t, store.Exists(ctx, "original/old.jpg"))
}

