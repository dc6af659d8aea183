package processor

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwasham/numzy/config"
	"github.com/kwasham/numzy/internal/compressor"
	"github.com/kwasham/numzy/internal/entity"
	"github.com/kwasham/numzy/internal/parser"
	"github.com/kwasham/numzy/internal/pkg/ocr"
	"github.com/kwasham/numzy/internal/pkg/storage"
	"github.com/kwasham/numzy/internal/service"
)

type procRepo struct {
	mu       sync.Mutex
	receipts map[string]*entity.Receipt
}

func newProcRepo() *procRepo {
	return &procRepo{receipts: make(map[string]*entity.Receipt)}
}

func (r *procRepo) Create(ctx context.Context, receipt *entity.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[receipt.ID] = receipt
	return nil
}

func (r *procRepo) GetByID(ctx context.Context, id string) (*entity.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return nil, entity.ErrReceiptNotFound
	}
	return receipt, nil
}

func (r *procRepo) List(ctx context.Context, status entity.ReceiptStatus, limit, offset int) ([]*entity.Receipt, error) {
	return nil, nil
}

func (r *procRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *procRepo) UpdateStatus(ctx context.Context, id string, status entity.ReceiptStatus, failReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return entity.ErrReceiptNotFound
	}
	receipt.Status = status
	receipt.FailReason = failReason
	return nil
}

func (r *procRepo) UpdateCompression(ctx context.Context, id string, compressedPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return entity.ErrReceiptNotFound
	}
	receipt.CompressedPath = compressedPath
	return nil
}

func (r *procRepo) UpdateExtraction(ctx context.Context, id string, data *entity.ExtractedData, result *entity.ValidationResult) error {
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
	receipt.Confidence = data.Confidence.Overall
	receipt.Audit = result.Flags
	receipt.Status = entity.StatusProcessed
	return nil
}

func (r *procRepo) SetReviewed(ctx context.Context, id string, reviewed bool, note string) error {
	return nil
}

func (r *procRepo) ListStuck(ctx context.Context, before time.Time) ([]*entity.Receipt, error) {
	return nil, nil
}

func (r *procRepo) ListFailedBefore(ctx context.Context, before time.Time) ([]*entity.Receipt, error) {
	return nil, nil
}

func (r *procRepo) GetStats(ctx context.Context) (*entity.ReceiptStats, error) {
	return &entity.ReceiptStats{}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*entity.AuditNotification
}

func (n *recordingNotifier) NotifyFlagged(ctx context.Context, notification *entity.AuditNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) notifications() []*entity.AuditNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*entity.AuditNotification(nil), n.sent...)
}

type processorFixture struct {
	proc     ReceiptProcessor
	repo     *procRepo
	store    storage.FileStorage
	notifier *recordingNotifier
}

func newProcessorFixture(t *testing.T, cfg *config.Config) *processorFixture {
	t.Helper()

	repo := newProcRepo()
	store := storage.NewLocalStorage(t.TempDir())
	auditNotifier := &recordingNotifier{}

	proc := NewReceiptProcessor(
		repo,
		nil,
		store,
		compressor.NewCompressor(),
		parser.NewTextParser(),
		service.NewAuditService(cfg.Processing),
		ocr.NewStaticEngine(),
		auditNotifier,
		cfg,
	)

	return &processorFixture{proc: proc, repo: repo, store: store, notifier: auditNotifier}
}

func processorConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Compression = config.CompressionConfig{
		MaxSizeBytes:   200 * 1024,
		MaxWidth:       2048,
		MaxHeight:      2048,
		InitialQuality: 0.8,
		MinQuality:     0.1,
		Format:         "jpeg",
	}
	return cfg
}

// noisyJPEG encodes random pixels so the fixture does not compress
// down to a handful of bytes.
func noisyJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rand.New(rand.NewSource(7)).Read(img.Pix)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func (f *processorFixture) seedReceipt(t *testing.T, id, contentType, path string, data []byte) entity.ProcessingTask {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, path, bytes.NewReader(data), contentType))
	require.NoError(t, f.repo.Create(ctx, &entity.Receipt{
		ID:          id,
		FileName:    "upload" + path[strings.LastIndex(path, "."):],
		ContentType: contentType,
		FileSize:    int64(len(data)),
		StoredPath:  path,
		Status:      entity.StatusUploaded,
	}))

	return entity.ProcessingTask{
		ReceiptID:   id,
		ContentType: contentType,
		StoredPath:  path,
		FileName:    "upload.jpg",
		EnqueuedAt:  time.Now(),
	}
}

func TestProcessCompressesAndExtracts(t *testing.T) {
	fixture := newProcessorFixture(t, processorConfig())
	ctx := context.Background()

	data := noisyJPEG(t, 800, 600)
	require.Greater(t, len(data), 200*1024, "fixture must exceed the ceiling")
	task := fixture.seedReceipt(t, "r-1", "image/jpeg", "original/r-1.jpg", data)

	require.NoError(t, fixture.proc.Process(ctx, task))

	receipt, err := fixture.repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessed, receipt.Status)
	assert.Equal(t, "compressed/r-1.jpg", receipt.CompressedPath)
	assert.True(t, fixture.store.Exists(ctx, receipt.CompressedPath))

	// Extraction from the built-in engine sample
	assert.Equal(t, "GROCERY STORE", receipt.Merchant)
	require.NotNil(t, receipt.Total)
	assert.InDelta(t, 12.50, *receipt.Total, 0.001)
	assert.Len(t, receipt.Items, 3)
	assert.False(t, receipt.Audit.Any())
	assert.Empty(t, fixture.notifier.notifications())
}

func TestProcessReusesOriginalWhenAlreadySmall(t *testing.T) {
	fixture := newProcessorFixture(t, processorConfig())
	ctx := context.Background()

	data := noisyJPEG(t, 40, 30)
	require.Less(t, len(data), 200*1024)
	task := fixture.seedReceipt(t, "r-2", "image/jpeg", "original/r-2.jpg", data)

	require.NoError(t, fixture.proc.Process(ctx, task))

	receipt, err := fixture.repo.GetByID(ctx, "r-2")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessed, receipt.Status)
	assert.Equal(t, task.StoredPath, receipt.CompressedPath)
	assert.False(t, fixture.store.Exists(ctx, "compressed/r-2.jpg"))
}

func TestProcessCorruptImageMarksFailed(t *testing.T) {
	fixture := newProcessorFixture(t, processorConfig())
	ctx := context.Background()

	garbage := bytes.Repeat([]byte{0xde, 0xad}, 200*1024)
	task := fixture.seedReceipt(t, "r-3", "image/jpeg", "original/r-3.jpg", garbage)

	err := fixture.proc.Process(ctx, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrImageDecode)

	receipt, getErr := fixture.repo.GetByID(ctx, "r-3")
	require.NoError(t, getErr)
	assert.Equal(t, entity.StatusFailed, receipt.Status)
	assert.Contains(t, receipt.FailReason, "compression failed")
	assert.Empty(t, fixture.notifier.notifications())
}

func TestProcessSkipsCompressionForPDF(t *testing.T) {
	fixture := newProcessorFixture(t, processorConfig())
	ctx := context.Background()

	task := fixture.seedReceipt(t, "r-4", "application/pdf", "original/r-4.pdf", []byte("%PDF-1.4 fake"))

	require.NoError(t, fixture.proc.Process(ctx, task))

	receipt, err := fixture.repo.GetByID(ctx, "r-4")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessed, receipt.Status)
	assert.Empty(t, receipt.CompressedPath)
	assert.Equal(t, "GROCERY STORE", receipt.Merchant)
}

func TestProcessNotifiesOnFlaggedReceipt(t *testing.T) {
	cfg := processorConfig()
	cfg.Processing.UnusualAmountThreshold = 10

	fixture := newProcessorFixture(t, cfg)
	ctx := context.Background()

	data := noisyJPEG(t, 40, 30)
	task := fixture.seedReceipt(t, "r-5", "image/jpeg", "original/r-5.jpg", data)

	require.NoError(t, fixture.proc.Process(ctx, task))

	receipt, err := fixture.repo.GetByID(ctx, "r-5")
	require.NoError(t, err)
	assert.True(t, receipt.Audit.UnusualAmount)
	assert.True(t, receipt.Audit.NeedsManualReview)

	notifications := fixture.notifier.notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "r-5", notifications[0].ReceiptID)
	assert.True(t, notifications[0].Flags.UnusualAmount)
}

func TestProcessMissingOriginalMarksFailed(t *testing.T) {
	fixture := newProcessorFixture(t, processorConfig())
	ctx := context.Background()

	require.NoError(t, fixture.repo.Create(ctx, &entity.Receipt{
		ID:          "r-6",
		ContentType: "image/jpeg",
		StoredPath:  "original/r-6.jpg",
		Status:      entity.StatusUploaded,
	}))

	err := fixture.proc.Process(ctx, entity.ProcessingTask{
		ReceiptID:   "r-6",
		ContentType: "image/jpeg",
		StoredPath:  "original/r-6.jpg",
	})
	require.Error(t, err)

	receipt, getErr := fixture.repo.GetByID(ctx, "r-6")
	require.NoError(t, getErr)
	assert.Equal(t, entity.StatusFailed, receipt.Status)
	assert.Equal(t, "original file unavailable", receipt.FailReason)
}
