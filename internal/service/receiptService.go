package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kwasham/numzy/internal/entity"
	"github.com/kwasham/numzy/pkg/metrics"
)

// allowedUploadTypes maps accepted content types to the extension
// used for the stored original.
var allowedUploadTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"application/pdf": ".pdf",
}

func (s *receiptService) UploadReceipt(ctx context.Context, req *UploadRequest) (*entity.Receipt, error) {
	if len(req.Data) == 0 {
		return nil, entity.ErrEmptyFile
	}
	if max := s.cfg.Processing.MaxUploadBytes; max > 0 && int64(len(req.Data)) > max {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", entity.ErrFileTooLarge, len(req.Data), max)
	}

	contentType := normalizeContentType(req.ContentType)
	ext, ok := allowedUploadTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnsupportedType, req.ContentType)
	}

	if err := s.reserveUploadSlot(ctx); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	storedPath := "original/" + id + ext

	if err := s.store.Save(ctx, storedPath, bytes.NewReader(req.Data), contentType); err != nil {
		s.releaseUploadSlot(ctx)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	receipt := &entity.Receipt{
		ID:          id,
		FileName:    req.FileName,
		ContentType: contentType,
		FileSize:    int64(len(req.Data)),
		StoredPath:  storedPath,
		Status:      entity.StatusUploaded,
	}

	if err := s.repo.Create(ctx, receipt); err != nil {
		s.store.Delete(ctx, storedPath)
		s.releaseUploadSlot(ctx)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, id, entity.StatusUploaded); err != nil {
			logrus.Warnf("failed to cache status for %s: %v", id, err)
		}
	}

	task := entity.ProcessingTask{
		ReceiptID:   id,
		ContentType: contentType,
		StoredPath:  storedPath,
		FileName:    req.FileName,
		EnqueuedAt:  time.Now(),
	}
	if err := s.producer.SendMessage(s.cfg.Kafka.Topic, task); err != nil {
		// The upload itself succeeded, the record stays in uploaded
		// status until the task is re-sent.
		logrus.Warnf("failed to enqueue processing task for %s: %v", id, err)
	}

	metrics.UploadsTotal.WithLabelValues(contentType).Inc()

	logrus.WithFields(logrus.Fields{
		"receipt_id":   id,
		"content_type": contentType,
		"size":         receipt.FileSize,
	}).Info("receipt uploaded")

	return receipt, nil
}

// reserveUploadSlot enforces the monthly quota through Redis. A
// missing cache or a Redis failure never blocks uploads.
func (s *receiptService) reserveUploadSlot(ctx context.Context) error {
	limit := s.cfg.Processing.MonthlyUploadLimit
	if s.cache == nil || limit <= 0 {
		return nil
	}

	count, err := s.cache.IncrMonthlyUploads(ctx)
	if err != nil {
		logrus.Warnf("failed to check upload quota: %v", err)
		return nil
	}
	if count > limit {
		s.releaseUploadSlot(ctx)
		return fmt.Errorf("%w: %d uploads this month, limit is %d", entity.ErrQuotaExceeded, count-1, limit)
	}
	return nil
}

func (s *receiptService) releaseUploadSlot(ctx context.Context) {
	if s.cache == nil || s.cfg.Processing.MonthlyUploadLimit <= 0 {
		return
	}
	if err := s.cache.DecrMonthlyUploads(ctx); err != nil {
		logrus.Warnf("failed to release upload slot: %v", err)
	}
}

func (s *receiptService) GetReceipt(ctx context.Context, id string) (*entity.Receipt, error) {
	if s.cache != nil {
		if receipt, err := s.cache.GetReceipt(ctx, id); err == nil {
			return receipt, nil
		}
	}

	receipt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetReceipt(ctx, receipt); err != nil {
			logrus.Warnf("failed to cache receipt %s: %v", id, err)
		}
	}

	return receipt, nil
}

func (s *receiptService) GetStatus(ctx context.Context, id string) (*entity.StatusResponse, error) {
	if s.cache != nil {
		// Failed receipts carry a reason that only the database has.
		if status, err := s.cache.GetStatus(ctx, id); err == nil && status != entity.StatusFailed {
			return &entity.StatusResponse{ID: id, Status: status}, nil
		}
	}

	receipt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, id, receipt.Status); err != nil {
			logrus.Warnf("failed to cache status for %s: %v", id, err)
		}
	}

	return &entity.StatusResponse{
		ID:         receipt.ID,
		Status:     receipt.Status,
		FailReason: receipt.FailReason,
	}, nil
}

func (s *receiptService) ListReceipts(ctx context.Context, status string, limit, offset int) ([]*entity.Receipt, error) {
	receiptStatus := entity.ReceiptStatus(status)
	switch receiptStatus {
	case "", entity.StatusUploaded, entity.StatusProcessing, entity.StatusProcessed, entity.StatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidInput, status)
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, receiptStatus, limit, offset)
}

// GetReceiptFile streams a stored variant of the receipt. The
// compressed variant falls back to the original while processing has
// not produced one yet.
func (s *receiptService) GetReceiptFile(ctx context.Context, id, variant string) (io.ReadCloser, string, error) {
	receipt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var filePath string
	switch variant {
	case "original":
		filePath = receipt.StoredPath
	case "", "compressed":
		filePath = receipt.CompressedPath
		if filePath == "" {
			filePath = receipt.StoredPath
		}
	default:
		return nil, "", fmt.Errorf("%w: unknown variant %q", entity.ErrInvalidInput, variant)
	}

	reader, err := s.store.Get(ctx, filePath)
	if err != nil {
		return nil, "", err
	}

	contentType := receipt.ContentType
	if filePath != receipt.StoredPath {
		contentType = contentTypeForPath(filePath)
	}

	return reader, contentType, nil
}

func (s *receiptService) ReviewReceipt(ctx context.Context, id string, reviewed bool, note string) (*entity.Receipt, error) {
	receipt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt.Status != entity.StatusProcessed {
		return nil, fmt.Errorf("%w: receipt is %s", entity.ErrInvalidStatus, receipt.Status)
	}

	if err := s.repo.SetReviewed(ctx, id, reviewed, note); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.DeleteReceipt(ctx, id); err != nil {
			logrus.Warnf("failed to invalidate cache for %s: %v", id, err)
		}
	}

	receipt.Reviewed = reviewed
	receipt.ReviewNote = note
	return receipt, nil
}

func (s *receiptService) DeleteReceipt(ctx context.Context, id string) error {
	receipt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.deleteFiles(ctx, receipt)

	if s.cache != nil {
		if err := s.cache.DeleteReceipt(ctx, id); err != nil {
			logrus.Warnf("failed to invalidate cache for %s: %v", id, err)
		}
	}

	logrus.WithField("receipt_id", id).Info("receipt deleted")
	return nil
}

func (s *receiptService) GetStats(ctx context.Context) (*entity.ReceiptStats, error) {
	return s.repo.GetStats(ctx)
}

// ExpireStuck fails receipts that have been in processing longer than
// the configured timeout.
func (s *receiptService) ExpireStuck(ctx context.Context) (int, error) {
	before := time.Now().Add(-s.cfg.Retention.StuckTimeout)

	stuck, err := s.repo.ListStuck(ctx, before)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, receipt := range stuck {
		if err := s.repo.UpdateStatus(ctx, receipt.ID, entity.StatusFailed, "processing timed out"); err != nil {
			logrus.Warnf("failed to expire receipt %s: %v", receipt.ID, err)
			continue
		}
		if s.cache != nil {
			s.cache.DeleteReceipt(ctx, receipt.ID)
		}
		expired++
	}
	return expired, nil
}

// PurgeFailed removes failed receipts older than the retention window
// together with their stored files.
func (s *receiptService) PurgeFailed(ctx context.Context) (int, error) {
	before := time.Now().Add(-s.cfg.Retention.MaxAge)

	failed, err := s.repo.ListFailedBefore(ctx, before)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, receipt := range failed {
		if err := s.repo.Delete(ctx, receipt.ID); err != nil {
			logrus.Warnf("failed to purge receipt %s: %v", receipt.ID, err)
			continue
		}
		s.deleteFiles(ctx, receipt)
		if s.cache != nil {
			s.cache.DeleteReceipt(ctx, receipt.ID)
		}
		purged++
	}
	return purged, nil
}

func (s *receiptService) deleteFiles(ctx context.Context, receipt *entity.Receipt) {
	if receipt.StoredPath != "" {
		if err := s.store.Delete(ctx, receipt.StoredPath); err != nil {
			logrus.Warnf("failed to delete file %s: %v", receipt.StoredPath, err)
		}
	}
	if receipt.CompressedPath != "" && receipt.CompressedPath != receipt.StoredPath {
		if err := s.store.Delete(ctx, receipt.CompressedPath); err != nil {
			logrus.Warnf("failed to delete file %s: %v", receipt.CompressedPath, err)
		}
	}
}

func normalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	return contentType
}

func contentTypeForPath(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
