// Consumption and processing of queued receipt tasks.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kwasham/numzy/config"
	"github.com/kwasham/numzy/internal/compressor"
	repository "github.com/kwasham/numzy/internal/database/postgres"
	redisrepo "github.com/kwasham/numzy/internal/database/redis"
	"github.com/kwasham/numzy/internal/entity"
	"github.com/kwasham/numzy/internal/parser"
	"github.com/kwasham/numzy/internal/pkg/notifier"
	"github.com/kwasham/numzy/internal/pkg/ocr"
	"github.com/kwasham/numzy/internal/pkg/storage"
	"github.com/kwasham/numzy/internal/service"
	"github.com/kwasham/numzy/pkg/metrics"
)

type ReceiptProcessor interface {
	Process(ctx context.Context, task entity.ProcessingTask) error
}

type receiptProcessor struct {
	repo     repository.ReceiptRepository
	cache    *redisrepo.CacheRepository
	store    storage.FileStorage
	comp     *compressor.Compressor
	parser   *parser.TextParser
	audit    *service.AuditService
	engine   ocr.Engine
	notifier notifier.AuditNotifier
	cfg      *config.Config
}

func NewReceiptProcessor(
	repo repository.ReceiptRepository,
	cache *redisrepo.CacheRepository,
	store storage.FileStorage,
	comp *compressor.Compressor,
	textParser *parser.TextParser,
	audit *service.AuditService,
	engine ocr.Engine,
	auditNotifier notifier.AuditNotifier,
	cfg *config.Config,
) ReceiptProcessor {
	return &receiptProcessor{
		repo:     repo,
		cache:    cache,
		store:    store,
		comp:     comp,
		parser:   textParser,
		audit:    audit,
		engine:   engine,
		notifier: auditNotifier,
		cfg:      cfg,
	}
}

// Process runs one receipt through compression, text extraction and
// the audit checks. A failed step marks the receipt failed, tasks are
// never retried.
func (p *receiptProcessor) Process(ctx context.Context, task entity.ProcessingTask) error {
	log.Printf("Processing receipt: %s", task.ReceiptID)

	metrics.ProcessingInFlight.Inc()
	defer metrics.ProcessingInFlight.Dec()

	if err := p.repo.UpdateStatus(ctx, task.ReceiptID, entity.StatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark receipt processing: %w", err)
	}
	p.cacheStatus(ctx, task.ReceiptID, entity.StatusProcessing)

	data, err := p.readOriginal(ctx, task.StoredPath)
	if err != nil {
		p.fail(ctx, task.ReceiptID, "original file unavailable")
		return err
	}

	if task.ContentType != "application/pdf" {
		if err := p.compressOriginal(ctx, task, data); err != nil {
			p.fail(ctx, task.ReceiptID, fmt.Sprintf("compression failed: %v", err))
			return err
		}
	}

	text, err := p.engine.ExtractText(ctx, data, task.ContentType)
	if err != nil {
		p.fail(ctx, task.ReceiptID, "text extraction failed")
		return fmt.Errorf("failed to extract text: %w", err)
	}

	extracted := p.parser.ParseReceiptText(text)
	result := p.audit.Validate(extracted)

	if err := p.repo.UpdateExtraction(ctx, task.ReceiptID, extracted, result); err != nil {
		p.fail(ctx, task.ReceiptID, "failed to store extraction")
		return err
	}

	p.cacheStatus(ctx, task.ReceiptID, entity.StatusProcessed)
	if p.cache != nil {
		p.cache.DeleteReceipt(ctx, task.ReceiptID)
	}

	if result.Flags.NeedsManualReview {
		notification := &entity.AuditNotification{
			ReceiptID: task.ReceiptID,
			Merchant:  extracted.Merchant,
			Total:     extracted.Total,
			Flags:     result.Flags,
			FlaggedAt: time.Now(),
		}
		if err := p.notifier.NotifyFlagged(ctx, notification); err != nil {
			log.Printf("Failed to send audit notification for %s: %v", task.ReceiptID, err)
		}
	}

	metrics.ProcessingTasksTotal.WithLabelValues("processed").Inc()
	log.Printf("Completed processing receipt: %s", task.ReceiptID)
	return nil
}

func (p *receiptProcessor) readOriginal(ctx context.Context, path string) ([]byte, error) {
	reader, err := p.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open original: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read original: %w", err)
	}
	return data, nil
}

// compressOriginal shrinks the uploaded image and stores the result
// as the compressed variant. When compression leaves the bytes
// untouched the original file doubles as the variant.
func (p *receiptProcessor) compressOriginal(ctx context.Context, task entity.ProcessingTask, data []byte) error {
	opts := compressionOptions(p.cfg.Compression)
	opts.OnProgress = func(stage string, percent int) {
		logrus.WithFields(logrus.Fields{
			"receipt_id": task.ReceiptID,
			"stage":      stage,
			"percent":    percent,
		}).Debug("compression progress")
	}

	start := time.Now()
	result, err := p.comp.Compress(ctx, data, task.ContentType, opts)
	if err != nil {
		return err
	}

	metrics.CompressionDuration.Observe(time.Since(start).Seconds())
	metrics.CompressionOutputBytes.Observe(float64(result.CompressedSize))

	compressedPath := task.StoredPath
	if result.CompressedSize != result.OriginalSize || result.MIMEType != task.ContentType {
		compressedPath = "compressed/" + task.ReceiptID + extensionForMIME(result.MIMEType)
		if err := p.store.Save(ctx, compressedPath, bytes.NewReader(result.Data), result.MIMEType); err != nil {
			return fmt.Errorf("failed to store compressed variant: %w", err)
		}
	}

	if err := p.repo.UpdateCompression(ctx, task.ReceiptID, compressedPath); err != nil {
		return fmt.Errorf("failed to record compressed variant: %w", err)
	}

	log.Printf("Compressed receipt %s: %d -> %d bytes (quality %.2f, %dx%d)",
		task.ReceiptID, result.OriginalSize, result.CompressedSize,
		result.Quality, result.Width, result.Height)
	return nil
}

func (p *receiptProcessor) fail(ctx context.Context, receiptID, reason string) {
	if err := p.repo.UpdateStatus(ctx, receiptID, entity.StatusFailed, reason); err != nil {
		log.Printf("Failed to mark receipt %s failed: %v", receiptID, err)
	}
	p.cacheStatus(ctx, receiptID, entity.StatusFailed)
	if p.cache != nil {
		p.cache.DeleteReceipt(ctx, receiptID)
	}
	metrics.ProcessingTasksTotal.WithLabelValues("failed").Inc()
}

func (p *receiptProcessor) cacheStatus(ctx context.Context, receiptID string, status entity.ReceiptStatus) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetStatus(ctx, receiptID, status); err != nil {
		log.Printf("Failed to cache status for %s: %v", receiptID, err)
	}
}

func compressionOptions(cfg config.CompressionConfig) entity.CompressionOptions {
	format := entity.FormatJPEG
	if cfg.Format == string(entity.FormatWebP) {
		format = entity.FormatWebP
	}
	return entity.CompressionOptions{
		MaxSizeBytes:   cfg.MaxSizeBytes,
		MaxWidth:       cfg.MaxWidth,
		MaxHeight:      cfg.MaxHeight,
		InitialQuality: cfg.InitialQuality,
		MinQuality:     cfg.MinQuality,
		Format:         format,
	}
}

func extensionForMIME(mimeType string) string {
	if mimeType == "image/webp" {
		return ".webp"
	}
	return ".jpg"
}
