package worker

import (
	"context"
	"time"

	"github.com/kwasham/numzy/internal/service"

	"github.com/sirupsen/logrus"
)

// RetentionWorker periodically fails receipts stuck in processing and
// purges failed receipts past the retention window.
type RetentionWorker struct {
	receiptService service.ReceiptService
	interval       time.Duration
}

func NewRetentionWorker(receiptService service.ReceiptService, interval time.Duration) *RetentionWorker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &RetentionWorker{
		receiptService: receiptService,
		interval:       interval,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Info("Retention worker started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Retention worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	logrus.Info("Starting retention sweep")

	expired, err := w.receiptService.ExpireStuck(ctx)
	if err != nil {
		logrus.Errorf("Failed to expire stuck receipts: %v", err)
	} else if expired > 0 {
		logrus.Warnf("Expired %d receipts stuck in processing", expired)
	}

	purged, err := w.receiptService.PurgeFailed(ctx)
	if err != nil {
		logrus.Errorf("Failed to purge failed receipts: %v", err)
	} else if purged > 0 {
		logrus.Infof("Purged %d failed receipts past retention", purged)
	}

	logrus.Infof("Retention sweep completed: %d expired, %d purged", expired, purged)
}
