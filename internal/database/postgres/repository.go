package repository

import (
	"context"
	"time"

	"github.com/kwasham/numzy/internal/entity"
)

type ReceiptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, receipt *entity.Receipt) error
	GetByID(ctx context.Context, id string) (*entity.Receipt, error)
	List(ctx context.Context, status entity.ReceiptStatus, limit, offset int) ([]*entity.Receipt, error)
	Delete(ctx context.Context, id string) error

	// Processing state transitions
	UpdateStatus(ctx context.Context, id string, status entity.ReceiptStatus, failReason string) error
	UpdateCompression(ctx context.Context, id string, compressedPath string) error
	UpdateExtraction(ctx context.Context, id string, data *entity.ExtractedData, result *entity.ValidationResult) error
	SetReviewed(ctx context.Context, id string, reviewed bool, note string) error

	// Retention operations
	ListStuck(ctx context.Context, before time.Time) ([]*entity.Receipt, error)
	ListFailedBefore(ctx context.Context, before time.Time) ([]*entity.Receipt, error)

	// Statistical operations
	GetStats(ctx context.Context) (*entity.ReceiptStats, error)
}
