package service

import (
	"context"
	"io"

	"github.com/kwasham/numzy/config"
	repository "github.com/kwasham/numzy/internal/database/postgres"
	redisrepo "github.com/kwasham/numzy/internal/database/redis"
	"github.com/kwasham/numzy/internal/entity"
	"github.com/kwasham/numzy/internal/pkg/kafka"
	"github.com/kwasham/numzy/internal/pkg/storage"
)

// UploadRequest carries a receipt file read out of a multipart form.
type UploadRequest struct {
	FileName    string
	ContentType string
	Data        []byte
}

type ReceiptService interface {
	UploadReceipt(ctx context.Context, req *UploadRequest) (*entity.Receipt, error)
	GetReceipt(ctx context.Context, id string) (*entity.Receipt, error)
	GetStatus(ctx context.Context, id string) (*entity.StatusResponse, error)
	ListReceipts(ctx context.Context, status string, limit, offset int) ([]*entity.Receipt, error)
	GetReceiptFile(ctx context.Context, id, variant string) (io.ReadCloser, string, error)
	ReviewReceipt(ctx context.Context, id string, reviewed bool, note string) (*entity.Receipt, error)
	DeleteReceipt(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*entity.ReceiptStats, error)

	// Retention operations used by the background worker
	ExpireStuck(ctx context.Context) (int, error)
	PurgeFailed(ctx context.Context) (int, error)
}

type receiptService struct {
	repo     repository.ReceiptRepository
	cache    *redisrepo.CacheRepository
	store    storage.FileStorage
	producer kafka.Producer
	cfg      *config.Config
}

// NewReceiptService wires the upload and query side of the API.
// The cache may be nil, every cache access is optional.
func NewReceiptService(
	repo repository.ReceiptRepository,
	cache *redisrepo.CacheRepository,
	store storage.FileStorage,
	producer kafka.Producer,
	cfg *config.Config,
) ReceiptService {
	return &receiptService{
		repo:     repo,
		cache:    cache,
		store:    store,
		producer: producer,
		cfg:      cfg,
	}
}
