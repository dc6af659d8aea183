package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kwasham/numzy/internal/entity"

	"github.com/redis/go-redis/v9"
)

type CacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheRepository(client *redis.Client, ttl time.Duration) *CacheRepository {
	return &CacheRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *CacheRepository) SetReceipt(ctx context.Context, receipt *entity.Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, "receipt:"+receipt.ID, data, r.ttl).Err()
}

func (r *CacheRepository) GetReceipt(ctx context.Context, id string) (*entity.Receipt, error) {
	data, err := r.client.Get(ctx, "receipt:"+id).Result()
	if err != nil {
		return nil, err
	}

	var receipt entity.Receipt
	err = json.Unmarshal([]byte(data), &receipt)
	if err != nil {
		return nil, err
	}

	return &receipt, nil
}

func (r *CacheRepository) DeleteReceipt(ctx context.Context, id string) error {
	return r.client.Del(ctx, "receipt:"+id, "receipt_status:"+id).Err()
}

func (r *CacheRepository) SetStatus(ctx context.Context, id string, status entity.ReceiptStatus) error {
	return r.client.Set(ctx, "receipt_status:"+id, string(status), r.ttl).Err()
}

func (r *CacheRepository) GetStatus(ctx context.Context, id string) (entity.ReceiptStatus, error) {
	status, err := r.client.Get(ctx, "receipt_status:"+id).Result()
	if err != nil {
		return "", err
	}
	return entity.ReceiptStatus(status), nil
}

// IncrMonthlyUploads counts an upload against the current calendar
// month and returns the running total. The key expires on its own
// once the month is over.
func (r *CacheRepository) IncrMonthlyUploads(ctx context.Context) (int64, error) {
	key := monthlyUploadsKey(time.Now())

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.client.Expire(ctx, key, 32*24*time.Hour)
	}
	return count, nil
}

// DecrMonthlyUploads gives back a slot reserved by IncrMonthlyUploads
// when the upload was rejected afterwards.
func (r *CacheRepository) DecrMonthlyUploads(ctx context.Context) error {
	return r.client.Decr(ctx, monthlyUploadsKey(time.Now())).Err()
}

func monthlyUploadsKey(now time.Time) string {
	return "uploads:" + now.Format("2006-01")
}
