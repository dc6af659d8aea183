package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kwasham/numzy/internal/entity"
)

type receiptRepository struct {
	db *sql.DB
}

func NewReceiptRepository(db *sql.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

const receiptColumns = `
	id, file_name, content_type, file_size, stored_path, compressed_path,
	status, fail_reason,
	merchant, address, receipt_number, purchase_date, purchase_time, payment_method,
	subtotal, tax, total, confidence,
	needs_manual_review, math_error, low_confidence, unusual_amount,
	reviewed, review_note, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*entity.Receipt, error) {
	var (
		receipt        entity.Receipt
		compressedPath sql.NullString
		failReason     sql.NullString
		merchant       sql.NullString
		address        sql.NullString
		receiptNumber  sql.NullString
		purchaseDate   sql.NullString
		purchaseTime   sql.NullString
		paymentMethod  sql.NullString
		subtotal       sql.NullFloat64
		tax            sql.NullFloat64
		total          sql.NullFloat64
		reviewNote     sql.NullString
	)

	err := row.Scan(
		&receipt.ID,
		&receipt.FileName,
		&receipt.ContentType,
		&receipt.FileSize,
		&receipt.StoredPath,
		&compressedPath,
		&receipt.Status,
		&failReason,
		&merchant,
		&address,
		&receiptNumber,
		&purchaseDate,
		&purchaseTime,
		&paymentMethod,
		&subtotal,
		&tax,
		&total,
		&receipt.Confidence,
		&receipt.Audit.NeedsManualReview,
		&receipt.Audit.MathError,
		&receipt.Audit.LowConfidence,
		&receipt.Audit.UnusualAmount,
		&receipt.Reviewed,
		&reviewNote,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	receipt.CompressedPath = compressedPath.String
	receipt.FailReason = failReason.String
	receipt.Merchant = merchant.String
	receipt.Address = address.String
	receipt.ReceiptNumber = receiptNumber.String
	receipt.PurchaseDate = purchaseDate.String
	receipt.PurchaseTime = purchaseTime.String
	receipt.PaymentMethod = paymentMethod.String
	receipt.ReviewNote = reviewNote.String
	receipt.Subtotal = floatPtr(subtotal)
	receipt.Tax = floatPtr(tax)
	receipt.Total = floatPtr(total)

	return &receipt, nil
}

// Create inserts a freshly uploaded receipt in its initial state
func (r *receiptRepository) Create(ctx context.Context, receipt *entity.Receipt) error {
	query := `
		INSERT INTO receipts (
			id, file_name, content_type, file_size, stored_path,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		receipt.ID,
		receipt.FileName,
		receipt.ContentType,
		receipt.FileSize,
		receipt.StoredPath,
		receipt.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt: %v", err)
	}

	receipt.CreatedAt = now
	receipt.UpdatedAt = now
	return nil
}

// GetByID retrieves a receipt with its line items
func (r *receiptRepository) GetByID(ctx context.Context, id string) (*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1`

	receipt, err := scanReceipt(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %v", err)
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	receipt.Items = items

	return receipt, nil
}

// List returns receipts newest first, optionally filtered by status.
// Line items are not loaded for listings.
func (r *receiptRepository) List(ctx context.Context, status entity.ReceiptStatus, limit, offset int) ([]*entity.Receipt, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if status != "" {
		query := `SELECT ` + receiptColumns + ` FROM receipts WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = r.db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := `SELECT ` + receiptColumns + ` FROM receipts ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = r.db.QueryContext(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %v", err)
	}
	defer rows.Close()

	var receipts []*entity.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %v", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %v", err)
	}

	return receipts, nil
}

// Delete removes a receipt, items go with it through the cascade
func (r *receiptRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete receipt: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return entity.ErrReceiptNotFound
	}

	return nil
}

// UpdateStatus moves a receipt through the processing lifecycle
func (r *receiptRepository) UpdateStatus(ctx context.Context, id string, status entity.ReceiptStatus, failReason string) error {
	query := `UPDATE receipts SET status = $2, fail_reason = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, nullString(failReason))
	if err != nil {
		return fmt.Errorf("failed to update receipt status: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return entity.ErrReceiptNotFound
	}

	return nil
}

// UpdateCompression records where the compressed variant was stored
func (r *receiptRepository) UpdateCompression(ctx context.Context, id string, compressedPath string) error {
	query := `UPDATE receipts SET compressed_path = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, nullString(compressedPath))
	if err != nil {
		return fmt.Errorf("failed to update compressed path: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return entity.ErrReceiptNotFound
	}

	return nil
}

// UpdateExtraction stores parsed fields, audit flags and line items in one
// transaction and marks the receipt processed
func (r *receiptRepository) UpdateExtraction(ctx context.Context, id string, data *entity.ExtractedData, result *entity.ValidationResult) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE receipts SET
			merchant = $2, address = $3, receipt_number = $4,
			purchase_date = $5, purchase_time = $6, payment_method = $7,
			subtotal = $8, tax = $9, total = $10, confidence = $11,
			needs_manual_review = $12, math_error = $13, low_confidence = $14, unusual_amount = $15,
			status = $16, fail_reason = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	res, err := tx.ExecContext(ctx, query,
		id,
		nullString(data.Merchant),
		nullString(data.Address),
		nullString(data.ReceiptNumber),
		nullString(data.Date),
		nullString(data.Time),
		nullString(data.PaymentMethod),
		nullFloat(data.Subtotal),
		nullFloat(data.Tax),
		nullFloat(data.Total),
		data.Confidence.Overall,
		result.Flags.NeedsManualReview,
		result.Flags.MathError,
		result.Flags.LowConfidence,
		result.Flags.UnusualAmount,
		entity.StatusProcessed,
	)
	if err != nil {
		return fmt.Errorf("failed to update extraction: %v", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return entity.ErrReceiptNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM receipt_items WHERE receipt_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear receipt items: %v", err)
	}

	itemQuery := `
		INSERT INTO receipt_items (receipt_id, description, quantity, item_price, total, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, item := range data.Items {
		if _, err := tx.ExecContext(ctx, itemQuery,
			id,
			item.Description,
			item.Quantity,
			item.ItemPrice,
			item.Total,
			item.Position,
		); err != nil {
			return fmt.Errorf("failed to insert receipt item: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// SetReviewed records the human review decision
func (r *receiptRepository) SetReviewed(ctx context.Context, id string, reviewed bool, note string) error {
	query := `UPDATE receipts SET reviewed = $2, review_note = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, reviewed, nullString(note))
	if err != nil {
		return fmt.Errorf("failed to update review: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return entity.ErrReceiptNotFound
	}

	return nil
}

// ListStuck finds receipts that entered processing before the given
// time and never left it
func (r *receiptRepository) ListStuck(ctx context.Context, before time.Time) ([]*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE status = 'processing' AND updated_at < $1`
	return r.listByQuery(ctx, query, before)
}

// ListFailedBefore finds failed receipts older than the given time
func (r *receiptRepository) ListFailedBefore(ctx context.Context, before time.Time) ([]*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE status = 'failed' AND updated_at < $1`
	return r.listByQuery(ctx, query, before)
}

func (r *receiptRepository) listByQuery(ctx context.Context, query string, args ...any) ([]*entity.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %v", err)
	}
	defer rows.Close()

	var receipts []*entity.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %v", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %v", err)
	}

	return receipts, nil
}

// GetStats returns counts per lifecycle state
func (r *receiptRepository) GetStats(ctx context.Context) (*entity.ReceiptStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'uploaded' THEN 1 ELSE 0 END), 0) as uploaded,
			COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0) as processing,
			COALESCE(SUM(CASE WHEN status = 'processed' THEN 1 ELSE 0 END), 0) as processed,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(SUM(CASE WHEN needs_manual_review AND NOT reviewed THEN 1 ELSE 0 END), 0) as needs_review
		FROM receipts
	`

	var stats entity.ReceiptStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.Uploaded,
		&stats.Processing,
		&stats.Processed,
		&stats.Failed,
		&stats.NeedsReview,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt stats: %v", err)
	}

	return &stats, nil
}

func (r *receiptRepository) loadItems(ctx context.Context, receiptID string) ([]entity.ReceiptItem, error) {
	query := `
		SELECT id, receipt_id, description, quantity, item_price, total, position
		FROM receipt_items
		WHERE receipt_id = $1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, query, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt items: %v", err)
	}
	defer rows.Close()

	var items []entity.ReceiptItem
	for rows.Next() {
		var item entity.ReceiptItem
		if err := rows.Scan(
			&item.ID,
			&item.ReceiptID,
			&item.Description,
			&item.Quantity,
			&item.ItemPrice,
			&item.Total,
			&item.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt item: %v", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt items: %v", err)
	}

	return items, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
