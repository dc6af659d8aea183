package entity

import "time"

type ReceiptStatus string

const (
	StatusUploaded   ReceiptStatus = "uploaded"
	StatusProcessing ReceiptStatus = "processing"
	StatusProcessed  ReceiptStatus = "processed"
	StatusFailed     ReceiptStatus = "failed"
)

type Receipt struct {
	ID             string        `json:"id"`
	FileName       string        `json:"file_name"`
	ContentType    string        `json:"content_type"`
	FileSize       int64         `json:"file_size"`
	StoredPath     string        `json:"-"`
	CompressedPath string        `json:"-"`
	Status         ReceiptStatus `json:"status"`
	FailReason     string        `json:"fail_reason,omitempty"`

	Merchant      string   `json:"merchant,omitempty"`
	Address       string   `json:"address,omitempty"`
	ReceiptNumber string   `json:"receipt_number,omitempty"`
	PurchaseDate  string   `json:"purchase_date,omitempty"`
	PurchaseTime  string   `json:"purchase_time,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
	Subtotal      *float64 `json:"subtotal,omitempty"`
	Tax           *float64 `json:"tax,omitempty"`
	Total         *float64 `json:"total,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`

	Audit      AuditFlags    `json:"audit"`
	Reviewed   bool          `json:"reviewed"`
	ReviewNote string        `json:"review_note,omitempty"`
	Items      []ReceiptItem `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReceiptItem struct {
	ID          int64   `json:"id,omitempty"`
	ReceiptID   string  `json:"-"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	ItemPrice   float64 `json:"item_price"`
	Total       float64 `json:"total"`
	Position    int     `json:"-"`
}

// AuditFlags mark receipts that should not be trusted without a human look.
type AuditFlags struct {
	NeedsManualReview bool `json:"needs_manual_review"`
	MathError         bool `json:"math_error"`
	LowConfidence     bool `json:"low_confidence"`
	UnusualAmount     bool `json:"unusual_amount"`
}

func (f AuditFlags) Any() bool {
	return f.NeedsManualReview || f.MathError || f.LowConfidence || f.UnusualAmount
}

type ValidationResult struct {
	IsValid  bool       `json:"is_valid"`
	Errors   []string   `json:"errors,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
	Flags    AuditFlags `json:"audit_flags"`
}

// ExtractedData is the parser output, kept transient between
// extraction and persistence.
type ExtractedData struct {
	Merchant      string           `json:"merchant"`
	Address       string           `json:"address,omitempty"`
	ReceiptNumber string           `json:"receipt_number,omitempty"`
	Date          string           `json:"date,omitempty"`
	Time          string           `json:"time,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	Items         []ReceiptItem    `json:"items"`
	Subtotal      *float64         `json:"subtotal,omitempty"`
	Tax           *float64         `json:"tax,omitempty"`
	Total         *float64         `json:"total,omitempty"`
	Confidence    ConfidenceScores `json:"confidence_scores"`
}

type ConfidenceScores struct {
	Overall  float64 `json:"overall"`
	Merchant float64 `json:"merchant"`
	Total    float64 `json:"total"`
	Items    float64 `json:"items"`
}

type ReceiptStats struct {
	Total       int64 `json:"total"`
	Uploaded    int64 `json:"uploaded"`
	Processing  int64 `json:"processing"`
	Processed   int64 `json:"processed"`
	Failed      int64 `json:"failed"`
	NeedsReview int64 `json:"needs_review"`
}

type ProcessingTask struct {
	ReceiptID   string    `json:"receipt_id"`
	ContentType string    `json:"content_type"`
	StoredPath  string    `json:"stored_path"`
	FileName    string    `json:"file_name"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

type AuditNotification struct {
	ReceiptID string     `json:"receipt_id"`
	Merchant  string     `json:"merchant,omitempty"`
	Total     *float64   `json:"total,omitempty"`
	Flags     AuditFlags `json:"flags"`
	FlaggedAt time.Time  `json:"flagged_at"`
}

type UploadResponse struct {
	ID     string        `json:"id"`
	Status ReceiptStatus `json:"status"`
}

type StatusResponse struct {
	ID         string        `json:"id"`
	Status     ReceiptStatus `json:"status"`
	FailReason string        `json:"fail_reason,omitempty"`
}
