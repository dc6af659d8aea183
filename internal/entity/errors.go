package entity

import "errors"

var (
	// Compression errors
	ErrImageDecode       = errors.New("image decode failed")
	ErrImageEncode       = errors.New("image encode failed")
	ErrCanvasUnavailable = errors.New("working canvas unavailable")

	// Upload errors
	ErrEmptyFile       = errors.New("empty file uploaded")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrQuotaExceeded   = errors.New("monthly upload limit reached")

	// Receipt errors
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrInvalidStatus   = errors.New("invalid receipt status")
	ErrFileNotFound    = errors.New("stored file not found")

	// General errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabaseError = errors.New("database error")
)
