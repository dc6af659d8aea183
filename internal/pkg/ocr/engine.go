// Text extraction engines used by the processing pipeline.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kwasham/numzy/config"
)

// Engine extracts the printed text from a stored receipt image.
type Engine interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}

// NewEngine selects the engine named in the processing config,
// falling back to the static engine for unknown names.
func NewEngine(cfg config.ProcessingConfig) Engine {
	if cfg.OCREngine == "http" && cfg.ExtractionURL != "" {
		return NewHTTPEngine(cfg.ExtractionURL)
	}
	return NewStaticEngine()
}

const staticReceiptText = `
    GROCERY STORE
    123 MAIN STREET
    ANYTOWN, CA 90210

    RECEIPT #: 1234567890
    DATE: 01/10/2025
    TIME: 14:30:22

    ITEMS:
    Bananas          $3.99
    Milk 1 Gal       $4.49
    Bread            $2.99

    SUBTOTAL:        $11.47
    TAX:             $1.03
    TOTAL:           $12.50

    PAYMENT: VISA ****1234
    AUTH: 123456

    THANK YOU FOR SHOPPING!
`

// StaticEngine returns a fixed grocery receipt for every input. It
// keeps local development and tests independent of an extraction
// service.
type StaticEngine struct{}

func NewStaticEngine() *StaticEngine {
	return &StaticEngine{}
}

func (e *StaticEngine) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return staticReceiptText, nil
}

// HTTPEngine posts the raw file to an extraction service and reads
// the text out of its JSON response.
type HTTPEngine struct {
	url    string
	client *http.Client
}

func NewHTTPEngine(url string) *HTTPEngine {
	return &HTTPEngine{
		url: url,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type extractionResponse struct {
	Text string `json:"text"`
}

func (e *HTTPEngine) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, body)
	}

	var parsed extractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode extraction response: %w", err)
	}
	return parsed.Text, nil
}
