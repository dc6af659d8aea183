package compressor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/adrium/goheif"
	"github.com/chai2010/webp"

	"github.com/kwasham/numzy/internal/entity"
)

// decode parses raster input according to the declared MIME type, with
// a sniffing fallback for callers that did not declare one.
func decode(data []byte, contentType string) (image.Image, error) {
	var (
		img image.Image
		err error
	)

	switch normalizeContentType(contentType) {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	case "image/heic", "image/heif":
		img, err = goheif.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrImageDecode, err)
	}
	return img, nil
}

// normalizeContentType folds aliases like image/jpg and media-type
// parameters away.
func normalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

// sniffDimensions reads image headers only, no pixel decode. Best
// effort: unknown or broken headers report zero dimensions.
func sniffDimensions(data []byte, contentType string) (int, int) {
	var (
		cfg image.Config
		err error
	)

	switch normalizeContentType(contentType) {
	case "image/jpeg":
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
	case "image/png":
		cfg, err = png.DecodeConfig(bytes.NewReader(data))
	case "image/webp":
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	default:
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func mimeForFormat(format entity.ImageFormat) string {
	if format == entity.FormatWebP {
		return "image/webp"
	}
	return "image/jpeg"
}
