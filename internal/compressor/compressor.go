// Adaptive image compression: re-encode at decreasing quality and, once
// quality is exhausted, at shrinking dimensions, until the output fits
// a byte ceiling.
package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/kwasham/numzy/internal/entity"
)

// Search tuning. The factors trade search time against how close the
// result lands to the ceiling.
const (
	defaultQualityDecay    = 0.8
	defaultDimensionShrink = 0.8
	defaultMaxShrinkRounds = 10
)

// Progress stage labels passed to the caller's sink.
const (
	StageDecode   = "decode"
	StageResize   = "resize"
	StageEncode   = "encode"
	StageFinalize = "done"
)

type Compressor struct {
	qualityDecay    float64
	dimensionShrink float64
	maxShrinkRounds int
}

func NewCompressor() *Compressor {
	return &Compressor{
		qualityDecay:    defaultQualityDecay,
		dimensionShrink: defaultDimensionShrink,
		maxShrinkRounds: defaultMaxShrinkRounds,
	}
}

// Compress re-encodes image data so that it fits opts.MaxSizeBytes and
// opts.MaxWidth x opts.MaxHeight, preserving the aspect ratio. Input
// already within the ceiling is returned byte-for-byte unchanged, with
// no decode. When the ceiling is unreachable even at the shrink-round
// cap, the smallest result found is returned instead of an error.
func (c *Compressor) Compress(ctx context.Context, data []byte, contentType string, opts entity.CompressionOptions) (*entity.CompressionResult, error) {
	if err := validateOptions(&opts); err != nil {
		return nil, err
	}

	originalSize := int64(len(data))
	progress := newProgressReporter(opts.OnProgress)

	if originalSize <= opts.MaxSizeBytes {
		width, height := sniffDimensions(data, contentType)
		progress.report(StageFinalize, 100)
		return &entity.CompressionResult{
			Data:           data,
			MIMEType:       normalizeContentType(contentType),
			OriginalSize:   originalSize,
			CompressedSize: originalSize,
			Quality:        1,
			Width:          width,
			Height:         height,
		}, nil
	}

	progress.report(StageDecode, 5)
	img, err := decode(data, contentType)
	if err != nil {
		return nil, err
	}
	progress.report(StageDecode, 30)

	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()
	if srcWidth < 1 || srcHeight < 1 {
		return nil, fmt.Errorf("%w: source is %dx%d", entity.ErrCanvasUnavailable, srcWidth, srcHeight)
	}

	targetWidth, targetHeight := fitWithin(srcWidth, srcHeight, opts.MaxWidth, opts.MaxHeight)

	canvas := img
	if targetWidth != srcWidth || targetHeight != srcHeight {
		canvas = imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos)
	}
	progress.report(StageResize, 50)

	midQuality := (opts.InitialQuality + opts.MinQuality) / 2
	totalAttempts := c.estimateAttempts(opts.InitialQuality, opts.MinQuality, midQuality)

	var (
		best          *entity.CompressionResult
		lastEncodeErr error
		attempt       int
	)

	quality := opts.InitialQuality
	width, height := targetWidth, targetHeight
	scale := 1.0

	for round := 0; ; round++ {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			encoded, err := encodeFrame(canvas, opts.Format, quality)
			attempt++
			progress.report(StageEncode, 50+45*attempt/totalAttempts)

			if err != nil {
				lastEncodeErr = err
			} else {
				result := &entity.CompressionResult{
					Data:           encoded,
					MIMEType:       mimeForFormat(opts.Format),
					OriginalSize:   originalSize,
					CompressedSize: int64(len(encoded)),
					Quality:        quality,
					Width:          width,
					Height:         height,
				}
				if result.CompressedSize <= opts.MaxSizeBytes {
					progress.report(StageFinalize, 100)
					return result, nil
				}
				if best == nil || result.CompressedSize < best.CompressedSize {
					best = result
				}
			}

			if quality <= opts.MinQuality {
				break
			}
			quality = math.Max(quality*c.qualityDecay, opts.MinQuality)
		}

		if round >= c.maxShrinkRounds {
			break
		}

		// Quality alone was not enough, give up some resolution.
		// Dimensions always derive from the post-fit target so rounding
		// does not drift the aspect ratio across rounds.
		scale *= c.dimensionShrink
		nextWidth := int(math.Round(float64(targetWidth) * scale))
		nextHeight := int(math.Round(float64(targetHeight) * scale))
		if nextWidth < 1 || nextHeight < 1 {
			break
		}
		width, height = nextWidth, nextHeight
		canvas = imaging.Resize(img, width, height, imaging.Lanczos)
		quality = midQuality
	}

	if best == nil {
		if lastEncodeErr != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrImageEncode, lastEncodeErr)
		}
		return nil, entity.ErrImageEncode
	}

	progress.report(StageFinalize, 100)
	return best, nil
}

// fitWithin scales width x height down to fit the bounds, keeping the
// aspect ratio. Images already inside the bounds keep their dimensions.
func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	scale := math.Min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func (c *Compressor) estimateAttempts(initial, min, mid float64) int {
	return qualitySteps(initial, min, c.qualityDecay) + c.maxShrinkRounds*qualitySteps(mid, min, c.qualityDecay)
}

// qualitySteps counts encode attempts on the way from `from` down to
// `to` with multiplicative decay, both endpoints included.
func qualitySteps(from, to, decay float64) int {
	steps := 1
	for q := from; q > to; {
		q = math.Max(q*decay, to)
		steps++
	}
	return steps
}

func encodeFrame(img image.Image, format entity.ImageFormat, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case entity.FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality * 100)}); err != nil {
			return nil, err
		}
	case entity.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: qualityPercent(quality)}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	return buf.Bytes(), nil
}

// qualityPercent maps the normalized (0, 1] quality onto the 1..100
// range the encoders take.
func qualityPercent(quality float64) int {
	percent := int(math.Round(quality * 100))
	if percent < 1 {
		percent = 1
	}
	if percent > 100 {
		percent = 100
	}
	return percent
}

func validateOptions(opts *entity.CompressionOptions) error {
	if opts.MaxSizeBytes <= 0 {
		return fmt.Errorf("%w: max size must be positive", entity.ErrInvalidInput)
	}
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		return fmt.Errorf("%w: max dimensions must be positive", entity.ErrInvalidInput)
	}
	if opts.InitialQuality <= 0 || opts.InitialQuality > 1 {
		return fmt.Errorf("%w: initial quality must be in (0, 1]", entity.ErrInvalidInput)
	}
	if opts.MinQuality <= 0 || opts.MinQuality > opts.InitialQuality {
		return fmt.Errorf("%w: min quality must be in (0, initial quality]", entity.ErrInvalidInput)
	}
	if opts.Format == "" {
		opts.Format = entity.FormatJPEG
	}
	return nil
}

type progressReporter struct {
	fn   entity.ProgressFunc
	last int
}

func newProgressReporter(fn entity.ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

// report clamps percentages so consumers always observe a
// non-decreasing sequence ending at 100.
func (p *progressReporter) report(stage string, percent int) {
	if p.fn == nil {
		return
	}
	if percent < p.last {
		percent = p.last
	}
	if percent > 100 {
		percent = 100
	}
	p.last = percent
	p.fn(stage, percent)
}
