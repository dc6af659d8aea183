package entity

type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatWebP ImageFormat = "webp"
)

// ProgressFunc receives a stage label and a percentage in [0, 100].
// Reported percentages never decrease within one compression call and
// the final call is always 100.
type ProgressFunc func(stage string, percent int)

// ProgressPercent adapts a percent-only callback for callers that do
// not care about stage labels.
func ProgressPercent(f func(percent int)) ProgressFunc {
	return func(_ string, percent int) {
		f(percent)
	}
}

type CompressionOptions struct {
	MaxSizeBytes   int64
	MaxWidth       int
	MaxHeight      int
	InitialQuality float64 // in (0, 1], InitialQuality >= MinQuality
	MinQuality     float64 // in (0, 1]
	Format         ImageFormat
	OnProgress     ProgressFunc
}

type CompressionResult struct {
	Data           []byte
	MIMEType       string
	OriginalSize   int64
	CompressedSize int64
	Quality        float64
	Width          int
	Height         int
}
