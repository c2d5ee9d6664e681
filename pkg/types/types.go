package types

import "path/filepath"

// WatermarkType selects which half of a WatermarkConfig is active.
type WatermarkType string

const (
	WatermarkText  WatermarkType = "text"
	WatermarkImage WatermarkType = "image"
)

// Position is one of the nine anchor presets for watermark placement.
type Position string

const (
	TopLeft      Position = "top-left"
	TopCenter    Position = "top-center"
	TopRight     Position = "top-right"
	CenterLeft   Position = "center-left"
	Center       Position = "center"
	CenterRight  Position = "center-right"
	BottomLeft   Position = "bottom-left"
	BottomCenter Position = "bottom-center"
	BottomRight  Position = "bottom-right"
)

// PositionMode selects between the anchor preset and a custom point.
type PositionMode string

const (
	PositionPreset PositionMode = "preset"
	PositionCustom PositionMode = "custom"
)

// CustomPosition is a normalized point in [0,1]x[0,1], interpreted as
// the watermark's center scaled by the source dimensions.
type CustomPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamped returns the position with both coordinates forced into [0,1].
// Out-of-range values are clamped, never rejected.
func (c CustomPosition) Clamped() CustomPosition {
	return CustomPosition{X: clamp01(c.X), Y: clamp01(c.Y)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WatermarkConfig describes what to draw, where, and how. It is
// immutable for the duration of a batch run; exactly one of the text
// or image fields is semantically active, selected by WatermarkType.
type WatermarkConfig struct {
	WatermarkType  WatermarkType   `json:"watermarkType"`
	Text           string          `json:"text"`
	TextColor      string          `json:"textColor"`
	FontSize       int             `json:"fontSize"`
	FontFamily     string          `json:"fontFamily"`
	ImagePath      string          `json:"imagePath,omitempty"`
	ImageScale     int             `json:"imageScale,omitempty"`
	Position       Position        `json:"position"`
	PositionMode   PositionMode    `json:"positionMode,omitempty"`
	CustomPosition *CustomPosition `json:"customPosition,omitempty"`
	Opacity        int             `json:"opacity"`
}

// DefaultConfig returns the configuration the UI starts from.
func DefaultConfig() *WatermarkConfig {
	return &WatermarkConfig{
		WatermarkType: WatermarkText,
		Text:          "Watermark",
		TextColor:     "#ffffff",
		FontSize:      48,
		FontFamily:    "Arial",
		ImageScale:    20,
		Position:      BottomRight,
		PositionMode:  PositionPreset,
		Opacity:       80,
	}
}

// IsCustomPosition reports whether the custom point governs placement.
func (c *WatermarkConfig) IsCustomPosition() bool {
	return c.PositionMode == PositionCustom && c.CustomPosition != nil
}

// Scale returns the image watermark scale as a percentage of the
// source width, defaulting to 20 when unset.
func (c *WatermarkConfig) Scale() int {
	if c.ImageScale <= 0 {
		return 20
	}
	return c.ImageScale
}

// Alpha returns the opacity as a fraction in [0,1].
func (c *WatermarkConfig) Alpha() float64 {
	a := float64(c.Opacity) / 100.0
	if a < 0 {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}

// FileItem is a selected input file. Type is derived from the path's
// extension once, at selection time, and never revalidated.
type FileItem struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// ProcessingStatus is the outcome of one file's processing attempt.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusFailed  ProcessingStatus = "failed"
	StatusSkipped ProcessingStatus = "skipped"
)

// FileResult records the outcome of one input file. It is created
// exactly once, when the file's attempt concludes.
type FileResult struct {
	InputPath  string           `json:"inputPath"`
	OutputPath string           `json:"outputPath,omitempty"`
	Status     ProcessingStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
}

// BatchResult aggregates every FileResult of one batch run.
// Total == Successful + Failed and len(Files) == Total.
type BatchResult struct {
	Files      []FileResult `json:"files"`
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
}

// Progress statuses carried by ProgressPayload.
const (
	ProgressProcessing = "processing"
	ProgressComplete   = "complete"
	ProgressError      = "error"
)

// ProgressPayload describes one file's lifecycle transition. It is
// emitted at least twice per file: processing, then complete or error.
type ProgressPayload struct {
	FilePath   string `json:"filePath"`
	FileIndex  int    `json:"fileIndex"`
	TotalFiles int    `json:"totalFiles"`
	Status     string `json:"status"`
}

// OutputPath computes the destination for an input file:
// {outputDir}/{stem}_watermarked{ext}. Two inputs with the same stem
// and extension map to the same output; the last writer wins.
func OutputPath(outputDir, inputPath string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	if stem == "" {
		stem = "watermarked"
	}
	return filepath.Join(outputDir, stem+"_watermarked"+ext)
}
