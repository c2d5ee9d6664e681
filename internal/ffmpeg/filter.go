package ffmpeg

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"bulk-watermark/pkg/types"
)

// buildStream assembles the filter graph for one input according to
// the watermark configuration. The returned stream still needs an
// output node attached.
func buildStream(inputPath string, cfg *types.WatermarkConfig) (*ffmpeg.Stream, error) {
	switch cfg.WatermarkType {
	case types.WatermarkImage:
		return buildImageStream(inputPath, cfg)
	case types.WatermarkText:
		return buildTextStream(inputPath, cfg)
	default:
		return nil, errors.Errorf("invalid configuration: unknown watermark type %q", cfg.WatermarkType)
	}
}

func buildTextStream(inputPath string, cfg *types.WatermarkConfig) (*ffmpeg.Stream, error) {
	args, err := TextFilterArgs(cfg)
	if err != nil {
		return nil, err
	}
	return ffmpeg.Input(inputPath).Filter("drawtext", ffmpeg.Args{args}), nil
}

func buildImageStream(inputPath string, cfg *types.WatermarkConfig) (*ffmpeg.Stream, error) {
	if strings.TrimSpace(cfg.ImagePath) == "" {
		return nil, errors.New("invalid configuration: image watermark requires an image path")
	}
	if _, err := os.Stat(cfg.ImagePath); err != nil {
		return nil, errors.Errorf("invalid configuration: watermark image not found at %s", cfg.ImagePath)
	}

	main := ffmpeg.Input(inputPath)
	wm := ffmpeg.Input(cfg.ImagePath).
		Filter("scale", ffmpeg.Args{fmt.Sprintf("iw*%d/100:-1", cfg.Scale())}).
		Filter("format", ffmpeg.Args{"rgba"}).
		Filter("colorchannelmixer", ffmpeg.Args{fmt.Sprintf("aa=%.3f", cfg.Alpha())})

	x, y := overlayPosition(cfg)
	return ffmpeg.Filter([]*ffmpeg.Stream{main, wm}, "overlay", ffmpeg.Args{x + ":" + y}), nil
}

// TextFilterArgs builds the drawtext argument string for a text
// watermark. The drawtext filter has its own escaping rules: single
// quotes, colons and a handful of expansion characters must be
// backslash-escaped or the filter string is misparsed.
func TextFilterArgs(cfg *types.WatermarkConfig) (string, error) {
	if strings.TrimSpace(cfg.Text) == "" {
		return "", errors.New("invalid configuration: text watermark requires non-empty text")
	}

	escapedText := escapeDrawtext(cfg.Text)
	escapedFont := escapeFont(cfg.FontFamily)
	fontColor := normalizeColor(cfg.TextColor, cfg.Opacity)
	x, y := textPosition(cfg)

	return fmt.Sprintf(
		"text='%s':font='%s':fontsize=%d:fontcolor=%s:shadowcolor=black@0.5:shadowx=2:shadowy=2:%s:%s",
		escapedText, escapedFont, cfg.FontSize, fontColor,
		quoteIfExpr("x", x), quoteIfExpr("y", y),
	), nil
}

func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
		`{`, `\{`,
		`}`, `\}`,
	)
	return r.Replace(s)
}

func escapeFont(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
	)
	return r.Replace(s)
}

// normalizeColor converts "#rrggbb" to FFmpeg's 0xrrggbb form and
// appends the opacity as an alpha suffix.
func normalizeColor(color string, opacity int) string {
	alpha := float64(opacity) / 100.0
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	base := color
	if stripped, ok := strings.CutPrefix(color, "#"); ok {
		base = "0x" + stripped
	}
	return fmt.Sprintf("%s@%.3f", base, alpha)
}

// quoteIfExpr wraps a position expression in quotes when it contains
// commas, which would otherwise terminate the filter argument.
func quoteIfExpr(name, expr string) string {
	if strings.Contains(expr, ",") {
		return fmt.Sprintf("%s='%s'", name, expr)
	}
	return fmt.Sprintf("%s=%s", name, expr)
}

// textPosition yields drawtext x/y expressions. Custom positions are
// clamped into [0,1] and interpreted as the text's center point; the
// expression keeps the text inside the frame at the extremes.
func textPosition(cfg *types.WatermarkConfig) (string, string) {
	if cfg.IsCustomPosition() {
		p := cfg.CustomPosition.Clamped()
		x := fmt.Sprintf("max(0, min(w-text_w, w*%.6f-text_w/2))", p.X)
		y := fmt.Sprintf("max(0, min(h-text_h, h*%.6f-text_h/2))", p.Y)
		return x, y
	}

	switch cfg.Position {
	case types.TopLeft:
		return "20", "20"
	case types.TopCenter:
		return "(w-text_w)/2", "20"
	case types.TopRight:
		return "w-text_w-20", "20"
	case types.CenterLeft:
		return "20", "(h-text_h)/2"
	case types.Center:
		return "(w-text_w)/2", "(h-text_h)/2"
	case types.CenterRight:
		return "w-text_w-20", "(h-text_h)/2"
	case types.BottomLeft:
		return "20", "h-text_h-20"
	case types.BottomCenter:
		return "(w-text_w)/2", "h-text_h-20"
	default: // bottom-right
		return "w-text_w-20", "h-text_h-20"
	}
}

// overlayPosition yields overlay x/y expressions. The overlay filter
// uses W/H for the main input and w/h for the overlaid one.
func overlayPosition(cfg *types.WatermarkConfig) (string, string) {
	if cfg.IsCustomPosition() {
		p := cfg.CustomPosition.Clamped()
		x := fmt.Sprintf("max(0, min(W-w, W*%.6f-w/2))", p.X)
		y := fmt.Sprintf("max(0, min(H-h, H*%.6f-h/2))", p.Y)
		return x, y
	}

	switch cfg.Position {
	case types.TopLeft:
		return "20", "20"
	case types.TopCenter:
		return "(W-w)/2", "20"
	case types.TopRight:
		return "W-w-20", "20"
	case types.CenterLeft:
		return "20", "(H-h)/2"
	case types.Center:
		return "(W-w)/2", "(H-h)/2"
	case types.CenterRight:
		return "W-w-20", "(H-h)/2"
	case types.BottomLeft:
		return "20", "H-h-20"
	case types.BottomCenter:
		return "(W-w)/2", "H-h-20"
	default: // bottom-right
		return "W-w-20", "H-h-20"
	}
}
