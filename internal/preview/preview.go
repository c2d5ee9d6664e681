// Package preview renders a local still-image approximation of a
// watermark configuration, without invoking FFmpeg. The position math
// mirrors the filter expressions the engine generates, so what the
// preview shows is where the watermark lands.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"bulk-watermark/pkg/types"
)

// padding between a preset-anchored watermark and the frame edge, in
// pixels; matches the engine's filter expressions.
const padding = 20

// Render composites the configured watermark onto the image at
// basePath and writes the result to outputPath. For videos, pass an
// extracted frame as basePath.
func Render(cfg *types.WatermarkConfig, basePath, outputPath string) error {
	base, err := imaging.Open(basePath)
	if err != nil {
		return errors.Wrap(err, "failed to open base image")
	}

	var out image.Image
	switch cfg.WatermarkType {
	case types.WatermarkImage:
		out, err = renderImage(base, cfg)
	case types.WatermarkText:
		out, err = renderText(base, cfg)
	default:
		err = errors.Errorf("unknown watermark type %q", cfg.WatermarkType)
	}
	if err != nil {
		return err
	}

	if err := imaging.Save(out, outputPath); err != nil {
		return errors.Wrap(err, "failed to save preview")
	}
	return nil
}

func renderText(base image.Image, cfg *types.WatermarkConfig) (image.Image, error) {
	if strings.TrimSpace(cfg.Text) == "" {
		return nil, errors.New("text watermark requires non-empty text")
	}

	dc := gg.NewContextForImage(base)

	face, err := fontFace(cfg)
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(face)
	dc.SetColor(textColor(cfg))

	textW, textH := dc.MeasureString(cfg.Text)
	x, y := anchorPoint(dc.Width(), dc.Height(), int(textW), int(textH), cfg)
	dc.DrawString(cfg.Text, float64(x), float64(y)+textH)

	return dc.Image(), nil
}

func renderImage(base image.Image, cfg *types.WatermarkConfig) (image.Image, error) {
	if cfg.ImagePath == "" {
		return nil, errors.New("image watermark requires an image path")
	}
	wm, err := imaging.Open(cfg.ImagePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open watermark image")
	}

	baseBounds := base.Bounds()
	targetW := baseBounds.Dx() * cfg.Scale() / 100
	if targetW < 1 {
		targetW = 1
	}
	scaled := imaging.Resize(wm, targetW, 0, imaging.Lanczos)

	wmBounds := scaled.Bounds()
	x, y := anchorPoint(baseBounds.Dx(), baseBounds.Dy(), wmBounds.Dx(), wmBounds.Dy(), cfg)

	return imaging.Overlay(base, scaled, image.Pt(x, y), cfg.Alpha()), nil
}

// fontFace loads the configured font when FontFamily is a path to a
// font file, falling back to the embedded Go Regular face.
func fontFace(cfg *types.WatermarkConfig) (font.Face, error) {
	size := float64(cfg.FontSize)
	if size <= 0 {
		size = 48
	}

	if cfg.FontFamily != "" {
		if info, err := os.Stat(cfg.FontFamily); err == nil && !info.IsDir() {
			face, err := gg.LoadFontFace(cfg.FontFamily, size)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to load font %s", cfg.FontFamily)
			}
			return face, nil
		}
	}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse embedded font")
	}
	return truetype.NewFace(f, &truetype.Options{Size: size}), nil
}

func textColor(cfg *types.WatermarkConfig) color.Color {
	c, err := parseHexColor(cfg.TextColor)
	if err != nil {
		c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	c.A = uint8(cfg.Alpha() * 255)
	return c
}

// parseHexColor accepts #rgb and #rrggbb.
func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		s = fmt.Sprintf("%c%c%c%c%c%c", s[0], s[0], s[1], s[1], s[2], s[2])
	case 6:
	default:
		return color.NRGBA{}, errors.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, errors.Errorf("invalid color %q", s)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}

// anchorPoint computes the watermark's top-left corner. Custom
// positions are clamped into [0,1] and treated as the watermark's
// center; preset anchors sit padding pixels off the frame edges.
func anchorPoint(frameW, frameH, wmW, wmH int, cfg *types.WatermarkConfig) (int, int) {
	if cfg.IsCustomPosition() {
		p := cfg.CustomPosition.Clamped()
		x := clampInt(int(float64(frameW)*p.X)-wmW/2, 0, frameW-wmW)
		y := clampInt(int(float64(frameH)*p.Y)-wmH/2, 0, frameH-wmH)
		return x, y
	}

	left := padding
	centerX := (frameW - wmW) / 2
	right := frameW - wmW - padding
	top := padding
	centerY := (frameH - wmH) / 2
	bottom := frameH - wmH - padding

	var x, y int
	switch cfg.Position {
	case types.TopLeft:
		x, y = left, top
	case types.TopCenter:
		x, y = centerX, top
	case types.TopRight:
		x, y = right, top
	case types.CenterLeft:
		x, y = left, centerY
	case types.Center:
		x, y = centerX, centerY
	case types.CenterRight:
		x, y = right, centerY
	case types.BottomLeft:
		x, y = left, bottom
	case types.BottomCenter:
		x, y = centerX, bottom
	default: // bottom-right
		x, y = right, bottom
	}
	return clampInt(x, 0, maxInt(0, frameW-wmW)), clampInt(y, 0, maxInt(0, frameH-wmH))
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
