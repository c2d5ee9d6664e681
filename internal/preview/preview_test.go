package preview

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulk-watermark/pkg/types"
)

func writeBaseImage(t *testing.T, dir string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, "base.png")
	img := imaging.New(w, h, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestRenderText(t *testing.T) {
	dir := t.TempDir()
	base := writeBaseImage(t, dir, 400, 300)
	out := filepath.Join(dir, "preview.png")

	cfg := types.DefaultConfig()
	cfg.Text = "Sample"

	require.NoError(t, Render(cfg, base, out))

	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestRenderTextEmpty(t *testing.T) {
	dir := t.TempDir()
	base := writeBaseImage(t, dir, 100, 100)

	cfg := types.DefaultConfig()
	cfg.Text = "   "

	err := Render(cfg, base, filepath.Join(dir, "out.png"))
	assert.ErrorContains(t, err, "non-empty text")
}

func TestRenderImage(t *testing.T) {
	dir := t.TempDir()
	base := writeBaseImage(t, dir, 400, 300)

	logo := filepath.Join(dir, "logo.png")
	require.NoError(t, imaging.Save(imaging.New(50, 50, color.NRGBA{R: 200, A: 255}), logo))

	cfg := types.DefaultConfig()
	cfg.WatermarkType = types.WatermarkImage
	cfg.ImagePath = logo
	cfg.ImageScale = 25

	out := filepath.Join(dir, "preview.png")
	require.NoError(t, Render(cfg, base, out))

	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
}

func TestRenderImageWithoutPath(t *testing.T) {
	dir := t.TempDir()
	base := writeBaseImage(t, dir, 100, 100)

	cfg := types.DefaultConfig()
	cfg.WatermarkType = types.WatermarkImage

	err := Render(cfg, base, filepath.Join(dir, "out.png"))
	assert.ErrorContains(t, err, "requires an image path")
}

func TestRenderMissingBase(t *testing.T) {
	cfg := types.DefaultConfig()
	err := Render(cfg, filepath.Join(t.TempDir(), "nope.png"), "out.png")
	assert.ErrorContains(t, err, "failed to open base image")
}

func TestAnchorPointPresets(t *testing.T) {
	const frameW, frameH, wmW, wmH = 400, 300, 40, 30

	tests := []struct {
		pos   types.Position
		wantX int
		wantY int
	}{
		{types.TopLeft, 20, 20},
		{types.TopCenter, 180, 20},
		{types.TopRight, 340, 20},
		{types.CenterLeft, 20, 135},
		{types.Center, 180, 135},
		{types.CenterRight, 340, 135},
		{types.BottomLeft, 20, 250},
		{types.BottomCenter, 180, 250},
		{types.BottomRight, 340, 250},
	}

	for _, tt := range tests {
		t.Run(string(tt.pos), func(t *testing.T) {
			cfg := types.DefaultConfig()
			cfg.Position = tt.pos
			x, y := anchorPoint(frameW, frameH, wmW, wmH, cfg)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

func TestAnchorPointCustom(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.PositionMode = types.PositionCustom
	cfg.CustomPosition = &types.CustomPosition{X: 0.5, Y: 0.5}

	// Centered watermark: point is the watermark's center.
	x, y := anchorPoint(400, 300, 40, 30, cfg)
	assert.Equal(t, 180, x)
	assert.Equal(t, 135, y)

	// Out-of-range coordinates clamp to the frame edges rather than
	// pushing the watermark outside.
	cfg.CustomPosition = &types.CustomPosition{X: 1.5, Y: -0.2}
	x, y = anchorPoint(400, 300, 40, 30, cfg)
	assert.Equal(t, 360, x)
	assert.Equal(t, 0, y)
}

func TestAnchorPointWatermarkLargerThanFrame(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Position = types.BottomRight

	x, y := anchorPoint(100, 100, 200, 200, cfg)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0x80, B: 0x00, A: 255}, c)

	c, err = parseHexColor("#f80")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0x88, B: 0x00, A: 255}, c)

	c, err = parseHexColor("  #FFFFFF ")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, c)

	_, err = parseHexColor("#ffff")
	assert.Error(t, err)
	_, err = parseHexColor("#zzzzzz")
	assert.Error(t, err)
	_, err = parseHexColor("blue")
	assert.Error(t, err)
}

func TestTextColorFallsBackToWhite(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.TextColor = "not-a-color"
	cfg.Opacity = 100

	c := textColor(cfg)
	r, g, b, _ := c.RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
}
