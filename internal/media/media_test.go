package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path    string
		want    Kind
		wantErr bool
	}{
		{"photo.jpg", KindImage, false},
		{"photo.JPEG", KindImage, false},
		{"graphic.png", KindImage, false},
		{"anim.gif", KindImage, false},
		{"pic.webp", KindImage, false},
		{"clip.mp4", KindVideo, false},
		{"clip.MOV", KindVideo, false},
		{"clip.mkv", KindVideo, false},
		{"clip.webm", KindVideo, false},
		{"/deep/path/to/clip.avi", KindVideo, false},
		{"document.pdf", "", true},
		{"archive.tar.gz", "", true},
		{"noextension", "", true},
		{"trailingdot.", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			kind, err := Detect(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.png"))
	assert.True(t, IsSupported("a.mp4"))
	assert.False(t, IsSupported("a.txt"))
	assert.False(t, IsSupported("a"))
}

func TestNewFileItem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not really a jpeg"), 0o644))

	item, err := NewFileItem(path)
	require.NoError(t, err)
	assert.Equal(t, path, item.Path)
	assert.Equal(t, "sample.jpg", item.Name)
	assert.Equal(t, "image", item.Type)
	assert.Equal(t, int64(len("not really a jpeg")), item.Size)
}

func TestNewFileItemMissingFile(t *testing.T) {
	// Classification is extension-only; a missing file still classifies,
	// just with zero size.
	item, err := NewFileItem(filepath.Join(t.TempDir(), "ghost.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "video", item.Type)
	assert.Zero(t, item.Size)
}

func TestNewFileItemUnsupported(t *testing.T) {
	_, err := NewFileItem("notes.txt")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
