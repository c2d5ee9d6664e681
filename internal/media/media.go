package media

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"bulk-watermark/pkg/types"
)

// Kind classifies a media file as a still image or a video.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
}

var videoExtensions = map[string]bool{
	"mp4":  true,
	"avi":  true,
	"mov":  true,
	"mkv":  true,
	"webm": true,
	"flv":  true,
}

// ErrUnsupportedFormat is returned for extensions outside the supported
// image and video sets.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Detect maps a path to its media kind from the file extension alone.
// The file itself is never opened.
func Detect(path string) (Kind, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", errors.Wrap(ErrUnsupportedFormat, "missing file extension")
	}

	ext = strings.ToLower(ext)
	switch {
	case imageExtensions[ext]:
		return KindImage, nil
	case videoExtensions[ext]:
		return KindVideo, nil
	default:
		return "", errors.Wrap(ErrUnsupportedFormat, ext)
	}
}

// IsSupported reports whether the path carries a recognized extension.
func IsSupported(path string) bool {
	_, err := Detect(path)
	return err == nil
}

// NewFileItem classifies a path once, at selection time, producing the
// FileItem carried through the rest of the file's lifecycle. Size is
// filled in when the file can be stat'd and left zero otherwise.
func NewFileItem(path string) (types.FileItem, error) {
	kind, err := Detect(path)
	if err != nil {
		return types.FileItem{}, err
	}

	item := types.FileItem{
		Path: path,
		Name: filepath.Base(path),
		Type: string(kind),
	}
	if info, err := os.Stat(path); err == nil {
		item.Size = info.Size()
	}
	return item, nil
}
