// Package thumbnail caches first-frame thumbnails of video files so
// repeated previews of the same video do not re-run FFmpeg. The cache
// lives in the system temp directory with a JSON manifest and is
// bounded by entry count and total size, evicting least-recently-used
// thumbnails first.
package thumbnail

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	dirName      = "bulk-watermark-thumbnails"
	manifestName = "cache.json"

	maxEntries    = 100
	maxTotalBytes = 500 * 1024 * 1024

	// DefaultMaxAge is the cleanup cutoff when none is given.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// Extractor produces a still frame from a video file.
type Extractor interface {
	ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error
}

type entry struct {
	VideoPath     string `json:"videoPath"`
	VideoMtime    int64  `json:"videoMtime"`
	ThumbnailPath string `json:"thumbnailPath"`
	CreatedAt     int64  `json:"createdAt"`
	LastAccessed  int64  `json:"lastAccessed"`
	FileSize      int64  `json:"fileSize"`
}

type manifest struct {
	Entries map[string]entry `json:"entries"`
	Version int              `json:"version"`
}

// Cache is the thumbnail store. Not safe for concurrent use; the CLI
// drives it from a single goroutine.
type Cache struct {
	dir       string
	extractor Extractor
	log       zerolog.Logger
	now       func() time.Time
}

// NewCache creates a cache rooted at dir, or the default temp-dir
// location when dir is empty.
func NewCache(dir string, extractor Extractor, log zerolog.Logger) *Cache {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), dirName)
	}
	return &Cache{dir: dir, extractor: extractor, log: log, now: time.Now}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Thumbnail returns the path of a cached thumbnail for videoPath,
// extracting one on a miss. The cache key covers the video's
// modification time, so an edited video gets a fresh thumbnail.
func (c *Cache) Thumbnail(ctx context.Context, videoPath string) (string, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to stat video file")
	}
	mtime := info.ModTime().Unix()
	key := cacheKey(videoPath, mtime)

	m := c.loadManifest()

	if e, ok := m.Entries[key]; ok {
		if fileExists(e.ThumbnailPath) {
			e.LastAccessed = c.now().Unix()
			m.Entries[key] = e
			c.saveManifest(m)
			return e.ThumbnailPath, nil
		}
		delete(m.Entries, key)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create thumbnail directory")
	}

	outputPath := filepath.Join(c.dir, key+".jpg")
	if err := c.extractor.ExtractThumbnail(ctx, videoPath, outputPath); err != nil {
		return "", err
	}

	var size int64
	if info, err := os.Stat(outputPath); err == nil {
		size = info.Size()
	}
	ts := c.now().Unix()
	m.Entries[key] = entry{
		VideoPath:     videoPath,
		VideoMtime:    mtime,
		ThumbnailPath: outputPath,
		CreatedAt:     ts,
		LastAccessed:  ts,
		FileSize:      size,
	}

	c.evict(m)
	c.saveManifest(m)
	return outputPath, nil
}

// Cleanup removes thumbnails older than maxAge plus any orphaned jpg
// files in the cache directory, and reports what was removed.
func (c *Cache) Cleanup(maxAge time.Duration) (removed int, freedBytes int64, err error) {
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return 0, 0, nil
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	m := c.loadManifest()
	cutoff := c.now().Add(-maxAge).Unix()

	for key, e := range m.Entries {
		if e.CreatedAt >= cutoff && fileExists(e.ThumbnailPath) {
			continue
		}
		delete(m.Entries, key)
		if fileExists(e.ThumbnailPath) {
			if err := os.Remove(e.ThumbnailPath); err != nil {
				c.log.Warn().Err(err).Str("path", e.ThumbnailPath).Msg("failed to delete thumbnail")
				continue
			}
			freedBytes += e.FileSize
		}
		removed++
	}

	// Files in the directory that no manifest entry claims.
	dirEntries, readErr := os.ReadDir(c.dir)
	if readErr == nil {
		claimed := make(map[string]bool, len(m.Entries))
		for _, e := range m.Entries {
			claimed[e.ThumbnailPath] = true
		}
		for _, de := range dirEntries {
			name := de.Name()
			if name == manifestName || !strings.HasSuffix(name, ".jpg") {
				continue
			}
			path := filepath.Join(c.dir, name)
			if claimed[path] {
				continue
			}
			var size int64
			if info, err := de.Info(); err == nil {
				size = info.Size()
			}
			if err := os.Remove(path); err != nil {
				c.log.Warn().Err(err).Str("path", path).Msg("failed to delete orphaned thumbnail")
				continue
			}
			removed++
			freedBytes += size
		}
	}

	c.saveManifest(m)
	return removed, freedBytes, nil
}

// evict drops least-recently-used entries until the cache fits its
// entry-count and total-size bounds.
func (c *Cache) evict(m *manifest) {
	var total int64
	for _, e := range m.Entries {
		total += e.FileSize
	}
	if len(m.Entries) <= maxEntries && total <= maxTotalBytes {
		return
	}

	type keyed struct {
		key string
		entry
	}
	ordered := make([]keyed, 0, len(m.Entries))
	for k, e := range m.Entries {
		ordered = append(ordered, keyed{key: k, entry: e})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LastAccessed < ordered[j].LastAccessed
	})

	for _, o := range ordered {
		if len(m.Entries) <= maxEntries && total <= maxTotalBytes {
			break
		}
		if fileExists(o.ThumbnailPath) {
			if err := os.Remove(o.ThumbnailPath); err != nil {
				c.log.Warn().Err(err).Str("path", o.ThumbnailPath).Msg("failed to evict thumbnail")
			}
		}
		delete(m.Entries, o.key)
		total -= o.FileSize
	}
}

func (c *Cache) manifestPath() string {
	return filepath.Join(c.dir, manifestName)
}

// loadManifest never fails: a missing or corrupt manifest yields an
// empty one, and stale entries pointing at deleted files are dropped.
func (c *Cache) loadManifest() *manifest {
	m := &manifest{Entries: make(map[string]entry), Version: 1}

	content, err := os.ReadFile(c.manifestPath())
	if err != nil {
		return m
	}
	if err := json.Unmarshal(content, m); err != nil {
		c.log.Warn().Err(err).Msg("failed to parse thumbnail manifest, starting fresh")
		return &manifest{Entries: make(map[string]entry), Version: 1}
	}
	if m.Entries == nil {
		m.Entries = make(map[string]entry)
	}
	for key, e := range m.Entries {
		if !fileExists(e.ThumbnailPath) {
			delete(m.Entries, key)
		}
	}
	return m
}

func (c *Cache) saveManifest(m *manifest) {
	content, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to encode thumbnail manifest")
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return
	}
	if err := os.WriteFile(c.manifestPath(), content, 0o644); err != nil {
		c.log.Warn().Err(err).Msg("failed to save thumbnail manifest")
	}
}

func cacheKey(videoPath string, mtime int64) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s%d", videoPath, mtime)
	return fmt.Sprintf("%x", h.Sum64())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
