// Package preset loads named watermark configurations from JSON files
// in a presets directory.
package preset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"bulk-watermark/pkg/types"
)

// Preset couples a watermark configuration with its display metadata.
type Preset struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Config      *types.WatermarkConfig `json:"config"`
}

// Metadata identifies a preset without its configuration. ID is the
// file's stem.
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Preset IDs come from filenames and go back into filenames; anything
// outside this set could traverse out of the presets directory.
var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// List returns the metadata of every readable preset in dir, sorted by
// name. Malformed files are skipped with a warning rather than failing
// the whole listing.
func List(dir string, log zerolog.Logger) ([]Metadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read presets directory")
	}

	presets := make([]Metadata, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")

		p, err := readPreset(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn().Err(err).Str("preset", id).Msg("skipping unreadable preset")
			continue
		}
		presets = append(presets, Metadata{ID: id, Name: p.Name, Description: p.Description})
	}

	slices.SortFunc(presets, func(a, b Metadata) int {
		return strings.Compare(a.Name, b.Name)
	})
	return presets, nil
}

// Load returns the configuration of the preset with the given id.
func Load(dir, id string) (*types.WatermarkConfig, error) {
	if !validID.MatchString(id) {
		return nil, errors.Errorf("invalid preset ID %q", id)
	}

	p, err := readPreset(filepath.Join(dir, id+".json"))
	if err != nil {
		return nil, err
	}
	if p.Config == nil {
		return nil, errors.Errorf("preset %q has no configuration", id)
	}
	return p.Config, nil
}

func readPreset(path string) (*Preset, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "preset not found")
	}
	var p Preset
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, errors.Wrap(err, "invalid preset format")
	}
	return &p, nil
}
