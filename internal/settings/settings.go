// Package settings persists user preferences across runs: read on
// startup, written back whenever something the user chose changes.
package settings

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings is the durable user state.
type Settings struct {
	LastPreset string `mapstructure:"last_preset"`
	OutputDir  string `mapstructure:"output_dir"`
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	PresetsDir string `mapstructure:"presets_dir"`
}

// Store is the persistence boundary. It is injected into whoever needs
// durable state rather than accessed as a global.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// FileStore is a viper-backed Store persisting to a single YAML file.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath places the settings file in the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve user config directory")
	}
	return filepath.Join(dir, "bulk-watermark", "settings.yaml"), nil
}

// Load reads the settings file, returning zero-valued defaults when it
// does not exist yet.
func (s *FileStore) Load() (Settings, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")

	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil
		}
		return Settings{}, errors.Wrap(err, "failed to access settings file")
	}

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, errors.Wrap(err, "failed to load settings")
	}

	var out Settings
	if err := v.Unmarshal(&out); err != nil {
		return Settings{}, errors.Wrap(err, "failed to unmarshal settings")
	}
	return out, nil
}

// Save writes the settings file, creating its directory when needed.
func (s *FileStore) Save(in Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create settings directory")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("last_preset", in.LastPreset)
	v.Set("output_dir", in.OutputDir)
	v.Set("ffmpeg_path", in.FFmpegPath)
	v.Set("presets_dir", in.PresetsDir)

	if err := v.WriteConfigAs(s.path); err != nil {
		return errors.Wrap(err, "failed to save settings")
	}
	return nil
}
