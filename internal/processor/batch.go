// Package processor drives the sequential batch loop: one external
// FFmpeg invocation per file, progress events before and after each
// invocation, and a single aggregate result once every file has been
// attempted.
package processor

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"bulk-watermark/internal/events"
	"bulk-watermark/internal/ffmpeg"
	"bulk-watermark/pkg/types"
)

// Engine is the external media processor: given one input, one output
// and a configuration it applies the watermark and returns success or
// a diagnostic failure.
type Engine interface {
	Ready() error
	Process(ctx context.Context, inputPath, outputPath string, cfg *types.WatermarkConfig) error
}

// Orchestrator owns the lifetime of a single batch run's result
// construction. Files are processed strictly sequentially; a file's
// failure never aborts the batch.
type Orchestrator struct {
	engine Engine
	bus    *events.Bus
	log    zerolog.Logger
}

// New creates an Orchestrator emitting on bus.
func New(engine Engine, bus *events.Bus, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{engine: engine, bus: bus, log: log}
}

// Run processes files in index order against one configuration,
// writing outputs into outputDir. It returns the aggregate result, or
// an error without any result when the run is rejected up front
// (invalid input, missing binary, uncreatable output directory) or a
// catastrophic failure surfaces mid-run.
func (o *Orchestrator) Run(ctx context.Context, files []types.FileItem, cfg *types.WatermarkConfig, outputDir string) (*types.BatchResult, error) {
	if len(files) == 0 {
		return nil, errors.New("no input files provided")
	}
	if outputDir == "" {
		return nil, errors.New("no output directory provided")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if err := o.engine.Ready(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "unable to create output directory")
	}

	runID := uuid.NewString()
	log := o.log.With().Str("run_id", runID).Int("total", len(files)).Logger()
	log.Info().Str("output_dir", outputDir).Msg("batch started")

	result := &types.BatchResult{
		Files: make([]types.FileResult, 0, len(files)),
		Total: len(files),
	}

	for i, file := range files {
		o.bus.PublishProgress(types.ProgressPayload{
			FilePath:   file.Path,
			FileIndex:  i,
			TotalFiles: len(files),
			Status:     types.ProgressProcessing,
		})

		outputPath := types.OutputPath(outputDir, file.Path)
		err := o.processFile(ctx, file.Path, outputPath, cfg)

		var fileResult types.FileResult
		status := types.ProgressComplete
		switch {
		case err == nil:
			result.Successful++
			fileResult = types.FileResult{
				InputPath:  file.Path,
				OutputPath: outputPath,
				Status:     types.StatusSuccess,
			}
			log.Debug().Int("index", i).Str("output", outputPath).Msg("file processed")
		case Catastrophic(err):
			log.Error().Err(err).Int("index", i).Msg("batch aborted")
			return nil, err
		default:
			result.Failed++
			status = types.ProgressError
			fileResult = types.FileResult{
				InputPath: file.Path,
				Status:    types.StatusFailed,
				Error:     err.Error(),
			}
			log.Warn().Err(err).Int("index", i).Str("file", file.Path).Msg("file failed")
		}
		result.Files = append(result.Files, fileResult)

		o.bus.PublishProgress(types.ProgressPayload{
			FilePath:   file.Path,
			FileIndex:  i,
			TotalFiles: len(files),
			Status:     status,
		})
	}

	log.Info().Int("successful", result.Successful).Int("failed", result.Failed).Msg("batch finished")
	o.bus.PublishComplete(result)
	return result, nil
}

// ProcessFile applies the watermark to a single file outside of a
// batch. Validation and per-file failures are reported inside the
// FileResult; only catastrophic failures become errors.
func (o *Orchestrator) ProcessFile(ctx context.Context, inputPath, outputPath string, cfg *types.WatermarkConfig) (types.FileResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return types.FileResult{
			InputPath: inputPath,
			Status:    types.StatusFailed,
			Error:     err.Error(),
		}, nil
	}

	err := o.processFile(ctx, inputPath, outputPath, cfg)
	switch {
	case err == nil:
		return types.FileResult{
			InputPath:  inputPath,
			OutputPath: outputPath,
			Status:     types.StatusSuccess,
		}, nil
	case Catastrophic(err):
		return types.FileResult{}, err
	default:
		return types.FileResult{
			InputPath: inputPath,
			Status:    types.StatusFailed,
			Error:     err.Error(),
		}, nil
	}
}

func (o *Orchestrator) processFile(ctx context.Context, inputPath, outputPath string, cfg *types.WatermarkConfig) error {
	if _, err := os.Stat(inputPath); err != nil {
		return errors.New("input file not found")
	}
	return o.engine.Process(ctx, inputPath, outputPath, cfg)
}

// ValidateConfig checks the parts of a configuration the external tool
// cannot recover from. Custom positions are deliberately not checked;
// out-of-range coordinates are clamped at use.
func ValidateConfig(cfg *types.WatermarkConfig) error {
	if cfg == nil {
		return errors.New("no watermark configuration provided")
	}

	switch cfg.WatermarkType {
	case types.WatermarkText:
		if strings.TrimSpace(cfg.Text) == "" {
			return errors.New("text watermark requires non-empty text")
		}
	case types.WatermarkImage:
		if cfg.ImagePath == "" {
			return errors.New("image watermark requires an image path")
		}
		if _, err := os.Stat(cfg.ImagePath); err != nil {
			return errors.Errorf("watermark image not found at %s", cfg.ImagePath)
		}
	default:
		return errors.Errorf("unknown watermark type %q", cfg.WatermarkType)
	}

	if cfg.Opacity < 0 || cfg.Opacity > 100 {
		return errors.New("opacity must be between 0 and 100")
	}
	return nil
}

// Catastrophic reports whether err must abort the whole batch: the
// external binary cannot be located or started. Everything else is a
// per-file failure.
func Catastrophic(err error) bool {
	return errors.Is(err, ffmpeg.ErrBinaryNotFound) || errors.Is(err, ffmpeg.ErrSpawn)
}
