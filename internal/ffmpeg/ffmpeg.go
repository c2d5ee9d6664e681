package ffmpeg

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"bulk-watermark/internal/media"
	"bulk-watermark/pkg/types"
)

// EnvBinary overrides FFmpeg binary discovery when set.
const EnvBinary = "BULK_WATERMARK_FFMPEG"

var (
	// ErrBinaryNotFound means no FFmpeg binary could be located. A batch
	// must not start when this is returned.
	ErrBinaryNotFound = errors.New("ffmpeg binary not found")

	// ErrSpawn means the located binary could not be started.
	ErrSpawn = errors.New("failed to start ffmpeg")
)

// Engine invokes the bundled FFmpeg binary, one short-lived process per
// file. Processes are never reused or pooled.
type Engine struct {
	binary string
	log    zerolog.Logger
}

// New creates an Engine. binary may be empty, in which case the binary
// is discovered from the environment, a sidecar next to the executable,
// or PATH, in that order.
func New(binary string, log zerolog.Logger) *Engine {
	return &Engine{binary: binary, log: log}
}

// Ready reports whether an FFmpeg binary can be located. Called before
// any file of a batch is touched.
func (e *Engine) Ready() error {
	_, err := e.locate()
	return err
}

func (e *Engine) locate() (string, error) {
	if e.binary != "" {
		if resolved, err := resolveBinary(e.binary); err == nil {
			return resolved, nil
		}
		return "", errors.Wrap(ErrBinaryNotFound, e.binary)
	}

	if env := os.Getenv(EnvBinary); env != "" {
		if resolved, err := resolveBinary(env); err == nil {
			return resolved, nil
		}
		return "", errors.Wrapf(ErrBinaryNotFound, "%s=%s", EnvBinary, env)
	}

	if exe, err := os.Executable(); err == nil {
		sidecar := filepath.Join(filepath.Dir(exe), sidecarName())
		if info, err := os.Stat(sidecar); err == nil && !info.IsDir() {
			return sidecar, nil
		}
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	return "", errors.Wrap(ErrBinaryNotFound, "not in PATH and no sidecar binary present")
}

func resolveBinary(path string) (string, error) {
	if strings.ContainsRune(path, os.PathSeparator) {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", errors.Errorf("%s is a directory", path)
		}
		return path, nil
	}
	return exec.LookPath(path)
}

func sidecarName() string {
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// Process applies the watermark described by cfg to a single input,
// writing one output artifact. It blocks until the FFmpeg process
// exits. Video inputs keep their audio track; image inputs produce a
// single frame.
func (e *Engine) Process(ctx context.Context, inputPath, outputPath string, cfg *types.WatermarkConfig) error {
	bin, err := e.locate()
	if err != nil {
		return err
	}

	kind, err := media.Detect(inputPath)
	if err != nil {
		return err
	}

	stream, err := buildStream(inputPath, cfg)
	if err != nil {
		return err
	}

	outputArgs := ffmpeg.KwArgs{}
	if kind == media.KindVideo {
		outputArgs["c:a"] = "copy"
	} else {
		outputArgs["frames:v"] = "1"
	}

	return e.run(ctx, bin, stream.Output(outputPath, outputArgs).OverWriteOutput())
}

// ExtractThumbnail writes the first frame of a video to outputPath as
// a still image.
func (e *Engine) ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error {
	bin, err := e.locate()
	if err != nil {
		return err
	}

	kind, err := media.Detect(videoPath)
	if err != nil {
		return err
	}
	if kind != media.KindVideo {
		return errors.Wrap(media.ErrUnsupportedFormat, "not a video file")
	}

	if _, err := os.Stat(videoPath); err != nil {
		return errors.Errorf("video file not found: %s", videoPath)
	}

	stream := ffmpeg.Input(videoPath).
		Output(outputPath, ffmpeg.KwArgs{
			"frames:v": "1",
			"q:v":      "3",
		}).
		OverWriteOutput()

	return e.run(ctx, bin, stream)
}

// run executes a compiled ffmpeg-go stream against the resolved
// binary, capturing stderr as the diagnostic text on failure.
func (e *Engine) run(ctx context.Context, bin string, stream *ffmpeg.Stream) error {
	args := stream.GetArgs()
	e.log.Debug().Str("binary", bin).Strs("args", args).Msg("invoking ffmpeg")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(ErrSpawn, err.Error())
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Errorf("ffmpeg exited with error: %s", stderrTail(stderr.String(), err))
	}
	return nil
}

// stderrTail keeps the last portion of FFmpeg's stderr, which is where
// the actual failure reason lives.
func stderrTail(s string, fallback error) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback.Error()
	}
	const max = 2048
	if len(s) > max {
		s = s[len(s)-max:]
		if idx := strings.IndexByte(s, '\n'); idx >= 0 && idx < len(s)-1 {
			s = s[idx+1:]
		}
	}
	return s
}
