package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulk-watermark/internal/events"
	"bulk-watermark/pkg/types"
)

// stubRunner scripts the orchestrator's behavior for one StartBatch.
type stubRunner struct {
	mu    sync.Mutex
	calls int
	run   func(ctx context.Context) (*types.BatchResult, error)
}

func (s *stubRunner) Run(ctx context.Context, files []types.FileItem, cfg *types.WatermarkConfig, outputDir string) (*types.BatchResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run == nil {
		return &types.BatchResult{}, nil
	}
	return s.run(ctx)
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func validFiles() []types.FileItem {
	return []types.FileItem{{Path: "/in/a.jpg", Name: "a.jpg", Type: "image"}}
}

func validConfig() *types.WatermarkConfig {
	cfg := types.DefaultConfig()
	cfg.Text = "Sample"
	return cfg
}

func TestStartBatchValidation(t *testing.T) {
	tests := []struct {
		name    string
		files   []types.FileItem
		cfg     *types.WatermarkConfig
		outDir  string
		wantMsg string
	}{
		{"no files", nil, validConfig(), "/out", MsgNoFiles},
		{"no output dir", validFiles(), validConfig(), "", MsgNoOutputDir},
		{"blank text", validFiles(), func() *types.WatermarkConfig {
			c := validConfig()
			c.Text = "   "
			return c
		}(), "/out", MsgEmptyText},
		{"image without path", validFiles(), func() *types.WatermarkConfig {
			c := validConfig()
			c.WatermarkType = types.WatermarkImage
			c.ImagePath = ""
			return c
		}(), "/out", MsgNoImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{}
			c := New(runner, events.NewBus(), zerolog.Nop())
			defer c.Close()

			err := c.StartBatch(context.Background(), tt.files, tt.cfg, tt.outDir)
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, StateError, c.State())
			assert.Equal(t, tt.wantMsg, c.ErrorMessage())
			assert.Zero(t, runner.callCount())
		})
	}
}

func TestStartBatchValidationOrderAndIdempotence(t *testing.T) {
	runner := &stubRunner{}
	c := New(runner, events.NewBus(), zerolog.Nop())
	defer c.Close()

	// Both checks would fail; the files check comes first.
	cfg := validConfig()
	cfg.Text = ""
	err := c.StartBatch(context.Background(), nil, cfg, "")
	require.Error(t, err)
	assert.Equal(t, MsgNoFiles, err.Error())

	// Repeating the same invalid request yields the same message.
	err = c.StartBatch(context.Background(), nil, cfg, "")
	require.Error(t, err)
	assert.Equal(t, MsgNoFiles, err.Error())
	assert.Equal(t, MsgNoFiles, c.ErrorMessage())
	assert.Zero(t, runner.callCount())
}

func TestBatchCompletes(t *testing.T) {
	bus := events.NewBus()
	want := &types.BatchResult{
		Files: []types.FileResult{
			{InputPath: "/in/a.jpg", OutputPath: "/out/a_watermarked.jpg", Status: types.StatusSuccess},
		},
		Total:      1,
		Successful: 1,
	}
	runner := &stubRunner{run: func(ctx context.Context) (*types.BatchResult, error) {
		bus.PublishProgress(types.ProgressPayload{FilePath: "/in/a.jpg", Status: types.ProgressProcessing, TotalFiles: 1})
		bus.PublishProgress(types.ProgressPayload{FilePath: "/in/a.jpg", Status: types.ProgressComplete, TotalFiles: 1})
		bus.PublishComplete(want)
		return want, nil
	}}

	c := New(runner, bus, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.StartBatch(context.Background(), validFiles(), validConfig(), "/out"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, state)

	got := c.Result()
	require.NotNil(t, got)
	assert.Equal(t, want.Total, got.Total)
	assert.Equal(t, want.Files, got.Files)

	// Last payload wins per file path.
	progress := c.Progress()
	require.Contains(t, progress, "/in/a.jpg")
	assert.Equal(t, types.ProgressComplete, progress["/in/a.jpg"].Status)
}

func TestResultReturnsCopy(t *testing.T) {
	bus := events.NewBus()
	runner := &stubRunner{run: func(ctx context.Context) (*types.BatchResult, error) {
		r := &types.BatchResult{Files: []types.FileResult{{InputPath: "/in/a.jpg"}}, Total: 1, Successful: 1}
		bus.PublishComplete(r)
		return r, nil
	}}
	c := New(runner, bus, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.StartBatch(context.Background(), validFiles(), validConfig(), "/out"))
	_, err := c.Wait(context.Background())
	require.NoError(t, err)

	first := c.Result()
	require.NotNil(t, first)
	first.Files[0].InputPath = "mutated"
	first.Total = 99

	second := c.Result()
	assert.Equal(t, "/in/a.jpg", second.Files[0].InputPath)
	assert.Equal(t, 1, second.Total)
}

func TestBatchRejectedByRunner(t *testing.T) {
	runner := &stubRunner{run: func(ctx context.Context) (*types.BatchResult, error) {
		return nil, errors.New("ffmpeg binary not found")
	}}
	c := New(runner, events.NewBus(), zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.StartBatch(context.Background(), validFiles(), validConfig(), "/out"))

	state, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateError, state)
	assert.Contains(t, c.ErrorMessage(), "binary not found")
}

func TestRejectsConcurrentBatch(t *testing.T) {
	release := make(chan struct{})
	runner := &stubRunner{run: func(ctx context.Context) (*types.BatchResult, error) {
		<-release
		return nil, errors.New("done")
	}}
	c := New(runner, events.NewBus(), zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.StartBatch(context.Background(), validFiles(), validConfig(), "/out"))
	err := c.StartBatch(context.Background(), validFiles(), validConfig(), "/out")
	assert.ErrorContains(t, err, "already processing")

	close(release)
	_, _ = c.Wait(context.Background())
}

func TestCancelIsImmediateAndFinal(t *testing.T) {
	bus := events.NewBus()
	started := make(chan struct{})
	release := make(chan struct{})
	result := &types.BatchResult{Total: 2, Successful: 2, Files: []types.FileResult{{}, {}}}

	runner := &stubRunner{run: func(ctx context.Context) (*types.BatchResult, error) {
		close(started)
		<-release
		// Background processing keeps going after cancellation and
		// still emits its events.
		bus.PublishProgress(types.ProgressPayload{FilePath: "/in/b.jpg", Status: types.ProgressComplete})
		bus.PublishComplete(result)
		return result, nil
	}}

	c := New(runner, bus, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.StartBatch(context.Background(), validFiles(), validConfig(), "/out"))
	<-started

	c.Cancel()
	assert.Equal(t, StateCancelled, c.State())

	// Wait resolves immediately on cancellation, before the batch is
	// actually done.
	state, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, state)

	close(release)
	require.Eventually(t, func() bool {
		return c.Result() != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Late progress was discarded and the state never left cancelled.
	assert.Empty(t, c.Progress())
	assert.Equal(t, StateCancelled, c.State())
	assert.Equal(t, 2, c.Result().Total)
}

func TestCancelOutsideProcessingIsNoop(t *testing.T) {
	c := New(&stubRunner{}, events.NewBus(), zerolog.Nop())
	defer c.Close()

	c.Cancel()
	assert.Equal(t, StateIdle, c.State())
}

func TestWaitWithoutBatch(t *testing.T) {
	c := New(&stubRunner{}, events.NewBus(), zerolog.Nop())
	defer c.Close()

	state, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
}

func TestCloseIdempotent(t *testing.T) {
	c := New(&stubRunner{}, events.NewBus(), zerolog.Nop())
	c.Close()
	c.Close()
}
