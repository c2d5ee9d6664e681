// Package controller is the boundary between the UI and the batch
// orchestrator: it validates requests before any file is touched,
// tracks UI-visible processing state, and implements observation-only
// cancellation.
package controller

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"bulk-watermark/internal/events"
	"bulk-watermark/pkg/types"
)

// State is the controller's UI-visible processing state.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateError      State = "error"
	StateCancelled  State = "cancelled"
)

// Validation messages, surfaced verbatim in the UI.
const (
	MsgNoFiles     = "Add files before processing."
	MsgNoOutputDir = "Please select an output directory."
	MsgEmptyText   = "Watermark text cannot be empty."
	MsgNoImage     = "Select a watermark image before processing."
)

// Runner is the orchestrator as seen from the controller.
type Runner interface {
	Run(ctx context.Context, files []types.FileItem, cfg *types.WatermarkConfig, outputDir string) (*types.BatchResult, error)
}

// Controller owns a state machine over one batch at a time. All
// methods are safe for concurrent use.
type Controller struct {
	runner Runner
	sub    *events.Subscription
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	errMsg    string
	progress  map[string]types.ProgressPayload
	result    *types.BatchResult
	cancelled bool
	batchDone chan struct{}

	closeOnce sync.Once
}

// New creates a Controller listening on bus. Close must be called to
// release the subscription.
func New(runner Runner, bus *events.Bus, log zerolog.Logger) *Controller {
	c := &Controller{
		runner:   runner,
		sub:      bus.Subscribe(),
		log:      log,
		state:    StateIdle,
		progress: make(map[string]types.ProgressPayload),
	}
	go c.listen()
	return c
}

// StartBatch validates the request and, when valid, starts the batch
// in the background. Validation failures set state to error with the
// first failing check's message and never reach the orchestrator.
func (c *Controller) StartBatch(ctx context.Context, files []types.FileItem, cfg *types.WatermarkConfig, outputDir string) error {
	c.mu.Lock()
	if c.state == StateProcessing {
		c.mu.Unlock()
		return errors.New("a batch is already processing")
	}

	if msg := validate(files, cfg, outputDir); msg != "" {
		c.state = StateError
		c.errMsg = msg
		c.mu.Unlock()
		return errors.New(msg)
	}

	c.state = StateProcessing
	c.errMsg = ""
	c.result = nil
	c.progress = make(map[string]types.ProgressPayload)
	c.cancelled = false
	c.batchDone = make(chan struct{})
	c.mu.Unlock()

	go func() {
		if _, err := c.runner.Run(ctx, files, cfg, outputDir); err != nil {
			c.mu.Lock()
			if !c.cancelled {
				c.state = StateError
				c.errMsg = err.Error()
			}
			c.finishLocked()
			c.mu.Unlock()
		}
	}()
	return nil
}

// Cancel stops listening to the current batch. It is a no-op outside
// of processing. The orchestrator is NOT told to stop: files continue
// to be processed and written in the background. State resolves to
// cancelled immediately and stays there when the terminal result
// eventually arrives.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateProcessing {
		return
	}
	c.cancelled = true
	c.state = StateCancelled
	c.log.Info().Msg("batch cancelled by user; background processing continues")
	c.finishLocked()
}

// Wait blocks until the current batch reaches a terminal state, or
// ctx expires. It returns immediately when no batch is running.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	done := c.batchDone
	c.mu.Unlock()

	if done == nil {
		return c.State(), nil
	}
	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// State returns the current processing state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrorMessage returns the stored validation or rejection message.
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Progress returns a copy of the per-file progress map. For each file
// path, the last payload observed is the one retained.
func (c *Controller) Progress() map[string]types.ProgressPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.ProgressPayload, len(c.progress))
	for k, v := range c.progress {
		out[k] = v
	}
	return out
}

// Result returns the terminal batch result, or nil while none has
// been received. The caller gets a read-only derived copy.
func (c *Controller) Result() *types.BatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	cp := *c.result
	cp.Files = append([]types.FileResult(nil), c.result.Files...)
	return &cp
}

// Close de-registers the event subscription. Safe to call more than
// once; the subscription is released exactly once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.sub.Unsubscribe()
	})
}

func (c *Controller) listen() {
	for {
		select {
		case <-c.sub.Done():
			return
		case ev := <-c.sub.Events():
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case events.TypeProgress:
		// Once cancelled, progress is discarded, not stored.
		if c.cancelled || c.state != StateProcessing {
			return
		}
		c.progress[ev.Progress.FilePath] = *ev.Progress
	case events.TypeComplete:
		// The terminal result is recorded even after cancellation,
		// but the state stays cancelled.
		c.result = ev.Result
		if !c.cancelled && c.state == StateProcessing {
			c.state = StateComplete
		}
		c.finishLocked()
	}
}

func (c *Controller) finishLocked() {
	if c.batchDone != nil {
		close(c.batchDone)
		c.batchDone = nil
	}
}

// validate returns the first failing check's message, in the fixed
// order the UI presents them, or "" when the request is valid.
func validate(files []types.FileItem, cfg *types.WatermarkConfig, outputDir string) string {
	if len(files) == 0 {
		return MsgNoFiles
	}
	if outputDir == "" {
		return MsgNoOutputDir
	}
	if cfg == nil {
		return MsgEmptyText
	}
	switch cfg.WatermarkType {
	case types.WatermarkText:
		if strings.TrimSpace(cfg.Text) == "" {
			return MsgEmptyText
		}
	case types.WatermarkImage:
		if cfg.ImagePath == "" {
			return MsgNoImage
		}
	}
	return ""
}
