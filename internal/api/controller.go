package api

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/monitoring"
)

// Capture run states.
const (
	StateIdle      = "idle"      // no run started yet
	StateCapturing = "capturing" // run loop active
	StateStopped   = "stopped"   // previous run ended
)

// SourceFactory opens a fresh frame source for a capture run. Each run gets
// its own source so a stopped camera can be reopened cleanly.
type SourceFactory func() (chamber.FrameSource, error)

// Controller owns the capture run lifecycle around a single engine. Start and
// Stop are safe to call from concurrent HTTP handlers.
type Controller struct {
	engine    *chamber.Engine
	newSource SourceFactory

	mu      sync.Mutex
	state   string
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewController wires an engine to a source factory. The controller starts in
// the idle state.
func NewController(engine *chamber.Engine, newSource SourceFactory) *Controller {
	return &Controller{
		engine:    engine,
		newSource: newSource,
		state:     StateIdle,
	}
}

// Start opens a source and launches the run loop. Starting while a run is
// active is an error; starting from stopped begins a fresh run with fresh
// statistics.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCapturing {
		return fmt.Errorf("capture already running")
	}

	src, err := c.newSource()
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = StateCapturing
	c.lastErr = nil

	go func() {
		defer close(done)
		err := c.engine.Run(runCtx, src)
		if closer, ok := src.(io.Closer); ok {
			closer.Close()
		}
		c.mu.Lock()
		c.state = StateStopped
		c.lastErr = err
		c.mu.Unlock()
		if err != nil {
			monitoring.Logf("[Controller] capture run failed: %v", err)
		}
	}()
	return nil
}

// Stop cancels the active run and waits for the loop to drain. Stopping an
// inactive controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateCapturing {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// State reports the current run state.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A run that ended on its own (source closed or pipeline fault) reports
	// stopped without an explicit Stop call.
	if c.state == StateCapturing {
		select {
		case <-c.done:
			return StateStopped
		default:
		}
	}
	return c.state
}

// LastError returns the terminal error of the most recent run, nil after a
// clean shutdown.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
