package chamber

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/banshee-data/chambercam/internal/monitoring"
	"github.com/banshee-data/chambercam/internal/timeutil"
)

// Result is the per-frame outcome the engine hands to observers: the trigger
// decision plus read-only snapshots of the normalized frame and edge map for
// preview. Observers must not mutate the images.
type Result struct {
	Seq        uint64
	Timestamp  time.Time
	Score      float64
	Threshold  float64
	Candidate  bool
	Confirmed  bool
	Suppressed bool // candidate rejected by the cooldown gate
	GateState  string
	Event      *Event
	Normalized *image.NRGBA
	Edges      *image.Gray
}

// Engine is the event detection pipeline: Preprocessor -> Edge Extractor ->
// Event Scorer -> Cooldown Gate -> Event Emitter. It is stateless across
// frames except for the cooldown gate and run statistics.
//
// ProcessFrame and Run must be confined to a single goroutine; Apply,
// Settings and Stats may be called concurrently (hot reload from the API).
type Engine struct {
	mu       sync.Mutex
	settings Settings
	scorer   Scorer
	gate     *CooldownGate
	stats    *RunStats

	emitter *Emitter
	clock   timeutil.Clock
	notify  func(Result)
}

// EngineOption configures a new Engine.
type EngineOption func(*Engine)

// WithClock substitutes the clock, for tests.
func WithClock(c timeutil.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithNotify registers a per-frame result observer. The callback runs on the
// run-loop goroutine and must not block; fan-out with buffered channels and
// drop-on-full is the caller's job.
func WithNotify(fn func(Result)) EngineOption {
	return func(e *Engine) { e.notify = fn }
}

// NewEngine builds an engine with default settings. The emitter may be nil
// for score-only use (offline tools).
func NewEngine(emitter *Emitter, opts ...EngineOption) *Engine {
	e := &Engine{
		emitter: emitter,
		clock:   timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	defaults := (*TuningConfig)(nil).Resolve()
	e.settings = defaults
	e.scorer, _ = ScorerByName(defaults.ScorerName)
	e.gate = NewCooldownGate(defaults.CooldownEnabled, defaults.Cooldown)
	e.stats = NewRunStats(e.clock.Now())
	return e
}

// Apply validates and installs new settings. On any validation error the
// engine keeps running with its last valid settings. A successful apply
// resets the cooldown gate: a half-elapsed window under the old parameters
// does not carry over.
func (e *Engine) Apply(s Settings) error {
	if err := s.Validate(); err != nil {
		monitoring.Logf("[Engine] rejected configuration: %v", err)
		return fmt.Errorf("configuration rejected: %w", err)
	}
	scorer, err := ScorerByName(s.ScorerName)
	if err != nil {
		return fmt.Errorf("configuration rejected: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
	e.scorer = scorer
	e.gate.Configure(s.CooldownEnabled, s.Cooldown)
	monitoring.Logf("[Engine] settings applied: edges %d/%d threshold %.0f scorer %s cooldown %v (enabled=%v) save=%v",
		s.Edges.Low, s.Edges.High, s.TriggerThreshold, s.ScorerName, s.Cooldown, s.CooldownEnabled, s.SaveEvents)
	return nil
}

// Settings returns the current resolved settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Stats returns the statistics for the current run.
func (e *Engine) Stats() *RunStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ResetRun resets the cooldown gate and starts a fresh statistics window.
// Called when a capture run starts.
func (e *Engine) ResetRun() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate.Reset()
	e.stats = NewRunStats(e.clock.Now())
}

// ProcessFrame runs one frame through the full pipeline and returns the
// trigger decision. Settings are snapshotted once at entry, so a concurrent
// hot reload affects only subsequent frames.
//
// A malformed frame returns ErrFrameInvalid (skippable); a stage dimension
// mismatch returns a fatal error.
func (e *Engine) ProcessFrame(f Frame) (Result, error) {
	if !f.Valid() {
		return Result{}, ErrFrameInvalid
	}

	e.mu.Lock()
	settings := e.settings
	scorer := e.scorer
	stats := e.stats
	e.mu.Unlock()

	normalized := Preprocess(f, settings.Adjust)

	edges, err := ExtractEdges(normalized, settings.Edges)
	if err != nil {
		return Result{}, err
	}

	score := scorer.Score(edges)
	candidate := score >= settings.TriggerThreshold

	now := e.clock.Now()
	e.mu.Lock()
	confirmed := e.gate.Evaluate(candidate, now)
	gateState := e.gate.State(now)
	e.mu.Unlock()

	res := Result{
		Seq:        f.Seq,
		Timestamp:  now,
		Score:      score,
		Threshold:  settings.TriggerThreshold,
		Candidate:  candidate,
		Confirmed:  confirmed,
		Suppressed: candidate && !confirmed,
		GateState:  gateState,
		Normalized: normalized.Image,
		Edges:      edges.Gray,
	}

	if res.Suppressed {
		monitoring.Logf("[Engine] frame %d score %.0f suppressed by cooldown", f.Seq, score)
	}

	if confirmed && e.emitter != nil {
		ev := e.emitter.Emit(normalized, score, settings, now)
		res.Event = &ev
		if settings.SaveEvents && !ev.Saved {
			stats.ObserveSaveFailure()
		}
	}

	stats.ObserveFrame(score, candidate, confirmed)
	monitoring.Debugf("[Engine] frame %d score %.0f candidate=%v confirmed=%v gate=%s",
		f.Seq, score, candidate, confirmed, gateState)
	return res, nil
}

// Run drives the synchronous per-frame loop until the source is exhausted or
// ctx is cancelled. Frames are processed strictly in arrival order; the
// source is the only blocking point and cancellation is checked once per
// iteration. Returns nil on clean shutdown (cancel or source closed) and an
// error only for unrecoverable pipeline faults.
func (e *Engine) Run(ctx context.Context, src FrameSource) error {
	e.ResetRun()
	monitoring.Logf("[Engine] capture run started")

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[Engine] capture run stopped")
			return nil
		default:
		}

		f, err := src.NextFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrSourceClosed):
				monitoring.Logf("[Engine] frame source closed, ending run")
				return nil
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				monitoring.Logf("[Engine] capture run stopped")
				return nil
			default:
				// Transient read failure: skip the frame, keep the run and
				// the cooldown state.
				e.Stats().ObserveSkipped()
				monitoring.Logf("[Engine] dropping unreadable frame: %v", err)
				continue
			}
		}

		res, err := e.ProcessFrame(f)
		if err != nil {
			if errors.Is(err, ErrFrameInvalid) {
				e.Stats().ObserveSkipped()
				monitoring.Logf("[Engine] skipping invalid frame %d", f.Seq)
				continue
			}
			return fmt.Errorf("pipeline fault on frame %d: %w", f.Seq, err)
		}

		if e.notify != nil {
			e.notify(res)
		}
	}
}
