package chamber

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/banshee-data/chambercam/internal/monitoring"
	"github.com/banshee-data/chambercam/internal/timeutil"
)

// sliceSource replays a fixed sequence of frames, optionally interleaving
// read errors, then reports the source closed.
type sliceSource struct {
	frames []Frame
	errs   map[int]error // error to return before frame at index i
	pos    int
}

func (s *sliceSource) NextFrame(ctx context.Context) (Frame, error) {
	if err, ok := s.errs[s.pos]; ok {
		delete(s.errs, s.pos)
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, ErrSourceClosed
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

var dark = color.NRGBA{R: 8, G: 8, B: 8, A: 255}

func quietLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(func(string, ...interface{}) {})
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

func testEngine(t *testing.T, clock timeutil.Clock, tweak func(*Settings)) (*Engine, *[]Event) {
	t.Helper()
	quietLogs(t)
	rec := &fakeRecorder{}
	emitter := &Emitter{Recorder: rec}
	e := NewEngine(emitter, WithClock(clock))
	s := (*TuningConfig)(nil).Resolve()
	if tweak != nil {
		tweak(&s)
	}
	if err := e.Apply(s); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return e, &rec.events
}

func TestEngine_BlankFramesProduceNoEvents(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	e, events := testEngine(t, clock, nil)

	src := &sliceSource{}
	for i := 0; i < 20; i++ {
		src.frames = append(src.frames, fillFrame(uint64(i), 64, 64, dark))
	}
	if err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(*events) != 0 {
		t.Fatalf("blank frames produced %d events", len(*events))
	}
	snap := e.Stats().Snapshot()
	if snap.FramesProcessed != 20 {
		t.Fatalf("processed %d frames, want 20", snap.FramesProcessed)
	}
}

func TestEngine_StreakFrameTriggersOneEvent(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	e, events := testEngine(t, clock, func(s *Settings) {
		s.TriggerThreshold = 1
		s.CooldownEnabled = false
	})

	src := &sliceSource{frames: []Frame{
		fillFrame(0, 64, 64, dark),
		streakFrame(1, 64, 64, 30, 4),
		fillFrame(2, 64, 64, dark),
	}}
	if err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	if (*events)[0].Seq != 1 {
		t.Fatalf("event on frame %d, want 1", (*events)[0].Seq)
	}
}

func TestEngine_CooldownSuppressesSecondCandidate(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	e, _ := testEngine(t, clock, func(s *Settings) {
		s.TriggerThreshold = 1
		s.CooldownEnabled = true
		s.Cooldown = 5 * time.Second
	})

	first, err := e.ProcessFrame(streakFrame(0, 64, 64, 30, 4))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !first.Confirmed {
		t.Fatal("first candidate should be confirmed")
	}

	clock.Advance(time.Second)
	second, err := e.ProcessFrame(streakFrame(1, 64, 64, 30, 4))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if second.Confirmed || !second.Suppressed {
		t.Fatalf("second candidate inside cooldown: confirmed=%v suppressed=%v",
			second.Confirmed, second.Suppressed)
	}
	if second.GateState != GateSuppressed {
		t.Fatalf("gate state %q, want %q", second.GateState, GateSuppressed)
	}

	clock.Advance(5 * time.Second)
	third, err := e.ProcessFrame(streakFrame(2, 64, 64, 30, 4))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !third.Confirmed {
		t.Fatal("candidate after cooldown expiry should be confirmed")
	}

	snap := e.Stats().Snapshot()
	if snap.CandidateEvents != 3 || snap.ConfirmedEvents != 2 || snap.SuppressedEvents != 1 {
		t.Fatalf("stats: %+v", snap)
	}
}

func TestEngine_SaveFailureDoesNotStopRun(t *testing.T) {
	quietLogs(t)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	rec := &fakeRecorder{}
	emitter := &Emitter{Dir: "/nowhere", Storage: &fakeStorage{err: errors.New("disk full")}, Recorder: rec}
	e := NewEngine(emitter, WithClock(clock))
	s := (*TuningConfig)(nil).Resolve()
	s.TriggerThreshold = 1
	s.CooldownEnabled = false
	s.SaveEvents = true
	if err := e.Apply(s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	src := &sliceSource{frames: []Frame{
		streakFrame(0, 64, 64, 30, 4),
		fillFrame(1, 64, 64, dark),
	}}
	if err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("got %d events, want 1", len(rec.events))
	}
	if rec.events[0].Saved {
		t.Fatal("event should carry Saved=false after a storage failure")
	}
	snap := e.Stats().Snapshot()
	if snap.SaveFailures != 1 {
		t.Fatalf("save failures %d, want 1", snap.SaveFailures)
	}
}

func TestEngine_ScoreMonotonicInThreshold(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	f := streakFrame(0, 64, 64, 30, 4)

	// The same frame that is a candidate at a high threshold must also be a
	// candidate at any lower threshold.
	var prevCandidate bool
	for i, threshold := range []float64{1e9, 1000, 100, 1} {
		e, _ := testEngine(t, clock, func(s *Settings) {
			s.TriggerThreshold = threshold
			s.CooldownEnabled = false
		})
		res, err := e.ProcessFrame(f)
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if i > 0 && prevCandidate && !res.Candidate {
			t.Fatalf("candidate at higher threshold but not at %v", threshold)
		}
		prevCandidate = res.Candidate
	}
	if !prevCandidate {
		t.Fatal("streak frame should be a candidate at threshold 1")
	}
}

func TestEngine_TransientReadErrorSkipsFrame(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	e, _ := testEngine(t, clock, nil)

	src := &sliceSource{
		frames: []Frame{
			fillFrame(0, 64, 64, dark),
			fillFrame(1, 64, 64, dark),
		},
		errs: map[int]error{1: errors.New("EIO")},
	}
	if err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := e.Stats().Snapshot()
	if snap.FramesProcessed != 2 || snap.FramesSkipped != 1 {
		t.Fatalf("stats: processed=%d skipped=%d", snap.FramesProcessed, snap.FramesSkipped)
	}
}

func TestEngine_InvalidFrameSkipped(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	e, _ := testEngine(t, clock, nil)

	src := &sliceSource{frames: []Frame{
		fillFrame(0, 64, 64, dark),
		{Seq: 1}, // no image
		fillFrame(2, 64, 64, dark),
	}}
	if err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := e.Stats().Snapshot()
	if snap.FramesProcessed != 2 || snap.FramesSkipped != 1 {
		t.Fatalf("stats: processed=%d skipped=%d", snap.FramesProcessed, snap.FramesSkipped)
	}
}

func TestEngine_CancelStopsRun(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	e, _ := testEngine(t, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &sliceSource{frames: []Frame{fillFrame(0, 64, 64, dark)}}
	if err := e.Run(ctx, src); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if src.pos != 0 {
		t.Fatal("no frame should be read after cancellation")
	}
}

func TestEngine_ApplyRejectsInvalidKeepsRunning(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	e, _ := testEngine(t, clock, nil)

	before := e.Settings()
	bad := before
	bad.Edges = EdgeThresholds{Low: 200, High: 100}
	if err := e.Apply(bad); err == nil {
		t.Fatal("Apply should reject low > high")
	}
	if e.Settings() != before {
		t.Fatal("rejected apply must leave settings unchanged")
	}
	if _, err := e.ProcessFrame(fillFrame(0, 64, 64, dark)); err != nil {
		t.Fatalf("engine should keep processing after a rejected apply: %v", err)
	}
}

func TestEngine_NotifyObservesEveryFrame(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	quietLogs(t)
	var seen []uint64
	e := NewEngine(nil, WithClock(clock), WithNotify(func(r Result) {
		seen = append(seen, r.Seq)
	}))

	src := &sliceSource{frames: []Frame{
		fillFrame(0, 64, 64, dark),
		fillFrame(1, 64, 64, dark),
		fillFrame(2, 64, 64, dark),
	}}
	if err := e.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Fatalf("notify saw %v", seen)
	}
}
