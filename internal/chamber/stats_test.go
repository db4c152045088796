package chamber

import (
	"math"
	"testing"
	"time"
)

func TestRunStats_Counters(t *testing.T) {
	s := NewRunStats(time.Unix(1700000000, 0))
	s.ObserveFrame(10, false, false)
	s.ObserveFrame(2000, true, true)
	s.ObserveFrame(2500, true, false)
	s.ObserveSkipped()
	s.ObserveSaveFailure()

	snap := s.Snapshot()
	if snap.FramesProcessed != 3 || snap.FramesSkipped != 1 {
		t.Fatalf("frames: %+v", snap)
	}
	if snap.CandidateEvents != 2 || snap.ConfirmedEvents != 1 || snap.SuppressedEvents != 1 {
		t.Fatalf("events: %+v", snap)
	}
	if snap.SaveFailures != 1 {
		t.Fatalf("save failures: %d", snap.SaveFailures)
	}
	if snap.LastScore != 2500 {
		t.Fatalf("last score: %v", snap.LastScore)
	}
}

func TestRunStats_ScoreStatistics(t *testing.T) {
	s := NewRunStats(time.Unix(0, 0))
	for _, v := range []float64{10, 20, 30, 40} {
		s.ObserveFrame(v, false, false)
	}

	snap := s.Snapshot()
	if snap.WindowSize != 4 {
		t.Fatalf("window size %d, want 4", snap.WindowSize)
	}
	if snap.ScoreMean != 25 {
		t.Fatalf("mean %v, want 25", snap.ScoreMean)
	}
	if snap.ScoreStdDev <= 0 {
		t.Fatalf("stddev %v should be positive", snap.ScoreStdDev)
	}
	want := snap.ScoreMean + 4*snap.ScoreStdDev
	if math.Abs(snap.SuggestedThreshold-want) > 1e-9 {
		t.Fatalf("suggested threshold %v, want %v", snap.SuggestedThreshold, want)
	}
}

func TestRunStats_WindowWraps(t *testing.T) {
	s := NewRunStats(time.Unix(0, 0))
	for i := 0; i < scoreWindow+5; i++ {
		s.ObserveFrame(float64(i), false, false)
	}

	window := s.RecentScores()
	if len(window) != scoreWindow {
		t.Fatalf("window length %d, want %d", len(window), scoreWindow)
	}
	// Oldest first: the first retained score is the one after the overwritten
	// batch.
	if window[0] != 5 {
		t.Fatalf("oldest retained score %v, want 5", window[0])
	}
	if last := window[len(window)-1]; last != float64(scoreWindow+4) {
		t.Fatalf("newest score %v, want %v", last, scoreWindow+4)
	}
}

func TestRunStats_EmptySnapshot(t *testing.T) {
	s := NewRunStats(time.Unix(0, 0))
	snap := s.Snapshot()
	if snap.WindowSize != 0 || snap.ScoreMean != 0 || snap.SuggestedThreshold != 0 {
		t.Fatalf("empty snapshot carries stats: %+v", snap)
	}
}
