package chamber

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// scoreWindow is how many recent frame scores the stats keep for the score
// statistics and the suggested-threshold estimate. At ~20fps this is about
// half a minute of history.
const scoreWindow = 600

// RunStats accumulates counters for a capture run. Safe for concurrent reads
// while the run loop writes.
type RunStats struct {
	mu sync.Mutex

	startedAt        time.Time
	framesProcessed  uint64
	framesSkipped    uint64
	candidateEvents  uint64
	confirmedEvents  uint64
	suppressedEvents uint64
	saveFailures     uint64
	lastScore        float64

	// Ring buffer of recent scores.
	recent []float64
	next   int
	filled bool
}

// NewRunStats returns stats for a run starting now.
func NewRunStats(now time.Time) *RunStats {
	return &RunStats{
		startedAt: now,
		recent:    make([]float64, scoreWindow),
	}
}

// ObserveFrame records one processed frame and its score.
func (s *RunStats) ObserveFrame(score float64, candidate, confirmed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesProcessed++
	s.lastScore = score
	s.recent[s.next] = score
	s.next++
	if s.next == len(s.recent) {
		s.next = 0
		s.filled = true
	}
	if candidate {
		s.candidateEvents++
		if confirmed {
			s.confirmedEvents++
		} else {
			s.suppressedEvents++
		}
	}
}

// ObserveSkipped records one discarded frame.
func (s *RunStats) ObserveSkipped() {
	s.mu.Lock()
	s.framesSkipped++
	s.mu.Unlock()
}

// ObserveSaveFailure records one failed event-frame save.
func (s *RunStats) ObserveSaveFailure() {
	s.mu.Lock()
	s.saveFailures++
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of the run counters plus score
// statistics over the recent window.
type StatsSnapshot struct {
	StartedAt        time.Time `json:"started_at"`
	FramesProcessed  uint64    `json:"frames_processed"`
	FramesSkipped    uint64    `json:"frames_skipped"`
	CandidateEvents  uint64    `json:"candidate_events"`
	ConfirmedEvents  uint64    `json:"confirmed_events"`
	SuppressedEvents uint64    `json:"suppressed_events"`
	SaveFailures     uint64    `json:"save_failures"`
	LastScore        float64   `json:"last_score"`

	// Score statistics over the recent window. SuggestedThreshold is the
	// mean plus four standard deviations: comfortably above quiescent noise
	// but still reachable by a real track.
	ScoreMean          float64 `json:"score_mean"`
	ScoreStdDev        float64 `json:"score_stddev"`
	ScoreP95           float64 `json:"score_p95"`
	SuggestedThreshold float64 `json:"suggested_threshold"`
	WindowSize         int     `json:"window_size"`
}

// Snapshot returns a consistent copy of the counters and computes the score
// statistics with gonum.
func (s *RunStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	snap := StatsSnapshot{
		StartedAt:        s.startedAt,
		FramesProcessed:  s.framesProcessed,
		FramesSkipped:    s.framesSkipped,
		CandidateEvents:  s.candidateEvents,
		ConfirmedEvents:  s.confirmedEvents,
		SuppressedEvents: s.suppressedEvents,
		SaveFailures:     s.saveFailures,
		LastScore:        s.lastScore,
	}
	window := s.windowLocked()
	s.mu.Unlock()

	snap.WindowSize = len(window)
	if len(window) > 0 {
		snap.ScoreMean = stat.Mean(window, nil)
		if len(window) > 1 {
			snap.ScoreStdDev = stat.StdDev(window, nil)
		}
		sorted := make([]float64, len(window))
		copy(sorted, window)
		sort.Float64s(sorted)
		snap.ScoreP95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
		snap.SuggestedThreshold = snap.ScoreMean + 4*snap.ScoreStdDev
	}
	return snap
}

// RecentScores returns a copy of the recent-score window, oldest first.
func (s *RunStats) RecentScores() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowLocked()
}

func (s *RunStats) windowLocked() []float64 {
	if !s.filled {
		out := make([]float64, s.next)
		copy(out, s.recent[:s.next])
		return out
	}
	out := make([]float64, 0, len(s.recent))
	out = append(out, s.recent[s.next:]...)
	out = append(out, s.recent[:s.next]...)
	return out
}
