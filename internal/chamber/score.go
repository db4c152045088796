package chamber

import "fmt"

// Scorer reduces an edge map to a scalar activity score. The exact formula is
// a pluggable strategy; both built-in scorers are monotonic with the amount of
// edge-like structure in the frame, which is the only property the trigger
// needs.
type Scorer interface {
	// Name identifies the scorer in configuration and log records.
	Name() string

	// Score returns a non-negative activity score for the edge map.
	Score(m *EdgeMap) float64
}

// CountScorer scores a frame by its raw edge-pixel count. This is the default
// and matches the trigger signal of the original capture rig.
type CountScorer struct{}

// Name implements Scorer.
func (CountScorer) Name() string { return "count" }

// Score implements Scorer.
func (CountScorer) Score(m *EdgeMap) float64 {
	return float64(m.EdgeCount)
}

// DensityScorer scores a frame by its edge fraction, scaled by 1e4 so the
// useful range overlaps the count scorer's threshold range at typical frame
// sizes. Density is resolution-independent, which matters when the same
// threshold preset is reused across cameras.
type DensityScorer struct{}

// Name implements Scorer.
func (DensityScorer) Name() string { return "density" }

// Score implements Scorer.
func (DensityScorer) Score(m *EdgeMap) float64 {
	total := m.Width() * m.Height()
	if total == 0 {
		return 0
	}
	return float64(m.EdgeCount) / float64(total) * 1e4
}

// ScorerByName resolves a configured scorer name. Unknown names are a
// configuration error.
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "", "count":
		return CountScorer{}, nil
	case "density":
		return DensityScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q (want \"count\" or \"density\")", name)
	}
}
