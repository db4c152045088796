package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/monitoring"
	"github.com/banshee-data/chambercam/internal/timeutil"
)

var stillExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ReplaySource replays a directory of still images as a frame stream, paced
// at a fixed rate. It stands in for the camera in development mode and when
// tuning against recorded sessions. Files are replayed in name order.
type ReplaySource struct {
	paths []string
	fps   float64
	loop  bool
	clock timeutil.Clock

	mu     sync.Mutex
	pos    int
	seq    uint64
	ticker timeutil.Ticker
	closed bool
}

// NewReplaySource scans dir for still images. An empty directory is an error:
// a replay run with nothing to replay is a misconfiguration, not an instantly
// closed source.
func NewReplaySource(dir string, fps float64, loop bool, clock timeutil.Clock) (*ReplaySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if stillExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no still images in %s", dir)
	}

	if clock == nil {
		clock = timeutil.RealClock{}
	}
	monitoring.Logf("[Capture] replaying %d stills from %s at %.1ffps (loop=%v)", len(paths), dir, fps, loop)
	return &ReplaySource{paths: paths, fps: fps, loop: loop, clock: clock}, nil
}

// NextFrame implements chamber.FrameSource. An unreadable file is a
// recoverable error; the source advances past it.
func (s *ReplaySource) NextFrame(ctx context.Context) (chamber.Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return chamber.Frame{}, chamber.ErrSourceClosed
	}
	if s.ticker == nil {
		s.ticker = s.clock.NewTicker(frameInterval(s.fps))
	}
	ticker := s.ticker
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return chamber.Frame{}, ctx.Err()
	case <-ticker.C():
	}

	s.mu.Lock()
	if s.pos >= len(s.paths) {
		if !s.loop {
			s.mu.Unlock()
			return chamber.Frame{}, chamber.ErrSourceClosed
		}
		s.pos = 0
	}
	path := s.paths[s.pos]
	s.pos++
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	img, err := imaging.Open(path)
	if err != nil {
		return chamber.Frame{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return chamber.Frame{Seq: seq, Timestamp: s.clock.Now(), Image: imaging.Clone(img)}, nil
}

// Close stops the pacing ticker.
func (s *ReplaySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return nil
}

// Len reports how many stills the source will replay per pass.
func (s *ReplaySource) Len() int { return len(s.paths) }
