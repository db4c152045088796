package chamber

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/banshee-data/chambercam/internal/monitoring"
	"github.com/banshee-data/chambercam/internal/security"
)

// Event is the record produced for a confirmed detection. Immutable once
// created; the engine keeps no event history of its own — persistence is the
// recorder's concern.
type Event struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	Saved     bool      `json:"saved"`
	ImagePath string    `json:"image_path,omitempty"`
}

// Storage persists an annotated event frame. Implementations must be safe to
// fail: a save error is recoverable and never stops the pipeline.
type Storage interface {
	Save(img image.Image, path string) error
}

// EventRecorder receives confirmed events. Delivery is best-effort; recorder
// errors are logged and do not affect detection.
type EventRecorder interface {
	RecordEvent(ev Event) error
}

// ImagingStorage saves JPEGs via disintegration/imaging.
type ImagingStorage struct {
	Quality int // JPEG quality, default 90
}

// Save implements Storage.
func (s ImagingStorage) Save(img image.Image, path string) error {
	q := s.Quality
	if q == 0 {
		q = 90
	}
	return imaging.Save(img, path, imaging.JPEGQuality(q))
}

// Emitter turns confirmed triggers into Events: always a structured log
// record plus a recorder entry, optionally a saved JPEG of the normalized
// frame under {prefix}_{unix-timestamp}.jpg.
type Emitter struct {
	Dir      string        // directory for saved frames
	Storage  Storage       // nil means ImagingStorage{}
	Recorder EventRecorder // nil means log-only
}

// Emit builds the Event for a confirmed trigger on the given normalized
// frame. Persistence failures are logged and reported through Saved=false;
// they never propagate.
func (e *Emitter) Emit(f Frame, score float64, s Settings, now time.Time) Event {
	ev := Event{
		ID:        uuid.New().String(),
		Seq:       f.Seq,
		Timestamp: now,
		Score:     score,
		Threshold: s.TriggerThreshold,
	}

	if s.SaveEvents {
		name := fmt.Sprintf("%s_%d.jpg", security.SanitizeFilename(s.FilenamePrefix), now.Unix())
		path := filepath.Join(e.Dir, name)
		storage := e.Storage
		if storage == nil {
			storage = ImagingStorage{}
		}
		if err := storage.Save(annotate(f.Image), path); err != nil {
			monitoring.Logf("[Emitter] failed to save event frame %s: %v", path, err)
		} else {
			ev.Saved = true
			ev.ImagePath = path
		}
	}

	if ev.Saved {
		monitoring.Logf("[Emitter] event %s: frame %d score %.0f (threshold %.0f), saved %s",
			ev.ID, ev.Seq, ev.Score, ev.Threshold, ev.ImagePath)
	} else {
		monitoring.Logf("[Emitter] event %s: frame %d score %.0f (threshold %.0f), no photo saved",
			ev.ID, ev.Seq, ev.Score, ev.Threshold)
	}

	if e.Recorder != nil {
		if err := e.Recorder.RecordEvent(ev); err != nil {
			monitoring.Logf("[Emitter] failed to record event %s: %v", ev.ID, err)
		}
	}

	return ev
}

var redNRGBA = color.NRGBA{R: 220, G: 20, B: 20, A: 255}

// annotate clones the frame and draws a red border so saved stills are
// visually distinct from raw captures when browsing a session directory.
func annotate(src *image.NRGBA) *image.NRGBA {
	out := imaging.Clone(src)
	b := out.Bounds()
	red := image.NewUniform(redNRGBA)

	const thickness = 4
	top := image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+thickness)
	bottom := image.Rect(b.Min.X, b.Max.Y-thickness, b.Max.X, b.Max.Y)
	left := image.Rect(b.Min.X, b.Min.Y, b.Min.X+thickness, b.Max.Y)
	right := image.Rect(b.Max.X-thickness, b.Min.Y, b.Max.X, b.Max.Y)
	for _, r := range []image.Rectangle{top, bottom, left, right} {
		draw.Draw(out, r, red, image.Point{}, draw.Src)
	}
	return out
}
