// Package chamber implements the event detection engine for a cloud-chamber
// camera: per-frame preprocessing, edge extraction, activity scoring, a
// cooldown gate and event emission. The engine is deliberately synchronous;
// one frame flows through the whole pipeline before the next is accepted.
package chamber

import (
	"context"
	"errors"
	"image"
	"time"
)

// Frame is a single captured image plus its position in the stream. Each
// pipeline stage owns its output; a Frame handed to a later stage is never
// mutated afterwards.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     *image.NRGBA
}

// Width returns the frame width in pixels, or 0 for an empty frame.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels, or 0 for an empty frame.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Valid reports whether the frame carries a non-empty image.
func (f Frame) Valid() bool {
	return f.Image != nil && f.Width() > 0 && f.Height() > 0
}

// ErrSourceClosed is returned by a FrameSource when the underlying device or
// replay stream has ended. It terminates the run loop cleanly rather than as
// a failure.
var ErrSourceClosed = errors.New("chamber: frame source closed")

// ErrFrameInvalid marks a single malformed frame. The run loop skips the
// frame, logs it, and continues; cooldown state is not touched.
var ErrFrameInvalid = errors.New("chamber: invalid frame")

// FrameSource supplies frames in arrival order. NextFrame may block until a
// frame is available or ctx is cancelled. Implementations live in
// internal/capture.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}
