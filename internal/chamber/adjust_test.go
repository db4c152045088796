package chamber

import (
	"bytes"
	"image"
	"image/color"
	"testing"
	"time"
)

// fillFrame builds a frame of the given size filled with a single colour.
func fillFrame(seq uint64, w, h int, c color.NRGBA) Frame {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return Frame{Seq: seq, Timestamp: time.Unix(0, 0), Image: img}
}

// streakFrame builds a dark frame with a bright vertical streak of the given
// width, a stand-in for an ionization track.
func streakFrame(seq uint64, w, h, streakX, streakW int) Frame {
	f := fillFrame(seq, w, h, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	img := f.Image
	for y := 0; y < h; y++ {
		for x := streakX; x < streakX+streakW && x < w; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = 250
			img.Pix[i+1] = 250
			img.Pix[i+2] = 250
		}
	}
	return f
}

func TestPreprocess_NeutralIsIdentity(t *testing.T) {
	f := streakFrame(1, 32, 24, 10, 3)
	out := Preprocess(f, AdjustmentSettings{})

	if out.Width() != f.Width() || out.Height() != f.Height() {
		t.Fatalf("dimensions changed: got %dx%d want %dx%d", out.Width(), out.Height(), f.Width(), f.Height())
	}
	if !bytes.Equal(out.Image.Pix, f.Image.Pix) {
		t.Fatalf("neutral settings changed pixel data")
	}
	if out.Image == f.Image {
		t.Fatalf("neutral settings returned the input image; each stage must own its output")
	}
}

func TestPreprocess_DoesNotMutateInput(t *testing.T) {
	f := streakFrame(1, 16, 16, 4, 2)
	before := make([]uint8, len(f.Image.Pix))
	copy(before, f.Image.Pix)

	Preprocess(f, AdjustmentSettings{Contrast: 40, Brightness: 20, Saturation: -30, BlackPoint: 32})

	if !bytes.Equal(f.Image.Pix, before) {
		t.Fatalf("Preprocess mutated its input frame")
	}
}

func TestPreprocess_BlackPointLiftsFloor(t *testing.T) {
	f := fillFrame(1, 8, 8, color.NRGBA{R: 5, G: 5, B: 5, A: 255})
	out := Preprocess(f, AdjustmentSettings{BlackPoint: 40})

	for i := 0; i < len(out.Image.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			if out.Image.Pix[i+c] < 40 {
				t.Fatalf("pixel channel %d below black point: %d", c, out.Image.Pix[i+c])
			}
		}
		if out.Image.Pix[i+3] != 255 {
			t.Fatalf("black point touched alpha channel: %d", out.Image.Pix[i+3])
		}
	}
}

func TestPreprocess_BlackPointLeavesBrightPixels(t *testing.T) {
	f := fillFrame(1, 4, 4, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	out := Preprocess(f, AdjustmentSettings{BlackPoint: 40})

	if out.Image.Pix[0] != 200 {
		t.Fatalf("black point altered a pixel above the floor: got %d want 200", out.Image.Pix[0])
	}
}

func TestAdjustmentSettings_Clamped(t *testing.T) {
	s := AdjustmentSettings{Contrast: 500, Brightness: -500, Saturation: 101, BlackPoint: 999}
	c := s.Clamped()

	if c.Contrast != AdjustPercentMax {
		t.Errorf("contrast not clamped: %v", c.Contrast)
	}
	if c.Brightness != AdjustPercentMin {
		t.Errorf("brightness not clamped: %v", c.Brightness)
	}
	if c.Saturation != AdjustPercentMax {
		t.Errorf("saturation not clamped: %v", c.Saturation)
	}
	if c.BlackPoint != BlackPointMax {
		t.Errorf("black point not clamped: %v", c.BlackPoint)
	}
}

func TestAdjustmentSettings_IsNeutral(t *testing.T) {
	if !(AdjustmentSettings{}).IsNeutral() {
		t.Error("zero settings should be neutral")
	}
	if (AdjustmentSettings{Contrast: 1}).IsNeutral() {
		t.Error("non-zero contrast should not be neutral")
	}
}

func TestPreprocess_InvalidFramePassesThrough(t *testing.T) {
	out := Preprocess(Frame{}, AdjustmentSettings{Contrast: 10})
	if out.Image != nil {
		t.Fatalf("expected empty frame to pass through untouched")
	}
}
