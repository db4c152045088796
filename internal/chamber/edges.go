package chamber

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// edgeBlurRadius is the gaussian radius applied before gradient computation.
// Vapour trails are a few pixels wide; a small blur knocks out single-pixel
// sensor noise without smearing track structure.
const edgeBlurRadius = 1.4

// EdgeThresholds are the low/high hysteresis thresholds on gradient magnitude,
// both in [0, 255] with Low <= High. Violations are configuration errors,
// rejected when the config is applied and never at frame time.
type EdgeThresholds struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// Validate rejects thresholds outside [0,255] or with Low > High.
func (t EdgeThresholds) Validate() error {
	if t.Low < 0 || t.Low > 255 {
		return fmt.Errorf("edge low threshold %d out of range [0,255]", t.Low)
	}
	if t.High < 0 || t.High > 255 {
		return fmt.Errorf("edge high threshold %d out of range [0,255]", t.High)
	}
	if t.Low > t.High {
		return fmt.Errorf("edge low threshold %d exceeds high threshold %d", t.Low, t.High)
	}
	return nil
}

// EdgeMap is the binary edge classification of one frame. Same spatial
// dimensions as its source frame; produced once per frame and discarded after
// scoring.
type EdgeMap struct {
	Gray      *image.Gray // 255 where edge, 0 elsewhere
	EdgeCount int
}

// Width returns the edge map width in pixels.
func (m *EdgeMap) Width() int { return m.Gray.Bounds().Dx() }

// Height returns the edge map height in pixels.
func (m *EdgeMap) Height() int { return m.Gray.Bounds().Dy() }

// ExtractEdges computes the hysteresis edge map of a normalized frame.
//
// Grayscale conversion, gaussian blur and the Sobel gradient magnitude come
// from bild; this function only performs the two-threshold classification:
// magnitude >= High is a definite edge, magnitude in [Low, High) is kept only
// if 8-connected (transitively) to a definite edge, everything else is
// discarded. A single threshold either over-triggers on sensor noise or
// misses faint tracks; hysteresis suppresses isolated noise pixels while
// preserving continuous track structure.
//
// Thresholds are assumed to have passed Validate; ExtractEdges returns an
// error only for invalid frames or a stage dimension mismatch, which the run
// loop treats as fatal.
func ExtractEdges(f Frame, th EdgeThresholds) (*EdgeMap, error) {
	if !f.Valid() {
		return nil, ErrFrameInvalid
	}

	gray := effect.Grayscale(f.Image)
	blurred := blur.Gaussian(gray, edgeBlurRadius)
	grad := effect.Sobel(blurred)

	b := grad.Bounds()
	w, h := b.Dx(), b.Dy()
	if w != f.Width() || h != f.Height() {
		return nil, fmt.Errorf("edge extractor dimension mismatch: frame %dx%d, gradient %dx%d",
			f.Width(), f.Height(), w, h)
	}

	low := uint8(th.Low)
	high := uint8(th.High)

	// Classification pass. grad is grayscale RGBA so the red channel carries
	// the magnitude.
	const (
		classNone = 0
		classWeak = 1
		classEdge = 2
	)
	class := make([]uint8, w*h)
	// Strong pixels seed the connectivity walk.
	stack := make([]int, 0, 256)
	for y := 0; y < h; y++ {
		row := grad.Pix[(y+b.Min.Y-grad.Rect.Min.Y)*grad.Stride:]
		for x := 0; x < w; x++ {
			mag := row[(x+b.Min.X-grad.Rect.Min.X)*4]
			idx := y*w + x
			switch {
			case mag >= high:
				class[idx] = classEdge
				stack = append(stack, idx)
			case mag >= low:
				class[idx] = classWeak
			}
		}
	}

	// Hysteresis: promote weak pixels transitively 8-connected to a definite
	// edge. Iterative flood fill from the strong seeds.
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		y, x := idx/w, idx%w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dy == 0 && dx == 0 {
					continue
				}
				ny, nx := y+dy, x+dx
				if ny < 0 || ny >= h || nx < 0 || nx >= w {
					continue
				}
				nidx := ny*w + nx
				if class[nidx] == classWeak {
					class[nidx] = classEdge
					stack = append(stack, nidx)
				}
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	count := 0
	for idx, c := range class {
		if c == classEdge {
			out.Pix[idx] = 255
			count++
		}
	}

	return &EdgeMap{Gray: out, EdgeCount: count}, nil
}
