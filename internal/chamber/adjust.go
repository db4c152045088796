package chamber

import (
	"image"

	"github.com/disintegration/imaging"
)

// Adjustment setting bounds. Values outside these ranges are clamped when a
// configuration is applied, never per frame.
const (
	AdjustPercentMin = -100.0
	AdjustPercentMax = 100.0
	BlackPointMin    = 0
	BlackPointMax    = 255
)

// AdjustmentSettings are the user-tunable visual adjustments applied to a raw
// frame before edge extraction. Contrast, Brightness and Saturation are
// percentages in [-100, 100] where 0 is the identity. BlackPoint is a floor
// in [0, 255]: channel values below it are raised to it, lifting shadows the
// way the chamber's dim illumination needs.
type AdjustmentSettings struct {
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`
	Saturation float64 `json:"saturation"`
	BlackPoint int     `json:"black_point"`
}

// Clamped returns a copy with every field forced into its valid range.
func (s AdjustmentSettings) Clamped() AdjustmentSettings {
	s.Contrast = clampFloat(s.Contrast, AdjustPercentMin, AdjustPercentMax)
	s.Brightness = clampFloat(s.Brightness, AdjustPercentMin, AdjustPercentMax)
	s.Saturation = clampFloat(s.Saturation, AdjustPercentMin, AdjustPercentMax)
	s.BlackPoint = clampInt(s.BlackPoint, BlackPointMin, BlackPointMax)
	return s
}

// IsNeutral reports whether every adjustment is at its no-op setting.
func (s AdjustmentSettings) IsNeutral() bool {
	return s.Contrast == 0 && s.Brightness == 0 && s.Saturation == 0 && s.BlackPoint == 0
}

// Preprocess applies the adjustments to a raw frame and returns a normalized
// frame of identical dimensions. Pure function of (Frame, settings): the input
// image is never modified. Order is fixed: contrast, brightness, saturation,
// black point.
func Preprocess(f Frame, s AdjustmentSettings) Frame {
	if !f.Valid() {
		return f
	}
	if s.IsNeutral() {
		return Frame{Seq: f.Seq, Timestamp: f.Timestamp, Image: imaging.Clone(f.Image)}
	}

	img := f.Image
	out := imaging.AdjustContrast(img, s.Contrast)
	if s.Brightness != 0 {
		out = imaging.AdjustBrightness(out, s.Brightness)
	}
	if s.Saturation != 0 {
		out = imaging.AdjustSaturation(out, s.Saturation)
	}
	if s.BlackPoint > 0 {
		applyBlackPoint(out, uint8(s.BlackPoint))
	}
	return Frame{Seq: f.Seq, Timestamp: f.Timestamp, Image: out}
}

// applyBlackPoint lifts every colour channel below the floor up to it,
// in place. Alpha is left untouched. There is no library primitive for a
// plain floor clamp, so this is the one pixel loop in the preprocessor.
func applyBlackPoint(img *image.NRGBA, floor uint8) {
	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		if pix[i] < floor {
			pix[i] = floor
		}
		if pix[i+1] < floor {
			pix[i+1] = floor
		}
		if pix[i+2] < floor {
			pix[i+2] = floor
		}
	}
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
