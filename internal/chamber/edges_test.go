package chamber

import (
	"image/color"
	"testing"
)

func TestEdgeThresholds_Validate(t *testing.T) {
	cases := []struct {
		name    string
		th      EdgeThresholds
		wantErr bool
	}{
		{"typical", EdgeThresholds{Low: 50, High: 150}, false},
		{"equal", EdgeThresholds{Low: 100, High: 100}, false},
		{"zero", EdgeThresholds{Low: 0, High: 0}, false},
		{"full range", EdgeThresholds{Low: 0, High: 255}, false},
		{"low above high", EdgeThresholds{Low: 151, High: 150}, true},
		{"negative low", EdgeThresholds{Low: -1, High: 150}, true},
		{"high out of range", EdgeThresholds{Low: 50, High: 256}, true},
	}
	for _, tc := range cases {
		err := tc.th.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestExtractEdges_BlankFrameHasNoEdges(t *testing.T) {
	f := fillFrame(1, 64, 48, color.NRGBA{R: 30, G: 30, B: 30, A: 255})
	em, err := ExtractEdges(f, EdgeThresholds{Low: 50, High: 150})
	if err != nil {
		t.Fatalf("ExtractEdges: %v", err)
	}
	if em.EdgeCount != 0 {
		t.Fatalf("blank frame produced %d edge pixels, want 0", em.EdgeCount)
	}
}

func TestExtractEdges_StreakProducesEdges(t *testing.T) {
	f := streakFrame(1, 64, 48, 30, 3)
	em, err := ExtractEdges(f, EdgeThresholds{Low: 50, High: 150})
	if err != nil {
		t.Fatalf("ExtractEdges: %v", err)
	}
	if em.EdgeCount == 0 {
		t.Fatal("high-contrast streak produced no edge pixels")
	}
}

func TestExtractEdges_PreservesDimensions(t *testing.T) {
	f := streakFrame(1, 40, 30, 10, 2)
	em, err := ExtractEdges(f, EdgeThresholds{Low: 50, High: 150})
	if err != nil {
		t.Fatalf("ExtractEdges: %v", err)
	}
	if em.Width() != 40 || em.Height() != 30 {
		t.Fatalf("edge map %dx%d, want 40x30", em.Width(), em.Height())
	}
}

// Raising both thresholds can only discard edge pixels, never add them.
func TestExtractEdges_MonotonicInThresholds(t *testing.T) {
	f := streakFrame(1, 64, 48, 20, 2)

	loose, err := ExtractEdges(f, EdgeThresholds{Low: 20, High: 60})
	if err != nil {
		t.Fatalf("ExtractEdges loose: %v", err)
	}
	tight, err := ExtractEdges(f, EdgeThresholds{Low: 120, High: 240})
	if err != nil {
		t.Fatalf("ExtractEdges tight: %v", err)
	}
	if tight.EdgeCount > loose.EdgeCount {
		t.Fatalf("tight thresholds gave more edges (%d) than loose (%d)", tight.EdgeCount, loose.EdgeCount)
	}
}

// Edge pixels marked by the map must agree with EdgeCount.
func TestExtractEdges_CountMatchesMap(t *testing.T) {
	f := streakFrame(1, 48, 32, 12, 4)
	em, err := ExtractEdges(f, EdgeThresholds{Low: 50, High: 150})
	if err != nil {
		t.Fatalf("ExtractEdges: %v", err)
	}
	count := 0
	for _, p := range em.Gray.Pix {
		if p == 255 {
			count++
		} else if p != 0 {
			t.Fatalf("edge map contains non-binary value %d", p)
		}
	}
	if count != em.EdgeCount {
		t.Fatalf("EdgeCount %d disagrees with map population %d", em.EdgeCount, count)
	}
}

func TestExtractEdges_InvalidFrame(t *testing.T) {
	if _, err := ExtractEdges(Frame{}, EdgeThresholds{Low: 50, High: 150}); err == nil {
		t.Fatal("expected error for empty frame")
	}
}
