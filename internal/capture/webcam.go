// Package capture provides frame sources for the detection engine: a V4L2
// webcam for live runs and a still-image replay source for development and
// offline tuning.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/disintegration/imaging"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/monitoring"
	"github.com/banshee-data/chambercam/internal/timeutil"
)

// V4L2 fourcc codes for the pixel formats we can decode.
const (
	fmtYUYV  webcam.PixelFormat = 0x56595559
	fmtMJPEG webcam.PixelFormat = 0x47504a4d
)

var supportedFormats = map[webcam.PixelFormat]bool{
	fmtYUYV:  true,
	fmtMJPEG: true,
}

type byArea []webcam.FrameSize

func (s byArea) Len() int      { return len(s) }
func (s byArea) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byArea) Less(i, j int) bool {
	return s[i].MaxWidth*s[i].MaxHeight < s[j].MaxWidth*s[j].MaxHeight
}

// WebcamConfig selects the device and negotiated frame geometry. Zero width
// and height pick the largest size the camera offers.
type WebcamConfig struct {
	Device string // e.g. /dev/video0
	Width  uint32
	Height uint32
}

// WebcamSource reads frames from a V4L2 device and implements
// chamber.FrameSource. Frames are decoded to NRGBA on the calling goroutine;
// the engine's synchronous loop means at most one frame is in flight.
type WebcamSource struct {
	cam    *webcam.Webcam
	format webcam.PixelFormat
	w, h   uint32
	clock  timeutil.Clock

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// OpenWebcam opens and configures the device, preferring YUYV or MJPEG, and
// starts streaming.
func OpenWebcam(cfg WebcamConfig, clock timeutil.Clock) (*WebcamSource, error) {
	cam, err := webcam.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
	}

	formats := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	for f := range formats {
		if supportedFormats[f] {
			format = f
			break
		}
	}
	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("%s offers no supported pixel format", cfg.Device)
	}

	sizes := byArea(cam.GetSupportedFrameSizes(format))
	sort.Sort(sizes)
	if len(sizes) == 0 {
		cam.Close()
		return nil, fmt.Errorf("%s reports no frame sizes for %s", cfg.Device, formats[format])
	}
	want := sizes[len(sizes)-1]
	if cfg.Width != 0 && cfg.Height != 0 {
		want = webcam.FrameSize{MaxWidth: cfg.Width, MaxHeight: cfg.Height}
	}

	f, w, h, err := cam.SetImageFormat(format, want.MaxWidth, want.MaxHeight)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("failed to set image format: %w", err)
	}
	monitoring.Logf("[Capture] %s streaming %s %dx%d", cfg.Device, formats[f], w, h)

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("failed to start streaming: %w", err)
	}

	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &WebcamSource{cam: cam, format: f, w: w, h: h, clock: clock}, nil
}

// NextFrame implements chamber.FrameSource. Decode failures surface as
// ordinary errors so the engine can skip the frame and keep the run alive.
func (s *WebcamSource) NextFrame(ctx context.Context) (chamber.Frame, error) {
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return chamber.Frame{}, chamber.ErrSourceClosed
		}
		if err := ctx.Err(); err != nil {
			return chamber.Frame{}, err
		}

		err := s.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return chamber.Frame{}, fmt.Errorf("wait for frame: %w", err)
		}

		raw, err := s.cam.ReadFrame()
		if err != nil {
			return chamber.Frame{}, fmt.Errorf("read frame: %w", err)
		}
		if len(raw) == 0 {
			continue
		}

		img, err := decodeFrame(raw, s.w, s.h, s.format)
		if err != nil {
			return chamber.Frame{}, err
		}

		s.mu.Lock()
		seq := s.seq
		s.seq++
		s.mu.Unlock()
		return chamber.Frame{Seq: seq, Timestamp: s.clock.Now(), Image: img}, nil
	}
}

// Close stops streaming and releases the device. Subsequent NextFrame calls
// return chamber.ErrSourceClosed.
func (s *WebcamSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.cam.Close()
}

func decodeFrame(raw []byte, w, h uint32, format webcam.PixelFormat) (*image.NRGBA, error) {
	switch format {
	case fmtYUYV:
		if uint32(len(raw)) < w*h*2 {
			return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(raw), w, h)
		}
		yuv := image.NewYCbCr(image.Rect(0, 0, int(w), int(h)), image.YCbCrSubsampleRatio422)
		for i := range yuv.Cb {
			ii := i * 4
			yuv.Y[i*2] = raw[ii]
			yuv.Y[i*2+1] = raw[ii+2]
			yuv.Cb[i] = raw[ii+1]
			yuv.Cr[i] = raw[ii+3]
		}
		return imaging.Clone(yuv), nil
	case fmtMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(addMotionDHT(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode MJPEG frame: %w", err)
		}
		return imaging.Clone(img), nil
	default:
		return nil, fmt.Errorf("unsupported pixel format %#x", format)
	}
}

// Motion-JPEG frames omit the Huffman tables a standalone JPEG needs; splice
// the standard tables back in ahead of the start-of-scan marker.
func addMotionDHT(frame []byte) []byte {
	var (
		dhtMarker = []byte{255, 196}
		dht       = []byte{1, 162, 0, 0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 1, 0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 16, 0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125, 1, 2, 3, 0, 4, 17, 5, 18, 33, 49, 65, 6, 19, 81, 97, 7, 34, 113, 20, 50, 129, 145, 161, 8, 35, 66, 177, 193, 21, 82, 209, 240, 36, 51, 98, 114, 130, 9, 10, 22, 23, 24, 25, 26, 37, 38, 39, 40, 41, 42, 52, 53, 54, 55, 56, 57, 58, 67, 68, 69, 70, 71, 72, 73, 74, 83, 84, 85, 86, 87, 88, 89, 90, 99, 100, 101, 102, 103, 104, 105, 106, 115, 116, 117, 118, 119, 120, 121, 122, 131, 132, 133, 134, 135, 136, 137, 138, 146, 147, 148, 149, 150, 151, 152, 153, 154, 162, 163, 164, 165, 166, 167, 168, 169, 170, 178, 179, 180, 181, 182, 183, 184, 185, 186, 194, 195, 196, 197, 198, 199, 200, 201, 202, 210, 211, 212, 213, 214, 215, 216, 217, 218, 225, 226, 227, 228, 229, 230, 231, 232, 233, 234, 241, 242, 243, 244, 245, 246, 247, 248, 249, 250, 17, 0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 119, 0, 1, 2, 3, 17, 4, 5, 33, 49, 6, 18, 65, 81, 7, 97, 113, 19, 34, 50, 129, 8, 20, 66, 145, 161, 177, 193, 9, 35, 51, 82, 240, 21, 98, 114, 209, 10, 22, 36, 52, 225, 37, 241, 23, 24, 25, 26, 38, 39, 40, 41, 42, 53, 54, 55, 56, 57, 58, 67, 68, 69, 70, 71, 72, 73, 74, 83, 84, 85, 86, 87, 88, 89, 90, 99, 100, 101, 102, 103, 104, 105, 106, 115, 116, 117, 118, 119, 120, 121, 122, 130, 131, 132, 133, 134, 135, 136, 137, 138, 146, 147, 148, 149, 150, 151, 152, 153, 154, 162, 163, 164, 165, 166, 167, 168, 169, 170, 178, 179, 180, 181, 182, 183, 184, 185, 186, 194, 195, 196, 197, 198, 199, 200, 201, 202, 210, 211, 212, 213, 214, 215, 216, 217, 218, 226, 227, 228, 229, 230, 231, 232, 233, 234, 242, 243, 244, 245, 246, 247, 248, 249, 250}
		sosMarker = []byte{255, 218}
	)
	parts := bytes.SplitN(frame, sosMarker, 2)
	if len(parts) != 2 {
		return frame
	}
	out := make([]byte, 0, len(frame)+len(dhtMarker)+len(dht))
	out = append(out, parts[0]...)
	out = append(out, dhtMarker...)
	out = append(out, dht...)
	out = append(out, sosMarker...)
	out = append(out, parts[1]...)
	return out
}

// frameInterval converts a frames-per-second rate to a tick interval,
// defaulting to 10fps for nonsense rates.
func frameInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 10
	}
	return time.Duration(float64(time.Second) / fps)
}
