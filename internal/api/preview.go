package api

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/monitoring"
)

// Preview streams the pipeline's working images as motion JPEG: the
// normalized frame on the left, the binary edge map on the right. Encoding
// only happens while at least one client is watching.
type Preview struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewPreview() *Preview {
	return &Preview{subs: make(map[chan []byte]struct{})}
}

func (p *Preview) subscribe() chan []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan []byte, 1)
	p.subs[ch] = struct{}{}
	return ch
}

func (p *Preview) unsubscribe(ch chan []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[ch]; ok {
		delete(p.subs, ch)
		close(ch)
	}
}

// Observe composes and encodes the preview for one result and fans it out.
// Slow clients miss frames instead of blocking the run loop.
func (p *Preview) Observe(res chamber.Result) {
	p.mu.Lock()
	n := len(p.subs)
	p.mu.Unlock()
	if n == 0 || res.Normalized == nil || res.Edges == nil {
		return
	}

	frame := composePreview(res.Normalized, res.Edges)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 80}); err != nil {
		monitoring.Logf("[Preview] encode failed: %v", err)
		return
	}
	data := buf.Bytes()

	p.mu.Lock()
	for ch := range p.subs {
		select {
		case ch <- data:
		default:
		}
	}
	p.mu.Unlock()
}

// ServeHTTP implements the multipart/x-mixed-replace MJPEG stream browsers
// render natively in an <img> tag.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch := p.subscribe()
	defer p.unsubscribe(ch)

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+mw.Boundary())

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   []string{"image/jpeg"},
				"Content-Length": []string{strconv.Itoa(len(frame))},
			})
			if err != nil {
				return
			}
			if _, err := part.Write(frame); err != nil {
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// composePreview places the normalized frame and the edge map side by side.
func composePreview(normalized *image.NRGBA, edges *image.Gray) *image.NRGBA {
	nb := normalized.Bounds()
	eb := edges.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, nb.Dx()+eb.Dx(), max(nb.Dy(), eb.Dy())))
	draw.Draw(out, image.Rect(0, 0, nb.Dx(), nb.Dy()), normalized, nb.Min, draw.Src)
	draw.Draw(out, image.Rect(nb.Dx(), 0, nb.Dx()+eb.Dx(), eb.Dy()), edges, eb.Min, draw.Src)
	return out
}
