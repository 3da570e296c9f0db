// Package fakevideo provides a synthetic video decoder for tests. It sits
// below every package that consumes video so engine tests can import it.
package fakevideo

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"vidslide/internal/services"
	"vidslide/internal/video"
)

// Scene is a run of identical frames filled with a single gray shade.
type Scene struct {
	Frames int
	Shade  uint8
}

// Decoder produces synthetic frame sequences so tests never need ffmpeg.
// Sources not listed in Videos fall back to Default.
type Decoder struct {
	Width  int
	Height int
	FPS    float64

	mu      sync.Mutex
	videos  map[string][]Scene
	failAt  map[string]int64
	openErr map[string]error
	def     []Scene

	// FrameDelay slows every decoded frame.
	FrameDelay time.Duration

	gate chan struct{}

	opened atomic.Int64
	closed atomic.Int64
	active atomic.Int64
	peak   atomic.Int64
}

// NewDecoder builds a decoder producing small 64x36 frames at fps.
func NewDecoder(fps float64, def ...Scene) *Decoder {
	return &Decoder{
		Width:   64,
		Height:  36,
		FPS:     fps,
		videos:  make(map[string][]Scene),
		failAt:  make(map[string]int64),
		openErr: make(map[string]error),
		def:     def,
	}
}

// SetVideo registers the scenes decoded for path.
func (d *Decoder) SetVideo(path string, scenes ...Scene) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.videos[path] = scenes
}

// FailAt makes decoding path fail once frame index is reached.
func (d *Decoder) FailAt(path string, index int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAt[path] = index
}

// FailOpen makes Open return err for path.
func (d *Decoder) FailOpen(path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr[path] = err
}

// Hold blocks every decoded frame until Release is called.
func (d *Decoder) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
}

// Release unblocks frames held by Hold.
func (d *Decoder) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

func (d *Decoder) currentGate() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gate
}

// Active reports the number of handles currently open.
func (d *Decoder) Active() int64 { return d.active.Load() }

// Opened reports how many handles were opened.
func (d *Decoder) Opened() int64 { return d.opened.Load() }

// Closed reports how many handles were closed.
func (d *Decoder) Closed() int64 { return d.closed.Load() }

// PeakActive reports the largest number of simultaneously open handles.
func (d *Decoder) PeakActive() int64 { return d.peak.Load() }

func (d *Decoder) scenesFor(path string) []Scene {
	d.mu.Lock()
	defer d.mu.Unlock()
	if scenes, ok := d.videos[path]; ok {
		return scenes
	}
	return d.def
}

// Probe implements video.Prober.
func (d *Decoder) Probe(_ context.Context, path string) (video.Info, error) {
	d.mu.Lock()
	openErr, failed := d.openErr[path]
	d.mu.Unlock()
	if failed {
		return video.Info{}, services.Wrap(services.ErrVideoUnreadable, "probe", "inspect", path, openErr)
	}
	var frames int64
	for _, scene := range d.scenesFor(path) {
		frames += int64(scene.Frames)
	}
	if frames == 0 {
		return video.Info{}, services.Wrap(services.ErrVideoUnreadable, "probe", "inspect", "no frames", nil)
	}
	fps := d.FPS
	if fps <= 0 {
		fps = 25
	}
	return video.Info{
		Width:      d.Width,
		Height:     d.Height,
		FPS:        fps,
		FrameCount: frames,
		Duration:   float64(frames) / fps,
		Codec:      "synthetic",
	}, nil
}

// Thumbnail implements video.Thumbnailer by writing a small gray JPEG.
func (d *Decoder) Thumbnail(_ context.Context, path, dest string, _ float64, width int) error {
	if _, err := d.Probe(context.Background(), path); err != nil {
		return err
	}
	if width <= 0 {
		width = d.Width
	}
	img := image.NewGray(image.Rect(0, 0, width, width*d.Height/max(d.Width, 1)))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, nil)
}

// Open implements video.Decoder.
func (d *Decoder) Open(_ context.Context, path string, opts video.OpenOptions) (video.Handle, error) {
	d.mu.Lock()
	if err, ok := d.openErr[path]; ok {
		d.mu.Unlock()
		return nil, services.Wrap(services.ErrVideoUnreadable, "decode", "open", path, err)
	}
	scenes, ok := d.videos[path]
	if !ok {
		scenes = d.def
	}
	failAt, hasFail := d.failAt[path]
	d.mu.Unlock()

	var shades []uint8
	for _, scene := range scenes {
		for i := 0; i < scene.Frames; i++ {
			shades = append(shades, scene.Shade)
		}
	}
	if len(shades) == 0 {
		return nil, services.Wrap(services.ErrVideoUnreadable, "decode", "open", "no frames", nil)
	}
	if !hasFail {
		failAt = -1
	}

	d.opened.Add(1)
	current := d.active.Add(1)
	for {
		peak := d.peak.Load()
		if current <= peak || d.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	fps := d.FPS
	if fps <= 0 {
		fps = 25
	}
	return &handle{
		decoder: d,
		info: video.Info{
			Width:      d.Width,
			Height:     d.Height,
			FPS:        fps,
			FrameCount: int64(len(shades)),
			Duration:   float64(len(shades)) / fps,
			Codec:      "synthetic",
		},
		shades: shades,
		next:   opts.StartFrame,
		failAt: failAt,
	}, nil
}

type handle struct {
	decoder *Decoder
	info    video.Info
	shades  []uint8
	next    int64
	failAt  int64
	closed  bool
}

func (h *handle) Info() video.Info { return h.info }

func (h *handle) Next() (video.Frame, error) {
	if err := h.consume(); err != nil {
		return video.Frame{}, err
	}
	index := h.next - 1
	img := image.NewRGBA(image.Rect(0, 0, h.info.Width, h.info.Height))
	shade := h.shades[index]
	fill := color.RGBA{R: shade, G: shade, B: shade, A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = fill.R
		img.Pix[i+1] = fill.G
		img.Pix[i+2] = fill.B
		img.Pix[i+3] = fill.A
	}
	return video.Frame{Index: index, Image: img}, nil
}

func (h *handle) Skip(n int64) error {
	for i := int64(0); i < n; i++ {
		if err := h.consume(); err != nil {
			return err
		}
	}
	return nil
}

func (h *handle) consume() error {
	if h.closed || h.next >= int64(len(h.shades)) {
		return io.EOF
	}
	if h.failAt >= 0 && h.next >= h.failAt {
		return services.Wrap(services.ErrDecodeInterrupted, "decode", "read", "synthetic truncation", nil)
	}
	if gate := h.decoder.currentGate(); gate != nil {
		<-gate
	}
	if h.decoder.FrameDelay > 0 {
		time.Sleep(h.decoder.FrameDelay)
	}
	h.next++
	return nil
}

func (h *handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.decoder.closed.Add(1)
	h.decoder.active.Add(-1)
	return nil
}
