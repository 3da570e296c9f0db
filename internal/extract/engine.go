package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"vidslide/internal/fileutil"
	"vidslide/internal/logging"
	"vidslide/internal/services"
	"vidslide/internal/video"
)

// Canceller is polled at each checkpoint. The batch cancel token satisfies it.
type Canceller interface {
	Cancelled() bool
}

// Progress is a point-in-time report from a running extraction. Frame is
// the decode cursor; SafeFrame is the frame a paused run resumes from.
type Progress struct {
	Frame       int64         `json:"frame"`
	SafeFrame   int64         `json:"safe_frame"`
	TotalFrames int64         `json:"total_frames"`
	Percent     int           `json:"percent"`
	Saved       int           `json:"saved"`
	Elapsed     time.Duration `json:"elapsed"`
	ETASeconds  float64       `json:"eta_seconds"`
	Artifact    string        `json:"artifact,omitempty"`
}

// Request describes one extraction run.
type Request struct {
	Source    string
	OutputDir string
	Params    Params
	// StartFrame resumes a previous run at its Result.LastFrame. When
	// resuming (StartFrame or SavedOffset non-zero) the frame at StartFrame
	// becomes the comparison reference and is not saved again.
	StartFrame int64
	// SavedOffset numbers new artifacts after those kept from earlier runs.
	SavedOffset int
	Progress    chan<- Progress
	Cancel      Canceller
}

// Result summarises a finished, interrupted or failed run.
type Result struct {
	Saved     int
	Artifacts []string
	// LastFrame is the index of the current comparison reference: the last
	// saved or settled frame. Resuming there reproduces an uninterrupted run.
	LastFrame   int64
	TotalFrames int64
	Elapsed     time.Duration
	Interrupted bool
}

// Engine runs extractions against a video decoder.
type Engine struct {
	decoder video.Decoder
	logger  *slog.Logger
	sleep   func(time.Duration)
	now     func() time.Time
}

// NewEngine constructs an engine.
func NewEngine(decoder video.Decoder, logger *slog.Logger) *Engine {
	return &Engine{
		decoder: decoder,
		logger:  logging.NewComponentLogger(logger, "extract"),
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

type run struct {
	engine  *Engine
	ctx     context.Context
	req     Request
	profile Profile
	handle  video.Handle
	cmp     comparer
	hist    *history

	started time.Time
	total   int64
	cursor  int64
	safe    int64
	percent int
	eta     float64
	result  Result
}

// Run extracts slides for req. Open failures are reported as
// services.ErrVideoUnreadable before any artifact is written; failures while
// decoding return the partial result together with the error.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if e == nil || e.decoder == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "extract", "run", "no decoder configured", nil)
	}
	req.Params = req.Params.Normalize()
	if err := req.Params.Validate(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "extract", "output dir", req.OutputDir, err)
	}
	profile := ProfileFor(req.Params.SpeedMode)

	handle, err := e.decoder.Open(ctx, req.Source, video.OpenOptions{
		StartFrame:  req.StartFrame,
		HWAccel:     req.Params.HWAccel,
		LowPriority: profile.LowPriority,
	})
	if err != nil {
		if errors.Is(err, services.ErrVideoUnreadable) || errors.Is(err, services.ErrResourceExhausted) {
			return Result{}, err
		}
		return Result{}, services.Wrap(services.ErrVideoUnreadable, "extract", "open", req.Source, err)
	}

	r := &run{
		engine:  e,
		ctx:     ctx,
		req:     req,
		profile: profile,
		handle:  handle,
		hist:    newHistory(req.Params.MaxHistory),
		started: e.now(),
		eta:     -1,
	}
	defer r.release()

	e.logger.Info("extraction started",
		logging.String("source", req.Source),
		logging.String("speed_mode", string(req.Params.SpeedMode)),
		logging.Int64("start_frame", req.StartFrame),
		logging.Int("saved_offset", req.SavedOffset),
	)
	err = r.scan()
	r.result.Elapsed = e.now().Sub(r.started)
	r.result.LastFrame = r.safe
	r.result.TotalFrames = r.total
	switch {
	case err != nil:
		e.logger.Warn("extraction failed",
			logging.String("source", req.Source),
			logging.Int("saved", r.result.Saved),
			logging.Error(err),
		)
	case r.result.Interrupted:
		e.logger.Info("extraction interrupted",
			logging.String("source", req.Source),
			logging.Int64("frame", r.cursor),
			logging.Int64("resume_frame", r.safe),
			logging.Int("saved", r.result.Saved),
		)
	default:
		e.logger.Info("extraction completed",
			logging.String("source", req.Source),
			logging.Int("saved", r.result.Saved),
			logging.Duration("elapsed", r.result.Elapsed),
		)
	}
	return r.result, err
}

func (r *run) release() {
	if r.handle != nil {
		if err := r.handle.Close(); err != nil {
			r.engine.logger.Debug("close video handle", logging.Error(err))
		}
		r.handle = nil
	}
	r.hist.reset()
}

func (r *run) cancelled() bool {
	if r.ctx.Err() != nil {
		return true
	}
	return r.req.Cancel != nil && r.req.Cancel.Cancelled()
}

func (r *run) interrupt() error {
	r.result.Interrupted = true
	return nil
}

func (r *run) scan() error {
	info := r.handle.Info()
	r.total = max(info.FrameCount, 1)
	// the first frame is always saved, so kept artifacts imply its reference
	resuming := r.req.StartFrame > 0 || r.req.SavedOffset > 0
	r.cursor = r.req.StartFrame
	r.safe = r.req.StartFrame

	first, err := r.handle.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			if resuming {
				return nil
			}
			return services.Wrap(services.ErrVideoUnreadable, "extract", "first frame", "no decodable frames", nil)
		}
		return r.decodeError(err)
	}
	r.cursor = first.Index
	r.safe = first.Index
	r.cmp = newComparer(first.Image.Bounds().Dx(), first.Image.Bounds().Dy(), r.req.Params.ROI, r.profile.CompareWidth)
	reference := r.cmp.gray(first.Image)
	r.hist.push(reference)

	if resuming {
		r.percent = r.percentAt(r.cursor)
		r.eta = -1
		r.report("")
	} else {
		path, err := r.save(first.Image)
		if err != nil {
			return err
		}
		r.report(path)
	}

	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}
	stride := r.profile.Stride(fps)
	checkStep := r.profile.StabilizeStep(fps)
	threshold := r.req.Params.Threshold

	for {
		if r.cancelled() {
			return r.interrupt()
		}
		r.throttle()

		frame, ok, err := r.advance(stride)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if r.cancelled() {
			return r.interrupt()
		}

		r.updateTiming()
		r.report("")

		current := r.cmp.gray(frame.Image)
		if meanAbsDiff(current, reference) <= threshold {
			continue
		}

		settledImage, settled, settledAt, eof, err := r.stabilize(current, checkStep)
		if err != nil {
			return err
		}
		if r.cancelled() {
			return r.interrupt()
		}
		if settled == nil {
			if eof {
				return nil
			}
			continue
		}

		finalDiff := meanAbsDiff(settled, reference)
		duplicate := finalDiff <= threshold
		if r.hist.enabled() && r.hist.matches(settled, threshold) {
			duplicate = true
		}
		var artifact string
		if !duplicate {
			if artifact, err = r.save(settledImage); err != nil {
				return err
			}
			r.hist.push(settled)
		}
		reference = settled
		r.safe = settledAt
		if artifact != "" {
			r.report(artifact)
		}
	}
}

// advance consumes n frames and returns the last one. ok is false at end of
// stream.
func (r *run) advance(n int64) (video.Frame, bool, error) {
	if n > 1 {
		if err := r.handle.Skip(n - 1); err != nil {
			if errors.Is(err, io.EOF) {
				return video.Frame{}, false, nil
			}
			return video.Frame{}, false, r.decodeError(err)
		}
	}
	frame, err := r.handle.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return video.Frame{}, false, nil
		}
		return video.Frame{}, false, r.decodeError(err)
	}
	r.cursor = frame.Index
	return frame, true, nil
}

// stabilize samples every step frames until enough consecutive samples agree.
// It returns the settled frame and its index, or nil when the window ran out,
// the stream ended or a cancellation was observed.
func (r *run) stabilize(candidate *image.Gray, step int64) (*image.RGBA, *image.Gray, int64, bool, error) {
	last := candidate
	stable := 0
	for range r.profile.MaxStabilizeSamples {
		if r.cancelled() {
			return nil, nil, 0, false, nil
		}
		r.throttle()
		frame, ok, err := r.advance(step)
		if err != nil {
			return nil, nil, 0, false, err
		}
		if !ok {
			return nil, nil, 0, true, nil
		}
		gray := r.cmp.gray(frame.Image)
		if meanAbsDiff(gray, last) < stableDiff {
			stable++
		} else {
			stable = 0
		}
		last = gray
		if stable >= r.profile.StableSamples {
			return frame.Image, gray, frame.Index, false, nil
		}
	}
	return nil, nil, 0, false, nil
}

func (r *run) throttle() {
	if r.profile.Throttle > 0 && r.engine.sleep != nil {
		r.engine.sleep(r.profile.Throttle)
	}
}

func (r *run) percentAt(frame int64) int {
	pct := int(float64(frame) / float64(r.total) * 100)
	return min(99, max(pct, r.percent))
}

func (r *run) updateTiming() {
	r.percent = r.percentAt(r.cursor)
	elapsed := r.engine.now().Sub(r.started).Seconds()
	if r.percent > 2 {
		r.eta = math.Round(elapsed/float64(r.percent)*float64(100-r.percent)*10) / 10
	} else {
		r.eta = -1
	}
}

func (r *run) save(img *image.RGBA) (string, error) {
	index := r.req.SavedOffset + r.result.Saved
	path := filepath.Join(r.req.OutputDir, ArtifactName(index))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.req.Params.JPEGQuality}); err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", services.Wrap(services.ErrDecodeInterrupted, "extract", "write artifact", path, err)
	}
	r.result.Saved++
	r.result.Artifacts = append(r.result.Artifacts, path)
	return path, nil
}

func (r *run) report(artifact string) {
	if r.req.Progress == nil {
		return
	}
	update := Progress{
		Frame:       r.cursor,
		SafeFrame:   r.safe,
		TotalFrames: r.total,
		Percent:     r.percent,
		Saved:       r.req.SavedOffset + r.result.Saved,
		Elapsed:     r.engine.now().Sub(r.started),
		ETASeconds:  r.eta,
		Artifact:    artifact,
	}
	select {
	case r.req.Progress <- update:
	case <-r.ctx.Done():
	}
}

func (r *run) decodeError(err error) error {
	if errors.Is(err, services.ErrDecodeInterrupted) || errors.Is(err, services.ErrResourceExhausted) {
		return err
	}
	return services.Wrap(services.ErrDecodeInterrupted, "extract", "decode", fmt.Sprintf("frame %d", r.cursor), err)
}

// ArtifactName returns the file name of the zero-based slide index.
func ArtifactName(index int) string {
	return fmt.Sprintf("slide_%04d.jpg", index)
}
