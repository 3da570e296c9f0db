package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"vidslide/internal/logging"
	"vidslide/internal/media/ffprobe"
	"vidslide/internal/services"
)

// maxFrameBytes caps the RGBA buffer of a single frame (8K is ~133MB).
const maxFrameBytes = 256 << 20

const lowPriorityNice = 10

// probeVideo is the ffprobe function used by the decoder.
// It is a package-level variable so tests can override it.
var probeVideo = ffprobe.Inspect

// SetProbeForTests overrides the ffprobe runner during tests.
func SetProbeForTests(fn func(context.Context, string, string) (ffprobe.Result, error)) func() {
	previous := probeVideo
	probeVideo = fn
	return func() {
		probeVideo = previous
	}
}

// FFmpegDecoder decodes frames by piping rawvideo out of an ffmpeg process.
type FFmpegDecoder struct {
	ffmpegBinary  string
	ffprobeBinary string
	logger        *slog.Logger
}

// NewFFmpegDecoder constructs a decoder using the given binaries.
func NewFFmpegDecoder(ffmpegBinary, ffprobeBinary string, logger *slog.Logger) *FFmpegDecoder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &FFmpegDecoder{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		logger:        logging.NewComponentLogger(logger, "decoder"),
	}
}

// Probe inspects the source and reports its geometry and timing.
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (Info, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, services.Wrap(services.ErrVideoUnreadable, "decode", "stat", "source not accessible", err)
	}
	result, err := probeVideo(ctx, d.ffprobeBinary, path)
	if err != nil {
		return Info{}, services.Wrap(services.ErrVideoUnreadable, "decode", "probe", "ffprobe could not read the source", err)
	}
	stream, ok := result.Video()
	if !ok {
		return Info{}, services.Wrap(services.ErrVideoUnreadable, "decode", "probe", "no video stream", nil)
	}
	info := Info{
		Width:      stream.Width,
		Height:     stream.Height,
		FPS:        result.FrameRate(),
		FrameCount: result.FrameCount(),
		Duration:   result.DurationSeconds(),
		Codec:      stream.CodecName,
	}
	if info.FPS <= 0 {
		info.FPS = 30
	}
	if info.FrameCount <= 0 {
		info.FrameCount = 1
	}
	return info, nil
}

// Open probes the source and starts a sequential decode.
func (d *FFmpegDecoder) Open(ctx context.Context, path string, opts OpenOptions) (Handle, error) {
	info, err := d.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	frameBytes := int64(info.Width) * int64(info.Height) * 4
	if frameBytes > maxFrameBytes {
		return nil, services.Wrap(services.ErrResourceExhausted, "decode", "open",
			fmt.Sprintf("frame buffer of %d bytes exceeds limit", frameBytes), nil)
	}

	args := []string{"-v", "error", "-nostdin"}
	if accel := strings.TrimSpace(opts.HWAccel); accel != "" && accel != "none" {
		args = append(args, "-hwaccel", accel)
	}
	if opts.StartFrame > 0 {
		seconds := float64(opts.StartFrame) / info.FPS
		args = append(args, "-ss", strconv.FormatFloat(seconds, 'f', 3, 64))
	}
	args = append(args, "-i", path, "-map", "0:v:0", "-f", "rawvideo", "-pix_fmt", "rgba", "-")

	cmd := exec.CommandContext(ctx, d.ffmpegBinary, args...)
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "decode", "pipe", "create stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "decode", "start", "launch ffmpeg", err)
	}
	if opts.LowPriority && cmd.Process != nil {
		if err := unix.Setpriority(unix.PRIO_PROCESS, cmd.Process.Pid, lowPriorityNice); err != nil {
			d.logger.Debug("lower decoder priority failed", logging.Error(err))
		}
	}
	d.logger.Debug("decoder started",
		logging.String("path", path),
		logging.Int64("start_frame", opts.StartFrame),
		logging.String("hwaccel", opts.HWAccel),
	)

	return &ffmpegHandle{
		info:       info,
		cmd:        cmd,
		stdout:     stdout,
		reader:     bufio.NewReaderSize(stdout, int(frameBytes)),
		stderr:     stderr,
		frameBytes: frameBytes,
		next:       opts.StartFrame,
	}, nil
}

// Thumbnail writes a single scaled JPEG frame taken at atSeconds.
func (d *FFmpegDecoder) Thumbnail(ctx context.Context, path, dest string, atSeconds float64, width int) error {
	if width <= 0 {
		width = 320
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	args := []string{
		"-v", "error", "-nostdin", "-y",
		"-ss", strconv.FormatFloat(atSeconds, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		dest,
	}
	output, err := exec.CommandContext(ctx, d.ffmpegBinary, args...).CombinedOutput()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "thumbnail", "ffmpeg", strings.TrimSpace(string(output)), err)
	}
	return nil
}

type ffmpegHandle struct {
	mu         sync.Mutex
	info       Info
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	reader     *bufio.Reader
	stderr     *tailBuffer
	frameBytes int64
	next       int64
	done       bool
	closed     bool
}

func (h *ffmpegHandle) Info() Info {
	return h.info
}

func (h *ffmpegHandle) Next() (Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done || h.closed {
		return Frame{}, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, h.info.Width, h.info.Height))
	if _, err := io.ReadFull(h.reader, img.Pix); err != nil {
		return Frame{}, h.finish(err)
	}
	frame := Frame{Index: h.next, Image: img}
	h.next++
	return frame, nil
}

func (h *ffmpegHandle) Skip(n int64) error {
	if n <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done || h.closed {
		return io.EOF
	}
	for i := int64(0); i < n; i++ {
		if _, err := h.reader.Discard(int(h.frameBytes)); err != nil {
			return h.finish(err)
		}
		h.next++
	}
	return nil
}

// finish converts a short read into io.EOF for a clean end of stream or a
// decode failure when ffmpeg exited abnormally.
func (h *ffmpegHandle) finish(readErr error) error {
	h.done = true
	waitErr := h.cmd.Wait()
	if waitErr == nil && (errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF)) {
		return io.EOF
	}
	detail := strings.TrimSpace(h.stderr.String())
	if detail == "" {
		detail = fmt.Sprintf("stream ended at frame %d of %d", h.next, h.info.FrameCount)
	}
	cause := waitErr
	if cause == nil {
		cause = readErr
	}
	return services.Wrap(services.ErrDecodeInterrupted, "decode", "read", detail, cause)
}

func (h *ffmpegHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	_ = h.stdout.Close()
	if !h.done {
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		_ = h.cmd.Wait()
		h.done = true
	}
	h.reader = nil
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
