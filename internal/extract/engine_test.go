package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidslide/internal/services"
	"vidslide/internal/testsupport/fakevideo"
)

const source = "/videos/lecture.mp4"

// A, B, back to A, then C at 2 fps: eco samples every 2 frames and needs two
// identical follow-up samples to settle.
func revisitDecoder() *fakevideo.Decoder {
	return fakevideo.NewDecoder(2,
		fakevideo.Scene{Frames: 10, Shade: 0},
		fakevideo.Scene{Frames: 10, Shade: 100},
		fakevideo.Scene{Frames: 10, Shade: 0},
		fakevideo.Scene{Frames: 10, Shade: 200},
	)
}

func newTestEngine(decoder *fakevideo.Decoder) *Engine {
	engine := NewEngine(decoder, nil)
	engine.sleep = func(time.Duration) {}
	return engine
}

type countingCancel struct {
	after int64
	calls atomic.Int64
}

func (c *countingCancel) Cancelled() bool {
	return c.calls.Add(1) > c.after
}

func TestRunSuppressesRevisitedSlides(t *testing.T) {
	decoder := revisitDecoder()
	out := t.TempDir()

	result, err := newTestEngine(decoder).Run(context.Background(), Request{
		Source:    source,
		OutputDir: out,
		Params:    DefaultParams(),
	})
	require.NoError(t, err)
	require.False(t, result.Interrupted)
	require.Equal(t, 3, result.Saved)
	require.Equal(t, []string{
		filepath.Join(out, "slide_0000.jpg"),
		filepath.Join(out, "slide_0001.jpg"),
		filepath.Join(out, "slide_0002.jpg"),
	}, result.Artifacts)
	for _, path := range result.Artifacts {
		_, err := os.Stat(path)
		require.NoError(t, err)
	}
	require.Equal(t, decoder.Opened(), decoder.Closed())
}

func TestRunWithoutHistoryRecapturesRevisit(t *testing.T) {
	params := DefaultParams()
	params.MaxHistory = 0

	result, err := newTestEngine(revisitDecoder()).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    params,
	})
	require.NoError(t, err)
	require.Equal(t, 4, result.Saved)
}

func TestRunIgnoresTransitions(t *testing.T) {
	// a fade between two slides never holds still long enough to settle
	decoder := fakevideo.NewDecoder(2,
		fakevideo.Scene{Frames: 10, Shade: 0},
		fakevideo.Scene{Frames: 1, Shade: 40},
		fakevideo.Scene{Frames: 1, Shade: 80},
		fakevideo.Scene{Frames: 10, Shade: 120},
	)

	result, err := newTestEngine(decoder).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    DefaultParams(),
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Saved)
}

func TestRunResumesWithoutResavingReference(t *testing.T) {
	out := t.TempDir()

	result, err := newTestEngine(revisitDecoder()).Run(context.Background(), Request{
		Source:      source,
		OutputDir:   out,
		Params:      DefaultParams(),
		StartFrame:  20,
		SavedOffset: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Saved)
	require.Equal(t, []string{filepath.Join(out, "slide_0002.jpg")}, result.Artifacts)
}

func TestRunReportsMonotonicProgress(t *testing.T) {
	progress := make(chan Progress, 256)

	result, err := newTestEngine(revisitDecoder()).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    DefaultParams(),
		Progress:  progress,
	})
	require.NoError(t, err)
	close(progress)

	last := -1
	lastSaved := 0
	var updates int
	for update := range progress {
		updates++
		require.GreaterOrEqual(t, update.Percent, last)
		require.LessOrEqual(t, update.Percent, 99)
		require.GreaterOrEqual(t, update.Saved, lastSaved)
		last = update.Percent
		lastSaved = update.Saved
	}
	require.NotZero(t, updates)
	require.Equal(t, result.Saved, lastSaved)
}

func TestRunHonoursCancellation(t *testing.T) {
	decoder := revisitDecoder()
	cancel := &countingCancel{after: 3}

	result, err := newTestEngine(decoder).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    DefaultParams(),
		Cancel:    cancel,
	})
	require.NoError(t, err)
	require.True(t, result.Interrupted)
	require.Equal(t, 1, result.Saved)
	// the cursor moved on but the first frame is still the reference
	require.Zero(t, result.LastFrame)
	require.Equal(t, int64(1), decoder.Closed())
}

// eight distinct slides, each held for five seconds at 2 fps
func distinctDecoder() *fakevideo.Decoder {
	scenes := make([]fakevideo.Scene, 8)
	for i := range scenes {
		scenes[i] = fakevideo.Scene{Frames: 10, Shade: uint8(i * 30)}
	}
	return fakevideo.NewDecoder(2, scenes...)
}

func TestRunResumedAtAnyCheckpointMatchesUninterrupted(t *testing.T) {
	full, err := newTestEngine(distinctDecoder()).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    DefaultParams(),
	})
	require.NoError(t, err)
	require.Equal(t, 8, full.Saved)

	for after := int64(0); ; after++ {
		out := t.TempDir()
		first, err := newTestEngine(distinctDecoder()).Run(context.Background(), Request{
			Source:    source,
			OutputDir: out,
			Params:    DefaultParams(),
			Cancel:    &countingCancel{after: after},
		})
		require.NoError(t, err)
		if !first.Interrupted {
			require.Equal(t, full.Saved, first.Saved)
			break
		}
		require.Less(t, after, int64(1000), "run never completed")

		second, err := newTestEngine(distinctDecoder()).Run(context.Background(), Request{
			Source:      source,
			OutputDir:   out,
			Params:      DefaultParams(),
			StartFrame:  first.LastFrame,
			SavedOffset: first.Saved,
		})
		require.NoError(t, err)
		require.Equalf(t, full.Saved, first.Saved+second.Saved,
			"paused after %d checks at frame %d", after, first.LastFrame)

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		require.Len(t, entries, full.Saved)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestEngine(revisitDecoder()).Run(ctx, Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    DefaultParams(),
	})
	require.NoError(t, err)
	require.True(t, result.Interrupted)
}

func TestRunUnreadableSource(t *testing.T) {
	decoder := revisitDecoder()
	decoder.FailOpen(source, errors.New("moov atom not found"))
	out := t.TempDir()

	_, err := newTestEngine(decoder).Run(context.Background(), Request{
		Source:    source,
		OutputDir: out,
		Params:    DefaultParams(),
	})
	require.ErrorIs(t, err, services.ErrVideoUnreadable)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

func TestRunKeepsPartialArtifactsOnDecodeFailure(t *testing.T) {
	decoder := revisitDecoder()
	decoder.FailAt(source, 15)

	result, err := newTestEngine(decoder).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    DefaultParams(),
	})
	require.ErrorIs(t, err, services.ErrDecodeInterrupted)
	require.Equal(t, 2, result.Saved)
	require.Len(t, result.Artifacts, 2)
	require.Equal(t, decoder.Opened(), decoder.Closed())
}

func TestRunRejectsInvalidParams(t *testing.T) {
	params := DefaultParams()
	params.ROI = &ROI{X1: 0.8, Y1: 0, X2: 0.2, Y2: 1}

	_, err := newTestEngine(revisitDecoder()).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    params,
	})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestRunWithROIAndTurbo(t *testing.T) {
	params := DefaultParams()
	params.SpeedMode = SpeedTurbo
	params.ROI = &ROI{X1: 0.208, Y1: 0.185, X2: 1, Y2: 1}

	result, err := newTestEngine(revisitDecoder()).Run(context.Background(), Request{
		Source:    source,
		OutputDir: t.TempDir(),
		Params:    params,
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Saved)
}
