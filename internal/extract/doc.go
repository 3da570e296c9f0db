// Package extract implements the slide extraction engine.
//
// An Engine walks a video sequentially, sampling one frame per stride, and
// compares a grayscale, optionally cropped and downscaled copy of each sample
// against the last accepted reference. A change above the threshold starts a
// stabilization phase that keeps sampling until consecutive samples agree, so
// transition animations are never captured. Settled candidates are checked
// against a bounded history of accepted slides before being written as JPEG
// artifacts named slide_NNNN.jpg.
//
// The engine owns no shared state. Progress is reported over a channel and
// cancellation is observed through a Canceller polled at fixed checkpoints.
// A cooperative stop is reported through Result.Interrupted rather than an
// error.
package extract
