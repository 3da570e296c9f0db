// Package video defines the frame decoding contract used by the extraction
// engine and an ffmpeg-backed implementation of it.
//
// A Decoder opens a source and returns a Handle that yields frames strictly in
// order. Handles never seek once opened; a resume point is applied when the
// handle is opened. Open performs an ffprobe pre-check so unreadable sources
// and unsupported codecs are reported as services.ErrVideoUnreadable before any
// frame is produced, while failures part-way through a file surface from Next
// as services.ErrDecodeInterrupted.
package video
