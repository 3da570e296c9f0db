// Package textutil provides naming helpers shared by the batch orchestrator and
// the exporters.
//
// The primary use cases are:
//   - Sanitizing display names into safe, bounded directory names
//   - Suggesting the next name in a numbered series (Lecture 3 -> Lecture 4)
//   - Disambiguating duplicate names before export with _1, _2 suffixes
//   - Natural ordering of video file names discovered in a folder
//
// Display names are normalized to NFC so names typed on different platforms
// compare equal.
package textutil
