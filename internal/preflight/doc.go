// Package preflight provides readiness checks for the directories, disk
// space and external binaries VidSlide depends on.
//
// These checks run in three contexts:
//   - The daemon runs RunAll at startup and logs failures.
//   - The dispatcher probes free space with FreeSpaceMB before each task.
//   - The CLI "vidslide status" command renders RunAll results.
//
// WorkerCeiling derives the default worker count from CPU and memory.
package preflight
