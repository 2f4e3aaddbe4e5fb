// Package logging assembles structured slog loggers and formatting helpers used
// across framepipe.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with the job, run, and worker they belong to. The package also
// provides a no-op logger for tests and wiring code that cannot fail, and a
// sampler that keeps progress logging readable when stdout is not a terminal.
package logging
