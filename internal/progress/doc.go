// Package progress reports aggregate frame completion while workers run.
//
// A Reporter starts from the count of frames finished in earlier runs so a
// resumed job shows its true position. On a terminal it renders a go-pretty
// progress bar; otherwise it emits sampled log lines.
package progress
