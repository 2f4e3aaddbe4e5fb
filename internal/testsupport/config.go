package testsupport

import (
	"path/filepath"
	"testing"

	"framepipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Execution.Workers = 2
	cfg.Progress.RefreshMillis = 10

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers overrides the worker count.
func WithWorkers(n int) ConfigOption {
	return func(c *config.Config) { c.Execution.Workers = n }
}

// WithMode overrides the execution mode.
func WithMode(mode string) ConfigOption {
	return func(c *config.Config) { c.Execution.Mode = mode }
}

// WithProcessors sets the enabled chain in order.
func WithProcessors(names ...string) ConfigOption {
	return func(c *config.Config) { c.Processors.Enabled = append([]string(nil), names...) }
}

// WithResume toggles resume.
func WithResume(resume bool) ConfigOption {
	return func(c *config.Config) { c.Execution.Resume = resume }
}
