package processor

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"framepipe/internal/config"
	"framepipe/internal/frames"
	"framepipe/internal/logging"
)

// Factory builds a stage from processor settings.
type Factory func(cfg config.Processors) (Processor, error)

// Entry describes a registered stage.
type Entry struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry maps stage names to constructors.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// DefaultRegistry returns a registry holding every built-in stage.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, entry := range builtins() {
		r.Register(entry)
	}
	return r
}

// Register adds or replaces a stage. Names are case-insensitive.
func (r *Registry) Register(entry Entry) {
	name := strings.ToLower(strings.TrimSpace(entry.Name))
	entry.Name = name
	r.entries[name] = entry
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	entry, ok := r.entries[strings.ToLower(strings.TrimSpace(name))]
	return entry, ok
}

// Entries returns registered stages sorted by name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Build constructs the chain for cfg.Enabled in order. Unknown names fail
// before any stage is constructed.
func (r *Registry) Build(cfg config.Processors, logger *slog.Logger) (*Chain, error) {
	if len(cfg.Enabled) == 0 {
		return nil, ErrEmptyChain
	}
	entries := make([]Entry, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		entry, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
		}
		entries = append(entries, entry)
	}

	stages := make([]Processor, 0, len(entries))
	for _, entry := range entries {
		stage, err := entry.Factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("build processor %s: %w", entry.Name, err)
		}
		stages = append(stages, stage)
	}
	return NewChain(stages, frames.EncodeOptions{JPEGQuality: cfg.JPEGQuality},
		logging.NewComponentLogger(logger, "processor")), nil
}
