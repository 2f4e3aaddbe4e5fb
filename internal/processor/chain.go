package processor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"

	"framepipe/internal/frames"
	"framepipe/internal/logging"
)

// Chain applies stages to frames in configured order.
type Chain struct {
	stages []Processor
	encode frames.EncodeOptions
	logger *slog.Logger

	mu       sync.RWMutex
	active   []Processor
	prepared bool
}

// NewChain wraps stages. Use Registry.Build for configured chains.
func NewChain(stages []Processor, encode frames.EncodeOptions, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chain{stages: stages, encode: encode, logger: logger}
}

// Names returns the configured stage names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, stage := range c.stages {
		names[i] = stage.Name()
	}
	return names
}

// Active returns the names of stages that accepted the current target.
func (c *Chain) Active() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.active))
	for i, stage := range c.active {
		names[i] = stage.Name()
	}
	return names
}

// PreCheck runs every stage's availability check and stops at the first
// failure.
func (c *Chain) PreCheck(ctx context.Context) error {
	if len(c.stages) == 0 {
		return ErrEmptyChain
	}
	for _, stage := range c.stages {
		if err := stage.PreCheck(ctx); err != nil {
			return fmt.Errorf("%s pre-check: %w", stage.Name(), err)
		}
	}
	return nil
}

// Prepare asks each stage whether it applies to target and records the
// active subset for the run.
func (c *Chain) Prepare(ctx context.Context, target Target) error {
	active := make([]Processor, 0, len(c.stages))
	for _, stage := range c.stages {
		ok, err := stage.PreStart(ctx, target)
		if err != nil {
			return fmt.Errorf("%s pre-start: %w", stage.Name(), err)
		}
		if !ok {
			c.logger.Info("processor skipped for run",
				logging.String(logging.FieldEventType, "processor_skipped"),
				logging.String(logging.FieldStage, stage.Name()),
				logging.String("target", target.Path),
			)
			continue
		}
		active = append(active, stage)
	}

	c.mu.Lock()
	c.active = active
	c.prepared = true
	c.mu.Unlock()
	return nil
}

// ProcessFrame passes img through every active stage. A panicking stage is
// reported as an error.
func (c *Chain) ProcessFrame(ctx context.Context, img image.Image) (image.Image, error) {
	c.mu.RLock()
	active, prepared := c.active, c.prepared
	c.mu.RUnlock()
	if !prepared {
		return nil, ErrNotPrepared
	}

	out := img
	for _, stage := range active {
		next, err := apply(ctx, stage, out)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// ProcessFile rewrites the frame at path in place.
func (c *Chain) ProcessFile(ctx context.Context, path string) error {
	return c.ProcessImage(ctx, path, path)
}

// ProcessImage reads src, applies the chain and writes the result to dst.
// When every stage declined the target the source bytes are kept as is.
func (c *Chain) ProcessImage(ctx context.Context, src, dst string) error {
	c.mu.RLock()
	idle := c.prepared && len(c.active) == 0
	c.mu.RUnlock()
	if idle {
		if filepath.Clean(src) == filepath.Clean(dst) {
			return nil
		}
		return frames.Copy(src, dst)
	}

	img, err := frames.Load(src)
	if err != nil {
		return err
	}
	out, err := c.ProcessFrame(ctx, img)
	if err != nil {
		return err
	}
	return frames.Save(dst, out, c.encode)
}

func apply(ctx context.Context, stage Processor, img image.Image) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%s panicked: %v", stage.Name(), r)
		}
	}()
	out, err = stage.ProcessFrame(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage.Name(), err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s returned no image", stage.Name())
	}
	return out, nil
}
