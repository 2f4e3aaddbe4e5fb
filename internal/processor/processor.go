package processor

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrUnknownProcessor is returned when a configured name is not registered.
	ErrUnknownProcessor = errors.New("unknown processor")
	// ErrEmptyChain is returned when no stage is enabled.
	ErrEmptyChain = errors.New("processor chain is empty")
	// ErrNotPrepared is returned when frames are processed before Prepare.
	ErrNotPrepared = errors.New("processor chain not prepared")
)

// Target describes what a run processes. Sample is a representative frame
// stages may inspect in PreStart.
type Target struct {
	Path   string
	Sample string
}

// Processor is a single transformation stage.
type Processor interface {
	Name() string
	// PreCheck verifies the stage's dependencies are available.
	PreCheck(ctx context.Context) error
	// PreStart reports whether the stage applies to target. A false result
	// skips the stage for the whole run.
	PreStart(ctx context.Context, target Target) (bool, error)
	// ProcessFrame transforms one decoded frame. It must be safe for
	// concurrent use.
	ProcessFrame(ctx context.Context, frame image.Image) (image.Image, error)
}
