package pipeline

import "framepipe/internal/config"

// Mode is the execution mode chosen for a run.
type Mode string

const (
	ModeBounded  Mode = "bounded"
	ModeParallel Mode = "parallel"
)

// SelectMode resolves the configured mode and returns the worker count the
// run will use. Bounded mode always runs a single worker.
func SelectMode(exec config.Execution) (Mode, int) {
	switch exec.Mode {
	case config.ModeBounded:
		return ModeBounded, 1
	case config.ModeParallel:
		return ModeParallel, exec.Workers
	default:
		if exec.Workers <= 1 {
			return ModeBounded, 1
		}
		return ModeParallel, exec.Workers
	}
}
