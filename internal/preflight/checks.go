package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"framepipe/internal/config"
	"framepipe/internal/frames"
	"framepipe/internal/processor"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFrames verifies that target holds at least one frame image.
func CheckFrames(name, target string) Result {
	items, err := frames.Enumerate(target)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", target, err)}
	}
	if len(items) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no frame images)", target)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d frames)", target, len(items))}
}

// CheckChain builds the configured chain and runs each stage's pre-check.
func CheckChain(ctx context.Context, name string, cfg config.Processors, registry *processor.Registry) Result {
	chain, err := registry.Build(cfg, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if err := chain.PreCheck(ctx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(chain.Names(), " -> ")}
}
