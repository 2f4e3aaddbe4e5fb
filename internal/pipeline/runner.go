package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"framepipe/internal/config"
	"framepipe/internal/frames"
	"framepipe/internal/jobstate"
	"framepipe/internal/logging"
	"framepipe/internal/pool"
	"framepipe/internal/preflight"
	"framepipe/internal/processor"
	"framepipe/internal/progress"
)

const gib = 1 << 30

// memoryLimitMu serializes runs that set the process-wide memory limit so
// each restores the value it replaced.
var memoryLimitMu sync.Mutex

// Options carries the collaborators of a Runner.
type Options struct {
	Config   *config.Config
	Store    *jobstate.Store
	Registry *processor.Registry
	Logger   *slog.Logger
	// ProgressOutput receives the progress bar; nil means stdout.
	ProgressOutput io.Writer
	// ProgressLogOnly renders progress as log lines even on a terminal.
	ProgressLogOnly bool
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	JobKey     jobstate.JobKey
	Mode       Mode
	Workers    int
	Stages     []string
	Total      int
	Skipped    int
	Dispatched int
	Processed  int
	Failed     int
	Canceled   bool
	Duration   time.Duration
}

// Runner executes frame processing runs. Runs with execution.max_memory_gib
// set adjust the process-wide soft memory limit and so execute one at a time
// within a process.
type Runner struct {
	cfg      config.Config
	store    *jobstate.Store
	registry *processor.Registry
	logger   *slog.Logger
	output   io.Writer
	logOnly  bool
}

// NewRunner validates opts and returns a Runner. The config is copied so a
// run never observes later changes.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: progress store is required")
	}
	registry := opts.Registry
	if registry == nil {
		registry = processor.DefaultRegistry()
	}
	return &Runner{
		cfg:      *opts.Config,
		store:    opts.Store,
		registry: registry,
		logger:   logging.NewComponentLogger(opts.Logger, "pipeline"),
		output:   opts.ProgressOutput,
		logOnly:  opts.ProgressLogOnly,
	}, nil
}

// Run processes every unprocessed frame in target. Frames that fail are
// counted in Summary.Failed and do not fail the run. Cancellation stops
// dispatch between frames and returns the context error with the partial
// summary.
func (r *Runner) Run(ctx context.Context, target string) (Summary, error) {
	started := time.Now()
	summary := Summary{RunID: uuid.NewString()}
	cfg := r.cfg

	if err := cfg.Validate(); err != nil {
		return summary, Wrap(ErrConfiguration, "validate", "invalid execution settings", err)
	}
	mode, workers := SelectMode(cfg.Execution)
	summary.Mode, summary.Workers = mode, workers

	chain, err := r.registry.Build(cfg.Processors, r.logger)
	if err != nil {
		return summary, Wrap(ErrConfiguration, "build chain", "check processors.enabled", err)
	}
	summary.Stages = chain.Names()

	key, err := frames.JobKeyFor(target)
	if err != nil {
		return summary, Wrap(ErrConfiguration, "resolve target", "", err)
	}
	summary.JobKey = key
	target = string(key)
	if check := preflight.CheckDirectoryAccess("target", target); !check.Passed {
		return summary, Wrap(ErrConfiguration, "target access", check.Detail, nil)
	}

	if err := chain.PreCheck(ctx); err != nil {
		return summary, Wrap(ErrInitialization, "pre-check", "processor unavailable", err)
	}

	items, err := frames.Enumerate(target)
	if err != nil {
		return summary, Wrap(ErrConfiguration, "enumerate frames", "", err)
	}
	summary.Total = len(items)

	ctx = logging.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldJobKey, string(key)))

	lock, err := jobstate.LockJob(cfg.LockDir(), key)
	if err != nil {
		return summary, Wrap(ErrInitialization, "lock job", "another run is processing this target", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release job lock failed", logging.Error(err))
		}
	}()

	var done map[string]struct{}
	if cfg.Execution.Resume {
		if done, err = r.store.Processed(ctx, key); err != nil {
			return summary, Wrap(ErrInitialization, "load progress", "", err)
		}
	}
	pending := frames.Pending(items, done)
	summary.Skipped = len(items) - len(pending)

	if len(pending) > 0 {
		if err := chain.Prepare(ctx, processor.Target{Path: target, Sample: pending[0].Path}); err != nil {
			return summary, Wrap(ErrInitialization, "pre-start", "processor failed to initialize", err)
		}
		summary.Stages = chain.Active()
	}

	if !cfg.Execution.Resume {
		if err := r.store.Reset(ctx, key); err != nil {
			return summary, Wrap(ErrInitialization, "reset progress", "", err)
		}
	}
	if err := r.store.Begin(ctx, key, len(items), summary.RunID); err != nil {
		return summary, Wrap(ErrInitialization, "begin job", "", err)
	}

	slices, err := pool.Partition(pending, workers)
	if err != nil {
		return summary, Wrap(ErrConfiguration, "partition", "", err)
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", string(mode)),
		logging.Int("workers", workers),
		logging.Int("total", summary.Total),
		logging.Int("skipped", summary.Skipped),
		logging.Int("pending", len(pending)),
		logging.String("stages", strings.Join(summary.Stages, ",")),
		logging.Strings("providers", cfg.Execution.Providers),
		logging.Any("slice_sizes", pool.Sizes(slices)),
	)

	if len(pending) == 0 {
		logger.Info("all frames already processed",
			logging.String(logging.FieldEventType, "run_noop"),
		)
		summary.Duration = time.Since(started)
		return summary, nil
	}

	if cfg.Execution.MaxMemoryGiB > 0 {
		memoryLimitMu.Lock()
		defer memoryLimitMu.Unlock()
		previous := debug.SetMemoryLimit(int64(cfg.Execution.MaxMemoryGiB) * gib)
		defer debug.SetMemoryLimit(previous)
	}

	reporter := progress.New(len(items), summary.Skipped, progress.Options{
		Mode:         string(mode),
		Workers:      workers,
		Providers:    cfg.Execution.Providers,
		MaxMemoryGiB: cfg.Execution.MaxMemoryGiB,
		Refresh:      time.Duration(cfg.Progress.RefreshMillis) * time.Millisecond,
		LogBucket:    cfg.Progress.LogBucket,
		Logger:       logger,
		Output:       r.output,
		ForceLog:     r.logOnly,
	})
	reporter.Start(ctx)

	work := &frameWork{chain: chain, store: r.store, key: key, runID: summary.RunID, reporter: reporter}
	p := &pool.Pool[frames.Item]{
		OnItemError: func(worker int, item frames.Item, err error) {
			reporter.Fail(1)
			logging.ErrorWithContext(logger, "frame failed", "frame_failed",
				logging.Int(logging.FieldWorker, worker),
				logging.String(logging.FieldFrame, item.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "frame left unprocessed; rerun to retry"),
			)
		},
		OnWorkerDone: func(worker, processed, failed int) {
			logger.Debug("worker finished",
				logging.String(logging.FieldEventType, "worker_done"),
				logging.Int(logging.FieldWorker, worker),
				logging.Int("processed", processed),
				logging.Int("failed", failed),
			)
		},
	}
	result := p.Run(ctx, slices, work.process)
	reporter.Stop()

	summary.Dispatched = result.Attempted
	summary.Processed = result.Succeeded
	summary.Failed = result.Failed
	summary.Canceled = result.Canceled
	summary.Duration = time.Since(started)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("processed", summary.Processed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("duration", summary.Duration),
	}
	if summary.Failed > 0 {
		logging.WarnWithContext(logger, "run finished with failed frames", "run_partial",
			append(attrs,
				logging.String(logging.FieldErrorHint, "rerun the same target to retry failed frames"),
				logging.String(logging.FieldImpact, fmt.Sprintf("%d frames left unprocessed", summary.Failed)),
			)...,
		)
	} else {
		logger.Info("run finished", logging.Args(attrs...)...)
	}

	if summary.Canceled {
		return summary, ctx.Err()
	}
	return summary, nil
}

// RunImage applies the chain to a single image. An empty dst rewrites src.
func (r *Runner) RunImage(ctx context.Context, src, dst string) error {
	cfg := r.cfg
	if err := cfg.Validate(); err != nil {
		return Wrap(ErrConfiguration, "validate", "invalid execution settings", err)
	}
	if strings.TrimSpace(src) == "" {
		return Wrap(ErrConfiguration, "resolve image", "source path is required", nil)
	}
	if !frames.IsImage(src) {
		return Wrap(ErrConfiguration, "resolve image", "unsupported image extension", nil)
	}
	if dst == "" {
		dst = src
	}
	chain, err := r.registry.Build(cfg.Processors, r.logger)
	if err != nil {
		return Wrap(ErrConfiguration, "build chain", "check processors.enabled", err)
	}
	if err := chain.PreCheck(ctx); err != nil {
		return Wrap(ErrInitialization, "pre-check", "processor unavailable", err)
	}
	if err := chain.Prepare(ctx, processor.Target{Path: src, Sample: src}); err != nil {
		return Wrap(ErrInitialization, "pre-start", "processor failed to initialize", err)
	}
	if err := chain.ProcessImage(ctx, src, dst); err != nil {
		return fmt.Errorf("process image: %w", err)
	}
	r.logger.Info("image processed",
		logging.String(logging.FieldEventType, "image_processed"),
		logging.String("source", src),
		logging.String("output", dst),
		logging.String("stages", strings.Join(chain.Active(), ",")),
	)
	return nil
}
