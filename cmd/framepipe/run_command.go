package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"framepipe/internal/config"
	"framepipe/internal/jobstate"
	"framepipe/internal/pipeline"
	"framepipe/internal/processor"
)

var errFramesFailed = errors.New("one or more frames failed")

type runOptions struct {
	workers    int
	mode       string
	processors []string
	fresh      bool
	strict     bool
	image      bool
	output     string
	logOnly    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <frames-dir>",
		Short: "Process every unprocessed frame in a directory",
		Long: "Process the frames in a directory through the configured processor chain.\n" +
			"Frames completed by an earlier run of the same directory are skipped unless --fresh is set.\n" +
			"With --image the argument is a single image written to --output (or rewritten in place).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCfg := applyRunFlags(cmd, *cfg, opts)

			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := jobstate.Open(&runCfg)
			if err != nil {
				return fmt.Errorf("open progress store: %w", err)
			}
			defer store.Close()

			runner, err := pipeline.NewRunner(pipeline.Options{
				Config:          &runCfg,
				Store:           store,
				Registry:        processor.DefaultRegistry(),
				Logger:          logger,
				ProgressOutput:  cmd.OutOrStdout(),
				ProgressLogOnly: opts.logOnly,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.image {
				if err := runner.RunImage(runCtx, args[0], opts.output); err != nil {
					return err
				}
				dst := opts.output
				if dst == "" {
					dst = args[0]
				}
				fmt.Fprintf(out, "Wrote %s\n", dst)
				return nil
			}

			summary, runErr := runner.Run(runCtx, args[0])
			if summary.Total > 0 || summary.Dispatched > 0 {
				printSummary(out, summary)
			}
			if runErr != nil {
				if errors.Is(runErr, pipeline.ErrConfiguration) || errors.Is(runErr, pipeline.ErrInitialization) {
					return fmt.Errorf("run aborted before processing: %w", runErr)
				}
				return runErr
			}
			if opts.strict && summary.Failed > 0 {
				return fmt.Errorf("%w: %s of %s frames", errFramesFailed, formatCount(summary.Failed), formatCount(summary.Total))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Worker count (overrides execution.workers)")
	flags.StringVar(&opts.mode, "mode", "", "Execution mode: auto, bounded or parallel")
	flags.StringSliceVarP(&opts.processors, "processors", "p", nil, "Processor chain in order (overrides processors.enabled)")
	flags.BoolVar(&opts.fresh, "fresh", false, "Discard stored progress for the target before running")
	flags.BoolVar(&opts.strict, "strict", false, "Exit non-zero when any frame fails")
	flags.BoolVar(&opts.image, "image", false, "Treat the argument as a single image")
	flags.StringVarP(&opts.output, "output", "o", "", "Output path for --image (defaults to rewriting the source)")
	flags.BoolVar(&opts.logOnly, "no-bar", false, "Report progress as log lines instead of a progress bar")
	return cmd
}

// applyRunFlags overlays explicitly set flags on a copy of the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg config.Config, opts runOptions) config.Config {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Execution.Workers = opts.workers
	}
	if flags.Changed("mode") {
		cfg.Execution.Mode = strings.ToLower(strings.TrimSpace(opts.mode))
	}
	if flags.Changed("processors") {
		enabled := make([]string, 0, len(opts.processors))
		for _, name := range opts.processors {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				enabled = append(enabled, name)
			}
		}
		cfg.Processors.Enabled = enabled
	}
	if opts.fresh {
		cfg.Execution.Resume = false
	}
	cfg.Execution.Providers = append([]string(nil), cfg.Execution.Providers...)
	return cfg
}

func printSummary(out io.Writer, summary pipeline.Summary) {
	status := "completed"
	switch {
	case summary.Canceled:
		status = "interrupted"
	case summary.Failed > 0:
		status = "completed with failures"
	}
	fmt.Fprintf(out, "Run %s %s\n", summary.RunID, status)
	fmt.Fprintf(out, "  Target:     %s\n", summary.JobKey)
	fmt.Fprintf(out, "  Mode:       %s (%d workers)\n", summary.Mode, summary.Workers)
	fmt.Fprintf(out, "  Stages:     %s\n", valueOrDash(strings.Join(summary.Stages, " -> ")))
	fmt.Fprintf(out, "  Frames:     %s total, %s skipped, %s processed, %s failed\n",
		formatCount(summary.Total), formatCount(summary.Skipped),
		formatCount(summary.Processed), formatCount(summary.Failed))
	fmt.Fprintf(out, "  Duration:   %s\n", formatDuration(summary.Duration))
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
