package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"framepipe/internal/config"
	"framepipe/internal/jobstate"
	"framepipe/internal/preflight"
	"framepipe/internal/processor"
)

var errPreflightFailed = errors.New("preflight checks failed")

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [frames-dir]",
		Short: "Show readiness checks and tracked jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *jobstate.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Configuration", colorize) {
					fmt.Fprintln(out, line)
				}
				configDetail := ctx.configPath
				if !ctx.configSeen {
					configDetail += " (defaults)"
				}
				fmt.Fprintln(out, renderStatusLine("Config", statusInfo, configDetail, colorize))
				fmt.Fprintln(out, renderStatusLine("Execution", statusInfo,
					fmt.Sprintf("mode=%s workers=%d resume=%s", cfg.Execution.Mode, cfg.Execution.Workers, yesNo(cfg.Execution.Resume)), colorize))
				fmt.Fprintln(out, renderStatusLine("Progress store", statusInfo, store.Path(), colorize))
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Preflight", colorize) {
					fmt.Fprintln(out, line)
				}
				results := preflight.RunAll(cmd.Context(), cfg, processor.DefaultRegistry())
				if len(args) == 1 {
					results = append(results, preflight.CheckFrames("Frames", args[0]))
				}
				for _, result := range results {
					fmt.Fprintln(out, renderStatusLine(result.Name, resultKind(result), result.Detail, colorize))
				}
				fmt.Fprintln(out)
				failed := preflight.Failed(results)

				jobs, err := store.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				for _, line := range renderSectionHeader("Jobs", colorize) {
					fmt.Fprintln(out, line)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(out, renderStatusLine("Tracked", statusInfo, "none", colorize))
					return preflightError(failed)
				}
				complete := 0
				for _, job := range jobs {
					if job.Total > 0 && job.Remaining() == 0 {
						complete++
					}
				}
				fmt.Fprintln(out, renderStatusLine("Tracked", statusInfo, formatCount(len(jobs)), colorize))
				kind := statusOK
				if complete < len(jobs) {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Complete", kind,
					fmt.Sprintf("%s of %s", formatCount(complete), formatCount(len(jobs))), colorize))
				return preflightError(failed)
			})
		},
	}
}

func preflightError(failed []preflight.Result) error {
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, result := range failed {
		names = append(names, result.Name)
	}
	return fmt.Errorf("%w: %s", errPreflightFailed, strings.Join(names, ", "))
}
