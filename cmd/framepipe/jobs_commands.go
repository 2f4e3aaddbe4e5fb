package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"framepipe/internal/config"
	"framepipe/internal/frames"
	"framepipe/internal/jobstate"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and reset stored progress",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsResetCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *jobstate.Store) error {
				jobs, err := store.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No tracked jobs")
					return nil
				}
				fmt.Fprintln(out, renderTable(jobHeaders, jobRows(jobs), jobAligns))
				return nil
			})
		},
	}
}

func newJobsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <frames-dir>",
		Short: "Forget stored progress so the next run starts from the first frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := frames.JobKeyFor(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *jobstate.Store) error {
				lock, err := jobstate.LockJob(cfg.LockDir(), key)
				if err != nil {
					return fmt.Errorf("reset %s: %w", key, err)
				}
				defer lock.Release()

				job, err := store.Job(cmd.Context(), key)
				if err != nil {
					return err
				}
				if err := store.Reset(cmd.Context(), key); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if job == nil {
					fmt.Fprintf(out, "No stored progress for %s\n", key)
					return nil
				}
				fmt.Fprintf(out, "Cleared %s processed frames for %s\n", formatCount(job.Processed), key)
				return nil
			})
		},
	}
}

var (
	jobHeaders = []string{"Target", "Processed", "Total", "Remaining", "Last Run", "Run Frames", "Updated"}
	jobAligns  = []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight, alignLeft}
)

func jobRows(jobs []jobstate.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			string(job.Key),
			formatCount(job.Processed),
			formatCount(job.Total),
			formatCount(job.Remaining()),
			shortRunID(job.LastRunID),
			formatCount(job.LastRunFrames),
			formatTime(job.UpdatedAt),
		})
	}
	return rows
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return valueOrDash(id)
}
