package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"framepipe/internal/processor"
)

func newProcessorsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "processors",
		Short: "List available processors and the configured chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			position := make(map[string]int, len(cfg.Processors.Enabled))
			for i, name := range cfg.Processors.Enabled {
				position[name] = i + 1
			}

			entries := processor.DefaultRegistry().Entries()
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				order := "-"
				if pos, ok := position[entry.Name]; ok {
					order = strconv.Itoa(pos)
				}
				rows = append(rows, []string{entry.Name, order, entry.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Processor", "Chain", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
