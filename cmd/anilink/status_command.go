package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"anilink/internal/config"
	"anilink/internal/daemon"
	"anilink/internal/preflight"
	"anilink/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon liveness, queue counts, and environment checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				running, err := daemon.Running(cfg)
				if err != nil {
					fmt.Fprintf(out, "Daemon: unknown (%v)\n", err)
				} else if running {
					fmt.Fprintln(out, "Daemon: running")
				} else {
					fmt.Fprintln(out, "Daemon: stopped")
				}
				fmt.Fprintf(out, "Queue database: %s\n", cfg.QueueDatabasePath())

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if rows := buildStatusRows(stats); len(rows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				} else {
					fmt.Fprintln(out, "Queue is empty")
				}

				results := preflight.RunAll(cmd.Context(), cfg)
				rows := make([][]string, 0, len(results))
				for _, result := range results {
					rows = append(rows, []string{result.Name, yesNo(result.Passed), result.Detail})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Check", "OK", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
