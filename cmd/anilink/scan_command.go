package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"anilink/internal/config"
	"anilink/internal/queue"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var enqueueOnly bool

	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan a directory for new video files and process the queue",
		Long: "Scan walks the source directory (or the given directory), queues every " +
			"eligible video file that is not already known, and then runs the pipeline " +
			"until the queue drains.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				logger, err := newRunLogger(cfg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				root := ""
				if len(args) == 1 {
					root, err = config.ExpandPath(args[0])
					if err != nil {
						return fmt.Errorf("resolve scan root: %w", err)
					}
				}

				intake := ctx.newIntake(cfg, store, logger)
				result, err := intake.Scan(cmd.Context(), root)
				if err != nil {
					return err
				}

				fmt.Fprintln(out, renderTable(
					[]string{"Found", "Queued", "Known", "Unstable", "Errors"},
					[][]string{{
						strconv.Itoa(result.Found),
						strconv.Itoa(result.Queued),
						strconv.Itoa(result.Known),
						strconv.Itoa(result.Unstable),
						strconv.Itoa(len(result.Errors)),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				for _, scanErr := range result.Errors {
					fmt.Fprintf(out, "scan warning: %s\n", scanErr)
				}

				if enqueueOnly {
					return nil
				}

				if err := checkPreflight(cmd.Context(), cfg); err != nil {
					return err
				}
				if err := drainQueue(cmd.Context(), cfg, store, logger); err != nil {
					return err
				}
				return printQueueSummary(cmd.Context(), out, store)
			})
		},
	}

	cmd.Flags().BoolVar(&enqueueOnly, "no-run", false, "Queue discovered files without processing them")
	return cmd
}
