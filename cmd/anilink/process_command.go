package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"anilink/internal/config"
	"anilink/internal/queue"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var enqueueOnly bool

	cmd := &cobra.Command{
		Use:   "process <path>...",
		Short: "Queue specific files and run the pipeline until done",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				logger, err := newRunLogger(cfg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				intake := ctx.newIntake(cfg, store, logger)

				queued := 0
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return fmt.Errorf("resolve path %q: %w", arg, err)
					}
					info, err := os.Stat(path)
					if err != nil {
						return fmt.Errorf("stat %q: %w", arg, err)
					}
					if info.IsDir() {
						return fmt.Errorf("%q is a directory; use `anilink scan %s`", arg, arg)
					}
					added, err := intake.Evaluate(cmd.Context(), path)
					if err != nil {
						return fmt.Errorf("queue %q: %w", arg, err)
					}
					if added {
						queued++
						fmt.Fprintf(out, "Queued %s\n", filepath.Base(path))
					} else {
						fmt.Fprintf(out, "Skipped %s (already queued or filtered)\n", filepath.Base(path))
					}
				}

				if enqueueOnly {
					fmt.Fprintf(out, "%d file(s) queued\n", queued)
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

	cmd.Flags().BoolVar(&enqueueOnly, "no-run", false, "Queue the files without processing them")
	return cmd
}
