package main

import (
	"github.com/spf13/cobra"

	"anilink/internal/daemonrun"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var disableWatch bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the daemon: watch the source tree and process arrivals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:     logLevel,
				DisableWatch: disableWatch,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&disableWatch, "no-watch", false, "Process the queue without filesystem watches")
	return cmd
}
