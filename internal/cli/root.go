package cli

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag, logLevel, logFormat string

	ctx := newCommandContext(&configFlag, &logLevel, &logFormat)

	root := &cobra.Command{
		Use:           "hlshorts",
		Short:         "Cut a long video into short reframed clips",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")

	root.AddCommand(newRunCommand(ctx))
	root.AddCommand(newSegmentCommand(ctx))
	root.AddCommand(newWatchCommand(ctx))
	root.AddCommand(newStatusCommand(ctx))
	root.AddCommand(newConfigCommand())

	return root
}
