package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/pipeline"
	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Cut every video copied into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.settings()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if cmd.Flags().Changed("max-concurrent") {
				cfg.Watch.MaxConcurrent = maxConcurrent
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			store, err := progress.Open(cfg.Paths.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			handler := func(jobCtx context.Context, path string) error {
				jobCtx, cancel := context.WithTimeout(jobCtx, jobTimeout)
				defer cancel()
				res, err := pipeline.Run(jobCtx, pipeline.Config{
					InputMP4:    path,
					OutDir:      flags.out,
					FailOnEmpty: flags.failOnEmpty,
					Settings:    cfg,
					Log:         log,
					Progress:    store,
				})
				if err != nil {
					return err
				}
				log.Info("job finished", "job_id", res.JobID, "clips", len(res.Manifest.Clips), "dir", res.RunDir)
				return nil
			}

			w, err := watch.New(args[0], handler, log, cfg.Watch.MaxConcurrent)
			if err != nil {
				return err
			}
			defer w.Stop()

			err = w.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Jobs to run at the same time (default from config)")
	return cmd
}
