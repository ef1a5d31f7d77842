package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/config"
	"github.com/forPelevin/hlshorts/internal/pipeline"
)

const jobTimeout = 3 * time.Hour

// runFlags are the per-job overrides shared by run and watch.
type runFlags struct {
	out         string
	minSec      float64
	maxSec      float64
	layout      string
	noSubs      bool
	llm         bool
	estimate    bool
	failOnEmpty bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.out, "out", "", "Output directory (default from config)")
	cmd.Flags().Float64Var(&f.minSec, "min", 0, "Minimum segment duration in seconds")
	cmd.Flags().Float64Var(&f.maxSec, "max", 0, "Maximum segment duration in seconds")
	cmd.Flags().StringVar(&f.layout, "layout", "", "Output layout: crop, blur or pad")
	cmd.Flags().BoolVar(&f.noSubs, "no-subs", false, "Do not burn subtitles")
	cmd.Flags().BoolVar(&f.llm, "llm", false, "Write titles, captions and tags with the LLM")
	cmd.Flags().BoolVar(&f.estimate, "estimate", false, "Place the crop from one frame per segment")
	cmd.Flags().BoolVar(&f.failOnEmpty, "fail-empty", false, "Exit with an error when no segment is found")
}

// apply copies the flags the user set onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("min") {
		cfg.Segment.MinSeconds = f.minSec
	}
	if changed("max") {
		cfg.Segment.MaxSeconds = f.maxSec
	}
	if changed("layout") {
		cfg.Crop.Layout = strings.ToLower(strings.TrimSpace(f.layout))
	}
	if f.noSubs {
		cfg.Subtitles.Enabled = false
	}
	if f.llm {
		cfg.LLM.Enabled = true
	}
	if f.estimate {
		cfg.Tracking.Estimate = true
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var transcript string

	cmd := &cobra.Command{
		Use:   "run <input|url>",
		Short: "Cut one video into clips",
		Long:  "Cut one video into clips. An http(s) input is downloaded with yt-dlp and re-encoded to H.264/AAC first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.settings()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			log, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			input := strings.TrimSpace(args[0])
			if !pipeline.IsRemote(input) {
				if input, err = filepath.Abs(input); err != nil {
					return err
				}
			}
			pc := pipeline.Config{
				InputMP4:       input,
				TranscriptPath: strings.TrimSpace(transcript),
				OutDir:         flags.out,
				FailOnEmpty:    flags.failOnEmpty,
				Settings:       cfg,
				Log:            log,
			}
			if err := pc.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}

			runCtx, cancel := context.WithTimeout(cmd.Context(), jobTimeout)
			defer cancel()
			res, err := pipeline.Run(runCtx, pc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s: %d clips in %s\n", res.JobID, len(res.Manifest.Clips), res.RunDir)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&transcript, "transcript", "", "Use this transcript JSON instead of running ASR")
	return cmd
}
