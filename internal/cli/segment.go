package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/domain/segmenter"
	"github.com/forPelevin/hlshorts/internal/types"
)

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	var minSec, maxSec float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "segment <transcript.json>",
		Short: "Print the segments a transcript would be cut into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.settings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("min") {
				cfg.Segment.MinSeconds = minSec
			}
			if cmd.Flags().Changed("max") {
				cfg.Segment.MaxSeconds = maxSec
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			tr, err := types.LoadTranscript(args[0])
			if err != nil {
				return err
			}
			seg := segmenter.New(segmenter.Config{MinDuration: cfg.Segment.MinSeconds, MaxDuration: cfg.Segment.MaxSeconds}, log)
			segs, err := seg.SegmentContext(cmd.Context(), tr.Words())
			if err != nil {
				return err
			}
			if segs == nil {
				segs = []types.Segment{}
			}

			if asJSON {
				return writeJSON(cmd, segs)
			}
			if len(segs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No segments found")
				return nil
			}
			rows := make([][]string, 0, len(segs))
			for i, s := range segs {
				rows = append(rows, []string{
					fmt.Sprintf("%03d", i+1),
					formatSeconds(s.Start),
					formatSeconds(s.End),
					formatSeconds(s.Duration),
					truncate(s.Text, 60),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Start", "End", "Duration", "Text"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().Float64Var(&minSec, "min", 0, "Minimum segment duration in seconds")
	cmd.Flags().Float64Var(&maxSec, "max", 0, "Maximum segment duration in seconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print segments as JSON")
	return cmd
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64)
}
