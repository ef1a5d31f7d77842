package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/types"
)

type progressView struct {
	JobID     string    `json:"job_id"`
	Input     string    `json:"input"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show job progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := progress.Open(cfg.Paths.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			var rows []types.Progress
			if len(args) == 1 {
				p, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, progress.ErrNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				rows = []types.Progress{p}
			} else {
				rows, err = store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}

			if asJSON {
				views := make([]progressView, 0, len(rows))
				for _, p := range rows {
					views = append(views, progressView{
						JobID:     p.JobID,
						Input:     p.Input,
						Status:    string(p.Status),
						Stage:     p.Stage,
						Done:      p.Done,
						Total:     p.Total,
						Message:   p.Message,
						UpdatedAt: p.UpdatedAt,
					})
				}
				return writeJSON(cmd, views)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
				return nil
			}

			table := make([][]string, 0, len(rows))
			for _, p := range rows {
				table = append(table, []string{
					p.JobID,
					string(p.Status),
					p.Stage,
					progressCell(p),
					p.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
					filepath.Base(p.Input),
					truncate(p.Message, 40),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Status", "Stage", "Clips", "Updated", "Input", "Message"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of most recent jobs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print progress as JSON")
	return cmd
}

func progressCell(p types.Progress) string {
	if p.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", p.Done, p.Total)
}
