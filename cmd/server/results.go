package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hperssn/kioskcheck/internal/config"
	"github.com/hperssn/kioskcheck/internal/storage"
)

type resultsOptions struct {
	*rootOptions
	Kiosk string
	Since time.Duration
}

type resultsOutput struct {
	Kiosk   string                 `json:"kiosk"`
	Since   time.Time              `json:"since"`
	Results []storage.ResultRecord `json:"results"`
	Stats   *storage.ResultStats   `json:"stats"`
}

func newResultsCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &resultsOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List recent health-check results for a kiosk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			repo, err := storage.Open(cfg.Driver, cfg.DSN)
			if err != nil {
				return err
			}
			defer repo.Close()

			return runResults(cmd.OutOrStdout(), repo, opts, time.Now())
		},
	}

	cmd.Flags().StringVar(&opts.Kiosk, "kiosk", "", "kiosk id (required)")
	cmd.Flags().DurationVar(&opts.Since, "since", 24*time.Hour, "how far back to look")
	_ = cmd.MarkFlagRequired("kiosk")

	return cmd
}

func runResults(w io.Writer, repo storage.Repository, opts *resultsOptions, now time.Time) error {
	since := now.Add(-opts.Since)

	records, err := repo.GetRecentResults(opts.Kiosk, since)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	stats, err := repo.GetResultStats(opts.Kiosk)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resultsOutput{Kiosk: opts.Kiosk, Since: since, Results: records, Stats: stats})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tOUTCOME\tTEMP\tALCOHOL\tFINISHED\tREASON")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\t%s\n",
			rec.SessionID, rec.Outcome, rec.Temperature, rec.AlcoholLevel,
			rec.FinishedAt.Format(time.RFC3339), rec.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d sessions, %d completed, %d failed, %d abnormal, completion %.0f%%, avg temp %.1f\n",
		stats.TotalSessions, stats.CompletedCount, stats.FailedCount, stats.AbnormalCount,
		stats.CompletionRate, stats.AverageTemperature)
	return nil
}
