package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/dateparse"
	"github.com/bermanqa/qlog/internal/merge"
	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/output"
)

// listFilter narrows the history. Zero values match everything.
type listFilter struct {
	Status  models.Status
	Urgency models.Urgency
	Since   time.Time
	Limit   int
}

// filterReports returns the matching reports newest first.
func filterReports(reports []models.Report, f listFilter) []models.Report {
	var out []models.Report
	for _, r := range reports {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Urgency != "" && (r.Analysis == nil || r.Analysis.Urgency != f.Urgency) {
			continue
		}
		if !f.Since.IsZero() {
			created, ok := r.CreatedAt()
			if !ok || created.Before(f.Since) {
				continue
			}
		}
		out = append(out, r)
	}
	merge.Sort(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func parseListFilter(cmd *cobra.Command, now time.Time) (listFilter, error) {
	var f listFilter
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		f.Status = models.NormalizeStatus(s)
		if !models.IsValidStatus(f.Status) {
			return f, fmt.Errorf("invalid status %q (want submitted, in-progress or done)", s)
		}
	}
	if u, _ := cmd.Flags().GetString("urgency"); u != "" {
		f.Urgency = models.Urgency(strings.ToLower(strings.TrimSpace(u)))
		if !models.IsValidUrgency(f.Urgency) {
			return f, fmt.Errorf("invalid urgency %q (want low, medium, high or critical)", u)
		}
	}
	if s, _ := cmd.Flags().GetString("since"); s != "" {
		since, err := dateparse.ParseSinceFrom(s, now)
		if err != nil {
			return f, err
		}
		f.Since = since
	}
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f, nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "history"},
	Short:   "List complaints, newest first",
	Example: `  qlog list --status submitted
  qlog list --urgency critical --since "last monday"
  qlog list --since 7d --json`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		filter, err := parseListFilter(cmd, now)
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		reports := filterReports(a.store.Load(), filter)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if reports == nil {
				reports = []models.Report{}
			}
			return output.JSON(reports)
		}

		if len(reports) == 0 {
			fmt.Println(output.Subtle("No reports found"))
			return nil
		}
		width := output.TerminalWidth(100)
		for _, r := range reports {
			fmt.Println(output.FormatReportShort(r, now, width))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("status", "s", "", "filter by status (submitted, in-progress, done)")
	listCmd.Flags().StringP("urgency", "u", "", "filter by urgency (low, medium, high, critical)")
	listCmd.Flags().String("since", "", "only reports created since (2026-01-31, 7d, yesterday, \"last friday\")")
	listCmd.Flags().IntP("limit", "n", 0, "show at most n reports")
	listCmd.Flags().Bool("json", false, "output JSON")
}
