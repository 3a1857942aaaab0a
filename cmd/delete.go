package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/output"
)

// removeReports drops the reports with the given ids and reports which ids
// were not present.
func removeReports(reports []models.Report, ids []string) ([]models.Report, []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make([]models.Report, 0, len(reports))
	for _, r := range reports {
		if drop[r.ID] {
			delete(drop, r.ID)
			continue
		}
		out = append(out, r)
	}
	var missing []string
	for _, id := range ids {
		if drop[id] {
			missing = append(missing, id)
		}
	}
	return out, missing
}

// setStatus returns reports with id's status replaced, and whether id was found.
func setStatus(reports []models.Report, id string, status models.Status) ([]models.Report, bool) {
	out := make([]models.Report, len(reports))
	copy(out, reports)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status
			return out, true
		}
	}
	return out, false
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete complaints from this device",
	Long: `Delete complaints from this device.

Deletions are not synced: another device that still has the complaint will
bring it back on its next sync.`,
	Args:    cobra.MinimumNArgs(1),
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var missing []string
		if _, err := a.store.Update(func(reports []models.Report) []models.Report {
			var out []models.Report
			out, missing = removeReports(reports, args)
			return out
		}); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		for _, id := range missing {
			output.Warning("report %s not found", id)
		}
		if n := len(args) - len(missing); n > 0 {
			output.Success("Deleted %d report(s)", n)
		}
		if len(missing) == len(args) {
			return fmt.Errorf("nothing deleted")
		}
		return nil
	},
}

var markCmd = &cobra.Command{
	Use:     "mark <id> <status>",
	Aliases: []string{"status"},
	Short:   "Change a complaint's status",
	Example: `  qlog mark 1760000000000 in-progress
  qlog mark 1760000000000 done`,
	Args:    cobra.ExactArgs(2),
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := models.NormalizeStatus(args[1])
		if !models.IsValidStatus(status) {
			return fmt.Errorf("invalid status %q (want submitted, in-progress or done)", args[1])
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var found bool
		if _, err := a.store.Update(func(reports []models.Report) []models.Report {
			var out []models.Report
			out, found = setStatus(reports, args[0], status)
			return out
		}); err != nil {
			return fmt.Errorf("mark: %w", err)
		}
		if !found {
			return fmt.Errorf("report %s not found", args[0])
		}

		output.Success("%s → %s", args[0], output.FormatStatus(status))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(markCmd)
}
