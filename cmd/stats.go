package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/output"
)

// reportStats summarizes a collection the way the dashboard shows it.
type reportStats struct {
	Total        int                    `json:"total"`
	ByStatus     map[models.Status]int  `json:"byStatus"`
	ByUrgency    map[models.Urgency]int `json:"byUrgency"`
	ByCategory   map[string]int         `json:"byCategory"`
	Unclassified int                    `json:"unclassified"`
}

func computeStats(reports []models.Report) reportStats {
	s := reportStats{
		Total:      len(reports),
		ByStatus:   make(map[models.Status]int),
		ByUrgency:  make(map[models.Urgency]int),
		ByCategory: make(map[string]int),
	}
	for _, r := range reports {
		s.ByStatus[r.Status]++
		if r.Analysis == nil {
			s.Unclassified++
			continue
		}
		s.ByUrgency[r.Analysis.Urgency]++
		if r.Analysis.Category != "" {
			s.ByCategory[r.Analysis.Category]++
		}
	}
	return s
}

// categoriesByCount orders categories by count, then name.
func categoriesByCount(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if m[names[i]] != m[names[j]] {
			return m[names[i]] > m[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Totals by status, urgency and category",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		s := computeStats(a.store.Load())
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return output.JSON(s)
		}

		fmt.Println(output.SectionHeader(fmt.Sprintf("Reports: %d", s.Total)))
		fmt.Println()
		fmt.Println(output.SectionHeader("By status"))
		for _, st := range models.AllStatuses() {
			fmt.Printf("  %-16s %d\n", output.FormatStatus(st), s.ByStatus[st])
		}
		fmt.Println()
		fmt.Println(output.SectionHeader("By urgency"))
		for _, u := range models.AllUrgencies() {
			fmt.Printf("  %-16s %d\n", output.FormatUrgency(u), s.ByUrgency[u])
		}
		if s.Unclassified > 0 {
			fmt.Printf("  %-16s %d\n", output.Subtle("unclassified"), s.Unclassified)
		}
		if len(s.ByCategory) > 0 {
			fmt.Println()
			fmt.Println(output.SectionHeader("By category"))
			for _, c := range categoriesByCount(s.ByCategory) {
				fmt.Printf("  %-24s %d\n", c, s.ByCategory[c])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("json", false, "output JSON")
}
