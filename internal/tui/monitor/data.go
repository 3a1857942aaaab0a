package monitor

import (
	"time"

	"github.com/bermanqa/qlog/internal/merge"
	"github.com/bermanqa/qlog/internal/models"
)

// FetchData loads the local collection in display order.
func FetchData(load func() []models.Report, now time.Time) RefreshDataMsg {
	msg := RefreshDataMsg{Timestamp: now}
	if load == nil {
		return msg
	}
	reports := append([]models.Report(nil), load()...)
	merge.Sort(reports)
	msg.Reports = reports
	return msg
}

// statusCounts tallies reports by status.
func statusCounts(reports []models.Report) map[models.Status]int {
	counts := make(map[models.Status]int, 3)
	for _, r := range reports {
		counts[r.Status]++
	}
	return counts
}
