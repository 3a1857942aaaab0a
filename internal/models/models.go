package models

import (
	"strconv"
	"strings"
	"time"
)

// Status represents report handling status
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Urgency represents the urgency assigned by classification
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// DefaultProductCode is stored when a report is captured without a product code
const DefaultProductCode = "N/A"

// Analysis is the structured result of an AI classification call.
type Analysis struct {
	Category       string  `json:"category"`
	Urgency        Urgency `json:"urgency"`
	Summary        string  `json:"summary"`
	VisualFindings string  `json:"visualFindings,omitempty"`
}

// Report is a single quality complaint, the unit of synchronization.
type Report struct {
	ID             string    `json:"id"`
	ProductName    string    `json:"productName"`
	ProductCode    string    `json:"productCode,omitempty"`
	CustomerNumber string    `json:"customerNumber,omitempty"`
	Description    string    `json:"description"`
	Date           string    `json:"date,omitempty"`
	Image          string    `json:"image,omitempty"`
	Status         Status    `json:"status"`
	ReporterName   string    `json:"reporterName,omitempty"`
	Analysis       *Analysis `json:"aiAnalysis,omitempty"`
}

// NewReportID returns an id derived from the creation time in Unix milliseconds.
func NewReportID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// CreatedAt decodes the creation time from the report id.
// Returns false when the id is not a millisecond timestamp.
func (r Report) CreatedAt() (time.Time, bool) {
	ms, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// IsValidStatus checks if a status string is valid
func IsValidStatus(s Status) bool {
	switch s {
	case StatusSubmitted, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// NormalizeStatus maps user input ("in_progress", "In Progress", "wip", Hebrew
// labels from older exports) to a Status.
func NormalizeStatus(s string) Status {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("_", "-", " ", "-").Replace(v)
	switch v {
	case "submitted", "new", "sent", "נשלח":
		return StatusSubmitted
	case "in-progress", "inprogress", "wip", "handling", "בטיפול":
		return StatusInProgress
	case "done", "closed", "resolved", "בוצע":
		return StatusDone
	}
	return Status(v)
}

// AllStatuses returns statuses in workflow order
func AllStatuses() []Status {
	return []Status{StatusSubmitted, StatusInProgress, StatusDone}
}

// IsValidUrgency checks if an urgency string is valid
func IsValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// NormalizeUrgency maps free-form model output to an Urgency.
// Unknown values map to medium.
func NormalizeUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "minor", "נמוכה":
		return UrgencyLow
	case "medium", "moderate", "normal", "בינונית":
		return UrgencyMedium
	case "high", "major", "urgent", "גבוהה":
		return UrgencyHigh
	case "critical", "severe", "blocker", "קריטית":
		return UrgencyCritical
	}
	return UrgencyMedium
}

// AllUrgencies returns urgencies from least to most urgent
func AllUrgencies() []Urgency {
	return []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}
}

// Find returns the report with the given id.
func Find(reports []Report, id string) (Report, bool) {
	for _, r := range reports {
		if r.ID == id {
			return r, true
		}
	}
	return Report{}, false
}
