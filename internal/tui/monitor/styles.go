package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bermanqa/qlog/internal/models"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")
	infoColor    = lipgloss.Color("45")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	selectedStyle  = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(infoColor)
	errorTextStyle = lipgloss.NewStyle().Foreground(errorColor)
	syncingStyle   = lipgloss.NewStyle().Foreground(infoColor)

	stateStyles = map[qsync.State]lipgloss.Style{
		qsync.StateIdle:    lipgloss.NewStyle().Foreground(mutedColor),
		qsync.StateSyncing: syncingStyle,
		qsync.StateSuccess: lipgloss.NewStyle().Foreground(successColor),
		qsync.StateError:   lipgloss.NewStyle().Foreground(errorColor).Bold(true),
	}

	statusStyles = map[models.Status]lipgloss.Style{
		models.StatusSubmitted:  lipgloss.NewStyle().Foreground(infoColor),
		models.StatusInProgress: lipgloss.NewStyle().Foreground(warningColor),
		models.StatusDone:       lipgloss.NewStyle().Foreground(mutedColor),
	}

	urgencyStyles = map[models.Urgency]lipgloss.Style{
		models.UrgencyLow:      lipgloss.NewStyle().Foreground(successColor),
		models.UrgencyMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		models.UrgencyHigh:     lipgloss.NewStyle().Foreground(warningColor),
		models.UrgencyCritical: lipgloss.NewStyle().Foreground(errorColor).Bold(true),
	}
)

func formatState(s qsync.State) string {
	style, ok := stateStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// formatStatus renders a status with color
func formatStatus(s models.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// formatUrgency renders a short urgency badge; blank when unclassified.
func formatUrgency(a *models.Analysis) string {
	if a == nil {
		return subtleStyle.Render("  -  ")
	}
	label := map[models.Urgency]string{
		models.UrgencyLow:      "LOW  ",
		models.UrgencyMedium:   "MED  ",
		models.UrgencyHigh:     "HIGH ",
		models.UrgencyCritical: "CRIT ",
	}[a.Urgency]
	if label == "" {
		label = "  ?  "
	}
	style, ok := urgencyStyles[a.Urgency]
	if !ok {
		return label
	}
	return style.Render(label)
}
