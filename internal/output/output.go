// Package output provides styled terminal output helpers (success, error,
// warning, report formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/bermanqa/qlog/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[models.Status]lipgloss.Style{
		models.StatusSubmitted:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	urgencyStyles = map[models.Urgency]lipgloss.Style{
		models.UrgencyLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.UrgencyMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		models.UrgencyHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		models.UrgencyCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	syncStyles = map[string]lipgloss.Style{
		"idle":    subtleStyle,
		"syncing": lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"success": successStyle,
		"error":   errorStyle,
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatStatus formats a status with color
func FormatStatus(s models.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatUrgency formats an urgency with color; empty when unclassified.
func FormatUrgency(u models.Urgency) string {
	if u == "" {
		return ""
	}
	style, ok := urgencyStyles[u]
	if !ok {
		return string(u)
	}
	return style.Render(strings.ToUpper(string(u)))
}

// FormatSyncState colors a sync state name.
func FormatSyncState(state string) string {
	style, ok := syncStyles[state]
	if !ok {
		return state
	}
	return style.Render(state)
}

// FormatReportShort formats a report on one line, truncated to width
// (no truncation when width <= 0).
func FormatReportShort(r models.Report, now time.Time, width int) string {
	parts := []string{titleStyle.Render(r.ID)}
	if created, ok := r.CreatedAt(); ok {
		parts = append(parts, subtleStyle.Render(FormatTimeAgo(created, now)))
	}
	if r.Analysis != nil {
		parts = append(parts, FormatUrgency(r.Analysis.Urgency))
	}
	parts = append(parts, FormatStatus(r.Status), r.ProductName)
	if d := OneLine(r.Description); d != "" {
		parts = append(parts, subtleStyle.Render(d))
	}

	line := strings.Join(parts, "  ")
	if width > 0 {
		line = ansi.Truncate(line, width, "…")
	}
	return line
}

// ReportMarkdown renders a report as markdown for the detail view.
func ReportMarkdown(r models.Report, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", fallback(r.ProductName, "(no product)"))

	fmt.Fprintf(&b, "- **ID:** `%s`\n", r.ID)
	if created, ok := r.CreatedAt(); ok {
		fmt.Fprintf(&b, "- **Reported:** %s (%s)\n", created.Local().Format("2006-01-02 15:04"), FormatTimeAgo(created, now))
	} else if r.Date != "" {
		fmt.Fprintf(&b, "- **Reported:** %s\n", r.Date)
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", r.Status)
	if r.ProductCode != "" {
		fmt.Fprintf(&b, "- **Product code:** %s\n", r.ProductCode)
	}
	if r.CustomerNumber != "" {
		fmt.Fprintf(&b, "- **Customer:** %s\n", r.CustomerNumber)
	}
	if r.ReporterName != "" {
		fmt.Fprintf(&b, "- **Reporter:** %s\n", r.ReporterName)
	}
	if r.Image != "" {
		b.WriteString("- **Photo:** attached\n")
	}

	fmt.Fprintf(&b, "\n## Description\n\n%s\n", fallback(r.Description, "_none_"))

	if a := r.Analysis; a != nil {
		b.WriteString("\n## Analysis\n\n")
		fmt.Fprintf(&b, "- **Category:** %s\n", a.Category)
		fmt.Fprintf(&b, "- **Urgency:** %s\n", a.Urgency)
		if a.Summary != "" {
			fmt.Fprintf(&b, "\n%s\n", a.Summary)
		}
		if a.VisualFindings != "" {
			fmt.Fprintf(&b, "\n> %s\n", a.VisualFindings)
		}
	}
	return b.String()
}

// FormatTimeAgo returns a relative time like "3 minutes ago"; older than a
// week falls back to the date.
func FormatTimeAgo(t, now time.Time) string {
	if now.Sub(t) >= 7*24*time.Hour {
		return t.Format("2006-01-02")
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// OneLine collapses whitespace so free text fits on a single line.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SectionHeader renders a bold section title
func SectionHeader(title string) string {
	return titleStyle.Render(title)
}

// Subtle renders de-emphasized text
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
