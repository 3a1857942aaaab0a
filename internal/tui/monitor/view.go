package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/output"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	status := m.renderStatusPanel()
	listHeight := m.Height - lipgloss.Height(status) - 2
	reports := m.renderReportsPanel(listHeight)

	return lipgloss.JoinVertical(lipgloss.Left, status, reports, m.renderFooter())
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("qlog monitor (resize for full view)\n\n")
	fmt.Fprintf(&s, "Sync: %s %s\n", m.stateLabel(), m.identifierLabel())
	fmt.Fprintf(&s, "Reports: %d\n", len(m.Reports))
	s.WriteString("\nq:quit s:sync ?:help")
	return s.String()
}

func (m Model) stateLabel() string {
	label := formatState(m.Status.State)
	if m.Status.State == qsync.StateSyncing {
		label = m.spinner.View() + " " + label
	}
	return label
}

func (m Model) identifierLabel() string {
	if m.Status.Identifier == "" {
		return subtleStyle.Render("(local only)")
	}
	return titleStyle.Render(m.Status.Identifier)
}

func (m Model) renderStatusPanel() string {
	var lines []string
	lines = append(lines, panelTitleStyle.Render("SYNC"))
	lines = append(lines, fmt.Sprintf("state: %s   id: %s", m.stateLabel(), m.identifierLabel()))

	last := "never"
	if !m.Status.LastSuccess.IsZero() {
		last = output.FormatTimeAgo(m.Status.LastSuccess, m.deps.Now())
	}
	lines = append(lines, subtleStyle.Render("last success: "+last))

	if m.Err != nil {
		lines = append(lines, errorTextStyle.Render(ansi.Truncate("error: "+m.Err.Error(), m.Width-6, "…")))
	}
	if m.Editing {
		lines = append(lines, m.input.View())
	} else if m.Notice != "" {
		lines = append(lines, noticeStyle.Render(m.Notice))
	}

	return panelStyle.Width(m.Width - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderReportsPanel(height int) string {
	counts := statusCounts(m.Reports)
	title := fmt.Sprintf("REPORTS (%d)  %d submitted · %d in progress · %d done",
		len(m.Reports), counts[models.StatusSubmitted], counts[models.StatusInProgress], counts[models.StatusDone])

	var lines []string
	lines = append(lines, panelTitleStyle.Render(title))

	rows := max(height-3, 1)
	if len(m.Reports) == 0 {
		lines = append(lines, subtleStyle.Render("No reports yet"))
	} else {
		start := 0
		if m.Selected >= rows {
			start = m.Selected - rows + 1
		}
		end := min(start+rows, len(m.Reports))
		for i := start; i < end; i++ {
			lines = append(lines, m.renderReportRow(m.Reports[i], i == m.Selected))
		}
	}

	return panelStyle.Width(m.Width - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderReportRow(r models.Report, selected bool) string {
	cursor := "  "
	if selected {
		cursor = selectedStyle.Render("> ")
	}
	when := ""
	if t, ok := r.CreatedAt(); ok {
		when = output.FormatTimeAgo(t, m.deps.Now())
	}
	row := fmt.Sprintf("%s%s %-12s %-11s %s  %s",
		cursor,
		formatUrgency(r.Analysis),
		subtleStyle.Render(when),
		formatStatus(r.Status),
		titleStyle.Render(r.ProductName),
		output.OneLine(r.Description),
	)
	return ansi.Truncate(row, m.Width-6, "…")
}

func (m Model) renderFooter() string {
	refreshed := ""
	if !m.LastRefresh.IsZero() {
		refreshed = " | refreshed " + m.LastRefresh.Format("15:04:05")
	}
	return helpStyle.Render("q:quit s:sync i:sync id j/k:move r:refresh ?:help" + refreshed)
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	help := `
qlog monitor

  s        Sync now
  i        Edit sync id (enter saves, esc cancels, empty clears)
  j / k    Move selection
  g / G    First / last report
  r        Reload local reports
  ?        Toggle help
  q        Quit
`
	return panelStyle.Width(m.Width - 2).Render(help)
}
