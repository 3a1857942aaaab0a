package output

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/bermanqa/qlog/internal/models"
)

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{3 * time.Minute, "3 minutes ago"},
		{2 * time.Hour, "2 hours ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{10 * 24 * time.Hour, "2025-02-28"},
	}
	for _, tc := range tests {
		if got := FormatTimeAgo(now.Add(-tc.ago), now); got != tc.want {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	for _, s := range models.AllStatuses() {
		got := ansi.Strip(FormatStatus(s))
		if got != "["+string(s)+"]" {
			t.Errorf("FormatStatus(%q) = %q", s, got)
		}
	}
	if got := FormatStatus("weird"); got != "weird" {
		t.Errorf("unknown status should pass through, got %q", got)
	}
}

func TestFormatUrgency(t *testing.T) {
	if FormatUrgency("") != "" {
		t.Error("empty urgency should render empty")
	}
	if got := ansi.Strip(FormatUrgency(models.UrgencyCritical)); got != "CRITICAL" {
		t.Errorf("FormatUrgency(critical) = %q", got)
	}
}

func TestFormatReportShort(t *testing.T) {
	created := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	r := models.Report{
		ID:          models.NewReportID(created),
		ProductName: "Challah",
		Description: "crust\n  burnt   on top",
		Status:      models.StatusSubmitted,
		Analysis:    &models.Analysis{Urgency: models.UrgencyHigh},
	}
	line := ansi.Strip(FormatReportShort(r, created.Add(time.Hour), 0))
	for _, want := range []string{r.ID, "1 hour ago", "HIGH", "[submitted]", "Challah", "crust burnt on top"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\n") {
		t.Error("short format should be a single line")
	}

	narrow := FormatReportShort(r, created.Add(time.Hour), 20)
	if w := ansi.StringWidth(narrow); w > 20 {
		t.Errorf("truncated width = %d, want <= 20", w)
	}
}

func TestReportMarkdown(t *testing.T) {
	r := models.Report{
		ID:             "1700000000000",
		ProductName:    "Rye",
		ProductCode:    "R-1",
		CustomerNumber: "C-9",
		Description:    "too salty",
		Status:         models.StatusDone,
		Image:          "data:image/png;base64,AA",
		Analysis: &models.Analysis{
			Category:       "taste",
			Urgency:        models.UrgencyLow,
			Summary:        "Salt overdose",
			VisualFindings: "none",
		},
	}
	md := ReportMarkdown(r, time.UnixMilli(1700000000000).Add(time.Minute))
	for _, want := range []string{"# Rye", "`1700000000000`", "**Status:** done", "R-1", "C-9", "Photo:** attached", "too salty", "## Analysis", "taste", "Salt overdose", "> none"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	bare := ReportMarkdown(models.Report{ID: "x"}, time.Now())
	if !strings.Contains(bare, "(no product)") || !strings.Contains(bare, "_none_") || strings.Contains(bare, "Analysis") {
		t.Errorf("bare report markdown:\n%s", bare)
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	out, err := RenderMarkdownWithWidth("  \n", 40)
	if err != nil || out != "" {
		t.Fatalf("RenderMarkdownWithWidth(blank) = %q, %v", out, err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdownWithWidth("# Title\n\nbody text", 40)
	if err != nil {
		t.Fatalf("RenderMarkdownWithWidth: %v", err)
	}
	if !strings.Contains(ansi.Strip(out), "body text") {
		t.Errorf("rendered output missing body: %q", out)
	}
}

func TestTerminalWidthFallsBackToColumns(t *testing.T) {
	t.Setenv("COLUMNS", "97")
	// stdout is not a terminal under go test
	if got := TerminalWidth(80); got != 97 && got <= 0 {
		t.Errorf("TerminalWidth = %d", got)
	}
}
