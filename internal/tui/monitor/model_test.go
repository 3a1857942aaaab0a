package monitor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/bermanqa/qlog/internal/identity"
	"github.com/bermanqa/qlog/internal/models"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

type fakeSyncer struct {
	status   qsync.Snapshot
	triggers []qsync.Reason
}

func (f *fakeSyncer) Status() qsync.Snapshot       { return f.status }
func (f *fakeSyncer) Trigger(reason qsync.Reason) { f.triggers = append(f.triggers, reason) }

func sampleReports(n int) []models.Report {
	out := make([]models.Report, n)
	for i := range out {
		out[i] = models.Report{
			ID:          fmt.Sprint(1700000000000 + int64(i)),
			ProductName: fmt.Sprintf("Product %d", i),
			Description: "crumb issue",
			Status:      models.StatusSubmitted,
		}
	}
	return out
}

func newTestModel(t *testing.T, deps Deps) (Model, *fakeSyncer) {
	t.Helper()
	syncer := &fakeSyncer{status: qsync.Snapshot{State: qsync.StateIdle, Identifier: "BAKERY"}}
	if deps.Syncer == nil {
		deps.Syncer = syncer
	}
	deps.Now = func() time.Time { return testNow }
	m := NewModel(deps, time.Second)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model), syncer
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelReadsStatus(t *testing.T) {
	m, _ := newTestModel(t, Deps{})
	if m.Status.Identifier != "BAKERY" {
		t.Errorf("Status = %+v", m.Status)
	}
}

func TestFetchDataSortsNewestFirst(t *testing.T) {
	load := func() []models.Report { return sampleReports(3) }
	msg := FetchData(load, testNow)
	if len(msg.Reports) != 3 || msg.Reports[0].ID != "1700000000002" {
		t.Fatalf("reports = %v", msg.Reports)
	}
	if !msg.Timestamp.Equal(testNow) {
		t.Errorf("Timestamp = %v", msg.Timestamp)
	}
	if empty := FetchData(nil, testNow); empty.Reports != nil {
		t.Errorf("nil loader should give no reports")
	}
}

func TestRefreshAndNavigation(t *testing.T) {
	m, _ := newTestModel(t, Deps{})
	updated, _ := m.Update(RefreshDataMsg{Reports: sampleReports(3), Timestamp: testNow})
	m = updated.(Model)

	for _, k := range []string{"j", "j", "j"} {
		updated, _ = m.Update(key(k))
		m = updated.(Model)
	}
	if m.Selected != 2 {
		t.Errorf("Selected after 3x j = %d, want 2 (clamped)", m.Selected)
	}
	updated, _ = m.Update(key("k"))
	m = updated.(Model)
	if m.Selected != 1 {
		t.Errorf("Selected after k = %d", m.Selected)
	}

	// Shrinking the collection clamps the selection.
	updated, _ = m.Update(RefreshDataMsg{Reports: sampleReports(1)})
	m = updated.(Model)
	if m.Selected != 0 {
		t.Errorf("Selected after shrink = %d", m.Selected)
	}
}

func TestSyncKeyTriggersManual(t *testing.T) {
	m, syncer := newTestModel(t, Deps{})
	updated, _ := m.Update(key("s"))
	m = updated.(Model)
	if len(syncer.triggers) != 1 || syncer.triggers[0] != qsync.ReasonManual {
		t.Fatalf("triggers = %v", syncer.triggers)
	}
	if m.Notice == "" {
		t.Error("expected a notice")
	}
}

func TestEventUpdatesStatusAndCollection(t *testing.T) {
	events := make(chan qsync.Event, 1)
	m, _ := newTestModel(t, Deps{Events: events})

	boom := errors.New("remote down")
	updated, cmd := m.Update(EventMsg{Kind: qsync.StatusChanged, Status: qsync.Snapshot{State: qsync.StateError, Identifier: "BAKERY", LastError: boom}})
	m = updated.(Model)
	if m.Status.State != qsync.StateError || m.Err != boom {
		t.Fatalf("after error event: %+v err=%v", m.Status, m.Err)
	}
	if cmd == nil {
		t.Fatal("expected a command waiting for the next event")
	}

	// The returned command reads the next event from the channel.
	next := qsync.Event{Kind: qsync.CollectionChanged, Status: qsync.Snapshot{State: qsync.StateSuccess}, Reports: sampleReports(2)}
	events <- next
	msg := cmd()
	ev, ok := msg.(EventMsg)
	if !ok {
		t.Fatalf("cmd returned %T", msg)
	}
	updated, _ = m.Update(ev)
	m = updated.(Model)
	if len(m.Reports) != 2 || m.Err != nil {
		t.Errorf("after collection event: reports=%d err=%v", len(m.Reports), m.Err)
	}

	close(events)
	if _, ok := cmd().(eventsClosedMsg); !ok {
		t.Error("closed channel should yield eventsClosedMsg")
	}
}

func TestEditIdentifier(t *testing.T) {
	var got []string
	setID := func(id string) error {
		if err := identity.Validate(identity.Normalize(id)); err != nil {
			return err
		}
		got = append(got, id)
		return nil
	}
	m, _ := newTestModel(t, Deps{SetIdentifier: setID})

	updated, _ := m.Update(key("i"))
	m = updated.(Model)
	if !m.Editing {
		t.Fatal("i should open the editor")
	}
	if m.input.Value() != "BAKERY" {
		t.Errorf("editor prefilled with %q", m.input.Value())
	}

	m.input.SetValue("ab")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if m.Editing || len(got) != 0 {
		t.Fatalf("short id should be rejected, got %v", got)
	}
	if !strings.Contains(m.Notice, "at least 3") {
		t.Errorf("Notice = %q", m.Notice)
	}

	updated, _ = m.Update(key("i"))
	m = updated.(Model)
	m.input.SetValue(" shop7 ")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if len(got) != 1 || m.Notice != "sync id set to SHOP7" {
		t.Errorf("got=%v notice=%q", got, m.Notice)
	}

	updated, _ = m.Update(key("i"))
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	if m.Editing || len(got) != 1 {
		t.Error("esc should cancel without saving")
	}
}

func TestKeysIgnoredWhileEditing(t *testing.T) {
	m, syncer := newTestModel(t, Deps{SetIdentifier: func(string) error { return nil }})
	updated, _ := m.Update(key("i"))
	m = updated.(Model)
	updated, _ = m.Update(key("s"))
	m = updated.(Model)
	if len(syncer.triggers) != 0 {
		t.Error("s typed into the editor should not trigger a sync")
	}
	if !strings.HasSuffix(m.input.Value(), "s") {
		t.Errorf("input = %q", m.input.Value())
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t, Deps{})
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestView(t *testing.T) {
	m, _ := newTestModel(t, Deps{})
	reports := sampleReports(2)
	reports[0].Analysis = &models.Analysis{Urgency: models.UrgencyCritical}
	updated, _ := m.Update(RefreshDataMsg{Reports: reports, Timestamp: testNow})
	m = updated.(Model)

	view := ansi.Strip(m.View())
	for _, want := range []string{"SYNC", "BAKERY", "REPORTS (2)", "Product 0", "CRIT", "q:quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	updated, _ = m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	if v := updated.(Model).View(); !strings.Contains(v, "resize for full view") {
		t.Errorf("compact view = %q", v)
	}

	updated, _ = m.Update(key("?"))
	if v := ansi.Strip(updated.(Model).View()); !strings.Contains(v, "Edit sync id") {
		t.Error("help view missing")
	}
}

func TestViewLocalOnly(t *testing.T) {
	m, _ := newTestModel(t, Deps{Syncer: &fakeSyncer{}})
	if v := ansi.Strip(m.View()); !strings.Contains(v, "local only") {
		t.Errorf("view should show local only:\n%s", v)
	}
}
