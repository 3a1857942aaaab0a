package monitor

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bermanqa/qlog/internal/identity"
	"github.com/bermanqa/qlog/internal/models"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

// Syncer is the part of the orchestrator the monitor drives.
type Syncer interface {
	Status() qsync.Snapshot
	Trigger(reason qsync.Reason)
}

// Deps wires the monitor to the running sync stack.
type Deps struct {
	Syncer Syncer
	Events <-chan qsync.Event
	// Load reads the local collection; called on every refresh tick.
	Load func() []models.Report
	// SetIdentifier validates and stores a new sync id. An empty id clears it.
	SetIdentifier func(id string) error
	Now           func() time.Time
}

// Model is the main Bubble Tea model for the monitor TUI
type Model struct {
	deps Deps

	// Window dimensions
	Width  int
	Height int

	Reports []models.Report
	Status  qsync.Snapshot

	// UI state
	Selected    int
	Editing     bool
	ShowHelp    bool
	LastRefresh time.Time
	Notice      string
	Err         error

	spinner spinner.Model
	input   textinput.Model

	RefreshInterval time.Duration
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 12

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Reports   []models.Report
	Timestamp time.Time
}

// EventMsg wraps an orchestrator event.
type EventMsg qsync.Event

// eventsClosedMsg is sent once the event channel is closed.
type eventsClosedMsg struct{}

// NewModel creates a new monitor model
func NewModel(deps Deps, interval time.Duration) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = syncingStyle

	in := textinput.New()
	in.Placeholder = "sync id (empty clears)"
	in.CharLimit = 64
	in.Prompt = "sync id> "

	m := Model{
		deps:            deps,
		spinner:         sp,
		input:           in,
		RefreshInterval: interval,
	}
	if deps.Syncer != nil {
		m.Status = deps.Syncer.Status()
	}
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
		m.waitForEvent(),
		m.spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.setReports(msg.Reports)
		m.LastRefresh = msg.Timestamp
		return m, nil

	case EventMsg:
		m.Status = msg.Status
		if msg.Kind == qsync.CollectionChanged {
			m.setReports(msg.Reports)
		}
		if msg.Status.State == qsync.StateError && msg.Status.LastError != nil {
			m.Err = msg.Status.LastError
		} else if msg.Status.State == qsync.StateSuccess {
			m.Err = nil
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		if m.Selected < len(m.Reports)-1 {
			m.Selected++
		}
		return m, nil

	case "k", "up":
		if m.Selected > 0 {
			m.Selected--
		}
		return m, nil

	case "g", "home":
		m.Selected = 0
		return m, nil

	case "G", "end":
		m.Selected = max(len(m.Reports)-1, 0)
		return m, nil

	case "s":
		if m.deps.Syncer != nil {
			m.deps.Syncer.Trigger(qsync.ReasonManual)
			m.Notice = "sync requested"
		}
		return m, nil

	case "i":
		m.Editing = true
		m.input.SetValue(m.Status.Identifier)
		m.input.CursorEnd()
		return m, m.input.Focus()

	case "r":
		return m, m.fetchData()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Editing = false
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		m.Editing = false
		m.input.Blur()
		if m.deps.SetIdentifier == nil {
			return m, nil
		}
		id := m.input.Value()
		if err := m.deps.SetIdentifier(id); err != nil {
			if errors.Is(err, identity.ErrTooShort) {
				m.Notice = "sync id must be at least 3 characters"
			} else {
				m.Notice = "set sync id: " + err.Error()
			}
			return m, nil
		}
		if normalized := identity.Normalize(id); normalized == "" {
			m.Notice = "sync id cleared, local only"
		} else {
			m.Notice = "sync id set to " + normalized
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setReports(reports []models.Report) {
	m.Reports = reports
	if m.Selected >= len(reports) {
		m.Selected = max(len(reports)-1, 0)
	}
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	if m.RefreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that loads the local collection
func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		return FetchData(m.deps.Load, m.deps.Now())
	}
}

// waitForEvent blocks on the next orchestrator event.
func (m Model) waitForEvent() tea.Cmd {
	events := m.deps.Events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg(ev)
	}
}
