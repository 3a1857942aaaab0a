package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/tui/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI dashboard of sync state and complaints",
	Long: `Launch a live-updating TUI showing the sync state of this device and the
local complaints, newest first. The monitor runs its own sync orchestrator, so
it also syncs in the background while open.

Key bindings:
  s      Sync now
  i      Edit sync id (empty clears)
  j/k    Move selection
  g/G    First / last report
  r      Force refresh
  ?      Toggle help
  q      Quit`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		orch, _, err := a.orchestrator()
		if err != nil {
			return err
		}
		defer orch.Close()

		events, cancel := orch.Subscribe(32)
		defer cancel()

		refresh, _ := cmd.Flags().GetDuration("refresh")
		if refresh < 500*time.Millisecond {
			refresh = 2 * time.Second
		}

		model := monitor.NewModel(monitor.Deps{
			Syncer: orch,
			Events: events,
			Load:   a.store.Load,
			SetIdentifier: func(id string) error {
				_, err := a.identity.Set(id)
				return err
			},
		}, refresh)

		if !a.identity.LocalOnly() {
			_ = orch.SyncNow()
		}

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("refresh", 2*time.Second, "local refresh interval")
}
