package cmd

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/output"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

// autoSyncTimeout bounds the post-mutation cycle so commands stay snappy offline.
const autoSyncTimeout = 5 * time.Second

// mutatingCommands lists commands that modify local data and should trigger auto-sync.
var mutatingCommands = map[string]bool{
	"add":         true,
	"delete":      true,
	"mark":        true,
	"import":      true,
	"sync-id set": true,
}

// commandName is the command path below the root, e.g. "sync-id set".
func commandName(cmd *cobra.Command) string {
	return strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
}

// isMutatingCommand checks if the given command name triggers auto-sync.
func isMutatingCommand(name string) bool {
	return mutatingCommands[name]
}

// autoSyncAfterMutation runs one sync cycle after a mutating command completes.
// Runs synchronously but with a short timeout. Failures are reported as a
// warning, never returned: the local write already succeeded.
func autoSyncAfterMutation(cmd *cobra.Command) {
	a, err := openApp(cmd)
	if err != nil {
		slog.Debug("autosync: open", "err", err)
		return
	}
	defer a.Close()

	if !a.cfg.Sync.Auto || a.identity.LocalOnly() {
		return
	}

	orch, _, err := a.orchestrator()
	if err != nil {
		slog.Debug("autosync: setup", "err", err)
		return
	}
	defer orch.Close()

	if err := runCycle(orch, autoSyncTimeout); err != nil {
		output.Warning("sync: %v (changes are saved locally)", err)
	}
}

// runCycle starts a cycle and waits for it, returning the cycle's error.
func runCycle(orch *qsync.Orchestrator, timeout time.Duration) error {
	if err := orch.SyncNow(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := orch.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("timed out")
		}
		return err
	}
	st := orch.Status()
	if st.State == qsync.StateError {
		return st.LastError
	}
	return nil
}
