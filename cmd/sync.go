package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/output"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

const (
	manualSyncTimeout = 30 * time.Second
	healthTimeout     = 5 * time.Second
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync with the other devices now",
	Long: `Fetch the shared collection, merge it with this device's complaints, push the
merge back and save it locally. With --status only report the sync state.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if status, _ := cmd.Flags().GetBool("status"); status {
			return printSyncStatus(cmd.Context(), a)
		}

		orch, _, err := a.orchestrator()
		if err != nil {
			return err
		}
		defer orch.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		before := len(a.store.Load())
		if err := runCycle(orch, timeout); err != nil {
			if errors.Is(err, qsync.ErrLocalOnly) {
				return fmt.Errorf("no sync id set; run 'qlog sync-id set <id>' first")
			}
			return fmt.Errorf("sync failed: %w", err)
		}
		after := len(a.store.Load())
		output.Success("Synced %s: %d report(s)%s", orch.Identifier(), after, countDelta(before, after))
		return nil
	},
}

func countDelta(before, after int) string {
	if after > before {
		return fmt.Sprintf(", %d new from other devices", after-before)
	}
	return ""
}

func printSyncStatus(ctx context.Context, a *app) error {
	id := a.identity.Current()
	if id == "" {
		fmt.Printf("sync id:    %s\n", output.Subtle("(not set, local only)"))
	} else {
		fmt.Printf("sync id:    %s\n", id)
	}

	last := "never"
	if t, ok := a.store.LastSyncAt(); ok {
		last = output.FormatTimeAgo(t, time.Now())
	}
	fmt.Printf("last sync:  %s\n", last)

	if deviceID, err := a.store.DeviceID(); err == nil {
		fmt.Printf("device:     %s\n", deviceID)
	}
	fmt.Printf("remote:     %s/%s\n", a.cfg.Remote.URL, a.cfg.Remote.Bucket)
	fmt.Printf("auto sync:  %t\n", a.cfg.Sync.Auto)

	client, err := a.remoteClient()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		fmt.Printf("server:     %s\n", output.FormatSyncState("error"))
		output.Warning("%v", err)
		return nil
	}
	fmt.Printf("server:     %s\n", output.FormatSyncState("success"))
	return nil
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("status", false, "show sync state without syncing")
	syncCmd.Flags().Duration("timeout", manualSyncTimeout, "give up after this long")
}
