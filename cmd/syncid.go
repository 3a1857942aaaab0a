package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/identity"
	"github.com/bermanqa/qlog/internal/output"
)

var syncIDCmd = &cobra.Command{
	Use:   "sync-id",
	Short: "Show or change the sync id shared by your devices",
	Long: `Devices that use the same sync id share one collection of complaints.
Ids are trimmed and upper-cased and must be at least 3 characters long.
Without a sync id this device works local-only.`,
	Args:    cobra.NoArgs,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if id := a.identity.Current(); id != "" {
			fmt.Println(id)
			return nil
		}
		fmt.Println(output.Subtle("(not set, local only)"))
		return nil
	},
}

var syncIDSetCmd = &cobra.Command{
	Use:     "set <id>",
	Short:   "Join a sync group",
	Example: "  qlog sync-id set bakery-north",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.identity.Set(args[0])
		if errors.Is(err, identity.ErrTooShort) {
			return fmt.Errorf("sync id must be at least %d characters", identity.MinLength)
		}
		if err != nil {
			return err
		}
		if id == "" {
			output.Success("Sync id cleared, working local-only")
			return nil
		}
		output.Success("Sync id set to %s", id)
		return nil
	},
}

var syncIDClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Leave the sync group and work local-only",
	Long: `Clear the sync id. Local complaints are kept and nothing is deleted from
the remote copy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.identity.Clear(); err != nil {
			return err
		}
		output.Success("Sync id cleared, working local-only")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncIDCmd)
	syncIDCmd.AddCommand(syncIDSetCmd)
	syncIDCmd.AddCommand(syncIDClearCmd)
}
