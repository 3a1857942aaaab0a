package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/output"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"view"},
	Short:   "Show one complaint in detail",
	Args:    cobra.ExactArgs(1),
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, ok := models.Find(a.store.Load(), args[0])
		if !ok {
			return fmt.Errorf("report %s not found", args[0])
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return output.JSON(r)
		}

		md := output.ReportMarkdown(r, time.Now())
		if raw, _ := cmd.Flags().GetBool("raw"); raw || !output.IsTerminal() {
			fmt.Print(md)
			return nil
		}
		rendered, err := output.RenderMarkdownWithWidth(md, output.TerminalWidth(100))
		if err != nil {
			fmt.Print(md)
			return nil
		}
		fmt.Print(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().Bool("json", false, "output JSON")
	showCmd.Flags().Bool("raw", false, "print markdown without rendering")
}
