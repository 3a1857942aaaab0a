package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/exchange"
	"github.com/bermanqa/qlog/internal/merge"
	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/output"
)

// defaultExportName names the file written when -o points at a directory.
func defaultExportName(f exchange.Format, now time.Time) string {
	return "qlog-reports-" + now.Format("2006-01-02") + f.Extension()
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all complaints to a file",
	Long: `Write the whole collection to a file or stdout.

JSON output can be imported back with 'qlog import'. CSV is meant for
spreadsheets and carries a UTF-8 byte order mark.`,
	Example: `  qlog export > backup.json
  qlog export --format csv -o complaints.csv`,
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		format, err := exchange.ParseFormat(formatStr)
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		reports := a.store.Load()
		merge.Sort(reports)

		path, _ := cmd.Flags().GetString("output")
		if path == "" || path == "-" {
			return exchange.Export(os.Stdout, reports, format)
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, defaultExportName(format, time.Now()))
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		if err := exchange.Export(f, reports, format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write export file: %w", err)
		}
		output.Success("Exported %d report(s) to %s", len(reports), path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace all complaints with a JSON export",
	Long: `Replace the local collection with the reports in a JSON export.

The file's top level must be an array; anything else is rejected and the
collection is left unchanged. Use "-" to read stdin.`,
	Args:    cobra.ExactArgs(1),
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import file: %w", err)
			}
			defer f.Close()
			in = f
		}

		reports, err := exchange.Import(in)
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var before int
		if _, err := a.store.Update(func(current []models.Report) []models.Report {
			before = len(current)
			return reports
		}); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		output.Success("Imported %d report(s), replacing %d", len(reports), before)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringP("format", "f", "json", "json, csv or yaml")
	exportCmd.Flags().StringP("output", "o", "", "output file or directory (default stdout)")
}
