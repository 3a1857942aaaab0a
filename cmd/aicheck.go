package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/classify"
	"github.com/bermanqa/qlog/internal/output"
)

// aiCheckInput is a harmless complaint the classifier should always handle.
var aiCheckInput = classify.Input{
	ProductName: "Test loaf",
	Description: "Connectivity check: the crust is slightly darker than usual.",
}

var aiCheckCmd = &cobra.Command{
	Use:     "ai-check",
	Short:   "Check that AI classification works",
	Args:    cobra.NoArgs,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		classifier, err := classify.New(cfg.AI)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
		defer cancel()

		analysis, err := classifier.Classify(ctx, aiCheckInput)
		if errors.Is(err, classify.ErrDisabled) {
			output.Warning("AI classification is disabled (ai.enabled = false)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("AI check failed: %w", err)
		}

		output.Success("AI classification works (model %s)", cfg.AI.Model)
		fmt.Printf("  %s %s: %s\n", output.FormatUrgency(analysis.Urgency), analysis.Category, analysis.Summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aiCheckCmd)
}
