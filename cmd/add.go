package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bermanqa/qlog/internal/classify"
	"github.com/bermanqa/qlog/internal/merge"
	"github.com/bermanqa/qlog/internal/models"
	"github.com/bermanqa/qlog/internal/output"
)

// displayDateLayout is how the capture date is shown to people.
const displayDateLayout = "02.01.2006, 15:04:05"

// classifyTimeout bounds the AI call so capture never hangs on it.
const classifyTimeout = 30 * time.Second

var (
	errProductRequired     = errors.New("product name is required")
	errDescriptionRequired = errors.New("description is required")
)

// captureInput is what a person enters for a new report.
type captureInput struct {
	ProductName    string
	ProductCode    string
	CustomerNumber string
	Description    string
	ReporterName   string
	ImagePath      string
}

func (in captureInput) validate() error {
	if strings.TrimSpace(in.ProductName) == "" {
		return errProductRequired
	}
	if strings.TrimSpace(in.Description) == "" {
		return errDescriptionRequired
	}
	return nil
}

// newReport builds a submitted report from in. The id and display date both
// come from now.
func newReport(in captureInput, image string, now time.Time) models.Report {
	code := strings.TrimSpace(in.ProductCode)
	if code == "" {
		code = models.DefaultProductCode
	}
	return models.Report{
		ID:             models.NewReportID(now),
		ProductName:    strings.TrimSpace(in.ProductName),
		ProductCode:    code,
		CustomerNumber: strings.TrimSpace(in.CustomerNumber),
		Description:    strings.TrimSpace(in.Description),
		Date:           now.Format(displayDateLayout),
		Image:          image,
		Status:         models.StatusSubmitted,
		ReporterName:   strings.TrimSpace(in.ReporterName),
	}
}

// insertReport adds r to reports in newest-first order and returns the id it
// was stored under. An id already taken locally is moved forward one
// millisecond at a time until it is free.
func insertReport(reports []models.Report, r models.Report) ([]models.Report, string) {
	if ms, err := strconv.ParseInt(r.ID, 10, 64); err == nil {
		for {
			if _, taken := models.Find(reports, r.ID); !taken {
				break
			}
			ms++
			r.ID = strconv.FormatInt(ms, 10)
		}
	}
	out := make([]models.Report, 0, len(reports)+1)
	out = append(out, reports...)
	out = append(out, r)
	merge.Sort(out)
	return out, r.ID
}

// readImage loads path as a data URL. Empty path yields no image.
func readImage(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mediaType)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// runCaptureForm asks for the report fields interactively, keeping values
// already given by flags as defaults.
func runCaptureForm(in *captureInput) error {
	required := func(err error) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return err
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Product").
				Value(&in.ProductName).
				Placeholder("Sourdough loaf 750g").
				Validate(required(errProductRequired)),
			huh.NewInput().
				Title("Product code").
				Value(&in.ProductCode).
				Placeholder(models.DefaultProductCode),
			huh.NewInput().
				Title("Customer number").
				Value(&in.CustomerNumber),
			huh.NewText().
				Title("Description").
				Value(&in.Description).
				Placeholder("What is wrong with the product?").
				Lines(4).
				Validate(required(errDescriptionRequired)),
		).Title("New complaint"),
		huh.NewGroup(
			huh.NewInput().
				Title("Reporter").
				Value(&in.ReporterName),
			huh.NewInput().
				Title("Photo").
				Description("Path to a JPEG or PNG, optional").
				Value(&in.ImagePath),
		),
	)
	form.WithTheme(huh.ThemeDracula())
	return form.Run()
}

var addCmd = &cobra.Command{
	Use:     "add",
	Aliases: []string{"new"},
	Short:   "Capture a new complaint",
	Long: `Capture a new complaint. Without --product and --description an interactive
form is shown when running in a terminal.

The complaint is classified by the AI assistant when it is configured. If
classification fails the complaint is still saved, just without an analysis.`,
	Example: `  qlog add
  qlog add --product "Rye bread" --description "mold on the crust" --image crust.jpg`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in captureInput
		in.ProductName, _ = cmd.Flags().GetString("product")
		in.ProductCode, _ = cmd.Flags().GetString("code")
		in.CustomerNumber, _ = cmd.Flags().GetString("customer")
		in.Description, _ = cmd.Flags().GetString("description")
		in.ReporterName, _ = cmd.Flags().GetString("reporter")
		in.ImagePath, _ = cmd.Flags().GetString("image")
		skipAI, _ := cmd.Flags().GetBool("no-ai")

		if in.validate() != nil && output.IsTerminal() {
			if err := runCaptureForm(&in); err != nil {
				return err
			}
		}
		if err := in.validate(); err != nil {
			return err
		}

		image, err := readImage(strings.TrimSpace(in.ImagePath))
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		report := newReport(in, image, time.Now())
		if !skipAI {
			report.Analysis = classifyReport(cmd.Context(), a, report)
		}

		if _, err := a.store.Update(func(reports []models.Report) []models.Report {
			var out []models.Report
			out, report.ID = insertReport(reports, report)
			return out
		}); err != nil {
			return fmt.Errorf("save report: %w", err)
		}

		output.Success("Saved report %s", report.ID)
		if report.Analysis != nil {
			fmt.Printf("  %s %s: %s\n", output.FormatUrgency(report.Analysis.Urgency), report.Analysis.Category, report.Analysis.Summary)
		}
		return nil
	},
}

// classifyReport returns the analysis for r, or nil with a warning when the
// classifier is unavailable or fails.
func classifyReport(ctx context.Context, a *app, r models.Report) *models.Analysis {
	classifier, err := classify.New(a.cfg.AI)
	if err != nil {
		output.Warning("AI classification unavailable: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	analysis, err := classifier.Classify(ctx, classify.Input{
		Description: r.Description,
		ProductName: r.ProductName,
		Image:       r.Image,
	})
	switch {
	case errors.Is(err, classify.ErrDisabled):
		return nil
	case err != nil:
		output.Warning("AI classification failed, saving without analysis: %v", err)
		return nil
	}
	return analysis
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringP("product", "p", "", "product name")
	addCmd.Flags().String("code", "", "product code (default N/A)")
	addCmd.Flags().String("customer", "", "customer number")
	addCmd.Flags().StringP("description", "d", "", "what is wrong")
	addCmd.Flags().StringP("reporter", "r", "", "reporter name")
	addCmd.Flags().StringP("image", "i", "", "photo of the product (JPEG or PNG)")
	addCmd.Flags().Bool("no-ai", false, "skip AI classification")
}
