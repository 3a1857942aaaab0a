// Package exchange writes the report collection to standalone files and reads
// it back. Import replaces the collection; it never merges.
package exchange

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bermanqa/qlog/internal/models"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// ErrNotArray is returned when an import document's top level is not a JSON array.
var ErrNotArray = errors.New("import document must be a JSON array of reports")

// utf8BOM makes spreadsheet apps detect UTF-8 (Hebrew product names).
const utf8BOM = "\uFEFF"

var csvHeader = []string{"ID", "Date", "Customer", "Product", "Description", "Status"}

// ParseFormat accepts json, csv, yaml or yml, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, csv or yaml)", s)
}

// Extension returns the usual file extension for f.
func (f Format) Extension() string {
	return "." + string(f)
}

// Export writes reports to w in the given format.
func Export(w io.Writer, reports []models.Report, f Format) error {
	if reports == nil {
		reports = []models.Report{}
	}
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(reports)
	case FormatCSV:
		return exportCSV(w, reports)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toYAML(reports)); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", f)
}

func exportCSV(w io.Writer, reports []models.Report) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range reports {
		row := []string{r.ID, r.Date, r.CustomerNumber, r.ProductName, r.Description, string(r.Status)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// yamlReport mirrors Report with yaml tags; images are left out of YAML
// exports since they are meant for reading.
type yamlReport struct {
	ID             string        `yaml:"id"`
	Date           string        `yaml:"date,omitempty"`
	ProductName    string        `yaml:"product"`
	ProductCode    string        `yaml:"product_code,omitempty"`
	CustomerNumber string        `yaml:"customer,omitempty"`
	ReporterName   string        `yaml:"reporter,omitempty"`
	Status         models.Status `yaml:"status"`
	Description    string        `yaml:"description"`
	HasImage       bool          `yaml:"has_image,omitempty"`
	Analysis       *yamlAnalysis `yaml:"analysis,omitempty"`
}

type yamlAnalysis struct {
	Category       string         `yaml:"category"`
	Urgency        models.Urgency `yaml:"urgency"`
	Summary        string         `yaml:"summary"`
	VisualFindings string         `yaml:"visual_findings,omitempty"`
}

func toYAML(reports []models.Report) []yamlReport {
	out := make([]yamlReport, len(reports))
	for i, r := range reports {
		out[i] = yamlReport{
			ID:             r.ID,
			Date:           r.Date,
			ProductName:    r.ProductName,
			ProductCode:    r.ProductCode,
			CustomerNumber: r.CustomerNumber,
			ReporterName:   r.ReporterName,
			Status:         r.Status,
			Description:    r.Description,
			HasImage:       r.Image != "",
		}
		if a := r.Analysis; a != nil {
			out[i].Analysis = &yamlAnalysis{
				Category:       a.Category,
				Urgency:        a.Urgency,
				Summary:        a.Summary,
				VisualFindings: a.VisualFindings,
			}
		}
	}
	return out
}

// Import parses a JSON document whose top level must be an array of reports.
// Anything else is rejected with ErrNotArray and nothing is returned.
func Import(r io.Reader) ([]models.Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte(utf8BOM)))
	if len(data) == 0 || data[0] != '[' {
		return nil, ErrNotArray
	}

	var reports []models.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("parse import: %w", err)
	}
	seen := make(map[string]int, len(reports))
	for i := range reports {
		if reports[i].ID == "" {
			return nil, fmt.Errorf("parse import: report %d has no id", i)
		}
		if j, ok := seen[reports[i].ID]; ok {
			return nil, fmt.Errorf("parse import: reports %d and %d share id %s", j, i, reports[i].ID)
		}
		seen[reports[i].ID] = i
		if reports[i].Status != "" {
			reports[i].Status = models.NormalizeStatus(string(reports[i].Status))
		}
	}
	return reports, nil
}
