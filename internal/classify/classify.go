// Package classify asks a language model to categorize a complaint and rate
// its urgency. Callers treat every error as non-fatal: a report without an
// analysis is complete and syncs like any other.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bermanqa/qlog/internal/config"
	"github.com/bermanqa/qlog/internal/models"
)

var (
	// ErrDisabled is returned when classification is turned off in config.
	ErrDisabled = errors.New("classification disabled")
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("no API key configured (set ai.api_key or ANTHROPIC_API_KEY)")
	// ErrBadResponse is returned when the model reply is not the expected JSON.
	ErrBadResponse = errors.New("unexpected classifier response")
)

const maxTokens = 1024

// Input is what the classifier sees of a report.
type Input struct {
	Description string
	ProductName string
	// Image is a data URL or raw base64 JPEG; optional.
	Image string
}

// Classifier produces an analysis for a report.
type Classifier interface {
	Classify(ctx context.Context, in Input) (*models.Analysis, error)
}

// New returns the configured classifier. Disabled config yields a classifier
// that always fails with ErrDisabled.
func New(cfg config.AI, opts ...option.RequestOption) (Classifier, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}
	return NewAnthropic(cfg, opts...)
}

// Disabled never classifies.
type Disabled struct{}

// Classify always returns ErrDisabled.
func (Disabled) Classify(context.Context, Input) (*models.Analysis, error) {
	return nil, ErrDisabled
}

// Anthropic classifies through the Messages API.
type Anthropic struct {
	client   anthropic.Client
	model    string
	language string
}

// NewAnthropic builds a client from config. Extra options (base URL, HTTP
// client) are applied after the API key.
func NewAnthropic(cfg config.AI, opts ...option.RequestOption) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	language := cfg.Language
	if language == "" {
		language = "English"
	}
	all := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Anthropic{
		client:   anthropic.NewClient(all...),
		model:    cfg.Model,
		language: language,
	}, nil
}

const systemPrompt = `You are a food quality-control expert at an industrial bakery.
You receive internal complaint reports about baked products and classify them.
Reply with a single JSON object and nothing else, with these keys:
  "category": short defect category (for example "foreign object", "underbaked", "packaging", "mold", "shape"),
  "urgency": one of "low", "medium", "high", "critical",
  "summary": one or two sentences for the QA team,
  "visualFindings": what the attached photo shows, or "" when there is no photo.`

// Classify sends the report text and optional photo and parses the reply.
func (a *Anthropic) Classify(ctx context.Context, in Input) (*models.Analysis, error) {
	prompt := fmt.Sprintf("Product: %s\nDescription: %s\nWrite summary and visualFindings in %s.",
		in.ProductName, in.Description, a.language)

	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)}
	if in.Image != "" {
		mediaType, data := SplitDataURL(in.Image)
		blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseAnalysis(text.String())
}

// ParseAnalysis extracts the JSON object from a model reply, tolerating code
// fences and surrounding prose, and normalizes urgency.
func ParseAnalysis(reply string) (*models.Analysis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrBadResponse, truncate(reply, 80))
	}

	var raw struct {
		Category       string `json:"category"`
		Urgency        string `json:"urgency"`
		Summary        string `json:"summary"`
		VisualFindings string `json:"visualFindings"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if raw.Category == "" && raw.Summary == "" {
		return nil, fmt.Errorf("%w: empty analysis", ErrBadResponse)
	}
	return &models.Analysis{
		Category:       strings.TrimSpace(raw.Category),
		Urgency:        models.NormalizeUrgency(raw.Urgency),
		Summary:        strings.TrimSpace(raw.Summary),
		VisualFindings: strings.TrimSpace(raw.VisualFindings),
	}, nil
}

// SplitDataURL returns the media type and base64 payload of an image
// reference. Bare base64 is assumed to be JPEG.
func SplitDataURL(image string) (mediaType, data string) {
	if !strings.HasPrefix(image, "data:") {
		return "image/jpeg", image
	}
	header, payload, ok := strings.Cut(image, ",")
	if !ok {
		return "image/jpeg", ""
	}
	mediaType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return mediaType, payload
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
