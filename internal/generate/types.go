package generate

import (
	"context"

	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/visual"
)

// Request describes one slide-content generation call.
type Request struct {
	SessionID   string
	Topic       string
	Speech      string // recent transcript excerpt grounding the topic
	PriorSlide  string // text of the slide being spoken over, for continuity
	MaxTokens   int
	Temperature float64
}

// SlideContent is the structured output contract shared by all
// backends. ChartData and ImageSuggestion are mutually exclusive:
// quantitative topics carry a chart, qualitative ones a search query.
type SlideContent struct {
	Title           string            `json:"title"`
	Points          []string          `json:"points"`
	ImageSuggestion string            `json:"image_suggestion"`
	Layout          string            `json:"layout"`
	ChartData       *visual.ChartSpec `json:"chart_data"`
}

// Generator defines a pluggable slide-content backend.
type Generator interface {
	GenerateSlide(ctx context.Context, req Request) (SlideContent, error)
}

// NewFromConfig builds the backend selected by config. The context is
// only used for client construction, not tied to any generation call.
func NewFromConfig(ctx context.Context, cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Mode {
	case "gemini":
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	default:
		return NewMockGenerator(), nil
	}
}

// RequestFromConfig seeds a request with configured sampling defaults.
func RequestFromConfig(cfg config.GeneratorConfig) Request {
	return Request{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}
