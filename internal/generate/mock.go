package generate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type mockGenerator struct{}

// NewMockGenerator returns deterministic content derived from the
// topic. Used in tests and in setups without model credentials.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) GenerateSlide(ctx context.Context, req Request) (SlideContent, error) {
	select {
	case <-ctx.Done():
		return SlideContent{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = "New Topic"
	}
	return SlideContent{
		Title: topic,
		Points: []string{
			fmt.Sprintf("Overview of %s", topic),
			fmt.Sprintf("Key facts about %s", topic),
			fmt.Sprintf("Why %s matters to this audience", topic),
		},
		ImageSuggestion: topic,
		Layout:          "text_left_visual_right",
	}, nil
}
