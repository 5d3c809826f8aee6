package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const slidePromptTemplate = `You are a factual research assistant creating a presentation slide. Your goal is to be informative and data-driven.
The presentation topic is: %q.
Recent presenter speech for grounding: %q.
The slide currently shown covers: %q.

CRITICAL INSTRUCTIONS:
1. Title: create a clear, factual title directly related to the topic.
2. Points: write 4-5 bullet points. Include real, quantifiable data (financial figures, percentages, statistics) wherever the topic allows.
3. Layout: if you generate chart_data, the layout MUST be "text_left_visual_right". Otherwise it may be "text_only" or "text_left_visual_right".
4. Chart data (conditional): if the topic concerns finances, statistics, market share, or other quantifiable data, generate a chart object summarizing the key figures from your bullet points: {"type": "pie"|"bar", "title": string, "labels": [string], "values": [number]}. Use "pie" for breakdowns and "bar" for comparisons. If the topic is purely qualitative, chart_data MUST be null.
5. Image suggestion (conditional): if you generated chart_data this MUST be null. If chart_data is null, suggest a short, direct search query for a relevant icon or image.

Respond with a single JSON object with exactly the keys "title", "points", "image_suggestion", "layout", and "chart_data".`

func buildPrompt(req Request) string {
	prior := req.PriorSlide
	if strings.TrimSpace(prior) == "" {
		prior = "an empty slide"
	}
	return fmt.Sprintf(slidePromptTemplate, req.Topic, req.Speech, prior)
}

// ParseContent extracts and validates the JSON slide contract from raw
// model output, which may wrap the object in prose or markdown fences.
func ParseContent(raw string) (SlideContent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return SlideContent{}, errors.New("no JSON object in model output")
	}

	var content SlideContent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &content); err != nil {
		return SlideContent{}, fmt.Errorf("decode slide content: %w", err)
	}

	content.Title = strings.TrimSpace(content.Title)
	if content.Title == "" {
		return SlideContent{}, errors.New("slide content missing title")
	}
	var points []string
	for _, p := range content.Points {
		if s := strings.TrimSpace(p); s != "" {
			points = append(points, s)
		}
	}
	if len(points) == 0 {
		return SlideContent{}, errors.New("slide content missing points")
	}
	content.Points = points

	if content.ChartData != nil {
		if len(content.ChartData.Labels) == 0 ||
			len(content.ChartData.Labels) != len(content.ChartData.Values) {
			// A malformed chart degrades to a text slide rather than
			// failing the episode.
			content.ChartData = nil
		} else {
			if content.ChartData.Type != "pie" {
				content.ChartData.Type = "bar"
			}
			content.ImageSuggestion = ""
			content.Layout = "text_left_visual_right"
		}
	}
	switch content.Layout {
	case "text_only", "text_left_visual_right":
	default:
		content.Layout = "text_left_visual_right"
	}
	return content, nil
}
