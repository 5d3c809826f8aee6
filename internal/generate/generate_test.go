package generate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/slidectx"
	"github.com/savilabs/savi-core/internal/visual"
)

type funcGenerator func(context.Context, Request) (SlideContent, error)

func (f funcGenerator) GenerateSlide(ctx context.Context, req Request) (SlideContent, error) {
	return f(ctx, req)
}

type funcChartRenderer func(context.Context, visual.ChartSpec) (visual.Asset, error)

func (f funcChartRenderer) RenderChart(ctx context.Context, spec visual.ChartSpec) (visual.Asset, error) {
	return f(ctx, spec)
}

type funcIconSearcher func(context.Context, string) (visual.Asset, error)

func (f funcIconSearcher) SearchIcon(ctx context.Context, q string) (visual.Asset, error) {
	return f(ctx, q)
}

type funcImageSearcher func(context.Context, string) (visual.Asset, error)

func (f funcImageSearcher) SearchImage(ctx context.Context, q string) (visual.Asset, error) {
	return f(ctx, q)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func genConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		Mode:      "mock",
		MaxTokens: 256,
		TimeoutMS: 2000,
	}
}

func TestParseContentExtractsWrappedJSON(t *testing.T) {
	raw := "Here is your slide:\n```json\n{\"title\": \"Solar Energy\", \"points\": [\"Global capacity passed 1.4 TW in 2023\", \"Costs fell 90% since 2010\"], \"image_suggestion\": \"solar panel\", \"layout\": \"text_left_visual_right\", \"chart_data\": null}\n```\nEnjoy!"
	content, err := ParseContent(raw)
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	if content.Title != "Solar Energy" {
		t.Fatalf("title = %q", content.Title)
	}
	if len(content.Points) != 2 {
		t.Fatalf("points = %v", content.Points)
	}
	if content.ImageSuggestion != "solar panel" {
		t.Fatalf("image suggestion = %q", content.ImageSuggestion)
	}
}

func TestParseContentRejectsMissingTitle(t *testing.T) {
	if _, err := ParseContent(`{"points": ["a"]}`); err == nil {
		t.Fatal("expected error for missing title")
	}
	if _, err := ParseContent("no json here"); err == nil {
		t.Fatal("expected error for absent object")
	}
	if _, err := ParseContent(`{"title": "t", "points": []}`); err == nil {
		t.Fatal("expected error for empty points")
	}
}

func TestParseContentChartNormalization(t *testing.T) {
	raw := `{"title": "Revenue", "points": ["Q1 rose 12%"], "image_suggestion": "money", "layout": "text_only", "chart_data": {"type": "column", "title": "Quarters", "labels": ["Q1", "Q2"], "values": [10, 12]}}`
	content, err := ParseContent(raw)
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	if content.ChartData == nil {
		t.Fatal("expected chart data")
	}
	if content.ChartData.Type != "bar" {
		t.Fatalf("chart type = %q, want bar fallback", content.ChartData.Type)
	}
	if content.ImageSuggestion != "" {
		t.Fatal("chart slides must not carry an image suggestion")
	}
	if content.Layout != "text_left_visual_right" {
		t.Fatalf("layout = %q", content.Layout)
	}
}

func TestParseContentDropsMismatchedChart(t *testing.T) {
	raw := `{"title": "Revenue", "points": ["Q1 rose 12%"], "chart_data": {"type": "bar", "labels": ["Q1", "Q2"], "values": [10]}}`
	content, err := ParseContent(raw)
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	if content.ChartData != nil {
		t.Fatal("mismatched chart should be dropped, not fatal")
	}
}

func TestTopicFromSummaryIsStable(t *testing.T) {
	s := slidectx.Summary{
		"kohli": 3.1, "cricket": 2.4, "endorsements": 2.4,
		"wealth": 1.8, "ipl": 1.2, "brand": 1.1, "net": 1.0,
	}
	got := topicFromSummary(s)
	want := "kohli cricket endorsements wealth ipl brand"
	if got != want {
		t.Fatalf("topic = %q, want %q", got, want)
	}
	if topicFromSummary(slidectx.Summary{}) != "" {
		t.Fatal("empty summary should yield empty topic")
	}
}

func TestMockGeneratorProducesContent(t *testing.T) {
	gen := NewMockGenerator()
	content, err := gen.GenerateSlide(context.Background(), Request{Topic: "origami history"})
	if err != nil {
		t.Fatalf("GenerateSlide: %v", err)
	}
	if content.Title != "origami history" {
		t.Fatalf("title = %q", content.Title)
	}
	if len(content.Points) == 0 {
		t.Fatal("expected points")
	}
}

func TestOrchestratorDeliversDraft(t *testing.T) {
	drafts := make(chan DraftSlide, 1)
	o := NewOrchestrator(genConfig(), config.VisualConfig{TimeoutMS: 1000}, Deps{
		Generator: NewMockGenerator(),
		Deliver:   func(d DraftSlide) { drafts <- d },
		Logger:    testLogger(),
	})

	ep := NewEpisode("s1", slidectx.SpeechContext{
		Summary: slidectx.Summary{"quantum": 2, "computing": 1},
		Text:    "so quantum computing changes everything",
	}, slidectx.SlideContext{Position: 3}, time.Now())

	if !o.Trigger(context.Background(), ep) {
		t.Fatal("trigger refused on idle orchestrator")
	}
	select {
	case d := <-drafts:
		if d.EpisodeID != ep.ID {
			t.Fatalf("episode id = %q, want %q", d.EpisodeID, ep.ID)
		}
		if d.Content.Title == "" {
			t.Fatal("draft missing title")
		}
		if d.Prior.Position != 3 {
			t.Fatalf("prior position = %d", d.Prior.Position)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no draft delivered")
	}
}

func TestOrchestratorDiscardsSecondTrigger(t *testing.T) {
	release := make(chan struct{})
	drafts := make(chan DraftSlide, 2)
	o := NewOrchestrator(genConfig(), config.VisualConfig{TimeoutMS: 1000}, Deps{
		Generator: funcGenerator(func(ctx context.Context, req Request) (SlideContent, error) {
			<-release
			return SlideContent{Title: "t", Points: []string{"p"}}, nil
		}),
		Deliver: func(d DraftSlide) { drafts <- d },
		Logger:  testLogger(),
	})

	first := NewManualEpisode("s1", "first", slidectx.SlideContext{}, time.Now())
	second := NewManualEpisode("s1", "second", slidectx.SlideContext{}, time.Now())

	if !o.Trigger(context.Background(), first) {
		t.Fatal("first trigger refused")
	}
	if o.Trigger(context.Background(), second) {
		t.Fatal("second trigger accepted while first in flight")
	}
	if o.Discarded() != 1 {
		t.Fatalf("discarded = %d, want 1", o.Discarded())
	}

	close(release)
	o.Wait()
	if len(drafts) != 1 {
		t.Fatalf("drafts delivered = %d, want 1", len(drafts))
	}
}

func TestOrchestratorDropsEpisodeOnTextFailure(t *testing.T) {
	dropped := make(chan error, 1)
	cfg := genConfig()
	cfg.MaxRetries = 1
	var calls int
	o := NewOrchestrator(cfg, config.VisualConfig{TimeoutMS: 1000}, Deps{
		Generator: funcGenerator(func(ctx context.Context, req Request) (SlideContent, error) {
			calls++
			return SlideContent{}, errors.New("model unavailable")
		}),
		Deliver: func(d DraftSlide) { t.Error("draft delivered despite text failure") },
		Dropped: func(ep Episode, err error) { dropped <- err },
		Logger:  testLogger(),
	})

	o.Trigger(context.Background(), NewManualEpisode("s1", "topic", slidectx.SlideContext{}, time.Now()))
	select {
	case err := <-dropped:
		if err == nil {
			t.Fatal("nil drop error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dropped callback not invoked")
	}
	o.Wait()
	if calls != 2 {
		t.Fatalf("generator calls = %d, want 2 (original + one retry)", calls)
	}
}

func TestOrchestratorOmitsTimedOutVisual(t *testing.T) {
	drafts := make(chan DraftSlide, 1)
	o := NewOrchestrator(genConfig(), config.VisualConfig{TimeoutMS: 50}, Deps{
		Generator: funcGenerator(func(ctx context.Context, req Request) (SlideContent, error) {
			return SlideContent{
				Title:     "GDP Growth",
				Points:    []string{"up 3%"},
				ChartData: &visual.ChartSpec{Type: "bar", Labels: []string{"a"}, Values: []float64{1}},
			}, nil
		}),
		Charts: funcChartRenderer(func(ctx context.Context, spec visual.ChartSpec) (visual.Asset, error) {
			<-ctx.Done()
			return visual.Asset{}, ctx.Err()
		}),
		Deliver: func(d DraftSlide) { drafts <- d },
		Logger:  testLogger(),
	})

	o.Trigger(context.Background(), NewManualEpisode("s1", "gdp", slidectx.SlideContext{}, time.Now()))
	select {
	case d := <-drafts:
		if d.Visual != nil {
			t.Fatal("timed-out visual must be omitted")
		}
		if d.Content.Title != "GDP Growth" {
			t.Fatalf("title = %q", d.Content.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("draft blocked on visual timeout")
	}
}

func TestOrchestratorPrefersChartOverLookup(t *testing.T) {
	drafts := make(chan DraftSlide, 1)
	o := NewOrchestrator(genConfig(), config.VisualConfig{TimeoutMS: 1000}, Deps{
		Generator: funcGenerator(func(ctx context.Context, req Request) (SlideContent, error) {
			return SlideContent{
				Title:     "Market Share",
				Points:    []string{"A leads"},
				ChartData: &visual.ChartSpec{Type: "pie", Labels: []string{"A", "B"}, Values: []float64{60, 40}},
			}, nil
		}),
		Charts: funcChartRenderer(func(ctx context.Context, spec visual.ChartSpec) (visual.Asset, error) {
			return visual.Asset{Path: "/tmp/chart.svg", Kind: "chart"}, nil
		}),
		Icons: funcIconSearcher(func(ctx context.Context, q string) (visual.Asset, error) {
			t.Error("icon searcher called for a chart slide")
			return visual.Asset{}, visual.ErrNotFound
		}),
		Deliver: func(d DraftSlide) { drafts <- d },
		Logger:  testLogger(),
	})

	o.Trigger(context.Background(), NewManualEpisode("s1", "share", slidectx.SlideContext{}, time.Now()))
	select {
	case d := <-drafts:
		if d.Visual == nil || d.Visual.Kind != "chart" {
			t.Fatalf("visual = %+v, want chart", d.Visual)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no draft delivered")
	}
}

func TestOrchestratorFallsBackIconToImage(t *testing.T) {
	drafts := make(chan DraftSlide, 1)
	o := NewOrchestrator(genConfig(), config.VisualConfig{TimeoutMS: 1000}, Deps{
		Generator: NewMockGenerator(),
		Icons: funcIconSearcher(func(ctx context.Context, q string) (visual.Asset, error) {
			return visual.Asset{}, visual.ErrNotFound
		}),
		Images: funcImageSearcher(func(ctx context.Context, q string) (visual.Asset, error) {
			return visual.Asset{Path: "/tmp/photo.jpg", Kind: "image"}, nil
		}),
		Deliver: func(d DraftSlide) { drafts <- d },
		Logger:  testLogger(),
	})

	o.Trigger(context.Background(), NewManualEpisode("s1", "origami", slidectx.SlideContext{}, time.Now()))
	select {
	case d := <-drafts:
		if d.Visual == nil || d.Visual.Kind != "image" {
			t.Fatalf("visual = %+v, want image fallback", d.Visual)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no draft delivered")
	}
}
