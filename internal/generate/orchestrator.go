package generate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/slidectx"
	"github.com/savilabs/savi-core/internal/theme"
	"github.com/savilabs/savi-core/internal/visual"
)

const topicTermLimit = 6

// Episode is the unit of work between a deviation declaration and a
// committed slide. Speech and slide snapshots are frozen at
// declaration time; later window churn never leaks into a running
// episode.
type Episode struct {
	ID         string
	SessionID  string
	Topic      string
	Speech     slidectx.SpeechContext
	Prior      slidectx.SlideContext
	DeclaredAt time.Time
	Manual     bool
}

// NewEpisode freezes the pipeline state for one declared deviation.
func NewEpisode(sessionID string, speech slidectx.SpeechContext, prior slidectx.SlideContext, at time.Time) Episode {
	return Episode{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Topic:      topicFromSummary(speech.Summary),
		Speech:     speech,
		Prior:      prior,
		DeclaredAt: at,
	}
}

// NewManualEpisode starts an episode from an operator-supplied topic,
// bypassing the detector.
func NewManualEpisode(sessionID, topic string, prior slidectx.SlideContext, at time.Time) Episode {
	return Episode{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Topic:      topic,
		Prior:      prior,
		DeclaredAt: at,
		Manual:     true,
	}
}

// topicFromSummary labels the suspected new topic with the heaviest
// window terms. Ties break lexicographically so the label is stable.
func topicFromSummary(s slidectx.Summary) string {
	type term struct {
		word   string
		weight float64
	}
	terms := make([]term, 0, len(s))
	for w, v := range s {
		terms = append(terms, term{w, v})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].weight != terms[j].weight {
			return terms[i].weight > terms[j].weight
		}
		return terms[i].word < terms[j].word
	})
	if len(terms) > topicTermLimit {
		terms = terms[:topicTermLimit]
	}
	words := make([]string, len(terms))
	for i, t := range terms {
		words[i] = t.word
	}
	return strings.Join(words, " ")
}

// DraftSlide is a fully assembled slide awaiting insertion.
type DraftSlide struct {
	EpisodeID  string
	SessionID  string
	Topic      string
	Content    SlideContent
	Visual     *visual.Asset
	Theme      theme.Snapshot
	Prior      slidectx.SlideContext
	DeclaredAt time.Time
	Manual     bool
}

// Deps collects the orchestrator's collaborators. Visual providers may
// be nil when visuals are disabled or unconfigured.
type Deps struct {
	Generator Generator
	Charts    visual.ChartRenderer
	Icons     visual.IconSearcher
	Images    visual.ImageSearcher
	Themes    *theme.Adapter
	Deliver   func(DraftSlide)
	Dropped   func(Episode, error)
	Logger    *slog.Logger
}

// Orchestrator runs at most one episode at a time. A trigger arriving
// while an episode is pending is discarded, never queued.
type Orchestrator struct {
	cfg           config.GeneratorConfig
	visualTimeout time.Duration
	deps          Deps
	logger        *slog.Logger

	busy      atomic.Bool
	discarded atomic.Int64
	wg        sync.WaitGroup
}

func NewOrchestrator(cfg config.GeneratorConfig, visualCfg config.VisualConfig, deps Deps) *Orchestrator {
	timeout := time.Duration(visualCfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:           cfg,
		visualTimeout: timeout,
		deps:          deps,
		logger:        logger.With(slog.String("component", "generate")),
	}
}

// Trigger starts an episode unless one is already in flight. Returns
// false when the episode was discarded.
func (o *Orchestrator) Trigger(ctx context.Context, ep Episode) bool {
	if !o.busy.CompareAndSwap(false, true) {
		o.discarded.Add(1)
		o.logger.Info("episode discarded, generation already in flight",
			slog.String("episode_id", ep.ID),
			slog.String("topic", ep.Topic))
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.busy.Store(false)
		o.run(ctx, ep)
	}()
	return true
}

// Discarded reports how many triggers were dropped by the
// one-in-flight guard.
func (o *Orchestrator) Discarded() int64 { return o.discarded.Load() }

// InFlight reports whether an episode is currently running.
func (o *Orchestrator) InFlight() bool { return o.busy.Load() }

// Wait blocks until the running episode, if any, finishes.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) run(ctx context.Context, ep Episode) {
	started := time.Now()
	req := RequestFromConfig(o.cfg)
	req.SessionID = ep.SessionID
	req.Topic = ep.Topic
	req.Speech = ep.Speech.Text
	req.PriorSlide = summaryHint(ep.Prior)

	content, err := o.generateText(ctx, req)
	if err != nil {
		o.logger.Error("episode dropped, text generation failed",
			slog.String("episode_id", ep.ID),
			slog.String("topic", ep.Topic),
			slog.String("error", err.Error()))
		if o.deps.Dropped != nil {
			o.deps.Dropped(ep, err)
		}
		return
	}

	asset := o.buildVisual(ctx, content)

	snap := theme.DefaultSnapshot()
	if o.deps.Themes != nil {
		snap = o.deps.Themes.Snapshot()
	}
	draft := DraftSlide{
		EpisodeID:  ep.ID,
		SessionID:  ep.SessionID,
		Topic:      ep.Topic,
		Content:    content,
		Visual:     asset,
		Theme:      snap,
		Prior:      ep.Prior,
		DeclaredAt: ep.DeclaredAt,
		Manual:     ep.Manual,
	}
	o.logger.Info("draft assembled",
		slog.String("episode_id", ep.ID),
		slog.String("title", content.Title),
		slog.Bool("has_visual", asset != nil),
		slog.Duration("elapsed", time.Since(started)))
	o.deps.Deliver(draft)
}

// generateText retries the text backend with exponential backoff up to
// the configured attempt budget. Text failure is fatal to the episode.
func (o *Orchestrator) generateText(ctx context.Context, req Request) (SlideContent, error) {
	attempt := func() (SlideContent, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
		return o.deps.Generator.GenerateSlide(attemptCtx, req)
	}
	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(o.cfg.MaxRetries)+1))
}

// buildVisual is data first: chart data beats icon beats photo. Any
// failure or timeout yields a nil asset, never a failed episode.
func (o *Orchestrator) buildVisual(ctx context.Context, content SlideContent) *visual.Asset {
	vctx, cancel := context.WithTimeout(ctx, o.visualTimeout)
	defer cancel()

	if content.ChartData != nil && o.deps.Charts != nil {
		asset, err := o.deps.Charts.RenderChart(vctx, *content.ChartData)
		if err != nil {
			o.logger.Warn("chart render failed, slide proceeds without visual",
				slog.String("error", err.Error()))
			return nil
		}
		return &asset
	}

	query := strings.TrimSpace(content.ImageSuggestion)
	if query == "" {
		return nil
	}
	if o.deps.Icons != nil {
		asset, err := o.deps.Icons.SearchIcon(vctx, query)
		if err == nil {
			return &asset
		}
		if !errors.Is(err, visual.ErrNotFound) {
			o.logger.Warn("icon lookup failed",
				slog.String("query", query),
				slog.String("error", err.Error()))
		}
	}
	if o.deps.Images != nil {
		asset, err := o.deps.Images.SearchImage(vctx, query)
		if err == nil {
			return &asset
		}
		if !errors.Is(err, visual.ErrNotFound) {
			o.logger.Warn("image lookup failed",
				slog.String("query", query),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func summaryHint(prior slidectx.SlideContext) string {
	return topicFromSummary(prior.Summary)
}
