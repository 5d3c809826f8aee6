package insert

import (
	"container/heap"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/deck"
	"github.com/savilabs/savi-core/internal/detector"
	"github.com/savilabs/savi-core/internal/eventstore"
	"github.com/savilabs/savi-core/internal/generate"
	"github.com/savilabs/savi-core/internal/protocol"
	"github.com/savilabs/savi-core/internal/slidectx"
	"github.com/savilabs/savi-core/internal/theme"
)

const watermark = "Updated live by Savi"

// draftHeap orders pending drafts by declaration time so commits
// follow declaration order even when generation completes out of
// order.
type draftHeap []generate.DraftSlide

func (h draftHeap) Len() int           { return len(h) }
func (h draftHeap) Less(i, j int) bool { return h[i].DeclaredAt.Before(h[j].DeclaredAt) }
func (h draftHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *draftHeap) Push(x any)        { *h = append(*h, x.(generate.DraftSlide)) }
func (h *draftHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	*h = old[:n-1]
	return d
}

// Publisher sends a protocol message on the bus.
type Publisher func(subject string, v any) error

// Coordinator owns all deck writes. Drafts arrive on a channel, are
// held in a declaration-ordered heap and committed one at a time from
// a single goroutine.
type Coordinator struct {
	cfg         config.InsertConfig
	minTokenLen int
	surface     deck.Surface
	model       *slidectx.Model
	det         *detector.Detector
	store       *eventstore.Store
	publish     Publisher
	logger      *slog.Logger
	clock       func() time.Time

	drafts  chan generate.DraftSlide
	pending draftHeap

	mu        sync.Mutex
	generated map[int]string // slide position -> episode that produced it
}

type Deps struct {
	Surface deck.Surface
	Model   *slidectx.Model
	Det     *detector.Detector
	Store   *eventstore.Store
	Publish Publisher
	Logger  *slog.Logger
	Clock   func() time.Time
}

func NewCoordinator(cfg config.InsertConfig, speechCfg config.SpeechConfig, deps Deps) *Coordinator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:         cfg,
		minTokenLen: speechCfg.MinTokenLength,
		surface:     deps.Surface,
		model:       deps.Model,
		det:         deps.Det,
		store:       deps.Store,
		publish:     deps.Publish,
		logger:      logger.With(slog.String("component", "insert")),
		clock:       clock,
		drafts:      make(chan generate.DraftSlide, 8),
		generated:   make(map[int]string),
	}
}

// Enqueue hands a completed draft to the coordinator. Safe from any
// goroutine.
func (c *Coordinator) Enqueue(d generate.DraftSlide) {
	c.drafts <- d
}

// Run processes drafts until the context is cancelled. It is the only
// goroutine that writes to the deck surface.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-c.drafts:
			heap.Push(&c.pending, d)
			c.drainPending(ctx)
		}
	}
}

func (c *Coordinator) drainPending(ctx context.Context) {
	for c.pending.Len() > 0 {
		// Pull in any drafts that arrived meanwhile so the heap always
		// surfaces the oldest declaration.
		for {
			select {
			case d := <-c.drafts:
				heap.Push(&c.pending, d)
				continue
			default:
			}
			break
		}
		d := heap.Pop(&c.pending).(generate.DraftSlide)
		if err := c.apply(ctx, d); err != nil {
			c.dropDraft(ctx, d, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

type commit struct {
	pos      int
	replaced bool
	stale    bool
}

// apply commits one draft: position resolution, insert or replace,
// navigate, context reset, announcements. Deck errors are retried up
// to the configured budget.
func (c *Coordinator) apply(ctx context.Context, d generate.DraftSlide) error {
	slide := renderSlide(d)

	attempt := func() (commit, error) {
		cur, err := c.surface.CurrentPosition(ctx)
		if err != nil {
			return commit{}, err
		}
		intended := d.Prior.Position + 1

		// Update in place when the presenter is still on a slide this
		// run generated; repeated deviation refines rather than stacks.
		if c.cfg.UpdateInPlace && cur == d.Prior.Position && c.isGenerated(cur) {
			if err := c.surface.ReplaceSlide(ctx, cur, slide); err != nil {
				return commit{}, err
			}
			return commit{pos: cur, replaced: true}, nil
		}

		// Stale recovery: the presenter moved past the intended spot,
		// so the slide lands right after wherever they are now.
		pos := intended
		if cur >= intended {
			pos = cur + 1
		}
		if err := c.surface.InsertSlide(ctx, pos, slide); err != nil {
			return commit{}, err
		}
		return commit{pos: pos, stale: pos != intended}, nil
	}

	bo := backoff.NewExponentialBackOff()
	if c.cfg.RetryBackoffMS > 0 {
		bo.InitialInterval = time.Duration(c.cfg.RetryBackoffMS) * time.Millisecond
	}
	result, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1))
	if err != nil {
		return err
	}

	if err := c.surface.Navigate(ctx, result.pos); err != nil {
		c.logger.Warn("navigate after commit failed",
			slog.Int("position", result.pos),
			slog.String("error", err.Error()))
	}

	c.trackGenerated(result.pos, d.EpisodeID, result.replaced)
	c.resetContext(d, result.pos)
	c.announce(ctx, d, result)

	c.logger.Info("slide committed",
		slog.String("episode_id", d.EpisodeID),
		slog.Int("position", result.pos),
		slog.Bool("replaced", result.replaced),
		slog.String("title", d.Content.Title))
	return nil
}

func renderSlide(d generate.DraftSlide) deck.Slide {
	s := deck.Slide{
		Title:     d.Content.Title,
		Points:    d.Content.Points,
		Layout:    d.Content.Layout,
		Theme:     d.Theme,
		Watermark: watermark,
	}
	if d.Visual != nil {
		s.VisualPath = d.Visual.Path
		s.VisualKind = d.Visual.Kind
	}
	return s
}

func (c *Coordinator) isGenerated(pos int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.generated[pos]
	return ok
}

// trackGenerated records the committed position. An insert shifts
// every tracked slide at or beyond it one to the right.
func (c *Coordinator) trackGenerated(pos int, episodeID string, replaced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !replaced {
		shifted := make(map[int]string, len(c.generated)+1)
		for p, id := range c.generated {
			if p >= pos {
				p++
			}
			shifted[p] = id
		}
		c.generated = shifted
	}
	c.generated[pos] = episodeID
}

// resetContext replaces the active slide context with the freshly
// committed slide and re-arms the detector.
func (c *Coordinator) resetContext(d generate.DraftSlide, pos int) {
	text := strings.Join(append([]string{d.Content.Title}, d.Content.Points...), "\n")
	c.model.Reset(slidectx.SlideContext{
		SlideID:   d.EpisodeID,
		Position:  pos,
		Summary:   slidectx.SummarizeText(text, c.minTokenLen),
		Theme:     d.Theme,
		Generated: true,
	})
	c.det.ResetForSlide()
}

func (c *Coordinator) announce(ctx context.Context, d generate.DraftSlide, result commit) {
	msg := protocol.SlideInserted{
		SessionID: d.SessionID,
		EpisodeID: d.EpisodeID,
		Position:  result.pos,
		Title:     d.Content.Title,
		Replaced:  result.replaced,
		Stale:     result.stale,
		Timestamp: c.clock().UTC(),
	}
	if c.publish != nil {
		if err := c.publish(protocol.SubjectSlideInserted, msg); err != nil {
			c.logger.Warn("publish slide.inserted failed", slog.String("error", err.Error()))
		}
	}
	if c.store != nil {
		payload, _ := json.Marshal(msg)
		if err := c.store.AppendEvent(ctx, eventstore.Event{
			SessionID: d.SessionID,
			EpisodeID: d.EpisodeID,
			Type:      eventstore.EventSlideInserted,
			Payload:   payload,
		}); err != nil {
			c.logger.Warn("append slide.inserted event failed", slog.String("error", err.Error()))
		}
	}
}

// dropDraft records a draft abandoned after the surface stayed
// unreachable through the retry budget.
func (c *Coordinator) dropDraft(ctx context.Context, d generate.DraftSlide, cause error) {
	c.logger.Error("draft dropped, deck surface unreachable",
		slog.String("episode_id", d.EpisodeID),
		slog.String("title", d.Content.Title),
		slog.String("error", cause.Error()))
	if c.store == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"title": d.Content.Title,
		"error": cause.Error(),
	})
	if err := c.store.AppendEvent(ctx, eventstore.Event{
		SessionID: d.SessionID,
		EpisodeID: d.EpisodeID,
		Type:      eventstore.EventEpisodeDropped,
		Payload:   payload,
	}); err != nil {
		c.logger.Warn("append episode.dropped event failed", slog.String("error", err.Error()))
	}
}

// HandleNavigation re-seeds the slide context after the presenter
// moves on their own. Safe to call from bus callbacks.
func (c *Coordinator) HandleNavigation(ctx context.Context, nav protocol.DeckNavigation) {
	text, err := c.surface.SlideText(ctx, nav.Position)
	if err != nil {
		c.logger.Warn("slide text fetch failed on navigation",
			slog.Int("position", nav.Position),
			slog.String("error", err.Error()))
		text = ""
	}

	c.mu.Lock()
	episodeID, wasGenerated := c.generated[nav.Position]
	c.mu.Unlock()

	prior := c.model.ActiveSlide()
	c.model.Reset(slidectx.SlideContext{
		SlideID:   episodeID,
		Position:  nav.Position,
		Summary:   slidectx.SummarizeText(text, c.minTokenLen),
		Theme:     priorTheme(prior),
		Generated: wasGenerated,
	})
	c.det.ResetForSlide()
	c.logger.Debug("slide context re-seeded",
		slog.Int("position", nav.Position),
		slog.Bool("generated", wasGenerated))
}

func priorTheme(prior slidectx.SlideContext) theme.Snapshot {
	if prior.Theme == (theme.Snapshot{}) {
		return theme.DefaultSnapshot()
	}
	return prior.Theme
}
