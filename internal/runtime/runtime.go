package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/savilabs/savi-core/internal/bus"
	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/deck"
	"github.com/savilabs/savi-core/internal/detector"
	"github.com/savilabs/savi-core/internal/eventstore"
	"github.com/savilabs/savi-core/internal/generate"
	"github.com/savilabs/savi-core/internal/insert"
	"github.com/savilabs/savi-core/internal/natsserver"
	"github.com/savilabs/savi-core/internal/protocol"
	"github.com/savilabs/savi-core/internal/slidectx"
	"github.com/savilabs/savi-core/internal/theme"
	"github.com/savilabs/savi-core/internal/transcript"
	"github.com/savilabs/savi-core/internal/visual"
)

// Runtime owns the whole pipeline: transcript in, deviation detection,
// slide generation, insertion into the live deck.
type Runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	sessionID string

	httpServer  *http.Server
	tracerClose func(context.Context) error
	metrics     *pipelineMetrics

	embedded      *natsserver.EmbeddedServer
	busClient     *bus.Client
	store         *eventstore.Store
	surface       deck.Surface
	themes        *theme.Adapter
	model         *slidectx.Model
	det           *detector.Detector
	orch          *generate.Orchestrator
	coord         *insert.Coordinator
	transcriptSvc *transcript.Service
	subs          []*nats.Subscription

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		sessionID: uuid.NewString(),
	}
}

// Start brings components up in dependency order, runs until the
// context is cancelled, then shuts down in reverse.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	if r.metrics, err = newPipelineMetrics(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	if r.cfg.Bus.Embedded {
		r.embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
	}
	r.busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}

	r.store, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	if err := r.store.AppendSession(ctx, r.sessionID, r.cfg.RuntimeName); err != nil {
		r.logger.Warn("record session failed", slog.String("error", err.Error()))
	}

	if r.surface, err = r.buildSurface(ctx); err != nil {
		return fmt.Errorf("open deck surface: %w", err)
	}

	r.themes = theme.NewAdapter(r.logger)
	if info, err := r.surface.DeckInfo(ctx); err != nil {
		r.logger.Warn("deck style analysis failed, using default theme",
			slog.String("error", err.Error()))
	} else {
		r.themes.Refresh(info)
	}

	r.model = slidectx.NewModel(r.cfg.Speech)
	r.det = detector.New(r.cfg.Detector, r.logger)
	r.seedSlideContext(ctx)

	gen, err := generate.NewFromConfig(ctx, r.cfg.Generator)
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}
	charts, icons, images, err := r.buildVisualProviders()
	if err != nil {
		return fmt.Errorf("build visual providers: %w", err)
	}

	r.coord = insert.NewCoordinator(r.cfg.Insert, r.cfg.Speech, insert.Deps{
		Surface: r.surface,
		Model:   r.model,
		Det:     r.det,
		Store:   r.store,
		Publish: r.publishJSON,
		Logger:  r.logger,
	})
	r.orch = generate.NewOrchestrator(r.cfg.Generator, r.cfg.Visual, generate.Deps{
		Generator: gen,
		Charts:    charts,
		Icons:     icons,
		Images:    images,
		Themes:    r.themes,
		Deliver:   func(d generate.DraftSlide) { r.onDraft(ctx, d) },
		Dropped:   func(ep generate.Episode, err error) { r.onEpisodeDropped(ctx, ep, err) },
		Logger:    r.logger,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.coord.Run(ctx)
	}()

	if err := r.subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	source, err := r.buildTranscriptSource()
	if err != nil {
		return fmt.Errorf("build transcript source: %w", err)
	}
	r.transcriptSvc = transcript.NewService(ctx, r.cfg.Transcript, r.busClient, source, r.sessionID, r.logger)
	if err := r.transcriptSvc.Start(); err != nil {
		return fmt.Errorf("start transcript service: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("session_id", r.sessionID))

	<-ctx.Done()
	r.shutdown()
	return nil
}

func (r *Runtime) shutdown() {
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	if r.transcriptSvc != nil {
		r.transcriptSvc.Close()
	}
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.orch.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.surface != nil {
		_ = r.surface.Close()
	}
	if r.store != nil {
		if err := r.store.Prune(shutdownCtx); err != nil {
			r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
		}
		_ = r.store.Close()
	}
	r.busClient.Close()
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) buildSurface(ctx context.Context) (deck.Surface, error) {
	switch r.cfg.Deck.Mode {
	case "ws":
		return deck.DialWS(ctx, r.cfg.Deck, r.logger, func(nav protocol.DeckNavigation) {
			nav.SessionID = r.sessionID
			if err := r.publishJSON(protocol.SubjectDeckNavigation, nav); err != nil {
				r.logger.Warn("publish deck.navigation failed", slog.String("error", err.Error()))
			}
		})
	default:
		return deck.NewMock(), nil
	}
}

func (r *Runtime) buildTranscriptSource() (transcript.Source, error) {
	if r.cfg.Transcript.Mode == "exec" {
		return transcript.NewExecSource(r.cfg.Transcript, r.logger)
	}
	lines := []string{
		"welcome everyone to today's session",
		"let's walk through the agenda together",
	}
	return transcript.NewMockSource(lines, 3*time.Second), nil
}

func (r *Runtime) buildVisualProviders() (visual.ChartRenderer, visual.IconSearcher, visual.ImageSearcher, error) {
	if !r.cfg.Visual.Enabled {
		return nil, nil, nil, nil
	}
	cache, err := visual.NewAssetCache(r.cfg.Visual.AssetDir)
	if err != nil {
		return nil, nil, nil, err
	}
	charts := visual.NewSVGChartRenderer(cache)
	var icons visual.IconSearcher
	if r.cfg.Visual.NounProjectKey != "" && r.cfg.Visual.NounProjectSecret != "" {
		icons = visual.NewNounProjectSearcher(r.cfg.Visual.NounProjectKey, r.cfg.Visual.NounProjectSecret, cache)
	}
	var images visual.ImageSearcher
	if r.cfg.Visual.PexelsKey != "" {
		images = visual.NewPexelsSearcher(r.cfg.Visual.PexelsKey, cache)
	}
	return charts, icons, images, nil
}

// seedSlideContext fingerprints whatever slide is showing at startup.
func (r *Runtime) seedSlideContext(ctx context.Context) {
	pos, err := r.surface.CurrentPosition(ctx)
	if err != nil {
		r.logger.Warn("current position unavailable at startup", slog.String("error", err.Error()))
		return
	}
	text, err := r.surface.SlideText(ctx, pos)
	if err != nil {
		r.logger.Warn("slide text unavailable at startup", slog.String("error", err.Error()))
		text = ""
	}
	r.model.Reset(slidectx.SlideContext{
		Position: pos,
		Summary:  slidectx.SummarizeText(text, r.cfg.Speech.MinTokenLength),
		Theme:    r.themes.Snapshot(),
	})
}

func (r *Runtime) subscribe(ctx context.Context) error {
	conn := r.busClient.Conn()

	sub, err := conn.Subscribe(protocol.SubjectTranscriptSegment, func(m *nats.Msg) {
		var msg protocol.TranscriptSegment
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			r.logger.Warn("bad transcript segment", slog.String("error", err.Error()))
			return
		}
		r.ingestSegment(ctx, msg)
	})
	if err != nil {
		return err
	}
	r.subs = append(r.subs, sub)

	sub, err = conn.Subscribe(protocol.SubjectDeckNavigation, func(m *nats.Msg) {
		var nav protocol.DeckNavigation
		if err := json.Unmarshal(m.Data, &nav); err != nil {
			r.logger.Warn("bad deck navigation", slog.String("error", err.Error()))
			return
		}
		r.coord.HandleNavigation(ctx, nav)
	})
	if err != nil {
		return err
	}
	r.subs = append(r.subs, sub)

	sub, err = conn.Subscribe(protocol.SubjectManualGenerate, func(m *nats.Msg) {
		var req protocol.ManualGenerate
		if err := json.Unmarshal(m.Data, &req); err != nil {
			r.logger.Warn("bad manual generate request", slog.String("error", err.Error()))
			return
		}
		r.handleManualGenerate(ctx, req)
	})
	if err != nil {
		return err
	}
	r.subs = append(r.subs, sub)

	sub, err = conn.Subscribe(protocol.SubjectThemeRefresh, func(m *nats.Msg) {
		info, err := r.surface.DeckInfo(ctx)
		if err != nil {
			r.logger.Warn("theme refresh failed", slog.String("error", err.Error()))
			return
		}
		r.themes.Refresh(info)
	})
	if err != nil {
		return err
	}
	r.subs = append(r.subs, sub)

	return nil
}

// ingestSegment is the hot path: fold the segment into the window,
// score it against the active slide and maybe open an episode. It
// never blocks on generation.
func (r *Runtime) ingestSegment(ctx context.Context, msg protocol.TranscriptSegment) {
	seg := transcript.SegmentFromProtocol(msg)
	r.model.Observe(seg)
	r.metrics.segments.Add(ctx, 1)

	speech := r.model.SpeechSnapshot()
	slide := r.model.ActiveSlide()
	if len(speech.Summary) == 0 || len(slide.Summary) == 0 {
		// Silence or a blank slide: similarity is undefined, not zero.
		return
	}

	reading := detector.Reading{
		Similarity: detector.Score(speech, slide),
		At:         seg.End,
		Segments:   speech.Segments,
	}
	ev := r.det.Observe(reading)
	if !ev.Declared {
		return
	}
	r.metrics.deviations.Add(ctx, 1)

	ep := generate.NewEpisode(r.sessionID, speech, slide, ev.At)
	r.recordEpisodeEvent(ctx, ep, eventstore.EventDeviationDeclared, map[string]any{
		"topic":      ep.Topic,
		"similarity": ev.Similarity,
	})
	r.logger.Info("deviation declared",
		slog.String("episode_id", ep.ID),
		slog.String("topic", ep.Topic),
		slog.Float64("similarity", ev.Similarity))

	if !r.orch.Trigger(ctx, ep) {
		r.metrics.discarded.Add(ctx, 1)
	} else {
		r.model.ClearSpeech()
	}
}

func (r *Runtime) handleManualGenerate(ctx context.Context, req protocol.ManualGenerate) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		r.logger.Warn("manual generate ignored, empty topic")
		return
	}
	ep := generate.NewManualEpisode(r.sessionID, topic, r.model.ActiveSlide(), time.Now().UTC())
	r.logger.Info("manual generation requested",
		slog.String("episode_id", ep.ID),
		slog.String("topic", topic))
	if !r.orch.Trigger(ctx, ep) {
		r.metrics.discarded.Add(ctx, 1)
	}
}

func (r *Runtime) onDraft(ctx context.Context, d generate.DraftSlide) {
	payload, _ := json.Marshal(map[string]any{
		"title":      d.Content.Title,
		"has_visual": d.Visual != nil,
		"manual":     d.Manual,
	})
	if err := r.store.AppendEvent(ctx, eventstore.Event{
		SessionID: d.SessionID,
		EpisodeID: d.EpisodeID,
		Type:      eventstore.EventDraftAssembled,
		Payload:   payload,
	}); err != nil {
		r.logger.Warn("append draft.assembled event failed", slog.String("error", err.Error()))
	}
	r.coord.Enqueue(d)
}

func (r *Runtime) onEpisodeDropped(ctx context.Context, ep generate.Episode, cause error) {
	r.metrics.dropped.Add(ctx, 1)
	r.recordEpisodeEvent(ctx, ep, eventstore.EventEpisodeDropped, map[string]any{
		"topic": ep.Topic,
		"error": cause.Error(),
	})
}

func (r *Runtime) recordEpisodeEvent(ctx context.Context, ep generate.Episode, eventType string, fields map[string]any) {
	payload, _ := json.Marshal(fields)
	if err := r.store.AppendEvent(ctx, eventstore.Event{
		SessionID: ep.SessionID,
		EpisodeID: ep.ID,
		Type:      eventType,
		Payload:   payload,
	}); err != nil {
		r.logger.Warn("append episode event failed",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
	}
}

func (r *Runtime) publishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if subject == protocol.SubjectSlideInserted {
		ctx := context.Background()
		r.metrics.inserted.Add(ctx, 1)
		if msg, ok := v.(protocol.SlideInserted); ok && msg.Stale {
			r.metrics.staleInserts.Add(ctx, 1)
		}
	}
	return r.busClient.Conn().Publish(subject, data)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
