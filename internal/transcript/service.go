package transcript

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/savilabs/savi-core/internal/bus"
	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/protocol"
)

// Service drains a Source and publishes segments on the bus. It is the
// producing end of the ingestion path; it never waits on downstream
// work beyond the bus publish itself.
type Service struct {
	cfg       config.TranscriptConfig
	bus       *bus.Client
	source    Source
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewService(parent context.Context, cfg config.TranscriptConfig, busClient *bus.Client, source Source, sessionID string, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:       cfg,
		bus:       busClient,
		source:    source,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With(slog.String("component", "transcript-service")),
	}
}

func (s *Service) Start() error {
	stream, err := s.source.Stream(s.ctx)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for seg := range stream {
			if seg.Text == "" {
				continue // silence
			}
			if s.cfg.MinConfidence > 0 && seg.Confidence > 0 && seg.Confidence < s.cfg.MinConfidence {
				continue
			}
			s.publish(seg)
		}
	}()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) publish(seg Segment) {
	msg := protocol.TranscriptSegment{
		SessionID:  s.sessionID,
		Text:       seg.Text,
		Start:      seg.Start.UTC(),
		End:        seg.End.UTC(),
		Confidence: seg.Confidence,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal segment", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscriptSegment, data); err != nil {
		s.logger.Warn("failed to publish segment", slog.String("error", err.Error()))
	}
}

// SegmentFromProtocol converts a bus message back into a Segment.
func SegmentFromProtocol(msg protocol.TranscriptSegment) Segment {
	return Segment{
		Text:       msg.Text,
		Start:      msg.Start,
		End:        msg.End,
		Confidence: msg.Confidence,
	}
}
