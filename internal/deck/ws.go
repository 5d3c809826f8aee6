package deck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/protocol"
	"github.com/savilabs/savi-core/internal/theme"
)

// wsRequest is one call to the rendering host.
type wsRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// wsMessage is anything the host sends back: a reply to a request or
// an unsolicited navigation event.
type wsMessage struct {
	ID     string          `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// WSSurface bridges to a rendering host over a websocket. One
// outstanding connection; requests are correlated by ID, navigation
// events are forwarded to the registered callback.
type WSSurface struct {
	conn    *websocket.Conn
	timeout time.Duration
	logger  *slog.Logger
	onNav   func(protocol.DeckNavigation)

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan wsMessage
	closed  bool
}

// DialWS connects to the rendering host. onNav receives navigation
// events pushed by the host; it may be nil.
func DialWS(ctx context.Context, cfg config.DeckConfig, logger *slog.Logger, onNav func(protocol.DeckNavigation)) (*WSSurface, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial deck bridge %s: %w", cfg.Endpoint, err)
	}
	s := &WSSurface{
		conn:    conn,
		timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond,
		logger:  logger.With(slog.String("component", "deck-ws")),
		onNav:   onNav,
		pending: make(map[string]chan wsMessage),
	}
	go s.readPump()
	return s, nil
}

func (s *WSSurface) readPump() {
	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.failPending(err)
			return
		}
		if msg.Event == "navigation" {
			s.dispatchNavigation(msg.Params)
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[msg.ID]
		if ok {
			delete(s.pending, msg.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (s *WSSurface) dispatchNavigation(params json.RawMessage) {
	if s.onNav == nil {
		return
	}
	var nav protocol.DeckNavigation
	if err := json.Unmarshal(params, &nav); err != nil {
		s.logger.Warn("bad navigation event", slog.String("error", err.Error()))
		return
	}
	if nav.Timestamp.IsZero() {
		nav.Timestamp = time.Now().UTC()
	}
	nav.Manual = true
	s.onNav(nav)
}

func (s *WSSurface) failPending(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		delete(s.pending, id)
		ch <- wsMessage{Error: err.Error()}
	}
	s.closed = true
}

func (s *WSSurface) call(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req := wsRequest{ID: uuid.NewString(), Method: method, Params: raw}

	ch := make(chan wsMessage, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("deck bridge closed")
	}
	s.pending[req.ID] = ch
	s.mu.Unlock()

	s.writeMu.Lock()
	err = s.conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return fmt.Errorf("%s timed out after %s", method, s.timeout)
	case msg := <-ch:
		if msg.Error != "" {
			return fmt.Errorf("%s: %s", method, msg.Error)
		}
		if result != nil && len(msg.Result) > 0 {
			return json.Unmarshal(msg.Result, result)
		}
		return nil
	}
}

type slideParams struct {
	Position int   `json:"position"`
	Slide    Slide `json:"slide"`
}

func (s *WSSurface) InsertSlide(ctx context.Context, pos int, slide Slide) error {
	return s.call(ctx, "slide.insert", slideParams{Position: pos, Slide: slide}, nil)
}

func (s *WSSurface) ReplaceSlide(ctx context.Context, pos int, slide Slide) error {
	return s.call(ctx, "slide.replace", slideParams{Position: pos, Slide: slide}, nil)
}

func (s *WSSurface) Navigate(ctx context.Context, pos int) error {
	return s.call(ctx, "slide.goto", map[string]int{"position": pos}, nil)
}

func (s *WSSurface) CurrentPosition(ctx context.Context) (int, error) {
	var out struct {
		Position int `json:"position"`
	}
	if err := s.call(ctx, "deck.position", struct{}{}, &out); err != nil {
		return 0, err
	}
	return out.Position, nil
}

func (s *WSSurface) SlideText(ctx context.Context, pos int) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := s.call(ctx, "slide.text", map[string]int{"position": pos}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (s *WSSurface) DeckInfo(ctx context.Context) (theme.DeckStyleInfo, error) {
	var out theme.DeckStyleInfo
	if err := s.call(ctx, "deck.info", struct{}{}, &out); err != nil {
		return theme.DeckStyleInfo{}, err
	}
	return out, nil
}

func (s *WSSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
