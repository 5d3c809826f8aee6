package slidectx

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/theme"
	"github.com/savilabs/savi-core/internal/transcript"
)

// SpeechContext is an immutable snapshot of the rolling speech window.
type SpeechContext struct {
	Summary  Summary
	Text     string
	Segments int
	From     time.Time
	To       time.Time
}

// SlideContext is the topical fingerprint of the currently displayed
// slide plus the style facts needed to render matching slides. It is
// replaced wholesale on every slide change, never mutated in place.
type SlideContext struct {
	SlideID   string
	Position  int
	Summary   Summary
	Theme     theme.Snapshot
	Generated bool // true when this run inserted the slide
}

type windowEntry struct {
	seg    transcript.Segment
	tokens []string
}

// Model maintains the bounded rolling speech window and the single
// active SlideContext. Observe is the only mutator of the window; the
// active slide is published through an atomic pointer so readers never
// see a partially updated context.
type Model struct {
	cfg config.SpeechConfig

	mu      sync.Mutex
	window  []windowEntry
	counts  map[string]int
	active  atomic.Pointer[SlideContext]
	maxAge  time.Duration
	maxSegs int
}

func NewModel(cfg config.SpeechConfig) *Model {
	m := &Model{
		cfg:     cfg,
		counts:  make(map[string]int),
		maxAge:  time.Duration(cfg.WindowSeconds) * time.Second,
		maxSegs: cfg.WindowSegments,
	}
	empty := SlideContext{Theme: theme.DefaultSnapshot()}
	m.active.Store(&empty)
	return m
}

// Observe folds one segment into the rolling window, evicting entries
// that fall outside the segment/time bounds. Counts are updated
// incrementally: add on entry, subtract on eviction.
func (m *Model) Observe(seg transcript.Segment) {
	tokens := Tokenize(seg.Text, m.cfg.MinTokenLength)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = append(m.window, windowEntry{seg: seg, tokens: tokens})
	for _, t := range tokens {
		m.counts[t]++
	}

	cutoff := seg.End.Add(-m.maxAge)
	evict := 0
	for evict < len(m.window)-1 {
		e := m.window[evict]
		if len(m.window)-evict > m.maxSegs || e.seg.End.Before(cutoff) {
			for _, t := range e.tokens {
				if m.counts[t] <= 1 {
					delete(m.counts, t)
				} else {
					m.counts[t]--
				}
			}
			evict++
			continue
		}
		break
	}
	if evict > 0 {
		m.window = append(m.window[:0], m.window[evict:]...)
	}
}

// SpeechSnapshot returns an immutable copy of the current window state.
func (m *Model) SpeechSnapshot() SpeechContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.window) == 0 {
		return SpeechContext{}
	}
	texts := make([]string, len(m.window))
	for i, e := range m.window {
		texts[i] = e.seg.Text
	}
	return SpeechContext{
		Summary:  weigh(m.counts),
		Text:     strings.Join(texts, " "),
		Segments: len(m.window),
		From:     m.window[0].seg.Start,
		To:       m.window[len(m.window)-1].seg.End,
	}
}

// ClearSpeech drops the rolling window, typically after a deviation has
// been consumed so stale speech does not trigger again.
func (m *Model) ClearSpeech() {
	m.mu.Lock()
	m.window = m.window[:0]
	m.counts = make(map[string]int)
	m.mu.Unlock()
}

// Reset atomically replaces the active SlideContext. Replace then
// publish: the new value is fully built before the pointer swap.
func (m *Model) Reset(slide SlideContext) {
	copied := slide
	m.active.Store(&copied)
}

// ActiveSlide returns the current slide context snapshot.
func (m *Model) ActiveSlide() SlideContext {
	return *m.active.Load()
}
