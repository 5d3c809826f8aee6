package deck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/savilabs/savi-core/internal/theme"
)

type mockSlide struct {
	text  string
	slide Slide
}

// Mock is an in-memory deck for tests and credential-free runs.
// Navigation can be scripted to simulate a presenter advancing slides.
type Mock struct {
	mu       sync.Mutex
	slides   []mockSlide
	current  int
	info     theme.DeckStyleInfo
	failures int // remaining calls to fail, for retry tests
	onNav    func(pos int)
}

func NewMock(slideTexts ...string) *Mock {
	m := &Mock{current: 1}
	for _, t := range slideTexts {
		m.slides = append(m.slides, mockSlide{text: t})
	}
	if len(m.slides) == 0 {
		m.slides = append(m.slides, mockSlide{text: "Welcome"})
	}
	return m
}

// SetStyleInfo scripts what DeckInfo reports.
func (m *Mock) SetStyleInfo(info theme.DeckStyleInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
}

// FailNext makes the next n write calls fail, to exercise retries.
func (m *Mock) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// OnNavigate registers a callback fired on every position change,
// scripted or committed.
func (m *Mock) OnNavigate(fn func(pos int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNav = fn
}

// Advance simulates the presenter manually moving to pos.
func (m *Mock) Advance(pos int) {
	m.mu.Lock()
	if pos < 1 {
		pos = 1
	}
	if pos > len(m.slides) {
		pos = len(m.slides)
	}
	m.current = pos
	fn := m.onNav
	m.mu.Unlock()
	if fn != nil {
		fn(pos)
	}
}

// SlideCount reports the deck length.
func (m *Mock) SlideCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slides)
}

// SlideAt returns the rendered slide committed at pos, if any.
func (m *Mock) SlideAt(pos int) (Slide, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos < 1 || pos > len(m.slides) {
		return Slide{}, false
	}
	s := m.slides[pos-1]
	if s.slide.Title == "" {
		return Slide{}, false
	}
	return s.slide, true
}

func (m *Mock) failing() bool {
	if m.failures > 0 {
		m.failures--
		return true
	}
	return false
}

func (m *Mock) InsertSlide(ctx context.Context, pos int, slide Slide) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock surface unreachable")
	}
	if pos < 1 || pos > len(m.slides)+1 {
		return fmt.Errorf("insert position %d out of range", pos)
	}
	entry := mockSlide{text: slideText(slide), slide: slide}
	m.slides = append(m.slides, mockSlide{})
	copy(m.slides[pos:], m.slides[pos-1:])
	m.slides[pos-1] = entry
	if m.current >= pos {
		m.current++
	}
	return nil
}

func (m *Mock) ReplaceSlide(ctx context.Context, pos int, slide Slide) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock surface unreachable")
	}
	if pos < 1 || pos > len(m.slides) {
		return fmt.Errorf("replace position %d out of range", pos)
	}
	m.slides[pos-1] = mockSlide{text: slideText(slide), slide: slide}
	return nil
}

func (m *Mock) Navigate(ctx context.Context, pos int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.failing() {
		m.mu.Unlock()
		return errors.New("mock surface unreachable")
	}
	if pos < 1 || pos > len(m.slides) {
		m.mu.Unlock()
		return fmt.Errorf("navigate position %d out of range", pos)
	}
	m.current = pos
	fn := m.onNav
	m.mu.Unlock()
	if fn != nil {
		fn(pos)
	}
	return nil
}

func (m *Mock) CurrentPosition(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

func (m *Mock) SlideText(ctx context.Context, pos int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos < 1 || pos > len(m.slides) {
		return "", fmt.Errorf("position %d out of range", pos)
	}
	return m.slides[pos-1].text, nil
}

func (m *Mock) DeckInfo(ctx context.Context) (theme.DeckStyleInfo, error) {
	if err := ctx.Err(); err != nil {
		return theme.DeckStyleInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info, nil
}

func (m *Mock) Close() error { return nil }

func slideText(s Slide) string {
	parts := append([]string{s.Title}, s.Points...)
	return strings.Join(parts, "\n")
}
