package protocol

import "time"

// TranscriptSegment is one timestamped utterance emitted by the
// transcript adapter. Immutable once published; ordered by Start.
// Adjacent segments may overlap slightly due to engine buffering.
type TranscriptSegment struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Confidence float64   `json:"confidence,omitempty"`
}

// DeckNavigation announces a slide change on the live deck, manual or
// automatic. Consumers re-seed slide context from it.
type DeckNavigation struct {
	SessionID string    `json:"session_id"`
	Position  int       `json:"position"`
	Manual    bool      `json:"manual"`
	Timestamp time.Time `json:"timestamp"`
}

// SlideInserted announces a generated slide committed into the deck.
type SlideInserted struct {
	SessionID string    `json:"session_id"`
	EpisodeID string    `json:"episode_id"`
	Position  int       `json:"position"`
	Title     string    `json:"title"`
	Replaced  bool      `json:"replaced"`
	Stale     bool      `json:"stale,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ManualGenerate requests a slide for an operator-supplied topic,
// bypassing the deviation detector.
type ManualGenerate struct {
	SessionID string    `json:"session_id"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// ThemeRefresh asks the theme adapter to re-analyze deck styles.
type ThemeRefresh struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptSegment = "transcript.segment"
	SubjectDeckNavigation    = "deck.navigation"
	SubjectSlideInserted     = "slide.inserted"
	SubjectManualGenerate    = "slide.generate.manual"
	SubjectThemeRefresh      = "theme.refresh"
)
