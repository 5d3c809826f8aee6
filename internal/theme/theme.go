package theme

import (
	"log/slog"
	"sort"
	"sync"
)

// Snapshot holds the style facts needed to render a slide that matches
// the surrounding deck.
type Snapshot struct {
	TitleFontName string `json:"title_font_name"`
	TitleFontSize int    `json:"title_font_size"`
	BodyFontName  string `json:"body_font_name"`
	BodyFontSize  int    `json:"body_font_size"`
	PrimaryColor  string `json:"primary_color"`
	AccentColor   string `json:"accent_color"`
	Layout        string `json:"layout"`
}

// PlaceholderStyle is one observed placeholder on a slide master.
type PlaceholderStyle struct {
	Kind     string `json:"kind"` // "title" or "body"
	FontName string `json:"font_name"`
	FontSize int    `json:"font_size"`
	Color    string `json:"color"`
}

// DeckStyleInfo is what the deck surface reports about master styles.
type DeckStyleInfo struct {
	Placeholders []PlaceholderStyle `json:"placeholders"`
}

// DefaultSnapshot is used whenever analysis fails. Cosmetic fallback,
// never a reason to abort a draft.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		TitleFontName: "Calibri",
		TitleFontSize: 32,
		BodyFontName:  "Calibri",
		BodyFontSize:  18,
		PrimaryColor:  "000000",
		AccentColor:   "595959",
		Layout:        "text_left_visual_right",
	}
}

// Adapter derives and caches the active theme snapshot. Refresh is
// called at startup and whenever the deck reports theme-relevant edits.
type Adapter struct {
	mu     sync.RWMutex
	snap   Snapshot
	logger *slog.Logger
}

func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{
		snap:   DefaultSnapshot(),
		logger: logger.With(slog.String("component", "theme-adapter")),
	}
}

// Refresh re-derives the snapshot from deck style info. A nil or empty
// info degrades to the default template.
func (a *Adapter) Refresh(info DeckStyleInfo) {
	snap := Analyze(info)
	a.mu.Lock()
	a.snap = snap
	a.mu.Unlock()
	a.logger.Info("theme refreshed",
		slog.String("title_font", snap.TitleFontName),
		slog.String("body_font", snap.BodyFontName))
}

// Snapshot returns the current theme.
func (a *Adapter) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Analyze votes the most common font name, size and color per
// placeholder kind across the deck's masters. Missing data falls back
// to the default template field by field.
func Analyze(info DeckStyleInfo) Snapshot {
	snap := DefaultSnapshot()
	if len(info.Placeholders) == 0 {
		return snap
	}

	var titleFonts, bodyFonts, titleColors, bodyColors []string
	var titleSizes, bodySizes []int
	for _, p := range info.Placeholders {
		switch p.Kind {
		case "title":
			if p.FontName != "" {
				titleFonts = append(titleFonts, p.FontName)
			}
			if p.FontSize > 0 {
				titleSizes = append(titleSizes, p.FontSize)
			}
			if p.Color != "" {
				titleColors = append(titleColors, p.Color)
			}
		case "body":
			if p.FontName != "" {
				bodyFonts = append(bodyFonts, p.FontName)
			}
			if p.FontSize > 0 {
				bodySizes = append(bodySizes, p.FontSize)
			}
			if p.Color != "" {
				bodyColors = append(bodyColors, p.Color)
			}
		}
	}

	if v, ok := mostCommonString(titleFonts); ok {
		snap.TitleFontName = v
	}
	if v, ok := mostCommonInt(titleSizes); ok {
		snap.TitleFontSize = v
	}
	if v, ok := mostCommonString(bodyFonts); ok {
		snap.BodyFontName = v
	}
	if v, ok := mostCommonInt(bodySizes); ok {
		snap.BodyFontSize = v
	}
	if v, ok := mostCommonString(titleColors); ok {
		snap.PrimaryColor = v
	}
	if v, ok := mostCommonString(bodyColors); ok {
		snap.AccentColor = v
	}
	return snap
}

func mostCommonString(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// deterministic tie-break
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, true
}

func mostCommonInt(values []int) (int, bool) {
	if len(values) == 0 {
		return 0, false
	}
	counts := make(map[int]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, true
}
