package deck

import (
	"context"

	"github.com/savilabs/savi-core/internal/theme"
)

// Slide is the render payload handed to the live deck. Positions are
// 1-based, matching how presentation hosts number slides.
type Slide struct {
	Title      string         `json:"title"`
	Points     []string       `json:"points"`
	Layout     string         `json:"layout"`
	VisualPath string         `json:"visual_path,omitempty"`
	VisualKind string         `json:"visual_kind,omitempty"`
	Theme      theme.Snapshot `json:"theme"`
	Watermark  string         `json:"watermark,omitempty"`
}

// Surface is the write interface to the presentation being shown.
// Implementations must tolerate concurrent callers; the insertion
// coordinator is the only writer but health checks read positions.
type Surface interface {
	InsertSlide(ctx context.Context, pos int, slide Slide) error
	ReplaceSlide(ctx context.Context, pos int, slide Slide) error
	Navigate(ctx context.Context, pos int) error
	CurrentPosition(ctx context.Context) (int, error)
	SlideText(ctx context.Context, pos int) (string, error)
	DeckInfo(ctx context.Context) (theme.DeckStyleInfo, error)
	Close() error
}
