package visual

import (
	"context"
	"errors"
)

// ErrNotFound means the provider had no result for the query. Not a
// transport failure: callers fall back to another provider or omit the
// visual.
var ErrNotFound = errors.New("no visual found")

// Asset is a reference to a fetched or rendered visual on disk.
type Asset struct {
	Path string
	Kind string // "chart", "image", "icon"
}

// ChartSpec is the numeric series extracted from generated content.
type ChartSpec struct {
	Type   string    `json:"type"` // "bar" or "pie"
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// ImageSearcher finds a representative photo for keywords.
type ImageSearcher interface {
	SearchImage(ctx context.Context, query string) (Asset, error)
}

// IconSearcher finds a representative icon for keywords.
type IconSearcher interface {
	SearchIcon(ctx context.Context, query string) (Asset, error)
}

// ChartRenderer materializes a chart asset from a spec.
type ChartRenderer interface {
	RenderChart(ctx context.Context, spec ChartSpec) (Asset, error)
}
