package transcript

import (
	"context"
	"time"
)

// Segment is one utterance from the speech engine. Immutable once
// emitted. Segments arrive ordered by Start; adjacent segments may
// overlap slightly due to engine buffering.
type Segment struct {
	Text       string
	Start      time.Time
	End        time.Time
	Confidence float64
}

// Source abstracts the speech engine. Stream returns a lazy, infinite,
// non-restartable sequence of segments; the channel closes only when
// ctx is done. Implementations must survive engine interruption by
// resuming internally rather than terminating the stream.
type Source interface {
	Stream(ctx context.Context) (<-chan Segment, error)
}
