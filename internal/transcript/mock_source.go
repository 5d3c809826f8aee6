package transcript

import (
	"context"
	"time"
)

type mockSource struct {
	lines    []string
	interval time.Duration
}

// NewMockSource emits the given lines on a fixed cadence, looping
// forever. Useful for demos and for exercising the pipeline without a
// speech engine.
func NewMockSource(lines []string, interval time.Duration) Source {
	if len(lines) == 0 {
		lines = []string{"mock utterance"}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &mockSource{lines: lines, interval: interval}
}

func (m *mockSource) Stream(ctx context.Context) (<-chan Segment, error) {
	out := make(chan Segment)
	go func() {
		defer close(out)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				seg := Segment{
					Text:       m.lines[i%len(m.lines)],
					Start:      now.Add(-m.interval),
					End:        now,
					Confidence: 1,
				}
				i++
				select {
				case out <- seg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
