package transcript

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMockSourceEmitsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewMockSource([]string{"alpha", "beta"}, 5*time.Millisecond)
	stream, err := src.Stream(ctx)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var got []string
	for seg := range stream {
		got = append(got, seg.Text)
		if len(got) == 3 {
			cancel()
			break
		}
	}
	if got[0] != "alpha" || got[1] != "beta" || got[2] != "alpha" {
		t.Fatalf("unexpected sequence: %v", got)
	}
	cancel()
}

func TestExecLineParsing(t *testing.T) {
	raw := `{"text":" the roadmap shifts next quarter ","start":12.48,"end":15.02,"confidence":0.91}`
	var parsed execLine
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := msOffset(parsed.Start); got != 12480*time.Millisecond {
		t.Fatalf("expected 12.48s offset, got %v", got)
	}
	if got := msOffset(parsed.End); got != 15020*time.Millisecond {
		t.Fatalf("expected 15.02s offset, got %v", got)
	}
	if parsed.Confidence != 0.91 {
		t.Fatalf("expected confidence 0.91, got %v", parsed.Confidence)
	}
}

func TestMsOffsetFractional(t *testing.T) {
	d := decimal.RequireFromString("0.333")
	if got := msOffset(d); got != 333*time.Millisecond {
		t.Fatalf("expected 333ms, got %v", got)
	}
}
