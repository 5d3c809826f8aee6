package theme

import (
	"io"
	"log/slog"
	"testing"
)

func TestAnalyzeVotesMostCommon(t *testing.T) {
	info := DeckStyleInfo{Placeholders: []PlaceholderStyle{
		{Kind: "title", FontName: "Georgia", FontSize: 40, Color: "1A1A2E"},
		{Kind: "title", FontName: "Georgia", FontSize: 40, Color: "1A1A2E"},
		{Kind: "title", FontName: "Arial", FontSize: 36, Color: "000000"},
		{Kind: "body", FontName: "Verdana", FontSize: 20, Color: "333333"},
		{Kind: "body", FontName: "Verdana", FontSize: 18, Color: "333333"},
	}}

	snap := Analyze(info)
	if snap.TitleFontName != "Georgia" || snap.TitleFontSize != 40 {
		t.Fatalf("unexpected title style: %+v", snap)
	}
	if snap.BodyFontName != "Verdana" {
		t.Fatalf("unexpected body font: %s", snap.BodyFontName)
	}
	if snap.PrimaryColor != "1A1A2E" || snap.AccentColor != "333333" {
		t.Fatalf("unexpected colors: %+v", snap)
	}
}

func TestAnalyzeEmptyFallsBackToDefault(t *testing.T) {
	snap := Analyze(DeckStyleInfo{})
	if snap != DefaultSnapshot() {
		t.Fatalf("expected default snapshot, got %+v", snap)
	}
}

func TestAnalyzePartialDataKeepsDefaultsPerField(t *testing.T) {
	info := DeckStyleInfo{Placeholders: []PlaceholderStyle{
		{Kind: "title", FontName: "Futura"},
	}}
	snap := Analyze(info)
	if snap.TitleFontName != "Futura" {
		t.Fatalf("expected observed title font, got %s", snap.TitleFontName)
	}
	if snap.TitleFontSize != DefaultSnapshot().TitleFontSize {
		t.Fatalf("expected default title size, got %d", snap.TitleFontSize)
	}
	if snap.BodyFontName != DefaultSnapshot().BodyFontName {
		t.Fatalf("expected default body font, got %s", snap.BodyFontName)
	}
}

func TestAdapterRefreshAndSnapshot(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewAdapter(logger)
	if a.Snapshot() != DefaultSnapshot() {
		t.Fatal("adapter should start with default snapshot")
	}
	a.Refresh(DeckStyleInfo{Placeholders: []PlaceholderStyle{
		{Kind: "title", FontName: "Lato", FontSize: 44, Color: "0B3D91"},
	}})
	if got := a.Snapshot(); got.TitleFontName != "Lato" || got.PrimaryColor != "0B3D91" {
		t.Fatalf("refresh not applied: %+v", got)
	}
}
