package visual

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func newCache(t *testing.T) *AssetCache {
	t.Helper()
	cache, err := NewAssetCache(t.TempDir())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache
}

func TestAssetCacheDedupes(t *testing.T) {
	cache := newCache(t)
	p1, err := cache.Put([]byte("same content"), ".svg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	p2, err := cache.Put([]byte("same content"), ".svg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("identical content produced different paths: %s vs %s", p1, p2)
	}
	p3, err := cache.Put([]byte("other content"), ".svg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if p3 == p1 {
		t.Fatal("different content collided")
	}
}

func TestAssetCacheCleanup(t *testing.T) {
	cache := newCache(t)
	p, err := cache.Put([]byte("ephemeral"), ".png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatal("expected asset removed")
	}
}

func TestRenderBarChart(t *testing.T) {
	r := NewSVGChartRenderer(newCache(t))
	asset, err := r.RenderChart(context.Background(), ChartSpec{
		Type:   "bar",
		Title:  "Quarterly Revenue",
		Labels: []string{"Q1", "Q2", "Q3"},
		Values: []float64{120, 180, 90},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	svg := string(data)
	if !strings.Contains(svg, "Quarterly Revenue") {
		t.Fatal("missing title")
	}
	if strings.Count(svg, "<rect") < 4 { // background + 3 bars
		t.Fatalf("expected 3 bars, got: %s", svg)
	}
	if asset.Kind != "chart" {
		t.Fatalf("unexpected kind %q", asset.Kind)
	}
}

func TestRenderPieChart(t *testing.T) {
	r := NewSVGChartRenderer(newCache(t))
	asset, err := r.RenderChart(context.Background(), ChartSpec{
		Type:   "pie",
		Title:  "Revenue Split",
		Labels: []string{"Ads", "Cloud", "Other"},
		Values: []float64{60, 30, 10},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	data, _ := os.ReadFile(asset.Path)
	if strings.Count(string(data), "<path") != 3 {
		t.Fatalf("expected 3 slices: %s", data)
	}
}

func TestRenderChartRejectsMismatchedSpec(t *testing.T) {
	r := NewSVGChartRenderer(newCache(t))
	_, err := r.RenderChart(context.Background(), ChartSpec{
		Labels: []string{"a", "b"},
		Values: []float64{1},
	})
	if err == nil {
		t.Fatal("expected error for mismatched labels/values")
	}
}

func TestPexelsSearchTopHit(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/search") {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"photos":[{"src":{"large":"` + "http://" + r.Host + `/img.jpg"}}]}`))
			return
		}
		w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	s := &pexelsSearcher{apiKey: "px-key", baseURL: srv.URL, client: srv.Client(), cache: newCache(t)}
	asset, err := s.SearchImage(context.Background(), "solar panels")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotAuth != "px-key" {
		t.Fatalf("expected api key header, got %q", gotAuth)
	}
	if asset.Kind != "image" {
		t.Fatalf("unexpected kind %q", asset.Kind)
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil || string(data) != "jpegbytes" {
		t.Fatalf("unexpected downloaded asset: %q %v", data, err)
	}
}

func TestPexelsNoResultsIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"photos":[]}`))
	}))
	defer srv.Close()

	s := &pexelsSearcher{apiKey: "k", baseURL: srv.URL, client: srv.Client(), cache: newCache(t)}
	_, err := s.SearchImage(context.Background(), "nothing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNounProjectSearchSignsRequest(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/icon" {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"icons":[{"thumbnail_url":"` + "http://" + r.Host + `/icon.png"}]}`))
			return
		}
		w.Write([]byte("pngbytes"))
	}))
	defer srv.Close()

	s := &nounProjectSearcher{
		key: "np-key", secret: "np-secret",
		baseURL: srv.URL, client: srv.Client(), cache: newCache(t),
		clock: func() (t time.Time) { return time.Unix(1700000000, 0) },
	}
	asset, err := s.SearchIcon(context.Background(), "growth")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.HasPrefix(gotAuth, "OAuth ") || !strings.Contains(gotAuth, `oauth_consumer_key="np-key"`) {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if asset.Kind != "icon" {
		t.Fatalf("unexpected kind %q", asset.Kind)
	}
}

func TestNounProjectEmptyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"icons":[]}`))
	}))
	defer srv.Close()

	s := &nounProjectSearcher{key: "k", secret: "s", baseURL: srv.URL, client: srv.Client(), cache: newCache(t), clock: time.Now}
	_, err := s.SearchIcon(context.Background(), "nothing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
