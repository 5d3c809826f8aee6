package visual

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// svgChartRenderer draws bar and pie charts as standalone SVG files.
type svgChartRenderer struct {
	cache *AssetCache
}

func NewSVGChartRenderer(cache *AssetCache) ChartRenderer {
	return &svgChartRenderer{cache: cache}
}

const (
	chartWidth  = 600
	chartHeight = 400
)

var chartPalette = []string{
	"#4285F4", "#34A853", "#FBBC05", "#EA4335",
	"#5F6368", "#185ABC", "#137333", "#B06000",
}

func (r *svgChartRenderer) RenderChart(ctx context.Context, spec ChartSpec) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	if len(spec.Values) == 0 || len(spec.Labels) != len(spec.Values) {
		return Asset{}, fmt.Errorf("chart spec has %d labels and %d values", len(spec.Labels), len(spec.Values))
	}

	var svg string
	switch spec.Type {
	case "pie":
		svg = renderPie(spec)
	default:
		svg = renderBars(spec)
	}

	path, err := r.cache.Put([]byte(svg), ".svg")
	if err != nil {
		return Asset{}, err
	}
	return Asset{Path: path, Kind: "chart"}, nil
}

func renderBars(spec ChartSpec) string {
	var b strings.Builder
	header(&b, spec.Title)

	maxVal := spec.Values[0]
	for _, v := range spec.Values[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	const marginLeft, marginTop, marginBottom = 50, 60, 60
	plotW := float64(chartWidth - marginLeft - 20)
	plotH := float64(chartHeight - marginTop - marginBottom)
	n := len(spec.Values)
	slot := plotW / float64(n)
	barW := slot * 0.7

	for i, v := range spec.Values {
		h := plotH * (v / maxVal)
		x := float64(marginLeft) + float64(i)*slot + (slot-barW)/2
		y := float64(marginTop) + plotH - h
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`,
			x, y, barW, h, chartPalette[i%len(chartPalette)])
		fmt.Fprintf(&b, `<text x="%.1f" y="%d" font-size="12" text-anchor="middle">%s</text>`,
			x+barW/2, chartHeight-marginBottom+20, escape(spec.Labels[i]))
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" text-anchor="middle">%s</text>`,
			x+barW/2, y-6, trimNumber(v))
	}
	b.WriteString("</svg>")
	return b.String()
}

func renderPie(spec ChartSpec) string {
	var b strings.Builder
	header(&b, spec.Title)

	var total float64
	for _, v := range spec.Values {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		total = 1
	}

	cx, cy, radius := float64(chartWidth)/2, float64(chartHeight)/2+20, 130.0
	angle := -math.Pi / 2
	for i, v := range spec.Values {
		if v <= 0 {
			continue
		}
		sweep := 2 * math.Pi * (v / total)
		x1 := cx + radius*math.Cos(angle)
		y1 := cy + radius*math.Sin(angle)
		angle += sweep
		x2 := cx + radius*math.Cos(angle)
		y2 := cy + radius*math.Sin(angle)
		large := 0
		if sweep > math.Pi {
			large = 1
		}
		fmt.Fprintf(&b, `<path d="M%.1f,%.1f L%.1f,%.1f A%.1f,%.1f 0 %d 1 %.1f,%.1f Z" fill="%s"/>`,
			cx, cy, x1, y1, radius, radius, large, x2, y2, chartPalette[i%len(chartPalette)])

		mid := angle - sweep/2
		lx := cx + (radius+24)*math.Cos(mid)
		ly := cy + (radius+24)*math.Sin(mid)
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="12" text-anchor="middle">%s (%.1f%%)</text>`,
			lx, ly, escape(spec.Labels[i]), 100*v/total)
	}
	b.WriteString("</svg>")
	return b.String()
}

func header(b *strings.Builder, title string) {
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="sans-serif">`,
		chartWidth, chartHeight)
	fmt.Fprintf(b, `<rect width="%d" height="%d" fill="white"/>`, chartWidth, chartHeight)
	if title != "" {
		fmt.Fprintf(b, `<text x="%d" y="30" font-size="16" font-weight="bold" text-anchor="middle">%s</text>`,
			chartWidth/2, escape(title))
	}
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func trimNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
