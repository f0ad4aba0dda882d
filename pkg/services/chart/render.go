// Package chart rasterises chart specs over aggregated tables.
package chart

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 400

	mediaTypePNG = "image/png"
	maxTicks     = 12

	// A render cannot be interrupted once started, so inputs are capped to
	// keep one chart from holding a worker for long.
	maxLinePoints = 10000
	maxCategories = 200
)

// Palette is the fixed series colour cycle. Colours are assigned by series
// position so repeated renders look identical.
var Palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// Renderer draws one chart. Implementations must be safe for concurrent use
// and must not keep state between calls.
type Renderer interface {
	Render(spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.RenderedChart, error)
}

type RendererFunc func(spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.RenderedChart, error)

func (f RendererFunc) Render(spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.RenderedChart, error) {
	return f(spec, table)
}

// PNGRenderer draws charts with go-chart.
type PNGRenderer struct {
	width  int
	height int
}

func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{width: DefaultWidth, height: DefaultHeight}
}

// WithSize sets the image size used by specs that declare none.
func (r *PNGRenderer) WithSize(width, height int) *PNGRenderer {
	if width > 0 {
		r.width = width
	}
	if height > 0 {
		r.height = height
	}
	return r
}

func (r *PNGRenderer) Render(spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.RenderedChart, error) {
	if err := Validate(spec, table); err != nil {
		return nil, err
	}
	width, height := r.size(spec)

	var (
		buf bytes.Buffer
		err error
	)
	switch spec.Kind {
	case domain.ChartLine:
		err = renderLine(&buf, spec, table, width, height)
	case domain.ChartBar:
		err = renderBar(&buf, spec, table, width, height)
	case domain.ChartPie:
		err = renderPie(&buf, spec, table, width, height)
	case domain.ChartTable:
		height, err = renderTable(&buf, spec, table, width)
	}
	if err != nil {
		return nil, domain.NewError(domain.KindRenderError, fmt.Errorf("chart %q: %w", spec.ID, err))
	}

	return &domain.RenderedChart{
		Spec:      spec,
		MediaType: mediaTypePNG,
		Data:      buf.Bytes(),
		Width:     width,
		Height:    height,
	}, nil
}

// Validate checks spec against the table it draws. Failures are RenderErrors.
func Validate(spec domain.ChartSpec, table *domain.AggregatedTable) error {
	fail := func(format string, args ...any) error {
		return domain.Errorf(domain.KindRenderError, "chart %q: "+format, append([]any{spec.ID}, args...)...)
	}
	if !spec.Kind.Valid() {
		return fail("unknown chart kind %q", spec.Kind)
	}
	if table == nil || table.Data == nil {
		return fail("table %q is not available", spec.Table)
	}
	if spec.Kind == domain.ChartTable {
		for _, c := range spec.Columns {
			if _, ok := table.Data.Column(c); !ok {
				return fail("table %q has no column %q", table.Name, c)
			}
		}
		return nil
	}

	if spec.X == "" {
		return fail("x column is required for %s charts", spec.Kind)
	}
	if _, ok := table.Data.Column(spec.X); !ok {
		return fail("table %q has no column %q", table.Name, spec.X)
	}
	if len(spec.Series) == 0 {
		return fail("at least one series is required")
	}
	if spec.Kind == domain.ChartPie && len(spec.Series) != 1 {
		return fail("pie charts take exactly one series, got %d", len(spec.Series))
	}
	for _, s := range spec.Series {
		col, ok := table.Data.Column(s.Column)
		if !ok {
			return fail("series %q references missing column %q", s.Name(), s.Column)
		}
		if col.Type != domain.TypeNumber {
			return fail("series %q column %q is %s, not number", s.Name(), s.Column, col.Type)
		}
		if s.Color != "" && !isHexColor(s.Color) {
			return fail("series %q has invalid colour %q", s.Name(), s.Color)
		}
	}
	switch spec.Kind {
	case domain.ChartLine:
		if points := table.Len() * len(spec.Series); points > maxLinePoints {
			return fail("%d points exceed the limit of %d", points, maxLinePoints)
		}
	default:
		if table.Len() > maxCategories {
			return fail("%d categories exceed the limit of %d", table.Len(), maxCategories)
		}
	}
	return nil
}

func (r *PNGRenderer) size(spec domain.ChartSpec) (int, int) {
	w, h := spec.Width, spec.Height
	if w <= 0 {
		w = r.width
	}
	if h <= 0 {
		h = r.height
	}
	return w, h
}

func isHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// SeriesColor returns the colour of the i-th series of spec.
func SeriesColor(spec domain.ChartSpec, i int) string {
	if i < len(spec.Series) && spec.Series[i].Color != "" {
		return spec.Series[i].Color
	}
	return Palette[i%len(Palette)]
}

func color(hex string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

// labels returns the display label of the x column for every row.
func labels(spec domain.ChartSpec, table *domain.AggregatedTable) []string {
	out := make([]string, table.Len())
	for i := range out {
		out[i] = domain.FormatValue(table.Data.Value(i, spec.X))
	}
	return out
}

func number(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func renderLine(buf *bytes.Buffer, spec domain.ChartSpec, table *domain.AggregatedTable, width, height int) error {
	n := table.Len()
	if n == 0 {
		return fmt.Errorf("table %q has no rows", table.Name)
	}
	xs := labels(spec, table)

	lo, hi := math.Inf(1), math.Inf(-1)
	series := make([]gochart.Series, 0, len(spec.Series))
	for i, s := range spec.Series {
		var xv, yv []float64
		for row := 0; row < n; row++ {
			y, ok := number(table.Data.Value(row, s.Column))
			if !ok {
				continue
			}
			xv = append(xv, float64(row))
			yv = append(yv, y)
			lo, hi = math.Min(lo, y), math.Max(hi, y)
		}
		if len(xv) == 0 {
			continue
		}
		c := color(SeriesColor(spec, i))
		series = append(series, gochart.ContinuousSeries{
			Name:    s.Name(),
			XValues: xv,
			YValues: yv,
			Style: gochart.Style{
				StrokeColor: c,
				StrokeWidth: 2,
				DotColor:    c,
				DotWidth:    dotWidth(len(xv)),
			},
		})
	}
	if len(series) == 0 {
		return fmt.Errorf("no numeric values to plot")
	}

	graph := gochart.Chart{
		Title:  spec.Title,
		Width:  width,
		Height: height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: gochart.XAxis{
			Name:  spec.XLabel,
			Range: &gochart.ContinuousRange{Min: lineMin(n), Max: lineMax(n)},
			Ticks: ticks(xs),
		},
		YAxis: gochart.YAxis{
			Name:  spec.YLabel,
			Range: yRange(lo, hi),
			GridMajorStyle: gochart.Style{
				StrokeColor: drawing.ColorFromHex("e0e0e0"),
				StrokeWidth: 1,
			},
		},
		Series: series,
	}
	if len(series) > 1 {
		graph.Elements = []gochart.Renderable{gochart.LegendThin(&graph)}
	}
	return graph.Render(gochart.PNG, buf)
}

func dotWidth(points int) float64 {
	if points <= 1 {
		return 4
	}
	return 0
}

// lineMin and lineMax centre a single row on the x axis.
func lineMin(n int) float64 {
	if n == 1 {
		return -0.5
	}
	return 0
}

func lineMax(n int) float64 {
	if n == 1 {
		return 0.5
	}
	return float64(n - 1)
}

// ticks spreads at most maxTicks labels evenly over the rows. go-chart
// derives the x range from the ticks, so a single row gets blank ticks on
// either side to keep the range from collapsing.
func ticks(xs []string) []gochart.Tick {
	if len(xs) == 1 {
		return []gochart.Tick{{Value: -0.5}, {Value: 0, Label: xs[0]}, {Value: 0.5}}
	}
	step := 1
	if len(xs) > maxTicks {
		step = int(math.Ceil(float64(len(xs)) / maxTicks))
	}
	out := make([]gochart.Tick, 0, maxTicks+1)
	for i := 0; i < len(xs); i += step {
		out = append(out, gochart.Tick{Value: float64(i), Label: xs[i]})
	}
	if last := len(xs) - 1; last%step != 0 {
		out = append(out, gochart.Tick{Value: float64(last)})
	}
	return out
}

func yRange(lo, hi float64) *gochart.ContinuousRange {
	if lo == hi {
		return &gochart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	pad := (hi - lo) * 0.05
	min := lo - pad
	if lo >= 0 && min < 0 {
		min = 0
	}
	return &gochart.ContinuousRange{Min: min, Max: hi + pad}
}

func renderBar(buf *bytes.Buffer, spec domain.ChartSpec, table *domain.AggregatedTable, width, height int) error {
	n := table.Len()
	if n == 0 {
		return fmt.Errorf("table %q has no rows", table.Name)
	}
	xs := labels(spec, table)

	if len(spec.Series) == 1 {
		c := color(SeriesColor(spec, 0))
		bars := make([]gochart.Value, n)
		for i := range bars {
			v, _ := number(table.Data.Value(i, spec.Series[0].Column))
			bars[i] = gochart.Value{
				Label: xs[i],
				Value: v,
				Style: gochart.Style{FillColor: c, StrokeColor: c},
			}
		}
		graph := gochart.BarChart{
			Title:    spec.Title,
			Width:    width,
			Height:   height,
			BarWidth: barWidth(width, n),
			Background: gochart.Style{
				Padding: gochart.Box{Top: 40},
			},
			YAxis: gochart.YAxis{Name: spec.YLabel, Range: barRange(bars)},
			Bars:  bars,
		}
		return graph.Render(gochart.PNG, buf)
	}

	stacks := make([]gochart.StackedBar, n)
	for i := range stacks {
		values := make([]gochart.Value, 0, len(spec.Series))
		for j, s := range spec.Series {
			v, _ := number(table.Data.Value(i, s.Column))
			if v < 0 {
				return fmt.Errorf("stacked bars cannot show negative value %v in %q", v, s.Column)
			}
			c := color(SeriesColor(spec, j))
			values = append(values, gochart.Value{
				Label: s.Name(),
				Value: v,
				Style: gochart.Style{FillColor: c, StrokeColor: c},
			})
		}
		var total float64
		for _, v := range values {
			total += v.Value
		}
		if total == 0 {
			return fmt.Errorf("stacked bar %q has no values", xs[i])
		}
		stacks[i] = gochart.StackedBar{Name: xs[i], Values: values}
	}
	graph := gochart.StackedBarChart{
		Title:      spec.Title,
		Width:      width,
		Height:     height,
		BarSpacing: 20,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40},
		},
		Bars: stacks,
	}
	return graph.Render(gochart.PNG, buf)
}

func barWidth(width, n int) int {
	w := (width - 80) / (n * 2)
	switch {
	case w < 4:
		return 4
	case w > 60:
		return 60
	}
	return w
}

// barRange always includes zero so bars grow from the axis.
func barRange(bars []gochart.Value) *gochart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, b := range bars {
		lo, hi = math.Min(lo, b.Value), math.Max(hi, b.Value)
	}
	if lo == hi {
		return &gochart.ContinuousRange{Min: 0, Max: 1}
	}
	return &gochart.ContinuousRange{Min: lo, Max: hi + (hi-lo)*0.05}
}

func renderPie(buf *bytes.Buffer, spec domain.ChartSpec, table *domain.AggregatedTable, width, height int) error {
	xs := labels(spec, table)
	column := spec.Series[0].Column

	var values []gochart.Value
	for i := range xs {
		v, ok := number(table.Data.Value(i, column))
		if !ok || v == 0 {
			continue
		}
		if v < 0 {
			return fmt.Errorf("pie slice %q is negative", xs[i])
		}
		c := color(Palette[i%len(Palette)])
		values = append(values, gochart.Value{
			Label: xs[i],
			Value: v,
			Style: gochart.Style{FillColor: c, StrokeColor: drawing.ColorWhite},
		})
	}
	if len(values) == 0 {
		return fmt.Errorf("pie chart has no positive values in %q", column)
	}

	graph := gochart.PieChart{
		Title:  spec.Title,
		Width:  width,
		Height: height,
		Values: values,
	}
	return graph.Render(gochart.PNG, buf)
}
