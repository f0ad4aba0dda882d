package domain

import (
	"encoding/base64"
	"time"
)

type ChartKind string

const (
	ChartLine  ChartKind = "line"
	ChartBar   ChartKind = "bar"
	ChartPie   ChartKind = "pie"
	ChartTable ChartKind = "table"
)

func (k ChartKind) Valid() bool {
	switch k {
	case ChartLine, ChartBar, ChartPie, ChartTable:
		return true
	}
	return false
}

// SeriesSpec maps one numeric column of the source table onto a chart series.
type SeriesSpec struct {
	Column string `json:"column"`
	Label  string `json:"label,omitempty"`
	Color  string `json:"color,omitempty"`
}

func (s SeriesSpec) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Column
}

// ChartSpec is a declarative, engine-independent chart description.
type ChartSpec struct {
	ID     string       `json:"id"`
	Kind   ChartKind    `json:"kind"`
	Title  string       `json:"title"`
	Table  string       `json:"table"`
	X      string       `json:"x,omitempty"`
	Series []SeriesSpec `json:"series,omitempty"`
	// Columns lists the columns drawn by table charts; empty means all.
	Columns []string `json:"columns,omitempty"`
	XLabel  string   `json:"x_label,omitempty"`
	YLabel  string   `json:"y_label,omitempty"`
	Width   int      `json:"width,omitempty"`
	Height  int      `json:"height,omitempty"`
}

func (s ChartSpec) Clone() ChartSpec {
	out := s
	out.Series = append([]SeriesSpec(nil), s.Series...)
	out.Columns = append([]string(nil), s.Columns...)
	return out
}

// RenderedChart is a rasterised chart plus the spec it came from.
type RenderedChart struct {
	Spec      ChartSpec
	MediaType string
	Data      []byte
	Width     int
	Height    int
	Elapsed   time.Duration
}

func (c *RenderedChart) DataURI() string {
	return "data:" + c.MediaType + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

// ChartOutcome is the settled result of one render attempt: exactly one of
// Chart and Err is set.
type ChartOutcome struct {
	Spec  ChartSpec
	Chart *RenderedChart
	Err   error
}

func (o ChartOutcome) OK() bool {
	return o.Err == nil && o.Chart != nil
}

// Figure is the declarative, JSON-serialisable form of a chart used by
// interactive clients.
type Figure struct {
	ID         string         `json:"id"`
	ChartType  ChartKind      `json:"chartType"`
	Title      string         `json:"title"`
	XAxis      string         `json:"xAxis,omitempty"`
	YAxis      string         `json:"yAxis,omitempty"`
	Series     []FigureSeries `json:"series"`
	Columns    []string       `json:"columns,omitempty"`
	Rows       [][]string     `json:"rows,omitempty"`
	Colors     []string       `json:"colors,omitempty"`
	ShowLegend bool           `json:"showLegend"`
	ShowGrid   bool           `json:"showGrid"`
}

type FigureSeries struct {
	Name  string        `json:"name"`
	Data  []FigurePoint `json:"data"`
	Color string        `json:"color,omitempty"`
}

type FigurePoint struct {
	Label string   `json:"label"`
	Value *float64 `json:"value"`
}
