package chart

import (
	"bytes"
	"fmt"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	tablePadding   = 16
	tableRowHeight = 22
	tableTitle     = 32
	tableFontSize  = 10.0
	tableMaxRows   = 40
)

var (
	headerFill = drawing.ColorFromHex("eceff4")
	stripeFill = drawing.ColorFromHex("f8f9fb")
	ruleColor  = drawing.ColorFromHex("d8dee9")
	textColor  = drawing.ColorFromHex("2e3440")
)

// TableColumns returns the columns a table chart draws.
func TableColumns(spec domain.ChartSpec, table *domain.AggregatedTable) []domain.Column {
	if len(spec.Columns) == 0 {
		return table.Columns()
	}
	out := make([]domain.Column, 0, len(spec.Columns))
	for _, name := range spec.Columns {
		if c, ok := table.Data.Column(name); ok {
			out = append(out, c)
		}
	}
	return out
}

// renderTable draws the table as an image. The height follows from the row
// count, so it is returned alongside any error.
func renderTable(buf *bytes.Buffer, spec domain.ChartSpec, table *domain.AggregatedTable, width int) (int, error) {
	cols := TableColumns(spec, table)
	if len(cols) == 0 {
		return 0, fmt.Errorf("table %q has no columns to draw", table.Name)
	}

	shown := table.Len()
	footer := ""
	if shown > tableMaxRows {
		footer = fmt.Sprintf("%d more rows not shown", shown-tableMaxRows)
		shown = tableMaxRows
	}
	lines := shown + 1
	if footer != "" {
		lines++
	}
	height := tablePadding*2 + tableTitle + lines*tableRowHeight

	r, err := gochart.PNG(width, height)
	if err != nil {
		return 0, err
	}
	font, err := gochart.GetDefaultFont()
	if err != nil {
		return 0, err
	}
	r.SetFont(font)

	fillRect(r, drawing.ColorWhite, 0, 0, width, height)

	r.SetFontColor(textColor)
	r.SetFontSize(tableFontSize + 4)
	r.Text(spec.Title, tablePadding, tablePadding+18)
	r.SetFontSize(tableFontSize)

	inner := width - tablePadding*2
	colWidth := inner / len(cols)
	top := tablePadding + tableTitle

	cell := func(row int, texts []string, fill drawing.Color) {
		y := top + row*tableRowHeight
		fillRect(r, fill, tablePadding, y, tablePadding+inner, y+tableRowHeight)
		for i, text := range texts {
			text = fit(r, text, colWidth-8)
			x := tablePadding + i*colWidth + 4
			if cols[i].Type == domain.TypeNumber && row > 0 {
				x = tablePadding + (i+1)*colWidth - 4 - r.MeasureText(text).Width()
			}
			r.Text(text, x, y+tableRowHeight-7)
		}
		r.SetStrokeColor(ruleColor)
		r.SetStrokeWidth(1)
		r.MoveTo(tablePadding, y+tableRowHeight)
		r.LineTo(tablePadding+inner, y+tableRowHeight)
		r.Stroke()
	}

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	cell(0, header, headerFill)

	for row := 0; row < shown; row++ {
		texts := make([]string, len(cols))
		for i, c := range cols {
			texts[i] = domain.FormatValue(table.Data.Value(row, c.Name))
		}
		fill := drawing.ColorWhite
		if row%2 == 1 {
			fill = stripeFill
		}
		cell(row+1, texts, fill)
	}
	if footer != "" {
		r.Text(footer, tablePadding+4, top+lines*tableRowHeight-7)
	}

	if err := r.Save(buf); err != nil {
		return 0, err
	}
	return height, nil
}

func fillRect(r gochart.Renderer, c drawing.Color, x0, y0, x1, y1 int) {
	r.SetFillColor(c)
	r.MoveTo(x0, y0)
	r.LineTo(x1, y0)
	r.LineTo(x1, y1)
	r.LineTo(x0, y1)
	r.Close()
	r.Fill()
}

// fit shortens text with an ellipsis until it is at most max pixels wide.
func fit(r gochart.Renderer, text string, max int) string {
	if r.MeasureText(text).Width() <= max {
		return text
	}
	runes := []rune(text)
	for len(runes) > 1 {
		runes = runes[:len(runes)-1]
		if s := string(runes) + "..."; r.MeasureText(s).Width() <= max {
			return s
		}
	}
	return string(runes)
}
