// Package document assembles report sections into a self-contained HTML
// document.
package document

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
)

//go:embed templates/report.html.tmpl
var templates embed.FS

// Input is everything one document is built from. Charts holds the settled
// outcome of every render attempt, matched to sections by spec ID.
type Input struct {
	Title    string
	Subtitle string
	Period   domain.TimeRange
	Location *time.Location
	Sections []domain.SectionLayout
	Tables   map[string]*domain.AggregatedTable
	Charts   []domain.ChartOutcome
}

type Composer struct {
	tmpl *template.Template
}

func NewComposer() (*Composer, error) {
	tmpl, err := template.ParseFS(templates, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &Composer{tmpl: tmpl}, nil
}

// Compose lays the sections out in the order given. A chart without a
// successful render is kept in place as a placeholder with the reason. The
// HTML depends only on the input, so equal inputs give equal bytes.
func (c *Composer) Compose(in Input) (*domain.ReportDocument, error) {
	outcomes := make(map[string]domain.ChartOutcome, len(in.Charts))
	for _, o := range in.Charts {
		outcomes[o.Spec.ID] = o
	}

	doc := &domain.ReportDocument{
		Title:    in.Title,
		Subtitle: in.Subtitle,
		Period:   in.Period,
		Sections: make([]domain.DocumentSection, 0, len(in.Sections)),
	}
	view := documentView{
		Title:    in.Title,
		Subtitle: in.Subtitle,
		Period:   formatPeriod(in.Period, in.Location),
	}

	for _, layout := range in.Sections {
		section := domain.DocumentSection{
			Title:      layout.Title,
			Narrative:  layout.Narrative,
			Continuous: layout.Continuous,
		}
		sv := sectionView{
			Title:      layout.Title,
			Continuous: layout.Continuous,
			Paragraphs: paragraphs(layout.Narrative),
		}

		for _, name := range layout.Tables {
			table, ok := in.Tables[name]
			if !ok || table == nil {
				return nil, domain.Errorf(domain.KindAggregationError, "section %q references table %q, which was not produced", layout.Title, name)
			}
			section.Tables = append(section.Tables, table)
			sv.Tables = append(sv.Tables, newTableView(table))
		}

		for _, id := range layout.Charts {
			o, ok := outcomes[id]
			slot := domain.ChartSlot{Spec: o.Spec}
			switch {
			case !ok:
				slot.Spec = domain.ChartSpec{ID: id}
				slot.Reason = "chart was not rendered"
			case o.OK():
				slot.Chart = o.Chart
			default:
				slot.Reason = PlaceholderReason(o.Err)
			}
			section.Charts = append(section.Charts, slot)
			sv.Charts = append(sv.Charts, newChartView(slot))
		}

		doc.Sections = append(doc.Sections, section)
		view.Sections = append(view.Sections, sv)
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("execute report template: %w", err)
	}
	doc.HTML = buf.Bytes()
	return doc, nil
}

type documentView struct {
	Title    string
	Subtitle string
	Period   string
	Sections []sectionView
}

type sectionView struct {
	Title      string
	Continuous bool
	Paragraphs []string
	Tables     []tableView
	Charts     []chartView
}

type cellView struct {
	Text    string
	Numeric bool
}

type tableView struct {
	Name   string
	Title  string
	Header []cellView
	Rows   [][]cellView
}

type chartView struct {
	ID     string
	Title  string
	Image  template.URL
	Width  int
	Height int
	Reason string
}

func newTableView(t *domain.AggregatedTable) tableView {
	cols := t.Columns()
	v := tableView{Name: t.Name, Title: t.Title}
	if v.Title == "" {
		v.Title = t.Name
	}
	for _, c := range cols {
		v.Header = append(v.Header, cellView{Text: c.Name, Numeric: c.Type == domain.TypeNumber})
	}
	for i := 0; i < t.Len(); i++ {
		row := make([]cellView, len(cols))
		for j, c := range cols {
			row[j] = cellView{
				Text:    domain.FormatValue(t.Data.Value(i, c.Name)),
				Numeric: c.Type == domain.TypeNumber,
			}
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

func newChartView(slot domain.ChartSlot) chartView {
	v := chartView{ID: slot.Spec.ID, Title: slot.Spec.Title, Reason: slot.Reason}
	if v.Title == "" {
		v.Title = slot.Spec.ID
	}
	if slot.Chart != nil {
		// data URIs are produced here from our own PNG bytes
		v.Image = template.URL(slot.Chart.DataURI())
		v.Width = slot.Chart.Width
		v.Height = slot.Chart.Height
	}
	return v
}

// PlaceholderReason is the caption shown in place of a chart that failed.
func PlaceholderReason(err error) string {
	switch domain.KindOf(err) {
	case domain.KindRenderTimeout:
		return "rendering timed out"
	case domain.KindRequestCancelled:
		return "rendering was cancelled"
	}
	var pe *domain.PipelineError
	switch {
	case errors.As(err, &pe):
		return "rendering failed: " + pe.Message()
	case err != nil:
		return "rendering failed: " + err.Error()
	}
	return "rendering failed"
}

// paragraphs splits narrative on blank lines.
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// formatPeriod shows the half-open range as inclusive local dates.
func formatPeriod(r domain.TimeRange, loc *time.Location) string {
	if r.Start.IsZero() || r.End.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	last := r.End.Add(-time.Nanosecond).In(loc)
	return fmt.Sprintf("%s to %s (%s)", r.Start.In(loc).Format("2006-01-02"), last.Format("2006-01-02"), loc.String())
}
