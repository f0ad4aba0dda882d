// Package export converts composed report HTML into PDF.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 30 * time.Second

	margin    = 15.0
	rowHeight = 6.0
	pxToMM    = 25.4 / 96
)

// epoch is stamped as the creation date so equal input gives equal bytes.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

type Options struct {
	Timeout  time.Duration
	Compress bool
	Author   string
}

func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Compress: true}
}

// PlacedTable records how many rows of a table landed on a page.
type PlacedTable struct {
	Name string
	Page int
	Rows int
}

// Result is the PDF plus a summary of what went on which page.
type Result struct {
	PDF    []byte
	Pages  int
	Tables []PlacedTable
}

type Exporter struct {
	opts Options
}

func NewExporter(opts Options) *Exporter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Exporter{opts: opts}
}

// Export converts src off the calling goroutine. Malformed input is an
// ExportError and a conversion running past the timeout an ExportTimeout.
func (e *Exporter) Export(ctx context.Context, src []byte) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("pdf writer panicked: %v", r)}
			}
		}()
		res, err := e.convert(src)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(e.opts.Timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, domain.NewError(domain.KindExportError, o.err)
		}
		logger.Debug().
			Int("pages", o.res.Pages).
			Int("bytes", len(o.res.PDF)).
			Dur("elapsed", time.Since(start)).
			Msg("pdf exported")
		return o.res, nil
	case <-timer.C:
		logger.Warn().Dur("timeout", e.opts.Timeout).Msg("pdf export timed out")
		return nil, domain.Errorf(domain.KindExportTimeout, "pdf not produced within %s", e.opts.Timeout)
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindRequestCancelled, fmt.Errorf("pdf export: %w", ctx.Err()))
	}
}

func (e *Exporter) convert(src []byte) (*Result, error) {
	doc, err := parse(src)
	if err != nil {
		return nil, err
	}

	w := newWriter(e.opts, doc.title)
	w.pdf.AddPage()
	for _, b := range doc.header {
		w.block(b)
	}
	for i, s := range doc.sections {
		if i > 0 && s.pageBreak {
			w.pdf.AddPage()
		} else if i > 0 || len(doc.header) > 0 {
			w.pdf.Ln(4)
		}
		for _, b := range s.blocks {
			w.block(b)
		}
	}

	var buf bytes.Buffer
	if err := w.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &Result{PDF: buf.Bytes(), Pages: w.pdf.PageCount(), Tables: w.tables}, nil
}

type writer struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	width  float64
	tables []PlacedTable
}

func newWriter(opts Options, title string) *writer {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(epoch)
	pdf.SetModificationDate(epoch)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(opts.Compress)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(title, true)
	if opts.Author != "" {
		pdf.SetAuthor(opts.Author, true)
	}
	pdf.SetCreator("genesis-api", true)

	pageW, _ := pdf.GetPageSize()
	return &writer{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		width: pageW - 2*margin,
	}
}

func (w *writer) block(b block) {
	switch b.kind {
	case blockHeading:
		size := map[int]float64{1: 18, 2: 14, 3: 12}[b.level]
		w.pdf.SetFont("Helvetica", "B", size)
		w.pdf.MultiCell(0, size*0.5, w.tr(b.text), "", "L", false)
		w.pdf.Ln(2)
	case blockParagraph:
		w.pdf.SetFont("Helvetica", "", 10)
		w.pdf.SetTextColor(46, 52, 64)
		if b.class == "subtitle" || b.class == "period" {
			w.pdf.SetTextColor(76, 86, 106)
		}
		w.pdf.MultiCell(0, 5, w.tr(b.text), "", "L", false)
		w.pdf.SetTextColor(0, 0, 0)
		w.pdf.Ln(1)
	case blockTable:
		w.table(b.table)
	case blockImage:
		w.image(b)
	case blockPlaceholder:
		w.placeholder(b)
	}
}

func (w *writer) bottom() float64 {
	_, pageH := w.pdf.GetPageSize()
	return pageH - margin
}

func (w *writer) ensure(h float64) {
	if w.pdf.GetY()+h > w.bottom() {
		w.pdf.AddPage()
	}
}

// table draws a bordered table, repeating the header on every page it
// spans.
func (w *writer) table(t *tableBlock) {
	cols := len(t.header)
	if cols == 0 && len(t.rows) > 0 {
		cols = len(t.rows[0])
	}
	if cols == 0 {
		return
	}
	colW := w.width / float64(cols)

	if t.caption != "" {
		w.ensure(rowHeight * 3)
		w.pdf.SetFont("Helvetica", "B", 10)
		w.pdf.CellFormat(0, rowHeight, w.tr(t.caption), "", 1, "L", false, 0, "")
	}

	header := func() {
		w.pdf.SetFont("Helvetica", "B", 9)
		w.pdf.SetFillColor(236, 239, 244)
		for i, h := range t.header {
			w.pdf.CellFormat(colW, rowHeight, w.fit(h, colW), "1", 0, align(t, i), true, 0, "")
		}
		w.pdf.Ln(-1)
		w.pdf.SetFont("Helvetica", "", 9)
	}

	w.ensure(rowHeight * 2)
	header()
	placed := PlacedTable{Name: t.name, Page: w.pdf.PageNo()}
	for _, row := range t.rows {
		if w.pdf.GetY()+rowHeight > w.bottom() {
			w.tables = append(w.tables, placed)
			w.pdf.AddPage()
			header()
			placed = PlacedTable{Name: t.name, Page: w.pdf.PageNo()}
		}
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			w.pdf.CellFormat(colW, rowHeight, w.fit(cell, colW), "1", 0, align(t, i), false, 0, "")
		}
		w.pdf.Ln(-1)
		placed.Rows++
	}
	w.tables = append(w.tables, placed)
	w.pdf.Ln(3)
}

func align(t *tableBlock, i int) string {
	if i < len(t.numeric) && t.numeric[i] {
		return "R"
	}
	return "L"
}

// fit translates s and cuts it to the cell width.
func (w *writer) fit(s string, width float64) string {
	s = w.tr(s)
	max := width - 2
	if w.pdf.GetStringWidth(s) <= max {
		return s
	}
	for len(s) > 1 {
		s = s[:len(s)-1]
		if w.pdf.GetStringWidth(s+"...") <= max {
			return s + "..."
		}
	}
	return s
}

func (w *writer) image(b block) {
	img := b.image
	info := w.pdf.RegisterImageOptionsReader(img.id, fpdf.ImageOptions{ImageType: img.format}, bytes.NewReader(img.data))
	if w.pdf.Err() {
		return
	}

	width := float64(img.width) * pxToMM
	if width <= 0 {
		width = info.Width()
	}
	if width > w.width {
		width = w.width
	}
	height := width * info.Height() / info.Width()

	w.ensure(height + rowHeight)
	x, y := w.pdf.GetX(), w.pdf.GetY()
	w.pdf.ImageOptions(img.id, x, y, width, height, false, fpdf.ImageOptions{ImageType: img.format}, 0, "")
	w.pdf.SetY(y + height + 1)
	w.caption(b.caption)
}

func (w *writer) placeholder(b block) {
	const boxH = 30.0
	w.ensure(boxH + rowHeight)
	x, y := w.pdf.GetX(), w.pdf.GetY()

	w.pdf.SetDrawColor(191, 97, 106)
	w.pdf.SetDashPattern([]float64{2, 1}, 0)
	w.pdf.Rect(x, y, w.width, boxH, "D")
	w.pdf.SetDashPattern([]float64{}, 0)
	w.pdf.SetDrawColor(0, 0, 0)

	w.pdf.SetFont("Helvetica", "B", 11)
	w.pdf.SetTextColor(191, 97, 106)
	w.pdf.SetXY(x, y+boxH/2-rowHeight/2)
	w.pdf.CellFormat(w.width, rowHeight, w.tr(b.text), "", 1, "C", false, 0, "")
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.SetY(y + boxH + 1)
	w.caption(b.caption)
}

func (w *writer) caption(s string) {
	if s == "" {
		return
	}
	w.pdf.SetFont("Helvetica", "I", 9)
	w.pdf.MultiCell(0, 4.5, w.tr(s), "", "L", false)
	w.pdf.Ln(3)
}
