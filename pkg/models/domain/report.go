package domain

import (
	"fmt"
	"time"
)

type SectionStatus string

const (
	SectionComplete    SectionStatus = "complete"
	SectionPlaceholder SectionStatus = "placeholder"
)

// SectionLayout is the caller-supplied description of one document section.
type SectionLayout struct {
	Title      string
	Narrative  string
	Tables     []string
	Charts     []string
	Continuous bool
}

// ChartSlot holds either a rendered chart or, when Chart is nil, the reason
// a placeholder is shown in its place.
type ChartSlot struct {
	Spec   ChartSpec
	Chart  *RenderedChart
	Reason string
}

func (s ChartSlot) Placeholder() bool {
	return s.Chart == nil
}

type DocumentSection struct {
	Title      string
	Narrative  string
	Continuous bool
	Tables     []*AggregatedTable
	Charts     []ChartSlot
}

func (s DocumentSection) Status() SectionStatus {
	for _, c := range s.Charts {
		if c.Placeholder() {
			return SectionPlaceholder
		}
	}
	return SectionComplete
}

// ReportDocument is the composed report for one request.
type ReportDocument struct {
	Title    string
	Subtitle string
	Period   TimeRange
	Sections []DocumentSection
	HTML     []byte
}

func (d *ReportDocument) Partial() bool {
	for _, s := range d.Sections {
		if s.Status() == SectionPlaceholder {
			return true
		}
	}
	return false
}

// ReadyForExport reports whether every referenced chart either rendered
// successfully or was explicitly replaced by a placeholder.
func (d *ReportDocument) ReadyForExport() error {
	if len(d.HTML) == 0 {
		return fmt.Errorf("document has no html body")
	}
	for _, s := range d.Sections {
		for _, c := range s.Charts {
			if c.Chart != nil && len(c.Chart.Data) == 0 {
				return fmt.Errorf("chart %q in section %q has no image data", c.Spec.ID, s.Title)
			}
		}
	}
	return nil
}

func (d *ReportDocument) SectionMetadata() []SectionMetadata {
	out := make([]SectionMetadata, 0, len(d.Sections))
	for _, s := range d.Sections {
		out = append(out, SectionMetadata{Title: s.Title, Status: s.Status()})
	}
	return out
}

type SectionMetadata struct {
	Title  string
	Status SectionStatus
}

// TablePlacement records how many rows of a table landed on a PDF page.
type TablePlacement struct {
	Table string
	Page  int
	Rows  int
}

type ArtifactMetadata struct {
	RequestID   string
	ReportType  string
	Format      Format
	GeneratedAt time.Time
	Partial     bool
	Sections    []SectionMetadata
	// Pages and Tables are only set for PDF artifacts.
	Pages  int
	Tables []TablePlacement
}

// ReportArtifact is the final payload returned to the caller. It is not
// retained after the request completes.
type ReportArtifact struct {
	Content     []byte
	ContentType string
	Filename    string
	Metadata    ArtifactMetadata
}

// ReportPreview carries the first chart of a report and its figure.
type ReportPreview struct {
	ReportType string
	Image      *RenderedChart
	Figure     *Figure
	Reason     string
}
