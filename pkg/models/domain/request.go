package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatHTML, "":
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported format %q, expected html or pdf", s)
}

func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/html; charset=utf-8"
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Days is the number of calendar days covered, rounded up.
func (r TimeRange) Days() int {
	d := r.End.Sub(r.Start)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// ReportRequest identifies what to generate. It is immutable once accepted:
// constructors copy filter slices and nothing in the pipeline mutates it.
type ReportRequest struct {
	ID       string
	Type     string
	Range    TimeRange
	Filters  map[string][]string
	Format   Format
	Location *time.Location
}

// Filter returns a copy of the values for key.
func (r ReportRequest) Filter(key string) []string {
	return append([]string(nil), r.Filters[key]...)
}

// FilterKeys returns filter names in sorted order.
func (r ReportRequest) FilterKeys() []string {
	keys := make([]string, 0, len(r.Filters))
	for k := range r.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r ReportRequest) Timezone() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Validate checks the request shape before any I/O happens.
func (r ReportRequest) Validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return Errorf(KindInvalidRequest, "report type is required")
	}
	if r.Format != FormatHTML && r.Format != FormatPDF {
		return Errorf(KindInvalidRequest, "unsupported format %q", r.Format)
	}
	if r.Range.Start.IsZero() || r.Range.End.IsZero() {
		return Errorf(KindInvalidRequest, "time range is required")
	}
	if !r.Range.Start.Before(r.Range.End) {
		return Errorf(KindInvalidRequest, "time range start %s is not before end %s",
			r.Range.Start.Format(time.RFC3339), r.Range.End.Format(time.RFC3339))
	}
	for k, vs := range r.Filters {
		if k == "" {
			return Errorf(KindInvalidRequest, "empty filter name")
		}
		if len(vs) == 0 {
			return Errorf(KindInvalidRequest, "filter %q has no values", k)
		}
	}
	return nil
}

// Clone returns a deep copy of the request.
func (r ReportRequest) Clone() ReportRequest {
	out := r
	if r.Filters != nil {
		out.Filters = make(map[string][]string, len(r.Filters))
		for k, v := range r.Filters {
			out.Filters[k] = append([]string(nil), v...)
		}
	}
	return out
}
