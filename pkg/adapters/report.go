package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/services/report"
)

const dateLayout = "2006-01-02"

// MapAPIReportRequestToDomain validates the payload shape and resolves the
// range in the requested timezone. A date-only To includes that whole day.
func MapAPIReportRequestToDomain(req api.ReportRequest, defaultLoc *time.Location) (domain.ReportRequest, error) {
	loc := defaultLoc
	if loc == nil {
		loc = time.UTC
	}
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return domain.ReportRequest{}, domain.Errorf(domain.KindInvalidRequest, "unknown timezone %q", tz)
		}
		loc = l
	}

	format, err := domain.ParseFormat(req.Format)
	if err != nil {
		return domain.ReportRequest{}, domain.NewError(domain.KindInvalidRequest, err)
	}

	start, _, err := parseBound(req.From, loc)
	if err != nil {
		return domain.ReportRequest{}, domain.Errorf(domain.KindInvalidRequest, "from: %v", err)
	}
	end, dateOnly, err := parseBound(req.To, loc)
	if err != nil {
		return domain.ReportRequest{}, domain.Errorf(domain.KindInvalidRequest, "to: %v", err)
	}
	if dateOnly {
		end = end.AddDate(0, 0, 1)
	}

	var filters map[string][]string
	for k, vs := range req.Filters {
		var values []string
		for _, v := range vs {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					values = append(values, part)
				}
			}
		}
		if filters == nil {
			filters = map[string][]string{}
		}
		filters[k] = values
	}

	out := domain.ReportRequest{
		Type:     strings.TrimSpace(req.Type),
		Range:    domain.TimeRange{Start: start, End: end},
		Filters:  filters,
		Format:   format,
		Location: loc,
	}
	if err := out.Validate(); err != nil {
		return domain.ReportRequest{}, err
	}
	return out, nil
}

func parseBound(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("value is required")
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected a date (2006-01-02) or an RFC 3339 timestamp, got %q", s)
	}
	return t, false, nil
}

func MapDomainArtifactMetadataToAPI(m domain.ArtifactMetadata) api.ArtifactMetadata {
	out := api.ArtifactMetadata{
		RequestID:   m.RequestID,
		ReportType:  m.ReportType,
		Format:      string(m.Format),
		GeneratedAt: m.GeneratedAt,
		Partial:     m.Partial,
		Sections:    make([]api.SectionMetadata, 0, len(m.Sections)),
		Pages:       m.Pages,
	}
	for _, s := range m.Sections {
		out.Sections = append(out.Sections, api.SectionMetadata{Title: s.Title, Status: string(s.Status)})
	}
	for _, t := range m.Tables {
		out.Tables = append(out.Tables, api.TablePlacement{Table: t.Table, Page: t.Page, Rows: t.Rows})
	}
	return out
}

func MapDefinitionToAPIReportType(def report.Definition) api.ReportType {
	out := api.ReportType{
		Type:        def.Type,
		Title:       def.Title,
		Description: def.Description,
		Filters:     make([]api.ReportFilter, 0, len(def.Filters)),
		Charts:      make([]api.ReportChart, 0, len(def.Charts)),
		Sections:    make([]string, 0, len(def.Sections)),
	}
	for _, f := range def.Filters {
		t := string(f.Type)
		if t == "" {
			t = string(domain.TypeString)
		}
		out.Filters = append(out.Filters, api.ReportFilter{Name: f.Name, Type: t, Required: f.Required, Multi: f.Multi})
	}
	for _, c := range def.Charts {
		out.Charts = append(out.Charts, api.ReportChart{ID: c.ID, Kind: string(c.Kind), Title: c.Title})
	}
	for _, s := range def.Sections {
		out.Sections = append(out.Sections, s.Title)
	}
	return out
}
