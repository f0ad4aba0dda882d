// Package report runs report requests through querying, aggregation, chart
// rendering, composition and export.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/services/aggregation"
)

// Filter is a request parameter a report accepts. Values are parsed as Type
// and applied to Column of every query that lists the filter.
type Filter struct {
	Name     string
	Column   string
	Type     domain.ColumnType
	Required bool
	Multi    bool
}

func (f Filter) column() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Query names one fetch of a report. Source "" is the relational store.
type Query struct {
	Name    string
	Source  string
	Entity  string
	Ranged  bool
	Filters []string
	// Required queries must return rows, otherwise the request fails with
	// NotFound.
	Required bool
	Limit    int
}

// Table aggregates the rows of Query into Spec.Name.
type Table struct {
	Query string
	Spec  aggregation.Spec
}

// Definition declares everything needed to produce one report type.
type Definition struct {
	Type        string
	Title       string
	Subtitle    string
	Description string
	Filters     []Filter
	Queries     []Query
	Tables      []Table
	Charts      []domain.ChartSpec
	Sections    []domain.SectionLayout
	// Expand adjusts the plan of one request when a table or chart shape
	// depends on filter values. The plan is a private copy.
	Expand func(req domain.ReportRequest, p *Plan) error
}

func (d Definition) validate() error {
	filters := map[string]bool{}
	for _, f := range d.Filters {
		if f.Name == "" {
			return fmt.Errorf("filter name cannot be empty")
		}
		if filters[f.Name] {
			return fmt.Errorf("filter %q declared twice", f.Name)
		}
		if f.Type != "" && !f.Type.Valid() {
			return fmt.Errorf("filter %q has unknown type %q", f.Name, f.Type)
		}
		filters[f.Name] = true
	}

	queries := map[string]bool{}
	for _, q := range d.Queries {
		if q.Name == "" || q.Entity == "" {
			return fmt.Errorf("query needs a name and an entity")
		}
		if queries[q.Name] {
			return fmt.Errorf("query %q declared twice", q.Name)
		}
		for _, f := range q.Filters {
			if !filters[f] {
				return fmt.Errorf("query %q uses undeclared filter %q", q.Name, f)
			}
		}
		queries[q.Name] = true
	}

	tables := map[string]bool{}
	for _, t := range d.Tables {
		if t.Spec.Name == "" {
			return fmt.Errorf("table name cannot be empty")
		}
		if tables[t.Spec.Name] {
			return fmt.Errorf("table %q declared twice", t.Spec.Name)
		}
		if !queries[t.Query] {
			return fmt.Errorf("table %q reads unknown query %q", t.Spec.Name, t.Query)
		}
		tables[t.Spec.Name] = true
	}

	charts := map[string]bool{}
	for _, c := range d.Charts {
		if c.ID == "" {
			return fmt.Errorf("chart id cannot be empty")
		}
		if charts[c.ID] {
			return fmt.Errorf("chart %q declared twice", c.ID)
		}
		if !tables[c.Table] {
			return fmt.Errorf("chart %q draws unknown table %q", c.ID, c.Table)
		}
		charts[c.ID] = true
	}

	if len(d.Sections) == 0 {
		return fmt.Errorf("report has no sections")
	}
	for _, s := range d.Sections {
		for _, t := range s.Tables {
			if !tables[t] {
				return fmt.Errorf("section %q shows unknown table %q", s.Title, t)
			}
		}
		for _, c := range s.Charts {
			if !charts[c] {
				return fmt.Errorf("section %q shows unknown chart %q", s.Title, c)
			}
		}
	}
	return nil
}

// PlannedQuery is a query with the request's range and filters applied.
type PlannedQuery struct {
	Name       string
	Required   bool
	Descriptor domain.QueryDescriptor
}

// Plan is a definition bound to one request.
type Plan struct {
	Type     string
	Title    string
	Subtitle string
	Location *time.Location
	Queries  []PlannedQuery
	Tables   []Table
	Charts   []domain.ChartSpec
	Sections []domain.SectionLayout
}

func (p *Plan) Table(name string) (Table, bool) {
	for _, t := range p.Tables {
		if t.Spec.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

func (p *Plan) Chart(id string) (domain.ChartSpec, bool) {
	for _, c := range p.Charts {
		if c.ID == id {
			return c, true
		}
	}
	return domain.ChartSpec{}, false
}

func (p *Plan) query(name string) (PlannedQuery, bool) {
	for _, q := range p.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return PlannedQuery{}, false
}

// plan binds d to req. Filter values are checked and typed here so that a
// bad request fails before any I/O.
func (d Definition) plan(req domain.ReportRequest, loc *time.Location) (*Plan, error) {
	declared := make(map[string]Filter, len(d.Filters))
	for _, f := range d.Filters {
		declared[f.Name] = f
	}

	values := map[string][]any{}
	for _, name := range req.FilterKeys() {
		f, ok := declared[name]
		if !ok {
			return nil, domain.Errorf(domain.KindInvalidRequest, "report %q does not accept filter %q", d.Type, name)
		}
		raw := req.Filter(name)
		if !f.Multi && len(raw) > 1 {
			return nil, domain.Errorf(domain.KindInvalidRequest, "filter %q takes a single value", name)
		}
		parsed := make([]any, 0, len(raw))
		for _, s := range raw {
			v, err := parseFilterValue(f.Type, s)
			if err != nil {
				return nil, domain.Errorf(domain.KindInvalidRequest, "filter %q: %v", name, err)
			}
			parsed = append(parsed, v)
		}
		values[name] = parsed
	}
	for _, f := range d.Filters {
		if f.Required && len(values[f.Name]) == 0 {
			return nil, domain.Errorf(domain.KindInvalidRequest, "report %q requires filter %q", d.Type, f.Name)
		}
	}

	p := &Plan{
		Type:     d.Type,
		Title:    d.Title,
		Subtitle: d.Subtitle,
		Location: loc,
	}
	for _, q := range d.Queries {
		desc := domain.QueryDescriptor{Source: q.Source, Entity: q.Entity, Limit: q.Limit}
		if q.Ranged {
			r := req.Range
			desc.Range = &r
		}
		for _, name := range q.Filters {
			vs, ok := values[name]
			if !ok {
				continue
			}
			col := declared[name].column()
			if len(vs) == 1 {
				desc.Predicates = append(desc.Predicates, domain.Eq(col, vs[0]))
			} else {
				desc.Predicates = append(desc.Predicates, domain.In(col, vs...))
			}
		}
		p.Queries = append(p.Queries, PlannedQuery{Name: q.Name, Required: q.Required, Descriptor: desc})
	}
	for _, t := range d.Tables {
		spec := t.Spec.Clone()
		spec.Location = loc
		p.Tables = append(p.Tables, Table{Query: t.Query, Spec: spec})
	}
	for _, c := range d.Charts {
		p.Charts = append(p.Charts, c.Clone())
	}
	for _, s := range d.Sections {
		s.Tables = append([]string(nil), s.Tables...)
		s.Charts = append([]string(nil), s.Charts...)
		p.Sections = append(p.Sections, s)
	}

	if d.Expand != nil {
		if err := d.Expand(req, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func parseFilterValue(t domain.ColumnType, s string) (any, error) {
	switch t {
	case domain.TypeNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	case domain.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	case domain.TypeTimestamp:
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%q is not an RFC 3339 timestamp", s)
		}
		return ts, nil
	}
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	return s, nil
}
