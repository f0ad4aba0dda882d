package aggregation

import (
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
)

type Op string

const (
	OpSum   Op = "sum"
	OpAvg   Op = "avg"
	OpCount Op = "count"
	OpMin   Op = "min"
	OpMax   Op = "max"
)

type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// Bucket truncates a timestamp column into the key column As.
type Bucket struct {
	Column      string
	Granularity Granularity
	As          string
}

func (b Bucket) name() string {
	if b.As != "" {
		return b.As
	}
	return b.Column
}

// Metric reduces Column over each group. A count without a column counts rows.
type Metric struct {
	Name   string
	Column string
	Op     Op
}

// Computed adds a column to every input row before grouping.
type Computed struct {
	Name string
	Expr string
	Type domain.ColumnType
}

// Derived adds a number column to every output row.
type Derived struct {
	Name string
	Expr string
}

// Pivot spreads Metric across one column per declared value of Column.
type Pivot struct {
	Column string
	Values []string
	Metric string
}

type Order struct {
	Column string
	Desc   bool
}

// Spec describes one aggregated table. The zero Location means UTC.
type Spec struct {
	Name     string
	Title    string
	Bucket   *Bucket
	GroupBy  []string
	Computed []Computed
	Metrics  []Metric
	Pivot    *Pivot
	Derived  []Derived
	OrderBy  []Order
	Limit    int
	Location *time.Location
}

func (s Spec) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// keys lists the grouping columns of the input, bucket first.
func (s Spec) keys() []string {
	var keys []string
	if s.Bucket != nil {
		keys = append(keys, s.Bucket.name())
	}
	return append(keys, s.GroupBy...)
}

// outputKeys lists the key columns that survive into the table.
func (s Spec) outputKeys() []string {
	keys := s.keys()
	if s.Pivot == nil {
		return keys
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != s.Pivot.Column {
			out = append(out, k)
		}
	}
	return out
}

// ExpectedColumns returns the column names aggregate produces for s, in
// order. It depends on nothing but s.
func ExpectedColumns(s Spec) []string {
	cols := s.outputKeys()
	if s.Pivot != nil {
		cols = append(cols, s.Pivot.Values...)
	} else {
		for _, m := range s.Metrics {
			cols = append(cols, m.Name)
		}
	}
	for _, d := range s.Derived {
		cols = append(cols, d.Name)
	}
	return cols
}

// Clone returns a copy of s that shares no slices or pointers with it.
func (s Spec) Clone() Spec {
	out := s
	if s.Bucket != nil {
		b := *s.Bucket
		out.Bucket = &b
	}
	if s.Pivot != nil {
		p := *s.Pivot
		p.Values = append([]string(nil), s.Pivot.Values...)
		out.Pivot = &p
	}
	out.GroupBy = append([]string(nil), s.GroupBy...)
	out.Computed = append([]Computed(nil), s.Computed...)
	out.Metrics = append([]Metric(nil), s.Metrics...)
	out.Derived = append([]Derived(nil), s.Derived...)
	out.OrderBy = append([]Order(nil), s.OrderBy...)
	return out
}
