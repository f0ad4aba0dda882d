// Package aggregation turns row sets into summary tables.
package aggregation

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
)

type group struct {
	key  []any
	accs []*accumulator
}

// Aggregate derives the table described by spec from rs. It reads rs only
// and keeps no state, so equal inputs always give equal tables. Errors are
// tagged AggregationError.
func Aggregate(rs *domain.RowSet, spec Spec) (*domain.AggregatedTable, error) {
	if rs == nil {
		return nil, domain.Errorf(domain.KindAggregationError, "table %q: no input rows", spec.Name)
	}
	table, err := aggregate(rs, spec)
	if err != nil {
		return nil, domain.NewError(domain.KindAggregationError, fmt.Errorf("table %q: %w", spec.Name, err))
	}
	return table, nil
}

func aggregate(rs *domain.RowSet, spec Spec) (*domain.AggregatedTable, error) {
	schema := map[string]domain.ColumnType{}
	for _, c := range rs.Columns() {
		schema[c.Name] = c.Type
	}

	computed, err := compileComputed(spec.Computed, schema)
	if err != nil {
		return nil, err
	}
	if b := spec.Bucket; b != nil {
		t, ok := schema[b.Column]
		if !ok {
			return nil, fmt.Errorf("bucket column %q not found", b.Column)
		}
		if t != domain.TypeTimestamp {
			return nil, fmt.Errorf("bucket column %q is %s, not timestamp", b.Column, t)
		}
		if _, err := BucketStart(time.Time{}, b.Granularity, time.UTC); err != nil {
			return nil, err
		}
		schema[b.name()] = domain.TypeTimestamp
	}

	keys := spec.keys()
	for _, k := range keys {
		if _, ok := schema[k]; !ok {
			return nil, fmt.Errorf("group column %q not found", k)
		}
	}
	if err := validateMetrics(spec.Metrics, schema); err != nil {
		return nil, err
	}
	if p := spec.Pivot; p != nil {
		if !slices.Contains(keys, p.Column) {
			return nil, fmt.Errorf("pivot column %q is not a group key", p.Column)
		}
		if !slices.ContainsFunc(spec.Metrics, func(m Metric) bool { return m.Name == p.Metric }) {
			return nil, fmt.Errorf("pivot metric %q is not declared", p.Metric)
		}
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("pivot on %q declares no values", p.Column)
		}
	}

	columns := make([]domain.Column, 0, len(ExpectedColumns(spec)))
	for _, k := range spec.outputKeys() {
		columns = append(columns, domain.Column{Name: k, Type: schema[k]})
	}
	if spec.Pivot != nil {
		for _, v := range spec.Pivot.Values {
			columns = append(columns, domain.Column{Name: v, Type: domain.TypeNumber})
		}
	} else {
		for _, m := range spec.Metrics {
			columns = append(columns, domain.Column{Name: m.Name, Type: domain.TypeNumber})
		}
	}
	derived, err := compileDerived(spec.Derived, columns)
	if err != nil {
		return nil, err
	}
	for _, d := range spec.Derived {
		columns = append(columns, domain.Column{Name: d.Name, Type: domain.TypeNumber})
	}

	groups, err := reduce(rs, spec, computed, keys)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if spec.Pivot != nil {
		rows = pivot(groups, spec, keys)
	} else {
		rows = make([][]any, 0, len(groups))
		for _, g := range groups {
			row := append([]any{}, g.key...)
			for _, acc := range g.accs {
				row = append(row, acc.result())
			}
			rows = append(rows, row)
		}
	}

	if err := applyDerived(rows, columns, derived); err != nil {
		return nil, err
	}
	if err := order(rows, columns, spec.OrderBy); err != nil {
		return nil, err
	}
	if spec.Limit > 0 && len(rows) > spec.Limit {
		rows = rows[:spec.Limit]
	}

	data, err := domain.NewRowSet(columns, rows)
	if err != nil {
		return nil, err
	}

	table := &domain.AggregatedTable{
		Name:      spec.Name,
		Title:     spec.Title,
		Data:      data,
		GroupKeys: spec.outputKeys(),
	}
	for _, c := range columns[len(table.GroupKeys) : len(columns)-len(spec.Derived)] {
		table.Metrics = append(table.Metrics, c.Name)
	}
	for _, d := range spec.Derived {
		table.Derived = append(table.Derived, d.Name)
	}
	return table, nil
}

type computedColumn struct {
	Computed
	expr *expression
}

func compileComputed(specs []Computed, schema map[string]domain.ColumnType) ([]computedColumn, error) {
	out := make([]computedColumn, 0, len(specs))
	for _, c := range specs {
		if _, dup := schema[c.Name]; dup {
			return nil, fmt.Errorf("computed column %q already exists", c.Name)
		}
		expr, err := compile(c.Expr)
		if err != nil {
			return nil, err
		}
		for _, ref := range expr.refs {
			if _, ok := schema[ref]; !ok {
				return nil, fmt.Errorf("computed column %q references missing column %q", c.Name, ref)
			}
		}
		if c.Type == "" {
			c.Type = domain.TypeNumber
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("computed column %q has unknown type %q", c.Name, c.Type)
		}
		schema[c.Name] = c.Type
		out = append(out, computedColumn{Computed: c, expr: expr})
	}
	return out, nil
}

func validateMetrics(metrics []Metric, schema map[string]domain.ColumnType) error {
	seen := map[string]bool{}
	for _, m := range metrics {
		if m.Name == "" || seen[m.Name] {
			return fmt.Errorf("metric name %q is empty or repeated", m.Name)
		}
		seen[m.Name] = true

		switch m.Op {
		case OpCount:
			if m.Column == "" {
				continue
			}
		case OpSum, OpAvg, OpMin, OpMax:
		default:
			return fmt.Errorf("metric %q: unknown reduction %q", m.Name, m.Op)
		}
		t, ok := schema[m.Column]
		if !ok {
			return fmt.Errorf("metric %q: column %q not found", m.Name, m.Column)
		}
		if m.Op != OpCount && t != domain.TypeNumber {
			return fmt.Errorf("metric %q: cannot %s %s column %q", m.Name, m.Op, t, m.Column)
		}
	}
	return nil
}

type derivedColumn struct {
	name string
	expr *expression
}

func compileDerived(specs []Derived, columns []domain.Column) ([]derivedColumn, error) {
	known := map[string]bool{}
	for _, c := range columns {
		known[c.Name] = true
	}
	out := make([]derivedColumn, 0, len(specs))
	for _, d := range specs {
		if known[d.Name] {
			return nil, fmt.Errorf("derived column %q already exists", d.Name)
		}
		expr, err := compile(d.Expr)
		if err != nil {
			return nil, err
		}
		for _, ref := range expr.refs {
			if !known[ref] {
				return nil, fmt.Errorf("derived column %q references missing column %q", d.Name, ref)
			}
		}
		known[d.Name] = true
		out = append(out, derivedColumn{name: d.Name, expr: expr})
	}
	return out, nil
}

// reduce folds every input row into its group and returns the groups
// ordered by key.
func reduce(rs *domain.RowSet, spec Spec, computed []computedColumn, keys []string) ([]*group, error) {
	names := rs.ColumnNames()
	loc := spec.location()

	index := map[string]*group{}
	var groups []*group
	newGroup := func(key []any) *group {
		g := &group{key: key, accs: make([]*accumulator, len(spec.Metrics))}
		for i, m := range spec.Metrics {
			g.accs[i] = &accumulator{op: m.Op}
		}
		groups = append(groups, g)
		return g
	}

	for i := 0; i < rs.Len(); i++ {
		raw := rs.Row(i)
		row := make(map[string]any, len(names)+len(computed)+1)
		for c, name := range names {
			row[name] = raw[c]
		}
		for _, c := range computed {
			v, err := c.expr.evaluate(row)
			if err != nil {
				return nil, fmt.Errorf("computed column %q: %w", c.Name, err)
			}
			if v != nil && !typeMatches(c.Type, v) {
				return nil, fmt.Errorf("computed column %q: %v is not a %s", c.Name, v, c.Type)
			}
			row[c.Name] = v
		}
		if b := spec.Bucket; b != nil {
			var start any
			if t, ok := row[b.Column].(time.Time); ok {
				s, err := BucketStart(t, b.Granularity, loc)
				if err != nil {
					return nil, err
				}
				start = s
			}
			row[b.name()] = start
		}

		key := make([]any, len(keys))
		for k, name := range keys {
			key[k] = row[name]
		}
		id := groupKey(key)
		g, ok := index[id]
		if !ok {
			g = newGroup(key)
			index[id] = g
		}
		for m, metric := range spec.Metrics {
			g.accs[m].add(row[metric.Column], metric.Column == "")
		}
	}

	if len(keys) == 0 && len(groups) == 0 {
		newGroup(nil)
	}

	all := make([]int, len(keys))
	for i := range all {
		all[i] = i
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return compareRows(groups[a].key, groups[b].key, all, nil) < 0
	})
	return groups, nil
}

func typeMatches(t domain.ColumnType, v any) bool {
	switch v.(type) {
	case string:
		return t == domain.TypeString
	case float64:
		return t == domain.TypeNumber
	case time.Time:
		return t == domain.TypeTimestamp
	case bool:
		return t == domain.TypeBoolean
	}
	return false
}

// pivot regroups sorted groups by the non-pivot keys and spreads the pivot
// metric over the declared value columns. Undeclared values are dropped.
func pivot(groups []*group, spec Spec, keys []string) [][]any {
	p := spec.Pivot
	pivotAt := slices.Index(keys, p.Column)
	metricAt := slices.IndexFunc(spec.Metrics, func(m Metric) bool { return m.Name == p.Metric })
	valueAt := map[string]int{}
	for i, v := range p.Values {
		valueAt[v] = i
	}

	width := len(keys) - 1
	index := map[string][]any{}
	var rows [][]any
	for _, g := range groups {
		key := make([]any, 0, width)
		key = append(key, g.key[:pivotAt]...)
		key = append(key, g.key[pivotAt+1:]...)

		id := groupKey(key)
		row, ok := index[id]
		if !ok {
			row = make([]any, width+len(p.Values))
			copy(row, key)
			index[id] = row
			rows = append(rows, row)
		}
		if at, ok := valueAt[formatValue(g.key[pivotAt])]; ok {
			row[width+at] = g.accs[metricAt].result()
		}
	}
	if width == 0 && len(rows) == 0 {
		rows = append(rows, make([]any, len(p.Values)))
	}

	all := make([]int, width)
	for i := range all {
		all[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return compareRows(rows[a], rows[b], all, nil) < 0
	})
	return rows
}

func applyDerived(rows [][]any, columns []domain.Column, derived []derivedColumn) error {
	if len(derived) == 0 {
		return nil
	}
	base := len(columns) - len(derived)
	for r, row := range rows {
		values := make(map[string]any, len(columns))
		for c := 0; c < base; c++ {
			values[columns[c].Name] = row[c]
		}
		for _, d := range derived {
			v, err := d.expr.evaluate(values)
			if err != nil {
				return fmt.Errorf("derived column %q: %w", d.name, err)
			}
			if v != nil {
				if _, ok := v.(float64); !ok {
					return fmt.Errorf("derived column %q: %v is not a number", d.name, v)
				}
			}
			values[d.name] = v
			row = append(row, v)
		}
		rows[r] = row
	}
	return nil
}

func order(rows [][]any, columns []domain.Column, by []Order) error {
	if len(by) == 0 {
		return nil
	}
	idx := make([]int, len(by))
	desc := make([]bool, len(by))
	for i, o := range by {
		at := slices.IndexFunc(columns, func(c domain.Column) bool { return c.Name == o.Column })
		if at < 0 {
			return fmt.Errorf("order column %q not found", o.Column)
		}
		idx[i] = at
		desc[i] = o.Desc
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return compareRows(rows[a], rows[b], idx, desc) < 0
	})
	return nil
}
