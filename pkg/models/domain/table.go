package domain

// AggregatedTable is a named table derived from a RowSet. Data carries the
// rows, the remaining fields describe how they were produced.
type AggregatedTable struct {
	Name      string
	Title     string
	Data      *RowSet
	GroupKeys []string
	Metrics   []string
	Derived   []string
}

func (t *AggregatedTable) Len() int {
	if t == nil || t.Data == nil {
		return 0
	}
	return t.Data.Len()
}

func (t *AggregatedTable) Columns() []Column {
	if t == nil || t.Data == nil {
		return nil
	}
	return t.Data.Columns()
}
