package domain

import "context"

type Operator string

const (
	OpEq   Operator = "eq"
	OpNe   Operator = "ne"
	OpLt   Operator = "lt"
	OpLte  Operator = "lte"
	OpGt   Operator = "gt"
	OpGte  Operator = "gte"
	OpIn   Operator = "in"
	OpLike Operator = "like"
)

// Predicate filters an entity column. In takes any number of values, every
// other operator exactly one.
type Predicate struct {
	Column string
	Op     Operator
	Values []any
}

func Eq(column string, v any) Predicate {
	return Predicate{Column: column, Op: OpEq, Values: []any{v}}
}

func In(column string, vs ...any) Predicate {
	return Predicate{Column: column, Op: OpIn, Values: vs}
}

// QueryDescriptor names what to fetch. Source selects the provider ("" is the
// relational store), Range applies to the entity's time column when set.
type QueryDescriptor struct {
	Source     string
	Entity     string
	Predicates []Predicate
	Range      *TimeRange
	Limit      int
}

// DataSource returns typed row sets for query descriptors. Implementations
// fail with DataUnavailable, QueryError or RequestCancelled.
type DataSource interface {
	Query(ctx context.Context, q QueryDescriptor) (*RowSet, error)
}
