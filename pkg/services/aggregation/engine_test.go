package aggregation

import (
	"errors"
	"testing"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var salesColumns = []domain.Column{
	{Name: "sold_at", Type: domain.TypeTimestamp},
	{Name: "category", Type: domain.TypeString},
	{Name: "region", Type: domain.TypeString},
	{Name: "units", Type: domain.TypeNumber},
	{Name: "revenue", Type: domain.TypeNumber},
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func salesRows() *domain.RowSet {
	return domain.MustRowSet(salesColumns, [][]any{
		{at("2024-01-01T10:00:00Z"), "games", "north", 2.0, 40.0},
		{at("2024-01-01T11:00:00Z"), "books", "south", 1.0, 12.0},
		{at("2024-01-02T09:00:00Z"), "games", "south", 1.0, 25.0},
		{at("2024-01-03T09:00:00Z"), "books", "north", 3.0, 30.0},
		{at("2024-01-08T09:00:00Z"), "toys", "north", 1.0, nil},
	})
}

func names(cols []domain.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func TestAggregate_GroupByWithReductions(t *testing.T) {
	// Given
	spec := Spec{
		Name:    "by_category",
		GroupBy: []string{"category"},
		Metrics: []Metric{
			{Name: "orders", Op: OpCount},
			{Name: "units", Column: "units", Op: OpSum},
			{Name: "revenue", Column: "revenue", Op: OpSum},
			{Name: "avg_revenue", Column: "revenue", Op: OpAvg},
			{Name: "min_units", Column: "units", Op: OpMin},
			{Name: "max_units", Column: "units", Op: OpMax},
		},
		Derived: []Derived{{Name: "avg_order_value", Expr: "revenue / orders"}},
	}

	// When
	table, err := Aggregate(salesRows(), spec)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"category"}, table.GroupKeys)
	assert.Equal(t, []string{"orders", "units", "revenue", "avg_revenue", "min_units", "max_units"}, table.Metrics)
	assert.Equal(t, []string{"avg_order_value"}, table.Derived)
	require.Equal(t, 3, table.Len())

	assert.Equal(t, []any{"books", 2.0, 4.0, 42.0, 21.0, 1.0, 3.0, 21.0}, table.Data.Row(0))
	assert.Equal(t, []any{"games", 2.0, 3.0, 65.0, 32.5, 1.0, 2.0, 32.5}, table.Data.Row(1))
	// revenue is null for toys: sum is 0, avg is null
	assert.Equal(t, []any{"toys", 1.0, 1.0, 0.0, nil, 1.0, 1.0, 0.0}, table.Data.Row(2))
}

func TestAggregate_DerivedDivisionByZeroIsNull(t *testing.T) {
	rs := domain.MustRowSet(salesColumns[:4], [][]any{
		{at("2024-01-01T10:00:00Z"), "games", "north", 0.0},
	})
	table, err := Aggregate(rs, Spec{
		Metrics: []Metric{{Name: "units", Column: "units", Op: OpSum}, {Name: "n", Op: OpCount}},
		Derived: []Derived{{Name: "ratio", Expr: "n / units"}},
	})

	require.NoError(t, err)
	assert.Nil(t, table.Data.Value(0, "ratio"))
}

func TestAggregate_DayBucketUsesRequestTimezone(t *testing.T) {
	// Given
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	rs := domain.MustRowSet(salesColumns, [][]any{
		{at("2024-01-02T04:59:59Z"), "games", "north", 1.0, 1.0},
		{at("2024-01-02T05:00:00Z"), "games", "north", 1.0, 1.0},
		{at("2024-01-02T05:00:01Z"), "games", "north", 1.0, 1.0},
	})

	// When
	table, err := Aggregate(rs, Spec{
		Bucket:   &Bucket{Column: "sold_at", Granularity: Day, As: "day"},
		Metrics:  []Metric{{Name: "orders", Op: OpCount}},
		Location: ny,
	})

	// Then: local midnight belongs to the bucket it starts
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, ny).Equal(table.Data.Value(0, "day").(time.Time)))
	assert.Equal(t, 1.0, table.Data.Value(0, "orders"))
	assert.True(t, time.Date(2024, 1, 2, 0, 0, 0, 0, ny).Equal(table.Data.Value(1, "day").(time.Time)))
	assert.Equal(t, 2.0, table.Data.Value(1, "orders"))
}

func TestBucketStart(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   time.Time
		g    Granularity
		loc  *time.Location
		want time.Time
	}{
		{"hour", at("2024-05-05T13:45:10Z"), Hour, time.UTC, at("2024-05-05T13:00:00Z")},
		{"day start is inclusive", at("2024-05-05T00:00:00Z"), Day, time.UTC, at("2024-05-05T00:00:00Z")},
		{"day in berlin", at("2024-05-05T22:30:00Z"), Day, berlin, time.Date(2024, 5, 6, 0, 0, 0, 0, berlin)},
		{"week starts monday", at("2024-05-05T12:00:00Z"), Week, time.UTC, at("2024-04-29T00:00:00Z")},
		{"monday is its own week", at("2024-05-06T00:00:00Z"), Week, time.UTC, at("2024-05-06T00:00:00Z")},
		{"month", at("2024-02-29T23:59:59Z"), Month, time.UTC, at("2024-02-01T00:00:00Z")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BucketStart(tc.in, tc.g, tc.loc)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)

			end := NextBucket(got, tc.g)
			assert.True(t, end.After(tc.in), "bucket end %s must be after %s", end, tc.in)
		})
	}

	_, err = BucketStart(time.Now(), "fortnight", time.UTC)
	assert.Error(t, err)
}

func TestBucketStart_HourAcrossDSTFallBack(t *testing.T) {
	// Given
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	first, second := at("2024-11-03T05:30:00Z"), at("2024-11-03T06:30:00Z")

	// When
	firstStart, err := BucketStart(first, Hour, newYork)
	require.NoError(t, err)
	secondStart, err := BucketStart(second, Hour, newYork)
	require.NoError(t, err)

	// Then
	assert.True(t, at("2024-11-03T05:00:00Z").Equal(firstStart), "got %s", firstStart)
	assert.True(t, at("2024-11-03T06:00:00Z").Equal(secondStart), "got %s", secondStart)
	assert.True(t, at("2024-11-03T06:00:00Z").Equal(NextBucket(firstStart, Hour)))
	assert.True(t, at("2024-11-03T07:00:00Z").Equal(NextBucket(secondStart, Hour)))
}

func TestBucketStart_HourInHalfHourZone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	got, err := BucketStart(at("2024-05-05T10:15:00Z"), Hour, kolkata)

	require.NoError(t, err)
	assert.True(t, at("2024-05-05T09:30:00Z").Equal(got), "got %s", got)
}

func TestAggregate_WeeklyBucketByRegion(t *testing.T) {
	table, err := Aggregate(salesRows(), Spec{
		Bucket:  &Bucket{Column: "sold_at", Granularity: Week, As: "week"},
		GroupBy: []string{"region"},
		Metrics: []Metric{{Name: "revenue", Column: "revenue", Op: OpSum}},
	})

	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []any{at("2024-01-01T00:00:00Z"), "north", 70.0}, table.Data.Row(0))
	assert.Equal(t, []any{at("2024-01-01T00:00:00Z"), "south", 37.0}, table.Data.Row(1))
	assert.Equal(t, []any{at("2024-01-08T00:00:00Z"), "north", 0.0}, table.Data.Row(2))
}

func TestAggregate_Pivot(t *testing.T) {
	table, err := Aggregate(salesRows(), Spec{
		Bucket:  &Bucket{Column: "sold_at", Granularity: Week, As: "week"},
		GroupBy: []string{"region"},
		Metrics: []Metric{{Name: "units", Column: "units", Op: OpSum}},
		Pivot:   &Pivot{Column: "region", Values: []string{"north", "south", "east"}, Metric: "units"},
		Derived: []Derived{{Name: "total", Expr: "north + south"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"week"}, table.GroupKeys)
	assert.Equal(t, []string{"north", "south", "east"}, table.Metrics)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []any{at("2024-01-01T00:00:00Z"), 5.0, 2.0, nil, 7.0}, table.Data.Row(0))
	// no south sales in the second week, so total is null
	assert.Equal(t, []any{at("2024-01-08T00:00:00Z"), 1.0, nil, nil, nil}, table.Data.Row(1))
}

func TestAggregate_ComputedColumns(t *testing.T) {
	table, err := Aggregate(salesRows(), Spec{
		Computed: []Computed{
			{Name: "big", Expr: `revenue >= 30 ? "big" : "small"`, Type: domain.TypeString},
			{Name: "unit_price", Expr: "revenue / units"},
		},
		GroupBy: []string{"big"},
		Metrics: []Metric{{Name: "max_price", Column: "unit_price", Op: OpMax}},
	})

	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []any{nil, nil}, table.Data.Row(0))
	assert.Equal(t, []any{"big", 20.0}, table.Data.Row(1))
	assert.Equal(t, []any{"small", 25.0}, table.Data.Row(2))
}

func TestAggregate_OrderAndLimit(t *testing.T) {
	table, err := Aggregate(salesRows(), Spec{
		GroupBy: []string{"category"},
		Metrics: []Metric{{Name: "revenue", Column: "revenue", Op: OpSum}},
		OrderBy: []Order{{Column: "revenue", Desc: true}},
		Limit:   2,
	})

	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "games", table.Data.Value(0, "category"))
	assert.Equal(t, "books", table.Data.Value(1, "category"))
}

func TestAggregate_EmptyInput(t *testing.T) {
	empty := domain.MustRowSet(salesColumns, nil)
	metrics := []Metric{
		{Name: "orders", Op: OpCount},
		{Name: "revenue", Column: "revenue", Op: OpSum},
		{Name: "avg", Column: "revenue", Op: OpAvg},
	}

	totals, err := Aggregate(empty, Spec{Metrics: metrics})
	require.NoError(t, err)
	require.Equal(t, 1, totals.Len())
	assert.Equal(t, []any{0.0, 0.0, nil}, totals.Data.Row(0))

	grouped, err := Aggregate(empty, Spec{GroupBy: []string{"region"}, Metrics: metrics})
	require.NoError(t, err)
	assert.Equal(t, 0, grouped.Len())
}

func TestAggregate_ColumnsMatchExpectedColumns(t *testing.T) {
	specs := []Spec{
		{Metrics: []Metric{{Name: "n", Op: OpCount}}},
		{GroupBy: []string{"category", "region"}, Metrics: []Metric{{Name: "r", Column: "revenue", Op: OpSum}}},
		{
			Bucket:  &Bucket{Column: "sold_at", Granularity: Month},
			Metrics: []Metric{{Name: "u", Column: "units", Op: OpAvg}},
			Derived: []Derived{{Name: "d", Expr: "u * 2"}},
		},
		{
			GroupBy: []string{"category", "region"},
			Metrics: []Metric{{Name: "u", Column: "units", Op: OpSum}},
			Pivot:   &Pivot{Column: "region", Values: []string{"north", "west"}, Metric: "u"},
		},
	}
	inputs := map[string]*domain.RowSet{
		"full":  salesRows(),
		"empty": domain.MustRowSet(salesColumns, nil),
	}

	for name, rs := range inputs {
		for i, spec := range specs {
			table, err := Aggregate(rs, spec)
			require.NoError(t, err, "%s input, spec %d", name, i)
			assert.Equal(t, ExpectedColumns(spec), names(table.Columns()), "%s input, spec %d", name, i)
		}
	}
}

func TestAggregate_IsDeterministic(t *testing.T) {
	spec := Spec{
		Bucket:  &Bucket{Column: "sold_at", Granularity: Day},
		GroupBy: []string{"category"},
		Metrics: []Metric{{Name: "revenue", Column: "revenue", Op: OpSum}},
	}
	first, err := Aggregate(salesRows(), spec)
	require.NoError(t, err)
	second, err := Aggregate(salesRows(), spec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregate_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		msg  string
	}{
		{"missing group column", Spec{GroupBy: []string{"country"}}, `group column "country" not found`},
		{"missing metric column", Spec{Metrics: []Metric{{Name: "x", Column: "price", Op: OpSum}}}, `column "price" not found`},
		{"non numeric sum", Spec{Metrics: []Metric{{Name: "x", Column: "category", Op: OpSum}}}, `cannot sum string column "category"`},
		{"non numeric avg on time", Spec{Metrics: []Metric{{Name: "x", Column: "sold_at", Op: OpAvg}}}, `cannot avg timestamp column`},
		{"unknown op", Spec{Metrics: []Metric{{Name: "x", Column: "units", Op: "median"}}}, `unknown reduction`},
		{"bucket on string", Spec{Bucket: &Bucket{Column: "region", Granularity: Day}}, `not timestamp`},
		{"bad granularity", Spec{Bucket: &Bucket{Column: "sold_at", Granularity: "year"}}, `unknown bucket granularity`},
		{"derived references missing", Spec{Metrics: []Metric{{Name: "n", Op: OpCount}}, Derived: []Derived{{Name: "d", Expr: "n / cost"}}}, `missing column "cost"`},
		{"computed references missing", Spec{Computed: []Computed{{Name: "c", Expr: "price * 2"}}}, `missing column "price"`},
		{"pivot not a key", Spec{Metrics: []Metric{{Name: "n", Op: OpCount}}, Pivot: &Pivot{Column: "region", Values: []string{"a"}, Metric: "n"}}, `not a group key`},
		{"order by missing", Spec{OrderBy: []Order{{Column: "nope"}}}, `order column "nope" not found`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Aggregate(salesRows(), tc.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrAggregationError))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestReferences(t *testing.T) {
	assert.Equal(t, []string{"revenue", "orders"}, references(`revenue / orders + revenue`))
	assert.Equal(t, []string{"region"}, references(`region == "north and_south" ? 1e3 : 0`))
	assert.Equal(t, []string{"units"}, references(`round(units)`))
}
