package sql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
)

var comparison = map[domain.Operator]string{
	domain.OpEq:   "=",
	domain.OpNe:   "<>",
	domain.OpLt:   "<",
	domain.OpLte:  "<=",
	domain.OpGt:   ">",
	domain.OpGte:  ">=",
	domain.OpLike: "LIKE",
}

func buildPredicate(e Entity, d Dialect, p domain.Predicate) (string, []any, error) {
	col, ok := e.column(p.Column)
	if !ok {
		return "", nil, domain.Errorf(domain.KindQueryError, "entity %q has no column %q", e.Name, p.Column)
	}

	if p.Op == domain.OpIn {
		if len(p.Values) == 0 {
			return "", nil, domain.Errorf(domain.KindQueryError, "predicate on %q: in requires at least one value", p.Column)
		}
		placeholders := make([]string, len(p.Values))
		args := make([]any, len(p.Values))
		for i, v := range p.Values {
			bound, err := bindValue(d, col, v)
			if err != nil {
				return "", nil, err
			}
			placeholders[i] = "?"
			args[i] = bound
		}
		return fmt.Sprintf("%s IN (%s)", col.Name, strings.Join(placeholders, ", ")), args, nil
	}

	op, ok := comparison[p.Op]
	if !ok {
		return "", nil, domain.Errorf(domain.KindQueryError, "predicate on %q: unsupported operator %q", p.Column, p.Op)
	}
	if len(p.Values) != 1 {
		return "", nil, domain.Errorf(domain.KindQueryError, "predicate on %q: %s takes exactly one value", p.Column, p.Op)
	}
	if p.Op == domain.OpLike && col.Type != domain.TypeString {
		return "", nil, domain.Errorf(domain.KindQueryError, "predicate on %q: like needs a string column", p.Column)
	}
	bound, err := bindValue(d, col, p.Values[0])
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s ?", col.Name, op), []any{bound}, nil
}

// bindValue coerces a predicate value to the column type so that string
// filters from the request can address numeric and time columns.
func bindValue(d Dialect, col domain.Column, v any) (any, error) {
	bad := func() error {
		return domain.Errorf(domain.KindQueryError, "value %v is not a valid %s for %q", v, col.Type, col.Name)
	}
	switch col.Type {
	case domain.TypeString:
		switch t := v.(type) {
		case string:
			return t, nil
		case fmt.Stringer:
			return t.String(), nil
		}
		return nil, bad()
	case domain.TypeNumber:
		f, err := toFloat(v)
		if err != nil {
			return nil, bad()
		}
		return f, nil
	case domain.TypeTimestamp:
		t, err := toTime(v)
		if err != nil {
			return nil, bad()
		}
		return d.BindTime(t), nil
	case domain.TypeBoolean:
		b, err := toBool(v)
		if err != nil {
			return nil, bad()
		}
		return b, nil
	}
	return nil, bad()
}

// convertValue maps a driver value onto the semantic column type.
func convertValue(t domain.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case domain.TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case int64:
			return strconv.FormatInt(s, 10), nil
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), nil
		case time.Time:
			return s.UTC().Format(time.RFC3339Nano), nil
		}
	case domain.TypeNumber:
		return toFloat(v)
	case domain.TypeTimestamp:
		return toTime(v)
	case domain.TypeBoolean:
		return toBool(v)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to number", v)
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	case int64:
		return time.Unix(t, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case []byte:
		return strconv.ParseBool(string(b))
	case string:
		return strconv.ParseBool(b)
	}
	return false, fmt.Errorf("cannot convert %T to boolean", v)
}
