package aggregation

import (
	"strconv"
	"strings"
	"time"
)

type accumulator struct {
	op    Op
	count int
	sum   float64
	min   float64
	max   float64
}

func (a *accumulator) add(v any, countAll bool) {
	if a.op == OpCount {
		if countAll || v != nil {
			a.count++
		}
		return
	}
	f, ok := v.(float64)
	if !ok {
		return
	}
	if a.count == 0 || f < a.min {
		a.min = f
	}
	if a.count == 0 || f > a.max {
		a.max = f
	}
	a.count++
	a.sum += f
}

func (a *accumulator) result() any {
	switch a.op {
	case OpCount:
		return float64(a.count)
	case OpSum:
		return a.sum
	}
	if a.count == 0 {
		return nil
	}
	switch a.op {
	case OpAvg:
		return a.sum / float64(a.count)
	case OpMin:
		return a.min
	case OpMax:
		return a.max
	}
	return nil
}

// compareValues orders nulls first, then by natural order of the value type.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(formatValue(a), formatValue(b))
}

func compareRows(a, b []any, idx []int, desc []bool) int {
	for i, c := range idx {
		r := compareValues(a[c], b[c])
		if desc != nil && desc[i] {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	return 0
}

// formatValue renders a key value as it is matched against pivot values.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return ""
}

// groupKey encodes key values so that equal tuples share one key.
func groupKey(values []any) string {
	var b strings.Builder
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			b.WriteString("n")
		case string:
			b.WriteString("s" + x)
		case float64:
			b.WriteString("f" + strconv.FormatFloat(x, 'g', -1, 64))
		case bool:
			b.WriteString("b" + strconv.FormatBool(x))
		case time.Time:
			b.WriteString("t" + strconv.FormatInt(x.UnixNano(), 10))
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}
