package domain

import (
	"math"
	"strconv"
	"time"
)

// NullText is how a null cell is shown in tables and labels.
const NullText = "-"

// FormatValue renders a cell for display. Whole numbers drop their
// decimals, others keep two; midnight timestamps show the date only.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return NullText
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 0, 64)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04")
	}
	return NullText
}
