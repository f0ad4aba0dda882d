package aggregation

import (
	"fmt"
	"time"
)

// BucketStart returns the start of the bucket holding t, computed in loc.
// A bucket holds [start, next start).
func BucketStart(t time.Time, g Granularity, loc *time.Location) (time.Time, error) {
	t = t.In(loc)
	y, m, d := t.Date()
	switch g {
	case Hour:
		// Step back from the instant so both hours of a DST fall-back stay apart.
		since := time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond())
		return t.Add(-since), nil
	case Day:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case Week:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc), nil
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("unknown bucket granularity %q", g)
}

// NextBucket returns the exclusive end of the bucket starting at start.
func NextBucket(start time.Time, g Granularity) time.Time {
	y, m, d := start.Date()
	loc := start.Location()
	switch g {
	case Hour:
		return start.Add(time.Hour)
	case Week:
		return time.Date(y, m, d+7, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	}
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
