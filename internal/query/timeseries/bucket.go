// Package timeseries resamples claims into calendar buckets and reshapes the
// per-bucket averages into a long, quantity-scaled series.
package timeseries

import (
	"time"

	"github.com/claimlens/claimlens/internal/query/filter"
)

// BucketStart truncates t to the start of its bucket in UTC. Weeks start on
// Monday, quarters on the first of January, April, July and October.
func BucketStart(t time.Time, interval filter.Interval) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	switch interval {
	case filter.Week:
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case filter.Quarter:
		qm := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, qm, 1, 0, 0, 0, 0, time.UTC)
	case filter.Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}
}

// NextBucket returns the start of the bucket after the one starting at start.
func NextBucket(start time.Time, interval filter.Interval) time.Time {
	switch interval {
	case filter.Week:
		return start.AddDate(0, 0, 7)
	case filter.Quarter:
		return start.AddDate(0, 3, 0)
	case filter.Year:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}
