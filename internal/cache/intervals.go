package cache

import (
	"sort"
	"time"
)

// Interval is a closed time range the cache holds every activity for.
// A zero Start reaches back to the beginning of the athlete's history.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Covers reports whether every instant of other lies inside i.
// other.End must be set; an unbounded other.Start is only covered by an
// interval that is itself unbounded at the start.
func (i Interval) Covers(other Interval) bool {
	startOK := i.Start.IsZero() || (!other.Start.IsZero() && !other.Start.Before(i.Start))
	return startOK && !other.End.After(i.End)
}

// touches reports whether next overlaps i or begins within a second of i's end.
func (i Interval) touches(next Interval) bool {
	return !next.Start.After(i.End.Add(time.Second))
}

// mergeIntervals consolidates overlapping or touching intervals into a
// minimal sorted set.
func mergeIntervals(intervals []Interval) []Interval {
	if len(intervals) < 2 {
		return intervals
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].Start.Before(sorted[b].Start)
	})

	result := []Interval{sorted[0]}
	for _, current := range sorted[1:] {
		last := &result[len(result)-1]
		if last.touches(current) {
			if current.End.After(last.End) {
				last.End = current.End
			}
			continue
		}
		result = append(result, current)
	}
	return result
}
