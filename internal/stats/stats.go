// Package stats filters, ranks and summarizes activities for a parsed query.
package stats

import (
	"sort"

	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// milestones lists the canonical distances, in meters, reported by a
// "stats" query for each activity type.
var milestones = map[strava.ActivityType][]float64{
	strava.TypeRun:  {5000, 10000, query.HalfMarathon, query.Marathon},
	strava.TypeWalk: {5000, 10000},
	strava.TypeRide: {50000, query.Century},
}

// Milestones returns the milestone distances for t, shortest first.
func Milestones(t strava.ActivityType) []float64 {
	return append([]float64(nil), milestones[t]...)
}

// MilestoneCount is the number of activities longer than Distance meters.
type MilestoneCount struct {
	Distance float64 `json:"distance_meters"`
	Count    int     `json:"count"`
}

// Summary holds the aggregates a query asked for. Only the fields named in
// Metrics are meaningful.
type Summary struct {
	Metrics    []query.Metric   `json:"metrics"`
	Count      int              `json:"count"`
	Distance   float64          `json:"distance_meters"`
	MovingTime int64            `json:"moving_time_seconds"`
	Elevation  float64          `json:"elevation_gain_meters"`
	Milestones []MilestoneCount `json:"milestones,omitempty"`
}

// Filter applies the type filter, ranking, distance threshold and, unless
// the query aggregates, truncation. The input is not modified.
func Filter(activities []strava.Activity, p query.Params) []strava.Activity {
	out := OfType(activities, p.Type)

	if p.Rank != query.RankNone {
		out = Rank(out, p.Rank, p.Type)
	}

	if p.MinDistance > 0 {
		out = LongerThan(out, p.MinDistance)
	}

	if p.Aggregate == nil && p.Count > 0 && len(out) > p.Count {
		out = out[:p.Count]
	}
	return out
}

// OfType keeps the activities of type t.
func OfType(activities []strava.Activity, t strava.ActivityType) []strava.Activity {
	out := make([]strava.Activity, 0, len(activities))
	for _, a := range activities {
		if a.ActivityType() == t {
			out = append(out, a)
		}
	}
	return out
}

// LongerThan keeps activities whose distance is strictly greater than meters.
func LongerThan(activities []strava.Activity, meters float64) []strava.Activity {
	out := make([]strava.Activity, 0, len(activities))
	for _, a := range activities {
		if a.Distance > meters {
			out = append(out, a)
		}
	}
	return out
}

// Rank returns a copy of activities sorted descending by the attribute.
// Ties keep their original order.
func Rank(activities []strava.Activity, by query.RankBy, t strava.ActivityType) []strava.Activity {
	key := rankKey(by, t)
	out := append([]strava.Activity(nil), activities...)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) > key(out[j])
	})
	return out
}

func rankKey(by query.RankBy, t strava.ActivityType) func(strava.Activity) float64 {
	switch by {
	case query.RankSpeed:
		return func(a strava.Activity) float64 { return Speed(a, t) }
	case query.RankElevation:
		return func(a strava.Activity) float64 { return a.TotalElevationGain }
	default:
		return func(a strava.Activity) float64 { return a.Distance }
	}
}

// Speed is the ranking speed in meters per second. Rides use moving time;
// runs and walks use elapsed time. An activity without a duration has
// speed zero.
func Speed(a strava.Activity, t strava.ActivityType) float64 {
	seconds := a.ElapsedTime
	if t == strava.TypeRide {
		seconds = a.MovingTime
	}
	if seconds <= 0 {
		return 0
	}
	return a.Distance / float64(seconds)
}

// Aggregate sums the requested metrics over activities. Milestone counts
// are filled in by the caller.
func Aggregate(activities []strava.Activity, agg query.Aggregation) Summary {
	s := Summary{Metrics: append([]query.Metric(nil), agg.Metrics...)}
	for _, a := range activities {
		s.Count++
		s.Distance += a.Distance
		s.MovingTime += int64(a.MovingTime)
		s.Elevation += a.TotalElevationGain
	}
	return s
}

// Empty reports whether the summary covers no activities.
func (s Summary) Empty() bool {
	return s.Count == 0
}

// Has reports whether m was requested.
func (s Summary) Has(m query.Metric) bool {
	for _, metric := range s.Metrics {
		if metric == m {
			return true
		}
	}
	return false
}
