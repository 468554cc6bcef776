package query

import (
	"fmt"
	"strings"

	"github.com/joshdurbin/strava-stats/internal/strava"
)

// RankBy is the attribute used to order activities for top-N queries.
type RankBy string

const (
	RankNone      RankBy = ""
	RankDistance  RankBy = "distance"
	RankSpeed     RankBy = "speed"
	RankElevation RankBy = "elevation"
)

// Metric is one aggregate a query can ask for.
type Metric string

const (
	MetricCount     Metric = "count"
	MetricDistance  Metric = "distance"
	MetricTime      Metric = "time"
	MetricElevation Metric = "elevation"
)

// StatsMetrics is the fixed bundle behind a "stats" query.
var StatsMetrics = []Metric{MetricCount, MetricDistance, MetricTime, MetricElevation}

// Aggregation asks for summed metrics instead of a list of activities.
type Aggregation struct {
	Metrics []Metric
	// Milestones adds per-distance counts from the milestone table.
	Milestones bool
}

// Params is the structured form of a free-text query.
type Params struct {
	Type strava.ActivityType

	// Rank and Count select the top Count activities by Rank.
	Rank  RankBy
	Count int

	// MinDistance keeps activities strictly longer than this many meters.
	// Zero disables the filter.
	MinDistance float64

	Window Window

	// Aggregate, when set, summarizes the filtered set; Rank and Count are
	// then ignored.
	Aggregate *Aggregation
}

// String renders the params for logs.
func (p Params) String() string {
	parts := []string{"type=" + string(p.Type)}
	if p.Rank != RankNone {
		parts = append(parts, fmt.Sprintf("rank=%s count=%d", p.Rank, p.Count))
	}
	if p.MinDistance > 0 {
		parts = append(parts, fmt.Sprintf("min_distance=%.0fm", p.MinDistance))
	}
	if !p.Window.After.IsZero() {
		parts = append(parts, "after="+p.Window.After.Format("2006-01-02 15:04:05"))
	}
	if !p.Window.Before.IsZero() {
		parts = append(parts, "before="+p.Window.Before.Format("2006-01-02 15:04:05"))
	}
	if p.Aggregate != nil {
		metrics := make([]string, len(p.Aggregate.Metrics))
		for i, m := range p.Aggregate.Metrics {
			metrics[i] = string(m)
		}
		parts = append(parts, "aggregate="+strings.Join(metrics, ","))
		if p.Aggregate.Milestones {
			parts = append(parts, "milestones")
		}
	}
	return strings.Join(parts, " ")
}
