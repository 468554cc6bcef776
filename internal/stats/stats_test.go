package stats

import (
	"testing"
	"time"

	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

func act(id int64, typ strava.ActivityType, distance float64, moving, elapsed int, elevation float64) strava.Activity {
	return strava.Activity{
		ID:                 id,
		Name:               "activity",
		Type:               string(typ),
		Distance:           distance,
		MovingTime:         moving,
		ElapsedTime:        elapsed,
		TotalElevationGain: elevation,
		StartDateLocal:     time.Date(2024, 1, int(id), 7, 0, 0, 0, time.UTC),
	}
}

func idsOf(activities []strava.Activity) []int64 {
	out := make([]int64, len(activities))
	for i, a := range activities {
		out[i] = a.ID
	}
	return out
}

func sameIDs(got []strava.Activity, want ...int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i, a := range got {
		if a.ID != want[i] {
			return false
		}
	}
	return true
}

func mixed() []strava.Activity {
	return []strava.Activity{
		act(1, strava.TypeRun, 3000, 900, 1000, 10),
		act(2, strava.TypeRide, 40000, 4800, 6000, 300),
		act(3, strava.TypeRun, 8000, 2400, 2500, 40),
		act(4, strava.TypeWalk, 6000, 3600, 4000, 20),
		act(5, strava.TypeRun, 5000, 1500, 2400, 55),
		act(6, strava.TypeRide, 30000, 3000, 6000, 120),
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params query.Params
		want   []int64
	}{
		{
			name:   "type only keeps order",
			params: query.Params{Type: strava.TypeRun},
			want:   []int64{1, 3, 5},
		},
		{
			name:   "longest run",
			params: query.Params{Type: strava.TypeRun, Rank: query.RankDistance, Count: 1},
			want:   []int64{3},
		},
		{
			name:   "5k runs is strict",
			params: query.Params{Type: strava.TypeRun, MinDistance: 5000},
			want:   []int64{3},
		},
		{
			name:   "max elevation runs",
			params: query.Params{Type: strava.TypeRun, Rank: query.RankElevation, Count: 2},
			want:   []int64{5, 3},
		},
		{
			// By moving time ride 6 is faster; by elapsed time ride 2 would be.
			name:   "fastest ride uses moving time",
			params: query.Params{Type: strava.TypeRide, Rank: query.RankSpeed, Count: 1},
			want:   []int64{6},
		},
		{
			// By elapsed time run 3 is faster; by moving time all three runs tie.
			name:   "fastest run uses elapsed time",
			params: query.Params{Type: strava.TypeRun, Rank: query.RankSpeed, Count: 1},
			want:   []int64{3},
		},
		{
			name:   "count larger than set",
			params: query.Params{Type: strava.TypeRun, Rank: query.RankDistance, Count: 10},
			want:   []int64{3, 5, 1},
		},
		{
			name:   "threshold after ranking then truncate",
			params: query.Params{Type: strava.TypeRun, Rank: query.RankDistance, Count: 1, MinDistance: 10000},
			want:   []int64{},
		},
		{
			name: "aggregate skips truncation",
			params: query.Params{
				Type:      strava.TypeRun,
				Rank:      query.RankDistance,
				Count:     1,
				Aggregate: &query.Aggregation{Metrics: []query.Metric{query.MetricCount}},
			},
			want: []int64{3, 5, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Filter(mixed(), tt.params)
			if !sameIDs(got, tt.want...) {
				t.Errorf("Filter() ids = %v, want %v", idsOf(got), tt.want)
			}
		})
	}
}

func TestFilterDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	input := mixed()
	Filter(input, query.Params{Type: strava.TypeRun, Rank: query.RankDistance, Count: 1})
	if !sameIDs(input, 1, 2, 3, 4, 5, 6) {
		t.Errorf("input reordered to %v", idsOf(input))
	}
}

func TestRankIsStableAndDescending(t *testing.T) {
	t.Parallel()

	input := []strava.Activity{
		act(1, strava.TypeRun, 5000, 1500, 1500, 0),
		act(2, strava.TypeRun, 7000, 2000, 2000, 0),
		act(3, strava.TypeRun, 5000, 1400, 1400, 0),
		act(4, strava.TypeRun, 7000, 2100, 2100, 0),
	}

	got := Rank(input, query.RankDistance, strava.TypeRun)
	if !sameIDs(got, 2, 4, 1, 3) {
		t.Errorf("Rank() ids = %v, want [2 4 1 3]", idsOf(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance > got[i-1].Distance {
			t.Errorf("Rank() not descending at %d", i)
		}
	}
}

func TestSpeedZeroDuration(t *testing.T) {
	t.Parallel()

	a := act(1, strava.TypeRun, 5000, 0, 0, 0)
	if got := Speed(a, strava.TypeRun); got != 0 {
		t.Errorf("Speed() = %v, want 0", got)
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	rides := OfType(mixed(), strava.TypeRide)
	s := Aggregate(rides, query.Aggregation{Metrics: []query.Metric{query.MetricDistance}})

	if s.Count != 2 {
		t.Errorf("Count = %d, want 2", s.Count)
	}
	if s.Distance != 70000 {
		t.Errorf("Distance = %v, want 70000", s.Distance)
	}
	if s.MovingTime != 7800 {
		t.Errorf("MovingTime = %d, want 7800", s.MovingTime)
	}
	if s.Elevation != 420 {
		t.Errorf("Elevation = %v, want 420", s.Elevation)
	}
	if !s.Has(query.MetricDistance) || s.Has(query.MetricTime) {
		t.Errorf("Has() reports wrong metrics for %v", s.Metrics)
	}
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	s := Aggregate(nil, query.Aggregation{Metrics: query.StatsMetrics})
	if !s.Empty() {
		t.Errorf("Empty() = false for %+v", s)
	}
}

func TestMilestones(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  strava.ActivityType
		want []float64
	}{
		{strava.TypeRun, []float64{5000, 10000, 21097.5, 42195}},
		{strava.TypeWalk, []float64{5000, 10000}},
		{strava.TypeRide, []float64{50000, 100000}},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			t.Parallel()
			got := Milestones(tt.typ)
			if len(got) != len(tt.want) {
				t.Fatalf("Milestones() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Milestones()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
