// Package resolver answers free-text queries: it parses the query, pulls the
// covering activities from the cache and filters or summarizes them.
package resolver

import (
	"context"
	"time"

	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/stats"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// Source returns every known activity starting inside a window.
// *cache.Cache satisfies it.
type Source interface {
	Get(ctx context.Context, w query.Window) ([]strava.Activity, error)
}

// Result is the answer to one query. Exactly one of Activities or Summary
// is populated, depending on whether the query aggregates.
type Result struct {
	Query      string            `json:"query"`
	Params     query.Params      `json:"-"`
	Activities []strava.Activity `json:"activities,omitempty"`
	Summary    *stats.Summary    `json:"summary,omitempty"`
}

// Empty reports whether nothing matched the query.
func (r Result) Empty() bool {
	if r.Summary != nil {
		return r.Summary.Empty()
	}
	return len(r.Activities) == 0
}

// Resolver is the query orchestrator for one session.
type Resolver struct {
	source Source
	now    func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock relative time phrases resolve against.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// New creates a Resolver reading activities from source.
func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve answers raw. A query without an activity type fails with a
// *query.ParseError before any activity is fetched. Fetch errors are
// returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Result, error) {
	params, err := query.Parse(raw, r.now())
	if err != nil {
		return Result{}, err
	}

	logging.Logger.Debug().Str("query", raw).Stringer("params", params).Msg("query parsed")

	activities, err := r.source.Get(ctx, params.Window)
	if err != nil {
		return Result{}, err
	}

	result := Result{Query: raw, Params: params}
	filtered := stats.Filter(activities, params)

	if params.Aggregate == nil {
		result.Activities = filtered
		return result, nil
	}

	summary := stats.Aggregate(filtered, *params.Aggregate)
	if params.Aggregate.Milestones {
		summary.Milestones, err = r.milestones(ctx, params)
		if err != nil {
			return Result{}, err
		}
	}
	result.Summary = &summary
	return result, nil
}

// milestones re-queries the source once per milestone distance, using that
// distance as the threshold. Milestones nothing reaches are left out.
func (r *Resolver) milestones(ctx context.Context, params query.Params) ([]stats.MilestoneCount, error) {
	var counts []stats.MilestoneCount
	for _, distance := range stats.Milestones(params.Type) {
		activities, err := r.source.Get(ctx, params.Window)
		if err != nil {
			return nil, err
		}

		p := query.Params{Type: params.Type, Window: params.Window, MinDistance: distance}
		if n := len(stats.Filter(activities, p)); n > 0 {
			counts = append(counts, stats.MilestoneCount{Distance: distance, Count: n})
		}
	}
	return counts, nil
}
