package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// Fetcher retrieves every activity that starts inside [after, before].
// A zero bound means unbounded on that side.
type Fetcher interface {
	FetchActivities(ctx context.Context, after, before time.Time) ([]strava.Activity, error)
}

// Status is a point-in-time snapshot of the cache.
type Status struct {
	Activities int
	Everything bool
	Covered    []Interval
	Hits       int
	Fetches    int
}

// Cache holds the activities fetched during one session and the intervals
// they are known to cover completely. It only grows.
type Cache struct {
	fetcher Fetcher
	loc     *time.Location
	now     func() time.Time

	// mu is held across coverage check, fetch and merge so concurrent
	// callers neither lose updates nor fetch the same interval twice.
	mu         sync.Mutex
	activities []strava.Activity
	covered    []Interval
	everything bool
	hits       int
	fetches    int
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLocation sets the zone activity local start times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(c *Cache) {
		c.loc = loc
	}
}

// New creates an empty cache backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the activities starting inside w, fetching from the remote
// service only when the cached coverage cannot answer. The returned slice
// is a copy ordered by start time.
func (c *Cache) Get(ctx context.Context, w query.Window) ([]strava.Activity, error) {
	log := logging.Logger

	c.mu.Lock()
	defer c.mu.Unlock()

	// Nothing can have started after now, and a window ending later (this
	// month, this year) is only covered up to the moment it was fetched.
	now := c.now()
	requested := Interval{Start: w.After, End: w.Before}
	if requested.End.IsZero() || requested.End.After(now) {
		requested.End = now
	}

	if c.everything || c.isCovered(requested) {
		c.hits++
		log.Debug().
			Bool("everything", c.everything).
			Time("after", requested.Start).
			Time("before", requested.End).
			Msg("activity cache hit")
		return c.slice(requested), nil
	}

	log.Debug().
		Time("after", w.After).
		Time("before", w.Before).
		Msg("activity cache miss, fetching")

	fetched, err := c.fetcher.FetchActivities(ctx, w.After, w.Before)
	if err != nil {
		return nil, err
	}
	c.fetches++
	c.merge(fetched)

	if w.IsUnbounded() {
		c.everything = true
		c.covered = nil
	} else {
		c.covered = mergeIntervals(append(c.covered, requested))
	}

	log.Info().
		Int("fetched", len(fetched)).
		Int("cached", len(c.activities)).
		Bool("everything", c.everything).
		Msg("activity cache updated")

	return c.slice(requested), nil
}

// Status returns a snapshot of the cache contents.
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Activities: len(c.activities),
		Everything: c.everything,
		Covered:    append([]Interval(nil), c.covered...),
		Hits:       c.hits,
		Fetches:    c.fetches,
	}
}

func (c *Cache) isCovered(requested Interval) bool {
	for _, iv := range c.covered {
		if iv.Covers(requested) {
			return true
		}
	}
	return false
}

// slice copies out the cached activities starting inside iv.
func (c *Cache) slice(iv Interval) []strava.Activity {
	w := query.Window{After: iv.Start, Before: iv.End}
	var out []strava.Activity
	for _, a := range c.activities {
		if w.Contains(a.LocalStart(c.loc)) {
			out = append(out, a)
		}
	}
	return out
}

// merge adds fetched activities, keeps the set ordered by start time and
// drops repeated ids, keeping the copy that was cached first.
func (c *Cache) merge(fetched []strava.Activity) {
	merged := append(c.activities, fetched...)
	sort.SliceStable(merged, func(i, j int) bool {
		si, sj := merged[i].LocalStart(c.loc), merged[j].LocalStart(c.loc)
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return merged[i].ID < merged[j].ID
	})

	unique := merged[:0]
	for i, a := range merged {
		if i > 0 && a.ID == unique[len(unique)-1].ID {
			continue
		}
		unique = append(unique, a)
	}
	c.activities = unique
}
