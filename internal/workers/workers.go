package workers

import (
	"context"
	"time"

	"github.com/joshdurbin/strava-stats/internal/auth"
	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// refreshWindow is how close to expiry the refresher renews a token.
const refreshWindow = 10 * time.Minute

// TokenStore is the part of auth.Storage the refresher needs.
type TokenStore interface {
	LoadTokens(ctx context.Context) (*auth.StoredTokens, error)
	Refresh(ctx context.Context) (*auth.TokenResponse, error)
}

// TokenRefresher keeps auth tokens up to date
type TokenRefresher struct {
	storage  TokenStore
	interval time.Duration
	now      func() time.Time
}

// NewTokenRefresher creates a new token refresher worker
func NewTokenRefresher(storage TokenStore, interval time.Duration) *TokenRefresher {
	return &TokenRefresher{
		storage:  storage,
		interval: interval,
		now:      time.Now,
	}
}

// Run checks the token immediately and then once per interval until ctx
// is done.
func (t *TokenRefresher) Run(ctx context.Context) {
	log := logging.Logger
	log.Info().Dur("interval", t.interval).Msg("token refresher started")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.checkAndRefresh(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("token refresher stopped")
			return
		case <-ticker.C:
			t.checkAndRefresh(ctx)
		}
	}
}

// checkAndRefresh renews the token when it expires within refreshWindow.
// It reports whether a refresh happened.
func (t *TokenRefresher) checkAndRefresh(ctx context.Context) bool {
	log := logging.Logger
	log.Debug().Msg("checking token validity")

	tokens, err := t.storage.LoadTokens(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load tokens for refresh check")
		return false
	}

	timeUntilExpiry := time.Unix(tokens.ExpiresAt, 0).Sub(t.now())
	if timeUntilExpiry >= refreshWindow {
		log.Debug().Dur("expires_in", timeUntilExpiry.Round(time.Second)).Msg("token still valid")
		return false
	}

	log.Info().Dur("expires_in", timeUntilExpiry).Msg("token expiring soon, refreshing")

	newTokens, err := t.storage.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh token")
		return false
	}

	log.Info().
		Str("new_expires_at", time.Unix(newTokens.ExpiresAt, 0).Format(time.RFC3339)).
		Msg("token refreshed successfully")
	return true
}

// ActivitySource is satisfied by *cache.Cache.
type ActivitySource interface {
	Get(ctx context.Context, w query.Window) ([]strava.Activity, error)
}

// WarmCache fetches the athlete's whole history so that later queries are
// answered from memory.
func WarmCache(ctx context.Context, source ActivitySource) error {
	log := logging.Logger
	log.Info().Msg("prefetching activity history")

	start := time.Now()
	activities, err := source.Get(ctx, query.Window{})
	if err != nil {
		log.Error().Err(err).Msg("prefetch failed")
		return err
	}

	log.Info().
		Int("activities", len(activities)).
		Dur("duration", time.Since(start).Round(time.Millisecond)).
		Msg("activity history cached")
	LogActivityStats(activities)
	return nil
}

// LogActivityStats logs per-type counts and the date range of activities.
func LogActivityStats(activities []strava.Activity) {
	log := logging.Logger
	if len(activities) == 0 {
		log.Info().Msg("no activities cached yet")
		return
	}

	byType := make(map[string]int)
	for _, a := range activities {
		byType[a.Type]++
	}

	event := log.Info().
		Int("total_activities", len(activities)).
		Str("oldest_activity", formatDate(activities[0].StartDateLocal)).
		Str("newest_activity", formatDate(activities[len(activities)-1].StartDateLocal))
	for typ, n := range byType {
		event = event.Int(typ, n)
	}
	event.Msg("cached activity statistics")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02")
}
