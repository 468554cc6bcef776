package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joshdurbin/strava-stats/internal/auth"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

type fakeTokenStore struct {
	tokens     *auth.StoredTokens
	loadErr    error
	refreshErr error
	refreshes  int
}

func (f *fakeTokenStore) LoadTokens(context.Context) (*auth.StoredTokens, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.tokens, nil
}

func (f *fakeTokenStore) Refresh(context.Context) (*auth.TokenResponse, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &auth.TokenResponse{AccessToken: "new", ExpiresAt: time.Now().Add(6 * time.Hour).Unix()}, nil
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{name: "zero", input: time.Time{}, expected: "unknown"},
		{name: "date", input: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), expected: "2024-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatDate(tt.input); got != tt.expected {
				t.Errorf("formatDate(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewTokenRefresher(t *testing.T) {
	t.Parallel()

	refresher := NewTokenRefresher(nil, 30*time.Minute)

	if refresher.interval != 30*time.Minute {
		t.Errorf("expected interval 30m, got %v", refresher.interval)
	}
	if refresher.storage != nil {
		t.Errorf("expected nil storage, got %v", refresher.storage)
	}
}

func TestCheckAndRefresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		store         *fakeTokenStore
		wantRefreshed bool
		wantCalls     int
	}{
		{
			name:      "valid for an hour",
			store:     &fakeTokenStore{tokens: &auth.StoredTokens{ExpiresAt: now.Add(time.Hour).Unix()}},
			wantCalls: 0,
		},
		{
			name:          "expiring in five minutes",
			store:         &fakeTokenStore{tokens: &auth.StoredTokens{ExpiresAt: now.Add(5 * time.Minute).Unix()}},
			wantRefreshed: true,
			wantCalls:     1,
		},
		{
			name:          "already expired",
			store:         &fakeTokenStore{tokens: &auth.StoredTokens{ExpiresAt: now.Add(-time.Hour).Unix()}},
			wantRefreshed: true,
			wantCalls:     1,
		},
		{
			name:      "refresh rejected",
			store:     &fakeTokenStore{tokens: &auth.StoredTokens{ExpiresAt: now.Unix()}, refreshErr: auth.ErrRefreshFailed},
			wantCalls: 1,
		},
		{
			name:      "not authenticated",
			store:     &fakeTokenStore{loadErr: auth.ErrNotAuthenticated},
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewTokenRefresher(tt.store, time.Minute)
			r.now = func() time.Time { return now }

			if got := r.checkAndRefresh(context.Background()); got != tt.wantRefreshed {
				t.Errorf("checkAndRefresh() = %v, want %v", got, tt.wantRefreshed)
			}
			if tt.store.refreshes != tt.wantCalls {
				t.Errorf("Refresh called %d times, want %d", tt.store.refreshes, tt.wantCalls)
			}
		})
	}
}

func TestTokenRefresherStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := &fakeTokenStore{tokens: &auth.StoredTokens{ExpiresAt: time.Now().Add(time.Hour).Unix()}}
	r := NewTokenRefresher(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

type fakeSource struct {
	windows []query.Window
	result  []strava.Activity
	err     error
}

func (f *fakeSource) Get(_ context.Context, w query.Window) ([]strava.Activity, error) {
	f.windows = append(f.windows, w)
	return f.result, f.err
}

func TestWarmCache(t *testing.T) {
	t.Parallel()

	src := &fakeSource{result: []strava.Activity{
		{ID: 1, Type: "Run", StartDateLocal: time.Date(2023, 1, 1, 7, 0, 0, 0, time.UTC)},
		{ID: 2, Type: "Ride", StartDateLocal: time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)},
	}}

	if err := WarmCache(context.Background(), src); err != nil {
		t.Fatalf("WarmCache() error = %v", err)
	}
	if len(src.windows) != 1 || !src.windows[0].IsUnbounded() {
		t.Errorf("WarmCache() windows = %v, want one unbounded window", src.windows)
	}
}

func TestWarmCacheError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: strava.ErrRateLimited}
	if err := WarmCache(context.Background(), src); !errors.Is(err, strava.ErrRateLimited) {
		t.Errorf("WarmCache() error = %v, want ErrRateLimited", err)
	}
}
