package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshdurbin/strava-stats/internal/db"
)

// setupTestDB opens a migrated SQLite database in a temp dir
func setupTestDB(t *testing.T) *db.Queries {
	t.Helper()

	sqlDB, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	return db.New(sqlDB)
}

func TestNewStorage(t *testing.T) {
	t.Parallel()

	queries := setupTestDB(t)

	storage := NewStorage(queries)
	if storage == nil {
		t.Fatal("expected non-nil storage")
	}
	if storage.queries != queries {
		t.Error("storage queries not set correctly")
	}
	if storage.refresh == nil || storage.now == nil {
		t.Error("expected default refresh func and clock")
	}
}

func TestSaveAndLoadClientConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := NewStorage(setupTestDB(t))

	if err := storage.SaveClientConfig(ctx, "test_client_id", "test_client_secret"); err != nil {
		t.Fatalf("failed to save client config: %v", err)
	}

	config, err := storage.LoadClientConfig(ctx)
	if err != nil {
		t.Fatalf("failed to load client config: %v", err)
	}

	if config.ClientID != "test_client_id" {
		t.Errorf("expected client ID 'test_client_id', got %q", config.ClientID)
	}
	if config.ClientSecret != "test_client_secret" {
		t.Errorf("expected client secret 'test_client_secret', got %q", config.ClientSecret)
	}
}

func TestLoadClientConfigNotFound(t *testing.T) {
	t.Parallel()

	storage := NewStorage(setupTestDB(t))

	_, err := storage.LoadClientConfig(context.Background())
	if !errors.Is(err, ErrClientNotConfigured) {
		t.Errorf("expected ErrClientNotConfigured, got %v", err)
	}
}

func TestSaveAndLoadTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := NewStorage(setupTestDB(t))

	if err := storage.SaveClientConfig(ctx, "test_client", "test_secret"); err != nil {
		t.Fatalf("failed to save client config: %v", err)
	}

	tokens := &TokenResponse{
		AccessToken:  "test_access_token",
		RefreshToken: "test_refresh_token",
		ExpiresAt:    time.Now().Add(1 * time.Hour).Unix(),
		TokenType:    "Bearer",
	}
	if err := storage.SaveTokens(ctx, tokens); err != nil {
		t.Fatalf("failed to save tokens: %v", err)
	}

	loaded, err := storage.LoadTokens(ctx)
	if err != nil {
		t.Fatalf("failed to load tokens: %v", err)
	}

	if loaded.AccessToken != "test_access_token" {
		t.Errorf("expected access token 'test_access_token', got %q", loaded.AccessToken)
	}
	if loaded.RefreshToken != "test_refresh_token" {
		t.Errorf("expected refresh token 'test_refresh_token', got %q", loaded.RefreshToken)
	}
	if loaded.ExpiresAt != tokens.ExpiresAt {
		t.Errorf("expected expires_at %d, got %d", tokens.ExpiresAt, loaded.ExpiresAt)
	}
}

func TestSaveTokensWithoutClientConfig(t *testing.T) {
	t.Parallel()

	storage := NewStorage(setupTestDB(t))

	err := storage.SaveTokens(context.Background(), &TokenResponse{AccessToken: "a", RefreshToken: "r"})
	if !errors.Is(err, ErrClientNotConfigured) {
		t.Errorf("expected ErrClientNotConfigured, got %v", err)
	}
}

func TestLoadTokensNotAuthenticated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := NewStorage(setupTestDB(t))

	if _, err := storage.LoadTokens(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("empty db: expected ErrNotAuthenticated, got %v", err)
	}

	if err := storage.SaveClientConfig(ctx, "test_client", "test_secret"); err != nil {
		t.Fatalf("failed to save client config: %v", err)
	}
	if _, err := storage.LoadTokens(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("client only: expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSaveFullConfigAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := NewStorage(setupTestDB(t))

	tokens := &TokenResponse{
		AccessToken:  "full_access_token",
		RefreshToken: "full_refresh_token",
		ExpiresAt:    time.Now().Add(2 * time.Hour).Unix(),
	}
	if err := storage.SaveFullConfig(ctx, "full_client_id", "full_client_secret", tokens); err != nil {
		t.Fatalf("failed to save full config: %v", err)
	}

	clientConfig, err := storage.LoadClientConfig(ctx)
	if err != nil {
		t.Fatalf("failed to load client config: %v", err)
	}
	if clientConfig.ClientID != "full_client_id" {
		t.Errorf("expected client ID 'full_client_id', got %q", clientConfig.ClientID)
	}

	loaded, err := storage.LoadTokens(ctx)
	if err != nil {
		t.Fatalf("failed to load tokens: %v", err)
	}
	if loaded.AccessToken != "full_access_token" {
		t.Errorf("expected access token 'full_access_token', got %q", loaded.AccessToken)
	}

	if err := storage.DeleteTokens(ctx); err != nil {
		t.Fatalf("failed to delete tokens: %v", err)
	}
	if _, err := storage.LoadTokens(ctx); err == nil {
		t.Error("expected error after deletion")
	}
}

func TestGetValidAccessTokenFresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	refreshed := false
	storage := NewStorage(setupTestDB(t), WithRefreshFunc(func(context.Context, string, string, string) (*TokenResponse, error) {
		refreshed = true
		return nil, errors.New("unexpected refresh")
	}))

	tokens := &TokenResponse{AccessToken: "fresh", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if err := storage.SaveFullConfig(ctx, "id", "secret", tokens); err != nil {
		t.Fatalf("failed to save full config: %v", err)
	}

	got, err := storage.GetValidAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if got != "fresh" {
		t.Errorf("GetValidAccessToken() = %q, want %q", got, "fresh")
	}
	if refreshed {
		t.Error("refresh called for a token that is still valid")
	}
}

func TestGetValidAccessTokenRefreshes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	var gotClient, gotRefresh string
	storage := NewStorage(setupTestDB(t),
		WithStorageClock(func() time.Time { return now }),
		WithRefreshFunc(func(_ context.Context, clientID, _ string, refreshToken string) (*TokenResponse, error) {
			gotClient, gotRefresh = clientID, refreshToken
			return &TokenResponse{AccessToken: "new", RefreshToken: "new_refresh", ExpiresAt: now.Add(6 * time.Hour).Unix()}, nil
		}),
	)

	// Expires inside the five minute threshold.
	tokens := &TokenResponse{AccessToken: "old", RefreshToken: "old_refresh", ExpiresAt: now.Add(2 * time.Minute).Unix()}
	if err := storage.SaveFullConfig(ctx, "id", "secret", tokens); err != nil {
		t.Fatalf("failed to save full config: %v", err)
	}

	got, err := storage.GetValidAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if got != "new" {
		t.Errorf("GetValidAccessToken() = %q, want %q", got, "new")
	}
	if gotClient != "id" || gotRefresh != "old_refresh" {
		t.Errorf("refresh called with %q/%q, want id/old_refresh", gotClient, gotRefresh)
	}

	loaded, err := storage.LoadTokens(ctx)
	if err != nil {
		t.Fatalf("failed to load tokens: %v", err)
	}
	if loaded.RefreshToken != "new_refresh" {
		t.Errorf("stored refresh token = %q, want new_refresh", loaded.RefreshToken)
	}
}

func TestGetValidAccessTokenRefreshFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := NewStorage(setupTestDB(t), WithRefreshFunc(func(context.Context, string, string, string) (*TokenResponse, error) {
		return nil, errors.New("invalid_grant")
	}))

	tokens := &TokenResponse{AccessToken: "old", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	if err := storage.SaveFullConfig(ctx, "id", "secret", tokens); err != nil {
		t.Fatalf("failed to save full config: %v", err)
	}

	_, err := storage.GetValidAccessToken(ctx)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("GetValidAccessToken() error = %v, want ErrRefreshFailed", err)
	}
}

func TestRefreshForcesNewTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	calls := 0
	storage := NewStorage(setupTestDB(t), WithRefreshFunc(func(context.Context, string, string, string) (*TokenResponse, error) {
		calls++
		return &TokenResponse{AccessToken: "forced", RefreshToken: "r2", ExpiresAt: time.Now().Add(6 * time.Hour).Unix()}, nil
	}))

	if _, err := storage.Refresh(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Refresh() on empty db error = %v, want ErrNotAuthenticated", err)
	}

	tokens := &TokenResponse{AccessToken: "valid", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if err := storage.SaveFullConfig(ctx, "id", "secret", tokens); err != nil {
		t.Fatalf("failed to save full config: %v", err)
	}

	got, err := storage.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got.AccessToken != "forced" || calls != 1 {
		t.Errorf("Refresh() = %+v after %d calls", got, calls)
	}

	access, err := storage.GetValidAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if access != "forced" {
		t.Errorf("GetValidAccessToken() = %q, want the refreshed token", access)
	}
}
