package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshdurbin/strava-stats/internal/db"
	"github.com/joshdurbin/strava-stats/internal/logging"
)

var (
	// ErrNotAuthenticated means no access token has been stored yet.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrClientNotConfigured means no client id/secret has been stored yet.
	ErrClientNotConfigured = errors.New("client not configured")
	// ErrRefreshFailed wraps a rejected refresh; the user has to log in again.
	ErrRefreshFailed = errors.New("refreshing token")
)

// RefreshFunc exchanges a refresh token for a new token set.
type RefreshFunc func(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error)

// Storage persists client credentials and tokens in SQLite and hands out
// valid access tokens, refreshing them when they are about to expire.
type Storage struct {
	queries *db.Queries
	refresh RefreshFunc
	now     func() time.Time

	// mu serializes refreshes so concurrent callers do not spend the same
	// refresh token twice.
	mu sync.Mutex
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithRefreshFunc replaces the Strava token refresh call.
func WithRefreshFunc(fn RefreshFunc) StorageOption {
	return func(s *Storage) {
		s.refresh = fn
	}
}

// WithStorageClock replaces time.Now for expiry checks.
func WithStorageClock(now func() time.Time) StorageOption {
	return func(s *Storage) {
		s.now = now
	}
}

// NewStorage creates a new Storage instance
func NewStorage(queries *db.Queries, opts ...StorageOption) *Storage {
	s := &Storage{
		queries: queries,
		refresh: RefreshAccessToken,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveTokens updates the tokens, keeping the stored client credentials.
func (s *Storage) SaveTokens(ctx context.Context, tokens *TokenResponse) error {
	if _, err := s.LoadClientConfig(ctx); err != nil {
		return err
	}

	return s.queries.UpdateTokens(ctx, db.UpdateTokensParams{
		AccessToken:  sql.NullString{String: tokens.AccessToken, Valid: true},
		RefreshToken: sql.NullString{String: tokens.RefreshToken, Valid: true},
		ExpiresAt:    sql.NullInt64{Int64: tokens.ExpiresAt, Valid: true},
	})
}

// LoadTokens loads tokens from the database
func (s *Storage) LoadTokens(ctx context.Context) (*StoredTokens, error) {
	config, err := s.queries.GetAuthConfig(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("loading auth config: %w", err)
	}

	if !config.AccessToken.Valid {
		return nil, ErrNotAuthenticated
	}

	return &StoredTokens{
		AccessToken:  config.AccessToken.String,
		RefreshToken: config.RefreshToken.String,
		ExpiresAt:    config.ExpiresAt.Int64,
	}, nil
}

// SaveClientConfig saves client credentials, clearing any stored tokens.
func (s *Storage) SaveClientConfig(ctx context.Context, clientID, clientSecret string) error {
	return s.queries.SaveAuthConfig(ctx, db.SaveAuthConfigParams{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

// SaveFullConfig saves client credentials and tokens together
func (s *Storage) SaveFullConfig(ctx context.Context, clientID, clientSecret string, tokens *TokenResponse) error {
	return s.queries.SaveAuthConfig(ctx, db.SaveAuthConfigParams{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AccessToken:  sql.NullString{String: tokens.AccessToken, Valid: true},
		RefreshToken: sql.NullString{String: tokens.RefreshToken, Valid: true},
		ExpiresAt:    sql.NullInt64{Int64: tokens.ExpiresAt, Valid: true},
	})
}

// LoadClientConfig loads client credentials from the database
func (s *Storage) LoadClientConfig(ctx context.Context) (*ClientConfig, error) {
	config, err := s.queries.GetAuthConfig(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotConfigured
		}
		return nil, fmt.Errorf("loading auth config: %w", err)
	}

	return &ClientConfig{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
	}, nil
}

// DeleteTokens removes the stored auth config from the database
func (s *Storage) DeleteTokens(ctx context.Context) error {
	return s.queries.DeleteAuthConfig(ctx)
}

// GetValidAccessToken returns a valid access token, refreshing if necessary.
// Its signature matches strava.TokenFunc.
func (s *Storage) GetValidAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.LoadTokens(ctx)
	if err != nil {
		return "", err
	}

	if !isExpiredAt(tokens.ExpiresAt, s.now()) {
		return tokens.AccessToken, nil
	}

	logging.Logger.Debug().
		Str("expires_at", time.Unix(tokens.ExpiresAt, 0).Format(time.RFC3339)).
		Msg("access token expired or expiring, refreshing")

	newTokens, err := s.refreshLocked(ctx, tokens.RefreshToken)
	if err != nil {
		return "", err
	}
	return newTokens.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new token set and
// persists it, whether or not the current access token has expired.
func (s *Storage) Refresh(ctx context.Context) (*TokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.LoadTokens(ctx)
	if err != nil {
		return nil, err
	}
	return s.refreshLocked(ctx, tokens.RefreshToken)
}

func (s *Storage) refreshLocked(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	config, err := s.LoadClientConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading client config for refresh: %w", err)
	}

	newTokens, err := s.refresh(ctx, config.ClientID, config.ClientSecret, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if err := s.SaveTokens(ctx, newTokens); err != nil {
		return nil, fmt.Errorf("saving refreshed tokens: %w", err)
	}
	return newTokens, nil
}

// StoredTokens represents the tokens stored in the database
type StoredTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// ClientConfig represents the stored client credentials
type ClientConfig struct {
	ClientID     string
	ClientSecret string
}
