package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestIsExpiredAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt int64
		want      bool
	}{
		{
			name:      "expired in the past",
			expiresAt: now.Add(-1 * time.Hour).Unix(),
			want:      true,
		},
		{
			name:      "expires in 1 minute (within 5 min threshold)",
			expiresAt: now.Add(1 * time.Minute).Unix(),
			want:      true,
		},
		{
			name:      "expires in 4 minutes (within 5 min threshold)",
			expiresAt: now.Add(4 * time.Minute).Unix(),
			want:      true,
		},
		{
			name:      "expires in 10 minutes (beyond threshold)",
			expiresAt: now.Add(10 * time.Minute).Unix(),
			want:      false,
		},
		{
			name:      "expires in 1 hour",
			expiresAt: now.Add(1 * time.Hour).Unix(),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isExpiredAt(tt.expiresAt, now); got != tt.want {
				t.Errorf("isExpiredAt(%d) = %v, want %v", tt.expiresAt, got, tt.want)
			}
		})
	}
}

func TestIsTokenExpired(t *testing.T) {
	t.Parallel()

	if !IsTokenExpired(time.Now().Add(-time.Minute).Unix()) {
		t.Error("expected past expiry to be expired")
	}
	if IsTokenExpired(time.Now().Add(time.Hour).Unix()) {
		t.Error("expected expiry in an hour to be valid")
	}
}

func TestTokenConversionRoundTrip(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(1 * time.Hour)
	original := &TokenResponse{
		AccessToken:  "access_token",
		RefreshToken: "refresh_token",
		ExpiresAt:    expiry.Unix(),
		TokenType:    "Bearer",
	}

	converted := original.ToOAuth2Token()
	if converted.AccessToken != "access_token" {
		t.Errorf("expected access token 'access_token', got %q", converted.AccessToken)
	}
	if converted.TokenType != "Bearer" {
		t.Errorf("expected token type 'Bearer', got %q", converted.TokenType)
	}

	back := TokenFromOAuth2(converted)
	if *back != *original {
		t.Errorf("round trip = %+v, want %+v", back, original)
	}
}

func TestStravaOAuthConfig(t *testing.T) {
	t.Parallel()

	config := StravaOAuthConfig("test_client_id", "test_client_secret")

	if config.ClientID != "test_client_id" {
		t.Errorf("expected client_id 'test_client_id', got %q", config.ClientID)
	}
	if config.Endpoint.AuthURL != "https://www.strava.com/oauth/authorize" {
		t.Errorf("unexpected auth URL: %q", config.Endpoint.AuthURL)
	}
	if config.Endpoint.TokenURL != "https://www.strava.com/oauth/token" {
		t.Errorf("unexpected token URL: %q", config.Endpoint.TokenURL)
	}
	if config.RedirectURL != "http://localhost:8089/callback" {
		t.Errorf("unexpected redirect URL: %q", config.RedirectURL)
	}
	if len(config.Scopes) != 1 || config.Scopes[0] != "activity:read_all" {
		t.Errorf("unexpected scopes: %v", config.Scopes)
	}
}

func TestCallbackCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		wantCode string
		wantErr  bool
	}{
		{name: "ok", query: "?state=s1&code=abc", wantCode: "abc"},
		{name: "state mismatch", query: "?state=other&code=abc", wantErr: true},
		{name: "denied", query: "?state=s1&error=access_denied", wantErr: true},
		{name: "missing code", query: "?state=s1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil)
			code, err := callbackCode(r, "s1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("callbackCode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if code != tt.wantCode {
				t.Errorf("callbackCode() = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestRefreshWithConfig(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "old_refresh" {
			t.Errorf("refresh_token = %q, want old_refresh", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new_access",
			"refresh_token": "new_refresh",
			"token_type":    "Bearer",
			"expires_in":    21600,
		})
	}))
	defer srv.Close()

	config := StravaOAuthConfig("id", "secret")
	config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}

	tokens, err := refreshWithConfig(context.Background(), config, "old_refresh")
	if err != nil {
		t.Fatalf("refreshWithConfig() error = %v", err)
	}
	if tokens.AccessToken != "new_access" || tokens.RefreshToken != "new_refresh" {
		t.Errorf("tokens = %+v", tokens)
	}
	if tokens.ExpiresAt <= time.Now().Unix() {
		t.Errorf("ExpiresAt = %d, want in the future", tokens.ExpiresAt)
	}
}

func TestRefreshWithConfigRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	config := StravaOAuthConfig("id", "secret")
	config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}

	if _, err := refreshWithConfig(context.Background(), config, "old_refresh"); err == nil {
		t.Error("expected error for rejected refresh")
	}
}
