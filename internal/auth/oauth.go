package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

const (
	authURL      = "https://www.strava.com/oauth/authorize"
	tokenURL     = "https://www.strava.com/oauth/token"
	callbackAddr = "localhost:8089"
	redirectURI  = "http://" + callbackAddr + "/callback"
	scopes       = "activity:read_all"

	// expiryThreshold is how long before expiry a token is treated as expired.
	expiryThreshold = 5 * time.Minute

	authorizeTimeout = 5 * time.Minute
)

// StravaOAuthConfig returns an OAuth2 config for Strava
func StravaOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      []string{scopes},
	}
}

// TokenResponse is the token set persisted between sessions.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
}

// TokenFromOAuth2 converts an oauth2.Token to our TokenResponse
func TokenFromOAuth2(token *oauth2.Token) *TokenResponse {
	return &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.Unix(),
		TokenType:    token.TokenType,
	}
}

// ToOAuth2Token converts our TokenResponse to an oauth2.Token
func (t *TokenResponse) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       time.Unix(t.ExpiresAt, 0),
		TokenType:    t.TokenType,
	}
}

// Authenticate runs the authorization-code flow: it serves the redirect on
// localhost, opens the authorize page in a browser and exchanges the
// returned code for tokens.
func Authenticate(ctx context.Context, clientID, clientSecret string) (*TokenResponse, error) {
	config := StravaOAuthConfig(clientID, clientSecret)
	state := uuid.NewString()

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    callbackAddr,
		Handler: mux,
	}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := callbackCode(r, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			select {
			case errChan <- err:
			default:
			}
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>`)
		select {
		case codeChan <- code:
		default:
		}
	})

	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	authCodeURL := config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "force"))

	fmt.Println("Opening browser for Strava authorization...")
	fmt.Printf("If browser doesn't open, visit: %s\n\n", authCodeURL)

	if err := browser.OpenURL(authCodeURL); err != nil {
		fmt.Printf("Could not open browser automatically: %v\n", err)
	}

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		server.Shutdown(context.Background())
		return nil, err
	case <-ctx.Done():
		server.Shutdown(context.Background())
		return nil, ctx.Err()
	case <-time.After(authorizeTimeout):
		server.Shutdown(context.Background())
		return nil, fmt.Errorf("authorization timeout")
	}

	server.Shutdown(ctx)

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	return TokenFromOAuth2(token), nil
}

// callbackCode extracts the authorization code from the redirect request.
func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if got := q.Get("state"); got != state {
		return "", fmt.Errorf("authorization failed: state mismatch")
	}

	code := q.Get("code")
	if code == "" {
		errMsg := q.Get("error")
		if errMsg == "" {
			errMsg = "no authorization code received"
		}
		return "", fmt.Errorf("authorization failed: %s", errMsg)
	}
	return code, nil
}

// RefreshAccessToken exchanges a refresh token for a new token set.
func RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	return refreshWithConfig(ctx, StravaOAuthConfig(clientID, clientSecret), refreshToken)
}

func refreshWithConfig(ctx context.Context, config *oauth2.Config, refreshToken string) (*TokenResponse, error) {
	// An already expired token forces the token source to refresh.
	oldToken := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}

	newToken, err := config.TokenSource(ctx, oldToken).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	return TokenFromOAuth2(newToken), nil
}

// IsTokenExpired checks if the token is expired or will expire soon
func IsTokenExpired(expiresAt int64) bool {
	return isExpiredAt(expiresAt, time.Now())
}

func isExpiredAt(expiresAt int64, now time.Time) bool {
	return now.Unix() > expiresAt-int64(expiryThreshold/time.Second)
}
