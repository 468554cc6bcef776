package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joshdurbin/strava-stats/internal/auth"
	"github.com/joshdurbin/strava-stats/internal/cache"
	"github.com/joshdurbin/strava-stats/internal/config"
	"github.com/joshdurbin/strava-stats/internal/db"
	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/resolver"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// session is everything one run of the tool shares: the credential store,
// the activity cache and the resolver reading from it.
type session struct {
	db       *sql.DB
	storage  *auth.Storage
	client   *strava.Client
	cache    *cache.Cache
	resolver *resolver.Resolver
	loc      *time.Location
}

func (s *session) Close() error {
	return s.db.Close()
}

func (s *session) Status() cache.Status {
	return s.cache.Status()
}

func (s *session) GetRateLimit() strava.RateLimitInfo {
	return s.client.GetRateLimit()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	log := logging.Logger

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// openSession opens the credential database, makes sure a usable token is
// stored and builds the cache and resolver on top of the Strava client.
func openSession(ctx context.Context, cfg *config.Settings, stdin *bufio.Reader) (*session, error) {
	logging.WithSession(uuid.NewString())
	log := logging.Logger

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("db_path", cfg.DBPath).
		Str("timezone", loc.String()).
		Int("per_page", cfg.PerPage).
		Int("max_pages", cfg.MaxPages).
		Msg("starting strava-stats")

	sqlDB, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	storage := auth.NewStorage(db.New(sqlDB))
	if err := ensureAuthenticated(ctx, storage, cfg, stdin); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("authentication: %w", err)
	}

	client := strava.NewClientWithRetryConfig(storage.GetValidAccessToken, cfg.Retry).
		WithPaging(cfg.PerPage, cfg.MaxPages).
		WithProgress(logFetchProgress)

	activityCache := cache.New(client, cache.WithLocation(loc))
	res := resolver.New(activityCache, resolver.WithClock(func() time.Time {
		return time.Now().In(loc)
	}))

	return &session{
		db:       sqlDB,
		storage:  storage,
		client:   client,
		cache:    activityCache,
		resolver: res,
		loc:      loc,
	}, nil
}

// logFetchProgress logs each page of a fetch with the API usage it reported.
func logFetchProgress(result strava.FetchResult) {
	logging.Logger.Debug().
		Int("page", result.Page).
		Int("page_activities", len(result.Activities)).
		Int("total_fetched", result.TotalFetched).
		Str("15min_usage", fmt.Sprintf("%d/%d", result.RateLimit.Usage15Min, result.RateLimit.Limit15Min)).
		Str("daily_usage", fmt.Sprintf("%d/%d", result.RateLimit.UsageDaily, result.RateLimit.LimitDaily)).
		Msg("fetched activity page")
}

// ensureAuthenticated checks if we have valid auth tokens, and if not, runs the OAuth flow
func ensureAuthenticated(ctx context.Context, storage *auth.Storage, cfg *config.Settings, stdin *bufio.Reader) error {
	log := logging.Logger

	// If force reauth is requested, clear existing tokens and credentials, then re-prompt
	if cfg.ForceReauth {
		log.Info().Msg("force re-authentication requested, clearing existing credentials and tokens")
		if err := storage.DeleteTokens(ctx); err != nil {
			log.Debug().Err(err).Msg("failed to delete existing auth config (may not exist)")
		}
	}

	clientConfig, err := storage.LoadClientConfig(ctx)
	if err != nil || cfg.ForceReauth {
		clientConfig, err = clientCredentials(cfg, stdin)
		if err != nil {
			return fmt.Errorf("getting credentials: %w", err)
		}
	}

	if !cfg.ForceReauth {
		_, err := storage.GetValidAccessToken(ctx)
		if err == nil {
			log.Info().Msg("using existing authentication")
			return nil
		}

		if errors.Is(err, auth.ErrRefreshFailed) {
			log.Warn().Err(err).Msg("token refresh failed, re-authentication required")
			fmt.Fprintln(os.Stderr, "\n=== Token Refresh Failed ===")
			fmt.Fprintln(os.Stderr, "Your Strava authentication has expired or been revoked.")
			fmt.Fprintln(os.Stderr, "Re-authentication is required.")
		} else {
			log.Info().Msg("no valid authentication found, starting OAuth flow")
		}
	}

	return runOAuthFlow(ctx, storage, clientConfig, stdin)
}

// clientCredentials takes the client id and secret from the settings file
// when present and otherwise asks for them.
func clientCredentials(cfg *config.Settings, stdin *bufio.Reader) (*auth.ClientConfig, error) {
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		logging.Logger.Debug().Msg("using client credentials from settings file")
		return &auth.ClientConfig{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}, nil
	}
	return promptForCredentials(stdin)
}

// promptForCredentials prompts the user to enter their Strava API credentials
func promptForCredentials(stdin *bufio.Reader) (*auth.ClientConfig, error) {
	fmt.Fprintln(os.Stderr, "\n=== Strava API Credentials Required ===")
	fmt.Fprintln(os.Stderr, "Get your API credentials from: https://www.strava.com/settings/api")
	fmt.Fprintln(os.Stderr)

	fmt.Fprint(os.Stderr, "Enter your Client ID: ")
	clientID, err := stdin.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading client ID: %w", err)
	}
	clientID = strings.TrimSpace(clientID)

	if clientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	fmt.Fprint(os.Stderr, "Enter your Client Secret: ")
	clientSecret, err := stdin.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading client secret: %w", err)
	}
	clientSecret = strings.TrimSpace(clientSecret)

	if clientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	return &auth.ClientConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, nil
}

// runOAuthFlow performs the OAuth authentication flow with Strava
func runOAuthFlow(ctx context.Context, storage *auth.Storage, clientConfig *auth.ClientConfig, stdin *bufio.Reader) error {
	log := logging.Logger

	fmt.Fprintln(os.Stderr, "\n=== Strava Authentication Required ===")
	fmt.Fprintln(os.Stderr, "A browser window will open for you to authorize this application.")
	fmt.Fprintln(os.Stderr, "Press Enter to continue...")
	stdin.ReadString('\n')

	tokens, err := auth.Authenticate(ctx, clientConfig.ClientID, clientConfig.ClientSecret)
	if err != nil {
		return fmt.Errorf("OAuth flow failed: %w", err)
	}

	log.Info().
		Str("expires_at", time.Unix(tokens.ExpiresAt, 0).Format(time.RFC3339)).
		Msg("OAuth authentication successful")

	// Save tokens with client config
	if err := storage.SaveFullConfig(ctx, clientConfig.ClientID, clientConfig.ClientSecret, tokens); err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\nAuthentication successful! Token expires: %s\n\n",
		time.Unix(tokens.ExpiresAt, 0).Format(time.RFC1123))
	return nil
}
