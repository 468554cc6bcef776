package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/joshdurbin/strava-stats/internal/logging"
)

const (
	baseURL = "https://www.strava.com/api/v3"

	// DefaultPerPage is the largest page size the activities endpoint accepts.
	DefaultPerPage = 200
	// DefaultMaxPages bounds a single paginated fetch.
	DefaultMaxPages = 500
)

// Default retry settings
const (
	defaultMaxRetries     = 5
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

var (
	// ErrRateLimited indicates the API returned a 429 rate limit error
	ErrRateLimited = fmt.Errorf("rate limited")
	// ErrUnauthorized indicates the bearer token was rejected
	ErrUnauthorized = fmt.Errorf("unauthorized: access token rejected by strava")
	// ErrTooManyPages indicates pagination hit the page cap before an empty page
	ErrTooManyPages = fmt.Errorf("page limit reached before end of activity list")
)

// TokenFunc produces a current bearer token. It is called before every request.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken returns a TokenFunc that always yields token.
func StaticToken(token string) TokenFunc {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// FetchResult contains the result of fetching one page
type FetchResult struct {
	Activities   []Activity
	RateLimit    RateLimitInfo
	Page         int
	TotalFetched int
}

// ProgressCallback is called after each page is fetched
type ProgressCallback func(result FetchResult)

// RetryConfig holds retry/backoff settings
type RetryConfig struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: defaultMaxRetries,
		MinWait:    defaultInitialBackoff,
		MaxWait:    defaultMaxBackoff,
	}
}

// Client is a Strava API client with automatic retry and backoff
type Client struct {
	httpClient *retryablehttp.Client
	token      TokenFunc
	baseURL    string
	perPage    int
	maxPages   int
	progress   ProgressCallback

	rateMu    sync.RWMutex
	rateLimit RateLimitInfo
}

// NewClient creates a new Strava API client with automatic retry
func NewClient(token TokenFunc) *Client {
	return newClientWithConfig(token, baseURL, DefaultRetryConfig())
}

// NewClientWithRetryConfig creates a new Strava API client with custom retry settings
func NewClientWithRetryConfig(token TokenFunc, cfg RetryConfig) *Client {
	return newClientWithConfig(token, baseURL, cfg)
}

// NewClientWithBaseURL creates a new Strava API client with a custom base URL (for testing)
func NewClientWithBaseURL(token TokenFunc, customBaseURL string) *Client {
	return newClientWithConfig(token, customBaseURL, DefaultRetryConfig())
}

func newClientWithConfig(token TokenFunc, baseURL string, cfg RetryConfig) *Client {
	log := logging.Logger
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.MinWait
	client.RetryWaitMax = cfg.MaxWait
	client.Logger = &logging.LeveledLogger{}
	client.HTTPClient.Timeout = 30 * time.Second
	// Hand the last response back once retries are exhausted so status codes
	// map onto the package errors below.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	// Retry on 429, 5xx and connection errors; auth failures are final.
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return true, nil
		case resp.StatusCode >= 500:
			return true, nil
		}
		return false, nil
	}

	client.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					wait := time.Duration(seconds) * time.Second
					log.Info().
						Dur("wait", wait).
						Int("attempt", attemptNum).
						Msg("rate limited, waiting for Retry-After header")
					return wait
				}
			}

			wait := timeUntilNext15MinWindow(time.Now())
			log.Info().
				Dur("wait", wait).
				Int("attempt", attemptNum).
				Msg("rate limited, waiting for 15-minute window reset")
			return wait
		}

		wait := min * time.Duration(1<<uint(attemptNum))
		if wait > max {
			wait = max
		}
		log.Info().
			Dur("wait", wait).
			Int("attempt", attemptNum).
			Dur("max_wait", max).
			Msg("backing off before retry")
		return wait
	}

	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, retry int) {
		if retry > 0 {
			log.Info().
				Str("url", req.URL.Path).
				Int("attempt", retry+1).
				Msg("retrying request")
		}
		if logging.IsTraceEnabled() {
			log.Debug().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Str("headers", formatHeaders(req.Header)).
				Msg("request headers")
		}
	}

	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if logging.IsTraceEnabled() {
			log.Debug().
				Int("status", resp.StatusCode).
				Str("url", resp.Request.URL.Path).
				Str("headers", formatHeaders(resp.Header)).
				Msg("response headers")
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimit := parseRateLimitHeaders(resp.Header, time.Now())
			log.Warn().
				Str("url", resp.Request.URL.Path).
				Str("15min_usage", fmt.Sprintf("%d/%d", rateLimit.Usage15Min, rateLimit.Limit15Min)).
				Str("daily_usage", fmt.Sprintf("%d/%d", rateLimit.UsageDaily, rateLimit.LimitDaily)).
				Dur("wait_for_reset", rateLimit.TimeUntil15MinReset).
				Msg("rate limited by API")
		}
	}

	return &Client{
		httpClient: client,
		token:      token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		perPage:    DefaultPerPage,
		maxPages:   DefaultMaxPages,
	}
}

// WithRetryConfig sets custom retry configuration (useful for testing)
func (c *Client) WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) *Client {
	c.httpClient.RetryMax = maxRetries
	c.httpClient.RetryWaitMin = initialBackoff
	c.httpClient.RetryWaitMax = maxBackoff
	return c
}

// WithPaging overrides the page size and the maximum number of pages per fetch.
// Non-positive values keep the current setting.
func (c *Client) WithPaging(perPage, maxPages int) *Client {
	if perPage > 0 {
		c.perPage = perPage
	}
	if maxPages > 0 {
		c.maxPages = maxPages
	}
	return c
}

// WithProgress sets a callback that FetchActivities invokes after every page.
func (c *Client) WithProgress(progress ProgressCallback) *Client {
	c.progress = progress
	return c
}

// GetRateLimit returns the current rate limit info (with recalculated reset times)
func (c *Client) GetRateLimit() RateLimitInfo {
	c.rateMu.RLock()
	info := c.rateLimit
	c.rateMu.RUnlock()

	info.recompute(time.Now())
	return info
}

func (c *Client) updateRateLimit(resp *http.Response) RateLimitInfo {
	rateLimit := parseRateLimitHeaders(resp.Header, time.Now())
	if resp.StatusCode == http.StatusTooManyRequests {
		rateLimit.IsRateLimited = true
	}
	c.rateMu.Lock()
	c.rateLimit = rateLimit
	c.rateMu.Unlock()
	return rateLimit
}

// FetchActivities fetches every activity starting inside [after, before].
// A zero bound is left off the request. Pages are requested until the API
// returns an empty page. The callback set with WithProgress, if any, sees
// every page.
func (c *Client) FetchActivities(ctx context.Context, after, before time.Time) ([]Activity, error) {
	return c.FetchActivitiesWithProgress(ctx, after, before, c.progress)
}

// FetchActivitiesWithProgress is FetchActivities with a per-page callback.
func (c *Client) FetchActivitiesWithProgress(ctx context.Context, after, before time.Time, progress ProgressCallback) ([]Activity, error) {
	log := logging.Logger
	var all []Activity

	for page := 1; ; page++ {
		if page > c.maxPages {
			log.Warn().Int("max_pages", c.maxPages).Int("fetched", len(all)).Msg("stopping pagination at page limit")
			return nil, fmt.Errorf("fetching activities: %w (%d pages)", ErrTooManyPages, c.maxPages)
		}

		activities, rateLimit, err := c.fetchActivitiesPage(ctx, page, after, before)
		if err != nil {
			return nil, err
		}

		if progress != nil {
			progress(FetchResult{
				Activities:   activities,
				RateLimit:    rateLimit,
				Page:         page,
				TotalFetched: len(all) + len(activities),
			})
		}

		if len(activities) == 0 {
			break
		}
		all = append(all, activities...)
	}

	log.Debug().
		Int("count", len(all)).
		Time("after", after).
		Time("before", before).
		Msg("fetched activities")
	return all, nil
}

func (c *Client) activitiesURL(page int, after, before time.Time) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.perPage))
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	if !before.IsZero() {
		q.Set("before", strconv.FormatInt(before.Unix(), 10))
	}
	return c.baseURL + "/athlete/activities?" + q.Encode()
}

func (c *Client) fetchActivitiesPage(ctx context.Context, page int, after, before time.Time) ([]Activity, RateLimitInfo, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, RateLimitInfo{}, fmt.Errorf("obtaining access token: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.activitiesURL(page, after, before), nil)
	if err != nil {
		return nil, RateLimitInfo{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, RateLimitInfo{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	rateLimit := c.updateRateLimit(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, rateLimit, ErrUnauthorized
	case http.StatusTooManyRequests:
		// Retries exhausted
		return nil, rateLimit, ErrRateLimited
	default:
		return nil, rateLimit, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var activities []Activity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, rateLimit, fmt.Errorf("decoding response: %w", err)
	}

	return activities, rateLimit, nil
}

// formatHeaders formats HTTP headers for logging, redacting sensitive values
func formatHeaders(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := strings.Join(headers[k], ", ")
		switch strings.ToLower(k) {
		case "authorization", "cookie", "set-cookie":
			value = "[REDACTED]"
		}
		parts = append(parts, fmt.Sprintf("%s: %q", k, value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
