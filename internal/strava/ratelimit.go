package strava

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Buffer to keep from rate limit boundaries (leave room for other operations)
const rateLimitBuffer = 5

// RateLimitInfo contains rate limit information from the API
type RateLimitInfo struct {
	Limit15Min    int
	Usage15Min    int
	LimitDaily    int
	UsageDaily    int
	IsRateLimited bool

	TimeUntil15MinReset time.Duration
	TimeUntilDailyReset time.Duration
	RecommendedWait     time.Duration
}

// IsApproaching15MinLimit returns true if we're close to the 15-minute limit
func (info *RateLimitInfo) IsApproaching15MinLimit() bool {
	if info.Limit15Min == 0 {
		return false
	}
	return info.Usage15Min >= info.Limit15Min-rateLimitBuffer
}

// IsApproachingDailyLimit returns true if we're close to the daily limit
func (info *RateLimitInfo) IsApproachingDailyLimit() bool {
	if info.LimitDaily == 0 {
		return false
	}
	return info.UsageDaily >= info.LimitDaily-rateLimitBuffer
}

// recompute refreshes the reset timers and the recommended wait relative to now.
func (info *RateLimitInfo) recompute(now time.Time) {
	info.TimeUntil15MinReset = timeUntilNext15MinWindow(now)
	info.TimeUntilDailyReset = timeUntilMidnightUTC(now)
	info.RecommendedWait = 0

	switch {
	case info.Limit15Min > 0 && info.Usage15Min >= info.Limit15Min:
		info.IsRateLimited = true
		info.RecommendedWait = info.TimeUntil15MinReset
	case info.LimitDaily > 0 && info.UsageDaily >= info.LimitDaily:
		info.IsRateLimited = true
		info.RecommendedWait = info.TimeUntilDailyReset
	case info.IsApproaching15MinLimit():
		info.RecommendedWait = info.TimeUntil15MinReset
	case info.IsApproachingDailyLimit():
		info.RecommendedWait = info.TimeUntilDailyReset
	}
}

// timeUntilNext15MinWindow calculates time until the next 15-minute boundary.
// Strava rate limits reset at 0, 15, 30, 45 minutes past each hour.
func timeUntilNext15MinWindow(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Duration(now.Minute()/15+1) * 15 * time.Minute)
	return next.Sub(now) + 2*time.Second
}

// timeUntilMidnightUTC calculates time until midnight UTC (daily reset)
func timeUntilMidnightUTC(now time.Time) time.Duration {
	nowUTC := now.UTC()
	midnight := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(nowUTC) + 2*time.Second
}

// parseHeaderPair reads a "15min,daily" header value.
func parseHeaderPair(headers http.Header, key string) (fifteen, daily int) {
	value := headers.Get(key)
	if value == "" {
		return 0, 0
	}
	parts := strings.Split(value, ",")
	fifteen, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	if len(parts) >= 2 {
		daily, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return fifteen, daily
}

// minPositive returns the minimum of two values, preferring positive values.
func minPositive(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	return min(a, b)
}

// parseRateLimitHeaders merges the general (X-RateLimit-*) and read-specific
// (X-ReadRateLimit-*) headers, keeping the more restrictive limit and the
// higher usage of each window.
func parseRateLimitHeaders(headers http.Header, now time.Time) RateLimitInfo {
	genLimit15, genLimitDay := parseHeaderPair(headers, "X-RateLimit-Limit")
	genUsage15, genUsageDay := parseHeaderPair(headers, "X-RateLimit-Usage")
	readLimit15, readLimitDay := parseHeaderPair(headers, "X-ReadRateLimit-Limit")
	readUsage15, readUsageDay := parseHeaderPair(headers, "X-ReadRateLimit-Usage")

	info := RateLimitInfo{
		Limit15Min: minPositive(genLimit15, readLimit15),
		LimitDaily: minPositive(genLimitDay, readLimitDay),
		Usage15Min: max(genUsage15, readUsage15),
		UsageDaily: max(genUsageDay, readUsageDay),
	}
	info.recompute(now)
	return info
}
