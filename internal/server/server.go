package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joshdurbin/strava-stats/internal/cache"
	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/present"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/resolver"
	"github.com/joshdurbin/strava-stats/internal/stats"
	"github.com/joshdurbin/strava-stats/internal/strava"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resolver answers one free-text query. *resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (resolver.Result, error)
}

// CacheStatus reports what the activity cache holds. *cache.Cache satisfies it.
type CacheStatus interface {
	Status() cache.Status
}

// RateLimits reports the API usage seen on the last response.
// *strava.Client satisfies it.
type RateLimits interface {
	GetRateLimit() strava.RateLimitInfo
}

// Server wraps the MCP server with the session's resolver and cache
type Server struct {
	mcp        *mcp.Server
	resolver   Resolver
	cache      CacheStatus
	rateLimits RateLimits
	loc        *time.Location
	newID      func() string
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimits adds API usage to the cache status tool and resource.
func WithRateLimits(rl RateLimits) Option {
	return func(s *Server) {
		s.rateLimits = rl
	}
}

// MCPServer returns the underlying MCP server, for HTTP transports
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// New creates a new MCP server answering queries through res
func New(res Resolver, cacheStatus CacheStatus, loc *time.Location, opts ...Option) *Server {
	logging.Info("MCP server initializing", "name", "strava-stats", "version", "1.0.0")

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "strava-stats",
		Version: "1.0.0",
	}, nil)

	s := &Server{
		mcp:      mcpServer,
		resolver: res,
		cache:    cacheStatus,
		loc:      loc,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	s.registerResources()

	logging.Info("MCP server initialized", "tools_registered", 2, "resources_registered", 1)
	return s
}

// Run serves MCP over stdio until ctx is done
func (s *Server) Run(ctx context.Context) error {
	logging.Info("MCP server starting")
	defer logging.Info("MCP server stopped")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	logging.Debug("Registering tool", "name", "query_activities")
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_activities",
		Description: queryToolDescription(),
	}, s.queryActivities)

	logging.Debug("Registering tool", "name", "cache_status")
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "cache_status",
		Description: `Report what the session's activity cache holds.

Use when:
- User asks whether their whole history has been loaded
- Diagnosing why a query fetched from Strava

Returns:
- Number of cached activities and whether the full history is cached
- Time intervals known to be fully cached
- Cache hit and fetch counts
- Strava API usage against the 15-minute and daily rate limits`,
	}, s.cacheStatus)
}

const queryToolHelp = `Answer a free-text question about the athlete's Strava runs, rides, or walks.

Use when:
- User asks for their longest, fastest, or hilliest activities
- User asks how far or how long they went over a period
- User wants activities over a distance, or milestone counts

The query must name run, ride, or walk. Supported clauses:
- Ranking: longest, fastest, max elevation, optionally after a count ("3 fastest rides")
- Totals: "total distance", "total time", "total elevation", joined with "and"; a bare "total" counts activities
- Stats: "stats" gives count, distance, time, elevation and milestone counts
- Distance threshold, strictly longer than: "5k", "10km", "half marathon", "marathon", "century"
- Time window: "this month", "last month", "this year", "last year", or a month name of the current year
Without a time window the whole history is searched.

Returns:
- The answer as formatted text
- Matching activities, or a summary for totals and stats queries

Tips:
- Queries are resolved in the athlete's local time
- Repeated questions over the same period are answered from the session cache

Examples:
`

func queryToolDescription() string {
	var b strings.Builder
	b.WriteString(queryToolHelp)
	for _, e := range query.Examples {
		b.WriteString("- " + e + "\n")
	}
	return b.String()
}

// QueryActivitiesInput is the input of the query_activities tool
type QueryActivitiesInput struct {
	Query string `json:"query" jsonschema:"Free-text query naming run, ride, or walk, e.g. 'longest run last month' or 'total distance rides this year'."`
}

// QueryActivitiesOutput is the structured answer to a query
type QueryActivitiesOutput struct {
	RequestID  string            `json:"request_id"`
	Query      string            `json:"query"`
	Text       string            `json:"text"`
	Activities []ActivitySummary `json:"activities,omitempty"`
	Summary    *SummaryOutput    `json:"summary,omitempty"`
}

// ActivitySummary is one activity as shown to MCP clients
type ActivitySummary struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Date          string `json:"date"`
	Distance      string `json:"distance"`
	MovingTime    string `json:"moving_time"`
	ElapsedTime   string `json:"elapsed_time"`
	Pace          string `json:"pace,omitempty"`
	Speed         string `json:"speed,omitempty"`
	ElevationGain string `json:"elevation_gain"`
}

// SummaryOutput is an aggregate answer
type SummaryOutput struct {
	Count         *int             `json:"count,omitempty"`
	Distance      string           `json:"distance,omitempty"`
	MovingTime    string           `json:"moving_time,omitempty"`
	ElevationGain string           `json:"elevation_gain,omitempty"`
	Milestones    []MilestoneCount `json:"milestones,omitempty"`
}

// MilestoneCount is how many activities reached a milestone distance
type MilestoneCount struct {
	Milestone string `json:"milestone"`
	Count     int    `json:"count"`
}

// CacheStatusInput takes no parameters
type CacheStatusInput struct{}

// CacheStatusOutput describes the activity cache
type CacheStatusOutput struct {
	Activities int               `json:"activities"`
	Everything bool              `json:"everything"`
	Covered    []CoveredInterval `json:"covered,omitempty"`
	Hits       int               `json:"hits"`
	Fetches    int               `json:"fetches"`
	RateLimit  *RateLimitOutput  `json:"rate_limit,omitempty"`
}

// RateLimitOutput is the API usage reported on the last Strava response
type RateLimitOutput struct {
	Usage15Min  int    `json:"usage_15min"`
	Limit15Min  int    `json:"limit_15min"`
	UsageDaily  int    `json:"usage_daily"`
	LimitDaily  int    `json:"limit_daily"`
	RateLimited bool   `json:"rate_limited"`
	Wait        string `json:"wait,omitempty"`
}

// CoveredInterval is a fully cached period. An empty start reaches back to
// the first activity.
type CoveredInterval struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end"`
}

func (s *Server) queryActivities(ctx context.Context, req *mcp.CallToolRequest, input QueryActivitiesInput) (*mcp.CallToolResult, QueryActivitiesOutput, error) {
	requestID := s.newID()
	logging.Info("MCP tool call", "tool", "query_activities", "request_id", requestID, "query", input.Query)

	if strings.TrimSpace(input.Query) == "" {
		return nil, QueryActivitiesOutput{}, NewInvalidInputError("query is required")
	}

	result, err := s.resolver.Resolve(ctx, input.Query)
	if err != nil {
		var perr *query.ParseError
		if errors.As(err, &perr) {
			logging.Warn("query not understood", "request_id", requestID, "error", err)
		} else {
			logging.Error("query_activities failed", "request_id", requestID, "error", err)
		}
		return nil, QueryActivitiesOutput{}, resolveError(err)
	}

	output := QueryActivitiesOutput{
		RequestID: requestID,
		Query:     input.Query,
		Text:      s.render(result),
	}
	if result.Summary != nil {
		output.Summary = convertSummary(*result.Summary)
	} else {
		output.Activities = make([]ActivitySummary, 0, len(result.Activities))
		for _, a := range result.Activities {
			output.Activities = append(output.Activities, convertActivity(a, s.loc))
		}
	}

	logging.Info("MCP tool completed", "tool", "query_activities", "request_id", requestID, "activities", len(output.Activities), "empty", result.Empty())
	if logging.IsVerbose() {
		logging.Debug("MCP response", "tool", "query_activities", "output", logging.ToJSON(output))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: output.Text}},
	}, output, nil
}

func (s *Server) cacheStatus(ctx context.Context, req *mcp.CallToolRequest, input CacheStatusInput) (*mcp.CallToolResult, CacheStatusOutput, error) {
	logging.Info("MCP tool call", "tool", "cache_status")

	output := s.statusOutput()

	logging.Info("MCP tool completed", "tool", "cache_status", "activities", output.Activities, "everything", output.Everything)
	return nil, output, nil
}

// render formats a result the way the interactive loop prints it.
func (s *Server) render(result resolver.Result) string {
	switch {
	case result.Empty():
		return present.NoResults
	case result.Summary != nil:
		return present.Summary(*result.Summary)
	default:
		return present.Activities(result.Activities, s.loc)
	}
}

func convertActivity(a strava.Activity, loc *time.Location) ActivitySummary {
	summary := ActivitySummary{
		ID:            a.ID,
		Name:          a.Name,
		Type:          a.Type,
		Date:          a.LocalStart(loc).Format("2006-01-02 15:04:05"),
		Distance:      present.Distance(a.Distance),
		MovingTime:    present.Duration(int64(a.MovingTime)),
		ElapsedTime:   present.Duration(int64(a.ElapsedTime)),
		ElevationGain: present.Elevation(a.TotalElevationGain),
	}

	if a.ActivityType() == strava.TypeRun {
		summary.Pace = present.Pace(a.Distance, a.MovingTime)
	} else {
		summary.Speed = present.Speed(a.Distance, a.MovingTime)
	}
	return summary
}

func convertSummary(s stats.Summary) *SummaryOutput {
	out := &SummaryOutput{}
	if s.Has(query.MetricCount) {
		count := s.Count
		out.Count = &count
	}
	if s.Has(query.MetricDistance) {
		out.Distance = present.Distance(s.Distance)
	}
	if s.Has(query.MetricTime) {
		out.MovingTime = present.Duration(s.MovingTime)
	}
	if s.Has(query.MetricElevation) {
		out.ElevationGain = present.Elevation(s.Elevation)
	}
	for _, m := range s.Milestones {
		out.Milestones = append(out.Milestones, MilestoneCount{
			Milestone: present.MilestoneLabel(m.Distance),
			Count:     m.Count,
		})
	}
	return out
}

// statusOutput combines the cache snapshot with the API usage, when known.
func (s *Server) statusOutput() CacheStatusOutput {
	out := convertStatus(s.cache.Status(), s.loc)
	if s.rateLimits != nil {
		out.RateLimit = convertRateLimit(s.rateLimits.GetRateLimit())
	}
	return out
}

func convertRateLimit(info strava.RateLimitInfo) *RateLimitOutput {
	out := &RateLimitOutput{
		Usage15Min:  info.Usage15Min,
		Limit15Min:  info.Limit15Min,
		UsageDaily:  info.UsageDaily,
		LimitDaily:  info.LimitDaily,
		RateLimited: info.IsRateLimited,
	}
	if info.RecommendedWait > 0 {
		out.Wait = info.RecommendedWait.Round(time.Second).String()
	}
	return out
}

func convertStatus(st cache.Status, loc *time.Location) CacheStatusOutput {
	out := CacheStatusOutput{
		Activities: st.Activities,
		Everything: st.Everything,
		Hits:       st.Hits,
		Fetches:    st.Fetches,
	}
	for _, iv := range st.Covered {
		ci := CoveredInterval{End: iv.End.In(loc).Format(time.RFC3339)}
		if !iv.Start.IsZero() {
			ci.Start = iv.Start.In(loc).Format(time.RFC3339)
		}
		out.Covered = append(out.Covered, ci)
	}
	return out
}
