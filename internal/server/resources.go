package server

import (
	"context"
	"encoding/json"

	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const cacheStatusURI = "strava://cache/status"

// registerResources registers all MCP resources for the server
func (s *Server) registerResources() {
	logging.Debug("Registering MCP resources")

	s.mcp.AddResource(&mcp.Resource{
		URI:         cacheStatusURI,
		Name:        "Activity cache status",
		Description: "Cached activity count, whether the full history is cached, the fully cached time intervals and Strava API usage",
		MIMEType:    "application/json",
	}, s.readCacheStatus)

	logging.Debug("MCP resources registered", "count", 1)
}

// readCacheStatus returns the cache status as JSON
func (s *Server) readCacheStatus(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	logging.Info("MCP resource read", "resource", "cache_status")

	jsonData, err := json.MarshalIndent(s.statusOutput(), "", "  ")
	if err != nil {
		return nil, NewInternalErrorWithCause("failed to marshal cache status", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      cacheStatusURI,
				MIMEType: "application/json",
				Text:     string(jsonData),
			},
		},
	}, nil
}
