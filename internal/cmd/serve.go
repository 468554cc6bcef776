package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joshdurbin/strava-stats/internal/config"
	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/server"
	"github.com/joshdurbin/strava-stats/internal/workers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var mcpPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer activity queries over the Model Context Protocol",
	Long: `serve exposes the query engine to AI assistants as MCP tools:

  query_activities  answer a free-text query such as "longest run last month"
  cache_status      report what the session cache holds

With --port 0 (the default) the server speaks MCP over stdio; otherwise it
serves HTTP/SSE on the given port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Serve(&settings, mcpPort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "MCP server port (0 for stdio mode)")
}

// Serve runs the MCP server until interrupted
func Serve(cfg *config.Settings, port int) error {
	ctx, cancel := signalContext()
	defer cancel()

	sess, err := openSession(ctx, cfg, bufio.NewReader(os.Stdin))
	if err != nil {
		return err
	}
	defer sess.Close()

	log := logging.Logger

	g, gCtx := errgroup.WithContext(ctx)

	tokenRefresher := workers.NewTokenRefresher(sess.storage, cfg.TokenRefreshInterval)
	g.Go(func() error {
		tokenRefresher.Run(gCtx)
		return nil
	})

	if cfg.Prefetch {
		g.Go(func() error {
			if err := workers.WarmCache(gCtx, sess.cache); err != nil {
				log.Warn().Err(err).Msg("prefetch failed, activities will be fetched per query")
			}
			return nil
		})
	}

	srv := server.New(sess.resolver, sess.cache, sess.loc, server.WithRateLimits(sess.client))

	var serverErr error
	if port > 0 {
		serverErr = runHTTPServer(gCtx, srv.MCPServer(), port)
	} else {
		log.Info().Msg("MCP server running via stdio")
		serverErr = srv.Run(gCtx)
	}

	cancel()
	log.Info().Msg("waiting for workers to shut down")
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("worker error during shutdown")
	} else {
		log.Info().Msg("all workers shut down gracefully")
	}

	return serverErr
}

// runHTTPServer runs the MCP server over HTTP/SSE
func runHTTPServer(ctx context.Context, mcpServer *mcp.Server, port int) error {
	log := logging.Logger

	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", addr).
			Str("endpoint", fmt.Sprintf("http://localhost%s", addr)).
			Msg("MCP server running via HTTP/SSE")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down HTTP server")
		return httpServer.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
