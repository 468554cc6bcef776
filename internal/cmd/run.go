package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joshdurbin/strava-stats/internal/cache"
	"github.com/joshdurbin/strava-stats/internal/config"
	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/present"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/resolver"
	"github.com/joshdurbin/strava-stats/internal/strava"
	"github.com/joshdurbin/strava-stats/internal/workers"
	"golang.org/x/sync/errgroup"
)

const prompt = "> "

// Run is the entry point of the interactive query loop
func Run(cfg *config.Settings) error {
	ctx, cancel := signalContext()
	defer cancel()

	stdin := bufio.NewReader(os.Stdin)

	sess, err := openSession(ctx, cfg, stdin)
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
		if err := workers.WarmCache(ctx, sess.cache); err != nil {
			log.Warn().Err(err).Msg("prefetch failed, activities will be fetched per query")
		}
	}

	err = repl(gCtx, stdin, os.Stdout, sess.resolver, sess, sess.loc)

	// Stop the background workers once the loop is done
	cancel()
	if werr := g.Wait(); werr != nil {
		log.Warn().Err(werr).Msg("worker error during shutdown")
	}
	return err
}

type queryResolver interface {
	Resolve(ctx context.Context, raw string) (resolver.Result, error)
}

// sessionStatus is what the "cache" command reports.
type sessionStatus interface {
	Status() cache.Status
	GetRateLimit() strava.RateLimitInfo
}

// repl answers one query per input line until "exit", end of input or ctx
// is done. A failed query is reported and the loop carries on.
func repl(ctx context.Context, in io.Reader, out io.Writer, res queryResolver, st sessionStatus, loc *time.Location) error {
	log := logging.Logger

	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)

	for {
		fmt.Fprint(out, prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit":
			return nil
		case "cache":
			fmt.Fprintln(out, present.CacheStatus(st.Status(), loc))
			fmt.Fprintln(out, present.RateLimit(st.GetRateLimit()))
			continue
		}

		start := time.Now()
		result, err := res.Resolve(ctx, line)
		if err != nil {
			var perr *query.ParseError
			if errors.As(err, &perr) {
				log.Warn().Err(err).Msg("query not understood")
				fmt.Fprintf(out, "Could not understand %q: %v\n", line, perr.Err)
			} else {
				log.Error().Err(err).Str("query", line).Msg("query failed")
				fmt.Fprintf(out, "Query failed: %v\n", err)
			}
			continue
		}

		log.Debug().
			Str("query", line).
			Dur("duration", time.Since(start).Round(time.Millisecond)).
			Bool("empty", result.Empty()).
			Msg("query answered")

		fmt.Fprintln(out, render(result, loc))
	}
}

func render(result resolver.Result, loc *time.Location) string {
	switch {
	case result.Empty():
		return present.NoResults
	case result.Summary != nil:
		return present.Summary(*result.Summary)
	default:
		return present.Activities(result.Activities, loc)
	}
}

// readLines delivers in line by line and closes the channel at end of input
// or once done is closed. A read already blocked on in finishes first.
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}
