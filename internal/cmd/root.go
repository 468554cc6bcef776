package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joshdurbin/strava-stats/internal/config"
	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/strava"
	"github.com/spf13/cobra"
)

var (
	verbosity  int
	configFile string
	settings   = config.Settings{Retry: strava.DefaultRetryConfig()}
)

var rootCmd = &cobra.Command{
	Use:   "strava-stats",
	Short: "Ask questions about your Strava runs, rides and walks",
	Long: `strava-stats answers free-text questions about your Strava activities,
one query per line:

` + exampleList(query.Examples) + `
Every query names run, ride or walk. Without a month, "this month", "last
month", "this year" or "last year" the whole history is searched.

Activities are fetched from Strava on demand and cached for the session, so
repeated questions over the same period do not hit the API again. Type
"cache" to see what has been fetched and "exit" to quit.

On first run, you will be prompted for your Strava API credentials.
Get these from https://www.strava.com/settings/api

Use --force-reauth to re-enter credentials and re-authenticate.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging based on verbosity before any command runs
		logging.Setup(logging.Level(verbosity))
		return loadSettings(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(&settings)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Logging verbosity
	flags.CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v for debug, -vv for trace with HTTP headers)")

	flags.StringVar(&configFile, "config", "", "optional YAML settings file")
	flags.StringVar(&settings.DBPath, config.FlagDB, "strava_stats.db", "path to SQLite credential database")
	flags.IntVar(&settings.MaxPages, config.FlagMaxPages, 500, "maximum activity pages fetched per request")
	flags.IntVar(&settings.PerPage, config.FlagPerPage, 200, "activities per page (at most 200)")
	flags.BoolVar(&settings.Prefetch, config.FlagPrefetch, false, "fetch the full activity history at start-up")
	flags.DurationVar(&settings.TokenRefreshInterval, config.FlagTokenRefreshInterval, 30*time.Minute, "interval between token refresh checks")
	flags.StringVar(&settings.Timezone, config.FlagTimezone, "", "IANA time zone queries are resolved in (default local)")

	// Force re-authentication
	flags.BoolVar(&settings.ForceReauth, "force-reauth", false, "force OAuth re-authentication, clearing existing tokens")

	rootCmd.AddCommand(serveCmd)
}

// loadSettings merges the settings file under explicitly set flags and
// validates the result.
func loadSettings(cmd *cobra.Command) error {
	if configFile != "" {
		f, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := f.Apply(&settings, cmd.Flags().Changed); err != nil {
			return fmt.Errorf("config file %s: %w", configFile, err)
		}
		logging.Logger.Debug().Str("path", configFile).Msg("settings file applied")
	}
	return settings.Validate()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func exampleList(examples []string) string {
	var b strings.Builder
	for _, e := range examples {
		b.WriteString("  " + e + "\n")
	}
	return b.String()
}
