// Package config holds runtime settings and the optional YAML settings file
// that can supply them.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// Flag names shared by the CLI and the file merge.
const (
	FlagDB                   = "db"
	FlagMaxPages             = "max-pages"
	FlagPerPage              = "per-page"
	FlagPrefetch             = "prefetch"
	FlagTokenRefreshInterval = "token-refresh-interval"
	FlagTimezone             = "timezone"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	DBPath               string
	MaxPages             int
	PerPage              int
	Prefetch             bool
	TokenRefreshInterval time.Duration
	ForceReauth          bool
	Timezone             string

	// ClientID and ClientSecret seed credentials when the database has none.
	ClientID     string
	ClientSecret string

	Retry strava.RetryConfig
}

// Location resolves Timezone, defaulting to the local zone.
func (s *Settings) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Validate rejects settings no command can run with.
func (s *Settings) Validate() error {
	var errs []error
	if s.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if s.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("max pages must be positive, got %d", s.MaxPages))
	}
	if s.PerPage <= 0 || s.PerPage > 200 {
		errs = append(errs, fmt.Errorf("per page must be between 1 and 200, got %d", s.PerPage))
	}
	if s.TokenRefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("token refresh interval must be positive, got %s", s.TokenRefreshInterval))
	}
	if s.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", s.Retry.MaxRetries))
	}
	if s.Retry.MaxWait < s.Retry.MinWait {
		errs = append(errs, fmt.Errorf("retry max wait %s is below min wait %s", s.Retry.MaxWait, s.Retry.MinWait))
	}
	return errors.Join(errs...)
}

// RetryFile is the retry section of the settings file.
type RetryFile struct {
	MaxRetries *int   `yaml:"max_retries"`
	MinWait    string `yaml:"min_wait"`
	MaxWait    string `yaml:"max_wait"`
}

// File mirrors the YAML settings file. Unset keys leave settings alone.
type File struct {
	DBPath               string    `yaml:"db_path"`
	MaxPages             int       `yaml:"max_pages"`
	PerPage              int       `yaml:"per_page"`
	Prefetch             *bool     `yaml:"prefetch"`
	TokenRefreshInterval string    `yaml:"token_refresh_interval"`
	Timezone             string    `yaml:"timezone"`
	ClientID             string    `yaml:"client_id"`
	ClientSecret         string    `yaml:"client_secret"`
	Retry                RetryFile `yaml:"retry"`
}

// Load reads a settings file.
func Load(filename string) (*File, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	f := &File{}
	if err := yaml.Unmarshal(buf, f); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return f, nil
}

// Apply copies file values into s. A value is skipped when the matching
// command-line flag was set explicitly, as reported by changed.
func (f *File) Apply(s *Settings, changed func(flag string) bool) error {
	if f.DBPath != "" && !changed(FlagDB) {
		s.DBPath = f.DBPath
	}
	if f.MaxPages != 0 && !changed(FlagMaxPages) {
		s.MaxPages = f.MaxPages
	}
	if f.PerPage != 0 && !changed(FlagPerPage) {
		s.PerPage = f.PerPage
	}
	if f.Prefetch != nil && !changed(FlagPrefetch) {
		s.Prefetch = *f.Prefetch
	}
	if f.Timezone != "" && !changed(FlagTimezone) {
		s.Timezone = f.Timezone
	}
	if f.TokenRefreshInterval != "" && !changed(FlagTokenRefreshInterval) {
		d, err := time.ParseDuration(f.TokenRefreshInterval)
		if err != nil {
			return fmt.Errorf("token_refresh_interval: %w", err)
		}
		s.TokenRefreshInterval = d
	}

	if f.ClientID != "" {
		s.ClientID = f.ClientID
	}
	if f.ClientSecret != "" {
		s.ClientSecret = f.ClientSecret
	}

	if f.Retry.MaxRetries != nil {
		s.Retry.MaxRetries = *f.Retry.MaxRetries
	}
	if f.Retry.MinWait != "" {
		d, err := time.ParseDuration(f.Retry.MinWait)
		if err != nil {
			return fmt.Errorf("retry.min_wait: %w", err)
		}
		s.Retry.MinWait = d
	}
	if f.Retry.MaxWait != "" {
		d, err := time.ParseDuration(f.Retry.MaxWait)
		if err != nil {
			return fmt.Errorf("retry.max_wait: %w", err)
		}
		s.Retry.MaxWait = d
	}
	return nil
}
