// Package config defines service configuration structures and loading hooks.
package config

// Config contains process configuration for the capwatch daemon.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address for the query API, e.g. ":9320".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file holding cap events.
	DBPath string `koanf:"db_path"`

	// ClanName is the clan whose roster is polled. Required.
	ClanName string `koanf:"clan_name"`

	// RosterURL and ProfileURL point at the upstream endpoints. Overridable
	// for tests and mirrors.
	RosterURL  string `koanf:"roster_url"`
	ProfileURL string `koanf:"profile_url"`

	// ActivityLimit bounds the number of activities fetched per member.
	ActivityLimit int `koanf:"activity_limit"`

	// PollIntervalMinutes is the wall-clock interval between ingestion runs.
	PollIntervalMinutes int `koanf:"poll_interval_minutes"`

	// PaceSeconds is the fixed delay before each upstream request, keeping
	// the run under the upstream's ~20 requests/minute soft limit.
	PaceSeconds int `koanf:"pace_seconds"`

	// InitialBackoffSeconds and MaxBackoffSeconds bound the exponential
	// backoff applied on HTTP 429 responses.
	InitialBackoffSeconds int `koanf:"initial_backoff_seconds"`
	MaxBackoffSeconds     int `koanf:"max_backoff_seconds"`

	// MaxMemberFailures is the per-run ceiling of failed member fetches
	// before the run aborts.
	MaxMemberFailures int `koanf:"max_member_failures"`

	// ShutdownTimeoutSeconds bounds how long shutdown waits for an
	// in-flight ingestion run to observe cancellation.
	ShutdownTimeoutSeconds int `koanf:"shutdown_timeout_seconds"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9320",
		DBPath:                 "capdata.db",
		ClanName:               "",
		RosterURL:              "https://secure.runescape.com/m=clan-hiscores/members_lite.ws",
		ProfileURL:             "https://apps.runescape.com/runemetrics/profile/profile",
		ActivityLimit:          20,
		PollIntervalMinutes:    15,
		PaceSeconds:            3,
		InitialBackoffSeconds:  10,
		MaxBackoffSeconds:      100,
		MaxMemberFailures:      5,
		ShutdownTimeoutSeconds: 30,
	}
}
