package telesync

import (
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emontero/telesync/store"
)

// RetryPolicy controls how transient fetch failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// Config contains configuration options for the client.
type Config struct {
	// BaseURL is the remote API root, including any version prefix
	// (e.g. "https://iot.example.com/api/v1"). Required.
	BaseURL string

	// HTTPClient is the transport used for API calls.
	// Default: http.Client with a 15 second timeout.
	HTTPClient *http.Client

	// Credentials is the persistent store for the bearer token and the
	// last-known user profile.
	// Default: SQLite store at DatabasePath.
	Credentials store.CredentialStore

	// DatabasePath is the path for the default SQLite credential store.
	// Only used if Credentials is nil.
	// Default: "telesync.db".
	DatabasePath string

	// Logger receives structured logs for fetches, retries and session
	// transitions. Default: a discard logger (the SDK stays silent).
	Logger *logrus.Logger

	// StaleAfter is how long cached entities are considered fresh.
	// Default: 30 seconds.
	StaleAfter time.Duration

	// Retry is the policy for transient fetch failures.
	// Default: 3 attempts, 2 second delay.
	Retry RetryPolicy

	// OnlineThreshold is the maximum age of a device's last-seen
	// timestamp for it to classify as online.
	// Default: 10 minutes.
	OnlineThreshold time.Duration

	// QualityThreshold is the minimum quality score for a reading to be
	// considered good.
	// Default: 0.7.
	QualityThreshold float64

	// CacheRetention is how long unused cache entries are kept before
	// eviction. Negative disables eviction.
	// Default: 30 minutes.
	CacheRetention time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:     "telesync.db",
		StaleAfter:       30 * time.Second,
		Retry:            RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second},
		OnlineThreshold:  10 * time.Minute,
		QualityThreshold: 0.7,
		CacheRetention:   30 * time.Minute,
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		c.Logger = logger
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if c.Retry.Delay <= 0 {
		c.Retry.Delay = defaults.Retry.Delay
	}
	if c.OnlineThreshold <= 0 {
		c.OnlineThreshold = defaults.OnlineThreshold
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = defaults.QualityThreshold
	}
	if c.CacheRetention == 0 {
		c.CacheRetention = defaults.CacheRetention
	} else if c.CacheRetention < 0 {
		c.CacheRetention = 0
	}
}
