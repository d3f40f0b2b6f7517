// Package lastfm provides a rate-limited Last.fm API client with retry and
// failure classification.
package lastfm

import (
	"errors"
	"time"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("missing Last.fm API key")

// Default client settings.
const (
	DefaultRequestDelay = 25 * time.Millisecond
	DefaultMaxRetries   = 2
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 2
)

// Config holds Last.fm client configuration.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint. Empty means the public endpoint.
	BaseURL string

	// RequestDelay is the minimum spacing between two upstream calls.
	RequestDelay time.Duration

	// MaxRetries is the number of extra attempts after a failed call.
	MaxRetries int

	Timeout      time.Duration
	MaxRedirects int

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Headers are added to every request.
	Headers map[string]string
}

// DefaultConfig returns a Config with default transport and pacing settings.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:       apiKey,
		BaseURL:      baseURL,
		RequestDelay: DefaultRequestDelay,
		MaxRetries:   DefaultMaxRetries,
		Timeout:      DefaultTimeout,
		MaxRedirects: DefaultMaxRedirects,
		Headers: map[string]string{
			"Accept": "application/json",
		},
	}
}

// Validate reports whether the configuration can be used to build a client.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	return nil
}
