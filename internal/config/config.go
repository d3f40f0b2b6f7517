// Package config loads the recommender's configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables (including a .env file in the working directory).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the variable that points at a YAML config file.
const ConfigPathEnvVar = "CONFIG_FILE"

// DefaultConfigPaths are searched when no explicit path is given.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Storage backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config is the complete application configuration.
type Config struct {
	LastFM  LastFMConfig  `koanf:"lastfm"`
	Engine  EngineConfig  `koanf:"engine"`
	Storage StorageConfig `koanf:"storage"`
	Artwork ArtworkConfig `koanf:"artwork"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// LastFMConfig holds the listener identity and upstream transport settings.
type LastFMConfig struct {
	APIKey             string        `koanf:"api_key" validate:"required"`
	Username           string        `koanf:"username" validate:"required"`
	BaseURL            string        `koanf:"base_url" validate:"required,url"`
	RequestDelay       time.Duration `koanf:"request_delay" validate:"gte=0"`
	MaxRetries         int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	Timeout            time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRedirects       int           `koanf:"max_redirects" validate:"gte=0"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	UserAgent          string        `koanf:"user_agent"`
}

// EngineConfig tunes the selection engine.
type EngineConfig struct {
	TargetCount       int     `koanf:"target_count" validate:"gt=0,lte=200"`
	KnownRatio        float64 `koanf:"known_ratio" validate:"gte=0,lte=1"`
	MaxTopArtists     int     `koanf:"max_top_artists" validate:"gt=0"`
	MaxSimilarArtists int     `koanf:"max_similar_artists" validate:"gt=0"`
	MaxPasses         int     `koanf:"max_passes" validate:"gt=0"`
	FallbackTags      int     `koanf:"fallback_tags" validate:"gte=0"`
}

// StorageConfig selects where cache entries and the exclusion list live.
type StorageConfig struct {
	Backend     string        `koanf:"backend" validate:"oneof=file memory redis badger postgres"`
	CacheTTL    time.Duration `koanf:"cache_ttl" validate:"gte=1s"`
	CacheDir    string        `koanf:"cache_dir" validate:"required_if=Backend file"`
	DataDir     string        `koanf:"data_dir" validate:"required_if=Backend file"`
	RedisURL    string        `koanf:"redis_url" validate:"required_if=Backend redis"`
	BadgerDir   string        `koanf:"badger_dir" validate:"required_if=Backend badger"`
	DatabaseURL string        `koanf:"database_url" validate:"required_if=Backend postgres"`
}

// ArtworkConfig controls best-effort image lookups.
type ArtworkConfig struct {
	Scrape              bool   `koanf:"scrape"`
	PageBaseURL         string `koanf:"page_base_url" validate:"omitempty,url"`
	SpotifyClientID     string `koanf:"spotify_client_id" validate:"required_with=SpotifyClientSecret"`
	SpotifyClientSecret string `koanf:"spotify_client_secret" validate:"required_with=SpotifyClientID"`
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (a ArtworkConfig) SpotifyEnabled() bool {
	return a.SpotifyClientID != "" && a.SpotifyClientSecret != ""
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	File  string `koanf:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LastFM: LastFMConfig{
			BaseURL:      "https://ws.audioscrobbler.com/2.0/",
			RequestDelay: 25 * time.Millisecond,
			MaxRetries:   2,
			Timeout:      10 * time.Second,
			MaxRedirects: 2,
			UserAgent:    "lastfm-recommender/1.0",
		},
		Engine: EngineConfig{
			TargetCount:       24,
			KnownRatio:        0.3,
			MaxTopArtists:     8,
			MaxSimilarArtists: 8,
			MaxPasses:         3,
			FallbackTags:      3,
		},
		Storage: StorageConfig{
			Backend:  BackendFile,
			CacheTTL: time.Hour,
			CacheDir: "cache",
			DataDir:  "data",
		},
		Artwork: ArtworkConfig{
			Scrape:      true,
			PageBaseURL: "https://www.last.fm",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration. An empty path searches CONFIG_FILE and then
// DefaultConfigPaths; a missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its field rules.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variables to config paths.
var envMappings = map[string]string{
	"lastfm_api_key":              "lastfm.api_key",
	"lastfm_username":             "lastfm.username",
	"lastfm_base_url":             "lastfm.base_url",
	"lastfm_request_delay":        "lastfm.request_delay",
	"lastfm_max_retries":          "lastfm.max_retries",
	"lastfm_timeout":              "lastfm.timeout",
	"lastfm_max_redirects":        "lastfm.max_redirects",
	"lastfm_insecure_skip_verify": "lastfm.insecure_skip_verify",
	"lastfm_user_agent":           "lastfm.user_agent",

	"recommendation_count": "engine.target_count",
	"known_artist_ratio":   "engine.known_ratio",
	"max_top_artists":      "engine.max_top_artists",
	"max_similar_artists":  "engine.max_similar_artists",
	"max_passes":           "engine.max_passes",
	"fallback_tags":        "engine.fallback_tags",

	"storage_backend": "storage.backend",
	"cache_ttl":       "storage.cache_ttl",
	"cache_dir":       "storage.cache_dir",
	"data_dir":        "storage.data_dir",
	"redis_url":       "storage.redis_url",
	"badger_dir":      "storage.badger_dir",
	"database_url":    "storage.database_url",

	"artwork_scrape":        "artwork.scrape",
	"artwork_page_base_url": "artwork.page_base_url",
	"spotify_client_id":     "artwork.spotify_client_id",
	"spotify_client_secret": "artwork.spotify_client_secret",

	"http_addr":        "server.addr",
	"request_timeout":  "server.request_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"rate_limit":       "server.rate_limit",

	"log_level": "logging.level",
	"log_file":  "logging.file",
}

// envTransformFunc maps an environment variable name to its config path.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
