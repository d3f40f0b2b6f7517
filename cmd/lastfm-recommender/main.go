// Command lastfm-recommender serves artist recommendations for a Last.fm
// listener over a small JSON API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/artwork"
	"github.com/justestif/lastfm-recommender/internal/cache"
	"github.com/justestif/lastfm-recommender/internal/config"
	"github.com/justestif/lastfm-recommender/internal/exclude"
	"github.com/justestif/lastfm-recommender/internal/lastfm"
	"github.com/justestif/lastfm-recommender/internal/logging"
	"github.com/justestif/lastfm-recommender/internal/recommend"
	"github.com/justestif/lastfm-recommender/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	stores, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer stores.close()
	logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))

	results := cache.New(stores.cache, cfg.Storage.CacheTTL, cache.WithLogger(logger))
	exclusions := exclude.New(stores.exclusions,
		recommend.InvalidateOnExclude(results, cfg.LastFM.Username),
		exclude.WithLogger(logger),
	)

	lc, err := lastfmConfig(cfg.LastFM)
	if err != nil {
		return fmt.Errorf("configuring Last.fm client: %w", err)
	}
	client := lastfm.NewClient(lc, lastfm.WithLogger(logger))

	engine := recommend.NewEngine(client, cfg.LastFM.Username, results, exclusions,
		recommend.WithTargetCount(cfg.Engine.TargetCount),
		recommend.WithKnownRatio(cfg.Engine.KnownRatio),
		recommend.WithMaxTopArtists(cfg.Engine.MaxTopArtists),
		recommend.WithMaxSimilarArtists(cfg.Engine.MaxSimilarArtists),
		recommend.WithMaxPasses(cfg.Engine.MaxPasses),
		recommend.WithFallbackTags(cfg.Engine.FallbackTags),
		recommend.WithImages(imageFinder(ctx, cfg.Artwork, lc, logger)),
		recommend.WithLogger(logger),
	)

	server := web.NewServer(web.ServerConfig{
		Addr:            cfg.Server.Addr,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
	}, recommend.NewService(engine, results, exclusions), logger)

	return server.Run(ctx)
}

func lastfmConfig(c config.LastFMConfig) (*lastfm.Config, error) {
	lc := lastfm.DefaultConfig(c.APIKey)
	lc.BaseURL = c.BaseURL
	lc.RequestDelay = c.RequestDelay
	lc.MaxRetries = c.MaxRetries
	lc.Timeout = c.Timeout
	lc.MaxRedirects = c.MaxRedirects
	lc.InsecureSkipVerify = c.InsecureSkipVerify
	if c.UserAgent != "" {
		lc.Headers["User-Agent"] = c.UserAgent
	}
	if err := lc.Validate(); err != nil {
		return nil, err
	}
	return lc, nil
}

// imageFinder builds the artwork chain: Spotify first when credentials are
// set, then the artist page scraper. The scraper shares the upstream
// transport settings in lc.
func imageFinder(ctx context.Context, cfg config.ArtworkConfig, lc *lastfm.Config, logger *zap.Logger) artwork.Finder {
	var chain artwork.Chain
	if cfg.SpotifyEnabled() {
		api := artwork.NewSpotifyClient(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		chain = append(chain, artwork.NewSpotifyFinder(api, logger))
	}
	if cfg.Scrape {
		opts := []artwork.ScraperOption{
			artwork.WithLogger(logger),
			artwork.WithHTTPClient(lastfm.NewHTTPClient(lc)),
			artwork.WithHeaders(pageHeaders(lc.Headers)),
		}
		if cfg.PageBaseURL != "" {
			opts = append(opts, artwork.WithBaseURL(cfg.PageBaseURL))
		}
		chain = append(chain, artwork.NewPageScraper(opts...))
	}
	if len(chain) == 0 {
		return artwork.None
	}
	return chain
}

// pageHeaders returns the configured headers that apply to HTML page
// fetches. The JSON Accept header is API-only.
func pageHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if http.CanonicalHeaderKey(k) == "Accept" {
			continue
		}
		out[k] = v
	}
	return out
}
