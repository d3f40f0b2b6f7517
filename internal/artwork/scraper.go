package artwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/metrics"
)

// DefaultPageBaseURL is the public Last.fm site.
const DefaultPageBaseURL = "https://www.last.fm"

const (
	maxPageBytes     = 2 << 20
	breakerThreshold = 5
	breakerCooldown  = time.Minute
)

var (
	backgroundImagePattern = regexp.MustCompile(`background-image: ?url\((.*?)\)`)
	avatarPattern          = regexp.MustCompile(`<img[^>]*class="[^"]*avatar[^"]*"[^>]*src="([^"]*)"`)
)

// PageScraper extracts the hero image from an artist's public Last.fm page.
// Consecutive fetch failures open a circuit breaker that short-circuits
// lookups until the cooldown elapses.
type PageScraper struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	headers    map[string]string
	breaker    *gobreaker.CircuitBreaker[string]
	logger     *zap.Logger
}

// ScraperOption configures a PageScraper.
type ScraperOption func(*PageScraper)

// WithBaseURL overrides the site root.
func WithBaseURL(u string) ScraperOption {
	return func(s *PageScraper) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client used for page fetches.
func WithHTTPClient(c *http.Client) ScraperOption {
	return func(s *PageScraper) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ScraperOption {
	return func(s *PageScraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithHeaders adds headers to every page request. A User-Agent entry
// overrides WithUserAgent.
func WithHeaders(h map[string]string) ScraperOption {
	return func(s *PageScraper) {
		s.headers = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ScraperOption {
	return func(s *PageScraper) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewPageScraper creates a PageScraper.
func NewPageScraper(opts ...ScraperOption) *PageScraper {
	s := &PageScraper{
		baseURL:    DefaultPageBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "lastfm-recommender/1.0",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "artwork-page",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("artwork circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s
}

// FindImage implements Finder.
func (s *PageScraper) FindImage(ctx context.Context, artist string) string {
	img, err := s.breaker.Execute(func() (string, error) {
		return s.fetch(ctx, artist)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ArtworkLookups.WithLabelValues("page", "open").Inc()
		s.logger.Debug("artwork lookup skipped, breaker open", zap.String("artist", artist))
		return ""
	case err != nil:
		metrics.ArtworkLookups.WithLabelValues("page", "error").Inc()
		s.logger.Warn("failed to fetch artist page", zap.String("artist", artist), zap.Error(err))
		return ""
	case img == "":
		metrics.ArtworkLookups.WithLabelValues("page", "miss").Inc()
		return ""
	}
	metrics.ArtworkLookups.WithLabelValues("page", "hit").Inc()
	return img
}

// fetch downloads the artist page. A missing page is not a failure.
func (s *PageScraper) fetch(ctx context.Context, artist string) (string, error) {
	pageURL := s.baseURL + "/music/" + url.QueryEscape(artist)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artist page returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading artist page: %w", err)
	}
	return extractImage(body), nil
}

// extractImage returns the first background-image URL or avatar src in page.
func extractImage(page []byte) string {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page)); err == nil {
		var found string
		doc.Find("[style*='background-image']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			style, _ := sel.Attr("style")
			if m := backgroundImagePattern.FindStringSubmatch(style); m != nil {
				found = m[1]
				return false
			}
			return true
		})
		if found == "" {
			found, _ = doc.Find("img.avatar").First().Attr("src")
		}
		if u := cleanURL(found); u != "" {
			return u
		}
	}

	// Inline <style> blocks and malformed markup.
	if m := backgroundImagePattern.FindSubmatch(page); m != nil {
		return cleanURL(string(m[1]))
	}
	if m := avatarPattern.FindSubmatch(page); m != nil {
		return cleanURL(string(m[1]))
	}
	return ""
}

func cleanURL(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
