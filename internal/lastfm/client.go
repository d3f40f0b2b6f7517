package lastfm

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/justestif/lastfm-recommender/internal/metrics"
)

const (
	baseURL   = "http://ws.audioscrobbler.com/2.0/"
	userAgent = "lastfm-recommender/1.0"
)

// Client is a Last.fm API client with request pacing and retries.
// Calls are serialized: at most one request is in flight at any time.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	headers    map[string]string

	limiter *rate.Limiter
	retry   RetryPolicy
	mu      sync.Mutex

	logger *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client built from the config.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new Last.fm API client from the provided configuration.
func NewClient(cfg *Config, opts ...ClientOption) *Client {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = baseURL
	}

	retry := DefaultRetryPolicy(cfg.RequestDelay)
	retry.MaxRetries = cfg.MaxRetries

	c := &Client{
		apiKey:     cfg.APIKey,
		httpClient: NewHTTPClient(cfg),
		baseURL:    endpoint,
		headers:    cfg.Headers,
		limiter:    newLimiter(cfg.RequestDelay),
		retry:      retry,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient builds an HTTP client honoring the timeout, redirect limit
// and TLS settings in cfg.
func NewHTTPClient(cfg *Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRedirects := cfg.MaxRedirects

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator toggle
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Request calls a Last.fm API method and decodes the JSON payload into out.
// Failures are returned as *UpstreamError after the retry budget is spent.
func (c *Client) Request(ctx context.Context, method string, params url.Values, out any) error {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("method", method)
	query.Set("api_key", c.apiKey)
	query.Set("format", "json")
	reqURL := c.baseURL + "?" + query.Encode()

	start := time.Now()
	err := c.retry.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			metrics.UpstreamRetries.WithLabelValues(method).Inc()
			c.logger.Debug("Retrying Last.fm request",
				zap.String("method", method),
				zap.Int("attempt", attempt))
		}
		return c.doSingleRequest(ctx, method, reqURL, out)
	})
	metrics.ObserveUpstream(method, outcome(err), time.Since(start))

	if err != nil {
		c.logger.Warn("Last.fm request failed",
			zap.String("method", method),
			zap.Error(err))
	}
	return err
}

// doSingleRequest performs one paced HTTP request and decodes the response.
func (c *Client) doSingleRequest(ctx context.Context, method, reqURL string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	// Re-arm once the call has finished so the next one starts a full
	// delay after this one ended, however long the response took.
	defer c.limiter.Reserve()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &UpstreamError{Kind: KindTransport, Method: method, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(method, fmt.Errorf("reading response body: %w", err))
	}

	// Non-2xx responses still carry a JSON error payload.
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &UpstreamError{
			Kind:    KindDecode,
			Method:  method,
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Err:     err,
		}
	}
	if apiErr.Error != 0 {
		return &UpstreamError{Kind: KindAPI, Method: method, Code: apiErr.Error, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{Kind: KindDecode, Method: method, Err: err}
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return string(upErr.Kind)
	}
	return "canceled"
}

// TopArtists returns the user's top artists, most played first.
func (c *Client) TopArtists(ctx context.Context, user string, limit int) ([]ArtistRef, error) {
	params := url.Values{
		"user":  {user},
		"limit": {strconv.Itoa(limit)},
	}

	var resp topArtistsResponse
	if err := c.Request(ctx, "user.gettopartists", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching top artists: %w", err)
	}
	return toRefs(resp.TopArtists.Artist), nil
}

// SimilarArtists returns artists the catalog declares similar to artist.
func (c *Client) SimilarArtists(ctx context.Context, artist string, limit int) ([]ArtistRef, error) {
	params := url.Values{
		"artist": {artist},
		"limit":  {strconv.Itoa(limit)},
	}

	var resp similarArtistsResponse
	if err := c.Request(ctx, "artist.getsimilar", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching similar artists: %w", err)
	}
	return toRefs(resp.SimilarArtists.Artist), nil
}

// ArtistInfo fetches artist metadata including the user's personal play count.
// Returns ErrNotFound if Last.fm has no record for the artist.
func (c *Client) ArtistInfo(ctx context.Context, artist, user string) (*ArtistInfo, error) {
	params := url.Values{
		"artist":   {artist},
		"username": {user},
	}

	var resp artistInfoResponse
	if err := c.Request(ctx, "artist.getinfo", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching artist info: %w", err)
	}
	if resp.Artist == nil {
		return nil, ErrNotFound
	}

	a := resp.Artist
	info := &ArtistInfo{
		Name:          a.Name,
		URL:           a.URL,
		Listeners:     a.Stats.Listeners.OrZero(),
		PlayCount:     a.Stats.PlayCount.OrZero(),
		UserPlayCount: a.Stats.UserPlayCount.Int64(),
		Summary:       a.Bio.Summary,
		Tags:          make([]string, 0, len(a.Tags.Tag)),
	}
	for _, t := range a.Tags.Tag {
		info.Tags = append(info.Tags, t.Name)
	}
	return info, nil
}

// LastPlayed returns the Unix time of the user's most recent scrobble of
// artist. ok is false when the user has no scrobbles for the artist.
func (c *Client) LastPlayed(ctx context.Context, user, artist string) (uts int64, ok bool, err error) {
	params := url.Values{
		"user":   {user},
		"artist": {artist},
		"limit":  {"1"},
	}

	var resp artistTracksResponse
	if err := c.Request(ctx, "user.getartisttracks", params, &resp); err != nil {
		return 0, false, fmt.Errorf("fetching artist tracks: %w", err)
	}

	// Tracks currently playing have no date; take the first dated one.
	for _, t := range resp.ArtistTracks.Track {
		if t.Date.UTS != "" {
			return t.Date.UTS.Int64(), true, nil
		}
	}
	return 0, false, nil
}

// TagTopArtists returns the top artists for a genre tag.
func (c *Client) TagTopArtists(ctx context.Context, tag string, limit int) ([]ArtistRef, error) {
	params := url.Values{
		"tag":   {tag},
		"limit": {strconv.Itoa(limit)},
	}

	var resp topArtistsResponse
	if err := c.Request(ctx, "tag.gettopartists", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching tag top artists: %w", err)
	}
	return toRefs(resp.TopArtists.Artist), nil
}

// TopTags returns the site-wide most used tags.
func (c *Client) TopTags(ctx context.Context, limit int) ([]Tag, error) {
	params := url.Values{
		"limit": {strconv.Itoa(limit)},
	}

	var resp topTagsResponse
	if err := c.Request(ctx, "chart.gettoptags", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching top tags: %w", err)
	}

	tags := make([]Tag, 0, len(resp.Tags.Tag))
	for _, t := range resp.Tags.Tag {
		tags = append(tags, Tag{Name: t.Name, URL: t.URL})
	}
	return tags, nil
}

func toRefs(entries []artistEntry) []ArtistRef {
	refs := make([]ArtistRef, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		refs = append(refs, e.ref())
	}
	return refs
}
