package artwork

import (
	"context"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justestif/lastfm-recommender/internal/metrics"
)

// SpotifyFinder looks up artist images through the Spotify Web API search.
type SpotifyFinder struct {
	api    *spotify.Client
	logger *zap.Logger
}

// NewSpotifyClient creates an app-authenticated Spotify client using the
// client credentials flow. No user authorization is involved.
func NewSpotifyClient(ctx context.Context, clientID, clientSecret string, opts ...spotify.ClientOption) *spotify.Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return spotify.New(cfg.Client(ctx), opts...)
}

// NewSpotifyFinder wraps an authenticated Spotify client.
func NewSpotifyFinder(api *spotify.Client, logger *zap.Logger) *SpotifyFinder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpotifyFinder{api: api, logger: logger}
}

// FindImage implements Finder.
func (f *SpotifyFinder) FindImage(ctx context.Context, artist string) string {
	res, err := f.api.Search(ctx, artist, spotify.SearchTypeArtist, spotify.Limit(5))
	if err != nil {
		metrics.ArtworkLookups.WithLabelValues("spotify", "error").Inc()
		f.logger.Warn("spotify artist search failed", zap.String("artist", artist), zap.Error(err))
		return ""
	}

	img := pickImage(res.Artists, artist)
	if img == "" {
		metrics.ArtworkLookups.WithLabelValues("spotify", "miss").Inc()
		return ""
	}
	metrics.ArtworkLookups.WithLabelValues("spotify", "hit").Inc()
	return img
}

// pickImage returns the largest image of the first result whose name matches
// artist case-insensitively. Spotify lists images widest first.
func pickImage(page *spotify.FullArtistPage, artist string) string {
	if page == nil {
		return ""
	}
	for _, a := range page.Artists {
		if !strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(artist)) {
			continue
		}
		for _, img := range a.Images {
			if img.URL != "" {
				return img.URL
			}
		}
		return ""
	}
	return ""
}
