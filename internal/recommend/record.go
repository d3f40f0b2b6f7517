// Package recommend selects and enriches artist recommendations for a
// Last.fm listener.
package recommend

import (
	"context"
	"fmt"

	"github.com/justestif/lastfm-recommender/internal/lastfm"
)

// Record is one recommended artist. Field names follow the JSON API.
type Record struct {
	Name          string   `json:"name"`
	Match         float32  `json:"match"`
	URL           string   `json:"url"`
	Image         *string  `json:"image"`
	Listeners     string   `json:"listeners"`
	PlayCount     string   `json:"playcount"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	IsKnown       bool     `json:"isKnown"`
	IsNewArtist   bool     `json:"isNewArtist"`
	UserPlayCount int64    `json:"userplaycount"`
	LastPlayed    *int64   `json:"lastplayed"`
}

// ShortfallError reports that fewer records than requested could be
// assembled. The records gathered so far are returned alongside it.
type ShortfallError struct {
	Got  int
	Want int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("assembled %d of %d recommendations", e.Got, e.Want)
}

// Upstream is the subset of the Last.fm client the engine uses.
type Upstream interface {
	TopArtists(ctx context.Context, user string, limit int) ([]lastfm.ArtistRef, error)
	SimilarArtists(ctx context.Context, artist string, limit int) ([]lastfm.ArtistRef, error)
	ArtistInfo(ctx context.Context, artist, user string) (*lastfm.ArtistInfo, error)
	LastPlayed(ctx context.Context, user, artist string) (int64, bool, error)
	TagTopArtists(ctx context.Context, tag string, limit int) ([]lastfm.ArtistRef, error)
	TopTags(ctx context.Context, limit int) ([]lastfm.Tag, error)
}

var _ Upstream = (*lastfm.Client)(nil)
