package recommend

import (
	"context"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/artwork"
	"github.com/justestif/lastfm-recommender/internal/lastfm"
)

const (
	maxTags = 5

	defaultKnownMatch float32 = 1.0
	defaultNewMatch   float32 = 0.5
)

// Enricher turns a bare artist reference into a full Record.
type Enricher struct {
	upstream Upstream
	user     string
	images   artwork.Finder
	policy   *bluemonday.Policy
	logger   *zap.Logger
}

// NewEnricher creates an Enricher for user. A nil images finder disables
// artwork lookups.
func NewEnricher(upstream Upstream, user string, images artwork.Finder, logger *zap.Logger) *Enricher {
	if images == nil {
		images = artwork.None
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		upstream: upstream,
		user:     user,
		images:   images,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}
}

// Enrich fetches metadata for ref. It returns (nil, nil) when the catalog has
// no record of the artist.
//
// A candidate is known when assumeKnown is set or the listener has a
// nonzero personal play count for it.
func (e *Enricher) Enrich(ctx context.Context, ref lastfm.ArtistRef, assumeKnown bool) (*Record, error) {
	rec, err := e.describe(ctx, ref, assumeKnown)
	if err != nil || rec == nil {
		return nil, err
	}
	e.decorate(ctx, rec)
	return rec, nil
}

// describe performs the mandatory artist.getInfo call.
func (e *Enricher) describe(ctx context.Context, ref lastfm.ArtistRef, assumeKnown bool) (*Record, error) {
	info, err := e.upstream.ArtistInfo(ctx, ref.Name, e.user)
	if lastfm.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	isKnown := assumeKnown || info.UserPlayCount > 0

	rec := &Record{
		Name:          ref.Name,
		URL:           ref.URL,
		Listeners:     info.Listeners,
		PlayCount:     info.PlayCount,
		Summary:       e.plainText(info.Summary),
		Tags:          firstN(info.Tags, maxTags),
		IsKnown:       isKnown,
		IsNewArtist:   !isKnown,
		UserPlayCount: max(info.UserPlayCount, 0),
	}
	if rec.URL == "" {
		rec.URL = info.URL
	}

	switch {
	case ref.Match != nil:
		rec.Match = *ref.Match
	case isKnown:
		rec.Match = defaultKnownMatch
	default:
		rec.Match = defaultNewMatch
	}
	return rec, nil
}

// decorate adds the best-effort fields. Failures leave them absent.
func (e *Enricher) decorate(ctx context.Context, rec *Record) {
	if rec.IsKnown {
		uts, ok, err := e.upstream.LastPlayed(ctx, e.user, rec.Name)
		switch {
		case err != nil:
			e.logger.Debug("last played lookup failed", zap.String("artist", rec.Name), zap.Error(err))
		case ok:
			rec.LastPlayed = &uts
		}
	}

	if img := e.images.FindImage(ctx, rec.Name); img != "" {
		rec.Image = &img
	}
}

// plainText strips markup from an upstream bio.
func (e *Enricher) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(e.policy.Sanitize(s)))
}

func firstN(s []string, n int) []string {
	out := make([]string, 0, min(len(s), n))
	for _, v := range s {
		if len(out) == n {
			break
		}
		out = append(out, v)
	}
	return out
}
