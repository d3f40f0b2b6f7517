package recommend

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/lastfm"
)

const (
	sourceSimilar = "similar"
	sourceTag     = "tag"

	topTagsLimit = 50
)

// builtinTags seeds fallback diversification when chart.getTopTags fails.
var builtinTags = []string{
	"rock", "electronic", "indie", "jazz", "hip-hop", "folk",
	"metal", "ambient", "soul", "punk", "experimental", "pop",
}

// candidate is one artist reference waiting to be enriched.
type candidate struct {
	ref         lastfm.ArtistRef
	assumeKnown bool
	source      string
}

// similarityCandidates walks the similarity neighborhood of each seed.
// Pass p requests p×maxSimilar neighbors so later passes reach beyond the
// artists already seen. A failed neighborhood fetch is logged and skipped.
func (e *Engine) similarityCandidates(ctx context.Context, seeds []lastfm.ArtistRef, top map[string]bool, log *zap.Logger) iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		for pass := 1; pass <= e.maxPasses; pass++ {
			for _, seed := range seeds {
				if ctx.Err() != nil {
					return
				}
				similar, err := e.upstream.SimilarArtists(ctx, seed.Name, e.maxSimilar*pass)
				if err != nil {
					log.Warn("skipping seed, similar artists unavailable",
						zap.String("seed", seed.Name), zap.Int("pass", pass), zap.Error(err))
					continue
				}
				for _, ref := range similar {
					if !yield(candidate{ref: ref, assumeKnown: top[ref.Name], source: sourceSimilar}) {
						return
					}
				}
			}
		}
	}
}

// tagCandidates yields top artists of randomly chosen genre tags, drawing
// listeners away from the similarity graph.
func (e *Engine) tagCandidates(ctx context.Context, log *zap.Logger) iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		for _, tag := range e.pickTags(ctx, log) {
			if ctx.Err() != nil {
				return
			}
			artists, err := e.upstream.TagTopArtists(ctx, tag, e.maxSimilar)
			if err != nil {
				log.Warn("skipping tag, top artists unavailable", zap.String("tag", tag), zap.Error(err))
				continue
			}
			for _, ref := range artists {
				if !yield(candidate{ref: ref, source: sourceTag}) {
					return
				}
			}
		}
	}
}

// pickTags draws fallbackTags distinct tags at random.
func (e *Engine) pickTags(ctx context.Context, log *zap.Logger) []string {
	var pool []string
	tags, err := e.upstream.TopTags(ctx, topTagsLimit)
	if err != nil {
		log.Warn("top tags unavailable, using built-in list", zap.Error(err))
	}
	for _, t := range tags {
		if t.Name != "" {
			pool = append(pool, t.Name)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, builtinTags...)
	}

	e.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:min(e.fallbackTags, len(pool))]
}
