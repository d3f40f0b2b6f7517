package recommend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/artwork"
	"github.com/justestif/lastfm-recommender/internal/cache"
	"github.com/justestif/lastfm-recommender/internal/exclude"
	"github.com/justestif/lastfm-recommender/internal/lastfm"
	"github.com/justestif/lastfm-recommender/internal/metrics"
)

// Defaults for the selection engine.
const (
	DefaultTargetCount       = 24
	DefaultKnownRatio        = 0.3
	DefaultMaxTopArtists     = 8
	DefaultMaxSimilarArtists = 8
	DefaultMaxPasses         = 3
	DefaultFallbackTags      = 3
)

// CacheOp is the cache operation name for recommendation sets.
const CacheOp = "recommendations"

// Request selects the pass mode.
type Request struct {
	// Replacement bypasses the cache and quotas and returns at most one
	// record.
	Replacement bool
	// Skip lists names the caller is already showing. Only used in
	// replacement mode.
	Skip []string
}

// Engine assembles recommendation sets.
type Engine struct {
	upstream   Upstream
	enricher   *Enricher
	cache      *cache.Cache
	exclusions *exclude.Store
	user       string
	cacheKey   string

	targetCount  int
	knownRatio   float64
	maxTopArtist int
	maxSimilar   int
	maxPasses    int
	fallbackTags int

	randMu sync.Mutex
	rnd    *rand.Rand

	images artwork.Finder
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTargetCount sets the size of a full recommendation set.
func WithTargetCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.targetCount = n
		}
	}
}

// WithKnownRatio sets the share of known artists, in [0,1].
func WithKnownRatio(r float64) Option {
	return func(e *Engine) {
		if r >= 0 && r <= 1 {
			e.knownRatio = r
		}
	}
}

// WithMaxTopArtists bounds how many top artists seed the expansion.
func WithMaxTopArtists(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTopArtist = n
		}
	}
}

// WithMaxSimilarArtists sets the neighborhood size fetched per seed on the
// first pass.
func WithMaxSimilarArtists(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSimilar = n
		}
	}
}

// WithMaxPasses bounds the outer expansion passes.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// WithFallbackTags sets how many random tags fallback diversification uses.
// Zero disables it.
func WithFallbackTags(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.fallbackTags = n
		}
	}
}

// WithRand sets the random source used for shuffling and tag sampling.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rnd = r
		}
	}
}

// WithImages sets the artwork finder.
func WithImages(f artwork.Finder) Option {
	return func(e *Engine) {
		if f != nil {
			e.images = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine recommending for user.
func NewEngine(upstream Upstream, user string, c *cache.Cache, exclusions *exclude.Store, opts ...Option) *Engine {
	e := &Engine{
		upstream:     upstream,
		cache:        c,
		exclusions:   exclusions,
		user:         user,
		cacheKey:     cache.Key(CacheOp, user),
		targetCount:  DefaultTargetCount,
		knownRatio:   DefaultKnownRatio,
		maxTopArtist: DefaultMaxTopArtists,
		maxSimilar:   DefaultMaxSimilarArtists,
		maxPasses:    DefaultMaxPasses,
		fallbackTags: DefaultFallbackTags,
		rnd:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		images:       artwork.None,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.enricher = NewEnricher(upstream, user, e.images, e.logger)
	return e
}

// CacheKey returns the cache key of this engine's recommendation set.
func (e *Engine) CacheKey() string {
	return e.cacheKey
}

// TargetCount returns the configured set size.
func (e *Engine) TargetCount() int {
	return e.targetCount
}

// Select runs one selection pass.
//
// A full pass returns exactly TargetCount records when enough candidates
// exist. Otherwise it returns what it gathered together with a
// *ShortfallError, and nothing is cached. A failure to fetch the listener's
// top artists aborts the pass.
func (e *Engine) Select(ctx context.Context, req Request) ([]Record, error) {
	mode := "full"
	if req.Replacement {
		mode = "replacement"
	}
	log := e.logger.With(zap.String("run_id", uuid.NewString()), zap.String("mode", mode))
	start := time.Now()

	var (
		records []Record
		outcome string
		err     error
	)
	if req.Replacement {
		records, outcome, err = e.replace(ctx, req.Skip, log)
	} else {
		records, outcome, err = e.selectFull(ctx, log)
	}
	if outcome == "hit" {
		mode = "cached"
	}
	metrics.ObservePass(mode, outcome, time.Since(start))

	log.Debug("selection pass finished",
		zap.String("outcome", outcome),
		zap.Int("count", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return records, err
}

func (e *Engine) selectFull(ctx context.Context, log *zap.Logger) ([]Record, string, error) {
	excluded, err := e.exclusions.Set(ctx)
	if err != nil {
		return nil, "error", fmt.Errorf("loading exclusion list: %w", err)
	}

	if cached := e.fromCache(ctx, excluded, log); cached != nil {
		return cached, "hit", nil
	}

	seeds, top, err := e.topArtists(ctx)
	if err != nil {
		return nil, "error", err
	}

	q := newQuota(e.targetCount, e.knownRatio)
	processed := make(map[string]bool)

	e.fill(ctx, q, processed, excluded, e.similarityCandidates(ctx, seeds, top, log), q.satisfied, log)
	if !q.newFilled() && e.fallbackTags > 0 && ctx.Err() == nil {
		log.Info("similarity expansion left new bucket short, sampling tags",
			zap.Int("new", len(q.fresh)), zap.Int("want_new", q.wantNew))
		e.fill(ctx, q, processed, excluded, e.tagCandidates(ctx, log), func() bool {
			return q.satisfied() || q.newFilled()
		}, log)
	}
	if err := ctx.Err(); err != nil {
		return nil, "error", err
	}

	records := q.records()
	e.shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	if len(records) > e.targetCount {
		records = records[:e.targetCount]
	}

	log.Info("recommendation counts",
		zap.Int("known", len(q.known)),
		zap.Int("new", len(q.fresh)),
		zap.Int("total", len(records)),
		zap.Int("target_known", q.wantKnown),
		zap.Int("target_new", q.wantNew))

	if len(records) < e.targetCount {
		log.Warn("not enough recommendations, result not cached",
			zap.Int("count", len(records)), zap.Int("expected", e.targetCount))
		return records, "short", &ShortfallError{Got: len(records), Want: e.targetCount}
	}

	if err := e.cache.Put(ctx, e.cacheKey, records); err != nil {
		return nil, "error", err
	}
	return records, "ok", nil
}

// fill enriches candidates into q until done reports true or the candidates
// run out. done is evaluated once before the first candidate and once after
// each one.
func (e *Engine) fill(ctx context.Context, q *quota, processed map[string]bool, excluded exclude.Set, candidates iter.Seq[candidate], done func() bool, log *zap.Logger) {
	if done() {
		return
	}
	for c := range candidates {
		e.consider(ctx, q, processed, excluded, c, log)
		if done() || ctx.Err() != nil {
			return
		}
	}
}

// consider enriches one candidate and routes it into its bucket.
func (e *Engine) consider(ctx context.Context, q *quota, processed map[string]bool, excluded exclude.Set, c candidate, log *zap.Logger) {
	name := c.ref.Name
	if processed[name] || excluded.Contains(name) {
		return
	}
	processed[name] = true

	rec, err := e.enricher.describe(ctx, c.ref, c.assumeKnown)
	if err != nil {
		metrics.CandidatesEnriched.WithLabelValues(c.source, "failed").Inc()
		log.Warn("error processing candidate", zap.String("artist", name), zap.Error(err))
		return
	}
	if rec == nil || !q.room(rec.IsKnown) {
		metrics.CandidatesEnriched.WithLabelValues(c.source, "skipped").Inc()
		return
	}

	e.enricher.decorate(ctx, rec)
	q.add(*rec)

	result := "new"
	if rec.IsKnown {
		result = "known"
	}
	metrics.CandidatesEnriched.WithLabelValues(c.source, result).Inc()
}

// replace returns the first valid candidate from the similarity neighborhood.
func (e *Engine) replace(ctx context.Context, skip []string, log *zap.Logger) ([]Record, string, error) {
	excluded, err := e.exclusions.Set(ctx)
	if err != nil {
		return nil, "error", fmt.Errorf("loading exclusion list: %w", err)
	}

	seeds, top, err := e.topArtists(ctx)
	if err != nil {
		return nil, "error", err
	}

	processed := make(map[string]bool, len(skip))
	for _, name := range skip {
		if name = strings.TrimSpace(name); name != "" {
			processed[name] = true
		}
	}

	for c := range e.similarityCandidates(ctx, seeds, top, log) {
		name := c.ref.Name
		if processed[name] || excluded.Contains(name) {
			continue
		}
		processed[name] = true

		rec, err := e.enricher.Enrich(ctx, c.ref, c.assumeKnown)
		if err != nil {
			metrics.CandidatesEnriched.WithLabelValues(c.source, "failed").Inc()
			log.Warn("error processing replacement candidate", zap.String("artist", name), zap.Error(err))
			continue
		}
		if rec == nil {
			metrics.CandidatesEnriched.WithLabelValues(c.source, "skipped").Inc()
			continue
		}
		return []Record{*rec}, "ok", nil
	}

	if err := ctx.Err(); err != nil {
		return nil, "error", err
	}
	log.Info("similarity neighborhood exhausted, no replacement found")
	return []Record{}, "short", nil
}

// fromCache returns the cached set minus exclusions, or nil when the cache
// cannot serve a full set. Read failures are logged and treated as a miss.
func (e *Engine) fromCache(ctx context.Context, excluded exclude.Set, log *zap.Logger) []Record {
	entry, err := e.cache.Get(ctx, e.cacheKey)
	if err != nil {
		log.Warn("cache read failed, recomputing", zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}

	var cached []Record
	if err := entry.Decode(&cached); err != nil {
		log.Warn("cached recommendations unreadable, recomputing", zap.Error(err))
		return nil
	}

	kept := cached[:0]
	for _, r := range cached {
		if !excluded.Contains(r.Name) {
			kept = append(kept, r)
		}
	}
	if len(kept) < e.targetCount {
		log.Debug("cached set too small after exclusions",
			zap.Int("cached", len(cached)), zap.Int("kept", len(kept)))
		return nil
	}
	return kept[:e.targetCount]
}

// topArtists fetches the seeds and the set of their names.
func (e *Engine) topArtists(ctx context.Context) ([]lastfm.ArtistRef, map[string]bool, error) {
	seeds, err := e.upstream.TopArtists(ctx, e.user, e.maxTopArtist)
	if err != nil {
		return nil, nil, err
	}
	if len(seeds) > e.maxTopArtist {
		seeds = seeds[:e.maxTopArtist]
	}

	top := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		top[s.Name] = true
	}
	return seeds, top, nil
}

func (e *Engine) shuffle(n int, swap func(i, j int)) {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	e.rnd.Shuffle(n, swap)
}

// IsShortfall reports whether err is a *ShortfallError.
func IsShortfall(err error) bool {
	var sf *ShortfallError
	return errors.As(err, &sf)
}
