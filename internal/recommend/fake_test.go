package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justestif/lastfm-recommender/internal/cache"
	"github.com/justestif/lastfm-recommender/internal/exclude"
	"github.com/justestif/lastfm-recommender/internal/lastfm"
	"github.com/justestif/lastfm-recommender/internal/store"
)

const testUser = "rj"

// fakeUpstream is an in-memory Last.fm catalog with call counters.
type fakeUpstream struct {
	top        []lastfm.ArtistRef
	topErr     error
	similar    map[string][]lastfm.ArtistRef
	similarErr map[string]error
	info       map[string]*lastfm.ArtistInfo
	infoErr    map[string]error
	lastPlayed map[string]int64
	tagArtists []lastfm.ArtistRef
	topTags    []lastfm.Tag
	topTagsErr error

	topCalls        atomic.Int32
	similarCalls    atomic.Int32
	infoCalls       atomic.Int32
	lastPlayedCalls atomic.Int32
	tagCalls        atomic.Int32
	topTagsCalls    atomic.Int32

	mu            sync.Mutex
	similarLimits []int
	tagsQueried   []string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		similar:    make(map[string][]lastfm.ArtistRef),
		similarErr: make(map[string]error),
		info:       make(map[string]*lastfm.ArtistInfo),
		infoErr:    make(map[string]error),
		lastPlayed: make(map[string]int64),
	}
}

func (f *fakeUpstream) addArtist(name string, userPlays int64) lastfm.ArtistRef {
	f.info[name] = &lastfm.ArtistInfo{
		Name:          name,
		URL:           "https://www.last.fm/music/" + name,
		Listeners:     "1000",
		PlayCount:     "50000",
		UserPlayCount: userPlays,
		Summary:       "About " + name,
		Tags:          []string{"rock"},
	}
	return lastfm.ArtistRef{Name: name, URL: "https://www.last.fm/music/" + name}
}

func (f *fakeUpstream) TopArtists(_ context.Context, _ string, limit int) ([]lastfm.ArtistRef, error) {
	f.topCalls.Add(1)
	if f.topErr != nil {
		return nil, f.topErr
	}
	return f.top[:min(limit, len(f.top))], nil
}

func (f *fakeUpstream) SimilarArtists(_ context.Context, artist string, limit int) ([]lastfm.ArtistRef, error) {
	f.similarCalls.Add(1)
	f.mu.Lock()
	f.similarLimits = append(f.similarLimits, limit)
	f.mu.Unlock()

	if err := f.similarErr[artist]; err != nil {
		return nil, err
	}
	s := f.similar[artist]
	return s[:min(limit, len(s))], nil
}

func (f *fakeUpstream) ArtistInfo(_ context.Context, artist, _ string) (*lastfm.ArtistInfo, error) {
	f.infoCalls.Add(1)
	if err := f.infoErr[artist]; err != nil {
		return nil, err
	}
	info, ok := f.info[artist]
	if !ok {
		return nil, lastfm.ErrNotFound
	}
	cp := *info
	return &cp, nil
}

func (f *fakeUpstream) LastPlayed(_ context.Context, _, artist string) (int64, bool, error) {
	f.lastPlayedCalls.Add(1)
	uts, ok := f.lastPlayed[artist]
	return uts, ok, nil
}

func (f *fakeUpstream) TagTopArtists(_ context.Context, tag string, limit int) ([]lastfm.ArtistRef, error) {
	f.tagCalls.Add(1)
	f.mu.Lock()
	f.tagsQueried = append(f.tagsQueried, tag)
	f.mu.Unlock()
	return f.tagArtists[:min(limit, len(f.tagArtists))], nil
}

func (f *fakeUpstream) TopTags(context.Context, int) ([]lastfm.Tag, error) {
	f.topTagsCalls.Add(1)
	return f.topTags, f.topTagsErr
}

// calls returns the total number of upstream calls made.
func (f *fakeUpstream) calls() int32 {
	return f.topCalls.Load() + f.similarCalls.Load() + f.infoCalls.Load() +
		f.lastPlayedCalls.Load() + f.tagCalls.Load() + f.topTagsCalls.Load()
}

// newWorld builds eight seeds, each with two known and six new neighbors.
func newWorld() *fakeUpstream {
	up := newFakeUpstream()
	for i := 1; i <= 8; i++ {
		seed := up.addArtist(fmt.Sprintf("Seed%d", i), 100)
		up.top = append(up.top, seed)
		for j := 0; j < 8; j++ {
			var r lastfm.ArtistRef
			if j < 2 {
				r = up.addArtist(fmt.Sprintf("Known%d-%d", i, j), 5)
				up.lastPlayed[r.Name] = 1_700_000_000
			} else {
				r = up.addArtist(fmt.Sprintf("New%d-%d", i, j), 0)
			}
			up.similar[seed.Name] = append(up.similar[seed.Name], r)
		}
	}
	return up
}

type testEnv struct {
	svc        *Service
	engine     *Engine
	cache      *cache.Cache
	cacheStore *store.Memory
	exclStore  *store.Memory
	clock      *time.Time
}

func newTestEnv(t *testing.T, up Upstream, opts ...Option) *testEnv {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	env := &testEnv{
		cacheStore: store.NewMemory(),
		exclStore:  store.NewMemory(),
		clock:      &now,
	}
	env.cache = cache.New(env.cacheStore, time.Hour, cache.WithClock(func() time.Time { return *env.clock }))
	excl := exclude.New(env.exclStore, InvalidateOnExclude(env.cache, testUser))

	base := []Option{
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithFallbackTags(0),
	}
	env.engine = NewEngine(up, testUser, env.cache, excl, append(base, opts...)...)
	env.svc = NewService(env.engine, env.cache, excl)
	return env
}

func (env *testEnv) cached(t *testing.T) bool {
	t.Helper()
	ok, err := env.cacheStore.Exists(context.Background(), env.engine.CacheKey())
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func names(records []Record) map[string]bool {
	m := make(map[string]bool, len(records))
	for _, r := range records {
		m[r.Name] = true
	}
	return m
}

type readOnlyStore struct {
	*store.Memory
}

func (readOnlyStore) Put(context.Context, string, []byte) error {
	return errors.New("read-only file system")
}
