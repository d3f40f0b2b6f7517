// Package exclude maintains the persisted list of artists a listener never
// wants recommended.
package exclude

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/store"
)

// Key is the storage key of the exclusion list.
const Key = "excludelist"

// ErrEmptyName is returned by Add when the name is blank after trimming.
var ErrEmptyName = errors.New("artist name is required")

// Set is a snapshot of the exclusion list for membership tests.
type Set map[string]struct{}

// Contains reports whether name is excluded.
func (s Set) Contains(name string) bool {
	_, ok := s[strings.TrimSpace(name)]
	return ok
}

// Store reads and appends to the exclusion list.
type Store struct {
	store      store.Store
	invalidate func(ctx context.Context) error
	logger     *zap.Logger

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithInvalidation sets the hook run after a name is added, used to drop
// cached results that may contain it.
func WithInvalidation(fn func(ctx context.Context) error) Option {
	return func(s *Store) {
		s.invalidate = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an exclusion Store backed by s.
func New(s store.Store, opts ...Option) *Store {
	st := &Store{
		store:  s,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// List returns the excluded names in insertion order. The first call on an
// empty backend persists an empty list.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Set returns the exclusion list as a Set.
func (s *Store) Set(ctx context.Context) (Set, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	set := make(Set, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

// Contains reports whether name is excluded.
func (s *Store) Contains(ctx context.Context, name string) (bool, error) {
	names, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, strings.TrimSpace(name)), nil
}

// Add appends name to the list. It reports whether the list changed; adding
// a name that is already present succeeds without writing.
func (s *Store) Add(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if slices.Contains(names, name) {
		return false, nil
	}

	if err := s.save(ctx, append(names, name)); err != nil {
		return false, err
	}
	s.logger.Info("artist excluded", zap.String("artist", name))

	if s.invalidate != nil {
		// Cached reads are still filtered against the list.
		if err := s.invalidate(ctx); err != nil {
			s.logger.Warn("cache invalidation after exclude failed",
				zap.String("artist", name), zap.Error(err))
		}
	}
	return true, nil
}

func (s *Store) load(ctx context.Context) ([]string, error) {
	raw, err := s.store.Get(ctx, Key)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.save(ctx, []string{}); err != nil {
			return nil, err
		}
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading exclusion list: %w", err)
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decoding exclusion list: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *Store) save(ctx context.Context, names []string) error {
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encoding exclusion list: %w", err)
	}
	if err := s.store.Put(ctx, Key, raw); err != nil {
		return &store.PersistenceError{Op: "exclude save", Key: Key, Err: err}
	}
	return nil
}
