package store

import (
	"context"
	"errors"

	"github.com/justestif/lastfm-recommender/internal/db"
)

// Postgres stores values in the kv_entries table under one namespace.
type Postgres struct {
	repo      *db.KVRepository
	namespace string
}

// NewPostgres creates a Postgres store for namespace.
func NewPostgres(repo *db.KVRepository, namespace string) *Postgres {
	return &Postgres{repo: repo, namespace: namespace}
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := p.repo.Get(ctx, p.namespace, key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	return p.repo.Upsert(ctx, p.namespace, key, value)
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	return p.repo.Exists(ctx, p.namespace, key)
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	return p.repo.Delete(ctx, p.namespace, key)
}

func (p *Postgres) Purge(ctx context.Context) error {
	_, err := p.repo.DeleteNamespace(ctx, p.namespace)
	return err
}

// Ensure every backend implements Store.
var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
	_ Store = (*Redis)(nil)
	_ Store = (*Badger)(nil)
	_ Store = (*Postgres)(nil)
)
