package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/justestif/lastfm-recommender/internal/config"
	"github.com/justestif/lastfm-recommender/internal/db"
	"github.com/justestif/lastfm-recommender/internal/store"
)

// Namespaces keep the cache and the exclusion list apart on shared
// backends, so purging one never touches the other.
const (
	cacheNamespace     = "cache"
	exclusionNamespace = "exclusions"
)

type storage struct {
	cache      store.Store
	exclusions store.Store
	closers    []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (*storage, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return &storage{cache: store.NewMemory(), exclusions: store.NewMemory()}, nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return &storage{
			cache:      store.NewRedis(client, cacheNamespace+":"),
			exclusions: store.NewRedis(client, exclusionNamespace+":"),
			closers:    []func(){func() { client.Close() }},
		}, nil

	case config.BackendBadger:
		bdb, err := store.OpenBadger(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		return &storage{
			cache:      store.NewBadger(bdb, cacheNamespace+":"),
			exclusions: store.NewBadger(bdb, exclusionNamespace+":"),
			closers:    []func(){func() { bdb.Close() }},
		}, nil

	case config.BackendPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		kv := database.KV()
		return &storage{
			cache:      store.NewPostgres(kv, cacheNamespace),
			exclusions: store.NewPostgres(kv, exclusionNamespace),
			closers:    []func(){database.Close},
		}, nil

	default:
		if filepath.Clean(cfg.CacheDir) == filepath.Clean(cfg.DataDir) {
			return nil, fmt.Errorf("cache dir and data dir must differ: %s", cfg.CacheDir)
		}
		cacheStore, err := store.NewFile(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("opening cache dir: %w", err)
		}
		dataStore, err := store.NewFile(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening data dir: %w", err)
		}
		return &storage{cache: cacheStore, exclusions: dataStore}, nil
	}
}
