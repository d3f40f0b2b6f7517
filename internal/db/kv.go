package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const kvSchema = `
	CREATE TABLE IF NOT EXISTS kv_entries (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (namespace, key)
	)
`

// KVRepository handles namespaced key-value rows.
type KVRepository struct {
	q Querier
}

// NewKVRepository creates a KVRepository on any Querier (pool, tx, or mock).
func NewKVRepository(q Querier) *KVRepository {
	return &KVRepository{q: q}
}

// Get retrieves a value by namespace and key.
func (r *KVRepository) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	query := `
		SELECT value
		FROM kv_entries
		WHERE namespace = $1 AND key = $2
	`
	var value []byte
	err := r.q.QueryRow(ctx, query, namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying kv entry: %w", err)
	}
	return value, nil
}

// Upsert creates or replaces a value.
func (r *KVRepository) Upsert(ctx context.Context, namespace, key string, value []byte) error {
	query := `
		INSERT INTO kv_entries (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`
	if _, err := r.q.Exec(ctx, query, namespace, key, value); err != nil {
		return fmt.Errorf("upserting kv entry: %w", err)
	}
	return nil
}

// Exists reports whether a key is present.
func (r *KVRepository) Exists(ctx context.Context, namespace, key string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM kv_entries WHERE namespace = $1 AND key = $2)`
	var exists bool
	if err := r.q.QueryRow(ctx, query, namespace, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking kv entry: %w", err)
	}
	return exists, nil
}

// Delete removes a key.
func (r *KVRepository) Delete(ctx context.Context, namespace, key string) error {
	query := `DELETE FROM kv_entries WHERE namespace = $1 AND key = $2`
	if _, err := r.q.Exec(ctx, query, namespace, key); err != nil {
		return fmt.Errorf("deleting kv entry: %w", err)
	}
	return nil
}

// DeleteNamespace removes every key in a namespace.
func (r *KVRepository) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	query := `DELETE FROM kv_entries WHERE namespace = $1`
	result, err := r.q.Exec(ctx, query, namespace)
	if err != nil {
		return 0, fmt.Errorf("deleting kv namespace: %w", err)
	}
	return result.RowsAffected(), nil
}
