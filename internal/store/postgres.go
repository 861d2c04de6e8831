// File: internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts the pgxpool.Pool so the backend can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is a Store backed by a single kv table. Values are stored as raw
// bytes; every value the pipeline writes is JSON.
type Postgres struct {
	pool   DBPool
	logger *zap.Logger

	mu          sync.RWMutex
	initialized bool
	closed      bool
}

// NewPostgres wraps an existing pool. The caller keeps ownership of pool
// configuration; Close releases it.
func NewPostgres(pool DBPool, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{
		pool:   pool,
		logger: logger.Named("store.postgres"),
	}
}

// NewPostgresFromURL connects a new pool from a connection string. The
// connection is verified lazily by Init.
func NewPostgresFromURL(url string, logger *zap.Logger) (*Postgres, error) {
	if url == "" {
		return nil, errors.New("postgres connection URL is empty")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return NewPostgres(pool, logger), nil
}

// Init verifies connectivity and creates the kv table if missing.
func (p *Postgres) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create kv_store table: %w", err)
	}

	p.initialized = true
	p.logger.Info("Postgres store initialized")
	return nil
}

// Close releases the underlying pool.
func (p *Postgres) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.pool.Close()
	return nil
}

func (p *Postgres) ready() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if !p.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Get implements schemas.Store.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := p.ready(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1;`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements schemas.Store using an upsert so writers never race on
// insert-vs-update.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if err := p.ready(); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at;
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// Delete implements schemas.Store.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if err := p.ready(); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1;`, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Keys implements schemas.Store.
func (p *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `
		SELECT key FROM kv_store
		WHERE key >= $1 AND key < $1 || chr(255)
		ORDER BY key;
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
