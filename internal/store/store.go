// File: internal/store/store.go
// Description: Process-wide key-value persistence. The memory backend serves
// single-process and test use; the postgres backend serves deployments where
// the audit log and scheduled-task set must survive the host process.

package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
)

var (
	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("store is closed")
	// ErrNotInitialized is returned when Init has not been called yet.
	ErrNotInitialized = errors.New("store is not initialized")
)

// New selects and constructs the configured Store backend. The returned store
// still needs Init before use.
func New(cfg config.StoreConfig, logger *zap.Logger) (schemas.Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(logger), nil
	case "postgres":
		return NewPostgresFromURL(cfg.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// ensure both backends keep satisfying the contract.
var (
	_ schemas.Store = (*Memory)(nil)
	_ schemas.Store = (*Postgres)(nil)
)
