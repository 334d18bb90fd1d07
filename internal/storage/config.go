package storage

import (
	"fmt"
	"time"

	"github.com/kyleking/schemasync/internal/config"
	"github.com/kyleking/schemasync/internal/errors"
)

// NewAdapterFromConfig creates the adapter selected by cfg.Backend
func NewAdapterFromConfig(cfg *config.DatabaseConfig, opts Options) (Adapter, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		busyTimeout, err := time.ParseDuration(cfg.BusyTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid busy_timeout: %w", err)
		}

		return NewSQLiteAdapter(SQLiteConfig{
			Path:           cfg.Path,
			BusyTimeout:    busyTimeout,
			MaxConnections: cfg.MaxConnections,
		}, opts)
	case "memory", BackendDocstore:
		return NewMemoryAdapter(opts)
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported database backend: %s", cfg.Backend).
			WithSuggestion("Use 'sqlite' or 'memory'")
	}
}
