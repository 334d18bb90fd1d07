package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kyleking/schemasync/internal/logging"
)

// NewTestSQLite creates a set-up SQLite adapter in a temporary directory.
// Returns the adapter and a cleanup function that should be deferred.
func NewTestSQLite(t *testing.T, opts Options) (*SQLiteAdapter, func()) {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	adapter, err := NewSQLiteAdapter(SQLiteConfig{
		Path:           filepath.Join(t.TempDir(), "test.db"),
		MaxConnections: 1,
	}, opts)
	if err != nil {
		t.Fatalf("failed to create test adapter: %v", err)
	}

	if _, err := adapter.SetUp(context.Background()); err != nil {
		_ = adapter.Close()
		t.Fatalf("failed to set up test adapter: %v", err)
	}

	cleanup := func() {
		if err := adapter.Close(); err != nil {
			t.Errorf("failed to close test adapter: %v", err)
		}
	}

	return adapter, cleanup
}

// NewTestMemory creates a set-up document-store adapter
func NewTestMemory(t *testing.T, opts Options) *MemoryAdapter {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	adapter, err := NewMemoryAdapter(opts)
	if err != nil {
		t.Fatalf("failed to create test adapter: %v", err)
	}

	if _, err := adapter.SetUp(context.Background()); err != nil {
		t.Fatalf("failed to set up test adapter: %v", err)
	}

	return adapter
}
