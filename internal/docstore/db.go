// Package docstore is a small in-memory document database: named collections
// of map documents with unique and B-tree secondary indexes.
package docstore

import (
	"fmt"
	"sort"
	"sync"
)

// CollectionOptions names the fields indexed when a collection is created
type CollectionOptions struct {
	Unique  []string
	Indices []string
}

// DB is a set of named collections
type DB struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewDB returns an empty database
func NewDB() *DB {
	return &DB{collections: make(map[string]*Collection)}
}

// AddCollection creates a collection. It fails if the name is taken.
func (db *DB) AddCollection(name string, opts CollectionOptions) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.collections[name]; ok {
		return nil, fmt.Errorf("collection %s already exists", name)
	}

	c := newCollection(name, opts)
	db.collections[name] = c

	return c, nil
}

// GetCollection returns the named collection, or nil
func (db *DB) GetCollection(name string) *Collection {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.collections[name]
}

// RemoveCollection drops the named collection if it exists
func (db *DB) RemoveCollection(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.collections, name)
}

// ListCollections returns collection names, sorted
func (db *DB) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Clear drops every collection
func (db *DB) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.collections = make(map[string]*Collection)
}
