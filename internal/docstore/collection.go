package docstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/btree"
)

// MetaKey is the field holding a document's internal sequence number
const MetaKey = "$loki"

// Document is a stored record. Values are scalars.
type Document map[string]any

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}

	return out
}

// Seq returns the internal sequence number, or 0 if the document was never stored
func (d Document) Seq() int64 {
	seq, _ := d[MetaKey].(int64)
	return seq
}

// Query matches documents whose fields equal every given value. A nil value
// matches documents where the field is nil or absent.
type Query map[string]any

// Matches reports whether doc satisfies the query
func (q Query) Matches(doc Document) bool {
	for field, want := range q {
		if !equalValues(doc[field], want) {
			return false
		}
	}

	return true
}

type indexEntry struct {
	value any
	seq   int64
}

func lessEntry(a, b indexEntry) bool {
	if c := compareValues(a.value, b.value); c != 0 {
		return c < 0
	}

	return a.seq < b.seq
}

// Collection holds documents in insertion order with an optional set of
// unique and secondary indexes.
type Collection struct {
	name string

	mu      sync.RWMutex
	docs    *btree.Map[int64, Document]
	nextSeq int64
	unique  map[string]map[any]int64
	indices map[string]*btree.BTreeG[indexEntry]
}

func newCollection(name string, opts CollectionOptions) *Collection {
	c := &Collection{
		name:    name,
		docs:    btree.NewMap[int64, Document](0),
		unique:  make(map[string]map[any]int64),
		indices: make(map[string]*btree.BTreeG[indexEntry]),
	}

	for _, field := range opts.Unique {
		c.unique[field] = make(map[any]int64)
	}

	for _, field := range opts.Indices {
		c.indices[field] = newIndex()
	}

	return c
}

func newIndex() *btree.BTreeG[indexEntry] {
	return btree.NewBTreeGOptions(lessEntry, btree.Options{NoLocks: true})
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// Count returns the number of stored documents
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.docs.Len()
}

// Insert stores a copy of doc and returns the stored copy
func (c *Collection) Insert(doc Document) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := doc.Clone()
	stored[MetaKey] = c.nextSeq + 1

	if err := c.checkUnique(stored, 0); err != nil {
		return nil, err
	}

	c.nextSeq++
	c.docs.Set(c.nextSeq, stored)
	c.addToIndexes(stored)

	return stored.Clone(), nil
}

// Update replaces the stored document with the same sequence number
func (c *Collection) Update(doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := doc.Seq()

	old, ok := c.docs.Get(seq)
	if !ok {
		return fmt.Errorf("document %d not found in collection %s", seq, c.name)
	}

	return c.replace(old, doc.Clone())
}

// Remove deletes the stored document with the same sequence number
func (c *Collection) Remove(doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.docs.Get(doc.Seq())
	if !ok {
		return fmt.Errorf("document %d not found in collection %s", doc.Seq(), c.name)
	}

	c.removeFromIndexes(old)
	c.docs.Delete(old.Seq())

	return nil
}

// By looks up a document through a unique index
func (c *Collection) By(field string, value any) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.unique[field]
	if !ok {
		return nil, false
	}

	seq, ok := idx[value]
	if !ok {
		return nil, false
	}

	doc, ok := c.docs.Get(seq)
	if !ok {
		return nil, false
	}

	return doc.Clone(), true
}

// Find returns copies of the documents matching q in insertion order. An
// indexed field in q narrows the scan to that index.
func (c *Collection) Find(q Query) []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []Document

	if field, ok := c.indexedField(q); ok {
		want := q[field]
		c.indices[field].Ascend(indexEntry{value: want}, func(e indexEntry) bool {
			if !equalValues(e.value, want) {
				return false
			}

			if doc, ok := c.docs.Get(e.seq); ok && q.Matches(doc) {
				results = append(results, doc.Clone())
			}

			return true
		})

		sort.Slice(results, func(i, j int) bool { return results[i].Seq() < results[j].Seq() })

		return results
	}

	c.docs.Scan(func(_ int64, doc Document) bool {
		if q.Matches(doc) {
			results = append(results, doc.Clone())
		}

		return true
	})

	return results
}

// Data returns copies of all documents in insertion order
func (c *Collection) Data() []Document {
	return c.Find(nil)
}

// FindAndUpdate applies update to a copy of every document matching filter
// (all documents when filter is nil) and stores the result.
func (c *Collection) FindAndUpdate(filter func(Document) bool, update func(Document)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []Document

	c.docs.Scan(func(_ int64, doc Document) bool {
		if filter == nil || filter(doc) {
			matched = append(matched, doc)
		}

		return true
	})

	for _, old := range matched {
		next := old.Clone()
		update(next)
		next[MetaKey] = old.Seq()

		if err := c.replace(old, next); err != nil {
			return err
		}
	}

	return nil
}

// EnsureIndex builds a secondary index on field if it does not exist yet
func (c *Collection) EnsureIndex(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.indices[field]; ok {
		return
	}

	idx := newIndex()

	c.docs.Scan(func(seq int64, doc Document) bool {
		idx.Set(indexEntry{value: doc[field], seq: seq})
		return true
	})

	c.indices[field] = idx
}

// RemoveIndex drops the secondary index on field
func (c *Collection) RemoveIndex(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.indices, field)
}

// HasIndex reports whether field has a secondary index
func (c *Collection) HasIndex(field string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.indices[field]

	return ok
}

// Indices returns the names of indexed fields, sorted
func (c *Collection) Indices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.indices))
	for field := range c.indices {
		names = append(names, field)
	}

	sort.Strings(names)

	return names
}

func (c *Collection) indexedField(q Query) (string, bool) {
	fields := make([]string, 0, len(q))
	for field := range q {
		if _, ok := c.indices[field]; ok {
			fields = append(fields, field)
		}
	}

	if len(fields) == 0 {
		return "", false
	}

	sort.Strings(fields)

	return fields[0], true
}

func (c *Collection) replace(old, next Document) error {
	if err := c.checkUnique(next, old.Seq()); err != nil {
		return err
	}

	c.removeFromIndexes(old)
	c.docs.Set(old.Seq(), next)
	c.addToIndexes(next)

	return nil
}

// checkUnique fails when another document already holds one of doc's unique
// values. self is the sequence number doc is allowed to collide with.
func (c *Collection) checkUnique(doc Document, self int64) error {
	for field, idx := range c.unique {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}

		if !isHashable(v) {
			return fmt.Errorf("value of unique field %s in collection %s is not a scalar", field, c.name)
		}

		if seq, taken := idx[v]; taken && seq != self {
			return fmt.Errorf("duplicate key for unique index %s on collection %s: %v", field, c.name, v)
		}
	}

	return nil
}

func (c *Collection) addToIndexes(doc Document) {
	seq := doc.Seq()

	for field, idx := range c.unique {
		if v, ok := doc[field]; ok && v != nil {
			idx[v] = seq
		}
	}

	for field, idx := range c.indices {
		idx.Set(indexEntry{value: doc[field], seq: seq})
	}
}

func (c *Collection) removeFromIndexes(doc Document) {
	seq := doc.Seq()

	for field, idx := range c.unique {
		if v, ok := doc[field]; ok && v != nil {
			if idx[v] == seq {
				delete(idx, v)
			}
		}
	}

	for field, idx := range c.indices {
		idx.Delete(indexEntry{value: doc[field], seq: seq})
	}
}

func isHashable(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
