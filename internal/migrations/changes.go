package migrations

import (
	"github.com/kyleking/schemasync/internal/errors"
	"github.com/kyleking/schemasync/internal/schema"
)

// ChangeSet is the net set of schema elements a sync peer has not seen yet.
// It is attached to pull requests and never persisted.
type ChangeSet struct {
	From    schema.Version `json:"from"`
	Tables  []string       `json:"tables"`
	Columns []TableColumns `json:"columns"`
}

// TableColumns lists columns added to a table that existed before the range
type TableColumns struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

// SyncChanges folds the steps between from and to into a ChangeSet. to must
// be the registry's newest version. A nil ChangeSet means nothing changed.
func SyncChanges(reg *Registry, from, to schema.Version) (*ChangeSet, error) {
	steps, ok := StepsForMigration(reg, from, to)
	if !ok {
		return nil, errors.NewRangeUnavailableError(int(from), int(to))
	}

	if to != reg.MaxVersion() {
		return nil, errors.NewValidationError(
			"sync changes can only be computed up to the latest schema version %d, not %d", reg.MaxVersion(), to)
	}

	if from == to {
		return nil, nil
	}

	acc := newChangeAccumulator()

	for _, step := range steps {
		if err := acc.apply(step); err != nil {
			return nil, err
		}
	}

	return acc.changeSet(from), nil
}

// changeAccumulator is the scratch state folded over a step sequence
type changeAccumulator struct {
	tables  *orderedSet
	columns map[string]*orderedSet
	order   *orderedSet
}

func newChangeAccumulator() *changeAccumulator {
	return &changeAccumulator{
		tables:  newOrderedSet(),
		columns: make(map[string]*orderedSet),
		order:   newOrderedSet(),
	}
}

func (a *changeAccumulator) apply(step Step) error {
	if !IsKnownStep(step) {
		return errors.NewUnknownStepError(KindOf(step))
	}

	switch s := step.(type) {
	case CreateTable:
		a.tables.add(s.Schema.Name)
	case AddColumns:
		if a.tables.has(s.Table) {
			return nil
		}

		cols := a.columnsOf(s.Table)
		for _, c := range s.Columns {
			cols.add(c.Name)
		}
	case DestroyTable:
		a.tables.remove(s.Table)
		delete(a.columns, s.Table)
		a.order.remove(s.Table)
	case DestroyColumn:
		if cols, ok := a.columns[s.Table]; ok {
			cols.remove(s.Column)
		}
	case RenameColumn:
		if cols, ok := a.columns[s.Table]; ok && cols.has(s.From) {
			cols.remove(s.From)
			cols.add(s.To)
		}
	}

	return nil
}

func (a *changeAccumulator) columnsOf(table string) *orderedSet {
	cols, ok := a.columns[table]
	if !ok {
		cols = newOrderedSet()
		a.columns[table] = cols
		a.order.add(table)
	}

	return cols
}

func (a *changeAccumulator) changeSet(from schema.Version) *ChangeSet {
	cs := &ChangeSet{
		From:    from,
		Tables:  a.tables.values(),
		Columns: []TableColumns{},
	}

	for _, table := range a.order.items {
		cols, ok := a.columns[table]
		if !ok || cols.len() == 0 {
			continue
		}

		cs.Columns = append(cs.Columns, TableColumns{Table: table, Columns: cols.values()})
	}

	return cs
}

// orderedSet keeps insertion order so output follows step order
type orderedSet struct {
	index map[string]int
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]int)}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.index[v]; ok {
		return
	}

	s.index[v] = len(s.items)
	s.items = append(s.items, v)
}

func (s *orderedSet) has(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *orderedSet) remove(v string) {
	i, ok := s.index[v]
	if !ok {
		return
	}

	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, v)

	for j := i; j < len(s.items); j++ {
		s.index[s.items[j]] = j
	}
}

func (s *orderedSet) len() int {
	return len(s.items)
}

func (s *orderedSet) values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)

	return out
}
