package memory

import (
	"bytes"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/store"
)

type opKind int

const (
	opInsert opKind = iota + 1
	opUpdate
	opDelete
)

type change[T any] struct {
	op    opKind
	value T
}

// rows is a committed map plus a version per row, bumped on every write.
type rows[T any] struct {
	values   map[uuid.UUID]T
	versions map[uuid.UUID]uint64
}

func newRows[T any]() rows[T] {
	return rows[T]{values: make(map[uuid.UUID]T), versions: make(map[uuid.UUID]uint64)}
}

// table overlays the writes of one transaction on committed rows.
// Reads see staged changes first; nothing reaches the committed map until apply.
type table[T any] struct {
	mu       *sync.RWMutex
	base     map[uuid.UUID]T
	versions map[uuid.UUID]uint64
	staged   map[uuid.UUID]change[T]
	order    []uuid.UUID
	pins     map[uuid.UUID]uint64
	idOf     func(T) uuid.UUID
	clashes  func(a, b T) bool
}

func newTable[T any](mu *sync.RWMutex, committed rows[T], idOf func(T) uuid.UUID) *table[T] {
	return &table[T]{
		mu:       mu,
		base:     committed.values,
		versions: committed.versions,
		staged:   make(map[uuid.UUID]change[T]),
		pins:     make(map[uuid.UUID]uint64),
		idOf:     idOf,
	}
}

func (t *table[T]) get(id uuid.UUID) (T, bool) {
	if c, ok := t.staged[id]; ok {
		if c.op == opDelete {
			var zero T
			return zero, false
		}
		return c.value, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.base[id]
	return v, ok
}

func (t *table[T]) all() []T {
	t.mu.RLock()
	out := make([]T, 0, len(t.base)+len(t.staged))
	for id, v := range t.base {
		if _, ok := t.staged[id]; !ok {
			out = append(out, v)
		}
	}
	t.mu.RUnlock()

	for _, c := range t.staged {
		if c.op != opDelete {
			out = append(out, c.value)
		}
	}
	slices.SortFunc(out, func(a, b T) int {
		ida, idb := t.idOf(a), t.idOf(b)
		return bytes.Compare(ida[:], idb[:])
	})
	return out
}

func (t *table[T]) filter(keep func(T) bool) []T {
	var out []T
	for _, v := range t.all() {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (t *table[T]) clash(v T) bool {
	if t.clashes == nil {
		return false
	}
	id := t.idOf(v)
	for _, other := range t.all() {
		if t.idOf(other) != id && t.clashes(other, v) {
			return true
		}
	}
	return false
}

func (t *table[T]) insert(v T) error {
	id := t.idOf(v)
	if _, ok := t.get(id); ok {
		return store.ErrAlreadyExists
	}
	if t.clash(v) {
		return store.ErrAlreadyExists
	}
	op := opInsert
	if c, ok := t.staged[id]; ok && c.op == opDelete {
		op = opUpdate
	}
	t.stage(id, change[T]{op: op, value: v})
	return nil
}

func (t *table[T]) update(v T) error {
	id := t.idOf(v)
	if _, ok := t.get(id); !ok {
		return store.ErrNotFound
	}
	if t.clash(v) {
		return store.ErrAlreadyExists
	}
	op := opUpdate
	if c, ok := t.staged[id]; ok && c.op == opInsert {
		op = opInsert
	}
	t.stage(id, change[T]{op: op, value: v})
	return nil
}

func (t *table[T]) remove(id uuid.UUID) error {
	if _, ok := t.get(id); !ok {
		return store.ErrNotFound
	}
	if c, ok := t.staged[id]; ok && c.op == opInsert {
		delete(t.staged, id)
		t.order = slices.DeleteFunc(t.order, func(x uuid.UUID) bool { return x == id })
		return nil
	}
	t.stage(id, change[T]{op: opDelete})
	return nil
}

// pin remembers the committed version of id. The commit fails with
// store.ErrConflict if another transaction writes or pins id first.
func (t *table[T]) pin(id uuid.UUID) error {
	if _, ok := t.get(id); !ok {
		return store.ErrNotFound
	}
	if _, ok := t.pins[id]; ok {
		return nil
	}
	t.mu.RLock()
	t.pins[id] = t.versions[id]
	t.mu.RUnlock()
	return nil
}

func (t *table[T]) stage(id uuid.UUID, c change[T]) {
	if _, ok := t.staged[id]; !ok {
		t.order = append(t.order, id)
	}
	t.staged[id] = c
}

// check verifies the staged changes still fit the committed map.
// Callers hold the write lock.
func (t *table[T]) check() error {
	for id, v := range t.pins {
		if t.versions[id] != v {
			return store.ErrConflict
		}
	}
	for _, id := range t.order {
		c := t.staged[id]
		_, exists := t.base[id]
		switch c.op {
		case opInsert:
			if exists {
				return store.ErrAlreadyExists
			}
		case opUpdate, opDelete:
			if !exists {
				return store.ErrNotFound
			}
		}
		if c.op != opDelete && t.clashes != nil {
			for otherID, other := range t.base {
				if otherID == id {
					continue
				}
				if s, ok := t.staged[otherID]; ok {
					if s.op == opDelete {
						continue
					}
					other = s.value
				}
				if t.clashes(other, c.value) {
					return store.ErrAlreadyExists
				}
			}
		}
	}
	return nil
}

// apply writes the staged changes. Callers hold the write lock.
func (t *table[T]) apply() {
	for id := range t.pins {
		t.versions[id]++
	}
	for _, id := range t.order {
		if _, ok := t.pins[id]; !ok {
			t.versions[id]++
		}
		c := t.staged[id]
		if c.op == opDelete {
			delete(t.base, id)
			continue
		}
		t.base[id] = c.value
	}
}
