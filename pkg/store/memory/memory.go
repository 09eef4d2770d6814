// Package memory is an in-process implementation of store.GraphStore.
//
// Write transactions are serialized and operate on a copy of the state that
// replaces the live state only when fn returns nil, so a failed transaction
// leaves no trace. Reads share the live state under a read lock.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

var errReadOnly = errors.New("write in read-only transaction")

type state struct {
	lastID     map[string]int64
	entities   map[int64]common.Entity
	containers map[int64]common.Container
	schemas    map[int64]common.Schema
	types      map[int64]common.Type
	relations  map[int64]common.Relation
	contents   map[int64]common.ContentRelation
	identities map[int64]common.Identity
}

func newState() *state {
	return &state{
		lastID:     make(map[string]int64),
		entities:   make(map[int64]common.Entity),
		containers: make(map[int64]common.Container),
		schemas:    make(map[int64]common.Schema),
		types:      make(map[int64]common.Type),
		relations:  make(map[int64]common.Relation),
		contents:   make(map[int64]common.ContentRelation),
		identities: make(map[int64]common.Identity),
	}
}

func (s *state) clone() *state {
	c := &state{
		lastID:     maps.Clone(s.lastID),
		entities:   make(map[int64]common.Entity, len(s.entities)),
		containers: maps.Clone(s.containers),
		schemas:    maps.Clone(s.schemas),
		types:      make(map[int64]common.Type, len(s.types)),
		relations:  maps.Clone(s.relations),
		contents:   maps.Clone(s.contents),
		identities: make(map[int64]common.Identity, len(s.identities)),
	}
	for id, e := range s.entities {
		c.entities[id] = common.Clone(e)
	}
	for id, t := range s.types {
		t.Domain = slices.Clone(t.Domain)
		t.Range = slices.Clone(t.Range)
		c.types[id] = t
	}
	for id, i := range s.identities {
		i.Entities = slices.Clone(i.Entities)
		c.identities[id] = i
	}
	return c
}

func (s *state) next(table string) int64 {
	s.lastID[table]++
	return s.lastID[table]
}

// Store is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ store.GraphStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		st:  newState(),
		now: time.Now,
	}
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	tx := &memTx{st: work, writable: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Read runs fn against the live state. Writes fail.
func (s *Store) Read(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{st: s.st, now: s.now})
}

type memTx struct {
	st       *state
	writable bool
	now      func() time.Time
}

func (t *memTx) checkWrite() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

// LockEntities always succeeds: write transactions are already serialized.
func (t *memTx) LockEntities(ctx context.Context, ids []int64) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	for _, id := range common.SortedIDs(ids) {
		if _, ok := t.st.entities[id]; !ok {
			return common.NotFound("entity", id)
		}
	}
	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	return slices.Sorted(maps.Keys(m))
}
