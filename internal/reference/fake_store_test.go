package reference

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entityKey struct {
	kind   Kind
	syncID string
}

// memStore serializa transações e só publica o staging quando fn devolve nil.
type memStore struct {
	mu         sync.Mutex
	entities   map[entityKey]Entity
	tombstones map[entityKey]time.Time

	// failUpserts faz as próximas N chamadas de Upsert falharem.
	failUpserts int
	upserts     int
}

func newMemStore() *memStore {
	return &memStore{
		entities:   make(map[entityKey]Entity),
		tombstones: make(map[entityKey]time.Time),
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:      s,
		entities:   make(map[entityKey]Entity, len(s.entities)),
		tombstones: make(map[entityKey]time.Time, len(s.tombstones)),
	}
	for k, v := range s.entities {
		tx.entities[k] = v
	}
	for k, v := range s.tombstones {
		tx.tombstones[k] = v
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.entities = tx.entities
	s.tombstones = tx.tombstones
	return nil
}

func (s *memStore) GetByID(ctx context.Context, kind Kind, id uuid.UUID) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entities {
		if k.kind == kind && e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) PendingDepartments(ctx context.Context) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entity
	for k, e := range s.entities {
		if k.kind == KindDepartment && e.ParentID == nil && e.ParentSyncID != "" {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyncID < out[j].SyncID })
	return out, nil
}

func (s *memStore) get(kind Kind, syncID string) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityKey{kind, syncID}]
	return e, ok
}

func (s *memStore) count(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entities {
		if k.kind == kind {
			n++
		}
	}
	return n
}

func (s *memStore) tombstoned(kind Kind, syncID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tombstones[entityKey{kind, syncID}]
	return ok
}

type memTx struct {
	store      *memStore
	entities   map[entityKey]Entity
	tombstones map[entityKey]time.Time
}

func (t *memTx) Lock(ctx context.Context, kind Kind, syncID string) error { return nil }

func (t *memTx) IsTombstoned(ctx context.Context, kind Kind, syncID string) (bool, error) {
	_, ok := t.tombstones[entityKey{kind, syncID}]
	return ok, nil
}

func (t *memTx) Tombstone(ctx context.Context, kind Kind, syncID string, at time.Time) error {
	k := entityKey{kind, syncID}
	if _, ok := t.tombstones[k]; !ok {
		t.tombstones[k] = at
	}
	return nil
}

func (t *memTx) Find(ctx context.Context, kind Kind, syncID string) (*Entity, error) {
	e, ok := t.entities[entityKey{kind, syncID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memTx) Upsert(ctx context.Context, e *Entity) error {
	t.store.upserts++
	if t.store.failUpserts > 0 {
		t.store.failUpserts--
		return errors.New("conexão perdida")
	}
	k := entityKey{e.Kind, e.SyncID}
	if cur, ok := t.entities[k]; ok {
		e.ID = cur.ID
	} else if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	t.entities[k] = *e
	return nil
}

func (t *memTx) Delete(ctx context.Context, kind Kind, syncID string) (bool, error) {
	k := entityKey{kind, syncID}
	if _, ok := t.entities[k]; !ok {
		return false, nil
	}
	delete(t.entities, k)
	if kind == KindFaculty {
		for dk, d := range t.entities {
			if dk.kind == KindDepartment && d.ParentSyncID == syncID {
				d.ParentID = nil
				t.entities[dk] = d
			}
		}
	}
	return true, nil
}

func (t *memTx) DetachDepartments(ctx context.Context, facultySyncID string) (int64, error) {
	var n int64
	for k, d := range t.entities {
		if k.kind == KindDepartment && d.ParentSyncID == facultySyncID {
			d.ParentID = nil
			d.ParentSyncID = ""
			t.entities[k] = d
			n++
		}
	}
	return n, nil
}

func (t *memTx) AttachOrphans(ctx context.Context, facultySyncID string, facultyID uuid.UUID) (int64, error) {
	var n int64
	for k, d := range t.entities {
		if k.kind == KindDepartment && d.ParentID == nil && d.ParentSyncID == facultySyncID {
			id := facultyID
			d.ParentID = &id
			t.entities[k] = d
			n++
		}
	}
	return n, nil
}
