package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store, used by tests and as a
// reference implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record)}
}

func copyRecord(r *Record) *Record {
	cp := *r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		cp.RevokedAt = &t
	}
	if r.ReplacedBy != nil {
		id := *r.ReplacedBy
		cp.ReplacedBy = &id
	}
	return &cp
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) FindByTokenHash(_ context.Context, hash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.TokenHash == hash {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindByUserIDAndNotRevoked(_ context.Context, userID uuid.UUID) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.UserID == userID && rec.RevokedAt == nil {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindByFamilyID(_ context.Context, familyID uuid.UUID) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.FamilyID == familyID {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// RotateTx implements Rotator by holding the single store mutex across the
// whole lookup -> consumable-check -> insert -> mark-replaced sequence,
// giving the same single-winner guarantee PostgresStore.RotateTx gives via
// a row lock and transaction, so tests exercise the real wired rotation
// path rather than the sequential fallback.
func (s *MemoryStore) RotateTx(_ context.Context, oldHash string, newRec *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old *Record
	for _, rec := range s.records {
		if rec.TokenHash == oldHash {
			old = rec
			break
		}
	}
	if old == nil {
		return nil, nil
	}

	before := copyRecord(old)
	if !before.Consumable(time.Now()) {
		return before, nil
	}

	s.records[newRec.ID] = copyRecord(newRec)
	newID := newRec.ID
	old.ReplacedBy = &newID

	return before, nil
}
