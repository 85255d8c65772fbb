package keystore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store, used by tests and ephemeral servers.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Record
	byHash map[string]string // hash -> id
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Record),
		byHash: make(map[string]string),
	}
}

// Lookup retrieves a record by key hash.
func (s *MemoryStore) Lookup(ctx context.Context, keyHash string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	id, ok := s.byHash[keyHash]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Insert adds a record.
func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.byID[rec.ID]; exists {
		return ErrDuplicate
	}
	if _, exists := s.byHash[rec.KeyHash]; exists {
		return ErrDuplicate
	}
	s.byID[rec.ID] = rec.Clone()
	s.byHash[rec.KeyHash] = rec.ID
	return nil
}

// Update applies mutate to a copy of the record and stores the result.
func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	current, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	next.ID = current.ID
	next.KeyHash = current.KeyHash
	s.byID[id] = next
	return nil
}

// List returns copies of all records.
func (s *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*Record, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out, nil
}

// Close marks the store closed. Idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
