package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("keys")
	hashesBucket  = []byte("key_hashes")
)

// BoltStore is a Store backed by a bbolt database file.
//
// Records are JSON documents in the "keys" bucket keyed by ID; a second
// bucket indexes IDs by key hash so Lookup is a single read.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("keystore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("keystore: ensure dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("keystore: open db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(hashesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keystore: ensure schema: %w", err)
	}
	return &BoltStore{db: db, path: trimmed}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string { return s.path }

// Lookup retrieves a record by key hash.
func (s *BoltStore) Lookup(ctx context.Context, keyHash string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *Record
	err := s.view(func(tx *bolt.Tx) error {
		id := tx.Bucket(hashesBucket).Get([]byte(keyHash))
		if id == nil {
			return nil
		}
		var err error
		rec, err = readRecord(tx, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		// Index points at a missing record; treat as unknown key.
		return nil, nil
	}
	return rec, err
}

// Get retrieves a record by ID.
func (s *BoltStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *Record
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		rec, err = readRecord(tx, []byte(id))
		return err
	})
	return rec, err
}

// Insert adds a record.
func (s *BoltStore) Insert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		hashes := tx.Bucket(hashesBucket)
		if records.Get([]byte(rec.ID)) != nil || hashes.Get([]byte(rec.KeyHash)) != nil {
			return ErrDuplicate
		}
		if err := writeRecord(tx, rec); err != nil {
			return err
		}
		return hashes.Put([]byte(rec.KeyHash), []byte(rec.ID))
	})
}

// Update applies mutate inside a single write transaction.
func (s *BoltStore) Update(ctx context.Context, id string, mutate func(*Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		current, err := readRecord(tx, []byte(id))
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.KeyHash = current.KeyHash
		return writeRecord(tx, next)
	})
}

// List returns all records.
func (s *BoltStore) List(ctx context.Context) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*Record
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(_, value []byte) error {
			var rec Record
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("keystore: decode record: %w", err)
			}
			out = append(out, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

// Ping verifies the database is open and readable.
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.view(func(tx *bolt.Tx) error {
		if tx.Bucket(recordsBucket) == nil {
			return fmt.Errorf("keystore: bucket %q missing", recordsBucket)
		}
		return nil
	})
}

// Close closes the database. Idempotent.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BoltStore) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(fn)
}

func readRecord(tx *bolt.Tx, id []byte) (*Record, error) {
	raw := tx.Bucket(recordsBucket).Get(id)
	if raw == nil {
		return nil, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("keystore: decode record: %w", err)
	}
	return &rec, nil
}

func writeRecord(tx *bolt.Tx, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("keystore: encode record: %w", err)
	}
	return tx.Bucket(recordsBucket).Put([]byte(rec.ID), raw)
}

// Ensure BoltStore implements Store
var _ Store = (*BoltStore)(nil)
