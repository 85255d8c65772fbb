// Package keystore persists API key records.
//
// Records hold only the SHA-256 hash of the raw key material. Raw keys are
// never written to a Store; callers hash presented keys and look them up by
// hash. Records are never removed: revocation flips IsActive so the audit
// trail survives and identifiers are never reused.
package keystore

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"
)

// Sentinel errors for store operations.
var (
	ErrNotFound  = errors.New("keystore: record not found")
	ErrDuplicate = errors.New("keystore: duplicate record")
	ErrInvalid   = errors.New("keystore: invalid record")
	ErrClosed    = errors.New("keystore: store is closed")
)

// Record is the persisted form of an API key.
type Record struct {
	// ID uniquely identifies the key. It is safe to show to operators.
	ID string `json:"id"`

	// Name is the operator-supplied label.
	Name string `json:"name"`

	// KeyHash is the hex SHA-256 digest of the raw key.
	KeyHash string `json:"key_hash"`

	// Prefix is the leading, non-secret part of the raw key used to help
	// operators recognise a key in listings.
	Prefix string `json:"prefix,omitempty"`

	// CreatedAt is when the key was issued.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is the last successful authentication, if any.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// IsActive is false once the key is revoked.
	IsActive bool `json:"is_active"`

	// Permissions granted to callers presenting this key.
	Permissions []string `json:"permissions,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Permissions = slices.Clone(r.Permissions)
	if r.LastUsedAt != nil {
		t := *r.LastUsedAt
		out.LastUsedAt = &t
	}
	return &out
}

// Validate checks the fields every store requires.
func (r *Record) Validate() error {
	if r == nil || r.ID == "" || r.KeyHash == "" {
		return ErrInvalid
	}
	return nil
}

// Store provides storage for API key records.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines.
// - Ownership: returned records are copies; mutating them has no effect.
type Store interface {
	// Lookup retrieves a record by key hash. Returns (nil, nil) if not found.
	Lookup(ctx context.Context, keyHash string) (*Record, error)

	// Get retrieves a record by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Insert adds a new record. Returns ErrDuplicate if the ID or hash exists.
	Insert(ctx context.Context, rec *Record) error

	// Update applies mutate to the stored record atomically.
	// Returns ErrNotFound if absent. ID and KeyHash cannot be changed.
	Update(ctx context.Context, id string, mutate func(*Record) error) error

	// List returns all records ordered by creation time.
	List(ctx context.Context) ([]*Record, error)

	// Close releases resources held by the store.
	Close() error
}

func sortRecords(recs []*Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
