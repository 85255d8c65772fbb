package cache

import (
	"context"
	"errors"
	"time"
)

// MaxKeyLength bounds a cache key. Keys from DefaultKeyer are far shorter;
// the bound only guards custom Keyers.
const MaxKeyLength = 256

var (
	// ErrInvalidKey indicates an empty key or one with spaces or control
	// characters.
	ErrInvalidKey = errors.New("cache: key is invalid")

	// ErrKeyTooLong indicates a key longer than MaxKeyLength.
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache stores serialized tool results.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Ownership: Set keeps a copy of value and Get returns a copy, so callers
//     may reuse their buffers.
//   - Expiry: an entry is never returned after its TTL has passed.
type Cache interface {
	// Get returns the value for key, or (nil, false) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete drops key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ValidateKey reports whether key may be stored. Keys are printable ASCII
// without spaces.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c <= ' ' || c > '~' {
			return ErrInvalidKey
		}
	}
	return nil
}
