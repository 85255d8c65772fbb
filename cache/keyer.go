package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Keyer derives cache keys for tool invocations.
//
// Contract:
// - Determinism: equal inputs produce equal keys regardless of map order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(tool, principal string, args map[string]any) (string, error)
}

// DefaultKeyer hashes the principal and arguments with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key returns "result:<tool>:<hash>", hash being 16 hex characters of the
// digest of principal and the arguments with object keys sorted.
func (k *DefaultKeyer) Key(tool, principal string, args map[string]any) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(principal)
	buf.WriteByte(0)
	if err := writeCanonical(&buf, args); err != nil {
		return "", fmt.Errorf("cache: canonicalize arguments: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return "result:" + tool + ":" + hex.EncodeToString(sum[:8]), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range slices.Sorted(maps.Keys(val)) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeJSON(buf, v)
	}
	return nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

var _ Keyer = (*DefaultKeyer)(nil)
