package keys

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/keystore"
	"github.com/jonwraymond/toolgate/observe"
)

// KeyPrefix starts every issued key.
const KeyPrefix = "tg_"

// SeedPrefix is listed in place of a display prefix for seeded keys. Seed
// keys are operator supplied and may be short, so none of their characters
// are shown.
const SeedPrefix = "seed"

const (
	keyBodyLength  = 40
	keyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	displayPrefix  = 8
	maxNameLength  = 128
	minSeedKeySize = 16
)

var (
	// ErrNotFound indicates no key with the given ID exists.
	ErrNotFound = errors.New("keys: key not found")

	// ErrInvalidName indicates an empty or overlong key name.
	ErrInvalidName = errors.New("keys: invalid key name")

	// ErrInvalidPermission indicates a malformed permission string.
	ErrInvalidPermission = errors.New("keys: invalid permission")

	// ErrInvalidSeed indicates a bootstrap key that is too short.
	ErrInvalidSeed = errors.New("keys: invalid seed key")
)

// DefaultPermissions are granted when Create receives none.
var DefaultPermissions = []string{"tool:*:call", "tool:*:list"}

// Key is the listing view of a stored key.
type Key struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Prefix      string     `json:"prefix,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	Permissions []string   `json:"permissions"`
}

// Issued is returned by Create. RawKey appears nowhere else.
type Issued struct {
	Key
	RawKey string `json:"key"`
}

// SeedKey is a bootstrap key supplied through configuration.
type SeedKey struct {
	Name        string   `mapstructure:"name"`
	Key         string   `mapstructure:"key"`
	Permissions []string `mapstructure:"permissions"`
}

// Config configures a Service.
type Config struct {
	// DefaultPermissions apply when Create receives none.
	// Default: DefaultPermissions
	DefaultPermissions []string

	// Random supplies key material.
	// Default: crypto/rand.Reader
	Random io.Reader

	// Logger receives key lifecycle events.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// Service manages API keys.
//
// Contract:
//   - Concurrency: safe for concurrent use; the store serializes writes.
//   - Errors: unknown IDs are ErrNotFound; messages never contain key
//     material or hashes.
type Service struct {
	store  keystore.Store
	perms  []string
	random io.Reader
	logger observe.Logger
	now    func() time.Time
}

// NewService creates a Service over store.
func NewService(store keystore.Store, cfg Config) *Service {
	if len(cfg.DefaultPermissions) == 0 {
		cfg.DefaultPermissions = DefaultPermissions
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:  store,
		perms:  slices.Clone(cfg.DefaultPermissions),
		random: cfg.Random,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// Create issues a new key.
func (s *Service) Create(ctx context.Context, name string, permissions []string) (*Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxNameLength)
	}
	perms, err := s.permissions(permissions)
	if err != nil {
		return nil, err
	}

	raw, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("keys: generate key: %w", err)
	}

	rec := &keystore.Record{
		ID:          uuid.NewString(),
		Name:        name,
		KeyHash:     auth.HashAPIKey(raw),
		Prefix:      raw[:displayPrefix],
		CreatedAt:   s.now().UTC(),
		IsActive:    true,
		Permissions: perms,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("keys: store key: %w", err)
	}

	s.logger.Info(ctx, "api key created",
		observe.F("key_id", rec.ID),
		observe.F("name", rec.Name),
		observe.F("permissions", rec.Permissions),
	)
	return &Issued{Key: toKey(rec), RawKey: raw}, nil
}

// List returns every key, oldest first.
func (s *Service) List(ctx context.Context) ([]Key, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("keys: list: %w", err)
	}
	out := make([]Key, len(recs))
	for i, rec := range recs {
		out[i] = toKey(rec)
	}
	return out, nil
}

// Get returns one key.
func (s *Service) Get(ctx context.Context, id string) (*Key, error) {
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keys: get: %w", err)
	}
	k := toKey(rec)
	return &k, nil
}

// Revoke deactivates a key. It reports true when this call changed the key
// and false when it was already revoked.
func (s *Service) Revoke(ctx context.Context, id string) (bool, error) {
	changed := false
	err := s.store.Update(ctx, id, func(rec *keystore.Record) error {
		changed = rec.IsActive
		rec.IsActive = false
		return nil
	})
	if errors.Is(err, keystore.ErrNotFound) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("keys: revoke: %w", err)
	}
	if changed {
		s.logger.Info(ctx, "api key revoked", observe.F("key_id", id))
	}
	return changed, nil
}

// Seed stores bootstrap keys. A key whose hash is already present is left
// untouched, so seeding is idempotent across restarts.
func (s *Service) Seed(ctx context.Context, seeds []SeedKey) (int, error) {
	added := 0
	for i, seed := range seeds {
		raw := strings.TrimSpace(seed.Key)
		if len(raw) < minSeedKeySize {
			return added, fmt.Errorf("%w: entry %d shorter than %d characters", ErrInvalidSeed, i, minSeedKeySize)
		}
		name := strings.TrimSpace(seed.Name)
		if name == "" {
			name = fmt.Sprintf("seed-%d", i+1)
		}
		perms, err := s.permissions(seed.Permissions)
		if err != nil {
			return added, err
		}

		hash := auth.HashAPIKey(raw)
		existing, err := s.store.Lookup(ctx, hash)
		if err != nil {
			return added, fmt.Errorf("keys: seed lookup: %w", err)
		}
		if existing != nil {
			continue
		}

		rec := &keystore.Record{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash)).String(),
			Name:        name,
			KeyHash:     hash,
			Prefix:      SeedPrefix,
			CreatedAt:   s.now().UTC(),
			IsActive:    true,
			Permissions: perms,
		}
		if err := s.store.Insert(ctx, rec); err != nil {
			return added, fmt.Errorf("keys: seed insert: %w", err)
		}
		added++
		s.logger.Info(ctx, "api key seeded", observe.F("key_id", rec.ID), observe.F("name", name))
	}
	return added, nil
}

func (s *Service) permissions(in []string) ([]string, error) {
	if len(in) == 0 {
		return slices.Clone(s.perms), nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if !auth.ValidPermission(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPermission, p)
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// generate draws keyBodyLength characters from keyAlphabet without modulo
// bias.
func (s *Service) generate() (string, error) {
	const limit = 256 - 256%len(keyAlphabet)
	var b strings.Builder
	b.Grow(len(KeyPrefix) + keyBodyLength)
	b.WriteString(KeyPrefix)

	buf := make([]byte, keyBodyLength*2)
	for b.Len() < len(KeyPrefix)+keyBodyLength {
		if _, err := io.ReadFull(s.random, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			b.WriteByte(keyAlphabet[int(c)%len(keyAlphabet)])
			if b.Len() == len(KeyPrefix)+keyBodyLength {
				break
			}
		}
	}
	return b.String(), nil
}

func toKey(rec *keystore.Record) Key {
	perms := slices.Clone(rec.Permissions)
	if perms == nil {
		perms = []string{}
	}
	var lastUsed *time.Time
	if rec.LastUsedAt != nil {
		t := *rec.LastUsedAt
		lastUsed = &t
	}
	return Key{
		ID:          rec.ID,
		Name:        rec.Name,
		Prefix:      rec.Prefix,
		CreatedAt:   rec.CreatedAt,
		LastUsedAt:  lastUsed,
		IsActive:    rec.IsActive,
		Permissions: perms,
	}
}
