package keys

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/keystore"
)

func newService(t *testing.T) (*Service, keystore.Store) {
	t.Helper()
	store := keystore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, Config{}), store
}

func TestService_CreateFormat(t *testing.T) {
	svc, store := newService(t)

	issued, err := svc.Create(context.Background(), "  reporting  ", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.RawKey, KeyPrefix))
	assert.Len(t, issued.RawKey, len(KeyPrefix)+keyBodyLength)
	for _, c := range issued.RawKey[len(KeyPrefix):] {
		assert.True(t, strings.ContainsRune(keyAlphabet, c), "unexpected character %q", c)
	}
	assert.Equal(t, "reporting", issued.Name)
	assert.Equal(t, issued.RawKey[:displayPrefix], issued.Prefix)
	assert.True(t, issued.IsActive)
	assert.Equal(t, DefaultPermissions, issued.Permissions)

	rec, err := store.Get(context.Background(), issued.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.HashAPIKey(issued.RawKey), rec.KeyHash)
	assert.NotContains(t, rec.KeyHash, issued.RawKey)
}

func TestService_CreateUniqueKeys(t *testing.T) {
	svc, _ := newService(t)
	seen := map[string]bool{}
	for range 50 {
		issued, err := svc.Create(context.Background(), "k", nil)
		require.NoError(t, err)
		require.False(t, seen[issued.RawKey], "duplicate key issued")
		seen[issued.RawKey] = true
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		name    string
		keyName string
		perms   []string
		wantErr error
	}{
		{name: "blank name", keyName: "   ", wantErr: ErrInvalidName},
		{name: "long name", keyName: strings.Repeat("x", maxNameLength+1), wantErr: ErrInvalidName},
		{name: "bad permission", keyName: "ok", perms: []string{"call-everything"}, wantErr: ErrInvalidPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.keyName, tt.perms)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_CreateDeduplicatesPermissions(t *testing.T) {
	svc, _ := newService(t)
	issued, err := svc.Create(context.Background(), "admin", []string{"key:*:manage", " key:*:manage ", "tool:*:call"})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]string{"key:*:manage", "tool:*:call"}, issued.Permissions))
}

func TestService_ListNeverExposesSecrets(t *testing.T) {
	svc, _ := newService(t)
	issued, err := svc.Create(context.Background(), "reporting", nil)
	require.NoError(t, err)

	listed, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, cmp.Diff(issued.Key, listed[0]))

	raw, err := json.Marshal(listed)
	require.NoError(t, err)
	body := string(raw)
	assert.NotContains(t, body, issued.RawKey)
	assert.NotContains(t, body, auth.HashAPIKey(issued.RawKey))
	assert.NotContains(t, body, `"key"`)
	assert.NotContains(t, body, "hash")
}

func TestService_CreatedKeyAuthenticatesUntilRevoked(t *testing.T) {
	svc, store := newService(t)
	issued, err := svc.Create(context.Background(), "reporting", nil)
	require.NoError(t, err)

	authn := auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{}, store)
	req := &auth.AuthRequest{Headers: map[string][]string{"X-API-Key": {issued.RawKey}}}

	res, err := authn.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Authenticated)
	assert.Equal(t, issued.ID, res.Identity.Principal)

	changed, err := svc.Revoke(context.Background(), issued.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	res, err = authn.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.ErrorIs(t, res.Error, auth.ErrKeyRevoked)
	assert.True(t, auth.IsForbidden(res.Error))
}

func TestService_RevokeIdempotence(t *testing.T) {
	svc, _ := newService(t)
	issued, err := svc.Create(context.Background(), "temp", nil)
	require.NoError(t, err)

	changed, err := svc.Revoke(context.Background(), issued.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.Revoke(context.Background(), issued.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	k, err := svc.Get(context.Background(), issued.ID)
	require.NoError(t, err)
	assert.False(t, k.IsActive)

	changed, err = svc.Revoke(context.Background(), "no-such-id")
	assert.False(t, changed)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), "no-such-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestService_SeedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	seeds := []SeedKey{
		{Name: "demo", Key: "demo-api-key-0123456789", Permissions: []string{"tool:*:call"}},
		{Key: "second-bootstrap-key-xyz"},
	}

	store, err := keystore.OpenBoltStore(dir + "/keys.db")
	require.NoError(t, err)
	svc := NewService(store, Config{})
	added, err := svc.Seed(context.Background(), seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	require.NoError(t, store.Close())

	store, err = keystore.OpenBoltStore(dir + "/keys.db")
	require.NoError(t, err)
	defer store.Close()
	svc = NewService(store, Config{})
	added, err = svc.Seed(context.Background(), seeds)
	require.NoError(t, err)
	assert.Zero(t, added)

	listed, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	names := []string{listed[0].Name, listed[1].Name}
	assert.ElementsMatch(t, []string{"demo", "seed-2"}, names)
}

func TestService_SeedListsNoKeyMaterial(t *testing.T) {
	svc, _ := newService(t)
	raw := "abcdefghSECRET16"
	_, err := svc.Seed(context.Background(), []SeedKey{{Name: "boot", Key: raw}})
	require.NoError(t, err)

	listed, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, SeedPrefix, listed[0].Prefix)
	for i := 0; i+3 <= len(raw); i++ {
		assert.NotContains(t, listed[0].Prefix, raw[i:i+3])
	}
}

func TestService_SeedRejectsShortKeys(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Seed(context.Background(), []SeedKey{{Name: "weak", Key: "short"}})
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

type fixedReader struct{ b byte }

func (r fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	return len(p), nil
}

func TestService_GenerateSkipsBiasedBytes(t *testing.T) {
	svc := NewService(keystore.NewMemoryStore(), Config{Random: &alternating{}, Now: func() time.Time { return time.Unix(0, 0) }})
	raw, err := svc.generate()
	require.NoError(t, err)
	assert.Equal(t, KeyPrefix+strings.Repeat("A", keyBodyLength), raw)

	svc = NewService(keystore.NewMemoryStore(), Config{Random: fixedReader{b: 61}})
	raw, err = svc.generate()
	require.NoError(t, err)
	assert.Equal(t, KeyPrefix+strings.Repeat("9", keyBodyLength), raw)
}

// alternating yields 255 (rejected) then 0 (accepted).
type alternating struct{ n int }

func (a *alternating) Read(p []byte) (int, error) {
	for i := range p {
		if a.n%2 == 0 {
			p[i] = 255
		} else {
			p[i] = 0
		}
		a.n++
	}
	return len(p), nil
}
