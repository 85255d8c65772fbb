package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func introspectionServer(t *testing.T, response map[string]any, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "gateway" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("token") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOAuth2IntrospectionAuthenticator_Active(t *testing.T) {
	var calls atomic.Int32
	server := introspectionServer(t, map[string]any{
		"active":    true,
		"client_id": "reporting",
		"scope":     "tool:*:call tool:*:list",
		"exp":       float64(time.Now().Add(time.Hour).Unix()),
	}, http.StatusOK, &calls)

	a := NewOAuth2IntrospectionAuthenticator(OAuth2Config{
		IntrospectionEndpoint: server.URL,
		ClientID:              "gateway",
		ClientSecret:          "s3cret",
	})

	for i := 0; i < 3; i++ {
		result, err := a.Authenticate(context.Background(), bearer("opaque-token"))
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if !result.Authenticated {
			t.Fatalf("Authenticated = false, error = %v", result.Error)
		}
		if result.Identity.Principal != "reporting" {
			t.Errorf("Principal = %v, want reporting (client_id fallback)", result.Identity.Principal)
		}
		if len(result.Identity.Permissions) != 2 {
			t.Errorf("Permissions = %v", result.Identity.Permissions)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("introspection calls = %d, want 1 (cached)", calls.Load())
	}
}

func TestOAuth2IntrospectionAuthenticator_Inactive(t *testing.T) {
	var calls atomic.Int32
	server := introspectionServer(t, map[string]any{"active": false}, http.StatusOK, &calls)
	a := NewOAuth2IntrospectionAuthenticator(OAuth2Config{
		IntrospectionEndpoint: server.URL,
		ClientID:              "gateway",
		ClientSecret:          "s3cret",
	})

	for i := 0; i < 2; i++ {
		result, err := a.Authenticate(context.Background(), bearer("revoked"))
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if !errors.Is(result.Error, ErrTokenInactive) {
			t.Errorf("Error = %v, want ErrTokenInactive", result.Error)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("introspection calls = %d, want 2 (negatives not cached)", calls.Load())
	}
}

func TestOAuth2IntrospectionAuthenticator_EndpointError(t *testing.T) {
	var calls atomic.Int32
	server := introspectionServer(t, nil, http.StatusInternalServerError, &calls)
	a := NewOAuth2IntrospectionAuthenticator(OAuth2Config{
		IntrospectionEndpoint: server.URL,
		ClientID:              "gateway",
		ClientSecret:          "s3cret",
	})

	result, err := a.Authenticate(context.Background(), bearer("t"))
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if !errors.Is(err, ErrIntrospectionFailed) {
		t.Errorf("error = %v, want ErrIntrospectionFailed", err)
	}
}

func TestIntrospectionCache_ExpiresAtTokenExp(t *testing.T) {
	c := &introspectionCache{entries: make(map[string]introspectionEntry)}
	now := time.Now()
	c.set("k", &Identity{Principal: "p"}, now.Add(time.Second))

	if c.get("k", now) == nil {
		t.Fatal("get() = nil before expiry")
	}
	if c.get("k", now.Add(2*time.Second)) != nil {
		t.Error("get() returned entry after expiry")
	}
}
