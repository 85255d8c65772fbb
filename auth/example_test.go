package auth_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/keystore"
)

func ExampleNewAPIKeyAuthenticator() {
	store := keystore.NewMemoryStore()
	_ = store.Insert(context.Background(), &keystore.Record{
		ID:          "key-1",
		Name:        "reporting",
		KeyHash:     auth.HashAPIKey("tg_example"),
		CreatedAt:   time.Now(),
		IsActive:    true,
		Permissions: []string{"tool:*:call"},
	})

	authenticator := auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{}, store)

	result, err := authenticator.Authenticate(context.Background(), &auth.AuthRequest{
		Headers: map[string][]string{"X-API-Key": {"tg_example"}},
	})
	if err == nil && result.Authenticated {
		fmt.Println("Principal:", result.Identity.Principal)
		fmt.Println("Permissions:", result.Identity.Permissions)
	}
	// Output:
	// Principal: key-1
	// Permissions: [tool:*:call]
}

func ExamplePermissionAuthorizer() {
	authz := auth.NewPermissionAuthorizer(nil)
	caller := &auth.Identity{Principal: "key-1", Permissions: []string{"tool:weather:call"}}

	fmt.Println(authz.Authorize(context.Background(), auth.ToolCall(caller, "weather")) == nil)
	fmt.Println(authz.Authorize(context.Background(), auth.ToolCall(caller, "flights")) == nil)
	// Output:
	// true
	// false
}
