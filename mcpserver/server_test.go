package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/catalog"
	"github.com/jonwraymond/toolgate/gateway"
	"github.com/jonwraymond/toolgate/keys"
	"github.com/jonwraymond/toolgate/keystore"
)

type rpcResult struct {
	Result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
}

func newServer(t *testing.T) (*Server, *keys.Service) {
	t.Helper()
	store := keystore.NewMemoryStore()
	cat := catalog.New()
	cat.MustRegister(
		catalog.Definition{
			Name:        "echo",
			Description: "Echo",
			Params:      []catalog.Param{{Name: "text", Type: catalog.TypeString, Required: true}},
			Handler: func(_ context.Context, args catalog.Args) (any, error) {
				return args.String("text"), nil
			},
		},
		catalog.Definition{
			Name: "secret_tool",
			Handler: func(context.Context, catalog.Args) (any, error) {
				return "classified", nil
			},
		},
	)
	gw, err := gateway.New(gateway.Config{
		Catalog:       cat,
		Authenticator: auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{}, store),
	})
	require.NoError(t, err)
	srv, err := New(Config{Gateway: gw, Version: "test"})
	require.NoError(t, err)
	return srv, keys.NewService(store, keys.Config{})
}

func issue(t *testing.T, svc *keys.Service, perms ...string) string {
	t.Helper()
	issued, err := svc.Create(context.Background(), "mcp", perms)
	require.NoError(t, err)
	return issued.RawKey
}

func handle(t *testing.T, srv *Server, key, method string, params any) rpcResult {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)

	ctx := context.Background()
	if key != "" {
		ctx = auth.WithHeaders(ctx, http.Header{"X-Api-Key": {key}})
	}
	out, err := json.Marshal(srv.MCPServer().HandleMessage(ctx, msg))
	require.NoError(t, err)
	var res rpcResult
	require.NoError(t, json.Unmarshal(out, &res), "response: %s", out)
	return res
}

func toolNames(res rpcResult) []string {
	var names []string
	for _, tool := range res.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestNew_RequiresGateway(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoGateway)
}

func TestToolsCall(t *testing.T) {
	srv, svc := newServer(t)
	key := issue(t, svc, "tool:echo:call")

	tests := []struct {
		name      string
		key       string
		tool      string
		args      map[string]any
		wantError bool
		wantText  string
	}{
		{name: "success", key: key, tool: "echo", args: map[string]any{"text": "hi"}, wantText: "hi"},
		{name: "no credential", tool: "echo", args: map[string]any{"text": "hi"}, wantError: true, wantText: "unauthenticated"},
		{name: "forbidden", key: key, tool: "secret_tool", wantError: true, wantText: "forbidden"},
		{name: "invalid arguments", key: key, tool: "echo", args: map[string]any{}, wantError: true, wantText: "invalid_arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := handle(t, srv, tt.key, "tools/call", map[string]any{"name": tt.tool, "arguments": tt.args})
			assert.Equal(t, tt.wantError, res.Result.IsError)
			require.NotEmpty(t, res.Result.Content)
			assert.Contains(t, res.Result.Content[0].Text, tt.wantText)
		})
	}
}

func TestToolsList_Filtered(t *testing.T) {
	srv, svc := newServer(t)

	full := issue(t, svc, "tool:*:call", "tool:*:list")
	assert.ElementsMatch(t, []string{"echo", "secret_tool"}, toolNames(handle(t, srv, full, "tools/list", map[string]any{})))

	narrow := issue(t, svc, "tool:echo:call", "tool:*:list")
	assert.Equal(t, []string{"echo"}, toolNames(handle(t, srv, narrow, "tools/list", map[string]any{})))

	callOnly := issue(t, svc, "tool:echo:call")
	assert.Empty(t, toolNames(handle(t, srv, callOnly, "tools/list", map[string]any{})))

	assert.Empty(t, toolNames(handle(t, srv, "", "tools/list", map[string]any{})))
}

func TestStreamableHTTP(t *testing.T) {
	srv, svc := newServer(t)
	key := issue(t, svc, "tool:echo:call")

	mux := http.NewServeMux()
	mux.Handle(DefaultPath, srv)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	body := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"text":"over http"}}}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+DefaultPath, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("X-API-Key", key)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", data)

	var res rpcResult
	require.NoError(t, json.Unmarshal(data, &res), "body: %s", data)
	require.NotEmpty(t, res.Result.Content)
	assert.False(t, res.Result.IsError)
	assert.Equal(t, "over http", res.Result.Content[0].Text)
}
