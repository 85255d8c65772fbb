// Package mcpserver exposes the gateway's catalog as an MCP server over the
// streamable HTTP transport (github.com/mark3labs/mcp-go).
//
// Every tools/call runs through gateway.Invoke with the credential headers
// of the HTTP request, so MCP callers are authenticated and authorized
// exactly like REST callers. tools/list shows only the tools the caller may
// call.
package mcpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/gateway"
	"github.com/jonwraymond/toolgate/observe"
)

// TransportName labels invocations arriving through MCP.
const TransportName = "mcp"

// DefaultPath is where the streamable HTTP endpoint is mounted.
const DefaultPath = "/mcp"

// ErrNoGateway indicates a Config without a Gateway.
var ErrNoGateway = errors.New("mcpserver: gateway is required")

// Config configures a Server.
type Config struct {
	// Gateway runs tool calls. Required.
	Gateway *gateway.Gateway

	// Name and Version identify the server to MCP clients.
	// Default: "toolgate", "dev"
	Name    string
	Version string

	// Path is the endpoint path.
	// Default: DefaultPath
	Path string

	// Logger receives filtered listing failures.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Server adapts a Gateway to MCP.
type Server struct {
	gw     *gateway.Gateway
	mcp    *server.MCPServer
	http   *server.StreamableHTTPServer
	logger observe.Logger
}

// New builds the MCP server and registers every catalog tool.
func New(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, ErrNoGateway
	}
	if cfg.Name == "" {
		cfg.Name = "toolgate"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	s := &Server{gw: cfg.Gateway, logger: cfg.Logger}
	s.mcp = server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithToolFilter(s.visibleTools),
		server.WithRecovery(),
	)
	for _, info := range cfg.Gateway.Catalog().List() {
		tool := mcp.NewToolWithRawSchema(info.Name, info.Description, info.InputSchema)
		s.mcp.AddTool(tool, s.callHandler(info.Name))
	}
	s.http = server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(cfg.Path),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return auth.WithHeaders(ctx, r.Header)
		}),
	)
	return s, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeHTTP implements http.Handler for the streamable HTTP endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.http.ServeHTTP(w, r)
}

func (s *Server) callHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := s.gw.Invoke(ctx, gateway.Request{
			Tool:       name,
			Arguments:  req.GetArguments(),
			Credential: auth.CredentialFromContext(ctx),
			Transport:  TransportName,
		})
		if resp.IsError() {
			return mcp.NewToolResultError(resp.Error.Error()), nil
		}
		return mcp.NewToolResultText(resp.Text()), nil
	}
}

// visibleTools hides tools the caller cannot call. Unauthenticated callers
// see nothing.
func (s *Server) visibleTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	id, err := s.gw.Authenticate(ctx, auth.CredentialFromContext(ctx))
	if err != nil {
		s.logger.Debug(ctx, "mcp tool listing denied", observe.F("kind", string(gateway.KindOf(err))))
		return nil
	}
	if s.gw.Authorize(ctx, auth.ToolList(id)) != nil {
		return nil
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if s.gw.Authorize(ctx, auth.ToolCall(id, t.Name)) == nil {
			out = append(out, t)
		}
	}
	return out
}
