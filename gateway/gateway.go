package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/cache"
	"github.com/jonwraymond/toolgate/catalog"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
)

// ErrMisconfigured indicates New received an incomplete Config.
var ErrMisconfigured = errors.New("gateway: catalog and authenticator are required")

// DefaultHandlerTimeout bounds a handler when no Executor is supplied.
const DefaultHandlerTimeout = 30 * time.Second

// Config wires a Gateway.
type Config struct {
	// Catalog holds the callable tools. Required. Sealed by New.
	Catalog *catalog.Catalog

	// Authenticator validates inbound credentials. Required.
	Authenticator auth.Authenticator

	// Authorizer checks permissions.
	// Default: auth.NewPermissionAuthorizer(nil)
	Authorizer auth.Authorizer

	// Executor guards handler execution, keyed by principal.
	// Default: an executor with only a DefaultHandlerTimeout timeout
	Executor *resilience.Executor

	// Cache serves results for tools declaring a cache TTL. Optional.
	Cache *cache.Middleware

	// Observer wraps every authenticated invocation with a span, metrics
	// and a log entry. Optional.
	Observer *observe.Middleware

	// Logger receives authentication failures.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Gateway runs authenticated tool invocations.
//
// Contract:
//   - Concurrency: safe for concurrent use; there is no global lock.
//   - Context: cancellation of ctx cancels the handler's context.
//   - Errors: failures are reported in Response.Error, never as panics.
type Gateway struct {
	catalog  *catalog.Catalog
	authn    auth.Authenticator
	authz    auth.Authorizer
	executor *resilience.Executor
	cache    *cache.Middleware
	logger   observe.Logger
	invoke   observe.ExecuteFunc
}

// New creates a Gateway and seals its catalog.
func New(cfg Config) (*Gateway, error) {
	if cfg.Catalog == nil || cfg.Authenticator == nil {
		return nil, ErrMisconfigured
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = auth.NewPermissionAuthorizer(nil)
	}
	if cfg.Executor == nil {
		cfg.Executor = resilience.NewExecutor(resilience.WithTimeout(DefaultHandlerTimeout))
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	cfg.Catalog.Seal()

	g := &Gateway{
		catalog:  cfg.Catalog,
		authn:    cfg.Authenticator,
		authz:    cfg.Authorizer,
		executor: cfg.Executor,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
	}
	g.invoke = g.execute
	if cfg.Observer != nil {
		g.invoke = cfg.Observer.Wrap(g.execute)
	}
	return g, nil
}

// Classify maps an invocation error to its outcome label. It is the
// classifier to pass to observe.NewMiddleware.
func Classify(err error) string {
	if err == nil {
		return observe.OutcomeOK
	}
	return string(KindOf(err))
}

// Catalog returns the sealed catalog.
func (g *Gateway) Catalog() *catalog.Catalog { return g.catalog }

// Authenticate validates the credential in req. Failures are *Error with
// KindUnauthenticated, KindForbidden, KindTimeout or KindInternal.
func (g *Gateway) Authenticate(ctx context.Context, req *auth.AuthRequest) (*auth.Identity, error) {
	if req == nil {
		req = &auth.AuthRequest{}
	}
	result, err := g.authn.Authenticate(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newError(KindTimeout, ctxErr, "credential validation canceled")
		}
		g.logger.Error(ctx, "credential validation failed", observe.F("error", err))
		return nil, newError(KindInternal, err, "credential validation failed")
	}
	if !result.Authenticated {
		gwErr := authError(result.Error)
		g.logger.Debug(ctx, "authentication rejected",
			observe.F("method", result.Method),
			observe.F("kind", string(gwErr.Kind)),
		)
		return nil, gwErr
	}
	if result.Identity.IsExpired() {
		return nil, authError(auth.ErrTokenExpired)
	}
	return result.Identity, nil
}

// Authorize checks req against the configured Authorizer.
func (g *Gateway) Authorize(ctx context.Context, req *auth.AuthzRequest) error {
	if err := g.authz.Authorize(ctx, req); err != nil {
		return newError(KindForbidden, err, "permission %s required", req.Permission())
	}
	return nil
}

// Invoke authenticates req.Credential and then runs InvokeAs.
func (g *Gateway) Invoke(ctx context.Context, req Request) Response {
	id, err := g.Authenticate(ctx, req.Credential)
	if err != nil {
		return failure(err)
	}
	return g.InvokeAs(ctx, id, req)
}

// InvokeAs runs req for an already authenticated identity. req.Credential
// is ignored.
func (g *Gateway) InvokeAs(ctx context.Context, id *auth.Identity, req Request) Response {
	if id == nil {
		return failure(authError(auth.ErrMissingCredentials))
	}
	meta := observe.InvocationMeta{Tool: req.Tool, Principal: id.Principal, Transport: req.Transport}
	out, err := g.invoke(auth.WithIdentity(ctx, id), meta, req.Arguments)
	if err != nil {
		return failure(err)
	}
	return out.(Response)
}

// ListTools authenticates credential and returns the catalog listing for
// callers holding tool:*:list.
func (g *Gateway) ListTools(ctx context.Context, credential *auth.AuthRequest) ([]catalog.ToolInfo, error) {
	id, err := g.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	if err := g.Authorize(ctx, auth.ToolList(id)); err != nil {
		return nil, err
	}
	return g.catalog.List(), nil
}

// execute runs steps 2 to 6 for the identity stored in ctx.
func (g *Gateway) execute(ctx context.Context, meta observe.InvocationMeta, input any) (any, error) {
	id := auth.IdentityFromContext(ctx)
	if err := g.Authorize(ctx, auth.ToolCall(id, meta.Tool)); err != nil {
		return nil, err
	}
	tool, err := g.catalog.Resolve(meta.Tool)
	if err != nil {
		return nil, err
	}
	raw, _ := input.(map[string]any)
	args, err := tool.Bind(raw)
	if err != nil {
		return nil, err
	}

	run := func(ctx context.Context) ([]byte, error) {
		return g.call(ctx, id.Principal, tool, args)
	}
	if g.cache == nil {
		out, err := run(ctx)
		if err != nil {
			return nil, err
		}
		return success(string(out), false), nil
	}
	out, hit, err := g.cache.Execute(ctx, cache.Invocation{
		Tool:      tool.Name(),
		Principal: id.Principal,
		Args:      args.Map(),
		Tags:      tool.Tags(),
		TTL:       tool.CacheTTL(),
	}, run)
	if err != nil {
		return nil, err
	}
	return success(string(out), hit), nil
}

// call invokes the handler under the executor and serializes its result.
func (g *Gateway) call(ctx context.Context, principal string, tool *catalog.Tool, args catalog.Args) ([]byte, error) {
	var out []byte
	err := g.executor.Execute(ctx, principal, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &resilience.PanicError{Value: r}
			}
		}()
		result, err := tool.Call(ctx, args)
		if err != nil {
			return err
		}
		out, err = render(result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
