package catalog

import (
	"context"
	"encoding/json"
	"regexp"
	"slices"
	"time"
)

// Handler executes a tool with bound arguments. It is an opaque
// collaborator; the catalog never inspects it.
type Handler func(ctx context.Context, args Args) (any, error)

// Definition is what callers register.
type Definition struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler

	// CacheTTL, when positive, allows results to be cached per caller and
	// argument set.
	CacheTTL time.Duration

	Tags []string
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Tool is a registered, immutable tool.
type Tool struct {
	name        string
	description string
	params      []Param
	handler     Handler
	cacheTTL    time.Duration
	tags        []string
	schemaJSON  json.RawMessage
}

func newTool(def Definition) (*Tool, error) {
	if !toolNamePattern.MatchString(def.Name) {
		return nil, defErr(def.Name, "name must match %s", toolNamePattern)
	}
	if def.Handler == nil {
		return nil, defErr(def.Name, "handler is required")
	}
	if def.CacheTTL < 0 {
		return nil, defErr(def.Name, "cache TTL must not be negative")
	}

	seen := make(map[string]struct{}, len(def.Params))
	params := make([]Param, 0, len(def.Params))
	for _, p := range def.Params {
		if err := p.validate(def.Name); err != nil {
			return nil, err
		}
		if _, dup := seen[p.Name]; dup {
			return nil, defErr(def.Name, "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		params = append(params, p.clone())
	}

	t := &Tool{
		name:        def.Name,
		description: def.Description,
		params:      params,
		handler:     def.Handler,
		cacheTTL:    def.CacheTTL,
		tags:        slices.Clone(def.Tags),
	}
	raw, err := json.Marshal(buildSchema(params))
	if err != nil {
		return nil, defErr(def.Name, "render schema: %v", err)
	}
	t.schemaJSON = raw
	return t, nil
}

func (t *Tool) Name() string            { return t.name }
func (t *Tool) Description() string     { return t.description }
func (t *Tool) CacheTTL() time.Duration { return t.cacheTTL }
func (t *Tool) Tags() []string          { return slices.Clone(t.tags) }

// Params returns copies of the declared parameters.
func (t *Tool) Params() []Param {
	out := make([]Param, len(t.params))
	for i, p := range t.params {
		out[i] = p.clone()
	}
	return out
}

// InputSchemaJSON returns the rendered JSON schema of the arguments object.
func (t *Tool) InputSchemaJSON() json.RawMessage {
	return slices.Clone(t.schemaJSON)
}

// Info returns the handler-free description of the tool.
func (t *Tool) Info() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.InputSchemaJSON(),
		Params:      t.Params(),
		Tags:        t.Tags(),
	}
}

// Bind validates raw arguments against the declared parameters.
//
// Required parameters must be present and non-null. Values are coerced to
// the declared type, defaults fill absent optional parameters, and bounds
// are applied per OutOfRange. Undeclared arguments are ignored. The first
// failing parameter, in declaration order, is reported as *ArgumentError.
func (t *Tool) Bind(raw map[string]any) (Args, error) {
	values := make(map[string]Value, len(t.params))
	for _, p := range t.params {
		in, present := raw[p.Name]
		var v Value
		if present {
			parsed, err := FromAny(in)
			if err != nil {
				return Args{}, argErr(p.Name, "%v", err)
			}
			v = parsed
		}
		if v.IsNull() {
			if p.Required {
				return Args{}, argErr(p.Name, "is required")
			}
			if p.Default != nil {
				values[p.Name] = *p.Default
			}
			continue
		}
		coerced, err := p.coerce(v)
		if err != nil {
			return Args{}, err
		}
		values[p.Name] = coerced
	}
	return Args{values: values}, nil
}

// Call runs the handler with already bound arguments.
func (t *Tool) Call(ctx context.Context, args Args) (any, error) {
	return t.handler(ctx, args)
}

// ToolInfo is the listing view of a tool. It carries no handler.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Params      []Param         `json:"-"`
	Tags        []string        `json:"tags,omitempty"`
}
