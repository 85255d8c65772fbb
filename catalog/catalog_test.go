package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopHandler(context.Context, Args) (any, error) { return nil, nil }

func forecastDef() Definition {
	return Definition{
		Name:        "forecast",
		Description: "Daily forecast for a city",
		Params: []Param{
			{Name: "city", Type: TypeString, Required: true, Description: "City name"},
			{Name: "days", Type: TypeInteger, Min: Bound(1), Max: Bound(7), OutOfRange: Clamp, Default: DefaultValue(Int(3))},
			{Name: "units", Type: TypeEnum, EnumValues: []string{"metric", "imperial"}},
			{Name: "fields", Type: TypeArray, Items: TypeString},
			{Name: "verbose", Type: TypeBoolean},
		},
		Handler: nopHandler,
	}
}

func TestCatalog_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{name: "empty name", def: Definition{Handler: nopHandler}},
		{name: "name with spaces", def: Definition{Name: "get weather", Handler: nopHandler}},
		{name: "nil handler", def: Definition{Name: "x"}},
		{name: "negative ttl", def: Definition{Name: "x", Handler: nopHandler, CacheTTL: -1}},
		{name: "unnamed param", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Type: TypeString}}}},
		{name: "unknown type", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: "date"}}}},
		{name: "duplicate param", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeString}, {Name: "a", Type: TypeNumber}}}},
		{name: "enum without values", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeEnum}}}},
		{name: "enum values on string", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeString, EnumValues: []string{"b"}}}}},
		{name: "bounds on string", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeString, Min: Bound(1)}}}},
		{name: "min above max", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeInteger, Min: Bound(5), Max: Bound(1)}}}},
		{name: "array of arrays", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeArray, Items: TypeArray}}}},
		{name: "required with default", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeString, Required: true, Default: DefaultValue(String("b"))}}}},
		{name: "default wrong type", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeInteger, Default: DefaultValue(String("many"))}}}},
		{name: "default out of range", def: Definition{Name: "x", Handler: nopHandler, Params: []Param{{Name: "a", Type: TypeInteger, Max: Bound(3), OutOfRange: Clamp, Default: DefaultValue(Int(9))}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Register(tt.def)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestCatalog_DuplicateAndSeal(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(forecastDef()))
	assert.ErrorIs(t, c.Register(forecastDef()), ErrDuplicateTool)

	c.Seal()
	c.Seal()
	assert.True(t, c.Sealed())
	err := c.Register(Definition{Name: "late", Handler: nopHandler})
	assert.ErrorIs(t, err, ErrSealed)
	assert.Equal(t, 1, c.Len())
}

func TestCatalog_MustRegisterPanics(t *testing.T) {
	c := New()
	c.MustRegister(forecastDef())
	assert.Panics(t, func() { c.MustRegister(forecastDef()) })
}

func TestCatalog_Resolve(t *testing.T) {
	c := New()
	c.MustRegister(forecastDef())
	c.Seal()

	tool, err := c.Resolve("forecast")
	require.NoError(t, err)
	assert.Equal(t, "forecast", tool.Name())

	_, err = c.Resolve("does_not_exist")
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Contains(t, err.Error(), `"does_not_exist"`)
}

func TestCatalog_ListOrderAndShape(t *testing.T) {
	c := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		c.MustRegister(Definition{Name: name, Description: name + " tool", Handler: nopHandler})
	}
	c.Seal()

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, c.Names())

	raw, err := json.Marshal(c.List())
	require.NoError(t, err)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed, 3)
	for _, entry := range listed {
		keys := make([]string, 0, len(entry))
		for k := range entry {
			keys = append(keys, k)
		}
		assert.ElementsMatch(t, []string{"name", "description", "inputSchema"}, keys)
	}
}

// schemaView is the subset of the rendered schema the round trip compares.
type schemaView struct {
	Type       string `json:"type"`
	Properties map[string]struct {
		Type    string   `json:"type"`
		Enum    []string `json:"enum"`
		Minimum *float64 `json:"minimum"`
		Maximum *float64 `json:"maximum"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func TestCatalog_SchemaRoundTrip(t *testing.T) {
	c := New()
	c.MustRegister(forecastDef())
	c.Seal()

	info := c.List()[0]
	var got schemaView
	require.NoError(t, json.Unmarshal(info.InputSchema, &got))

	assert.Equal(t, "object", got.Type)
	assert.Equal(t, []string{"city"}, got.Required)

	declared := forecastDef().Params
	require.Len(t, got.Properties, len(declared))
	for _, p := range declared {
		prop, ok := got.Properties[p.Name]
		require.True(t, ok, "missing property %q", p.Name)
		want := string(p.Type)
		if p.Type == TypeEnum {
			want = "string"
			assert.Empty(t, cmp.Diff(p.EnumValues, prop.Enum))
		}
		assert.Equal(t, want, prop.Type, "property %q", p.Name)
	}
	assert.Equal(t, 1.0, *got.Properties["days"].Minimum)
	assert.Equal(t, 7.0, *got.Properties["days"].Maximum)
	assert.Empty(t, cmp.Diff(declared, info.Params, cmp.AllowUnexported(Value{})))
}

func TestCatalog_SchemaValidatesArguments(t *testing.T) {
	c := New()
	c.MustRegister(forecastDef())
	tool, err := c.Resolve("forecast")
	require.NoError(t, err)

	var schema jsonschema.Schema
	require.NoError(t, json.Unmarshal(tool.InputSchemaJSON(), &schema))
	resolved, err := schema.Resolve(nil)
	require.NoError(t, err)

	assert.NoError(t, resolved.Validate(map[string]any{"city": "Oslo", "days": 3.0, "units": "metric"}))
	assert.Error(t, resolved.Validate(map[string]any{"days": 3.0}), "missing required city")
	assert.Error(t, resolved.Validate(map[string]any{"city": "Oslo", "units": "kelvin"}))
}

func TestCatalog_ConcurrentReadsAfterSeal(t *testing.T) {
	c := New()
	c.MustRegister(forecastDef())
	c.Seal()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if _, err := c.Resolve("forecast"); err != nil {
					t.Error(err)
					return
				}
				_ = c.List()
			}
		}()
	}
	wg.Wait()
}

func TestTool_Bind(t *testing.T) {
	c := New()
	c.MustRegister(forecastDef(), Definition{
		Name:    "strict",
		Handler: nopHandler,
		Params: []Param{
			{Name: "days", Type: TypeInteger, Required: true, Min: Bound(1), Max: Bound(7)},
			{Name: "ratio", Type: TypeNumber, Min: Bound(0), Max: Bound(1)},
		},
	})
	forecast, _ := c.Resolve("forecast")
	strict, _ := c.Resolve("strict")

	tests := []struct {
		name      string
		tool      *Tool
		args      map[string]any
		wantParam string
		check     func(t *testing.T, a Args)
	}{
		{
			name: "days above max is clamped",
			tool: forecast,
			args: map[string]any{"city": "Oslo", "days": 100.0},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, int64(7), a.Int("days"))
			},
		},
		{
			name: "days below min is clamped",
			tool: forecast,
			args: map[string]any{"city": "Oslo", "days": -4.0},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, int64(1), a.Int("days"))
			},
		},
		{
			name: "default applied",
			tool: forecast,
			args: map[string]any{"city": "Oslo"},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, int64(3), a.Int("days"))
				assert.False(t, a.Has("units"))
			},
		},
		{
			name: "null optional takes default",
			tool: forecast,
			args: map[string]any{"city": "Oslo", "days": nil},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, int64(3), a.Int("days"))
			},
		},
		{
			name: "numeric string coerced",
			tool: forecast,
			args: map[string]any{"city": "Oslo", "days": " 5 "},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, int64(5), a.Int("days"))
			},
		},
		{
			name: "number coerced to string",
			tool: forecast,
			args: map[string]any{"city": 42.0},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "42", a.String("city"))
			},
		},
		{
			name: "unknown arguments ignored",
			tool: forecast,
			args: map[string]any{"city": "Oslo", "colour": "blue"},
			check: func(t *testing.T, a Args) {
				assert.False(t, a.Has("colour"))
				assert.Equal(t, 2, a.Len())
			},
		},
		{
			name: "array items coerced",
			tool: forecast,
			args: map[string]any{"city": "Oslo", "fields": []any{"temp", 1.0, true}},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, []string{"temp", "1", "true"}, a.Strings("fields"))
			},
		},
		{
			name: "boolean string coerced",
			tool: forecast,
			args: map[string]any{"city": "Oslo", "verbose": "true"},
			check: func(t *testing.T, a Args) {
				assert.True(t, a.Bool("verbose"))
			},
		},
		{name: "missing required", tool: forecast, args: map[string]any{}, wantParam: "city"},
		{name: "null required", tool: forecast, args: map[string]any{"city": nil}, wantParam: "city"},
		{name: "object for string", tool: forecast, args: map[string]any{"city": map[string]any{}}, wantParam: "city"},
		{name: "non-numeric integer", tool: forecast, args: map[string]any{"city": "Oslo", "days": "abc"}, wantParam: "days"},
		{name: "fractional integer", tool: forecast, args: map[string]any{"city": "Oslo", "days": 2.5}, wantParam: "days"},
		{name: "enum mismatch", tool: forecast, args: map[string]any{"city": "Oslo", "units": "kelvin"}, wantParam: "units"},
		{name: "scalar for array", tool: forecast, args: map[string]any{"city": "Oslo", "fields": "temp"}, wantParam: "fields"},
		{name: "bad boolean", tool: forecast, args: map[string]any{"city": "Oslo", "verbose": "maybe"}, wantParam: "verbose"},
		{name: "strict rejects above max", tool: strict, args: map[string]any{"days": 100.0}, wantParam: "days"},
		{name: "strict rejects below min", tool: strict, args: map[string]any{"days": 1.0, "ratio": -0.5}, wantParam: "ratio"},
		{
			name: "strict accepts in range",
			tool: strict,
			args: map[string]any{"days": 7.0, "ratio": "0.25"},
			check: func(t *testing.T, a Args) {
				assert.Equal(t, int64(7), a.Int("days"))
				assert.Equal(t, 0.25, a.Float("ratio"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := tt.tool.Bind(tt.args)
			if tt.wantParam != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidArguments)
				var ae *ArgumentError
				require.True(t, errors.As(err, &ae))
				assert.Equal(t, tt.wantParam, ae.Param)
				return
			}
			require.NoError(t, err)
			tt.check(t, args)
		})
	}
}

func TestTool_CallPassesBoundArgs(t *testing.T) {
	c := New()
	var got int64
	c.MustRegister(Definition{
		Name:   "days",
		Params: []Param{{Name: "days", Type: TypeInteger, Min: Bound(1), Max: Bound(7), OutOfRange: Clamp}},
		Handler: func(_ context.Context, a Args) (any, error) {
			got = a.Int("days")
			return got, nil
		},
	})
	tool, _ := c.Resolve("days")
	args, err := tool.Bind(map[string]any{"days": 100})
	require.NoError(t, err)
	out, err := tool.Call(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
	assert.Equal(t, int64(7), out)
}

func TestTool_ParamsAreCopies(t *testing.T) {
	c := New()
	c.MustRegister(forecastDef())
	tool, _ := c.Resolve("forecast")

	params := tool.Params()
	*params[1].Max = 100
	params[2].EnumValues[0] = "kelvin"

	again := tool.Params()
	assert.Equal(t, 7.0, *again[1].Max)
	assert.Equal(t, "metric", again[2].EnumValues[0])
}
