package catalog

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Catalog is the tool registry.
//
// Contract:
//   - Concurrency: Register is serialized; after Seal, reads take no lock.
//   - Errors: registration problems are configuration errors reported at
//     startup; Resolve reports ErrUnknownTool.
type Catalog struct {
	mu     sync.Mutex
	sealed atomic.Bool
	tools  []*Tool
	byName map[string]*Tool
}

// New creates an empty, unsealed catalog.
func New() *Catalog {
	return &Catalog{byName: make(map[string]*Tool)}
}

// Register validates def and adds it to the catalog.
func (c *Catalog) Register(def Definition) error {
	t, err := newTool(def)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrSealed, def.Name)
	}
	if _, dup := c.byName[t.name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, t.name)
	}
	c.tools = append(c.tools, t)
	c.byName[t.name] = t
	return nil
}

// MustRegister is Register that panics on error.
func (c *Catalog) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			panic(err)
		}
	}
}

// Seal makes the catalog read-only. Sealing twice is a no-op.
func (c *Catalog) Seal() {
	c.mu.Lock()
	c.sealed.Store(true)
	c.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (c *Catalog) Sealed() bool { return c.sealed.Load() }

// List returns tool metadata in registration order.
func (c *Catalog) List() []ToolInfo {
	tools := c.snapshot()
	out := make([]ToolInfo, len(tools))
	for i, t := range tools {
		out[i] = t.Info()
	}
	return out
}

// Names returns tool names in registration order.
func (c *Catalog) Names() []string {
	tools := c.snapshot()
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.name
	}
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int { return len(c.snapshot()) }

// Resolve returns the tool registered under name.
func (c *Catalog) Resolve(name string) (*Tool, error) {
	var t *Tool
	if c.sealed.Load() {
		t = c.byName[name]
	} else {
		c.mu.Lock()
		t = c.byName[name]
		c.mu.Unlock()
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

func (c *Catalog) snapshot() []*Tool {
	if c.sealed.Load() {
		return c.tools
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Tool(nil), c.tools...)
}
