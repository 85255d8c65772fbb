package secret

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

var osLookup LookupFunc = os.LookupEnv

// ProviderFactory creates a Provider from its configuration section.
type ProviderFactory func(cfg map[string]any) (Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// NewDefaultRegistry returns a registry holding the env and file providers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("env", func(map[string]any) (Provider, error) {
		return NewEnvProvider(nil), nil
	})
	_ = r.Register("file", func(cfg map[string]any) (Provider, error) {
		var fc FileProviderConfig
		if err := mapstructure.Decode(cfg, &fc); err != nil {
			return nil, fmt.Errorf("secret: file provider config: %w", err)
		}
		return NewFileProvider(fc), nil
	})
	return r
}

// Register adds a provider factory.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return errors.New("secret: invalid provider registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("secret: provider %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a provider by name.
func (r *Registry) Create(name string, cfg map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return factory(cfg)
}

// List returns registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewResolver creates every registered provider, passing each its section
// of configs, and returns a Resolver over them.
func (r *Registry) NewResolver(strict bool, configs map[string]map[string]any) (*Resolver, error) {
	for name := range configs {
		if !slices.Contains(r.List(), name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
		}
	}
	res := NewResolver(strict)
	for _, name := range r.List() {
		p, err := r.Create(name, configs[name])
		if err != nil {
			_ = res.Close()
			return nil, err
		}
		res.Register(p)
	}
	return res, nil
}
