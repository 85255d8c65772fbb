package secret

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Provider resolves secrets by reference string.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: a missing value wraps ErrNotFound; messages never include the
//     secret value.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves references as environment variable names.
type EnvProvider struct {
	lookup LookupFunc
}

// NewEnvProvider creates an env provider. A nil lookup reads the process
// environment.
func NewEnvProvider(lookup LookupFunc) *EnvProvider {
	if lookup == nil {
		lookup = osLookup
	}
	return &EnvProvider{lookup: lookup}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the value of the variable named ref.
func (p *EnvProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %q", ErrNotFound, ref)
	}
	return v, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error { return nil }

// FileProviderConfig configures FileProvider.
type FileProviderConfig struct {
	// Root confines references to this directory. Empty allows any path.
	Root string `mapstructure:"root"`

	// Fs is the filesystem to read.
	// Default: the OS filesystem
	Fs afero.Fs `mapstructure:"-"`
}

// FileProvider resolves references as file paths. Trailing newlines are
// trimmed from the content.
type FileProvider struct {
	root string
	fs   afero.Fs
}

// NewFileProvider creates a file provider.
func NewFileProvider(cfg FileProviderConfig) *FileProvider {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	root := cfg.Root
	if root != "" {
		root = filepath.Clean(root)
	}
	return &FileProvider{root: root, fs: cfg.Fs}
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file at ref. With a root configured, relative refs are
// joined to it and paths escaping it are rejected.
func (p *FileProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := p.path(ref)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		if exists, _ := afero.Exists(p.fs, path); !exists {
			return "", fmt.Errorf("%w: file %q", ErrNotFound, ref)
		}
		return "", fmt.Errorf("secret: read file %q: %w", ref, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Close is a no-op.
func (p *FileProvider) Close() error { return nil }

func (p *FileProvider) path(ref string) (string, error) {
	if p.root == "" {
		return filepath.Clean(ref), nil
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(p.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %s", ErrInvalidRef, ref, p.root)
	}
	return path, nil
}

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
