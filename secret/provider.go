package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves a reference as an environment variable name.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve returns the variable's value.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, ref)
	}
	return v, nil
}

// Close does nothing.
func (EnvProvider) Close() error { return nil }

// FileProvider resolves a reference as a file path under Root. Trailing
// newlines are trimmed.
type FileProvider struct {
	Root string
}

// Name returns "file".
func (FileProvider) Name() string { return "file" }

// Resolve reads the referenced file. References may not leave Root.
func (p FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	root := p.Root
	if root == "" {
		root = "."
	}
	rel := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes root", ErrInvalidRef, ref)
	}
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		return "", fmt.Errorf("secret: read %q: %w", ref, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Close does nothing.
func (FileProvider) Close() error { return nil }

var (
	_ Provider = EnvProvider{}
	_ Provider = FileProvider{}
)
