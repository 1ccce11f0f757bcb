package secret

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const refPrefix = "secretref:"

// Resolver resolves secret references using registered providers.
//
// Values are first expanded with ExpandEnvStrict; a value that is a whole
// reference is replaced by the secret, and inline references are replaced
// in place.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a resolver. In strict mode an empty secret is an
// error.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds provider, replacing any provider with the same name.
func (r *Resolver) Register(provider Provider) {
	if provider == nil {
		return
	}
	r.providers[provider.Name()] = provider
}

// ResolveValue resolves environment variables and secret refs in value.
// A nil resolver only expands the environment.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if r == nil || !strings.Contains(expanded, refPrefix) {
		return expanded, nil
	}
	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.resolveSingle(ctx, provider, ref)
	}
	return r.resolveInline(ctx, expanded)
}

// ResolveFields resolves each non-empty target in place. Errors name the
// field by its key in fields.
func (r *Resolver) ResolveFields(ctx context.Context, fields map[string]*string) error {
	var errs []error
	for name, target := range fields {
		if target == nil || *target == "" {
			continue
		}
		v, err := r.ResolveValue(ctx, *target)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", name, err))
			continue
		}
		*target = v
	}
	return errors.Join(errs...)
}

// Close closes every provider.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseSecretRef parses a full secret reference of the form:
//
//	secretref:<provider>:<ref>
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" || strings.ContainsAny(ref, " \t\n") {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) resolveSingle(ctx context.Context, name string, ref string) (string, error) {
	provider, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	resolved, err := provider.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && resolved == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrEmptySecret, name, ref)
	}
	return resolved, nil
}

var inlineRefPattern = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

func (r *Resolver) resolveInline(ctx context.Context, value string) (string, error) {
	matches := inlineRefPattern.FindAllStringSubmatchIndex(value, -1)

	out := value
	// Replace from the end so earlier indexes stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		resolved, err := r.resolveSingle(ctx, out[m[2]:m[3]], out[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + resolved + out[m[1]:]
	}
	return out, nil
}
