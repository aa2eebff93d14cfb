// Package secrets resolves credential references found in configuration.
// A value of the form "<scheme>:<key>" is looked up in the provider registered
// for scheme; any other value, including URLs such as postgres DSNs, is
// returned unchanged.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrNotFound is returned when a referenced secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Provider is the interface for secret backends.
type Provider interface {
	// Get retrieves a secret by key.
	Get(ctx context.Context, key string) (string, error)
	// Name returns the scheme the provider is registered under.
	Name() string
}

// Manager resolves references against its providers and caches results.
type Manager struct {
	providers map[string]Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager registers providers by name.
func NewManager(providers ...Provider) *Manager {
	m := &Manager{
		providers: make(map[string]Provider, len(providers)),
		cache:     make(map[string]string),
	}
	for _, p := range providers {
		m.providers[p.Name()] = p
	}
	return m
}

// IsReference reports whether value names a registered provider.
func (m *Manager) IsReference(value string) bool {
	scheme, _, ok := strings.Cut(value, ":")
	if !ok {
		return false
	}
	_, known := m.providers[scheme]
	return known
}

// Resolve returns the secret value references point to and plain values as is.
func (m *Manager) Resolve(ctx context.Context, value string) (string, error) {
	scheme, key, ok := strings.Cut(value, ":")
	if !ok {
		return value, nil
	}
	p, known := m.providers[scheme]
	if !known {
		return value, nil
	}

	m.mu.RLock()
	if v, hit := m.cache[value]; hit {
		m.mu.RUnlock()
		return v, nil
	}
	m.mu.RUnlock()

	v, err := p.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%s secret %q: %w", scheme, key, err)
	}
	m.mu.Lock()
	m.cache[value] = v
	m.mu.Unlock()
	return v, nil
}

// ResolveAll resolves each target in place and stops at the first failure.
func (m *Manager) ResolveAll(ctx context.Context, targets ...*string) error {
	for _, t := range targets {
		if t == nil || *t == "" {
			continue
		}
		v, err := m.Resolve(ctx, *t)
		if err != nil {
			return err
		}
		*t = v
	}
	return nil
}

// ClearCache drops cached values so rotated secrets are fetched again.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]string)
	m.mu.Unlock()
}

// EnvProvider reads "env:NAME" references.
type EnvProvider struct{}

func (EnvProvider) Name() string { return "env" }

func (EnvProvider) Get(_ context.Context, key string) (string, error) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, nil
	}
	return "", ErrNotFound
}
