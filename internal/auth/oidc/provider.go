package oidc

import (
	"fmt"
	"sort"
	"sync"

	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/domain/entities"
)

// Adapter normalizes one identity provider's claim shape into an entities.Profile.
// Each provider family (plain OIDC, embedded userinfo, passport-style) implements this interface.
type Adapter interface {
	// Name returns the provider tag stored on User.Provider
	Name() string

	// Normalize converts the raw JSON claim document into a profile.
	// accessToken and refreshToken are only kept when the adapter captures tokens.
	// Returns an error wrapping entities.ErrInvalidProfile when the claims lack an email or subject.
	Normalize(raw []byte, accessToken, refreshToken string) (*entities.Profile, error)
}

// Options are the per-deployment settings every adapter receives
type Options struct {
	// Name is the provider tag, e.g. "okta"
	Name string

	// CaptureTokens keeps provider access/refresh tokens on the profile
	CaptureTokens bool
}

// Factory builds an adapter from options
type Factory func(Options) Adapter

// Registry maps adapter type names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds an adapter type to the registry
func (r *Registry) Register(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Get builds the adapter registered under typeName
func (r *Registry) Get(typeName string, opts Options) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", typeName)
	}
	return factory(opts), nil
}

// List returns all registered type names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global adapter registry
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register(TypeStandard, func(o Options) Adapter { return NewStandardAdapter(o) })
	DefaultRegistry.Register(TypeEmbedded, func(o Options) Adapter { return NewEmbeddedAdapter(o) })
	DefaultRegistry.Register(TypePassport, func(o Options) Adapter { return NewPassportAdapter(o) })
}

// NewAdapter builds the adapter selected by the provider configuration
func NewAdapter(cfg config.ProviderConfig) (Adapter, error) {
	return DefaultRegistry.Get(cfg.Type, Options{
		Name:          cfg.Name,
		CaptureTokens: cfg.CaptureTokens,
	})
}
