package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
	"github.com/Rammina/codepipeline-inplace-quicksetup/providers/aws"
	"github.com/Rammina/codepipeline-inplace-quicksetup/providers/null"
)

// Registry manages the lifecycle of providers.
type Registry struct {
	mu        sync.RWMutex
	config    providersdk.Config
	providers map[string]providersdk.Provider
}

func NewRegistry(cfg providersdk.Config) *Registry {
	return &Registry{
		config:    cfg,
		providers: make(map[string]providersdk.Provider),
	}
}

// LoadProvider initializes and registers a built-in provider.
func (r *Registry) LoadProvider(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p providersdk.Provider
	switch name {
	case "null", "":
		p = null.New()
	case "aws":
		p = aws.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	if err := p.Configure(ctx, r.config); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}
	r.providers[name] = p
	return nil
}

// Register installs an already configured provider under name, replacing any
// existing one.
func (r *Registry) Register(name string, p providersdk.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (providersdk.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = "null"
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}

// Loaded lists registered provider names in sorted order.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
