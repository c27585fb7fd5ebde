package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
)

// Registry maps transport names to their dialers and capabilities.
// Transport packages register themselves from init.
type Registry struct {
	mu           sync.RWMutex
	dialers      map[string]Dialer
	capabilities map[string]Capabilities
}

// DefaultRegistry is the global transport registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		dialers:      make(map[string]Dialer),
		capabilities: make(map[string]Capabilities),
	}
}

// Register adds a dialer. The name must match Config.GetTransport values.
func (r *Registry) Register(name string, dialer Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialers[name] = dialer
}

// RegisterWithCapabilities adds a dialer and its capabilities.
func (r *Registry) RegisterWithCapabilities(name string, dialer Dialer, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialers[name] = dialer
	r.capabilities[name] = caps
}

// GetCapabilities returns the capabilities of a registered transport, or a
// zero value carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Dial opens a channel with the dialer registered for cfg.GetTransport().
func (r *Registry) Dial(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Channel, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetTransport()

	r.mu.RLock()
	dialer, ok := r.dialers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", errspkg.ErrUnknownTransport, name, r.Names())
	}
	if dialer == nil {
		return nil, errspkg.ErrDialerRequired
	}

	return dialer(ctx, cfg, logger)
}

// Names returns the registered transport names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.dialers))
	for name := range r.dialers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a transport is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.dialers[name]
	return ok
}

// Register adds a dialer to the default registry.
func Register(name string, dialer Dialer) {
	DefaultRegistry.Register(name, dialer)
}

// RegisterWithCapabilities adds a dialer and its capabilities to the default registry.
func RegisterWithCapabilities(name string, dialer Dialer, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, dialer, caps)
}

// Dial opens a channel using the default registry.
func Dial(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Channel, error) {
	return DefaultRegistry.Dial(ctx, cfg, logger)
}
