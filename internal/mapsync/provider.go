package mapsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/logging"
)

// Capability names a provider sub-library.
type Capability string

const (
	CapabilityMaps   Capability = "maps"
	CapabilityMarker Capability = "marker"
	CapabilityPlaces Capability = "places"
)

// ErrCapabilityUnavailable is returned for a capability nobody registered.
var ErrCapabilityUnavailable = errors.New("capability not registered")

// Handle is a loaded capability. Its concrete type depends on the capability:
// MapsLibrary for maps, MarkerLibrary for marker.
type Handle any

// Loader resolves one capability.
type Loader func(ctx context.Context) (Handle, error)

// Provider loads capabilities.
type Provider interface {
	Load(ctx context.Context, c Capability) (Handle, error)
}

// Registry is a Provider that resolves each capability once and caches the
// handle. Failed loads are not cached and are not retried by the registry.
type Registry struct {
	mu      sync.Mutex
	loaders map[Capability]Loader
	handles map[Capability]Handle
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		loaders: make(map[Capability]Loader),
		handles: make(map[Capability]Handle),
		logger:  logger.With("component", "mapsync.registry"),
	}
}

// Register installs the loader for c, dropping any cached handle.
func (r *Registry) Register(c Capability, loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[c] = loader
	delete(r.handles, c)
}

// Load returns the cached handle for c or resolves it. Errors are
// apperr.ProviderLoad and fatal to the caller's operation.
func (r *Registry) Load(ctx context.Context, c Capability) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[c]; ok {
		return h, nil
	}

	loader, ok := r.loaders[c]
	if !ok {
		return nil, apperr.ProviderLoad(string(c), fmt.Errorf("%w: %s", ErrCapabilityUnavailable, c))
	}

	h, err := loader(ctx)
	if err != nil {
		r.logger.Error("capability load failed", "capability", c, "error", err)
		return nil, apperr.ProviderLoad(string(c), err)
	}
	if h == nil {
		return nil, apperr.ProviderLoad(string(c), fmt.Errorf("loader for %s returned no handle", c))
	}

	r.handles[c] = h
	r.logger.Debug("capability loaded", "capability", c)
	return h, nil
}

// LoadAs loads c from p and asserts the handle's type.
func LoadAs[T any](ctx context.Context, p Provider, c Capability) (T, error) {
	var zero T
	h, err := p.Load(ctx, c)
	if err != nil {
		return zero, err
	}
	v, ok := h.(T)
	if !ok {
		return zero, apperr.ProviderLoad(string(c), fmt.Errorf("unexpected handle type %T", h))
	}
	return v, nil
}
