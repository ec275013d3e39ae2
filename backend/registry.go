package backend

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Backend names accepted by Get and Parse.
const (
	NameVulkan   = "vulkan"
	NameMetal    = "metal"
	NameDX12     = "dx12"
	NameGL       = "gl"
	NameSoftware = "software"
)

// Factory creates a HAL backend.
type Factory func() (hal.Backend, error)

// registry holds backends registered by name on top of the HAL registry.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{NameVulkan, NameMetal, NameDX12, NameGL, NameSoftware}
)

// Register registers a backend factory with the given name.
// Names registered here take precedence over the HAL registry, which lets
// tests and embedders inject a specific hal.Backend (for example noop.API{}).
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[strings.ToLower(name)] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, strings.ToLower(name))
}

// Parse maps a backend name to its HAL variant.
// "software", "noop" and "empty" all map to gputypes.BackendEmpty, which is
// the variant both the software rasterizer and the noop device register as.
func Parse(name string) (gputypes.Backend, error) {
	switch strings.ToLower(name) {
	case NameVulkan:
		return gputypes.BackendVulkan, nil
	case NameMetal:
		return gputypes.BackendMetal, nil
	case NameDX12, "d3d12":
		return gputypes.BackendDX12, nil
	case NameGL, "gles", "opengl":
		return gputypes.BackendGL, nil
	case NameSoftware, "noop", "empty":
		return gputypes.BackendEmpty, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Name returns the canonical name of a HAL variant.
func Name(v gputypes.Backend) string {
	switch v {
	case gputypes.BackendVulkan:
		return NameVulkan
	case gputypes.BackendMetal:
		return NameMetal
	case gputypes.BackendDX12:
		return NameDX12
	case gputypes.BackendGL:
		return NameGL
	case gputypes.BackendEmpty:
		return NameSoftware
	default:
		return strings.ToLower(v.String())
	}
}

// Available returns the sorted names of every backend that Get can return:
// names registered here plus variants present in the HAL registry.
func Available() []string {
	registryMu.RLock()
	names := make([]string, 0, len(factories)+len(backendPriority))
	for name := range factories {
		names = append(names, name)
	}
	registryMu.RUnlock()

	for _, v := range hal.AvailableBackends() {
		names = append(names, Name(v))
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// IsRegistered checks if a backend with the given name is available.
func IsRegistered(name string) bool {
	return slices.Contains(Available(), strings.ToLower(name))
}

// Get returns the backend registered under name.
// Returns ErrBackendNotAvailable if neither this registry nor the HAL
// registry provides it.
func Get(name string) (hal.Backend, error) {
	name = strings.ToLower(name)

	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if ok {
		b, err := factory()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
		}
		return b, nil
	}

	variant, err := Parse(name)
	if err != nil {
		return nil, err
	}
	if b, ok := hal.GetBackend(variant); ok {
		return b, nil
	}
	b, err := hal.CreateBackend(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
	}
	hal.RegisterBackend(b)
	return b, nil
}

// Default returns the best available backend based on priority.
// Priority order: vulkan > metal > dx12 > gl > software.
// Names registered through Register but absent from the priority list are
// tried last, in name order.
func Default() (hal.Backend, error) {
	for _, name := range backendPriority {
		if b, err := Get(name); err == nil {
			return b, nil
		}
	}

	registryMu.RLock()
	extra := make([]string, 0, len(factories))
	for name := range factories {
		if !slices.Contains(backendPriority, name) {
			extra = append(extra, name)
		}
	}
	registryMu.RUnlock()
	slices.Sort(extra)

	for _, name := range extra {
		if b, err := Get(name); err == nil {
			return b, nil
		}
	}
	return nil, ErrBackendNotAvailable
}

// Probe reports metadata about the named backend without opening a device.
func Probe(name string) (*hal.BackendInfo, error) {
	b, err := Get(name)
	if err != nil {
		return nil, err
	}
	return &hal.BackendInfo{
		Variant: b.Variant(),
		Name:    Name(b.Variant()),
	}, nil
}
