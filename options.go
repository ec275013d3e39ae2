package rhi

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ContextOption configures a Context during creation.
//
// Example:
//
//	// Best available backend, default limits
//	ctx, err := rhi.NewContext()
//
//	// Explicit backend with validation layers
//	ctx, err := rhi.NewContext(rhi.WithBackend("vulkan"), rhi.WithDebug(true))
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	config     Config
	halBackend hal.Backend
	limits     *gputypes.Limits
	label      string
}

// defaultOptions returns the default context options.
func defaultOptions() contextOptions {
	return contextOptions{
		config: DefaultConfig(),
		label:  "rhi-device",
	}
}

// WithConfig replaces the whole configuration, typically one returned by
// LoadConfig. Options applied after it override individual fields.
func WithConfig(cfg Config) ContextOption {
	return func(o *contextOptions) {
		cfg.applyDefaults()
		o.config = cfg
	}
}

// WithBackend selects a backend by name (see package backend).
func WithBackend(name string) ContextOption {
	return func(o *contextOptions) {
		o.config.Device.Backend = name
	}
}

// WithHALBackend uses the given HAL backend directly, bypassing name
// lookup. This is how tests run on the noop device:
//
//	ctx, err := rhi.NewContext(rhi.WithHALBackend(noop.API{}))
func WithHALBackend(b hal.Backend) ContextOption {
	return func(o *contextOptions) {
		o.halBackend = b
	}
}

// WithDebug enables HAL debug and validation layers.
func WithDebug(enabled bool) ContextOption {
	return func(o *contextOptions) {
		o.config.Device.Debug = enabled
	}
}

// WithRayTracing makes NewContext fail with ErrRayTracingUnsupported when
// the device cannot build acceleration structures.
func WithRayTracing(required bool) ContextOption {
	return func(o *contextOptions) {
		o.config.Device.RayTracing = required
	}
}

// WithAdapter selects the adapter by enumeration index.
func WithAdapter(index int) ContextOption {
	return func(o *contextOptions) {
		o.config.Device.Adapter = index
	}
}

// WithLimits requests device limits. Defaults to the adapter's limits.
func WithLimits(limits gputypes.Limits) ContextOption {
	return func(o *contextOptions) {
		o.limits = &limits
	}
}

// WithLabel sets the debug label used for the device's own objects.
func WithLabel(label string) ContextOption {
	return func(o *contextOptions) {
		o.label = label
	}
}
