package rhi

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/wgpu/hal"
)

// Capabilities describes what the opened device can do.
type Capabilities struct {
	Backend  gputypes.Backend
	Adapter  gputypes.AdapterInfo
	Features gputypes.Features
	Limits   gputypes.Limits

	// RayTracing reports acceleration structure and ray-tracing pipeline support.
	RayTracing bool

	// IndirectFirstInstance reports whether indirect draws honor the
	// first-instance argument.
	IndirectFirstInstance bool
}

// Context owns one opened device and everything needed to use it.
//
// A Context is safe for concurrent use. Resources created from it must be
// destroyed before the Context itself.
type Context struct {
	mu sync.Mutex

	label   string
	cfg     Config
	backend hal.Backend

	// instance and adapter are nil for contexts adopted from a provider.
	instance hal.Instance
	adapter  hal.Adapter
	owned    bool

	device hal.Device
	queue  hal.Queue
	rt     RayTracingDevice
	caps   Capabilities

	surfaceFormat gputypes.TextureFormat

	live      atomic.Int64
	factory   *ResourceFactory
	processor *CommandProcessor
	scratch   *TransientBufferPool
	destroyed bool

	// buildMu serializes acceleration structure builds, which share the
	// scratch pool.
	buildMu sync.Mutex
}

// NewContext selects a backend, opens a device on it and returns the context.
//
// Backend resolution order: WithHALBackend, then the configured backend
// name, then backend.Default.
func NewContext(opts ...ContextOption) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	b, err := resolveBackend(o)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	var flags gputypes.InstanceFlags
	if o.config.Device.Debug {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
		Flags:    flags,
	})
	if err != nil {
		return nil, backendError("create instance", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	idx := o.config.Device.Adapter
	if idx >= len(adapters) {
		instance.Destroy()
		return nil, fmt.Errorf("%w: adapter %d of %d", ErrUnsupported, idx, len(adapters))
	}
	exposed := adapters[idx]

	limits := exposed.Capabilities.Limits
	if o.limits != nil {
		limits = *o.limits
	} else if limits.MaxBindGroups == 0 {
		limits = gputypes.DefaultLimits()
	}

	open, err := exposed.Adapter.Open(exposed.Features, limits)
	if err != nil {
		exposed.Adapter.Destroy()
		instance.Destroy()
		return nil, backendError("open device", err)
	}

	ctx := &Context{
		label:    o.label,
		cfg:      o.config,
		backend:  b,
		instance: instance,
		adapter:  exposed.Adapter,
		owned:    true,
		device:   open.Device,
		queue:    open.Queue,
	}
	ctx.setCapabilities(b.Variant(), exposed.Info, exposed.Features, limits)

	if o.config.Device.RayTracing && !ctx.caps.RayTracing {
		ctx.release()
		return nil, fmt.Errorf("new context on %q: %w", exposed.Info.Name, ErrRayTracingUnsupported)
	}

	Logger().Info("rhi: device opened",
		"backend", backend.Name(b.Variant()),
		"adapter", exposed.Info.Name,
		"type", exposed.Info.DeviceType.String(),
		"rayTracing", ctx.caps.RayTracing)
	return ctx, nil
}

func resolveBackend(o contextOptions) (hal.Backend, error) {
	if o.halBackend != nil {
		return o.halBackend, nil
	}
	if name := o.config.Device.Backend; name != "" {
		return backend.Get(name)
	}
	return backend.Default()
}

func (c *Context) setCapabilities(variant gputypes.Backend, info gputypes.AdapterInfo,
	features gputypes.Features, limits gputypes.Limits) {
	c.rt, _ = c.device.(RayTracingDevice)
	c.caps = Capabilities{
		Backend:               variant,
		Adapter:               info,
		Features:              features,
		Limits:                limits,
		RayTracing:            c.rt != nil,
		IndirectFirstInstance: features.Contains(gputypes.FeatureIndirectFirstInstance),
	}
	c.factory = &ResourceFactory{ctx: c}
}

// Factory returns the resource factory of the context.
func (c *Context) Factory() *ResourceFactory { return c.factory }

// Capabilities returns the device capabilities.
func (c *Context) Capabilities() Capabilities { return c.caps }

// SupportsRayTracing reports whether acceleration structures can be built.
func (c *Context) SupportsRayTracing() bool { return c.caps.RayTracing }

// Config returns the configuration the context was created with.
func (c *Context) Config() Config { return c.cfg }

// LiveResources returns the number of resources not yet destroyed.
func (c *Context) LiveResources() int64 { return c.live.Load() }

// CommandProcessor returns the context's command processor, creating it on
// first use.
func (c *Context) CommandProcessor() *CommandProcessor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processor == nil {
		c.processor = newCommandProcessor(c)
	}
	return c.processor
}

// scratchPool returns the pool backing acceleration structure scratch memory.
func (c *Context) scratchPool() *TransientBufferPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scratch == nil {
		c.scratch = newTransientBufferPool(c.factory,
			BufferUsageReadWriteStorage|BufferUsageAccelerationStructureInput,
			c.cfg.Pool, false)
	}
	return c.scratch
}

// Destroy waits for the device to go idle and releases it.
//
// Destroy fails with ErrResourcesAlive, releasing nothing, while resources
// created from the context have not been destroyed. A second call is a no-op.
func (c *Context) Destroy() error {
	if n := c.live.Load(); n > 0 {
		return fmt.Errorf("destroy context: %w: %d", ErrResourcesAlive, n)
	}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	processor, scratch := c.processor, c.scratch
	c.mu.Unlock()

	if processor != nil {
		if err := processor.Destroy(); err != nil {
			Logger().Warn("rhi: processor teardown", "error", err)
		}
	}
	if scratch != nil {
		scratch.Destroy()
	}
	c.release()
	return nil
}

// release tears down the HAL objects the context owns.
func (c *Context) release() {
	if !c.owned {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		Logger().Warn("rhi: wait idle before destroy", "error", err)
	}
	c.device.Destroy()
	if c.adapter != nil {
		c.adapter.Destroy()
	}
	if c.instance != nil {
		c.instance.Destroy()
	}
}
