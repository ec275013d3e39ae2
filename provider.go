package rhi

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var _ gpucontext.DeviceProvider = (*Context)(nil)

// halProvider is implemented by host applications that expose their HAL
// device, such as a gogpu window.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewContextFromProvider adopts the device of a host application.
//
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. The adopted device is not destroyed by
// Context.Destroy. Backend and adapter options are ignored.
func NewContextFromProvider(provider gpucontext.DeviceProvider, opts ...ContextOption) (*Context, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrUnsupported)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrUnsupported)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrUnsupported)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	limits := gputypes.DefaultLimits()
	if o.limits != nil {
		limits = *o.limits
	}

	info := provider.AdapterInfo()
	ctx := &Context{
		label:         o.label,
		cfg:           o.config,
		device:        device,
		queue:         queue,
		surfaceFormat: provider.SurfaceFormat(),
	}
	ctx.setCapabilities(gputypes.BackendEmpty, gputypes.AdapterInfo{
		Name:       info.Name,
		DeviceType: deviceType(info.Type),
	}, 0, limits)

	if o.config.Device.RayTracing && !ctx.caps.RayTracing {
		return nil, fmt.Errorf("adopt provider device: %w", ErrRayTracingUnsupported)
	}
	Logger().Info("rhi: adopted provider device", "adapter", info.Name, "type", info.Type.String())
	return ctx, nil
}

// Device returns the HAL device as a gpucontext.Device.
func (c *Context) Device() gpucontext.Device { return c.device }

// Queue returns the HAL queue as a gpucontext.Queue.
func (c *Context) Queue() gpucontext.Queue { return c.queue }

// Adapter returns the HAL adapter, or nil for adopted devices.
func (c *Context) Adapter() gpucontext.Adapter {
	if c.adapter == nil {
		return nil
	}
	return c.adapter
}

// SurfaceFormat returns the color format of the most recently created swap
// chain, or TextureFormatUndefined when headless.
func (c *Context) SurfaceFormat() gputypes.TextureFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surfaceFormat
}

// AdapterInfo returns the adapter name and type.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{
		Name: c.caps.Adapter.Name,
		Type: adapterType(c.caps.Adapter.DeviceType),
	}
}

// HalDevice returns the hal.Device, so other gogpu libraries can share it.
func (c *Context) HalDevice() any { return c.device }

// HalQueue returns the hal.Queue.
func (c *Context) HalQueue() any { return c.queue }

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}
