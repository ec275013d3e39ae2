// Package rhi is a backend-agnostic GPU resource and command-submission layer
// for Go.
//
// # Overview
//
// rhi sits above the gogpu/wgpu HAL. Clients describe GPU objects with plain
// description records, receive typed handles with deterministic lifetimes,
// record command buffers and submit them to the device queue without touching
// the native API.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/rhi"
//	    _ "github.com/gogpu/rhi/backend/native" // register Vulkan, Metal, DX12, GLES
//	)
//
//	ctx, err := rhi.NewContext()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Destroy()
//
//	vb, err := ctx.Factory().CreateBuffer(rhi.BufferDescription{
//	    SizeInBytes: 1024,
//	    Usage:       rhi.BufferUsageVertex,
//	})
//
//	proc := ctx.CommandProcessor()
//	cb := proc.CommandBuffer()
//	cb.Begin()
//	cb.UpdateBuffer(vb, 0, vertices)
//	cb.End()
//	cb.Commit()
//	proc.Submit()
//	proc.WaitIdle()
//
// # Binding Model
//
// Shaders declare bindings per class (constant buffers, read/write storage,
// samplers, read-only storage) with slots 0 to 19. The HAL exposes a single
// flat binding namespace per set, so each class is shifted into its own band
// of 20 bindings. See TranslateBinding.
//
// # Command Buffers
//
// A CommandBuffer moves through Initial, Recording, Ended and Submitted.
// Draws are legal only between BeginRendering and EndRendering; transfers
// and dispatches only outside. Misuse returns an error wrapping
// ErrInvalidState.
//
// # Ray Tracing
//
// Acceleration structures and ray-tracing pipelines need a backend whose
// device implements RayTracingDevice. Context.SupportsRayTracing reports it,
// and every ray-tracing entry point returns ErrRayTracingUnsupported
// otherwise.
//
// # Logging
//
// rhi logs through log/slog and is silent by default. See SetLogger.
package rhi
