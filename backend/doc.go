// Package backend selects the HAL backend an rhi.Context runs on.
//
// The package is a thin name-keyed layer over the gogpu/wgpu HAL registry.
// HAL backends register themselves from init functions; importing
// backend/native pulls in every real backend for the current platform:
//
//	import _ "github.com/gogpu/rhi/backend/native"
//
// # Backend Selection
//
// Use Default to get the best available backend, or Get to request a
// specific backend by name:
//
//	// Best available backend (vulkan > metal > dx12 > gl > software)
//	b, err := backend.Default()
//
//	// A specific backend
//	b, err := backend.Get("vulkan")
//
// # Custom Backends
//
// Register injects a hal.Backend under a name, taking precedence over the
// HAL registry. Tests use it to run on the headless noop device:
//
//	backend.Register("noop", func() (hal.Backend, error) { return noop.API{}, nil })
//
// # Available Backends
//
//   - "vulkan": Vulkan (Linux, Windows, macOS through MoltenVK)
//   - "metal": Metal (macOS, iOS)
//   - "dx12": Direct3D 12 (Windows)
//   - "gl": OpenGL ES
//   - "software": CPU rasterizer, always available through backend/native
package backend
