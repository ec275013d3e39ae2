// Package native registers every real HAL backend for the current platform.
//
// Import it for side effects from a program's main package:
//
//	import _ "github.com/gogpu/rhi/backend/native"
//
// Libraries should not import it; they accept whatever backends the
// program registered.
package native

import (
	// Vulkan/Metal/DX12/GLES by platform, plus the software rasterizer.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)
