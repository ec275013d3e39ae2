package rhi

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ShaderStage identifies a single programmable stage.
type ShaderStage uint8

const (
	// ShaderStageVertex is the vertex stage.
	ShaderStageVertex ShaderStage = iota
	// ShaderStagePixel is the pixel (fragment) stage.
	ShaderStagePixel
	// ShaderStageCompute is the compute stage.
	ShaderStageCompute
	// ShaderStageRayGeneration is the ray generation stage.
	ShaderStageRayGeneration
	// ShaderStageMiss is the miss stage.
	ShaderStageMiss
	// ShaderStageClosestHit is the closest-hit stage.
	ShaderStageClosestHit
	// ShaderStageAnyHit is the any-hit stage.
	ShaderStageAnyHit
	// ShaderStageIntersection is the intersection stage.
	ShaderStageIntersection
)

var shaderStageNames = [...]string{
	"Vertex", "Pixel", "Compute", "RayGeneration", "Miss", "ClosestHit", "AnyHit", "Intersection",
}

// String returns the string representation of ShaderStage.
func (s ShaderStage) String() string {
	if int(s) < len(shaderStageNames) {
		return shaderStageNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// IsRayTracing reports whether the stage belongs to a ray-tracing pipeline.
func (s ShaderStage) IsRayTracing() bool {
	return s >= ShaderStageRayGeneration && s <= ShaderStageIntersection
}

// Stages returns the mask containing only s.
func (s ShaderStage) Stages() ShaderStages { return 1 << s }

// ShaderStages is a mask of shader stages.
type ShaderStages uint16

// Stage masks.
const (
	StagesVertex        = ShaderStages(1 << ShaderStageVertex)
	StagesPixel         = ShaderStages(1 << ShaderStagePixel)
	StagesCompute       = ShaderStages(1 << ShaderStageCompute)
	StagesRayGeneration = ShaderStages(1 << ShaderStageRayGeneration)
	StagesMiss          = ShaderStages(1 << ShaderStageMiss)
	StagesClosestHit    = ShaderStages(1 << ShaderStageClosestHit)
	StagesAnyHit        = ShaderStages(1 << ShaderStageAnyHit)
	StagesIntersection  = ShaderStages(1 << ShaderStageIntersection)

	StagesGraphics   = StagesVertex | StagesPixel
	StagesRayTracing = StagesRayGeneration | StagesMiss | StagesClosestHit | StagesAnyHit | StagesIntersection
)

// halStages maps the mask to gputypes stages. Ray-tracing stages run on
// the compute queue, so they map to compute visibility.
func (s ShaderStages) halStages() gputypes.ShaderStages {
	var out gputypes.ShaderStages
	if s&StagesVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&StagesPixel != 0 {
		out |= gputypes.ShaderStageFragment
	}
	if s&(StagesCompute|StagesRayTracing) != 0 {
		out |= gputypes.ShaderStageCompute
	}
	return out
}

// ShaderDescription describes a compiled shader.
type ShaderDescription struct {
	Stage      ShaderStage
	EntryPoint string

	// SPIRV is the compiled SPIR-V module.
	SPIRV []uint32

	// WGSL is used when SPIRV is empty. Backends that need SPIR-V compile
	// it themselves.
	WGSL string
}

// Validate checks the description invariants.
func (d ShaderDescription) Validate() error {
	if int(d.Stage) >= len(shaderStageNames) {
		return fmt.Errorf("%w: shader: unknown stage %d", ErrValidation, d.Stage)
	}
	if d.EntryPoint == "" {
		return fmt.Errorf("%w: shader: empty entry point", ErrValidation)
	}
	if len(d.SPIRV) == 0 && d.WGSL == "" {
		return fmt.Errorf("%w: shader: no code", ErrValidation)
	}
	return nil
}

// CompileWGSL compiles WGSL source to SPIR-V and returns a description
// ready for CreateShader.
func CompileWGSL(stage ShaderStage, entryPoint, source string) (ShaderDescription, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return ShaderDescription{}, fmt.Errorf("%w: compile %s shader: %w", ErrValidation, stage, err)
	}
	if len(spirv)%4 != 0 {
		return ShaderDescription{}, fmt.Errorf("%w: compile %s shader: SPIR-V length %d", ErrValidation, stage, len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return ShaderDescription{Stage: stage, EntryPoint: entryPoint, SPIRV: words}, nil
}

// Shader is a shader module bound to one stage and entry point.
type Shader struct {
	deviceResource
	desc ShaderDescription
	raw  hal.ShaderModule
}

// Stage returns the shader stage.
func (s *Shader) Stage() ShaderStage { return s.desc.Stage }

// EntryPoint returns the entry point name.
func (s *Shader) EntryPoint() string { return s.desc.EntryPoint }

// Destroy releases the shader module.
func (s *Shader) Destroy() {
	s.markDestroyed()
	s.ctx.device.DestroyShaderModule(s.raw)
}

// CreateShader creates a shader module.
// Ray-tracing stages require a ray-tracing capable device.
func (f *ResourceFactory) CreateShader(desc ShaderDescription) (*Shader, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create shader: %w", err)
	}
	if desc.Stage.IsRayTracing() && !f.ctx.SupportsRayTracing() {
		return nil, fmt.Errorf("create %s shader: %w", desc.Stage, ErrRayTracingUnsupported)
	}
	raw, err := f.ctx.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.EntryPoint,
		Source: hal.ShaderSource{WGSL: desc.WGSL, SPIRV: desc.SPIRV},
	})
	if err != nil {
		return nil, backendError("create shader", err)
	}
	s := &Shader{desc: desc, raw: raw}
	s.init(f.ctx, "Shader", desc.EntryPoint, raw, true)
	return s, nil
}
