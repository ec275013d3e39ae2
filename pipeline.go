package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// =============================================================================
// Shared pipeline state
// =============================================================================

// VertexElement is one attribute of a vertex layout.
type VertexElement struct {
	Format   gputypes.VertexFormat
	Offset   uint64
	Location uint32
}

// VertexLayout describes the vertices in one vertex buffer slot.
type VertexLayout struct {
	Stride    uint64
	Instanced bool
	Elements  []VertexElement
}

func (l VertexLayout) native() gputypes.VertexBufferLayout {
	step := gputypes.VertexStepModeVertex
	if l.Instanced {
		step = gputypes.VertexStepModeInstance
	}
	attrs := make([]gputypes.VertexAttribute, len(l.Elements))
	for i, e := range l.Elements {
		attrs[i] = gputypes.VertexAttribute{Format: e.Format, Offset: e.Offset, ShaderLocation: e.Location}
	}
	return gputypes.VertexBufferLayout{ArrayStride: l.Stride, StepMode: step, Attributes: attrs}
}

// RasterizerState controls primitive culling.
type RasterizerState struct {
	CullMode  gputypes.CullMode
	FrontFace gputypes.FrontFace
}

// DepthStencilState controls the depth test. It is ignored when the
// outputs have no depth format.
type DepthStencilState struct {
	DepthTest  bool
	DepthWrite bool
	// Compare defaults to CompareFunctionLess.
	Compare gputypes.CompareFunction
}

// BlendState is applied to every color output.
type BlendState struct {
	// Blend is nil for replace.
	Blend     *gputypes.BlendState
	WriteMask gputypes.ColorWriteMask
}

// RenderStates groups the fixed-function state of a graphics pipeline.
type RenderStates struct {
	Rasterizer   RasterizerState
	DepthStencil DepthStencilState
	Blend        BlendState
}

// OutputDescription is the attachment signature a graphics pipeline
// renders to. FrameBuffer.Outputs returns a matching value.
type OutputDescription struct {
	ColorFormats []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	SampleCount  uint32
}

func (f *ResourceFactory) checkLayouts(layouts []*ResourceLayout) ([]hal.BindGroupLayout, error) {
	if limit := f.ctx.caps.Limits.MaxBindGroups; limit != 0 && uint32(len(layouts)) > limit {
		return nil, fmt.Errorf("%w: %d resource layouts exceed %d", ErrValidation, len(layouts), limit)
	}
	raw := make([]hal.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		if l == nil {
			return nil, fmt.Errorf("resource layout %d: %w", i, ErrNilResource)
		}
		if err := l.checkUsable(f.ctx); err != nil {
			return nil, fmt.Errorf("resource layout %d: %w", i, err)
		}
		raw[i] = l.raw
	}
	return raw, nil
}

func (f *ResourceFactory) pipelineLayout(layouts []*ResourceLayout) (hal.PipelineLayout, error) {
	raw, err := f.checkLayouts(layouts)
	if err != nil {
		return nil, err
	}
	pl, err := f.ctx.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{BindGroupLayouts: raw})
	if err != nil {
		return nil, backendError("create pipeline layout", err)
	}
	return pl, nil
}

func checkShader(s *Shader, ctx *Context, want ShaderStage) error {
	if s == nil {
		return fmt.Errorf("%s shader: %w", want, ErrNilResource)
	}
	if s.desc.Stage != want {
		return fmt.Errorf("%w: %s shader given for %s stage", ErrValidation, s.desc.Stage, want)
	}
	return s.checkUsable(ctx)
}

// pipelineBase is shared by every pipeline kind.
type pipelineBase struct {
	deviceResource
	layouts []*ResourceLayout
	layout  hal.PipelineLayout
}

// ResourceLayouts returns the layouts the pipeline binds, one per set index.
func (p *pipelineBase) ResourceLayouts() []*ResourceLayout {
	return append([]*ResourceLayout(nil), p.layouts...)
}

// =============================================================================
// Graphics pipeline
// =============================================================================

// GraphicsPipelineDescription describes a graphics pipeline.
type GraphicsPipelineDescription struct {
	VertexShader *Shader
	// PixelShader is nil for depth-only pipelines.
	PixelShader *Shader

	InputLayouts      []VertexLayout
	ResourceLayouts   []*ResourceLayout
	PrimitiveTopology gputypes.PrimitiveTopology
	RenderStates      RenderStates
	Outputs           OutputDescription
}

// Validate checks the stage-independent invariants.
func (d GraphicsPipelineDescription) Validate() error {
	if d.PixelShader == nil && len(d.Outputs.ColorFormats) > 0 {
		return fmt.Errorf("%w: graphics pipeline: color outputs without pixel shader", ErrValidation)
	}
	if len(d.Outputs.ColorFormats) == 0 && d.Outputs.DepthFormat == gputypes.TextureFormatUndefined {
		return fmt.Errorf("%w: graphics pipeline: no outputs", ErrValidation)
	}
	for i, cf := range d.Outputs.ColorFormats {
		if cf == gputypes.TextureFormatUndefined || cf.IsDepthStencil() {
			return fmt.Errorf("graphics pipeline: color output %d: %w: %s", i, ErrFormat, cf)
		}
	}
	if df := d.Outputs.DepthFormat; df != gputypes.TextureFormatUndefined && !df.IsDepthStencil() {
		return fmt.Errorf("graphics pipeline: depth output: %w: %s", ErrFormat, df)
	}
	for i, l := range d.InputLayouts {
		for j, e := range l.Elements {
			if l.Stride != 0 && e.Offset+e.Format.Size() > l.Stride {
				return fmt.Errorf("%w: graphics pipeline: input %d element %d overruns stride %d",
					ErrValidation, i, j, l.Stride)
			}
		}
	}
	return nil
}

// GraphicsPipeline is a compiled graphics pipeline.
type GraphicsPipeline struct {
	pipelineBase
	desc GraphicsPipelineDescription
	raw  hal.RenderPipeline
}

// Description returns the description the pipeline was created with.
func (p *GraphicsPipeline) Description() GraphicsPipelineDescription { return p.desc }

// Destroy releases the pipeline and its layout.
func (p *GraphicsPipeline) Destroy() {
	p.markDestroyed()
	p.ctx.device.DestroyRenderPipeline(p.raw)
	p.ctx.device.DestroyPipelineLayout(p.layout)
}

// CreateGraphicsPipeline creates a graphics pipeline.
func (f *ResourceFactory) CreateGraphicsPipeline(desc GraphicsPipelineDescription) (*GraphicsPipeline, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create graphics pipeline: %w", err)
	}
	if err := checkShader(desc.VertexShader, f.ctx, ShaderStageVertex); err != nil {
		return nil, fmt.Errorf("create graphics pipeline: %w", err)
	}
	if desc.PixelShader != nil {
		if err := checkShader(desc.PixelShader, f.ctx, ShaderStagePixel); err != nil {
			return nil, fmt.Errorf("create graphics pipeline: %w", err)
		}
	}
	layout, err := f.pipelineLayout(desc.ResourceLayouts)
	if err != nil {
		return nil, fmt.Errorf("create graphics pipeline: %w", err)
	}

	buffers := make([]gputypes.VertexBufferLayout, len(desc.InputLayouts))
	for i, l := range desc.InputLayouts {
		buffers[i] = l.native()
	}
	multisample := gputypes.DefaultMultisampleState()
	if desc.Outputs.SampleCount > 1 {
		multisample.Count = desc.Outputs.SampleCount
	}
	hd := &hal.RenderPipelineDescriptor{
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     desc.VertexShader.raw,
			EntryPoint: desc.VertexShader.desc.EntryPoint,
			Buffers:    buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  desc.PrimitiveTopology,
			FrontFace: desc.RenderStates.Rasterizer.FrontFace,
			CullMode:  desc.RenderStates.Rasterizer.CullMode,
		},
		Multisample: multisample,
	}
	if desc.PixelShader != nil {
		mask := desc.RenderStates.Blend.WriteMask
		if mask == gputypes.ColorWriteMaskNone {
			mask = gputypes.ColorWriteMaskAll
		}
		targets := make([]gputypes.ColorTargetState, len(desc.Outputs.ColorFormats))
		for i, cf := range desc.Outputs.ColorFormats {
			targets[i] = gputypes.ColorTargetState{Format: cf, Blend: desc.RenderStates.Blend.Blend, WriteMask: mask}
		}
		hd.Fragment = &hal.FragmentState{
			Module:     desc.PixelShader.raw,
			EntryPoint: desc.PixelShader.desc.EntryPoint,
			Targets:    targets,
		}
	}
	if df := desc.Outputs.DepthFormat; df != gputypes.TextureFormatUndefined {
		ds := desc.RenderStates.DepthStencil
		compare := gputypes.CompareFunctionAlways
		if ds.DepthTest {
			compare = ds.Compare
			if compare == gputypes.CompareFunctionUndefined {
				compare = gputypes.CompareFunctionLess
			}
		}
		hd.DepthStencil = &hal.DepthStencilState{
			Format:            df,
			DepthWriteEnabled: ds.DepthWrite,
			DepthCompare:      compare,
			StencilFront:      hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilBack:       hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}
	raw, err := f.ctx.device.CreateRenderPipeline(hd)
	if err != nil {
		f.ctx.device.DestroyPipelineLayout(layout)
		return nil, backendError("create graphics pipeline", err)
	}
	desc.ResourceLayouts = append([]*ResourceLayout(nil), desc.ResourceLayouts...)
	desc.InputLayouts = append([]VertexLayout(nil), desc.InputLayouts...)
	p := &GraphicsPipeline{desc: desc, raw: raw}
	p.layouts, p.layout = desc.ResourceLayouts, layout
	p.init(f.ctx, "GraphicsPipeline", "", raw, true)
	return p, nil
}

// =============================================================================
// Compute pipeline
// =============================================================================

// ComputePipelineDescription describes a compute pipeline.
type ComputePipelineDescription struct {
	Shader          *Shader
	ResourceLayouts []*ResourceLayout
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline struct {
	pipelineBase
	desc ComputePipelineDescription
	raw  hal.ComputePipeline
}

// Description returns the description the pipeline was created with.
func (p *ComputePipeline) Description() ComputePipelineDescription { return p.desc }

// Destroy releases the pipeline and its layout.
func (p *ComputePipeline) Destroy() {
	p.markDestroyed()
	p.ctx.device.DestroyComputePipeline(p.raw)
	p.ctx.device.DestroyPipelineLayout(p.layout)
}

// CreateComputePipeline creates a compute pipeline.
func (f *ResourceFactory) CreateComputePipeline(desc ComputePipelineDescription) (*ComputePipeline, error) {
	if err := checkShader(desc.Shader, f.ctx, ShaderStageCompute); err != nil {
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	layout, err := f.pipelineLayout(desc.ResourceLayouts)
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	raw, err := f.ctx.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     desc.Shader.raw,
			EntryPoint: desc.Shader.desc.EntryPoint,
		},
	})
	if err != nil {
		f.ctx.device.DestroyPipelineLayout(layout)
		return nil, backendError("create compute pipeline", err)
	}
	desc.ResourceLayouts = append([]*ResourceLayout(nil), desc.ResourceLayouts...)
	p := &ComputePipeline{desc: desc, raw: raw}
	p.layouts, p.layout = desc.ResourceLayouts, layout
	p.init(f.ctx, "ComputePipeline", "", raw, true)
	return p, nil
}

// =============================================================================
// Ray-tracing pipeline
// =============================================================================

// Ray-tracing pipeline limits.
const (
	MaxRecursionDepth = 31
	MaxAttributeSize  = 32
)

// HitGroup is a named combination of hit shaders. At least one shader is set.
type HitGroup struct {
	Name         string
	ClosestHit   *Shader
	AnyHit       *Shader
	Intersection *Shader
}

// RayTracingPipelineDescription describes a ray-tracing pipeline.
type RayTracingPipelineDescription struct {
	RayGeneration *Shader
	Miss          []*Shader
	HitGroups     []HitGroup

	ResourceLayouts []*ResourceLayout

	// MaxRecursionDepth is 1 to MaxRecursionDepth.
	MaxRecursionDepth uint32
	MaxPayloadSize    uint32
	// MaxAttributeSize is at most MaxAttributeSize bytes.
	MaxAttributeSize uint32
}

// Validate checks the description invariants.
func (d RayTracingPipelineDescription) Validate() error {
	if d.MaxRecursionDepth == 0 || d.MaxRecursionDepth > MaxRecursionDepth {
		return fmt.Errorf("%w: ray-tracing pipeline: recursion depth %d", ErrValidation, d.MaxRecursionDepth)
	}
	if d.MaxAttributeSize > MaxAttributeSize {
		return fmt.Errorf("%w: ray-tracing pipeline: attribute size %d", ErrValidation, d.MaxAttributeSize)
	}
	for i, g := range d.HitGroups {
		if g.ClosestHit == nil && g.AnyHit == nil && g.Intersection == nil {
			return fmt.Errorf("%w: ray-tracing pipeline: hit group %d (%s) is empty", ErrValidation, i, g.Name)
		}
	}
	return nil
}

// RayTracingPipeline is a compiled ray-tracing pipeline.
type RayTracingPipeline struct {
	pipelineBase
	desc   RayTracingPipelineDescription
	native NativeRayTracingPipeline
}

// Description returns the description the pipeline was created with.
func (p *RayTracingPipeline) Description() RayTracingPipelineDescription { return p.desc }

// Destroy releases the pipeline and its layout.
func (p *RayTracingPipeline) Destroy() {
	p.markDestroyed()
	p.ctx.rt.DestroyRayTracingPipeline(p.native)
	p.ctx.device.DestroyPipelineLayout(p.layout)
}

func stageOf(s *Shader, ctx *Context, want ShaderStage) (*NativeShaderStage, error) {
	if s == nil {
		return nil, nil
	}
	if err := checkShader(s, ctx, want); err != nil {
		return nil, err
	}
	return &NativeShaderStage{Module: s.raw, EntryPoint: s.desc.EntryPoint}, nil
}

// CreateRayTracingPipeline creates a ray-tracing pipeline. The capability
// check runs before any validation or allocation.
func (f *ResourceFactory) CreateRayTracingPipeline(desc RayTracingPipelineDescription) (*RayTracingPipeline, error) {
	if !f.ctx.SupportsRayTracing() {
		return nil, fmt.Errorf("create ray-tracing pipeline: %w", ErrRayTracingUnsupported)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("create ray-tracing pipeline: %w", err)
	}
	if err := checkShader(desc.RayGeneration, f.ctx, ShaderStageRayGeneration); err != nil {
		return nil, fmt.Errorf("create ray-tracing pipeline: %w", err)
	}
	nd := &NativeRayTracingPipelineDescriptor{
		RayGeneration:     NativeShaderStage{Module: desc.RayGeneration.raw, EntryPoint: desc.RayGeneration.desc.EntryPoint},
		MaxRecursionDepth: desc.MaxRecursionDepth,
		MaxPayloadSize:    desc.MaxPayloadSize,
		MaxAttributeSize:  desc.MaxAttributeSize,
	}
	for i, m := range desc.Miss {
		st, err := stageOf(m, f.ctx, ShaderStageMiss)
		if err == nil && st == nil {
			err = ErrNilResource
		}
		if err != nil {
			return nil, fmt.Errorf("create ray-tracing pipeline: miss %d: %w", i, err)
		}
		nd.Miss = append(nd.Miss, *st)
	}
	for i, g := range desc.HitGroups {
		var ng NativeHitGroup
		var err error
		if ng.ClosestHit, err = stageOf(g.ClosestHit, f.ctx, ShaderStageClosestHit); err == nil {
			if ng.AnyHit, err = stageOf(g.AnyHit, f.ctx, ShaderStageAnyHit); err == nil {
				ng.Intersection, err = stageOf(g.Intersection, f.ctx, ShaderStageIntersection)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("create ray-tracing pipeline: hit group %d (%s): %w", i, g.Name, err)
		}
		nd.HitGroups = append(nd.HitGroups, ng)
	}
	layout, err := f.pipelineLayout(desc.ResourceLayouts)
	if err != nil {
		return nil, fmt.Errorf("create ray-tracing pipeline: %w", err)
	}
	nd.Layout = layout
	native, err := f.ctx.rt.CreateRayTracingPipeline(nd)
	if err != nil {
		f.ctx.device.DestroyPipelineLayout(layout)
		return nil, backendError("create ray-tracing pipeline", err)
	}
	desc.ResourceLayouts = append([]*ResourceLayout(nil), desc.ResourceLayouts...)
	desc.Miss = append([]*Shader(nil), desc.Miss...)
	desc.HitGroups = append([]HitGroup(nil), desc.HitGroups...)
	p := &RayTracingPipeline{desc: desc, native: native}
	p.layouts, p.layout = desc.ResourceLayouts, layout
	p.init(f.ctx, "RayTracingPipeline", "", native, true)
	return p, nil
}
