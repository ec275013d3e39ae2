package rhi

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
)

// =============================================================================
// State machine
// =============================================================================

func TestCommandBufferLifecycle(t *testing.T) {
	ctx := newTestContext(t)
	proc := ctx.CommandProcessor()
	cb := proc.CommandBuffer()

	step := func(name string, err error, want CommandBufferState) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: error = %v", name, err)
		}
		if cb.State() != want {
			t.Fatalf("%s: state = %s, want %s", name, cb.State(), want)
		}
	}

	if cb.State() != CommandBufferInitial {
		t.Fatalf("new buffer state = %s", cb.State())
	}
	step("Begin", cb.Begin(), CommandBufferRecording)
	step("End", cb.End(), CommandBufferEnded)
	step("Commit", cb.Commit(), CommandBufferEnded)
	if !cb.Committed() || proc.Pending() != 1 {
		t.Fatalf("Committed() = %t, Pending() = %d", cb.Committed(), proc.Pending())
	}
	step("Submit", proc.Submit(), CommandBufferSubmitted)
	if cb.Committed() || proc.Pending() != 0 {
		t.Errorf("after Submit: Committed() = %t, Pending() = %d", cb.Committed(), proc.Pending())
	}
	step("Begin from Submitted", cb.Begin(), CommandBufferRecording)
	step("End re-recorded", cb.End(), CommandBufferEnded)
	step("Commit again", cb.Commit(), CommandBufferEnded)
	step("Submit again", proc.Submit(), CommandBufferSubmitted)
	step("Reset", cb.Reset(), CommandBufferInitial)
	step("Begin again", cb.Begin(), CommandBufferRecording)
	step("End again", cb.End(), CommandBufferEnded)
	step("Begin from Ended", cb.Begin(), CommandBufferRecording)
	step("Reset while recording", cb.Reset(), CommandBufferInitial)
}

func TestCommandBufferReuseAcrossFrames(t *testing.T) {
	ctx := newTestContext(t)
	proc := ctx.CommandProcessor()
	dst := mustBuffer(t, ctx, 256, BufferUsageConstant)
	cb := proc.CommandBuffer()

	data := make([]byte, 64)
	for frame := range 5 {
		err := errors.Join(cb.Begin(), cb.UpdateBuffer(dst, 0, data), cb.End(), cb.Commit(), proc.Submit(), proc.WaitIdle())
		if err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}
	s := cb.staging.Stats()
	if s.Allocations != 1 || s.Reuses != 4 || s.Used != 1 || s.Available != 0 {
		t.Errorf("staging after 5 frames = %v, want 1 allocation reused 4 times", s)
	}
}

func TestCommandBufferBeginReleasesStaging(t *testing.T) {
	b := &testBackend{hold: true}
	ctx := newHarness(t, b)
	proc := ctx.CommandProcessor()
	dst := mustBuffer(t, ctx, 256, BufferUsageConstant)
	data := make([]byte, 64)

	t.Run("from Ended", func(t *testing.T) {
		cb := proc.CommandBuffer()
		if err := errors.Join(cb.Begin(), cb.UpdateBuffer(dst, 0, data), cb.End(), cb.Begin()); err != nil {
			t.Fatal(err)
		}
		defer cb.Reset()
		if s := cb.staging.Stats(); s.Used != 0 || s.Available != 1 {
			t.Errorf("staging after Begin from Ended = %v, want the discarded upload released", s)
		}
	})

	t.Run("from Submitted", func(t *testing.T) {
		cb := proc.CommandBuffer()
		err := errors.Join(cb.Begin(), cb.UpdateBuffer(dst, 0, data), cb.End(), cb.Commit(), proc.Submit())
		if err != nil {
			t.Fatal(err)
		}
		submission := cb.submission
		if got := b.queue.PollCompleted(); got >= submission {
			t.Fatalf("queue completed %d before the test released it", got)
		}

		if err := cb.Begin(); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		defer cb.Reset()
		if got := b.queue.PollCompleted(); got < submission {
			t.Errorf("Begin returned before submission %d completed (completed %d)", submission, got)
		}
		if len(proc.inFlight) != 0 {
			t.Errorf("in-flight buffers = %d after Begin", len(proc.inFlight))
		}
		if s := cb.staging.Stats(); s.Used != 0 || s.Available != 1 {
			t.Errorf("staging after Begin from Submitted = %v", s)
		}
		if other := proc.CommandBuffer(); other == cb {
			t.Error("recording buffer handed out by the processor")
		}
	})
}

func TestCommandBufferIllegalTransitions(t *testing.T) {
	ctx := newTestContext(t)
	proc := ctx.CommandProcessor()

	tests := []struct {
		name    string
		setup   func(cb *CommandBuffer) error
		op      func(cb *CommandBuffer) error
		wantErr error
	}{
		{"End in Initial", nil, (*CommandBuffer).End, ErrNotRecording},
		{"Commit in Initial", nil, (*CommandBuffer).Commit, ErrInvalidState},
		{"Begin while Recording", (*CommandBuffer).Begin, (*CommandBuffer).Begin, ErrInvalidState},
		{"Commit while Recording", (*CommandBuffer).Begin, (*CommandBuffer).Commit, ErrInvalidState},
		{
			name:    "Commit twice",
			setup:   func(cb *CommandBuffer) error { return errors.Join(cb.Begin(), cb.End(), cb.Commit()) },
			op:      (*CommandBuffer).Commit,
			wantErr: ErrInvalidState,
		},
		{
			name:    "End twice",
			setup:   func(cb *CommandBuffer) error { return errors.Join(cb.Begin(), cb.End()) },
			op:      (*CommandBuffer).End,
			wantErr: ErrNotRecording,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := proc.CommandBuffer()
			if tt.setup != nil {
				if err := tt.setup(cb); err != nil {
					t.Fatalf("setup: %v", err)
				}
			}
			before := cb.State()
			err := tt.op(cb)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if cb.State() != before {
				t.Errorf("state changed from %s to %s on failure", before, cb.State())
			}
			_ = cb.Reset()
		})
	}
}

func TestCommandBufferRecordingRequired(t *testing.T) {
	ctx := newTestContext(t)
	buf := mustBuffer(t, ctx, 64, BufferUsageVertex)
	cb := ctx.CommandProcessor().CommandBuffer()

	checks := map[string]error{
		"UpdateBuffer":   cb.UpdateBuffer(buf, 0, make([]byte, 4)),
		"ClearBuffer":    cb.ClearBuffer(buf, 0, 0),
		"BeginRendering": cb.BeginRendering(nil, ClearValue{}),
		"Dispatch":       cb.Dispatch(1, 1, 1),
		"SetResourceSet": cb.SetResourceSet(0, nil),
		"DispatchRays":   cb.DispatchRays(1, 1, 1),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrNotRecording) {
			t.Errorf("%s in Initial: error = %v, want ErrNotRecording", name, err)
		}
	}
}

func TestCommandBufferBeginDiscardsCommit(t *testing.T) {
	ctx := newTestContext(t)
	proc := ctx.CommandProcessor()
	cb := proc.CommandBuffer()

	if err := errors.Join(cb.Begin(), cb.End(), cb.Commit()); err != nil {
		t.Fatal(err)
	}
	if err := cb.Begin(); err != nil {
		t.Fatalf("Begin() from committed Ended: %v", err)
	}
	if cb.Committed() || proc.Pending() != 0 {
		t.Errorf("Committed() = %t, Pending() = %d after re-Begin", cb.Committed(), proc.Pending())
	}
	_ = cb.Reset()
}

func TestCommandBufferStateString(t *testing.T) {
	tests := map[CommandBufferState]string{
		CommandBufferInitial:   "Initial",
		CommandBufferRecording: "Recording",
		CommandBufferEnded:     "Ended",
		CommandBufferSubmitted: "Submitted",
		CommandBufferState(9):  "Unknown(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

// =============================================================================
// Transfers
// =============================================================================

func TestUpdateBufferRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	proc := ctx.CommandProcessor()
	dst := mustBuffer(t, ctx, 64, BufferUsageConstant|BufferUsageDynamic)
	readback := mustBuffer(t, ctx, 64, BufferUsageReadback)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	cb := recording(t, ctx)
	if err := cb.UpdateBuffer(dst, 16, data); err != nil {
		t.Fatalf("UpdateBuffer() error = %v", err)
	}
	if err := cb.CopyBuffer(dst, 16, readback, 0, uint64(len(data))); err != nil {
		t.Fatalf("CopyBuffer() error = %v", err)
	}
	if err := errors.Join(cb.End(), cb.Commit(), proc.Submit(), proc.WaitIdle()); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(data))
	if err := readback.Read(0, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read() = %v, want %v", got, data)
	}
}

func TestUpdateBufferValidation(t *testing.T) {
	ctx := newTestContext(t)
	dst := mustBuffer(t, ctx, 64, BufferUsageVertex)
	staging := mustBuffer(t, ctx, 64, BufferUsageStaging)
	cb := recording(t, ctx)
	defer cb.Reset()

	tests := []struct {
		name    string
		dst     *Buffer
		offset  uint64
		data    []byte
		wantErr error
	}{
		{"unaligned offset", dst, 2, make([]byte, 4), ErrValidation},
		{"unaligned size", dst, 0, make([]byte, 3), ErrValidation},
		{"past end", dst, 60, make([]byte, 8), ErrOutOfBounds},
		{"staging destination", staging, 0, make([]byte, 4), ErrUsageCombination},
		{"nil destination", nil, 0, make([]byte, 4), ErrNilResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := cb.UpdateBuffer(tt.dst, tt.offset, tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateBuffer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if err := cb.UpdateBuffer(dst, 0, nil); err != nil {
		t.Errorf("empty update: error = %v", err)
	}
}

func TestCopyBufferValidation(t *testing.T) {
	ctx := newTestContext(t)
	a := mustBuffer(t, ctx, 64, BufferUsageReadWriteStorage)
	b := mustBuffer(t, ctx, 64, BufferUsageReadWriteStorage)
	readback := mustBuffer(t, ctx, 64, BufferUsageReadback)
	cb := recording(t, ctx)
	defer cb.Reset()

	tests := []struct {
		name      string
		src       *Buffer
		srcOffset uint64
		dst       *Buffer
		dstOffset uint64
		size      uint64
		wantErr   error
	}{
		{"whole buffer", a, 0, b, 0, 64, nil},
		{"same buffer disjoint", a, 0, a, 32, 32, nil},
		{"same buffer overlapping", a, 0, a, 16, 32, ErrValidation},
		{"source past end", a, 48, b, 0, 32, ErrOutOfBounds},
		{"destination past end", a, 0, b, 48, 32, ErrOutOfBounds},
		{"readback source", readback, 0, b, 0, 4, ErrUsageCombination},
		{"unaligned", a, 1, b, 0, 4, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cb.CopyBuffer(tt.src, tt.srcOffset, tt.dst, tt.dstOffset, tt.size)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CopyBuffer() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CopyBuffer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClearBuffer(t *testing.T) {
	ctx := newTestContext(t)
	proc := ctx.CommandProcessor()
	buf := mustBuffer(t, ctx, 32, BufferUsageReadWriteStorage)
	readback := mustBuffer(t, ctx, 32, BufferUsageReadback)

	ones := bytes.Repeat([]byte{0xFF}, 32)
	cb := recording(t, ctx)
	if err := cb.UpdateBuffer(buf, 0, ones); err != nil {
		t.Fatal(err)
	}
	if err := cb.ClearBuffer(buf, 16, 0); err != nil {
		t.Fatalf("ClearBuffer() error = %v", err)
	}
	if err := cb.ClearBuffer(buf, 40, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("ClearBuffer() past end error = %v, want ErrOutOfBounds", err)
	}
	if err := cb.CopyBuffer(buf, 0, readback, 0, 32); err != nil {
		t.Fatal(err)
	}
	if err := errors.Join(cb.End(), cb.Commit(), proc.Submit(), proc.WaitIdle()); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 32)
	if err := readback.Read(0, got); err != nil {
		t.Fatal(err)
	}
	want := append(bytes.Repeat([]byte{0xFF}, 16), make([]byte, 16)...)
	if !bytes.Equal(got, want) {
		t.Errorf("contents = %v, want %v", got, want)
	}
}

func TestTextureRegionResolve(t *testing.T) {
	desc := TextureDescription{
		Type: TextureType2D, Format: gputypes.TextureFormatRGBA8Unorm,
		Width: 64, Height: 32, Depth: 1, MipLevels: 3, ArrayLayers: 2, Usage: TextureUsageSampled,
	}
	tests := []struct {
		name    string
		region  TextureRegion
		want    TextureRegion
		wantErr bool
	}{
		{"whole level 0", TextureRegion{}, TextureRegion{Width: 64, Height: 32, Depth: 1}, false},
		{"level 2 to edge", TextureRegion{MipLevel: 2, X: 4}, TextureRegion{MipLevel: 2, X: 4, Width: 12, Height: 8, Depth: 1}, false},
		{"slice 1", TextureRegion{ArraySlice: 1, Width: 8, Height: 8}, TextureRegion{ArraySlice: 1, Width: 8, Height: 8, Depth: 1}, false},
		{"mip out of range", TextureRegion{MipLevel: 3}, TextureRegion{}, true},
		{"slice out of range", TextureRegion{ArraySlice: 2}, TextureRegion{}, true},
		{"origin outside", TextureRegion{X: 64}, TextureRegion{}, true},
		{"extent overruns", TextureRegion{X: 60, Width: 8}, TextureRegion{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.region.resolve(desc)
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfBounds) {
					t.Errorf("resolve() error = %v, want ErrOutOfBounds", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUpdateTexture(t *testing.T) {
	ctx := newTestContext(t)
	tex := mustTexture(t, ctx, Texture2DDescription(10, 4, gputypes.TextureFormatRGBA8Unorm, TextureUsageSampled))
	depth := mustTexture(t, ctx, Texture2DDescription(4, 4, gputypes.TextureFormatDepth32Float, TextureUsageDepthStencil))
	cb := recording(t, ctx)
	defer cb.Reset()

	if err := cb.UpdateTexture(tex, TextureRegion{}, make([]byte, 10*4*4)); err != nil {
		t.Errorf("UpdateTexture() full error = %v", err)
	}
	if err := cb.UpdateTexture(tex, TextureRegion{X: 2, Y: 1, Width: 3, Height: 2}, make([]byte, 3*2*4)); err != nil {
		t.Errorf("UpdateTexture() region error = %v", err)
	}
	if err := cb.UpdateTexture(tex, TextureRegion{}, make([]byte, 10)); !errors.Is(err, ErrValidation) {
		t.Errorf("short data: error = %v, want ErrValidation", err)
	}
	if err := cb.UpdateTexture(depth, TextureRegion{}, make([]byte, 64)); !errors.Is(err, ErrFormat) {
		t.Errorf("depth upload: error = %v, want ErrFormat", err)
	}
	// Rows of 40 bytes are repitched to 256 in staging.
	if s := cb.staging.Stats(); s.UsedBytes < 4*256 {
		t.Errorf("staging bytes = %d, want at least %d", s.UsedBytes, 4*256)
	}
}

func TestCopyTexture(t *testing.T) {
	ctx := newTestContext(t)
	src := mustTexture(t, ctx, Texture2DDescription(16, 16, gputypes.TextureFormatRGBA8Unorm, TextureUsageSampled))
	dst := mustTexture(t, ctx, Texture2DDescription(32, 32, gputypes.TextureFormatRGBA8Unorm, TextureUsageSampled))
	other := mustTexture(t, ctx, Texture2DDescription(16, 16, gputypes.TextureFormatBGRA8Unorm, TextureUsageSampled))
	cb := recording(t, ctx)
	defer cb.Reset()

	if err := cb.CopyTexture(src, TextureRegion{}, dst, TextureRegion{X: 8, Y: 8}); err != nil {
		t.Errorf("CopyTexture() error = %v", err)
	}
	if err := cb.CopyTexture(src, TextureRegion{}, dst, TextureRegion{X: 24}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("overrun: error = %v, want ErrOutOfBounds", err)
	}
	if err := cb.CopyTexture(src, TextureRegion{}, dst, TextureRegion{Width: 8, Height: 8, Depth: 1}); !errors.Is(err, ErrValidation) {
		t.Errorf("extent mismatch: error = %v, want ErrValidation", err)
	}
	if err := cb.CopyTexture(src, TextureRegion{}, other, TextureRegion{}); !errors.Is(err, ErrFormat) {
		t.Errorf("format mismatch: error = %v, want ErrFormat", err)
	}
}

func TestCopyTextureToBuffer(t *testing.T) {
	ctx := newTestContext(t)
	tex := mustTexture(t, ctx, Texture2DDescription(10, 4, gputypes.TextureFormatRGBA8Unorm, TextureUsageSampled))
	big := mustBuffer(t, ctx, 4*256, BufferUsageReadback)
	small := mustBuffer(t, ctx, 4*40, BufferUsageReadback)
	cb := recording(t, ctx)
	defer cb.Reset()

	pitch, err := cb.CopyTextureToBuffer(tex, TextureRegion{}, big, 0)
	if err != nil {
		t.Fatalf("CopyTextureToBuffer() error = %v", err)
	}
	if pitch != 256 {
		t.Errorf("pitch = %d, want 256", pitch)
	}
	if _, err := cb.CopyTextureToBuffer(tex, TextureRegion{}, small, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("small buffer: error = %v, want ErrOutOfBounds", err)
	}
}

// =============================================================================
// Render scope and draws
// =============================================================================

func TestRenderScope(t *testing.T) {
	ctx := newTestContext(t)
	fb := renderTarget(t, ctx)
	buf := mustBuffer(t, ctx, 64, BufferUsageVertex)
	cb := recording(t, ctx)
	defer cb.Reset()

	if err := cb.Draw(3, 0); !errors.Is(err, ErrOutsideRenderScope) {
		t.Errorf("Draw outside scope: error = %v, want ErrOutsideRenderScope", err)
	}
	if err := cb.EndRendering(); !errors.Is(err, ErrOutsideRenderScope) {
		t.Errorf("EndRendering outside scope: error = %v", err)
	}
	if err := cb.BeginRendering(fb, ClearValue{Flags: ClearTarget}); err != nil {
		t.Fatalf("BeginRendering() error = %v", err)
	}
	if !cb.InRenderScope() {
		t.Error("InRenderScope() = false after BeginRendering")
	}

	inside := map[string]error{
		"BeginRendering": cb.BeginRendering(fb, ClearValue{}),
		"UpdateBuffer":   cb.UpdateBuffer(buf, 0, make([]byte, 4)),
		"Dispatch":       cb.Dispatch(1, 1, 1),
		"End":            cb.End(),
		"Reset":          cb.Reset(),
	}
	for name, err := range inside {
		if !errors.Is(err, ErrInsideRenderScope) {
			t.Errorf("%s inside scope: error = %v, want ErrInsideRenderScope", name, err)
		}
	}
	if cb.State() != CommandBufferRecording {
		t.Errorf("state = %s after rejected calls", cb.State())
	}
	if err := cb.EndRendering(); err != nil {
		t.Fatalf("EndRendering() error = %v", err)
	}
	if err := cb.End(); err != nil {
		t.Errorf("End() after EndRendering error = %v", err)
	}
}

func TestDrawRequiresState(t *testing.T) {
	b := &testBackend{}
	ctx := newHarness(t, b)
	fb := renderTarget(t, ctx)
	layout := mustLayout(t, ctx, LayoutElement{Stages: StagesVertex, Kind: ResourceKindConstantBuffer})
	otherLayout := mustLayout(t, ctx, LayoutElement{Stages: StagesVertex, Kind: ResourceKindConstantBuffer})
	pipeline := graphicsPipeline(t, ctx, layout)
	constants := mustBuffer(t, ctx, 256, BufferUsageConstant)
	set := mustSet(t, ctx, layout, constants)
	wrongSet := mustSet(t, ctx, otherLayout, constants)
	indices := mustBuffer(t, ctx, 64, BufferUsageIndex)

	cb := recording(t, ctx)
	defer cb.Reset()
	if err := cb.BeginRendering(fb, ClearValue{}); err != nil {
		t.Fatal(err)
	}
	defer cb.EndRendering()

	if err := cb.Draw(3, 0); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("Draw without pipeline: error = %v, want ErrNoPipeline", err)
	}
	if err := cb.SetGraphicsPipeline(pipeline); err != nil {
		t.Fatalf("SetGraphicsPipeline() error = %v", err)
	}
	if err := cb.Draw(3, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Draw without resource set: error = %v, want ErrInvalidState", err)
	}
	if err := cb.SetResourceSet(0, wrongSet); err != nil {
		t.Fatal(err)
	}
	if err := cb.Draw(3, 0); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Draw with foreign-layout set: error = %v, want ErrShapeMismatch", err)
	}
	if err := cb.SetResourceSet(0, set); err != nil {
		t.Fatal(err)
	}
	if err := cb.Draw(3, 0); err != nil {
		t.Errorf("Draw() error = %v", err)
	}
	if err := cb.DrawIndexed(3, 0, 0); !errors.Is(err, ErrNoIndexBuffer) {
		t.Errorf("DrawIndexed without index buffer: error = %v, want ErrNoIndexBuffer", err)
	}
	if err := cb.SetIndexBuffer(indices, gputypes.IndexFormatUint16, 0); err != nil {
		t.Fatal(err)
	}
	if err := cb.DrawIndexedInstanced(3, 2, 0, 0, 0); err != nil {
		t.Errorf("DrawIndexedInstanced() error = %v", err)
	}
	if got := b.device.snapshot().draws; got != 2 {
		t.Errorf("recorded draws = %d, want 2", got)
	}
}

func TestRenderScopeClearsBindings(t *testing.T) {
	ctx := newTestContext(t)
	fb := renderTarget(t, ctx)
	pipeline := graphicsPipeline(t, ctx)
	cb := recording(t, ctx)
	defer cb.Reset()

	if err := errors.Join(cb.BeginRendering(fb, ClearValue{}), cb.SetGraphicsPipeline(pipeline), cb.EndRendering()); err != nil {
		t.Fatal(err)
	}
	if err := cb.BeginRendering(fb, ClearValue{}); err != nil {
		t.Fatal(err)
	}
	defer cb.EndRendering()
	if err := cb.Draw(3, 0); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("Draw in new scope: error = %v, want ErrNoPipeline", err)
	}
}

func TestSetGraphicsPipelineOutputsMismatch(t *testing.T) {
	ctx := newTestContext(t)
	color := mustTexture(t, ctx, Texture2DDescription(8, 8, gputypes.TextureFormatBGRA8Unorm, TextureUsageRenderTarget))
	fb, err := ctx.Factory().CreateFrameBuffer(FrameBufferDescription{ColorTargets: []FrameBufferAttachment{{Texture: color}}})
	if err != nil {
		t.Fatal(err)
	}
	autoDestroy(t, fb)
	pipeline := graphicsPipeline(t, ctx)

	cb := recording(t, ctx)
	defer cb.Reset()
	if err := cb.BeginRendering(fb, ClearValue{}); err != nil {
		t.Fatal(err)
	}
	defer cb.EndRendering()
	if err := cb.SetGraphicsPipeline(pipeline); !errors.Is(err, ErrValidation) {
		t.Errorf("SetGraphicsPipeline() error = %v, want ErrValidation", err)
	}
}

func TestViewportsAndScissors(t *testing.T) {
	b := &testBackend{}
	ctx := newHarness(t, b)
	fb := renderTarget(t, ctx)
	cb := recording(t, ctx)
	defer cb.Reset()
	if err := cb.BeginRendering(fb, ClearValue{}); err != nil {
		t.Fatal(err)
	}
	defer cb.EndRendering()

	vp := Viewport{Width: 64, Height: 64, MaxDepth: 1}
	if err := cb.SetViewports(vp); err != nil {
		t.Errorf("SetViewports() error = %v", err)
	}
	if err := cb.SetViewports(vp, vp); !errors.Is(err, ErrUnsupported) {
		t.Errorf("two viewports: error = %v, want ErrUnsupported", err)
	}
	if err := cb.SetViewports(Viewport{Width: 64, Height: 64, MinDepth: 0.8, MaxDepth: 0.2}); !errors.Is(err, ErrValidation) {
		t.Errorf("inverted depth: error = %v, want ErrValidation", err)
	}

	if err := cb.SetScissorRectangles(image.Rect(8, 8, 32, 32)); err != nil {
		t.Errorf("SetScissorRectangles() error = %v", err)
	}
	if err := cb.SetScissorRectangles(image.Rect(0, 0, 65, 10)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("oversized scissor: error = %v, want ErrOutOfBounds", err)
	}
	if err := cb.SetScissorRectangles(image.Rect(0, 0, 1, 1), image.Rect(0, 0, 2, 2)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("two scissors: error = %v, want ErrUnsupported", err)
	}
	s := b.device.snapshot()
	if s.viewports != 1 || s.scissors != 1 {
		t.Errorf("recorded viewports = %d scissors = %d, want 1 and 1", s.viewports, s.scissors)
	}
}

func TestVertexAndIndexBuffers(t *testing.T) {
	ctx := newTestContext(t)
	fb := renderTarget(t, ctx)
	vertices := mustBuffer(t, ctx, 64, BufferUsageVertex)
	indices := mustBuffer(t, ctx, 64, BufferUsageIndex)
	cb := recording(t, ctx)
	defer cb.Reset()
	if err := cb.BeginRendering(fb, ClearValue{}); err != nil {
		t.Fatal(err)
	}
	defer cb.EndRendering()

	if err := cb.SetVertexBuffers(VertexBufferBinding{Buffer: vertices}, VertexBufferBinding{Buffer: vertices, Offset: 32}); err != nil {
		t.Errorf("SetVertexBuffers() error = %v", err)
	}
	if err := cb.SetVertexBuffers(VertexBufferBinding{Buffer: indices}); !errors.Is(err, ErrValidation) {
		t.Errorf("index buffer as vertex: error = %v, want ErrValidation", err)
	}
	if err := cb.SetVertexBuffers(VertexBufferBinding{Buffer: vertices, Offset: 64}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("offset at end: error = %v, want ErrOutOfBounds", err)
	}
	tooMany := make([]VertexBufferBinding, ctx.Capabilities().Limits.MaxVertexBuffers+1)
	for i := range tooMany {
		tooMany[i] = VertexBufferBinding{Buffer: vertices}
	}
	if err := cb.SetVertexBuffers(tooMany...); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("too many vertex buffers: error = %v, want ErrOutOfBounds", err)
	}

	if err := cb.SetIndexBuffer(indices, gputypes.IndexFormatUint32, 2); !errors.Is(err, ErrValidation) {
		t.Errorf("misaligned index offset: error = %v, want ErrValidation", err)
	}
	if err := cb.SetIndexBuffer(vertices, gputypes.IndexFormatUint16, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("vertex buffer as index: error = %v, want ErrValidation", err)
	}
	if err := cb.SetIndexBuffer(indices, gputypes.IndexFormatUint32, 4); err != nil {
		t.Errorf("SetIndexBuffer() error = %v", err)
	}
}

func TestSetResourceSetValidation(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MinUniformBufferOffsetAlignment = 64
	limits.MinStorageBufferOffsetAlignment = 256
	ctx := newTestContext(t, WithLimits(limits))
	layout := mustLayout(t, ctx, LayoutElement{Stages: StagesCompute, Kind: ResourceKindConstantBuffer, AllowDynamicOffset: true, Range: 256})
	constants := mustBuffer(t, ctx, 1024, BufferUsageConstant)
	set := mustSet(t, ctx, layout, constants)

	storageLayout := mustLayout(t, ctx,
		LayoutElement{Stages: StagesCompute, Kind: ResourceKindStructuredBuffer, AllowDynamicOffset: true, Range: 128},
		LayoutElement{Stages: StagesCompute, Kind: ResourceKindConstantBuffer},
	)
	storage := mustBuffer(t, ctx, 512, BufferUsageReadOnlyStorage)
	storageSet := mustSet(t, ctx, storageLayout, storage, constants)

	wholeLayout := mustLayout(t, ctx, LayoutElement{Stages: StagesCompute, Kind: ResourceKindConstantBuffer, AllowDynamicOffset: true})
	wholeSet := mustSet(t, ctx, wholeLayout, constants)

	cb := recording(t, ctx)
	defer cb.Reset()

	tests := []struct {
		name    string
		set     *ResourceSet
		index   uint32
		offsets []uint32
		wantErr error
	}{
		{"aligned offset", set, 0, []uint32{64}, nil},
		{"last range in buffer", set, 0, []uint32{768}, nil},
		{"missing offset", set, 0, nil, ErrValidation},
		{"extra offset", set, 0, []uint32{0, 0}, ErrValidation},
		{"unaligned offset", set, 0, []uint32{4}, ErrValidation},
		{"range past buffer end", set, 0, []uint32{832}, ErrOutOfBounds},
		{"index at limit", set, limits.MaxBindGroups, []uint32{0}, ErrOutOfBounds},
		{"storage offset at storage alignment", storageSet, 0, []uint32{256}, nil},
		{"storage offset at constant alignment", storageSet, 0, []uint32{64}, ErrValidation},
		{"storage range past buffer end", storageSet, 0, []uint32{512}, ErrOutOfBounds},
		{"whole buffer at zero", wholeSet, 0, []uint32{0}, nil},
		{"whole buffer shifted", wholeSet, 0, []uint32{64}, ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cb.SetResourceSet(tt.index, tt.set, tt.offsets...)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("SetResourceSet() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SetResourceSet() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Indirect commands
// =============================================================================

func TestDrawIndirect(t *testing.T) {
	b := &testBackend{}
	ctx := newHarness(t, b)
	fb := renderTarget(t, ctx)
	pipeline := graphicsPipeline(t, ctx)
	args := mustBuffer(t, ctx, 256, BufferUsageIndirectArgs)
	plain := mustBuffer(t, ctx, 256, BufferUsageReadWriteStorage)
	indices := mustBuffer(t, ctx, 64, BufferUsageIndex)

	cb := recording(t, ctx)
	defer cb.Reset()
	if err := errors.Join(cb.BeginRendering(fb, ClearValue{}), cb.SetGraphicsPipeline(pipeline)); err != nil {
		t.Fatal(err)
	}
	defer cb.EndRendering()

	tests := []struct {
		name      string
		buf       *Buffer
		offset    uint64
		drawCount uint32
		stride    uint32
		wantErr   error
	}{
		{"packed", args, 0, 4, 0, nil},
		{"strided", args, 16, 3, 32, nil},
		{"zero draws", args, 0, 0, 0, nil},
		{"missing indirect usage", plain, 0, 1, 0, ErrMissingIndirectUsage},
		{"stride below record", args, 0, 2, 8, ErrValidation},
		{"stride not multiple of 4", args, 0, 2, 18, ErrValidation},
		{"unaligned offset", args, 2, 1, 0, ErrValidation},
		{"past end", args, 0, 17, 0, ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cb.DrawInstancedIndirect(tt.buf, tt.offset, tt.drawCount, tt.stride)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("DrawInstancedIndirect() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DrawInstancedIndirect() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if got := b.device.snapshot().indirect; got != 7 {
		t.Errorf("native indirect draws = %d, want 7", got)
	}

	if err := cb.DrawIndexedInstancedIndirect(args, 0, 1, 0); !errors.Is(err, ErrNoIndexBuffer) {
		t.Errorf("indexed indirect without index buffer: error = %v, want ErrNoIndexBuffer", err)
	}
	if err := cb.SetIndexBuffer(indices, gputypes.IndexFormatUint16, 0); err != nil {
		t.Fatal(err)
	}
	if err := cb.DrawIndexedInstancedIndirect(args, 0, 2, 0); err != nil {
		t.Errorf("DrawIndexedInstancedIndirect() error = %v", err)
	}
	if err := cb.DrawIndexedInstancedIndirect(plain, 0, 1, 0); !errors.Is(err, ErrMissingIndirectUsage) {
		t.Errorf("indexed indirect on plain buffer: error = %v, want ErrMissingIndirectUsage", err)
	}
}

// =============================================================================
// Compute
// =============================================================================

func TestDispatch(t *testing.T) {
	b := &testBackend{}
	ctx := newHarness(t, b)
	layout := mustLayout(t, ctx, LayoutElement{Stages: StagesCompute, Kind: ResourceKindStructuredBufferReadWrite})
	storage := mustBuffer(t, ctx, 256, BufferUsageReadWriteStorage)
	set := mustSet(t, ctx, layout, storage)
	args := mustBuffer(t, ctx, 64, BufferUsageIndirectArgs)
	p, err := ctx.Factory().CreateComputePipeline(ComputePipelineDescription{
		Shader:          mustShader(t, ctx, ShaderStageCompute),
		ResourceLayouts: []*ResourceLayout{layout},
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline() error = %v", err)
	}
	autoDestroy(t, p)

	cb := recording(t, ctx)
	defer cb.Reset()
	if err := cb.Dispatch(1, 1, 1); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("Dispatch without pipeline: error = %v, want ErrNoPipeline", err)
	}
	if err := cb.SetComputePipeline(p); err != nil {
		t.Fatal(err)
	}
	if err := cb.Dispatch(1, 1, 1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Dispatch without set: error = %v, want ErrInvalidState", err)
	}
	if err := cb.SetResourceSet(0, set); err != nil {
		t.Fatal(err)
	}
	if err := cb.Dispatch(8, 8, 1); err != nil {
		t.Errorf("Dispatch() error = %v", err)
	}
	limit := ctx.Capabilities().Limits.MaxComputeWorkgroupsPerDimension
	if err := cb.Dispatch(limit+1, 1, 1); !errors.Is(err, ErrValidation) {
		t.Errorf("Dispatch over limit: error = %v, want ErrValidation", err)
	}
	if err := cb.DispatchIndirect(args, 0); err != nil {
		t.Errorf("DispatchIndirect() error = %v", err)
	}
	if err := cb.DispatchIndirect(storage, 0); !errors.Is(err, ErrMissingIndirectUsage) {
		t.Errorf("DispatchIndirect on storage: error = %v, want ErrMissingIndirectUsage", err)
	}
	// A transfer between dispatches closes and reopens the compute pass.
	if err := cb.ClearBuffer(storage, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := cb.Dispatch(1, 1, 1); err != nil {
		t.Errorf("Dispatch() after transfer error = %v", err)
	}
	if got := b.device.snapshot().dispatches; got != 3 {
		t.Errorf("recorded dispatches = %d, want 3", got)
	}
}

func TestDispatchRaysUnsupported(t *testing.T) {
	ctx := newTestContext(t)
	cb := recording(t, ctx)
	defer cb.Reset()
	if err := cb.DispatchRays(8, 8, 1); !errors.Is(err, ErrRayTracingUnsupported) {
		t.Errorf("DispatchRays() error = %v, want ErrRayTracingUnsupported", err)
	}
}

func TestCommandBufferRejectsDestroyedResources(t *testing.T) {
	ctx := newTestContext(t)
	buf := mustBuffer(t, ctx, 64, BufferUsageVertex)
	buf.Destroy()
	cb := recording(t, ctx)
	defer cb.Reset()
	if err := cb.UpdateBuffer(buf, 0, make([]byte, 4)); !errors.Is(err, ErrDestroyed) {
		t.Errorf("UpdateBuffer(destroyed) error = %v, want ErrDestroyed", err)
	}
}
