package gfx

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

func newPresentPass(t *testing.T, ctx *Context) *RenderPass {
	t.Helper()
	rp, err := NewRenderPass(ctx, PresentPassDescription(ctx.SwapchainFormat()))
	if err != nil {
		t.Fatalf("NewRenderPass: %v", err)
	}
	t.Cleanup(rp.Destroy)
	return rp
}

func newTrianglePipeline(t *testing.T, ctx *Context, rp *RenderPass) *GraphicsPipeline {
	t.Helper()
	layout, err := NewPipelineLayout(ctx, PipelineLayoutDescription{
		PushConstantRanges: []core1_0.PushConstantRange{{StageFlags: core1_0.StageVertex, Size: 64}},
	})
	if err != nil {
		t.Fatalf("NewPipelineLayout: %v", err)
	}
	t.Cleanup(layout.Destroy)

	desc := DefaultGraphicsPipelineDescription()
	desc.AddShader("shaders/tri.vert.spv", core1_0.StageVertex).
		AddShader("shaders/tri.frag.spv", core1_0.StageFragment)
	desc.VertexLayout = VertexLayout{Bindings: []VertexBinding{{
		Stride: 24,
		Attributes: []VertexAttribute{
			{Location: 0, Format: core1_0.FormatR32G32B32SignedFloat},
			{Location: 1, Format: core1_0.FormatR32G32B32SignedFloat, Offset: 12},
		},
	}}}
	desc.Layout = layout
	desc.RenderPass = rp

	p, err := NewGraphicsPipeline(ctx, desc)
	if err != nil {
		t.Fatalf("NewGraphicsPipeline: %v", err)
	}
	t.Cleanup(p.Destroy)
	return p
}

func TestRenderPassFramebuffers(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	rp := newPresentPass(t, ctx)

	fbs, err := rp.CreateFramebuffers(ctx.SwapchainExtent(), ctx.SwapchainImageViews())
	if err != nil {
		t.Fatal(err)
	}
	if len(fbs) != len(ctx.SwapchainImageViews()) || dev.Live("framebuffer") != len(fbs) {
		t.Errorf("%d framebuffers, %d alive", len(fbs), dev.Live("framebuffer"))
	}
	rp.DestroyFramebuffers(fbs)
	if dev.Live("framebuffer") != 0 {
		t.Error("framebuffers left alive")
	}

	// One framebuffer made outside the batch; the failed batch must not add any.
	dev.ResetHistory()
	if _, err := rp.CreateFramebuffer(ctx.SwapchainExtent(), ctx.SwapchainImageViews()[0]); err != nil {
		t.Fatal(err)
	}
	dev.FailNext("CreateFramebuffer", errors.New("boom"))
	if _, err := rp.CreateFramebuffers(ctx.SwapchainExtent(), ctx.SwapchainImageViews()); err == nil {
		t.Fatal("CreateFramebuffers succeeded")
	}
	if dev.Live("framebuffer") != 1 {
		t.Errorf("%d framebuffers alive, want only the one created before", dev.Live("framebuffer"))
	}
}

func TestRenderPassRecording(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	rp := newPresentPass(t, ctx)
	p := newTrianglePipeline(t, ctx, rp)

	fbs, err := rp.CreateFramebuffers(ctx.SwapchainExtent(), ctx.SwapchainImageViews())
	if err != nil {
		t.Fatal(err)
	}
	defer rp.DestroyFramebuffers(fbs)

	err = ctx.SingleTimeCommands(func(cmd driver.CommandBuffer) error {
		if err := rp.Begin(cmd, RenderPassBegin{
			Framebuffer: fbs[0],
			RenderArea:  ctx.FullRenderArea(),
			ClearValues: []core1_0.ClearValue{core1_0.ClearValueFloat{0, 0, 0, 1}},
			Contents:    core1_0.SubpassContentsInline,
		}); err != nil {
			return err
		}
		p.Bind(cmd)
		p.Layout().PushConstants(cmd, core1_0.StageVertex, 0, make([]byte, 64))
		ctx.Device().CmdDraw(cmd, 3, 1, 0, 0)
		rp.End(cmd)
		return nil
	})
	if err != nil {
		t.Fatalf("recording: %v", err)
	}

	var got []string
	for _, c := range dev.History() {
		switch c.Name {
		case "CmdBeginRenderPass":
			if c.Handles[1] != uint64(rp.Handle()) || c.Handles[2] != uint64(fbs[0]) {
				t.Errorf("began pass %d on framebuffer %d", c.Handles[1], c.Handles[2])
			}
			got = append(got, c.Name)
		case "CmdBindPipeline", "CmdPushConstants", "CmdDraw", "CmdEndRenderPass":
			got = append(got, c.Name)
		}
	}
	want := []string{"CmdBeginRenderPass", "CmdBindPipeline", "CmdPushConstants", "CmdDraw", "CmdEndRenderPass"}
	if len(got) != len(want) {
		t.Fatalf("recorded %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recorded %v, want %v", got, want)
		}
	}
}

func TestRenderPassBeginOutsideRecording(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	rp := newPresentPass(t, ctx)

	frame, err := ctx.AcquireNextFrame()
	if err != nil {
		t.Fatal(err)
	}
	if err := rp.Begin(frame.CommandBuffer, RenderPassBegin{RenderArea: ctx.FullRenderArea()}); err == nil {
		t.Error("begin accepted a command buffer that is not recording")
	}
	ctx.SubmitFrame(frame)
	ctx.Present()
}

func TestGraphicsPipelineResolvesShaders(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	rp := newPresentPass(t, ctx)
	p := newTrianglePipeline(t, ctx, rp)

	info, ok := dev.Pipeline(p.Handle())
	if !ok {
		t.Fatal("pipeline not created")
	}
	if len(info.Stages) != 2 {
		t.Fatalf("%d stages", len(info.Stages))
	}
	vert, _ := ctx.ShaderCache().GetIfPresent("shaders/tri.vert.spv")
	frag, _ := ctx.ShaderCache().GetIfPresent("shaders/tri.frag.spv")
	if info.Stages[0].Module != vert || info.Stages[1].Module != frag {
		t.Error("stages do not use the cached modules")
	}
	if info.Stages[0].EntryPoint != "main" {
		t.Errorf("entry point %q", info.Stages[0].EntryPoint)
	}
	if info.RenderPass != rp.Handle() || info.Layout != p.Layout().Handle() {
		t.Error("pipeline built against the wrong pass or layout")
	}

	vp := info.Viewport.Viewports[0]
	ext := ctx.SwapchainExtent()
	if vp.Width != float32(ext.Width) || vp.Height != float32(ext.Height) {
		t.Errorf("default viewport %vx%v, want %dx%d", vp.Width, vp.Height, ext.Width, ext.Height)
	}
	if sc := info.Viewport.Scissors[0]; sc.Extent != ext {
		t.Errorf("default scissor %v", sc.Extent)
	}
	if n := len(info.VertexInput.VertexAttributeDescriptions); n != 2 {
		t.Errorf("%d vertex attributes", n)
	}
	if info.Dynamic != nil {
		t.Error("dynamic state set without dynamic states")
	}

	// A second pipeline from the same shaders creates no new modules.
	before := dev.Count("CreateShaderModule")
	newTrianglePipeline(t, ctx, rp)
	if dev.Count("CreateShaderModule") != before {
		t.Error("shaders reloaded for a second pipeline")
	}
}

func TestGraphicsPipelineErrors(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	rp := newPresentPass(t, ctx)
	layout, err := NewPipelineLayout(ctx, PipelineLayoutDescription{})
	if err != nil {
		t.Fatal(err)
	}
	defer layout.Destroy()

	desc := DefaultGraphicsPipelineDescription()
	desc.RenderPass = rp
	desc.Layout = layout
	if _, err := NewGraphicsPipeline(ctx, desc); err == nil {
		t.Error("pipeline without stages accepted")
	}

	desc.AddShader("shaders/broken.spv", core1_0.StageVertex)
	if _, err := NewGraphicsPipeline(ctx, desc); !errors.Is(err, ErrInvalidBytecode) {
		t.Errorf("broken shader: %v", err)
	}
	if dev.Live("pipeline") != 0 {
		t.Error("pipeline created from a broken shader")
	}

	desc.Layout = nil
	if _, err := NewGraphicsPipeline(ctx, desc); err == nil {
		t.Error("pipeline without layout accepted")
	}
}

func TestPipelineObjectsCountAsLive(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	base := ctx.LiveResources()

	rp, err := NewRenderPass(ctx, PresentPassDescription(ctx.SwapchainFormat()))
	if err != nil {
		t.Fatal(err)
	}
	layout, err := NewPipelineLayout(ctx, PipelineLayoutDescription{})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.LiveResources() != base+2 {
		t.Errorf("%d live resources, want %d", ctx.LiveResources(), base+2)
	}

	layout.Destroy()
	layout.Destroy()
	rp.Destroy()
	rp.Destroy()
	if ctx.LiveResources() != base {
		t.Errorf("%d live resources after destroy, want %d", ctx.LiveResources(), base)
	}
	if dev.Live("render-pass")+dev.Live("pipeline-layout") != 0 {
		t.Error("objects alive after destroy")
	}
}

func TestPipelineLayoutPushConstantRanges(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	layout, err := NewPipelineLayout(ctx, PipelineLayoutDescription{
		PushConstantRanges: []core1_0.PushConstantRange{
			{StageFlags: core1_0.StageVertex, Size: 64},
			{StageFlags: core1_0.StageFragment, Offset: 64, Size: 16},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	info, ok := dev.PipelineLayout(layout.Handle())
	if !ok {
		t.Fatal("layout not created")
	}
	if len(info.PushConstantRanges) != 2 {
		t.Fatalf("%d push constant ranges", len(info.PushConstantRanges))
	}
	if r := info.PushConstantRanges[0]; r.StageFlags != core1_0.StageVertex || r.Offset != 0 || r.Size != 64 {
		t.Errorf("vertex range %+v", r)
	}
	if r := info.PushConstantRanges[1]; r.StageFlags != core1_0.StageFragment || r.Offset != 64 || r.Size != 16 {
		t.Errorf("fragment range %+v", r)
	}

	layout.Destroy()
	if _, ok := dev.PipelineLayout(layout.Handle()); ok {
		t.Error("layout still recorded after destroy")
	}
}
