package main

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
	"github.com/katgfx/kat/gfx"
)

const (
	vertexShader   gfx.ShaderID = "mesh.vert.spv"
	fragmentShader gfx.ShaderID = "mesh.frag.spv"

	depthFormat = core1_0.FormatD32SignedFloat
	mvpSize     = 16 * 4
)

// vulkanClip flips Y and maps depth from [-1, 1] to [0, 1].
var vulkanClip = mgl32.Mat4{1, 0, 0, 0, 0, -1, 0, 0, 0, 0, 0.5, 0, 0, 0, 0.5, 1}

// Scene draws one spinning mesh.
type Scene struct {
	vertices   *gfx.Buffer
	indices    *gfx.Buffer
	indexCount int
	center     mgl32.Vec3
	radius     float32

	pass     *gfx.RenderPass
	layout   *gfx.PipelineLayout
	pipeline *gfx.GraphicsPipeline

	depth        *gfx.Image
	depthView    *gfx.ImageView
	framebuffers []driver.Framebuffer

	mu     sync.Mutex
	angle  float64
	speed  float64
	paused bool
}

func NewScene(ctx *gfx.Context, mesh *Mesh) (_ *Scene, err error) {
	s := &Scene{speed: math.Pi / 2}
	defer func() {
		if err != nil {
			s.Destroy(ctx)
		}
	}()
	s.center, s.radius = mesh.Bounds()

	alloc := ctx.Allocator()
	s.vertices, err = gfx.InitBufferOf(alloc, mesh.Vertices, core1_0.BufferUsageVertexBuffer, gfx.MemoryUsageGPUOnly)
	if err != nil {
		return nil, errors.Wrap(err, "upload vertices")
	}
	s.indices, err = gfx.InitBufferOf(alloc, mesh.Indices, core1_0.BufferUsageIndexBuffer, gfx.MemoryUsageGPUOnly)
	if err != nil {
		return nil, errors.Wrap(err, "upload indices")
	}
	s.indexCount = len(mesh.Indices)

	s.pass, err = gfx.NewRenderPass(ctx, passDescription(ctx.SwapchainFormat()))
	if err != nil {
		return nil, err
	}
	s.layout, err = gfx.NewPipelineLayout(ctx, gfx.PipelineLayoutDescription{
		PushConstantRanges: []core1_0.PushConstantRange{{StageFlags: core1_0.StageVertex, Size: mvpSize}},
	})
	if err != nil {
		return nil, err
	}
	if err := s.SwapchainRecreated(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func passDescription(color core1_0.Format) gfx.RenderPassDescription {
	desc := gfx.PresentPassDescription(color)
	desc.Attachments = append(desc.Attachments, gfx.DepthAttachment(depthFormat))
	desc.Subpasses[0].DepthStencilAttachment = &core1_0.AttachmentReference{
		Attachment: 1,
		Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	}
	dep := &desc.Dependencies[0]
	dep.SrcStageMask |= core1_0.PipelineStageEarlyFragmentTests
	dep.DstStageMask |= core1_0.PipelineStageEarlyFragmentTests
	dep.DstAccessMask |= core1_0.AccessDepthStencilAttachmentWrite
	return desc
}

// SwapchainRecreated rebuilds everything sized to the swapchain: the depth
// buffer, the framebuffers and the pipeline, whose viewport is static.
func (s *Scene) SwapchainRecreated(ctx *gfx.Context) error {
	s.destroySwapchainResources()
	extent := ctx.SwapchainExtent()

	var err error
	s.depth, err = ctx.Allocator().CreateImage(core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Format:        depthFormat,
		Extent:        core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         core1_0.ImageUsageDepthStencilAttachment,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	}, gfx.MemoryUsageGPUOnly)
	if err != nil {
		return errors.Wrap(err, "create depth buffer")
	}
	s.depthView, err = s.depth.CreateView(core1_0.ImageAspectDepth)
	if err != nil {
		return err
	}

	s.framebuffers, err = s.pass.CreateFramebuffers(extent, ctx.SwapchainImageViews(), s.depthView.Handle())
	if err != nil {
		return err
	}

	desc := gfx.DefaultGraphicsPipelineDescription()
	desc.AddShader(vertexShader, core1_0.StageVertex).
		AddShader(fragmentShader, core1_0.StageFragment)
	desc.VertexLayout = vertexLayout
	desc.DepthStencil = &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}
	desc.Layout = s.layout
	desc.RenderPass = s.pass
	s.pipeline, err = gfx.NewGraphicsPipeline(ctx, desc)
	return err
}

func (s *Scene) destroySwapchainResources() {
	if s.pipeline != nil {
		s.pipeline.Destroy()
		s.pipeline = nil
	}
	if s.pass != nil {
		s.pass.DestroyFramebuffers(s.framebuffers)
	}
	s.framebuffers = nil
	if s.depthView != nil {
		s.depthView.Destroy()
		s.depthView = nil
	}
	if s.depth != nil {
		s.depth.Release()
		s.depth = nil
	}
}

func (s *Scene) TogglePause() {
	s.mu.Lock()
	s.paused = !s.paused
	s.mu.Unlock()
}

func (s *Scene) Update(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.angle = math.Mod(s.angle+dt.Seconds()*s.speed, 2*math.Pi)
	}
}

func (s *Scene) mvp(aspect float32) mgl32.Mat4 {
	s.mu.Lock()
	angle := float32(s.angle)
	s.mu.Unlock()

	distance := s.radius * 3
	projection := mgl32.Perspective(mgl32.DegToRad(45), aspect, distance/100, distance*3)
	view := mgl32.LookAtV(mgl32.Vec3{0, s.radius, distance}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	model := mgl32.HomogRotate3DY(angle).Mul4(mgl32.Translate3D(-s.center[0], -s.center[1], -s.center[2]))
	return vulkanClip.Mul4(projection).Mul4(view).Mul4(model)
}

func (s *Scene) Render(ctx *gfx.Context, frame gfx.Frame, _ time.Duration) error {
	extent := ctx.SwapchainExtent()
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	var push bytes.Buffer
	if err := binary.Write(&push, common.ByteOrder, s.mvp(aspect)); err != nil {
		return errors.Wrap(err, "encode push constants")
	}

	dev := ctx.Device()
	cmd := frame.CommandBuffer
	if err := dev.BeginCommandBuffer(cmd, true); err != nil {
		return errors.Wrap(err, "begin frame commands")
	}
	err := s.pass.Begin(cmd, gfx.RenderPassBegin{
		Framebuffer: s.framebuffers[frame.ImageIndex],
		RenderArea:  ctx.FullRenderArea(),
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0.05, 0.05, 0.08, 1},
			core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
		},
		Contents: core1_0.SubpassContentsInline,
	})
	if err != nil {
		return err
	}
	s.pipeline.Bind(cmd)
	s.layout.PushConstants(cmd, core1_0.StageVertex, 0, push.Bytes())
	dev.CmdBindVertexBuffers(cmd, 0, []driver.Buffer{s.vertices.Handle()}, []int{0})
	dev.CmdBindIndexBuffer(cmd, s.indices.Handle(), 0, core1_0.IndexTypeUInt32)
	dev.CmdDrawIndexed(cmd, s.indexCount, 1, 0, 0, 0)
	s.pass.End(cmd)
	if err := dev.EndCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "end frame commands")
	}
	return ctx.SubmitFrame(frame)
}

// Destroy releases everything the scene created. The device must be idle.
func (s *Scene) Destroy(*gfx.Context) {
	s.destroySwapchainResources()
	if s.layout != nil {
		s.layout.Destroy()
		s.layout = nil
	}
	if s.pass != nil {
		s.pass.Destroy()
		s.pass = nil
	}
	for _, b := range []**gfx.Buffer{&s.indices, &s.vertices} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
}
