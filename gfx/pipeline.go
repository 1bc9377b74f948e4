package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

type PipelineLayoutDescription struct {
	PushConstantRanges []core1_0.PushConstantRange
}

type PipelineLayout struct {
	ctx    *Context
	handle driver.PipelineLayout
}

func NewPipelineLayout(ctx *Context, desc PipelineLayoutDescription) (*PipelineLayout, error) {
	handle, err := ctx.dev.CreatePipelineLayout(driver.PipelineLayoutCreateInfo{
		PushConstantRanges: desc.PushConstantRanges,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	ctx.retain()
	return &PipelineLayout{ctx: ctx, handle: handle}, nil
}

func (l *PipelineLayout) Handle() driver.PipelineLayout { return l.handle }

// PushConstants records a push constant update of data at offset.
func (l *PipelineLayout) PushConstants(cmd driver.CommandBuffer, stages core1_0.ShaderStageFlags, offset int, data []byte) {
	l.ctx.dev.CmdPushConstants(cmd, l.handle, stages, offset, data)
}

func (l *PipelineLayout) Destroy() {
	if l.handle == driver.Null {
		return
	}
	l.ctx.dev.DestroyPipelineLayout(l.handle)
	l.handle = driver.Null
	l.ctx.release()
}

type ShaderStage struct {
	Shader     ShaderID
	Stage      core1_0.ShaderStageFlags
	EntryPoint string
}

type VertexAttribute struct {
	Location int
	Format   core1_0.Format
	Offset   int
}

type VertexBinding struct {
	Binding    int
	Stride     int
	InputRate  core1_0.VertexInputRate
	Attributes []VertexAttribute
}

type VertexLayout struct {
	Bindings []VertexBinding
}

func (v VertexLayout) createInfo() *core1_0.PipelineVertexInputStateCreateInfo {
	info := &core1_0.PipelineVertexInputStateCreateInfo{}
	for _, b := range v.Bindings {
		info.VertexBindingDescriptions = append(info.VertexBindingDescriptions, core1_0.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: b.InputRate,
		})
		for _, a := range b.Attributes {
			info.VertexAttributeDescriptions = append(info.VertexAttributeDescriptions, core1_0.VertexInputAttributeDescription{
				Binding:  b.Binding,
				Location: uint32(a.Location),
				Format:   a.Format,
				Offset:   a.Offset,
			})
		}
	}
	return info
}

// GraphicsPipelineDescription is everything a graphics pipeline is built
// from. Shaders are named by ID and resolved through the Context's shader
// cache.
type GraphicsPipelineDescription struct {
	Stages        []ShaderStage
	VertexLayout  VertexLayout
	InputAssembly core1_0.PipelineInputAssemblyStateCreateInfo
	Rasterization core1_0.PipelineRasterizationStateCreateInfo
	Multisample   core1_0.PipelineMultisampleStateCreateInfo
	// DepthStencil is nil for pipelines without a depth attachment.
	DepthStencil  *core1_0.PipelineDepthStencilStateCreateInfo
	ColorBlend    core1_0.PipelineColorBlendStateCreateInfo
	Viewports     []core1_0.Viewport
	Scissors      []core1_0.Rect2D
	DynamicStates []core1_0.DynamicState
	Layout        *PipelineLayout
	RenderPass    *RenderPass
	Subpass       int
}

// DefaultGraphicsPipelineDescription describes filled, back-face culled,
// single-sample triangle lists with blending disabled on one color
// attachment.
func DefaultGraphicsPipelineDescription() GraphicsPipelineDescription {
	return GraphicsPipelineDescription{
		InputAssembly: core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology: core1_0.PrimitiveTopologyTriangleList,
		},
		Rasterization: core1_0.PipelineRasterizationStateCreateInfo{
			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		Multisample: core1_0.PipelineMultisampleStateCreateInfo{
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		ColorBlend: core1_0.PipelineColorBlendStateCreateInfo{
			LogicOp: core1_0.LogicOpCopy,
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
	}
}

// AddShader appends a stage using the "main" entry point.
func (d *GraphicsPipelineDescription) AddShader(id ShaderID, stage core1_0.ShaderStageFlags) *GraphicsPipelineDescription {
	d.Stages = append(d.Stages, ShaderStage{Shader: id, Stage: stage, EntryPoint: "main"})
	return d
}

type GraphicsPipeline struct {
	ctx    *Context
	handle driver.Pipeline
	layout *PipelineLayout
}

func NewGraphicsPipeline(ctx *Context, desc GraphicsPipelineDescription) (*GraphicsPipeline, error) {
	if desc.Layout == nil || desc.RenderPass == nil {
		return nil, errors.New("graphics pipeline needs a layout and a render pass")
	}
	if len(desc.Stages) == 0 {
		return nil, errors.New("graphics pipeline needs at least one shader stage")
	}

	stages := make([]driver.ShaderStage, len(desc.Stages))
	for i, s := range desc.Stages {
		module, err := ctx.shaders.Get(s.Shader)
		if err != nil {
			return nil, err
		}
		entry := s.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages[i] = driver.ShaderStage{Stage: s.Stage, Module: module, EntryPoint: entry}
	}

	viewports, scissors := desc.Viewports, desc.Scissors
	if len(viewports) == 0 {
		viewports = []core1_0.Viewport{ctx.FullViewport()}
	}
	if len(scissors) == 0 {
		scissors = []core1_0.Rect2D{ctx.FullRenderArea()}
	}

	var dynamic *core1_0.PipelineDynamicStateCreateInfo
	if len(desc.DynamicStates) > 0 {
		dynamic = &core1_0.PipelineDynamicStateCreateInfo{DynamicStates: desc.DynamicStates}
	}

	inputAssembly, rasterization, multisample, colorBlend := desc.InputAssembly, desc.Rasterization, desc.Multisample, desc.ColorBlend
	handle, err := ctx.dev.CreateGraphicsPipeline(driver.GraphicsPipelineCreateInfo{
		Stages:        stages,
		VertexInput:   desc.VertexLayout.createInfo(),
		InputAssembly: &inputAssembly,
		Viewport: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: viewports,
			Scissors:  scissors,
		},
		Rasterization: &rasterization,
		Multisample:   &multisample,
		DepthStencil:  desc.DepthStencil,
		ColorBlend:    &colorBlend,
		Dynamic:       dynamic,
		Layout:        desc.Layout.handle,
		RenderPass:    desc.RenderPass.handle,
		Subpass:       desc.Subpass,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	ctx.retain()
	return &GraphicsPipeline{ctx: ctx, handle: handle, layout: desc.Layout}, nil
}

func (p *GraphicsPipeline) Handle() driver.Pipeline { return p.handle }
func (p *GraphicsPipeline) Layout() *PipelineLayout { return p.layout }

func (p *GraphicsPipeline) Bind(cmd driver.CommandBuffer) {
	p.ctx.dev.CmdBindPipeline(cmd, core1_0.PipelineBindPointGraphics, p.handle)
}

func (p *GraphicsPipeline) Destroy() {
	if p.handle == driver.Null {
		return
	}
	p.ctx.dev.DestroyPipeline(p.handle)
	p.handle = driver.Null
	p.ctx.release()
}
