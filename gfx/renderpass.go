package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/katgfx/kat/driver"
)

type RenderPassDescription struct {
	Attachments  []core1_0.AttachmentDescription
	Subpasses    []core1_0.SubpassDescription
	Dependencies []core1_0.SubpassDependency
}

// ColorAttachment describes a single-sample color attachment that is
// cleared on load, stored, and left in finalLayout.
func ColorAttachment(format core1_0.Format, finalLayout core1_0.ImageLayout) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         format,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpStore,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    finalLayout,
	}
}

// DepthAttachment describes a depth attachment that is cleared on load and
// discarded after the pass.
func DepthAttachment(format core1_0.Format) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         format,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	}
}

// PresentPassDescription is a single-subpass pass rendering to one color
// attachment that ends up ready for presentation.
func PresentPassDescription(format core1_0.Format) RenderPassDescription {
	return RenderPassDescription{
		Attachments: []core1_0.AttachmentDescription{
			ColorAttachment(format, khr_swapchain.ImageLayoutPresentSrc),
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
				},
			},
		},
		Dependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass:    core1_0.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,
				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	}
}

type RenderPass struct {
	ctx    *Context
	handle driver.RenderPass
	desc   RenderPassDescription
}

func NewRenderPass(ctx *Context, desc RenderPassDescription) (*RenderPass, error) {
	handle, err := ctx.dev.CreateRenderPass(core1_0.RenderPassCreateInfo{
		Attachments:         desc.Attachments,
		Subpasses:           desc.Subpasses,
		SubpassDependencies: desc.Dependencies,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	ctx.retain()
	return &RenderPass{ctx: ctx, handle: handle, desc: desc}, nil
}

func (rp *RenderPass) Handle() driver.RenderPass          { return rp.handle }
func (rp *RenderPass) Description() RenderPassDescription { return rp.desc }

// RenderPassBegin is what begins one instance of a render pass.
type RenderPassBegin struct {
	Framebuffer driver.Framebuffer
	RenderArea  core1_0.Rect2D
	ClearValues []core1_0.ClearValue
	Contents    core1_0.SubpassContents
}

func (rp *RenderPass) Begin(cmd driver.CommandBuffer, info RenderPassBegin) error {
	err := rp.ctx.dev.CmdBeginRenderPass(cmd, driver.RenderPassBegin{
		RenderPass:  rp.handle,
		Framebuffer: info.Framebuffer,
		RenderArea:  info.RenderArea,
		ClearValues: info.ClearValues,
		Contents:    info.Contents,
	})
	return errors.Wrap(err, "begin render pass")
}

func (rp *RenderPass) End(cmd driver.CommandBuffer) {
	rp.ctx.dev.CmdEndRenderPass(cmd)
}

// CreateFramebuffer creates a single-layer framebuffer for this pass.
// attachments are in the order of the description's attachments.
func (rp *RenderPass) CreateFramebuffer(extent core1_0.Extent2D, attachments ...driver.ImageView) (driver.Framebuffer, error) {
	fb, err := rp.ctx.dev.CreateFramebuffer(driver.FramebufferCreateInfo{
		RenderPass:  rp.handle,
		Attachments: attachments,
		Width:       extent.Width,
		Height:      extent.Height,
		Layers:      1,
	})
	return fb, errors.Wrap(err, "create framebuffer")
}

// CreateFramebuffers creates one framebuffer per view, each with the view
// as its first attachment followed by shared. On failure none are left
// behind.
func (rp *RenderPass) CreateFramebuffers(extent core1_0.Extent2D, views []driver.ImageView, shared ...driver.ImageView) ([]driver.Framebuffer, error) {
	fbs := make([]driver.Framebuffer, 0, len(views))
	for i, v := range views {
		fb, err := rp.CreateFramebuffer(extent, append([]driver.ImageView{v}, shared...)...)
		if err != nil {
			rp.DestroyFramebuffers(fbs)
			return nil, errors.Wrapf(err, "framebuffer %d", i)
		}
		fbs = append(fbs, fb)
	}
	return fbs, nil
}

func (rp *RenderPass) DestroyFramebuffers(fbs []driver.Framebuffer) {
	for _, fb := range fbs {
		rp.ctx.dev.DestroyFramebuffer(fb)
	}
}

func (rp *RenderPass) Destroy() {
	if rp.handle == driver.Null {
		return
	}
	rp.ctx.dev.DestroyRenderPass(rp.handle)
	rp.handle = driver.Null
	rp.ctx.release()
}
