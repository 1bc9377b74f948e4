package vkng

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

// Recording calls resolve handles with lookup. Recording against a stale
// handle is a programming error the validation layer reports.

func (d *Device) CmdPipelineBarrier(h driver.CommandBuffer, src, dst core1_0.PipelineStageFlags, barriers ...driver.ImageBarrier) {
	out := make([]core1_0.ImageMemoryBarrier, len(barriers))
	for i, b := range barriers {
		out[i] = core1_0.ImageMemoryBarrier{
			SrcAccessMask:       b.SrcAccess,
			DstAccessMask:       b.DstAccess,
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               d.images.lookup(b.Image),
			SubresourceRange:    b.Range,
		}
	}
	if err := d.device.CmdPipelineBarrier(d.commandBuffers.lookup(h), src, dst, 0, nil, nil, out); err != nil {
		d.log.Error("vkng: pipeline barrier", "err", err)
	}
}

func (d *Device) CmdCopyBuffer(h driver.CommandBuffer, src, dst driver.Buffer, regions ...core1_0.BufferCopy) error {
	cb, err := d.commandBuffers.get(h)
	if err != nil {
		return err
	}
	s, err := d.buffers.get(src)
	if err != nil {
		return err
	}
	t, err := d.buffers.get(dst)
	if err != nil {
		return err
	}
	return d.device.CmdCopyBuffer(cb, s, t, regions...)
}

func (d *Device) CmdCopyBufferToImage(h driver.CommandBuffer, src driver.Buffer, dst driver.Image, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error {
	cb, err := d.commandBuffers.get(h)
	if err != nil {
		return err
	}
	b, err := d.buffers.get(src)
	if err != nil {
		return err
	}
	img, err := d.images.get(dst)
	if err != nil {
		return err
	}
	return d.device.CmdCopyBufferToImage(cb, b, img, layout, regions...)
}

func (d *Device) CmdBeginRenderPass(h driver.CommandBuffer, info driver.RenderPassBegin) error {
	cb, err := d.commandBuffers.get(h)
	if err != nil {
		return err
	}
	rp, err := d.renderPasses.get(info.RenderPass)
	if err != nil {
		return err
	}
	fb, err := d.framebuffers.get(info.Framebuffer)
	if err != nil {
		return err
	}
	return d.device.CmdBeginRenderPass(cb, info.Contents, core1_0.RenderPassBeginInfo{
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea:  info.RenderArea,
		ClearValues: info.ClearValues,
	})
}

func (d *Device) CmdEndRenderPass(h driver.CommandBuffer) {
	d.device.CmdEndRenderPass(d.commandBuffers.lookup(h))
}

func (d *Device) CmdBindPipeline(h driver.CommandBuffer, bindPoint core1_0.PipelineBindPoint, p driver.Pipeline) {
	d.device.CmdBindPipeline(d.commandBuffers.lookup(h), bindPoint, d.pipelines.lookup(p))
}

func (d *Device) CmdBindVertexBuffers(h driver.CommandBuffer, firstBinding int, hs []driver.Buffer, offsets []int) {
	buffers := make([]core1_0.Buffer, len(hs))
	for i, b := range hs {
		buffers[i] = d.buffers.lookup(b)
	}
	d.device.CmdBindVertexBuffers(d.commandBuffers.lookup(h), firstBinding, buffers, offsets)
}

func (d *Device) CmdBindIndexBuffer(h driver.CommandBuffer, b driver.Buffer, offset int, indexType core1_0.IndexType) {
	d.device.CmdBindIndexBuffer(d.commandBuffers.lookup(h), d.buffers.lookup(b), offset, indexType)
}

func (d *Device) CmdPushConstants(h driver.CommandBuffer, layout driver.PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte) {
	d.device.CmdPushConstants(d.commandBuffers.lookup(h), d.pipelineLayouts.lookup(layout), stages, offset, data)
}

func (d *Device) CmdDraw(h driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int) {
	d.device.CmdDraw(d.commandBuffers.lookup(h), vertexCount, instanceCount, uint32(firstVertex), uint32(firstInstance))
}

func (d *Device) CmdDrawIndexed(h driver.CommandBuffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	d.device.CmdDrawIndexed(d.commandBuffers.lookup(h), indexCount, instanceCount, uint32(firstIndex), vertexOffset, uint32(firstInstance))
}
