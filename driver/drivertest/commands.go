package drivertest

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

func (d *Device) recordOp(name string, cb driver.CommandBuffer, op func(d *Device), handles ...uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(name, append([]uint64{uint64(cb)}, handles...)...)
	c, ok := d.cmdBufs[cb]
	if !ok {
		return errors.Wrapf(driver.ErrUnknownHandle, "command buffer %d", cb)
	}
	if !c.recording {
		return errors.Newf("%s: command buffer %d is not recording", name, cb)
	}
	if op != nil {
		c.ops = append(c.ops, op)
	}
	return nil
}

func (d *Device) CmdPipelineBarrier(cb driver.CommandBuffer, src, dst core1_0.PipelineStageFlags, barriers ...driver.ImageBarrier) {
	_ = d.recordOp("CmdPipelineBarrier", cb, func(d *Device) {
		for _, b := range barriers {
			if im, ok := d.images[b.Image]; ok {
				im.layout = b.NewLayout
			}
		}
	})
}

func (d *Device) CmdCopyBuffer(cb driver.CommandBuffer, src, dst driver.Buffer, regions ...core1_0.BufferCopy) error {
	return d.recordOp("CmdCopyBuffer", cb, func(d *Device) {
		s, t := d.buffers[src], d.buffers[dst]
		if s == nil || t == nil {
			return
		}
		sm, tm := d.memory[s.mem], d.memory[t.mem]
		for _, r := range regions {
			copy(tm.data[t.offset+r.DstOffset:t.offset+r.DstOffset+r.Size], sm.data[s.offset+r.SrcOffset:s.offset+r.SrcOffset+r.Size])
		}
	}, uint64(src), uint64(dst))
}

func (d *Device) CmdCopyBufferToImage(cb driver.CommandBuffer, src driver.Buffer, dst driver.Image, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error {
	return d.recordOp("CmdCopyBufferToImage", cb, func(d *Device) {
		s, t := d.buffers[src], d.images[dst]
		if s == nil || t == nil || !t.bound {
			return
		}
		sm, tm := d.memory[s.mem], d.memory[t.mem]
		// Tightly packed copy of the whole source buffer.
		copy(tm.data[t.offset:], sm.data[s.offset:s.offset+s.info.Size])
	}, uint64(src), uint64(dst))
}

func (d *Device) CmdBeginRenderPass(cb driver.CommandBuffer, info driver.RenderPassBegin) error {
	return d.recordOp("CmdBeginRenderPass", cb, nil, uint64(info.RenderPass), uint64(info.Framebuffer))
}

func (d *Device) CmdEndRenderPass(cb driver.CommandBuffer) {
	_ = d.recordOp("CmdEndRenderPass", cb, nil)
}

func (d *Device) CmdBindPipeline(cb driver.CommandBuffer, bindPoint core1_0.PipelineBindPoint, p driver.Pipeline) {
	_ = d.recordOp("CmdBindPipeline", cb, nil, uint64(p))
}

func (d *Device) CmdBindVertexBuffers(cb driver.CommandBuffer, firstBinding int, buffers []driver.Buffer, offsets []int) {
	handles := make([]uint64, len(buffers))
	for i, b := range buffers {
		handles[i] = uint64(b)
	}
	_ = d.recordOp("CmdBindVertexBuffers", cb, nil, handles...)
}

func (d *Device) CmdBindIndexBuffer(cb driver.CommandBuffer, b driver.Buffer, offset int, indexType core1_0.IndexType) {
	_ = d.recordOp("CmdBindIndexBuffer", cb, nil, uint64(b))
}

func (d *Device) CmdPushConstants(cb driver.CommandBuffer, layout driver.PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte) {
	_ = d.recordOp("CmdPushConstants", cb, nil, uint64(layout))
}

func (d *Device) CmdDraw(cb driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int) {
	_ = d.recordOp("CmdDraw", cb, nil)
}

func (d *Device) CmdDrawIndexed(cb driver.CommandBuffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	_ = d.recordOp("CmdDrawIndexed", cb, nil)
}

var _ driver.Device = (*Device)(nil)
