package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/katgfx/kat/driver"
)

// SingleTimeCommands records one primary command buffer with record, submits
// it on the graphics queue and blocks until the GPU has executed it.
//
// This is a full CPU/GPU serialization point meant for setup work such as
// uploads, not for per-frame rendering. The command buffer and the fence
// used for the wait are freed before returning, on every path. Calls are
// serialized because they share one command pool.
func (c *Context) SingleTimeCommands(record func(cmd driver.CommandBuffer) error) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.singleTimeMu.Lock()
	defer c.singleTimeMu.Unlock()

	bufs, err := c.dev.AllocateCommandBuffers(c.singleTimePool, 1)
	if err != nil {
		return errors.Wrap(err, "allocate single-time command buffer")
	}
	cmd := bufs[0]
	defer c.dev.FreeCommandBuffers(c.singleTimePool, cmd)

	if err := c.dev.BeginCommandBuffer(cmd, true); err != nil {
		return errors.Wrap(err, "begin single-time command buffer")
	}
	if err := record(cmd); err != nil {
		// Close the recording so the buffer is freed in a valid state.
		_ = c.dev.EndCommandBuffer(cmd)
		return err
	}
	if err := c.dev.EndCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "end single-time command buffer")
	}

	fence, err := c.dev.CreateFence(false)
	if err != nil {
		return errors.Wrap(err, "create single-time fence")
	}
	defer c.dev.DestroyFence(fence)

	err = c.Submit(driver.Graphics, fence, driver.SubmitInfo{
		CommandBuffers: []driver.CommandBuffer{cmd},
	})
	if err != nil {
		return errors.Wrap(err, "submit single-time command buffer")
	}

	return errors.Wrap(c.dev.WaitForFences(driver.NoTimeout, fence), "wait for single-time command buffer")
}
