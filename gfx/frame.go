package gfx

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

// FrameState is where a frame slot is in its acquire/present cycle.
type FrameState int

const (
	FrameIdle FrameState = iota
	FrameAcquiring
	FrameRendering
	FramePresenting
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameAcquiring:
		return "acquiring"
	case FrameRendering:
		return "rendering"
	case FramePresenting:
		return "presenting"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

type frameSlot struct {
	imageAvailable driver.Semaphore
	renderFinished driver.Semaphore
	inFlight       driver.Fence
	cmd            driver.CommandBuffer
	state          FrameState
}

// Frame describes one acquired swapchain image and the synchronization
// objects of the slot it was acquired on. It is valid until Present.
//
// Work rendering to Image must wait on ImageAvailable, signal
// RenderFinished, and signal InFlight on completion. SubmitFrame does all
// three.
type Frame struct {
	Slot           int
	ImageIndex     int
	Image          driver.Image
	ImageView      driver.ImageView
	ImageAvailable driver.Semaphore
	RenderFinished driver.Semaphore
	InFlight       driver.Fence
	// CommandBuffer is the slot's primary command buffer. It is no longer in
	// use by the GPU once the frame is returned and may be re-recorded.
	CommandBuffer driver.CommandBuffer
	// Suboptimal is set when the image was acquired from a swapchain that no
	// longer matches the surface exactly.
	Suboptimal bool
}

// AcquireNextFrame waits for the current slot's previous frame to finish on
// the GPU, acquires the next swapchain image and returns the frame.
//
// The wait has no timeout. When the swapchain is out of date the returned
// error matches ErrSwapchainOutOfDate, the slot is left unchanged and the
// caller is expected to call RecreateSwapchain and try again.
func (c *Context) AcquireNextFrame() (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrClosed
	}
	if c.acquired {
		return Frame{}, ErrFrameInProgress
	}

	slot := &c.frames[c.currentSlot]
	slot.state = FrameAcquiring

	if err := c.dev.WaitForFences(driver.NoTimeout, slot.inFlight); err != nil {
		slot.state = FrameIdle
		return Frame{}, errors.Wrapf(err, "wait for frame %d", c.currentSlot)
	}

	c.swapchainMu.RLock()
	defer c.swapchainMu.RUnlock()

	idx, err := c.dev.AcquireNextImage(c.swapchain, driver.NoTimeout, slot.imageAvailable)
	suboptimal := false
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrSuboptimal):
		suboptimal = true
	case errors.Is(err, driver.ErrOutOfDate):
		// The fence stays signaled so the retry after a rebuild does not block.
		slot.state = FrameIdle
		return Frame{}, errors.Mark(errors.Wrap(err, "acquire next image"), ErrSwapchainOutOfDate)
	default:
		slot.state = FrameIdle
		return Frame{}, errors.Wrap(err, "acquire next image")
	}

	// Only reset once work is certain to be submitted against this fence.
	if err := c.dev.ResetFences(slot.inFlight); err != nil {
		slot.state = FrameIdle
		return Frame{}, errors.Wrapf(err, "reset fence of frame %d", c.currentSlot)
	}

	c.currentImage = idx
	c.acquired = true
	slot.state = FrameRendering

	return Frame{
		Slot:           c.currentSlot,
		ImageIndex:     idx,
		Image:          c.swapchainImages[idx],
		ImageView:      c.swapchainViews[idx],
		ImageAvailable: slot.imageAvailable,
		RenderFinished: slot.renderFinished,
		InFlight:       slot.inFlight,
		CommandBuffer:  slot.cmd,
		Suboptimal:     suboptimal,
	}, nil
}

// SubmitFrame submits cmds on the graphics queue for frame, waiting for the
// image at the color attachment output stage and signalling the frame's
// render-finished semaphore and in-flight fence. With no cmds the frame's
// own command buffer is submitted.
func (c *Context) SubmitFrame(frame Frame, cmds ...driver.CommandBuffer) error {
	if len(cmds) == 0 {
		cmds = []driver.CommandBuffer{frame.CommandBuffer}
	}
	err := c.Submit(driver.Graphics, frame.InFlight, driver.SubmitInfo{
		WaitSemaphores:   []driver.Semaphore{frame.ImageAvailable},
		WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   cmds,
		SignalSemaphores: []driver.Semaphore{frame.RenderFinished},
	})
	return errors.Wrapf(err, "submit frame %d", frame.Slot)
}

// PresentResult is the outcome of Present.
type PresentResult int

const (
	PresentOK PresentResult = iota
	PresentSuboptimal
	PresentOutOfDate
	PresentFailed
	// PresentSkipped means no frame was acquired, so nothing was presented.
	PresentSkipped
)

func (r PresentResult) String() string {
	switch r {
	case PresentOK:
		return "ok"
	case PresentSuboptimal:
		return "suboptimal"
	case PresentOutOfDate:
		return "out of date"
	case PresentFailed:
		return "failed"
	case PresentSkipped:
		return "skipped"
	}
	return fmt.Sprintf("PresentResult(%d)", int(r))
}

// NeedsRecreate reports whether the swapchain should be rebuilt.
func (r PresentResult) NeedsRecreate() bool {
	return r == PresentSuboptimal || r == PresentOutOfDate
}

// Present queues the acquired image for presentation once its
// render-finished semaphore is signaled, then advances to the next slot.
// Presentation problems are logged and reported through the result, never
// as an error, and the slot advances whatever the outcome.
func (c *Context) Present() PresentResult {
	if !c.acquired {
		return PresentSkipped
	}

	slot := &c.frames[c.currentSlot]
	slot.state = FramePresenting

	c.swapchainMu.RLock()
	info := driver.PresentInfo{
		WaitSemaphores: []driver.Semaphore{slot.renderFinished},
		Swapchain:      c.swapchain,
		ImageIndex:     c.currentImage,
	}
	c.submitMu.Lock()
	err := c.dev.QueuePresent(c.dev.Queue(driver.Present), info)
	c.submitMu.Unlock()
	c.swapchainMu.RUnlock()

	result := PresentOK
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrSuboptimal):
		result = PresentSuboptimal
		c.log().Warn("present: swapchain suboptimal", slog.Int("frame", c.currentSlot))
	case errors.Is(err, driver.ErrOutOfDate):
		result = PresentOutOfDate
		c.log().Warn("present: swapchain out of date", slog.Int("frame", c.currentSlot))
	default:
		result = PresentFailed
		c.log().Error("present failed", slog.Int("frame", c.currentSlot), slog.Any("error", err))
	}

	slot.state = FrameIdle
	c.acquired = false
	c.currentSlot = (c.currentSlot + 1) % len(c.frames)
	return result
}
