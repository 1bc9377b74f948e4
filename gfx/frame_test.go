package gfx

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/katgfx/kat/driver"
	"github.com/katgfx/kat/driver/drivertest"
)

func cycle(t *testing.T, ctx *Context) (Frame, PresentResult) {
	t.Helper()
	frame, err := ctx.AcquireNextFrame()
	if err != nil {
		t.Fatalf("AcquireNextFrame: %v", err)
	}
	if err := ctx.SubmitFrame(frame); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	return frame, ctx.Present()
}

func TestFrameSlotsCycle(t *testing.T) {
	ctx, _ := newTestContext(t, nil)

	wantSlots := []int{0, 1, 0, 1, 0}
	wantImages := []int{0, 1, 2, 0, 1}
	for i := range wantSlots {
		frame, result := cycle(t, ctx)
		if frame.Slot != wantSlots[i] {
			t.Errorf("cycle %d: slot %d, want %d", i, frame.Slot, wantSlots[i])
		}
		if frame.ImageIndex != wantImages[i] {
			t.Errorf("cycle %d: image %d, want %d", i, frame.ImageIndex, wantImages[i])
		}
		if result != PresentOK {
			t.Errorf("cycle %d: present %v", i, result)
		}
	}
	if ctx.CurrentFrame() != 1 {
		t.Errorf("current frame %d after five cycles, want 1", ctx.CurrentFrame())
	}
}

func TestFrameSlotsWrapForAnyCount(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		ctx, _ := newTestContext(t, func(_ *drivertest.Device, s *Settings) {
			s.FramesInFlight = n
		})
		for i := 0; i < 2*n+1; i++ {
			frame, _ := cycle(t, ctx)
			if frame.Slot != i%n {
				t.Fatalf("n=%d cycle %d: slot %d", n, i, frame.Slot)
			}
		}
	}
}

func TestFrameSlotsUseDistinctSyncObjects(t *testing.T) {
	ctx, _ := newTestContext(t, nil)

	a, _ := cycle(t, ctx)
	b, _ := cycle(t, ctx)
	c, _ := cycle(t, ctx)

	if a.InFlight == b.InFlight || a.ImageAvailable == b.ImageAvailable || a.RenderFinished == b.RenderFinished {
		t.Error("consecutive slots share sync objects")
	}
	if a.InFlight != c.InFlight || a.ImageAvailable != c.ImageAvailable || a.CommandBuffer != c.CommandBuffer {
		t.Error("slot 0 did not reuse its sync objects")
	}
}

func TestAcquireWaitsBeforeAcquiringAndResets(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	frame, err := ctx.AcquireNextFrame()
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	for _, c := range dev.History() {
		switch c.Name {
		case "WaitForFences", "AcquireNextImage", "ResetFences":
			order = append(order, c.Name)
			if c.Name != "AcquireNextImage" && c.Handles[0] != uint64(frame.InFlight) {
				t.Errorf("%s on fence %d, want %d", c.Name, c.Handles[0], frame.InFlight)
			}
		}
	}
	want := []string{"WaitForFences", "AcquireNextImage", "ResetFences"}
	if len(order) != len(want) {
		t.Fatalf("calls %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("calls %v, want %v", order, want)
		}
	}
	if dev.FenceSignaled(frame.InFlight) {
		t.Error("fence still signaled after acquire")
	}
	if ctx.SlotState(frame.Slot) != FrameRendering {
		t.Errorf("slot state %v, want rendering", ctx.SlotState(frame.Slot))
	}
}

func TestAcquireBlocksUntilSlotFenceSignals(t *testing.T) {
	ctx, dev := newTestContext(t, func(d *drivertest.Device, _ *Settings) {
		d.ManualFences = true
	})

	first, _ := cycle(t, ctx)  // slot 0, fence left unsignaled
	second, _ := cycle(t, ctx) // slot 1
	dev.SignalFence(second.InFlight)

	done := make(chan Frame)
	go func() {
		frame, err := ctx.AcquireNextFrame()
		if err != nil {
			t.Errorf("AcquireNextFrame: %v", err)
		}
		done <- frame
	}()

	select {
	case <-done:
		t.Fatal("acquire returned while slot 0 was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	dev.SignalFence(first.InFlight)
	var frame Frame
	select {
	case frame = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not return after the fence signaled")
	}
	if frame.Slot != 0 || frame.InFlight != first.InFlight {
		t.Errorf("slot %d, want 0", frame.Slot)
	}
	ctx.SubmitFrame(frame)
	ctx.Present()
	dev.SignalAll()
}

func TestPresentFailureStillAdvances(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	dev.QueuePresentResult(errors.New("device lost"))
	dev.QueuePresentResult(driver.ErrOutOfDate)
	dev.QueuePresentResult(driver.ErrSuboptimal)

	want := []PresentResult{PresentFailed, PresentOutOfDate, PresentSuboptimal, PresentOK}
	for i, w := range want {
		frame, result := cycle(t, ctx)
		if result != w {
			t.Errorf("cycle %d: present %v, want %v", i, result, w)
		}
		if frame.Slot != i%2 {
			t.Errorf("cycle %d: slot %d", i, frame.Slot)
		}
	}
	if n := dev.Count("QueuePresent"); n != 4 {
		t.Errorf("%d presents, want 4", n)
	}
}

func TestPresentWaitsOnRenderFinished(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	frame, _ := cycle(t, ctx)
	presents := dev.Presents()
	if len(presents) != 1 {
		t.Fatalf("%d presents", len(presents))
	}
	p := presents[0]
	if len(p.WaitSemaphores) != 1 || p.WaitSemaphores[0] != frame.RenderFinished {
		t.Errorf("present waits on %v, want %v", p.WaitSemaphores, frame.RenderFinished)
	}
	if p.ImageIndex != frame.ImageIndex {
		t.Errorf("presented image %d, want %d", p.ImageIndex, frame.ImageIndex)
	}
}

func TestSubmitFrameSignalsFrameObjects(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	frame, _ := cycle(t, ctx)
	submits := dev.Submits()
	if len(submits) != 1 {
		t.Fatalf("%d submits", len(submits))
	}
	s := submits[0]
	if s.Fence != frame.InFlight {
		t.Errorf("submit fence %d, want %d", s.Fence, frame.InFlight)
	}
	info := s.Infos[0]
	if info.WaitSemaphores[0] != frame.ImageAvailable || info.SignalSemaphores[0] != frame.RenderFinished {
		t.Error("submit does not chain the frame semaphores")
	}
	if info.CommandBuffers[0] != frame.CommandBuffer {
		t.Error("submit did not default to the frame command buffer")
	}
}

func TestAcquireOutOfDate(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	dev.QueueAcquireResult(driver.ErrOutOfDate)
	_, err := ctx.AcquireNextFrame()
	if !errors.Is(err, ErrSwapchainOutOfDate) {
		t.Fatalf("got %v, want ErrSwapchainOutOfDate", err)
	}
	if dev.Count("ResetFences") != 0 {
		t.Error("fence was reset after a failed acquire")
	}
	if ctx.CurrentFrame() != 0 {
		t.Errorf("slot advanced to %d", ctx.CurrentFrame())
	}
	if r := ctx.Present(); r != PresentSkipped {
		t.Errorf("present without a frame: %v", r)
	}

	if err := ctx.RecreateSwapchain(); err != nil {
		t.Fatalf("RecreateSwapchain: %v", err)
	}
	frame, _ := cycle(t, ctx)
	if frame.Slot != 0 {
		t.Errorf("slot %d after rebuild, want 0", frame.Slot)
	}
}

func TestAcquireSuboptimal(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	dev.QueueAcquireResult(driver.ErrSuboptimal)
	frame, err := ctx.AcquireNextFrame()
	if err != nil {
		t.Fatalf("AcquireNextFrame: %v", err)
	}
	if !frame.Suboptimal {
		t.Error("frame not marked suboptimal")
	}
	ctx.SubmitFrame(frame)
	ctx.Present()
}

func TestAcquireTwice(t *testing.T) {
	ctx, _ := newTestContext(t, nil)

	frame, err := ctx.AcquireNextFrame()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.AcquireNextFrame(); !errors.Is(err, ErrFrameInProgress) {
		t.Errorf("second acquire: %v", err)
	}
	ctx.SubmitFrame(frame)
	ctx.Present()
}

func TestPresentResultNeedsRecreate(t *testing.T) {
	for r, want := range map[PresentResult]bool{
		PresentOK:         false,
		PresentSuboptimal: true,
		PresentOutOfDate:  true,
		PresentFailed:     false,
		PresentSkipped:    false,
	} {
		if r.NeedsRecreate() != want {
			t.Errorf("%v: NeedsRecreate %v", r, !want)
		}
	}
}
