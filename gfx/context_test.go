package gfx

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/katgfx/kat/driver"
	"github.com/katgfx/kat/driver/drivertest"
)

func TestNewContextCreatesFrameResources(t *testing.T) {
	dev := drivertest.New()
	ctx, err := NewContext(dev, DefaultSettings())
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	if got := dev.Live("fence"); got != 2 {
		t.Errorf("%d fences, want 2", got)
	}
	if got := dev.Live("semaphore"); got != 4 {
		t.Errorf("%d semaphores, want 4", got)
	}
	if got := dev.Live("command-pool"); got != 2 {
		t.Errorf("%d command pools, want 2", got)
	}
	if got := len(ctx.SwapchainImageViews()); got != 3 {
		t.Errorf("%d swapchain views, want 3", got)
	}
	for i := 0; i < ctx.FramesInFlight(); i++ {
		if ctx.SlotState(i) != FrameIdle {
			t.Errorf("slot %d starts %v", i, ctx.SlotState(i))
		}
	}

	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := dev.Live(""); n != 0 {
		t.Errorf("%d objects alive after Close", n)
	}
	if !dev.Destroyed() {
		t.Error("device not destroyed")
	}
	if err := ctx.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := ctx.AcquireNextFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("acquire after Close: %v", err)
	}
}

func TestNewContextCleansUpOnFailure(t *testing.T) {
	for _, method := range []string{"CreateSwapchain", "CreateCommandPool", "AllocateCommandBuffers", "CreateSemaphore", "CreateFence", "CreateImageView"} {
		t.Run(method, func(t *testing.T) {
			dev := drivertest.New()
			dev.FailNext(method, errors.New("boom"))
			if _, err := NewContext(dev, DefaultSettings()); err == nil {
				t.Fatal("NewContext succeeded")
			}
			if n := dev.Live(""); n != 0 {
				t.Errorf("%d objects left behind", n)
			}
		})
	}
}

func TestNewContextRejectsBadSettings(t *testing.T) {
	settings := DefaultSettings()
	settings.FramesInFlight = 0
	if _, err := NewContext(drivertest.New(), settings); err == nil {
		t.Error("zero frames in flight accepted")
	}
}

func TestQueueAccess(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	for _, role := range driver.QueueRoles {
		if ctx.Queue(role) != dev.Queue(role) {
			t.Errorf("%v queue mismatch", role)
		}
		if ctx.QueueFamily(role) != dev.QueueFamily(role) {
			t.Errorf("%v family mismatch", role)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("invalid role did not panic")
		}
	}()
	ctx.Queue(driver.QueueRole(42))
}

func TestSyncFactories(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	fences, err := ctx.CreateFences(3, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fences {
		if !dev.FenceSignaled(f) {
			t.Error("fence not created signaled")
		}
	}
	if err := ctx.WaitForFences(fences...); err != nil {
		t.Errorf("WaitForFences: %v", err)
	}
	if err := ctx.ResetFences(fences...); err != nil {
		t.Fatal(err)
	}
	for _, f := range fences {
		if dev.FenceSignaled(f) {
			t.Error("fence still signaled after reset")
		}
		ctx.DestroyFence(f)
	}

	dev.FailNext("CreateSemaphore", errors.New("boom"))
	before := dev.Live("semaphore")
	if _, err := ctx.CreateSemaphores(2); err == nil {
		t.Error("CreateSemaphores succeeded")
	}
	if dev.Live("semaphore") != before {
		t.Error("partial semaphores left behind")
	}

	sems, err := ctx.CreateSemaphores(2)
	if err != nil || len(sems) != 2 {
		t.Fatalf("CreateSemaphores: %v %v", sems, err)
	}
	for _, s := range sems {
		ctx.DestroySemaphore(s)
	}
}

func TestCloseReportsLiveResources(t *testing.T) {
	dev := drivertest.New()
	ctx, err := NewContext(dev, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	buf, err := ctx.Allocator().CreateBuffer(64, 0, MemoryUsageCPUOnly)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.LiveResources() != 1 {
		t.Errorf("%d live resources, want 1", ctx.LiveResources())
	}
	buf.Release()
	if ctx.LiveResources() != 0 {
		t.Errorf("%d live resources after release", ctx.LiveResources())
	}
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
}
