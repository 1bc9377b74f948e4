// Package gfx is the frame lifecycle and GPU resource layer of kat.
//
// A Context owns a driver.Device, its swapchain and a fixed ring of
// frames-in-flight. Every frame the render loop calls AcquireNextFrame,
// records and submits work for the returned Frame, and calls Present. The
// Allocator creates buffers and images and uploads data to them through
// staging buffers, and the ShaderCache hands out shader modules by path.
//
// GPU-side ordering is the caller's responsibility: gfx inserts no barriers
// beyond the ones its upload helpers need.
package gfx

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/katgfx/kat/driver"
)

// Context is the per-application device context.
//
// AcquireNextFrame and Present must be called from a single goroutine.
// Everything else is safe for concurrent use.
type Context struct {
	id       uuid.UUID
	dev      driver.Device
	settings Settings

	swapchain       driver.Swapchain
	swapchainImages []driver.Image
	swapchainViews  []driver.ImageView
	swapchainFormat khr_surface.SurfaceFormat
	swapchainExtent core1_0.Extent2D
	presentMode     khr_surface.PresentMode
	swapchainMu     sync.RWMutex

	framePool    driver.CommandPool
	frames       []frameSlot
	currentSlot  int
	currentImage int
	acquired     bool

	submitMu       sync.Mutex
	singleTimeMu   sync.Mutex
	singleTimePool driver.CommandPool

	allocator *Allocator
	shaders   *ShaderCache

	live   atomic.Int64
	closed atomic.Bool
}

// NewContext builds the swapchain, the frame slots, the single-time command
// pool, the allocator and the shader cache on dev. On failure everything
// created so far is released; dev itself is left to the caller.
func NewContext(dev driver.Device, settings Settings) (_ *Context, err error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if len(settings.PresentModes) == 0 || len(settings.SurfaceFormats) == 0 {
		defaults := DefaultSettings()
		if len(settings.PresentModes) == 0 {
			settings.PresentModes = defaults.PresentModes
		}
		if len(settings.SurfaceFormats) == 0 {
			settings.SurfaceFormats = defaults.SurfaceFormats
		}
	}

	c := &Context{
		id:       uuid.New(),
		dev:      dev,
		settings: settings,
	}
	defer func() {
		if err != nil {
			c.destroy()
		}
	}()

	if err := c.CreateSwapchain(); err != nil {
		return nil, err
	}

	graphics := dev.QueueFamily(driver.Graphics)
	c.framePool, err = dev.CreateCommandPool(graphics, true)
	if err != nil {
		return nil, errors.Wrap(err, "create frame command pool")
	}
	cmds, err := dev.AllocateCommandBuffers(c.framePool, settings.FramesInFlight)
	if err != nil {
		return nil, errors.Wrap(err, "allocate frame command buffers")
	}

	c.frames = make([]frameSlot, settings.FramesInFlight)
	for i := range c.frames {
		slot := &c.frames[i]
		slot.cmd = cmds[i]
		if slot.imageAvailable, err = dev.CreateSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "frame %d: create image-available semaphore", i)
		}
		if slot.renderFinished, err = dev.CreateSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "frame %d: create render-finished semaphore", i)
		}
		// Signaled so the first wait on every slot returns immediately.
		if slot.inFlight, err = dev.CreateFence(true); err != nil {
			return nil, errors.Wrapf(err, "frame %d: create in-flight fence", i)
		}
	}

	c.singleTimePool, err = dev.CreateCommandPool(graphics, true)
	if err != nil {
		return nil, errors.Wrap(err, "create single-time command pool")
	}

	source := settings.Shaders
	if source == nil {
		source = FileSource{}
	}
	c.allocator = &Allocator{ctx: c}
	c.shaders = NewShaderCache(dev, source)

	c.log().Info("context created",
		slog.String("device", dev.Name()),
		slog.Int("frames_in_flight", settings.FramesInFlight),
		slog.Int("swapchain_images", len(c.swapchainImages)))
	return c, nil
}

func (c *Context) log() *slog.Logger {
	return Logger().With(slog.String("context", c.id.String()))
}

func (c *Context) retain()  { c.live.Add(1) }
func (c *Context) release() { c.live.Add(-1) }

// LiveResources is the number of buffers, images, views and pipelines
// created through the Context and not yet destroyed.
func (c *Context) LiveResources() int {
	return int(c.live.Load())
}

func (c *Context) ID() uuid.UUID              { return c.id }
func (c *Context) Device() driver.Device      { return c.dev }
func (c *Context) Allocator() *Allocator      { return c.allocator }
func (c *Context) ShaderCache() *ShaderCache  { return c.shaders }
func (c *Context) FramesInFlight() int        { return len(c.frames) }
func (c *Context) Settings() Settings         { return c.settings }
func (c *Context) CurrentFrame() int          { return c.currentSlot }
func (c *Context) SlotState(i int) FrameState { return c.frames[i].state }

// Queue returns the queue serving role. It panics on an invalid role.
func (c *Context) Queue(role driver.QueueRole) driver.Queue {
	if !role.Valid() {
		panic(errors.Newf("gfx: invalid queue role %d", int(role)))
	}
	return c.dev.Queue(role)
}

// QueueFamily returns the queue family index serving role. It panics on an
// invalid role.
func (c *Context) QueueFamily(role driver.QueueRole) int {
	if !role.Valid() {
		panic(errors.Newf("gfx: invalid queue role %d", int(role)))
	}
	return c.dev.QueueFamily(role)
}

// CreateCommandPool creates a pool on the family serving role. Buffers from
// a resettable pool may be re-recorded individually.
func (c *Context) CreateCommandPool(role driver.QueueRole, resettable bool) (driver.CommandPool, error) {
	pool, err := c.dev.CreateCommandPool(c.QueueFamily(role), resettable)
	if err != nil {
		return driver.Null, errors.Wrapf(err, "create %s command pool", role)
	}
	return pool, nil
}

func (c *Context) AllocateCommandBuffers(pool driver.CommandPool, count int) ([]driver.CommandBuffer, error) {
	bufs, err := c.dev.AllocateCommandBuffers(pool, count)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d command buffers", count)
	}
	return bufs, nil
}

// Submit submits work to the queue serving role, signalling fence when it
// is not driver.Null. Submissions and presents are serialized because roles
// may share a queue.
func (c *Context) Submit(role driver.QueueRole, fence driver.Fence, submits ...driver.SubmitInfo) error {
	q := c.Queue(role)
	c.submitMu.Lock()
	defer c.submitMu.Unlock()
	return c.dev.QueueSubmit(q, fence, submits...)
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *Context) WaitIdle() error {
	return errors.Wrap(c.dev.WaitIdle(), "wait for device idle")
}

// Close waits for the device to go idle, destroys everything the Context
// created and finally the device. Resources the caller still holds must be
// released before Close. Calling Close twice is a no-op.
func (c *Context) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.WaitIdle()
	c.shaders.Reset()
	if n := c.LiveResources(); n > 0 {
		c.log().Warn("closing context with live resources", slog.Int("count", n))
	}
	c.destroy()
	c.dev.Destroy()
	c.log().Info("context closed")
	return err
}

func (c *Context) destroy() {
	for _, slot := range c.frames {
		if slot.inFlight != driver.Null {
			c.dev.DestroyFence(slot.inFlight)
		}
		if slot.renderFinished != driver.Null {
			c.dev.DestroySemaphore(slot.renderFinished)
		}
		if slot.imageAvailable != driver.Null {
			c.dev.DestroySemaphore(slot.imageAvailable)
		}
	}
	c.frames = nil
	if c.framePool != driver.Null {
		c.dev.DestroyCommandPool(c.framePool)
		c.framePool = driver.Null
	}
	if c.singleTimePool != driver.Null {
		c.dev.DestroyCommandPool(c.singleTimePool)
		c.singleTimePool = driver.Null
	}
	c.destroySwapchain(c.swapchain, c.swapchainViews)
	c.swapchain = driver.Null
	c.swapchainViews = nil
	c.swapchainImages = nil
}
