package gfx

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/katgfx/kat/driver"
)

// CreateSwapchain builds a swapchain for the current surface state and makes
// it current. The previous swapchain, if any, is handed to the driver as the
// old swapchain and destroyed along with its views only once the new one is
// complete. If building fails the previous swapchain stays current.
//
// The caller must make sure the GPU no longer uses the previous swapchain's
// images; RecreateSwapchain waits for device idle first.
func (c *Context) CreateSwapchain() error {
	support, err := c.dev.SurfaceSupport()
	if err != nil {
		return errors.Wrap(err, "query surface support")
	}
	if len(support.Formats) == 0 {
		return errors.New("surface reports no formats")
	}

	format := chooseSurfaceFormat(support.Formats, c.settings.SurfaceFormats)
	mode := choosePresentMode(support.PresentModes, c.settings.PresentModes)
	extent := chooseExtent(support.Capabilities, support.DrawableExtent)
	if extent.Width == 0 || extent.Height == 0 {
		return ErrSurfaceMinimized
	}

	var families []int
	graphics, present := c.dev.QueueFamily(driver.Graphics), c.dev.QueueFamily(driver.Present)
	if graphics != present {
		families = []int{graphics, present}
	}

	c.swapchainMu.Lock()
	defer c.swapchainMu.Unlock()

	old, oldViews := c.swapchain, c.swapchainViews
	sc, err := c.dev.CreateSwapchain(driver.SwapchainCreateInfo{
		MinImageCount:      chooseImageCount(support.Capabilities),
		Format:             format.Format,
		ColorSpace:         format.ColorSpace,
		Extent:             extent,
		Usage:              c.settings.ImageUsage,
		PresentMode:        mode,
		QueueFamilyIndices: families,
		OldSwapchain:       old,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}

	images, err := c.dev.SwapchainImages(sc)
	if err != nil {
		c.dev.DestroySwapchain(sc)
		return errors.Wrap(err, "get swapchain images")
	}

	views := make([]driver.ImageView, 0, len(images))
	for i, img := range images {
		view, err := c.dev.CreateImageView(driver.ImageViewCreateInfo{
			Image:            img,
			ViewType:         core1_0.ImageViewType2D,
			Format:           format.Format,
			SubresourceRange: colorRange(),
		})
		if err != nil {
			c.destroySwapchain(sc, views)
			return errors.Wrapf(err, "create view for swapchain image %d", i)
		}
		views = append(views, view)
	}

	c.destroySwapchain(old, oldViews)

	c.swapchain = sc
	c.swapchainImages = images
	c.swapchainViews = views
	c.swapchainFormat = format
	c.swapchainExtent = extent
	c.presentMode = mode

	c.log().Info("swapchain created",
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height),
		slog.Int("images", len(images)),
		slog.Any("present_mode", mode))
	return nil
}

// RecreateSwapchain waits for the device to go idle and rebuilds the
// swapchain. It is the recovery path for ErrSwapchainOutOfDate.
func (c *Context) RecreateSwapchain() error {
	if err := c.WaitIdle(); err != nil {
		return err
	}
	return c.CreateSwapchain()
}

func (c *Context) destroySwapchain(sc driver.Swapchain, views []driver.ImageView) {
	for _, v := range views {
		c.dev.DestroyImageView(v)
	}
	if sc != driver.Null {
		c.dev.DestroySwapchain(sc)
	}
}

func (c *Context) SwapchainExtent() core1_0.Extent2D {
	c.swapchainMu.RLock()
	defer c.swapchainMu.RUnlock()
	return c.swapchainExtent
}

func (c *Context) SwapchainFormat() core1_0.Format {
	c.swapchainMu.RLock()
	defer c.swapchainMu.RUnlock()
	return c.swapchainFormat.Format
}

func (c *Context) PresentMode() khr_surface.PresentMode {
	c.swapchainMu.RLock()
	defer c.swapchainMu.RUnlock()
	return c.presentMode
}

func (c *Context) SwapchainImages() []driver.Image {
	c.swapchainMu.RLock()
	defer c.swapchainMu.RUnlock()
	return append([]driver.Image(nil), c.swapchainImages...)
}

func (c *Context) SwapchainImageViews() []driver.ImageView {
	c.swapchainMu.RLock()
	defer c.swapchainMu.RUnlock()
	return append([]driver.ImageView(nil), c.swapchainViews...)
}

// FullViewport covers the whole swapchain extent with depth range [0, 1].
func (c *Context) FullViewport() core1_0.Viewport {
	extent := c.SwapchainExtent()
	return core1_0.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func (c *Context) FullRenderArea() core1_0.Rect2D {
	return core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: c.SwapchainExtent(),
	}
}

func choosePresentMode(available, preferred []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, want := range preferred {
		for _, have := range available {
			if want == have {
				return want
			}
		}
	}
	// FIFO is the only mode every surface must support.
	return khr_surface.PresentModeFIFO
}

func chooseSurfaceFormat(available, preferred []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, want := range preferred {
		for _, have := range available {
			if want.Format == have.Format && want.ColorSpace == have.ColorSpace {
				return have
			}
		}
	}
	return available[0]
}

// chooseExtent uses the surface's current extent unless the surface lets
// the swapchain decide, in which case the drawable size is clamped to the
// supported range.
func chooseExtent(caps driver.SurfaceCapabilities, drawable core1_0.Extent2D) core1_0.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}
	return core1_0.Extent2D{
		Width:  clamp(drawable.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(drawable.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps driver.SurfaceCapabilities) int {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func colorRange() core1_0.ImageSubresourceRange {
	return core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}
