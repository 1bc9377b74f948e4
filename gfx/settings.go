package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// DefaultFramesInFlight is how many frames the CPU may record ahead of the GPU.
const DefaultFramesInFlight = 2

// Settings configures a Context.
type Settings struct {
	// FramesInFlight is the number of frame slots. Fixed for the lifetime of
	// the Context.
	FramesInFlight int
	// PresentModes is the preference order for the swapchain present mode.
	// FIFO is used when none is available.
	PresentModes []khr_surface.PresentMode
	// SurfaceFormats is the preference order for the swapchain format. The
	// first format the surface offers is used when none match.
	SurfaceFormats []khr_surface.SurfaceFormat
	// ImageUsage is the usage of swapchain images.
	ImageUsage core1_0.ImageUsageFlags
	// Shaders supplies SPIR-V bytecode to the shader cache. Nil reads files
	// from the working directory.
	Shaders ShaderSource
}

func DefaultSettings() Settings {
	return Settings{
		FramesInFlight: DefaultFramesInFlight,
		PresentModes: []khr_surface.PresentMode{
			khr_surface.PresentModeMailbox,
			khr_surface.PresentModeImmediate,
			khr_surface.PresentModeFIFO,
		},
		SurfaceFormats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		ImageUsage: core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransferDst,
	}
}

func (s Settings) Validate() error {
	if s.FramesInFlight < 1 {
		return errors.Newf("frames in flight must be at least 1, got %d", s.FramesInFlight)
	}
	if s.ImageUsage == 0 {
		return errors.New("swapchain image usage must not be empty")
	}
	return nil
}
