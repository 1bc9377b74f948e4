package vkng

import (
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// SurfaceSource is the window system a device presents to.
type SurfaceSource interface {
	// RequiredInstanceExtensions lists the instance extensions the window
	// system needs to create surfaces.
	RequiredInstanceExtensions() []string
	// VulkanProcAddr returns vkGetInstanceProcAddr as loaded by the window
	// system.
	VulkanProcAddr() unsafe.Pointer
	CreateSurface(instance core1_0.Instance, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error)
	// DrawableSize is the drawable area in pixels.
	DrawableSize() (width, height int)
}
