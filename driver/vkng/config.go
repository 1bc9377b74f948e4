package vkng

import (
	"log/slog"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Version struct {
	Major, Minor, Patch uint32
}

func (v Version) vulkan() common.Version {
	return common.CreateVersion(v.Major, v.Minor, v.Patch)
}

// Config controls instance and device creation.
type Config struct {
	AppName       string
	AppVersion    Version
	EngineName    string
	EngineVersion Version
	// APIVersion is the highest Vulkan version the application uses.
	APIVersion common.APIVersion

	// Validation enables the Khronos validation layer and routes its
	// messages to Logger. Open fails if the layer is not installed.
	Validation bool

	// DeviceExtensions are required in addition to the swapchain extension.
	DeviceExtensions []string
	// Features must all be supported by the chosen physical device and are
	// enabled on the logical device.
	Features *core1_0.PhysicalDeviceFeatures

	// Logger receives validation messages and device selection details.
	// Nil discards them.
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		AppName:       "kat",
		AppVersion:    Version{Major: 1},
		EngineName:    "kat",
		EngineVersion: Version{Major: 1},
		APIVersion:    common.Vulkan1_2,
	}
}
