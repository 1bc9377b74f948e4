package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/katgfx/kat/driver"
)

// deviceCaps is what device selection learned about one physical device.
type deviceCaps struct {
	device core1_0.PhysicalDevice

	Name       string
	Discrete   bool
	MaxImage2D int

	Families    driver.QueueFamilies
	FamilyError error

	MissingExtensions []string
	MissingFeatures   []string
	PortabilitySubset bool

	SurfaceFormats      int
	SurfacePresentModes int
}

// Suitability scores the device for rendering to the surface. Unusable
// devices score zero; among usable ones discrete GPUs win, then the larger
// maximum 2D image size.
func (c *deviceCaps) Suitability() int {
	if c.FamilyError != nil {
		return 0
	}
	if len(c.MissingExtensions) > 0 || len(c.MissingFeatures) > 0 {
		return 0
	}
	if c.SurfaceFormats == 0 || c.SurfacePresentModes == 0 {
		return 0
	}

	score := 1 + c.MaxImage2D
	if c.Discrete {
		score += 1000
	}
	return score
}

// Reason describes why the device scored zero.
func (c *deviceCaps) Reason() string {
	switch {
	case c.FamilyError != nil:
		return c.FamilyError.Error()
	case len(c.MissingExtensions) > 0:
		return "missing extensions"
	case len(c.MissingFeatures) > 0:
		return "missing features"
	case c.SurfaceFormats == 0:
		return "no surface formats"
	case c.SurfacePresentModes == 0:
		return "no present modes"
	}
	return ""
}

func (d *Device) queryDeviceCaps(pd core1_0.PhysicalDevice, required []string) (*deviceCaps, error) {
	caps := &deviceCaps{device: pd}

	props, err := d.instance.GetPhysicalDeviceProperties(pd)
	if err != nil {
		return nil, errors.Wrap(err, "physical device properties")
	}
	caps.setProperties(props)

	caps.MissingFeatures = driver.MissingFeatures(d.cfg.Features, d.instance.GetPhysicalDeviceFeatures(pd))

	extensions, _, err := d.instance.EnumerateDeviceExtensionProperties(pd)
	if err != nil {
		return nil, errors.Wrap(err, "device extensions")
	}
	for _, name := range required {
		if _, ok := extensions[name]; !ok {
			caps.MissingExtensions = append(caps.MissingExtensions, name)
		}
	}
	_, caps.PortabilitySubset = extensions[khr_portability_subset.ExtensionName]

	var families []driver.QueueFamily
	for i, props := range d.instance.GetPhysicalDeviceQueueFamilyProperties(pd) {
		present, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceSupport(d.surface, pd, i)
		if err != nil {
			return nil, errors.Wrapf(err, "surface support for family %d", i)
		}
		families = append(families, driver.QueueFamily{
			Flags:      props.QueueFlags,
			QueueCount: props.QueueCount,
			Present:    present,
		})
	}
	caps.Families, caps.FamilyError = driver.SelectQueueFamilies(families)

	// Surface queries need the swapchain extension to mean anything.
	if len(caps.MissingExtensions) == 0 {
		formats, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceFormats(d.surface, pd)
		if err != nil {
			return nil, errors.Wrap(err, "surface formats")
		}
		modes, _, err := d.surfaceExt.GetPhysicalDeviceSurfacePresentModes(d.surface, pd)
		if err != nil {
			return nil, errors.Wrap(err, "present modes")
		}
		caps.SurfaceFormats = len(formats)
		caps.SurfacePresentModes = len(modes)
	}
	return caps, nil
}

var ErrNoSuitableDevice = errors.New("no suitable physical device")

// Candidate is a physical device considered when the Device was opened.
type Candidate struct {
	Name     string
	Discrete bool
	// Score is zero for devices that cannot be used, and Reason says why.
	Score    int
	Reason   string
	Selected bool
}

func (d *Device) pickPhysicalDevice() (*deviceCaps, error) {
	physicalDevices, _, err := d.instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	required := append([]string{khr_swapchain.ExtensionName}, d.cfg.DeviceExtensions...)
	var best *deviceCaps
	bestScore, bestIndex := 0, -1
	d.candidates = d.candidates[:0]
	for _, pd := range physicalDevices {
		caps, err := d.queryDeviceCaps(pd, required)
		if err != nil {
			return nil, err
		}
		score := caps.Suitability()
		d.candidates = append(d.candidates, Candidate{
			Name:     caps.Name,
			Discrete: caps.Discrete,
			Score:    score,
			Reason:   caps.Reason(),
		})
		if score == 0 {
			d.log.Debug("vkng: skipping device", "device", caps.Name, "reason", caps.Reason(),
				"missingExtensions", caps.MissingExtensions, "missingFeatures", caps.MissingFeatures)
			continue
		}
		d.log.Debug("vkng: candidate device", "device", caps.Name, "score", score)
		if score > bestScore {
			best, bestScore, bestIndex = caps, score, len(d.candidates)-1
		}
	}
	if best == nil {
		return nil, errors.Wrapf(ErrNoSuitableDevice, "%d devices checked", len(physicalDevices))
	}
	d.candidates[bestIndex].Selected = true
	return best, nil
}

func surfaceCapabilities(c *khr_surface.SurfaceCapabilities) driver.SurfaceCapabilities {
	return driver.SurfaceCapabilities{
		MinImageCount:  c.MinImageCount,
		MaxImageCount:  c.MaxImageCount,
		CurrentExtent:  c.CurrentExtent,
		MinImageExtent: c.MinImageExtent,
		MaxImageExtent: c.MaxImageExtent,
	}
}

func (c *deviceCaps) setProperties(props *core1_0.PhysicalDeviceProperties) {
	c.Name = props.DriverName
	c.Discrete = props.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU
	if props.Limits != nil {
		c.MaxImage2D = props.Limits.MaxImageDimension2D
	}
}
