// Package vkng implements driver.Device on top of vkngwrapper.
package vkng

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/katgfx/kat/driver"
)

var (
	ErrMissingExtension = errors.New("instance extension not available")
	ErrMissingLayer     = errors.New("layer not available")
)

type swapchainEntry struct {
	swapchain khr_swapchain.Swapchain
	images    []driver.Image
}

// Device owns an instance, a surface and a logical device created on the
// best physical device that can present to that surface.
type Device struct {
	cfg Config
	log *slog.Logger
	src SurfaceSource

	global     core1_0.GlobalDriver
	instance   core1_0.CoreInstanceDriver
	debug      ext_debug_utils.ExtensionDriver
	messenger  ext_debug_utils.DebugUtilsMessenger
	surfaceExt khr_surface.ExtensionDriver
	surface    khr_surface.Surface

	physical    core1_0.PhysicalDevice
	name        string
	candidates  []Candidate
	memoryTypes []driver.MemoryType

	device       core1_0.CoreDeviceDriver
	swapchainExt khr_swapchain.ExtensionDriver
	families     driver.QueueFamilies
	roleQueues   [len(driver.QueueRoles)]driver.Queue

	queues          *table[driver.Queue, core1_0.Queue]
	fences          *table[driver.Fence, core1_0.Fence]
	semaphores      *table[driver.Semaphore, core1_0.Semaphore]
	swapchains      *table[driver.Swapchain, *swapchainEntry]
	commandPools    *table[driver.CommandPool, core1_0.CommandPool]
	commandBuffers  *table[driver.CommandBuffer, core1_0.CommandBuffer]
	buffers         *table[driver.Buffer, core1_0.Buffer]
	images          *table[driver.Image, core1_0.Image]
	imageViews      *table[driver.ImageView, core1_0.ImageView]
	memory          *table[driver.DeviceMemory, core1_0.DeviceMemory]
	shaderModules   *table[driver.ShaderModule, core1_0.ShaderModule]
	renderPasses    *table[driver.RenderPass, core1_0.RenderPass]
	framebuffers    *table[driver.Framebuffer, core1_0.Framebuffer]
	pipelineLayouts *table[driver.PipelineLayout, core1_0.PipelineLayout]
	pipelines       *table[driver.Pipeline, core1_0.Pipeline]
}

var _ driver.Device = (*Device)(nil)

func newDevice(src SurfaceSource, cfg Config) *Device {
	log := cfg.Logger
	if log == nil {
		log = slog.New(discard{})
	}
	return &Device{
		cfg: cfg,
		log: log,
		src: src,

		queues:          newTable[driver.Queue, core1_0.Queue]("queue"),
		fences:          newTable[driver.Fence, core1_0.Fence]("fence"),
		semaphores:      newTable[driver.Semaphore, core1_0.Semaphore]("semaphore"),
		swapchains:      newTable[driver.Swapchain, *swapchainEntry]("swapchain"),
		commandPools:    newTable[driver.CommandPool, core1_0.CommandPool]("command pool"),
		commandBuffers:  newTable[driver.CommandBuffer, core1_0.CommandBuffer]("command buffer"),
		buffers:         newTable[driver.Buffer, core1_0.Buffer]("buffer"),
		images:          newTable[driver.Image, core1_0.Image]("image"),
		imageViews:      newTable[driver.ImageView, core1_0.ImageView]("image view"),
		memory:          newTable[driver.DeviceMemory, core1_0.DeviceMemory]("device memory"),
		shaderModules:   newTable[driver.ShaderModule, core1_0.ShaderModule]("shader module"),
		renderPasses:    newTable[driver.RenderPass, core1_0.RenderPass]("render pass"),
		framebuffers:    newTable[driver.Framebuffer, core1_0.Framebuffer]("framebuffer"),
		pipelineLayouts: newTable[driver.PipelineLayout, core1_0.PipelineLayout]("pipeline layout"),
		pipelines:       newTable[driver.Pipeline, core1_0.Pipeline]("pipeline"),
	}
}

// Open creates the instance, surface and logical device. On failure
// everything created so far is destroyed.
func Open(src SurfaceSource, cfg Config) (*Device, error) {
	d := newDevice(src, cfg)

	global, err := core.CreateDriverFromProcAddr(src.VulkanProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}
	d.global = global

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create instance", d.createInstance},
		{"debug messenger", d.setupDebugMessenger},
		{"create surface", d.createSurface},
		{"create device", d.createLogicalDevice},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			d.Destroy()
			return nil, errors.Wrap(err, step.name)
		}
	}
	d.log.Info("vkng: device ready", "device", d.name,
		"graphics", d.families[driver.Graphics], "present", d.families[driver.Present],
		"transfer", d.families[driver.Transfer], "compute", d.families[driver.Compute])
	return d, nil
}

func (d *Device) instanceExtensions() ([]string, core1_0.InstanceCreateFlags, error) {
	available, _, err := d.global.AvailableExtensions()
	if err != nil {
		return nil, 0, err
	}

	var names []string
	for _, ext := range d.src.RequiredInstanceExtensions() {
		if _, ok := available[ext]; !ok {
			return nil, 0, errors.Wrap(ErrMissingExtension, ext)
		}
		names = append(names, ext)
	}
	if d.cfg.Validation {
		if _, ok := available[ext_debug_utils.ExtensionName]; !ok {
			return nil, 0, errors.Wrap(ErrMissingExtension, ext_debug_utils.ExtensionName)
		}
		names = append(names, ext_debug_utils.ExtensionName)
	}

	var flags core1_0.InstanceCreateFlags
	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		names = append(names, khr_portability_enumeration.ExtensionName)
		flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}
	return names, flags, nil
}

func (d *Device) createInstance() error {
	extensions, flags, err := d.instanceExtensions()
	if err != nil {
		return err
	}
	info := core1_0.InstanceCreateInfo{
		ApplicationName:       d.cfg.AppName,
		ApplicationVersion:    d.cfg.AppVersion.vulkan(),
		EngineName:            d.cfg.EngineName,
		EngineVersion:         d.cfg.EngineVersion.vulkan(),
		APIVersion:            d.cfg.APIVersion,
		EnabledExtensionNames: extensions,
		Flags:                 flags,
	}

	if d.cfg.Validation {
		layers, _, err := d.global.AvailableLayers()
		if err != nil {
			return err
		}
		if _, ok := layers[validationLayer]; !ok {
			return errors.Wrap(ErrMissingLayer, validationLayer)
		}
		info.EnabledLayerNames = append(info.EnabledLayerNames, validationLayer)
		// Also covers messages from instance creation and destruction.
		info.Next = d.debugMessengerInfo()
	}

	instance, _, err := d.global.CreateInstance(nil, info)
	if err != nil {
		return err
	}
	d.instance, err = d.global.BuildInstanceDriver(instance)
	if err != nil {
		return errors.Wrap(err, "load instance functions")
	}
	return nil
}

func (d *Device) debugMessengerInfo() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    d.logDebug,
	}
}

func (d *Device) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	d.log.Log(context.Background(), debugLevel(severity), data.Message, "type", msgType, "id", data.MessageIDName)
	return false
}

func debugLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func (d *Device) setupDebugMessenger() error {
	if !d.cfg.Validation {
		return nil
	}
	var err error
	d.debug = ext_debug_utils.CreateExtensionDriverFromCoreDriver(d.instance)
	d.messenger, _, err = d.debug.CreateDebugUtilsMessenger(nil, d.debugMessengerInfo())
	return err
}

func (d *Device) createSurface() error {
	d.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(d.instance)
	surface, err := d.src.CreateSurface(d.instance.Instance(), d.surfaceExt)
	if err != nil {
		return err
	}
	d.surface = surface
	return nil
}

func (d *Device) createLogicalDevice() error {
	caps, err := d.pickPhysicalDevice()
	if err != nil {
		return err
	}
	d.physical = caps.device
	d.name = caps.Name
	d.families = caps.Families

	memProps := d.instance.GetPhysicalDeviceMemoryProperties(d.physical)
	for _, t := range memProps.MemoryTypes {
		d.memoryTypes = append(d.memoryTypes, driver.MemoryType{Flags: t.PropertyFlags, HeapIndex: t.HeapIndex})
	}

	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range d.families.Unique() {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensions := append([]string{khr_swapchain.ExtensionName}, d.cfg.DeviceExtensions...)
	if caps.PortabilitySubset {
		extensions = append(extensions, khr_portability_subset.ExtensionName)
	}

	features := d.cfg.Features
	if features == nil {
		features = &core1_0.PhysicalDeviceFeatures{}
	}
	dev, _, err := d.instance.CreateDevice(d.physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueInfos,
		EnabledFeatures:       features,
		EnabledExtensionNames: extensions,
	})
	if err != nil {
		return err
	}
	d.device, err = d.instance.BuildDeviceDriver(dev)
	if err != nil {
		return errors.Wrap(err, "load device functions")
	}

	byFamily := map[int]driver.Queue{}
	for _, role := range driver.QueueRoles {
		family := d.families[role]
		h, ok := byFamily[family]
		if !ok {
			h = d.queues.add(d.device.GetQueue(family, 0))
			byFamily[family] = h
		}
		d.roleQueues[role] = h
	}

	d.swapchainExt = khr_swapchain.CreateExtensionDriverFromCoreDriver(d.device)
	return nil
}

func (d *Device) Name() string { return d.name }

// Candidates lists every physical device considered by Open, in enumeration
// order, with the selected one marked.
func (d *Device) Candidates() []Candidate {
	return append([]Candidate(nil), d.candidates...)
}

func (d *Device) Queue(role driver.QueueRole) driver.Queue {
	if !role.Valid() {
		return driver.Null
	}
	return d.roleQueues[role]
}

func (d *Device) QueueFamily(role driver.QueueRole) int {
	if !role.Valid() {
		return -1
	}
	return d.families[role]
}

func (d *Device) MemoryTypes() []driver.MemoryType { return d.memoryTypes }

func (d *Device) SurfaceSupport() (driver.SurfaceSupport, error) {
	var support driver.SurfaceSupport

	caps, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(d.surface, d.physical)
	if err != nil {
		return support, errors.Wrap(err, "surface capabilities")
	}
	support.Capabilities = surfaceCapabilities(caps)

	support.Formats, _, err = d.surfaceExt.GetPhysicalDeviceSurfaceFormats(d.surface, d.physical)
	if err != nil {
		return support, errors.Wrap(err, "surface formats")
	}
	support.PresentModes, _, err = d.surfaceExt.GetPhysicalDeviceSurfacePresentModes(d.surface, d.physical)
	if err != nil {
		return support, errors.Wrap(err, "present modes")
	}

	w, h := d.src.DrawableSize()
	support.DrawableExtent = core1_0.Extent2D{Width: w, Height: h}
	return support, nil
}

func (d *Device) WaitIdle() error {
	if d.device == nil {
		return nil
	}
	res, err := d.device.DeviceWaitIdle()
	return check("device wait idle", res, err)
}

// Destroy releases every object still registered, then the device, the
// surface and the instance. Objects go in reverse dependency order.
func (d *Device) Destroy() {
	if d.device != nil {
		if err := d.WaitIdle(); err != nil {
			d.log.Warn("vkng: wait idle before destroy", "err", err)
		}
		d.destroyObjects()
		d.device.DestroyDevice(nil)
		d.device = nil
	}
	if d.surface.Initialized() {
		d.surfaceExt.DestroySurface(d.surface, nil)
		d.surface = khr_surface.Surface{}
	}
	if d.messenger.Initialized() {
		d.debug.DestroyDebugUtilsMessenger(d.messenger, nil)
		d.messenger = ext_debug_utils.DebugUtilsMessenger{}
	}
	if d.instance != nil {
		d.instance.DestroyInstance(nil)
		d.instance = nil
	}
}

func (d *Device) destroyObjects() {
	leaked := 0
	for _, p := range d.pipelines.drain() {
		d.device.DestroyPipeline(p, nil)
		leaked++
	}
	for _, l := range d.pipelineLayouts.drain() {
		d.device.DestroyPipelineLayout(l, nil)
		leaked++
	}
	for _, fb := range d.framebuffers.drain() {
		d.device.DestroyFramebuffer(fb, nil)
		leaked++
	}
	for _, rp := range d.renderPasses.drain() {
		d.device.DestroyRenderPass(rp, nil)
		leaked++
	}
	for _, m := range d.shaderModules.drain() {
		d.device.DestroyShaderModule(m, nil)
		leaked++
	}
	for _, v := range d.imageViews.drain() {
		d.device.DestroyImageView(v, nil)
		leaked++
	}
	for _, sc := range d.swapchains.drain() {
		for _, img := range sc.images {
			d.images.remove(img)
		}
		d.swapchainExt.DestroySwapchain(sc.swapchain, nil)
		leaked++
	}
	for _, img := range d.images.drain() {
		d.device.DestroyImage(img, nil)
		leaked++
	}
	for _, b := range d.buffers.drain() {
		d.device.DestroyBuffer(b, nil)
		leaked++
	}
	for _, m := range d.memory.drain() {
		d.device.FreeMemory(m, nil)
		leaked++
	}
	d.commandBuffers.drain()
	for _, p := range d.commandPools.drain() {
		d.device.DestroyCommandPool(p, nil)
		leaked++
	}
	for _, s := range d.semaphores.drain() {
		d.device.DestroySemaphore(s, nil)
		leaked++
	}
	for _, f := range d.fences.drain() {
		d.device.DestroyFence(f, nil)
		leaked++
	}
	d.queues.drain()
	if leaked > 0 {
		d.log.Warn("vkng: destroyed objects still alive at shutdown", "count", leaked)
	}
}

type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }
