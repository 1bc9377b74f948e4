package vkng

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/katgfx/kat/driver"
)

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	f, res, err := d.device.CreateFence(nil, info)
	if err := check("create fence", res, err); err != nil {
		return driver.Null, err
	}
	return d.fences.add(f), nil
}

func (d *Device) DestroyFence(h driver.Fence) {
	if f, ok := d.fences.remove(h); ok {
		d.device.DestroyFence(f, nil)
	}
}

func (d *Device) WaitForFences(timeout time.Duration, hs ...driver.Fence) error {
	fences, err := d.fences.all(hs)
	if err != nil {
		return err
	}
	res, err := d.device.WaitForFences(true, waitTimeout(timeout), fences...)
	return check("wait for fences", res, err)
}

func (d *Device) ResetFences(hs ...driver.Fence) error {
	fences, err := d.fences.all(hs)
	if err != nil {
		return err
	}
	res, err := d.device.ResetFences(fences...)
	return check("reset fences", res, err)
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	s, res, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err := check("create semaphore", res, err); err != nil {
		return driver.Null, err
	}
	return d.semaphores.add(s), nil
}

func (d *Device) DestroySemaphore(h driver.Semaphore) {
	if s, ok := d.semaphores.remove(h); ok {
		d.device.DestroySemaphore(s, nil)
	}
}

func (d *Device) CreateSwapchain(info driver.SwapchainCreateInfo) (driver.Swapchain, error) {
	caps, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(d.surface, d.physical)
	if err != nil {
		return driver.Null, errors.Wrap(err, "surface capabilities")
	}

	sharing := core1_0.SharingModeExclusive
	var families []int
	if len(info.QueueFamilyIndices) > 1 {
		sharing = core1_0.SharingModeConcurrent
		families = info.QueueFamilyIndices
	}

	var old khr_swapchain.Swapchain
	if info.OldSwapchain != driver.Null {
		entry, err := d.swapchains.get(info.OldSwapchain)
		if err != nil {
			return driver.Null, err
		}
		old = entry.swapchain
	}

	sc, res, err := d.swapchainExt.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: d.surface,

		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.Format,
		ImageColorSpace:  info.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       info.Usage,

		ImageSharingMode:   sharing,
		QueueFamilyIndices: families,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    info.PresentMode,
		Clipped:        true,
		OldSwapchain:   old,
	})
	if err := check("create swapchain", res, err); err != nil {
		return driver.Null, err
	}
	return d.swapchains.add(&swapchainEntry{swapchain: sc}), nil
}

// DestroySwapchain also forgets the swapchain's image handles.
func (d *Device) DestroySwapchain(h driver.Swapchain) {
	entry, ok := d.swapchains.remove(h)
	if !ok {
		return
	}
	for _, img := range entry.images {
		d.images.remove(img)
	}
	d.swapchainExt.DestroySwapchain(entry.swapchain, nil)
}

func (d *Device) SwapchainImages(h driver.Swapchain) ([]driver.Image, error) {
	entry, err := d.swapchains.get(h)
	if err != nil {
		return nil, err
	}
	if entry.images != nil {
		return entry.images, nil
	}
	images, res, err := d.swapchainExt.GetSwapchainImages(entry.swapchain)
	if err := check("swapchain images", res, err); err != nil {
		return nil, err
	}
	for _, img := range images {
		entry.images = append(entry.images, d.images.add(img))
	}
	return entry.images, nil
}

func (d *Device) AcquireNextImage(h driver.Swapchain, timeout time.Duration, signal driver.Semaphore) (int, error) {
	entry, err := d.swapchains.get(h)
	if err != nil {
		return -1, err
	}
	sem, err := d.semaphores.get(signal)
	if err != nil {
		return -1, err
	}
	idx, res, err := d.swapchainExt.AcquireNextImage(entry.swapchain, waitTimeout(timeout), &sem, nil)
	if err := check("acquire next image", res, err); err != nil {
		if errors.Is(err, driver.ErrSuboptimal) {
			return idx, err
		}
		return -1, err
	}
	return idx, nil
}

func (d *Device) QueuePresent(q driver.Queue, info driver.PresentInfo) error {
	queue, err := d.queues.get(q)
	if err != nil {
		return err
	}
	waits, err := d.semaphores.all(info.WaitSemaphores)
	if err != nil {
		return err
	}
	entry, err := d.swapchains.get(info.Swapchain)
	if err != nil {
		return err
	}
	res, err := d.swapchainExt.QueuePresent(queue, khr_swapchain.PresentInfo{
		WaitSemaphores: waits,
		Swapchains:     []khr_swapchain.Swapchain{entry.swapchain},
		ImageIndices:   []int{info.ImageIndex},
	})
	return check("queue present", res, err)
}

func (d *Device) CreateCommandPool(family int, resettable bool) (driver.CommandPool, error) {
	info := core1_0.CommandPoolCreateInfo{QueueFamilyIndex: family}
	if resettable {
		info.Flags = core1_0.CommandPoolCreateResetBuffer
	}
	pool, res, err := d.device.CreateCommandPool(nil, info)
	if err := check("create command pool", res, err); err != nil {
		return driver.Null, err
	}
	return d.commandPools.add(pool), nil
}

func (d *Device) DestroyCommandPool(h driver.CommandPool) {
	if pool, ok := d.commandPools.remove(h); ok {
		d.device.DestroyCommandPool(pool, nil)
	}
}

func (d *Device) AllocateCommandBuffers(h driver.CommandPool, count int) ([]driver.CommandBuffer, error) {
	pool, err := d.commandPools.get(h)
	if err != nil {
		return nil, err
	}
	buffers, res, err := d.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err := check("allocate command buffers", res, err); err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, len(buffers))
	for i, cb := range buffers {
		out[i] = d.commandBuffers.add(cb)
	}
	return out, nil
}

// FreeCommandBuffers ignores the pool handle: buffers remember their pool.
func (d *Device) FreeCommandBuffers(_ driver.CommandPool, hs ...driver.CommandBuffer) {
	var buffers []core1_0.CommandBuffer
	for _, h := range hs {
		if cb, ok := d.commandBuffers.remove(h); ok {
			buffers = append(buffers, cb)
		}
	}
	if len(buffers) > 0 {
		d.device.FreeCommandBuffers(buffers...)
	}
}

func (d *Device) BeginCommandBuffer(h driver.CommandBuffer, oneTimeSubmit bool) error {
	cb, err := d.commandBuffers.get(h)
	if err != nil {
		return err
	}
	var info core1_0.CommandBufferBeginInfo
	if oneTimeSubmit {
		info.Flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	res, err := d.device.BeginCommandBuffer(cb, info)
	return check("begin command buffer", res, err)
}

func (d *Device) EndCommandBuffer(h driver.CommandBuffer) error {
	cb, err := d.commandBuffers.get(h)
	if err != nil {
		return err
	}
	res, err := d.device.EndCommandBuffer(cb)
	return check("end command buffer", res, err)
}

func (d *Device) QueueSubmit(q driver.Queue, fence driver.Fence, submits ...driver.SubmitInfo) error {
	queue, err := d.queues.get(q)
	if err != nil {
		return err
	}
	var f *core1_0.Fence
	if fence != driver.Null {
		v, err := d.fences.get(fence)
		if err != nil {
			return err
		}
		f = &v
	}

	infos := make([]core1_0.SubmitInfo, len(submits))
	for i, s := range submits {
		waits, err := d.semaphores.all(s.WaitSemaphores)
		if err != nil {
			return err
		}
		buffers, err := d.commandBuffers.all(s.CommandBuffers)
		if err != nil {
			return err
		}
		signals, err := d.semaphores.all(s.SignalSemaphores)
		if err != nil {
			return err
		}
		infos[i] = core1_0.SubmitInfo{
			WaitSemaphores:   waits,
			WaitDstStageMask: s.WaitDstStageMask,
			CommandBuffers:   buffers,
			SignalSemaphores: signals,
		}
	}
	res, err := d.device.QueueSubmit(queue, f, infos...)
	return check("queue submit", res, err)
}

func (d *Device) CreateBuffer(info core1_0.BufferCreateInfo) (driver.Buffer, error) {
	b, res, err := d.device.CreateBuffer(nil, info)
	if err := check("create buffer", res, err); err != nil {
		return driver.Null, err
	}
	return d.buffers.add(b), nil
}

func (d *Device) DestroyBuffer(h driver.Buffer) {
	if b, ok := d.buffers.remove(h); ok {
		d.device.DestroyBuffer(b, nil)
	}
}

func (d *Device) BufferMemoryRequirements(h driver.Buffer) driver.MemoryRequirements {
	b, err := d.buffers.get(h)
	if err != nil {
		return driver.MemoryRequirements{}
	}
	return memoryRequirements(d.device.GetBufferMemoryRequirements(b))
}

func (d *Device) CreateImage(info core1_0.ImageCreateInfo) (driver.Image, error) {
	img, res, err := d.device.CreateImage(nil, info)
	if err := check("create image", res, err); err != nil {
		return driver.Null, err
	}
	return d.images.add(img), nil
}

func (d *Device) DestroyImage(h driver.Image) {
	if img, ok := d.images.remove(h); ok {
		d.device.DestroyImage(img, nil)
	}
}

func (d *Device) ImageMemoryRequirements(h driver.Image) driver.MemoryRequirements {
	img, err := d.images.get(h)
	if err != nil {
		return driver.MemoryRequirements{}
	}
	return memoryRequirements(d.device.GetImageMemoryRequirements(img))
}

func memoryRequirements(r *core1_0.MemoryRequirements) driver.MemoryRequirements {
	return driver.MemoryRequirements{Size: r.Size, Alignment: r.Alignment, MemoryTypeBits: r.MemoryTypeBits}
}

func (d *Device) CreateImageView(info driver.ImageViewCreateInfo) (driver.ImageView, error) {
	img, err := d.images.get(info.Image)
	if err != nil {
		return driver.Null, err
	}
	v, res, err := d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:            img,
		ViewType:         info.ViewType,
		Format:           info.Format,
		SubresourceRange: info.SubresourceRange,
	})
	if err := check("create image view", res, err); err != nil {
		return driver.Null, err
	}
	return d.imageViews.add(v), nil
}

func (d *Device) DestroyImageView(h driver.ImageView) {
	if v, ok := d.imageViews.remove(h); ok {
		d.device.DestroyImageView(v, nil)
	}
}

func (d *Device) AllocateMemory(size, memoryTypeIndex int) (driver.DeviceMemory, error) {
	m, res, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err := check("allocate memory", res, err); err != nil {
		return driver.Null, err
	}
	return d.memory.add(m), nil
}

func (d *Device) FreeMemory(h driver.DeviceMemory) {
	if m, ok := d.memory.remove(h); ok {
		d.device.FreeMemory(m, nil)
	}
}

func (d *Device) BindBufferMemory(hb driver.Buffer, hm driver.DeviceMemory, offset int) error {
	b, err := d.buffers.get(hb)
	if err != nil {
		return err
	}
	m, err := d.memory.get(hm)
	if err != nil {
		return err
	}
	res, err := d.device.BindBufferMemory(b, m, offset)
	return check("bind buffer memory", res, err)
}

func (d *Device) BindImageMemory(hi driver.Image, hm driver.DeviceMemory, offset int) error {
	img, err := d.images.get(hi)
	if err != nil {
		return err
	}
	m, err := d.memory.get(hm)
	if err != nil {
		return err
	}
	res, err := d.device.BindImageMemory(img, m, offset)
	return check("bind image memory", res, err)
}

func (d *Device) MapMemory(h driver.DeviceMemory, offset, size int) ([]byte, error) {
	m, err := d.memory.get(h)
	if err != nil {
		return nil, err
	}
	ptr, res, err := d.device.MapMemory(m, offset, size, 0)
	if err := check("map memory", res, err); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Device) UnmapMemory(h driver.DeviceMemory) {
	if m, err := d.memory.get(h); err == nil {
		d.device.UnmapMemory(m)
	}
}

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	m, res, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: code})
	if err := check("create shader module", res, err); err != nil {
		return driver.Null, err
	}
	return d.shaderModules.add(m), nil
}

func (d *Device) DestroyShaderModule(h driver.ShaderModule) {
	if m, ok := d.shaderModules.remove(h); ok {
		d.device.DestroyShaderModule(m, nil)
	}
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (driver.RenderPass, error) {
	rp, res, err := d.device.CreateRenderPass(nil, info)
	if err := check("create render pass", res, err); err != nil {
		return driver.Null, err
	}
	return d.renderPasses.add(rp), nil
}

func (d *Device) DestroyRenderPass(h driver.RenderPass) {
	if rp, ok := d.renderPasses.remove(h); ok {
		d.device.DestroyRenderPass(rp, nil)
	}
}

func (d *Device) CreateFramebuffer(info driver.FramebufferCreateInfo) (driver.Framebuffer, error) {
	rp, err := d.renderPasses.get(info.RenderPass)
	if err != nil {
		return driver.Null, err
	}
	views, err := d.imageViews.all(info.Attachments)
	if err != nil {
		return driver.Null, err
	}
	fb, res, err := d.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  rp,
		Attachments: views,
		Width:       info.Width,
		Height:      info.Height,
		Layers:      framebufferLayers(info.Layers),
	})
	if err := check("create framebuffer", res, err); err != nil {
		return driver.Null, err
	}
	return d.framebuffers.add(fb), nil
}

func framebufferLayers(n int) uint32 {
	if n <= 0 {
		return 1
	}
	return uint32(n)
}

func (d *Device) DestroyFramebuffer(h driver.Framebuffer) {
	if fb, ok := d.framebuffers.remove(h); ok {
		d.device.DestroyFramebuffer(fb, nil)
	}
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutCreateInfo) (driver.PipelineLayout, error) {
	l, res, err := d.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		PushConstantRanges: info.PushConstantRanges,
	})
	if err := check("create pipeline layout", res, err); err != nil {
		return driver.Null, err
	}
	return d.pipelineLayouts.add(l), nil
}

func (d *Device) DestroyPipelineLayout(h driver.PipelineLayout) {
	if l, ok := d.pipelineLayouts.remove(h); ok {
		d.device.DestroyPipelineLayout(l, nil)
	}
}

func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineCreateInfo) (driver.Pipeline, error) {
	layout, err := d.pipelineLayouts.get(info.Layout)
	if err != nil {
		return driver.Null, err
	}
	rp, err := d.renderPasses.get(info.RenderPass)
	if err != nil {
		return driver.Null, err
	}
	stages := make([]core1_0.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		m, err := d.shaderModules.get(s.Module)
		if err != nil {
			return driver.Null, err
		}
		stages[i] = core1_0.PipelineShaderStageCreateInfo{Stage: s.Stage, Module: m, Name: s.EntryPoint}
	}

	pipelines, res, err := d.device.CreateGraphicsPipelines(nil, nil, core1_0.GraphicsPipelineCreateInfo{
		Stages:             stages,
		VertexInputState:   info.VertexInput,
		InputAssemblyState: info.InputAssembly,
		ViewportState:      info.Viewport,
		RasterizationState: info.Rasterization,
		MultisampleState:   info.Multisample,
		DepthStencilState:  info.DepthStencil,
		ColorBlendState:    info.ColorBlend,
		DynamicState:       info.Dynamic,
		Layout:             layout,
		RenderPass:         rp,
		Subpass:            info.Subpass,
		BasePipelineIndex:  -1,
	})
	if err := check("create graphics pipeline", res, err); err != nil {
		return driver.Null, err
	}
	return d.pipelines.add(pipelines[0]), nil
}

func (d *Device) DestroyPipeline(h driver.Pipeline) {
	if p, ok := d.pipelines.remove(h); ok {
		d.device.DestroyPipeline(p, nil)
	}
}
