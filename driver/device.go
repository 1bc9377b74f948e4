package driver

import (
	"math"
	"time"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// NoTimeout makes a wait block until the awaited object completes.
const NoTimeout = time.Duration(math.MaxInt64)

// MemoryType describes one memory type of the physical device.
type MemoryType struct {
	Flags     core1_0.MemoryPropertyFlags
	HeapIndex int
}

// MemoryRequirements is what a buffer or image needs from its backing memory.
type MemoryRequirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

// SurfaceCapabilities mirrors the parts of the surface capabilities the
// swapchain builder uses. MaxImageCount is zero when unbounded.
type SurfaceCapabilities struct {
	MinImageCount  int
	MaxImageCount  int
	CurrentExtent  core1_0.Extent2D
	MinImageExtent core1_0.Extent2D
	MaxImageExtent core1_0.Extent2D
}

// SurfaceSupport is everything needed to pick swapchain parameters.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
	// DrawableExtent is the window's drawable size in pixels, used when the
	// surface leaves the extent up to the swapchain.
	DrawableExtent core1_0.Extent2D
}

type SwapchainCreateInfo struct {
	MinImageCount      int
	Format             core1_0.Format
	ColorSpace         khr_surface.ColorSpace
	Extent             core1_0.Extent2D
	Usage              core1_0.ImageUsageFlags
	PresentMode        khr_surface.PresentMode
	QueueFamilyIndices []int
	OldSwapchain       Swapchain
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     int
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitDstStageMask []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type ImageViewCreateInfo struct {
	Image            Image
	ViewType         core1_0.ImageViewType
	Format           core1_0.Format
	SubresourceRange core1_0.ImageSubresourceRange
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       int
	Height      int
	Layers      int
}

type PipelineLayoutCreateInfo struct {
	PushConstantRanges []core1_0.PushConstantRange
}

type ShaderStage struct {
	Stage      core1_0.ShaderStageFlags
	Module     ShaderModule
	EntryPoint string
}

type GraphicsPipelineCreateInfo struct {
	Stages        []ShaderStage
	VertexInput   *core1_0.PipelineVertexInputStateCreateInfo
	InputAssembly *core1_0.PipelineInputAssemblyStateCreateInfo
	Viewport      *core1_0.PipelineViewportStateCreateInfo
	Rasterization *core1_0.PipelineRasterizationStateCreateInfo
	Multisample   *core1_0.PipelineMultisampleStateCreateInfo
	DepthStencil  *core1_0.PipelineDepthStencilStateCreateInfo
	ColorBlend    *core1_0.PipelineColorBlendStateCreateInfo
	Dynamic       *core1_0.PipelineDynamicStateCreateInfo
	Layout        PipelineLayout
	RenderPass    RenderPass
	Subpass       int
}

// ImageBarrier is an image memory barrier that does not transfer queue
// family ownership.
type ImageBarrier struct {
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	Image     Image
	Range     core1_0.ImageSubresourceRange
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	RenderArea  core1_0.Rect2D
	ClearValues []core1_0.ClearValue
	Contents    core1_0.SubpassContents
}

// Device is a logical device together with its queues, surface and
// swapchain extension. Implementations must be safe for concurrent use of
// distinct objects; access to one queue or command pool must be externally
// synchronized by the caller, as in Vulkan.
type Device interface {
	Name() string
	Queue(role QueueRole) Queue
	QueueFamily(role QueueRole) int
	MemoryTypes() []MemoryType
	SurfaceSupport() (SurfaceSupport, error)
	WaitIdle() error
	Destroy()

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	WaitForFences(timeout time.Duration, fences ...Fence) error
	ResetFences(fences ...Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, error)
	DestroySwapchain(sc Swapchain)
	SwapchainImages(sc Swapchain) ([]Image, error)
	// AcquireNextImage returns ErrOutOfDate when the swapchain is stale, and
	// the acquired index together with ErrSuboptimal when it merely no longer
	// matches the surface.
	AcquireNextImage(sc Swapchain, timeout time.Duration, signal Semaphore) (int, error)
	QueuePresent(q Queue, info PresentInfo) error

	CreateCommandPool(family int, resettable bool) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers ...CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error
	QueueSubmit(q Queue, fence Fence, submits ...SubmitInfo) error

	CreateBuffer(info core1_0.BufferCreateInfo) (Buffer, error)
	DestroyBuffer(b Buffer)
	BufferMemoryRequirements(b Buffer) MemoryRequirements
	CreateImage(info core1_0.ImageCreateInfo) (Image, error)
	DestroyImage(img Image)
	ImageMemoryRequirements(img Image) MemoryRequirements
	CreateImageView(info ImageViewCreateInfo) (ImageView, error)
	DestroyImageView(v ImageView)
	AllocateMemory(size int, memoryTypeIndex int) (DeviceMemory, error)
	FreeMemory(mem DeviceMemory)
	BindBufferMemory(b Buffer, mem DeviceMemory, offset int) error
	BindImageMemory(img Image, mem DeviceMemory, offset int) error
	// MapMemory returns a slice aliasing size bytes of host-visible memory
	// starting at offset. The slice is invalid after UnmapMemory.
	MapMemory(mem DeviceMemory, offset, size int) ([]byte, error)
	UnmapMemory(mem DeviceMemory)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
	CreatePipelineLayout(info PipelineLayoutCreateInfo) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CmdPipelineBarrier(cb CommandBuffer, src, dst core1_0.PipelineStageFlags, barriers ...ImageBarrier)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions ...core1_0.BufferCopy) error
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error
	CmdBeginRenderPass(cb CommandBuffer, info RenderPassBegin) error
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, bindPoint core1_0.PipelineBindPoint, p Pipeline)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding int, buffers []Buffer, offsets []int)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset int, indexType core1_0.IndexType)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int)
}
