// Package driver defines the explicit graphics API surface the kat runtime
// drives. Objects are referred to by opaque handles: small integers that an
// implementation maps to its own API objects. The zero handle is never valid.
//
// Two implementations exist: driver/vkng, backed by vkngwrapper, and
// driver/drivertest, an in-memory fake used by tests.
package driver

// Handle types. Each is an index into an implementation-owned table.
type (
	Queue          uint64
	Fence          uint64
	Semaphore      uint64
	CommandPool    uint64
	CommandBuffer  uint64
	Buffer         uint64
	Image          uint64
	ImageView      uint64
	DeviceMemory   uint64
	ShaderModule   uint64
	RenderPass     uint64
	Framebuffer    uint64
	PipelineLayout uint64
	Pipeline       uint64
	Swapchain      uint64
)

// Null is the invalid value shared by every handle type.
const Null = 0
