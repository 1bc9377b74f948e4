package gfx

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

// MemoryUsage is a hint for where an allocation should live.
type MemoryUsage int

const (
	// MemoryUsageAuto prefers device-local memory and accepts anything.
	MemoryUsageAuto MemoryUsage = iota
	// MemoryUsageGPUOnly is for resources only the GPU touches.
	MemoryUsageGPUOnly
	// MemoryUsageCPUToGPU is host-visible memory the CPU writes and the GPU
	// reads, such as staging and per-frame uniform buffers.
	MemoryUsageCPUToGPU
	// MemoryUsageGPUToCPU is host-visible memory the GPU writes and the CPU
	// reads back, preferably cached.
	MemoryUsageGPUToCPU
	// MemoryUsageCPUOnly is host-visible memory with no device preference.
	MemoryUsageCPUOnly
)

func (u MemoryUsage) String() string {
	switch u {
	case MemoryUsageAuto:
		return "auto"
	case MemoryUsageGPUOnly:
		return "gpu-only"
	case MemoryUsageCPUToGPU:
		return "cpu-to-gpu"
	case MemoryUsageGPUToCPU:
		return "gpu-to-cpu"
	case MemoryUsageCPUOnly:
		return "cpu-only"
	}
	return fmt.Sprintf("MemoryUsage(%d)", int(u))
}

const hostAccess = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

func (u MemoryUsage) flags() (required, preferred core1_0.MemoryPropertyFlags) {
	switch u {
	case MemoryUsageGPUOnly, MemoryUsageAuto:
		return 0, core1_0.MemoryPropertyDeviceLocal
	case MemoryUsageCPUToGPU:
		return hostAccess, core1_0.MemoryPropertyDeviceLocal
	case MemoryUsageGPUToCPU:
		return hostAccess, core1_0.MemoryPropertyHostCached
	case MemoryUsageCPUOnly:
		return hostAccess, 0
	}
	return 0, 0
}

// findMemoryType returns the first memory type allowed by typeBits that has
// both the required and the preferred flags, falling back to the first that
// has the required flags.
func findMemoryType(types []driver.MemoryType, typeBits uint32, required, preferred core1_0.MemoryPropertyFlags) (int, error) {
	for _, want := range []core1_0.MemoryPropertyFlags{required | preferred, required} {
		for i, t := range types {
			if typeBits&(1<<uint(i)) == 0 {
				continue
			}
			if t.Flags&want == want {
				return i, nil
			}
		}
	}
	return -1, errors.Wrapf(ErrNoMemoryType, "type bits %#b, required flags %v", typeBits, required)
}

// Allocation is one block of device memory backing a buffer or image.
type Allocation struct {
	memory    driver.DeviceMemory
	size      int
	typeIndex int
	flags     core1_0.MemoryPropertyFlags

	mu       sync.Mutex
	mapped   []byte
	mapCount int
}

func (a *Allocation) Memory() driver.DeviceMemory { return a.memory }
func (a *Allocation) Size() int                   { return a.size }
func (a *Allocation) MemoryTypeIndex() int        { return a.typeIndex }

func (a *Allocation) HostVisible() bool {
	return a.flags&core1_0.MemoryPropertyHostVisible != 0
}

// Allocator creates buffers and images, each with its own dedicated block
// of device memory. A failure to allocate is reported as an error marked
// ErrAllocationFailed and never retried.
type Allocator struct {
	ctx *Context
}

func (a *Allocator) allocate(reqs driver.MemoryRequirements, usage MemoryUsage) (*Allocation, error) {
	dev := a.ctx.dev
	types := dev.MemoryTypes()
	required, preferred := usage.flags()
	idx, err := findMemoryType(types, reqs.MemoryTypeBits, required, preferred)
	if err != nil {
		return nil, err
	}
	mem, err := dev.AllocateMemory(reqs.Size, idx)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes of memory type %d", reqs.Size, idx)
	}
	return &Allocation{
		memory:    mem,
		size:      reqs.Size,
		typeIndex: idx,
		flags:     types[idx].Flags,
	}, nil
}

func (a *Allocator) free(alloc *Allocation) {
	alloc.mu.Lock()
	if alloc.mapCount > 0 {
		a.ctx.dev.UnmapMemory(alloc.memory)
		alloc.mapCount = 0
		alloc.mapped = nil
	}
	alloc.mu.Unlock()
	a.ctx.dev.FreeMemory(alloc.memory)
}

// CreateBuffer creates a buffer of size bytes with its own memory.
func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, mem MemoryUsage) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Mark(errors.Wrapf(ErrInvalidSize, "buffer of %d bytes", size), ErrAllocationFailed)
	}
	dev := a.ctx.dev

	handle, err := dev.CreateBuffer(core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create buffer of %d bytes", size), ErrAllocationFailed)
	}

	alloc, err := a.allocate(dev.BufferMemoryRequirements(handle), mem)
	if err != nil {
		dev.DestroyBuffer(handle)
		return nil, errors.Mark(errors.Wrap(err, "allocate buffer memory"), ErrAllocationFailed)
	}

	if err := dev.BindBufferMemory(handle, alloc.memory, 0); err != nil {
		dev.DestroyBuffer(handle)
		a.free(alloc)
		return nil, errors.Mark(errors.Wrap(err, "bind buffer memory"), ErrAllocationFailed)
	}

	b := &Buffer{
		alloc:      a,
		handle:     handle,
		allocation: alloc,
		size:       size,
		usage:      usage,
	}
	b.refs.Store(1)
	a.ctx.retain()

	Logger().Debug("buffer created",
		slog.Int("size", size),
		slog.String("memory", mem.String()),
		slog.Int("memory_type", alloc.typeIndex))
	return b, nil
}

// CreateImage creates an image described by info with its own memory.
func (a *Allocator) CreateImage(info core1_0.ImageCreateInfo, mem MemoryUsage) (*Image, error) {
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return nil, errors.Mark(errors.Wrapf(ErrInvalidSize, "image of %dx%d", info.Extent.Width, info.Extent.Height), ErrAllocationFailed)
	}
	dev := a.ctx.dev

	handle, err := dev.CreateImage(info)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create image"), ErrAllocationFailed)
	}

	alloc, err := a.allocate(dev.ImageMemoryRequirements(handle), mem)
	if err != nil {
		dev.DestroyImage(handle)
		return nil, errors.Mark(errors.Wrap(err, "allocate image memory"), ErrAllocationFailed)
	}

	if err := dev.BindImageMemory(handle, alloc.memory, 0); err != nil {
		dev.DestroyImage(handle)
		a.free(alloc)
		return nil, errors.Mark(errors.Wrap(err, "bind image memory"), ErrAllocationFailed)
	}

	img := &Image{
		alloc:      a,
		handle:     handle,
		allocation: alloc,
		format:     info.Format,
		extent:     info.Extent,
		usage:      info.Usage,
	}
	img.refs.Store(1)
	a.ctx.retain()

	Logger().Debug("image created",
		slog.Int("width", info.Extent.Width),
		slog.Int("height", info.Extent.Height),
		slog.String("memory", mem.String()),
		slog.Int("memory_type", alloc.typeIndex))
	return img, nil
}

// Map returns the allocation's memory as a byte slice. Mappings nest: the
// memory stays mapped until Unmap has been called once per Map.
func (a *Allocator) Map(alloc *Allocation) ([]byte, error) {
	if !alloc.HostVisible() {
		return nil, ErrNotHostVisible
	}
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	if alloc.mapCount == 0 {
		data, err := a.ctx.dev.MapMemory(alloc.memory, 0, alloc.size)
		if err != nil {
			return nil, errors.Wrap(err, "map memory")
		}
		alloc.mapped = data
	}
	alloc.mapCount++
	return alloc.mapped, nil
}

func (a *Allocator) Unmap(alloc *Allocation) {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	if alloc.mapCount == 0 {
		return
	}
	alloc.mapCount--
	if alloc.mapCount == 0 {
		a.ctx.dev.UnmapMemory(alloc.memory)
		alloc.mapped = nil
	}
}
