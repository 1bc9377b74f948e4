// Package drivertest provides an in-memory driver.Device for tests.
//
// The fake executes copy commands and layout transitions against host
// memory when a command buffer is submitted, tracks every live object, and
// lets a test decide when submitted fences signal.
package drivertest

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/katgfx/kat/driver"
)

// Call is one recorded driver call.
type Call struct {
	Name    string
	Handles []uint64
}

// Submit is one recorded QueueSubmit.
type Submit struct {
	Queue driver.Queue
	Fence driver.Fence
	Infos []driver.SubmitInfo
}

type memory struct {
	data     []byte
	typeIdx  int
	mapped   bool
	freed    bool
	hostView bool
}

type binding struct {
	mem    driver.DeviceMemory
	offset int
}

type buffer struct {
	info core1_0.BufferCreateInfo
	binding
	bound bool
}

type image struct {
	info   core1_0.ImageCreateInfo
	layout core1_0.ImageLayout
	binding
	bound     bool
	swapchain bool
}

type swapchain struct {
	info   driver.SwapchainCreateInfo
	images []driver.Image
	next   int
}

type commandBuffer struct {
	pool      driver.CommandPool
	recording bool
	ops       []func(d *Device)
}

// Device is a fake driver.Device. The zero value is not usable; call New.
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64

	// ImageCount is the number of images every new swapchain gets.
	ImageCount int
	// Support is returned from SurfaceSupport.
	Support driver.SurfaceSupport
	// Types is returned from MemoryTypes.
	Types []driver.MemoryType
	// ManualFences leaves fences passed to QueueSubmit unsignaled until
	// SignalFence is called.
	ManualFences bool

	queues   [len(driver.QueueRoles)]driver.Queue
	families driver.QueueFamilies

	history  []Call
	counts   map[string]int
	failures map[string][]error
	acquire  []error
	present  []error
	submits  []Submit
	presents []driver.PresentInfo

	live       map[uint64]string
	fences     map[driver.Fence]bool
	swapchains map[driver.Swapchain]*swapchain
	cmdBufs    map[driver.CommandBuffer]*commandBuffer
	buffers    map[driver.Buffer]*buffer
	images     map[driver.Image]*image
	memory     map[driver.DeviceMemory]*memory
	modules    map[driver.ShaderModule][]uint32
	pipelines  map[driver.Pipeline]driver.GraphicsPipelineCreateInfo
	layouts    map[driver.PipelineLayout]driver.PipelineLayoutCreateInfo
	destroyed  bool
}

// New returns a fake with one universal queue family, an 800x600 surface
// supporting FIFO and mailbox, three swapchain images and three memory
// types: device-local, host-visible coherent, and both.
func New() *Device {
	d := &Device{
		ImageCount: 3,
		Support: driver.SurfaceSupport{
			Capabilities: driver.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  8,
				CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
				MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []khr_surface.SurfaceFormat{
				{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			},
			PresentModes:   []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
			DrawableExtent: core1_0.Extent2D{Width: 800, Height: 600},
		},
		Types: []driver.MemoryType{
			{Flags: core1_0.MemoryPropertyDeviceLocal},
			{Flags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
			{Flags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
		counts:     map[string]int{},
		failures:   map[string][]error{},
		live:       map[uint64]string{},
		fences:     map[driver.Fence]bool{},
		swapchains: map[driver.Swapchain]*swapchain{},
		cmdBufs:    map[driver.CommandBuffer]*commandBuffer{},
		buffers:    map[driver.Buffer]*buffer{},
		images:     map[driver.Image]*image{},
		memory:     map[driver.DeviceMemory]*memory{},
		modules:    map[driver.ShaderModule][]uint32{},
		pipelines:  map[driver.Pipeline]driver.GraphicsPipelineCreateInfo{},
		layouts:    map[driver.PipelineLayout]driver.PipelineLayoutCreateInfo{},
	}
	d.cond = sync.NewCond(&d.mu)
	q := driver.Queue(d.newHandle("queue"))
	for i := range d.queues {
		d.queues[i] = q
	}
	return d
}

func (d *Device) newHandle(kind string) uint64 {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Device) release(h uint64) {
	delete(d.live, h)
}

func (d *Device) record(name string, handles ...uint64) {
	d.history = append(d.history, Call{Name: name, Handles: handles})
	d.counts[name]++
}

func (d *Device) fail(name string) error {
	errs := d.failures[name]
	if len(errs) == 0 {
		return nil
	}
	d.failures[name] = errs[1:]
	return errs[0]
}

// FailNext makes the next call to the named method return err.
func (d *Device) FailNext(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method] = append(d.failures[method], err)
}

// QueueAcquireResult makes a future AcquireNextImage return err. Results are
// consumed in order, one per call.
func (d *Device) QueueAcquireResult(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquire = append(d.acquire, err)
}

// QueuePresentResult makes a future QueuePresent return err.
func (d *Device) QueuePresentResult(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.present = append(d.present, err)
}

// Count returns how many times the named method was called.
func (d *Device) Count(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[method]
}

// History returns every recorded call in order.
func (d *Device) History() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.history...)
}

// ResetHistory clears recorded calls and counters.
func (d *Device) ResetHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
	d.counts = map[string]int{}
	d.submits = nil
	d.presents = nil
}

// Live returns the number of live objects of the given kind, or of every
// kind when kind is empty. Queues are not counted.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.live {
		if k == "queue" {
			continue
		}
		if kind == "" || k == kind {
			n++
		}
	}
	return n
}

func (d *Device) Submits() []Submit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submit(nil), d.submits...)
}

func (d *Device) Presents() []driver.PresentInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.PresentInfo(nil), d.presents...)
}

// SignalFence signals f and wakes every waiter.
func (d *Device) SignalFence(f driver.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences[f]; ok {
		d.fences[f] = true
		d.cond.Broadcast()
	}
}

// SignalAll signals every fence.
func (d *Device) SignalAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for f := range d.fences {
		d.fences[f] = true
	}
	d.cond.Broadcast()
}

func (d *Device) FenceSignaled(f driver.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences[f]
}

func (d *Device) SwapchainInfo(sc driver.Swapchain) (driver.SwapchainCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return driver.SwapchainCreateInfo{}, false
	}
	return s.info, true
}

func (d *Device) BufferInfo(b driver.Buffer) (core1_0.BufferCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok {
		return core1_0.BufferCreateInfo{}, false
	}
	return buf.info, true
}

// BufferContents returns a copy of the memory bound to b.
func (d *Device) BufferContents(b driver.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok || !buf.bound {
		return nil
	}
	m := d.memory[buf.mem]
	return append([]byte(nil), m.data[buf.offset:buf.offset+buf.info.Size]...)
}

// ImageContents returns a copy of the memory bound to img.
func (d *Device) ImageContents(img driver.Image) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	im, ok := d.images[img]
	if !ok || !im.bound {
		return nil
	}
	return append([]byte(nil), d.memory[im.mem].data[im.offset:]...)
}

func (d *Device) ImageLayout(img driver.Image) core1_0.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	if im, ok := d.images[img]; ok {
		return im.layout
	}
	return core1_0.ImageLayoutUndefined
}

func (d *Device) MemoryType(mem driver.DeviceMemory) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.memory[mem]; ok {
		return m.typeIdx
	}
	return -1
}

func (d *Device) Pipeline(p driver.Pipeline) (driver.GraphicsPipelineCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.pipelines[p]
	return info, ok
}

func (d *Device) PipelineLayout(l driver.PipelineLayout) (driver.PipelineLayoutCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.layouts[l]
	return info, ok
}

func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *Device) Name() string { return "drivertest" }

func (d *Device) Queue(role driver.QueueRole) driver.Queue {
	return d.queues[role]
}

func (d *Device) QueueFamily(role driver.QueueRole) int {
	return d.families[role]
}

func (d *Device) MemoryTypes() []driver.MemoryType {
	return d.Types
}

func (d *Device) SurfaceSupport() (driver.SurfaceSupport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SurfaceSupport")
	if err := d.fail("SurfaceSupport"); err != nil {
		return driver.SurfaceSupport{}, err
	}
	return d.Support, nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitIdle")
	return d.fail("WaitIdle")
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Destroy")
	d.destroyed = true
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateFence"); err != nil {
		return driver.Null, err
	}
	f := driver.Fence(d.newHandle("fence"))
	d.fences[f] = signaled
	d.record("CreateFence", uint64(f))
	return f, nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyFence", uint64(f))
	delete(d.fences, f)
	d.release(uint64(f))
}

func (d *Device) WaitForFences(timeout time.Duration, fences ...driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	handles := make([]uint64, len(fences))
	for i, f := range fences {
		handles[i] = uint64(f)
		if _, ok := d.fences[f]; !ok {
			return errors.Wrapf(driver.ErrUnknownHandle, "fence %d", f)
		}
	}
	d.record("WaitForFences", handles...)

	for {
		done := true
		for _, f := range fences {
			if !d.fences[f] {
				done = false
			}
		}
		if done {
			return nil
		}
		if timeout != driver.NoTimeout {
			return driver.ErrTimeout
		}
		d.cond.Wait()
	}
}

func (d *Device) ResetFences(fences ...driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]uint64, len(fences))
	for i, f := range fences {
		handles[i] = uint64(f)
		d.fences[f] = false
	}
	d.record("ResetFences", handles...)
	return d.fail("ResetFences")
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSemaphore"); err != nil {
		return driver.Null, err
	}
	s := driver.Semaphore(d.newHandle("semaphore"))
	d.record("CreateSemaphore", uint64(s))
	return s, nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroySemaphore", uint64(s))
	d.release(uint64(s))
}

func (d *Device) CreateSwapchain(info driver.SwapchainCreateInfo) (driver.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSwapchain"); err != nil {
		return driver.Null, err
	}
	sc := driver.Swapchain(d.newHandle("swapchain"))
	s := &swapchain{info: info}
	for i := 0; i < d.ImageCount; i++ {
		img := driver.Image(d.newHandle("swapchain-image"))
		d.images[img] = &image{swapchain: true}
		s.images = append(s.images, img)
	}
	d.swapchains[sc] = s
	d.record("CreateSwapchain", uint64(sc), uint64(info.OldSwapchain))
	return sc, nil
}

func (d *Device) DestroySwapchain(sc driver.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroySwapchain", uint64(sc))
	if s, ok := d.swapchains[sc]; ok {
		for _, img := range s.images {
			delete(d.images, img)
			d.release(uint64(img))
		}
		delete(d.swapchains, sc)
	}
	d.release(uint64(sc))
}

func (d *Device) SwapchainImages(sc driver.Swapchain) ([]driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return nil, errors.Wrapf(driver.ErrUnknownHandle, "swapchain %d", sc)
	}
	return append([]driver.Image(nil), s.images...), nil
}

func (d *Device) AcquireNextImage(sc driver.Swapchain, timeout time.Duration, signal driver.Semaphore) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AcquireNextImage", uint64(sc), uint64(signal))

	s, ok := d.swapchains[sc]
	if !ok {
		return 0, errors.Wrapf(driver.ErrUnknownHandle, "swapchain %d", sc)
	}

	var result error
	if len(d.acquire) > 0 {
		result = d.acquire[0]
		d.acquire = d.acquire[1:]
	}
	if result != nil && !errors.Is(result, driver.ErrSuboptimal) {
		return 0, result
	}

	idx := s.next
	s.next = (s.next + 1) % len(s.images)
	return idx, result
}

func (d *Device) QueuePresent(q driver.Queue, info driver.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("QueuePresent", uint64(q), uint64(info.Swapchain))
	d.presents = append(d.presents, info)
	if len(d.present) > 0 {
		err := d.present[0]
		d.present = d.present[1:]
		return err
	}
	return nil
}

func (d *Device) CreateCommandPool(family int, resettable bool) (driver.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateCommandPool"); err != nil {
		return driver.Null, err
	}
	p := driver.CommandPool(d.newHandle("command-pool"))
	d.record("CreateCommandPool", uint64(p))
	return p, nil
}

func (d *Device) DestroyCommandPool(pool driver.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyCommandPool", uint64(pool))
	for h, cb := range d.cmdBufs {
		if cb.pool == pool {
			delete(d.cmdBufs, h)
			d.release(uint64(h))
		}
	}
	d.release(uint64(pool))
}

func (d *Device) AllocateCommandBuffers(pool driver.CommandPool, count int) ([]driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, count)
	handles := make([]uint64, count)
	for i := range out {
		cb := driver.CommandBuffer(d.newHandle("command-buffer"))
		d.cmdBufs[cb] = &commandBuffer{pool: pool}
		out[i] = cb
		handles[i] = uint64(cb)
	}
	d.record("AllocateCommandBuffers", handles...)
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool driver.CommandPool, buffers ...driver.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]uint64, len(buffers))
	for i, cb := range buffers {
		handles[i] = uint64(cb)
		delete(d.cmdBufs, cb)
		d.release(uint64(cb))
	}
	d.record("FreeCommandBuffers", handles...)
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBuffer, oneTimeSubmit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BeginCommandBuffer", uint64(cb))
	c, ok := d.cmdBufs[cb]
	if !ok {
		return errors.Wrapf(driver.ErrUnknownHandle, "command buffer %d", cb)
	}
	c.recording = true
	c.ops = nil
	return nil
}

func (d *Device) EndCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("EndCommandBuffer", uint64(cb))
	c, ok := d.cmdBufs[cb]
	if !ok {
		return errors.Wrapf(driver.ErrUnknownHandle, "command buffer %d", cb)
	}
	if !c.recording {
		return errors.New("command buffer is not recording")
	}
	c.recording = false
	return d.fail("EndCommandBuffer")
}

func (d *Device) QueueSubmit(q driver.Queue, fence driver.Fence, submits ...driver.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("QueueSubmit", uint64(q), uint64(fence))
	if err := d.fail("QueueSubmit"); err != nil {
		return err
	}
	d.submits = append(d.submits, Submit{Queue: q, Fence: fence, Infos: submits})

	for _, s := range submits {
		for _, cb := range s.CommandBuffers {
			c, ok := d.cmdBufs[cb]
			if !ok {
				return errors.Wrapf(driver.ErrUnknownHandle, "command buffer %d", cb)
			}
			for _, op := range c.ops {
				op(d)
			}
		}
	}

	if fence != driver.Null && !d.ManualFences {
		d.fences[fence] = true
		d.cond.Broadcast()
	}
	return nil
}

func (d *Device) CreateBuffer(info core1_0.BufferCreateInfo) (driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateBuffer"); err != nil {
		return driver.Null, err
	}
	b := driver.Buffer(d.newHandle("buffer"))
	d.buffers[b] = &buffer{info: info}
	d.record("CreateBuffer", uint64(b))
	return b, nil
}

func (d *Device) DestroyBuffer(b driver.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyBuffer", uint64(b))
	delete(d.buffers, b)
	d.release(uint64(b))
}

func (d *Device) BufferMemoryRequirements(b driver.Buffer) driver.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.buffers[b]
	if buf == nil {
		return driver.MemoryRequirements{}
	}
	return driver.MemoryRequirements{
		Size:           buf.info.Size,
		Alignment:      4,
		MemoryTypeBits: 1<<uint(len(d.Types)) - 1,
	}
}

func (d *Device) CreateImage(info core1_0.ImageCreateInfo) (driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateImage"); err != nil {
		return driver.Null, err
	}
	img := driver.Image(d.newHandle("image"))
	d.images[img] = &image{info: info, layout: info.InitialLayout}
	d.record("CreateImage", uint64(img))
	return img, nil
}

func (d *Device) DestroyImage(img driver.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyImage", uint64(img))
	delete(d.images, img)
	d.release(uint64(img))
}

func (d *Device) ImageMemoryRequirements(img driver.Image) driver.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := d.images[img]
	if im == nil {
		return driver.MemoryRequirements{}
	}
	// Every fake image is sized as four bytes per texel.
	size := im.info.Extent.Width * im.info.Extent.Height * max(im.info.Extent.Depth, 1) * 4
	return driver.MemoryRequirements{
		Size:           size,
		Alignment:      16,
		MemoryTypeBits: 1<<uint(len(d.Types)) - 1,
	}
}

func (d *Device) CreateImageView(info driver.ImageViewCreateInfo) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateImageView"); err != nil {
		return driver.Null, err
	}
	if _, ok := d.images[info.Image]; !ok {
		return driver.Null, errors.Wrapf(driver.ErrUnknownHandle, "image %d", info.Image)
	}
	v := driver.ImageView(d.newHandle("image-view"))
	d.record("CreateImageView", uint64(v), uint64(info.Image))
	return v, nil
}

func (d *Device) DestroyImageView(v driver.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyImageView", uint64(v))
	d.release(uint64(v))
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (driver.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("AllocateMemory"); err != nil {
		return driver.Null, err
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.Types) {
		return driver.Null, errors.Newf("memory type %d out of range", memoryTypeIndex)
	}
	m := driver.DeviceMemory(d.newHandle("memory"))
	d.memory[m] = &memory{
		data:     make([]byte, size),
		typeIdx:  memoryTypeIndex,
		hostView: d.Types[memoryTypeIndex].Flags&core1_0.MemoryPropertyHostVisible != 0,
	}
	d.record("AllocateMemory", uint64(m))
	return m, nil
}

func (d *Device) FreeMemory(mem driver.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FreeMemory", uint64(mem))
	if m, ok := d.memory[mem]; ok {
		m.freed = true
	}
	d.release(uint64(mem))
}

func (d *Device) BindBufferMemory(b driver.Buffer, mem driver.DeviceMemory, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BindBufferMemory", uint64(b), uint64(mem))
	if err := d.fail("BindBufferMemory"); err != nil {
		return err
	}
	buf, ok := d.buffers[b]
	if !ok {
		return errors.Wrapf(driver.ErrUnknownHandle, "buffer %d", b)
	}
	buf.binding = binding{mem: mem, offset: offset}
	buf.bound = true
	return nil
}

func (d *Device) BindImageMemory(img driver.Image, mem driver.DeviceMemory, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BindImageMemory", uint64(img), uint64(mem))
	if err := d.fail("BindImageMemory"); err != nil {
		return err
	}
	im, ok := d.images[img]
	if !ok {
		return errors.Wrapf(driver.ErrUnknownHandle, "image %d", img)
	}
	im.binding = binding{mem: mem, offset: offset}
	im.bound = true
	return nil
}

func (d *Device) MapMemory(mem driver.DeviceMemory, offset, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("MapMemory", uint64(mem))
	m, ok := d.memory[mem]
	if !ok || m.freed {
		return nil, errors.Wrapf(driver.ErrUnknownHandle, "memory %d", mem)
	}
	if !m.hostView {
		return nil, errors.New("memory is not host visible")
	}
	if m.mapped {
		return nil, errors.New("memory is already mapped")
	}
	if offset < 0 || size < 0 || offset+size > len(m.data) {
		return nil, errors.Newf("map range [%d,%d) exceeds allocation of %d bytes", offset, offset+size, len(m.data))
	}
	m.mapped = true
	return m.data[offset : offset+size : offset+size], nil
}

func (d *Device) UnmapMemory(mem driver.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("UnmapMemory", uint64(mem))
	if m, ok := d.memory[mem]; ok {
		m.mapped = false
	}
}

func (d *Device) CreateShaderModule(code []uint32) (driver.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateShaderModule"); err != nil {
		return driver.Null, err
	}
	m := driver.ShaderModule(d.newHandle("shader-module"))
	d.modules[m] = append([]uint32(nil), code...)
	d.record("CreateShaderModule", uint64(m))
	return m, nil
}

func (d *Device) DestroyShaderModule(m driver.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyShaderModule", uint64(m))
	delete(d.modules, m)
	d.release(uint64(m))
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (driver.RenderPass, error) {
	return createObject[driver.RenderPass](d, "CreateRenderPass", "render-pass")
}

func (d *Device) DestroyRenderPass(rp driver.RenderPass) {
	d.destroyObject("DestroyRenderPass", uint64(rp))
}

func (d *Device) CreateFramebuffer(info driver.FramebufferCreateInfo) (driver.Framebuffer, error) {
	return createObject[driver.Framebuffer](d, "CreateFramebuffer", "framebuffer")
}

func (d *Device) DestroyFramebuffer(fb driver.Framebuffer) {
	d.destroyObject("DestroyFramebuffer", uint64(fb))
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutCreateInfo) (driver.PipelineLayout, error) {
	l, err := createObject[driver.PipelineLayout](d, "CreatePipelineLayout", "pipeline-layout")
	if err != nil {
		return l, err
	}
	d.mu.Lock()
	d.layouts[l] = info
	d.mu.Unlock()
	return l, nil
}

func (d *Device) DestroyPipelineLayout(l driver.PipelineLayout) {
	d.mu.Lock()
	delete(d.layouts, l)
	d.mu.Unlock()
	d.destroyObject("DestroyPipelineLayout", uint64(l))
}

func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineCreateInfo) (driver.Pipeline, error) {
	p, err := createObject[driver.Pipeline](d, "CreateGraphicsPipeline", "pipeline")
	if err != nil {
		return p, err
	}
	d.mu.Lock()
	d.pipelines[p] = info
	d.mu.Unlock()
	return p, nil
}

func (d *Device) DestroyPipeline(p driver.Pipeline) {
	d.mu.Lock()
	delete(d.pipelines, p)
	d.mu.Unlock()
	d.destroyObject("DestroyPipeline", uint64(p))
}

func createObject[H ~uint64](d *Device, method, kind string) (H, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(method); err != nil {
		return driver.Null, err
	}
	h := d.newHandle(kind)
	d.record(method, h)
	return H(h), nil
}

func (d *Device) destroyObject(method string, h uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(method, h)
	d.release(h)
}
