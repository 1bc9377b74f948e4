package gfx

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

func TestFindMemoryType(t *testing.T) {
	types := []driver.MemoryType{
		{Flags: core1_0.MemoryPropertyDeviceLocal},
		{Flags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		{Flags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
	}

	tests := []struct {
		usage MemoryUsage
		bits  uint32
		want  int
	}{
		{MemoryUsageGPUOnly, 0b111, 0},
		{MemoryUsageAuto, 0b110, 2},
		{MemoryUsageCPUToGPU, 0b111, 2},
		{MemoryUsageCPUToGPU, 0b011, 1},
		{MemoryUsageGPUToCPU, 0b111, 1},
		{MemoryUsageCPUOnly, 0b100, 2},
		{MemoryUsageGPUOnly, 0b010, 1},
	}
	for _, tt := range tests {
		required, preferred := tt.usage.flags()
		got, err := findMemoryType(types, tt.bits, required, preferred)
		if err != nil {
			t.Errorf("%v bits %03b: %v", tt.usage, tt.bits, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%v bits %03b: type %d, want %d", tt.usage, tt.bits, got, tt.want)
		}
	}

	required, preferred := MemoryUsageCPUToGPU.flags()
	if _, err := findMemoryType(types, 0b001, required, preferred); !errors.Is(err, ErrNoMemoryType) {
		t.Errorf("host access on device-only bits: %v", err)
	}
}

func TestCreateBufferMapRoundTrip(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	buf, err := ctx.Allocator().CreateBuffer(16, core1_0.BufferUsageUniformBuffer, MemoryUsageCPUToGPU)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	defer buf.Release()

	want := []byte("0123456789abcdef")
	mapped, err := buf.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(mapped) != 16 {
		t.Fatalf("mapped %d bytes", len(mapped))
	}
	copy(mapped, want)
	buf.Unmap()

	again, err := buf.Map()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, want) {
		t.Errorf("read back %q", again)
	}
	buf.Unmap()

	if !bytes.Equal(dev.BufferContents(buf.Handle()), want) {
		t.Error("device memory does not hold the written bytes")
	}
}

func TestNestedMaps(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	buf, err := ctx.Allocator().CreateBuffer(8, 0, MemoryUsageCPUOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()

	a, _ := buf.Map()
	b, err := buf.Map()
	if err != nil {
		t.Fatalf("second Map: %v", err)
	}
	if &a[0] != &b[0] {
		t.Error("nested maps return different memory")
	}
	buf.Unmap()
	buf.Unmap()
	if dev.Count("MapMemory") != 1 || dev.Count("UnmapMemory") != 1 {
		t.Errorf("map %d unmap %d, want 1 each", dev.Count("MapMemory"), dev.Count("UnmapMemory"))
	}
}

func TestMapDeviceLocal(t *testing.T) {
	ctx, _ := newTestContext(t, nil)

	buf, err := ctx.Allocator().CreateBuffer(8, 0, MemoryUsageGPUOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	if _, err := buf.Map(); !errors.Is(err, ErrNotHostVisible) {
		t.Errorf("got %v", err)
	}
}

func TestWriteValue(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	buf, err := ctx.Allocator().CreateBuffer(12, 0, MemoryUsageCPUToGPU)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()

	if err := buf.WriteValue(4, []uint32{1, 2}); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}
	if got := dev.BufferContents(buf.Handle()); !bytes.Equal(got, want) {
		t.Errorf("got %v", got)
	}
	if err := buf.WriteValue(8, []uint32{1, 2}); err == nil {
		t.Error("overflowing write accepted")
	}
}

func TestInitBuffer(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	data := []byte("vertex data goes here")
	buf, err := ctx.Allocator().InitBuffer(data, core1_0.BufferUsageVertexBuffer, MemoryUsageGPUOnly)
	if err != nil {
		t.Fatalf("InitBuffer: %v", err)
	}
	defer buf.Release()

	if got := dev.BufferContents(buf.Handle()); !bytes.Equal(got, data) {
		t.Errorf("buffer holds %q", got)
	}
	info, _ := dev.BufferInfo(buf.Handle())
	if info.Usage&core1_0.BufferUsageTransferDst == 0 || info.Usage&core1_0.BufferUsageVertexBuffer == 0 {
		t.Errorf("usage %v", info.Usage)
	}
	if dev.MemoryType(buf.Allocation().Memory()) != 0 {
		t.Error("gpu-only buffer not in device-local memory")
	}
	if dev.Live("buffer") != 1 {
		t.Errorf("%d buffers alive, staging not released", dev.Live("buffer"))
	}
	if dev.Count("QueueSubmit") != 1 {
		t.Errorf("%d submits", dev.Count("QueueSubmit"))
	}
}

func TestInitBufferOf(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	buf, err := InitBufferOf(ctx.Allocator(), []uint16{0, 1, 2, 2, 3, 0}, core1_0.BufferUsageIndexBuffer, MemoryUsageGPUOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()

	want := []byte{0, 0, 1, 0, 2, 0, 2, 0, 3, 0, 0, 0}
	if got := dev.BufferContents(buf.Handle()); !bytes.Equal(got, want) {
		t.Errorf("got %v", got)
	}
}

func TestCopyFrom(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	alloc := ctx.Allocator()

	src, _ := alloc.CreateBuffer(8, core1_0.BufferUsageTransferSrc, MemoryUsageCPUToGPU)
	dst, _ := alloc.CreateBuffer(8, core1_0.BufferUsageTransferDst, MemoryUsageCPUToGPU)
	defer src.Release()
	defer dst.Release()

	src.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 0)
	if err := dst.CopyFrom(src, 4, 2, 1); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 3, 4, 5, 6, 0, 0, 0}
	if got := dev.BufferContents(dst.Handle()); !bytes.Equal(got, want) {
		t.Errorf("got %v", got)
	}
	if err := dst.CopyFrom(src, 8, 1, 0); err == nil {
		t.Error("out of range copy accepted")
	}
}

func TestCopyFromRejectsBadSize(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	alloc := ctx.Allocator()

	src, _ := alloc.CreateBuffer(8, core1_0.BufferUsageTransferSrc, MemoryUsageCPUToGPU)
	dst, _ := alloc.CreateBuffer(8, core1_0.BufferUsageTransferDst, MemoryUsageCPUToGPU)
	defer src.Release()
	defer dst.Release()

	for _, size := range []int{0, -4} {
		if err := dst.CopyFrom(src, size, 0, 0); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("size %d: got %v, want ErrInvalidSize", size, err)
		}
	}
	if n := dev.Count("CmdCopyBuffer"); n != 0 {
		t.Errorf("%d copies recorded for rejected sizes", n)
	}
}

func TestReleasedBufferRejectsUse(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	alloc := ctx.Allocator()

	live, _ := alloc.CreateBuffer(8, core1_0.BufferUsageTransferDst, MemoryUsageCPUToGPU)
	defer live.Release()
	gone, _ := alloc.CreateBuffer(8, core1_0.BufferUsageTransferSrc, MemoryUsageCPUToGPU)
	gone.Release()

	if _, err := gone.Map(); !errors.Is(err, ErrReleased) {
		t.Errorf("Map: got %v, want ErrReleased", err)
	}
	if err := gone.Write([]byte{1}, 0); !errors.Is(err, ErrReleased) {
		t.Errorf("Write: got %v, want ErrReleased", err)
	}
	if err := live.CopyFrom(gone, 4, 0, 0); !errors.Is(err, ErrReleased) {
		t.Errorf("CopyFrom released source: got %v, want ErrReleased", err)
	}
	if err := gone.CopyFrom(live, 4, 0, 0); !errors.Is(err, ErrReleased) {
		t.Errorf("CopyFrom into released buffer: got %v, want ErrReleased", err)
	}
	if n := dev.Count("CmdCopyBuffer"); n != 0 {
		t.Errorf("%d copies recorded with a released buffer", n)
	}
}

func TestBufferRefCount(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	buf, err := ctx.Allocator().CreateBuffer(32, 0, MemoryUsageAuto)
	if err != nil {
		t.Fatal(err)
	}
	shared := buf.Retain()
	if buf.Refs() != 2 {
		t.Errorf("refs %d", buf.Refs())
	}

	buf.Release()
	if dev.Live("buffer") != 1 || dev.Live("memory") != 1 {
		t.Error("buffer destroyed while still owned")
	}
	shared.Release()
	if dev.Live("buffer") != 0 || dev.Live("memory") != 0 {
		t.Error("buffer not destroyed after the last release")
	}

	defer func() {
		if recover() == nil {
			t.Error("extra release did not panic")
		}
	}()
	buf.Release()
}

func TestAllocationFailure(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	alloc := ctx.Allocator()

	for _, method := range []string{"CreateBuffer", "AllocateMemory", "BindBufferMemory"} {
		dev.FailNext(method, errors.New("out of device memory"))
		_, err := alloc.CreateBuffer(64, 0, MemoryUsageGPUOnly)
		if !errors.Is(err, ErrAllocationFailed) {
			t.Errorf("%s: got %v", method, err)
		}
	}
	if _, err := alloc.CreateBuffer(0, 0, MemoryUsageGPUOnly); !errors.Is(err, ErrAllocationFailed) || !errors.Is(err, ErrInvalidSize) {
		t.Errorf("zero size: got %v", err)
	}

	dev.FailNext("AllocateMemory", errors.New("out of device memory"))
	_, err := alloc.CreateImage(core1_0.ImageCreateInfo{Extent: core1_0.Extent3D{Width: 4, Height: 4, Depth: 1}}, MemoryUsageGPUOnly)
	if !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("image: got %v", err)
	}

	if n := dev.Live("buffer") + dev.Live("image") + dev.Live("memory"); n != 0 {
		t.Errorf("%d objects left behind", n)
	}
}

func TestInitImage(t *testing.T) {
	ctx, dev := newTestContext(t, nil)

	pixels := make([]byte, 4*2*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	img, err := ctx.Allocator().InitImage(ImageUpload{
		Width:       4,
		Height:      2,
		PixelSize:   4,
		Format:      core1_0.FormatR8G8B8A8SRGB,
		Data:        pixels,
		Usage:       core1_0.ImageUsageSampled,
		FinalLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		Memory:      MemoryUsageGPUOnly,
	})
	if err != nil {
		t.Fatalf("InitImage: %v", err)
	}
	defer img.Release()

	if got := dev.ImageLayout(img.Handle()); got != core1_0.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("layout %v", got)
	}
	if got := dev.ImageContents(img.Handle()); !bytes.Equal(got, pixels) {
		t.Error("image does not hold the uploaded pixels")
	}
	if dev.Count("QueueSubmit") != 1 || dev.Count("CmdPipelineBarrier") != 2 {
		t.Errorf("%d submits, %d barriers", dev.Count("QueueSubmit"), dev.Count("CmdPipelineBarrier"))
	}

	view, err := img.CreateView(core1_0.ImageAspectColor)
	if err != nil {
		t.Fatal(err)
	}
	if img.Refs() != 2 {
		t.Errorf("view does not hold the image: refs %d", img.Refs())
	}
	view.Destroy()
	if img.Refs() != 1 {
		t.Errorf("refs %d after view destroy", img.Refs())
	}
}

func TestInitImageRejectsShortData(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Allocator().InitImage(ImageUpload{Width: 4, Height: 4, PixelSize: 4, Data: make([]byte, 10)})
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("got %v", err)
	}
}
