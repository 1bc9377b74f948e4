package gfx

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
)

// Buffer is a GPU buffer and the memory backing it. Ownership is shared
// through an explicit reference count: Retain adds an owner and Release
// drops one. The buffer is destroyed when the last owner releases it, so the
// last Release must happen after the GPU is done with the buffer.
type Buffer struct {
	alloc      *Allocator
	handle     driver.Buffer
	allocation *Allocation
	size       int
	usage      core1_0.BufferUsageFlags
	refs       atomic.Int32
}

func (b *Buffer) Handle() driver.Buffer           { return b.handle }
func (b *Buffer) Size() int                       { return b.size }
func (b *Buffer) Usage() core1_0.BufferUsageFlags { return b.usage }
func (b *Buffer) Allocation() *Allocation         { return b.allocation }
func (b *Buffer) Refs() int                       { return int(b.refs.Load()) }

// Retain adds an owner and returns b.
func (b *Buffer) Retain() *Buffer {
	if b.refs.Add(1) <= 1 {
		panic("gfx: retain of released buffer")
	}
	return b
}

// Release drops an owner, destroying the buffer when none remain.
func (b *Buffer) Release() {
	n := b.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("gfx: buffer released too many times")
	}
	dev := b.alloc.ctx.dev
	dev.DestroyBuffer(b.handle)
	b.alloc.free(b.allocation)
	b.alloc.ctx.release()
}

func (b *Buffer) checkLive() error {
	if b.refs.Load() <= 0 {
		return errors.Wrapf(ErrReleased, "buffer %#x", uint64(b.handle))
	}
	return nil
}

func (b *Buffer) Map() ([]byte, error) {
	if err := b.checkLive(); err != nil {
		return nil, err
	}
	return b.alloc.Map(b.allocation)
}

func (b *Buffer) Unmap() {
	b.alloc.Unmap(b.allocation)
}

// Write copies data into the buffer at offset through a temporary mapping.
func (b *Buffer) Write(data []byte, offset int) error {
	if offset < 0 || offset+len(data) > b.size {
		return errors.Newf("write of %d bytes at offset %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	mapped, err := b.Map()
	if err != nil {
		return err
	}
	defer b.Unmap()
	copy(mapped[offset:], data)
	return nil
}

// WriteValue encodes v in device byte order and writes it at offset. v must
// be a fixed-size value or a slice of fixed-size values.
func (b *Buffer) WriteValue(offset int, v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, common.ByteOrder, v); err != nil {
		return errors.Wrap(err, "encode value")
	}
	return b.Write(buf.Bytes(), offset)
}

// CopyFrom copies size bytes from src at srcOffset to b at dstOffset and
// waits for the copy to finish.
func (b *Buffer) CopyFrom(src *Buffer, size, srcOffset, dstOffset int) error {
	if err := src.checkLive(); err != nil {
		return err
	}
	if err := b.checkLive(); err != nil {
		return err
	}
	if size <= 0 {
		return errors.Wrapf(ErrInvalidSize, "copy of %d bytes", size)
	}
	if srcOffset < 0 || srcOffset+size > src.size || dstOffset < 0 || dstOffset+size > b.size {
		return errors.Newf("copy of %d bytes from offset %d to offset %d is out of range", size, srcOffset, dstOffset)
	}
	ctx := b.alloc.ctx
	return ctx.SingleTimeCommands(func(cmd driver.CommandBuffer) error {
		return ctx.dev.CmdCopyBuffer(cmd, src.handle, b.handle, core1_0.BufferCopy{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Size:      size,
		})
	})
}

// InitBuffer creates a buffer holding data. The bytes go through a
// host-visible staging buffer and a single-time copy, so the result may live
// in memory the CPU cannot see. The staging buffer is released before
// returning.
func (a *Allocator) InitBuffer(data []byte, usage core1_0.BufferUsageFlags, mem MemoryUsage) (*Buffer, error) {
	staging, err := a.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc, MemoryUsageCPUToGPU)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	defer staging.Release()

	if err := staging.Write(data, 0); err != nil {
		return nil, errors.Wrap(err, "fill staging buffer")
	}

	buf, err := a.CreateBuffer(len(data), usage|core1_0.BufferUsageTransferDst, mem)
	if err != nil {
		return nil, err
	}
	if err := buf.CopyFrom(staging, len(data), 0, 0); err != nil {
		buf.Release()
		return nil, errors.Wrap(err, "upload buffer")
	}
	return buf, nil
}

// InitBufferOf encodes data in device byte order and uploads it with
// InitBuffer.
func InitBufferOf[T any](a *Allocator, data []T, usage core1_0.BufferUsageFlags, mem MemoryUsage) (*Buffer, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrap(err, "encode buffer data")
	}
	return a.InitBuffer(buf.Bytes(), usage, mem)
}
