package gfx

import (
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/katgfx/kat/driver"
)

// Image is a GPU image and the memory backing it, shared by reference count
// like Buffer.
type Image struct {
	alloc      *Allocator
	handle     driver.Image
	allocation *Allocation
	format     core1_0.Format
	extent     core1_0.Extent3D
	usage      core1_0.ImageUsageFlags
	refs       atomic.Int32
}

func (img *Image) Handle() driver.Image           { return img.handle }
func (img *Image) Format() core1_0.Format         { return img.format }
func (img *Image) Extent() core1_0.Extent3D       { return img.extent }
func (img *Image) Usage() core1_0.ImageUsageFlags { return img.usage }
func (img *Image) Allocation() *Allocation        { return img.allocation }
func (img *Image) Refs() int                      { return int(img.refs.Load()) }

func (img *Image) Retain() *Image {
	if img.refs.Add(1) <= 1 {
		panic("gfx: retain of released image")
	}
	return img
}

func (img *Image) Release() {
	n := img.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("gfx: image released too many times")
	}
	img.alloc.ctx.dev.DestroyImage(img.handle)
	img.alloc.free(img.allocation)
	img.alloc.ctx.release()
}

// ImageView is a view of a whole single-mip, single-layer 2D image. It keeps
// the image alive until Destroy.
type ImageView struct {
	ctx    *Context
	handle driver.ImageView
	image  *Image
}

func (v *ImageView) Handle() driver.ImageView { return v.handle }
func (v *ImageView) Image() *Image            { return v.image }

func (v *ImageView) Destroy() {
	if v.handle == driver.Null {
		return
	}
	v.ctx.dev.DestroyImageView(v.handle)
	v.handle = driver.Null
	v.image.Release()
	v.ctx.release()
}

// CreateView creates a 2D view of img covering aspect.
func (img *Image) CreateView(aspect core1_0.ImageAspectFlags) (*ImageView, error) {
	ctx := img.alloc.ctx
	handle, err := ctx.dev.CreateImageView(driver.ImageViewCreateInfo{
		Image:    img.handle,
		ViewType: core1_0.ImageViewType2D,
		Format:   img.format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	ctx.retain()
	return &ImageView{ctx: ctx, handle: handle, image: img.Retain()}, nil
}

// ImageUpload describes a 2D image to create from tightly packed pixels.
type ImageUpload struct {
	Width     int
	Height    int
	PixelSize int
	Format    core1_0.Format
	Data      []byte
	// Usage is added to the transfer-destination usage the upload needs.
	Usage core1_0.ImageUsageFlags
	// FinalLayout is the layout the image is left in.
	FinalLayout core1_0.ImageLayout
	// Memory selects where the image lives. GPU-only and auto images use
	// optimal tiling, the rest linear tiling.
	Memory MemoryUsage
}

// InitImage creates an image and fills it from up.Data. The upload records
// a transition to transfer-destination layout, the copy, and a transition
// to the final layout into one single-time command buffer and waits for it.
func (a *Allocator) InitImage(up ImageUpload) (*Image, error) {
	if up.Width <= 0 || up.Height <= 0 || up.PixelSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "image of %dx%d with %d-byte pixels", up.Width, up.Height, up.PixelSize)
	}
	if want := up.Width * up.Height * up.PixelSize; len(up.Data) != want {
		return nil, errors.Wrapf(ErrInvalidSize, "image data is %d bytes, want %d", len(up.Data), want)
	}

	staging, err := a.CreateBuffer(len(up.Data), core1_0.BufferUsageTransferSrc, MemoryUsageCPUToGPU)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	defer staging.Release()
	if err := staging.Write(up.Data, 0); err != nil {
		return nil, errors.Wrap(err, "fill staging buffer")
	}

	tiling := core1_0.ImageTilingOptimal
	if up.Memory != MemoryUsageGPUOnly && up.Memory != MemoryUsageAuto {
		tiling = core1_0.ImageTilingLinear
	}
	extent := core1_0.Extent3D{Width: up.Width, Height: up.Height, Depth: 1}

	img, err := a.CreateImage(core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Extent:        extent,
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        up.Format,
		Tiling:        tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         up.Usage | core1_0.ImageUsageTransferDst,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	}, up.Memory)
	if err != nil {
		return nil, err
	}

	dev := a.ctx.dev
	dstStage, dstAccess := layoutConsumer(up.FinalLayout)
	err = a.ctx.SingleTimeCommands(func(cmd driver.CommandBuffer) error {
		dev.CmdPipelineBarrier(cmd, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, driver.ImageBarrier{
			DstAccess: core1_0.AccessTransferWrite,
			OldLayout: core1_0.ImageLayoutUndefined,
			NewLayout: core1_0.ImageLayoutTransferDstOptimal,
			Image:     img.handle,
			Range:     colorRange(),
		})
		err := dev.CmdCopyBufferToImage(cmd, staging.handle, img.handle, core1_0.ImageLayoutTransferDstOptimal, core1_0.BufferImageCopy{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask: core1_0.ImageAspectColor,
				LayerCount: 1,
			},
			ImageExtent: extent,
		})
		if err != nil {
			return err
		}
		dev.CmdPipelineBarrier(cmd, core1_0.PipelineStageTransfer, dstStage, driver.ImageBarrier{
			SrcAccess: core1_0.AccessTransferWrite,
			DstAccess: dstAccess,
			OldLayout: core1_0.ImageLayoutTransferDstOptimal,
			NewLayout: up.FinalLayout,
			Image:     img.handle,
			Range:     colorRange(),
		})
		return nil
	})
	if err != nil {
		img.Release()
		return nil, errors.Wrap(err, "upload image")
	}
	return img, nil
}

// layoutConsumer is the stage and access that first use an image in layout.
func layoutConsumer(layout core1_0.ImageLayout) (core1_0.PipelineStageFlags, core1_0.AccessFlags) {
	switch layout {
	case core1_0.ImageLayoutShaderReadOnlyOptimal:
		return core1_0.PipelineStageFragmentShader, core1_0.AccessShaderRead
	case core1_0.ImageLayoutColorAttachmentOptimal:
		return core1_0.PipelineStageColorAttachmentOutput, core1_0.AccessColorAttachmentRead | core1_0.AccessColorAttachmentWrite
	case core1_0.ImageLayoutTransferSrcOptimal:
		return core1_0.PipelineStageTransfer, core1_0.AccessTransferRead
	case khr_swapchain.ImageLayoutPresentSrc:
		return core1_0.PipelineStageBottomOfPipe, 0
	}
	return core1_0.PipelineStageAllCommands, core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite
}

// LoadImage decodes a PNG or JPEG file from fsys and uploads it as an sRGB
// RGBA8 image.
func (a *Allocator) LoadImage(fsys fs.FS, path string, usage core1_0.ImageUsageFlags, layout core1_0.ImageLayout) (*Image, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", path)
	}

	bounds := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || len(rgba.Pix) != bounds.Dx()*bounds.Dy()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	}

	return a.InitImage(ImageUpload{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		PixelSize:   4,
		Format:      core1_0.FormatR8G8B8A8SRGB,
		Data:        rgba.Pix,
		Usage:       usage,
		FinalLayout: layout,
		Memory:      MemoryUsageGPUOnly,
	})
}
