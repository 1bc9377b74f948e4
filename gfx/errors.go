package gfx

import "github.com/cockroachdb/errors"

var (
	// ErrSwapchainOutOfDate marks an acquire that failed because the
	// swapchain no longer matches the surface. Rebuild with RecreateSwapchain.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	// ErrSurfaceMinimized is returned when the drawable has zero area and no
	// swapchain can be built for it.
	ErrSurfaceMinimized = errors.New("surface has zero extent")
	// ErrFrameInProgress is returned when a frame is acquired before the
	// previous one was presented.
	ErrFrameInProgress = errors.New("frame already acquired")

	// ErrAllocationFailed marks every failure to create a buffer or image or
	// to obtain device memory for it. Allocation failures are not retried.
	ErrAllocationFailed = errors.New("gpu allocation failed")
	ErrNoMemoryType     = errors.New("no suitable memory type")
	ErrInvalidSize      = errors.New("invalid size")
	ErrNotHostVisible   = errors.New("allocation is not host visible")
	// ErrReleased is returned when a buffer is used after its last owner
	// released it.
	ErrReleased = errors.New("resource already released")

	ErrInvalidBytecode = errors.New("invalid SPIR-V bytecode")
	ErrClosed          = errors.New("context closed")
)
