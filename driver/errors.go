package driver

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfDate is returned by AcquireNextImage and QueuePresent when the
	// swapchain no longer matches the surface and must be rebuilt.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal accompanies a successful acquire or present when the
	// swapchain still works but no longer matches the surface exactly.
	ErrSuboptimal = errors.New("swapchain suboptimal")
	// ErrTimeout is returned by waits that expire before completion.
	ErrTimeout = errors.New("wait timed out")
	// ErrUnknownHandle is returned when a handle does not name a live object.
	ErrUnknownHandle = errors.New("unknown handle")
)
