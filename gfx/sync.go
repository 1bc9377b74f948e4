package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/katgfx/kat/driver"
)

func (c *Context) CreateSemaphore() (driver.Semaphore, error) {
	s, err := c.dev.CreateSemaphore()
	return s, errors.Wrap(err, "create semaphore")
}

// CreateSemaphores creates n semaphores. On failure none are left behind.
func (c *Context) CreateSemaphores(n int) ([]driver.Semaphore, error) {
	out := make([]driver.Semaphore, 0, n)
	for i := 0; i < n; i++ {
		s, err := c.CreateSemaphore()
		if err != nil {
			for _, s := range out {
				c.dev.DestroySemaphore(s)
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Context) DestroySemaphore(s driver.Semaphore) {
	c.dev.DestroySemaphore(s)
}

// CreateFence creates an unsignaled fence.
func (c *Context) CreateFence() (driver.Fence, error) {
	f, err := c.dev.CreateFence(false)
	return f, errors.Wrap(err, "create fence")
}

// CreateFenceSignaled creates a fence that starts out signaled, so the first
// wait on it returns immediately.
func (c *Context) CreateFenceSignaled() (driver.Fence, error) {
	f, err := c.dev.CreateFence(true)
	return f, errors.Wrap(err, "create signaled fence")
}

// CreateFences creates n fences. On failure none are left behind.
func (c *Context) CreateFences(n int, signaled bool) ([]driver.Fence, error) {
	out := make([]driver.Fence, 0, n)
	for i := 0; i < n; i++ {
		f, err := c.dev.CreateFence(signaled)
		if err != nil {
			for _, f := range out {
				c.dev.DestroyFence(f)
			}
			return nil, errors.Wrapf(err, "create fence %d of %d", i, n)
		}
		out = append(out, f)
	}
	return out, nil
}

func (c *Context) DestroyFence(f driver.Fence) {
	c.dev.DestroyFence(f)
}

// WaitForFences blocks until every fence is signaled.
func (c *Context) WaitForFences(fences ...driver.Fence) error {
	return errors.Wrap(c.dev.WaitForFences(driver.NoTimeout, fences...), "wait for fences")
}

func (c *Context) ResetFences(fences ...driver.Fence) error {
	return errors.Wrap(c.dev.ResetFences(fences...), "reset fences")
}
