// Package app runs a kat application: a render goroutine that acquires,
// renders and presents frames, and an update loop on the calling goroutine
// that polls the window and advances the application state.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"golang.org/x/sync/errgroup"

	"github.com/katgfx/kat/gfx"
)

// Handler is the application. Update runs on the goroutine that called Run
// and Render on the render goroutine; state they share needs its own
// synchronization.
type Handler interface {
	Update(dt time.Duration)
	// Render records and submits the work for frame. It must submit the
	// frame, for example with ctx.SubmitFrame, before returning.
	Render(ctx *gfx.Context, frame gfx.Frame, dt time.Duration) error
}

// SwapchainHandler is implemented by handlers holding resources sized to the
// swapchain, such as framebuffers.
type SwapchainHandler interface {
	SwapchainRecreated(ctx *gfx.Context) error
}

// Window is what the runner needs from a window. Poll is only called from
// the goroutine that called Run; Resized may be called from any goroutine.
type Window interface {
	IsOpen() bool
	Poll()
	// Resized reports and clears a pending size change.
	Resized() bool
}

type minimizer interface {
	Minimized() bool
}

type Options struct {
	// UpdateInterval is the minimum time between two updates. Zero updates
	// as fast as the window can be polled.
	UpdateInterval time.Duration
}

// idleWait is how long the render goroutine sleeps while there is nothing to
// draw to.
const idleWait = 10 * time.Millisecond

// Run drives h until the window closes, ctx is cancelled or rendering fails.
// The device is idle when Run returns.
func Run(ctx context.Context, win Window, gc *gfx.Context, h Handler, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r := renderer{win: win, gc: gc, h: h}
		return r.loop(gctx)
	})

	updateLoop(gctx, win, h, opts)
	cancel()
	err := g.Wait()

	if idleErr := gc.WaitIdle(); idleErr != nil {
		return errors.CombineErrors(err, idleErr)
	}
	return err
}

func updateLoop(ctx context.Context, win Window, h Handler, opts Options) {
	var ticker *time.Ticker
	if opts.UpdateInterval > 0 {
		ticker = time.NewTicker(opts.UpdateInterval)
		defer ticker.Stop()
	}

	last := hrtime.Now()
	for win.IsOpen() {
		if ctx.Err() != nil {
			return
		}
		win.Poll()
		now := hrtime.Now()
		h.Update(now - last)
		last = now

		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

type renderer struct {
	win Window
	gc  *gfx.Context
	h   Handler

	stale  bool
	frames int
}

func (r *renderer) loop(ctx context.Context) error {
	log := gfx.Logger()
	last := hrtime.Now()
	for ctx.Err() == nil {
		if r.win.Resized() {
			r.stale = true
		}
		if m, ok := r.win.(minimizer); ok && m.Minimized() {
			sleep(ctx, idleWait)
			continue
		}
		if r.stale {
			if err := r.recreate(); err != nil {
				if errors.Is(err, gfx.ErrSurfaceMinimized) {
					sleep(ctx, idleWait)
					continue
				}
				return err
			}
		}

		frame, err := r.gc.AcquireNextFrame()
		if errors.Is(err, gfx.ErrSwapchainOutOfDate) {
			r.stale = true
			continue
		}
		if err != nil {
			return errors.Wrap(err, "acquire frame")
		}

		now := hrtime.Now()
		if err := r.h.Render(r.gc, frame, now-last); err != nil {
			return errors.Wrapf(err, "render frame %d", r.frames)
		}
		last = now

		res := r.gc.Present()
		if res.NeedsRecreate() || frame.Suboptimal {
			r.stale = true
		}
		r.frames++
	}
	log.Debug("render loop stopped", slog.Int("frames", r.frames))
	return nil
}

func (r *renderer) recreate() error {
	if err := r.gc.RecreateSwapchain(); err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	r.stale = false
	if sh, ok := r.h.(SwapchainHandler); ok {
		if err := sh.SwapchainRecreated(r.gc); err != nil {
			return errors.Wrap(err, "swapchain recreated")
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
