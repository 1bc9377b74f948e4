// Package window is a minimal SDL2 window that a Vulkan device can present
// to. All methods except Resized, Minimized, Size, Aspect and DrawableSize
// must be called from the goroutine that created the window, which should be
// locked to the main OS thread.
package window

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// Settings describes the window to open.
type Settings struct {
	Title         string
	Width, Height int
	// X and Y position the window. Negative values center it.
	X, Y       int
	Fullscreen bool
	Resizable  bool
	// Hidden creates the window without showing it, for tools that only
	// need a surface.
	Hidden bool
}

func DefaultSettings() Settings {
	return Settings{
		Title:     "kat",
		Width:     800,
		Height:    600,
		X:         -1,
		Y:         -1,
		Resizable: true,
	}
}

type size struct{ w, h int }

// Window wraps an SDL window created with Vulkan support.
type Window struct {
	win *sdl.Window

	open      atomic.Bool
	resized   atomic.Bool
	minimized atomic.Bool
	size      atomic.Pointer[size]
	drawable  atomic.Pointer[size]

	keys keyHandlers
}

// sdlUsers counts open windows so SDL is initialised by the first and shut
// down with the last.
type sdlUsers struct {
	mu    sync.Mutex
	count int
	init  func() error
	quit  func()
}

func (u *sdlUsers) acquire() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.count == 0 {
		if err := u.init(); err != nil {
			return errors.Wrap(err, "init sdl")
		}
	}
	u.count++
	return nil
}

func (u *sdlUsers) release() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.count == 0 {
		return
	}
	u.count--
	if u.count == 0 {
		u.quit()
	}
}

var video = &sdlUsers{
	init: func() error { return sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS) },
	quit: sdl.Quit,
}

// New opens a window, initialising SDL video if no other window is open.
func New(s Settings) (_ *Window, err error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, errors.Newf("window size %dx%d", s.Width, s.Height)
	}
	if err := video.acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			video.release()
		}
	}()

	flags := uint32(sdl.WINDOW_SHOWN | sdl.WINDOW_VULKAN)
	if s.Hidden {
		flags = uint32(sdl.WINDOW_HIDDEN | sdl.WINDOW_VULKAN)
	}
	if s.Resizable {
		flags |= sdl.WINDOW_RESIZABLE
	}
	if s.Fullscreen {
		flags |= sdl.WINDOW_FULLSCREEN_DESKTOP
	}
	x, y := int32(s.X), int32(s.Y)
	if s.X < 0 {
		x = sdl.WINDOWPOS_CENTERED
	}
	if s.Y < 0 {
		y = sdl.WINDOWPOS_CENTERED
	}

	win, err := sdl.CreateWindow(s.Title, x, y, int32(s.Width), int32(s.Height), flags)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}

	w := &Window{win: win}
	w.open.Store(true)
	w.updateSize()
	return w, nil
}

func (w *Window) updateSize() {
	width, height := w.win.GetSize()
	w.size.Store(&size{int(width), int(height)})
	dw, dh := w.win.VulkanGetDrawableSize()
	w.drawable.Store(&size{int(dw), int(dh)})
}

func (w *Window) IsOpen() bool { return w.open.Load() }

// Poll drains the SDL event queue, updating window state and dispatching
// key events to their handlers.
func (w *Window) Poll() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handleEvent(event)
	}
}

func (w *Window) handleEvent(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		w.open.Store(false)
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			w.open.Store(false)
		case sdl.WINDOWEVENT_MINIMIZED:
			w.minimized.Store(true)
		case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_MAXIMIZED:
			w.minimized.Store(false)
			w.resized.Store(true)
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			if w.win != nil {
				w.updateSize()
			} else {
				w.size.Store(&size{int(e.Data1), int(e.Data2)})
				w.drawable.Store(&size{int(e.Data1), int(e.Data2)})
			}
			w.minimized.Store(e.Data1 == 0 || e.Data2 == 0)
			w.resized.Store(true)
		}
	case *sdl.KeyboardEvent:
		w.keys.dispatch(KeyEvent{
			Key:     e.Keysym.Sym,
			Pressed: e.State == sdl.PRESSED,
			Repeat:  e.Repeat != 0,
		})
	}
}

// KeyDown reports whether key is currently held.
func (w *Window) KeyDown(key sdl.Keycode) bool {
	state := sdl.GetKeyboardState()
	code := sdl.GetScancodeFromKey(key)
	return int(code) < len(state) && state[code] != 0
}

// OnKey registers fn for press, repeat and release events of key.
func (w *Window) OnKey(key sdl.Keycode, fn func(KeyEvent)) KeyHandle {
	return w.keys.add(key, fn)
}

func (w *Window) RemoveKeyHandler(h KeyHandle) {
	w.keys.remove(h)
}

// Size is the window size in screen coordinates.
func (w *Window) Size() (width, height int) {
	s := w.size.Load()
	if s == nil {
		return 0, 0
	}
	return s.w, s.h
}

// Aspect is width over height, or 1 for a window with no height.
func (w *Window) Aspect() float32 {
	width, height := w.Size()
	if height == 0 {
		return 1
	}
	return float32(width) / float32(height)
}

// Resized reports whether the window changed size since the last call.
func (w *Window) Resized() bool { return w.resized.Swap(false) }

func (w *Window) Minimized() bool { return w.minimized.Load() }

// DrawableSize is the size in pixels as of the last Poll.
func (w *Window) DrawableSize() (width, height int) {
	s := w.drawable.Load()
	if s == nil {
		return 0, 0
	}
	return s.w, s.h
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.win.VulkanGetInstanceExtensions()
}

func (w *Window) VulkanProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (w *Window) CreateSurface(instance core1_0.Instance, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(instance, ext, w.win)
	if err != nil {
		return surface, errors.Wrap(err, "create window surface")
	}
	return surface, nil
}

// Close destroys the window. SDL is shut down with the last open window.
func (w *Window) Close() error {
	w.open.Store(false)
	if w.win == nil {
		return nil
	}
	err := w.win.Destroy()
	w.win = nil
	video.release()
	return errors.Wrap(err, "destroy window")
}
