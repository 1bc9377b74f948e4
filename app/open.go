package app

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/katgfx/kat/driver/vkng"
	"github.com/katgfx/kat/gfx"
	"github.com/katgfx/kat/window"
)

// Settings gathers the configuration of every layer App opens.
type Settings struct {
	Window   window.Settings
	Device   vkng.Config
	Graphics gfx.Settings
	Options  Options
}

func DefaultSettings() Settings {
	return Settings{
		Window:   window.DefaultSettings(),
		Device:   vkng.DefaultConfig(),
		Graphics: gfx.DefaultSettings(),
	}
}

// App is a window with a device and a Context presenting to it.
type App struct {
	Window  *window.Window
	Context *gfx.Context
	options Options
}

// Open creates the window, the device and the Context. Call it from the main
// goroutine with the OS thread locked.
func Open(s Settings) (*App, error) {
	win, err := window.New(s.Window)
	if err != nil {
		return nil, err
	}

	if s.Device.Logger == nil {
		s.Device.Logger = gfx.Logger()
	}
	dev, err := vkng.Open(win, s.Device)
	if err != nil {
		win.Close()
		return nil, errors.Wrap(err, "open device")
	}

	gc, err := gfx.NewContext(dev, s.Graphics)
	if err != nil {
		dev.Destroy()
		win.Close()
		return nil, errors.Wrap(err, "create context")
	}
	return &App{Window: win, Context: gc, options: s.Options}, nil
}

// Run runs h until the window closes or ctx is cancelled.
func (a *App) Run(ctx context.Context, h Handler) error {
	return Run(ctx, a.Window, a.Context, h, a.options)
}

// Close destroys the Context, its device and the window.
func (a *App) Close() error {
	err := a.Context.Close()
	return errors.CombineErrors(err, a.Window.Close())
}
