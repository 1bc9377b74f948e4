// Command katdemo spins a mesh in a window. Without -mesh it draws a cube.
//
// Shaders are read from the -shaders directory and compiled from the GLSL
// sources in ./shaders:
//
//	glslc shaders/mesh.vert -o shaders/mesh.vert.spv
//	glslc shaders/mesh.frag -o shaders/mesh.frag.spv
//
// Space pauses the rotation and Escape quits.
package main

//go:generate glslc shaders/mesh.vert -o shaders/mesh.vert.spv
//go:generate glslc shaders/mesh.frag -o shaders/mesh.frag.spv

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/katgfx/kat/app"
	"github.com/katgfx/kat/gfx"
	"github.com/katgfx/kat/window"
)

func init() {
	// SDL and the window's event loop must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	shaderDir := flag.String("shaders", "shaders", "directory holding mesh.vert.spv and mesh.frag.spv")
	meshPath := flag.String("mesh", "", "Wavefront .obj file to draw instead of the cube")
	verbose := flag.Bool("v", false, "log debug output")
	validation := flag.Bool("validation", false, "enable the Vulkan validation layer")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	gfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*shaderDir, *meshPath, *validation); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(shaderDir, meshPath string, validation bool) (err error) {
	mesh := cubeMesh()
	if meshPath != "" {
		if mesh, err = loadOBJ(meshPath); err != nil {
			return err
		}
	}

	settings := app.DefaultSettings()
	settings.Window.Title = "katdemo"
	settings.Device.AppName = "katdemo"
	settings.Device.Validation = validation
	settings.Graphics.Shaders = gfx.FileSource{FS: os.DirFS(shaderDir)}

	a, err := app.Open(settings)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); err == nil {
			err = closeErr
		}
	}()

	scene, err := NewScene(a.Context, mesh)
	if err != nil {
		return err
	}
	defer scene.Destroy(a.Context)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Window.OnKey(sdl.K_ESCAPE, func(e window.KeyEvent) {
		if e.Pressed {
			cancel()
		}
	})
	a.Window.OnKey(sdl.K_SPACE, func(e window.KeyEvent) {
		if e.Pressed && !e.Repeat {
			scene.TogglePause()
		}
	})

	return a.Run(ctx, scene)
}
