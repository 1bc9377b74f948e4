// Command katinfo reports the physical devices Vulkan exposes, which one kat
// would select, and what the selected device offers the window surface.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/driver"
	"github.com/katgfx/kat/driver/vkng"
	"github.com/katgfx/kat/window"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	validation := flag.Bool("validation", false, "enable the Vulkan validation layer")
	verbose := flag.Bool("v", false, "log device selection")
	flag.Parse()

	if err := run(os.Stdout, *validation, *verbose); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(out io.Writer, validation, verbose bool) error {
	ws := window.DefaultSettings()
	ws.Title = "katinfo"
	ws.Hidden = true
	win, err := window.New(ws)
	if err != nil {
		return err
	}
	defer win.Close()

	cfg := vkng.DefaultConfig()
	cfg.AppName = "katinfo"
	cfg.Validation = validation
	if verbose {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	dev, err := vkng.Open(win, cfg)
	if err != nil {
		return errors.Wrap(err, "open device")
	}
	defer dev.Destroy()

	return writeReport(out, dev, dev.Candidates())
}

func writeReport(out io.Writer, dev driver.Device, candidates []vkng.Candidate) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "DEVICE\tTYPE\tSCORE\tNOTE")
	for _, c := range candidates {
		kind := "integrated"
		if c.Discrete {
			kind = "discrete"
		}
		note := c.Reason
		if c.Selected {
			note = "selected"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Name, kind, c.Score, note)
	}

	fmt.Fprintf(tw, "\nQUEUE ROLE\tFAMILY\n")
	for _, role := range driver.QueueRoles {
		fmt.Fprintf(tw, "%s\t%d\n", role, dev.QueueFamily(role))
	}

	fmt.Fprintf(tw, "\nMEMORY TYPE\tHEAP\tFLAGS\n")
	for i, mt := range dev.MemoryTypes() {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", i, mt.HeapIndex, memoryFlags(mt.Flags))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	support, err := dev.SurfaceSupport()
	if err != nil {
		return err
	}
	caps := support.Capabilities
	fmt.Fprintf(out, "\nsurface: %d-%d images, extent %dx%d (min %dx%d, max %dx%d)\n",
		caps.MinImageCount, caps.MaxImageCount,
		caps.CurrentExtent.Width, caps.CurrentExtent.Height,
		caps.MinImageExtent.Width, caps.MinImageExtent.Height,
		caps.MaxImageExtent.Width, caps.MaxImageExtent.Height)
	for _, f := range support.Formats {
		fmt.Fprintf(out, "  format %s / %s\n", f.Format, f.ColorSpace)
	}
	for _, m := range support.PresentModes {
		fmt.Fprintf(out, "  present mode %s\n", m)
	}
	return nil
}

func memoryFlags(f core1_0.MemoryPropertyFlags) string {
	if f == 0 {
		return "-"
	}
	return fmt.Sprint(f)
}
