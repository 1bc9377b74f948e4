package vkng

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/katgfx/kat/driver"
)

func TestTable(t *testing.T) {
	tab := newTable[driver.Fence, string]("fence")

	a := tab.add("a")
	b := tab.add("b")
	if a == driver.Null || a == b {
		t.Fatalf("handles %d and %d", a, b)
	}
	if v, err := tab.get(b); err != nil || v != "b" {
		t.Errorf("get(b) = %q, %v", v, err)
	}

	if _, ok := tab.remove(a); !ok {
		t.Fatal("remove(a) missed")
	}
	if _, ok := tab.remove(a); ok {
		t.Error("second remove succeeded")
	}
	if _, err := tab.get(a); !errors.Is(err, driver.ErrUnknownHandle) {
		t.Errorf("stale handle: %v", err)
	}
	if v := tab.lookup(a); v != "" {
		t.Errorf("lookup of stale handle = %q", v)
	}

	c := tab.add("c")
	if c == a {
		t.Error("handle reused after remove")
	}

	if _, err := tab.all([]driver.Fence{b, a}); err == nil {
		t.Error("all accepted a stale handle")
	}
	vs, err := tab.all([]driver.Fence{c, b})
	if err != nil || vs[0] != "c" || vs[1] != "b" {
		t.Errorf("all = %v, %v", vs, err)
	}

	if got := tab.drain(); len(got) != 2 || tab.len() != 0 {
		t.Errorf("drain returned %d, %d left", len(got), tab.len())
	}
}

func TestTableConcurrentAdd(t *testing.T) {
	tab := newTable[driver.Buffer, int]("buffer")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tab.remove(tab.add(j))
				tab.add(j)
			}
		}()
	}
	wg.Wait()
	if tab.len() != 800 {
		t.Errorf("%d objects, want 800", tab.len())
	}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		res  common.VkResult
		err  error
		want error
	}{
		{khr_swapchain.VKErrorOutOfDate, errors.New("out of date"), driver.ErrOutOfDate},
		{khr_swapchain.VKSuboptimal, nil, driver.ErrSuboptimal},
		{core1_0.VKTimeout, nil, driver.ErrTimeout},
	}
	for _, c := range cases {
		if err := check("op", c.res, c.err); !errors.Is(err, c.want) {
			t.Errorf("check(%v) = %v, want %v", c.res, err, c.want)
		}
	}

	if err := check("op", core1_0.VKSuccess, nil); err != nil {
		t.Errorf("success mapped to %v", err)
	}
	cause := errors.New("device lost")
	if err := check("submit", core1_0.VKErrorUnknown, cause); !errors.Is(err, cause) {
		t.Errorf("other failures lose their cause: %v", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	if waitTimeout(driver.NoTimeout) != common.NoTimeout {
		t.Error("NoTimeout not translated")
	}
	if waitTimeout(-time.Second) != 0 {
		t.Error("negative wait does not poll")
	}
	if waitTimeout(time.Millisecond) != time.Millisecond {
		t.Error("finite wait changed")
	}
}

func TestSuitability(t *testing.T) {
	usable := func() *deviceCaps {
		return &deviceCaps{Name: "gpu", MaxImage2D: 4096, SurfaceFormats: 2, SurfacePresentModes: 1}
	}

	integrated := usable()
	discrete := usable()
	discrete.Discrete = true
	discrete.MaxImage2D = 2048
	if discrete.Suitability() <= integrated.Suitability() {
		t.Errorf("discrete %d <= integrated %d", discrete.Suitability(), integrated.Suitability())
	}

	tiny := usable()
	tiny.MaxImage2D = 0
	if tiny.Suitability() == 0 {
		t.Error("usable device with no image limit scored zero")
	}

	for name, spoil := range map[string]func(*deviceCaps){
		"families":   func(c *deviceCaps) { c.FamilyError = driver.ErrNoQueueFamily },
		"extensions": func(c *deviceCaps) { c.MissingExtensions = []string{khr_swapchain.ExtensionName} },
		"features":   func(c *deviceCaps) { c.MissingFeatures = []string{"GeometryShader"} },
		"formats":    func(c *deviceCaps) { c.SurfaceFormats = 0 },
		"modes":      func(c *deviceCaps) { c.SurfacePresentModes = 0 },
	} {
		c := usable()
		spoil(c)
		if c.Suitability() != 0 {
			t.Errorf("%s: scored %d", name, c.Suitability())
		}
		if c.Reason() == "" {
			t.Errorf("%s: no reason given", name)
		}
	}
}

func TestDebugLevel(t *testing.T) {
	cases := map[ext_debug_utils.DebugUtilsMessageSeverityFlags]slog.Level{
		ext_debug_utils.SeverityError:   slog.LevelError,
		ext_debug_utils.SeverityWarning: slog.LevelWarn,
		ext_debug_utils.SeverityInfo:    slog.LevelInfo,
		ext_debug_utils.SeverityVerbose: slog.LevelDebug,
	}
	for sev, want := range cases {
		if got := debugLevel(sev); got != want {
			t.Errorf("debugLevel(%v) = %v, want %v", sev, got, want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.APIVersion != common.Vulkan1_2 || cfg.Validation {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.AppVersion.vulkan() != common.CreateVersion(1, 0, 0) {
		t.Error("app version not 1.0.0")
	}
}

func TestVersionEncoding(t *testing.T) {
	var v common.Version = Version{Major: 1, Minor: 2, Patch: 3}.vulkan()
	if v != common.CreateVersion(1, 2, 3) {
		t.Errorf("encoded %v", v)
	}
	if v.Major() != 1 || v.Minor() != 2 || v.Patch() != 3 {
		t.Errorf("round trip %d.%d.%d", v.Major(), v.Minor(), v.Patch())
	}
}

func TestSetProperties(t *testing.T) {
	var caps deviceCaps
	caps.setProperties(&core1_0.PhysicalDeviceProperties{
		DriverName: "Test GPU",
		DriverType: core1_0.PhysicalDeviceTypeDiscreteGPU,
		Limits:     &core1_0.PhysicalDeviceLimits{MaxImageDimension2D: 16384},
	})
	if caps.Name != "Test GPU" || !caps.Discrete || caps.MaxImage2D != 16384 {
		t.Errorf("caps %+v", caps)
	}

	caps = deviceCaps{}
	caps.setProperties(&core1_0.PhysicalDeviceProperties{DriverType: core1_0.PhysicalDeviceTypeIntegratedGPU})
	if caps.Discrete || caps.MaxImage2D != 0 {
		t.Errorf("integrated caps %+v", caps)
	}
}

func TestFramebufferLayers(t *testing.T) {
	for in, want := range map[int]uint32{-1: 1, 0: 1, 1: 1, 6: 6} {
		if got := framebufferLayers(in); got != want {
			t.Errorf("framebufferLayers(%d) = %d, want %d", in, got, want)
		}
	}
}
