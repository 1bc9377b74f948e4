package gfx

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/katgfx/kat/driver/drivertest"
)

// spirv returns a minimal module: the magic number followed by filler words.
func spirv(words ...uint32) []byte {
	out := make([]byte, 4*(len(words)+1))
	binary.LittleEndian.PutUint32(out, spirvMagic)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*(i+1):], w)
	}
	return out
}

func testShaders() fstest.MapFS {
	return fstest.MapFS{
		"shaders/tri.vert.spv": {Data: spirv(1, 2, 3)},
		"shaders/tri.frag.spv": {Data: spirv(4, 5)},
		"shaders/broken.spv":   {Data: []byte{1, 2, 3}},
	}
}

func newTestContext(t *testing.T, configure func(*drivertest.Device, *Settings)) (*Context, *drivertest.Device) {
	t.Helper()
	dev := drivertest.New()
	settings := DefaultSettings()
	settings.Shaders = FileSource{FS: testShaders()}
	if configure != nil {
		configure(dev, &settings)
	}
	ctx, err := NewContext(dev, settings)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() {
		if err := ctx.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	dev.ResetHistory()
	return ctx, dev
}
