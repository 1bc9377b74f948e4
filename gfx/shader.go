package gfx

import (
	"encoding/binary"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/katgfx/kat/driver"
)

// ShaderID names a shader. For FileSource it is the path of a .spv file.
type ShaderID string

// ShaderSource supplies SPIR-V bytecode by ID.
type ShaderSource interface {
	ReadShader(id ShaderID) ([]byte, error)
}

// FileSource reads shaders from FS, or from the OS file system when FS is
// nil.
type FileSource struct {
	FS fs.FS
}

func (s FileSource) ReadShader(id ShaderID) ([]byte, error) {
	if s.FS == nil {
		return os.ReadFile(string(id))
	}
	return fs.ReadFile(s.FS, string(id))
}

const spirvMagic = 0x07230203

// decodeSPIRV converts little-endian bytecode to the word slice shader
// modules are created from.
func decodeSPIRV(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidBytecode, "length %d is not a positive multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.Wrapf(ErrInvalidBytecode, "bad magic number %#08x", words[0])
	}
	return words, nil
}

// ShaderCache creates shader modules on first use and hands out the same
// module for an ID until Reset. Entries are never evicted.
type ShaderCache struct {
	dev    driver.Device
	source ShaderSource

	mu      sync.Mutex
	modules map[ShaderID]driver.ShaderModule
}

func NewShaderCache(dev driver.Device, source ShaderSource) *ShaderCache {
	return &ShaderCache{
		dev:     dev,
		source:  source,
		modules: map[ShaderID]driver.ShaderModule{},
	}
}

// Get returns the module for id, loading it if needed.
func (c *ShaderCache) Get(id ShaderID) (driver.ShaderModule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.modules[id]; ok {
		return m, nil
	}

	code, err := c.source.ReadShader(id)
	if err != nil {
		return driver.Null, errors.Wrapf(err, "read shader %s", id)
	}
	words, err := decodeSPIRV(code)
	if err != nil {
		return driver.Null, errors.Wrapf(err, "shader %s", id)
	}
	m, err := c.dev.CreateShaderModule(words)
	if err != nil {
		return driver.Null, errors.Wrapf(err, "create shader module %s", id)
	}
	c.modules[id] = m

	Logger().Debug("shader loaded", slog.String("shader", string(id)), slog.Int("bytes", len(code)))
	return m, nil
}

// GetIfPresent returns the module for id without loading it.
func (c *ShaderCache) GetIfPresent(id ShaderID) (driver.ShaderModule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[id]
	return m, ok
}

func (c *ShaderCache) IsLoaded(id ShaderID) bool {
	_, ok := c.GetIfPresent(id)
	return ok
}

func (c *ShaderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules)
}

// Reset destroys every cached module. Pipelines built from them stay valid.
func (c *ShaderCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, m := range c.modules {
		c.dev.DestroyShaderModule(m)
		delete(c.modules, id)
	}
}
