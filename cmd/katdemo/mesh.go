package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/katgfx/kat/gfx"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
}

var vertexLayout = gfx.VertexLayout{Bindings: []gfx.VertexBinding{{
	Stride:    int(unsafe.Sizeof(Vertex{})),
	InputRate: core1_0.VertexInputRateVertex,
	Attributes: []gfx.VertexAttribute{
		{Location: 0, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(Vertex{}.Position))},
		{Location: 1, Format: core1_0.FormatR32G32B32SignedFloat, Offset: int(unsafe.Offsetof(Vertex{}.Color))},
	},
}}}

type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// cubeMesh is a unit cube centered on the origin with one color per face.
func cubeMesh() *Mesh {
	faces := []struct {
		normal, u, v mgl32.Vec3
		color        mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{1, 0, 1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 1}},
	}

	m := &Mesh{}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		center := f.normal.Mul(0.5)
		for _, corner := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			pos := center.Add(f.u.Mul(corner[0] * 0.5)).Add(f.v.Mul(corner[1] * 0.5))
			m.Vertices = append(m.Vertices, Vertex{Position: pos, Color: f.color})
		}
		// Counter-clockwise seen from outside.
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// loadOBJ reads a Wavefront mesh. Faces are triangulated as fans, and
// vertices are colored by their normal when the file has normals.
func loadOBJ(path string) (*Mesh, error) {
	objFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer objFile.Close()

	var mtl io.Reader = strings.NewReader("")
	mtlPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
	if mtlFile, err := os.Open(mtlPath); err == nil {
		defer mtlFile.Close()
		mtl = mtlFile
	}

	decoder, err := obj.DecodeReader(objFile, mtl)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return meshFromOBJ(decoder)
}

type objKey struct{ vertex, normal int }

func meshFromOBJ(decoder *obj.Decoder) (*Mesh, error) {
	m := &Mesh{}
	unique := map[objKey]uint32{}

	add := func(face obj.Face, i int) {
		key := objKey{vertex: face.Vertices[i], normal: -1}
		if i < len(face.Normals) {
			key.normal = face.Normals[i]
		}
		if idx, ok := unique[key]; ok {
			m.Indices = append(m.Indices, idx)
			return
		}

		v := key.vertex * 3
		vert := Vertex{
			Position: mgl32.Vec3{decoder.Vertices[v], decoder.Vertices[v+1], decoder.Vertices[v+2]},
			Color:    mgl32.Vec3{1, 1, 1},
		}
		if n := key.normal * 3; key.normal >= 0 && n+2 < len(decoder.Normals) {
			normal := mgl32.Vec3{decoder.Normals[n], decoder.Normals[n+1], decoder.Normals[n+2]}
			vert.Color = normal.Mul(0.5).Add(mgl32.Vec3{0.5, 0.5, 0.5})
		}

		idx := uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, vert)
		unique[key] = idx
		m.Indices = append(m.Indices, idx)
	}

	for _, object := range decoder.Objects {
		for _, face := range object.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				add(face, 0)
				add(face, i-1)
				add(face, i)
			}
		}
	}
	if len(m.Indices) == 0 {
		return nil, errors.New("mesh has no faces")
	}
	return m, nil
}

// Bounds returns the center and the radius of the bounding sphere around
// the axis-aligned bounds.
func (m *Mesh) Bounds() (center mgl32.Vec3, radius float32) {
	if len(m.Vertices) == 0 {
		return mgl32.Vec3{}, 1
	}
	lo, hi := m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	center = lo.Add(hi).Mul(0.5)
	radius = hi.Sub(lo).Len() / 2
	if radius == 0 {
		radius = 1
	}
	return center, radius
}
