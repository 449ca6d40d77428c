package model_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/vkbase/gpu"
	"github.com/vkngwrapper/vkbase/internal/fakevk"
	"github.com/vkngwrapper/vkbase/model"
)

const triangleOBJ = `o triangle
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1
`

const quadOBJ = `o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func newDevice(t *testing.T) (*gpu.Device, *fakevk.Driver) {
	t.Helper()
	driver := fakevk.New()
	dev, err := gpu.NewDevice(driver, driver.PhysicalDevice(), gpu.QueueFamilyIndices{}, gpu.DeviceOptions{})
	require.NoError(t, err)
	return dev, driver
}

func writeOBJ(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mesh.obj")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDecodeOBJ_Triangle(t *testing.T) {
	mesh, err := model.DecodeOBJ(strings.NewReader(triangleOBJ), nil)
	require.NoError(t, err)

	require.Len(t, mesh.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)

	assert.Equal(t, mgl32.Vec3{1, 0, 0}, mesh.Vertices[1].Position)
	// V is flipped for Vulkan's top-left texture origin.
	assert.Equal(t, mgl32.Vec2{0, 1}, mesh.Vertices[0].TexCoord)
	assert.Equal(t, mgl32.Vec2{0, 0}, mesh.Vertices[2].TexCoord)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, mesh.Vertices[0].Normal)

	tangent := mesh.Vertices[0].Tangent
	assert.InDelta(t, 1, tangent.X(), 1e-5)
	assert.InDelta(t, 0, tangent.Y(), 1e-5)
	assert.InDelta(t, 0, tangent.Z(), 1e-5)
	assert.Equal(t, float32(-1), tangent.W())
}

func TestDecodeOBJ_FanTriangulatesPolygons(t *testing.T) {
	mesh, err := model.DecodeOBJ(strings.NewReader(quadOBJ), nil)
	require.NoError(t, err)

	assert.Len(t, mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
}

func TestDecodeOBJ_DedupsIdenticalCorners(t *testing.T) {
	source := `o pair
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vt 0.5 0.5
vn 0 0 1
f 1/1/1 2/2/1 3/3/1
f 1/1/1 3/3/1 4/4/1
f 1/5/1 3/3/1 4/4/1
`
	mesh, err := model.DecodeOBJ(strings.NewReader(source), nil)
	require.NoError(t, err)

	// The last face reuses position 1 with a different uv, which needs its own vertex.
	assert.Len(t, mesh.Vertices, 5)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3, 4, 2, 3}, mesh.Indices)
}

func TestDecodeOBJ_GeneratesMissingNormals(t *testing.T) {
	source := `o bare
v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`
	mesh, err := model.DecodeOBJ(strings.NewReader(source), nil)
	require.NoError(t, err)

	for _, vertex := range mesh.Vertices {
		assert.InDelta(t, 1, vertex.Normal.Z(), 1e-5)
		assert.InDelta(t, 1, vertex.Tangent.Vec3().Len(), 1e-5)
	}
}

func TestDecodeOBJ_MissingVertex(t *testing.T) {
	source := `o broken
v 0 0 0
v 1 0 0
f 1 2 9
`
	_, err := model.DecodeOBJ(strings.NewReader(source), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing vertex 9")
}

func TestLoadOBJ_MissingFileNamesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nothing.obj")
	_, err := model.LoadOBJ(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestMeshValidate(t *testing.T) {
	vertices := make([]model.Vertex, 3)

	cases := map[string]model.Mesh{
		"no vertices":    {Indices: []uint32{0, 1, 2}},
		"no indices":     {Vertices: vertices},
		"not triangles":  {Vertices: vertices, Indices: []uint32{0, 1}},
		"index in range": {Vertices: vertices, Indices: []uint32{0, 1, 3}},
	}
	for name, mesh := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, mesh.Validate())
		})
	}

	valid := model.Mesh{Vertices: vertices, Indices: []uint32{0, 1, 2}}
	assert.NoError(t, valid.Validate())
}

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, 48, model.VertexSize)

	bindings := model.BindingDescriptions()
	require.Len(t, bindings, 1)
	assert.Equal(t, model.VertexSize, bindings[0].Stride)

	offsets := map[int]int{}
	for _, attribute := range model.AttributeDescriptions() {
		offsets[int(attribute.Location)] = attribute.Offset
	}
	assert.Equal(t, map[int]int{0: 0, 1: 20, 2: 12, 3: 32}, offsets)
}

func TestLoad_OneTriangle(t *testing.T) {
	dev, driver := newDevice(t)

	m, err := model.Load(dev, writeOBJ(t, triangleOBJ))
	require.NoError(t, err)

	assert.Equal(t, 3, m.VertexCount)
	assert.Equal(t, 3, m.IndexCount)
	assert.Equal(t, 3*model.VertexSize, m.VertexBuffer.Size)
	assert.Equal(t, 3*4, m.IndexBuffer.Size)
	assert.Equal(t, 1, driver.Submits)

	m.Destroy()
	m.Destroy()
	assert.Equal(t, map[fakevk.Kind]int{fakevk.KindCommandPool: 1}, driver.Leaks())
}

func TestUpload_InvalidMeshSubmitsNothing(t *testing.T) {
	dev, driver := newDevice(t)

	_, err := model.Upload(dev, &model.Mesh{Vertices: make([]model.Vertex, 1), Indices: []uint32{0, 0}})
	require.Error(t, err)
	assert.Zero(t, driver.Submits)
	assert.Equal(t, map[fakevk.Kind]int{fakevk.KindCommandPool: 1}, driver.Leaks())
}
