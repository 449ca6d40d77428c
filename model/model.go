// Package model turns triangle meshes into device-local vertex and index buffers.
package model

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/vkbase/gpu"
)

const IndexType = core1_0.IndexTypeUInt32

type Model struct {
	VertexBuffer *gpu.Buffer
	IndexBuffer  *gpu.Buffer
	VertexCount  int
	IndexCount   int
}

// Upload copies the mesh into device-local buffers with a single staging submission. The
// model keeps no host copy of the geometry.
func Upload(dev *gpu.Device, mesh *Mesh) (*Model, error) {
	if err := mesh.Validate(); err != nil {
		return nil, err
	}

	vertexData, err := mesh.VertexBytes()
	if err != nil {
		return nil, err
	}
	indexData, err := mesh.IndexBytes()
	if err != nil {
		return nil, err
	}

	buffers, err := gpu.NewUploader(dev).UploadBuffers(
		gpu.BufferPayload{Data: vertexData, Usage: core1_0.BufferUsageVertexBuffer},
		gpu.BufferPayload{Data: indexData, Usage: core1_0.BufferUsageIndexBuffer},
	)
	if err != nil {
		return nil, errors.Wrap(err, "upload model")
	}

	model := &Model{
		VertexBuffer: buffers[0],
		IndexBuffer:  buffers[1],
		VertexCount:  len(mesh.Vertices),
		IndexCount:   len(mesh.Indices),
	}
	dev.Logger().Debug("model uploaded",
		slog.Int("vertices", model.VertexCount),
		slog.Int("indices", model.IndexCount))
	return model, nil
}

// Load reads an OBJ file and uploads it.
func Load(dev *gpu.Device, path string) (*Model, error) {
	mesh, err := LoadOBJ(path)
	if err != nil {
		return nil, err
	}
	model, err := Upload(dev, mesh)
	if err != nil {
		return nil, errors.Wrapf(err, "load model %s", path)
	}
	return model, nil
}

func (m *Model) Destroy() {
	if m == nil {
		return
	}
	m.VertexBuffer.Destroy()
	m.IndexBuffer.Destroy()
	m.VertexBuffer = nil
	m.IndexBuffer = nil
}
