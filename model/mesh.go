package model

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
)

// Mesh is host-side triangle list geometry, as produced by a loader.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Validate checks that the indices form whole triangles over existing vertices.
func (m *Mesh) Validate() error {
	if len(m.Vertices) == 0 {
		return errors.New("mesh has no vertices")
	}
	if len(m.Indices) == 0 {
		return errors.New("mesh has no indices")
	}
	if len(m.Indices)%3 != 0 {
		return errors.Newf("mesh is not triangulated: %d indices", len(m.Indices))
	}
	for i, index := range m.Indices {
		if int(index) >= len(m.Vertices) {
			return errors.Newf("index %d at %d is out of range for %d vertices", index, i, len(m.Vertices))
		}
	}
	return nil
}

// GenerateNormals replaces every normal with the area weighted average of its triangles' normals.
func (m *Mesh) GenerateNormals() {
	normals := make([]mgl32.Vec3, len(m.Vertices))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		p0, p1, p2 := m.Vertices[i0].Position, m.Vertices[i1].Position, m.Vertices[i2].Position
		faceNormal := p1.Sub(p0).Cross(p2.Sub(p0))
		normals[i0] = normals[i0].Add(faceNormal)
		normals[i1] = normals[i1].Add(faceNormal)
		normals[i2] = normals[i2].Add(faceNormal)
	}
	for i := range m.Vertices {
		if normals[i].Len() > 0 {
			m.Vertices[i].Normal = normals[i].Normalize()
		}
	}
}

// GenerateTangents derives per-vertex tangents from texture coordinates. W holds the
// bitangent handedness.
func (m *Mesh) GenerateTangents() {
	tangents := make([]mgl32.Vec3, len(m.Vertices))
	bitangents := make([]mgl32.Vec3, len(m.Vertices))

	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		v0, v1, v2 := m.Vertices[i0], m.Vertices[i1], m.Vertices[i2]

		edge1 := v1.Position.Sub(v0.Position)
		edge2 := v2.Position.Sub(v0.Position)
		duv1 := v1.TexCoord.Sub(v0.TexCoord)
		duv2 := v2.TexCoord.Sub(v0.TexCoord)

		det := duv1.X()*duv2.Y() - duv2.X()*duv1.Y()
		if mgl32.FloatEqual(det, 0) {
			continue
		}
		r := 1 / det
		tangent := edge1.Mul(duv2.Y()).Sub(edge2.Mul(duv1.Y())).Mul(r)
		bitangent := edge2.Mul(duv1.X()).Sub(edge1.Mul(duv2.X())).Mul(r)

		for _, index := range []uint32{i0, i1, i2} {
			tangents[index] = tangents[index].Add(tangent)
			bitangents[index] = bitangents[index].Add(bitangent)
		}
	}

	for i := range m.Vertices {
		normal := m.Vertices[i].Normal
		// Gram-Schmidt against the normal
		tangent := tangents[i].Sub(normal.Mul(normal.Dot(tangents[i])))
		if tangent.Len() == 0 {
			tangent = perpendicular(normal)
		}
		tangent = tangent.Normalize()

		handedness := float32(1)
		if normal.Cross(tangent).Dot(bitangents[i]) < 0 {
			handedness = -1
		}
		m.Vertices[i].Tangent = tangent.Vec4(handedness)
	}
}

func perpendicular(normal mgl32.Vec3) mgl32.Vec3 {
	axis := mgl32.Vec3{1, 0, 0}
	if mgl32.Abs(normal.X()) > 0.9 {
		axis = mgl32.Vec3{0, 1, 0}
	}
	return axis.Sub(normal.Mul(normal.Dot(axis)))
}

func (m *Mesh) VertexBytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, m.Vertices); err != nil {
		return nil, errors.Wrap(err, "encode vertices")
	}
	return buf.Bytes(), nil
}

func (m *Mesh) IndexBytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, m.Indices); err != nil {
		return nil, errors.Wrap(err, "encode indices")
	}
	return buf.Bytes(), nil
}
