package model

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

type cornerKey struct {
	vertex, uv, normal int
}

type meshBuilder struct {
	decoder    *obj.Decoder
	mesh       *Mesh
	unique     map[cornerKey]uint32
	hasNormals bool
}

func (b *meshBuilder) addVertex(face obj.Face, faceIndex int) error {
	key := cornerKey{vertex: face.Vertices[faceIndex], uv: -1, normal: -1}
	if faceIndex < len(face.Uvs) && validIndex(face.Uvs[faceIndex], 2, len(b.decoder.Uvs)) {
		key.uv = face.Uvs[faceIndex]
	}
	if faceIndex < len(face.Normals) && validIndex(face.Normals[faceIndex], 3, len(b.decoder.Normals)) {
		key.normal = face.Normals[faceIndex]
	}

	index, exists := b.unique[key]
	if !exists {
		if !validIndex(key.vertex, 3, len(b.decoder.Vertices)) {
			return errors.Newf("face references missing vertex %d", key.vertex+1)
		}

		positions := b.decoder.Vertices
		vert := Vertex{Position: mgl32.Vec3{
			positions[key.vertex*3],
			positions[key.vertex*3+1],
			positions[key.vertex*3+2],
		}}

		if key.uv >= 0 {
			vert.TexCoord = mgl32.Vec2{
				b.decoder.Uvs[key.uv*2],
				1.0 - b.decoder.Uvs[key.uv*2+1],
			}
		}
		if key.normal >= 0 {
			normals := b.decoder.Normals
			vert.Normal = mgl32.Vec3{
				normals[key.normal*3],
				normals[key.normal*3+1],
				normals[key.normal*3+2],
			}
		} else {
			b.hasNormals = false
		}

		index = uint32(len(b.mesh.Vertices))
		b.mesh.Vertices = append(b.mesh.Vertices, vert)
		b.unique[key] = index
	}

	b.mesh.Indices = append(b.mesh.Indices, index)
	return nil
}

// validIndex also rejects the out of range marker the decoder stores for absent uvs and normals.
func validIndex(index, components, length int) bool {
	return index >= 0 && index*components+components-1 < length
}

// DecodeOBJ reads Wavefront OBJ geometry. mtl may be nil. Polygons are fan triangulated and
// identical position/uv/normal corners share a vertex.
func DecodeOBJ(objReader, mtlReader io.Reader) (*Mesh, error) {
	if mtlReader == nil {
		mtlReader = strings.NewReader("")
	}
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	builder := &meshBuilder{
		decoder:    decoder,
		mesh:       &Mesh{},
		unique:     make(map[cornerKey]uint32),
		hasNormals: true,
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					if err := builder.addVertex(face, corner); err != nil {
						return nil, errors.Wrapf(err, "object %s", decodedObj.Name)
					}
				}
			}
		}
	}

	mesh := builder.mesh
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	if !builder.hasNormals {
		mesh.GenerateNormals()
	}
	mesh.GenerateTangents()
	return mesh, nil
}

// LoadOBJ decodes path, picking up a sibling .mtl file when one exists.
func LoadOBJ(path string) (*Mesh, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load model %s", path)
	}
	defer meshFile.Close()

	var mtlReader io.Reader
	mtlPath := strings.TrimSuffix(path, ".obj") + ".mtl"
	if mtlPath != path {
		if matFile, err := os.Open(mtlPath); err == nil {
			defer matFile.Close()
			mtlReader = matFile
		}
	}

	mesh, err := DecodeOBJ(meshFile, mtlReader)
	if err != nil {
		return nil, errors.Wrapf(err, "load model %s", path)
	}
	return mesh, nil
}
