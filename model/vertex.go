package model

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type Vertex struct {
	Position mgl32.Vec3
	TexCoord mgl32.Vec2
	Normal   mgl32.Vec3
	Tangent  mgl32.Vec4
}

var VertexSize = binary.Size(Vertex{})

const (
	positionOffset = 0
	texCoordOffset = positionOffset + 3*4
	normalOffset   = texCoordOffset + 2*4
	tangentOffset  = normalOffset + 3*4
)

func BindingDescriptions() []core1_0.VertexInputBindingDescription {
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    VertexSize,
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

// AttributeDescriptions binds position, normal, texcoord and tangent to locations 0 through 3.
func AttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   positionOffset,
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   normalOffset,
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   texCoordOffset,
		},
		{
			Binding:  0,
			Location: 3,
			Format:   core1_0.FormatR32G32B32A32SignedFloat,
			Offset:   tangentOffset,
		},
	}
}
