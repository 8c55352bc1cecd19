// Package mesh defines the vertex record the pipeline consumes and owns the
// single host-visible vertex buffer the renderer draws from. The triangle
// below is placeholder geometry; the vertex layout, not its content, is the
// contract with the shaders.
package mesh

import (
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"
)

// Vertex matches the vertex shader's input interface: a 2D position at
// location 0 and an RGB color at location 1.
type Vertex struct {
	Position vkngmath.Vec2[float32]
	Color    vkngmath.Vec3[float32]
}

// Triangle is the fixed 3-vertex geometry recorded into every frame.
var Triangle = []Vertex{
	{Position: vkngmath.Vec2[float32]{X: 0, Y: -0.5}, Color: vkngmath.Vec3[float32]{X: 1, Y: 0, Z: 0}},
	{Position: vkngmath.Vec2[float32]{X: 0.5, Y: 0.5}, Color: vkngmath.Vec3[float32]{X: 0, Y: 1, Z: 0}},
	{Position: vkngmath.Vec2[float32]{X: -0.5, Y: 0.5}, Color: vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 1}},
}

// BindingDescriptions declares the single per-vertex binding.
func BindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

// AttributeDescriptions declares position and color attributes at their
// in-struct offsets.
func AttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}
