// Package mesh describes the vertex data uploaded to the GPU and how the
// pipeline reads it.
package mesh

import (
	"io"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/core1_0"
)

type Vertex struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

// Quad is the default primitive: two triangles fading from magenta corners to blue.
var Quad = []Vertex{
	{Position: mgl32.Vec2{-0.7, -0.7}, Color: mgl32.Vec3{1, 0, 1}},
	{Position: mgl32.Vec2{0.7, -0.7}, Color: mgl32.Vec3{0, 0, 1}},
	{Position: mgl32.Vec2{-0.7, 0.7}, Color: mgl32.Vec3{0, 0, 1}},

	{Position: mgl32.Vec2{-0.7, 0.7}, Color: mgl32.Vec3{0, 0, 1}},
	{Position: mgl32.Vec2{0.7, -0.7}, Color: mgl32.Vec3{0, 0, 1}},
	{Position: mgl32.Vec2{0.7, 0.7}, Color: mgl32.Vec3{1, 0, 1}},
}

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

// LoadOBJ flattens every face of an OBJ mesh into a triangle list, projected
// onto the XY plane. Vertices take their material's diffuse color, or white
// when the face has none. mtl may be nil.
func LoadOBJ(objFile, mtl io.Reader) ([]Vertex, error) {
	if mtl == nil {
		mtl = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(objFile, mtl)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	var vertices []Vertex
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			color := mgl32.Vec3{1, 1, 1}
			if mat, ok := decoder.Materials[face.Material]; ok && mat != nil {
				color = mgl32.Vec3{mat.Diffuse.R, mat.Diffuse.G, mat.Diffuse.B}
			}

			// Faces are fans around their first vertex.
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					vertInd := face.Vertices[corner]
					if vertInd < 0 || vertInd*3+1 >= len(decoder.Vertices) {
						return nil, errors.Newf("face in %q references vertex %d of %d", decodedObj.Name, vertInd, len(decoder.Vertices)/3)
					}

					vertices = append(vertices, Vertex{
						Position: mgl32.Vec2{decoder.Vertices[vertInd*3], decoder.Vertices[vertInd*3+1]},
						Color:    color,
					})
				}
			}
		}
	}

	if len(vertices) == 0 {
		return nil, errors.New("obj contains no triangles")
	}

	return vertices, nil
}
