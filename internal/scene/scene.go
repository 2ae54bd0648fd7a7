// Package scene loads initial body descriptors from Wavefront OBJ files. It
// stands in for the out-of-scope 3D scene-authoring tool described in
// spec.md §1's Non-goals: an operator points it at an OBJ file instead of a
// viewer, and it produces the ColdBody/WarmBody pairs insert_objects expects.
// Grounded on the teacher's gwob-based loaders, shared/state/object.go and
// shared/state/mesh.go, which assemble an indexed vertex list the same way
// from gwob.Obj's flat Coord/Indices arrays.
package scene

import (
	"fmt"
	"log"

	"github.com/mwindels/gwob"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
)

// Placement classifies and positions a mesh body loaded from an OBJ group.
type Placement struct {
	BodyType model.BodyType
	Density  float64
	Position geom.Vector
}

// LoadFile reads path as a Wavefront OBJ file and returns one BodyAssignment
// per object group it contains, placed at the same Placement: an OBJ file
// with several groups becomes several co-located bodies, mirroring how the
// teacher's ObjectFromFile walks inputObj.Groups to build one face list per
// material grouping.
func LoadFile(path string, placement Placement) ([]model.BodyAssignment, error) {
	options := gwob.ObjParserOptions{
		LogStats:      false,
		Logger:        func(s string) { log.Println("scene:", s) },
		IgnoreNormals: true,
	}

	obj, err := gwob.NewObjFromFile(path, &options)
	if err != nil {
		return nil, fmt.Errorf("scene: load %q: %w", path, err)
	}
	if obj.StrideSize == 0 {
		return nil, fmt.Errorf("scene: %q has no vertex data", path)
	}

	vertexStride := obj.StrideSize / 4
	vertexOffset := obj.StrideOffsetPosition / 4

	bodies := make([]model.BodyAssignment, 0, len(obj.Groups))
	for gi, g := range obj.Groups {
		if g.IndexCount%3 != 0 {
			return nil, fmt.Errorf("scene: %q group %d is not triangulated", path, gi)
		}

		mesh, err := meshFromGroup(obj, g, vertexStride, vertexOffset)
		if err != nil {
			return nil, fmt.Errorf("scene: %q group %d: %w", path, gi, err)
		}
		if len(mesh.Indices) == 0 {
			continue
		}

		bodies = append(bodies, model.BodyAssignment{
			UUID: ids.NewBodyUUID(),
			Cold: model.ColdBody{
				BodyType: placement.BodyType,
				Density:  placement.Density,
				Shape: model.Shape{
					Kind: model.ShapeMesh,
					Mesh: mesh,
				},
			},
			Warm: model.WarmBody{
				Position: placement.Position,
			},
		})
	}

	if len(bodies) == 0 {
		return nil, fmt.Errorf("scene: %q contains no triangulated geometry", path)
	}
	return bodies, nil
}

// meshFromGroup deduplicates one gwob.Group's vertices into the compact
// Vertices/Indices pair model.Mesh carries across migrations, the same
// vertexMap-keyed-by-value approach the teacher's MeshFromFile uses.
func meshFromGroup(obj *gwob.Obj, g gwob.Group, vertexStride, vertexOffset int) (*model.Mesh, error) {
	vertexIndex := make(map[[3]float64]int)
	mesh := &model.Mesh{}

	for f := 0; f < g.IndexCount/3; f++ {
		var tri [3]int
		for v := 0; v < 3; v++ {
			i := g.IndexBegin + 3*f + v
			coord := vertexStride*obj.Indices[i] + vertexOffset
			vertex := [3]float64{obj.Coord64(coord), obj.Coord64(coord + 1), obj.Coord64(coord + 2)}

			idx, ok := vertexIndex[vertex]
			if !ok {
				idx = len(mesh.Vertices)
				vertexIndex[vertex] = idx
				mesh.Vertices = append(mesh.Vertices, vertex)
			}
			tri[v] = idx
		}
		mesh.Indices = append(mesh.Indices, tri)
	}
	return mesh, nil
}
