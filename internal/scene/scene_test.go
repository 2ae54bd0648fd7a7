package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/model"
)

const twoTriangleOBJ = `
v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
f 1 2 3
f 2 4 3
`

func writeOBJ(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.obj")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFileBuildsDeduplicatedMesh(t *testing.T) {
	path := writeOBJ(t, twoTriangleOBJ)
	placement := Placement{BodyType: model.BodyStatic, Density: 1, Position: geom.Vector{X: 2, Y: 0, Z: 0}}

	bodies, err := LoadFile(path, placement)
	require.NoError(t, err)
	require.Len(t, bodies, 1)

	body := bodies[0]
	require.Equal(t, model.BodyStatic, body.Cold.BodyType)
	require.Equal(t, model.ShapeMesh, body.Cold.Shape.Kind)
	require.NotNil(t, body.Cold.Shape.Mesh)
	require.Equal(t, placement.Position, body.Warm.Position)

	mesh := body.Cold.Shape.Mesh
	require.Len(t, mesh.Vertices, 4, "the shared edge's two vertices must be deduplicated")
	require.Len(t, mesh.Indices, 2)
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.obj"), Placement{})
	require.Error(t, err)
}

func TestLoadFileAssignsFreshUUIDsPerCall(t *testing.T) {
	path := writeOBJ(t, twoTriangleOBJ)

	first, err := LoadFile(path, Placement{})
	require.NoError(t, err)
	second, err := LoadFile(path, Placement{})
	require.NoError(t, err)

	require.NotEqual(t, first[0].UUID, second[0].UUID)
}
