package spatial

import (
	"testing"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/stretchr/testify/require"
)

func TestIndexQueryFindsIntersecting(t *testing.T) {
	a := ids.NewBodyUUID()
	b := ids.NewBodyUUID()
	idx := Build([]Entry{
		{UUID: a, AABB: geom.AABB{Mins: geom.Vector{X: 0, Y: 0, Z: 0}, Maxs: geom.Vector{X: 1, Y: 1, Z: 1}}},
		{UUID: b, AABB: geom.AABB{Mins: geom.Vector{X: 50, Y: 50, Z: 50}, Maxs: geom.Vector{X: 51, Y: 51, Z: 51}}},
	})

	hits := idx.Query(geom.AABB{Mins: geom.Vector{X: -1, Y: -1, Z: -1}, Maxs: geom.Vector{X: 2, Y: 2, Z: 2}})
	require.Len(t, hits, 1)
	require.Equal(t, a, hits[0].UUID)
}

func TestIndexQueryEmpty(t *testing.T) {
	idx := Build(nil)
	hits := idx.Query(geom.AABB{Mins: geom.Vector{}, Maxs: geom.Vector{X: 1, Y: 1, Z: 1}})
	require.Empty(t, hits)
}
