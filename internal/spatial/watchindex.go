// Package spatial wraps rtreego as the BVH the spec calls for in two
// places: the per-tick "watch index" a Simulator builds over neighbor swept
// AABBs (spec.md §4.4 step 3), and the physics engine's broad-phase. Both
// are read-mostly structures rebuilt once per tick, following the same
// rebuild-from-scratch pattern the teacher uses for a mesh's face index
// (shared/state/mesh.go's RebuildFaces).
package spatial

import (
	"math"

	"github.com/mwindels/rtreego"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
)

// boundEpsilon guards against rtreego rejecting a degenerate (zero-volume)
// rectangle, mirroring the teacher's use of the same constant in
// shared/state/mesh.go.
const boundEpsilon = 1e-6

// Entry is a single spatial index item: a body's identity plus the AABB it
// occupies.
type Entry struct {
	UUID ids.BodyUUID
	AABB geom.AABB
}

// Bounds implements rtreego.Spatial.
func (e Entry) Bounds() *rtreego.Rect {
	return toRect(e.AABB)
}

func toRect(aabb geom.AABB) *rtreego.Rect {
	lengths := []float64{
		math.Max(aabb.Maxs.X-aabb.Mins.X, boundEpsilon),
		math.Max(aabb.Maxs.Y-aabb.Mins.Y, boundEpsilon),
		math.Max(aabb.Maxs.Z-aabb.Mins.Z, boundEpsilon),
	}
	rect, err := rtreego.NewRect(rtreego.Point{aabb.Mins.X, aabb.Mins.Y, aabb.Mins.Z}, lengths)
	if err != nil {
		// Only a malformed (NaN/Inf) AABB can reach here; every caller
		// builds AABBs from finite body state.
		panic(err)
	}
	return rect
}

// Index is a BVH over a fixed set of entries, rebuilt once per tick.
type Index struct {
	tree *rtreego.Rtree
}

// Build constructs an Index over entries. Called once per Simulator tick
// after the watch sets of the positive neighbors have been read, as in
// spec.md §4.4 step 3.
func Build(entries []Entry) *Index {
	spatialObjs := make([]rtreego.Spatial, len(entries))
	for i, e := range entries {
		spatialObjs[i] = e
	}
	return &Index{tree: rtreego.NewTree(3, 2, 5, spatialObjs...)}
}

// Query returns every entry whose bounds intersect aabb.
func (idx *Index) Query(aabb geom.AABB) []Entry {
	target := toRect(aabb)
	hits := idx.tree.SearchCondition(func(nbb *rtreego.Rect) bool {
		return rectsIntersect(target, nbb)
	})
	out := make([]Entry, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(Entry))
	}
	return out
}

func rectsIntersect(a, b *rtreego.Rect) bool {
	pa, pb := a.PointCoord, b.PointCoord
	for axis := 0; axis < 3; axis++ {
		aMin, aLen := pa(axis), a.LengthsCoord(axis)
		bMin, bLen := pb(axis), b.LengthsCoord(axis)
		if aMin+aLen < bMin || bMin+bLen < aMin {
			return false
		}
	}
	return true
}
