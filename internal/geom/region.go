package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultRegionWidth is the default edge length W of the region grid.
const DefaultRegionWidth int64 = 100

// RegionBounds is an integer axis-aligned grid cell of simulation space.
// Regions tile space on a grid of fixed edge length W; ordering is
// lexicographic on Mins only (see region_assignment in the original
// implementation), which is used as the tie-breaker whenever a body could
// belong to more than one region.
type RegionBounds struct {
	Mins, Maxs [3]int64
}

// FromAABB returns the region whose grid cell contains the maximum corner of
// aabb, given a region width w.
func FromAABB(aabb AABB, w int64) RegionBounds {
	return FromPoint(aabb.Maxs, w)
}

// FromPoint returns the region whose grid cell contains p, given a region
// width w.
func FromPoint(p Vector, w int64) RegionBounds {
	wf := float64(w)
	mins := [3]int64{
		int64(math.Floor(p.X/wf)) * w,
		int64(math.Floor(p.Y/wf)) * w,
		int64(math.Floor(p.Z/wf)) * w,
	}
	return RegionBounds{
		Mins: mins,
		Maxs: [3]int64{mins[0] + w, mins[1] + w, mins[2] + w},
	}
}

// Smallest returns a sentinel region strictly less than every region
// constructible by FromPoint; it is used as the starting point of an
// election fold (spec.md §4.4 step 7).
func Smallest() RegionBounds {
	return RegionBounds{Mins: [3]int64{math.MinInt64, math.MinInt64, math.MinInt64}}
}

// Less implements the total order on regions: lexicographic comparison of
// Mins only.
func (r RegionBounds) Less(o RegionBounds) bool {
	for k := 0; k < 3; k++ {
		if r.Mins[k] != o.Mins[k] {
			return r.Mins[k] < o.Mins[k]
		}
	}
	return false
}

// Greater returns whether r is strictly greater than o in the total order.
func (r RegionBounds) Greater(o RegionBounds) bool {
	return o.Less(r)
}

// Equal returns whether r and o denote the same grid cell.
func (r RegionBounds) Equal(o RegionBounds) bool {
	return r.Mins == o.Mins && r.Maxs == o.Maxs
}

// Max returns whichever of r and o is greater in the total order.
func Max(r, o RegionBounds) RegionBounds {
	if r.Less(o) {
		return o
	}
	return r
}

// AABB returns the continuous-space bounding box of the region.
func (r RegionBounds) AABB() AABB {
	return AABB{
		Mins: Vector{float64(r.Mins[0]), float64(r.Mins[1]), float64(r.Mins[2])},
		Maxs: Vector{float64(r.Maxs[0]), float64(r.Maxs[1]), float64(r.Maxs[2])},
	}
}

// Center returns the center point of the region's AABB, used by the Master
// to pick the nearest child sub-AABB for assignment.
func (r RegionBounds) Center() Vector {
	return r.AABB().Center()
}

// extents returns the per-axis edge lengths of the region.
func (r RegionBounds) extents() [3]int64 {
	return [3]int64{r.Maxs[0] - r.Mins[0], r.Maxs[1] - r.Mins[1], r.Maxs[2] - r.Mins[2]}
}

// RelativeNeighbor returns the region offset from r by shift grid cells
// along each axis.
func (r RegionBounds) RelativeNeighbor(shift [3]int64) RegionBounds {
	e := r.extents()
	var out RegionBounds
	for k := 0; k < 3; k++ {
		out.Mins[k] = r.Mins[k] + shift[k]*e[k]
		out.Maxs[k] = r.Maxs[k] + shift[k]*e[k]
	}
	return out
}

// PositiveNeighbors returns the three neighbors along the positive x, y, and
// z axes. Per spec.md §4.4 step 2, these are the only neighbors a Simulator
// needs to read watch sets from: the total order assigns reassignment
// responsibility to the larger-coordinate side, so a body crossing a face is
// always claimed by the higher neighbor.
func (r RegionBounds) PositiveNeighbors() [3]RegionBounds {
	return [3]RegionBounds{
		r.RelativeNeighbor([3]int64{1, 0, 0}),
		r.RelativeNeighbor([3]int64{0, 1, 0}),
		r.RelativeNeighbor([3]int64{0, 0, 1}),
	}
}

// String formats the region using the wire-schema form from spec.md §6.2:
// "{mnx}_{mny}_{mnz}__{mxx}_{mxy}_{mxz}".
func (r RegionBounds) String() string {
	return fmt.Sprintf("%d_%d_%d__%d_%d_%d", r.Mins[0], r.Mins[1], r.Mins[2], r.Maxs[0], r.Maxs[1], r.Maxs[2])
}

// ParseRegionBounds parses the wire-schema form produced by String.
func ParseRegionBounds(s string) (RegionBounds, error) {
	parts := strings.SplitN(s, "__", 2)
	if len(parts) != 2 {
		return RegionBounds{}, fmt.Errorf("geom: malformed region string %q", s)
	}
	mins, err := parseTriple(parts[0])
	if err != nil {
		return RegionBounds{}, err
	}
	maxs, err := parseTriple(parts[1])
	if err != nil {
		return RegionBounds{}, err
	}
	return RegionBounds{Mins: mins, Maxs: maxs}, nil
}

func parseTriple(s string) ([3]int64, error) {
	fields := strings.Split(s, "_")
	if len(fields) != 3 {
		return [3]int64{}, fmt.Errorf("geom: malformed region component %q", s)
	}
	var out [3]int64
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return [3]int64{}, err
		}
		out[i] = v
	}
	return out, nil
}

// SubdivideWidestAxis repeatedly median-splits bounds on its widest
// horizontal axis (x or z) until there are n leaves. Used by the Master to
// divide a scene's bounding box among its registered child coordinators
// (spec.md §4.1 create_scene).
func SubdivideWidestAxis(bounds AABB, n int) []AABB {
	boxes := []AABB{bounds}
	for len(boxes) < n {
		// Split the largest box on its widest horizontal axis.
		widest := 0
		for i, b := range boxes {
			if boxVolumeProxy(b) > boxVolumeProxy(boxes[widest]) {
				widest = i
			}
		}
		b := boxes[widest]
		dx := b.Maxs.X - b.Mins.X
		dz := b.Maxs.Z - b.Mins.Z
		var left, right AABB
		if dx >= dz {
			mid := (b.Mins.X + b.Maxs.X) / 2.0
			left = AABB{Mins: b.Mins, Maxs: Vector{mid, b.Maxs.Y, b.Maxs.Z}}
			right = AABB{Mins: Vector{mid, b.Mins.Y, b.Mins.Z}, Maxs: b.Maxs}
		} else {
			mid := (b.Mins.Z + b.Maxs.Z) / 2.0
			left = AABB{Mins: b.Mins, Maxs: Vector{b.Maxs.X, b.Maxs.Y, mid}}
			right = AABB{Mins: Vector{b.Mins.X, b.Mins.Y, mid}, Maxs: b.Maxs}
		}
		boxes[widest] = left
		boxes = append(boxes, right)
	}
	return boxes
}

func boxVolumeProxy(b AABB) float64 {
	return (b.Maxs.X - b.Mins.X) * (b.Maxs.Z - b.Mins.Z)
}
