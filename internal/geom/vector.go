// Package geom provides the geometric primitives shared by the master,
// coordinators, workers, and simulators: floating-point vectors for physics
// state, and the integer region grid that partitions simulation space.
package geom

import "math"

// Vector represents a vector (or point) in 3-dimensional physics space.
type Vector struct {
	X, Y, Z float64
}

// Add returns the sum of vectors a and b.
func (a Vector) Add(b Vector) Vector {
	return Vector{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

// Sub returns the difference of vectors a and b.
func (a Vector) Sub(b Vector) Vector {
	return Vector{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

// Scale returns the vector a multiplied by the scalar s.
func (a Vector) Scale(s float64) Vector {
	return Vector{s * a.X, s * a.Y, s * a.Z}
}

// Dot returns the dot product of the vectors a and b.
func (a Vector) Dot(b Vector) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// Cross returns the cross product of the vectors a and b.
func (a Vector) Cross(b Vector) Vector {
	return Vector{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

// Len returns the length of the vector a.
func (a Vector) Len() float64 {
	return math.Sqrt(a.Dot(a))
}

// Norm returns the normalized form of the vector a. The zero vector is
// returned unchanged.
func (a Vector) Norm() Vector {
	l := a.Len()
	if l == 0.0 {
		return a
	}
	return a.Scale(1.0 / l)
}

// Zero returns whether a is the zero vector.
func (a Vector) Zero() bool {
	return a.X == 0.0 && a.Y == 0.0 && a.Z == 0.0
}

// Min returns the component-wise minimum of a and b.
func (a Vector) Min(b Vector) Vector {
	return Vector{math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z)}
}

// Max returns the component-wise maximum of a and b.
func (a Vector) Max(b Vector) Vector {
	return Vector{math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z)}
}

// AABB is an axis-aligned bounding box in continuous physics space.
type AABB struct {
	Mins, Maxs Vector
}

// Merge returns the smallest AABB containing both a and b.
func (a AABB) Merge(b AABB) AABB {
	return AABB{Mins: a.Mins.Min(b.Mins), Maxs: a.Maxs.Max(b.Maxs)}
}

// Contains returns whether a fully contains b.
func (a AABB) Contains(b AABB) bool {
	return a.Mins.X <= b.Mins.X && a.Mins.Y <= b.Mins.Y && a.Mins.Z <= b.Mins.Z &&
		a.Maxs.X >= b.Maxs.X && a.Maxs.Y >= b.Maxs.Y && a.Maxs.Z >= b.Maxs.Z
}

// Intersects returns whether a and b overlap.
func (a AABB) Intersects(b AABB) bool {
	return a.Mins.X <= b.Maxs.X && a.Maxs.X >= b.Mins.X &&
		a.Mins.Y <= b.Maxs.Y && a.Maxs.Y >= b.Mins.Y &&
		a.Mins.Z <= b.Maxs.Z && a.Maxs.Z >= b.Mins.Z
}

// Center returns the midpoint of the box.
func (a AABB) Center() Vector {
	return a.Mins.Add(a.Maxs).Scale(0.5)
}

// ContainsPoint returns whether p lies within a's closed bounds.
func (a AABB) ContainsPoint(p Vector) bool {
	return p.X >= a.Mins.X && p.X <= a.Maxs.X &&
		p.Y >= a.Mins.Y && p.Y <= a.Maxs.Y &&
		p.Z >= a.Mins.Z && p.Z <= a.Maxs.Z
}

// DistanceToPoint returns the Euclidean distance from p to the nearest
// point of a's closed bounds (zero if p lies inside a), used by the
// Master to pick the nearest child sub-AABB when assign_runner's region
// center falls in no child's territory.
func (a AABB) DistanceToPoint(p Vector) float64 {
	clamped := Vector{
		X: math.Max(a.Mins.X, math.Min(p.X, a.Maxs.X)),
		Y: math.Max(a.Mins.Y, math.Min(p.Y, a.Maxs.Y)),
		Z: math.Max(a.Mins.Z, math.Min(p.Z, a.Maxs.Z)),
	}
	return p.Sub(clamped).Len()
}

// InvalidAABB returns an AABB suitable as the identity element of Merge: it
// contains nothing, and merging it with any valid box yields that box.
func InvalidAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Mins: Vector{inf, inf, inf},
		Maxs: Vector{-inf, -inf, -inf},
	}
}
