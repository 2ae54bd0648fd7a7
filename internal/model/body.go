// Package model defines the wire-level data model of spec.md §3: bodies,
// their cold/warm/client projections, watch entries, and the messages
// exchanged between Region Workers.
package model

import (
	"encoding/gob"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
)

func init() {
	gob.Register(ColdBody{})
	gob.Register(WarmBody{})
	gob.Register(ClientBody{})
	gob.Register(WatchEntry{})
	gob.Register(BodyAssignment{})
	gob.Register(Shape{})
	gob.Register(KinematicAnimation{})
}

// BodyType mirrors the dynamic/static/kinematic distinction rigid-body
// engines make; it decides whether a body ever migrates.
type BodyType uint8

const (
	BodyDynamic BodyType = iota
	BodyKinematic
	BodyStatic
)

// ShapeKind distinguishes the small set of collider shapes the cluster
// exchanges. Real geometry (meshes) is carried by Mesh when Kind ==
// ShapeMesh; this keeps the common sphere/box/half-space cases cheap to
// encode even though spec.md §3 accepts that shapes are re-sent on every
// migration.
type ShapeKind uint8

const (
	ShapeSphere ShapeKind = iota
	ShapeBox
	ShapeHalfSpace
	ShapeMesh
)

// Shape is the wire representation of a collider's geometry.
type Shape struct {
	Kind   ShapeKind
	Radius float64    // ShapeSphere
	Half   geom.Vector // ShapeBox half-extents
	Normal geom.Vector // ShapeHalfSpace outward normal
	Mesh   *Mesh       // ShapeMesh
}

// Mesh is a triangulated shape, loaded from an OBJ scene file by
// internal/scene and carried verbatim on every migration (spec.md §3:
// "Shape is sent on every migration; the implementation must accept this
// cost").
type Mesh struct {
	Vertices [][3]float64
	Indices  [][3]int
}

// KinematicAnimation describes a linear and angular Bézier-like curve a
// kinematic body follows, sampled at the current physics time (spec.md §4.4
// step 5).
type KinematicAnimation struct {
	LinearControlPoints  []geom.Vector
	AngularControlPoints []geom.Vector
	PeriodSeconds        float64
}

// Sample evaluates the animation's position and orientation offset at time
// t (seconds), wrapped to PeriodSeconds, using De Casteljau's algorithm over
// the control points.
func (k KinematicAnimation) Sample(t float64) (linear, angular geom.Vector) {
	if k.PeriodSeconds <= 0 || (len(k.LinearControlPoints) == 0 && len(k.AngularControlPoints) == 0) {
		return geom.Vector{}, geom.Vector{}
	}
	phase := tMod(t, k.PeriodSeconds) / k.PeriodSeconds
	return bezier(k.LinearControlPoints, phase), bezier(k.AngularControlPoints, phase)
}

func tMod(t, period float64) float64 {
	m := t - period*float64(int64(t/period))
	if m < 0 {
		m += period
	}
	return m
}

// bezier evaluates a Bézier curve of arbitrary degree at parameter u using
// De Casteljau's algorithm.
func bezier(points []geom.Vector, u float64) geom.Vector {
	if len(points) == 0 {
		return geom.Vector{}
	}
	work := make([]geom.Vector, len(points))
	copy(work, points)
	for lvl := len(work) - 1; lvl > 0; lvl-- {
		for i := 0; i < lvl; i++ {
			work[i] = work[i].Scale(1 - u).Add(work[i+1].Scale(u))
		}
	}
	return work[0]
}

// ColdBody is the immutable-per-migration descriptor of a body.
type ColdBody struct {
	BodyType   BodyType
	Density    float64
	Shape      Shape
	Animations KinematicAnimation
}

// WarmBody is the mutable physics state of a body, timestamped at the step
// it was captured so that future-dated migrations can be detected (spec.md
// §3, §7 kind 4).
type WarmBody struct {
	Timestamp uint64
	Position  geom.Vector
	Orient    geom.Vector // axis-angle orientation, scaled by angle in radians
	LinVel    geom.Vector
	AngVel    geom.Vector

	// SendbackDelay is the hysteresis counter of spec.md §4.4 step 7,
	// capped at config.SendbackDelayLimit (default 50). It travels with
	// the body across migrations so a body bouncing between two regions
	// doesn't reset its hysteresis every time it crosses.
	SendbackDelay uint32
}

// ClientBody is the snapshot published to viewers.
type ClientBody struct {
	UUID             ids.BodyUUID
	Position         geom.Vector
	Shape            Shape
	BodyType         BodyType
	SleepStartFrame  *uint64
}

// WatchEntry is a single swept-AABB entry in a region's published watch set.
type WatchEntry struct {
	UUID      ids.BodyUUID
	SweptAABB geom.AABB
}

// BodyAssignment bundles a body's identity with its cold and warm
// descriptors, as sent in an AssignIsland migration message.
type BodyAssignment struct {
	UUID ids.BodyUUID
	Cold ColdBody
	Warm WarmBody
}
