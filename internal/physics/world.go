// Package physics defines the physics-engine contract spec.md §6.3 calls
// for (body/collider/joint sets, a stepping function, island detection,
// interaction groups, and predicted-position queries) and a minimal
// deterministic implementation of it. Region Simulators depend only on the
// Engine interface, never on this package's concrete type, so a real
// rigid-body solver can be substituted without touching simulator code.
package physics

import (
	"context"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
)

// Group tags a collider's interaction group. Watch sensors collide only
// with real bodies and never exert forces (spec.md §4.4 step 4).
type Group uint8

const (
	GroupBody Group = iota
	GroupWatchSensor
)

// Body is a single rigid body inside an Engine's world.
type Body struct {
	UUID  ids.BodyUUID
	Cold  model.ColdBody
	State model.WarmBody
	Group Group

	// Radius is the bounding-sphere radius used to size a body's watch
	// sensor; computed once at insertion from Cold.Shape.
	Radius float64
}

// Contact is a touching pair discovered during a step, used to build
// connected components (spec.md §4.4 step 6).
type Contact struct {
	A, B ids.BodyUUID
}

// Joint is an impulse joint between two bodies; joints always place their
// endpoints in the same connected component.
type Joint struct {
	A, B   ids.BodyUUID
	Anchor geom.Vector
}

// StepInput bundles the per-call inputs of Engine.Step: gravity, dt, the
// substep count, and the simulation time used to sample animations. The
// bodies, joints and broad-phase state of spec.md §6.3's step parameters
// live inside the Engine itself rather than in StepInput.
type StepInput struct {
	Gravity    geom.Vector
	DT         float64
	Substeps   int
	SimTimeSec float64
}

// StepOutput reports what happened during a Step call: the contacts that
// were touching, and the resulting connected components (spec.md §4.4
// step 6), each tagged with its swept AABB.
type StepOutput struct {
	Contacts   []Contact
	Components []Component
}

// Component is a connected set of bodies (sharing a contact or joint) with
// their union swept AABB over the step's duration.
type Component struct {
	Bodies   []ids.BodyUUID
	SweptAABB geom.AABB
}

// Engine is the contract a Region Simulator programs against. A real
// implementation would wrap a solver; Stub below is a minimal deterministic
// one sufficient to drive the coordination protocol end to end.
type Engine interface {
	// InsertBody adds (or replaces, by UUID) a body in the given
	// interaction group.
	InsertBody(b Body)

	// RemoveBody deletes a body and any sensor attached to it.
	RemoveBody(u ids.BodyUUID)

	// Bodies returns every body currently in group GroupBody (i.e. not a
	// watch sensor).
	Bodies() []Body

	// AttachJoint records an impulse joint between two bodies already in
	// the world.
	AttachJoint(j Joint)

	// Joints returns every currently attached joint.
	Joints() []Joint

	// PredictPosition returns where a body would be after dt seconds of
	// unconstrained integration from its current velocity (spec.md §6.3
	// predict_position_using_velocity_and_forces).
	PredictPosition(u ids.BodyUUID, dt float64) (geom.Vector, bool)

	// Step advances the world by in.Substeps discrete substeps of in.DT
	// each, sampling kinematic animations between substeps, and returns
	// the contacts observed and connected components found.
	Step(ctx context.Context, in StepInput) (StepOutput, error)
}
