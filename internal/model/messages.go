package model

import (
	"encoding/gob"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
)

func init() {
	gob.Register(RunnerMessage{})
	gob.Register(WatchedObjects{})
	gob.Register(ClientBodyObjectSet{})
	gob.Register(JointAssignment{})
}

// MessageKind tags the fixed, compile-time-known set of messages a Region
// Worker (and, within it, a Region Simulator) can receive. Per Design Notes
// §9, this is modeled as a tagged variant rather than an interface
// hierarchy, since the set of cases never grows at runtime.
type MessageKind uint8

const (
	// MsgAssignIsland routes a migrated connected component to the
	// (lazily-created) Simulator owning Region.
	MsgAssignIsland MessageKind = iota
	// MsgAssignStaticBodies appends static (non-dynamic) bodies that every
	// Simulator in the scene must be able to recreate.
	MsgAssignStaticBodies
	// MsgStep broadcasts a tick to every Simulator.
	MsgStep
	// MsgSyncClientObjects asks every Simulator to publish its client
	// snapshot immediately, used when a new observer appears.
	MsgSyncClientObjects
	// MsgAck is posted by a Simulator to its owning Worker.
	MsgAck
	// MsgExit tells a Worker (and its Simulators) to terminate.
	MsgExit
)

// RunnerMessage is the single wire-level message type exchanged between
// Region Workers, and between a Worker and its Region Simulators.
type RunnerMessage struct {
	Kind MessageKind

	// MsgAssignIsland / MsgAssignStaticBodies
	Scene  ids.SceneID
	Region geom.RegionBounds
	Bodies []BodyAssignment
	Joints []JointAssignment

	// MsgStep
	StepID uint64

	// MsgAck
	FromRegion geom.RegionBounds
}

// JointAssignment describes an impulse joint migrated alongside its
// connected component.
type JointAssignment struct {
	BodyA, BodyB ids.BodyUUID
	Anchor       geom.Vector
}

// AssignIsland constructs a MsgAssignIsland message.
func AssignIsland(scene ids.SceneID, region geom.RegionBounds, bodies []BodyAssignment, joints []JointAssignment) RunnerMessage {
	return RunnerMessage{Kind: MsgAssignIsland, Scene: scene, Region: region, Bodies: bodies, Joints: joints}
}

// AssignStaticBodies constructs a MsgAssignStaticBodies message.
func AssignStaticBodies(scene ids.SceneID, bodies []BodyAssignment) RunnerMessage {
	return RunnerMessage{Kind: MsgAssignStaticBodies, Scene: scene, Bodies: bodies}
}

// Step constructs a MsgStep message.
func Step(scene ids.SceneID, stepID uint64) RunnerMessage {
	return RunnerMessage{Kind: MsgStep, Scene: scene, StepID: stepID}
}

// SyncClientObjects constructs a MsgSyncClientObjects message.
func SyncClientObjects(scene ids.SceneID) RunnerMessage {
	return RunnerMessage{Kind: MsgSyncClientObjects, Scene: scene}
}

// Ack constructs a MsgAck message.
func Ack(scene ids.SceneID, region geom.RegionBounds) RunnerMessage {
	return RunnerMessage{Kind: MsgAck, Scene: scene, FromRegion: region}
}

// Exit constructs a MsgExit message.
func Exit(scene ids.SceneID) RunnerMessage {
	return RunnerMessage{Kind: MsgExit, Scene: scene}
}

// WatchedObjects is the payload published at
// steadyum/watch/{worker_uuid}?{region_str}.
type WatchedObjects struct {
	Objects []WatchEntry
}

// ClientBodyObjectSet is the payload published at
// steadyum/client_bodies/{scene_uuid}?{region_str}&{step_id}.
type ClientBodyObjectSet struct {
	Timestamp uint64
	Objects   []ClientBody
}

// FilterSleeping drops bodies whose SleepStartFrame is set and less than
// step, per spec.md §3 and property P6.
func (s ClientBodyObjectSet) FilterSleeping(step uint64) ClientBodyObjectSet {
	out := ClientBodyObjectSet{Timestamp: s.Timestamp}
	for _, o := range s.Objects {
		if o.SleepStartFrame == nil || *o.SleepStartFrame >= step {
			out.Objects = append(out.Objects, o)
		}
	}
	return out
}
