// Package simulator implements the Region Simulator of spec.md §4.4 — the
// "hard core" of the system: the per-tick loop that integrates one grid
// cell's bodies, reads neighbor boundary state, elects new owners for
// components that have drifted across a face, and migrates them.
package simulator

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/physics"
	"github.com/mwindels/steadyum-go/internal/spatial"
)

// substepsPerTick is N from spec.md §4.4 step 5.
const substepsPerTick = 10

// sleepVelocityEpsilon is the heuristic threshold below which a dynamic
// body is considered asleep; the physics-engine contract (spec.md §6.3) is
// silent on the exact sleeping criterion, so this mirrors the common
// linear+angular velocity threshold real solvers use.
const sleepVelocityEpsilon = 1e-3

// Link is everything a Simulator needs from its owning Region Worker: the
// watch-set read path, migration dispatch (local or remote), watch/client
// snapshot publication, and ack delivery. Implemented by internal/worker.
type Link interface {
	// ReadWatch returns the watch set last published by region's owner,
	// or an empty set if none has been published yet (spec.md §7 kind 5).
	ReadWatch(ctx context.Context, region geom.RegionBounds) (model.WatchedObjects, error)

	// Migrate lazily resolves target's owning Simulator (calling
	// assign_runner on first contact) and posts an AssignIsland message
	// to it.
	Migrate(ctx context.Context, scene ids.SceneID, target geom.RegionBounds, bodies []model.BodyAssignment, joints []model.JointAssignment) error

	// PublishWatch stores this region's watch set for neighbors to read.
	PublishWatch(region geom.RegionBounds, objects model.WatchedObjects)

	// PublishClientSnapshot stores this region's client snapshot for
	// observers to read, filed under the step it reports (not necessarily
	// the Worker's own last-seen MsgStep, since an out-of-band
	// sync_client_objects reports the Simulator's own last completed step).
	PublishClientSnapshot(region geom.RegionBounds, step uint64, objects model.ClientBodyObjectSet)

	// Ack notifies the Worker that this Simulator completed its current
	// step.
	Ack(ctx context.Context, region geom.RegionBounds) error

	// StaticBodies returns a snapshot of the scene's static body list.
	StaticBodies() []model.BodyAssignment
}

// Simulator owns one grid cell and runs its tick loop on its own goroutine,
// mirroring "each Region Simulator runs on its own OS thread" (spec.md §5).
type Simulator struct {
	Region geom.RegionBounds
	Scene  ids.SceneID
	Engine physics.Engine
	Link   Link
	Cfg    config.Config

	inbox chan model.RunnerMessage

	mu                 sync.Mutex
	pendingAssignments []model.BodyAssignment
	pendingJoints      []model.JointAssignment
	insertedStatic     map[ids.BodyUUID]bool
	sleepStart         map[ids.BodyUUID]uint64
	simTimeSec         float64
	currentStep        uint64
	killed             bool
}

// New constructs a Simulator owning region, initially empty.
func New(region geom.RegionBounds, scene ids.SceneID, engine physics.Engine, link Link, cfg config.Config) *Simulator {
	return &Simulator{
		Region:         region,
		Scene:          scene,
		Engine:         engine,
		Link:           link,
		Cfg:            cfg,
		inbox:          make(chan model.RunnerMessage, 256),
		insertedStatic: make(map[ids.BodyUUID]bool),
		sleepStart:     make(map[ids.BodyUUID]uint64),
	}
}

// Post delivers a message to this Simulator's buffered inbox; it blocks
// only while the inbox is full.
func (s *Simulator) Post(msg model.RunnerMessage) {
	s.inbox <- msg
}

// Run processes inbox messages until ctx is canceled or an Exit message is
// observed, ticking once per Step message.
func (s *Simulator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.inbox:
			if done, err := s.handle(ctx, msg); done || err != nil {
				return err
			}
			// An Exit drained during a tick ends the loop once that tick
			// has finished.
			s.mu.Lock()
			killed := s.killed
			s.mu.Unlock()
			if killed {
				return nil
			}
		}
	}
}

func (s *Simulator) handle(ctx context.Context, msg model.RunnerMessage) (done bool, err error) {
	switch msg.Kind {
	case model.MsgExit:
		s.mu.Lock()
		s.killed = true
		s.mu.Unlock()
		return true, nil
	case model.MsgAssignIsland:
		s.mu.Lock()
		s.pendingAssignments = append(s.pendingAssignments, msg.Bodies...)
		s.pendingJoints = append(s.pendingJoints, msg.Joints...)
		s.mu.Unlock()
		return false, nil
	case model.MsgAssignStaticBodies:
		s.mu.Lock()
		for _, b := range msg.Bodies {
			if !s.insertedStatic[b.UUID] {
				s.pendingAssignments = append(s.pendingAssignments, b)
				s.insertedStatic[b.UUID] = true
			}
		}
		s.mu.Unlock()
		return false, nil
	case model.MsgSyncClientObjects:
		// Unlike the tick path, nothing has resolved s.pendingAssignments
		// yet here, so a sync requested right after an insert_objects would
		// otherwise omit bodies that haven't reached the engine; include
		// them directly in the published snapshot instead (mirrors the
		// original's compute_client_objects(&mut sim_state,
		// &pending_assignments) on its out-of-band sync path). Sync carries
		// no step of its own, so this reports against the last tick this
		// Simulator completed.
		s.mu.Lock()
		pending := append([]model.BodyAssignment(nil), s.pendingAssignments...)
		step := s.currentStep
		s.mu.Unlock()
		s.publishClientSnapshot(step, pending)
		return false, nil
	case model.MsgStep:
		return false, s.tick(ctx, msg.StepID)
	default:
		return false, nil
	}
}

// tick runs steps 1-10 of spec.md §4.4 for step k.
func (s *Simulator) tick(ctx context.Context, k uint64) error {
	s.mu.Lock()
	s.currentStep = k
	s.mu.Unlock()

	// Step 1 — drain any further non-Step messages that arrived alongside
	// this Step before committing to the tick's view of pending state.
	s.drainNonBlocking()

	// Step 2 — read the three positive-axis neighbors' watch sets.
	neighbors := s.Region.PositiveNeighbors()
	watchOwner := make(map[ids.BodyUUID]geom.RegionBounds)
	var entries []spatial.Entry
	for _, n := range neighbors {
		wo, err := s.Link.ReadWatch(ctx, n)
		if err != nil {
			// Missing watch set (spec.md §7 kind 5): treated as empty.
			continue
		}
		for _, e := range wo.Objects {
			watchOwner[e.UUID] = n
			entries = append(entries, spatial.Entry{UUID: e.UUID, AABB: e.SweptAABB})
		}
	}

	// Step 3 — materialize the watch index.
	watchIndex := spatial.Build(entries)

	// Step 4 — resolve pending assignments.
	s.resolvePending(k)

	// Step 5 — step the physics engine N substeps.
	dt := s.Cfg.StepInterval.Seconds() / float64(substepsPerTick)
	if dt <= 0 {
		dt = 0.002
	}
	out, err := s.Engine.Step(ctx, physics.StepInput{
		Gravity:    geom.Vector{Y: -9.81},
		DT:         dt,
		Substeps:   substepsPerTick,
		SimTimeSec: s.simTimeSec,
	})
	if err != nil {
		return fmt.Errorf("simulator %s: step %d: %w", s.Region, k, err)
	}
	s.simTimeSec += dt * float64(substepsPerTick)

	bodiesByUUID := make(map[ids.BodyUUID]physics.Body)
	for _, b := range s.Engine.Bodies() {
		bodiesByUUID[b.UUID] = b
	}

	// Step 6 — connected components, already computed by the engine.
	// Step 7 — region election per component.
	migrations := make(map[geom.RegionBounds][]ids.BodyUUID)
	for _, comp := range out.Components {
		elected := geom.Smallest()
		for _, u := range comp.Bodies {
			b, ok := bodiesByUUID[u]
			if !ok {
				continue
			}
			candidate := s.electCandidate(u, b, watchOwner, watchIndex)
			elected = geom.Max(elected, candidate)
		}
		if !elected.Equal(s.Region) {
			migrations[elected] = append(migrations[elected], comp.Bodies...)
		}
	}

	// Step 8 — migrate.
	if err := s.migrate(ctx, k, migrations, bodiesByUUID); err != nil {
		return err
	}
	for region := range migrations {
		for _, u := range migrations[region] {
			delete(bodiesByUUID, u)
		}
	}

	// Step 9 — publish watch set and client snapshot.
	s.publishWatch(migrations, bodiesByUUID)
	s.publishClientSnapshot(k, nil)

	// Step 10 — ack.
	return s.Link.Ack(ctx, s.Region)
}

func (s *Simulator) drainNonBlocking() {
	for {
		select {
		case msg := <-s.inbox:
			s.handle(context.Background(), msg)
		default:
			return
		}
	}
}

// electCandidate implements spec.md §4.4 step 7 for a single body.
func (s *Simulator) electCandidate(u ids.BodyUUID, b physics.Body, watchOwner map[ids.BodyUUID]geom.RegionBounds, watchIndex *spatial.Index) geom.RegionBounds {
	var candidate geom.RegionBounds
	if owner, ok := watchOwner[u]; ok {
		candidate = owner
	} else {
		aabb := bodyAABB(b)
		hits := watchIndex.Query(aabb)
		if len(hits) == 0 {
			candidate = geom.FromAABB(aabb, s.Cfg.RegionWidth)
		} else {
			candidate = geom.Smallest()
			for _, h := range hits {
				if region, ok := watchOwner[h.UUID]; ok {
					candidate = geom.Max(candidate, region)
				}
			}
		}
	}

	if candidate.Less(s.Region) && b.State.SendbackDelay < s.Cfg.SendbackDelayLimit {
		s.bumpSendbackDelay(u)
		return s.Region
	}
	return candidate
}

func (s *Simulator) bumpSendbackDelay(u ids.BodyUUID) {
	body, ok := s.bodyState(u)
	if !ok {
		return
	}
	body.State.SendbackDelay++
	s.Engine.InsertBody(body)
}

func (s *Simulator) bodyState(u ids.BodyUUID) (physics.Body, bool) {
	for _, b := range s.Engine.Bodies() {
		if b.UUID == u {
			return b, true
		}
	}
	return physics.Body{}, false
}

func bodyAABB(b physics.Body) geom.AABB {
	r := b.Radius
	if r <= 0 {
		r = 1
	}
	half := geom.Vector{X: r, Y: r, Z: r}
	return geom.AABB{Mins: b.State.Position.Sub(half), Maxs: b.State.Position.Add(half)}
}

func sweptAABB(b physics.Body, dt float64) geom.AABB {
	cur := bodyAABB(b)
	future := geom.AABB{
		Mins: cur.Mins.Add(b.State.LinVel.Scale(dt)),
		Maxs: cur.Maxs.Add(b.State.LinVel.Scale(dt)),
	}
	return cur.Merge(future)
}

// resolvePending implements spec.md §4.4 step 4.
func (s *Simulator) resolvePending(currentStep uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stillPending []model.BodyAssignment
	for _, a := range s.pendingAssignments {
		if a.Warm.Timestamp > currentStep {
			stillPending = append(stillPending, a)
			continue
		}
		s.Engine.RemoveBody(a.UUID)
		radius := boundingRadius(a.Cold.Shape)
		s.Engine.InsertBody(physics.Body{UUID: a.UUID, Cold: a.Cold, State: a.Warm, Group: physics.GroupBody, Radius: radius})
		s.Engine.InsertBody(physics.Body{UUID: a.UUID, Cold: a.Cold, State: a.Warm, Group: physics.GroupWatchSensor, Radius: radius * 1.1})
	}
	s.pendingAssignments = stillPending

	for _, j := range s.pendingJoints {
		s.Engine.AttachJoint(physics.Joint{A: j.BodyA, B: j.BodyB, Anchor: j.Anchor})
	}
	s.pendingJoints = nil
}

func boundingRadius(sh model.Shape) float64 {
	switch sh.Kind {
	case model.ShapeSphere:
		return sh.Radius
	case model.ShapeBox:
		return sh.Half.Len()
	case model.ShapeMesh:
		best := 0.0
		if sh.Mesh != nil {
			for _, v := range sh.Mesh.Vertices {
				d := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
				if d > best {
					best = d
				}
			}
		}
		if best == 0 {
			best = 1
		}
		return best
	default:
		return 1
	}
}

// migrate implements spec.md §4.4 step 8.
func (s *Simulator) migrate(ctx context.Context, k uint64, migrations map[geom.RegionBounds][]ids.BodyUUID, bodiesByUUID map[ids.BodyUUID]physics.Body) error {
	for region, uuids := range migrations {
		assignments := make([]model.BodyAssignment, 0, len(uuids))
		var joints []model.JointAssignment
		for _, u := range uuids {
			b, ok := bodiesByUUID[u]
			if !ok {
				continue
			}
			warm := b.State
			warm.Timestamp = k
			assignments = append(assignments, model.BodyAssignment{UUID: u, Cold: b.Cold, Warm: warm})
		}
		for _, j := range s.Engine.Joints() {
			if containsUUID(uuids, j.A) || containsUUID(uuids, j.B) {
				joints = append(joints, model.JointAssignment{BodyA: j.A, BodyB: j.B, Anchor: j.Anchor})
			}
		}
		if err := s.Link.Migrate(ctx, s.Scene, region, assignments, joints); err != nil {
			return fmt.Errorf("simulator %s: migrate to %s: %w", s.Region, region, err)
		}
		for _, u := range uuids {
			s.Engine.RemoveBody(u)
		}
	}
	return nil
}

func containsUUID(list []ids.BodyUUID, u ids.BodyUUID) bool {
	for _, x := range list {
		if x == u {
			return true
		}
	}
	return false
}

// publishWatch implements spec.md §4.4 step 9's watch-set half.
func (s *Simulator) publishWatch(migrations map[geom.RegionBounds][]ids.BodyUUID, bodiesByUUID map[ids.BodyUUID]physics.Body) {
	migratingOut := make(map[ids.BodyUUID]bool)
	for _, uuids := range migrations {
		for _, u := range uuids {
			migratingOut[u] = true
		}
	}

	dt := s.Cfg.StepInterval.Seconds()
	myAABB := s.Region.AABB()
	var entries []model.WatchEntry
	for u, b := range bodiesByUUID {
		if b.Cold.BodyType != model.BodyDynamic || migratingOut[u] {
			continue
		}
		swept := sweptAABB(b, dt)
		if myAABB.Contains(swept) {
			continue
		}
		entries = append(entries, model.WatchEntry{UUID: u, SweptAABB: swept})
	}
	s.Link.PublishWatch(s.Region, model.WatchedObjects{Objects: entries})
}

// publishClientSnapshot implements spec.md §4.4 step 9's client-snapshot
// half, tracking per-body sleep_start_frame. pending carries bodies queued
// in s.pendingAssignments but not yet resolved into the engine: the tick
// path always passes nil, since step 4 (resolvePending) has already run by
// the time step 9 publishes; the out-of-band sync_client_objects handler
// passes its current pending list so a just-inserted body isn't invisible
// until the next tick.
func (s *Simulator) publishClientSnapshot(step uint64, pending []model.BodyAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var objs []model.ClientBody
	for _, b := range s.Engine.Bodies() {
		if b.Cold.BodyType != model.BodyDynamic && b.Cold.BodyType != model.BodyKinematic {
			continue
		}
		asleep := b.State.LinVel.Len() < sleepVelocityEpsilon && b.State.AngVel.Len() < sleepVelocityEpsilon
		var sleepStart *uint64
		if asleep {
			start, ok := s.sleepStart[b.UUID]
			if !ok {
				start = step
				s.sleepStart[b.UUID] = start
			}
			startCopy := start
			sleepStart = &startCopy
		} else {
			delete(s.sleepStart, b.UUID)
		}
		objs = append(objs, model.ClientBody{
			UUID:            b.UUID,
			Position:        b.State.Position,
			Shape:           b.Cold.Shape,
			BodyType:        b.Cold.BodyType,
			SleepStartFrame: sleepStart,
		})
	}
	for _, a := range pending {
		if a.Cold.BodyType != model.BodyDynamic && a.Cold.BodyType != model.BodyKinematic {
			continue
		}
		objs = append(objs, model.ClientBody{
			UUID:     a.UUID,
			Position: a.Warm.Position,
			Shape:    a.Cold.Shape,
			BodyType: a.Cold.BodyType,
		})
	}

	snapshot := model.ClientBodyObjectSet{Timestamp: step * substepsPerTick, Objects: objs}
	s.Link.PublishClientSnapshot(s.Region, step, snapshot)
}
