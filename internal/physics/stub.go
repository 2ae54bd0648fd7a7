package physics

import (
	"context"
	"sync"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/spatial"
)

// Stub is a minimal, deterministic Engine. It integrates dynamic bodies
// with semi-implicit Euler under constant gravity, detects contacts via
// broad-phase AABB overlap (narrow-phase is out of scope per spec.md §1),
// and unions bodies sharing a contact or joint into components with
// union-find, the same structure the teacher uses to group its own
// spatial queries through an rtreego tree (shared/state/mesh.go).
//
// It is not a substitute for a real solver; it exists so the coordination
// protocol (migration, watch sets, acks) can be exercised end to end.
type Stub struct {
	mu sync.Mutex

	bodies  map[ids.BodyUUID]*Body
	sensors map[ids.BodyUUID]*Body
	joints  []Joint
}

// NewStub constructs an empty Stub engine.
func NewStub() *Stub {
	return &Stub{
		bodies:  make(map[ids.BodyUUID]*Body),
		sensors: make(map[ids.BodyUUID]*Body),
	}
}

func (s *Stub) InsertBody(b Body) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := b
	if b.Group == GroupWatchSensor {
		s.sensors[b.UUID] = &cp
	} else {
		s.bodies[b.UUID] = &cp
	}
}

func (s *Stub) RemoveBody(u ids.BodyUUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bodies, u)
	delete(s.sensors, u)
	kept := s.joints[:0]
	for _, j := range s.joints {
		if j.A != u && j.B != u {
			kept = append(kept, j)
		}
	}
	s.joints = kept
}

func (s *Stub) Bodies() []Body {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Body, 0, len(s.bodies))
	for _, b := range s.bodies {
		out = append(out, *b)
	}
	return out
}

func (s *Stub) AttachJoint(j Joint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joints = append(s.joints, j)
}

func (s *Stub) Joints() []Joint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Joint, len(s.joints))
	copy(out, s.joints)
	return out
}

func (s *Stub) PredictPosition(u ids.BodyUUID, dt float64) (geom.Vector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bodies[u]
	if !ok {
		return geom.Vector{}, false
	}
	return predict(*b, dt), true
}

func predict(b Body, dt float64) geom.Vector {
	return b.State.Position.Add(b.State.LinVel.Scale(dt))
}

// Step integrates every dynamic body in.Substeps times, evaluates
// kinematic animations for kinematic bodies, detects contacts via AABB
// overlap, and unions contacts and joints into connected components.
func (s *Stub) Step(ctx context.Context, in StepInput) (StepOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < in.Substeps; i++ {
		select {
		case <-ctx.Done():
			return StepOutput{}, ctx.Err()
		default:
		}
		t := in.SimTimeSec + float64(i)*in.DT
		s.substep(in, t)
	}

	contacts := s.broadPhaseContacts()
	components := s.unionComponents(contacts, in.DT*float64(in.Substeps))
	return StepOutput{Contacts: contacts, Components: components}, nil
}

func (s *Stub) substep(in StepInput, t float64) {
	for _, b := range s.bodies {
		switch b.Cold.BodyType {
		case model.BodyDynamic:
			b.State.LinVel = b.State.LinVel.Add(in.Gravity.Scale(in.DT))
			b.State.Position = b.State.Position.Add(b.State.LinVel.Scale(in.DT))
			b.State.Orient = b.State.Orient.Add(b.State.AngVel.Scale(in.DT))
		case model.BodyKinematic:
			linear, angular := b.Cold.Animations.Sample(t)
			b.State.Position = linear
			b.State.Orient = angular
		case model.BodyStatic:
			// never moves
		}
	}
}

func (s *Stub) aabbOf(b *Body) geom.AABB {
	r := b.Radius
	if r <= 0 {
		r = shapeRadius(b.Cold.Shape)
	}
	half := geom.Vector{X: r, Y: r, Z: r}
	return geom.AABB{Mins: b.State.Position.Sub(half), Maxs: b.State.Position.Add(half)}
}

func shapeRadius(sh model.Shape) float64 {
	switch sh.Kind {
	case model.ShapeSphere:
		return sh.Radius
	case model.ShapeBox:
		return sh.Half.Len()
	default:
		return 1
	}
}

func (s *Stub) broadPhaseContacts() []Contact {
	entries := make([]spatial.Entry, 0, len(s.bodies))
	order := make([]ids.BodyUUID, 0, len(s.bodies))
	for u, b := range s.bodies {
		entries = append(entries, spatial.Entry{UUID: u, AABB: s.aabbOf(b)})
		order = append(order, u)
	}
	idx := spatial.Build(entries)

	seen := make(map[[2]ids.BodyUUID]bool)
	var out []Contact
	for _, u := range order {
		hits := idx.Query(s.aabbOf(s.bodies[u]))
		for _, h := range hits {
			if h.UUID == u {
				continue
			}
			key := pairKey(u, h.UUID)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Contact{A: key[0], B: key[1]})
		}
	}
	return out
}

func pairKey(a, b ids.BodyUUID) [2]ids.BodyUUID {
	if a.String() < b.String() {
		return [2]ids.BodyUUID{a, b}
	}
	return [2]ids.BodyUUID{b, a}
}

// unionComponents groups bodies sharing a contact or joint via union-find,
// per spec.md §4.4 step 6, and computes each group's union swept AABB over
// sweepDT seconds using PredictPosition.
func (s *Stub) unionComponents(contacts []Contact, sweepDT float64) []Component {
	uf := newUnionFind()
	for u := range s.bodies {
		uf.add(u)
	}
	for _, c := range contacts {
		uf.union(c.A, c.B)
	}
	for _, j := range s.joints {
		uf.union(j.A, j.B)
	}

	groups := uf.groups()
	out := make([]Component, 0, len(groups))
	for _, members := range groups {
		swept := geom.InvalidAABB()
		for _, u := range members {
			b := s.bodies[u]
			cur := s.aabbOf(b)
			predicted := predict(*b, sweepDT)
			half := geom.Vector{X: cur.Maxs.X - b.State.Position.X, Y: cur.Maxs.Y - b.State.Position.Y, Z: cur.Maxs.Z - b.State.Position.Z}
			future := geom.AABB{Mins: predicted.Sub(half), Maxs: predicted.Add(half)}
			swept = swept.Merge(cur).Merge(future)
		}
		out = append(out, Component{Bodies: members, SweptAABB: swept})
	}
	return out
}
