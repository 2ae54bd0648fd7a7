// Package master implements the Master coordinator of spec.md §4.1: scene
// creation/teardown, child registration, the step/ack fan-out tree, and
// assign_runner.
package master

import (
	"context"
	"fmt"
	"sync"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
)

// substepsPerTick mirrors internal/simulator's constant; client_input's
// step-limit formula (step_id/N + 2) is defined in terms of it.
const substepsPerTick = 10

// ChildClient is everything the Master needs to drive a registered child
// coordinator, abstracting over the HTTP control-plane hop (spec.md §6.1)
// so this package stays independently testable.
type ChildClient interface {
	CreateScene(ctx context.Context, childAddr string, scene ids.SceneID, bounds geom.AABB) (ids.WorkerID, error)
	RemoveScene(ctx context.Context, childAddr string, scene ids.SceneID) error
	Step(ctx context.Context, childAddr string, scene ids.SceneID, stepID uint64) error
	WorkerFor(ctx context.Context, childAddr string, scene ids.SceneID) (addr string, worker ids.WorkerID, err error)
	InsertObjects(ctx context.Context, childAddr string, scene ids.SceneID, bodies []model.BodyAssignment) error
}

type assignment struct {
	addr   string
	worker ids.WorkerID
}

type sceneState struct {
	childrenBounds []geom.AABB
	assignments    map[geom.RegionBounds]assignment
	pending        int
	step           uint64
	limit          uint64
}

// Master coordinates every child for every active scene.
type Master struct {
	Client ChildClient

	mu       sync.Mutex
	children []string
	scenes   map[ids.SceneID]*sceneState
}

// New constructs an empty Master.
func New(client ChildClient) *Master {
	return &Master{Client: client, scenes: make(map[ids.SceneID]*sceneState)}
}

// RegisterChild appends a child endpoint. Children registered after
// create_scene for a given scene do not participate in it.
func (m *Master) RegisterChild(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.children {
		if c == addr {
			return
		}
	}
	m.children = append(m.children, addr)
}

// CreateScene subdivides bounds among every currently-registered child and
// calls create_scene on each, returning once all have answered.
func (m *Master) CreateScene(ctx context.Context, scene ids.SceneID, bounds geom.AABB) error {
	m.mu.Lock()
	if _, exists := m.scenes[scene]; exists {
		m.mu.Unlock()
		return nil
	}
	children := append([]string(nil), m.children...)
	m.mu.Unlock()

	if len(children) == 0 {
		m.mu.Lock()
		m.scenes[scene] = &sceneState{assignments: make(map[geom.RegionBounds]assignment)}
		m.mu.Unlock()
		return nil
	}

	subBoxes := geom.SubdivideWidestAxis(bounds, len(children))
	for i, addr := range children {
		if _, err := m.Client.CreateScene(ctx, addr, scene, subBoxes[i]); err != nil {
			return fmt.Errorf("master: create_scene on child %q: %w", addr, err)
		}
	}

	m.mu.Lock()
	m.scenes[scene] = &sceneState{childrenBounds: subBoxes, assignments: make(map[geom.RegionBounds]assignment)}
	m.mu.Unlock()
	return nil
}

// RemoveScene broadcasts to every registered child, then drops local
// state regardless of per-child failure. Idempotent.
func (m *Master) RemoveScene(ctx context.Context, scene ids.SceneID) error {
	m.mu.Lock()
	_, ok := m.scenes[scene]
	children := append([]string(nil), m.children...)
	delete(m.scenes, scene)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	for _, addr := range children {
		_ = m.Client.RemoveScene(ctx, addr, scene)
	}
	return nil
}

// ListScenes returns every active scene.
func (m *Master) ListScenes() []ids.SceneID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ids.SceneID, 0, len(m.scenes))
	for s := range m.scenes {
		out = append(out, s)
	}
	return out
}

// ListRegions returns every region this Master has resolved an assignment
// for within scene.
func (m *Master) ListRegions(scene ids.SceneID) []geom.RegionBounds {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scenes[scene]
	if !ok {
		return nil
	}
	out := make([]geom.RegionBounds, 0, len(st.assignments))
	for r := range st.assignments {
		out = append(out, r)
	}
	return out
}

// Step fans out a tick to every child participating in scene.
func (m *Master) Step(ctx context.Context, scene ids.SceneID, k uint64) error {
	m.mu.Lock()
	st, ok := m.scenes[scene]
	children := append([]string(nil), m.children...)
	if ok {
		st.pending = len(children)
		st.step = k
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("master: step: unknown scene %s", scene)
	}

	for _, addr := range children {
		if err := m.Client.Step(ctx, addr, scene, k); err != nil {
			return fmt.Errorf("master: step on child %q: %w", addr, err)
		}
	}
	return nil
}

// Ack decrements scene's pending counter. At zero, it emits the next step
// if the client-raised limit allows it, else marks the scene idle.
func (m *Master) Ack(ctx context.Context, scene ids.SceneID) error {
	m.mu.Lock()
	st, ok := m.scenes[scene]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("master: ack: unknown scene %s", scene)
	}
	st.pending--
	var next uint64
	advance := false
	if st.pending <= 0 && st.step < st.limit {
		next = st.step + 1
		advance = true
	}
	m.mu.Unlock()

	if advance {
		return m.Step(ctx, scene, next)
	}
	return nil
}

// ClientInput raises scene's step limit and starts stepping if the scene
// is currently idle. This is the sole mechanism that advances simulation
// time.
func (m *Master) ClientInput(ctx context.Context, scene ids.SceneID, stepID uint64) error {
	m.mu.Lock()
	st, ok := m.scenes[scene]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("master: client_input: unknown scene %s", scene)
	}
	newLimit := stepID/substepsPerTick + 2
	if newLimit > st.limit {
		st.limit = newLimit
	}
	shouldStep := st.pending <= 0 && st.step < st.limit
	next := st.step + 1
	m.mu.Unlock()

	if shouldStep {
		return m.Step(ctx, scene, next)
	}
	return nil
}

// AssignRunner is idempotent: it looks up scene+region in the assignment
// cache, and if absent, picks the child whose sub-AABB contains region's
// center (nearest by closed-AABB distance otherwise), asks that child for
// its Region Worker's endpoint, and records the result.
func (m *Master) AssignRunner(ctx context.Context, scene ids.SceneID, region geom.RegionBounds) (string, ids.WorkerID, error) {
	m.mu.Lock()
	st, ok := m.scenes[scene]
	if !ok {
		m.mu.Unlock()
		return "", ids.WorkerID{}, fmt.Errorf("master: assign_runner: unknown scene %s", scene)
	}
	if a, cached := st.assignments[region]; cached {
		m.mu.Unlock()
		return a.addr, a.worker, nil
	}
	childrenBounds := st.childrenBounds
	children := append([]string(nil), m.children...)
	m.mu.Unlock()

	if len(children) == 0 || len(childrenBounds) == 0 {
		return "", ids.WorkerID{}, fmt.Errorf("master: assign_runner: scene %s has no children", scene)
	}

	center := region.Center()
	best := 0
	bestDist := childrenBounds[0].DistanceToPoint(center)
	for i, b := range childrenBounds {
		if b.ContainsPoint(center) {
			best = i
			bestDist = 0
			break
		}
		if d := b.DistanceToPoint(center); d < bestDist {
			best, bestDist = i, d
		}
	}

	addr, worker, err := m.Client.WorkerFor(ctx, children[best], scene)
	if err != nil {
		return "", ids.WorkerID{}, fmt.Errorf("master: resolve worker on child %q: %w", children[best], err)
	}

	m.mu.Lock()
	st.assignments[region] = assignment{addr: addr, worker: worker}
	m.mu.Unlock()
	return addr, worker, nil
}

// InsertObjects forwards bodies to every registered child for scene; each
// child partitions dynamic bodies by region and always keeps the full
// static list so newly spawned Simulators can recreate them (spec.md
// §4.2).
func (m *Master) InsertObjects(ctx context.Context, scene ids.SceneID, bodies []model.BodyAssignment) error {
	m.mu.Lock()
	_, ok := m.scenes[scene]
	children := append([]string(nil), m.children...)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("master: insert_objects: unknown scene %s", scene)
	}
	if len(children) == 0 {
		return fmt.Errorf("master: insert_objects: scene %s has no children to host bodies", scene)
	}
	for _, addr := range children {
		if err := m.Client.InsertObjects(ctx, addr, scene, bodies); err != nil {
			return fmt.Errorf("master: insert_objects on child %q: %w", addr, err)
		}
	}
	return nil
}
