// Package child implements the Child coordinator of spec.md §4.2: one
// process per host that spawns a single Region Worker process per scene
// and mirrors the Master's operations at that level.
package child

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync"

	"github.com/mwindels/steadyum-go/internal/codec"
	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/keys"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/pool"
	"github.com/mwindels/steadyum-go/internal/transport"
)

// Spawner starts the Region Worker process for a scene and returns once it
// has begun listening; the real implementation execs the runner binary
// (grounded on original_source's steadyum-partitionner main.rs, which runs
// `Command::new(&CONFIG.runner_exe).args(["--uuid", ..., "--scene-uuid",
// ...]).spawn()` on create_scene).
type Spawner interface {
	Spawn(ctx context.Context, worker ids.WorkerID, scene ids.SceneID, addr string) (stop func(), err error)
}

// ExecSpawner spawns the runner binary named by config.Config.RunnerExe as
// a child OS process, passing the flags spec.md §6.5 defines for it, plus
// --addr and --parent-addr: since this rework dials peers directly over
// gRPC rather than the original's zenoh pub/sub, the spawned runner must be
// told both its own bind address and its parent Child's HTTP address.
type ExecSpawner struct {
	RunnerExe  string
	ParentAddr string
	Dev        bool
}

// Spawn implements Spawner.
func (e ExecSpawner) Spawn(ctx context.Context, worker ids.WorkerID, scene ids.SceneID, addr string) (func(), error) {
	args := []string{
		"--uuid", worker.String(),
		"--scene-uuid", scene.String(),
		"--addr", addr,
		"--parent-addr", e.ParentAddr,
	}
	if e.Dev {
		args = append(args, "--dev")
	}
	cmd := exec.CommandContext(ctx, e.RunnerExe, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("child: spawn runner %q: %w", e.RunnerExe, err)
	}
	return func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}, nil
}

// ResolveRunner resolves the Worker owning (scene, region), asking the
// Master (directly or over HTTP, depending on deployment) per spec.md §4.1
// assign_runner.
type ResolveRunner func(ctx context.Context, scene ids.SceneID, region geom.RegionBounds) (addr string, worker ids.WorkerID, err error)

// AckParent notifies the Master that this Child has finished its current
// step for a scene.
type AckParent func(ctx context.Context, scene ids.SceneID) error

type sceneState struct {
	worker   ids.WorkerID
	addr     string
	stop     func()
	pending  int
	regions  map[geom.RegionBounds]bool
}

// Child hosts one Region Worker process per active scene.
type Child struct {
	Cfg           config.Config
	Node          *transport.Node
	Spawner       Spawner
	ResolveRunner ResolveRunner
	AckParent     AckParent

	mu      sync.Mutex
	scenes  map[ids.SceneID]*sceneState
	workers *pool.Pool[ids.SceneID]
}

// New constructs an empty Child. Each scene's worker process is registered
// with a pool.Pool keyed by scene ID, adapted from the teacher's
// master/pool/pool.go worker pool, so a crashed runner is noticed and torn
// down the same way an explicit RemoveScene is (spec.md §7 kind 6), via
// missed heartbeats rather than only process-exit detection.
func New(cfg config.Config, node *transport.Node, spawner Spawner, resolve ResolveRunner, ackParent AckParent) *Child {
	c := &Child{
		Cfg:           cfg,
		Node:          node,
		Spawner:       spawner,
		ResolveRunner: resolve,
		AckParent:     ackParent,
		scenes:        make(map[ids.SceneID]*sceneState),
	}
	c.workers = pool.New(node, c.evictWorker)
	return c
}

// evictWorker tears down scene's Region Worker process: it fires both when
// RemoveScene asks for it and when the pool's heartbeat monitor notices the
// process died without telling anyone.
func (c *Child) evictWorker(addr string, scene ids.SceneID) {
	c.mu.Lock()
	st, ok := c.scenes[scene]
	if ok && st.addr == addr {
		delete(c.scenes, scene)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	payload, err := codec.Encode(model.Exit(scene))
	if err == nil {
		_ = c.Node.PublishTo(context.Background(), addr, keys.Runner(st.worker), payload)
	}
	if st.stop != nil {
		st.stop()
	}
}

// pickAddr reserves an ephemeral loopback port and immediately frees it for
// the about-to-be-spawned worker to bind.
func pickAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		return "", err
	}
	return addr, nil
}

// CreateScene spawns this child's one Region Worker process for scene, if
// one doesn't already exist, and returns its Worker UUID.
func (c *Child) CreateScene(ctx context.Context, scene ids.SceneID) (ids.WorkerID, error) {
	c.mu.Lock()
	if st, ok := c.scenes[scene]; ok {
		c.mu.Unlock()
		return st.worker, nil
	}
	c.mu.Unlock()

	addr, err := pickAddr()
	if err != nil {
		return ids.WorkerID{}, fmt.Errorf("child: allocate worker address: %w", err)
	}
	worker := ids.NewWorkerID()
	stop, err := c.Spawner.Spawn(ctx, worker, scene, addr)
	if err != nil {
		return ids.WorkerID{}, err
	}

	c.mu.Lock()
	c.scenes[scene] = &sceneState{worker: worker, addr: addr, stop: stop, regions: make(map[geom.RegionBounds]bool)}
	c.mu.Unlock()
	c.workers.Add(addr, scene)
	return worker, nil
}

// RemoveScene drops scene's worker through the same pool eviction path a
// missed heartbeat would take (evictWorker), which broadcasts Exit and
// stops the process. Idempotent.
func (c *Child) RemoveScene(ctx context.Context, scene ids.SceneID) error {
	c.mu.Lock()
	st, ok := c.scenes[scene]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.workers.Remove(st.addr)
	return nil
}

// InsertObjects routes bodies to their owning Region Worker, grouping by
// the region containing each body's position (geom.FromPoint(position, W);
// the body's swept AABB is not used) and resolving each group's owner
// through ResolveRunner (spec.md §4.2). Static bodies are
// always forwarded whole to this child's own worker, since the Master
// sends the same full static list to every child so newly spawned
// Simulators anywhere can recreate them.
func (c *Child) InsertObjects(ctx context.Context, scene ids.SceneID, bodies []model.BodyAssignment) error {
	c.mu.Lock()
	st, ok := c.scenes[scene]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("child: insert_objects: scene %s has no worker", scene)
	}

	var statics, dynamics []model.BodyAssignment
	for _, b := range bodies {
		if b.Cold.BodyType == model.BodyDynamic {
			dynamics = append(dynamics, b)
		} else {
			statics = append(statics, b)
		}
	}

	if len(statics) > 0 {
		payload, err := codec.Encode(model.AssignStaticBodies(scene, statics))
		if err != nil {
			return err
		}
		if err := c.Node.PublishTo(ctx, st.addr, keys.Runner(st.worker), payload); err != nil {
			return fmt.Errorf("child: broadcast static bodies: %w", err)
		}
	}

	byRegion := make(map[geom.RegionBounds][]model.BodyAssignment)
	for _, b := range dynamics {
		region := geom.FromPoint(b.Warm.Position, c.Cfg.RegionWidth)
		byRegion[region] = append(byRegion[region], b)
	}
	for region, group := range byRegion {
		addr, worker, err := c.ResolveRunner(ctx, scene, region)
		if err != nil {
			return fmt.Errorf("child: resolve_runner(%s, %s): %w", scene, region, err)
		}
		payload, err := codec.Encode(model.AssignIsland(scene, region, group, nil))
		if err != nil {
			return err
		}
		if err := c.Node.PublishTo(ctx, addr, keys.Runner(worker), payload); err != nil {
			return fmt.Errorf("child: assign_island to %s: %w", region, err)
		}
	}
	return nil
}

// Step fans out a tick to this child's one Region Worker for scene,
// setting pending to 1 (spec.md §4.2).
func (c *Child) Step(ctx context.Context, scene ids.SceneID, stepID uint64) error {
	c.mu.Lock()
	st, ok := c.scenes[scene]
	if ok {
		st.pending = 1
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("child: step: scene %s has no worker", scene)
	}

	payload, err := codec.Encode(model.Step(scene, stepID))
	if err != nil {
		return err
	}
	return c.Node.PublishTo(ctx, st.addr, keys.Runner(st.worker), payload)
}

// Ack decrements scene's pending counter; when it reaches zero, the child
// acks the Master.
func (c *Child) Ack(ctx context.Context, scene ids.SceneID) error {
	c.mu.Lock()
	st, ok := c.scenes[scene]
	done := false
	if ok {
		st.pending--
		done = st.pending <= 0
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("child: ack: scene %s has no worker", scene)
	}
	if done {
		return c.AckParent(ctx, scene)
	}
	return nil
}

// SyncClientObjects asks scene's worker to publish every Simulator's
// client snapshot immediately.
func (c *Child) SyncClientObjects(ctx context.Context, scene ids.SceneID) error {
	c.mu.Lock()
	st, ok := c.scenes[scene]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("child: sync_client_objects: scene %s has no worker", scene)
	}
	payload, err := codec.Encode(model.SyncClientObjects(scene))
	if err != nil {
		return err
	}
	return c.Node.PublishTo(ctx, st.addr, keys.Runner(st.worker), payload)
}

// WorkerFor returns the (addr, uuid) of scene's Region Worker, for the
// Master to learn child-owned endpoints when answering assign_runner.
func (c *Child) WorkerFor(scene ids.SceneID) (addr string, worker ids.WorkerID, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, found := c.scenes[scene]
	if !found {
		return "", ids.WorkerID{}, false
	}
	return st.addr, st.worker, true
}

// NoteRegion records that scene's region is now known to live on this
// child's worker, used so ListRegions can answer without an extra round
// trip to the worker process.
func (c *Child) NoteRegion(scene ids.SceneID, region geom.RegionBounds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.scenes[scene]; ok {
		st.regions[region] = true
	}
}

// ListRegions returns every region this child's worker for scene is known
// to host.
func (c *Child) ListRegions(scene ids.SceneID) []geom.RegionBounds {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.scenes[scene]
	if !ok {
		return nil
	}
	out := make([]geom.RegionBounds, 0, len(st.regions))
	for r := range st.regions {
		out = append(out, r)
	}
	return out
}
