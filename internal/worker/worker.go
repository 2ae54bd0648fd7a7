// Package worker implements the Region Worker of spec.md §4.3: one process
// per (scene, host) multiplexing many Region Simulators, serving watch-set
// and client-snapshot queries, and routing migration messages.
package worker

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/mwindels/steadyum-go/internal/codec"
	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/keys"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/physics"
	"github.com/mwindels/steadyum-go/internal/simulator"
	"github.com/mwindels/steadyum-go/internal/transport"
)

// EngineFactory constructs a fresh physics.Engine for a newly created
// Region Simulator; production code passes physics.NewStub until a real
// solver is wired in.
type EngineFactory func() physics.Engine

// AssignRunner resolves the Worker that owns region via the Master/Child
// chain, per spec.md §4.1 assign_runner. That chain looks up the Worker a
// Child already spawned at create_scene; it does not spawn one. It returns
// the target's network address and Worker UUID.
type AssignRunner func(ctx context.Context, scene ids.SceneID, region geom.RegionBounds) (addr string, worker ids.WorkerID, err error)

// AckParent notifies the owning Child that this Worker has completed its
// current step.
type AckParent func(ctx context.Context) error

// resolved caches a region's owning endpoint, distinguishing the common
// case (owned locally, by this very process) from a remote Worker.
type resolved struct {
	local  bool
	addr   string
	worker ids.WorkerID
}

// Worker hosts every Region Simulator for one (scene, host) pair.
type Worker struct {
	Scene  ids.SceneID
	Self   ids.WorkerID
	Addr   string
	Node   *transport.Node
	Cfg    config.Config
	Engine EngineFactory

	AssignRunner AssignRunner
	AckParent    AckParent

	mu         sync.Mutex
	sims       map[geom.RegionBounds]*simulator.Simulator
	cancels    map[geom.RegionBounds]context.CancelFunc
	directory  map[geom.RegionBounds]resolved
	staticBody []model.BodyAssignment

	watchSets  map[geom.RegionBounds][]byte
	clientSets map[geom.RegionBounds]map[uint64][]byte

	pending int
}

// New constructs an empty Worker; call Serve to start accepting transport
// calls.
func New(scene ids.SceneID, self ids.WorkerID, addr string, cfg config.Config, engine EngineFactory, assignRunner AssignRunner, ackParent AckParent) *Worker {
	return &Worker{
		Scene:        scene,
		Self:         self,
		Addr:         addr,
		Cfg:          cfg,
		Engine:       engine,
		AssignRunner: assignRunner,
		AckParent:    ackParent,
		sims:         make(map[geom.RegionBounds]*simulator.Simulator),
		cancels:      make(map[geom.RegionBounds]context.CancelFunc),
		directory:    make(map[geom.RegionBounds]resolved),
		watchSets:    make(map[geom.RegionBounds][]byte),
		clientSets:   make(map[geom.RegionBounds]map[uint64][]byte),
	}
}

// Serve starts this Worker's transport node, blocking until ctx is
// canceled.
func (w *Worker) Serve(ctx context.Context) error {
	w.Node = transport.NewNode(w)
	return w.Node.Serve(ctx, w.Addr)
}

// ensureSimulator lazily creates the Simulator owning region, per spec.md
// §4.3's "Region Simulator: created lazily the first time a body is
// assigned to its region."
func (w *Worker) ensureSimulator(region geom.RegionBounds) *simulator.Simulator {
	w.mu.Lock()
	defer w.mu.Unlock()
	if sim, ok := w.sims[region]; ok {
		return sim
	}
	sim := simulator.New(region, w.Scene, w.Engine(), w, w.Cfg)
	w.sims[region] = sim
	w.directory[region] = resolved{local: true}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancels[region] = cancel
	go func() {
		if err := sim.Run(ctx); err != nil {
			log.Printf("worker: simulator %s exited: %v\n", region, err)
		}
	}()

	if len(w.staticBody) > 0 {
		sim.Post(model.AssignStaticBodies(w.Scene, append([]model.BodyAssignment(nil), w.staticBody...)))
	}
	return sim
}

// HandlePublish implements transport.Handler for the command-queue key
// runner/{worker_uuid}.
func (w *Worker) HandlePublish(key string, payload []byte) error {
	var msg model.RunnerMessage
	if err := codec.Decode(payload, &msg); err != nil {
		return fmt.Errorf("worker: decode runner message: %w", err)
	}
	return w.Dispatch(msg)
}

// Dispatch routes an in-process or transport-delivered RunnerMessage to the
// right Simulator(s).
func (w *Worker) Dispatch(msg model.RunnerMessage) error {
	switch msg.Kind {
	case model.MsgAssignIsland:
		w.ensureSimulator(msg.Region).Post(msg)
	case model.MsgAssignStaticBodies:
		w.mu.Lock()
		w.staticBody = append(w.staticBody, msg.Bodies...)
		sims := make([]*simulator.Simulator, 0, len(w.sims))
		for _, s := range w.sims {
			sims = append(sims, s)
		}
		w.mu.Unlock()
		for _, s := range sims {
			s.Post(msg)
		}
	case model.MsgStep:
		w.mu.Lock()
		sims := make([]*simulator.Simulator, 0, len(w.sims))
		for _, s := range w.sims {
			sims = append(sims, s)
		}
		w.pending = len(sims)
		w.mu.Unlock()
		if len(sims) == 0 {
			return w.AckParent(context.Background())
		}
		for _, s := range sims {
			s.Post(msg)
		}
	case model.MsgSyncClientObjects:
		w.mu.Lock()
		sims := make([]*simulator.Simulator, 0, len(w.sims))
		for _, s := range w.sims {
			sims = append(sims, s)
		}
		w.mu.Unlock()
		for _, s := range sims {
			s.Post(msg)
		}
	case model.MsgExit:
		w.mu.Lock()
		sims := make([]*simulator.Simulator, 0, len(w.sims))
		for _, s := range w.sims {
			sims = append(sims, s)
		}
		w.mu.Unlock()
		for _, s := range sims {
			s.Post(msg)
		}
	case model.MsgAck:
		w.ack()
	}
	return nil
}

func (w *Worker) ack() {
	w.mu.Lock()
	w.pending--
	done := w.pending <= 0
	w.mu.Unlock()
	if done {
		if err := w.AckParent(context.Background()); err != nil {
			log.Printf("worker: ack parent: %v\n", err)
		}
	}
}

// HandleQuery implements transport.Handler for the watch-set and
// client-snapshot queryable keys, and the pool heartbeat key.
func (w *Worker) HandleQuery(key string) ([]byte, error) {
	if key == "steadyum/heartbeat" {
		return []byte("ok"), nil
	}
	if strings.HasPrefix(key, "steadyum/watch/") {
		region, err := parseRegionQuery(key)
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if data, ok := w.watchSets[region]; ok {
			return data, nil
		}
		return codec.Encode(model.WatchedObjects{})
	}
	if strings.HasPrefix(key, "steadyum/client_bodies/") {
		region, step, err := parseClientBodiesQuery(key)
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		byStep, ok := w.clientSets[region]
		if !ok {
			return codec.Encode(model.ClientBodyObjectSet{})
		}
		var latest uint64
		var latestData []byte
		for s, data := range byStep {
			if s >= step && (latestData == nil || s < latest) {
				latest, latestData = s, data
			}
		}
		if latestData == nil {
			return codec.Encode(model.ClientBodyObjectSet{})
		}
		var set model.ClientBodyObjectSet
		if err := codec.Decode(latestData, &set); err != nil {
			return nil, fmt.Errorf("worker: decode client snapshot for %s: %w", region, err)
		}
		return codec.Encode(set.FilterSleeping(step))
	}
	return nil, fmt.Errorf("worker: unrecognized query key %q", key)
}

func parseRegionQuery(key string) (geom.RegionBounds, error) {
	parts := strings.SplitN(key, "?", 2)
	if len(parts) != 2 {
		return geom.RegionBounds{}, fmt.Errorf("worker: malformed watch key %q", key)
	}
	return geom.ParseRegionBounds(parts[1])
}

func parseClientBodiesQuery(key string) (geom.RegionBounds, uint64, error) {
	parts := strings.SplitN(key, "?", 2)
	if len(parts) != 2 {
		return geom.RegionBounds{}, 0, fmt.Errorf("worker: malformed client_bodies key %q", key)
	}
	rest := strings.SplitN(parts[1], "&", 2)
	if len(rest) != 2 {
		return geom.RegionBounds{}, 0, fmt.Errorf("worker: malformed client_bodies key %q", key)
	}
	region, err := geom.ParseRegionBounds(rest[0])
	if err != nil {
		return geom.RegionBounds{}, 0, err
	}
	step, err := strconv.ParseUint(rest[1], 10, 64)
	if err != nil {
		return geom.RegionBounds{}, 0, err
	}
	return region, step, nil
}

// --- simulator.Link ---

func (w *Worker) resolve(ctx context.Context, region geom.RegionBounds) (resolved, error) {
	w.mu.Lock()
	if r, ok := w.directory[region]; ok {
		w.mu.Unlock()
		return r, nil
	}
	w.mu.Unlock()

	addr, worker, err := w.AssignRunner(ctx, w.Scene, region)
	if err != nil {
		return resolved{}, fmt.Errorf("worker: assign_runner(%s): %w", region, err)
	}
	r := resolved{local: addr == w.Addr, addr: addr, worker: worker}

	w.mu.Lock()
	w.directory[region] = r
	w.mu.Unlock()
	return r, nil
}

// ReadWatch implements simulator.Link.
func (w *Worker) ReadWatch(ctx context.Context, region geom.RegionBounds) (model.WatchedObjects, error) {
	r, err := w.resolve(ctx, region)
	if err != nil {
		return model.WatchedObjects{}, err
	}

	var data []byte
	if r.local {
		w.mu.Lock()
		data, _ = w.watchSets[region]
		w.mu.Unlock()
		if data == nil {
			return model.WatchedObjects{}, nil
		}
	} else {
		data, err = w.Node.QueryFrom(ctx, r.addr, keys.Watch(r.worker, region))
		if err != nil {
			return model.WatchedObjects{}, err
		}
	}

	var out model.WatchedObjects
	if err := codec.Decode(data, &out); err != nil {
		return model.WatchedObjects{}, err
	}
	return out, nil
}

// Migrate implements simulator.Link.
func (w *Worker) Migrate(ctx context.Context, scene ids.SceneID, target geom.RegionBounds, bodies []model.BodyAssignment, joints []model.JointAssignment) error {
	r, err := w.resolve(ctx, target)
	if err != nil {
		return err
	}
	msg := model.AssignIsland(scene, target, bodies, joints)
	if r.local {
		return w.Dispatch(msg)
	}
	payload, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	return w.Node.PublishTo(ctx, r.addr, keys.Runner(r.worker), payload)
}

// PublishWatch implements simulator.Link.
func (w *Worker) PublishWatch(region geom.RegionBounds, objects model.WatchedObjects) {
	data, err := codec.Encode(objects)
	if err != nil {
		log.Printf("worker: encode watch set for %s: %v\n", region, err)
		return
	}
	w.mu.Lock()
	w.watchSets[region] = data
	w.mu.Unlock()
}

// PublishClientSnapshot implements simulator.Link. It files the snapshot
// under the step the caller reports, not any step this Worker itself last
// broadcast: an out-of-band sync_client_objects publishes against the
// Simulator's own last completed tick, which a Worker-wide counter can't be
// trusted to reflect once more than one region is in flight.
func (w *Worker) PublishClientSnapshot(region geom.RegionBounds, step uint64, set model.ClientBodyObjectSet) {
	data, err := codec.Encode(set)
	if err != nil {
		log.Printf("worker: encode client snapshot for %s: %v\n", region, err)
		return
	}
	w.mu.Lock()
	if w.clientSets[region] == nil {
		w.clientSets[region] = make(map[uint64][]byte)
	}
	w.clientSets[region][step] = data
	w.mu.Unlock()
}

// Ack implements simulator.Link.
func (w *Worker) Ack(ctx context.Context, region geom.RegionBounds) error {
	w.Dispatch(model.Ack(w.Scene, region))
	return nil
}

// StaticBodies implements simulator.Link.
func (w *Worker) StaticBodies() []model.BodyAssignment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.BodyAssignment(nil), w.staticBody...)
}

// InsertObjects routes bodies to their owning Simulators by the region
// containing each body's position (geom.FromPoint), spawning Simulators lazily, per
// spec.md §4.2 insert_objects (called directly when the Child has already
// decided this Worker owns every region involved).
func (w *Worker) InsertObjects(bodies []model.BodyAssignment) {
	byRegion := make(map[geom.RegionBounds][]model.BodyAssignment)
	for _, b := range bodies {
		region := geom.FromPoint(b.Warm.Position, w.Cfg.RegionWidth)
		byRegion[region] = append(byRegion[region], b)
	}
	for region, group := range byRegion {
		w.ensureSimulator(region).Post(model.AssignIsland(w.Scene, region, group, nil))
	}
}

// Regions returns every region this Worker currently hosts a Simulator
// for.
func (w *Worker) Regions() []geom.RegionBounds {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]geom.RegionBounds, 0, len(w.sims))
	for r := range w.sims {
		out = append(out, r)
	}
	return out
}
