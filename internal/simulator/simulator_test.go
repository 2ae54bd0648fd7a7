package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/physics"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	watchSets   map[geom.RegionBounds]model.WatchedObjects
	migrations  []migrateCall
	watches     []publishCall
	snapshots   []snapshotCall
	acks        int
	staticBodies []model.BodyAssignment
}

type migrateCall struct {
	target  geom.RegionBounds
	bodies  []model.BodyAssignment
	joints  []model.JointAssignment
}

type publishCall struct {
	region  geom.RegionBounds
	objects model.WatchedObjects
}

type snapshotCall struct {
	region geom.RegionBounds
	step   uint64
	set    model.ClientBodyObjectSet
}

func (f *fakeLink) ReadWatch(ctx context.Context, region geom.RegionBounds) (model.WatchedObjects, error) {
	return f.watchSets[region], nil
}

func (f *fakeLink) Migrate(ctx context.Context, scene ids.SceneID, target geom.RegionBounds, bodies []model.BodyAssignment, joints []model.JointAssignment) error {
	f.migrations = append(f.migrations, migrateCall{target: target, bodies: bodies, joints: joints})
	return nil
}

func (f *fakeLink) PublishWatch(region geom.RegionBounds, objects model.WatchedObjects) {
	f.watches = append(f.watches, publishCall{region: region, objects: objects})
}

func (f *fakeLink) PublishClientSnapshot(region geom.RegionBounds, step uint64, set model.ClientBodyObjectSet) {
	f.snapshots = append(f.snapshots, snapshotCall{region: region, step: step, set: set})
}

func (f *fakeLink) Ack(ctx context.Context, region geom.RegionBounds) error {
	f.acks++
	return nil
}

func (f *fakeLink) StaticBodies() []model.BodyAssignment {
	return f.staticBodies
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.StepInterval = 100 * time.Millisecond
	cfg.RegionWidth = 100
	return cfg
}

func TestTickInsertsPendingAndAcks(t *testing.T) {
	region := geom.RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}
	scene := ids.NewSceneID()
	engine := physics.NewStub()
	link := &fakeLink{watchSets: map[geom.RegionBounds]model.WatchedObjects{}}
	sim := New(region, scene, engine, link, testConfig())

	u := ids.NewBodyUUID()
	sim.Post(model.AssignIsland(scene, region, []model.BodyAssignment{
		{UUID: u, Cold: model.ColdBody{BodyType: model.BodyStatic, Shape: model.Shape{Kind: model.ShapeSphere, Radius: 1}}, Warm: model.WarmBody{Position: geom.Vector{X: 50, Y: 50, Z: 50}}},
	}, nil))

	require.NoError(t, sim.tick(context.Background(), 0))
	require.Equal(t, 1, link.acks)
	require.Len(t, engine.Bodies(), 1)
}

func TestTickMigratesBodyOutOfRegion(t *testing.T) {
	region := geom.RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}
	scene := ids.NewSceneID()
	engine := physics.NewStub()
	link := &fakeLink{watchSets: map[geom.RegionBounds]model.WatchedObjects{}}
	sim := New(region, scene, engine, link, testConfig())

	u := ids.NewBodyUUID()
	// Position this body well inside the +x neighbor (region [100,200)).
	sim.pendingAssignments = []model.BodyAssignment{
		{UUID: u, Cold: model.ColdBody{BodyType: model.BodyDynamic, Shape: model.Shape{Kind: model.ShapeSphere, Radius: 1}}, Warm: model.WarmBody{Position: geom.Vector{X: 150, Y: 50, Z: 50}}},
	}

	require.NoError(t, sim.tick(context.Background(), 0))
	require.Len(t, link.migrations, 1)
	require.Equal(t, geom.RegionBounds{Mins: [3]int64{100, 0, 0}, Maxs: [3]int64{200, 100, 100}}, link.migrations[0].target)
	require.Empty(t, engine.Bodies())
}

func TestSyncClientObjectsPublishesSnapshot(t *testing.T) {
	region := geom.RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}
	scene := ids.NewSceneID()
	engine := physics.NewStub()
	link := &fakeLink{}
	sim := New(region, scene, engine, link, testConfig())

	sim.publishClientSnapshot(5, nil)
	require.Len(t, link.snapshots, 1)
	require.Equal(t, uint64(5), link.snapshots[0].step)
	require.Equal(t, uint64(50), link.snapshots[0].set.Timestamp)
}

func TestSyncClientObjectsIncludesPendingAssignments(t *testing.T) {
	region := geom.RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}
	scene := ids.NewSceneID()
	engine := physics.NewStub()
	link := &fakeLink{watchSets: map[geom.RegionBounds]model.WatchedObjects{}}
	sim := New(region, scene, engine, link, testConfig())

	// One body resolved into the engine by a completed tick, one still
	// waiting in pendingAssignments because it arrived after.
	resolved := ids.NewBodyUUID()
	sim.pendingAssignments = []model.BodyAssignment{
		{UUID: resolved, Cold: model.ColdBody{BodyType: model.BodyDynamic, Shape: model.Shape{Kind: model.ShapeSphere, Radius: 1}}, Warm: model.WarmBody{Position: geom.Vector{X: 10, Y: 10, Z: 10}}},
	}
	require.NoError(t, sim.tick(context.Background(), 0))
	require.Len(t, engine.Bodies(), 1)

	justInserted := ids.NewBodyUUID()
	sim.pendingAssignments = []model.BodyAssignment{
		{UUID: justInserted, Cold: model.ColdBody{BodyType: model.BodyDynamic, Shape: model.Shape{Kind: model.ShapeSphere, Radius: 1}}, Warm: model.WarmBody{Position: geom.Vector{X: 20, Y: 20, Z: 20}}},
	}

	handled, err := sim.handle(context.Background(), model.SyncClientObjects(scene))
	require.NoError(t, err)
	require.False(t, handled)
	// The tick published its own step-9 snapshot first; the sync's is second.
	require.Len(t, link.snapshots, 2)

	uuids := make(map[ids.BodyUUID]bool)
	for _, o := range link.snapshots[1].set.Objects {
		uuids[o.UUID] = true
	}
	require.True(t, uuids[resolved], "body already resolved into the engine must still be reported")
	require.True(t, uuids[justInserted], "body still pending must be reported, not just bodies already in the engine")
	require.Equal(t, uint64(0), link.snapshots[1].step, "sync with no tick since step 0 reports against the last completed tick")
}
