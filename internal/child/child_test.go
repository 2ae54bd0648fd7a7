package child

import (
	"context"
	"testing"
	"time"

	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/physics"
	"github.com/mwindels/steadyum-go/internal/transport"
	"github.com/mwindels/steadyum-go/internal/worker"
	"github.com/stretchr/testify/require"
)

// fakeSpawner starts an in-process worker.Worker goroutine on addr instead
// of exec'ing a real binary, so the test can exercise the full wire
// round-trip without a separate process.
type fakeSpawner struct {
	cfg config.Config
}

func newStubEngine() physics.Engine { return physics.NewStub() }

func (f fakeSpawner) Spawn(ctx context.Context, id ids.WorkerID, scene ids.SceneID, addr string) (func(), error) {
	w := worker.New(scene, id, addr, f.cfg,
		newStubEngine,
		func(ctx context.Context, scene ids.SceneID, region geom.RegionBounds) (string, ids.WorkerID, error) {
			return addr, id, nil
		},
		func(ctx context.Context) error { return nil },
	)
	runCtx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Serve(runCtx) }()
	return cancel, nil
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.RegionWidth = 100
	return cfg
}

func waitForListener(t *testing.T, node *transport.Node, addr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := node.QueryFrom(context.Background(), addr, "steadyum/heartbeat")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateSceneSpawnsAndIsIdempotent(t *testing.T) {
	cfg := testConfig()
	node := transport.NewNode(nil)
	c := New(cfg, node, fakeSpawner{cfg: cfg}, nil, nil)

	scene := ids.NewSceneID()
	first, err := c.CreateScene(context.Background(), scene)
	require.NoError(t, err)

	second, err := c.CreateScene(context.Background(), scene)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestInsertObjectsRoutesStaticsAndDynamics(t *testing.T) {
	cfg := testConfig()
	node := transport.NewNode(nil)

	var resolvedRegion geom.RegionBounds

	c := New(cfg, node, fakeSpawner{cfg: cfg}, nil, nil)
	scene := ids.NewSceneID()
	_, err := c.CreateScene(context.Background(), scene)
	require.NoError(t, err)

	addr, workerID, ok := c.WorkerFor(scene)
	require.True(t, ok)
	waitForListener(t, node, addr)

	c.ResolveRunner = func(ctx context.Context, s ids.SceneID, region geom.RegionBounds) (string, ids.WorkerID, error) {
		resolvedRegion = region
		return addr, workerID, nil
	}

	dyn := model.BodyAssignment{
		UUID: ids.NewBodyUUID(),
		Cold: model.ColdBody{BodyType: model.BodyDynamic, Shape: model.Shape{Kind: model.ShapeSphere, Radius: 1}},
		Warm: model.WarmBody{Position: geom.Vector{X: 10, Y: 10, Z: 10}},
	}
	stat := model.BodyAssignment{
		UUID: ids.NewBodyUUID(),
		Cold: model.ColdBody{BodyType: model.BodyStatic, Shape: model.Shape{Kind: model.ShapeHalfSpace}},
		Warm: model.WarmBody{Position: geom.Vector{X: 0, Y: 0, Z: 0}},
	}

	require.NoError(t, c.InsertObjects(context.Background(), scene, []model.BodyAssignment{dyn, stat}))
	require.Equal(t, geom.FromPoint(dyn.Warm.Position, cfg.RegionWidth), resolvedRegion)
}

func TestRemoveSceneDropsState(t *testing.T) {
	cfg := testConfig()
	node := transport.NewNode(nil)
	c := New(cfg, node, fakeSpawner{cfg: cfg}, nil, nil)

	scene := ids.NewSceneID()
	_, err := c.CreateScene(context.Background(), scene)
	require.NoError(t, err)

	require.NoError(t, c.RemoveScene(context.Background(), scene))
	_, _, ok := c.WorkerFor(scene)
	require.False(t, ok)

	// Idempotent: removing again is a no-op.
	require.NoError(t, c.RemoveScene(context.Background(), scene))
}

func TestAckBubblesToParentOnlyWhenPendingReachesZero(t *testing.T) {
	cfg := testConfig()
	node := transport.NewNode(nil)

	acked := 0
	c := New(cfg, node, fakeSpawner{cfg: cfg}, nil, func(ctx context.Context, scene ids.SceneID) error {
		acked++
		return nil
	})

	scene := ids.NewSceneID()
	_, err := c.CreateScene(context.Background(), scene)
	require.NoError(t, err)

	addr, _, _ := c.WorkerFor(scene)
	waitForListener(t, node, addr)

	require.NoError(t, c.Step(context.Background(), scene, 0))
	require.NoError(t, c.Ack(context.Background(), scene))
	require.Equal(t, 1, acked)
}
