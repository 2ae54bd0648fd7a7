package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/mwindels/steadyum-go/internal/child"
	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/master"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/transport"
)

type fakeChildClient struct {
	workers map[string]ids.WorkerID
}

func (f *fakeChildClient) CreateScene(ctx context.Context, childAddr string, scene ids.SceneID, bounds geom.AABB) (ids.WorkerID, error) {
	w := ids.NewWorkerID()
	f.workers[childAddr] = w
	return w, nil
}

func (f *fakeChildClient) RemoveScene(ctx context.Context, childAddr string, scene ids.SceneID) error {
	return nil
}

func (f *fakeChildClient) Step(ctx context.Context, childAddr string, scene ids.SceneID, stepID uint64) error {
	return nil
}

func (f *fakeChildClient) WorkerFor(ctx context.Context, childAddr string, scene ids.SceneID) (string, ids.WorkerID, error) {
	return childAddr, f.workers[childAddr], nil
}

func (f *fakeChildClient) InsertObjects(ctx context.Context, childAddr string, scene ids.SceneID, bodies []model.BodyAssignment) error {
	return nil
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := jsonAPI.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMasterServerCreateSceneAndListScenes(t *testing.T) {
	client := &fakeChildClient{workers: make(map[string]ids.WorkerID)}
	m := master.New(client)
	m.RegisterChild("child-a")

	srv := NewMasterServer(m, config.Defaults())
	router := srv.NewRouter()

	scene := ids.NewSceneID()
	rec := doJSON(t, router, http.MethodPost, "/create_scene", createSceneRequest{
		Scene:  scene,
		Bounds: geom.AABB{Maxs: geom.Vector{X: 100, Y: 100, Z: 100}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/list_scenes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scenes []ids.SceneID `json:"scenes"`
	}
	require.NoError(t, jsonAPI.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Scenes, scene)
}

func TestMasterServerRegionAssignsAndIsIdempotent(t *testing.T) {
	client := &fakeChildClient{workers: make(map[string]ids.WorkerID)}
	m := master.New(client)
	m.RegisterChild("child-a")

	srv := NewMasterServer(m, config.Defaults())
	router := srv.NewRouter()

	scene := ids.NewSceneID()
	rec := doJSON(t, router, http.MethodPost, "/create_scene", createSceneRequest{
		Scene:  scene,
		Bounds: geom.AABB{Maxs: geom.Vector{X: 100, Y: 100, Z: 100}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	region := geom.RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}
	rec = doJSON(t, router, http.MethodPost, "/region", regionRequest{Scene: scene, Region: region})
	require.Equal(t, http.StatusOK, rec.Code)

	var first regionResponse
	require.NoError(t, jsonAPI.Unmarshal(rec.Body.Bytes(), &first))

	rec = doJSON(t, router, http.MethodPost, "/region", regionRequest{Scene: scene, Region: region})
	require.Equal(t, http.StatusOK, rec.Code)
	var second regionResponse
	require.NoError(t, jsonAPI.Unmarshal(rec.Body.Bytes(), &second))

	require.Equal(t, first.UUID, second.UUID)
	require.Equal(t, first.Addr, second.Addr)
}

func TestChildServerCreateSceneIsIdempotentAndWorkerForResolves(t *testing.T) {
	node := transport.NewNode(nil)
	spawner := fakeSpawnerForHTTP{}
	c := child.New(config.Defaults(), node, spawner, nil, nil)
	srv := NewChildServer(c)
	router := srv.NewRouter()

	scene := ids.NewSceneID()
	rec := doJSON(t, router, http.MethodPost, "/create_scene", createSceneRequest{Scene: scene})
	require.Equal(t, http.StatusOK, rec.Code)

	var first struct {
		Runner ids.WorkerID `json:"runner"`
	}
	require.NoError(t, jsonAPI.Unmarshal(rec.Body.Bytes(), &first))

	rec = doJSON(t, router, http.MethodPost, "/create_scene", createSceneRequest{Scene: scene})
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		Runner ids.WorkerID `json:"runner"`
	}
	require.NoError(t, jsonAPI.Unmarshal(rec.Body.Bytes(), &second))
	require.Equal(t, first.Runner, second.Runner)

	rec = doJSON(t, router, http.MethodPost, "/worker_for", map[string]interface{}{"scene": scene})
	require.Equal(t, http.StatusOK, rec.Code)
	var wf regionResponse
	require.NoError(t, jsonAPI.Unmarshal(rec.Body.Bytes(), &wf))
	require.Equal(t, first.Runner, wf.UUID)
}

type fakeSpawnerForHTTP struct{}

func (fakeSpawnerForHTTP) Spawn(ctx context.Context, worker ids.WorkerID, scene ids.SceneID, addr string) (func(), error) {
	return func() {}, nil
}
