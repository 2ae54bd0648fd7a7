// Package httpapi implements the HTTP control plane of spec.md §6.1 for
// both the Master and Child coordinators: one gorilla/mux route per path,
// JSON bodies decoded with json-iterator.
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/mwindels/steadyum-go/internal/child"
	"github.com/mwindels/steadyum-go/internal/codec"
	"github.com/mwindels/steadyum-go/internal/config"
	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/master"
	"github.com/mwindels/steadyum-go/internal/model"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return jsonAPI.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonAPI.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// --- Master HTTP surface ---

// MasterServer adapts internal/master.Master onto spec.md §6.1's HTTP
// endpoints.
type MasterServer struct {
	M   *master.Master
	Cfg config.Config

	mu     sync.Mutex
	paused map[ids.SceneID]bool
}

// NewMasterServer constructs an HTTP handler bundle for m.
func NewMasterServer(m *master.Master, cfg config.Config) *MasterServer {
	return &MasterServer{M: m, Cfg: cfg, paused: make(map[ids.SceneID]bool)}
}

// Routes registers every Master endpoint on r.
func (s *MasterServer) Routes(r *mux.Router) {
	r.HandleFunc("/shutdown", s.handleShutdown)
	r.HandleFunc("/heartbeat", s.handleHeartbeat)
	r.HandleFunc("/getbins", s.handleGetBins)
	r.HandleFunc("/initialized", s.handleInitialized)
	r.HandleFunc("/region", s.handleRegion).Methods(http.MethodPost)
	r.HandleFunc("/insert", s.handleInsert).Methods(http.MethodPost)
	r.HandleFunc("/list_regions", s.handleListRegions)
	r.HandleFunc("/list_scenes", s.handleListScenes)
	r.HandleFunc("/start_stop", s.handleStartStop).Methods(http.MethodPost)
	r.HandleFunc("/create_scene", s.handleCreateScene).Methods(http.MethodPost)
	r.HandleFunc("/remove_scene", s.handleRemoveScene).Methods(http.MethodPost)
	r.HandleFunc("/register_child", s.handleRegisterChild).Methods(http.MethodPost)
	r.HandleFunc("/ack", s.handleAck).Methods(http.MethodPost)
	r.HandleFunc("/step", s.handleStep).Methods(http.MethodPost)
	r.HandleFunc("/input", s.handleInput).Methods(http.MethodPost)
}

// NewRouter builds a ready-to-serve gorilla/mux router for s.
func (s *MasterServer) NewRouter() *mux.Router {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

func (s *MasterServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	go func() {
		os.Exit(0)
	}()
}

func (s *MasterServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type getBinsResponse struct {
	Partitionner []byte `json:"partitionner"`
	Runner       []byte `json:"runner"`
}

// handleGetBins serves the LZ4(bincode({partitionner, runner})) exe
// bundle described by spec.md §6.1, substituting gob for bincode per
// internal/codec's wire convention.
func (s *MasterServer) handleGetBins(w http.ResponseWriter, r *http.Request) {
	self, err := os.ReadFile(os.Args[0])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	runner, err := os.ReadFile(s.Cfg.RunnerExe)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	payload, err := codec.Encode(getBinsResponse{Partitionner: self, Runner: runner})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(payload)
}

func (s *MasterServer) handleInitialized(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type regionRequest struct {
	Scene  ids.SceneID       `json:"scene"`
	Region geom.RegionBounds `json:"region"`
}

type regionResponse struct {
	Scene  ids.SceneID       `json:"scene"`
	Region geom.RegionBounds `json:"region"`
	UUID   ids.WorkerID      `json:"uuid"`
	Addr   string            `json:"addr"`
}

func (s *MasterServer) handleRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, worker, err := s.M.AssignRunner(r.Context(), req.Scene, req.Region)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, regionResponse{Scene: req.Scene, Region: req.Region, UUID: worker, Addr: addr})
}

type insertRequest struct {
	Scene  ids.SceneID            `json:"scene"`
	Bodies []model.BodyAssignment `json:"bodies"`
}

func (s *MasterServer) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.M.InsertObjects(r.Context(), req.Scene, req.Bodies); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *MasterServer) handleListRegions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene ids.SceneID `json:"scene"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bounds": s.M.ListRegions(req.Scene)})
}

func (s *MasterServer) handleListScenes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"scenes": s.M.ListScenes()})
}

func (s *MasterServer) handleStartStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene   ids.SceneID `json:"scene"`
		Running bool        `json:"running"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	s.paused[req.Scene] = !req.Running
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

type createSceneRequest struct {
	Scene  ids.SceneID `json:"scene"`
	Bounds geom.AABB   `json:"bounds"`
}

func (s *MasterServer) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var req createSceneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.M.CreateScene(r.Context(), req.Scene, req.Bounds); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runner": req.Scene})
}

func (s *MasterServer) handleRemoveScene(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene ids.SceneID `json:"scene"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.M.RemoveScene(r.Context(), req.Scene); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *MasterServer) handleRegisterChild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Child struct {
			Addr string `json:"addr"`
			Port int    `json:"port"`
		} `json:"child"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.M.RegisterChild(req.Child.Addr)
	w.WriteHeader(http.StatusOK)
}

func (s *MasterServer) handleAck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene ids.SceneID `json:"scene"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.M.Ack(r.Context(), req.Scene); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *MasterServer) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene  ids.SceneID `json:"scene"`
		StepID uint64      `json:"step_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	paused := s.paused[req.Scene]
	s.mu.Unlock()
	if paused {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.M.Step(r.Context(), req.Scene, req.StepID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *MasterServer) handleInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene  ids.SceneID `json:"scene"`
		StepID uint64      `json:"step_id"`
		Input  int         `json:"input"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.M.ClientInput(r.Context(), req.Scene, req.StepID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- Child HTTP surface ---

// ChildServer adapts internal/child.Child onto the same path schema, for
// the subset of operations a Child answers.
type ChildServer struct {
	C *child.Child
}

// NewChildServer constructs an HTTP handler bundle for c.
func NewChildServer(c *child.Child) *ChildServer {
	return &ChildServer{C: c}
}

// Routes registers every Child endpoint on r.
func (s *ChildServer) Routes(r *mux.Router) {
	r.HandleFunc("/shutdown", s.handleShutdown)
	r.HandleFunc("/heartbeat", s.handleHeartbeat)
	r.HandleFunc("/initialized", s.handleInitialized)
	r.HandleFunc("/insert", s.handleInsert).Methods(http.MethodPost)
	r.HandleFunc("/list_regions", s.handleListRegions)
	r.HandleFunc("/create_scene", s.handleCreateScene).Methods(http.MethodPost)
	r.HandleFunc("/remove_scene", s.handleRemoveScene).Methods(http.MethodPost)
	r.HandleFunc("/ack", s.handleAck).Methods(http.MethodPost)
	r.HandleFunc("/step", s.handleStep).Methods(http.MethodPost)
	r.HandleFunc("/worker_for", s.handleWorkerFor).Methods(http.MethodPost)
}

// NewRouter builds a ready-to-serve gorilla/mux router for s.
func (s *ChildServer) NewRouter() *mux.Router {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

func (s *ChildServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	go func() {
		os.Exit(0)
	}()
}

func (s *ChildServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *ChildServer) handleInitialized(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *ChildServer) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.C.InsertObjects(r.Context(), req.Scene, req.Bodies); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ChildServer) handleListRegions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene ids.SceneID `json:"scene"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bounds": s.C.ListRegions(req.Scene)})
}

func (s *ChildServer) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var req createSceneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	worker, err := s.C.CreateScene(r.Context(), req.Scene)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runner": worker})
}

func (s *ChildServer) handleRemoveScene(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene ids.SceneID `json:"scene"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.C.RemoveScene(r.Context(), req.Scene); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ChildServer) handleAck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene ids.SceneID `json:"scene"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.C.Ack(r.Context(), req.Scene); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ChildServer) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene  ids.SceneID `json:"scene"`
		StepID uint64      `json:"step_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.C.Step(r.Context(), req.Scene, req.StepID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleWorkerFor answers the Master's WorkerFor lookup (spec.md §4.1's
// assign_runner resolving down to the owning child's Region Worker
// endpoint) without the side effects of create_scene.
func (s *ChildServer) handleWorkerFor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scene ids.SceneID `json:"scene"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, worker, ok := s.C.WorkerFor(req.Scene)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no worker for scene %s", req.Scene))
		return
	}
	writeJSON(w, http.StatusOK, regionResponse{Scene: req.Scene, UUID: worker, Addr: addr})
}

// --- HTTP clients implementing the master/child injection seams ---

// Client is a shared small HTTP JSON client used both as
// master.ChildClient (Master → Child) and to drive a Child's calls back up
// to its Master (assign_runner, ack).
type Client struct {
	HTTP *http.Client
}

// NewClient constructs a Client using http.DefaultClient.
func NewClient() *Client {
	return &Client{HTTP: http.DefaultClient}
}

func (c *Client) post(ctx context.Context, addr, path string, body interface{}, out interface{}) error {
	var buf io.Reader
	if body != nil {
		data, err := jsonAPI.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = jsonAPI.NewDecoder(resp.Body).Decode(&errBody)
		return &httpError{status: resp.StatusCode, message: errBody.Error}
	}
	if out == nil {
		return nil
	}
	return jsonAPI.NewDecoder(resp.Body).Decode(out)
}

type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string {
	return e.message
}

// CreateScene implements master.ChildClient.
func (c *Client) CreateScene(ctx context.Context, childAddr string, scene ids.SceneID, bounds geom.AABB) (ids.WorkerID, error) {
	var resp struct {
		Runner ids.WorkerID `json:"runner"`
	}
	err := c.post(ctx, childAddr, "/create_scene", createSceneRequest{Scene: scene, Bounds: bounds}, &resp)
	return resp.Runner, err
}

// RemoveScene implements master.ChildClient.
func (c *Client) RemoveScene(ctx context.Context, childAddr string, scene ids.SceneID) error {
	return c.post(ctx, childAddr, "/remove_scene", map[string]interface{}{"scene": scene}, nil)
}

// Step implements master.ChildClient.
func (c *Client) Step(ctx context.Context, childAddr string, scene ids.SceneID, stepID uint64) error {
	return c.post(ctx, childAddr, "/step", map[string]interface{}{"scene": scene, "step_id": stepID}, nil)
}

// WorkerFor asks a Child for its scene's Worker endpoint via the dedicated
// /worker_for lookup, distinct from /region's assign_runner semantics
// which belong to the Master, not a Child.
func (c *Client) WorkerFor(ctx context.Context, childAddr string, scene ids.SceneID) (string, ids.WorkerID, error) {
	var resp regionResponse
	err := c.post(ctx, childAddr, "/worker_for", map[string]interface{}{"scene": scene}, &resp)
	return resp.Addr, resp.UUID, err
}

// InsertObjects implements master.ChildClient.
func (c *Client) InsertObjects(ctx context.Context, childAddr string, scene ids.SceneID, bodies []model.BodyAssignment) error {
	return c.post(ctx, childAddr, "/insert", insertRequest{Scene: scene, Bodies: bodies}, nil)
}

// AssignRunner calls the Master's /region endpoint. A process wires this
// up as a child.ResolveRunner by closing over its known masterAddr:
// func(ctx, scene, region) (string, ids.WorkerID, error) {
//     return client.AssignRunner(ctx, masterAddr, scene, region)
// }
func (c *Client) AssignRunner(ctx context.Context, masterAddr string, scene ids.SceneID, region geom.RegionBounds) (string, ids.WorkerID, error) {
	var resp regionResponse
	err := c.post(ctx, masterAddr, "/region", regionRequest{Scene: scene, Region: region}, &resp)
	return resp.Addr, resp.UUID, err
}

// AckParent calls the /ack endpoint at masterAddr. A Child wires it up as
// a child.AckParent closing over its Master's address; cmd/runner calls it
// with its spawning Child's address instead.
func (c *Client) AckParent(ctx context.Context, masterAddr string, scene ids.SceneID) error {
	return c.post(ctx, masterAddr, "/ack", map[string]interface{}{"scene": scene}, nil)
}

// RegisterChild calls the Master's /register_child endpoint so a freshly
// started Child coordinator becomes eligible for future create_scene calls.
func (c *Client) RegisterChild(ctx context.Context, masterAddr, childAddr string, childPort int) error {
	body := map[string]interface{}{
		"child": map[string]interface{}{"addr": childAddr, "port": childPort},
	}
	return c.post(ctx, masterAddr, "/register_child", body, nil)
}
