package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/density"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/hazard"
	"github.com/talgya/evacsim/internal/persistence"
	"github.com/talgya/evacsim/internal/waypoint"
	"github.com/talgya/evacsim/internal/world"
)

const testKey = "secret"

func testSim(t *testing.T, mutate func(*engine.Setup)) *engine.Simulation {
	t.Helper()
	plan := world.NewFloorPlan(world.Bounds{Min: world.V(-20, 0, -20), Max: world.V(20, 3, 20)})
	routes, err := waypoint.NewGraph([]waypoint.Beacon{
		{ID: 1, Position: world.V(0, 0, 0), VisibilityRange: 30, Active: true, Next: 2},
		{ID: 2, Position: world.V(15, 0, 0), VisibilityRange: 30, Active: true},
	}, nil, []world.Vec3{world.V(18, 0, 0)})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	setup := engine.Setup{
		Plan:              plan,
		Routes:            routes,
		HazardZones:       []world.Bounds{{Min: world.V(-18, 0, -18), Max: world.V(-15, 0, -15)}},
		SpawnArea:         world.Bounds{Min: world.V(-5, 0, -5), Max: world.V(5, 0, 5)},
		Mix:               agents.Mix{agents.CategoryAdult: 1},
		MaxAttempts:       50,
		SpawnSampleRadius: 0.5,
		NavCellSize:       0.5,
		Decision:          agents.DefaultParams(),
		Hazard:            hazard.DefaultConfig(),
		Density:           density.Config{TileSize: 1, MaxPerTile: 100, PenaltyDuration: 2, SlowdownSpeed: 2},
		Seed:              3,
	}
	if mutate != nil {
		mutate(&setup)
	}
	sim, err := engine.NewSimulation(setup)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return sim
}

func newTestServer(t *testing.T, sim *engine.Simulation) *Server {
	t.Helper()
	return &Server{Sim: sim, Eng: engine.NewEngine(30), AdminKey: testKey, Hub: NewHub()}
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStatus(t *testing.T) {
	sim := testSim(t, nil)
	h := newTestServer(t, sim).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/status", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var got struct {
		Status engine.Status `json:"status"`
		Speed  float64       `json:"speed"`
	}
	decode(t, rec, &got)
	if got.Status.RunID == "" || got.Speed != 1 || got.Status.Policy != "remove" {
		t.Fatalf("status=%+v", got)
	}
}

func TestControl_RequiresBearerToken(t *testing.T) {
	sim := testSim(t, nil)
	srv := newTestServer(t, sim)
	h := srv.Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/fire", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: code=%d want=401", rec.Code)
	}
	if sim.Snapshot().Stats.FireStarted {
		t.Fatalf("unauthorized request must not start the fire")
	}

	srv.AdminKey = ""
	h = srv.Handler()
	if rec := do(t, h, http.MethodPost, "/api/v1/fire", "", true); rec.Code != http.StatusForbidden {
		t.Fatalf("disabled: code=%d want=403", rec.Code)
	}
}

func TestFire_StartsOnce(t *testing.T) {
	sim := testSim(t, nil)
	h := newTestServer(t, sim).Handler()

	var first, second struct {
		Started bool `json:"started"`
		Nodes   int  `json:"nodes"`
	}
	rec := do(t, h, http.MethodPost, "/api/v1/fire", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	decode(t, rec, &first)
	decode(t, do(t, h, http.MethodPost, "/api/v1/fire", "", true), &second)
	if !first.Started || first.Nodes != 1 || second.Started {
		t.Fatalf("first=%+v second=%+v", first, second)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/fire", "", false); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET fire: code=%d want=405", rec.Code)
	}
}

func TestFire_NoHazardZonesIsConflict(t *testing.T) {
	sim := testSim(t, func(s *engine.Setup) { s.HazardZones = nil })
	h := newTestServer(t, sim).Handler()
	if rec := do(t, h, http.MethodPost, "/api/v1/fire", "", true); rec.Code != http.StatusConflict {
		t.Fatalf("code=%d want=409", rec.Code)
	}
}

func TestSpawn(t *testing.T) {
	sim := testSim(t, nil)
	h := newTestServer(t, sim).Handler()

	for _, body := range []string{`{"count": 0}`, `{"count": "abc"}`, `{}`, `not json`} {
		if rec := do(t, h, http.MethodPost, "/api/v1/spawn", body, true); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: code=%d want=400", body, rec.Code)
		}
	}

	rec := do(t, h, http.MethodPost, "/api/v1/spawn", `{"count": "7"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	var got struct{ Requested, Spawned int }
	decode(t, rec, &got)
	if got.Spawned != 7 || len(sim.AgentList()) != 7 {
		t.Fatalf("spawned=%d live=%d", got.Spawned, len(sim.AgentList()))
	}

	var list []agentSummary
	decode(t, do(t, h, http.MethodGet, "/api/v1/agents?state=working", "", false), &list)
	if len(list) != 7 || list[0].State != "working" || list[0].Category != "adult" {
		t.Fatalf("agents=%+v", list)
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/agents?state=evacuating", "", false), &list)
	if len(list) != 0 {
		t.Fatalf("no agent should be evacuating yet")
	}
}

func TestSpawn_CapacityReportsPartialCount(t *testing.T) {
	sim := testSim(t, func(s *engine.Setup) {
		s.Plan.AddObstacle(world.Obstacle{Name: "block", Box: world.Bounds{Min: world.V(-6, 0, -6), Max: world.V(6, 3, 6)}})
		s.SpawnSampleRadius = 0
		s.MaxAttempts = 5
	})
	h := newTestServer(t, sim).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/spawn", `{"count": 3}`, true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d want=503", rec.Code)
	}
	var got struct {
		Requested int `json:"requested"`
		Spawned   int `json:"spawned"`
	}
	decode(t, rec, &got)
	if got.Requested != 3 || got.Spawned != 0 {
		t.Fatalf("body=%+v", got)
	}
}

func TestAgentDetail(t *testing.T) {
	sim := testSim(t, nil)
	if _, err := sim.SpawnAgents(1); err != nil {
		t.Fatalf("SpawnAgents: %v", err)
	}
	id := sim.AgentList()[0].ID
	h := newTestServer(t, sim).Handler()

	if rec := do(t, h, http.MethodGet, "/api/v1/agent/abc", "", false); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: code=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/agent/99999", "", false); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: code=%d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/agent/"+jsonNumber(uint64(id)), "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var got struct {
		Agent agents.Agent `json:"agent"`
		State string       `json:"state"`
	}
	decode(t, rec, &got)
	if got.Agent.ID != id || got.State != "working" {
		t.Fatalf("agent=%+v", got)
	}
}

func jsonNumber(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestReset_StartsNewRun(t *testing.T) {
	sim := testSim(t, nil)
	if _, err := sim.SpawnAgents(4); err != nil {
		t.Fatalf("SpawnAgents: %v", err)
	}
	before := sim.Snapshot().RunID
	h := newTestServer(t, sim).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/reset", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var got struct {
		RunID     string `json:"run_id"`
		Respawned int    `json:"respawned"`
	}
	decode(t, rec, &got)
	if got.RunID == before || got.Respawned != 4 {
		t.Fatalf("reset=%+v before=%s", got, before)
	}
}

func TestSpeed(t *testing.T) {
	sim := testSim(t, nil)
	srv := newTestServer(t, sim)
	h := srv.Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed": 500}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d want=400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed": 4}`, true); rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if srv.Eng.Speed() != 4 {
		t.Fatalf("speed=%v want=4", srv.Eng.Speed())
	}
	var got map[string]float64
	decode(t, do(t, h, http.MethodGet, "/api/v1/speed", "", false), &got)
	if got["speed"] != 4 {
		t.Fatalf("GET speed=%v", got)
	}
}

func TestEvents_CategoryFilter(t *testing.T) {
	sim := testSim(t, nil)
	if _, err := sim.StartFire(); err != nil {
		t.Fatalf("StartFire: %v", err)
	}
	h := newTestServer(t, sim).Handler()

	var events []engine.Event
	decode(t, do(t, h, http.MethodGet, "/api/v1/events?category=fire", "", false), &events)
	if len(events) == 0 {
		t.Fatalf("expected a fire event")
	}
	for _, e := range events {
		if e.Category != "fire" {
			t.Fatalf("unexpected category %q", e.Category)
		}
	}
}

func TestHazardAndDensity(t *testing.T) {
	sim := testSim(t, nil)
	h := newTestServer(t, sim).Handler()

	var hz struct {
		Burning bool          `json:"burning"`
		Nodes   []hazard.Node `json:"nodes"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/hazard", "", false), &hz)
	if hz.Burning {
		t.Fatalf("nothing should burn before ignition")
	}
	sim.StartFire()
	decode(t, do(t, h, http.MethodGet, "/api/v1/hazard", "", false), &hz)
	if !hz.Burning || len(hz.Nodes) != 1 {
		t.Fatalf("hazard=%+v", hz)
	}

	if _, err := sim.SpawnAgents(3); err != nil {
		t.Fatalf("SpawnAgents: %v", err)
	}
	sim.TickFrame(0.1)
	var dens struct {
		Cells   []density.CellInfo `json:"cells"`
		Crowded int                `json:"crowded"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/density", "", false), &dens)
	total := 0
	for _, c := range dens.Cells {
		total += c.Count
	}
	if total != 3 || dens.Crowded != 0 {
		t.Fatalf("density=%+v", dens)
	}
}

func TestRuns(t *testing.T) {
	sim := testSim(t, nil)
	srv := newTestServer(t, sim)

	if rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/runs", "", false); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no db: code=%d want=503", rec.Code)
	}

	db, err := persistence.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	srv.DB = db
	sim.OnRunEnd = func(r engine.RunReport) {
		if err := db.SaveRun(r); err != nil {
			t.Errorf("SaveRun: %v", err)
		}
	}
	h := srv.Handler()

	first := sim.Snapshot().RunID
	if rec := do(t, h, http.MethodPost, "/api/v1/reset", "", true); rec.Code != http.StatusOK {
		t.Fatalf("reset code=%d", rec.Code)
	}

	var runs []persistence.RunSummary
	decode(t, do(t, h, http.MethodGet, "/api/v1/runs", "", false), &runs)
	if len(runs) != 1 || runs[0].RunID != first {
		t.Fatalf("runs=%+v", runs)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/runs/"+first, "", false); rec.Code != http.StatusOK {
		t.Fatalf("detail code=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/runs/nope", "", false); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run code=%d want=404", rec.Code)
	}
}

func TestControl_RateLimited(t *testing.T) {
	sim := testSim(t, nil)
	srv := newTestServer(t, sim)
	srv.ControlLimit = 2
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodPost, "/api/v1/fire", "", true); rec.Code != http.StatusOK {
			t.Fatalf("request %d: code=%d", i, rec.Code)
		}
	}
	rec := do(t, h, http.MethodPost, "/api/v1/fire", "", true)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("code=%d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}

	// Every control endpoint shares the budget; reads stay open.
	if rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed": 2}`, true); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("speed code=%d want=429", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/speed", "", false); rec.Code != http.StatusOK {
		t.Fatalf("GET speed code=%d want=200", rec.Code)
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || rl.Allow("a") {
		t.Fatalf("second request inside the window should be refused")
	}
	if !rl.Allow("b") {
		t.Fatalf("clients have separate budgets")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Fatalf("retry=%d want=61", got)
	}
	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatalf("budget should refill after the window")
	}
}

func TestStream_PushesFrames(t *testing.T) {
	sim := testSim(t, nil)
	if _, err := sim.SpawnAgents(2); err != nil {
		t.Fatalf("SpawnAgents: %v", err)
	}
	srv := newTestServer(t, sim)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Hub.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var fr engine.Frame
	if err := conn.ReadJSON(&fr); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if fr.Tick != 0 || len(fr.Agents) != 2 {
		t.Fatalf("first frame=%+v", fr)
	}

	sim.TickFrame(0.1)
	srv.Hub.Broadcast(sim.Frame())
	if err := conn.ReadJSON(&fr); err != nil {
		t.Fatalf("broadcast frame: %v", err)
	}
	if fr.Tick != 1 || fr.RunID != sim.Snapshot().RunID {
		t.Fatalf("frame tick=%d run=%s", fr.Tick, fr.RunID)
	}
	if srv.Hub.Clients() != 1 {
		t.Fatalf("clients=%d want=1", srv.Hub.Clients())
	}
}
