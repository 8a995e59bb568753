// Package api provides the HTTP control surface of the evacuation simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (operator control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/persistence"
)

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; /runs answers 503 without it
	Hub      *Hub            // Optional; /stream answers 503 without it
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// ControlLimit caps control POSTs per client per minute (0 = 60).
	ControlLimit int
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	limit := s.ControlLimit
	if limit <= 0 {
		limit = 60
	}
	control := NewRateLimiter(limit, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgent)
	mux.HandleFunc("/api/v1/hazard", s.handleHazard)
	mux.HandleFunc("/api/v1/density", s.handleDensity)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunDetail)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Control endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/fire", s.adminOnly(RateLimitMiddleware(control, s.handleFire)))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(RateLimitMiddleware(control, s.handleReset)))
	mux.HandleFunc("/api/v1/spawn", s.adminOnly(RateLimitMiddleware(control, s.handleSpawn)))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(RateLimitMiddleware(control, s.handleSpeed)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server can
// be shut down by the caller.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "stream", s.Hub != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra origins.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "control endpoints disabled (no EVACSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeSimError maps simulation sentinels onto status codes.
func writeSimError(w http.ResponseWriter, err error) {
	var spawnErr *engine.SpawnError
	switch {
	case errors.As(err, &spawnErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error":     err.Error(),
			"requested": spawnErr.Requested,
			"spawned":   spawnErr.Spawned,
		})
	case errors.Is(err, engine.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrConfiguration):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("control request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Snapshot()
	resp := map[string]any{
		"name":   "evacsim",
		"status": st,
	}
	if s.Eng != nil {
		resp["speed"] = s.Eng.Speed()
		resp["running"] = s.Eng.Running()
		resp["tick_rate_hz"] = 1 / s.Eng.Dt
	}
	if s.Hub != nil {
		resp["stream_clients"] = s.Hub.Clients()
	}
	writeJSON(w, resp)
}

type agentSummary struct {
	ID       agents.AgentID `json:"id"`
	Category string         `json:"category"`
	State    string         `json:"state"`
	X        float64        `json:"x"`
	Z        float64        `json:"z"`
	Beacon   uint32         `json:"beacon,omitempty"`
	Finish   bool           `json:"heading_to_finish,omitempty"`
	Guide    agents.AgentID `json:"guide_id,omitempty"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	category := r.URL.Query().Get("category")

	list := s.Sim.AgentList()
	result := make([]agentSummary, 0, len(list))
	for _, a := range list {
		if state != "" && agents.StateName(a.State) != state {
			continue
		}
		if category != "" && agents.CategoryName(a.Category) != category {
			continue
		}
		result = append(result, agentSummary{
			ID:       a.ID,
			Category: agents.CategoryName(a.Category),
			State:    agents.StateName(a.State),
			X:        a.Position.X,
			Z:        a.Position.Z,
			Beacon:   uint32(a.TargetBeacon),
			Finish:   a.HeadingToFinish,
			Guide:    a.GuideID,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/agent/"), "/")
	if raw == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	a, ok := s.Sim.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"agent":    a,
		"category": agents.CategoryName(a.Category),
		"state":    agents.StateName(a.State),
	})
}

func (s *Server) handleHazard(w http.ResponseWriter, r *http.Request) {
	nodes := s.Sim.HazardNodes()
	writeJSON(w, map[string]any{
		"burning": len(nodes) > 0,
		"nodes":   nodes,
	})
}

func (s *Server) handleDensity(w http.ResponseWriter, r *http.Request) {
	cells := s.Sim.DensityCells()
	crowded := 0
	for _, c := range cells {
		if c.Crowded {
			crowded++
		}
	}
	writeJSON(w, map[string]any{
		"cells":   cells,
		"crowded": crowded,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= engine.MaxEvents {
			limit = n
		}
	}

	events := s.Sim.Events(0)

	// Optional category filter.
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.RunSummary{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if id == "" {
		s.handleRuns(w, r)
		return
	}
	report, err := s.DB.GetRun(id)
	if errors.Is(err, persistence.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get run failed", "run", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	started, err := s.Sim.StartFire()
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"started": started,
		"nodes":   len(s.Sim.HazardNodes()),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	n, err := s.Sim.ResetSimulation()
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"run_id":    s.Sim.Snapshot().RunID,
		"respawned": n,
	})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Count json.RawMessage `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	// Accept both 10 and "10".
	count, err := engine.ParseSpawnCount(strings.Trim(string(req.Count), `"`))
	if err != nil {
		writeSimError(w, err)
		return
	}
	n, err := s.Sim.SpawnAgents(count)
	if err != nil {
		writeSimError(w, err)
		return
	}
	slog.Info("agents spawned via api", "count", n)
	writeJSON(w, map[string]any{"requested": count, "spawned": n})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 100 {
			http.Error(w, "speed must be 0-100", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
