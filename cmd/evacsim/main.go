package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/evacsim/internal/api"
	"github.com/talgya/evacsim/internal/config"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/persistence"
	"github.com/talgya/evacsim/internal/trace"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("EVACSIM_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	slog.Info("evacsim: crowd evacuation under fire")

	// ── Scenario ──────────────────────────────────────────────────────
	cfgPath := os.Getenv("EVACSIM_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load scenario", "error", err)
		os.Exit(1)
	}
	if cfgPath == "" {
		slog.Info("no EVACSIM_CONFIG set, using the built-in office scenario")
	}
	if p := os.Getenv("EVACSIM_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			slog.Error("invalid EVACSIM_PORT", "value", p)
			os.Exit(1)
		}
		cfg.API.Port = port
	}

	// ── Storage ───────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	db, err := persistence.Open(cfg.Storage.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Storage.DBPath)

	var tracer *trace.Writer
	if cfg.Storage.TracePath != "" {
		tracer = trace.NewWriter(cfg.Storage.TracePath)
		defer tracer.Close()
		slog.Info("frame trace enabled", "dir", cfg.Storage.TracePath, "every", cfg.Storage.TraceEveryTicks)
	}

	// ── Simulation ────────────────────────────────────────────────────
	setup, err := cfg.Setup()
	if err != nil {
		slog.Error("invalid scenario", "error", err)
		os.Exit(1)
	}
	sim, err := engine.NewSimulation(setup)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	sim.OnRunEnd = func(r engine.RunReport) {
		if err := db.SaveRun(r); err != nil {
			slog.Error("run save failed", "run", r.RunID, "error", err)
			return
		}
		if err := db.SaveMeta("last_run", r.RunID); err != nil {
			slog.Warn("meta save failed", "error", err)
		}
	}
	slog.Info("floor ready",
		"plan", setup.Plan.String(),
		"beacons", setup.Routes.Len(),
		"hazard_zones", len(setup.HazardZones),
		"run", sim.RunID,
	)
	if last, err := db.GetMeta("last_run"); err == nil {
		slog.Info("previous run on record", "run", last)
	}

	if cfg.Spawn.Count > 0 {
		n, err := sim.SpawnAgents(cfg.Spawn.Count)
		if err != nil {
			slog.Warn("initial spawn incomplete", "spawned", n, "error", err)
		}
	}

	hub := api.NewHub()

	eng := engine.NewEngine(cfg.TickRateHz)
	eng.ReportEvery = uint64(cfg.ReportEveryTicks)
	streamEvery := uint64(cfg.API.StreamEveryTicks)
	traceEvery := uint64(cfg.Storage.TraceEveryTicks)

	eng.OnTick = func(tick uint64, dt float64) {
		sim.TickFrame(dt)
		streamDue := streamEvery > 0 && tick%streamEvery == 0 && hub.Clients() > 0
		traceDue := tracer != nil && traceEvery > 0 && tick%traceEvery == 0
		if !streamDue && !traceDue {
			return
		}
		fr := sim.Frame()
		if streamDue {
			hub.Broadcast(fr)
		}
		if traceDue {
			if err := tracer.Write(fr); err != nil {
				slog.Error("trace write failed", "error", err)
				tracer = nil
			}
		}
	}
	eng.OnReport = func(tick uint64) {
		sim.LogReport()
	}

	// ── API ───────────────────────────────────────────────────────────
	adminKey := os.Getenv("EVACSIM_ADMIN_KEY")
	if adminKey == "" {
		adminKey = cfg.API.AdminKey
	}
	if adminKey == "" {
		slog.Warn("EVACSIM_ADMIN_KEY not set, control POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Hub:      hub,
		Port:     cfg.API.Port,
		AdminKey: adminKey,
	}
	httpServer := apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	size := setup.Plan.Extent.Size()
	fmt.Printf("\nevacsim is running: %d agents on a %.0fx%.0f m floor.\n",
		len(sim.AgentList()), size.X, size.Z)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	slog.Info("saving final run report...")
	if err := db.SaveRun(sim.Report()); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Run report saved.")
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
