// Package config loads the evacuation scenario: floor plan, route network,
// hazard zones, spawn settings and subsystem tuning.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/density"
	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/entropy"
	"github.com/talgya/evacsim/internal/hazard"
	"github.com/talgya/evacsim/internal/waypoint"
	"github.com/talgya/evacsim/internal/world"
)

//go:embed schema.json
var schemaJSON string

type Config struct {
	Seed             int64   `yaml:"seed"`
	TickRateHz       float64 `yaml:"tick_rate_hz"`
	ReportEveryTicks int     `yaml:"report_every_ticks"`

	Floor       FloorSpec    `yaml:"floor"`
	Routes      RouteSpec    `yaml:"routes"`
	HazardZones []BoxSpec    `yaml:"hazard_zones"`
	Spawn       SpawnSpec    `yaml:"spawn"`
	Navigation  NavSpec      `yaml:"navigation"`
	Decision    DecisionSpec `yaml:"decision"`
	Hazard      HazardSpec   `yaml:"hazard"`
	Density     DensitySpec  `yaml:"density"`
	API         APISpec      `yaml:"api"`
	Storage     StorageSpec  `yaml:"storage"`
}

type BoxSpec struct {
	Name string     `yaml:"name,omitempty"`
	Min  world.Vec3 `yaml:"min"`
	Max  world.Vec3 `yaml:"max"`
}

func (b BoxSpec) Bounds() world.Bounds { return world.Bounds{Min: b.Min, Max: b.Max} }

type ObstacleSpec struct {
	BoxSpec `yaml:",inline"`
	Layer   string `yaml:"layer,omitempty"`
	Trigger bool   `yaml:"trigger,omitempty"`
}

type FloorSpec struct {
	Extent    BoxSpec        `yaml:"extent"`
	EyeHeight float64        `yaml:"eye_height"`
	Obstacles []ObstacleSpec `yaml:"obstacles"`
	Clutter   ClutterSpec    `yaml:"clutter"`
}

type ClutterSpec struct {
	Enabled       bool    `yaml:"enabled"`
	Spacing       float64 `yaml:"spacing"`
	Threshold     float64 `yaml:"threshold"`
	KeepoutRadius float64 `yaml:"keepout_radius"`
}

type BeaconSpec struct {
	ID              uint32     `yaml:"id"`
	Name            string     `yaml:"name"`
	Position        world.Vec3 `yaml:"position"`
	VisibilityRange float64    `yaml:"visibility_range"`
	Active          *bool      `yaml:"active,omitempty"` // Defaults to true
	Next            uint32     `yaml:"next,omitempty"`
}

type RouteSpec struct {
	Beacons  []BeaconSpec `yaml:"beacons"`
	Exits    []world.Vec3 `yaml:"exits"`
	Finishes []world.Vec3 `yaml:"finishes"`
}

type SpawnSpec struct {
	Area          BoxSpec            `yaml:"area"`
	Count         int                `yaml:"count"` // Spawned at startup; 0 waits for the API
	MaxAttempts   int                `yaml:"max_attempts"`
	SampleRadius  float64            `yaml:"sample_radius"`
	ConfineWander bool               `yaml:"confine_wander"`
	Mix           map[string]float64 `yaml:"mix"`
}

type NavSpec struct {
	CellSize      float64 `yaml:"cell_size"`
	ContactRadius float64 `yaml:"contact_radius"`
}

type DecisionSpec struct {
	WanderInterval      float64 `yaml:"wander_interval"`
	WanderNearDistance  float64 `yaml:"wander_near_distance"`
	WanderRadius        float64 `yaml:"wander_radius"`
	WanderSampleRadius  float64 `yaml:"wander_sample_radius"`
	ExitExclusionRadius float64 `yaml:"exit_exclusion_radius"`
	GuideFollowDistance float64 `yaml:"guide_follow_distance"`
	GuideStopDistance   float64 `yaml:"guide_stop_distance"`
	FinishRadius        float64 `yaml:"finish_radius"`
	BeaconReachDistance float64 `yaml:"beacon_reach_distance"`
	BeaconStuckDistance float64 `yaml:"beacon_stuck_distance"`
	StuckSpeedSq        float64 `yaml:"stuck_speed_sq"`
	RepathDistance      float64 `yaml:"repath_distance"`
	ArrivalRemaining    float64 `yaml:"arrival_remaining"`
	AlignmentCutoff     float64 `yaml:"alignment_cutoff"`
	DistanceWeight      float64 `yaml:"distance_weight"`
	DirectionWeight     float64 `yaml:"direction_weight"`
	FleeDistance        float64 `yaml:"flee_distance"`
}

type HazardSpec struct {
	SpreadInterval float64 `yaml:"spread_interval"`
	MaxNodes       int     `yaml:"max_nodes"`
	SpreadRadius   float64 `yaml:"spread_radius"`
	SampleRadius   float64 `yaml:"sample_radius"`
	ThreatRadius   float64 `yaml:"threat_radius"`
	CarveRadius    float64 `yaml:"carve_radius"`
}

type DensitySpec struct {
	TileSize        float64 `yaml:"tile_size"`
	MaxPerTile      int     `yaml:"max_per_tile"`
	PenaltyDuration float64 `yaml:"penalty_duration"`
	SlowdownSpeed   float64 `yaml:"slowdown_speed"`
	Policy          string  `yaml:"policy"`
}

type APISpec struct {
	Port             int    `yaml:"port"`
	AdminKey         string `yaml:"admin_key,omitempty"`
	StreamEveryTicks int    `yaml:"stream_every_ticks"`
}

type StorageSpec struct {
	DBPath          string `yaml:"db_path"`
	TracePath       string `yaml:"trace_path,omitempty"` // Empty disables the frame trace
	TraceEveryTicks int    `yaml:"trace_every_ticks"`
}

// Load reads a scenario file over the built-in defaults. An empty path
// returns the defaults. The file is checked against the embedded schema
// before it is decoded.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	name := filepath.Base(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := validateSchema(raw); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString("evacsim.schema.json", schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
})

// validateSchema checks raw YAML against the schema. The document is round
// tripped through JSON so the validator sees plain JSON types.
func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	s, err := schema()
	if err != nil {
		return err
	}
	return s.Validate(v)
}

// Validate checks rules that span fields.
func (c *Config) Validate() error {
	var errs []error
	ext := c.Floor.Extent.Bounds()
	if ext.Max.X <= ext.Min.X || ext.Max.Z <= ext.Min.Z {
		errs = append(errs, errors.New("floor extent is empty"))
	}
	if c.TickRateHz <= 0 {
		errs = append(errs, errors.New("tick_rate_hz must be positive"))
	}
	if c.Navigation.CellSize <= 0 {
		errs = append(errs, errors.New("navigation cell_size must be positive"))
	}
	if c.Density.TileSize <= 0 {
		errs = append(errs, errors.New("density tile_size must be positive"))
	}
	if _, err := density.ParsePolicy(c.Density.Policy); err != nil {
		errs = append(errs, err)
	}
	for name := range c.Spawn.Mix {
		if _, err := agents.ParseCategory(name); err != nil {
			errs = append(errs, fmt.Errorf("spawn mix: %w", err))
		}
	}
	for _, o := range c.Floor.Obstacles {
		if _, err := world.ParseLayer(o.Layer); err != nil {
			errs = append(errs, fmt.Errorf("obstacle %q: %w", o.Name, err))
		}
	}
	sa := c.Spawn.Area.Bounds()
	if !ext.ContainsFlat(sa.Min) || !ext.ContainsFlat(sa.Max) {
		errs = append(errs, errors.New("spawn area must lie inside the floor extent"))
	}
	for _, f := range c.Routes.Finishes {
		if !ext.ContainsFlat(f) {
			errs = append(errs, fmt.Errorf("finish zone %s lies outside the floor extent", f))
		}
	}
	if _, err := c.graph(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) graph() (*waypoint.Graph, error) {
	beacons := make([]waypoint.Beacon, 0, len(c.Routes.Beacons))
	for _, b := range c.Routes.Beacons {
		active := true
		if b.Active != nil {
			active = *b.Active
		}
		beacons = append(beacons, waypoint.Beacon{
			ID:              waypoint.BeaconID(b.ID),
			Name:            b.Name,
			Position:        b.Position,
			VisibilityRange: b.VisibilityRange,
			Active:          active,
			Next:            waypoint.BeaconID(b.Next),
		})
	}
	return waypoint.NewGraph(beacons, c.Routes.Exits, c.Routes.Finishes)
}

// FloorPlan builds the static floor plan without clutter.
func (c *Config) FloorPlan() (*world.FloorPlan, error) {
	plan := world.NewFloorPlan(c.Floor.Extent.Bounds())
	if c.Floor.EyeHeight > 0 {
		plan.EyeHeight = c.Floor.EyeHeight
	}
	for _, o := range c.Floor.Obstacles {
		layer, err := world.ParseLayer(o.Layer)
		if err != nil {
			return nil, err
		}
		plan.AddObstacle(world.Obstacle{Name: o.Name, Box: o.Bounds(), Layer: layer, Trigger: o.Trigger})
	}
	return plan, nil
}

// Mix returns the category weights of a spawn batch.
func (c *Config) Mix() (agents.Mix, error) {
	if len(c.Spawn.Mix) == 0 {
		return agents.DefaultMix(), nil
	}
	var m agents.Mix
	for name, w := range c.Spawn.Mix {
		cat, err := agents.ParseCategory(name)
		if err != nil {
			return m, err
		}
		m[cat] = w
	}
	return m, nil
}

// Setup converts the scenario into simulation inputs.
func (c *Config) Setup() (engine.Setup, error) {
	plan, err := c.FloorPlan()
	if err != nil {
		return engine.Setup{}, fmt.Errorf("%w: %v", engine.ErrConfiguration, err)
	}
	routes, err := c.graph()
	if err != nil {
		return engine.Setup{}, fmt.Errorf("%w: %v", engine.ErrConfiguration, err)
	}
	mix, err := c.Mix()
	if err != nil {
		return engine.Setup{}, fmt.Errorf("%w: %v", engine.ErrConfiguration, err)
	}
	policy, err := density.ParsePolicy(c.Density.Policy)
	if err != nil {
		return engine.Setup{}, fmt.Errorf("%w: %v", engine.ErrConfiguration, err)
	}

	seed := c.Seed
	if seed == 0 {
		seed = entropy.Seed()
		slog.Info("scenario has no seed, drew one", "seed", seed)
	}

	zones := make([]world.Bounds, 0, len(c.HazardZones))
	for _, z := range c.HazardZones {
		zones = append(zones, z.Bounds())
	}

	var clutter *world.GenConfig
	if c.Floor.Clutter.Enabled {
		gc := world.DefaultGenConfig()
		gc.Seed = seed
		if c.Floor.Clutter.Spacing > 0 {
			gc.Spacing = c.Floor.Clutter.Spacing
		}
		if c.Floor.Clutter.Threshold > 0 {
			gc.Threshold = c.Floor.Clutter.Threshold
		}
		if c.Floor.Clutter.KeepoutRadius > 0 {
			gc.KeepoutRadius = c.Floor.Clutter.KeepoutRadius
		}
		gc.Keepout = append(gc.Keepout, c.Routes.Exits...)
		gc.Keepout = append(gc.Keepout, c.Routes.Finishes...)
		for _, b := range c.Routes.Beacons {
			gc.Keepout = append(gc.Keepout, b.Position)
		}
		clutter = &gc
	}

	d := c.Decision
	h := c.Hazard
	return engine.Setup{
		Plan:              plan,
		Routes:            routes,
		HazardZones:       zones,
		SpawnArea:         c.Spawn.Area.Bounds(),
		Clutter:           clutter,
		Mix:               mix,
		MaxAttempts:       c.Spawn.MaxAttempts,
		SpawnSampleRadius: c.Spawn.SampleRadius,
		ConfineWander:     c.Spawn.ConfineWander,
		NavCellSize:       c.Navigation.CellSize,
		ContactRadius:     c.Navigation.ContactRadius,
		Decision: agents.Params{
			WanderInterval:      d.WanderInterval,
			WanderNearDistance:  d.WanderNearDistance,
			WanderRadius:        d.WanderRadius,
			WanderSampleRadius:  d.WanderSampleRadius,
			ExitExclusionRadius: d.ExitExclusionRadius,
			GuideFollowDistance: d.GuideFollowDistance,
			GuideStopDistance:   d.GuideStopDistance,
			FinishRadius:        d.FinishRadius,
			BeaconReachDistance: d.BeaconReachDistance,
			BeaconStuckDistance: d.BeaconStuckDistance,
			StuckSpeedSq:        d.StuckSpeedSq,
			RepathDistance:      d.RepathDistance,
			ArrivalRemaining:    d.ArrivalRemaining,
			AlignmentCutoff:     d.AlignmentCutoff,
			DistanceWeight:      d.DistanceWeight,
			DirectionWeight:     d.DirectionWeight,
			FleeDistance:        d.FleeDistance,
		},
		Hazard: hazard.Config{
			SpreadInterval: h.SpreadInterval,
			MaxNodes:       h.MaxNodes,
			SpreadRadius:   h.SpreadRadius,
			SampleRadius:   h.SampleRadius,
			ThreatRadius:   h.ThreatRadius,
			CarveRadius:    h.CarveRadius,
		},
		Density: density.Config{
			TileSize:        c.Density.TileSize,
			MaxPerTile:      c.Density.MaxPerTile,
			PenaltyDuration: c.Density.PenaltyDuration,
			SlowdownSpeed:   c.Density.SlowdownSpeed,
			Policy:          policy,
		},
		Seed: seed,
	}, nil
}
