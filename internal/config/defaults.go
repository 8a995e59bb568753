package config

import (
	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/density"
	"github.com/talgya/evacsim/internal/hazard"
	"github.com/talgya/evacsim/internal/world"
)

// Default returns the built-in office scenario: a 60 m square floor split by
// two partitions, five beacons draining into the east hall and two rooms where
// a fire may start.
func Default() Config {
	p := agents.DefaultParams()
	h := hazard.DefaultConfig()
	d := density.DefaultConfig()

	return Config{
		Seed:             42,
		TickRateHz:       30,
		ReportEveryTicks: 300,
		Floor: FloorSpec{
			Extent:    box("", -30, -30, 30, 30),
			EyeHeight: world.DefaultEyeHeight,
			Obstacles: []ObstacleSpec{
				{BoxSpec: box("partition-north", -12, 8, 12, 9)},
				{BoxSpec: box("partition-south", -12, -9, 12, -8)},
				{BoxSpec: box("glass-east", 10, 3, 11, 7), Layer: "ignore_raycast"},
				{BoxSpec: box("door-sensor", 26, -2, 28, 2), Trigger: true},
			},
			Clutter: ClutterSpec{Enabled: true, Spacing: 3, Threshold: 0.62, KeepoutRadius: 3},
		},
		Routes: RouteSpec{
			Beacons: []BeaconSpec{
				{ID: 1, Name: "west-hall", Position: world.V(-20, 0, 0), VisibilityRange: 25, Next: 2},
				{ID: 2, Name: "centre", Position: world.V(0, 0, 0), VisibilityRange: 25, Next: 3},
				{ID: 3, Name: "east-hall", Position: world.V(20, 0, 0), VisibilityRange: 25},
				{ID: 4, Name: "north-room", Position: world.V(0, 0, 20), VisibilityRange: 25, Next: 2},
				{ID: 5, Name: "south-room", Position: world.V(0, 0, -20), VisibilityRange: 25, Next: 3},
			},
			Exits:    []world.Vec3{world.V(27, 0, 0), world.V(-27, 0, 27)},
			Finishes: []world.Vec3{world.V(29, 0, 0), world.V(-29, 0, 29)},
		},
		HazardZones: []BoxSpec{
			box("kitchen", -26, -26, -18, -18),
			box("server-room", 18, 18, 26, 26),
		},
		Spawn: SpawnSpec{
			Area:        box("", -25, -25, 25, 25),
			MaxAttempts: 200,
		},
		Navigation: NavSpec{CellSize: 0.5, ContactRadius: 1},
		Decision: DecisionSpec{
			WanderInterval:      p.WanderInterval,
			WanderNearDistance:  p.WanderNearDistance,
			WanderRadius:        p.WanderRadius,
			WanderSampleRadius:  p.WanderSampleRadius,
			ExitExclusionRadius: p.ExitExclusionRadius,
			GuideFollowDistance: p.GuideFollowDistance,
			GuideStopDistance:   p.GuideStopDistance,
			FinishRadius:        p.FinishRadius,
			BeaconReachDistance: p.BeaconReachDistance,
			BeaconStuckDistance: p.BeaconStuckDistance,
			StuckSpeedSq:        p.StuckSpeedSq,
			RepathDistance:      p.RepathDistance,
			ArrivalRemaining:    p.ArrivalRemaining,
			AlignmentCutoff:     p.AlignmentCutoff,
			DistanceWeight:      p.DistanceWeight,
			DirectionWeight:     p.DirectionWeight,
			FleeDistance:        p.FleeDistance,
		},
		Hazard: HazardSpec{
			SpreadInterval: h.SpreadInterval,
			MaxNodes:       h.MaxNodes,
			SpreadRadius:   h.SpreadRadius,
			SampleRadius:   h.SampleRadius,
			ThreatRadius:   h.ThreatRadius,
			CarveRadius:    h.CarveRadius,
		},
		Density: DensitySpec{
			TileSize:        d.TileSize,
			MaxPerTile:      d.MaxPerTile,
			PenaltyDuration: d.PenaltyDuration,
			SlowdownSpeed:   d.SlowdownSpeed,
			Policy:          density.PolicyName(d.Policy),
		},
		API:     APISpec{Port: 8080, StreamEveryTicks: 3},
		Storage: StorageSpec{DBPath: "evacsim.db", TraceEveryTicks: 15},
	}
}

func box(name string, x0, z0, x1, z1 float64) BoxSpec {
	return BoxSpec{Name: name, Min: world.V(x0, 0, z0), Max: world.V(x1, 3, z1)}
}
