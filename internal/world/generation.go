// Clutter generation using layered simplex noise.
// Scatters low furniture across a floor plan so crowds have to route around it.
package world

import (
	"fmt"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds clutter generation parameters.
type GenConfig struct {
	Seed      int64   // Random seed (0 = random)
	Spacing   float64 // Distance between candidate placements
	Threshold float64 // Noise level (0.0-1.0) above which a piece is placed
	Size      Vec3    // Footprint and height of one piece
	Margin    float64 // Clear band kept along the extent edges

	// Keepout points (exits, beacons, finish zones) with a clearance radius.
	Keepout       []Vec3
	KeepoutRadius float64
}

// DefaultGenConfig returns office-desk clutter: knee-high pieces that block
// movement but not sight.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:          0,
		Spacing:       3.0,
		Threshold:     0.62,
		Size:          Vec3{X: 1.6, Y: 0.75, Z: 0.8},
		Margin:        2.0,
		KeepoutRadius: 3.0,
	}
}

// GenerateClutter adds noise-placed obstacles to the plan and returns how many
// were placed. Pieces never overlap existing obstacles or keepout zones.
func GenerateClutter(plan *FloorPlan, cfg GenConfig) int {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.Spacing <= 0 {
		return 0
	}

	// Two layers: one for placement, one for orientation.
	placeNoise := opensimplex.NewNormalized(seed)
	turnNoise := opensimplex.NewNormalized(seed + 1)

	ext := plan.Extent
	placed := 0
	for x := ext.Min.X + cfg.Margin; x <= ext.Max.X-cfg.Margin; x += cfg.Spacing {
		for z := ext.Min.Z + cfg.Margin; z <= ext.Max.Z-cfg.Margin; z += cfg.Spacing {
			n := octaveNoise(placeNoise, x, z, 3, 0.08, 0.5)
			if n < cfg.Threshold {
				continue
			}

			size := cfg.Size
			if turnNoise.Eval2(x*0.2, z*0.2) > 0.5 {
				size.X, size.Z = size.Z, size.X
			}
			centre := Vec3{X: x, Y: size.Y / 2, Z: z}
			box := BoxAround(centre, size)

			if !clearOf(plan, box, cfg) {
				continue
			}

			plan.AddObstacle(Obstacle{
				Name:  fmt.Sprintf("desk-%d", placed+1),
				Box:   box,
				Layer: LayerDefault,
			})
			placed++
		}
	}
	return placed
}

func clearOf(plan *FloorPlan, box Bounds, cfg GenConfig) bool {
	for _, o := range plan.Obstacles {
		if overlapsFlat(o.Box, box) {
			return false
		}
	}
	centre := box.Center()
	for _, k := range cfg.Keepout {
		if centre.Flat().Dist(k.Flat()) < cfg.KeepoutRadius {
			return false
		}
	}
	return true
}

func overlapsFlat(a, b Bounds) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
