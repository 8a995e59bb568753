// Package world provides floor-plan geometry: points, boxes, obstacles and
// line-of-sight queries. The floor is the X/Z plane; Y is elevation.
package world

import (
	"fmt"
	"math"
	"math/rand"
)

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Zero is the zero vector.
var Zero = Vec3{}

// Up is the unit elevation axis.
var Up = Vec3{Y: 1}

// V returns a vector from components.
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Len returns the Euclidean length.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// LenSq returns the squared length.
func (v Vec3) LenSq() float64 { return v.Dot(v) }

// Dist returns the Euclidean distance between two points.
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// Flat drops the elevation component.
func (v Vec3) Flat() Vec3 { return Vec3{X: v.X, Z: v.Z} }

// IsZero reports whether all components are exactly zero.
func (v Vec3) IsZero() bool { return v == Zero }

// Normalize returns the unit vector in the same direction, or Zero for a
// degenerate vector.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < 1e-9 {
		return Zero
	}
	return v.Scale(1 / l)
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// RandomInsideUnitSphere returns a uniformly distributed point inside the unit sphere.
func RandomInsideUnitSphere(rng *rand.Rand) Vec3 {
	for {
		p := Vec3{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		if p.LenSq() <= 1 {
			return p
		}
	}
}

// Bounds is an axis-aligned box.
type Bounds struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

// Center returns the box midpoint.
func (b Bounds) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the box extents.
func (b Bounds) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Contains reports whether p lies inside the box (inclusive).
func (b Bounds) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsFlat reports whether p's floor projection lies inside the box footprint.
func (b Bounds) ContainsFlat(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// RandomPoint returns a random point on the box footprint at elevation y.
func (b Bounds) RandomPoint(rng *rand.Rand, y float64) Vec3 {
	return Vec3{
		X: b.Min.X + rng.Float64()*(b.Max.X-b.Min.X),
		Y: y,
		Z: b.Min.Z + rng.Float64()*(b.Max.Z-b.Min.Z),
	}
}

// BoxAround returns the box centred on c with the given full size.
func BoxAround(c, size Vec3) Bounds {
	half := size.Scale(0.5)
	return Bounds{Min: c.Sub(half), Max: c.Add(half)}
}

// SegmentHits reports whether the segment from a to b intersects the box
// (slab method).
func (b Bounds) SegmentHits(a, c Vec3) bool {
	d := c.Sub(a)
	tmin, tmax := 0.0, 1.0
	axes := [3][4]float64{
		{a.X, d.X, b.Min.X, b.Max.X},
		{a.Y, d.Y, b.Min.Y, b.Max.Y},
		{a.Z, d.Z, b.Min.Z, b.Max.Z},
	}
	for _, ax := range axes {
		origin, dir, lo, hi := ax[0], ax[1], ax[2], ax[3]
		if math.Abs(dir) < 1e-12 {
			if origin < lo || origin > hi {
				return false
			}
			continue
		}
		t1 := (lo - origin) / dir
		t2 := (hi - origin) / dir
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return true
}
