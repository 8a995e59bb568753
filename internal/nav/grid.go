// Package nav provides the navigation service agents move through: sampling of
// walkable points, grid A* path planning, path status queries, kinematic
// movement along planned paths, and carving of hazard cells.
package nav

import (
	"fmt"
	"math"

	"github.com/talgya/evacsim/internal/world"
)

// PathStatus describes how well a planned path reaches its destination.
type PathStatus uint8

const (
	PathComplete PathStatus = iota // Ends at the requested destination
	PathPartial                    // Ends at the reachable cell closest to it
	PathInvalid                    // No path could be planned
)

// StatusName returns a human-readable path status.
func StatusName(s PathStatus) string {
	switch s {
	case PathComplete:
		return "complete"
	case PathPartial:
		return "partial"
	default:
		return "invalid"
	}
}

// Handle identifies a moving body registered with the grid.
type Handle uint64

// Grid rasterizes a floor plan into square cells and plans over them.
type Grid struct {
	plan     *world.FloorPlan
	origin   world.Vec3 // Min corner of cell (0, 0)
	cellSize float64
	cols     int
	rows     int

	static []bool // Blocked by floor-plan obstacles
	carved []bool // Blocked at runtime (hazard nodes)

	movers map[Handle]*mover
}

type mover struct {
	pos     world.Vec3
	vel     world.Vec3
	speed   float64
	path    []world.Vec3 // Remaining waypoints, last is the path end
	status  PathStatus
	hasPath bool
	stopped bool
}

// NewGrid rasterizes plan with the given cell size.
func NewGrid(plan *world.FloorPlan, cellSize float64) (*Grid, error) {
	if cellSize <= 0 {
		return nil, fmt.Errorf("nav: cell size must be positive, got %v", cellSize)
	}
	size := plan.Extent.Size()
	cols := int(math.Ceil(size.X / cellSize))
	rows := int(math.Ceil(size.Z / cellSize))
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("nav: empty extent %v", size)
	}

	g := &Grid{
		plan:     plan,
		origin:   plan.Extent.Min.Flat(),
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		static:   make([]bool, cols*rows),
		carved:   make([]bool, cols*rows),
		movers:   make(map[Handle]*mover),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.static[r*cols+c] = !plan.Walkable(g.centre(c, r))
		}
	}
	return g, nil
}

// CellSize returns the raster resolution.
func (g *Grid) CellSize() float64 { return g.cellSize }

// Dimensions returns the column and row counts.
func (g *Grid) Dimensions() (cols, rows int) { return g.cols, g.rows }

func (g *Grid) cellOf(p world.Vec3) (int, int, bool) {
	c := int(math.Floor((p.X - g.origin.X) / g.cellSize))
	r := int(math.Floor((p.Z - g.origin.Z) / g.cellSize))
	if c < 0 || r < 0 || c >= g.cols || r >= g.rows {
		return c, r, false
	}
	return c, r, true
}

func (g *Grid) centre(c, r int) world.Vec3 {
	return world.Vec3{
		X: g.origin.X + (float64(c)+0.5)*g.cellSize,
		Z: g.origin.Z + (float64(r)+0.5)*g.cellSize,
	}
}

func (g *Grid) open(c, r int) bool {
	if c < 0 || r < 0 || c >= g.cols || r >= g.rows {
		return false
	}
	i := r*g.cols + c
	return !g.static[i] && !g.carved[i]
}

// Walkable reports whether p falls on an open cell.
func (g *Grid) Walkable(p world.Vec3) bool {
	c, r, ok := g.cellOf(p)
	return ok && g.open(c, r)
}

// SampleNavigable returns the navigable point nearest to p within radius on
// the floor plane. A point already on an open cell is returned unchanged;
// otherwise the nearest open cell centre is returned at p's elevation.
func (g *Grid) SampleNavigable(p world.Vec3, radius float64) (world.Vec3, bool) {
	if g.Walkable(p) {
		return p, true
	}
	span := int(math.Ceil(radius/g.cellSize)) + 1
	pc := int(math.Floor((p.X - g.origin.X) / g.cellSize))
	pr := int(math.Floor((p.Z - g.origin.Z) / g.cellSize))

	best := world.Zero
	bestDist := math.Inf(1)
	for r := pr - span; r <= pr+span; r++ {
		for c := pc - span; c <= pc+span; c++ {
			if !g.open(c, r) {
				continue
			}
			ctr := g.centre(c, r)
			d := ctr.Dist(p.Flat())
			if d <= radius && d < bestDist {
				bestDist = d
				best = ctr
			}
		}
	}
	if math.IsInf(bestDist, 1) {
		return world.Zero, false
	}
	best.Y = p.Y
	return best, true
}

// Carve closes every cell whose centre lies within radius of p and returns
// how many cells changed.
func (g *Grid) Carve(p world.Vec3, radius float64) int {
	span := int(math.Ceil(radius/g.cellSize)) + 1
	pc := int(math.Floor((p.X - g.origin.X) / g.cellSize))
	pr := int(math.Floor((p.Z - g.origin.Z) / g.cellSize))
	n := 0
	for r := pr - span; r <= pr+span; r++ {
		for c := pc - span; c <= pc+span; c++ {
			if c < 0 || r < 0 || c >= g.cols || r >= g.rows {
				continue
			}
			i := r*g.cols + c
			if g.carved[i] || g.centre(c, r).Dist(p.Flat()) > radius {
				continue
			}
			g.carved[i] = true
			n++
		}
	}
	return n
}

// ClearCarving reopens all carved cells.
func (g *Grid) ClearCarving() {
	for i := range g.carved {
		g.carved[i] = false
	}
}

// clearLine reports whether the straight floor segment a→b crosses only open
// cells. Walks every cell the segment touches (grid DDA); passing exactly
// through a corner requires both side cells to be open.
func (g *Grid) clearLine(a, b world.Vec3) bool {
	x0 := (a.X - g.origin.X) / g.cellSize
	z0 := (a.Z - g.origin.Z) / g.cellSize
	x1 := (b.X - g.origin.X) / g.cellSize
	z1 := (b.Z - g.origin.Z) / g.cellSize

	c, r := int(math.Floor(x0)), int(math.Floor(z0))
	ec, er := int(math.Floor(x1)), int(math.Floor(z1))

	stepC, tMaxX, tDeltaX := ddaAxis(x0, x1)
	stepR, tMaxZ, tDeltaZ := ddaAxis(z0, z1)

	for i := 0; i <= g.cols+g.rows; i++ {
		if !g.open(c, r) {
			return false
		}
		if c == ec && r == er {
			return true
		}
		switch {
		case tMaxX < tMaxZ:
			c += stepC
			tMaxX += tDeltaX
		case tMaxZ < tMaxX:
			r += stepR
			tMaxZ += tDeltaZ
		default:
			if !g.open(c+stepC, r) || !g.open(c, r+stepR) {
				return false
			}
			c += stepC
			r += stepR
			tMaxX += tDeltaX
			tMaxZ += tDeltaZ
		}
	}
	return false
}

func ddaAxis(from, to float64) (step int, tMax, tDelta float64) {
	d := to - from
	switch {
	case d > 0:
		return 1, (math.Floor(from) + 1 - from) / d, 1 / d
	case d < 0:
		return -1, (from - math.Floor(from)) / -d, 1 / -d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}
