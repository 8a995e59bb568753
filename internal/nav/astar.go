package nav

import (
	"container/heap"
	"math"

	"github.com/talgya/evacsim/internal/world"
)

type node struct {
	idx   int
	f     float64
	order int
}

type openSet []node

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f == o[j].f {
		return o[i].order < o[j].order
	}
	return o[i].f < o[j].f
}
func (o openSet) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o *openSet) Push(x any)   { *o = append(*o, x.(node)) }
func (o *openSet) Pop() any {
	old := *o
	n := old[len(old)-1]
	*o = old[:len(old)-1]
	return n
}

var neighbours = [8][3]float64{
	{1, 0, 1}, {-1, 0, 1}, {0, 1, 1}, {0, -1, 1},
	{1, 1, math.Sqrt2}, {1, -1, math.Sqrt2}, {-1, 1, math.Sqrt2}, {-1, -1, math.Sqrt2},
}

func octile(c0, r0, c1, r1 int) float64 {
	dx := math.Abs(float64(c1 - c0))
	dz := math.Abs(float64(r1 - r0))
	return math.Max(dx, dz) + (math.Sqrt2-1)*math.Min(dx, dz)
}

// findPath runs A* from start to dest. The start cell is always enterable so a
// body standing on a freshly carved cell can still leave it. When dest is not
// reachable the path ends at the explored cell closest to it.
func (g *Grid) findPath(start, dest world.Vec3) ([]world.Vec3, PathStatus) {
	sc, sr, ok := g.cellOf(start)
	if !ok {
		return nil, PathInvalid
	}
	gc, gr, goalInside := g.cellOf(dest)
	goalOpen := goalInside && g.open(gc, gr)
	if !goalInside {
		gc = clampInt(gc, 0, g.cols-1)
		gr = clampInt(gr, 0, g.rows-1)
	}

	startIdx := sr*g.cols + sc
	goalIdx := gr*g.cols + gc

	cost := map[int]float64{startIdx: 0}
	parent := map[int]int{startIdx: -1}
	closed := make(map[int]bool)

	best := startIdx
	bestH := octile(sc, sr, gc, gr)

	open := &openSet{{idx: startIdx, f: bestH}}
	order := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(node)
		if closed[cur.idx] {
			continue
		}
		closed[cur.idx] = true

		cc, cr := cur.idx%g.cols, cur.idx/g.cols
		if h := octile(cc, cr, gc, gr); h < bestH {
			best, bestH = cur.idx, h
		}
		if cur.idx == goalIdx {
			break
		}

		for _, n := range neighbours {
			nc, nr := cc+int(n[0]), cr+int(n[1])
			if !g.open(nc, nr) {
				continue
			}
			// No corner cutting on diagonals.
			if n[0] != 0 && n[1] != 0 && (!g.open(cc+int(n[0]), cr) || !g.open(cc, cr+int(n[1]))) {
				continue
			}
			ni := nr*g.cols + nc
			if closed[ni] {
				continue
			}
			nextCost := cost[cur.idx] + n[2]
			if prev, seen := cost[ni]; seen && prev <= nextCost {
				continue
			}
			cost[ni] = nextCost
			parent[ni] = cur.idx
			order++
			heap.Push(open, node{idx: ni, f: nextCost + octile(nc, nr, gc, gr), order: order})
		}
	}

	status := PathComplete
	end := goalIdx
	if !closed[goalIdx] || !goalOpen {
		status = PathPartial
		end = best
	}
	if end == startIdx && status == PathPartial {
		// Already at the closest reachable cell.
		return []world.Vec3{withY(g.centre(sc, sr), start.Y)}, PathPartial
	}

	var cells []int
	for i := end; i != -1; i = parent[i] {
		cells = append(cells, i)
	}
	// Reverse to start→end, dropping the start cell.
	path := make([]world.Vec3, 0, len(cells))
	for i := len(cells) - 2; i >= 0; i-- {
		idx := cells[i]
		path = append(path, withY(g.centre(idx%g.cols, idx/g.cols), start.Y))
	}
	if status == PathComplete {
		if len(path) > 0 {
			path[len(path)-1] = dest
		} else {
			path = append(path, dest)
		}
	}
	return g.smooth(start, path), status
}

// smooth drops waypoints that can be skipped along a straight open line.
func (g *Grid) smooth(start world.Vec3, path []world.Vec3) []world.Vec3 {
	if len(path) < 3 {
		return path
	}
	out := make([]world.Vec3, 0, len(path))
	anchor := start
	if !g.Walkable(anchor) {
		anchor = path[0]
		out = append(out, path[0])
		path = path[1:]
	}
	i := 0
	for i < len(path) {
		j := len(path) - 1
		for j > i && !g.clearLine(anchor, path[j]) {
			j--
		}
		out = append(out, path[j])
		anchor = path[j]
		i = j + 1
	}
	return out
}

func withY(p world.Vec3, y float64) world.Vec3 {
	p.Y = y
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
