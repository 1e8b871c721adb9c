package surface

import (
	"errors"
	"math"
	"sort"
)

var errCollinear = errors.New("no triangulation exists for collinear points")

const (
	// superScale sizes the enclosing triangle relative to the point set's span.
	superScale = 100.0
	// hullEps is the orientation tolerance in unit-square coordinates.
	hullEps = 1e-12
)

type point struct{ x, y float64 }

// mesh is a triangulation covering the convex hull of pts.
type mesh struct {
	pts  []point
	tris [][3]int // counter-clockwise
	nbr  [][3]int // nbr[t][k] is the triangle across the edge opposite vertex k, or -1
}

// orient is twice the signed area of abc; positive when counter-clockwise.
func orient(a, b, c point) float64 {
	return (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
}

type circumTri struct {
	v      [3]int
	cx, cy float64
	r2     float64
}

func newCircumTri(pts []point, a, b, c int) circumTri {
	if orient(pts[a], pts[b], pts[c]) < 0 {
		b, c = c, b
	}
	pa, pb, pc := pts[a], pts[b], pts[c]
	bx, by := pb.x-pa.x, pb.y-pa.y
	cx, cy := pc.x-pa.x, pc.y-pa.y
	d := 2 * (bx*cy - by*cx)
	if d == 0 {
		// A flat triangle has no finite circumcircle; the next insertion replaces it.
		return circumTri{
			v:  [3]int{a, b, c},
			cx: (pa.x + pb.x + pc.x) / 3,
			cy: (pa.y + pb.y + pc.y) / 3,
			r2: math.Inf(1),
		}
	}
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	ux := (cy*b2 - by*c2) / d
	uy := (bx*c2 - cx*b2) / d
	return circumTri{v: [3]int{a, b, c}, cx: pa.x + ux, cy: pa.y + uy, r2: ux*ux + uy*uy}
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// triangulate builds the Delaunay triangulation of pts by Bowyer-Watson
// insertion in x order, then fills the boundary out to the convex hull.
// pts must be free of duplicates.
func triangulate(pts []point) (*mesh, error) {
	n := len(pts)
	if n < 3 || !spansPlane(pts) {
		return nil, errCollinear
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		pi, pj := pts[order[i]], pts[order[j]]
		if pi.x != pj.x {
			return pi.x < pj.x
		}
		return pi.y < pj.y
	})

	minX, minY, maxX, maxY := bounds(pts)
	span := math.Max(maxX-minX, maxY-minY)
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	all := make([]point, n, n+3)
	copy(all, pts)
	all = append(all,
		point{midX - superScale*span, midY - span},
		point{midX, midY + superScale*span},
		point{midX + superScale*span, midY - span},
	)

	active := []circumTri{newCircumTri(all, n, n+1, n+2)}
	var done []circumTri
	counts := make(map[[2]int]int)
	var cavity [][2]int

	for _, idx := range order {
		p := all[idx]
		clear(counts)
		cavity = cavity[:0]

		kept := active[:0]
		for _, t := range active {
			dx := p.x - t.cx
			if dx > 0 && dx*dx > t.r2 {
				// Circumcircle lies wholly left of every remaining point.
				done = append(done, t)
				continue
			}
			dy := p.y - t.cy
			if dx*dx+dy*dy < t.r2 {
				for k := 0; k < 3; k++ {
					a, b := t.v[k], t.v[(k+1)%3]
					key := edgeKey(a, b)
					if counts[key] == 0 {
						cavity = append(cavity, [2]int{a, b})
					}
					counts[key]++
				}
				continue
			}
			kept = append(kept, t)
		}
		active = kept

		for _, e := range cavity {
			if counts[edgeKey(e[0], e[1])] == 1 {
				active = append(active, newCircumTri(all, e[0], e[1], idx))
			}
		}
	}

	tris := make([][3]int, 0, len(done)+len(active))
	for _, set := range [][]circumTri{done, active} {
		for _, t := range set {
			if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n {
				continue
			}
			if orient(pts[t.v[0]], pts[t.v[1]], pts[t.v[2]]) <= hullEps*hullEps {
				continue
			}
			tris = append(tris, t.v)
		}
	}

	m := &mesh{pts: pts, tris: convexify(pts, tris)}
	if len(m.tris) == 0 {
		return nil, errCollinear
	}
	m.link()
	return m, nil
}

// spansPlane reports whether pts has three points that are not collinear.
func spansPlane(pts []point) bool {
	far, best := 0, 0.0
	for i, p := range pts {
		d := math.Hypot(p.x-pts[0].x, p.y-pts[0].y)
		if d > best {
			far, best = i, d
		}
	}
	if best == 0 {
		return false
	}
	for _, p := range pts {
		if math.Abs(orient(pts[0], pts[far], p)) > hullEps*best {
			return true
		}
	}
	return false
}

func bounds(pts []point) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p.x)
		minY = math.Min(minY, p.y)
		maxX = math.Max(maxX, p.x)
		maxY = math.Max(maxY, p.y)
	}
	return minX, minY, maxX, maxY
}

// boundaryEdges returns the directed edges that have no twin, in triangle
// order, with the interior on their left.
func boundaryEdges(tris [][3]int) ([][2]int, map[int]int, map[int]bool) {
	directed := make(map[[2]int]bool, 3*len(tris))
	used := make(map[int]bool)
	for _, t := range tris {
		for k := 0; k < 3; k++ {
			directed[[2]int{t[k], t[(k+1)%3]}] = true
			used[t[k]] = true
		}
	}
	var edges [][2]int
	next := make(map[int]int)
	for _, t := range tris {
		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			if !directed[[2]int{b, a}] {
				edges = append(edges, [2]int{a, b})
				next[a] = b
			}
		}
	}
	return edges, next, used
}

// convexify adds triangles until every input point is covered and the
// boundary has no reflex corner, so the mesh spans the convex hull.
func convexify(pts []point, tris [][3]int) [][3]int {
	if len(tris) == 0 {
		return tris
	}
	for iter := 0; iter < 4*len(pts)+16; iter++ {
		edges, next, used := boundaryEdges(tris)

		if t, ok := attachOrphan(pts, edges, used); ok {
			tris = append(tris, t)
			continue
		}

		added := false
		for _, e := range edges {
			a, b := e[0], e[1]
			c, ok := next[b]
			if !ok || c == a {
				continue
			}
			if orient(pts[a], pts[b], pts[c]) < -hullEps && emptyTriangle(pts, a, c, b) {
				tris = append(tris, [3]int{a, c, b})
				added = true
				break
			}
		}
		if !added {
			break
		}
	}
	return tris
}

// attachOrphan connects the first point not used by any triangle to the
// nearest boundary edge it can see.
func attachOrphan(pts []point, edges [][2]int, used map[int]bool) ([3]int, bool) {
	for v := range pts {
		if used[v] {
			continue
		}
		best, bestDist := -1, math.Inf(1)
		for i, e := range edges {
			a, b := pts[e[0]], pts[e[1]]
			if orient(a, b, pts[v]) >= -hullEps || !emptyTriangle(pts, e[0], v, e[1]) {
				continue
			}
			if d := segmentDistance(pts[v], a, b); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			e := edges[best]
			return [3]int{e[0], v, e[1]}, true
		}
	}
	return [3]int{}, false
}

// emptyTriangle reports whether no point lies strictly inside the
// counter-clockwise triangle abc.
func emptyTriangle(pts []point, a, b, c int) bool {
	pa, pb, pc := pts[a], pts[b], pts[c]
	for i, p := range pts {
		if i == a || i == b || i == c {
			continue
		}
		if orient(pa, pb, p) > hullEps && orient(pb, pc, p) > hullEps && orient(pc, pa, p) > hullEps {
			return false
		}
	}
	return true
}

func segmentDistance(p, a, b point) float64 {
	dx, dy := b.x-a.x, b.y-a.y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.x-a.x, p.y-a.y)
	}
	t := ((p.x-a.x)*dx + (p.y-a.y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.x-(a.x+t*dx), p.y-(a.y+t*dy))
}

// link fills nbr from shared edges.
func (m *mesh) link() {
	owner := make(map[[2]int]int, 3*len(m.tris))
	for t, tri := range m.tris {
		for k := 0; k < 3; k++ {
			owner[[2]int{tri[k], tri[(k+1)%3]}] = t
		}
	}
	m.nbr = make([][3]int, len(m.tris))
	for t, tri := range m.tris {
		for k := 0; k < 3; k++ {
			a, b := tri[(k+1)%3], tri[(k+2)%3]
			if o, ok := owner[[2]int{b, a}]; ok {
				m.nbr[t][k] = o
			} else {
				m.nbr[t][k] = -1
			}
		}
	}
}

// adjacency returns the sorted neighbour list of every vertex.
func (m *mesh) adjacency() [][]int {
	sets := make([]map[int]struct{}, len(m.pts))
	for i := range sets {
		sets[i] = make(map[int]struct{})
	}
	for _, t := range m.tris {
		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			sets[a][b] = struct{}{}
			sets[b][a] = struct{}{}
		}
	}
	adj := make([][]int, len(m.pts))
	for i, s := range sets {
		for j := range s {
			adj[i] = append(adj[i], j)
		}
		sort.Ints(adj[i])
	}
	return adj
}
