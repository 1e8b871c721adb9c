package surface

import (
	"math"
	"math/rand"
	"testing"
)

func meshArea(m *mesh) float64 {
	area := 0.0
	for _, t := range m.tris {
		area += orient(m.pts[t[0]], m.pts[t[1]], m.pts[t[2]]) / 2
	}
	return area
}

func TestTriangulate_LatticeCoversUnitSquare(t *testing.T) {
	var pts []point
	for i := 0; i <= 6; i++ {
		for j := 0; j <= 4; j++ {
			pts = append(pts, point{float64(i) / 6, float64(j) / 4})
		}
	}
	m, err := triangulate(pts)
	if err != nil {
		t.Fatalf("triangulate failed: %v", err)
	}
	if a := meshArea(m); math.Abs(a-1) > 1e-9 {
		t.Errorf("expected area 1, got %v", a)
	}
	if got, want := len(m.tris), 2*6*4; got != want {
		t.Errorf("expected %d triangles, got %d", want, got)
	}
	for i, tri := range m.tris {
		if orient(m.pts[tri[0]], m.pts[tri[1]], m.pts[tri[2]]) <= 0 {
			t.Fatalf("triangle %d is not counter-clockwise", i)
		}
	}
}

func TestTriangulate_ScatterCoversHull(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pts := []point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i := 0; i < 200; i++ {
		pts = append(pts, point{rng.Float64(), rng.Float64()})
	}
	m, err := triangulate(pts)
	if err != nil {
		t.Fatalf("triangulate failed: %v", err)
	}
	if a := meshArea(m); math.Abs(a-1) > 1e-9 {
		t.Errorf("expected area 1, got %v", a)
	}

	used := make(map[int]bool)
	for _, tri := range m.tris {
		for _, v := range tri {
			used[v] = true
		}
	}
	if len(used) != len(pts) {
		t.Errorf("expected every point to be a vertex, %d of %d used", len(used), len(pts))
	}

	// Euler: a triangulation of n points with h on the hull has 2n-h-2 triangles.
	if got, want := len(m.tris), 2*len(pts)-4-2; got != want {
		t.Errorf("expected %d triangles, got %d", want, got)
	}
}

func TestTriangulate_NeighboursAreSymmetric(t *testing.T) {
	pts := []point{{0, 0}, {1, 0}, {0.5, 1}, {0.5, 0.3}, {0.2, 0.4}}
	m, err := triangulate(pts)
	if err != nil {
		t.Fatalf("triangulate failed: %v", err)
	}
	for tIdx, nbrs := range m.nbr {
		for _, nb := range nbrs {
			if nb < 0 {
				continue
			}
			found := false
			for _, back := range m.nbr[nb] {
				if back == tIdx {
					found = true
				}
			}
			if !found {
				t.Errorf("triangle %d lists %d as neighbour but not vice versa", tIdx, nb)
			}
		}
	}
}

func TestTriangulate_Collinear(t *testing.T) {
	pts := []point{{0, 0}, {0.5, 0.5}, {1, 1}}
	if _, err := triangulate(pts); err != errCollinear {
		t.Errorf("expected errCollinear, got %v", err)
	}
	if _, err := triangulate(pts[:2]); err != errCollinear {
		t.Errorf("expected errCollinear for two points, got %v", err)
	}
}
