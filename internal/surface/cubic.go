package surface

import "math"

const (
	gradTol     = 1e-6
	gradMaxIter = 400
)

// cloughTocher is the C1 piecewise-cubic interpolant over a mesh: each
// triangle is split at its centroid into three cubic Bezier patches.
type cloughTocher struct {
	m    *mesh
	f    []float64
	grad [][2]float64
}

func newCloughTocher(m *mesh, f []float64) *cloughTocher {
	return &cloughTocher{
		m:    m,
		f:    f,
		grad: estimateGradients(m, f),
	}
}

// estimateGradients picks vertex gradients minimising the curvature of the
// interpolant along mesh edges, iterating vertex by vertex until the largest
// relative change drops below gradTol.
func estimateGradients(m *mesh, f []float64) [][2]float64 {
	adj := m.adjacency()
	grad := make([][2]float64, len(f))

	for iter := 0; iter < gradMaxIter; iter++ {
		worst := 0.0
		for i := range f {
			var q0, q1, q2, s0, s1 float64
			for _, j := range adj[i] {
				ex := m.pts[j].x - m.pts[i].x
				ey := m.pts[j].y - m.pts[i].y
				l := math.Hypot(ex, ey)
				l3 := l * l * l
				df2 := -ex*grad[j][0] - ey*grad[j][1]
				q0 += 4 * ex * ex / l3
				q1 += 4 * ex * ey / l3
				q2 += 4 * ey * ey / l3
				s := 6*(f[i]-f[j]) - 2*df2
				s0 += s * ex / l3
				s1 += s * ey / l3
			}
			det := q0*q2 - q1*q1
			if det == 0 {
				continue
			}
			r0 := (q2*s0 - q1*s1) / det
			r1 := (-q1*s0 + q0*s1) / det

			change := math.Max(math.Abs(grad[i][0]+r0), math.Abs(grad[i][1]+r1))
			grad[i] = [2]float64{-r0, -r1}
			change /= math.Max(1, math.Max(math.Abs(r0), math.Abs(r1)))
			worst = math.Max(worst, change)
		}
		if worst < gradTol {
			break
		}
	}
	return grad
}

// barycentric returns the coordinates of p relative to triangle t.
func (ct *cloughTocher) barycentric(t int, p point) [3]float64 {
	tri := ct.m.tris[t]
	return barycentricIn(ct.m.pts[tri[0]], ct.m.pts[tri[1]], ct.m.pts[tri[2]], p)
}

func barycentricIn(p0, p1, p2, p point) [3]float64 {
	det := (p1.y-p2.y)*(p0.x-p2.x) + (p2.x-p1.x)*(p0.y-p2.y)
	c0 := ((p1.y-p2.y)*(p.x-p2.x) + (p2.x-p1.x)*(p.y-p2.y)) / det
	c1 := ((p2.y-p0.y)*(p.x-p2.x) + (p0.x-p2.x)*(p.y-p2.y)) / det
	return [3]float64{c0, c1, 1 - c0 - c1}
}

// eval returns the interpolant inside triangle t at barycentric coordinates b.
func (ct *cloughTocher) eval(t int, b [3]float64) float64 {
	tri := ct.m.tris[t]
	p1, p2, p3 := ct.m.pts[tri[0]], ct.m.pts[tri[1]], ct.m.pts[tri[2]]
	g1, g2, g3 := ct.grad[tri[0]], ct.grad[tri[1]], ct.grad[tri[2]]

	e12x, e12y := p2.x-p1.x, p2.y-p1.y
	e23x, e23y := p3.x-p2.x, p3.y-p2.y
	e31x, e31y := p1.x-p3.x, p1.y-p3.y

	f1, f2, f3 := ct.f[tri[0]], ct.f[tri[1]], ct.f[tri[2]]

	df12 := +(g1[0]*e12x + g1[1]*e12y)
	df21 := -(g2[0]*e12x + g2[1]*e12y)
	df23 := +(g2[0]*e23x + g2[1]*e23y)
	df32 := -(g3[0]*e23x + g3[1]*e23y)
	df31 := +(g3[0]*e31x + g3[1]*e31y)
	df13 := -(g1[0]*e31x + g1[1]*e31y)

	c3000 := f1
	c2100 := (df12 + 3*c3000) / 3
	c2010 := (df13 + 3*c3000) / 3
	c0300 := f2
	c1200 := (df21 + 3*c0300) / 3
	c0210 := (df23 + 3*c0300) / 3
	c0030 := f3
	c1020 := (df31 + 3*c0030) / 3
	c0120 := (df32 + 3*c0030) / 3

	c2001 := (c2100 + c2010 + c3000) / 3
	c0201 := (c1200 + c0300 + c0210) / 3
	c0021 := (c1020 + c0120 + c0030) / 3

	// The cross-boundary derivative is taken towards the neighbour's
	// centroid, which keeps the patch affine invariant and C1 across edges.
	var g [3]float64
	for k := 0; k < 3; k++ {
		nb := ct.m.nbr[t][k]
		if nb < 0 {
			g[k] = -0.5
			continue
		}
		ntri := ct.m.tris[nb]
		q0, q1, q2 := ct.m.pts[ntri[0]], ct.m.pts[ntri[1]], ct.m.pts[ntri[2]]
		centroid := point{(q0.x + q1.x + q2.x) / 3, (q0.y + q1.y + q2.y) / 3}
		c := barycentricIn(p1, p2, p3, centroid)
		switch k {
		case 0:
			g[k] = (2*c[2] + c[1] - 1) / (2 - 3*c[2] - 3*c[1])
		case 1:
			g[k] = (2*c[0] + c[2] - 1) / (2 - 3*c[0] - 3*c[2])
		case 2:
			g[k] = (2*c[1] + c[0] - 1) / (2 - 3*c[1] - 3*c[0])
		}
	}

	c0111 := (g[0]*(-c0300+3*c0210-3*c0120+c0030) + (-c0300 + 2*c0210 - c0120 + c0021 + c0201)) / 2
	c1011 := (g[1]*(-c0030+3*c1020-3*c2010+c3000) + (-c0030 + 2*c1020 - c2010 + c2001 + c0021)) / 2
	c1101 := (g[2]*(-c3000+3*c2100-3*c1200+c0300) + (-c3000 + 2*c2100 - c1200 + c2001 + c0201)) / 2

	c1002 := (c1101 + c1011 + c2001) / 3
	c0102 := (c1101 + c0111 + c0201) / 3
	c0012 := (c1011 + c0111 + c0021) / 3

	c0003 := (c1002 + c0102 + c0012) / 3

	// Extended barycentric coordinates select the sub-triangle.
	minval := math.Min(b[0], math.Min(b[1], b[2]))
	b1 := b[0] - minval
	b2 := b[1] - minval
	b3 := b[2] - minval
	b4 := 3 * minval

	switch minval {
	case b[0]:
		return b2*b2*b2*c0300 + 3*b2*b2*b3*c0210 + 3*b2*b3*b3*c0120 + b3*b3*b3*c0030 +
			3*b2*b2*b4*c0201 + 6*b2*b3*b4*c0111 + 3*b3*b3*b4*c0021 +
			3*b2*b4*b4*c0102 + 3*b3*b4*b4*c0012 + b4*b4*b4*c0003
	case b[1]:
		return b1*b1*b1*c3000 + 3*b1*b1*b3*c2010 + 3*b1*b3*b3*c1020 + b3*b3*b3*c0030 +
			3*b1*b1*b4*c2001 + 6*b1*b3*b4*c1011 + 3*b3*b3*b4*c0021 +
			3*b1*b4*b4*c1002 + 3*b3*b4*b4*c0012 + b4*b4*b4*c0003
	default:
		return b1*b1*b1*c3000 + 3*b1*b1*b2*c2100 + 3*b1*b2*b2*c1200 + b2*b2*b2*c0300 +
			3*b1*b1*b4*c2001 + 6*b1*b2*b4*c1101 + 3*b2*b2*b4*c0201 +
			3*b1*b4*b4*c1002 + 3*b2*b4*b4*c0102 + b4*b4*b4*c0003
	}
}
