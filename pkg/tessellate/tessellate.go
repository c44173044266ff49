// Package tessellate approximates curved primitives by polylines. Region
// extraction uses it to build closed rings for containment and orientation
// tests; the debug renderer uses it to draw curves.
package tessellate

import (
	"fmt"
	"math"

	"github.com/chazu/adze/pkg/geom"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

// DefaultFlatness is the maximum control-point deviation accepted for a
// Bézier chord.
const DefaultFlatness = 1e-3

// maxBezierDepth caps de Casteljau recursion for degenerate inputs.
const maxBezierDepth = 16

// Polyline is an ordered list of points approximating one primitive, tagged
// with the primitive it came from.
type Polyline struct {
	ElementID int
	Kind      geom.Kind
	Points    []v2.Vec
}

// Flatten returns the polyline of e from its start to its end, endpoints
// included. Nodes flatten to a single point.
func Flatten(e geom.Element, flatness float64) ([]v2.Vec, error) {
	switch v := e.(type) {
	case geom.Node:
		return []v2.Vec{v.Vec()}, nil
	case geom.Line:
		return []v2.Vec{v.Start.Vec(), v.End.Vec()}, nil
	case geom.CircleArc:
		return Arc(v), nil
	case geom.CubicBezier:
		return Bezier(v, flatness), nil
	default:
		return nil, fmt.Errorf("tessellate: unknown element %T", e)
	}
}

// Arc returns ceil(sweep/MaxSegDeg) chords from start to end. The endpoints
// are the arc's own nodes, not recomputed, so rings close exactly.
func Arc(a geom.CircleArc) []v2.Vec {
	sweep := a.SweepDeg()
	n := int(math.Ceil(sweep/a.SegDeg() - 1e-9))
	if n < 1 {
		n = 1
	}
	pts := make([]v2.Vec, 0, n+1)
	pts = append(pts, a.Start.Vec())
	step := a.Sweep() / float64(n)
	for i := 1; i < n; i++ {
		x, y := a.PointAt(step * float64(i))
		pts = append(pts, v2.Vec{X: x, Y: y})
	}
	return append(pts, a.End.Vec())
}

// Bezier flattens b by recursive de Casteljau subdivision until both
// control points lie within flatness of the chord.
func Bezier(b geom.CubicBezier, flatness float64) []v2.Vec {
	if flatness <= 0 {
		flatness = DefaultFlatness
	}
	out := []v2.Vec{b.Start.Vec()}
	flattenCubic(b.Start.Vec(), b.Control1.Vec(), b.Control2.Vec(), b.End.Vec(), flatness, 0, &out)
	return out
}

func flattenCubic(p0, p1, p2, p3 v2.Vec, flatness float64, depth int, out *[]v2.Vec) {
	if depth >= maxBezierDepth || (distToChord(p1, p0, p3) <= flatness && distToChord(p2, p0, p3) <= flatness) {
		*out = append(*out, p3)
		return
	}
	m01 := lerp(p0, p1)
	m12 := lerp(p1, p2)
	m23 := lerp(p2, p3)
	m012 := lerp(m01, m12)
	m123 := lerp(m12, m23)
	mid := lerp(m012, m123)
	flattenCubic(p0, m01, m012, mid, flatness, depth+1, out)
	flattenCubic(mid, m123, m23, p3, flatness, depth+1, out)
}

func lerp(a, b v2.Vec) v2.Vec { return a.Add(b).MulScalar(0.5) }

func distToChord(p, a, b v2.Vec) float64 {
	ab := b.Sub(a)
	l := ab.Length()
	if l == 0 {
		return p.Sub(a).Length()
	}
	ap := p.Sub(a)
	return math.Abs(ab.X*ap.Y-ab.Y*ap.X) / l
}

// Geometry flattens every curve primitive of g in container order.
func Geometry(g *geom.Geometry, flatness float64) ([]Polyline, error) {
	if g == nil {
		return nil, nil
	}
	var out []Polyline
	for _, e := range g.Elements() {
		pts, err := Flatten(e, flatness)
		if err != nil {
			return nil, fmt.Errorf("tessellate: element %d: %w", e.ElementID(), err)
		}
		out = append(out, Polyline{ElementID: e.ElementID(), Kind: e.Kind(), Points: pts})
	}
	return out, nil
}

// Reverse reverses pts in place and returns it.
func Reverse(pts []v2.Vec) []v2.Vec {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
	return pts
}

// SignedArea returns the shoelace area of the closed ring pts. The closing
// point may be omitted. Positive means counter-clockwise.
func SignedArea(pts []v2.Vec) float64 {
	if len(pts) < 3 {
		return 0
	}
	sum := 0.0
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum / 2
}
