package geom

import (
	"math"
	"sort"

	"github.com/chazu/adze/pkg/logging"
	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/dhconnelly/rtreego"
)

// curveRef is an rtree entry for a line or arc, keyed by its slice position.
type curveRef struct {
	kind Kind
	idx  int
	rect rtreego.Rect
}

func (c *curveRef) Bounds() rtreego.Rect { return c.rect }

func boundsOf(pts []v2.Vec, pad float64) rtreego.Rect {
	min, max := pts[0], pts[0]
	for _, p := range pts[1:] {
		min.X, min.Y = math.Min(min.X, p.X), math.Min(min.Y, p.Y)
		max.X, max.Y = math.Max(max.X, p.X), math.Max(max.Y, p.Y)
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{min.X - pad, min.Y - pad},
		[]float64{max.X - min.X + 2*pad, max.Y - min.Y + 2*pad},
	)
	if err != nil {
		rect, _ = rtreego.NewRect(rtreego.Point{0, 0}, []float64{pad, pad})
	}
	return rect
}

// arcBoundingPoints returns the endpoints and every axis extreme the arc passes.
func arcBoundingPoints(a CircleArc) []v2.Vec {
	pts := []v2.Vec{a.Start.Vec(), a.End.Vec()}
	r := a.Radius()
	for q := 0; q < 4; q++ {
		phi := float64(q) * math.Pi / 2
		x, y := a.Center.X+r*math.Cos(phi), a.Center.Y+r*math.Sin(phi)
		if a.OnSweep(x, y, 0) {
			pts = append(pts, v2.Vec{X: x, Y: y})
		}
	}
	return pts
}

func cross(a, b v2.Vec) float64 { return a.X*b.Y - a.Y*b.X }

// splitSet collects the nodes at which each primitive must be cut.
type splitSet struct {
	lines map[int][]Node
	arcs  map[int][]Node
}

// GenerateIntersections splits lines and arcs wherever another line or arc
// crosses their interior. Intersection points are snapped to existing nodes
// within the tolerance, so no near-duplicates are introduced. Pieces get
// fresh ids with the sign of the original.
//
// Collinear overlapping segments are cut at each other's interior endpoints
// and the coincident pieces deduplicated, so the union of the two is kept
// once as non-overlapping segments. Béziers are never split.
//
// It returns the number of cuts applied.
func (g *Geometry) GenerateIntersections() int {
	eps := g.Eps()
	pi := newPointIndex(g, eps)
	splits := splitSet{lines: map[int][]Node{}, arcs: map[int][]Node{}}

	tree := rtreego.NewTree(2, 25, 50)
	for i, l := range g.Lines {
		tree.Insert(&curveRef{kind: KindLine, idx: i, rect: boundsOf([]v2.Vec{l.Start.Vec(), l.End.Vec()}, eps)})
	}
	for i, a := range g.Arcs {
		tree.Insert(&curveRef{kind: KindArc, idx: i, rect: boundsOf(arcBoundingPoints(a), eps)})
	}

	visit := func(kind Kind, i int, rect rtreego.Rect) {
		for _, s := range tree.SearchIntersect(rect) {
			other := s.(*curveRef)
			// each unordered pair once: lines before arcs, then by index
			if other.kind < kind || (other.kind == kind && other.idx <= i) {
				continue
			}
			switch {
			case kind == KindLine && other.kind == KindLine:
				g.intersectLineLine(i, other.idx, pi, &splits)
			case kind == KindLine && other.kind == KindArc:
				g.intersectLineArc(i, other.idx, pi, &splits)
			case kind == KindArc && other.kind == KindArc:
				g.intersectArcArc(i, other.idx, pi, &splits)
			}
		}
	}
	for i, l := range g.Lines {
		visit(KindLine, i, boundsOf([]v2.Vec{l.Start.Vec(), l.End.Vec()}, eps))
	}
	for i, a := range g.Arcs {
		visit(KindArc, i, boundsOf(arcBoundingPoints(a), eps))
	}

	cuts := 0
	lines := make([]Line, 0, len(g.Lines))
	for i, l := range g.Lines {
		pieces := splitLine(l, splits.lines[i])
		cuts += len(pieces) - 1
		lines = append(lines, pieces...)
	}
	arcs := make([]CircleArc, 0, len(g.Arcs))
	for i, a := range g.Arcs {
		pieces := splitArc(a, splits.arcs[i])
		cuts += len(pieces) - 1
		arcs = append(arcs, pieces...)
	}
	g.Lines = lines
	g.Arcs = arcs
	g.dedupe()

	if cuts > 0 {
		logging.Logger().Debug("split primitives at intersections", "cuts", cuts)
	}
	return cuts
}

// interior reports whether p is farther than eps from both endpoints.
func interior(p v2.Vec, a, b Node, eps float64) bool {
	return p.Sub(a.Vec()).Length() > eps && p.Sub(b.Vec()).Length() > eps
}

func (g *Geometry) intersectLineLine(i, j int, pi *pointIndex, s *splitSet) {
	eps := pi.eps
	l1, l2 := g.Lines[i], g.Lines[j]
	p, r := l1.Start.Vec(), l1.End.Vec().Sub(l1.Start.Vec())
	q, sv := l2.Start.Vec(), l2.End.Vec().Sub(l2.Start.Vec())
	rl, sl := r.Length(), sv.Length()
	if rl == 0 || sl == 0 {
		return
	}

	denom := cross(r, sv)
	if math.Abs(denom) <= 1e-12*rl*sl {
		// Parallel. Only collinear overlap produces cuts.
		if math.Abs(cross(q.Sub(p), r))/rl > eps {
			return
		}
		for _, e := range []Node{l2.Start, l2.End} {
			if onSegment(e.Vec(), l1, eps) && interior(e.Vec(), l1.Start, l1.End, eps) {
				s.lines[i] = append(s.lines[i], pi.snap(e.X, e.Y))
			}
		}
		for _, e := range []Node{l1.Start, l1.End} {
			if onSegment(e.Vec(), l2, eps) && interior(e.Vec(), l2.Start, l2.End, eps) {
				s.lines[j] = append(s.lines[j], pi.snap(e.X, e.Y))
			}
		}
		return
	}

	qp := q.Sub(p)
	t := cross(qp, sv) / denom
	u := cross(qp, r) / denom
	if t < -eps/rl || t > 1+eps/rl || u < -eps/sl || u > 1+eps/sl {
		return
	}
	x := p.Add(r.MulScalar(t))
	in1 := interior(x, l1.Start, l1.End, eps)
	in2 := interior(x, l2.Start, l2.End, eps)
	if !in1 && !in2 {
		return
	}
	n := pi.snap(x.X, x.Y)
	if in1 {
		s.lines[i] = append(s.lines[i], n)
	}
	if in2 {
		s.lines[j] = append(s.lines[j], n)
	}
}

func onSegment(p v2.Vec, l Line, eps float64) bool {
	return l.DistanceTo(p.X, p.Y) <= eps
}

// onArc reports whether p lies on the arc within eps.
func onArc(p v2.Vec, a CircleArc, eps float64) bool {
	return math.Abs(p.Sub(a.Center.Vec()).Length()-a.Radius()) <= eps && a.OnSweep(p.X, p.Y, eps)
}

func (g *Geometry) intersectLineArc(i, j int, pi *pointIndex, s *splitSet) {
	eps := pi.eps
	l, a := g.Lines[i], g.Arcs[j]
	p, d := l.Start.Vec(), l.End.Vec().Sub(l.Start.Vec())
	c, r := a.Center.Vec(), a.Radius()

	f := p.Sub(c)
	qa := d.Dot(d)
	if qa == 0 {
		return
	}
	qb := 2 * f.Dot(d)
	qc := f.Dot(f) - r*r
	disc := qb*qb - 4*qa*qc

	var ts []float64
	switch {
	case disc < 0:
		// Tangent within tolerance still touches.
		t := -qb / (2 * qa)
		x := p.Add(d.MulScalar(t))
		if math.Abs(x.Sub(c).Length()-r) > eps {
			return
		}
		ts = []float64{t}
	default:
		sq := math.Sqrt(disc)
		ts = []float64{(-qb - sq) / (2 * qa), (-qb + sq) / (2 * qa)}
	}

	dl := math.Sqrt(qa)
	for _, t := range ts {
		if t < -eps/dl || t > 1+eps/dl {
			continue
		}
		x := p.Add(d.MulScalar(t))
		if !a.OnSweep(x.X, x.Y, eps) {
			continue
		}
		inL := interior(x, l.Start, l.End, eps)
		inA := interior(x, a.Start, a.End, eps)
		if !inL && !inA {
			continue
		}
		n := pi.snap(x.X, x.Y)
		if inL {
			s.lines[i] = append(s.lines[i], n)
		}
		if inA {
			s.arcs[j] = append(s.arcs[j], n)
		}
	}
}

func (g *Geometry) intersectArcArc(i, j int, pi *pointIndex, s *splitSet) {
	eps := pi.eps
	a1, a2 := g.Arcs[i], g.Arcs[j]
	c1, c2 := a1.Center.Vec(), a2.Center.Vec()
	r1, r2 := a1.Radius(), a2.Radius()
	dv := c2.Sub(c1)
	d := dv.Length()

	if d <= eps {
		// Concentric. Same radius means overlapping arcs: cut each at the
		// other's interior endpoints, like collinear segments.
		if math.Abs(r1-r2) > eps {
			return
		}
		for _, e := range []Node{a2.Start, a2.End} {
			if onArc(e.Vec(), a1, eps) && interior(e.Vec(), a1.Start, a1.End, eps) {
				s.arcs[i] = append(s.arcs[i], pi.snap(e.X, e.Y))
			}
		}
		for _, e := range []Node{a1.Start, a1.End} {
			if onArc(e.Vec(), a2, eps) && interior(e.Vec(), a2.Start, a2.End, eps) {
				s.arcs[j] = append(s.arcs[j], pi.snap(e.X, e.Y))
			}
		}
		return
	}
	if d > r1+r2+eps || d < math.Abs(r1-r2)-eps {
		return
	}

	along := (r1*r1 - r2*r2 + d*d) / (2 * d)
	h2 := r1*r1 - along*along
	if h2 < 0 {
		h2 = 0
	}
	h := math.Sqrt(h2)
	u := dv.MulScalar(1 / d)
	base := c1.Add(u.MulScalar(along))
	perp := v2.Vec{X: -u.Y, Y: u.X}
	pts := []v2.Vec{base.Add(perp.MulScalar(h))}
	if h > eps {
		pts = append(pts, base.Sub(perp.MulScalar(h)))
	}

	for _, x := range pts {
		if !a1.OnSweep(x.X, x.Y, eps) || !a2.OnSweep(x.X, x.Y, eps) {
			continue
		}
		in1 := interior(x, a1.Start, a1.End, eps)
		in2 := interior(x, a2.Start, a2.End, eps)
		if !in1 && !in2 {
			continue
		}
		n := pi.snap(x.X, x.Y)
		if in1 {
			s.arcs[i] = append(s.arcs[i], n)
		}
		if in2 {
			s.arcs[j] = append(s.arcs[j], n)
		}
	}
}

// pieceID keeps the sign of the original id on a fresh id.
func pieceID(orig int) int {
	if orig < 0 {
		return -NextID()
	}
	return NextID()
}

// splitLine cuts l at cuts, ordered along the line. The first piece keeps
// the original id.
func splitLine(l Line, cuts []Node) []Line {
	if len(cuts) == 0 {
		return []Line{l}
	}
	p, d := l.Start.Vec(), l.End.Vec().Sub(l.Start.Vec())
	dd := d.Dot(d)
	param := func(n Node) float64 { return n.Vec().Sub(p).Dot(d) / dd }
	cuts = uniqueNodes(cuts)
	sort.SliceStable(cuts, func(a, b int) bool { return param(cuts[a]) < param(cuts[b]) })

	out := make([]Line, 0, len(cuts)+1)
	prev := l.Start
	for k, c := range append(cuts, l.End) {
		id := l.ID
		if k > 0 {
			id = pieceID(l.ID)
		}
		out = append(out, Line{Start: prev, End: c, ID: id})
		prev = c
	}
	return out
}

// splitArc cuts a at cuts, ordered counter-clockwise from the start.
func splitArc(a CircleArc, cuts []Node) []CircleArc {
	if len(cuts) == 0 {
		return []CircleArc{a}
	}
	cuts = uniqueNodes(cuts)
	sort.SliceStable(cuts, func(i, j int) bool { return a.Offset(cuts[i].X, cuts[i].Y) < a.Offset(cuts[j].X, cuts[j].Y) })

	out := make([]CircleArc, 0, len(cuts)+1)
	prev := a.Start
	for k, c := range append(cuts, a.End) {
		id := a.ID
		if k > 0 {
			id = pieceID(a.ID)
		}
		out = append(out, CircleArc{Start: prev, Center: a.Center, End: c, ID: id, MaxSegDeg: a.MaxSegDeg})
		prev = c
	}
	return out
}

func uniqueNodes(ns []Node) []Node {
	seen := make(map[int]bool, len(ns))
	out := make([]Node, 0, len(ns))
	for _, n := range ns {
		if !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}

type edgeKey struct{ a, b int }

func undirected(a, b int) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// dedupe removes lines with the same endpoint ids as an earlier line and arcs
// with the same start, center and end as an earlier arc.
func (g *Geometry) dedupe() int {
	removed := 0
	seenLines := make(map[edgeKey]bool, len(g.Lines))
	lines := g.Lines[:0]
	for _, l := range g.Lines {
		k := undirected(l.Start.ID, l.End.ID)
		if seenLines[k] {
			removed++
			continue
		}
		seenLines[k] = true
		lines = append(lines, l)
	}
	g.Lines = lines

	type arcKey struct{ s, c, e int }
	seenArcs := make(map[arcKey]bool, len(g.Arcs))
	arcs := g.Arcs[:0]
	for _, a := range g.Arcs {
		k := arcKey{a.Start.ID, a.Center.ID, a.End.ID}
		if seenArcs[k] {
			removed++
			continue
		}
		seenArcs[k] = true
		arcs = append(arcs, a)
	}
	g.Arcs = arcs
	return removed
}
