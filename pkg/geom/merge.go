package geom

import (
	"math"

	"github.com/chazu/adze/pkg/logging"
	"github.com/dhconnelly/rtreego"
)

// indexedPoint is an rtree entry for the node at position idx of a node list.
type indexedPoint struct {
	idx  int
	rect rtreego.Rect
}

func (p *indexedPoint) Bounds() rtreego.Rect { return p.rect }

// box returns the square of half-width r centered at (x, y).
func box(x, y, r float64) rtreego.Rect {
	if r <= 0 {
		r = DefaultEpsilon
	}
	rect, err := rtreego.NewRect(rtreego.Point{x - r, y - r}, []float64{2 * r, 2 * r})
	if err != nil {
		// Only reachable with non-finite coordinates.
		rect, _ = rtreego.NewRect(rtreego.Point{0, 0}, []float64{r, r})
	}
	return rect
}

// pointIndex answers "which nodes lie within eps of (x, y)" queries and
// allocates new nodes that are guaranteed not to duplicate existing ones.
type pointIndex struct {
	g    *Geometry
	eps  float64
	tree *rtreego.Rtree
}

func newPointIndex(g *Geometry, eps float64) *pointIndex {
	pi := &pointIndex{g: g, eps: eps, tree: rtreego.NewTree(2, 25, 50)}
	for i, n := range g.Nodes {
		pi.tree.Insert(&indexedPoint{idx: i, rect: box(n.X, n.Y, eps/4)})
	}
	return pi
}

// near returns node indices within eps of (x, y), closest first.
func (pi *pointIndex) near(x, y float64) []int {
	var out []int
	var dists []float64
	for _, s := range pi.tree.SearchIntersect(box(x, y, pi.eps)) {
		idx := s.(*indexedPoint).idx
		n := pi.g.Nodes[idx]
		d := math.Hypot(n.X-x, n.Y-y)
		if d >= pi.eps {
			continue
		}
		// insertion keeps the result sorted by distance, then index
		pos := len(out)
		for pos > 0 && (dists[pos-1] > d || (dists[pos-1] == d && out[pos-1] > idx)) {
			pos--
		}
		out = append(out, 0)
		dists = append(dists, 0)
		copy(out[pos+1:], out[pos:])
		copy(dists[pos+1:], dists[pos:])
		out[pos], dists[pos] = idx, d
	}
	return out
}

// snap returns an existing node within eps of (x, y) or registers a new one.
func (pi *pointIndex) snap(x, y float64) Node {
	if hits := pi.near(x, y); len(hits) > 0 {
		return pi.g.Nodes[hits[0]]
	}
	n := NewNode(x, y)
	pi.g.Nodes = append(pi.g.Nodes, n)
	pi.tree.Insert(&indexedPoint{idx: len(pi.g.Nodes) - 1, rect: box(x, y, pi.eps/4)})
	return n
}

// MergePoints collapses every group of nodes closer than eps onto the
// lowest-indexed member of the group. Grouping is the transitive closure of
// the "closer than eps" relation, so no two surviving nodes are within eps.
// Every primitive endpoint is rewritten to its representative (id and
// coordinates) and lines that become zero-length are dropped.
// It returns the number of nodes removed.
func (g *Geometry) MergePoints(eps float64) (int, error) {
	if eps <= 0 || math.IsNaN(eps) {
		return 0, ErrInvalidEpsilon
	}

	n := len(g.Nodes)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	idx := newPointIndex(g, eps)
	for i, nd := range g.Nodes {
		for _, j := range idx.near(nd.X, nd.Y) {
			if j != i {
				union(i, j)
			}
		}
	}

	// Map every id to its representative. The first occurrence of an id
	// decides, so an id shared by distant nodes maps consistently.
	repr := make(map[int]Node, n)
	survivors := make([]Node, 0, n)
	for i, nd := range g.Nodes {
		root := find(i)
		if root == i {
			survivors = append(survivors, nd)
		}
		if _, seen := repr[nd.ID]; !seen {
			repr[nd.ID] = g.Nodes[root]
		}
	}
	removed := n - len(survivors)

	rewrite := func(nd Node) Node {
		if r, ok := repr[nd.ID]; ok {
			return r
		}
		return nd
	}
	g.Nodes = survivors
	for i := range g.Lines {
		l := &g.Lines[i]
		l.Start, l.End = rewrite(l.Start), rewrite(l.End)
	}
	for i := range g.Arcs {
		a := &g.Arcs[i]
		a.Start, a.Center, a.End = rewrite(a.Start), rewrite(a.Center), rewrite(a.End)
	}
	for i := range g.Beziers {
		b := &g.Beziers[i]
		b.Start, b.Control1, b.Control2, b.End = rewrite(b.Start), rewrite(b.Control1), rewrite(b.Control2), rewrite(b.End)
	}

	lines := g.Lines[:0]
	for _, l := range g.Lines {
		if l.Start.ID == l.End.ID {
			logging.Logger().Debug("dropping zero-length line", "id", l.ID)
			continue
		}
		lines = append(lines, l)
	}
	g.Lines = lines

	arcs := g.Arcs[:0]
	for _, a := range g.Arcs {
		if a.Start.ID == a.Center.ID || a.End.ID == a.Center.ID {
			logging.Logger().Debug("dropping collapsed arc", "id", a.ID)
			continue
		}
		arcs = append(arcs, a)
	}
	g.Arcs = arcs

	return removed, nil
}
