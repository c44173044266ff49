package geom

import (
	"math"

	"github.com/chazu/adze/pkg/logging"
)

// MergeLines removes duplicate segments, then repeatedly joins two segments
// that share exactly one endpoint when that endpoint touches no other
// primitive and the segments are collinear within the tolerance. The joined
// segment keeps the first segment's id and direction; the shared node is
// removed. It returns the number of joins and duplicates removed.
func (g *Geometry) MergeLines() int {
	merged := g.dedupe()
	eps := g.Eps()

	for {
		i, j, shared, ok := g.findCollinearPair(eps)
		if !ok {
			break
		}
		g.joinLines(i, j, shared)
		merged++
	}
	if merged > 0 {
		logging.Logger().Debug("merged lines", "count", merged)
	}
	return merged
}

// findCollinearPair returns the first pair of lines meeting at a degree-2
// node that can be joined.
func (g *Geometry) findCollinearPair(eps float64) (i, j int, shared Node, ok bool) {
	degree := make(map[int]int)
	incident := make(map[int][]int) // node id -> line indices
	pinned := make(map[int]bool)    // referenced as arc center or bézier control

	for k, l := range g.Lines {
		degree[l.Start.ID]++
		degree[l.End.ID]++
		incident[l.Start.ID] = append(incident[l.Start.ID], k)
		incident[l.End.ID] = append(incident[l.End.ID], k)
	}
	for _, a := range g.Arcs {
		degree[a.Start.ID]++
		degree[a.End.ID]++
		pinned[a.Center.ID] = true
	}
	for _, b := range g.Beziers {
		degree[b.Start.ID]++
		degree[b.End.ID]++
		pinned[b.Control1.ID] = true
		pinned[b.Control2.ID] = true
	}

	// Scan in line order so the result is deterministic.
	for k, l := range g.Lines {
		for _, n := range []Node{l.Start, l.End} {
			if degree[n.ID] != 2 || pinned[n.ID] || len(incident[n.ID]) != 2 {
				continue
			}
			a, b := incident[n.ID][0], incident[n.ID][1]
			if a != k {
				continue
			}
			far1, far2 := otherEnd(g.Lines[a], n.ID), otherEnd(g.Lines[b], n.ID)
			if far1.ID == far2.ID {
				continue
			}
			if collinearThrough(far1, n, far2, eps) {
				return a, b, n, true
			}
		}
	}
	return 0, 0, Node{}, false
}

func otherEnd(l Line, id int) Node {
	if l.Start.ID == id {
		return l.End
	}
	return l.Start
}

// collinearThrough reports whether mid lies on the segment a-b within eps
// and strictly between the two.
func collinearThrough(a, mid, b Node, eps float64) bool {
	ab := b.Vec().Sub(a.Vec())
	l := ab.Length()
	if l == 0 {
		return false
	}
	am := mid.Vec().Sub(a.Vec())
	if math.Abs(cross(ab, am))/l > eps {
		return false
	}
	t := am.Dot(ab) / (l * l)
	return t > 0 && t < 1
}

// joinLines replaces lines i and j, which meet at shared, with one line.
func (g *Geometry) joinLines(i, j int, shared Node) {
	li, lj := g.Lines[i], g.Lines[j]
	far := otherEnd(lj, shared.ID)
	if li.End.ID == shared.ID {
		li.End = far
	} else {
		li.Start = far
	}
	g.Lines[i] = li
	g.Lines = append(g.Lines[:j], g.Lines[j+1:]...)

	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if n.ID != shared.ID {
			nodes = append(nodes, n)
		}
	}
	g.Nodes = nodes
}
