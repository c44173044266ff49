package graph

import (
	"errors"
	"fmt"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/logging"
)

// ErrDanglingNode is returned when a primitive references a node id that is
// not in the geometry's node list.
var ErrDanglingNode = errors.New("graph: primitive references unknown node")

// Edge is an undirected edge between two point indices, backed by one
// curve primitive. U is the primitive's start, V its end.
type Edge struct {
	U, V    int
	Element geom.Element
}

// Other returns the endpoint of e opposite p.
func (e Edge) Other(p int) int {
	if e.U == p {
		return e.V
	}
	return e.U
}

// Graph is an index arena over a geometry: points in a table, edges
// referencing point indices, and an explicit point-to-edge adjacency map.
// Parallel edges (two arcs closing a circle, an arc and its chord) are kept.
type Graph struct {
	Points []geom.Node
	Edges  []Edge

	adj   map[int][]int // point index -> incident edge indices, ascending
	index map[int]int   // node id -> point index
}

// FromGeometry builds the arena from a consolidated geometry. The first
// node carrying an id defines its point.
func FromGeometry(g *geom.Geometry) (*Graph, error) {
	gr := &Graph{
		adj:   make(map[int][]int),
		index: make(map[int]int, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		if _, dup := gr.index[n.ID]; dup {
			continue
		}
		gr.index[n.ID] = len(gr.Points)
		gr.Points = append(gr.Points, n)
	}

	for _, e := range g.Elements() {
		start, end, err := geom.Endpoints(e)
		if err != nil {
			return nil, err
		}
		u, ok := gr.index[start.ID]
		if !ok {
			return nil, fmt.Errorf("%s %d start %d: %w", e.Kind(), e.ElementID(), start.ID, ErrDanglingNode)
		}
		v, ok := gr.index[end.ID]
		if !ok {
			return nil, fmt.Errorf("%s %d end %d: %w", e.Kind(), e.ElementID(), end.ID, ErrDanglingNode)
		}
		if u == v {
			logging.Logger().Debug("skipping closed primitive", "kind", e.Kind(), "id", e.ElementID())
			continue
		}
		idx := len(gr.Edges)
		gr.Edges = append(gr.Edges, Edge{U: u, V: v, Element: e})
		gr.adj[u] = append(gr.adj[u], idx)
		gr.adj[v] = append(gr.adj[v], idx)
	}
	return gr, nil
}

// PointIndex returns the point index of a node id.
func (g *Graph) PointIndex(id int) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Incident returns the edge indices touching point p.
func (g *Graph) Incident(p int) []int {
	return g.adj[p]
}

// Degree returns the number of edge ends at point p.
func (g *Graph) Degree(p int) int {
	return len(g.adj[p])
}

// Neighbors returns the points adjacent to p, once each, in edge order.
func (g *Graph) Neighbors(p int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, e := range g.adj[p] {
		q := g.Edges[e].Other(p)
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	return out
}
