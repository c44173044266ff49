package graph

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultMaxCycles bounds cycle enumeration. Simple-cycle counts grow
// exponentially with mesh-like geometry.
const DefaultMaxCycles = 100000

// ErrTooManyCycles is returned when enumeration exceeds its limit.
var ErrTooManyCycles = errors.New("graph: too many cycles")

// Cycle is a simple cycle in canonical form: Nodes starts at the smallest
// point index and continues towards the larger of its two cycle neighbours.
// Edges[i] joins Nodes[i] and Nodes[(i+1)%len(Nodes)].
type Cycle struct {
	Nodes []int
	Edges []int
}

// Len returns the number of edges.
func (c Cycle) Len() int { return len(c.Edges) }

// key identifies the cycle by its edge set.
func (c Cycle) key() string {
	es := append([]int(nil), c.Edges...)
	sort.Ints(es)
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = strconv.Itoa(e)
	}
	return strings.Join(parts, ",")
}

// canonical reverses the traversal if needed so the second node is the
// larger neighbour of the first. Two-node cycles order by edge index.
func (c Cycle) canonical() Cycle {
	n := len(c.Nodes)
	reverse := false
	switch {
	case n > 2:
		reverse = c.Nodes[1] < c.Nodes[n-1]
	case n == 2:
		reverse = c.Edges[0] > c.Edges[1]
	}
	if !reverse {
		return c
	}
	nodes := make([]int, 0, n)
	nodes = append(nodes, c.Nodes[0])
	for i := n - 1; i >= 1; i-- {
		nodes = append(nodes, c.Nodes[i])
	}
	edges := make([]int, 0, len(c.Edges))
	for i := len(c.Edges) - 1; i >= 0; i-- {
		edges = append(edges, c.Edges[i])
	}
	return Cycle{Nodes: nodes, Edges: edges}
}

// Cycles enumerates every simple cycle once. For each start point s an
// iterative depth-first search explores only points with a larger index, so
// every cycle is found from its minimum point, in both directions; the edge
// set deduplicates the pair. limit <= 0 means DefaultMaxCycles.
func (g *Graph) Cycles(limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = DefaultMaxCycles
	}

	type frame struct {
		node int
		via  int // edge used to reach node, -1 at the root
		next int // position in the adjacency list
	}

	seen := make(map[string]bool)
	var out []Cycle

	for s := range g.Points {
		if g.Degree(s) < 2 {
			continue
		}
		stack := []frame{{node: s, via: -1}}
		onPath := map[int]bool{s: true}
		var pathEdges []int

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			inc := g.adj[top.node]
			if top.next >= len(inc) {
				delete(onPath, top.node)
				if top.via >= 0 {
					pathEdges = pathEdges[:len(pathEdges)-1]
				}
				stack = stack[:len(stack)-1]
				continue
			}
			e := inc[top.next]
			top.next++
			if e == top.via {
				continue
			}
			w := g.Edges[e].Other(top.node)

			if w == s {
				if len(stack) < 2 {
					continue
				}
				nodes := make([]int, len(stack))
				for i, f := range stack {
					nodes[i] = f.node
				}
				edges := append(append([]int(nil), pathEdges...), e)
				c := Cycle{Nodes: nodes, Edges: edges}.canonical()
				k := c.key()
				if !seen[k] {
					seen[k] = true
					out = append(out, c)
					if len(out) > limit {
						return nil, fmt.Errorf("%w: more than %d", ErrTooManyCycles, limit)
					}
				}
				continue
			}
			if w < s || onPath[w] {
				continue
			}
			onPath[w] = true
			pathEdges = append(pathEdges, e)
			stack = append(stack, frame{node: w, via: e})
		}
	}
	return out, nil
}
