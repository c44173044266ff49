package geom

import (
	"fmt"

	"github.com/chazu/adze/pkg/logging"
)

// ConsolidationStats summarizes one Consolidate run.
type ConsolidationStats struct {
	NodesBefore, NodesAfter int
	LinesBefore, LinesAfter int
	ArcsBefore, ArcsAfter   int
	MergedPoints            int
	Cuts                    int
	MergedLines             int
}

// Consolidate turns raw, duplicate-laden geometry into a clean planar graph:
// merge points, split at intersections, merge the points those splits
// touched, then merge collinear chains.
func (g *Geometry) Consolidate() (ConsolidationStats, error) {
	st := ConsolidationStats{
		NodesBefore: len(g.Nodes),
		LinesBefore: len(g.Lines),
		ArcsBefore:  len(g.Arcs),
	}
	eps := g.Eps()

	n, err := g.MergePoints(eps)
	if err != nil {
		return st, fmt.Errorf("consolidate: %w", err)
	}
	st.MergedPoints = n

	st.Cuts = g.GenerateIntersections()

	n, err = g.MergePoints(eps)
	if err != nil {
		return st, fmt.Errorf("consolidate: %w", err)
	}
	st.MergedPoints += n

	st.MergedLines = g.MergeLines()

	st.NodesAfter = len(g.Nodes)
	st.LinesAfter = len(g.Lines)
	st.ArcsAfter = len(g.Arcs)

	logging.Logger().Debug("consolidated geometry",
		"nodes_before", st.NodesBefore, "nodes_after", st.NodesAfter,
		"lines_before", st.LinesBefore, "lines_after", st.LinesAfter,
		"arcs", st.ArcsAfter, "cuts", st.Cuts, "merged_lines", st.MergedLines)
	return st, nil
}
