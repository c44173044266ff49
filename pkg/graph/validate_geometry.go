package graph

import (
	"fmt"
	"math"

	"github.com/chazu/adze/pkg/geom"
)

// ---------------------------------------------------------------------------
// Tier 1: Structural validation
// ---------------------------------------------------------------------------

// validateReferences checks that every primitive endpoint id exists in the
// node list.
func validateReferences(g *geom.Geometry) []ValidationError {
	ids := make(map[int]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}

	var errs []ValidationError
	check := func(e geom.Element, role string, n geom.Node) {
		if !ids[n.ID] {
			errs = append(errs, ValidationError{
				ElementID: e.ElementID(),
				Message:   fmt.Sprintf("%s %s references missing node %d", e.Kind(), role, n.ID),
				Severity:  SeverityError,
			})
		}
	}
	for _, l := range g.Lines {
		check(l, "start", l.Start)
		check(l, "end", l.End)
	}
	for _, a := range g.Arcs {
		check(a, "start", a.Start)
		check(a, "center", a.Center)
		check(a, "end", a.End)
	}
	for _, b := range g.Beziers {
		check(b, "start", b.Start)
		check(b, "end", b.End)
	}
	return errs
}

// validateNodeIDs flags ids shared by nodes at different positions.
func validateNodeIDs(g *geom.Geometry) []ValidationError {
	first := make(map[int]geom.Node, len(g.Nodes))
	reported := make(map[int]bool)
	var errs []ValidationError
	for _, n := range g.Nodes {
		prev, ok := first[n.ID]
		if !ok {
			first[n.ID] = n
			continue
		}
		if prev.DistanceTo(n) >= g.Eps() && !reported[n.ID] {
			reported[n.ID] = true
			errs = append(errs, ValidationError{
				ElementID: n.ID,
				Message:   fmt.Sprintf("node id %d used at (%g, %g) and (%g, %g)", n.ID, prev.X, prev.Y, n.X, n.Y),
				Severity:  SeverityError,
			})
		}
	}
	return errs
}

// ---------------------------------------------------------------------------
// Tier 2: Geometric validation
// ---------------------------------------------------------------------------

// validateDegenerate checks for zero-length lines and arcs whose endpoints
// are not on the same circle.
func validateDegenerate(g *geom.Geometry) []ValidationError {
	eps := g.Eps()
	var errs []ValidationError
	for _, l := range g.Lines {
		if l.Length() < eps {
			errs = append(errs, ValidationError{
				ElementID: l.ID,
				Message:   fmt.Sprintf("line length %.3g is below tolerance", l.Length()),
				Severity:  SeverityError,
			})
		}
	}
	for _, a := range g.Arcs {
		rs, re := a.Start.DistanceTo(a.Center), a.End.DistanceTo(a.Center)
		if rs < eps {
			errs = append(errs, ValidationError{
				ElementID: a.ID,
				Message:   "arc has zero radius",
				Severity:  SeverityError,
			})
			continue
		}
		if math.Abs(rs-re) > math.Max(eps, 1e-9*rs) {
			errs = append(errs, ValidationError{
				ElementID: a.ID,
				Message:   fmt.Sprintf("arc radius mismatch: start %.6g, end %.6g", rs, re),
				Severity:  SeverityError,
			})
		}
	}
	return errs
}

// validateNearDuplicates warns about distinct node ids closer than the
// tolerance, which means the geometry was not consolidated.
func validateNearDuplicates(g *geom.Geometry) []ValidationError {
	eps := g.Eps()
	var warns []ValidationError
	count := 0
	for i := range g.Nodes {
		for j := i + 1; j < len(g.Nodes); j++ {
			a, b := g.Nodes[i], g.Nodes[j]
			if a.ID != b.ID && a.DistanceTo(b) < eps {
				count++
			}
		}
	}
	if count > 0 {
		warns = append(warns, ValidationError{
			Message:  fmt.Sprintf("%d node pairs closer than %g; geometry is not consolidated", count, eps),
			Severity: SeverityWarning,
		})
	}
	return warns
}

// validateOpenChains warns about curve endpoints touched by a single
// primitive. They cannot bound a region.
func validateOpenChains(g *geom.Geometry) []ValidationError {
	degree := make(map[int]int)
	for _, e := range g.Elements() {
		s, t, err := geom.Endpoints(e)
		if err != nil {
			continue
		}
		degree[s.ID]++
		degree[t.ID]++
	}
	var warns []ValidationError
	for _, n := range g.Nodes {
		if degree[n.ID] == 1 {
			warns = append(warns, ValidationError{
				ElementID: n.ID,
				Message:   fmt.Sprintf("node at (%g, %g) ends an open chain", n.X, n.Y),
				Severity:  SeverityWarning,
			})
			degree[n.ID] = -1 // report once
		}
	}
	return warns
}
