// Package graph recovers material regions from a consolidated geometry.
//
// The geometry is loaded into an index arena (points, edges, adjacency),
// every simple cycle is enumerated, each label point is attributed to the
// innermost cycle enclosing it, and cycles owning exactly one label become
// regions. Each region orients its boundary by signed area and tags the
// material on the matching side of every edge; the per-region results are
// merged into a Surface without overwriting a side that is already set.
package graph
