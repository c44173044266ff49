// Package platform defines the solver platform interface. Implementations
// (femm, agros2d, ngsolve) turn a registered model into a driver script for
// one external finite-element solver and know how to run it. The snapshot
// drives export through this interface without knowing the script language.
package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/graph"
	"github.com/chazu/adze/pkg/model"
)

// Platform is the export and execution interface one solver backend
// provides. Export methods write to a Script in the order the snapshot
// calls them: preamble, metadata, materials, boundaries, geometry, block
// labels, solve, postprocessing, closing.
type Platform interface {
	// Identity
	Name() string
	Metadata() *Metadata

	// Script sections
	Comment(s *Script, text string)
	ExportPreamble(s *Script) error
	ExportMetadata(s *Script) error
	ExportMaterial(s *Script, m model.Material) error
	ExportBoundary(s *Script, bc model.BoundaryCondition) error
	// ExportGeometryElement writes one node or curve; boundary is the name of
	// the condition assigned to it, empty if none.
	ExportGeometryElement(s *Script, e geom.Element, boundary string) error
	ExportBlockLabel(s *Script, x, y float64, m model.Material) error
	ExportSolve(s *Script) error
	ExportPost(s *Script, m model.Metric) error
	ExportClosing(s *Script) error

	// Execution
	Execute(ctx context.Context, scriptPath string) RunResult
}

// SurfaceExporter is implemented by platforms that describe geometry as
// oriented edges with left/right domains instead of primitives plus block
// labels. boundaryNames[i] is the name of boundary marker i+1.
type SurfaceExporter interface {
	ExportSurface(s *Script, surf *graph.Surface, boundaryNames []string) error
}

// ---------------------------------------------------------------------------
// Script writer
// ---------------------------------------------------------------------------

// Script is a line-oriented writer that remembers the first write error, so
// export code can emit many lines and check once.
type Script struct {
	w   *bufio.Writer
	err error
}

// NewScript wraps w. Call Flush when done.
func NewScript(w io.Writer) *Script {
	return &Script{w: bufio.NewWriter(w)}
}

// Linef writes one formatted line.
func (s *Script) Linef(format string, args ...any) {
	if s.err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		s.err = err
		return
	}
	s.err = s.w.WriteByte('\n')
}

// Rawf writes formatted text without a trailing newline.
func (s *Script) Rawf(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format, args...)
}

// Newline writes n empty lines.
func (s *Script) Newline(n int) {
	for i := 0; i < n && s.err == nil; i++ {
		s.err = s.w.WriteByte('\n')
	}
}

// Err returns the first write error.
func (s *Script) Err() error { return s.err }

// Flush flushes buffered output and returns the first error seen.
func (s *Script) Flush() error {
	if s.err != nil {
		return s.err
	}
	s.err = s.w.Flush()
	return s.err
}
