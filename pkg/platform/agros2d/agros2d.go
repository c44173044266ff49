// Package agros2d implements platform.Platform for Agros2D. It writes a
// Python script against the agros2d module and runs it with agros2d_solver.
package agros2d

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/tessellate"
)

// Compile-time interface check.
var _ platform.Platform = (*Agros2D)(nil)

const mu0 = 4e-7 * math.Pi

var (
	// MatrixSolvers accepted by every field.
	MatrixSolvers = []string{"umfpack", "mumps", "paraluation_it", "paraluation_amg", "mums_out"}
	// AdaptivityTypes accepted by every field.
	AdaptivityTypes = []string{"disabled", "h", "p", "hp"}
	// MeshTypes accepted by the problem.
	MeshTypes = []string{
		"triangle",
		"triangle_quad_fine_division",
		"triangle_quad_rough_division",
		"triangle_quad_join",
		"gmsh_triangle",
		"gmsh_quad",
		"gmsh_quad_delaunay",
	}
)

// Options are the Agros2D field and problem settings.
type Options struct {
	Solver          string
	MatrixSolver    string
	Refinements     int
	PolyOrder       int
	Adaptivity      string
	AdaptivitySteps int
	AdaptivityTol   float64
	MeshType        string

	Executor platform.Executor
}

// DefaultOptions matches Agros2D's defaults for a linear steady problem.
func DefaultOptions() Options {
	return Options{
		Solver:          "linear",
		MatrixSolver:    "umfpack",
		Refinements:     1,
		PolyOrder:       2,
		Adaptivity:      "disabled",
		AdaptivitySteps: 10,
		AdaptivityTol:   1,
		MeshType:        "triangle",
		Executor: platform.Executor{
			Command: "agros2d_solver",
			Args:    []string{"-s", platform.ScriptPlaceholder},
		},
	}
}

// Agros2D is the Agros2D platform for one field.
type Agros2D struct {
	meta  platform.Metadata
	opts  Options
	field fieldSpec

	labels []model.Coord // block labels in export order, for volume integrals
}

// New validates meta and opts against the field's capabilities.
func New(meta platform.Metadata, opts Options) (*Agros2D, error) {
	meta.ScriptSuffix = ".py"
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	spec, ok := fields[meta.Problem]
	if !ok {
		return nil, fmt.Errorf("agros2d: %s: %w", meta.Problem, platform.ErrFieldUnsupported)
	}
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: agros2d %s: %s", platform.ErrInvalidMetadata, meta.Problem, fmt.Sprintf(format, args...))
	}
	switch {
	case !slices.Contains(spec.analyses, meta.Analysis):
		return nil, bad("analysis can be %v, got %q", spec.analyses, meta.Analysis)
	case !slices.Contains(spec.solvers, opts.Solver):
		return nil, bad("solver can be %v, got %q", spec.solvers, opts.Solver)
	case !slices.Contains(MatrixSolvers, opts.MatrixSolver):
		return nil, bad("improper matrix solver %q", opts.MatrixSolver)
	case opts.Refinements < 1:
		return nil, bad("incorrect number of refinements (%d)", opts.Refinements)
	case opts.PolyOrder < 1:
		return nil, bad("incorrect polynomial order (%d)", opts.PolyOrder)
	case !slices.Contains(AdaptivityTypes, opts.Adaptivity):
		return nil, bad("incorrect adaptivity %q", opts.Adaptivity)
	case !slices.Contains(MeshTypes, strings.ToLower(opts.MeshType)):
		return nil, bad("there is no %q type of mesh", opts.MeshType)
	}
	opts.MeshType = strings.ToLower(opts.MeshType)
	return &Agros2D{meta: meta, opts: opts, field: spec}, nil
}

func (a *Agros2D) Name() string                 { return "agros2d" }
func (a *Agros2D) Metadata() *platform.Metadata { return &a.meta }

func (a *Agros2D) Comment(s *platform.Script, text string) { s.Linef("# %s", text) }

func (a *Agros2D) ExportPreamble(s *platform.Script) error {
	a.labels = a.labels[:0]
	s.Linef("import agros2d as a2d")
	return s.Err()
}

func (a *Agros2D) ExportMetadata(s *platform.Script) error {
	f := a.meta.Problem.String()
	s.Linef("problem = a2d.problem(clear=True)")
	s.Linef("problem.coordinate_type = %q", a.meta.Coordinates.String())
	s.Linef("problem.mesh_type = %q", a.opts.MeshType)
	s.Newline(1)
	s.Linef("%s = a2d.field(%q)", f, f)
	s.Linef("%s.analysis_type = %q", f, a.meta.Analysis)
	s.Linef("%s.matrix_solver = %q", f, a.opts.MatrixSolver)
	s.Linef("%s.number_of_refinements = %d", f, a.opts.Refinements)
	s.Linef("%s.polynomial_order = %d", f, a.opts.PolyOrder)
	s.Linef("%s.adaptivity_type = %q", f, a.opts.Adaptivity)
	if a.opts.Adaptivity != "disabled" {
		s.Linef("%s.adaptivity_parameters[\"steps\"] = %d", f, a.opts.AdaptivitySteps)
		s.Linef("%s.adaptivity_parameters[\"tolerance\"] = %g", f, a.opts.AdaptivityTol)
	}
	s.Linef("%s.solver = %q", f, a.opts.Solver)
	s.Newline(1)
	s.Linef("geometry = a2d.geometry")
	return s.Err()
}

func (a *Agros2D) ExportMaterial(s *platform.Script, m model.Material) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.Linef("%s.add_material(%q, %s)", a.meta.Problem, m.Name, a.field.material(m))
	return s.Err()
}

func (a *Agros2D) ExportBoundary(s *platform.Script, bc model.BoundaryCondition) error {
	if bc.Field() != a.meta.Problem {
		return fmt.Errorf("agros2d: boundary %q is %s, problem is %s: %w", bc.BoundaryName(), bc.Field(), a.meta.Problem, platform.ErrFieldUnsupported)
	}
	var kind, values string
	switch b := bc.(type) {
	case *model.Dirichlet:
		kind, values = a.field.dirichlet(b)
	case *model.Neumann:
		kind, values = a.field.neumann(b)
	default:
		return fmt.Errorf("agros2d: %s boundary: %w", bc.Kind(), platform.ErrFieldUnsupported)
	}
	s.Linef("%s.add_boundary(%q, %q, %s)", a.meta.Problem, bc.BoundaryName(), kind, values)
	return s.Err()
}

func (a *Agros2D) edge(s *platform.Script, x1, y1, x2, y2, angle float64, boundary string) {
	k := a.meta.UnitScale
	s.Rawf("geometry.add_edge(%g, %g, %g, %g", x1*k, y1*k, x2*k, y2*k)
	if angle != 0 {
		s.Rawf(", angle=%g", angle)
	}
	if boundary != "" {
		s.Rawf(", boundaries={%q: %q}", a.meta.Problem.String(), boundary)
	}
	s.Linef(")")
}

func (a *Agros2D) ExportGeometryElement(s *platform.Script, e geom.Element, boundary string) error {
	switch v := e.(type) {
	case geom.Node:
		// edges create their own nodes
	case geom.Line:
		a.edge(s, v.Start.X, v.Start.Y, v.End.X, v.End.Y, 0, boundary)
	case geom.CircleArc:
		a.edge(s, v.Start.X, v.Start.Y, v.End.X, v.End.Y, v.SweepDeg(), boundary)
	case geom.CubicBezier:
		pts := tessellate.Bezier(v, tessellate.DefaultFlatness)
		for i := 1; i < len(pts); i++ {
			a.edge(s, pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y, 0, boundary)
		}
	default:
		return fmt.Errorf("agros2d: unsupported element %T", e)
	}
	return s.Err()
}

func (a *Agros2D) ExportBlockLabel(s *platform.Script, x, y float64, m model.Material) error {
	k := a.meta.UnitScale
	a.labels = append(a.labels, model.Coord{X: x, Y: y})
	s.Rawf("geometry.add_label(%g, %g", x*k, y*k)
	if m.MeshSize > 0 {
		s.Rawf(", area=%g", m.MeshSize*k*m.MeshSize*k)
	}
	s.Linef(", materials={%q: %q})", a.meta.Problem.String(), m.Name)
	return s.Err()
}

func (a *Agros2D) ExportSolve(s *platform.Script) error {
	s.Linef("problem.solve()")
	s.Linef("a2d.view.zoom_best_fit()")
	s.Newline(1)
	s.Linef("f = open(%q, \"w\")", a.meta.MetricsFile)
	return s.Err()
}

// labelIndex finds the export index of the block label at c.
func (a *Agros2D) labelIndex(c model.Coord) (int, bool) {
	for i, l := range a.labels {
		if math.Abs(l.X-c.X) < 1e-9 && math.Abs(l.Y-c.Y) < 1e-9 {
			return i, true
		}
	}
	return 0, false
}

func (a *Agros2D) ExportPost(s *platform.Script, m model.Metric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	f := a.meta.Problem.String()
	k := a.meta.UnitScale
	switch m.Kind {
	case model.PointValue:
		key, ok := a.field.pointVars[m.Variable]
		if !ok {
			return fmt.Errorf("agros2d: %s point value %q: %w", f, m.Variable, platform.ErrFieldUnsupported)
		}
		pt := m.Points[0]
		s.Linef("point = %s.local_values(%g, %g)", f, pt.X*k, pt.Y*k)
		s.Linef("f.write(\"{}, {}, {}, {}\\n\".format(%q, %g, %g, point[%q]))", m.Variable, pt.X, pt.Y, key)

	case model.MeshInfo:
		s.Linef("info = %s.solution_mesh_info()", f)
		s.Linef("f.write(\"{}, {}\\n\".format(\"nodes\", info[\"nodes\"]))")
		s.Linef("f.write(\"{}, {}\\n\".format(\"elements\", info[\"elements\"]))")

	case model.Integration:
		key, ok := a.field.integrals[m.Variable]
		if !ok {
			return fmt.Errorf("agros2d: %s integral %q: %w", f, m.Variable, platform.ErrFieldUnsupported)
		}
		idx := make([]string, 0, len(m.Points))
		for _, p := range m.Points {
			i, ok := a.labelIndex(p)
			if !ok {
				return fmt.Errorf("agros2d: integral %q: no block label at %s", m.Variable, p)
			}
			idx = append(idx, fmt.Sprint(i))
		}
		s.Linef("integral = %s.volume_integrals([%s])", f, strings.Join(idx, ", "))
		s.Linef("f.write(\"{}, {}\\n\".format(%q, integral[%q]))", m.Variable, key)

	default:
		return fmt.Errorf("agros2d: metric %s: %w", m.Kind, platform.ErrFieldUnsupported)
	}
	return s.Err()
}

func (a *Agros2D) ExportClosing(s *platform.Script) error {
	s.Linef("f.close()")
	return s.Err()
}

// Execute runs agros2d_solver on the script.
func (a *Agros2D) Execute(ctx context.Context, scriptPath string) platform.RunResult {
	return a.opts.Executor.Run(ctx, scriptPath)
}
