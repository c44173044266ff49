// Package ngsolve implements platform.Platform for NGSolve. Geometry goes
// in as a netgen SplineGeometry built from the extracted surface, so every
// edge carries its left and right domain; the field is solved with an H1
// space. Only planar electrostatics is supported.
package ngsolve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/graph"
	"github.com/chazu/adze/pkg/logging"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/tessellate"
	"github.com/samber/lo"
)

// Compile-time interface checks.
var (
	_ platform.Platform        = (*NGSolve)(nil)
	_ platform.SurfaceExporter = (*NGSolve)(nil)
)

// ErrSurfaceOnly is returned by ExportGeometryElement: NGSolve needs domain
// information per edge, which only ExportSurface has.
var ErrSurfaceOnly = errors.New("ngsolve: geometry must be exported as a surface")

const eps0 = 8.854187817e-12

var pointVars = map[string]string{
	"V":  "gfu(mip)",
	"Ex": "-grad(gfu)(mip)[0]",
	"Ey": "-grad(gfu)(mip)[1]",
}

// Options are the NGSolve mesh and discretization settings.
type Options struct {
	MaxH  float64 // global mesh size; 0 lets netgen choose
	Order int     // H1 polynomial order

	Executor platform.Executor
}

// DefaultOptions returns second order elements and a python3 executor.
func DefaultOptions() Options {
	return Options{
		Order:    2,
		Executor: platform.Executor{Command: "python3", Args: []string{platform.ScriptPlaceholder}},
	}
}

// NGSolve is the NGSolve platform.
type NGSolve struct {
	meta platform.Metadata
	opts Options

	labels map[model.Coord]string // block label -> material, for integrals
}

// New validates meta and opts. The script suffix is forced to ".py".
func New(meta platform.Metadata, opts Options) (*NGSolve, error) {
	meta.ScriptSuffix = ".py"
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if meta.Problem != model.Electrostatic {
		return nil, fmt.Errorf("ngsolve: %s: %w", meta.Problem, platform.ErrFieldUnsupported)
	}
	if meta.Coordinates != platform.Planar {
		return nil, fmt.Errorf("ngsolve: %s coordinates: %w", meta.Coordinates, platform.ErrFieldUnsupported)
	}
	if meta.Analysis != "steadystate" {
		return nil, fmt.Errorf("%w: ngsolve analysis can be steadystate, got %q", platform.ErrInvalidMetadata, meta.Analysis)
	}
	if opts.Order < 1 {
		return nil, fmt.Errorf("%w: incorrect polynomial order (%d)", platform.ErrInvalidMetadata, opts.Order)
	}
	if opts.MaxH < 0 {
		return nil, fmt.Errorf("%w: negative mesh size", platform.ErrInvalidMetadata)
	}
	return &NGSolve{meta: meta, opts: opts, labels: make(map[model.Coord]string)}, nil
}

func (n *NGSolve) Name() string                 { return "ngsolve" }
func (n *NGSolve) Metadata() *platform.Metadata { return &n.meta }

func (n *NGSolve) Comment(s *platform.Script, text string) { s.Linef("# %s", text) }

func (n *NGSolve) ExportPreamble(s *platform.Script) error {
	clear(n.labels)
	s.Linef("from netgen.geom2d import SplineGeometry")
	s.Linef("from ngsolve import *")
	return s.Err()
}

func (n *NGSolve) ExportMetadata(s *platform.Script) error {
	s.Linef("eps0 = %g", eps0)
	s.Linef("geo = SplineGeometry()")
	s.Linef("permittivity = {}")
	s.Linef("dirichlet = {}")
	s.Linef("neumann = {}")
	return s.Err()
}

func (n *NGSolve) ExportMaterial(s *platform.Script, m model.Material) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.Linef("permittivity[%q] = %g", m.Name, m.Epsilon)
	return s.Err()
}

func (n *NGSolve) ExportBoundary(s *platform.Script, bc model.BoundaryCondition) error {
	if bc.Field() != n.meta.Problem {
		return fmt.Errorf("ngsolve: boundary %q is %s: %w", bc.BoundaryName(), bc.Field(), platform.ErrFieldUnsupported)
	}
	switch b := bc.(type) {
	case *model.Dirichlet:
		s.Linef("dirichlet[%q] = %g", b.BoundaryName(), b.Value("fixed_voltage"))
	case *model.Neumann:
		s.Linef("neumann[%q] = %g", b.BoundaryName(), b.Value("surface_charge_density"))
	default:
		return fmt.Errorf("ngsolve: %s boundary: %w", bc.Kind(), platform.ErrFieldUnsupported)
	}
	return s.Err()
}

func (n *NGSolve) ExportGeometryElement(s *platform.Script, e geom.Element, boundary string) error {
	if _, ok := e.(geom.Node); ok {
		return nil
	}
	return ErrSurfaceOnly
}

// ExportSurface writes every edge that borders a region as a spline segment
// with its left and right domain, then names the domains.
func (n *NGSolve) ExportSurface(s *platform.Script, surf *graph.Surface, boundaryNames []string) error {
	log := logging.Logger()
	k := n.meta.UnitScale
	g := surf.Graph

	used := make([]bool, len(g.Points))
	for _, de := range surf.Edges {
		if de.LeftDomain != 0 || de.RightDomain != 0 {
			used[de.From], used[de.To] = true, true
		}
	}
	for i, p := range g.Points {
		if used[i] {
			s.Linef("p%d = geo.AppendPoint(%g, %g)", i, p.X*k, p.Y*k)
		}
	}

	extra := len(g.Points)
	point := func(x, y float64) string {
		name := fmt.Sprintf("p%d", extra)
		extra++
		s.Linef("%s = geo.AppendPoint(%g, %g)", name, x*k, y*k)
		return name
	}

	for _, de := range surf.Edges {
		if de.LeftDomain == 0 && de.RightDomain == 0 {
			log.Debug("skipping edge outside every region", "element", de.ElementID)
			continue
		}
		bc := ""
		if de.Boundary > 0 {
			if de.Boundary > len(boundaryNames) {
				return fmt.Errorf("ngsolve: edge %d has boundary marker %d of %d", de.ElementID, de.Boundary, len(boundaryNames))
			}
			bc = boundaryNames[de.Boundary-1]
		}
		tail := fmt.Sprintf("leftdomain=%d, rightdomain=%d", de.LeftDomain, de.RightDomain)
		if bc != "" {
			tail += fmt.Sprintf(", bc=%q", bc)
		}

		edge := g.Edges[de.Edge]
		forward := de.From == edge.U
		from, to := fmt.Sprintf("p%d", de.From), fmt.Sprintf("p%d", de.To)

		switch v := edge.Element.(type) {
		case geom.Line:
			s.Linef("geo.Append([\"line\", %s, %s], %s)", from, to, tail)

		case geom.CircleArc:
			pieces := arcPieces(v)
			if !forward {
				pieces = reversePieces(pieces)
			}
			prev := from
			for i, pc := range pieces {
				ctrl := point(pc[0], pc[1])
				next := to
				if i < len(pieces)-1 {
					next = point(pc[2], pc[3])
				}
				s.Linef("geo.Append([\"spline3\", %s, %s, %s], %s)", prev, ctrl, next, tail)
				prev = next
			}

		case geom.CubicBezier:
			pts := tessellate.Bezier(v, tessellate.DefaultFlatness)
			if !forward {
				slices.Reverse(pts)
			}
			prev := from
			for i := 1; i < len(pts); i++ {
				next := to
				if i < len(pts)-1 {
					next = point(pts[i].X, pts[i].Y)
				}
				s.Linef("geo.Append([\"line\", %s, %s], %s)", prev, next, tail)
				prev = next
			}

		default:
			return fmt.Errorf("ngsolve: unsupported element %T", edge.Element)
		}
	}

	regions := lo.UniqBy(surf.Regions, func(r graph.Region) int { return r.Label.Domain })
	slices.SortFunc(regions, func(a, b graph.Region) int { return cmp.Compare(a.Label.Domain, b.Label.Domain) })
	for _, r := range regions {
		s.Linef("geo.SetMaterial(%d, %q)", r.Label.Domain, r.Label.Name)
	}
	return s.Err()
}

// arcPieces splits a counter-clockwise arc into rational quadratic pieces of
// at most 90 degrees. Each piece is (control x, y, end x, y); the control
// point is the intersection of the end tangents.
func arcPieces(a geom.CircleArc) [][4]float64 {
	sweep := a.Sweep()
	count := max(1, int(math.Ceil(sweep/(math.Pi/2)-1e-9)))
	theta := sweep / float64(count)
	r := a.Radius()
	a0 := math.Atan2(a.Start.Y-a.Center.Y, a.Start.X-a.Center.X)
	cr := r / math.Cos(theta/2)

	out := make([][4]float64, count)
	for i := range out {
		mid := a0 + (float64(i)+0.5)*theta
		end := a0 + float64(i+1)*theta
		out[i] = [4]float64{
			a.Center.X + cr*math.Cos(mid), a.Center.Y + cr*math.Sin(mid),
			a.Center.X + r*math.Cos(end), a.Center.Y + r*math.Sin(end),
		}
	}
	return out
}

// reversePieces walks the pieces from the arc end back to its start. The
// end point of reversed piece i is the end point of forward piece n-2-i.
func reversePieces(ps [][4]float64) [][4]float64 {
	n := len(ps)
	out := make([][4]float64, n)
	for i := range ps {
		f := ps[n-1-i]
		out[i][0], out[i][1] = f[0], f[1]
		if j := n - 2 - i; j >= 0 {
			out[i][2], out[i][3] = ps[j][2], ps[j][3]
		}
	}
	return out
}

// ExportBlockLabel records the label for volume integrals. Domains are
// named by ExportSurface, so nothing is written.
func (n *NGSolve) ExportBlockLabel(s *platform.Script, x, y float64, m model.Material) error {
	n.labels[model.Coord{X: x, Y: y}] = m.Name
	return s.Err()
}

func (n *NGSolve) ExportSolve(s *platform.Script) error {
	if n.opts.MaxH > 0 {
		s.Linef("mesh = Mesh(geo.GenerateMesh(maxh=%g))", n.opts.MaxH*n.meta.UnitScale)
	} else {
		s.Linef("mesh = Mesh(geo.GenerateMesh())")
	}
	s.Linef("fes = H1(mesh, order=%d, dirichlet=\"|\".join(dirichlet))", n.opts.Order)
	s.Linef("u, v = fes.TnT()")
	s.Linef("eps = CoefficientFunction([permittivity.get(m, 1) for m in mesh.GetMaterials()])")
	s.Linef("a = BilinearForm(fes)")
	s.Linef("a += eps0 * eps * grad(u) * grad(v) * dx")
	s.Linef("a.Assemble()")
	s.Linef("lf = LinearForm(fes)")
	s.Linef("for name, q in neumann.items(): lf += q * v * ds(name)")
	s.Linef("lf.Assemble()")
	s.Linef("gfu = GridFunction(fes)")
	s.Linef("gfu.Set(CoefficientFunction([dirichlet.get(b, 0) for b in mesh.GetBoundaries()]), BND)")
	s.Linef("res = lf.vec - a.mat * gfu.vec")
	s.Linef("gfu.vec.data += a.mat.Inverse(fes.FreeDofs()) * res")
	s.Newline(1)
	s.Linef("out = open(%q, \"w\")", n.meta.MetricsFile)
	return s.Err()
}

func (n *NGSolve) ExportPost(s *platform.Script, m model.Metric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	k := n.meta.UnitScale
	switch m.Kind {
	case model.PointValue:
		expr, ok := pointVars[m.Variable]
		if !ok {
			return fmt.Errorf("ngsolve: point value %q: %w", m.Variable, platform.ErrFieldUnsupported)
		}
		pt := m.Points[0]
		s.Linef("mip = mesh(%g, %g)", pt.X*k, pt.Y*k)
		s.Linef("out.write(\"%s, %g, %g, {}\\n\".format(%s))", m.Variable, pt.X, pt.Y, expr)

	case model.MeshInfo:
		s.Linef("out.write(\"nodes, {}\\n\".format(mesh.nv))")
		s.Linef("out.write(\"elements, {}\\n\".format(mesh.ne))")

	case model.Integration:
		if m.Variable != "Energy" {
			return fmt.Errorf("ngsolve: integral %q: %w", m.Variable, platform.ErrFieldUnsupported)
		}
		names := make([]string, 0, len(m.Points))
		for _, p := range m.Points {
			name, ok := n.labels[p]
			if !ok {
				return fmt.Errorf("ngsolve: integral %q: no block label at %s", m.Variable, p)
			}
			names = append(names, name)
		}
		s.Linef("energy = Integrate(0.5 * eps0 * eps * grad(gfu) * grad(gfu), mesh, definedon=mesh.Materials(%q))",
			strings.Join(lo.Uniq(names), "|"))
		s.Linef("out.write(\"Energy, {}\\n\".format(energy))")

	default:
		return fmt.Errorf("ngsolve: metric %s: %w", m.Kind, platform.ErrFieldUnsupported)
	}
	return s.Err()
}

func (n *NGSolve) ExportClosing(s *platform.Script) error {
	s.Linef("out.close()")
	return s.Err()
}

// Execute runs the script with the configured Python interpreter.
func (n *NGSolve) Execute(ctx context.Context, scriptPath string) platform.RunResult {
	return n.opts.Executor.Run(ctx, scriptPath)
}
