package engine

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/platform/femm"
	"github.com/chazu/adze/pkg/platform/ngsolve"
	"github.com/chazu/adze/pkg/snapshot"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(problem :field :magnetic)`,
			expect: `(problem "__kw_field" "__kw_magnetic")`,
		},
		{
			name:   "multiple keywords",
			input:  `(material "iron" :mu-r 4000 :conductivity 0)`,
			expect: `(material "iron" "__kw_mu-r" 4000 "__kw_conductivity" 0)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(assign-material "air" 1 1)`,
			expect: `(assign_material "air" 1 1)`,
		},
		{
			name:   "kebab-case string preserved",
			input:  `(material "iron-core")`,
			expect: `(material "iron-core")`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "exponent preserved",
			input:  `(problem :epsilon 1e-6)`,
			expect: `(problem "__kw_epsilon" 1e-6)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:fixed-voltage`,
			expect: `"__kw_fixed-voltage"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

// mustEval evaluates source and fails the test on any error.
func mustEval(t *testing.T, source string) *Model {
	t.Helper()
	m, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	return m
}

// evalError evaluates source and returns the first eval error message.
func evalError(t *testing.T, source string) string {
	t.Helper()
	m, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil model on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error")
	}
	return evalErrs[0].Message
}

func TestProblem(t *testing.T) {
	m := mustEval(t, `(problem :field :heat :epsilon 1e-6)`)
	if m.Field != model.Heat {
		t.Errorf("field = %s, want heat", m.Field)
	}
	if m.Geometry.Epsilon != 1e-6 {
		t.Errorf("epsilon = %g, want 1e-6", m.Geometry.Epsilon)
	}

	msg := evalError(t, `(problem :field :acoustic)`)
	if !strings.Contains(msg, "unknown field") {
		t.Errorf("message = %q, want unknown field", msg)
	}
}

func TestSharedNodes(t *testing.T) {
	m := mustEval(t, `
(def a (node 0 0))
(def b (node 1 0))
(def c (node 0 1))
(line a b)
(line b c)
(line c a)
`)
	lines := m.Geometry.Lines
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0].End.ID != lines[1].Start.ID || lines[2].End.ID != lines[0].Start.ID {
		t.Error("lines built from the same node should share ids")
	}
}

func TestLineFromCoordinates(t *testing.T) {
	m := mustEval(t, `(line 0 0 2 1.5)`)
	l := m.Geometry.Lines[0]
	if l.End.X != 2 || l.End.Y != 1.5 {
		t.Errorf("end = %v, want (2, 1.5)", l.End)
	}

	msg := evalError(t, `(line 0 0 1)`)
	if !strings.Contains(msg, "line") {
		t.Errorf("message = %q, want mention of line", msg)
	}
}

func TestArcAndBezier(t *testing.T) {
	m := mustEval(t, `
(arc 1 0 0 0 0 1)
(bezier 0 0 1 1 2 1 3 0)
`)
	if len(m.Geometry.Arcs) != 1 {
		t.Fatalf("arcs = %d, want 1", len(m.Geometry.Arcs))
	}
	if got := m.Geometry.Arcs[0].SweepDeg(); got < 89.999 || got > 90.001 {
		t.Errorf("sweep = %g, want 90", got)
	}
	if len(m.Geometry.Beziers) != 1 {
		t.Fatalf("beziers = %d, want 1", len(m.Geometry.Beziers))
	}

	msg := evalError(t, `(arc 1 0 0 0 0 2)`)
	if !strings.Contains(msg, "radius") {
		t.Errorf("message = %q, want radius mismatch", msg)
	}
}

func TestPolylineAndRect(t *testing.T) {
	m := mustEval(t, `
(polyline 0 0 1 0 1 1 :closed)
(polyline 5 5 6 5 7 6)
(rect 10 10 2 1)
`)
	if got := len(m.Geometry.Lines); got != 3+2+4 {
		t.Errorf("lines = %d, want 9", got)
	}
	closing := m.Geometry.Lines[2]
	if closing.End.ID != m.Geometry.Lines[0].Start.ID {
		t.Error("closed polyline should end on its first node")
	}

	msg := evalError(t, `(rect 0 0 -1 1)`)
	if !strings.Contains(msg, "positive") {
		t.Errorf("message = %q, want positive size error", msg)
	}
}

func TestMaterial(t *testing.T) {
	m := mustEval(t, `
(material "iron" :mu-r 4000 :conductivity 5.8e6 :lamination :inplane :b (list 0 1.2) :h (list 0 300))
(assign-material "iron" 0.5 0.5)
`)
	if len(m.Materials) != 1 {
		t.Fatalf("materials = %d, want 1", len(m.Materials))
	}
	iron := m.Materials[0]
	if iron.MuR != 4000 || iron.Conductivity != 5.8e6 {
		t.Errorf("iron = %+v", iron)
	}
	if iron.Lamination != model.LaminatedInPlane {
		t.Errorf("lamination = %s, want inplane", iron.Lamination)
	}
	if len(iron.B) != 2 || iron.H[1] != 300 {
		t.Errorf("B/H = %v / %v", iron.B, iron.H)
	}
	if iron.Epsilon != 1 {
		t.Errorf("unset properties should keep defaults, epsilon = %g", iron.Epsilon)
	}
	if len(m.Labels) != 1 || m.Labels[0] != (Assignment{Name: "iron", X: 0.5, Y: 0.5}) {
		t.Errorf("labels = %v", m.Labels)
	}
}

func TestMaterialErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown property", `(material "x" :colour 3)`, "unknown property"},
		{"invalid value", `(material "x" :mu-r 0)`, "permeability"},
		{"missing name", `(material :mu-r 2)`, "requires a name"},
		{"curve mismatch", `(material "x" :b (list 0 1) :h (list 0))`, "differ in length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := evalError(t, tt.source)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("message = %q, want containing %q", msg, tt.want)
			}
		})
	}
}

func TestBoundaries(t *testing.T) {
	m := mustEval(t, `
(dirichlet "ground" :fixed-voltage 0)
(neumann "skin" :heat-flux 10 :heat-transfer-coeff 2)
(periodic "sides")
(anti-periodic-air-gap "gap" :angle 30)
(assign-boundary "ground" 0.5 0)
`)
	if len(m.Boundaries) != 4 {
		t.Fatalf("boundaries = %d, want 4", len(m.Boundaries))
	}
	ground := m.Boundaries[0]
	if ground.Kind != model.KindDirichlet || ground.Values["fixed_voltage"] != 0 {
		t.Errorf("ground = %+v", ground)
	}
	if _, ok := ground.Values["fixed_voltage"]; !ok {
		t.Error("fixed_voltage should be recorded even when zero")
	}
	if skin := m.Boundaries[1]; skin.Values["heat_transfer_coeff"] != 2 {
		t.Errorf("skin = %+v", skin)
	}
	if gap := m.Boundaries[3]; gap.Kind != model.KindAntiPeriodicAirGap || gap.Angle != 30 {
		t.Errorf("gap = %+v", gap)
	}
	if len(m.BoundaryPicks) != 1 || m.BoundaryPicks[0].Name != "ground" {
		t.Errorf("picks = %v", m.BoundaryPicks)
	}

	msg := evalError(t, `(periodic "p" :angle 3)`)
	if !strings.Contains(msg, "unknown option") {
		t.Errorf("message = %q, want unknown option", msg)
	}
}

func TestMetrics(t *testing.T) {
	m := mustEval(t, `
(point-value "V" 0.5 0.25)
(mesh-info)
(integrate "Energy" 0.5 0.5 2 2)
`)
	if len(m.Metrics) != 3 {
		t.Fatalf("metrics = %d, want 3", len(m.Metrics))
	}
	if m.Metrics[0].Kind != model.PointValue || m.Metrics[0].Points[0].Y != 0.25 {
		t.Errorf("point value = %+v", m.Metrics[0])
	}
	if m.Metrics[1].Kind != model.MeshInfo {
		t.Errorf("mesh info = %+v", m.Metrics[1])
	}
	if in := m.Metrics[2]; in.Kind != model.Integration || len(in.Points) != 2 || in.Points[1].X != 2 {
		t.Errorf("integration = %+v", in)
	}
}

func TestImportGeometry(t *testing.T) {
	dir := t.TempDir()
	geo := "Point(1) = {0, 0, 0};\nPoint(2) = {1, 0, 0};\nLine(1) = {1, 2};\n"
	if err := os.WriteFile(filepath.Join(dir, "bar.geo"), []byte(geo), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := NewEngine()
	eng.BaseDir = dir
	m, evalErrs, err := eng.Evaluate(`(import-geometry "bar.geo" :dx 10 :dy -1)`)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("evaluate: %v %v", err, evalErrs)
	}
	if len(m.Geometry.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(m.Geometry.Lines))
	}
	if l := m.Geometry.Lines[0]; l.Start.X != 10 || l.End.X != 11 || l.End.Y != -1 {
		t.Errorf("line = %v, want translated by (10, -1)", l)
	}

	m, evalErrs, _ = eng.Evaluate(`(import-geometry "missing.dxf")`)
	if m != nil || len(evalErrs) == 0 {
		t.Fatal("expected an eval error for a missing file")
	}
}

func TestArithmeticStillWorks(t *testing.T) {
	m := mustEval(t, `
(def w 4)
(def h (/ w 2))
(rect 0 0 w h)
`)
	_, hi := m.Geometry.Bounds()
	if hi.X != 4 || hi.Y != 2 {
		t.Errorf("upper corner = %v, want (4, 2)", hi)
	}
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// capacitor is two plates in an air box; the plates overlap the box edges
// only through consolidation.
const capacitor = `
(problem :field :electrostatic)
(rect 0 0 4 3)
(line 1 1 3 1)
(line 1 2 3 2)
(material "air")
(dirichlet "ground" :fixed-voltage 0)
(dirichlet "plate" :fixed-voltage 10)
(assign-material "air" 0.5 0.5)
(assign-boundary "ground" 2 1)
(assign-boundary "plate" 2 2)
(point-value "V" 2 1.5)
`

func TestBuildFemm(t *testing.T) {
	m := mustEval(t, capacitor)
	p, err := femm.New(platform.NewMetadata(model.Electrostatic, "cap"), femm.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s, err := m.Build(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(s.Boundaries()) != 2 {
		t.Fatalf("boundaries = %d, want 2", len(s.Boundaries()))
	}
	for _, bc := range s.Boundaries() {
		if len(bc.AssignedIDs()) != 1 {
			t.Errorf("%s assigned to %v, want one element", bc.BoundaryName(), bc.AssignedIDs())
		}
	}

	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`ei_addmaterial("air"`, `ei_addboundprop("plate"`, `"plate"`} {
		if !strings.Contains(out, want) {
			t.Errorf("script missing %q", want)
		}
	}
	if len(m.Geometry.Lines) != 6 {
		t.Errorf("build must not consolidate the model geometry in place, lines = %d", len(m.Geometry.Lines))
	}
}

func TestBuildTwiceKeepsAssignmentsSeparate(t *testing.T) {
	m := mustEval(t, capacitor)
	for i := 0; i < 2; i++ {
		p, err := femm.New(platform.NewMetadata(model.Electrostatic, "cap"), femm.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		s, err := m.Build(p)
		if err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
		air, _ := s.Material("air")
		if len(air.Assigned) != 1 {
			t.Errorf("build %d: air labels = %d, want 1", i, len(air.Assigned))
		}
	}
}

func TestBuildNGSolveSurface(t *testing.T) {
	m := mustEval(t, `
(rect 0 0 2 1)
(line 1 0 1 1)
(material "air")
(material "glass" :epsilon 4)
(assign-material "air" 0.5 0.5)
(assign-material "glass" 1.5 0.5)
(dirichlet "plate" :fixed-voltage 1)
(assign-boundary "plate" 0.5 1)
`)
	p, err := ngsolve.New(platform.NewMetadata(model.Electrostatic, "cap"), ngsolve.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s, err := m.Build(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `bc="plate"`) {
		t.Error("surface export should carry the plate boundary")
	}
	if !strings.Contains(out, "leftdomain=1, rightdomain=2") && !strings.Contains(out, "leftdomain=2, rightdomain=1") {
		t.Error("the shared edge should separate both domains")
	}
}

func TestBuildFieldMismatch(t *testing.T) {
	m := mustEval(t, `(problem :field :heat)`)
	p, err := femm.New(platform.NewMetadata(model.Electrostatic, "cap"), femm.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Build(p); !errors.Is(err, snapshot.ErrFieldMismatch) {
		t.Errorf("err = %v, want ErrFieldMismatch", err)
	}
}

func TestBuildUnknownMaterial(t *testing.T) {
	m := mustEval(t, `(rect 0 0 1 1) (assign-material "copper" 0.5 0.5)`)
	p, err := femm.New(platform.NewMetadata(model.Electrostatic, "cap"), femm.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Build(p); !errors.Is(err, snapshot.ErrUnknownMaterial) {
		t.Errorf("err = %v, want ErrUnknownMaterial", err)
	}
}
