package femm

import (
	"fmt"

	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
)

// fieldSpec holds everything that differs between FEMM's four problem
// types. One table entry per field replaces per-call field switches.
type fieldSpec struct {
	pre      string // preprocessor prefix
	post     string // postprocessor prefix
	document int    // newdocument() argument
	suffix   string // solution document suffix

	// trailing argument of setsegmentprop/setarcsegmentprop; empty for
	// magnetics, the conductor name for the others
	conductorArg string

	pointTuple string            // left-hand side of getpointvalues
	pointVars  map[string]string // user variable -> tuple entry
	integrals  map[string]int    // user variable -> blockintegral code

	probdef  func(f *Femm, kind string) string
	material func(m model.Material) string
	boundary func(bc model.BoundaryCondition) (string, error)
}

var fields = map[model.FieldType]fieldSpec{
	model.Magnetic: {
		pre: "mi", post: "mo", document: 0, suffix: ".fem",
		pointTuple: "A, B1, B2, Sig, E, H1, H2, Je, Js, Mu1, Mu2, Pe, Ph",
		pointVars: map[string]string{
			"A": "A", "Bx": "B1", "By": "B2", "Br": "B1", "Bz": "B2",
			"Hx": "H1", "Hy": "H2", "Hr": "H1", "Hz": "H2", "Je": "Je",
		},
		integrals: map[string]int{"Flux": 1, "Energy": 2, "Area": 5, "Fx": 18, "Fy": 19, "Torque": 22},
		probdef: func(f *Femm, kind string) string {
			return fmt.Sprintf("mi_probdef(%g, %q, %q, %g, %g, %g, %d)",
				f.opts.Frequency, f.meta.Unit, kind, f.meta.Precision, f.opts.Depth, f.opts.MinAngle, f.opts.ACSolver)
		},
		material: func(m model.Material) string {
			lamType := map[model.Lamination]int{model.NotLaminated: 0, model.LaminatedInPlane: 1, model.MagnetWire: 3}[m.Lamination]
			// J in MA/m^2 and conductivity in MS/m
			return fmt.Sprintf("mi_addmaterial(%q, %g, %g, %g, %g, %g, %g, %g, %g, %d, 0, 0, 0, %g)",
				m.Name, m.MuR, m.MuR, m.Coercivity, m.Je/1e6, m.Conductivity/1e6,
				m.Thickness, m.PhiHMax, m.FillFactor, lamType, m.Diameter)
		},
		boundary: magneticBoundary,
	},
	model.Electrostatic: {
		pre: "ei", post: "eo", document: 1, suffix: ".fee",
		conductorArg: `, "<None>"`,
		pointTuple:   "V, Dx, Dy, Ex, Ey, ex, ey, nrg",
		pointVars:    map[string]string{"V": "V", "Dx": "Dx", "Dy": "Dy", "Ex": "Ex", "Ey": "Ey", "Energy": "nrg"},
		integrals:    map[string]int{"Energy": 0, "Area": 1, "Volume": 2, "Fx": 3, "Fy": 4, "Torque": 5},
		probdef: func(f *Femm, kind string) string {
			return fmt.Sprintf("ei_probdef(%q, %q, %g, %g, %g)",
				f.meta.Unit, kind, f.meta.Precision, f.opts.Depth, f.opts.MinAngle)
		},
		material: func(m model.Material) string {
			return fmt.Sprintf("ei_addmaterial(%q, %g, %g, %g)", m.Name, m.Epsilon, m.Epsilon, m.VolumeCharge)
		},
		boundary: potentialBoundary("ei", "fixed_voltage", "surface_charge_density"),
	},
	model.Heat: {
		pre: "hi", post: "ho", document: 2, suffix: ".feh",
		conductorArg: `, "<None>"`,
		pointTuple:   "T, Fx, Fy, Gx, Gy, kx, ky",
		pointVars:    map[string]string{"T": "T", "Fx": "Fx", "Fy": "Fy", "Gx": "Gx", "Gy": "Gy"},
		integrals:    map[string]int{"Temperature": 0, "Area": 1, "Volume": 2},
		probdef: func(f *Femm, kind string) string {
			return fmt.Sprintf("hi_probdef(%q, %q, %g, %g, %g, \"\", %g)",
				f.meta.Unit, kind, f.meta.Precision, f.opts.Depth, f.opts.MinAngle, f.opts.TimeStep)
		},
		material: func(m model.Material) string {
			return fmt.Sprintf("hi_addmaterial(%q, %g, %g, %g, 0)", m.Name, m.ThermalCond, m.ThermalCond, m.VolumeCharge)
		},
		boundary: heatBoundary,
	},
	model.Current: {
		pre: "ci", post: "co", document: 3, suffix: ".fec",
		conductorArg: `, "<None>"`,
		pointTuple:   "V, Jx, Jy, Kx, Ky, Ex, Ey, ex, ey, Jdx, Jdy, ox, oy, Jcx, Jcy",
		pointVars:    map[string]string{"V": "V", "Jx": "Jx", "Jy": "Jy", "Ex": "Ex", "Ey": "Ey"},
		integrals:    map[string]int{"Power": 0, "Area": 1, "Volume": 2},
		probdef: func(f *Femm, kind string) string {
			return fmt.Sprintf("ci_probdef(%q, %q, %g, %g, %g, %g)",
				f.meta.Unit, kind, f.opts.Frequency, f.meta.Precision, f.opts.Depth, f.opts.MinAngle)
		},
		material: func(m model.Material) string {
			return fmt.Sprintf("ci_addmaterial(%q, %g, %g, %g, %g, 0, 0)", m.Name, m.Conductivity, m.Conductivity, m.Epsilon, m.Epsilon)
		},
		boundary: potentialBoundary("ci", "potential", "current_density"),
	},
}

// magneticBoundary maps to mi_addboundprop(name, A0, A1, A2, Phi, Mu, Sig,
// c0, c1, BdryFormat, ia, oa).
func magneticBoundary(bc model.BoundaryCondition) (string, error) {
	const format = "mi_addboundprop(%q, %g, 0, 0, 0, 0, 0, 0, %g, %d, %g, %g)"
	name := bc.BoundaryName()
	switch b := bc.(type) {
	case *model.Dirichlet:
		return fmt.Sprintf(format, name, b.Value("magnetic_potential"), 0.0, 0, 0.0, 0.0), nil
	case *model.Neumann:
		return fmt.Sprintf(format, name, 0.0, b.Value("surface_current"), 2, 0.0, 0.0), nil
	case *model.Periodic:
		return fmt.Sprintf(format, name, 0.0, 0.0, 4, 0.0, 0.0), nil
	case *model.AntiPeriodic:
		return fmt.Sprintf(format, name, 0.0, 0.0, 5, 0.0, 0.0), nil
	case *model.PeriodicAirGap:
		return fmt.Sprintf(format, name, 0.0, 0.0, 6, b.Angle, b.Angle), nil
	case *model.AntiPeriodicAirGap:
		return fmt.Sprintf(format, name, 0.0, 0.0, 7, b.Angle, b.Angle), nil
	}
	return "", fmt.Errorf("femm: boundary %T: %w", bc, platform.ErrFieldUnsupported)
}

// potentialBoundary covers ei_ and ci_addboundprop(name, Vs, qs, c0, c1,
// format), which share their format codes: 0 fixed, 2 surface source,
// 3 periodic, 4 antiperiodic.
func potentialBoundary(pre, fixedKey, sourceKey string) func(model.BoundaryCondition) (string, error) {
	return func(bc model.BoundaryCondition) (string, error) {
		format := pre + "_addboundprop(%q, %g, %g, 0, 0, %d)"
		name := bc.BoundaryName()
		switch b := bc.(type) {
		case *model.Dirichlet:
			return fmt.Sprintf(format, name, b.Value(fixedKey), 0.0, 0), nil
		case *model.Neumann:
			return fmt.Sprintf(format, name, 0.0, b.Value(sourceKey), 2), nil
		case *model.Periodic:
			return fmt.Sprintf(format, name, 0.0, 0.0, 3), nil
		case *model.AntiPeriodic:
			return fmt.Sprintf(format, name, 0.0, 0.0, 4), nil
		}
		return "", fmt.Errorf("femm: %s boundary %T: %w", pre, bc, platform.ErrFieldUnsupported)
	}
}

// heatBoundary maps to hi_addboundprop(name, BdryFormat, Tset, qs, Tinf, h,
// beta). A Neumann condition with a transfer coefficient is convection.
func heatBoundary(bc model.BoundaryCondition) (string, error) {
	const format = "hi_addboundprop(%q, %d, %g, %g, %g, %g, 0)"
	name := bc.BoundaryName()
	switch b := bc.(type) {
	case *model.Dirichlet:
		return fmt.Sprintf(format, name, 0, b.Value("temperature"), 0.0, 0.0, 0.0), nil
	case *model.Neumann:
		if h := b.Value("heat_transfer_coeff"); h > 0 {
			return fmt.Sprintf(format, name, 2, 0.0, 0.0, b.Value("ambient_temperature"), h), nil
		}
		return fmt.Sprintf(format, name, 1, 0.0, b.Value("heat_flux"), 0.0, 0.0), nil
	case *model.Periodic:
		return fmt.Sprintf(format, name, 4, 0.0, 0.0, 0.0, 0.0), nil
	case *model.AntiPeriodic:
		return fmt.Sprintf(format, name, 5, 0.0, 0.0, 0.0, 0.0), nil
	}
	return "", fmt.Errorf("femm: hi boundary %T: %w", bc, platform.ErrFieldUnsupported)
}
