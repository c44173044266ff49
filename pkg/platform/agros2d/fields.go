package agros2d

import (
	"fmt"
	"strings"

	"github.com/chazu/adze/pkg/model"
)

// fieldSpec is the per-field table: accepted analyses and solvers, the
// Python dictionaries for materials and boundaries, and postprocessor keys.
type fieldSpec struct {
	analyses []string
	solvers  []string

	material  func(m model.Material) string
	dirichlet func(d *model.Dirichlet) (kind, values string)
	neumann   func(n *model.Neumann) (kind, values string)

	pointVars map[string]string // user variable -> local_values key
	integrals map[string]string // user variable -> volume_integrals key
}

// pyDict renders ordered key/value pairs as a Python dict literal.
func pyDict(kv ...any) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		switch v := kv[i+1].(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%q: %s", kv[i], v))
		default:
			parts = append(parts, fmt.Sprintf("%q: %g", kv[i], v))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// pyList renders a float slice as a Python list literal.
func pyList(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// permeability is a constant or, for B/H materials, a table of relative
// permeability against flux density.
func permeability(m model.Material) string {
	if !m.Nonlinear() {
		return fmt.Sprintf("%g", m.MuR)
	}
	var bs, mus []float64
	for i := range m.B {
		if m.H[i] <= 0 {
			continue
		}
		bs = append(bs, m.B[i])
		mus = append(mus, m.B[i]/(mu0*m.H[i]))
	}
	return fmt.Sprintf(`{"value": %g, "x": %s, "y": %s}`, m.MuR, pyList(bs), pyList(mus))
}

var fields = map[model.FieldType]fieldSpec{
	model.Electrostatic: {
		analyses: []string{"steadystate"},
		solvers:  []string{"linear"},
		material: func(m model.Material) string {
			return pyDict("electrostatic_permittivity", m.Epsilon, "electrostatic_charge_density", m.VolumeCharge)
		},
		dirichlet: func(d *model.Dirichlet) (string, string) {
			return "electrostatic_potential", pyDict("electrostatic_potential", d.Value("fixed_voltage"))
		},
		neumann: func(n *model.Neumann) (string, string) {
			return "electrostatic_surface_charge_density",
				pyDict("electrostatic_surface_charge_density", n.Value("surface_charge_density"))
		},
		pointVars: map[string]string{"V": "V", "Ex": "Ex", "Ey": "Ey", "E": "E", "Dx": "Dx", "Dy": "Dy"},
		integrals: map[string]string{"Energy": "We"},
	},
	model.Magnetic: {
		analyses: []string{"steadystate", "transient", "harmonic"},
		solvers:  []string{"linear", "newton", "picard"},
		material: func(m model.Material) string {
			return pyDict(
				"magnetic_permeability", permeability(m),
				"magnetic_conductivity", m.Conductivity,
				"magnetic_remanence", mu0*m.MuR*m.Coercivity,
				"magnetic_remanence_angle", m.RemanenceAngle,
				"magnetic_current_density_external_real", m.Je,
			)
		},
		dirichlet: func(d *model.Dirichlet) (string, string) {
			return "magnetic_potential", pyDict("magnetic_potential_real", d.Value("magnetic_potential"))
		},
		neumann: func(n *model.Neumann) (string, string) {
			return "magnetic_surface_current", pyDict("magnetic_surface_current_real", n.Value("surface_current"))
		},
		pointVars: map[string]string{
			"A": "Ar", "B": "Br", "Bx": "Brx", "By": "Bry", "Br": "Brr", "Bz": "Brz",
			"Hx": "Hrx", "Hy": "Hry", "Hr": "Hrr", "Hz": "Hrz",
		},
		integrals: map[string]string{"Energy": "Wm", "Fx": "Ftx", "Fy": "Fty", "Torque": "Tt"},
	},
	model.Heat: {
		analyses: []string{"steadystate", "transient"},
		solvers:  []string{"linear", "newton", "picard"},
		material: func(m model.Material) string {
			return pyDict("heat_conductivity", m.ThermalCond, "heat_volume_heat", m.VolumeCharge,
				"heat_density", 0.0, "heat_specific_heat", 0.0)
		},
		dirichlet: func(d *model.Dirichlet) (string, string) {
			return "heat_temperature", pyDict("heat_temperature", d.Value("temperature"))
		},
		neumann: func(n *model.Neumann) (string, string) {
			return "heat_heat_flux", pyDict(
				"heat_heat_flux", n.Value("heat_flux"),
				"heat_convection_heat_transfer_coefficient", n.Value("heat_transfer_coeff"),
				"heat_convection_external_temperature", n.Value("ambient_temperature"),
			)
		},
		pointVars: map[string]string{"T": "T", "Gx": "Gx", "Gy": "Gy", "Fx": "Fx", "Fy": "Fy"},
		integrals: map[string]string{"Temperature": "T"},
	},
	model.Current: {
		analyses: []string{"steadystate"},
		solvers:  []string{"linear", "newton"},
		material: func(m model.Material) string {
			return pyDict("current_conductivity", m.Conductivity, "current_permittivity", m.Epsilon)
		},
		dirichlet: func(d *model.Dirichlet) (string, string) {
			return "current_potential", pyDict("current_potential_real", d.Value("potential"))
		},
		neumann: func(n *model.Neumann) (string, string) {
			return "current_inward_current_flow", pyDict("current_inward_current_flow_real", n.Value("current_density"))
		},
		pointVars: map[string]string{"V": "V", "Jx": "Jrx", "Jy": "Jry", "Ex": "Ex", "Ey": "Ey"},
		integrals: map[string]string{"Power": "Pj"},
	},
}
