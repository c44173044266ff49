package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrInvalidBoundary is wrapped by the boundary constructors.
var ErrInvalidBoundary = errors.New("model: invalid boundary condition")

// BoundaryKind enumerates the boundary condition variants.
type BoundaryKind int

const (
	KindDirichlet BoundaryKind = iota
	KindNeumann
	KindPeriodic
	KindAntiPeriodic
	KindPeriodicAirGap
	KindAntiPeriodicAirGap
)

func (k BoundaryKind) String() string {
	switch k {
	case KindDirichlet:
		return "dirichlet"
	case KindNeumann:
		return "neumann"
	case KindPeriodic:
		return "periodic"
	case KindAntiPeriodic:
		return "anti-periodic"
	case KindPeriodicAirGap:
		return "periodic-air-gap"
	case KindAntiPeriodicAirGap:
		return "anti-periodic-air-gap"
	default:
		return fmt.Sprintf("BoundaryKind(%d)", int(k))
	}
}

// BoundaryCondition is the closed set of boundary variants. The unexported
// marker keeps implementations inside this package; consumers switch on the
// concrete type.
type BoundaryCondition interface {
	boundary()
	BoundaryName() string
	Field() FieldType
	Kind() BoundaryKind
	Assign(id int)
	AssignedIDs() []int
}

// BoundaryBase carries what every variant shares: a unique name, the field
// type it applies to, and the set of primitive ids it is assigned to.
type BoundaryBase struct {
	Name      string
	FieldType FieldType

	assigned map[int]struct{}
}

func (b *BoundaryBase) boundary()            {}
func (b *BoundaryBase) BoundaryName() string { return b.Name }
func (b *BoundaryBase) Field() FieldType     { return b.FieldType }

// Assign adds a primitive id. Assigning twice is a no-op.
func (b *BoundaryBase) Assign(id int) {
	if b.assigned == nil {
		b.assigned = make(map[int]struct{})
	}
	b.assigned[id] = struct{}{}
}

// AssignedIDs returns the assigned primitive ids in ascending order.
func (b *BoundaryBase) AssignedIDs() []int {
	ids := make([]int, 0, len(b.assigned))
	for id := range b.assigned {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IsAssigned reports whether id is in the set.
func (b *BoundaryBase) IsAssigned(id int) bool {
	_, ok := b.assigned[id]
	return ok
}

// ---------------------------------------------------------------------------
// Valued conditions
// ---------------------------------------------------------------------------

// dirichletKeys and neumannKeys list the value names each field accepts.
var (
	dirichletKeys = map[FieldType][]string{
		Electrostatic: {"fixed_voltage"},
		Magnetic:      {"magnetic_potential"},
		Heat:          {"temperature"},
		Current:       {"potential"},
	}
	neumannKeys = map[FieldType][]string{
		Electrostatic: {"surface_charge_density"},
		Magnetic:      {"surface_current"},
		Heat:          {"heat_flux", "heat_transfer_coeff", "ambient_temperature"},
		Current:       {"current_density"},
	}
)

// DirichletKeys returns the value names a Dirichlet condition accepts for f.
func DirichletKeys(f FieldType) []string { return slices.Clone(dirichletKeys[f]) }

// NeumannKeys returns the value names a Neumann condition accepts for f.
func NeumannKeys(f FieldType) []string { return slices.Clone(neumannKeys[f]) }

func checkValues(kind BoundaryKind, name string, f FieldType, allowed []string, values map[string]float64) (map[string]float64, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidBoundary)
	}
	if allowed == nil {
		return nil, fmt.Errorf("%w: %s %q: unsupported field %s", ErrInvalidBoundary, kind, name, f)
	}
	out := make(map[string]float64, len(allowed))
	for k, v := range values {
		if !slices.Contains(allowed, k) {
			return nil, fmt.Errorf("%w: %s %q: %s field does not accept %q (want one of %v)", ErrInvalidBoundary, kind, name, f, k, allowed)
		}
		out[k] = v
	}
	return out, nil
}

// Dirichlet prescribes the field potential on its edges.
type Dirichlet struct {
	BoundaryBase
	Values map[string]float64
}

// NewDirichlet validates values against the keys accepted by f. Missing keys
// read as zero.
func NewDirichlet(name string, f FieldType, values map[string]float64) (*Dirichlet, error) {
	v, err := checkValues(KindDirichlet, name, f, dirichletKeys[f], values)
	if err != nil {
		return nil, err
	}
	return &Dirichlet{BoundaryBase: BoundaryBase{Name: name, FieldType: f}, Values: v}, nil
}

func (*Dirichlet) Kind() BoundaryKind { return KindDirichlet }

// Value returns the named value or zero.
func (d *Dirichlet) Value(key string) float64 { return d.Values[key] }

// Neumann prescribes the normal derivative (flux) on its edges.
type Neumann struct {
	BoundaryBase
	Values map[string]float64
}

// NewNeumann validates values against the keys accepted by f.
func NewNeumann(name string, f FieldType, values map[string]float64) (*Neumann, error) {
	v, err := checkValues(KindNeumann, name, f, neumannKeys[f], values)
	if err != nil {
		return nil, err
	}
	return &Neumann{BoundaryBase: BoundaryBase{Name: name, FieldType: f}, Values: v}, nil
}

func (*Neumann) Kind() BoundaryKind { return KindNeumann }

// Value returns the named value or zero.
func (n *Neumann) Value(key string) float64 { return n.Values[key] }

// ---------------------------------------------------------------------------
// Periodic conditions
// ---------------------------------------------------------------------------

// Periodic ties two edge sets to equal potential.
type Periodic struct{ BoundaryBase }

func NewPeriodic(name string, f FieldType) *Periodic {
	return &Periodic{BoundaryBase{Name: name, FieldType: f}}
}

func (*Periodic) Kind() BoundaryKind { return KindPeriodic }

// AntiPeriodic ties two edge sets to opposite potential.
type AntiPeriodic struct{ BoundaryBase }

func NewAntiPeriodic(name string, f FieldType) *AntiPeriodic {
	return &AntiPeriodic{BoundaryBase{Name: name, FieldType: f}}
}

func (*AntiPeriodic) Kind() BoundaryKind { return KindAntiPeriodic }

// PeriodicAirGap is the rotating-machine sliding band, periodic variant.
// Angle is the rotor offset in degrees.
type PeriodicAirGap struct {
	BoundaryBase
	Angle float64
}

func NewPeriodicAirGap(name string, f FieldType, angle float64) *PeriodicAirGap {
	return &PeriodicAirGap{BoundaryBase: BoundaryBase{Name: name, FieldType: f}, Angle: angle}
}

func (*PeriodicAirGap) Kind() BoundaryKind { return KindPeriodicAirGap }

// AntiPeriodicAirGap is the anti-periodic sliding band.
type AntiPeriodicAirGap struct {
	BoundaryBase
	Angle float64
}

func NewAntiPeriodicAirGap(name string, f FieldType, angle float64) *AntiPeriodicAirGap {
	return &AntiPeriodicAirGap{BoundaryBase: BoundaryBase{Name: name, FieldType: f}, Angle: angle}
}

func (*AntiPeriodicAirGap) Kind() BoundaryKind { return KindAntiPeriodicAirGap }

var (
	_ BoundaryCondition = (*Dirichlet)(nil)
	_ BoundaryCondition = (*Neumann)(nil)
	_ BoundaryCondition = (*Periodic)(nil)
	_ BoundaryCondition = (*AntiPeriodic)(nil)
	_ BoundaryCondition = (*PeriodicAirGap)(nil)
	_ BoundaryCondition = (*AntiPeriodicAirGap)(nil)
)

// BoundarySpec is the declarative form of a boundary condition. Model files
// and archives store specs and build fresh conditions from them, so
// assignments never leak between builds.
type BoundarySpec struct {
	Name   string
	Kind   BoundaryKind
	Field  FieldType
	Values map[string]float64
	Angle  float64
}

// Build constructs the boundary condition s describes.
func (s BoundarySpec) Build() (BoundaryCondition, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidBoundary)
	}
	if s.Kind != KindDirichlet && s.Kind != KindNeumann && len(s.Values) > 0 {
		return nil, fmt.Errorf("%w: %s %q takes no values", ErrInvalidBoundary, s.Kind, s.Name)
	}
	switch s.Kind {
	case KindDirichlet:
		d, err := NewDirichlet(s.Name, s.Field, s.Values)
		if err != nil {
			return nil, err
		}
		return d, nil
	case KindNeumann:
		n, err := NewNeumann(s.Name, s.Field, s.Values)
		if err != nil {
			return nil, err
		}
		return n, nil
	case KindPeriodic:
		return NewPeriodic(s.Name, s.Field), nil
	case KindAntiPeriodic:
		return NewAntiPeriodic(s.Name, s.Field), nil
	case KindPeriodicAirGap:
		return NewPeriodicAirGap(s.Name, s.Field, s.Angle), nil
	case KindAntiPeriodicAirGap:
		return NewAntiPeriodicAirGap(s.Name, s.Field, s.Angle), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidBoundary, s.Kind)
}
