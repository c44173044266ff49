package platform

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/adze/pkg/model"
)

// DefaultMetricsFile is the results file every generated script writes.
const DefaultMetricsFile = "fem_data.csv"

var (
	// ErrInvalidMetadata is wrapped by every metadata and option check.
	ErrInvalidMetadata = errors.New("platform: invalid metadata")
	// ErrFieldUnsupported is returned when a platform cannot express a field
	// type, boundary kind or metric.
	ErrFieldUnsupported = errors.New("platform: not supported")
)

// Coordinates is the problem symmetry.
type Coordinates int

const (
	Planar Coordinates = iota
	Axisymmetric
)

func (c Coordinates) String() string {
	switch c {
	case Planar:
		return "planar"
	case Axisymmetric:
		return "axisymmetric"
	default:
		return fmt.Sprintf("Coordinates(%d)", int(c))
	}
}

// ParseCoordinates accepts "planar" and "axisymmetric".
func ParseCoordinates(s string) (Coordinates, error) {
	switch strings.ToLower(s) {
	case "", "planar":
		return Planar, nil
	case "axisymmetric", "axi":
		return Axisymmetric, nil
	}
	return 0, fmt.Errorf("%w: there is no %q type of coordinate", ErrInvalidMetadata, s)
}

// Metadata is the part of the problem description every platform shares.
// Unit is platform specific: FEMM takes a length unit name, Agros2D and
// NGSolve a scale factor to meters.
type Metadata struct {
	Problem     model.FieldType
	Analysis    string
	Coordinates Coordinates
	Unit        string
	UnitScale   float64
	Precision   float64

	ScriptName   string
	ScriptSuffix string
	MetricsFile  string
}

// NewMetadata returns metadata with the shared defaults.
func NewMetadata(problem model.FieldType, scriptName string) Metadata {
	return Metadata{
		Problem:     problem,
		Analysis:    "steadystate",
		Unit:        "meters",
		UnitScale:   1,
		Precision:   1e-8,
		ScriptName:  scriptName,
		MetricsFile: DefaultMetricsFile,
	}
}

// Validate normalizes the script name (everything from the first dot is
// replaced by the platform suffix) and checks the shared fields.
func (m *Metadata) Validate() error {
	if m.ScriptName == "" {
		return fmt.Errorf("%w: script name is empty", ErrInvalidMetadata)
	}
	base := filepath.Base(m.ScriptName)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return fmt.Errorf("%w: script name %q has no stem", ErrInvalidMetadata, m.ScriptName)
	}
	m.ScriptName = filepath.Join(filepath.Dir(m.ScriptName), base+m.ScriptSuffix)

	if m.MetricsFile == "" {
		m.MetricsFile = DefaultMetricsFile
	}
	if m.Precision <= 0 {
		return fmt.Errorf("%w: precision must be positive, got %g", ErrInvalidMetadata, m.Precision)
	}
	if m.UnitScale <= 0 {
		return fmt.Errorf("%w: unit scale must be positive, got %g", ErrInvalidMetadata, m.UnitScale)
	}
	return nil
}

// ScriptStem is the script file name without its suffix; solvers derive
// their own output names from it.
func (m *Metadata) ScriptStem() string {
	return strings.TrimSuffix(filepath.Base(m.ScriptName), m.ScriptSuffix)
}
