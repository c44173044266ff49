package graph

import (
	"fmt"

	"github.com/chazu/adze/pkg/geom"
)

// ValidationSeverity indicates whether a finding blocks export or is merely
// informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks export
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	ElementID int                // primitive or node with the problem (zero if model-level)
	Message   string             // human-readable description
	Severity  ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.ElementID == 0 {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] element %d: %s", e.Severity, e.ElementID, e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	ElementID int
	Message   string
}

// ValidationResult bundles errors (blocking) and warnings (advisory).
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether there are no blocking errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) add(findings ...ValidationError) {
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			r.Warnings = append(r.Warnings, ValidationWarning{ElementID: f.ElementID, Message: f.Message})
			continue
		}
		r.Errors = append(r.Errors, f)
	}
}

func (r *ValidationResult) merge(o ValidationResult) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// ValidateGeometry runs the structural and geometric checks on a geometry.
// It is read-only.
//
// Tier 1 (errors): every primitive references existing nodes, node ids are
// unambiguous.
// Tier 2 (errors + warnings): no zero-length lines, arcs on one circle, no
// unmerged near-duplicate points, no open chains.
func ValidateGeometry(g *geom.Geometry) ValidationResult {
	var result ValidationResult
	result.add(validateReferences(g)...)
	result.add(validateNodeIDs(g)...)
	result.add(validateDegenerate(g)...)
	result.add(validateNearDuplicates(g)...)
	result.add(validateOpenChains(g)...)
	return result
}
