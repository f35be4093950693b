package pipeline

import "chadograph/internal/cache"

// Severity captures validator outcomes.
type Severity string

const (
	// SeverityBlock halts the pipeline before serialization.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows the export to proceed.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Diagnostic is one finding produced by a validator.
type Diagnostic struct {
	Validator string
	Severity  Severity
	Message   string
	Entity    cache.EntityType
	EntityID  string
}

// Report aggregates diagnostics across validators.
type Report struct {
	Diagnostics []Diagnostic
}

// Merge appends the other report's diagnostics.
func (r *Report) Merge(other Report) {
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
}

// HasBlocking reports whether any diagnostic blocks the export.
func (r Report) HasBlocking() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
