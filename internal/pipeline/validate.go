package pipeline

import (
	"context"
	"fmt"
	"sort"

	"chadograph/pkg/chado"
)

// Validator checks or enriches one aspect of a parsed run. Validators may
// mutate entities in place; they run strictly before serialization.
type Validator interface {
	Name() string
	Validate(ctx context.Context, run *Run) (Report, error)
}

// Engine executes validators in registration order, halting on the first
// hard error. Blocking diagnostics are aggregated, not short-circuited, so a
// failing description reports every problem at once.
type Engine struct {
	validators []Validator
}

// NewEngine constructs an empty engine.
func NewEngine() *Engine {
	return &Engine{}
}

// NewDefaultEngine builds an engine with the built-in validator set.
func NewDefaultEngine() *Engine {
	engine := NewEngine()
	engine.Register(ProtocolValidator{})
	engine.Register(WiringValidator{})
	engine.Register(AttributeValidator{})
	engine.Register(TermSourceValidator{})
	return engine
}

// Register appends a validator to the engine.
func (e *Engine) Register(v Validator) {
	e.validators = append(e.validators, v)
}

// Validate runs all registered validators and aggregates their reports.
func (e *Engine) Validate(ctx context.Context, run *Run) (Report, error) {
	var combined Report
	for _, v := range e.validators {
		report, err := v.Validate(ctx, run)
		if err != nil {
			return Report{}, fmt.Errorf("%s: %w", v.Name(), err)
		}
		combined.Merge(report)
	}
	return combined, nil
}

// ProtocolValidator checks that every referenced protocol is usable.
type ProtocolValidator struct{}

// Name implements Validator.
func (ProtocolValidator) Name() string { return "protocol-completeness" }

// Validate blocks on unnamed protocols and warns on missing descriptions.
// Protocols are visited in key order so diagnostics are stable across runs.
func (v ProtocolValidator) Validate(_ context.Context, run *Run) (Report, error) {
	var report Report
	for _, name := range sortedKeys(run.Protocols) {
		h := run.Protocols[name]
		protocol, err := materialize[*chado.Protocol](run.Cache, h)
		if err != nil {
			return Report{}, err
		}
		if protocol.Name == "" {
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Validator: v.Name(), Severity: SeverityBlock,
				Message: fmt.Sprintf("protocol %q has no name", name),
				Entity:  chado.TypeProtocol, EntityID: h.ID(),
			})
		}
		if protocol.Description == "" {
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Validator: v.Name(), Severity: SeverityWarn,
				Message: fmt.Sprintf("protocol %q has no description", protocol.Name),
				Entity:  chado.TypeProtocol, EntityID: h.ID(),
			})
		}
	}
	return report, nil
}

// WiringValidator checks applied-protocol chains and threads steps whose
// outputs were implicit by creating anonymous data.
type WiringValidator struct{}

// Name implements Validator.
func (WiringValidator) Name() string { return "applied-protocol-wiring" }

// Validate ensures every step has a protocol and at least one output.
func (v WiringValidator) Validate(_ context.Context, run *Run) (Report, error) {
	var report Report
	for _, h := range run.Applied {
		ap, err := materialize[*chado.AppliedProtocol](run.Cache, h)
		if err != nil {
			return Report{}, err
		}
		if ap.Protocol == nil {
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Validator: v.Name(), Severity: SeverityBlock,
				Message: "applied protocol has no protocol",
				Entity:  chado.TypeAppliedProtocol, EntityID: h.ID(),
			})
			continue
		}
		if len(ap.Outputs) == 0 {
			anon := &chado.Datum{Heading: "Anonymous Datum", Anonymous: true}
			out, err := run.Put(anon)
			if err != nil {
				return Report{}, err
			}
			ap.Outputs = append(ap.Outputs, out)
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Validator: v.Name(), Severity: SeverityLog,
				Message: "created anonymous output datum",
				Entity:  chado.TypeAppliedProtocol, EntityID: h.ID(),
			})
		}
	}
	return report, nil
}

// AttributeValidator expands raw attribute rows into Attribute entities on
// their owning data. Expansion runs here rather than in the parser so that
// attribute lines may appear before their [data] section.
type AttributeValidator struct{}

// Name implements Validator.
func (AttributeValidator) Name() string { return "attribute-expansion" }

// Validate attaches one Attribute entity per row, ranked in description order
// per datum. Rows naming an unknown datum block the export.
func (v AttributeValidator) Validate(_ context.Context, run *Run) (Report, error) {
	var report Report
	ranks := make(map[string]int)
	for _, row := range run.AttributeRows {
		owner, ok := run.Data[row.DatumKey]
		if !ok {
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Validator: v.Name(), Severity: SeverityBlock,
				Message: fmt.Sprintf("line %d: attribute references unknown datum %q", row.Line, row.DatumKey),
				Entity:  chado.TypeAttribute,
			})
			continue
		}
		d, err := materialize[*chado.Datum](run.Cache, owner)
		if err != nil {
			return Report{}, err
		}
		attr := &chado.Attribute{Heading: row.Heading, Name: row.Name, Value: row.Value, Rank: ranks[row.DatumKey]}
		ranks[row.DatumKey]++
		h, err := run.Put(attr)
		if err != nil {
			return Report{}, err
		}
		d.Attributes = append(d.Attributes, h)
	}
	return report, nil
}

// TermSourceValidator resolves the term and term-source names recorded on
// data against the parsed vocabularies, attaching CVTerm and DBXref handles.
type TermSourceValidator struct{}

// Name implements Validator.
func (TermSourceValidator) Name() string { return "term-source-resolution" }

// Validate attaches resolved handles in place; unresolvable term sources
// block the export. Data are visited in key order so diagnostics and the
// ids allocated for resolved terms are stable across runs.
func (v TermSourceValidator) Validate(_ context.Context, run *Run) (Report, error) {
	var report Report
	for _, key := range sortedKeys(run.Data) {
		h := run.Data[key]
		d, err := materialize[*chado.Datum](run.Cache, h)
		if err != nil {
			return Report{}, err
		}
		if d.TypeName != "" && d.Type == nil {
			typ, err := run.Term(d.TypeName)
			if err != nil {
				return Report{}, err
			}
			d.Type = typ
		}
		if d.TermSource != "" && d.DBXref == nil {
			db, ok := run.TermSources[d.TermSource]
			if !ok {
				report.Diagnostics = append(report.Diagnostics, Diagnostic{
					Validator: v.Name(), Severity: SeverityBlock,
					Message: fmt.Sprintf("datum %q references unknown term source %q", key, d.TermSource),
					Entity:  chado.TypeDatum, EntityID: h.ID(),
				})
				continue
			}
			xref, err := run.Put(&chado.DBXref{Accession: d.Value, DB: db})
			if err != nil {
				return Report{}, err
			}
			d.DBXref = xref
		}
	}
	return report, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
