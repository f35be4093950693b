package pipeline

import (
	"context"
	"strings"
	"testing"

	"chadograph/pkg/chado"
)

func severities(r Report) []Severity {
	out := make([]Severity, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		out = append(out, d.Severity)
	}
	return out
}

func TestProtocolValidator(t *testing.T) {
	run := newTestRun(t)
	named, err := run.Put(&chado.Protocol{Name: "growth", Description: "Grow cells"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Protocols["growth"] = named
	bare, err := run.Put(&chado.Protocol{Name: "wash"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Protocols["wash"] = bare
	unnamed, err := run.Put(&chado.Protocol{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Protocols[""] = unnamed

	report, err := ProtocolValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var blocks, warns int
	for _, d := range report.Diagnostics {
		switch d.Severity {
		case SeverityBlock:
			blocks++
		case SeverityWarn:
			warns++
		}
	}
	if blocks != 1 {
		t.Fatalf("blocking diagnostics = %d, want 1 (unnamed protocol)", blocks)
	}
	// "wash" and the unnamed protocol both lack descriptions.
	if warns != 2 {
		t.Fatalf("warnings = %d, want 2", warns)
	}
	if !report.HasBlocking() {
		t.Fatal("report should block")
	}
}

func TestProtocolValidatorReportsInKeyOrder(t *testing.T) {
	run := newTestRun(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		h, err := run.Put(&chado.Protocol{Name: name})
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		run.Protocols[name] = h
	}

	report, err := ProtocolValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(report.Diagnostics) != 3 {
		t.Fatalf("diagnostics = %d, want 3", len(report.Diagnostics))
	}
	for i, name := range []string{"alpha", "mid", "zeta"} {
		if !strings.Contains(report.Diagnostics[i].Message, name) {
			t.Fatalf("diagnostic %d = %q, want protocol %q", i, report.Diagnostics[i].Message, name)
		}
	}
}

func TestTermSourceValidatorAllocatesStableIDs(t *testing.T) {
	run := newTestRun(t)
	for _, key := range []string{"b-datum", "a-datum"} {
		h, err := run.Put(&chado.Datum{Heading: "Result Value", Value: key, TermSource: "SO"})
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		run.Data[key] = h
	}
	db, err := run.Put(&chado.DB{Name: "SO"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.TermSources["SO"] = db

	report, err := TermSourceValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.HasBlocking() {
		t.Fatalf("unexpected blocking diagnostics: %+v", report.Diagnostics)
	}
	// Key order drives resolution, so a-datum's dbxref is allocated first
	// regardless of insertion order.
	a := mustMaterialize[*chado.Datum](t, run, run.Data["a-datum"])
	b := mustMaterialize[*chado.Datum](t, run, run.Data["b-datum"])
	if a.DBXref.ID() != "1" || b.DBXref.ID() != "2" {
		t.Fatalf("dbxref ids not in key order: a=%s b=%s", a.DBXref.ID(), b.DBXref.ID())
	}
}

func TestWiringValidatorCreatesAnonymousOutput(t *testing.T) {
	run := newTestRun(t)
	protocol, err := run.Put(&chado.Protocol{Name: "p", Description: "d"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	ap, err := run.Put(&chado.AppliedProtocol{Protocol: protocol})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Applied = append(run.Applied, ap)

	report, err := WiringValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.HasBlocking() {
		t.Fatalf("unexpected blocking diagnostics: %+v", report.Diagnostics)
	}
	if got := severities(report); len(got) != 1 || got[0] != SeverityLog {
		t.Fatalf("severities = %v, want one log entry", got)
	}
	step := mustMaterialize[*chado.AppliedProtocol](t, run, ap)
	if len(step.Outputs) != 1 {
		t.Fatalf("outputs = %d, want anonymous datum", len(step.Outputs))
	}
	anon := mustMaterialize[*chado.Datum](t, run, step.Outputs[0])
	if !anon.Anonymous || anon.Heading != "Anonymous Datum" {
		t.Fatalf("anonymous datum = %+v", anon)
	}
}

func TestWiringValidatorBlocksMissingProtocol(t *testing.T) {
	run := newTestRun(t)
	ap, err := run.Put(&chado.AppliedProtocol{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Applied = append(run.Applied, ap)

	report, err := WiringValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.HasBlocking() {
		t.Fatal("step without a protocol must block")
	}
}

func TestAttributeValidatorExpandsRows(t *testing.T) {
	run := newTestRun(t)
	datum, err := run.Put(&chado.Datum{Heading: "Result File", Value: "sample.fastq"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Data["reads"] = datum
	run.AttributeRows = []AttributeRow{
		{DatumKey: "reads", Heading: "Read Length", Name: "length", Value: "36", Line: 10},
		{DatumKey: "reads", Heading: "Platform", Name: "platform", Value: "illumina", Line: 11},
	}

	report, err := AttributeValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.HasBlocking() {
		t.Fatalf("unexpected blocking diagnostics: %+v", report.Diagnostics)
	}
	d := mustMaterialize[*chado.Datum](t, run, datum)
	if len(d.Attributes) != 2 {
		t.Fatalf("attributes = %d, want 2", len(d.Attributes))
	}
	first := mustMaterialize[*chado.Attribute](t, run, d.Attributes[0])
	second := mustMaterialize[*chado.Attribute](t, run, d.Attributes[1])
	if first.Heading != "Read Length" || first.Rank != 0 {
		t.Fatalf("first attribute = %+v", first)
	}
	if second.Name != "platform" || second.Rank != 1 {
		t.Fatalf("second attribute = %+v", second)
	}
}

func TestAttributeValidatorBlocksUnknownDatum(t *testing.T) {
	run := newTestRun(t)
	run.AttributeRows = []AttributeRow{{DatumKey: "nope", Heading: "H", Name: "n", Value: "v", Line: 3}}
	report, err := AttributeValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.HasBlocking() {
		t.Fatal("unknown attribute owner must block")
	}
	if !strings.Contains(report.Diagnostics[0].Message, "nope") {
		t.Fatalf("diagnostic %q does not name the datum", report.Diagnostics[0].Message)
	}
}

func TestTermSourceValidatorResolvesHandles(t *testing.T) {
	run := newTestRun(t)
	db, err := run.Put(&chado.DB{Name: "SO"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.TermSources["SO"] = db
	datum, err := run.Put(&chado.Datum{Heading: "Result Value", Value: "gene", TypeName: "SO:gene", TermSource: "SO"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Data["d"] = datum

	report, err := TermSourceValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(report.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", report.Diagnostics)
	}
	d := mustMaterialize[*chado.Datum](t, run, datum)
	if d.Type == nil {
		t.Fatal("datum type not resolved to a term handle")
	}
	if d.DBXref == nil {
		t.Fatal("datum term source not resolved to a dbxref")
	}
	xref := mustMaterialize[*chado.DBXref](t, run, d.DBXref)
	if xref.Accession != "gene" || xref.DB != db {
		t.Fatalf("dbxref = %+v", xref)
	}
}

func TestTermSourceValidatorBlocksUnknownSource(t *testing.T) {
	run := newTestRun(t)
	datum, err := run.Put(&chado.Datum{Heading: "H", Value: "v", TermSource: "nowhere"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	run.Data["d"] = datum

	report, err := TermSourceValidator{}.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.HasBlocking() {
		t.Fatal("unknown term source must block")
	}
	if !strings.Contains(report.Diagnostics[0].Message, "nowhere") {
		t.Fatalf("diagnostic %q does not name the source", report.Diagnostics[0].Message)
	}
}

type failingValidator struct{}

func (failingValidator) Name() string { return "failing" }

func (failingValidator) Validate(context.Context, *Run) (Report, error) {
	return Report{}, context.Canceled
}

func TestEngineAggregatesAndWrapsErrors(t *testing.T) {
	run := newTestRun(t)
	if err := Parse(strings.NewReader(sampleDescription), run); err != nil {
		t.Fatalf("parse: %v", err)
	}

	report, err := NewDefaultEngine().Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.HasBlocking() {
		t.Fatalf("sample description should pass: %+v", report.Diagnostics)
	}

	engine := NewEngine()
	engine.Register(failingValidator{})
	if _, err := engine.Validate(context.Background(), run); err == nil {
		t.Fatal("expected wrapped validator error")
	} else if !strings.Contains(err.Error(), "failing") {
		t.Fatalf("error %q does not name the validator", err)
	}
}
