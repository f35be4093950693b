package pipeline

import (
	"strings"
	"sync"
	"testing"

	"chadograph/internal/cache"
	"chadograph/pkg/chado"
)

type memStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

func newMemStore() *memStore { return &memStore{payloads: make(map[string][]byte)} }

func (s *memStore) Put(typ cache.EntityType, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[string(typ)+"/"+id] = append([]byte(nil), payload...)
	return nil
}

func (s *memStore) Get(typ cache.EntityType, id string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[string(typ)+"/"+id]
	return p, ok, nil
}

func (s *memStore) Close() error { return nil }

func newTestRun(t *testing.T) *Run {
	t.Helper()
	c := cache.New(newMemStore())
	if err := chado.RegisterCodecs(c); err != nil {
		t.Fatalf("register codecs: %v", err)
	}
	return NewRun(c)
}

const sampleDescription = `# RNA-seq pilot
[experiment]
rnaseq-pilot-1
lab	Smith
assay	RNA-seq

[term_sources]
SO	http://sequenceontology.org

[protocols]
extraction	SO:protocol	Extract RNA from tissue
sequencing	SO:protocol	Sequence the library

[data]
rna	Result Value	total RNA	SO:RNA	SO
reads	Result File	sample.fastq

[applied]
extraction		rna
sequencing	rna	reads

[features]
reads	F1	chrX_feat	SO:match	Drosophila	melanogaster

[attributes]
reads	Read Length	length	36
reads	Platform	platform	illumina
`

func TestParseSampleDescription(t *testing.T) {
	run := newTestRun(t)
	if err := Parse(strings.NewReader(sampleDescription), run); err != nil {
		t.Fatalf("parse: %v", err)
	}

	exp := mustMaterialize[*chado.Experiment](t, run, run.Experiment)
	if exp.UniqueName != "rnaseq-pilot-1" {
		t.Fatalf("experiment uniquename = %q", exp.UniqueName)
	}
	if len(exp.Properties) != 2 {
		t.Fatalf("experiment properties = %d, want 2", len(exp.Properties))
	}
	prop := mustMaterialize[*chado.ExperimentProp](t, run, exp.Properties[1])
	if prop.Name != "assay" || prop.Value != "RNA-seq" || prop.Rank != 1 {
		t.Fatalf("second property = %+v", prop)
	}

	if len(run.Protocols) != 2 {
		t.Fatalf("protocols = %d, want 2", len(run.Protocols))
	}
	extraction := mustMaterialize[*chado.Protocol](t, run, run.Protocols["extraction"])
	if extraction.Description != "Extract RNA from tissue" {
		t.Fatalf("extraction description = %q", extraction.Description)
	}
	if extraction.Type == nil {
		t.Fatal("extraction protocol type not resolved")
	}

	if len(run.Applied) != 2 {
		t.Fatalf("applied protocols = %d, want 2", len(run.Applied))
	}
	first := mustMaterialize[*chado.AppliedProtocol](t, run, run.Applied[0])
	second := mustMaterialize[*chado.AppliedProtocol](t, run, run.Applied[1])
	if len(first.Outputs) != 1 || len(second.Inputs) != 1 {
		t.Fatalf("wiring: first outputs %d, second inputs %d", len(first.Outputs), len(second.Inputs))
	}
	if first.Outputs[0] != second.Inputs[0] {
		t.Fatal("shared datum is not the same handle across steps")
	}

	// Only the chain head hangs off the experiment; the second step is
	// reachable through the back-link on the shared datum.
	if len(exp.AppliedProtocols) != 1 {
		t.Fatalf("experiment anchors %d applied protocols, want 1", len(exp.AppliedProtocols))
	}
	rna := mustMaterialize[*chado.Datum](t, run, run.Data["rna"])
	if len(rna.AppliedProtocols) != 1 || rna.AppliedProtocols[0] != run.Applied[1] {
		t.Fatalf("shared datum back-links %d steps, want the consuming step", len(rna.AppliedProtocols))
	}

	reads := mustMaterialize[*chado.Datum](t, run, run.Data["reads"])
	if len(reads.Features) != 1 {
		t.Fatalf("reads features = %d, want 1", len(reads.Features))
	}
	if got := reads.Features[0].ID(); got != "F1" {
		t.Fatalf("feature id = %q, want external id F1", got)
	}
	feature := mustMaterialize[*chado.Feature](t, run, reads.Features[0])
	if feature.UniqueName != "chrX_feat" {
		t.Fatalf("feature uniquename = %q", feature.UniqueName)
	}
	if feature.Organism == nil {
		t.Fatal("feature organism not resolved")
	}
	organism := mustMaterialize[*chado.Organism](t, run, feature.Organism)
	if organism.Genus != "Drosophila" || organism.Species != "melanogaster" {
		t.Fatalf("organism = %+v", organism)
	}

	// Attribute rows stay raw until validation expands them.
	if len(run.AttributeRows) != 2 {
		t.Fatalf("attribute rows = %d, want 2", len(run.AttributeRows))
	}
	if row := run.AttributeRows[1]; row.DatumKey != "reads" || row.Name != "platform" {
		t.Fatalf("second attribute row = %+v", row)
	}

	if _, ok := run.TermSources["SO"]; !ok {
		t.Fatal("term source SO not registered")
	}
}

func TestParseSharesQualifiedTerms(t *testing.T) {
	run := newTestRun(t)
	a, err := run.Term("SO:gene")
	if err != nil {
		t.Fatalf("term: %v", err)
	}
	b, err := run.Term("SO:gene")
	if err != nil {
		t.Fatalf("term: %v", err)
	}
	if a != b {
		t.Fatal("same qualified term resolved to distinct handles")
	}
	local, err := run.Term("gene")
	if err != nil {
		t.Fatalf("term: %v", err)
	}
	if local == a {
		t.Fatal("unqualified term shares a handle with the SO term")
	}
	term := mustMaterialize[*chado.CVTerm](t, run, local)
	cv := mustMaterialize[*chado.CV](t, run, term.CV)
	if cv.Name != "local" {
		t.Fatalf("default cv name = %q, want local", cv.Name)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "content before section",
			input: "stray line\n",
			want:  "content before first section",
		},
		{
			name:  "unknown section",
			input: "[experiment]\nexp-1\n[bogus]\nx\n",
			want:  "unknown section",
		},
		{
			name:  "missing uniquename",
			input: "[protocols]\np\tSO:t\tdesc\n",
			want:  "no [experiment] uniquename",
		},
		{
			name:  "applied references unknown protocol",
			input: "[experiment]\nexp-1\n[applied]\nmissing\n",
			want:  "unknown protocol",
		},
		{
			name:  "applied references unknown datum",
			input: "[experiment]\nexp-1\n[protocols]\np\n[applied]\np\tnope\n",
			want:  "unknown datum",
		},
		{
			name:  "duplicate datum key",
			input: "[experiment]\nexp-1\n[data]\nd\tH\tv\nd\tH\tv\n",
			want:  "defined twice",
		},
		{
			name:  "feature references unknown datum",
			input: "[experiment]\nexp-1\n[features]\nnope\tF1\tfeat\n",
			want:  "unknown datum",
		},
		{
			name:  "attribute with missing columns",
			input: "[experiment]\nexp-1\n[attributes]\nreads\tHeading\tname\n",
			want:  "attribute needs",
		},
		{
			name:  "attribute with empty datum key",
			input: "[experiment]\nexp-1\n[attributes]\n\tHeading\tname\tvalue\n",
			want:  "datum key empty",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run := newTestRun(t)
			err := Parse(strings.NewReader(tc.input), run)
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func mustMaterialize[E chado.Entity](t *testing.T, run *Run, h *cache.Handle) E {
	t.Helper()
	entity, err := materialize[E](run.Cache, h)
	if err != nil {
		t.Fatalf("materialize %s/%s: %v", h.Type(), h.ID(), err)
	}
	return entity
}
