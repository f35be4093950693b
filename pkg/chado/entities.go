// Package chado defines the typed records of the experiment graph and their
// compressed-payload codecs. Entities reference each other exclusively through
// cache handles; the graph is threaded together by handle identity, never by
// direct entity pointers.
package chado

import (
	"strconv"

	"chadograph/internal/cache"
)

// EntityType aliases the cache's type tag so callers use one vocabulary.
type EntityType = cache.EntityType

// Schema type tags. Tags double as element names in the serialized document.
const (
	TypeExperiment          EntityType = "experiment"
	TypeExperimentProp      EntityType = "experiment_prop"
	TypeProtocol            EntityType = "protocol"
	TypeAttribute           EntityType = "attribute"
	TypeAppliedProtocol     EntityType = "applied_protocol"
	TypeDatum               EntityType = "data"
	TypeFeature             EntityType = "feature"
	TypeFeatureRelationship EntityType = "feature_relationship"
	TypeFeatureLoc          EntityType = "featureloc"
	TypeAnalysis            EntityType = "analysis"
	TypeAnalysisFeature     EntityType = "analysisfeature"
	TypeOrganism            EntityType = "organism"
	TypeCV                  EntityType = "cv"
	TypeCVTerm              EntityType = "cvterm"
	TypeDB                  EntityType = "db"
	TypeDBXref              EntityType = "dbxref"
)

// Scalar is one leaf field emitted inside an entity element.
type Scalar struct {
	Name  string
	Value string
}

// Relation is one reference field: a schema column name plus the handles it
// points at, in emission order.
type Relation struct {
	Name    string
	Targets []*cache.Handle
}

// Entity is implemented by every record in the experiment graph. Scalars and
// Relations fix the traversal order used by the serializer, so output is
// deterministic across runs for the same graph.
type Entity interface {
	SchemaType() EntityType
	Scalars() []Scalar
	Relations() []Relation
}

// Experiment is the root of the graph: one submission with its properties and
// the first applied-protocol step of every protocol chain.
type Experiment struct {
	UniqueName       string          `json:"uniquename"`
	Properties       []*cache.Handle `json:"properties,omitempty"`
	AppliedProtocols []*cache.Handle `json:"applied_protocols,omitempty"`
}

// SchemaType implements Entity.
func (e *Experiment) SchemaType() EntityType { return TypeExperiment }

// Scalars implements Entity.
func (e *Experiment) Scalars() []Scalar {
	return []Scalar{{Name: "uniquename", Value: e.UniqueName}}
}

// Relations implements Entity.
func (e *Experiment) Relations() []Relation {
	return []Relation{
		{Name: "experiment_prop", Targets: e.Properties},
		{Name: "applied_protocol", Targets: e.AppliedProtocols},
	}
}

// ExperimentProp is one name/value property attached to the experiment.
type ExperimentProp struct {
	Name  string        `json:"name"`
	Value string        `json:"value"`
	Rank  int           `json:"rank"`
	Type  *cache.Handle `json:"type,omitempty"`
}

func (p *ExperimentProp) SchemaType() EntityType { return TypeExperimentProp }

func (p *ExperimentProp) Scalars() []Scalar {
	return []Scalar{
		{Name: "name", Value: p.Name},
		{Name: "value", Value: p.Value},
		{Name: "rank", Value: strconv.Itoa(p.Rank)},
	}
}

func (p *ExperimentProp) Relations() []Relation {
	return []Relation{{Name: "type_id", Targets: one(p.Type)}}
}

// Protocol describes one laboratory or computational protocol.
type Protocol struct {
	Name        string          `json:"name"`
	Version     string          `json:"version,omitempty"`
	Description string          `json:"description,omitempty"`
	Type        *cache.Handle   `json:"type,omitempty"`
	Attributes  []*cache.Handle `json:"attributes,omitempty"`
}

func (p *Protocol) SchemaType() EntityType { return TypeProtocol }

func (p *Protocol) Scalars() []Scalar {
	sc := []Scalar{{Name: "name", Value: p.Name}}
	if p.Version != "" {
		sc = append(sc, Scalar{Name: "version", Value: p.Version})
	}
	if p.Description != "" {
		sc = append(sc, Scalar{Name: "description", Value: p.Description})
	}
	return sc
}

func (p *Protocol) Relations() []Relation {
	return []Relation{
		{Name: "type_id", Targets: one(p.Type)},
		{Name: "attribute", Targets: p.Attributes},
	}
}

// Attribute is a secondary name/value annotation on a protocol or datum.
type Attribute struct {
	Heading string        `json:"heading"`
	Name    string        `json:"name,omitempty"`
	Value   string        `json:"value"`
	Rank    int           `json:"rank"`
	Type    *cache.Handle `json:"type,omitempty"`
}

func (a *Attribute) SchemaType() EntityType { return TypeAttribute }

func (a *Attribute) Scalars() []Scalar {
	sc := []Scalar{{Name: "heading", Value: a.Heading}}
	if a.Name != "" {
		sc = append(sc, Scalar{Name: "name", Value: a.Name})
	}
	sc = append(sc,
		Scalar{Name: "value", Value: a.Value},
		Scalar{Name: "rank", Value: strconv.Itoa(a.Rank)},
	)
	return sc
}

func (a *Attribute) Relations() []Relation {
	return []Relation{{Name: "type_id", Targets: one(a.Type)}}
}

// AppliedProtocol is one executed step: a protocol plus the data it consumed
// and produced. Steps chain through shared data: an output of one step is an
// input of the next.
type AppliedProtocol struct {
	Protocol *cache.Handle   `json:"protocol,omitempty"`
	Inputs   []*cache.Handle `json:"inputs,omitempty"`
	Outputs  []*cache.Handle `json:"outputs,omitempty"`
}

func (ap *AppliedProtocol) SchemaType() EntityType { return TypeAppliedProtocol }

func (ap *AppliedProtocol) Scalars() []Scalar { return nil }

func (ap *AppliedProtocol) Relations() []Relation {
	return []Relation{
		{Name: "protocol_id", Targets: one(ap.Protocol)},
		{Name: "input_data", Targets: ap.Inputs},
		{Name: "output_data", Targets: ap.Outputs},
	}
}

// Datum is one value flowing between applied-protocol steps. Anonymous data
// are created by the pipeline to thread steps whose outputs were implicit.
// AppliedProtocols back-links the steps consuming this datum as input; it is
// what keeps later chain steps reachable from the experiment root.
type Datum struct {
	Heading          string          `json:"heading"`
	Name             string          `json:"name,omitempty"`
	Value            string          `json:"value"`
	Anonymous        bool            `json:"anonymous,omitempty"`
	TypeName         string          `json:"type_name,omitempty"`
	TermSource       string          `json:"term_source,omitempty"`
	Type             *cache.Handle   `json:"type,omitempty"`
	DBXref           *cache.Handle   `json:"dbxref,omitempty"`
	Attributes       []*cache.Handle `json:"attributes,omitempty"`
	Features         []*cache.Handle `json:"features,omitempty"`
	AppliedProtocols []*cache.Handle `json:"applied_protocols,omitempty"`
}

func (d *Datum) SchemaType() EntityType { return TypeDatum }

func (d *Datum) Scalars() []Scalar {
	sc := []Scalar{{Name: "heading", Value: d.Heading}}
	if d.Name != "" {
		sc = append(sc, Scalar{Name: "name", Value: d.Name})
	}
	sc = append(sc, Scalar{Name: "value", Value: d.Value})
	if d.Anonymous {
		sc = append(sc, Scalar{Name: "anonymous", Value: "1"})
	}
	return sc
}

func (d *Datum) Relations() []Relation {
	return []Relation{
		{Name: "type_id", Targets: one(d.Type)},
		{Name: "dbxref_id", Targets: one(d.DBXref)},
		{Name: "attribute", Targets: d.Attributes},
		{Name: "feature", Targets: d.Features},
		{Name: "applied_protocol", Targets: d.AppliedProtocols},
	}
}

// Feature is one sequence feature referenced by a datum.
type Feature struct {
	UniqueName       string          `json:"uniquename"`
	Name             string          `json:"name,omitempty"`
	Residues         string          `json:"residues,omitempty"`
	SeqLen           int             `json:"seqlen,omitempty"`
	IsAnalysis       bool            `json:"is_analysis,omitempty"`
	Type             *cache.Handle   `json:"type,omitempty"`
	Organism         *cache.Handle   `json:"organism,omitempty"`
	DBXref           *cache.Handle   `json:"dbxref,omitempty"`
	Locations        []*cache.Handle `json:"locations,omitempty"`
	AnalysisFeatures []*cache.Handle `json:"analysis_features,omitempty"`
	Relationships    []*cache.Handle `json:"relationships,omitempty"`
}

func (f *Feature) SchemaType() EntityType { return TypeFeature }

func (f *Feature) Scalars() []Scalar {
	sc := []Scalar{{Name: "uniquename", Value: f.UniqueName}}
	if f.Name != "" {
		sc = append(sc, Scalar{Name: "name", Value: f.Name})
	}
	if f.Residues != "" {
		sc = append(sc, Scalar{Name: "residues", Value: f.Residues})
	}
	if f.SeqLen > 0 {
		sc = append(sc, Scalar{Name: "seqlen", Value: strconv.Itoa(f.SeqLen)})
	}
	if f.IsAnalysis {
		sc = append(sc, Scalar{Name: "is_analysis", Value: "1"})
	}
	return sc
}

func (f *Feature) Relations() []Relation {
	return []Relation{
		{Name: "type_id", Targets: one(f.Type)},
		{Name: "organism_id", Targets: one(f.Organism)},
		{Name: "dbxref_id", Targets: one(f.DBXref)},
		{Name: "featureloc", Targets: f.Locations},
		{Name: "analysisfeature", Targets: f.AnalysisFeatures},
		{Name: "feature_relationship", Targets: f.Relationships},
	}
}

// FeatureRelationship links two features; subject and object may form cycles.
type FeatureRelationship struct {
	Rank    int           `json:"rank"`
	Subject *cache.Handle `json:"subject,omitempty"`
	Object  *cache.Handle `json:"object,omitempty"`
	Type    *cache.Handle `json:"type,omitempty"`
}

func (r *FeatureRelationship) SchemaType() EntityType { return TypeFeatureRelationship }

func (r *FeatureRelationship) Scalars() []Scalar {
	return []Scalar{{Name: "rank", Value: strconv.Itoa(r.Rank)}}
}

func (r *FeatureRelationship) Relations() []Relation {
	return []Relation{
		{Name: "subject_id", Targets: one(r.Subject)},
		{Name: "object_id", Targets: one(r.Object)},
		{Name: "type_id", Targets: one(r.Type)},
	}
}

// FeatureLoc places a feature on a source feature (chromosome, scaffold).
type FeatureLoc struct {
	FMin       int           `json:"fmin"`
	FMax       int           `json:"fmax"`
	Strand     int           `json:"strand"`
	Rank       int           `json:"rank"`
	SrcFeature *cache.Handle `json:"src_feature,omitempty"`
}

func (l *FeatureLoc) SchemaType() EntityType { return TypeFeatureLoc }

func (l *FeatureLoc) Scalars() []Scalar {
	return []Scalar{
		{Name: "fmin", Value: strconv.Itoa(l.FMin)},
		{Name: "fmax", Value: strconv.Itoa(l.FMax)},
		{Name: "strand", Value: strconv.Itoa(l.Strand)},
		{Name: "rank", Value: strconv.Itoa(l.Rank)},
	}
}

func (l *FeatureLoc) Relations() []Relation {
	return []Relation{{Name: "srcfeature_id", Targets: one(l.SrcFeature)}}
}

// Analysis identifies the program run that produced scored features.
type Analysis struct {
	Name           string `json:"name"`
	Program        string `json:"program"`
	ProgramVersion string `json:"program_version,omitempty"`
	SourceName     string `json:"source_name,omitempty"`
}

func (a *Analysis) SchemaType() EntityType { return TypeAnalysis }

func (a *Analysis) Scalars() []Scalar {
	sc := []Scalar{
		{Name: "name", Value: a.Name},
		{Name: "program", Value: a.Program},
	}
	if a.ProgramVersion != "" {
		sc = append(sc, Scalar{Name: "programversion", Value: a.ProgramVersion})
	}
	if a.SourceName != "" {
		sc = append(sc, Scalar{Name: "sourcename", Value: a.SourceName})
	}
	return sc
}

func (a *Analysis) Relations() []Relation { return nil }

// AnalysisFeature attaches an analysis score to a feature.
type AnalysisFeature struct {
	RawScore  float64       `json:"rawscore"`
	NormScore float64       `json:"normscore"`
	Analysis  *cache.Handle `json:"analysis,omitempty"`
	Feature   *cache.Handle `json:"feature,omitempty"`
}

func (af *AnalysisFeature) SchemaType() EntityType { return TypeAnalysisFeature }

func (af *AnalysisFeature) Scalars() []Scalar {
	return []Scalar{
		{Name: "rawscore", Value: strconv.FormatFloat(af.RawScore, 'g', -1, 64)},
		{Name: "normscore", Value: strconv.FormatFloat(af.NormScore, 'g', -1, 64)},
	}
}

func (af *AnalysisFeature) Relations() []Relation {
	return []Relation{
		{Name: "analysis_id", Targets: one(af.Analysis)},
		{Name: "feature_id", Targets: one(af.Feature)},
	}
}

// Organism names the genus/species a feature belongs to.
type Organism struct {
	Genus   string `json:"genus"`
	Species string `json:"species"`
}

func (o *Organism) SchemaType() EntityType { return TypeOrganism }

func (o *Organism) Scalars() []Scalar {
	return []Scalar{
		{Name: "genus", Value: o.Genus},
		{Name: "species", Value: o.Species},
	}
}

func (o *Organism) Relations() []Relation { return nil }

// CV is a controlled vocabulary.
type CV struct {
	Name       string `json:"name"`
	Definition string `json:"definition,omitempty"`
}

func (v *CV) SchemaType() EntityType { return TypeCV }

func (v *CV) Scalars() []Scalar {
	sc := []Scalar{{Name: "name", Value: v.Name}}
	if v.Definition != "" {
		sc = append(sc, Scalar{Name: "definition", Value: v.Definition})
	}
	return sc
}

func (v *CV) Relations() []Relation { return nil }

// CVTerm is one term of a controlled vocabulary.
type CVTerm struct {
	Name       string        `json:"name"`
	Definition string        `json:"definition,omitempty"`
	IsObsolete bool          `json:"is_obsolete,omitempty"`
	CV         *cache.Handle `json:"cv,omitempty"`
	DBXref     *cache.Handle `json:"dbxref,omitempty"`
}

func (t *CVTerm) SchemaType() EntityType { return TypeCVTerm }

func (t *CVTerm) Scalars() []Scalar {
	sc := []Scalar{{Name: "name", Value: t.Name}}
	if t.Definition != "" {
		sc = append(sc, Scalar{Name: "definition", Value: t.Definition})
	}
	if t.IsObsolete {
		sc = append(sc, Scalar{Name: "is_obsolete", Value: "1"})
	}
	return sc
}

func (t *CVTerm) Relations() []Relation {
	return []Relation{
		{Name: "cv_id", Targets: one(t.CV)},
		{Name: "dbxref_id", Targets: one(t.DBXref)},
	}
}

// DB is an external database a term or feature cross-references.
type DB struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

func (d *DB) SchemaType() EntityType { return TypeDB }

func (d *DB) Scalars() []Scalar {
	sc := []Scalar{{Name: "name", Value: d.Name}}
	if d.URL != "" {
		sc = append(sc, Scalar{Name: "url", Value: d.URL})
	}
	if d.Description != "" {
		sc = append(sc, Scalar{Name: "description", Value: d.Description})
	}
	return sc
}

func (d *DB) Relations() []Relation { return nil }

// DBXref is an accession in an external database.
type DBXref struct {
	Accession string        `json:"accession"`
	Version   string        `json:"version,omitempty"`
	DB        *cache.Handle `json:"db,omitempty"`
}

func (x *DBXref) SchemaType() EntityType { return TypeDBXref }

func (x *DBXref) Scalars() []Scalar {
	sc := []Scalar{{Name: "accession", Value: x.Accession}}
	if x.Version != "" {
		sc = append(sc, Scalar{Name: "version", Value: x.Version})
	}
	return sc
}

func (x *DBXref) Relations() []Relation {
	return []Relation{{Name: "db_id", Targets: one(x.DB)}}
}

// one wraps a nullable single-target relation. Nil handles yield no targets.
func one(h *cache.Handle) []*cache.Handle {
	if h == nil {
		return nil
	}
	return []*cache.Handle{h}
}
