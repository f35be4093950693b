package chado

import (
	"encoding/json"
	"fmt"

	"chadograph/internal/cache"
)

// Codecs translate entities to and from their compressed payloads. The encode
// side is plain JSON: handles marshal as type/id refs, so a payload captures
// neighbour identifiers and nothing else. The decode side reads the wire form
// and resolves every ref through GetOrCreate, leaving neighbours compressed.

// jsonCodec adapts a per-type wire struct and restore function to cache.Codec.
type jsonCodec[W any] struct {
	empty   func(c *cache.Cache) any
	restore func(c *cache.Cache, w *W) (any, error)
}

func (cd jsonCodec[W]) Empty(c *cache.Cache) any { return cd.empty(c) }

func (cd jsonCodec[W]) Encode(entity any) ([]byte, error) {
	return json.Marshal(entity)
}

func (cd jsonCodec[W]) Decode(c *cache.Cache, payload []byte) (any, error) {
	var w W
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("chado: decode wire form: %w", err)
	}
	return cd.restore(c, &w)
}

func resolve(c *cache.Cache, r *cache.Ref) (*cache.Handle, error) {
	if r == nil {
		return nil, nil
	}
	return c.GetOrCreate(r.Type, r.ID)
}

func resolveAll(c *cache.Cache, refs []cache.Ref) ([]*cache.Handle, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	handles := make([]*cache.Handle, 0, len(refs))
	for _, r := range refs {
		h, err := c.GetOrCreate(r.Type, r.ID)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

type experimentWire struct {
	UniqueName       string      `json:"uniquename"`
	Properties       []cache.Ref `json:"properties,omitempty"`
	AppliedProtocols []cache.Ref `json:"applied_protocols,omitempty"`
}

type experimentPropWire struct {
	Name  string     `json:"name"`
	Value string     `json:"value"`
	Rank  int        `json:"rank"`
	Type  *cache.Ref `json:"type,omitempty"`
}

type protocolWire struct {
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Description string      `json:"description,omitempty"`
	Type        *cache.Ref  `json:"type,omitempty"`
	Attributes  []cache.Ref `json:"attributes,omitempty"`
}

type attributeWire struct {
	Heading string     `json:"heading"`
	Name    string     `json:"name,omitempty"`
	Value   string     `json:"value"`
	Rank    int        `json:"rank"`
	Type    *cache.Ref `json:"type,omitempty"`
}

type appliedProtocolWire struct {
	Protocol *cache.Ref  `json:"protocol,omitempty"`
	Inputs   []cache.Ref `json:"inputs,omitempty"`
	Outputs  []cache.Ref `json:"outputs,omitempty"`
}

type datumWire struct {
	Heading          string      `json:"heading"`
	Name             string      `json:"name,omitempty"`
	Value            string      `json:"value"`
	Anonymous        bool        `json:"anonymous,omitempty"`
	TypeName         string      `json:"type_name,omitempty"`
	TermSource       string      `json:"term_source,omitempty"`
	Type             *cache.Ref  `json:"type,omitempty"`
	DBXref           *cache.Ref  `json:"dbxref,omitempty"`
	Attributes       []cache.Ref `json:"attributes,omitempty"`
	Features         []cache.Ref `json:"features,omitempty"`
	AppliedProtocols []cache.Ref `json:"applied_protocols,omitempty"`
}

type featureWire struct {
	UniqueName       string      `json:"uniquename"`
	Name             string      `json:"name,omitempty"`
	Residues         string      `json:"residues,omitempty"`
	SeqLen           int         `json:"seqlen,omitempty"`
	IsAnalysis       bool        `json:"is_analysis,omitempty"`
	Type             *cache.Ref  `json:"type,omitempty"`
	Organism         *cache.Ref  `json:"organism,omitempty"`
	DBXref           *cache.Ref  `json:"dbxref,omitempty"`
	Locations        []cache.Ref `json:"locations,omitempty"`
	AnalysisFeatures []cache.Ref `json:"analysis_features,omitempty"`
	Relationships    []cache.Ref `json:"relationships,omitempty"`
}

type featureRelationshipWire struct {
	Rank    int        `json:"rank"`
	Subject *cache.Ref `json:"subject,omitempty"`
	Object  *cache.Ref `json:"object,omitempty"`
	Type    *cache.Ref `json:"type,omitempty"`
}

type featureLocWire struct {
	FMin       int        `json:"fmin"`
	FMax       int        `json:"fmax"`
	Strand     int        `json:"strand"`
	Rank       int        `json:"rank"`
	SrcFeature *cache.Ref `json:"src_feature,omitempty"`
}

type analysisFeatureWire struct {
	RawScore  float64    `json:"rawscore"`
	NormScore float64    `json:"normscore"`
	Analysis  *cache.Ref `json:"analysis,omitempty"`
	Feature   *cache.Ref `json:"feature,omitempty"`
}

type cvtermWire struct {
	Name       string     `json:"name"`
	Definition string     `json:"definition,omitempty"`
	IsObsolete bool       `json:"is_obsolete,omitempty"`
	CV         *cache.Ref `json:"cv,omitempty"`
	DBXref     *cache.Ref `json:"dbxref,omitempty"`
}

type dbxrefWire struct {
	Accession string     `json:"accession"`
	Version   string     `json:"version,omitempty"`
	DB        *cache.Ref `json:"db,omitempty"`
}

// RegisterCodecs installs the codec for every schema type into the cache.
// It is called once at startup, before any entity is created.
func RegisterCodecs(c *cache.Cache) error {
	codecs := map[EntityType]cache.Codec{
		TypeExperiment: jsonCodec[experimentWire]{
			empty: func(*cache.Cache) any { return &Experiment{} },
			restore: func(c *cache.Cache, w *experimentWire) (any, error) {
				props, err := resolveAll(c, w.Properties)
				if err != nil {
					return nil, err
				}
				aps, err := resolveAll(c, w.AppliedProtocols)
				if err != nil {
					return nil, err
				}
				return &Experiment{UniqueName: w.UniqueName, Properties: props, AppliedProtocols: aps}, nil
			},
		},
		TypeExperimentProp: jsonCodec[experimentPropWire]{
			empty: func(*cache.Cache) any { return &ExperimentProp{} },
			restore: func(c *cache.Cache, w *experimentPropWire) (any, error) {
				typ, err := resolve(c, w.Type)
				if err != nil {
					return nil, err
				}
				return &ExperimentProp{Name: w.Name, Value: w.Value, Rank: w.Rank, Type: typ}, nil
			},
		},
		TypeProtocol: jsonCodec[protocolWire]{
			empty: func(*cache.Cache) any { return &Protocol{} },
			restore: func(c *cache.Cache, w *protocolWire) (any, error) {
				typ, err := resolve(c, w.Type)
				if err != nil {
					return nil, err
				}
				attrs, err := resolveAll(c, w.Attributes)
				if err != nil {
					return nil, err
				}
				return &Protocol{Name: w.Name, Version: w.Version, Description: w.Description, Type: typ, Attributes: attrs}, nil
			},
		},
		TypeAttribute: jsonCodec[attributeWire]{
			empty: func(*cache.Cache) any { return &Attribute{} },
			restore: func(c *cache.Cache, w *attributeWire) (any, error) {
				typ, err := resolve(c, w.Type)
				if err != nil {
					return nil, err
				}
				return &Attribute{Heading: w.Heading, Name: w.Name, Value: w.Value, Rank: w.Rank, Type: typ}, nil
			},
		},
		TypeAppliedProtocol: jsonCodec[appliedProtocolWire]{
			empty: func(*cache.Cache) any { return &AppliedProtocol{} },
			restore: func(c *cache.Cache, w *appliedProtocolWire) (any, error) {
				protocol, err := resolve(c, w.Protocol)
				if err != nil {
					return nil, err
				}
				inputs, err := resolveAll(c, w.Inputs)
				if err != nil {
					return nil, err
				}
				outputs, err := resolveAll(c, w.Outputs)
				if err != nil {
					return nil, err
				}
				return &AppliedProtocol{Protocol: protocol, Inputs: inputs, Outputs: outputs}, nil
			},
		},
		TypeDatum: jsonCodec[datumWire]{
			empty: func(*cache.Cache) any { return &Datum{} },
			restore: func(c *cache.Cache, w *datumWire) (any, error) {
				typ, err := resolve(c, w.Type)
				if err != nil {
					return nil, err
				}
				xref, err := resolve(c, w.DBXref)
				if err != nil {
					return nil, err
				}
				attrs, err := resolveAll(c, w.Attributes)
				if err != nil {
					return nil, err
				}
				features, err := resolveAll(c, w.Features)
				if err != nil {
					return nil, err
				}
				consumers, err := resolveAll(c, w.AppliedProtocols)
				if err != nil {
					return nil, err
				}
				return &Datum{
					Heading: w.Heading, Name: w.Name, Value: w.Value,
					Anonymous: w.Anonymous, TypeName: w.TypeName, TermSource: w.TermSource,
					Type: typ, DBXref: xref, Attributes: attrs, Features: features,
					AppliedProtocols: consumers,
				}, nil
			},
		},
		TypeFeature: jsonCodec[featureWire]{
			empty: func(*cache.Cache) any { return &Feature{} },
			restore: func(c *cache.Cache, w *featureWire) (any, error) {
				typ, err := resolve(c, w.Type)
				if err != nil {
					return nil, err
				}
				organism, err := resolve(c, w.Organism)
				if err != nil {
					return nil, err
				}
				xref, err := resolve(c, w.DBXref)
				if err != nil {
					return nil, err
				}
				locs, err := resolveAll(c, w.Locations)
				if err != nil {
					return nil, err
				}
				afs, err := resolveAll(c, w.AnalysisFeatures)
				if err != nil {
					return nil, err
				}
				rels, err := resolveAll(c, w.Relationships)
				if err != nil {
					return nil, err
				}
				return &Feature{
					UniqueName: w.UniqueName, Name: w.Name, Residues: w.Residues,
					SeqLen: w.SeqLen, IsAnalysis: w.IsAnalysis,
					Type: typ, Organism: organism, DBXref: xref,
					Locations: locs, AnalysisFeatures: afs, Relationships: rels,
				}, nil
			},
		},
		TypeFeatureRelationship: jsonCodec[featureRelationshipWire]{
			empty: func(*cache.Cache) any { return &FeatureRelationship{} },
			restore: func(c *cache.Cache, w *featureRelationshipWire) (any, error) {
				subject, err := resolve(c, w.Subject)
				if err != nil {
					return nil, err
				}
				object, err := resolve(c, w.Object)
				if err != nil {
					return nil, err
				}
				typ, err := resolve(c, w.Type)
				if err != nil {
					return nil, err
				}
				return &FeatureRelationship{Rank: w.Rank, Subject: subject, Object: object, Type: typ}, nil
			},
		},
		TypeFeatureLoc: jsonCodec[featureLocWire]{
			empty: func(*cache.Cache) any { return &FeatureLoc{} },
			restore: func(c *cache.Cache, w *featureLocWire) (any, error) {
				src, err := resolve(c, w.SrcFeature)
				if err != nil {
					return nil, err
				}
				return &FeatureLoc{FMin: w.FMin, FMax: w.FMax, Strand: w.Strand, Rank: w.Rank, SrcFeature: src}, nil
			},
		},
		TypeAnalysis: jsonCodec[Analysis]{
			empty: func(*cache.Cache) any { return &Analysis{} },
			restore: func(_ *cache.Cache, w *Analysis) (any, error) {
				cp := *w
				return &cp, nil
			},
		},
		TypeAnalysisFeature: jsonCodec[analysisFeatureWire]{
			empty: func(*cache.Cache) any { return &AnalysisFeature{} },
			restore: func(c *cache.Cache, w *analysisFeatureWire) (any, error) {
				analysis, err := resolve(c, w.Analysis)
				if err != nil {
					return nil, err
				}
				feature, err := resolve(c, w.Feature)
				if err != nil {
					return nil, err
				}
				return &AnalysisFeature{RawScore: w.RawScore, NormScore: w.NormScore, Analysis: analysis, Feature: feature}, nil
			},
		},
		TypeOrganism: jsonCodec[Organism]{
			empty: func(*cache.Cache) any { return &Organism{} },
			restore: func(_ *cache.Cache, w *Organism) (any, error) {
				cp := *w
				return &cp, nil
			},
		},
		TypeCV: jsonCodec[CV]{
			empty: func(*cache.Cache) any { return &CV{} },
			restore: func(_ *cache.Cache, w *CV) (any, error) {
				cp := *w
				return &cp, nil
			},
		},
		TypeCVTerm: jsonCodec[cvtermWire]{
			empty: func(*cache.Cache) any { return &CVTerm{} },
			restore: func(c *cache.Cache, w *cvtermWire) (any, error) {
				cv, err := resolve(c, w.CV)
				if err != nil {
					return nil, err
				}
				xref, err := resolve(c, w.DBXref)
				if err != nil {
					return nil, err
				}
				return &CVTerm{Name: w.Name, Definition: w.Definition, IsObsolete: w.IsObsolete, CV: cv, DBXref: xref}, nil
			},
		},
		TypeDB: jsonCodec[DB]{
			empty: func(*cache.Cache) any { return &DB{} },
			restore: func(_ *cache.Cache, w *DB) (any, error) {
				cp := *w
				return &cp, nil
			},
		},
		TypeDBXref: jsonCodec[dbxrefWire]{
			empty: func(*cache.Cache) any { return &DBXref{} },
			restore: func(c *cache.Cache, w *dbxrefWire) (any, error) {
				db, err := resolve(c, w.DB)
				if err != nil {
					return nil, err
				}
				return &DBXref{Accession: w.Accession, Version: w.Version, DB: db}, nil
			},
		},
	}
	for typ, codec := range codecs {
		if err := c.RegisterCodec(typ, codec); err != nil {
			return err
		}
	}
	return nil
}
