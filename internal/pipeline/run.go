// Package pipeline drives an export run: parsing the experiment description,
// validating and enriching the graph, and handing the finished root to the
// serializer. Every entity the pipeline creates is registered in the object
// cache; stages communicate exclusively through handles.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"chadograph/internal/cache"
	"chadograph/pkg/chado"
)

// Run carries the state of one export: the cache, the experiment root, and
// the auxiliary sets parsed from the description document.
type Run struct {
	Cache      *cache.Cache
	Experiment *cache.Handle

	// Protocols indexes protocol handles by protocol name.
	Protocols map[string]*cache.Handle
	// Applied lists applied-protocol handles in description order.
	Applied []*cache.Handle
	// Data indexes datum handles by their description key.
	Data map[string]*cache.Handle
	// TermSources indexes external DB handles by database name.
	TermSources map[string]*cache.Handle
	// AttributeRows holds raw [attributes] rows until the attribute-expansion
	// validator turns them into Attribute entities on their owning data.
	AttributeRows []AttributeRow

	terms     map[string]*cache.Handle
	cvs       map[string]*cache.Handle
	organisms map[string]*cache.Handle
	seq       map[cache.EntityType]int
}

// AttributeRow is one raw attribute line from the description, keyed by the
// datum it annotates.
type AttributeRow struct {
	DatumKey string
	Heading  string
	Name     string
	Value    string
	Line     int
}

// NewRun constructs an empty run bound to the given cache.
func NewRun(c *cache.Cache) *Run {
	return &Run{
		Cache:       c,
		Protocols:   make(map[string]*cache.Handle),
		Data:        make(map[string]*cache.Handle),
		TermSources: make(map[string]*cache.Handle),
		terms:       make(map[string]*cache.Handle),
		cvs:         make(map[string]*cache.Handle),
		organisms:   make(map[string]*cache.Handle),
		seq:         make(map[cache.EntityType]int),
	}
}

// NextID allocates the next monotonic identifier for a type. Externally
// supplied identifiers (feature ids from the description) bypass this.
func (r *Run) NextID(typ cache.EntityType) string {
	r.seq[typ]++
	return strconv.Itoa(r.seq[typ])
}

// Put allocates an identifier, stores the entity, and returns its handle.
func (r *Run) Put(entity chado.Entity) (*cache.Handle, error) {
	typ := entity.SchemaType()
	return r.Cache.Put(typ, r.NextID(typ), entity)
}

// Term returns the CVTerm handle for a "cv:term" qualified name, creating the
// CV and CVTerm entities on first use. Unqualified names fall into the
// "local" vocabulary.
func (r *Run) Term(qualified string) (*cache.Handle, error) {
	cvName, termName := "local", qualified
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		cvName, termName = qualified[:i], qualified[i+1:]
	}
	if termName == "" {
		return nil, fmt.Errorf("pipeline: empty term in %q", qualified)
	}
	key := cvName + ":" + termName
	if h, ok := r.terms[key]; ok {
		return h, nil
	}
	cv, ok := r.cvs[cvName]
	if !ok {
		var err error
		cv, err = r.Put(&chado.CV{Name: cvName})
		if err != nil {
			return nil, err
		}
		r.cvs[cvName] = cv
	}
	term, err := r.Put(&chado.CVTerm{Name: termName, CV: cv})
	if err != nil {
		return nil, err
	}
	r.terms[key] = term
	return term, nil
}

// Organism returns the handle for a genus/species pair, creating it on first
// use.
func (r *Run) Organism(genus, species string) (*cache.Handle, error) {
	key := genus + " " + species
	if h, ok := r.organisms[key]; ok {
		return h, nil
	}
	h, err := r.Put(&chado.Organism{Genus: genus, Species: species})
	if err != nil {
		return nil, err
	}
	r.organisms[key] = h
	return h, nil
}

// materialize dereferences a handle and asserts the expected entity type.
func materialize[E chado.Entity](c *cache.Cache, h *cache.Handle) (E, error) {
	var zero E
	raw, err := c.Materialize(h)
	if err != nil {
		return zero, err
	}
	entity, ok := raw.(E)
	if !ok {
		return zero, fmt.Errorf("pipeline: %s/%s has unexpected entity type %T", h.Type(), h.ID(), raw)
	}
	return entity, nil
}
