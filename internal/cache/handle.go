package cache

import "encoding/json"

// EntityType identifies the schema type of a cached entity. Type tags double as
// XML element names in the serialized document.
type EntityType string

// State describes whether a handle currently holds a live entity or only a
// compressed payload (possibly empty for never-materialized handles).
type State uint8

const (
	// StateCompressed means the entity is not in memory; dereferencing it goes
	// through the registered codec.
	StateCompressed State = iota
	// StateMaterialized means the handle holds the live entity.
	StateMaterialized
)

// Ref is the identifier pair a compressed payload stores in place of a
// materialized neighbour.
type Ref struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// Handle is the single process-wide proxy for one entity. The cache guarantees
// exactly one Handle per (type, identifier), so pointer equality between
// handles is identity equality between graph nodes.
type Handle struct {
	typ EntityType
	id  string

	state      State
	entity     any
	hasPayload bool
}

// Type returns the handle's schema type tag.
func (h *Handle) Type() EntityType { return h.typ }

// ID returns the entity identifier. It is unique within the handle's type.
func (h *Handle) ID() string { return h.id }

// State reports whether the underlying entity is materialized or compressed.
func (h *Handle) State() State { return h.state }

// Ref returns the identifier pair used to reference this handle from
// compressed payloads.
func (h *Handle) Ref() Ref { return Ref{Type: h.typ, ID: h.id} }

// MarshalJSON serializes a handle as its Ref, never the entity body. Entities
// embed handles, so encoding an entity captures neighbour identifiers only.
func (h *Handle) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Ref())
}
