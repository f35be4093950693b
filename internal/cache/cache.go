// Package cache implements the process-wide object cache holding every entity
// of the experiment graph behind compressed-or-materialized handles.
//
// The cache itself is type-agnostic: it dispatches serialization through a
// codec table keyed by entity type, so new schema types register a codec and
// need no changes here.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
)

var (
	// ErrDestroyed reports a cache operation after Destroy.
	ErrDestroyed = errors.New("cache: used after destroy")
	// ErrCorrupt reports an unrecoverable consistency failure: a compressed
	// payload is missing or cannot be reconstructed.
	ErrCorrupt = errors.New("cache: inconsistent state")
	// ErrUnknownType reports an entity type with no registered codec.
	ErrUnknownType = errors.New("cache: no codec for entity type")
)

// Codec serializes one entity type to and from its compressed payload.
// Decode resolves neighbour Refs through the cache's GetOrCreate, never by
// materializing them, so reconstructing one entity stays O(1) in graph size.
type Codec interface {
	// Empty returns the default entity used when a handle is dereferenced
	// before any Put stored a real value.
	Empty(c *Cache) any
	// Encode captures every field needed to reconstruct an observationally
	// identical entity, with neighbours as Refs.
	Encode(entity any) ([]byte, error)
	// Decode reconstructs an entity from an Encode payload.
	Decode(c *Cache, payload []byte) (any, error)
}

// PayloadStore persists compressed payloads evicted from memory. Implementations
// live under internal/infra/payload.
type PayloadStore interface {
	Put(typ EntityType, id string, payload []byte) error
	Get(typ EntityType, id string) ([]byte, bool, error)
	Close() error
}

// MetricsRecorder receives one observation per cache operation. The zero
// recorder (nil) disables instrumentation.
type MetricsRecorder interface {
	Record(op string, duration time.Duration, outcome string)
}

type key struct {
	typ EntityType
	id  string
}

// Cache is the registry mapping (type, identifier) to exactly one Handle.
// All operations are safe for concurrent use; the single mutex covers the
// registry as well as handle state transitions.
type Cache struct {
	mu        sync.Mutex
	codecs    map[EntityType]Codec
	handles   map[key]*Handle
	store     PayloadStore
	rec       MetricsRecorder
	destroyed bool
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithMetrics attaches a metrics recorder to the cache.
func WithMetrics(rec MetricsRecorder) Option {
	return func(c *Cache) { c.rec = rec }
}

// New constructs a cache backed by the given payload store.
func New(store PayloadStore, opts ...Option) *Cache {
	c := &Cache{
		codecs:  make(map[EntityType]Codec),
		handles: make(map[key]*Handle),
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterCodec installs the codec for one entity type. Registering a type
// twice is a programming error.
func (c *Cache) RegisterCodec(typ EntityType, codec Codec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	if _, dup := c.codecs[typ]; dup {
		return fmt.Errorf("cache: codec for %q already registered", typ)
	}
	c.codecs[typ] = codec
	return nil
}

// GetOrCreate returns the unique handle for (typ, id), creating a compressed
// handle with an empty payload when none exists yet.
func (c *Cache) GetOrCreate(typ EntityType, id string) (*Handle, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	k := key{typ: typ, id: id}
	if h, ok := c.handles[k]; ok {
		c.record("get_or_create", start, "hit")
		return h, nil
	}
	h := &Handle{typ: typ, id: id, state: StateCompressed}
	c.handles[k] = h
	c.record("get_or_create", start, "miss")
	return h, nil
}

// Put stores a freshly constructed entity under its handle, creating the
// handle when absent and overwriting any prior state.
func (c *Cache) Put(typ EntityType, id string, entity any) (*Handle, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	k := key{typ: typ, id: id}
	h, ok := c.handles[k]
	if !ok {
		h = &Handle{typ: typ, id: id}
		c.handles[k] = h
	}
	h.entity = entity
	h.state = StateMaterialized
	c.record("put", start, "ok")
	return h, nil
}

// Materialize returns the live entity behind the handle, reconstructing it
// from the compressed payload when needed. Idempotent; the materialized path
// is O(1).
//
// Decoding runs outside the registry lock because codecs resolve neighbour
// refs through GetOrCreate on the same cache.
func (c *Cache) Materialize(h *Handle) (any, error) {
	start := time.Now()
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrDestroyed
	}
	if h.state == StateMaterialized {
		entity := h.entity
		c.mu.Unlock()
		c.record("materialize", start, "hit")
		return entity, nil
	}
	codec, ok := c.codecs[h.typ]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, h.typ)
	}
	hasPayload := h.hasPayload
	var payload []byte
	if hasPayload {
		var found bool
		var err error
		payload, found, err = c.store.Get(h.typ, h.id)
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: load %s/%s: %v", ErrCorrupt, h.typ, h.id, err)
		}
		if !found {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: payload for %s/%s missing", ErrCorrupt, h.typ, h.id)
		}
	}
	c.mu.Unlock()

	var entity any
	outcome := "miss"
	if !hasPayload {
		// Never stored: reconstruct the default entity rather than fail.
		entity = codec.Empty(c)
		outcome = "empty"
	} else {
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %s/%s: %v", ErrCorrupt, h.typ, h.id, err)
		}
		entity, err = codec.Decode(c, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s/%s: %v", ErrCorrupt, h.typ, h.id, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	if h.state == StateMaterialized {
		// Lost a race with a concurrent materialize; keep the winner.
		return h.entity, nil
	}
	h.entity = entity
	h.state = StateMaterialized
	c.record("materialize", start, outcome)
	return entity, nil
}

// Compress evicts the handle's entity to the payload store. Calling it on an
// already compressed handle is a no-op; calling it any number of times never
// changes observable results.
func (c *Cache) Compress(h *Handle) error {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	return c.compressLocked(h, start)
}

func (c *Cache) compressLocked(h *Handle, start time.Time) error {
	if h.state != StateMaterialized {
		c.record("compress", start, "noop")
		return nil
	}
	codec, ok := c.codecs[h.typ]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, h.typ)
	}
	raw, err := codec.Encode(h.entity)
	if err != nil {
		return fmt.Errorf("cache: encode %s/%s: %w", h.typ, h.id, err)
	}
	if err := c.store.Put(h.typ, h.id, snappy.Encode(nil, raw)); err != nil {
		return fmt.Errorf("cache: store %s/%s: %w", h.typ, h.id, err)
	}
	h.entity = nil
	h.hasPayload = true
	h.state = StateCompressed
	c.record("compress", start, "ok")
	return nil
}

// CompressAll evicts every materialized handle. Used between pipeline stages
// when eager compression is enabled; correctness never depends on it.
func (c *Cache) CompressAll() error {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	for _, h := range c.handles {
		if err := c.compressLocked(h, start); err != nil {
			return err
		}
	}
	return nil
}

// Stats is a point-in-time summary of registry contents.
type Stats struct {
	Handles      int
	Materialized int
	Compressed   int
	PerType      map[EntityType]int
}

// Stats snapshots registry counts for tests and metrics exporters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{PerType: make(map[EntityType]int)}
	for k, h := range c.handles {
		st.Handles++
		st.PerType[k.typ]++
		if h.state == StateMaterialized {
			st.Materialized++
		} else {
			st.Compressed++
		}
	}
	return st
}

// Destroy releases every handle and closes the payload store. It must be
// called exactly once; any cache operation afterwards, including a second
// Destroy, reports ErrDestroyed.
func (c *Cache) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.destroyed = true
	c.handles = nil
	c.codecs = nil
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			return fmt.Errorf("cache: close payload store: %w", err)
		}
	}
	return nil
}

func (c *Cache) record(op string, start time.Time, outcome string) {
	if c.rec == nil {
		return
	}
	c.rec.Record(op, time.Since(start), outcome)
}
