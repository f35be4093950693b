package memory

import (
	"bytes"
	"testing"

	"chadograph/internal/cache"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore()
	if err := s.Put(cache.EntityType("feature"), "F1", []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get(cache.EntityType("feature"), "F1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("get = %q, %v", got, ok)
	}
}

func TestStoreMissingPayload(t *testing.T) {
	s := NewStore()
	_, ok, err := s.Get(cache.EntityType("feature"), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("missing payload reported as present")
	}
}

func TestStoreOverwrites(t *testing.T) {
	s := NewStore()
	typ := cache.EntityType("data")
	if err := s.Put(typ, "1", []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(typ, "1", []byte("new")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get(typ, "1")
	if err != nil || !ok {
		t.Fatalf("get: %v, %v", err, ok)
	}
	if string(got) != "new" {
		t.Fatalf("payload = %q, want overwrite", got)
	}
}

func TestStoreCopiesPayloads(t *testing.T) {
	s := NewStore()
	typ := cache.EntityType("data")
	in := []byte("original")
	if err := s.Put(typ, "1", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	in[0] = 'X'
	got, _, err := s.Get(typ, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("stored payload mutated through caller slice: %q", got)
	}
	got[0] = 'Y'
	again, _, err := s.Get(typ, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(again) != "original" {
		t.Fatalf("stored payload mutated through returned slice: %q", again)
	}
}
