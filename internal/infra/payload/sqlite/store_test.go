package sqlite

import (
	"bytes"
	"path/filepath"
	"testing"

	"chadograph/internal/cache"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payloads.db")
	s, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStoreRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	typ := cache.EntityType("feature")
	if err := s.Put(typ, "F1", []byte{0x00, 0x01, 0xff}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get(typ, "F1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || !bytes.Equal(got, []byte{0x00, 0x01, 0xff}) {
		t.Fatalf("get = %v, %v", got, ok)
	}
}

func TestStoreMissingPayload(t *testing.T) {
	s, _ := newStore(t)
	_, ok, err := s.Get(cache.EntityType("feature"), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("missing payload reported as present")
	}
}

func TestStoreUpserts(t *testing.T) {
	s, _ := newStore(t)
	typ := cache.EntityType("data")
	if err := s.Put(typ, "1", []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(typ, "1", []byte("new")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := s.Get(typ, "1")
	if err != nil || !ok {
		t.Fatalf("get: %v, %v", err, ok)
	}
	if string(got) != "new" {
		t.Fatalf("payload = %q, want upserted value", got)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	s, path := newStore(t)
	typ := cache.EntityType("protocol")
	if err := s.Put(typ, "1", []byte("persisted")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, ok, err := reopened.Get(typ, "1")
	if err != nil || !ok {
		t.Fatalf("get after reopen: %v, %v", err, ok)
	}
	if string(got) != "persisted" {
		t.Fatalf("payload = %q after reopen", got)
	}
}

func TestStoreCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "payloads.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store with nested path: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.Put(cache.EntityType("cv"), "1", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
}
