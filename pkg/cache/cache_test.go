package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hwlore/hwlore/pkg/device"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device_cache.json")
	return NewManager(path), path
}

func enriched(key string, t device.Type) *device.EnrichedInfo {
	return &device.EnrichedInfo{
		Key:   key,
		Type:  t,
		Specs: map[string]string{"cores": "24"},
	}
}

func TestSetAndGet(t *testing.T) {
	m, _ := testManager(t)
	m.Set("abc", device.TypeCpu, enriched("abc", device.TypeCpu), 7)

	got, ok := m.Get("abc", device.TypeCpu)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Specs["cores"] != "24" {
		t.Fatalf("unexpected cached info: %v", got.Specs)
	}

	// Same key under a different type is a distinct entry.
	if _, ok := m.Get("abc", device.TypeGpu); ok {
		t.Fatal("cache hit across device types")
	}
}

func TestGetHonorsExpiry(t *testing.T) {
	m, _ := testManager(t)
	m.Set("abc", device.TypeCpu, enriched("abc", device.TypeCpu), 7)

	// Backdate the entry past its TTL.
	m.mu.Lock()
	e := m.entries[entryKey("abc", device.TypeCpu)]
	e.ExpiresAt = time.Now().Add(-time.Second)
	m.entries[entryKey("abc", device.TypeCpu)] = e
	m.mu.Unlock()

	if _, ok := m.Get("abc", device.TypeCpu); ok {
		t.Fatal("expired entry was returned")
	}
	// Expired reads do not delete.
	if m.Len() != 1 {
		t.Fatalf("expired entry removed on read, len = %d", m.Len())
	}
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	m, _ := testManager(t)
	m.Set("old", device.TypeCpu, enriched("old", device.TypeCpu), 7)
	m.Set("fresh", device.TypeCpu, enriched("fresh", device.TypeCpu), 7)

	m.mu.Lock()
	e := m.entries[entryKey("old", device.TypeCpu)]
	e.ExpiresAt = time.Now().Add(-time.Second)
	m.entries[entryKey("old", device.TypeCpu)] = e
	e = m.entries[entryKey("fresh", device.TypeCpu)]
	e.ExpiresAt = time.Now().Add(time.Hour)
	m.entries[entryKey("fresh", device.TypeCpu)] = e
	m.mu.Unlock()

	if removed := m.CleanupExpired(); removed != 1 {
		t.Fatalf("removed %d entries, want 1", removed)
	}
	if _, ok := m.Get("fresh", device.TypeCpu); !ok {
		t.Fatal("fresh entry swept by cleanup")
	}
	if _, ok := m.Get("old", device.TypeCpu); ok {
		t.Fatal("expired entry survived cleanup")
	}
}

func TestSetOverwrites(t *testing.T) {
	m, _ := testManager(t)
	m.Set("abc", device.TypeCpu, enriched("abc", device.TypeCpu), 7)

	updated := enriched("abc", device.TypeCpu)
	updated.Specs = map[string]string{"cores": "32"}
	m.Set("abc", device.TypeCpu, updated, 7)

	got, _ := m.Get("abc", device.TypeCpu)
	if got.Specs["cores"] != "32" {
		t.Fatalf("entry not overwritten: %v", got.Specs)
	}
	if m.Len() != 1 {
		t.Fatalf("overwrite duplicated the entry, len = %d", m.Len())
	}
}

func TestRemoveAndClear(t *testing.T) {
	m, _ := testManager(t)
	m.Set("a", device.TypeCpu, enriched("a", device.TypeCpu), 7)
	m.Set("b", device.TypeGpu, enriched("b", device.TypeGpu), 7)

	m.Remove("a", device.TypeCpu)
	if _, ok := m.Get("a", device.TypeCpu); ok {
		t.Fatal("removed entry still present")
	}

	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("clear left %d entries", m.Len())
	}
}

func TestCacheRoundTripsThroughDisk(t *testing.T) {
	m, path := testManager(t)
	m.Set("abc", device.TypeCpu, enriched("abc", device.TypeCpu), 7)

	reopened := NewManager(path)
	got, ok := reopened.Get("abc", device.TypeCpu)
	if !ok {
		t.Fatal("entry lost across restart")
	}
	if got.Specs["cores"] != "24" {
		t.Fatalf("round-trip mangled the info: %v", got.Specs)
	}
}
