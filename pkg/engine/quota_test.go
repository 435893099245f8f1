package engine

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemStore_QuotaExceeded(t *testing.T) {
	ms := NewMemStore(nil, nil, WithQuota(32))

	if err := ms.Set("p1", "pond", "k1", "0123456789"); err != nil {
		t.Fatalf("Set within quota failed: %v", err)
	}

	err := ms.Set("p1", "pond", "k2", strings.Repeat("x", 64))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}

	// The rejected write must not disturb existing data.
	val, err := ms.Get("p1", "pond", "k1")
	if err != nil || val != "0123456789" {
		t.Errorf("Expected prior value intact, got %v, %v", val, err)
	}
	if _, err := ms.Get("p1", "pond", "k2"); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound for rejected key, got %v", err)
	}
	if got := ms.Usage("p1", "pond"); got != len("k1")+10 {
		t.Errorf("Expected usage %d, got %d", len("k1")+10, got)
	}
}

func TestMemStore_QuotaIsPerNamespace(t *testing.T) {
	ms := NewMemStore(nil, nil, WithQuota(16))

	if err := ms.Set("p1", "pond", "k", "0123456789"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := ms.Set("p2", "pond", "k", "0123456789"); err != nil {
		t.Errorf("Other persona should have its own quota: %v", err)
	}
	if err := ms.Set("p1", "maze", "k", "0123456789"); err != nil {
		t.Errorf("Other app should have its own quota: %v", err)
	}
}

func TestMemStore_QuotaOverwriteAndDelete(t *testing.T) {
	ms := NewMemStore(nil, nil, WithQuota(20))

	if err := ms.Set("p1", "pond", "k", "0123456789"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// Overwriting replaces the old size rather than adding to it.
	if err := ms.Set("p1", "pond", "k", "abcdefghij"); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	if err := ms.Delete("p1", "pond", "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := ms.Usage("p1", "pond"); got != 0 {
		t.Errorf("Expected usage 0 after delete, got %d", got)
	}
	if err := ms.Set("p1", "pond", "k2", "0123456789abcdef"); err != nil {
		t.Errorf("Space should be reclaimed after delete: %v", err)
	}
}

func TestMemStore_QuotaCountsLoadedData(t *testing.T) {
	initial := map[string]map[string]map[string]any{
		"p1": {"pond": {"k": "0123456789"}},
	}
	ms := NewMemStore(initial, nil, WithQuota(14))

	if err := ms.Set("p1", "pond", "k2", "xyz"); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Expected loaded data to count against quota, got %v", err)
	}
}

func TestSQLitePersistence_RoundTrip(t *testing.T) {
	p, err := NewSQLitePersistence(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewSQLitePersistence failed: %v", err)
	}
	defer p.Close()

	data := map[string]map[string]any{
		"pond": {"currentIndex": "3", "timestamp1": "t::Reset"},
	}
	if err := p.SavePersona("learner", data); err != nil {
		t.Fatalf("SavePersona failed: %v", err)
	}
	// A second save replaces the first.
	data["pond"]["currentIndex"] = "4"
	delete(data["pond"], "timestamp1")
	if err := p.SavePersona("learner", data); err != nil {
		t.Fatalf("SavePersona failed: %v", err)
	}

	all, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if all["learner"]["pond"]["currentIndex"] != "4" {
		t.Errorf("Expected currentIndex 4, got %v", all["learner"]["pond"]["currentIndex"])
	}
	if _, ok := all["learner"]["pond"]["timestamp1"]; ok {
		t.Error("Expected timestamp1 removed by second save")
	}
}

func TestMemStore_WithSQLitePersistence(t *testing.T) {
	p, err := NewSQLitePersistence(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewSQLitePersistence failed: %v", err)
	}
	defer p.Close()

	ms := NewMemStore(nil, p)
	ms.Set("p1", "a1", "k1", "v1")
	ms.Wait()

	all, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	val, err := NewMemStore(all, p).Get("p1", "a1", "k1")
	if err != nil || val != "v1" {
		t.Errorf("Expected v1, got %v, %v", val, err)
	}
}

func TestMigrate(t *testing.T) {
	src := NewMemStore(nil, nil)
	src.Set("p1", "pond", "k1", "v1")
	src.Set("p1", "pond", "k2", "v2")
	src.Set("p2", "maze", "k1", "v3")

	dst := NewMemStore(nil, nil)
	n, err := Migrate(src, dst)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 keys migrated, got %d", n)
	}
	if val, _ := dst.Get("p2", "maze", "k1"); val != "v3" {
		t.Errorf("Expected v3, got %v", val)
	}
}

func TestMigrate_StopsOnQuota(t *testing.T) {
	src := NewMemStore(nil, nil)
	src.Set("p1", "pond", "k1", strings.Repeat("x", 64))

	dst := NewMemStore(nil, nil, WithQuota(8))
	if _, err := Migrate(src, dst); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Expected wrapped ErrQuotaExceeded, got %v", err)
	}
}

func TestMemStore_CloseReleasesPersister(t *testing.T) {
	p, err := NewSQLitePersistence(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewSQLitePersistence failed: %v", err)
	}

	ms := NewMemStore(nil, p)
	ms.Set("p1", "a1", "k1", "v1")
	if err := ms.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := p.LoadAll(); err == nil {
		t.Error("Expected LoadAll to fail on a closed database")
	}

	if err := NewMemStore(nil, nil).Close(); err != nil {
		t.Errorf("Close without persister failed: %v", err)
	}
}
