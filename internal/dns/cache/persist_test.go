package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mkowalski/recurdns/internal/dns/packet"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	c := New(0, nil)
	now := time.Now()
	name := mustName(t, "example.com.")
	neg := mustName(t, "gone.example.com.")
	local := mustName(t, "router.lan.")

	c.AddRRSet(name, packet.TypeA, []packet.RR{aRecord(t, name, "1.2.3.4", 300)}, 300*time.Second, 0, 0, 0, now)
	c.AddNXDomain(neg, 900*time.Second, 0, now)
	c.AddRRSet(local, packet.TypeA, []packet.RR{aRecord(t, local, "192.168.1.1", 300)}, 300*time.Second, 0, 0, FlagLocal, now)

	path := filepath.Join(t.TempDir(), "cache.bin")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New(0, nil)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	status, rs := loaded.Lookup(name, packet.TypeA, now.Add(time.Second))
	if status != Cached || len(rs.Records) != 1 {
		t.Fatalf("expected A RR-set restored, got status=%v rs=%v", status, rs)
	}

	status, _ = loaded.Lookup(neg, packet.TypeA, now.Add(time.Second))
	if status != NXDomain {
		t.Fatalf("expected NXDomain restored, got %v", status)
	}

	// LOCAL-only cents are never persisted.
	status, _ = loaded.Lookup(local, packet.TypeA, now.Add(time.Second))
	if status != NotCached {
		t.Fatalf("expected LOCAL-only cent to be excluded from persistence, got %v", status)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	c := New(0, nil)
	if err := c.Load(filepath.Join(t.TempDir(), "does-not-exist.bin")); err != nil {
		t.Fatalf("expected missing cache file to be a no-op, got %v", err)
	}
}
