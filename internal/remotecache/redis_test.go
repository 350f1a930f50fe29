package remotecache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
)

func mustName(t *testing.T, s string) packet.Name {
	t.Helper()
	n, err := packet.NewName(s)
	if err != nil {
		t.Fatalf("NewName(%q): %v", s, err)
	}
	return n
}

func TestCache_SetAndGet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	rc := New(mr.Addr(), "", 0)
	ctx := context.Background()

	name := mustName(t, "www.example.com.")
	rr := packet.RR{Name: name, Type: packet.TypeA, Class: packet.ClassIN, TTL: 300,
		Data: &packet.AData{Addr: net.ParseIP("198.51.100.5")}}
	rs := &cache.RRSet{Records: []packet.RR{rr}, TTL: 300 * time.Second, Fetched: time.Now(), Flags: 0}

	if err := rc.Set(ctx, name, packet.TypeA, rs, 300*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := rc.Get(ctx, name, packet.TypeA)
	if !ok {
		t.Fatalf("expected Get to find the mirrored entry")
	}
	if len(got.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got.Records))
	}
}

func TestCache_GetMissingKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	rc := New(mr.Addr(), "", 0)
	_, ok := rc.Get(context.Background(), mustName(t, "missing.example.com."), packet.TypeA)
	if ok {
		t.Fatalf("expected a miss for an unset key")
	}
}

func TestCache_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	rc := New(mr.Addr(), "", 0)
	if err := rc.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestCache_InvalidateAndListen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	rc := New(mr.Addr(), "", 0)
	local := cache.New(0, nil)
	name := mustName(t, "stale.example.com.")
	rr := packet.RR{Name: name, Type: packet.TypeA, Class: packet.ClassIN, TTL: 300,
		Data: &packet.AData{Addr: net.ParseIP("203.0.113.1")}}
	local.AddRRSet(name, packet.TypeA, []packet.RR{rr}, 300*time.Second, 0, 0, 0, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rc.Listen(ctx, local, nil)

	// Give the subscriber goroutine a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	if err := rc.Invalidate(ctx, name, packet.TypeA); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, _ := local.Lookup(name, packet.TypeA, time.Now())
		if status == cache.NotCached {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected invalidation to evict the local entry")
}
