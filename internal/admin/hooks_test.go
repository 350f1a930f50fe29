package admin

import (
	"net"
	"testing"
	"time"

	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
	"github.com/mkowalski/recurdns/internal/dns/resolver"
	"github.com/mkowalski/recurdns/internal/dns/upstream"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	c := cache.New(0, nil)
	tr := upstream.NewTransport(cfg)
	res, err := resolver.New(cfg, c, tr, resolver.DefaultRootHints, nil, nil)
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}
	return NewService(c, res, cfg, nil)
}

func TestService_AddAndRecordDelete(t *testing.T) {
	s := newTestService(t)

	if err := s.Add("pinned.example.com.", packet.TypeA, net.ParseIP("192.0.2.50"), 300*time.Second); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, _ := packet.NewName("pinned.example.com.")
	status, rs := s.cache.Lookup(n, packet.TypeA, time.Now())
	if status != cache.Cached || rs == nil {
		t.Fatalf("expected the added record to be cached, got status=%v", status)
	}

	if err := s.Record("pinned.example.com.", "delete"); err != nil {
		t.Fatalf("Record delete: %v", err)
	}
	status, _ = s.cache.Lookup(n, packet.TypeA, time.Now())
	if status != cache.NotCached {
		t.Fatalf("expected record to be gone after delete, got status=%v", status)
	}
}

func TestService_Neg(t *testing.T) {
	s := newTestService(t)
	if err := s.Neg("blocked.example.com.", packet.TypeNone, 60*time.Second); err != nil {
		t.Fatalf("Neg: %v", err)
	}
	n, _ := packet.NewName("blocked.example.com.")
	status, _ := s.cache.Lookup(n, packet.TypeA, time.Now())
	if status != cache.NXDomain {
		t.Fatalf("expected NXDomain status, got %v", status)
	}
}

func TestService_ServerUpDown(t *testing.T) {
	s := newTestService(t)
	if err := s.Server("8.8.8.8:53", "down"); err != nil {
		t.Fatalf("Server down: %v", err)
	}
	st := s.Status()
	found := false
	for _, srv := range st.Servers {
		if srv.Label == "8.8.8.8:53" {
			found = true
			if !srv.Down {
				t.Errorf("expected server to be marked down")
			}
		}
	}
	if !found {
		t.Fatalf("expected server to appear in status snapshot")
	}

	if err := s.Server("8.8.8.8:53", "up"); err != nil {
		t.Fatalf("Server up: %v", err)
	}
	for _, srv := range s.Status().Servers {
		if srv.Label == "8.8.8.8:53" && srv.Down {
			t.Errorf("expected server to be marked up after 'up' command")
		}
	}
}

func TestService_Empty(t *testing.T) {
	s := newTestService(t)
	if err := s.Add("x.example.com.", packet.TypeA, net.ParseIP("192.0.2.1"), 60*time.Second); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Empty(); err != nil {
		t.Fatalf("Empty: %v", err)
	}
	if len(s.cache.Snapshot()) != 0 {
		t.Fatalf("expected cache to be empty after empty-cache command")
	}
}
