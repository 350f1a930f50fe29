package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
	"github.com/mkowalski/recurdns/internal/dns/resolver"
	"github.com/mkowalski/recurdns/internal/dns/upstream"
)

func mustName(t *testing.T, s string) packet.Name {
	t.Helper()
	n, err := packet.NewName(s)
	if err != nil {
		t.Fatalf("NewName(%q): %v", s, err)
	}
	return n
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	c := cache.New(0, nil)
	tr := upstream.NewTransport(cfg)
	res, err := resolver.New(cfg, c, tr, resolver.DefaultRootHints, nil, nil)
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}

	name := mustName(t, "cached.example.com.")
	rr := packet.RR{Name: name, Type: packet.TypeA, Class: packet.ClassIN, TTL: 300,
		Data: &packet.AData{Addr: net.ParseIP("203.0.113.9")}}
	c.AddRRSet(name, packet.TypeA, []packet.RR{rr}, 300*time.Second, 0, 0, 0, time.Now())

	return New("127.0.0.1:0", cfg, res, nil, nil)
}

func buildQuery(t *testing.T, name string, qtype packet.Type) []byte {
	t.Helper()
	n := mustName(t, name)
	bd := packet.NewBuilder(0x1234, packet.Question{Name: n, Type: qtype, Class: packet.ClassIN}, true)
	out, _, err := bd.Pack(0)
	if err != nil {
		t.Fatalf("Pack query: %v", err)
	}
	return out
}

type stubAddr string

func (a stubAddr) Network() string { return "udp" }
func (a stubAddr) String() string  { return string(a) }

func TestHandleQuery_CachedAnswer(t *testing.T) {
	s := newTestServer(t)
	req := buildQuery(t, "cached.example.com.", packet.TypeA)

	out, err := s.handleQuery(context.Background(), req, stubAddr("192.0.2.1:5353"), 0)
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}

	resp, err := packet.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if resp.Header.Rcode != packet.RcodeOK {
		t.Fatalf("expected RcodeOK, got %v", resp.Header.Rcode)
	}
	if !resp.Header.Response || !resp.Header.RecursionAvailable {
		t.Fatalf("expected QR+RA set, got %+v", resp.Header)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected 1 answer record, got %d", len(resp.Answer))
	}
}

func TestHandleQuery_MalformedPacketReturnsFormErr(t *testing.T) {
	s := newTestServer(t)
	garbage := []byte{0x00}

	out, err := s.handleQuery(context.Background(), garbage, stubAddr("192.0.2.1:5353"), 0)
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}
	resp, err := packet.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if resp.Header.Rcode != packet.RcodeFormErr {
		t.Fatalf("expected RcodeFormErr, got %v", resp.Header.Rcode)
	}
}

func TestHandleQuery_RateLimitExceeded(t *testing.T) {
	s := newTestServer(t)
	s.limiter = newRateLimiter(0, 1)
	req := buildQuery(t, "cached.example.com.", packet.TypeA)
	addr := stubAddr("198.51.100.7:40000")

	if _, err := s.handleQuery(context.Background(), req, addr, 0); err != nil {
		t.Fatalf("first query: %v", err)
	}
	if _, err := s.handleQuery(context.Background(), req, addr, 0); err != errRateLimited {
		t.Fatalf("expected rate limit error on second query, got %v", err)
	}
}

func TestHandleQuery_EDNSBadVersion(t *testing.T) {
	s := newTestServer(t)
	n := mustName(t, "cached.example.com.")
	bd := packet.NewBuilder(0x4321, packet.Question{Name: n, Type: packet.TypeA, Class: packet.ClassIN}, true)
	bd.SetEDNS(packet.EDNS{UDPSize: 4096, Version: 1})
	req, _, err := bd.Pack(0)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	out, err := s.handleQuery(context.Background(), req, stubAddr("192.0.2.1:5353"), 512)
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}
	resp, err := packet.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	edns, ok := packet.FindOPT(resp.Additional)
	if !ok {
		t.Fatalf("expected an OPT record in the reply")
	}
	if packet.FullRcode(resp.Header.Rcode, edns) != uint16(packet.RcodeBADVERS) {
		t.Fatalf("expected full rcode BADVERS, got %d", packet.FullRcode(resp.Header.Rcode, edns))
	}
}

func TestHandleQuery_MultipleQuestionsRejectedNotImp(t *testing.T) {
	s := newTestServer(t)
	n := mustName(t, "cached.example.com.")
	m := &packet.Message{
		Questions: []packet.Question{
			{Name: n, Type: packet.TypeA, Class: packet.ClassIN},
			{Name: n, Type: packet.TypeAAAA, Class: packet.ClassIN},
		},
	}
	m.Header.ID = 0x5678
	m.Header.RecursionDesired = true
	req, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	out, err := s.handleQuery(context.Background(), req, stubAddr("192.0.2.1:5353"), 0)
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}
	resp, err := packet.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if resp.Header.Rcode != packet.RcodeNotImp {
		t.Fatalf("expected RcodeNotImp, got %v", resp.Header.Rcode)
	}
	if resp.Header.ID != 0x5678 {
		t.Fatalf("expected reply ID to echo the query, got %#x", resp.Header.ID)
	}
}

func TestRandomize_PreservesSetAndLength(t *testing.T) {
	n := mustName(t, "example.com.")
	rrs := []packet.RR{
		{Name: n, Type: packet.TypeA, Data: &packet.AData{Addr: net.ParseIP("1.1.1.1")}},
		{Name: n, Type: packet.TypeA, Data: &packet.AData{Addr: net.ParseIP("2.2.2.2")}},
		{Name: n, Type: packet.TypeA, Data: &packet.AData{Addr: net.ParseIP("3.3.3.3")}},
	}
	out := randomize(rrs, true)
	if len(out) != len(rrs) {
		t.Fatalf("expected %d records, got %d", len(rrs), len(out))
	}
}
