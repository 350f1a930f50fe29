package upstream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// fakeUpstream answers every query on a UDP loopback socket with a fixed
// A record, echoing the question and transaction ID, so Transport.Query
// can be exercised without a real network.
func fakeUpstream(t *testing.T, answer func(q *packet.Message) *packet.Message) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			q, err := packet.ParseMessage(buf[:n])
			if err != nil {
				continue
			}
			resp := answer(q)
			wire, err := resp.Pack()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(wire, addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestTransport_QueryUDP(t *testing.T) {
	addr := fakeUpstream(t, func(q *packet.Message) *packet.Message {
		resp := &packet.Message{}
		resp.Header.ID = q.Header.ID
		resp.Header.Response = true
		resp.Questions = q.Questions
		resp.Answer = []packet.RR{{
			Name:  q.Questions[0].Name,
			Type:  packet.TypeA,
			Class: packet.ClassIN,
			TTL:   60,
			Data:  &packet.AData{Addr: net.ParseIP("203.0.113.1")},
		}}
		return resp
	})

	tr := &Transport{Method: config.UDPOnly, UDPTimeout: 2 * time.Second, UDPBufSize: 1024}
	name, _ := packet.NewName("example.com.")
	query := &packet.Message{Questions: []packet.Question{{Name: name, Type: packet.TypeA, Class: packet.ClassIN}}}

	resp, err := tr.Query(context.Background(), addr, query)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected 1 answer RR, got %d", len(resp.Answer))
	}
	a, ok := resp.Answer[0].Data.(*packet.AData)
	if !ok || !a.Addr.Equal(net.ParseIP("203.0.113.1")) {
		t.Fatalf("unexpected answer data: %+v", resp.Answer[0].Data)
	}
}

func TestParallelQuery_FirstSuccessWins(t *testing.T) {
	good := fakeUpstream(t, func(q *packet.Message) *packet.Message {
		resp := &packet.Message{}
		resp.Header.ID = q.Header.ID
		resp.Header.Response = true
		resp.Questions = q.Questions
		resp.Answer = []packet.RR{{
			Name: q.Questions[0].Name, Type: packet.TypeA, Class: packet.ClassIN, TTL: 60,
			Data: &packet.AData{Addr: net.ParseIP("198.51.100.9")},
		}}
		return resp
	})

	tr := &Transport{Method: config.UDPOnly, UDPTimeout: 2 * time.Second, UDPBufSize: 1024}
	name, _ := packet.NewName("example.com.")
	query := &packet.Message{Questions: []packet.Question{{Name: name, Type: packet.TypeA, Class: packet.ClassIN}}}

	// One candidate is a closed port (connection refused / no listener)
	// and one is the working fake upstream; the parallel call must still
	// succeed using the good candidate.
	unreachable := "127.0.0.1:1" // reserved, nothing listens here
	resp, results, err := tr.ParallelQuery(context.Background(), []string{unreachable, good}, query, 2)
	if err != nil {
		t.Fatalf("ParallelQuery: %v", err)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected 1 answer RR, got %d", len(resp.Answer))
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one recorded result")
	}
}
