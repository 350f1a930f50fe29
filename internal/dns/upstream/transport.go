// Package upstream sends queries to upstream (root or proxy) name servers
// and returns their decoded replies. The teacher's sendQuery (recursive.go)
// is UDP-only with a single 5s timeout and no fallback; this package
// generalizes it to the transport-selection policy, timeout split and
// truncation fallback spec §5 requires.
package upstream

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// Transport sends one query at a time to a single upstream server,
// choosing UDP/TCP per the configured QueryMethod and falling back from a
// truncated UDP reply to TCP within the same call. A fresh UDP socket
// (ephemeral local port chosen by the kernel) is opened per query, which
// is Go's idiomatic equivalent of pdnsd's explicit query-port
// randomization loop: the OS already picks an unpredictable ephemeral
// port, so there is no need to hand-roll the EADDRINUSE retry/linear-scan
// fallback the original C implementation needed when binding specific
// ports itself.
type Transport struct {
	Method     config.QueryMethod
	UDPTimeout time.Duration
	TCPTimeout time.Duration
	UDPBufSize int
}

// NewTransport builds a Transport from the scalar config fields that
// govern upstream query behavior.
func NewTransport(cfg *config.Config) *Transport {
	return &Transport{
		Method:     cfg.QueryMethod,
		UDPTimeout: cfg.Timeout,
		TCPTimeout: cfg.TCPQTimeout,
		UDPBufSize: cfg.UDPBufSize,
	}
}

func newTransactionID() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

// Query sends m (whose ID is overwritten with a fresh random transaction
// ID) to server and returns the decoded reply. On a truncated UDP answer,
// if the method allows it, Query automatically retries over TCP.
func (t *Transport) Query(ctx context.Context, server string, m *packet.Message) (*packet.Message, error) {
	m.Header.ID = newTransactionID()

	switch t.Method {
	case config.TCPOnly:
		return t.queryTCP(ctx, server, m)
	case config.TCPThenUDP:
		resp, err := t.queryTCP(ctx, server, m)
		if err == nil {
			return resp, nil
		}
		return t.queryUDP(ctx, server, m)
	case config.UDPOnly:
		return t.queryUDP(ctx, server, m)
	default: // UDPThenTCP
		resp, err := t.queryUDP(ctx, server, m)
		if err != nil {
			return nil, err
		}
		if resp.Header.Truncated {
			return t.queryTCP(ctx, server, m)
		}
		return resp, nil
	}
}

func (t *Transport) queryUDP(ctx context.Context, server string, m *packet.Message) (*packet.Message, error) {
	wire, err := m.Pack()
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: t.UDPTimeout}
	conn, err := d.DialContext(ctx, "udp", server)
	if err != nil {
		return nil, fmt.Errorf("upstream: dial %s: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(t.UDPTimeout))
	}

	if _, err := conn.Write(wire); err != nil {
		return nil, fmt.Errorf("upstream: write to %s: %w", server, err)
	}

	bufSize := t.UDPBufSize
	if bufSize < 512 {
		bufSize = 512
	}
	buf := make([]byte, bufSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("upstream: read from %s: %w", server, err)
	}

	resp, err := packet.ParseMessage(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("upstream: parse reply from %s: %w", server, err)
	}
	if resp.Header.ID != m.Header.ID {
		return nil, fmt.Errorf("upstream: transaction id mismatch from %s: got %d want %d", server, resp.Header.ID, m.Header.ID)
	}
	return resp, nil
}

func (t *Transport) queryTCP(ctx context.Context, server string, m *packet.Message) (*packet.Message, error) {
	wire, err := m.Pack()
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: t.TCPTimeout}
	conn, err := d.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, fmt.Errorf("upstream: dial %s: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(t.TCPTimeout))
	}

	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(wire)))
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("upstream: write length prefix to %s: %w", server, err)
	}
	if _, err := conn.Write(wire); err != nil {
		return nil, fmt.Errorf("upstream: write to %s: %w", server, err)
	}

	if _, err := readFull(conn, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("upstream: read length prefix from %s: %w", server, err)
	}
	respLen := binary.BigEndian.Uint16(lenPrefix[:])
	respBuf := make([]byte, respLen)
	if _, err := readFull(conn, respBuf); err != nil {
		return nil, fmt.Errorf("upstream: read reply from %s: %w", server, err)
	}

	resp, err := packet.ParseMessage(respBuf)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse reply from %s: %w", server, err)
	}
	if resp.Header.ID != m.Header.ID {
		return nil, fmt.Errorf("upstream: transaction id mismatch from %s: got %d want %d", server, resp.Header.ID, m.Header.ID)
	}
	return resp, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
