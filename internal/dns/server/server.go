// Package server implements the UDP/TCP front end: it decodes an incoming
// query, asks the resolver for an answer, assembles a reply respecting
// EDNS0 and the truncation budget, and sends it back. Grounded on the
// teacher's Server/NewServer/Run/handleUDPConnection/handleTCPConnection
// (server.go), trimmed to the in-scope transports (UDP+TCP; no DoT/DoH,
// which belong to the teacher's authoritative-server feature set, not a
// recursive caching proxy) and rebuilt around the resolver/cache packages
// instead of a repository-backed authoritative answer path.
package server

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/packet"
	"github.com/mkowalski/recurdns/internal/dns/resolver"
)

// Recorder receives query-handling telemetry; internal/metrics implements
// it over prometheus counters/histograms. Declared here rather than
// imported to keep this package's dependency graph acyclic (metrics
// depends on nothing from server).
type Recorder interface {
	ObserveQuery(qtype string, rcode string, duration time.Duration)
	IncWorkers(delta int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveQuery(string, string, time.Duration) {}
func (noopRecorder) IncWorkers(int)                             {}

type udpTask struct {
	conn net.PacketConn
	addr net.Addr
	data []byte
}

// Server is the DNS protocol front end.
type Server struct {
	Addr     string
	cfg      *config.Config
	resolver *resolver.Resolver
	log      *slog.Logger
	metrics  Recorder

	limiter  *rateLimiter
	queue    chan udpTask
	procSem  chan struct{}
	inflight int64
}

// New builds a Server bound to addr ("host:port"), answering queries via
// res. A nil metrics recorder is replaced with a no-op.
func New(addr string, cfg *config.Config, res *resolver.Resolver, metrics Recorder, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	procLimit := cfg.ProcLimit
	if procLimit <= 0 {
		procLimit = runtime.NumCPU() * 4
	}
	procQLimit := cfg.ProcQLimit
	if procQLimit <= 0 {
		procQLimit = procLimit
	}
	return &Server{
		Addr:     addr,
		cfg:      cfg,
		resolver: res,
		log:      log,
		metrics:  metrics,
		limiter:  newRateLimiter(2000, 4000),
		queue:    make(chan udpTask, procQLimit),
		procSem:  make(chan struct{}, procLimit),
	}
}

// Run starts the UDP and TCP listeners and blocks until ctx is canceled.
// SO_REUSEPORT lets multiple UDP listener goroutines share the port
// across CPUs the way the teacher's Run does, instead of funneling every
// datagram through one socket's read loop.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) { _ = setReusePort(fd) })
		},
	}

	listeners := runtime.NumCPU()
	if listeners < 1 {
		listeners = 1
	}
	for i := 0; i < listeners; i++ {
		conn, err := lc.ListenPacket(ctx, "udp", s.Addr)
		if err != nil {
			return err
		}
		go s.udpReadLoop(ctx, conn)
	}

	workers := cap(s.procSem)
	for i := 0; i < workers; i++ {
		go s.worker(ctx)
	}
	s.metrics.IncWorkers(workers)

	tcpListener, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}
	go s.tcpAcceptLoop(ctx, tcpListener)

	<-ctx.Done()
	return ctx.Err()
}

func (s *Server) udpReadLoop(ctx context.Context, conn net.PacketConn) {
	defer conn.Close()
	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return
		}
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.queue <- udpTask{conn: conn, addr: addr, data: data}:
		default:
			// procq_limit reached: drop rather than block the read loop
			// and let the client's own retransmission/timeout handle it.
			s.log.Warn("udp queue full, dropping query", "from", addr)
		}
	}
}

func (s *Server) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.queue:
			s.procSem <- struct{}{}
			resp, err := s.handleQuery(ctx, task.data, task.addr, s.cfg.UDPBufSize)
			<-s.procSem
			if err != nil {
				s.log.Debug("query handling failed", "from", task.addr, "error", err)
				continue
			}
			if _, err := task.conn.WriteTo(resp, task.addr); err != nil {
				s.log.Debug("udp write failed", "to", task.addr, "error", err)
			}
		}
	}
}

func (s *Server) tcpAcceptLoop(ctx context.Context, l net.Listener) {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go s.handleTCPConn(ctx, conn)
	}
}

func (s *Server) handleTCPConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if tc, ok := conn.(interface{ SetDeadline(time.Time) error }); ok {
		_ = tc.SetDeadline(time.Now().Add(s.cfg.TCPQTimeout))
	}
	for {
		var lenBuf [2]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint16(lenBuf[:])
		data := make([]byte, n)
		if _, err := io.ReadFull(conn, data); err != nil {
			return
		}

		resp, err := s.handleQuery(ctx, data, conn.RemoteAddr(), 0)
		if err != nil {
			s.log.Debug("tcp query handling failed", "from", conn.RemoteAddr(), "error", err)
			return
		}

		var respLen [2]byte
		binary.BigEndian.PutUint16(respLen[:], uint16(len(resp)))
		if _, err := conn.Write(respLen[:]); err != nil {
			return
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
		// TCP_SUBSEQ: keep the connection open for further queries
		// until the client closes it or the deadline fires.
	}
}

// handleQuery decodes, resolves and re-encodes a single query. udpBudget
// is 0 for TCP (no truncation budget) or the server's UDP buffer size; the
// reply is then truncated to the negotiated payload size: 512 bytes, or
// the client's EDNS payload size if larger, capped at udpBudget.
func (s *Server) handleQuery(ctx context.Context, data []byte, from net.Addr, udpBudget int) ([]byte, error) {
	start := time.Now()
	ip, _, _ := net.SplitHostPort(from.String())
	if ip != "" && !s.limiter.Allow(ip) {
		return nil, errRateLimited
	}

	req, err := packet.ParseMessage(data)
	if err != nil || len(req.Questions) == 0 {
		return buildFormErr(data), nil
	}
	// A resolver only ever asks one question per message (spec §4.7);
	// QDCOUNT>1 is a malformed or adversarial query, not one we attempt to
	// partially answer from req.Questions[0].
	if len(req.Questions) > 1 {
		return buildNotImp(req.Header.ID), nil
	}
	q := req.Questions[0]

	edns, hasEDNS := packet.FindOPT(req.Additional)
	budget := udpBudget
	if udpBudget > 0 {
		budget = 512
		if hasEDNS && int(edns.UDPSize) > budget {
			budget = int(edns.UDPSize)
		}
		if budget > udpBudget {
			budget = udpBudget
		}
	}
	if hasEDNS && udpBudget > 0 {
		if edns.Version != 0 {
			bd := packet.NewBuilder(req.Header.ID, q, req.Header.RecursionDesired)
			bd.SetRcode(packet.RcodeOK)
			bd.SetEDNS(packet.EDNS{UDPSize: edns.UDPSize, ExtendedRcode: uint8(packet.RcodeBADVERS >> 4)})
			out, _, err := bd.Pack(budget)
			return out, err
		}
	}

	atomic.AddInt64(&s.inflight, 1)
	defer atomic.AddInt64(&s.inflight, -1)

	result, resolveErr := s.resolver.Resolve(ctx, q.Name, q.Type)

	bd := packet.NewBuilder(req.Header.ID, q, req.Header.RecursionDesired)
	bd.SetRecursionAvailable(true)

	var rcode packet.Rcode
	if resolveErr != nil || result == nil {
		rcode = packet.RcodeServFail
		bd.SetRcode(rcode)
	} else {
		switch result.Status {
		case resolver.StatusNXDomain:
			rcode = packet.RcodeNXDomain
		case resolver.StatusServFail:
			rcode = packet.RcodeServFail
		default:
			rcode = packet.RcodeOK
		}
		bd.SetRcode(rcode)
		for _, rr := range randomize(result.Answer, s.cfg.RandomizeRecs) {
			bd.AddAnswer(rr)
		}
		for _, rr := range result.Authority {
			bd.AddAuthority(rr)
		}
		for _, rr := range result.Additional {
			bd.AddAdditional(rr)
		}
	}

	if hasEDNS && udpBudget > 0 {
		bd.SetEDNS(packet.EDNS{UDPSize: 4096})
	}

	out, _, err := bd.Pack(budget)
	s.metrics.ObserveQuery(q.Type.String(), rcodeName(rcode), time.Since(start))
	return out, err
}

func buildFormErr(data []byte) []byte {
	var id uint16
	if len(data) >= 2 {
		id = binary.BigEndian.Uint16(data[:2])
	}
	m := &packet.Message{}
	m.Header.ID = id
	m.Header.Response = true
	m.Header.Rcode = packet.RcodeFormErr
	out, _ := m.Pack()
	return out
}

func buildNotImp(id uint16) []byte {
	m := &packet.Message{}
	m.Header.ID = id
	m.Header.Response = true
	m.Header.Rcode = packet.RcodeNotImp
	out, _ := m.Pack()
	return out
}

func rcodeName(rc packet.Rcode) string {
	switch rc {
	case packet.RcodeOK:
		return "NOERROR"
	case packet.RcodeFormErr:
		return "FORMERR"
	case packet.RcodeServFail:
		return "SERVFAIL"
	case packet.RcodeNXDomain:
		return "NXDOMAIN"
	case packet.RcodeNotImp:
		return "NOTIMP"
	case packet.RcodeRefused:
		return "REFUSED"
	default:
		return "UNKNOWN"
	}
}

func randomize(rrs []packet.RR, enabled bool) []packet.RR {
	if !enabled || len(rrs) < 2 {
		return rrs
	}
	out := make([]packet.RR, len(rrs))
	copy(out, rrs)
	for i := len(out) - 1; i > 0; i-- {
		j := int(pseudoRand(uint64(i))) % (i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// pseudoRand is a tiny deterministic mixing function used only to rotate
// round-robin record order; it is not a security boundary, so it doesn't
// need crypto/rand.
func pseudoRand(seed uint64) uint64 {
	seed ^= seed << 13
	seed ^= seed >> 7
	seed ^= seed << 17
	return seed
}

var errRateLimited = rateLimitError{}

type rateLimitError struct{}

func (rateLimitError) Error() string { return "server: rate limit exceeded" }
