// Package resolver implements the recursive delegation walk: starting
// from the cache (or the root hints when nothing is cached), it follows
// NS referrals down to an authoritative answer, resolves CNAME chains,
// and feeds every answer it sees back into the cache. Grounded on the
// teacher's resolveRecursive/findNextNS (recursive.go), generalized with
// TCP fallback, parallel dispatch, CNAME following, reject-lists and
// bailiwick enforcement per spec §4.5/§4.6.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
	"github.com/mkowalski/recurdns/internal/dns/upstream"
	"github.com/mkowalski/recurdns/internal/metrics"
)

// maxCNAMEHops bounds CNAME chain following (spec §4.6), and separately
// the number of referrals a single delegation walk follows.
const maxCNAMEHops = 20

// ErrMaxHops is returned when a CNAME chain or referral walk exceeds its
// hop budget, most likely because of a referral loop.
var ErrMaxHops = errors.New("resolver: maximum hop count exceeded")

// Status summarizes how a Resolve call concluded.
type Status int

const (
	StatusOK Status = iota
	StatusNXDomain
	StatusServFail
	StatusCached
)

// Result is what Resolve hands back to the server's answer-assembly step.
type Result struct {
	Status     Status
	Answer     []packet.RR
	Authority  []packet.RR
	Additional []packet.RR
	Rcode      packet.Rcode
}

// Resolver drives the recursive walk on behalf of the server.
type Resolver struct {
	cache     *cache.Cache
	transport *upstream.Transport
	cfg       *config.Config
	roots     []RootHint
	reject    *rejectList
	health    *upstream.HealthTracker
	log       *slog.Logger
	remote    remoteCache

	// trustedAddrs holds the host:port of every configured server section
	// with Trusted set (spec §9): a response from one of these is exempt
	// from paranoid bailiwick enforcement, since the admin has vouched for
	// it answering on behalf of any owner name, not just the NS-domain
	// that delegated to it.
	trustedAddrs map[string]bool
}

// remoteCache is the subset of remotecache.Cache the resolver consults as
// an optional L2 tier on an in-process cache miss, narrowed to an
// interface so this package never imports the redis client directly.
type remoteCache interface {
	Get(ctx context.Context, name packet.Name, typ packet.Type) (*cache.RRSet, bool)
	Set(ctx context.Context, name packet.Name, typ packet.Type, rs *cache.RRSet, ttl time.Duration) error
}

// SetRemoteCache attaches an optional secondary cache tier (satisfied by
// *remotecache.Cache; accepted here as the narrow remoteCache interface so
// this package doesn't import the redis client). When set, a miss against
// the in-process cache is checked against it before falling through to a
// live recursive walk, and any fresh answer this resolver learns is
// mirrored into it.
func (r *Resolver) SetRemoteCache(rc remoteCache) { r.remote = rc }

// New builds a Resolver. roots defaults to DefaultRootHints if nil.
func New(cfg *config.Config, c *cache.Cache, tr *upstream.Transport, roots []RootHint, notifier upstream.HealthNotifier, log *slog.Logger) (*Resolver, error) {
	if log == nil {
		log = slog.Default()
	}
	if roots == nil {
		roots = DefaultRootHints
	}
	var rl *rejectList
	trustedAddrs := map[string]bool{}
	for _, sec := range cfg.Servers {
		if sec.Trusted {
			port := sec.Port
			if port == 0 {
				port = 53
			}
			for _, addr := range sec.Addrs {
				trustedAddrs[net.JoinHostPort(addr, fmt.Sprint(port))] = true
			}
		}
		if len(sec.RejectCIDR) == 0 {
			continue
		}
		built, err := newRejectList(sec.RejectCIDR, sec.RejectMode)
		if err != nil {
			return nil, fmt.Errorf("resolver: reject list for %s: %w", sec.Label, err)
		}
		rl = built
	}
	return &Resolver{
		cache:        c,
		transport:    tr,
		cfg:          cfg,
		roots:        roots,
		reject:       rl,
		health:       upstream.NewHealthTracker(notifier, 3),
		log:          log,
		trustedAddrs: trustedAddrs,
	}, nil
}

// Resolve answers (name, qtype), consulting the cache first and only
// falling through to a live recursive walk on a miss or a stale hit.
func (r *Resolver) Resolve(ctx context.Context, name packet.Name, qtype packet.Type) (*Result, error) {
	return r.resolveAt(ctx, name, qtype, 0)
}

// Cache exposes the resolver's backing cache to the admin package.
func (r *Resolver) Cache() *cache.Cache { return r.cache }

// Health exposes the resolver's health tracker to the admin package.
func (r *Resolver) Health() *upstream.HealthTracker { return r.health }

func (r *Resolver) resolveAt(ctx context.Context, name packet.Name, qtype packet.Type, hops int) (*Result, error) {
	if hops > maxCNAMEHops {
		return nil, ErrMaxHops
	}
	now := time.Now()

	status, rs := r.cache.Lookup(name, qtype, now)
	switch status {
	case cache.Cached:
		metrics.CacheHit("l1")
		return &Result{Status: StatusOK, Answer: rs.Records, Rcode: packet.RcodeOK}, nil
	case cache.NXDomain:
		metrics.CacheHit("l1")
		return &Result{Status: StatusNXDomain, Rcode: packet.RcodeNXDomain}, nil
	case cache.NegType:
		metrics.CacheHit("l1")
		return &Result{Status: StatusOK, Rcode: packet.RcodeOK}, nil
	default:
		metrics.CacheMiss("l1")
	}

	// Also check for a cached CNAME at this owner, which takes precedence
	// over doing a fresh walk for the requested type.
	if qtype != packet.TypeCNAME {
		if cnStatus, cnrs := r.cache.Lookup(name, packet.TypeCNAME, now); cnStatus == cache.Cached {
			return r.followCNAME(ctx, qtype, cnrs, hops)
		}
	}

	if r.remote != nil {
		if rs, ok := r.remote.Get(ctx, name, qtype); ok {
			remaining := rs.TTL - now.Sub(rs.Fetched)
			if remaining > 0 {
				r.cache.AddRRSet(name, qtype, rs.Records, remaining, r.cfg.MinTTL, r.cfg.MaxTTL, 0, now)
				metrics.CacheHit("l2")
				return &Result{Status: StatusOK, Answer: rs.Records, Rcode: packet.RcodeOK}, nil
			}
		}
		metrics.CacheMiss("l2")
	}

	return r.recurse(ctx, name, qtype, hops)
}

// recurse performs (or re-performs, on a stale cache hit) the delegation
// walk for name/qtype, starting from the root hints.
func (r *Resolver) recurse(ctx context.Context, name packet.Name, qtype packet.Type, hops int) (*Result, error) {
	if hops > maxCNAMEHops {
		return nil, ErrMaxHops
	}

	candidates := r.candidateAddrs(r.roots)
	visited := map[string]bool{}
	referrals := 0

	for {
		resp, server, err := r.queryCandidates(ctx, candidates, name, qtype)
		if err != nil {
			return &Result{Status: StatusServFail, Rcode: packet.RcodeServFail}, err
		}
		visited[server] = true

		switch resp.Header.Rcode {
		case packet.RcodeNXDomain:
			r.cache.AddNXDomain(name, r.cfg.NegTTL, 0, time.Now())
			return &Result{Status: StatusNXDomain, Rcode: packet.RcodeNXDomain}, nil

		case packet.RcodeServFail, packet.RcodeNotImp, packet.RcodeRefused:
			// Tentatively keep trying other candidates before giving up
			// (spec §4.6): these rcodes mean "this server can't help",
			// not "this name doesn't exist".
			if next := r.nextUntried(candidates, visited); len(next) > 0 {
				candidates = next
				continue
			}
			return &Result{Status: StatusServFail, Rcode: resp.Header.Rcode}, nil
		}

		if match, ok := findAnswer(resp, name, qtype); ok {
			if !r.cacheAnswer(name, qtype, match, resp.Answer) {
				// reject_policy=fail: the answer matched the reject list
				// and is discarded outright rather than cached as
				// NXDOMAIN (spec §4.6 item 5).
				return &Result{Status: StatusServFail, Rcode: packet.RcodeServFail}, nil
			}
			return &Result{Status: StatusOK, Answer: match, Authority: resp.Authority, Additional: resp.Additional, Rcode: packet.RcodeOK}, nil
		}

		if cn, ok := findCNAME(resp, name); ok {
			r.cache.AddRRSet(name, packet.TypeCNAME, []packet.RR{cn}, ttlOf(cn), r.cfg.MinTTL, r.cfg.MaxTTL, 0, time.Now())
			target := cn.Data.(*packet.NameData).Target
			if qtype == packet.TypeCNAME {
				return &Result{Status: StatusOK, Answer: []packet.RR{cn}, Rcode: packet.RcodeOK}, nil
			}
			res, err := r.resolveAt(ctx, target, qtype, hops+1)
			if err != nil {
				return res, err
			}
			full := append([]packet.RR{cn}, res.Answer...)
			return &Result{Status: res.Status, Answer: full, Rcode: res.Rcode}, nil
		}

		// No direct answer: follow the referral to the next, more
		// specific delegation. A trusted server's referral is exempt
		// from bailiwick enforcement (spec §9): only untrusted servers
		// are held to the NS-domain that led to them.
		paranoid := r.cfg.Paranoid && !r.trustedAddrs[server]
		next, glue := findDelegation(resp, name, paranoid)
		if len(next) == 0 {
			// Nothing more to chase: hand back whatever authority data
			// we have so the server can still populate a referral-only
			// reply if it must.
			return &Result{Status: StatusOK, Authority: resp.Authority, Additional: resp.Additional, Rcode: packet.RcodeOK}, nil
		}
		for _, ns := range next {
			r.cache.AddRRSet(ns.Name, packet.TypeNS, []packet.RR{ns}, ttlOf(ns), r.cfg.MinTTL, r.cfg.MaxTTL, 0, time.Now())
		}
		for _, a := range glue {
			r.cache.AddRRSet(a.Name, a.Type, []packet.RR{a}, ttlOf(a), r.cfg.MinTTL, r.cfg.MaxTTL, cache.FlagAdditional, time.Now())
		}
		candidates = glueAddrs(glue, next)
		if len(candidates) == 0 {
			return &Result{Status: StatusServFail, Rcode: packet.RcodeServFail}, fmt.Errorf("resolver: referral without usable glue for %s", name)
		}
		referrals++
		if referrals > maxCNAMEHops {
			return &Result{Status: StatusServFail, Rcode: packet.RcodeServFail}, ErrMaxHops
		}
		visited = map[string]bool{}
	}
}

func (r *Resolver) followCNAME(ctx context.Context, qtype packet.Type, cnrs *cache.RRSet, hops int) (*Result, error) {
	if hops > maxCNAMEHops {
		return nil, ErrMaxHops
	}
	target := cnrs.Records[0].Data.(*packet.NameData).Target
	res, err := r.resolveAt(ctx, target, qtype, hops+1)
	if err != nil {
		return res, err
	}
	full := append(append([]packet.RR{}, cnrs.Records...), res.Answer...)
	return &Result{Status: res.Status, Answer: full, Rcode: res.Rcode}, nil
}

// cacheAnswer installs match into the cache and mirrors it to the remote
// tier, unless it trips the reject list. reject_policy=negate (the
// rl.negate case) caches the name as NXDOMAIN instead of the real answer;
// reject_policy=fail discards the answer outright and reports the caller
// should fail the reply (spec §4.6 item 5) — cacheAnswer returns false in
// that case and caches nothing at all.
func (r *Resolver) cacheAnswer(name packet.Name, qtype packet.Type, match, all []packet.RR) bool {
	now := time.Now()
	ttl := ttlOf(match[0])

	if r.reject.matches(match) {
		if !r.reject.negate {
			return false
		}
		r.cache.AddNXDomain(name, r.cfg.NegTTL, 0, now)
		return true
	}

	r.cache.AddRRSet(name, qtype, match, ttl, r.cfg.MinTTL, r.cfg.MaxTTL, 0, now)
	if r.remote != nil {
		rs := &cache.RRSet{Records: match, TTL: ttl, Fetched: now}
		if err := r.remote.Set(context.Background(), name, qtype, rs, ttl); err != nil {
			r.log.Warn("resolver: failed to mirror answer into remote cache", "name", name, "error", err)
		}
	}
	return true
}

func (r *Resolver) candidateAddrs(hints []RootHint) []string {
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		// Live queries record health under host:port; the admin command
		// may also name the server itself.
		addr := net.JoinHostPort(h.Addr, "53")
		if r.health.IsDown(h.Name) || r.health.IsDown(addr) {
			continue
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		for _, h := range hints {
			out = append(out, net.JoinHostPort(h.Addr, "53"))
		}
	}
	return out
}

func (r *Resolver) nextUntried(candidates []string, visited map[string]bool) []string {
	var out []string
	for _, c := range candidates {
		if !visited[c] {
			out = append(out, c)
		}
	}
	return out
}

// queryCandidates dispatches to candidates in parallel (bounded by
// ParQueries) and records the health outcome of each attempt.
func (r *Resolver) queryCandidates(ctx context.Context, candidates []string, name packet.Name, qtype packet.Type) (*packet.Message, string, error) {
	q := &packet.Message{
		Questions: []packet.Question{{Name: name, Type: qtype, Class: packet.ClassIN}},
	}
	q.Header.RecursionDesired = false

	resp, results, err := r.transport.ParallelQuery(ctx, candidates, q, r.cfg.ParQueries)
	for _, res := range results {
		r.health.Observe(res.Server, res.Err)
	}
	if err != nil {
		return nil, "", err
	}
	for _, res := range results {
		if res.Err == nil {
			return resp, res.Server, nil
		}
	}
	return resp, "", nil
}

func ttlOf(rr packet.RR) time.Duration { return time.Duration(rr.TTL) * time.Second }

// findAnswer returns the RR-set in resp.Answer matching name/qtype exactly.
func findAnswer(resp *packet.Message, name packet.Name, qtype packet.Type) ([]packet.RR, bool) {
	var out []packet.RR
	for _, rr := range resp.Answer {
		if rr.Type == qtype && rr.Name.Equal(name) {
			out = append(out, rr)
		}
	}
	return out, len(out) > 0
}

// findCNAME returns a CNAME RR at name, if the answer section redirects
// there instead of answering directly.
func findCNAME(resp *packet.Message, name packet.Name) (packet.RR, bool) {
	for _, rr := range resp.Answer {
		if rr.Type == packet.TypeCNAME && rr.Name.Equal(name) {
			return rr, true
		}
	}
	return packet.RR{}, false
}

// findDelegation extracts NS RRs from the authority section and their
// address glue from the additional section. When paranoid is set, only
// glue that falls in the bailiwick of the delegating NS owner is
// accepted, rejecting off-topic records a compromised or buggy server
// might try to plant (spec §4.5's "paranoid" trust mode).
func findDelegation(resp *packet.Message, qname packet.Name, paranoid bool) (ns []packet.RR, glue []packet.RR) {
	for _, rr := range resp.Authority {
		if rr.Type != packet.TypeNS {
			continue
		}
		if paranoid && !rr.Name.IsAncestorOf(qname) && !rr.Name.Equal(qname) {
			continue
		}
		ns = append(ns, rr)
	}
	if len(ns) == 0 {
		return nil, nil
	}
	nsOwners := make(map[string][]packet.Name, len(ns))
	for _, rr := range ns {
		target := rr.Data.(*packet.NameData).Target
		nsOwners[string(target)] = append(nsOwners[string(target)], rr.Name)
	}
	for _, rr := range resp.Additional {
		if rr.Type != packet.TypeA && rr.Type != packet.TypeAAAA {
			continue
		}
		if paranoid {
			inBailiwick := false
			for _, owner := range nsOwners[string(rr.Name)] {
				if owner.IsAncestorOf(rr.Name) {
					inBailiwick = true
					break
				}
			}
			if !inBailiwick {
				continue
			}
		}
		glue = append(glue, rr)
	}
	return ns, glue
}

func glueAddrs(glue []packet.RR, ns []packet.RR) []string {
	var out []string
	for _, rr := range glue {
		var ip net.IP
		switch d := rr.Data.(type) {
		case *packet.AData:
			ip = d.Addr
		case *packet.AAAAData:
			ip = d.Addr
		default:
			continue
		}
		out = append(out, net.JoinHostPort(ip.String(), "53"))
	}
	return out
}
