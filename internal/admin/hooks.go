// Package admin implements the operator control surface pdnsd-ctl exposes
// over a local control socket, ported here as an HTTP control API.
// Grounded on original_source's pdnsd-ctl.c command set (status, server
// up/down/retest, record delete/invalidate, source, add, neg, config,
// include, eval, empty-cache, dump) and on the teacher's repository-style
// Handler struct (internal/api/handlers) for how a Gin handler wraps a
// small domain-facing service rather than touching storage directly.
package admin

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
	"github.com/mkowalski/recurdns/internal/dns/resolver"
)

// ServerStatus reports one upstream's health as tracked by the resolver.
type ServerStatus struct {
	Label string `json:"label"`
	Down  bool   `json:"down"`
}

// Stats is the STATS command's response: counts anyone running pdnsd-ctl
// status would expect, plus the fields this Go rewrite can actually
// observe (no per-query-type histogram without the metrics package, which
// exposes that over /metrics instead).
type Stats struct {
	CachedNames int            `json:"cached_names"`
	Servers     []ServerStatus `json:"servers"`
	Uptime      time.Duration  `json:"uptime"`
}

// Hooks is the pdnsd-ctl-equivalent command set this package provides.
// Each method name matches the original command verb so the grounding
// stays legible. There are no source, include or eval methods.
type Hooks interface {
	Status() Stats
	Server(label string, action string) error
	Record(name string, action string) error
	Add(name string, typ packet.Type, addr net.IP, ttl time.Duration) error
	Neg(name string, typ packet.Type, ttl time.Duration) error
	Config() *config.Config
	Empty() error
	Dump(path string) error
}

// Service implements Hooks against a running resolver and cache.
type Service struct {
	cache     *cache.Cache
	resolver  *resolver.Resolver
	cfg       *config.Config
	log       *slog.Logger
	startedAt time.Time
}

// NewService builds the admin command surface over a live resolver/cache.
func NewService(c *cache.Cache, r *resolver.Resolver, cfg *config.Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cache: c, resolver: r, cfg: cfg, log: log, startedAt: time.Now()}
}

// Status implements the "status" command.
func (s *Service) Status() Stats {
	cents := s.cache.Snapshot()
	var servers []ServerStatus
	if s.resolver != nil {
		if h := s.resolver.Health(); h != nil {
			for label, down := range h.Snapshot() {
				servers = append(servers, ServerStatus{Label: label, Down: down})
			}
		}
	}
	return Stats{CachedNames: len(cents), Servers: servers, Uptime: time.Since(s.startedAt)}
}

// Server implements "server up|down|retest <label>". retest simply clears
// the down flag and lets the next live query re-establish it, since this
// rewrite has no standalone background prober (spec's "interval" polling
// is folded into ordinary query traffic, see resolver.go).
func (s *Service) Server(label string, action string) error {
	if s.resolver == nil {
		return fmt.Errorf("admin: no resolver attached")
	}
	h := s.resolver.Health()
	if h == nil {
		return fmt.Errorf("admin: resolver has no health tracker")
	}
	switch action {
	case "up", "retest":
		h.SetDown(label, false)
	case "down":
		h.SetDown(label, true)
	default:
		return fmt.Errorf("admin: unknown server action %q", action)
	}
	s.log.Info("admin server command", "label", label, "action", action)
	return nil
}

// Record implements "record delete|invalidate <name>". delete drops the
// cent outright; invalidate does the same, since this cache has no
// separate "mark stale without evicting" representation the way pdnsd's
// timestamp rewrite does — the next lookup simply re-fetches.
func (s *Service) Record(name string, action string) error {
	n, err := packet.NewName(name)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	switch action {
	case "delete", "invalidate":
		s.cache.Delete(n)
	default:
		return fmt.Errorf("admin: unknown record action %q", action)
	}
	s.log.Info("admin record command", "name", name, "action", action)
	return nil
}

// Add implements "add <name> <type> <addr> <ttl>", pdnsd-ctl's way of
// injecting a synthetic record the admin trusts without it ever being
// seen on the wire. Added records are flagged local+no-purge so Purge and
// persistence treat them as pinned configuration, not cache fill.
func (s *Service) Add(name string, typ packet.Type, addr net.IP, ttl time.Duration) error {
	n, err := packet.NewName(name)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	var rr packet.RR
	switch typ {
	case packet.TypeA, packet.TypeAAAA:
		rr = packet.RR{Name: n, Type: typ, Class: packet.ClassIN, TTL: uint32(ttl.Seconds()), Data: &packet.AData{Addr: addr}}
	default:
		return fmt.Errorf("admin: add only supports A/AAAA records, got %s", typ)
	}
	s.cache.AddRRSet(n, typ, []packet.RR{rr}, ttl, 0, 0, cache.FlagLocal|cache.FlagNoPurge, time.Now())
	s.log.Info("admin add command", "name", name, "type", typ, "addr", addr)
	return nil
}

// Neg implements "neg <name> [type] <ttl>": pin a negative cache entry so
// lookups against name (or name+type) answer NXDOMAIN/NODATA without
// going upstream.
func (s *Service) Neg(name string, typ packet.Type, ttl time.Duration) error {
	n, err := packet.NewName(name)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if typ == packet.TypeNone {
		s.cache.AddNXDomain(n, ttl, cache.FlagLocal|cache.FlagNoPurge, time.Now())
	} else {
		s.cache.AddNegative(n, typ, ttl, cache.FlagLocal|cache.FlagNoPurge, time.Now())
	}
	s.log.Info("admin neg command", "name", name, "type", typ)
	return nil
}

// Config implements "config", returning the running configuration. pdnsd
// also supports rewriting the config file through this command
// (CTL_CONFIG); this rewrite treats configuration as read-only at
// runtime and only exposes it for inspection.
func (s *Service) Config() *config.Config { return s.cfg }

// Empty implements "empty-cache".
func (s *Service) Empty() error {
	s.cache.Empty()
	s.log.Info("admin empty-cache command")
	return nil
}

// Dump implements "dump", writing the cache to path in the same on-disk
// format used for the automatic persistence at shutdown.
func (s *Service) Dump(path string) error {
	if err := s.cache.Save(path); err != nil {
		return fmt.Errorf("admin: dump: %w", err)
	}
	s.log.Info("admin dump command", "path", path)
	return nil
}
