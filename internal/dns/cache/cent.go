package cache

import (
	"time"

	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// RRSet is the cached data for one RR type at one owner name.
type RRSet struct {
	Records []packet.RR
	TTL     time.Duration
	Fetched time.Time
	Flags   RRFlags
}

func (s *RRSet) timedOut(now time.Time) bool {
	return timedOut(s.Fetched, s.TTL, now)
}

// NegRRSet is the "this type is known not to exist here" marker left by a
// NOERROR/no-data or otherwise-negative response for a single type, as
// distinct from a whole-name NXDOMAIN (which lives on the Cent itself).
type NegRRSet struct {
	TTL     time.Duration
	Fetched time.Time
	Flags   RRFlags
}

func (s *NegRRSet) timedOut(now time.Time) bool {
	return timedOut(s.Fetched, s.TTL, now)
}

// Cent ("cached entry") holds everything known about one owner name: zero
// or more positive RR-sets keyed by type, optional per-type negative
// markers, and an optional whole-name negative (NXDOMAIN) marker. The
// teacher's cache.go stores an opaque byte blob per key; a cent instead
// keeps typed RR-sets so the resolver can answer sub-queries (a cached A
// lookup must not require re-fetching to also answer an independent MX
// lookup at the same name) and so TTLs are tracked and expired per type.
type Cent struct {
	Name  packet.Name
	Flags DomainFlags

	rrsets map[packet.Type]*RRSet
	neg    map[packet.Type]*NegRRSet

	// NXDomain holds the whole-name negative marker; nil unless
	// DomainNegative is set.
	NXDomain *NegRRSet

	// lastTouched records the time of the most recent lookup hit; the LRU
	// order itself is kept by lruNode's position in the list.
	lastTouched time.Time
	// lruNode is this cent's position in the purge list, maintained by
	// the owning Cache.
	lruNode *lruNode
}

func newCent(name packet.Name) *Cent {
	return &Cent{
		Name:   name,
		rrsets: make(map[packet.Type]*RRSet),
		neg:    make(map[packet.Type]*NegRRSet),
	}
}

// RRSet returns the RR-set for typ, or nil if none is cached (positive or
// negative, timed-out or not — callers check timeliness themselves via
// Lookup).
func (c *Cent) RRSet(typ packet.Type) *RRSet { return c.rrsets[typ] }

// NegRRSet returns the per-type negative marker for typ, if any.
func (c *Cent) NegRRSet(typ packet.Type) *NegRRSet { return c.neg[typ] }

// Types returns the RR types with a cached (positive) RR-set.
func (c *Cent) Types() []packet.Type {
	types := make([]packet.Type, 0, len(c.rrsets))
	for t := range c.rrsets {
		types = append(types, t)
	}
	return types
}

// addPositive installs rs as the cached RR-set for typ, purging any
// conflicting RR-sets per the type-exclusion rules (spec §4.3: e.g.
// installing a CNAME removes any A/NS/MX/... RR-sets at the same owner,
// and vice versa) and clearing a stale per-type negative marker. A LOCAL
// RR-set is never replaced by a non-LOCAL one (spec §8's Law, §4.2's
// conflict-check precedence): the whole insertion is rejected rather than
// just the conflicting slot, since a partial insertion would leave the
// cent in a state the caller never asked for.
func (c *Cent) addPositive(typ packet.Type, rs *RRSet) {
	local := rs.Flags&FlagLocal != 0
	if existing, ok := c.rrsets[typ]; ok && existing.Flags&FlagLocal != 0 && !local {
		return
	}
	for _, excluded := range typ.Excludes() {
		if ex, ok := c.rrsets[excluded]; ok && ex.Flags&FlagLocal != 0 && !local {
			return
		}
	}
	// A non-CNAME add must also evict an existing CNAME, since the two
	// are mutually exclusive regardless of which excludes list drove it.
	if typ != packet.TypeCNAME {
		if cn, ok := c.rrsets[packet.TypeCNAME]; ok && cn.Flags&FlagLocal != 0 && !local {
			return
		}
	}

	for _, excluded := range typ.Excludes() {
		delete(c.rrsets, excluded)
	}
	if typ != packet.TypeCNAME {
		delete(c.rrsets, packet.TypeCNAME)
	}
	delete(c.neg, typ)
	c.rrsets[typ] = rs
}

// addNegative installs a per-type negative marker for typ, unless a LOCAL
// RR-set already occupies that type (same LOCAL-wins precedence as
// addPositive).
func (c *Cent) addNegative(typ packet.Type, ns *NegRRSet) {
	if existing, ok := c.rrsets[typ]; ok && existing.Flags&FlagLocal != 0 {
		return
	}
	delete(c.rrsets, typ)
	c.neg[typ] = ns
}

// hasLocalData reports whether any positive RR-set at this cent is LOCAL.
func (c *Cent) hasLocalData() bool {
	for _, rs := range c.rrsets {
		if rs.Flags&FlagLocal != 0 {
			return true
		}
	}
	return false
}

// setNXDomain marks the whole name as nonexistent. Per spec §4.2's
// insertion semantics ("if the existing cent contains any LOCAL RR-set,
// ignore"), a cent carrying LOCAL data is left untouched instead of being
// negated.
func (c *Cent) setNXDomain(ns *NegRRSet) {
	if c.hasLocalData() {
		return
	}
	c.Flags |= DomainNegative
	c.NXDomain = ns
	c.rrsets = make(map[packet.Type]*RRSet)
	c.neg = make(map[packet.Type]*NegRRSet)
}

// empty reports whether the cent carries no useful data at all and can be
// dropped outright.
func (c *Cent) empty() bool {
	return len(c.rrsets) == 0 && len(c.neg) == 0 && c.NXDomain == nil
}

// onlyLocal reports whether every RR-set at this cent is FlagLocal, which
// excludes it from disk persistence (spec §4.4: LOCAL data is config, not
// cache state, and is reloaded from configuration on restart).
func (c *Cent) onlyLocal() bool {
	if len(c.rrsets) == 0 {
		return false
	}
	for _, rs := range c.rrsets {
		if rs.Flags&FlagLocal == 0 {
			return false
		}
	}
	return true
}
