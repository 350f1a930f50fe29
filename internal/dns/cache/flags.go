// Package cache implements the in-memory RR-set cache: cents (cached
// entries keyed by owner name), RR-sets within a cent, TTL/negative-caching
// policy, an LRU purge list and a persistence format. The data model and
// flag semantics are carried over from pdnsd's cache.c/cache.h (see
// original_source), generalized into Go idioms rather than transliterated.
package cache

import "time"

// RRFlags qualify a single RR-set within a cent.
type RRFlags uint16

const (
	// FlagNegative marks a per-type negative cache entry: this type is
	// known not to exist at this owner name.
	FlagNegative RRFlags = 1 << iota
	// FlagLocal marks data sourced from local zone configuration.
	FlagLocal
	// FlagAuth marks data received as an authoritative answer.
	FlagAuth
	// FlagNoCache marks data that should only be held for the cache
	// latency window (CacheLatency) and then purged regardless of TTL.
	FlagNoCache
	// FlagAdditional marks data that arrived as an additional/off-topic
	// record rather than as a direct answer.
	FlagAdditional
	// FlagNoPurge exempts an RR-set from LRU purging.
	FlagNoPurge
	// FlagRootServ marks data obtained directly from a root server.
	FlagRootServ
)

// noInherit is the set of flags that must not survive onto a fresh lookup
// of the same name: they describe how a record was obtained, not a
// property that should leak into a differently-sourced requery.
const noInherit = FlagLocal | FlagAuth | FlagAdditional | FlagRootServ

// Inheritable strips the flags a requery must not carry over.
func (f RRFlags) Inheritable() RRFlags { return f &^ noInherit }

// DomainFlags qualify an entire cent (all types at one owner name).
type DomainFlags uint16

const (
	// DomainNegative marks the owner name itself as known not to exist
	// (an NXDOMAIN cached at the domain level, not per-type).
	DomainNegative DomainFlags = 1 << iota
	DomainLocal
	DomainAuth
	DomainNoCache
	// DomainWild marks that wildcard records exist at a child of this
	// owner, so synthesis should be attempted for the requested name.
	DomainWild
)

// CacheLatency is the minimum duration any RR-set is trusted before being
// considered timed out, regardless of how short its TTL was (pdnsd
// cache.h's CACHE_LAT): a 0- or near-0-TTL answer would otherwise cause a
// fresh upstream query on every single incoming request.
const CacheLatency = 120 * time.Second

// effectiveTTL applies the cache latency floor.
func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl < CacheLatency {
		return CacheLatency
	}
	return ttl
}

// timedOut reports whether an RR-set fetched at ts with nominal ttl has
// aged past its effective TTL as of now.
func timedOut(ts time.Time, ttl time.Duration, now time.Time) bool {
	return ts.Add(effectiveTTL(ttl)).Before(now)
}
