package cache

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// LookupStatus is the five-valued result of a cache lookup (spec §4.2/§6):
// callers branch on it to decide whether an upstream query is needed at
// all, and whether a stale answer may be handed out as a stopgap while one
// is in flight.
type LookupStatus int

const (
	// NotCached means nothing usable is known about this name/type.
	NotCached LookupStatus = iota
	// Cached means a live (non-timed-out) answer was found.
	Cached
	// Stale means an answer was found but its TTL (adjusted for
	// CacheLatency) has elapsed; it may still be used as a fallback if an
	// upstream query fails.
	Stale
	// NXDomain means the whole name is negatively cached.
	NXDomain
	// NegType means this specific type is negatively cached at an
	// existing name (NOERROR/no-data).
	NegType
)

type shard struct {
	mu    sync.RWMutex
	cents map[string]*Cent
	lru   lruList
}

// shardCount mirrors the teacher's 256-way split (cache.go) to keep lock
// contention low under concurrent query load; tuned down since a
// recursive-resolver cache is keyed by far fewer distinct owner names per
// second than an authoritative server's full request stream.
const shardCount = 64

// Cache is the process-wide RR-set cache: a fixed number of independently
// locked shards, each a name-keyed map plus its own LRU purge list.
// Sharding by name hash, rather than a single global RWMutex, is the
// concurrency pattern the teacher's DNSCache already uses (cache.go); the
// difference here is what a shard stores (typed cents, not opaque byte
// blobs) and how entries expire (per-type TTL plus an LRU purge budget,
// not a single per-key expiresAt).
type Cache struct {
	shards   [shardCount]*shard
	maxBytes int64
	log      *slog.Logger
}

// New creates an empty Cache. maxBytes is the soft budget spec §4.3's
// purge pass tries to stay under (config PermCacheKB*1024); 0 means
// unbounded.
func New(maxBytes int64, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{maxBytes: maxBytes, log: log}
	for i := range c.shards {
		c.shards[i] = &shard{cents: make(map[string]*Cent)}
	}
	return c
}

func (c *Cache) shardFor(name packet.Name) *shard {
	h := fnv.New32a()
	h.Write(name)
	return c.shards[h.Sum32()%shardCount]
}

// centSize is a coarse byte-cost estimate used only for the soft purge
// budget, not for correctness.
func centSize(c *Cent) int64 {
	size := int64(len(c.Name)) + 32
	for _, rs := range c.rrsets {
		size += 16
		for range rs.Records {
			size += 64
		}
	}
	return size
}

// getOrCreate returns the cent for name, creating an empty one (and
// linking it into the shard's LRU list) if absent. Caller must hold
// sh.mu for writing.
func (sh *shard) getOrCreate(name packet.Name) *Cent {
	key := string(name)
	if c, ok := sh.cents[key]; ok {
		return c
	}
	c := newCent(name)
	c.lruNode = sh.lru.pushFront(c)
	sh.cents[key] = c
	return c
}

// Lookup looks up typ at name. now is threaded through explicitly so
// tests can control TTL expiry deterministically rather than racing a
// wall-clock.
func (c *Cache) Lookup(name packet.Name, typ packet.Type, now time.Time) (LookupStatus, *RRSet) {
	sh := c.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cent, ok := sh.cents[string(name)]
	if !ok {
		return NotCached, nil
	}
	sh.lru.touch(cent.lruNode)
	cent.lastTouched = now

	if cent.Flags&DomainNegative != 0 {
		if cent.NXDomain != nil && !cent.NXDomain.timedOut(now) {
			return NXDomain, nil
		}
		return Stale, nil
	}

	if rs, ok := cent.rrsets[typ]; ok {
		if !rs.timedOut(now) {
			return Cached, rs
		}
		return Stale, rs
	}
	if ns, ok := cent.neg[typ]; ok {
		if !ns.timedOut(now) {
			return NegType, nil
		}
	}
	return NotCached, nil
}

// AddRRSet installs a positive RR-set for typ at name, clamping ttl
// against [minTTL, maxTTL] (spec §4.3) before storing.
func (c *Cache) AddRRSet(name packet.Name, typ packet.Type, records []packet.RR, ttl, minTTL, maxTTL time.Duration, flags RRFlags, now time.Time) {
	ttl = clampTTL(ttl, minTTL, maxTTL)
	sh := c.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cent := sh.getOrCreate(name)
	cent.Flags &^= DomainNegative
	cent.NXDomain = nil
	cent.addPositive(typ, &RRSet{Records: records, TTL: ttl, Fetched: now, Flags: flags})
	sh.lru.touch(cent.lruNode)
}

// AddNegative installs a per-type negative marker (NOERROR/no-data).
func (c *Cache) AddNegative(name packet.Name, typ packet.Type, negTTL time.Duration, flags RRFlags, now time.Time) {
	sh := c.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cent := sh.getOrCreate(name)
	cent.addNegative(typ, &NegRRSet{TTL: negTTL, Fetched: now, Flags: flags})
	sh.lru.touch(cent.lruNode)
}

// AddNXDomain marks the whole name as nonexistent.
func (c *Cache) AddNXDomain(name packet.Name, negTTL time.Duration, flags RRFlags, now time.Time) {
	sh := c.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cent := sh.getOrCreate(name)
	cent.setNXDomain(&NegRRSet{TTL: negTTL, Fetched: now, Flags: flags})
	sh.lru.touch(cent.lruNode)
}

// SetFlags ORs extra domain-level flags onto an existing (or newly
// created) cent, used when seeding LOCAL zone data at startup.
func (c *Cache) SetFlags(name packet.Name, flags DomainFlags) {
	sh := c.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.getOrCreate(name).Flags |= flags
}

// Delete removes a cent entirely, used by the admin "record
// delete|invalidate" hook and by remotecache's invalidation listener.
func (c *Cache) Delete(name packet.Name) {
	sh := c.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cent, ok := sh.cents[string(name)]; ok {
		sh.lru.unlink(cent.lruNode)
		delete(sh.cents, string(name))
	}
}

// Empty drops every cached entry (admin EMPTY hook).
func (c *Cache) Empty() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.cents = make(map[string]*Cent)
		sh.lru = lruList{}
		sh.mu.Unlock()
	}
}

// Purge walks every shard's LRU list from its least-recently-used end,
// dropping NoPurge-exempt-free cents until the shard's estimated size is
// back under its share of the cache's byte budget, or the list is
// exhausted (spec §4.3's two-pass purge, simplified to one pass per
// shard since sharding already bounds how much work a single pass does).
func (c *Cache) Purge() {
	if c.maxBytes <= 0 {
		return
	}
	perShardBudget := c.maxBytes / int64(shardCount)

	for _, sh := range c.shards {
		sh.mu.Lock()
		var total int64
		for _, cent := range sh.cents {
			total += centSize(cent)
		}
		// Each cent is considered at most once per pass, so a shard whose
		// remaining cents are all NoPurge ends the pass over budget.
		for remaining := sh.lru.len; total > perShardBudget && remaining > 0; remaining-- {
			n := sh.lru.popBack()
			if n == nil {
				break
			}
			if hasNoPurge(n.cent) {
				// Re-link at the front so it isn't immediately
				// reconsidered, mirroring pdnsd's treatment of
				// NOPURGE entries during a purge pass.
				n.cent.lruNode = sh.lru.pushFront(n.cent)
				continue
			}
			total -= centSize(n.cent)
			delete(sh.cents, string(n.cent.Name))
		}
		sh.mu.Unlock()
	}
}

func hasNoPurge(c *Cent) bool {
	for _, rs := range c.rrsets {
		if rs.Flags&FlagNoPurge != 0 {
			return true
		}
	}
	if c.NXDomain != nil && c.NXDomain.Flags&FlagNoPurge != 0 {
		return true
	}
	for _, ns := range c.neg {
		if ns.Flags&FlagNoPurge != 0 {
			return true
		}
	}
	return false
}

func clampTTL(ttl, min, max time.Duration) time.Duration {
	if ttl < min {
		return min
	}
	if max > 0 && ttl > max {
		return max
	}
	return ttl
}

// Snapshot returns every cent currently cached, including those consisting
// solely of LOCAL RR-sets. Save (which also backs the admin DUMP hook)
// skips those LOCAL-only cents itself; the admin status count uses the
// full list.
func (c *Cache) Snapshot() []*Cent {
	var out []*Cent
	for _, sh := range c.shards {
		sh.mu.RLock()
		for _, cent := range sh.cents {
			out = append(out, cent)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Restore installs a cent loaded from disk, bypassing the getOrCreate
// path since the cent already has its rrsets/neg maps populated.
func (c *Cache) Restore(cent *Cent) {
	sh := c.shardFor(cent.Name)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cent.lruNode = sh.lru.pushFront(cent)
	sh.cents[string(cent.Name)] = cent
}
