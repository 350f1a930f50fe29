// Package remotecache is an optional L2 cache tier backed by Redis: a
// resolved RR-set is mirrored there so a cold-started or freshly-restarted
// instance behind the same anycast VIP can skip the recursive walk, and an
// Invalidate call is fanned out to every instance running Listen through a
// pub/sub channel. The admin commands do not call Invalidate; they only
// delete from the local cache. Grounded on the teacher's RedisCache
// (internal/dns/server/redis.go): same client wrapping, a "recurdns:" key
// prefix in place of its "dns:", the same invalidation-channel pattern,
// generalized from a single
// fixed TTL blob to the cache package's typed RRSet so a restart can
// reconstruct usable cache state instead of an opaque byte string.
package remotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// InvalidationChannel is the pub/sub channel name every instance
// subscribes to for cross-node cache invalidation.
const InvalidationChannel = "recurdns:invalidation"

const keyPrefix = "recurdns:"

// entry is the JSON-serializable shape mirrored to Redis; it carries just
// enough to reconstruct an RRSet (records as wire bytes, so the TXT/A/SOA
// decoding logic lives in one place: packet.ParseMessage).
type entry struct {
	Wire    []byte `json:"wire"`
	TTL     int64  `json:"ttl_ns"`
	Flags   uint16 `json:"flags"`
	Fetched int64  `json:"fetched_unix"`
}

// Cache wraps a go-redis client as the L2 tier.
type Cache struct {
	client *redis.Client
}

// New connects to a Redis instance at addr (password/db may be zero
// values for an unauthenticated default-db instance, as miniredis
// provides in tests).
func New(addr, password string, db int) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewFromClient wraps an already-constructed client, letting tests point
// at an alicebob/miniredis/v2 in-process server.
func NewFromClient(c *redis.Client) *Cache {
	return &Cache{client: c}
}

func key(name packet.Name, typ packet.Type) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, name.String(), typ)
}

// Get fetches a mirrored RR-set for (name, typ), if present.
func (c *Cache) Get(ctx context.Context, name packet.Name, typ packet.Type) (*cache.RRSet, bool) {
	raw, err := c.client.Get(ctx, key(name, typ)).Bytes()
	if err != nil {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	msg, err := packet.ParseMessage(e.Wire)
	if err != nil {
		return nil, false
	}
	return &cache.RRSet{
		Records: msg.Answer,
		TTL:     time.Duration(e.TTL),
		Fetched: time.Unix(0, e.Fetched),
		Flags:   cache.RRFlags(e.Flags),
	}, true
}

// Set mirrors rs to Redis with the given TTL as its expiry, so a stale
// entry self-evicts from the L2 tier even if no invalidation ever
// arrives for it.
func (c *Cache) Set(ctx context.Context, name packet.Name, typ packet.Type, rs *cache.RRSet, ttl time.Duration) error {
	m := &packet.Message{Answer: rs.Records}
	wire, err := m.Pack()
	if err != nil {
		return fmt.Errorf("remotecache: pack: %w", err)
	}
	e := entry{Wire: wire, TTL: int64(rs.TTL), Flags: uint16(rs.Flags), Fetched: rs.Fetched.UnixNano()}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("remotecache: marshal: %w", err)
	}
	return c.client.Set(ctx, key(name, typ), raw, ttl).Err()
}

// Ping verifies the Redis connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Invalidate publishes an invalidation event for (name, typ) to every
// subscribed instance.
func (c *Cache) Invalidate(ctx context.Context, name packet.Name, typ packet.Type) error {
	msg := fmt.Sprintf("%s:%d", name.String(), typ)
	return c.client.Publish(ctx, InvalidationChannel, msg).Err()
}

// Subscribe returns a channel of raw "<name>:<type>" invalidation
// messages; the caller parses and applies them against its local cache.
func (c *Cache) Subscribe(ctx context.Context) <-chan *redis.Message {
	return c.client.Subscribe(ctx, InvalidationChannel).Channel()
}

// Close releases the underlying client's connections.
func (c *Cache) Close() error {
	return c.client.Close()
}
