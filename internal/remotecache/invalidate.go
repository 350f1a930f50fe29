package remotecache

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// Listen subscribes to the invalidation channel and deletes the named
// cent from local whenever another instance publishes one, until ctx is
// canceled. Run it in its own goroutine.
func (c *Cache) Listen(ctx context.Context, local *cache.Cache, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	ch := c.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			applyInvalidation(local, msg, log)
		}
	}
}

func applyInvalidation(local *cache.Cache, msg *redis.Message, log *slog.Logger) {
	name, _, err := parseInvalidation(msg.Payload)
	if err != nil {
		log.Warn("remotecache: dropping malformed invalidation message", "payload", msg.Payload, "error", err)
		return
	}
	local.Delete(name)
}

func parseInvalidation(payload string) (packet.Name, packet.Type, error) {
	idx := strings.LastIndex(payload, ":")
	if idx < 0 {
		return packet.Name{}, 0, errBadPayload(payload)
	}
	name, err := packet.NewName(payload[:idx])
	if err != nil {
		return packet.Name{}, 0, err
	}
	typVal, err := strconv.Atoi(payload[idx+1:])
	if err != nil {
		return packet.Name{}, 0, err
	}
	return name, packet.Type(typVal), nil
}

type errBadPayload string

func (e errBadPayload) Error() string { return "remotecache: malformed invalidation payload: " + string(e) }
