package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mkowalski/recurdns/internal/dns/upstream"
)

// HealthGatedNotifier implements upstream.HealthNotifier: it withdraws
// this instance's anycast VIP once every configured upstream has been
// marked down (this node can no longer resolve anything and should stop
// receiving anycast traffic) and re-announces as soon as any upstream
// recovers. No example repo wires GoBGP to upstream health directly;
// this policy is this package's own, built on the same Adapter the
// teacher's GoBGPAdapter already provides.
type HealthGatedNotifier struct {
	adapter *Adapter
	vip     string
	total   int

	mu   sync.Mutex
	down map[string]bool
}

// NewHealthGatedNotifier watches up to total distinct upstream labels;
// once all of them have reported down, vip is withdrawn.
func NewHealthGatedNotifier(adapter *Adapter, vip string, total int) *HealthGatedNotifier {
	return &HealthGatedNotifier{adapter: adapter, vip: vip, total: total, down: make(map[string]bool)}
}

// ServerDown marks label unreachable, withdrawing the VIP if this was
// the last remaining reachable upstream.
func (n *HealthGatedNotifier) ServerDown(label string) {
	n.mu.Lock()
	wasAllDown := n.total > 0 && len(n.down) >= n.total
	n.down[label] = true
	allDown := n.total > 0 && len(n.down) >= n.total
	n.mu.Unlock()

	if allDown && !wasAllDown {
		if err := n.adapter.Withdraw(context.Background(), n.vip); err != nil {
			n.adapter.log.Error("routing: failed to withdraw vip after total upstream outage", "vip", n.vip, "error", err)
		}
	}
}

// ServerUp marks label reachable again, re-announcing the VIP if this
// brought the node back from a total outage.
func (n *HealthGatedNotifier) ServerUp(label string) {
	n.mu.Lock()
	wasAllDown := n.total > 0 && len(n.down) >= n.total
	delete(n.down, label)
	n.mu.Unlock()

	if wasAllDown {
		if err := n.adapter.Announce(context.Background(), n.vip); err != nil {
			n.adapter.log.Error("routing: failed to re-announce vip after recovery", "vip", n.vip, "error", err)
		}
	}
}

var _ upstream.HealthNotifier = (*HealthGatedNotifier)(nil)

// Logger exposes the adapter's logger so callers constructing a
// HealthGatedNotifier without a full Adapter in tests can still satisfy
// logging needs consistently.
func (a *Adapter) Logger() *slog.Logger { return a.log }
