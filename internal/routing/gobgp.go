// Package routing announces or withdraws this instance's anycast VIP via
// BGP, using GoBGP as an embedded speaker rather than shelling out to a
// system daemon. Grounded on the teacher's GoBGPAdapter
// (internal/adapters/routing/gobgp.go): the same Start/Announce/Withdraw/
// Stop shape, upgraded from gobgp/v3 to the v4 API this module depends
// on (the package paths gained the /v4 segment; the request/response
// shapes used here are unchanged between the two).
package routing

import (
	"context"
	"fmt"
	"log/slog"

	api "github.com/osrg/gobgp/v4/api"
	"github.com/osrg/gobgp/v4/pkg/server"
	"google.golang.org/protobuf/types/known/anypb"
)

// bgpBackend is the subset of *server.BgpServer this adapter drives,
// narrowed to an interface so tests can substitute a fake speaker instead
// of standing up a real BGP session.
type bgpBackend interface {
	Serve()
	StartBgp(ctx context.Context, r *api.StartBgpRequest) error
	AddPeer(ctx context.Context, r *api.AddPeerRequest) error
	AddPath(ctx context.Context, r *api.AddPathRequest) (*api.AddPathResponse, error)
	DeletePath(ctx context.Context, r *api.DeletePathRequest) error
	StopBgp(ctx context.Context, r *api.StopBgpRequest) error
}

// Adapter wraps an embedded GoBGP speaker.
type Adapter struct {
	bgpServer bgpBackend
	log       *slog.Logger
}

// NewAdapter constructs an Adapter. The BGP server is not started until
// Start is called.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{bgpServer: server.NewBgpServer(), log: log}
}

// Start brings up the BGP speaker and establishes a session with one
// peer (typically a ToR router or route reflector accepting anycast
// routes from this host).
func (a *Adapter) Start(ctx context.Context, localASN, peerASN uint32, routerID, peerIP string) error {
	go a.bgpServer.Serve()

	if err := a.bgpServer.StartBgp(ctx, &api.StartBgpRequest{
		Global: &api.Global{
			Asn:        localASN,
			RouterId:   routerID,
			ListenPort: 179,
		},
	}); err != nil {
		return fmt.Errorf("routing: start bgp: %w", err)
	}

	if err := a.bgpServer.AddPeer(ctx, &api.AddPeerRequest{
		Peer: &api.Peer{
			Conf: &api.PeerConf{
				NeighborAddress: peerIP,
				PeerAsn:         peerASN,
			},
		},
	}); err != nil {
		return fmt.Errorf("routing: add peer: %w", err)
	}

	a.log.Info("gobgp speaker started", "local_asn", localASN, "peer_asn", peerASN, "peer_ip", peerIP)
	return nil
}

// Announce advertises vip (a /32 host route) into BGP.
func (a *Adapter) Announce(ctx context.Context, vip string) error {
	nlri, err := anypb.New(&api.IPAddressPrefix{Prefix: vip, PrefixLen: 32})
	if err != nil {
		return fmt.Errorf("routing: encode nlri: %w", err)
	}
	attrs, err := anypb.New(&api.NextHopAttribute{NextHop: "0.0.0.0"})
	if err != nil {
		return fmt.Errorf("routing: encode nexthop: %w", err)
	}

	_, err = a.bgpServer.AddPath(ctx, &api.AddPathRequest{
		Path: &api.Path{
			Family: &api.Family{Afi: api.Family_AFI_IP, Safi: api.Family_SAFI_UNICAST},
			Nlri:   nlri,
			Pattrs: []*anypb.Any{attrs},
		},
	})
	if err != nil {
		return fmt.Errorf("routing: announce %s: %w", vip, err)
	}
	a.log.Info("announced anycast vip", "vip", vip)
	return nil
}

// Withdraw removes vip's advertisement.
func (a *Adapter) Withdraw(ctx context.Context, vip string) error {
	nlri, err := anypb.New(&api.IPAddressPrefix{Prefix: vip, PrefixLen: 32})
	if err != nil {
		return fmt.Errorf("routing: encode nlri: %w", err)
	}
	if err := a.bgpServer.DeletePath(ctx, &api.DeletePathRequest{
		Path: &api.Path{
			Family: &api.Family{Afi: api.Family_AFI_IP, Safi: api.Family_SAFI_UNICAST},
			Nlri:   nlri,
		},
	}); err != nil {
		return fmt.Errorf("routing: withdraw %s: %w", vip, err)
	}
	a.log.Warn("withdrew anycast vip", "vip", vip)
	return nil
}

// Stop shuts down the embedded BGP speaker.
func (a *Adapter) Stop() error {
	return a.bgpServer.StopBgp(context.Background(), &api.StopBgpRequest{})
}
