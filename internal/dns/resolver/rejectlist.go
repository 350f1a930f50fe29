package resolver

import (
	"net"

	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// rejectList is a compiled reject_addrs block (spec §4.5): a set of
// address prefixes that must never be accepted as the answer to an A/AAAA
// lookup (the classic use is bogus in-addr.arpa / "0.0.0.0" poisoning
// responses some ISP resolvers inject). reject_policy chooses whether a
// matching answer is treated as NXDOMAIN (negate) or causes the query to
// fail outright.
type rejectList struct {
	nets   []*net.IPNet
	negate bool
}

func newRejectList(cidrs []string, mode string) (*rejectList, error) {
	rl := &rejectList{negate: mode == "negate"}
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			ip := net.ParseIP(c)
			if ip == nil {
				return nil, err
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		rl.nets = append(rl.nets, ipnet)
	}
	return rl, nil
}

// matches reports whether any A/AAAA record in rrs falls inside the
// reject list.
func (rl *rejectList) matches(rrs []packet.RR) bool {
	if rl == nil {
		return false
	}
	for _, rr := range rrs {
		var ip net.IP
		switch d := rr.Data.(type) {
		case *packet.AData:
			ip = d.Addr
		case *packet.AAAAData:
			ip = d.Addr
		default:
			continue
		}
		for _, n := range rl.nets {
			if n.Contains(ip) {
				return true
			}
		}
	}
	return false
}
