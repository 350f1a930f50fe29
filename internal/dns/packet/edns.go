package packet

// EDNS0 support (RFC 6891): the extended RCODE, payload size, version and
// options are all smuggled into an OPT pseudo-RR rather than proper header
// fields, so decoding/encoding them is kept separate from the plain RR path.

// EDNSOption is one TLV entry of an OPT RR's RDATA.
type EDNSOption struct {
	Code uint16
	Data []byte
}

// EDNSData is the decoded RDATA of an OPT pseudo-RR.
type EDNSData struct{ Options []EDNSOption }

func (r *EDNSData) encode(b *Buffer) error {
	for _, o := range r.Options {
		if err := b.WriteUint16(o.Code); err != nil {
			return err
		}
		if err := b.WriteUint16(uint16(len(o.Data))); err != nil {
			return err
		}
		if err := b.WriteBytes(o.Data); err != nil {
			return err
		}
	}
	return nil
}

// EDNS bundles the fields an OPT pseudo-RR spreads across the RR header
// (CLASS holds UDP payload size; TTL holds extended RCODE/version/flags)
// and its RDATA (options).
type EDNS struct {
	UDPSize      uint16
	ExtendedRcode uint8
	Version      uint8
	DO           bool // DNSSEC OK bit; carried but never acted on
	Options      []EDNSOption
}

// NewOPTRecord builds the pseudo-RR a query or response carries to signal
// EDNS0 support, per RFC 6891 §6.1.
func NewOPTRecord(e EDNS) RR {
	var ttl uint32
	ttl |= uint32(e.ExtendedRcode) << 24
	ttl |= uint32(e.Version) << 16
	if e.DO {
		ttl |= 1 << 15
	}
	return RR{
		Name:  Root,
		Type:  TypeOPT,
		Class: Class(e.UDPSize),
		TTL:   ttl,
		Data:  &EDNSData{Options: e.Options},
	}
}

// FindOPT locates the OPT record in the additional section, if any, and
// decodes it. ok is false if the message carries no EDNS0 pseudo-RR.
func FindOPT(additional []RR) (e EDNS, ok bool) {
	for _, rr := range additional {
		if rr.Type != TypeOPT {
			continue
		}
		e.UDPSize = uint16(rr.Class)
		e.ExtendedRcode = uint8(rr.TTL >> 24)
		e.Version = uint8(rr.TTL >> 16)
		e.DO = rr.TTL&(1<<15) != 0
		if ed, isEDNS := rr.Data.(*EDNSData); isEDNS {
			e.Options = ed.Options
		}
		return e, true
	}
	return EDNS{}, false
}

// FullRcode combines a header Rcode with an OPT record's extended bits into
// the true 12-bit RCODE value (RFC 6891 §6.1.3).
func FullRcode(base Rcode, edns EDNS) uint16 {
	return uint16(edns.ExtendedRcode)<<4 | uint16(base)
}
