package packet

import (
	"fmt"
	"net"
)

// RData is the decoded record-data payload of an RR. Types the cache and
// resolver never need to inspect (RRSIG, NSEC, DS, DNSKEY, NSEC3, ...) are
// kept as RawRData: we still cache and replay them byte-for-byte, we just
// don't parse their internals (spec's Non-goal on DNSSEC validation means
// nothing needs to).
type RData interface {
	// encode appends the wire form (without the RDLENGTH prefix, which the
	// caller back-patches) to b.
	encode(b *Buffer) error
}

// RawRData carries an RR's RDATA verbatim for types this proxy does not
// need to parse beyond cache/replay.
type RawRData struct{ Bytes []byte }

func (r *RawRData) encode(b *Buffer) error { return b.WriteBytes(r.Bytes) }

// AData is an A record (RFC 1035 §3.4.1).
type AData struct{ Addr net.IP }

func (r *AData) encode(b *Buffer) error {
	ip4 := r.Addr.To4()
	if ip4 == nil {
		return fmt.Errorf("packet: A record with non-IPv4 address %s: %w", r.Addr, ErrFormat)
	}
	return b.WriteBytes(ip4)
}

// AAAAData is an AAAA record (RFC 3596).
type AAAAData struct{ Addr net.IP }

func (r *AAAAData) encode(b *Buffer) error {
	ip6 := r.Addr.To16()
	if ip6 == nil {
		return fmt.Errorf("packet: AAAA record with non-IPv6 address %s: %w", r.Addr, ErrFormat)
	}
	return b.WriteBytes(ip6)
}

// NameData covers the single-domain-name RDATA shapes: NS, CNAME, PTR, MB,
// MD, MF, MG, MR.
type NameData struct{ Target Name }

func (r *NameData) encode(b *Buffer) error { return b.WriteName(r.Target) }

// SOAData is a start-of-authority record (RFC 1035 §3.3.13).
type SOAData struct {
	MName, RName                           Name
	Serial, Refresh, Retry, Expire, Minimum uint32
}

func (r *SOAData) encode(b *Buffer) error {
	if err := b.WriteName(r.MName); err != nil {
		return err
	}
	if err := b.WriteName(r.RName); err != nil {
		return err
	}
	for _, v := range []uint32{r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum} {
		if err := b.WriteUint32(v); err != nil {
			return err
		}
	}
	return nil
}

// MXData is a mail-exchange record.
type MXData struct {
	Preference uint16
	Exchange   Name
}

func (r *MXData) encode(b *Buffer) error {
	if err := b.WriteUint16(r.Preference); err != nil {
		return err
	}
	return b.WriteName(r.Exchange)
}

// TXTData is one or more character-strings concatenated per RFC 1035 §3.3.14.
type TXTData struct{ Strings [][]byte }

func (r *TXTData) encode(b *Buffer) error {
	for _, s := range r.Strings {
		if len(s) > 255 {
			return ErrFormat
		}
		if err := b.WriteByte(byte(len(s))); err != nil {
			return err
		}
		if err := b.WriteBytes(s); err != nil {
			return err
		}
	}
	return nil
}

// SRVData is a service-location record (RFC 2782).
type SRVData struct {
	Priority, Weight, Port uint16
	Target                 Name
}

func (r *SRVData) encode(b *Buffer) error {
	for _, v := range []uint16{r.Priority, r.Weight, r.Port} {
		if err := b.WriteUint16(v); err != nil {
			return err
		}
	}
	return b.WriteName(r.Target)
}

// HINFOData is a host-information record.
type HINFOData struct{ CPU, OS []byte }

func (r *HINFOData) encode(b *Buffer) error {
	for _, s := range [][]byte{r.CPU, r.OS} {
		if len(s) > 255 {
			return ErrFormat
		}
		if err := b.WriteByte(byte(len(s))); err != nil {
			return err
		}
		if err := b.WriteBytes(s); err != nil {
			return err
		}
	}
	return nil
}

// decodeRData parses count bytes of RDATA at the buffer's current position
// according to typ, returning a typed RData where the format is understood
// and a RawRData otherwise. The buffer's cursor is left exactly count bytes
// later regardless of which branch is taken, matching RFC 1035's rule that
// RDLENGTH is authoritative even for names that compress inside RDATA.
func decodeRData(b *Buffer, typ Type, count int) (RData, error) {
	start := b.Pos()
	end := start + count
	if end > b.Len() {
		return nil, ErrTruncated
	}

	var (
		rd  RData
		err error
	)
	switch typ {
	case TypeA:
		var ip []byte
		ip, err = b.ReadBytes(4)
		if err == nil {
			rd = &AData{Addr: net.IP(ip)}
		}
	case TypeAAAA:
		var ip []byte
		ip, err = b.ReadBytes(16)
		if err == nil {
			rd = &AAAAData{Addr: net.IP(ip)}
		}
	case TypeNS, TypeCNAME, TypePTR, TypeMB, TypeMD, TypeMF, TypeMG, TypeMR:
		var n Name
		n, err = b.ReadName()
		if err == nil {
			rd = &NameData{Target: n}
		}
	case TypeSOA:
		soa := &SOAData{}
		if soa.MName, err = b.ReadName(); err == nil {
			if soa.RName, err = b.ReadName(); err == nil {
				if soa.Serial, err = b.ReadUint32(); err == nil {
					if soa.Refresh, err = b.ReadUint32(); err == nil {
						if soa.Retry, err = b.ReadUint32(); err == nil {
							if soa.Expire, err = b.ReadUint32(); err == nil {
								soa.Minimum, err = b.ReadUint32()
							}
						}
					}
				}
			}
		}
		if err == nil {
			rd = soa
		}
	case TypeMX:
		mx := &MXData{}
		if mx.Preference, err = b.ReadUint16(); err == nil {
			if mx.Exchange, err = b.ReadName(); err == nil {
				rd = mx
			}
		}
	case TypeTXT:
		txt := &TXTData{}
		for b.Pos() < end {
			var l byte
			if l, err = b.ReadByte(); err != nil {
				break
			}
			var s []byte
			if s, err = b.ReadBytes(int(l)); err != nil {
				break
			}
			txt.Strings = append(txt.Strings, s)
		}
		if err == nil {
			rd = txt
		}
	case TypeSRV:
		srv := &SRVData{}
		if srv.Priority, err = b.ReadUint16(); err == nil {
			if srv.Weight, err = b.ReadUint16(); err == nil {
				if srv.Port, err = b.ReadUint16(); err == nil {
					if srv.Target, err = b.ReadName(); err == nil {
						rd = srv
					}
				}
			}
		}
	case TypeHINFO:
		hi := &HINFOData{}
		var l byte
		if l, err = b.ReadByte(); err == nil {
			if hi.CPU, err = b.ReadBytes(int(l)); err == nil {
				if l, err = b.ReadByte(); err == nil {
					if hi.OS, err = b.ReadBytes(int(l)); err == nil {
						rd = hi
					}
				}
			}
		}
	case TypeOPT:
		opt := &EDNSData{}
		for b.Pos() < end {
			var code, optLen uint16
			if code, err = b.ReadUint16(); err != nil {
				break
			}
			if optLen, err = b.ReadUint16(); err != nil {
				break
			}
			var data []byte
			if data, err = b.ReadBytes(int(optLen)); err != nil {
				break
			}
			opt.Options = append(opt.Options, EDNSOption{Code: code, Data: data})
		}
		if err == nil {
			rd = opt
		}
	default:
		var raw []byte
		raw, err = b.ReadBytes(count)
		if err == nil {
			rd = &RawRData{Bytes: raw}
		}
	}
	if err != nil {
		return nil, err
	}

	// RDLENGTH is authoritative: a type-aware decode that consumed a
	// different number of bytes than advertised means the message lied
	// about its own shape, or our parse diverged from the sender's.
	if b.Pos() != end {
		return nil, fmt.Errorf("packet: rdata length mismatch for %s: %w", typ, ErrFormat)
	}
	return rd, nil
}
