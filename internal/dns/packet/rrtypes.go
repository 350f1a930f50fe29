package packet

import "strconv"

// Type is the DNS RR TYPE/QTYPE field.
type Type uint16

const (
	TypeNone       Type = 0
	TypeA          Type = 1
	TypeNS         Type = 2
	TypeMD         Type = 3
	TypeMF         Type = 4
	TypeCNAME      Type = 5
	TypeSOA        Type = 6
	TypeMB         Type = 7
	TypeMG         Type = 8
	TypeMR         Type = 9
	TypeNULL       Type = 10
	TypeWKS        Type = 11
	TypePTR        Type = 12
	TypeHINFO      Type = 13
	TypeMINFO      Type = 14
	TypeMX         Type = 15
	TypeTXT        Type = 16
	TypeRP         Type = 17
	TypeAFSDB      Type = 18
	TypeRT         Type = 21
	TypePX         Type = 26
	TypeAAAA       Type = 28
	TypeSRV        Type = 33
	TypeNAPTR      Type = 35
	TypeKX         Type = 36
	TypeDS         Type = 43
	TypeSSHFP      Type = 44
	TypeRRSIG      Type = 46
	TypeNSEC       Type = 47
	TypeDNSKEY     Type = 48
	TypeNSEC3      Type = 50
	TypeNSEC3PARAM Type = 51
	TypeSPF        Type = 99
	TypeOPT        Type = 41
	TypeAXFR       Type = 252
	TypeIXFR       Type = 251
	TypeANY        Type = 255
)

// Class is the DNS RR CLASS/QCLASS field. Only IN is meaningful to a
// recursive caching proxy; the field exists for wire fidelity.
type Class uint16

const (
	ClassIN  Class = 1
	ClassANY Class = 255
)

// typeDesc describes the parsing/serialization shape of one RR type, per
// the descriptor-table design in spec §9: a small data-driven table
// replacing a hand-maintained type switch at every call site that needs to
// know "is this type compressible" or "which cache tier does it belong in".
type typeDesc struct {
	name string

	// compressible reports whether RDATA of this type contains domain
	// names eligible for message compression (RFC 1035 §4.1.4 restricts
	// this to a fixed historical set; later RR types never compress).
	compressible bool

	// dense marks a "well known" type. The cache does not act on it: a
	// cent keeps every type in the same map, whether dense or not.
	dense bool

	// excludes lists types that a cache add of this type invalidates for
	// the same owner name, per the conflicting-rrset rules (spec §4.3):
	// e.g. adding a CNAME removes the A, NS, MX, TXT, AAAA, SRV, PTR and
	// SOA data for that name, and adding one of the types that list CNAME
	// removes the CNAME.
	excludes []Type
}

var typeDescs = map[Type]typeDesc{
	TypeA:      {name: "A", dense: true},
	TypeNS:     {name: "NS", compressible: true, dense: true, excludes: []Type{TypeCNAME}},
	TypeCNAME:  {name: "CNAME", compressible: true, dense: true, excludes: []Type{TypeA, TypeNS, TypeMX, TypeTXT, TypeAAAA, TypeSRV, TypePTR, TypeSOA}},
	TypeSOA:    {name: "SOA", compressible: true, dense: true},
	TypePTR:    {name: "PTR", compressible: true, dense: true, excludes: []Type{TypeCNAME}},
	TypeHINFO:  {name: "HINFO", dense: true},
	TypeMINFO:  {name: "MINFO", compressible: true},
	TypeMX:     {name: "MX", compressible: true, dense: true, excludes: []Type{TypeCNAME}},
	TypeTXT:    {name: "TXT", dense: true, excludes: []Type{TypeCNAME}},
	TypeRP:     {name: "RP", compressible: true},
	TypeAFSDB:  {name: "AFSDB", compressible: true},
	TypeRT:     {name: "RT", compressible: true},
	TypePX:     {name: "PX", compressible: true},
	TypeAAAA:   {name: "AAAA", dense: true, excludes: []Type{TypeCNAME}},
	TypeSRV:    {name: "SRV", compressible: true, dense: true, excludes: []Type{TypeCNAME}},
	TypeNAPTR:  {name: "NAPTR"},
	TypeKX:     {name: "KX", compressible: true},
	TypeDS:     {name: "DS"},
	TypeSSHFP:  {name: "SSHFP"},
	TypeRRSIG:  {name: "RRSIG"},
	TypeNSEC:   {name: "NSEC", compressible: true},
	TypeDNSKEY: {name: "DNSKEY"},
	TypeSPF:    {name: "SPF"},
	TypeOPT:    {name: "OPT"},
}

// String renders the mnemonic for known types and "TYPEn" otherwise,
// matching the presentation-format fallback RFC 3597 describes for
// unknown RR types.
func (t Type) String() string {
	if d, ok := typeDescs[t]; ok {
		return d.name
	}
	switch t {
	case TypeAXFR:
		return "AXFR"
	case TypeIXFR:
		return "IXFR"
	case TypeANY:
		return "ANY"
	}
	return "TYPE" + strconv.Itoa(int(t))
}

// Compressible reports whether t's RDATA may embed a compressed name.
func (t Type) Compressible() bool { return typeDescs[t].compressible }

// Dense reports whether t is marked as a "well known" type in the
// descriptor table. No cache code path consults it.
func (t Type) Dense() bool { return typeDescs[t].dense }

// Excludes returns the RR types that conflict with an RR-set of type t at
// the same owner name and must be purged when t is added.
func (t Type) Excludes() []Type { return typeDescs[t].excludes }

// Opcode is the DNS header OPCODE field. Only OpQuery is in scope; the
// others are retained for wire-level header correctness.
type Opcode uint8

const (
	OpQuery  Opcode = 0
	OpIQuery Opcode = 1
	OpStatus Opcode = 2
	OpNotify Opcode = 4
	OpUpdate Opcode = 5
)

// Rcode is the DNS header RCODE field.
type Rcode uint8

const (
	RcodeOK       Rcode = 0
	RcodeFormErr  Rcode = 1
	RcodeServFail Rcode = 2
	RcodeNXDomain Rcode = 3
	RcodeNotImp   Rcode = 4
	RcodeRefused  Rcode = 5
	RcodeBADVERS  Rcode = 16
)
