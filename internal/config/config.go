// Package config holds the scalar settings the core consumes. Parsing a
// config file or CLI flags into this struct is an external concern; this
// package only defines the surface and sensible defaults.
package config

import "time"

// NegPolicy controls whether negative results are cached.
type NegPolicy int

const (
	NegOff NegPolicy = iota
	NegOn
	NegDefault
	NegAuth
)

// QueryMethod selects the UDP/TCP strategy for upstream queries.
type QueryMethod int

const (
	UDPOnly QueryMethod = iota
	TCPOnly
	UDPThenTCP
	TCPThenUDP
)

// ServerSection describes one configured upstream (root or proxy) section.
type ServerSection struct {
	Label      string
	Addrs      []string
	Port       int
	IsRoot     bool
	ProxyOnly  bool
	Trusted    bool
	Timeout    time.Duration
	Interval   time.Duration
	Include    []string
	Exclude    []string
	RejectCIDR []string
	RejectMode string // "fail" or "negate"
	NoCache    bool
	NoPurge    bool
}

// Config is the scalar settings surface named in the external interfaces.
type Config struct {
	Port       int
	ServerIP   string
	OutgoingIP string

	MinTTL time.Duration
	MaxTTL time.Duration
	NegTTL time.Duration

	NegRRsPolicy    NegPolicy
	NegDomainPolicy NegPolicy

	ParQueries int
	ProcLimit  int
	ProcQLimit int

	Timeout     time.Duration
	TCPQTimeout time.Duration

	QueryMethod    QueryMethod
	QueryPortStart int
	QueryPortEnd   int
	UDPBufSize     int

	RandomizeRecs bool
	Paranoid      bool
	LnDownKluge   bool

	PermCacheKB int
	CacheDir    string
	HashBuckets int

	DelegationOnlyZones []string
	Servers             []ServerSection
}

// Default returns pdnsd-equivalent defaults.
func Default() *Config {
	return &Config{
		Port:            53,
		ServerIP:        "0.0.0.0",
		MinTTL:          0,
		MaxTTL:          604800 * time.Second,
		NegTTL:          900 * time.Second,
		NegRRsPolicy:    NegDefault,
		NegDomainPolicy: NegOn,
		ParQueries:      3,
		ProcLimit:       16,
		ProcQLimit:      8,
		Timeout:         10 * time.Second,
		TCPQTimeout:     30 * time.Second,
		QueryMethod:     UDPThenTCP,
		QueryPortStart:  0,
		QueryPortEnd:    0,
		UDPBufSize:      1024,
		RandomizeRecs:   false,
		Paranoid:        false,
		PermCacheKB:     2048,
		CacheDir:        "/var/cache/recurdns",
		HashBuckets:     1024,
	}
}
