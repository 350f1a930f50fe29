package resolver

// RootHint is one entry of the built-in root server hint list, used to
// bootstrap resolution before anything is cached. Grounded on the
// teacher's hardcoded 13-server list (recursive.go); generalized to carry
// the server's name (for logging/bailiwick checks) alongside its address.
type RootHint struct {
	Name string
	Addr string
}

// DefaultRootHints is the standard root-servers.net hint list.
var DefaultRootHints = []RootHint{
	{"a.root-servers.net.", "198.41.0.4"},
	{"b.root-servers.net.", "170.247.170.2"},
	{"c.root-servers.net.", "192.33.4.12"},
	{"d.root-servers.net.", "199.7.91.13"},
	{"e.root-servers.net.", "192.203.230.10"},
	{"f.root-servers.net.", "192.5.5.241"},
	{"g.root-servers.net.", "192.112.36.4"},
	{"h.root-servers.net.", "198.97.190.53"},
	{"i.root-servers.net.", "192.36.148.17"},
	{"j.root-servers.net.", "192.58.128.30"},
	{"k.root-servers.net.", "193.0.14.129"},
	{"l.root-servers.net.", "199.7.83.42"},
	{"m.root-servers.net.", "202.12.27.33"},
}
