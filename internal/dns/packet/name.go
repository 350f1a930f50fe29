package packet

import (
	"bytes"
	"errors"
	"strings"
)

// Name is a domain name stored the way the cache keys everything: a
// sequence of length-prefixed labels terminated by a zero byte, lowercased
// so that comparisons are case-insensitive per RFC 1035 §2.3.3. It never
// contains compression pointers — those only exist inside a wire message.
type Name []byte

// MaxWireLen is the maximum number of octets a decompressed name may occupy
// on the wire, terminator included (RFC 1035 §3.1).
const MaxWireLen = 255

// MaxLabelLen is the maximum number of octets in a single label.
const MaxLabelLen = 63

// Root is the zero-length name ".".
var Root = Name{0}

// NewName builds a Name from a dotted presentation string such as
// "www.example.com." or "www.example.com" (the trailing dot is implied).
// Labels longer than 63 octets or a total wire length over 255 octets are
// rejected with ErrFormat.
func NewName(s string) (Name, error) {
	s = strings.TrimSuffix(s, ".")
	var out bytes.Buffer
	if s != "" {
		for _, label := range strings.Split(s, ".") {
			if len(label) == 0 || len(label) > MaxLabelLen {
				return nil, ErrFormat
			}
			out.WriteByte(byte(len(label)))
			for i := 0; i < len(label); i++ {
				c := label[i]
				if c >= 'A' && c <= 'Z' {
					c += 32
				}
				out.WriteByte(c)
			}
		}
	}
	out.WriteByte(0)
	if out.Len() > MaxWireLen {
		return nil, ErrFormat
	}
	return Name(out.Bytes()), nil
}

// Labels returns the label contents (without length prefixes), root-excluded,
// in left-to-right (most specific first) order.
func (n Name) Labels() [][]byte {
	var labels [][]byte
	i := 0
	for i < len(n) && n[i] != 0 {
		l := int(n[i])
		if i+1+l > len(n) {
			break
		}
		labels = append(labels, n[i+1:i+1+l])
		i += 1 + l
	}
	return labels
}

// LabelCount returns the number of non-root labels, used for c_ns/c_soa
// hop-count bookkeeping (spec §3, §4.6).
func (n Name) LabelCount() int {
	return len(n.Labels())
}

// String renders the dotted presentation form, root as ".".
func (n Name) String() string {
	labels := n.Labels()
	if len(labels) == 0 {
		return "."
	}
	var sb strings.Builder
	for _, l := range labels {
		sb.Write(l)
		sb.WriteByte('.')
	}
	return sb.String()
}

// Equal reports whether two names are wire-identical (both already
// lowercased by construction).
func (n Name) Equal(o Name) bool {
	return bytes.Equal(n, o)
}

// IsAncestorOf reports whether n is a (non-strict) ancestor of child: every
// label of n appears, in order, as a suffix of child's labels.
func (n Name) IsAncestorOf(child Name) bool {
	nl, cl := n.Labels(), child.Labels()
	if len(nl) > len(cl) {
		return false
	}
	off := len(cl) - len(nl)
	for i, l := range nl {
		if !bytes.Equal(l, cl[off+i]) {
			return false
		}
	}
	return true
}

// Ancestor returns the ancestor name with exactly k labels (counted from
// the root), i.e. the name obtained by dropping LabelCount()-k leading
// labels. k must be between 0 and n.LabelCount() inclusive.
func (n Name) Ancestor(k int) (Name, error) {
	labels := n.Labels()
	if k < 0 || k > len(labels) {
		return nil, errors.New("packet: ancestor hop count out of range")
	}
	return nameFromLabels(labels[len(labels)-k:]), nil
}

func nameFromLabels(labels [][]byte) Name {
	var out bytes.Buffer
	for _, l := range labels {
		out.WriteByte(byte(len(l)))
		out.Write(l)
	}
	out.WriteByte(0)
	return Name(out.Bytes())
}

// Wildcard returns "*.<n>".
func (n Name) Wildcard() Name {
	labels := append([][]byte{[]byte("*")}, n.Labels()...)
	return nameFromLabels(labels)
}
