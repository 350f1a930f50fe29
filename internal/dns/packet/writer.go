package packet

// Builder assembles an outgoing response message, applying the UDP
// truncation rule from spec §4.1/§4.7: when the packed message would
// exceed the negotiated size budget, additional-section records are
// dropped first, then authority records, and if the answer section alone
// still doesn't fit, TC is set and the answer section is emptied too.
// Question and answer RRs are never dropped silently; truncation always
// sets TC.
type Builder struct {
	msg Message
}

// NewBuilder starts a response builder, copying the query's ID and
// question so the reply echoes them verbatim.
func NewBuilder(queryID uint16, q Question, recursionDesired bool) *Builder {
	bd := &Builder{}
	bd.msg.Header.ID = queryID
	bd.msg.Header.Response = true
	bd.msg.Header.RecursionDesired = recursionDesired
	bd.msg.Questions = []Question{q}
	return bd
}

// SetRcode sets the base (non-extended) RCODE.
func (bd *Builder) SetRcode(rc Rcode) { bd.msg.Header.Rcode = rc }

// SetAuthoritative sets or clears the AA bit.
func (bd *Builder) SetAuthoritative(v bool) { bd.msg.Header.Authoritative = v }

// SetRecursionAvailable sets or clears the RA bit.
func (bd *Builder) SetRecursionAvailable(v bool) { bd.msg.Header.RecursionAvailable = v }

// AddAnswer appends an RR to the answer section.
func (bd *Builder) AddAnswer(rr RR) { bd.msg.Answer = append(bd.msg.Answer, rr) }

// AddAuthority appends an RR to the authority section.
func (bd *Builder) AddAuthority(rr RR) { bd.msg.Authority = append(bd.msg.Authority, rr) }

// AddAdditional appends an RR to the additional section.
func (bd *Builder) AddAdditional(rr RR) { bd.msg.Additional = append(bd.msg.Additional, rr) }

// SetEDNS attaches (or replaces) the OPT pseudo-RR carrying e.
func (bd *Builder) SetEDNS(e EDNS) {
	opt := NewOPTRecord(e)
	for i, rr := range bd.msg.Additional {
		if rr.Type == TypeOPT {
			bd.msg.Additional[i] = opt
			return
		}
	}
	bd.msg.Additional = append(bd.msg.Additional, opt)
}

// Pack serializes the response, applying the truncation rule against
// budget (the UDP payload size, or 0 for "no limit" as on a TCP
// connection). The returned bool reports whether TC was set.
func (bd *Builder) Pack(budget int) ([]byte, bool, error) {
	if budget <= 0 {
		out, err := bd.msg.Pack()
		return out, false, err
	}

	try := func(keepAuthority, keepAdditional bool) ([]byte, error) {
		m := bd.msg
		if !keepAdditional {
			m.Additional = nil
			if opt, ok := FindOPT(bd.msg.Additional); ok {
				m.Additional = []RR{NewOPTRecord(opt)}
			}
		}
		if !keepAuthority {
			m.Authority = nil
		}
		return m.Pack()
	}

	if out, err := try(true, true); err == nil && len(out) <= budget {
		return out, false, nil
	}
	if out, err := try(true, false); err == nil && len(out) <= budget {
		return out, false, nil
	}
	if out, err := try(false, false); err == nil && len(out) <= budget {
		return out, false, nil
	}

	m := bd.msg
	m.Answer = nil
	m.Authority = nil
	if opt, ok := FindOPT(bd.msg.Additional); ok {
		m.Additional = []RR{NewOPTRecord(opt)}
	} else {
		m.Additional = nil
	}
	m.Header.Truncated = true
	out, err := m.Pack()
	return out, true, err
}
