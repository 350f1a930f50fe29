package packet

import "fmt"

// Header is the 12-octet DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID                  uint16
	Response            bool
	Opcode              Opcode
	Authoritative       bool
	Truncated           bool
	RecursionDesired    bool
	RecursionAvailable  bool
	AuthenticatedData   bool
	CheckingDisabled    bool
	Rcode               Rcode

	QDCount, ANCount, NSCount, ARCount uint16
}

func (h *Header) read(b *Buffer) error {
	var err error
	if h.ID, err = b.ReadUint16(); err != nil {
		return err
	}
	flags, err := b.ReadUint16()
	if err != nil {
		return err
	}
	h.Response = flags&(1<<15) != 0
	h.Opcode = Opcode((flags >> 11) & 0x0F)
	h.Authoritative = flags&(1<<10) != 0
	h.Truncated = flags&(1<<9) != 0
	h.RecursionDesired = flags&(1<<8) != 0
	h.RecursionAvailable = flags&(1<<7) != 0
	h.AuthenticatedData = flags&(1<<5) != 0
	h.CheckingDisabled = flags&(1<<4) != 0
	h.Rcode = Rcode(flags & 0x0F)

	if h.QDCount, err = b.ReadUint16(); err != nil {
		return err
	}
	if h.ANCount, err = b.ReadUint16(); err != nil {
		return err
	}
	if h.NSCount, err = b.ReadUint16(); err != nil {
		return err
	}
	if h.ARCount, err = b.ReadUint16(); err != nil {
		return err
	}
	return nil
}

func (h *Header) write(b *Buffer) error {
	if err := b.WriteUint16(h.ID); err != nil {
		return err
	}
	var flags uint16
	if h.Response {
		flags |= 1 << 15
	}
	flags |= uint16(h.Opcode) << 11
	if h.Authoritative {
		flags |= 1 << 10
	}
	if h.Truncated {
		flags |= 1 << 9
	}
	if h.RecursionDesired {
		flags |= 1 << 8
	}
	if h.RecursionAvailable {
		flags |= 1 << 7
	}
	if h.AuthenticatedData {
		flags |= 1 << 5
	}
	if h.CheckingDisabled {
		flags |= 1 << 4
	}
	flags |= uint16(h.Rcode) & 0x0F
	if err := b.WriteUint16(flags); err != nil {
		return err
	}
	if err := b.WriteUint16(h.QDCount); err != nil {
		return err
	}
	if err := b.WriteUint16(h.ANCount); err != nil {
		return err
	}
	if err := b.WriteUint16(h.NSCount); err != nil {
		return err
	}
	return b.WriteUint16(h.ARCount)
}

// Question is one entry of the question section.
type Question struct {
	Name  Name
	Type  Type
	Class Class
}

func (q *Question) read(b *Buffer) error {
	var err error
	if q.Name, err = b.ReadName(); err != nil {
		return err
	}
	t, err := b.ReadUint16()
	if err != nil {
		return err
	}
	q.Type = Type(t)
	c, err := b.ReadUint16()
	if err != nil {
		return err
	}
	q.Class = Class(c)
	return nil
}

func (q *Question) write(b *Buffer) error {
	if err := b.WriteName(q.Name); err != nil {
		return err
	}
	if err := b.WriteUint16(uint16(q.Type)); err != nil {
		return err
	}
	return b.WriteUint16(uint16(q.Class))
}

// RR is one resource record, in any of the answer/authority/additional
// sections.
type RR struct {
	Name  Name
	Type  Type
	Class Class
	TTL   uint32
	Data  RData
}

func (r *RR) read(b *Buffer) error {
	var err error
	if r.Name, err = b.ReadName(); err != nil {
		return err
	}
	t, err := b.ReadUint16()
	if err != nil {
		return err
	}
	r.Type = Type(t)
	c, err := b.ReadUint16()
	if err != nil {
		return err
	}
	r.Class = Class(c)
	if r.TTL, err = b.ReadUint32(); err != nil {
		return err
	}
	rdlen, err := b.ReadUint16()
	if err != nil {
		return err
	}
	r.Data, err = decodeRData(b, r.Type, int(rdlen))
	return err
}

func (r *RR) write(b *Buffer) error {
	if err := b.WriteName(r.Name); err != nil {
		return err
	}
	if err := b.WriteUint16(uint16(r.Type)); err != nil {
		return err
	}
	if err := b.WriteUint16(uint16(r.Class)); err != nil {
		return err
	}
	if err := b.WriteUint32(r.TTL); err != nil {
		return err
	}
	lenPos := b.Pos()
	if err := b.WriteUint16(0); err != nil {
		return err
	}
	rdStart := b.Pos()
	if err := r.Data.encode(b); err != nil {
		return err
	}
	rdEnd := b.Pos()
	b.Seek(lenPos)
	if err := b.WriteUint16(uint16(rdEnd - rdStart)); err != nil {
		return err
	}
	b.Seek(rdEnd)
	return nil
}

// Message is a full parsed DNS message: header, the single question (DNS
// queries never carry more than one in practice, but the slice mirrors the
// wire format's QDCOUNT), and the three RR sections.
type Message struct {
	Header     Header
	Questions  []Question
	Answer     []RR
	Authority  []RR
	Additional []RR
}

// ParseMessage decodes a complete wire message.
func ParseMessage(data []byte) (*Message, error) {
	b := NewReader(data)
	m := &Message{}
	if err := m.Header.read(b); err != nil {
		return nil, err
	}

	m.Questions = make([]Question, 0, m.Header.QDCount)
	for i := uint16(0); i < m.Header.QDCount; i++ {
		var q Question
		if err := q.read(b); err != nil {
			return nil, fmt.Errorf("packet: question %d: %w", i, err)
		}
		m.Questions = append(m.Questions, q)
	}

	readSection := func(n uint16) ([]RR, error) {
		rrs := make([]RR, 0, n)
		for i := uint16(0); i < n; i++ {
			var r RR
			if err := r.read(b); err != nil {
				return nil, err
			}
			rrs = append(rrs, r)
		}
		return rrs, nil
	}

	var err error
	if m.Answer, err = readSection(m.Header.ANCount); err != nil {
		return nil, fmt.Errorf("packet: answer section: %w", err)
	}
	if m.Authority, err = readSection(m.Header.NSCount); err != nil {
		return nil, fmt.Errorf("packet: authority section: %w", err)
	}
	if m.Additional, err = readSection(m.Header.ARCount); err != nil {
		return nil, fmt.Errorf("packet: additional section: %w", err)
	}
	return m, nil
}

// Pack serializes m to wire format, fixing up the section counts from the
// actual slice lengths.
func (m *Message) Pack() ([]byte, error) {
	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answer))
	m.Header.NSCount = uint16(len(m.Authority))
	m.Header.ARCount = uint16(len(m.Additional))

	b := NewWriter()
	if err := m.Header.write(b); err != nil {
		return nil, err
	}
	for i := range m.Questions {
		if err := m.Questions[i].write(b); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]RR{m.Answer, m.Authority, m.Additional} {
		for i := range section {
			if err := section[i].write(b); err != nil {
				return nil, err
			}
		}
	}
	return b.Bytes(), nil
}
