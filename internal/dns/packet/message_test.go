package packet

import (
	"net"
	"testing"
)

func TestMessage_RoundTrip_A(t *testing.T) {
	qname, _ := NewName("www.example.com.")

	m := &Message{}
	m.Header.ID = 0x1234
	m.Header.RecursionDesired = true
	m.Questions = []Question{{Name: qname, Type: TypeA, Class: ClassIN}}

	m.Header.Response = true
	m.Header.RecursionAvailable = true
	m.Answer = []RR{{
		Name:  qname,
		Type:  TypeA,
		Class: ClassIN,
		TTL:   300,
		Data:  &AData{Addr: net.ParseIP("93.184.216.34")},
	}}

	wire, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	got, err := ParseMessage(wire)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if got.Header.ID != 0x1234 {
		t.Errorf("ID = %x, want 1234", got.Header.ID)
	}
	if len(got.Answer) != 1 {
		t.Fatalf("expected 1 answer RR, got %d", len(got.Answer))
	}
	a, ok := got.Answer[0].Data.(*AData)
	if !ok {
		t.Fatalf("answer RDATA is %T, want *AData", got.Answer[0].Data)
	}
	if !a.Addr.Equal(net.ParseIP("93.184.216.34")) {
		t.Errorf("A address = %s, want 93.184.216.34", a.Addr)
	}
}

func TestMessage_RoundTrip_CNAMEAndNS(t *testing.T) {
	qname, _ := NewName("alias.example.com.")
	target, _ := NewName("example.com.")
	ns1, _ := NewName("ns1.example.com.")

	m := &Message{}
	m.Questions = []Question{{Name: qname, Type: TypeCNAME, Class: ClassIN}}
	m.Answer = []RR{{Name: qname, Type: TypeCNAME, Class: ClassIN, TTL: 60, Data: &NameData{Target: target}}}
	m.Authority = []RR{{Name: target, Type: TypeNS, Class: ClassIN, TTL: 60, Data: &NameData{Target: ns1}}}

	wire, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := ParseMessage(wire)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	cn, ok := got.Answer[0].Data.(*NameData)
	if !ok || !cn.Target.Equal(target) {
		t.Errorf("CNAME target = %+v, want %q", got.Answer[0].Data, target)
	}
	nsrr, ok := got.Authority[0].Data.(*NameData)
	if !ok || !nsrr.Target.Equal(ns1) {
		t.Errorf("NS target = %+v, want %q", got.Authority[0].Data, ns1)
	}
}

func TestBuilder_TruncatesOversizedAdditionalFirst(t *testing.T) {
	qname, _ := NewName("example.com.")
	bd := NewBuilder(1, Question{Name: qname, Type: TypeA, Class: ClassIN}, true)
	bd.SetRcode(RcodeOK)

	bd.AddAnswer(RR{Name: qname, Type: TypeA, Class: ClassIN, TTL: 60, Data: &AData{Addr: net.ParseIP("1.2.3.4")}})

	big := make([]byte, 600)
	bd.AddAdditional(RR{Name: qname, Type: TypeTXT, Class: ClassIN, TTL: 60, Data: &TXTData{Strings: [][]byte{big[:255], big[255:510]}}})

	out, tc, err := bd.Pack(512)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if tc {
		t.Fatalf("did not expect TC when dropping additional suffices")
	}
	got, err := ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(got.Additional) != 0 {
		t.Errorf("expected additional section dropped, got %d records", len(got.Additional))
	}
	if len(got.Answer) != 1 {
		t.Errorf("expected answer section kept, got %d records", len(got.Answer))
	}
}

func TestEDNS_RoundTrip(t *testing.T) {
	root := Root
	m := &Message{}
	m.Questions = []Question{{Name: root, Type: TypeA, Class: ClassIN}}
	m.Additional = []RR{NewOPTRecord(EDNS{UDPSize: 4096, Version: 0})}

	wire, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := ParseMessage(wire)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	e, ok := FindOPT(got.Additional)
	if !ok {
		t.Fatalf("expected an OPT record")
	}
	if e.UDPSize != 4096 {
		t.Errorf("UDPSize = %d, want 4096", e.UDPSize)
	}
}
