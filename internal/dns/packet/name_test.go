package packet

import "testing"

func TestNewName_RoundTrip(t *testing.T) {
	n, err := NewName("www.Example.COM.")
	if err != nil {
		t.Fatalf("NewName: %v", err)
	}
	if got, want := n.String(), "www.example.com."; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if n.LabelCount() != 3 {
		t.Errorf("LabelCount() = %d, want 3", n.LabelCount())
	}
}

func TestNewName_Root(t *testing.T) {
	n, err := NewName(".")
	if err != nil {
		t.Fatalf("NewName: %v", err)
	}
	if !n.Equal(Root) {
		t.Errorf("NewName(\".\") = %v, want Root", []byte(n))
	}
}

func TestNewName_LabelTooLong(t *testing.T) {
	long := make([]byte, MaxLabelLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := NewName(string(long) + ".example.com."); err != ErrFormat {
		t.Fatalf("expected ErrFormat for 64-octet label, got %v", err)
	}
}

func TestNewName_MaxLabelOK(t *testing.T) {
	ok := make([]byte, MaxLabelLen)
	for i := range ok {
		ok[i] = 'a'
	}
	if _, err := NewName(string(ok) + ".com."); err != nil {
		t.Fatalf("63-octet label should be valid, got %v", err)
	}
}

func TestNewName_TooLong(t *testing.T) {
	// Build a name whose wire form exceeds 255 octets: 4 labels of 63
	// octets each plus separators comfortably blows the budget.
	label := make([]byte, 63)
	for i := range label {
		label[i] = 'a'
	}
	s := string(label) + "." + string(label) + "." + string(label) + "." + string(label) + "."
	if _, err := NewName(s); err != ErrFormat {
		t.Fatalf("expected ErrFormat for oversized name, got %v", err)
	}
}

func TestName_IsAncestorOf(t *testing.T) {
	parent, _ := NewName("example.com.")
	child, _ := NewName("www.example.com.")
	if !parent.IsAncestorOf(child) {
		t.Errorf("expected example.com. to be an ancestor of www.example.com.")
	}
	if child.IsAncestorOf(parent) {
		t.Errorf("did not expect www.example.com. to be an ancestor of example.com.")
	}
	if !parent.IsAncestorOf(parent) {
		t.Errorf("a name should be its own (non-strict) ancestor")
	}
}

func TestName_Ancestor(t *testing.T) {
	n, _ := NewName("www.example.com.")
	a, err := n.Ancestor(2)
	if err != nil {
		t.Fatalf("Ancestor(2): %v", err)
	}
	if got, want := a.String(), "example.com."; got != want {
		t.Errorf("Ancestor(2) = %q, want %q", got, want)
	}
	if _, err := n.Ancestor(5); err == nil {
		t.Errorf("expected error for out-of-range hop count")
	}
}

func TestName_Wildcard(t *testing.T) {
	n, _ := NewName("example.com.")
	if got, want := n.Wildcard().String(), "*.example.com."; got != want {
		t.Errorf("Wildcard() = %q, want %q", got, want)
	}
}
