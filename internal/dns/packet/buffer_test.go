package packet

import "testing"

func TestBuffer_NameCompressionRoundTrip(t *testing.T) {
	w := NewWriter()
	n1, _ := NewName("www.example.com.")
	n2, _ := NewName("mail.example.com.")

	if err := w.WriteName(n1); err != nil {
		t.Fatalf("WriteName(n1): %v", err)
	}
	if err := w.WriteName(n2); err != nil {
		t.Fatalf("WriteName(n2): %v", err)
	}

	// n2 shares the "example.com." suffix with n1, so the second write
	// should be shorter than an uncompressed encoding would be: "mail" (5
	// bytes incl. length) + a 2-byte pointer = 7, versus 4+1+7+1+3+1+1=18
	// uncompressed.
	if got := w.Len(); got >= 1+len(n1)+len(n2) {
		t.Errorf("expected compression to shrink output, got %d bytes", got)
	}

	r := NewReader(w.Bytes())
	got1, err := r.ReadName()
	if err != nil {
		t.Fatalf("ReadName(n1): %v", err)
	}
	if !got1.Equal(n1) {
		t.Errorf("first name = %q, want %q", got1, n1)
	}
	got2, err := r.ReadName()
	if err != nil {
		t.Fatalf("ReadName(n2): %v", err)
	}
	if !got2.Equal(n2) {
		t.Errorf("second name = %q, want %q", got2, n2)
	}
}

func TestBuffer_ReadName_PointerLoop(t *testing.T) {
	// Two pointers that point at each other: an infinite loop that must be
	// rejected once the hop budget is exhausted rather than hanging.
	data := []byte{0xC0, 0x02, 0xC0, 0x00}
	r := NewReader(data)
	if _, err := r.ReadName(); err != ErrFormat {
		t.Fatalf("expected ErrFormat for pointer loop, got %v", err)
	}
}

func TestBuffer_ReadName_PointerBeyondMessage(t *testing.T) {
	data := []byte{0xC0, 0xFF}
	r := NewReader(data)
	if _, err := r.ReadName(); err != ErrFormat {
		t.Fatalf("expected ErrFormat for out-of-range pointer, got %v", err)
	}
}

func TestBuffer_ReadName_Truncated(t *testing.T) {
	data := []byte{3, 'w', 'w'} // length byte claims 3 but only 2 follow
	r := NewReader(data)
	if _, err := r.ReadName(); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated for short label, got %v", err)
	}
}

func TestBuffer_ReadWriteUint16Uint32(t *testing.T) {
	w := NewWriter()
	if err := w.WriteUint16(0xBEEF); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUint32(0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	r := NewReader(w.Bytes())
	v16, err := r.ReadUint16()
	if err != nil || v16 != 0xBEEF {
		t.Fatalf("ReadUint16() = %x, %v", v16, err)
	}
	v32, err := r.ReadUint32()
	if err != nil || v32 != 0xDEADBEEF {
		t.Fatalf("ReadUint32() = %x, %v", v32, err)
	}
}
