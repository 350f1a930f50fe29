package cache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// fileMagic identifies the on-disk cache format (spec §4.4, Open Question
// resolved in SPEC_FULL.md: big-endian, version tag "pdn2"). Bumping the
// low byte on a format change lets Load refuse to misinterpret an
// incompatible file instead of panicking partway through.
const fileMagic = 0x70646e32 // "pdn2"

// Save writes every cent that is not purely LOCAL data to path, atomically
// (write to a temp file, then rename) so a crash mid-write never corrupts
// the previous generation's file.
func (c *Cache) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	w := bufio.NewWriter(f)

	cents := c.Snapshot()
	toWrite := cents[:0]
	for _, cent := range cents {
		if !cent.onlyLocal() {
			toWrite = append(toWrite, cent)
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(fileMagic)); err != nil {
		_ = f.Close()
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(toWrite))); err != nil {
		_ = f.Close()
		return err
	}
	for _, cent := range toWrite {
		if err := writeCent(w, cent); err != nil {
			_ = f.Close()
			return fmt.Errorf("cache: write cent %s: %w", cent.Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a cache file saved by Save and installs every cent into c.
// A missing file is not an error: the cache simply starts cold, matching
// pdnsd's "no cache file yet" startup behavior.
func (c *Cache) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cache: open: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return fmt.Errorf("cache: read magic: %w", err)
	}
	if magic != fileMagic {
		return fmt.Errorf("cache: unrecognized cache file format %#x", magic)
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return fmt.Errorf("cache: read count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		cent, err := readCent(r)
		if err != nil {
			return fmt.Errorf("cache: read cent %d: %w", i, err)
		}
		c.Restore(cent)
	}
	return nil
}

func writeCent(w io.Writer, cent *Cent) error {
	if err := writeBytes(w, cent.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(cent.Flags)); err != nil {
		return err
	}
	if err := writeNeg(w, cent.NXDomain); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint16(len(cent.rrsets))); err != nil {
		return err
	}
	for typ, rs := range cent.rrsets {
		if err := binary.Write(w, binary.BigEndian, uint16(typ)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, int64(rs.TTL)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, rs.Fetched.Unix()); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint16(rs.Flags)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint16(len(rs.Records))); err != nil {
			return err
		}
		for _, rr := range rs.Records {
			m := packet.Message{Answer: []packet.RR{rr}}
			wire, err := m.Pack()
			if err != nil {
				return err
			}
			if err := writeBytes(w, wire); err != nil {
				return err
			}
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint16(len(cent.neg))); err != nil {
		return err
	}
	for typ, ns := range cent.neg {
		if err := binary.Write(w, binary.BigEndian, uint16(typ)); err != nil {
			return err
		}
		if err := writeNeg(w, ns); err != nil {
			return err
		}
	}
	return nil
}

func writeNeg(w io.Writer, ns *NegRRSet) error {
	if ns == nil {
		return binary.Write(w, binary.BigEndian, uint8(0))
	}
	if err := binary.Write(w, binary.BigEndian, uint8(1)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int64(ns.TTL)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ns.Fetched.Unix()); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, uint16(ns.Flags))
}

func readNeg(r io.Reader) (*NegRRSet, error) {
	var present uint8
	if err := binary.Read(r, binary.BigEndian, &present); err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	var ttl int64
	var fetched int64
	var flags uint16
	if err := binary.Read(r, binary.BigEndian, &ttl); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &fetched); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &flags); err != nil {
		return nil, err
	}
	return &NegRRSet{TTL: time.Duration(ttl), Fetched: time.Unix(fetched, 0), Flags: RRFlags(flags)}, nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readCent(r io.Reader) (*Cent, error) {
	nameBytes, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	cent := newCent(packet.Name(nameBytes))

	var flags uint16
	if err := binary.Read(r, binary.BigEndian, &flags); err != nil {
		return nil, err
	}
	cent.Flags = DomainFlags(flags)

	nx, err := readNeg(r)
	if err != nil {
		return nil, err
	}
	cent.NXDomain = nx

	var nRRSets uint16
	if err := binary.Read(r, binary.BigEndian, &nRRSets); err != nil {
		return nil, err
	}
	for i := uint16(0); i < nRRSets; i++ {
		var typ uint16
		if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
			return nil, err
		}
		var ttl int64
		if err := binary.Read(r, binary.BigEndian, &ttl); err != nil {
			return nil, err
		}
		var fetched int64
		if err := binary.Read(r, binary.BigEndian, &fetched); err != nil {
			return nil, err
		}
		var rsFlags uint16
		if err := binary.Read(r, binary.BigEndian, &rsFlags); err != nil {
			return nil, err
		}
		var nRecords uint16
		if err := binary.Read(r, binary.BigEndian, &nRecords); err != nil {
			return nil, err
		}
		records := make([]packet.RR, 0, nRecords)
		for j := uint16(0); j < nRecords; j++ {
			wire, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			m, err := packet.ParseMessage(wire)
			if err != nil {
				return nil, fmt.Errorf("decode rr: %w", err)
			}
			if len(m.Answer) != 1 {
				return nil, fmt.Errorf("cache: expected exactly one RR in persisted record")
			}
			records = append(records, m.Answer[0])
		}
		cent.rrsets[packet.Type(typ)] = &RRSet{
			Records: records,
			TTL:     time.Duration(ttl),
			Fetched: time.Unix(fetched, 0),
			Flags:   RRFlags(rsFlags),
		}
	}

	var nNeg uint16
	if err := binary.Read(r, binary.BigEndian, &nNeg); err != nil {
		return nil, err
	}
	for i := uint16(0); i < nNeg; i++ {
		var typ uint16
		if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
			return nil, err
		}
		ns, err := readNeg(r)
		if err != nil {
			return nil, err
		}
		cent.neg[packet.Type(typ)] = ns
	}

	return cent, nil
}
