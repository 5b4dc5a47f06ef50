package wasmbin

import (
	"bytes"
	"errors"
	"fmt"
)

// Section ids of the core binary format.
const (
	SectionCustom   byte = 0x00
	SectionType     byte = 0x01
	SectionImport   byte = 0x02
	SectionFunction byte = 0x03
	SectionTable    byte = 0x04
	SectionMemory   byte = 0x05
	SectionGlobal   byte = 0x06
	SectionExport   byte = 0x07
	SectionStart    byte = 0x08
	SectionElement  byte = 0x09
	SectionCode     byte = 0x0a
	SectionData     byte = 0x0b
)

// External kinds used by imports and exports.
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Header is the magic number followed by binary format version 1.
var Header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

var (
	// ErrTruncated reports input that ends inside a structure.
	ErrTruncated = errors.New("wasm binary truncated")
	// ErrBadHeader reports a missing magic number or unsupported version.
	ErrBadHeader = errors.New("not a wasm binary")
)

// Section is one top level section. Offset is the position of the id byte,
// Start and End delimit the payload.
type Section struct {
	ID     byte
	Name   string // custom sections only
	Offset int
	Start  int
	End    int
}

// Sections lists the sections of bin in file order.
func Sections(bin []byte) ([]Section, error) {
	if len(bin) < len(Header) || !bytes.Equal(bin[:len(Header)], Header) {
		return nil, ErrBadHeader
	}
	var out []Section
	r := &reader{data: bin, pos: len(Header)}
	for r.pos < len(bin) {
		offset := r.pos
		id := r.byte()
		size := r.u32()
		if r.err != nil {
			return nil, r.err
		}
		end := r.pos + int(size)
		if end > len(bin) {
			return nil, fmt.Errorf("section %d: %w", id, ErrTruncated)
		}
		s := Section{ID: id, Offset: offset, Start: r.pos, End: end}
		if id == SectionCustom {
			sub := &reader{data: bin[:end], pos: r.pos}
			s.Name = sub.name()
			if sub.err != nil {
				return nil, fmt.Errorf("custom section name: %w", sub.err)
			}
			s.Start = sub.pos
		}
		out = append(out, s)
		r.pos = end
	}
	return out, nil
}

func find(bin []byte, id byte) (Section, bool, error) {
	sections, err := Sections(bin)
	if err != nil {
		return Section{}, false, err
	}
	for _, s := range sections {
		if s.ID == id {
			return s, true, nil
		}
	}
	return Section{}, false, nil
}

// CustomSection returns the payload of the first custom section called name.
func CustomSection(bin []byte, name string) ([]byte, bool) {
	sections, err := Sections(bin)
	if err != nil {
		return nil, false
	}
	for _, s := range sections {
		if s.ID == SectionCustom && s.Name == name {
			return bin[s.Start:s.End], true
		}
	}
	return nil, false
}

// AppendCustomSection appends a custom section to dst.
func AppendCustomSection(dst []byte, name string, payload []byte) []byte {
	body := AppendULEB128(nil, uint32(len(name)))
	body = append(body, name...)
	body = append(body, payload...)
	dst = append(dst, SectionCustom)
	dst = AppendULEB128(dst, uint32(len(body)))
	return append(dst, body...)
}

type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.data) {
		r.err = ErrTruncated
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n, err := DecodeULEB128(r.data[r.pos:])
	if err != nil {
		r.err = err
		return 0
	}
	r.pos += n
	return v
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) name() string {
	n := r.u32()
	return string(r.bytes(int(n)))
}

// limits skips a limits structure.
func (r *reader) limits() {
	flag := r.byte()
	r.u32()
	if flag&0x01 != 0 {
		r.u32()
	}
}
