package dvi

import (
	"encoding/binary"
	"io"
)

// reader decodes big-endian DVI quantities from an in-memory file. The first
// read past the end is remembered in err and all later reads return zero.
type reader struct {
	b   []byte
	i   int
	err error
}

func (r *reader) len() int {
	return len(r.b) - r.i
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.len() < n {
		r.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (r *reader) readByte() byte {
	if !r.need(1) {
		return 0
	}
	r.i++
	return r.b[r.i-1]
}

func (r *reader) readUint16() uint16 {
	if !r.need(2) {
		return 0
	}
	num := binary.BigEndian.Uint16(r.b[r.i : r.i+2])
	r.i += 2
	return num
}

func (r *reader) readUint32() uint32 {
	if !r.need(4) {
		return 0
	}
	num := binary.BigEndian.Uint32(r.b[r.i : r.i+4])
	r.i += 4
	return num
}

func (r *reader) readInt32() int32 {
	return int32(r.readUint32())
}

// readUintN reads an unsigned n-byte quantity, 1 <= n <= 4.
func (r *reader) readUintN(n int) uint32 {
	if !r.need(n) {
		return 0
	}
	var v uint32
	for range n {
		v = v<<8 | uint32(r.b[r.i])
		r.i++
	}
	return v
}

// readIntN reads a signed n-byte quantity, 1 <= n <= 4.
func (r *reader) readIntN(n int) int32 {
	v := r.readUintN(n)
	shift := 32 - 8*uint(n)
	return int32(v<<shift) >> shift
}

func (r *reader) readBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.b[r.i : r.i+n]
	r.i += n
	return b
}

func (r *reader) readString(n int) string {
	return string(r.readBytes(n))
}
