// Package dvitest builds small DVI files for tests.
package dvitest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	opSetRule  = 132
	opPutRule  = 137
	opSet1     = 128
	opPut1     = 133
	opBop      = 139
	opEop      = 140
	opPush     = 141
	opPop      = 142
	opRight4   = 146
	opDown4    = 160
	opFnt4     = 238
	opXXX4     = 242
	opFntDef4  = 246
	opPre      = 247
	opPost     = 248
	opPostPost = 249
)

// TeX's usual units: one DVI unit is a scaled point.
const (
	TeXNum = 25400000
	TeXDen = 473628672
)

type fontDef struct {
	num           int32
	scale, design int32
	name          string
}

// Builder assembles a DVI file in memory. Pages are written between
// BeginPage and EndPage; Bytes finishes the file with its postamble.
type Builder struct {
	buf      []byte
	num, den uint32
	mag      uint32
	maxW     int32
	maxH     int32
	lastBop  int32
	pages    int
	fonts    []fontDef
	depth    int
	maxDepth int
	started  bool
	inPage   bool
}

// New returns a Builder using TeX units at magnification 1000.
func New() *Builder {
	return &Builder{num: TeXNum, den: TeXDen, mag: 1000, lastBop: -1}
}

// Units sets the unit fraction. With num 254000 and den equal to the
// rendering resolution, one DVI unit is exactly one pixel before shrinking.
func (b *Builder) Units(num, den uint32) *Builder {
	b.num, b.den = num, den
	return b
}

func (b *Builder) Mag(mag uint32) *Builder {
	b.mag = mag
	return b
}

// PageSize sets the largest page extent recorded in the postamble.
func (b *Builder) PageSize(w, h int32) *Builder {
	b.maxW, b.maxH = w, h
	return b
}

// DefineFont records a font in the postamble, and in the current page when
// called between BeginPage and EndPage.
func (b *Builder) DefineFont(num, scale, design int32, name string) *Builder {
	b.start()
	b.fonts = append(b.fonts, fontDef{num: num, scale: scale, design: design, name: name})
	if b.inPage {
		b.fontDef(fontDef{num: num, scale: scale, design: design, name: name})
	}
	return b
}

func (b *Builder) start() {
	if b.started {
		return
	}
	b.started = true
	b.u8(opPre)
	b.u8(2)
	b.u32(b.num)
	b.u32(b.den)
	b.u32(b.mag)
	comment := "dvitest"
	b.u8(byte(len(comment)))
	b.buf = append(b.buf, comment...)
}

// BeginPage starts a page with \count0 set to count0.
func (b *Builder) BeginPage(count0 int32) *Builder {
	b.start()
	at := int32(len(b.buf))
	b.u8(opBop)
	b.i32(count0)
	for range 9 {
		b.i32(0)
	}
	b.i32(b.lastBop)
	b.lastBop = at
	b.pages++
	b.inPage = true
	return b
}

func (b *Builder) EndPage() *Builder {
	b.inPage = false
	b.u8(opEop)
	return b
}

func (b *Builder) SetRule(height, width int32) *Builder {
	b.u8(opSetRule)
	b.i32(height)
	b.i32(width)
	return b
}

func (b *Builder) PutRule(height, width int32) *Builder {
	b.u8(opPutRule)
	b.i32(height)
	b.i32(width)
	return b
}

func (b *Builder) SetChar(code int32) *Builder {
	if code >= 0 && code < 128 {
		b.u8(byte(code))
		return b
	}
	b.u8(opSet1 + 3)
	b.i32(code)
	return b
}

func (b *Builder) PutChar(code int32) *Builder {
	b.u8(opPut1 + 3)
	b.i32(code)
	return b
}

func (b *Builder) Right(d int32) *Builder {
	b.u8(opRight4)
	b.i32(d)
	return b
}

func (b *Builder) Down(d int32) *Builder {
	b.u8(opDown4)
	b.i32(d)
	return b
}

func (b *Builder) Push() *Builder {
	b.depth++
	b.maxDepth = max(b.maxDepth, b.depth)
	b.u8(opPush)
	return b
}

func (b *Builder) Pop() *Builder {
	b.depth--
	b.u8(opPop)
	return b
}

func (b *Builder) Font(num int32) *Builder {
	b.u8(opFnt4)
	b.i32(num)
	return b
}

func (b *Builder) Special(text string) *Builder {
	b.u8(opXXX4)
	b.u32(uint32(len(text)))
	b.buf = append(b.buf, text...)
	return b
}

// Raw appends bytes unchanged, for writing damaged pages.
func (b *Builder) Raw(p ...byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// Bytes writes the postamble and returns the finished file.
func (b *Builder) Bytes() []byte {
	b.start()
	post := uint32(len(b.buf))
	b.u8(opPost)
	b.i32(b.lastBop)
	b.u32(b.num)
	b.u32(b.den)
	b.u32(b.mag)
	b.i32(b.maxH)
	b.i32(b.maxW)
	b.u16(uint16(b.maxDepth))
	b.u16(uint16(b.pages))
	for _, f := range b.fonts {
		b.fontDef(f)
	}
	b.u8(opPostPost)
	b.u32(post)
	b.u8(2)
	n := 4 + (4-(len(b.buf)+4)%4)%4
	for range n {
		b.u8(223)
	}
	return b.buf
}

// WriteFile writes the finished file into a temporary directory owned by
// t and returns its path.
func (b *Builder) WriteFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func (b *Builder) fontDef(f fontDef) {
	b.u8(opFntDef4)
	b.i32(f.num)
	b.u32(0)
	b.i32(f.scale)
	b.i32(f.design)
	b.u8(0)
	b.u8(byte(len(f.name)))
	b.buf = append(b.buf, f.name...)
}

func (b *Builder) u8(v byte) { b.buf = append(b.buf, v) }

func (b *Builder) u16(v uint16) { b.buf = binary.BigEndian.AppendUint16(b.buf, v) }

func (b *Builder) u32(v uint32) { b.buf = binary.BigEndian.AppendUint32(b.buf, v) }

func (b *Builder) i32(v int32) { b.u32(uint32(v)) }
