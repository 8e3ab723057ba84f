package dvi

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNotDVI is returned for files that do not start with a DVI preamble.
	ErrNotDVI = errors.New("not a DVI file")

	// ErrCorrupt is returned when the file structure or a page is damaged.
	ErrCorrupt = errors.New("corrupt DVI file")
)

const (
	opSetChar0 = 0
	opSet1     = 128 // typeset a character and move right
	opSetRule  = 132 // typeset a rule and move right
	opPut1     = 133 // typeset a character
	opPutRule  = 137 // typeset a rule
	opNop      = 138
	opBop      = 139 // beginning of page
	opEop      = 140 // ending of page
	opPush     = 141 // save the current positions
	opPop      = 142 // restore previous positions
	opRight1   = 143 // move right
	opW0       = 147 // move right by w
	opW1       = 148 // move right and set w
	opX0       = 152 // move right by x
	opX1       = 153 // move right and set x
	opDown1    = 157 // move down
	opY0       = 161 // move down by y
	opY1       = 162 // move down and set y
	opZ0       = 166 // move down by z
	opZ1       = 167 // move down and set z
	opFntNum0  = 171 // set current font to 0
	opFnt1     = 235 // set current font
	opXXX1     = 239 // extension to DVI primitives
	opFntDef1  = 243 // the meaning of a font number
	opPre      = 247
	opPost     = 248
	opPostPost = 249

	idByte     = 2
	trailer    = 223
	bopLength  = 45 // opcode, ten counters and the back pointer
	postLength = 29
)

// FontDef is a font definition from the file.
type FontDef struct {
	Number   int32
	Checksum uint32
	Scale    int32 // scaled size in DVI units
	Design   int32 // design size in DVI units
	Area     string
	Name     string
}

// space is the threshold below which horizontal movement is treated as
// inter-character spacing for drift correction.
func (f *FontDef) space() int32 {
	if f == nil {
		return 0
	}
	return f.Scale / 6
}

type pageEntry struct {
	offset int
	counts [10]int32
}

// file holds the structure of a parsed DVI file.
type file struct {
	data     []byte
	comment  string
	num, den uint32
	mag      uint32
	maxH     int32 // tallest page, height plus depth
	maxW     int32 // widest page
	maxStack int
	pages    []pageEntry
	fonts    map[int32]*FontDef
}

// parseFile reads the preamble, the postamble and the chain of page back
// pointers. Page contents are not looked at until they are rendered.
func parseFile(data []byte) (*file, error) {
	if len(data) < 2 || data[0] != opPre || data[1] != idByte {
		return nil, ErrNotDVI
	}
	f := &file{data: data, fonts: make(map[int32]*FontDef)}

	r := &reader{b: data, i: 2}
	f.num = r.readUint32()
	f.den = r.readUint32()
	f.mag = r.readUint32()
	f.comment = r.readString(int(r.readByte()))
	if r.err != nil {
		return nil, fmt.Errorf("%w: preamble: %v", ErrCorrupt, r.err)
	}
	if f.num == 0 || f.den == 0 || f.mag == 0 {
		return nil, fmt.Errorf("%w: preamble: zero num, den or mag", ErrCorrupt)
	}

	postAddr, err := findPostamble(data)
	if err != nil {
		return nil, err
	}
	r = &reader{b: data, i: postAddr + 1}
	lastBop := int(r.readInt32())
	_ = r.readUint32() // num
	_ = r.readUint32() // den
	_ = r.readUint32() // mag
	f.maxH = r.readInt32()
	f.maxW = r.readInt32()
	f.maxStack = int(r.readUint16())
	total := int(r.readUint16())
	if r.err != nil {
		return nil, fmt.Errorf("%w: postamble: %v", ErrCorrupt, r.err)
	}
	if err := f.readFontDefs(r); err != nil {
		return nil, err
	}

	for addr := lastBop; addr != -1; {
		if addr < 0 || addr+bopLength > postAddr || data[addr] != opBop {
			return nil, fmt.Errorf("%w: bad page pointer %d", ErrCorrupt, addr)
		}
		if len(f.pages) > total && total > 0 {
			return nil, fmt.Errorf("%w: page chain longer than %d pages", ErrCorrupt, total)
		}
		pr := &reader{b: data, i: addr + 1}
		var p pageEntry
		p.offset = addr
		for k := range p.counts {
			p.counts[k] = pr.readInt32()
		}
		f.pages = append(f.pages, p)
		next := int(pr.readInt32())
		if next >= addr {
			return nil, fmt.Errorf("%w: page pointers not decreasing at %d", ErrCorrupt, addr)
		}
		addr = next
	}
	slices.Reverse(f.pages)
	return f, nil
}

// findPostamble locates the post_post trailer at the end of the file and
// returns the address of the postamble it points to.
func findPostamble(data []byte) (int, error) {
	i := len(data) - 1
	for i >= 0 && data[i] == trailer {
		i--
	}
	if i < 5 || data[i] != idByte || data[i-5] != opPostPost {
		return 0, fmt.Errorf("%w: missing postamble trailer", ErrCorrupt)
	}
	r := &reader{b: data, i: i - 4}
	addr := int(r.readInt32())
	if addr < 0 || addr+postLength > len(data) || data[addr] != opPost {
		return 0, fmt.Errorf("%w: bad postamble pointer %d", ErrCorrupt, addr)
	}
	return addr, nil
}

func (f *file) readFontDefs(r *reader) error {
	for r.err == nil {
		op := r.readByte()
		switch {
		case op == opNop:
		case op >= opFntDef1 && op < opFntDef1+4:
			def := readFontDef(r, int(op-opFntDef1)+1)
			if r.err == nil {
				f.fonts[def.Number] = def
			}
		case op == opPostPost:
			return nil
		default:
			return fmt.Errorf("%w: unexpected opcode %d in postamble", ErrCorrupt, op)
		}
	}
	return fmt.Errorf("%w: postamble: %v", ErrCorrupt, r.err)
}

func readFontDef(r *reader, n int) *FontDef {
	def := &FontDef{}
	if n == 4 {
		def.Number = r.readInt32()
	} else {
		def.Number = int32(r.readUintN(n))
	}
	def.Checksum = r.readUint32()
	def.Scale = r.readInt32()
	def.Design = r.readInt32()
	a := int(r.readByte())
	l := int(r.readByte())
	def.Area = r.readString(a)
	def.Name = r.readString(l)
	return def
}
