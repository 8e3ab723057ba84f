package dvi

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"unicode"
)

type position struct {
	h, v, w, x, y, z int32
	hh, vv           int
}

// pageState is the interpreter state for one page.
type pageState struct {
	c     *Context
	s     Surface
	pos   position
	stack []position
	font  *FontDef
	// page extent in pixels before orientation is applied
	width, height int
	warnedFonts   bool
}

// Render paints the current page onto s. The color stack is reset to the
// document colors first. A damaged page stops rendering with ErrCorrupt;
// whatever was drawn up to that point stays on s.
func (c *Context) Render(s Surface) error {
	if c.closed {
		return ErrClosed
	}
	if len(c.file.pages) == 0 {
		return fmt.Errorf("%w: no pages", ErrCorrupt)
	}
	c.resetColors()
	page := c.file.pages[c.current]
	st := &pageState{
		c:      c,
		s:      s,
		width:  int(float64(c.file.maxW) * c.conv),
		height: int(float64(c.file.maxH) * c.vconv),
	}
	r := &reader{b: c.file.data, i: page.offset + bopLength}
	if err := st.run(r); err != nil {
		return fmt.Errorf("%w: page %d: %v", ErrCorrupt, c.current+1, err)
	}
	return nil
}

func (st *pageState) run(r *reader) error {
	for {
		if r.err != nil {
			return r.err
		}
		op := r.readByte()
		switch {
		case op < opSet1:
			st.setChar(int32(op), true)
		case op < opSetRule:
			st.setChar(int32(r.readUintN(int(op-opSet1)+1)), true)
		case op == opSetRule:
			a, b := r.readInt32(), r.readInt32()
			st.rule(a, b, true)
		case op < opPutRule:
			st.setChar(int32(r.readUintN(int(op-opPut1)+1)), false)
		case op == opPutRule:
			a, b := r.readInt32(), r.readInt32()
			st.rule(a, b, false)
		case op == opNop:
		case op == opBop:
			return fmt.Errorf("bop inside page at %d", r.i-1)
		case op == opEop:
			if len(st.stack) != 0 {
				st.c.engine.log.Debug("unbalanced push at end of page", "page", st.c.current+1, "depth", len(st.stack))
			}
			return r.err
		case op == opPush:
			st.stack = append(st.stack, st.pos)
		case op == opPop:
			n := len(st.stack)
			if n == 0 {
				return fmt.Errorf("pop on empty stack at %d", r.i-1)
			}
			st.pos = st.stack[n-1]
			st.stack = st.stack[:n-1]
		case op < opW0:
			st.moveRight(r.readIntN(int(op-opRight1) + 1))
		case op == opW0:
			st.moveRight(st.pos.w)
		case op < opX0:
			st.pos.w = r.readIntN(int(op-opW1) + 1)
			st.moveRight(st.pos.w)
		case op == opX0:
			st.moveRight(st.pos.x)
		case op < opDown1:
			st.pos.x = r.readIntN(int(op-opX1) + 1)
			st.moveRight(st.pos.x)
		case op < opY0:
			st.moveDown(r.readIntN(int(op-opDown1) + 1))
		case op == opY0:
			st.moveDown(st.pos.y)
		case op < opZ0:
			st.pos.y = r.readIntN(int(op-opY1) + 1)
			st.moveDown(st.pos.y)
		case op == opZ0:
			st.moveDown(st.pos.z)
		case op < opFntNum0:
			st.pos.z = r.readIntN(int(op-opZ1) + 1)
			st.moveDown(st.pos.z)
		case op < opFnt1:
			st.selectFont(int32(op - opFntNum0))
		case op < opXXX1:
			n := int(op-opFnt1) + 1
			if n == 4 {
				st.selectFont(r.readInt32())
			} else {
				st.selectFont(int32(r.readUintN(n)))
			}
		case op < opFntDef1:
			k := int(r.readUintN(int(op-opXXX1) + 1))
			text := r.readString(k)
			if r.err == nil {
				st.special(text)
			}
		case op < opFntDef1+4:
			readFontDef(r, int(op-opFntDef1)+1)
		default:
			return fmt.Errorf("unexpected opcode %d at %d", op, r.i-1)
		}
	}
}

func (st *pageState) pixelH(x int32) int {
	return int(math.Round(st.c.conv * float64(x)))
}

func (st *pageState) pixelV(y int32) int {
	return int(math.Round(st.c.vconv * float64(y)))
}

// rulePixels is the number of pixels in a rule of the given size: the
// rounded-up product, so thin rules stay visible.
func rulePixels(conv float64, x int32) int {
	f := conv * float64(x)
	n := int(f)
	if float64(n) < f {
		n++
	}
	return n
}

func (st *pageState) moveRight(b int32) {
	space := st.font.space()
	if b >= space || b <= -4*space {
		st.pos.hh = st.pixelH(st.pos.h + b)
	} else {
		st.pos.hh += st.pixelH(b)
	}
	st.pos.h += b
	st.fixDriftH()
}

func (st *pageState) moveDown(a int32) {
	space := st.font.space()
	if a >= 5*space || a <= -5*space {
		st.pos.vv = st.pixelV(st.pos.v + a)
	} else {
		st.pos.vv += st.pixelV(a)
	}
	st.pos.v += a
	st.fixDriftV()
}

func (st *pageState) fixDriftH() {
	st.pos.hh = clampDrift(st.pos.hh, st.pixelH(st.pos.h), st.c.params.HDrift)
}

func (st *pageState) fixDriftV() {
	st.pos.vv = clampDrift(st.pos.vv, st.pixelV(st.pos.v), st.c.params.VDrift)
}

// clampDrift keeps the accumulated pixel position within drift pixels of
// the exactly rounded one.
func clampDrift(acc, exact, drift int) int {
	switch {
	case exact-acc > drift:
		return exact - drift
	case acc-exact > drift:
		return exact + drift
	}
	return acc
}

func (st *pageState) rule(a, b int32, move bool) {
	rw := rulePixels(st.c.conv, b)
	if a > 0 && b > 0 {
		rh := rulePixels(st.c.vconv, a)
		r := image.Rect(st.pos.hh, st.pos.vv-rh+1, st.pos.hh+rw, st.pos.vv+1)
		st.s.FillRect(st.place(r), st.c.fg)
	}
	if move {
		st.pos.hh += rw
		st.pos.h += b
		st.fixDriftH()
	}
}

func (st *pageState) selectFont(k int32) {
	st.font = st.c.file.fonts[k]
}

func (st *pageState) setChar(code int32, move bool) {
	fonts := st.c.engine.fonts
	if fonts == nil || st.font == nil {
		if !st.warnedFonts {
			st.warnedFonts = true
			st.c.engine.log.Debug("skipping characters without a font source", "page", st.c.current+1)
		}
		return
	}
	g, ok := fonts.Glyph(st.font, code, st.c.params.DPI)
	if !ok {
		return
	}
	if g.Mask != nil {
		img, origin := shrinkGlyph(g, st.c.hshrink, st.c.vshrink, &st.c.params, st.c.fg, st.c.bg)
		if img != nil {
			at := image.Pt(st.pos.hh-origin.X, st.pos.vv-origin.Y)
			r := image.Rectangle{Min: at, Max: at.Add(img.Bounds().Size())}
			st.drawGlyph(r, img)
		}
	}
	if move {
		st.pos.hh += st.pixelH(g.Width)
		st.pos.h += g.Width
		st.fixDriftH()
	}
}

// drawGlyph draws img at r. With the identity orientation the bitmap is
// drawn directly; otherwise each pixel is placed through the orientation.
func (st *pageState) drawGlyph(r image.Rectangle, img *image.Paletted) {
	if st.c.params.Orientation == OrientTBLR {
		st.s.DrawImage(st.place(r), img, image.Point{})
		return
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			idx := img.ColorIndexAt(x, y)
			if idx == 0 {
				continue
			}
			px := image.Rect(r.Min.X+x, r.Min.Y+y, r.Min.X+x+1, r.Min.Y+y+1)
			st.s.FillRect(st.place(px), color.RGBAModel.Convert(img.Palette[idx]).(color.RGBA))
		}
	}
}

func (st *pageState) special(text string) {
	c := st.c
	sp, arg, ok := c.engine.lookupSpecial(strings.TrimLeftFunc(text, unicode.IsSpace))
	if !ok {
		c.engine.log.Debug("ignoring special", "page", c.current+1, "special", text)
		return
	}
	sp.handler(c, sp.prefix, arg)
}

// place maps a rectangle in page pixels to surface pixels, applying the
// orientation and the margins.
func (st *pageState) place(r image.Rectangle) image.Rectangle {
	w, h := st.width, st.height
	var p, q image.Point
	switch st.c.params.Orientation {
	case OrientTBRL:
		p, q = image.Pt(w-r.Max.X, r.Min.Y), image.Pt(w-r.Min.X, r.Max.Y)
	case OrientBTLR:
		p, q = image.Pt(r.Min.X, h-r.Max.Y), image.Pt(r.Max.X, h-r.Min.Y)
	case OrientBTRL:
		p, q = image.Pt(w-r.Max.X, h-r.Max.Y), image.Pt(w-r.Min.X, h-r.Min.Y)
	case OrientRP90:
		p, q = image.Pt(h-r.Max.Y, r.Min.X), image.Pt(h-r.Min.Y, r.Max.X)
	case OrientRM90:
		p, q = image.Pt(r.Min.Y, w-r.Max.X), image.Pt(r.Max.Y, w-r.Min.X)
	case OrientIRP90:
		p, q = image.Pt(r.Min.Y, r.Min.X), image.Pt(r.Max.Y, r.Max.X)
	case OrientIRM90:
		p, q = image.Pt(h-r.Max.Y, w-r.Max.X), image.Pt(h-r.Min.Y, w-r.Min.X)
	default:
		p, q = r.Min, r.Max
	}
	off := image.Pt(st.c.xmargin, st.c.ymargin)
	return image.Rectangle{Min: p.Add(off), Max: q.Add(off)}
}
