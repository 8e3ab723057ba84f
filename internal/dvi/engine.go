// Package dvi is a small DVI interpreter. It parses the page structure of a
// DVI file and paints pages onto a Surface at a configurable shrink, with a
// color stack driven by registered special handlers.
package dvi

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode"
)

// ErrClosed is returned by a Context after Close.
var ErrClosed = errors.New("dvi context closed")

// SpecialHandler handles a special whose text starts with a registered
// prefix. arg is the remainder of the text with leading space removed.
type SpecialHandler func(c *Context, prefix, arg string)

type specialEntry struct {
	prefix  string
	handler SpecialHandler
}

// Engine opens DVI files. Specials and fonts registered on an Engine apply
// to every Context it opens.
type Engine struct {
	mu       sync.RWMutex
	specials []specialEntry
	fonts    FontSource
	log      *slog.Logger
}

type Option func(*Engine)

// WithFontSource sets where glyph bitmaps come from. Without one,
// characters are skipped.
func WithFontSource(fs FontSource) Option {
	return func(e *Engine) { e.fonts = fs }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(opts ...Option) *Engine {
	e := &Engine{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterSpecial installs h for specials starting with prefix, matched
// without regard to case. A later registration for the same prefix
// replaces the earlier one.
func (e *Engine) RegisterSpecial(prefix string, h SpecialHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.specials {
		if strings.EqualFold(e.specials[i].prefix, prefix) {
			e.specials[i].handler = h
			return
		}
	}
	e.specials = append(e.specials, specialEntry{prefix: prefix, handler: h})
}

func (e *Engine) lookupSpecial(text string) (specialEntry, string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sp := range e.specials {
		n := len(sp.prefix)
		if len(text) >= n && strings.EqualFold(text[:n], sp.prefix) {
			return sp, strings.TrimLeftFunc(text[n:], unicode.IsSpace), true
		}
	}
	return specialEntry{}, "", false
}

// Open reads the DVI file at path. The returned Context starts on the first
// page at the baseline shrink of params.
func (e *Engine) Open(path string, params Params) (*Context, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parseFile(data)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if params.HDrift < 0 {
		params.HDrift = defaultDrift(params.DPI)
	}
	if params.VDrift < 0 {
		params.VDrift = defaultDrift(params.VDPI)
	}

	c := &Context{
		engine: e,
		path:   path,
		params: params,
		file:   f,
	}
	mag := float64(f.mag) / 1000 * params.Mag
	c.dviconv = float64(f.num) / 254000 * (float64(params.DPI) / float64(f.den)) * mag
	c.dvivconv = float64(f.num) / 254000 * (float64(params.VDPI) / float64(f.den)) * mag
	c.SetShrink(params.HShrink, params.VShrink)
	c.resetColors()
	return c, nil
}

type colorPair struct {
	fg, bg color.RGBA
}

// Context is an open DVI file together with the rendering cursor: the
// current page, shrink, margins and color stack. A Context is not safe for
// concurrent use.
type Context struct {
	engine *Engine
	path   string
	params Params
	file   *file
	closed bool

	current          int
	hshrink, vshrink int
	dviconv          float64
	dvivconv         float64
	conv, vconv      float64
	xmargin, ymargin int

	colors []colorPair
	fg, bg color.RGBA
}

func (c *Context) Path() string { return c.path }

func (c *Context) Params() Params { return c.params }

func (c *Context) PageCount() int { return len(c.file.pages) }

// PageSize returns the size of the largest page in DVI units.
func (c *Context) PageSize() (w, h int) {
	if c.params.Orientation.Rotated() {
		return int(c.file.maxH), int(c.file.maxW)
	}
	return int(c.file.maxW), int(c.file.maxH)
}

// Conv returns the horizontal and vertical number of pixels per DVI unit at
// the current shrink.
func (c *Context) Conv() (h, v float64) {
	if c.params.Orientation.Rotated() {
		return c.vconv, c.conv
	}
	return c.conv, c.vconv
}

// Counts returns the TeX page counters \count0 to \count9 of page.
func (c *Context) Counts(page int) ([10]int32, error) {
	if page < 0 || page >= len(c.file.pages) {
		return [10]int32{}, fmt.Errorf("page %d out of range [0,%d)", page, len(c.file.pages))
	}
	return c.file.pages[page].counts, nil
}

// Fonts returns the fonts defined in the postamble.
func (c *Context) Fonts() map[int32]*FontDef {
	return c.file.fonts
}

func (c *Context) SetPage(page int) error {
	if c.closed {
		return ErrClosed
	}
	if page < 0 || page >= len(c.file.pages) {
		return fmt.Errorf("page %d out of range [0,%d)", page, len(c.file.pages))
	}
	c.current = page
	return nil
}

func (c *Context) CurrentPage() int { return c.current }

// SetShrink sets the shrink factors and updates the conversion factors.
// Values below 1 are taken as 1.
func (c *Context) SetShrink(h, v int) {
	c.hshrink = max(h, 1)
	c.vshrink = max(v, 1)
	c.conv = c.dviconv / float64(c.hshrink)
	c.vconv = c.dvivconv / float64(c.vshrink)
}

func (c *Context) Shrink() (h, v int) { return c.hshrink, c.vshrink }

// SetMargins sets the offset of the page origin on the surface.
func (c *Context) SetMargins(x, y int) {
	c.xmargin, c.ymargin = x, y
}

// PushColor makes fg on bg the current color.
func (c *Context) PushColor(fg, bg color.RGBA) {
	c.colors = append(c.colors, colorPair{c.fg, c.bg})
	c.fg, c.bg = fg, bg
}

// PopColor restores the color active before the last push. With nothing
// pushed the document colors are restored.
func (c *Context) PopColor() {
	n := len(c.colors)
	if n == 0 {
		c.fg, c.bg = c.params.FG, c.params.BG
		return
	}
	top := c.colors[n-1]
	c.colors = c.colors[:n-1]
	c.fg, c.bg = top.fg, top.bg
}

// CurrentColor returns the foreground and background on top of the stack.
func (c *Context) CurrentColor() (fg, bg color.RGBA) {
	return c.fg, c.bg
}

// ColorDepth is the number of pushed colors.
func (c *Context) ColorDepth() int { return len(c.colors) }

func (c *Context) resetColors() {
	c.colors = c.colors[:0]
	c.fg, c.bg = c.params.FG, c.params.BG
}

// Close releases the file. Further calls on c return ErrClosed.
func (c *Context) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.file = &file{}
	c.colors = nil
	return nil
}
