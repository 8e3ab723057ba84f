// Package document ties a DVI engine context to the page geometry a viewer
// needs. Every call into the engine goes through one lock per document, so a
// Document may be rendered from several goroutines at once.
package document

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alefaraci/GoDVI/internal/dvi"
	"github.com/alefaraci/GoDVI/internal/geometry"
	"github.com/alefaraci/GoDVI/internal/logging"
	"github.com/alefaraci/GoDVI/internal/special"
)

var (
	// ErrEngineUnavailable wraps the reason the engine could not open a file.
	ErrEngineUnavailable = errors.New("dvi engine unavailable")
	ErrClosed            = errors.New("document closed")
	ErrPageRange         = errors.New("page out of range")
)

// DefaultMargin is added around each page when computing its base size.
const DefaultMargin = "1in"

// Viewport is a render request. A zero Width or Height means the size of
// the page at Scale.
type Viewport struct {
	Scale         float64
	Width, Height int
}

// Placement reports how a page was laid out on the surface.
type Placement struct {
	HShrink, VShrink int
	MarginX, MarginY int
	// page size at the shrink used, without margins
	PageWidth, PageHeight int
	// surface size the page was centered in
	Width, Height int
}

type options struct {
	engine *dvi.Engine
	params dvi.Params
	locker sync.Locker
	logger *slog.Logger
	margin string
}

type Option func(*options)

// WithEngine opens the document on e instead of a fresh engine. The color
// special handler is registered on e.
func WithEngine(e *dvi.Engine) Option {
	return func(o *options) { o.engine = e }
}

func WithParams(p dvi.Params) Option {
	return func(o *options) { o.params = p }
}

// WithLocker sets the lock guarding engine access. Sharing one locker
// between documents serializes all of them.
func WithLocker(l sync.Locker) Option {
	return func(o *options) { o.locker = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMargins sets the margin added on each side of a page as a TeX
// dimension such as "1in" or "5mm".
func WithMargins(dim string) Option {
	return func(o *options) { o.margin = dim }
}

// Document is an open DVI file.
type Document struct {
	id     uuid.UUID
	path   string
	params dvi.Params
	log    *slog.Logger

	pages        int
	baseW, baseH float64

	mu     sync.Locker
	ctx    *dvi.Context // guarded by mu
	closed bool         // guarded by mu
}

// Open opens the DVI file at path and computes its base page size. On
// failure nothing is kept open and the error wraps ErrEngineUnavailable.
func Open(path string, opts ...Option) (*Document, error) {
	o := options{
		params: dvi.DefaultParams(),
		margin: DefaultMargin,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.WithComponent(logging.ComponentDocument)
	}
	if o.locker == nil {
		o.locker = &sync.Mutex{}
	}
	if o.engine == nil {
		o.engine = dvi.New(dvi.WithLogger(o.logger))
	}
	o.engine.RegisterSpecial("color", colorSpecial)

	mh, err := geometry.UnitToPixels(o.params.DPI, o.margin)
	if err != nil {
		return nil, fmt.Errorf("opening %s: margin: %w", path, err)
	}
	mv, err := geometry.UnitToPixels(o.params.VDPI, o.margin)
	if err != nil {
		return nil, fmt.Errorf("opening %s: margin: %w", path, err)
	}

	d := &Document{
		id:     uuid.New(),
		path:   path,
		params: o.params,
		mu:     o.locker,
	}
	d.log = o.logger.With("document", d.id.String())

	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, err := o.engine.Open(path, o.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	if ctx.PageCount() == 0 {
		_ = ctx.Close()
		return nil, fmt.Errorf("%w: %s has no pages", ErrEngineUnavailable, path)
	}
	d.ctx = ctx
	d.pages = ctx.PageCount()

	pw, ph := ctx.PageSize()
	ch, cv := ctx.Conv()
	hs, vs := ctx.Shrink()
	d.baseW, d.baseH = geometry.BaseSize(pw, ph, ch, cv, mh, mv, hs, vs)

	d.log.Debug("opened document",
		"path", path,
		"pages", d.pages,
		"base_width", d.baseW,
		"base_height", d.baseH)
	return d, nil
}

// colorSpecial applies a color special to the context's color stack.
// Pushed colors keep the document background.
func colorSpecial(c *dvi.Context, _, arg string) {
	cmd := special.Interpret(c, c.Params().BG, arg)
	if cmd.Op == special.OpUnknown {
		logging.DebugWithComponent(logging.ComponentRender, "ignoring color special", "arg", arg)
	}
}

func (d *Document) ID() string { return d.id.String() }

func (d *Document) Path() string { return d.path }

func (d *Document) Params() dvi.Params { return d.params }

func (d *Document) PageCount() int { return d.pages }

// BaseSize returns the page size in pixels at scale 1, margins included.
func (d *Document) BaseSize() (w, h float64) { return d.baseW, d.baseH }

// PageSize returns the display size of page at scale 1. All pages share
// the size of the largest one.
func (d *Document) PageSize(page int) (w, h float64, err error) {
	err = d.withExclusiveAccess(func(*dvi.Context) error {
		return d.checkPage(page)
	})
	if err != nil {
		return 0, 0, err
	}
	return d.baseW, d.baseH, nil
}

func (d *Document) checkPage(page int) error {
	if page < 0 || page >= d.pages {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrPageRange, page, d.pages)
	}
	return nil
}

// ViewportSize returns the surface size Render centers a page in: the
// requested size, or the base size at vp.Scale where none is given.
func (d *Document) ViewportSize(vp Viewport) (w, h int) {
	w, h = vp.Width, vp.Height
	if w <= 0 {
		w = geometry.ViewportSize(vp.Scale, d.baseW)
	}
	if h <= 0 {
		h = geometry.ViewportSize(vp.Scale, d.baseH)
	}
	return w, h
}

// Render draws page onto s at the scale of vp, centered in the viewport.
// If the engine fails partway through the page, the placement is still
// returned along with the error and s keeps what was drawn.
func (d *Document) Render(page int, vp Viewport, s dvi.Surface) (Placement, error) {
	hs, vs, err := geometry.Shrink(d.params.HShrink, d.params.VShrink, vp.Scale)
	if err != nil {
		return Placement{}, fmt.Errorf("rendering page %d: %w", page, err)
	}
	if err := d.checkPage(page); err != nil {
		return Placement{}, err
	}

	var pl Placement
	start := time.Now()
	err = d.withExclusiveAccess(func(ctx *dvi.Context) error {
		if err := ctx.SetPage(page); err != nil {
			return err
		}
		ctx.SetShrink(hs, vs)
		w, h := ctx.PageSize()
		ch, cv := ctx.Conv()
		pl = Placement{
			HShrink:    hs,
			VShrink:    vs,
			PageWidth:  geometry.ProposedSize(w, ch),
			PageHeight: geometry.ProposedSize(h, cv),
		}
		pl.Width, pl.Height = d.ViewportSize(vp)
		pl.MarginX, pl.MarginY = geometry.Margins(pl.Width, pl.Height, pl.PageWidth, pl.PageHeight)
		ctx.SetMargins(pl.MarginX, pl.MarginY)
		return ctx.Render(s)
	})
	if err != nil {
		return pl, fmt.Errorf("rendering page %d: %w", page, err)
	}
	d.log.Debug("rendered page",
		"page", page,
		"scale", vp.Scale,
		"shrink", hs,
		"elapsed", time.Since(start))
	return pl, nil
}

// Close releases the engine context. Calls after the first return
// ErrClosed.
func (d *Document) Close() error {
	return d.withExclusiveAccess(func(ctx *dvi.Context) error {
		d.closed = true
		d.ctx = nil
		return ctx.Close()
	})
}

// withExclusiveAccess runs fn while holding the document lock. The lock is
// released on every return path, including a panic in fn.
func (d *Document) withExclusiveAccess(fn func(*dvi.Context) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return fn(d.ctx)
}
