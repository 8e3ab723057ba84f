package dvi

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Glyph is a character bitmap at the full resolution of the document.
type Glyph struct {
	Width  int32       // advance in DVI units
	Mask   *image.Alpha
	Origin image.Point // reference point within Mask
}

// FontSource supplies glyphs for the fonts defined in a DVI file. Locating
// and loading font files is the job of the implementation; the engine only
// draws what it is given. Glyph reports false for unknown characters.
type FontSource interface {
	Glyph(font *FontDef, code int32, dpi int) (*Glyph, bool)
}

// shrinkGlyph reduces g by the shrink factors and colors it. With
// antialiasing the coverage of each target pixel selects a palette entry;
// otherwise pixels at least density percent covered are set to fg.
func shrinkGlyph(g *Glyph, hs, vs int, p *Params, fg, bg color.RGBA) (*image.Paletted, image.Point) {
	src := g.Mask.Bounds()
	w := (src.Dx() + hs - 1) / hs
	h := (src.Dy() + vs - 1) / vs
	origin := image.Pt(g.Origin.X/hs, g.Origin.Y/vs)
	if w == 0 || h == 0 {
		return nil, origin
	}

	cov := g.Mask
	if hs != 1 || vs != 1 {
		cov = image.NewAlpha(image.Rect(0, 0, w, h))
		var scaler xdraw.Interpolator = xdraw.ApproxBiLinear
		if hs*vs > 4 {
			scaler = xdraw.BiLinear
		}
		scaler.Scale(cov, cov.Bounds(), g.Mask, src, xdraw.Src, nil)
	}

	var pal color.Palette
	if p.Antialiased() {
		pal = antialiasPalette(fg, bg, antialiasLevels, p.Gamma)
	} else {
		pal = thresholdPalette(fg)
	}
	out := image.NewPaletted(image.Rect(0, 0, w, h), pal)
	threshold := uint8(min(max(p.Density, 1), 100) * 255 / 100)
	b := cov.Bounds()
	for y := range h {
		for x := range w {
			a := cov.AlphaAt(b.Min.X+x, b.Min.Y+y).A
			if a == 0 {
				continue
			}
			var idx uint8
			if p.Antialiased() {
				idx = uint8((int(a)*(antialiasLevels-1) + 127) / 255)
			} else if a >= threshold {
				idx = 1
			}
			out.Pix[y*out.Stride+x] = idx
		}
	}
	return out, origin
}
