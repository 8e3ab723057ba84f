package main

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	"slices"

	"github.com/dennwc/gotrace"
)

type colorLayer struct {
	r, g, b byte
	paths   []gotrace.Path
}

const (
	// maxInks bounds the number of traced color layers per page.
	maxInks = 16
	// blendTolerance is how far, in RGB units, a color may lie from the
	// line between the background and an ink and still count as an
	// antialiased shade of that ink.
	blendTolerance = 24
)

// ink is a color drawn on the page, with the offset from the background
// used to project other colors onto it.
type ink struct {
	c          color.RGBA
	dr, dg, db float64
	len2       float64
}

func newInk(c, bg color.RGBA) ink {
	k := ink{
		c:  c,
		dr: float64(c.R) - float64(bg.R),
		dg: float64(c.G) - float64(bg.G),
		db: float64(c.B) - float64(bg.B),
	}
	k.len2 = k.dr*k.dr + k.dg*k.dg + k.db*k.db
	return k
}

// project returns how far c lies along the blend from bg to the ink, and
// its squared distance from that blend.
func (k ink) project(c, bg color.RGBA) (t, dist2 float64) {
	pr := float64(c.R) - float64(bg.R)
	pg := float64(c.G) - float64(bg.G)
	pb := float64(c.B) - float64(bg.B)
	if k.len2 == 0 {
		return 0, pr*pr + pg*pg + pb*pb
	}
	t = (pr*k.dr + pg*k.dg + pb*k.db) / k.len2
	tc := min(max(t, 0), 1)
	er, eg, eb := pr-tc*k.dr, pg-tc*k.dg, pb-tc*k.db
	return t, er*er + eg*eg + eb*eb
}

// findInks picks the colors to trace. Colors are taken by frequency; a
// color that is a blend of the background and an ink already taken is an
// antialiasing shade and does not get a layer of its own.
func findInks(counts map[color.RGBA]int, bg color.RGBA) []ink {
	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	slices.SortFunc(colors, func(a, b color.RGBA) int {
		if n := cmp.Compare(counts[b], counts[a]); n != 0 {
			return n
		}
		return cmp.Compare(packRGB(a), packRGB(b))
	})

	var inks []ink
	for _, c := range colors {
		if len(inks) == maxInks {
			break
		}
		shade := false
		for _, k := range inks {
			if t, d := k.project(c, bg); t >= 0 && t <= 1 && d <= blendTolerance*blendTolerance {
				shade = true
				break
			}
		}
		if !shade {
			inks = append(inks, newInk(c, bg))
		}
	}
	return inks
}

func packRGB(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func opaqueAt(img *image.RGBA, off int) color.RGBA {
	return color.RGBA{img.Pix[off], img.Pix[off+1], img.Pix[off+2], 0xFF}
}

// traceColorLayers splits a rendered page into one mask per ink and traces
// each mask into vector paths. A pixel joins the mask of the nearest ink
// when it is at least half way from the background to it.
func traceColorLayers(img *image.RGBA, bg color.RGBA) ([]colorLayer, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	bg.A = 0xFF

	counts := make(map[color.RGBA]int)
	for y := range height {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := range width {
			if c := opaqueAt(img, row+x*4); c != bg {
				counts[c]++
			}
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}
	inks := findInks(counts, bg)

	masks := make([]*image.Gray, len(inks))
	for y := range height {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := range width {
			c := opaqueAt(img, row+x*4)
			if c == bg {
				continue
			}
			best, bestT, bestD := -1, 0.0, 0.0
			for i, k := range inks {
				t, d := k.project(c, bg)
				if best < 0 || d < bestD {
					best, bestT, bestD = i, t, d
				}
			}
			if best < 0 || bestT < 0.5 {
				continue
			}
			if masks[best] == nil {
				masks[best] = image.NewGray(image.Rect(0, 0, width, height))
				for j := range masks[best].Pix {
					masks[best].Pix[j] = 0xFF
				}
			}
			masks[best].Pix[y*width+x] = 0x00
		}
	}

	params := gotrace.Defaults
	params.TurdSize = 0

	var layers []colorLayer
	for i, mask := range masks {
		if mask == nil {
			continue
		}
		bm := gotrace.NewBitmapFromImage(mask, func(x, y int, cl color.Color) bool {
			v, _, _, _ := cl.RGBA()
			return v < 0x8000
		})
		paths, err := gotrace.Trace(bm, &params)
		if err != nil {
			return nil, fmt.Errorf("tracing ink %d: %w", i, err)
		}
		if len(paths) == 0 {
			continue
		}
		c := inks[i].c
		layers = append(layers, colorLayer{r: c.R, g: c.G, b: c.B, paths: paths})
	}
	return layers, nil
}
