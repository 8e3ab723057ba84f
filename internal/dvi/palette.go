package dvi

import (
	"image/color"
	"math"
)

const antialiasLevels = 16

// antialiasPalette builds the colors used for partially covered pixels of a
// shrunk glyph by interpolating from bg to fg. Entry 0 is transparent so
// uncovered pixels leave the surface untouched. gamma bends the ramp: values
// above 1 darken light coverage, negative values use the mirrored curve.
func antialiasPalette(fg, bg color.RGBA, levels int, gamma float64) color.Palette {
	p := make(color.Palette, levels)
	p[0] = color.RGBA{}
	last := float64(levels - 1)
	for i := 1; i < levels; i++ {
		var f float64
		switch {
		case gamma > 0:
			f = math.Pow(float64(i)/last, 1/gamma)
		case gamma < 0:
			f = 1 - math.Pow(float64(levels-1-i)/last, -gamma)
		default:
			f = 1
		}
		p[i] = color.RGBA{
			R: lerp(bg.R, fg.R, f),
			G: lerp(bg.G, fg.G, f),
			B: lerp(bg.B, fg.B, f),
			A: 0xFF,
		}
	}
	return p
}

// thresholdPalette maps covered pixels to fg and everything else to
// transparent.
func thresholdPalette(fg color.RGBA) color.Palette {
	return color.Palette{color.RGBA{}, fg}
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(float64(a) + f*float64(int(b)-int(a)) + 0.5)
}
