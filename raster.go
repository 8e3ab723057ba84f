package main

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/makeworld-the-better-one/dither/v2"
	xdraw "golang.org/x/image/draw"
)

// reduceDepth converts img for a PNG of the given bit depth. Depths below
// 8 are dithered with Floyd-Steinberg onto evenly spaced gray levels; 8 is
// plain grayscale; 0 keeps full color.
func reduceDepth(img image.Image, bitDepth int) image.Image {
	switch {
	case bitDepth == 0:
		return img
	case bitDepth >= 8:
		gray := image.NewGray(img.Bounds())
		xdraw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, xdraw.Src)
		return gray
	}
	ditherer := dither.NewDitherer(grayscalePalette(bitDepth))
	ditherer.Matrix = dither.FloydSteinberg
	return ditherer.Dither(img)
}

// grayscalePalette creates 2^bitDepth evenly distributed gray levels.
func grayscalePalette(bitDepth int) color.Palette {
	levels := 1 << bitDepth
	palette := make(color.Palette, levels)
	for i := range levels {
		palette[i] = color.Gray{Y: uint8(i * 255 / (levels - 1))}
	}
	return palette
}

func encodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

func writePNGFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rgbBytes returns the DeviceRGB samples of img, row by row.
func rgbBytes(img *image.RGBA) []byte {
	b := img.Bounds()
	rgb := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := range b.Dx() {
			off := row + x*4
			rgb = append(rgb, img.Pix[off], img.Pix[off+1], img.Pix[off+2])
		}
	}
	return rgb
}

// contentBounds returns the smallest rectangle holding every pixel that
// differs from bg. It is empty for a blank page.
func contentBounds(img *image.RGBA, bg color.RGBA) image.Rectangle {
	b := img.Bounds()
	var r image.Rectangle
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := range b.Dx() {
			off := row + x*4
			if img.Pix[off] == bg.R && img.Pix[off+1] == bg.G && img.Pix[off+2] == bg.B {
				continue
			}
			px := image.Rect(b.Min.X+x, y, b.Min.X+x+1, y+1)
			if r.Empty() {
				r = px
			} else {
				r = r.Union(px)
			}
		}
	}
	return r
}
