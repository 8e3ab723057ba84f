package dvi

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Surface is the drawing sink a page is rendered onto.
type Surface interface {
	Bounds() image.Rectangle
	FillRect(r image.Rectangle, c color.RGBA)
	// DrawImage composites img over r, aligning sp in img with r.Min.
	DrawImage(r image.Rectangle, img image.Image, sp image.Point)
}

// ImageSurface draws into an in-memory RGBA image.
type ImageSurface struct {
	Img *image.RGBA
}

// NewImageSurface returns a surface of the given size filled with bg.
func NewImageSurface(width, height int, bg color.RGBA) *ImageSurface {
	img := image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)
	return &ImageSurface{Img: img}
}

func (s *ImageSurface) Bounds() image.Rectangle {
	return s.Img.Bounds()
}

func (s *ImageSurface) FillRect(r image.Rectangle, c color.RGBA) {
	op := xdraw.Over
	if c.A == 0xFF {
		op = xdraw.Src
	}
	xdraw.Draw(s.Img, r.Intersect(s.Img.Bounds()), image.NewUniform(c), image.Point{}, op)
}

func (s *ImageSurface) DrawImage(r image.Rectangle, img image.Image, sp image.Point) {
	clipped := r.Intersect(s.Img.Bounds())
	if clipped.Empty() {
		return
	}
	sp = sp.Add(clipped.Min.Sub(r.Min))
	xdraw.Draw(s.Img, clipped, img, sp, xdraw.Over)
}
