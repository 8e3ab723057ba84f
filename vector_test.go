package main

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	black = color.RGBA{0, 0, 0, 0xFF}
	red   = color.RGBA{0xFF, 0, 0, 0xFF}
	gray  = color.RGBA{0x80, 0x80, 0x80, 0xFF}
)

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func TestFindInksSkipsAntialiasShades(t *testing.T) {
	counts := map[color.RGBA]int{
		black: 100,
		gray:  40,
		red:   60,
		// halfway between white and red
		{0xFF, 0x80, 0x80, 0xFF}: 5,
	}
	inks := findInks(counts, white)
	require.Len(t, inks, 2)
	assert.Equal(t, black, inks[0].c)
	assert.Equal(t, red, inks[1].c)
}

func TestFindInksBoundsLayerCount(t *testing.T) {
	counts := make(map[color.RGBA]int)
	levels := []uint8{0, 64, 128, 192, 255}
	n := 0
	for _, r := range levels {
		for _, g := range levels {
			n++
			counts[color.RGBA{r, g, 0, 0xFF}] = n
		}
	}
	assert.Len(t, findInks(counts, white), maxInks)
}

func TestTraceColorLayers(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	fill(img, img.Bounds(), white)
	fill(img, image.Rect(2, 2, 14, 14), black)
	fill(img, image.Rect(20, 10, 28, 18), red)
	// antialiased edge of the black square
	fill(img, image.Rect(14, 2, 15, 14), gray)

	layers, err := traceColorLayers(img, white)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, [3]byte{0, 0, 0}, [3]byte{layers[0].r, layers[0].g, layers[0].b})
	assert.Equal(t, [3]byte{0xFF, 0, 0}, [3]byte{layers[1].r, layers[1].g, layers[1].b})
	for _, l := range layers {
		assert.NotEmpty(t, l.paths)
	}
}

func TestTraceColorLayersBlankPage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	fill(img, img.Bounds(), white)
	layers, err := traceColorLayers(img, white)
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestTraceColorLayersSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 30))
	fill(img, img.Bounds(), white)
	fill(img, image.Rect(0, 0, 10, 10), red)
	fill(img, image.Rect(15, 15, 25, 25), black)

	sub := img.SubImage(image.Rect(12, 12, 30, 30)).(*image.RGBA)
	layers, err := traceColorLayers(sub, white)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, byte(0), layers[0].r)
}
