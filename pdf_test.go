package main

import (
	"bytes"
	"image"
	"regexp"
	"strconv"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePages(t *testing.T) []pdfPage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	fill(img, img.Bounds(), white)
	fill(img, image.Rect(2, 2, 8, 8), red)
	layers, err := traceColorLayers(img, white)
	require.NoError(t, err)
	return []pdfPage{
		{layers: layers, width: 20, height: 10, widthPt: 144, heightPt: 72, bg: &gray},
		{rgb: rgbBytes(img), width: 20, height: 10, widthPt: 144, heightPt: 72},
	}
}

func TestWritePDFStructure(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePDF(&buf, samplePages(t), "notes (draft)"))
	data := buf.Bytes()

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.7\n")))
	assert.True(t, bytes.HasSuffix(data, []byte("%%EOF\n")))
	assert.Contains(t, buf.String(), "/Count 2")
	assert.Contains(t, buf.String(), `/Title (notes \(draft\))`)
	assert.Contains(t, buf.String(), "/MediaBox [0 0 144.00 72.00]")
	assert.Contains(t, buf.String(), "/XObject << /Im1")

	m := regexp.MustCompile(`startxref\n(\d+)\n`).FindSubmatch(data)
	require.NotNil(t, m)
	off, err := strconv.Atoi(string(m[1]))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data[off:], []byte("xref\n")))

	// every xref entry points at the object it names
	entries := regexp.MustCompile(`(\d{10}) 00000 n `).FindAllSubmatch(data[off:], -1)
	require.NotEmpty(t, entries)
	for i, e := range entries {
		at, err := strconv.Atoi(string(e[1]))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data[at:], []byte(strconv.Itoa(i+1)+" 0 obj")), "object %d", i+1)
	}

	n, err := api.PageCount(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPDFString(t *testing.T) {
	assert.Equal(t, `(a\(b\)c\\)`, pdfString(`a(b)c\`))
	assert.Equal(t, "(caf?)", pdfString("café"))
}

func TestPageCropBox(t *testing.T) {
	pc := pageCrop{
		content:  image.Rect(10, 5, 20, 15),
		sx:       0.5,
		sy:       0.5,
		widthPt:  50,
		heightPt: 40,
	}
	r := pc.box()
	assert.InDelta(t, 3, r.LL.X, 1e-9)
	assert.InDelta(t, 40-7.5-2, r.LL.Y, 1e-9)
	assert.InDelta(t, 12, r.UR.X, 1e-9)
	assert.InDelta(t, 40-2.5+2, r.UR.Y, 1e-9)

	pc.content = image.Rect(0, 0, 100, 80)
	r = pc.box()
	assert.Zero(t, r.LL.X)
	assert.Zero(t, r.LL.Y)
	assert.Equal(t, 50.0, r.UR.X)
	assert.Equal(t, 40.0, r.UR.Y)
}
