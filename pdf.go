package main

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dennwc/gotrace"
)

// Pooled zlib writers to amortize internal hash table allocation.
var zlibWriterPool = sync.Pool{
	New: func() any {
		w, _ := zlib.NewWriterLevel(&bytes.Buffer{}, zlib.BestSpeed)
		return w
	},
}

func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) / 4)

	w := zlibWriterPool.Get().(*zlib.Writer)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		zlibWriterPool.Put(w)
		return nil, err
	}
	if err := w.Close(); err != nil {
		zlibWriterPool.Put(w)
		return nil, err
	}
	zlibWriterPool.Put(w)
	return buf.Bytes(), nil
}

// appendFloat4 appends a float formatted to 4 decimal places (like %.4f).
func appendFloat4(buf []byte, f float64) []byte {
	rounded := math.Round(f*10000) / 10000
	return strconv.AppendFloat(buf, rounded, 'f', 4, 64)
}

type pdfObject struct {
	id   int
	data []byte
}

// pdfPage is one rendered page ready to be written: traced color layers,
// a raster image, or both.
type pdfPage struct {
	bg            *color.RGBA // painted under everything when set
	layers        []colorLayer
	rgb           []byte // DeviceRGB samples, nil for none
	width, height int    // pixel size of rgb and of the traced coordinates
	widthPt       float64
	heightPt      float64
}

// buildPageObjects returns the page object, its content stream and its
// image XObject, numbered from objStart.
func buildPageObjects(p pdfPage, objStart int) ([]pdfObject, int) {
	content := make([]byte, 0, 16*1024)

	if p.bg != nil {
		content = appendRGB(content, p.bg.R, p.bg.G, p.bg.B)
		content = append(content, "0 0 "...)
		content = appendFloat4(content, p.widthPt)
		content = append(content, ' ')
		content = appendFloat4(content, p.heightPt)
		content = append(content, " re f\n"...)
	}

	if p.rgb != nil {
		content = append(content, "q\n"...)
		content = appendFloat4(content, p.widthPt)
		content = append(content, " 0 0 "...)
		content = appendFloat4(content, p.heightPt)
		content = append(content, " 0 0 cm\n/Im1 Do\nQ\n"...)
	}

	sx := p.widthPt / float64(max(p.width, 1))
	sy := p.heightPt / float64(max(p.height, 1))

	for _, cl := range p.layers {
		if len(cl.paths) == 0 {
			continue
		}
		content = append(content, "q\n"...)
		content = appendRGB(content, cl.r, cl.g, cl.b)
		for _, path := range cl.paths {
			content = appendPDFSubpathTree(content, path, sx, sy, p.heightPt)
		}
		content = append(content, "f*\nQ\n"...)
	}

	pageObjID := objStart
	contentsObjID := objStart + 1
	numObjects := 2

	var imageObjID int
	resources := "<< >>"
	if p.rgb != nil {
		imageObjID = objStart + numObjects
		numObjects++
		resources = fmt.Sprintf("<< /XObject << /Im1 %d 0 R >> >>", imageObjID)
	}

	pageObj := fmt.Sprintf(
		"%d 0 obj\n<< /Type /Page\n   /Parent 2 0 R\n   /MediaBox [0 0 %.2f %.2f]\n   /Contents %d 0 R\n   /Resources %s\n>>\nendobj\n",
		pageObjID, p.widthPt, p.heightPt, contentsObjID, resources,
	)

	var contentsObj []byte
	if compressed, err := compressZlib(content); err == nil && len(compressed) < len(content) {
		contentsObj = fmt.Appendf(nil, "%d 0 obj\n<< /Length %d /Filter /FlateDecode >>\nstream\n", contentsObjID, len(compressed))
		contentsObj = append(contentsObj, compressed...)
		contentsObj = append(contentsObj, "\nendstream\nendobj\n"...)
	} else {
		contentsObj = fmt.Appendf(nil, "%d 0 obj\n<< /Length %d >>\nstream\n%sendstream\nendobj\n", contentsObjID, len(content), content)
	}

	objects := []pdfObject{
		{id: pageObjID, data: []byte(pageObj)},
		{id: contentsObjID, data: contentsObj},
	}

	if p.rgb != nil {
		objects = append(objects, pdfObject{id: imageObjID, data: buildImageObject(imageObjID, p.rgb, p.width, p.height)})
	}
	return objects, numObjects
}

// appendRGB appends a nonstroking DeviceRGB color operator.
func appendRGB(buf []byte, r, g, b byte) []byte {
	buf = appendFloat4(buf, float64(r)/255.0)
	buf = append(buf, ' ')
	buf = appendFloat4(buf, float64(g)/255.0)
	buf = append(buf, ' ')
	buf = appendFloat4(buf, float64(b)/255.0)
	return append(buf, " rg\n"...)
}

func buildImageObject(id int, rgb []byte, width, height int) []byte {
	data := rgb
	filter := " /Filter /FlateDecode"
	if compressed, err := compressZlib(rgb); err == nil {
		data = compressed
	} else {
		filter = ""
	}

	header := fmt.Sprintf(
		"%d 0 obj\n<< /Type /XObject\n   /Subtype /Image\n   /Width %d\n   /Height %d\n   /ColorSpace /DeviceRGB\n   /BitsPerComponent 8\n  %s\n   /Length %d >>\nstream\n",
		id, width, height, filter, len(data),
	)

	var obj bytes.Buffer
	obj.Grow(len(header) + len(data) + 30)
	obj.WriteString(header)
	obj.Write(data)
	obj.WriteString("\nendstream\nendobj\n")
	return obj.Bytes()
}

// appendPDFSubpath appends a single traced path as PDF subpath operators to buf.
func appendPDFSubpath(buf []byte, p gotrace.Path, sx, sy, pageHeightPt float64) []byte {
	c := p.Curve
	if len(c) == 0 {
		return buf
	}

	last := c[len(c)-1]
	buf = appendPoint(buf, last.Pnt[2], sx, sy, pageHeightPt)
	buf = append(buf, " m\n"...)

	for _, seg := range c {
		switch seg.Type {
		case gotrace.TypeBezier:
			buf = appendPoint(buf, seg.Pnt[0], sx, sy, pageHeightPt)
			buf = append(buf, ' ')
			buf = appendPoint(buf, seg.Pnt[1], sx, sy, pageHeightPt)
			buf = append(buf, ' ')
			buf = appendPoint(buf, seg.Pnt[2], sx, sy, pageHeightPt)
			buf = append(buf, " c\n"...)
		case gotrace.TypeCorner:
			buf = appendPoint(buf, seg.Pnt[1], sx, sy, pageHeightPt)
			buf = append(buf, " l\n"...)
			buf = appendPoint(buf, seg.Pnt[2], sx, sy, pageHeightPt)
			buf = append(buf, " l\n"...)
		}
	}

	buf = append(buf, "h\n"...)
	return buf
}

// appendPoint converts a traced point from image pixels (top-left origin)
// to PDF points (bottom-left origin).
func appendPoint(buf []byte, pt gotrace.Point, sx, sy, pageHeightPt float64) []byte {
	buf = appendFloat4(buf, pt.X*sx)
	buf = append(buf, ' ')
	return appendFloat4(buf, pageHeightPt-pt.Y*sy)
}

// appendPDFSubpathTree recursively appends a path and all its children (holes, islands)
// so the even-odd fill rule (f*) correctly cuts out enclosed counters.
func appendPDFSubpathTree(buf []byte, p gotrace.Path, sx, sy, pageHeightPt float64) []byte {
	buf = appendPDFSubpath(buf, p, sx, sy, pageHeightPt)
	for _, child := range p.Childs {
		buf = appendPDFSubpathTree(buf, child, sx, sy, pageHeightPt)
	}
	return buf
}

// pdfWriter wraps a buffered writer with offset tracking for PDF generation.
type pdfWriter struct {
	w      *bufio.Writer
	offset uint64
}

func (pw *pdfWriter) write(data []byte) {
	pw.w.Write(data)
	pw.offset += uint64(len(data))
}

func (pw *pdfWriter) writeStr(s string) {
	pw.w.WriteString(s)
	pw.offset += uint64(len(s))
}

func (pw *pdfWriter) writeHeader() {
	pw.write([]byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"))
}

func (pw *pdfWriter) writeXrefTrailer(xrefOffsets []uint64, totalObjects, infoID int) {
	xrefStart := pw.offset
	pw.writeStr("xref\n")
	pw.writeStr(fmt.Sprintf("0 %d\n", totalObjects+1))
	pw.writeStr("0000000000 65535 f \n")
	for _, off := range xrefOffsets {
		fmt.Fprintf(pw.w, "%010d 00000 n \n", off)
		pw.offset += 20
	}
	pw.writeStr("trailer\n")
	pw.writeStr(fmt.Sprintf("<< /Size %d /Root 1 0 R /Info %d 0 R >>\n", totalObjects+1, infoID))
	pw.writeStr("startxref\n")
	pw.writeStr(fmt.Sprintf("%d\n", xrefStart))
	pw.writeStr("%%EOF\n")
}

// writePDF writes pages to w as a complete PDF document titled title.
func writePDF(w io.Writer, pages []pdfPage, title string) error {
	nextObjID := 3
	pageObjIDs := make([]int, len(pages))
	chunks := make([][]pdfObject, len(pages))
	for i, p := range pages {
		pageObjIDs[i] = nextObjID
		objs, n := buildPageObjects(p, nextObjID)
		chunks[i] = objs
		nextObjID += n
	}
	infoID := nextObjID
	totalObjects := infoID

	pw := &pdfWriter{w: bufio.NewWriter(w)}
	xrefOffsets := make([]uint64, totalObjects)

	pw.writeHeader()

	xrefOffsets[0] = pw.offset
	pw.write([]byte("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n"))

	xrefOffsets[1] = pw.offset
	var pageRefs strings.Builder
	for i := range pages {
		if i > 0 {
			pageRefs.WriteByte(' ')
		}
		fmt.Fprintf(&pageRefs, "%d 0 R", pageObjIDs[i])
	}
	pw.writeStr(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [ %s ] /Count %d >>\nendobj\n", pageRefs.String(), len(pages)))

	for _, objs := range chunks {
		for _, obj := range objs {
			xrefOffsets[obj.id-1] = pw.offset
			pw.write(obj.data)
		}
	}

	xrefOffsets[infoID-1] = pw.offset
	pw.writeStr(fmt.Sprintf("%d 0 obj\n<< /Title %s /Producer (GoDVI) >>\nendobj\n", infoID, pdfString(title)))

	pw.writeXrefTrailer(xrefOffsets, totalObjects, infoID)
	return pw.w.Flush()
}

// writePDFFile writes pages to path.
func writePDFFile(path string, pages []pdfPage, title string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writePDF(f, pages, title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// pdfString quotes s as a PDF literal string.
func pdfString(s string) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(')')
	return b.String()
}
