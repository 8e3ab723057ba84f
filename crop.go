package main

import (
	"fmt"
	"image"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// cropPadding is kept around the inked area of a cropped page, in points.
const cropPadding = 2.0

// pageCrop is the inked area of one written PDF page.
type pageCrop struct {
	page     int // 1-based page number in the written file
	content  image.Rectangle
	sx, sy   float64 // points per pixel
	widthPt  float64
	heightPt float64
}

// box converts the inked pixel area to a PDF rectangle (bottom-left origin),
// clamped to the page.
func (pc pageCrop) box() *types.Rectangle {
	llx := max(float64(pc.content.Min.X)*pc.sx-cropPadding, 0)
	urx := min(float64(pc.content.Max.X)*pc.sx+cropPadding, pc.widthPt)
	lly := max(pc.heightPt-float64(pc.content.Max.Y)*pc.sy-cropPadding, 0)
	ury := min(pc.heightPt-float64(pc.content.Min.Y)*pc.sy+cropPadding, pc.heightPt)
	return types.NewRectangle(llx, lly, urx, ury)
}

// cropPDFMargins sets the CropBox of each page in crops to its inked area.
// Blank pages keep their MediaBox.
func cropPDFMargins(path string, crops []pageCrop) error {
	for _, pc := range crops {
		if pc.content.Empty() {
			continue
		}
		pb := &model.PageBoundaries{
			Crop: &model.Box{Rect: pc.box()},
		}
		if err := api.AddBoxesFile(path, "", []string{strconv.Itoa(pc.page)}, pb, nil); err != nil {
			return fmt.Errorf("cropping page %d: %w", pc.page, err)
		}
	}
	return nil
}
