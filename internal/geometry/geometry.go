// Package geometry maps a requested display scale onto the integer shrink
// factors of the DVI engine and centers the rendered page in a viewport.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidScale is returned when a scale is not a finite positive number.
var ErrInvalidScale = errors.New("invalid scale")

// BaseSize returns the page size in output pixels at the baseline shrink:
// the intrinsic DVI page size converted to pixels plus a margin on either
// side. The margin term uses integer division.
func BaseSize(pageW, pageH int, convH, convV float64, marginH, marginV, shrinkH, shrinkV int) (w, h float64) {
	shrinkH = max(shrinkH, 1)
	shrinkV = max(shrinkV, 1)
	w = float64(pageW)*convH + float64(2*marginH/shrinkH)
	h = float64(pageH)*convV + float64(2*marginV/shrinkV)
	return max(w, 0), max(h, 0)
}

// Shrink computes the shrink factors for scale from the baseline shrink
// factors. The result always rounds toward more shrink, so the rendered
// bitmap never exceeds the requested size.
func Shrink(baseH, baseV int, scale float64) (h, v int, err error) {
	if err := CheckScale(scale); err != nil {
		return 0, 0, err
	}
	return shrinkOne(baseH, scale), shrinkOne(baseV, scale), nil
}

func shrinkOne(base int, scale float64) int {
	base = max(base, 1)
	q := math.Floor(float64(base-1) / scale)
	if q >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(q) + 1
}

// CheckScale reports whether scale can be used for rendering.
func CheckScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}
	return nil
}

// Margins returns the offsets that center a page of the proposed size in the
// viewport. A dimension where the page does not fit gets no margin.
func Margins(viewportW, viewportH, proposedW, proposedH int) (x, y int) {
	return margin(viewportW, proposedW), margin(viewportH, proposedH)
}

func margin(viewport, proposed int) int {
	if viewport >= proposed {
		return (viewport - proposed) / 2
	}
	return 0
}

// ViewportSize is the pixel extent of a base dimension displayed at scale.
func ViewportSize(scale, base float64) int {
	return int(math.Ceil(scale * base))
}

// ProposedSize is the natural pixel extent of an intrinsic DVI dimension at
// the conversion factor of the current shrink.
func ProposedSize(intrinsic int, conv float64) int {
	return max(int(float64(intrinsic)*conv), 0)
}
