package dvi

import (
	"fmt"
	"image/color"
	"strings"
)

// Flags is a bitmask of rendering options.
type Flags uint32

const (
	// FlagAntialiased shrinks glyphs with intermediate color levels
	// instead of thresholding them.
	FlagAntialiased Flags = 1 << iota
)

// Orientation selects how the page is laid onto the surface.
type Orientation int

const (
	OrientTBLR  Orientation = iota // top to bottom, left to right
	OrientTBRL                     // mirrored horizontally
	OrientBTLR                     // mirrored vertically
	OrientBTRL                     // rotated 180 degrees
	OrientRP90                     // rotated 90 degrees clockwise
	OrientRM90                     // rotated 90 degrees counter-clockwise
	OrientIRP90                    // transposed
	OrientIRM90                    // anti-transposed
)

var orientationNames = []string{"tblr", "tbrl", "btlr", "btrl", "rp90", "rm90", "irp90", "irm90"}

func (o Orientation) String() string {
	if o >= 0 && int(o) < len(orientationNames) {
		return orientationNames[o]
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// ParseOrientation parses the lower-case names used by String.
func ParseOrientation(s string) (Orientation, error) {
	for i, name := range orientationNames {
		if strings.EqualFold(s, name) {
			return Orientation(i), nil
		}
	}
	return OrientTBLR, fmt.Errorf("unknown orientation %q", s)
}

// Rotated reports whether the page width and height are swapped.
func (o Orientation) Rotated() bool {
	return o >= OrientRP90
}

// Params are the rendering parameters fixed when a document is opened.
type Params struct {
	DPI         int
	VDPI        int
	Mag         float64 // applied on top of the magnification in the file
	Density     int     // percentage of a shrunk pixel that must be inked
	Gamma       float64
	Flags       Flags
	HDrift      int // maximum pixel drift; negative picks a default from the resolution
	VDrift      int
	HShrink     int
	VShrink     int
	Orientation Orientation
	FG          color.RGBA
	BG          color.RGBA
}

const (
	DefaultDPI     = 600
	DefaultDensity = 50
	DefaultGamma   = 1.0
)

// DefaultParams returns the parameters used when a document is opened
// without explicit settings.
func DefaultParams() Params {
	return Params{
		DPI:         DefaultDPI,
		VDPI:        DefaultDPI,
		Mag:         1.0,
		Density:     DefaultDensity,
		Gamma:       DefaultGamma,
		Flags:       FlagAntialiased,
		HDrift:      -1,
		VDrift:      -1,
		HShrink:     ShrinkFromDPI(DefaultDPI),
		VShrink:     ShrinkFromDPI(DefaultDPI),
		Orientation: OrientTBLR,
		FG:          color.RGBA{0x00, 0x00, 0x00, 0xFF},
		BG:          color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
	}
}

// ShrinkFromDPI is the baseline shrink that brings dpi down to screen
// resolution.
func ShrinkFromDPI(dpi int) int {
	return max(1, dpi/75)
}

// Antialiased reports whether FlagAntialiased is set.
func (p Params) Antialiased() bool {
	return p.Flags&FlagAntialiased != 0
}

func (p Params) validate() error {
	switch {
	case p.DPI <= 0 || p.VDPI <= 0:
		return fmt.Errorf("resolution must be positive, got %dx%d", p.DPI, p.VDPI)
	case p.Mag <= 0:
		return fmt.Errorf("magnification must be positive, got %v", p.Mag)
	case p.HShrink <= 0 || p.VShrink <= 0:
		return fmt.Errorf("shrink must be positive, got %dx%d", p.HShrink, p.VShrink)
	}
	return nil
}

func defaultDrift(dpi int) int {
	switch {
	case dpi > 1200:
		return 3
	case dpi > 600:
		return 2
	}
	return 1
}
