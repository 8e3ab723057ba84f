package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidUnit = errors.New("invalid unit")

// Inches per unit. Factors follow the TeX definitions.
var unitFactors = map[string]float64{
	"in": 1,
	"cm": 1 / 2.54,
	"mm": 1 / 25.4,
	"pt": 1 / 72.27,
	"bp": 1 / 72.0,
	"pc": 12 / 72.27,
	"dd": (1238.0 / 1157.0) / 72.27,
	"cc": 12 * (1238.0 / 1157.0) / 72.27,
	"sp": 1 / (72.27 * 65536),
}

// UnitToPixels converts a dimension such as "1in" or "2.5cm" into pixels at
// dpi. The "px" unit is taken as pixels already. A bare number is inches.
func UnitToPixels(dpi int, spec string) (int, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return 0, fmt.Errorf("%w: empty dimension", ErrInvalidUnit)
	}
	num, unit := splitUnit(s)
	val, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, spec)
	}
	if unit == "px" {
		return int(val + 0.5), nil
	}
	if unit == "" {
		unit = "in"
	}
	factor, ok := unitFactors[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidUnit, unit, spec)
	}
	return int(factor*val*float64(dpi) + 0.5), nil
}

func splitUnit(s string) (num, unit string) {
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if c < 'a' || c > 'z' {
			break
		}
		i--
	}
	return strings.TrimSpace(s[:i]), s[i:]
}
