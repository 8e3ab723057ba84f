// Package special interprets the "color" specials embedded in DVI files.
//
// A color special is either "pop" or "push <model> <values...>" with model
// one of rgb, hsb, cmyk or gray. Specials that cannot be understood are
// ignored so that page rendering always completes.
package special

import (
	"image/color"
	"math"
	"strings"
)

// ColorStack is the color stack of the rendering engine.
type ColorStack interface {
	PushColor(fg, bg color.RGBA)
	PopColor()
}

// Op identifies the operation encoded by a color special.
type Op int

const (
	OpUnknown Op = iota
	OpPop
	OpPushRGB
	OpPushHSB
	OpPushCMYK
	OpPushGray
)

func (op Op) String() string {
	switch op {
	case OpPop:
		return "pop"
	case OpPushRGB:
		return "push rgb"
	case OpPushHSB:
		return "push hsb"
	case OpPushCMYK:
		return "push cmyk"
	case OpPushGray:
		return "push gray"
	}
	return "unknown"
}

// Command is a parsed color special. Values holds the components in the
// order of the color model; unused trailing entries are zero.
type Command struct {
	Op     Op
	Values [4]float64
	N      int // number of components read
}

var models = map[string]struct {
	op Op
	n  int
}{
	"rgb":  {OpPushRGB, 3},
	"hsb":  {OpPushHSB, 3},
	"cmyk": {OpPushCMYK, 4},
	"gray": {OpPushGray, 1},
}

// Parse parses the argument of a color special.
func Parse(arg string) Command {
	if strings.HasPrefix(arg, "pop") {
		return Command{Op: OpPop}
	}
	rest, ok := strings.CutPrefix(arg, "push")
	if !ok {
		return Command{}
	}
	name, rest := nextToken(rest)
	m, ok := models[name]
	if !ok {
		return Command{}
	}
	cmd := Command{Op: m.op}
	cmd.N = parseNumbers(rest, cmd.Values[:m.n])
	return cmd
}

// Color returns the color pushed by c. The boolean is false when c does
// not push a color, or when its values cannot be converted.
func (c Command) Color() (color.RGBA, bool) {
	v := c.Values
	switch c.Op {
	case OpPushRGB:
		return opaque(roundByte(v[0]), roundByte(v[1]), roundByte(v[2])), true
	case OpPushHSB:
		return hsbToRGB(v[0], v[1], v[2])
	case OpPushCMYK:
		r := clamp01(1 - v[0] - v[3])
		g := clamp01(1 - v[1] - v[3])
		b := clamp01(1 - v[2] - v[3])
		return opaque(halfUpByte(r), halfUpByte(g), halfUpByte(b)), true
	case OpPushGray:
		y := halfUpByte(clamp01(v[0]))
		return opaque(y, y, y), true
	}
	return color.RGBA{}, false
}

// Interpret parses arg and applies it to stack. Pushed colors are paired
// with bg as their background. The parsed command is returned so callers
// can report specials that had no effect.
func Interpret(stack ColorStack, bg color.RGBA, arg string) Command {
	cmd := Parse(arg)
	switch cmd.Op {
	case OpPop:
		stack.PopColor()
	case OpUnknown:
	default:
		fg, ok := cmd.Color()
		if !ok {
			return Command{}
		}
		stack.PushColor(fg, bg)
	}
	return cmd
}

func hsbToRGB(h, s, v float64) (color.RGBA, bool) {
	s /= 100
	v /= 100
	h /= 60
	if math.IsNaN(h) {
		return color.RGBA{}, false
	}
	fi := math.Floor(h)
	f := h - fi
	if fi == 6 {
		fi = 0
	} else if fi > 6 || fi < 0 {
		return color.RGBA{}, false
	}
	i := int(fi)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch i {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return opaque(floorByte(r), floorByte(g), floorByte(b)), true
}

func opaque(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}

func toByte(x float64) uint8 {
	return uint8(math.Min(math.Max(x, 0), 255))
}

func roundByte(x float64) uint8 {
	return toByte(math.Round(clamp01(x) * 255))
}

func floorByte(x float64) uint8 {
	return toByte(math.Floor(clamp01(x) * 255))
}

func halfUpByte(x float64) uint8 {
	return toByte(x*255 + 0.5)
}
