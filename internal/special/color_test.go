package special

import (
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type stackEntry struct {
	FG, BG color.RGBA
}

type fakeStack struct {
	def     color.RGBA
	entries []stackEntry
	pops    int
}

func (s *fakeStack) PushColor(fg, bg color.RGBA) {
	s.entries = append(s.entries, stackEntry{fg, bg})
}

func (s *fakeStack) PopColor() {
	s.pops++
	if len(s.entries) > 0 {
		s.entries = s.entries[:len(s.entries)-1]
	}
}

func (s *fakeStack) top() color.RGBA {
	if len(s.entries) == 0 {
		return s.def
	}
	return s.entries[len(s.entries)-1].FG
}

var white = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}

func rgba(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

func TestPushColors(t *testing.T) {
	tests := []struct {
		arg  string
		want color.RGBA
	}{
		{"push rgb 1.0 0.0 0.0", rgba(255, 0, 0)},
		{"push rgb 0 0.5 1", rgba(0, 128, 255)},
		{"push rgb 2 -1 0.2", rgba(255, 0, 51)},
		{"push gray 0.5", rgba(128, 128, 128)},
		{"push gray 0", rgba(0, 0, 0)},
		{"push gray 1", rgba(255, 255, 255)},
		{"push cmyk 0 0 0 1", rgba(0, 0, 0)},
		{"push cmyk 0 0 0 0", rgba(255, 255, 255)},
		{"push cmyk 1 0 0 0", rgba(0, 255, 255)},
		{"push cmyk 0.5 0.9 0.2 0.3", rgba(51, 0, 128)},
		{"push hsb 0 100 100", rgba(255, 0, 0)},
		{"push hsb 120 100 100", rgba(0, 255, 0)},
		{"push hsb 240 100 100", rgba(0, 0, 255)},
		{"push hsb 360 100 100", rgba(255, 0, 0)},
		{"push hsb 0 0 50", rgba(127, 127, 127)},
		{"push\trgb\t0 1\t0", rgba(0, 255, 0)},
		{"push   rgb 1 1 1   ", rgba(255, 255, 255)},
		{"pushrgb 1 0 1", rgba(255, 0, 255)},
	}
	for _, tt := range tests {
		s := &fakeStack{def: rgba(0, 0, 0)}
		cmd := Interpret(s, white, tt.arg)
		require.NotEqual(t, OpUnknown, cmd.Op, tt.arg)
		require.Len(t, s.entries, 1, tt.arg)
		if d := cmp.Diff(stackEntry{tt.want, white}, s.entries[0]); d != "" {
			t.Errorf("%q: (-want +got)\n%s", tt.arg, d)
		}
	}
}

func TestIgnoredSpecials(t *testing.T) {
	for _, arg := range []string{
		"push cornflowerblue",
		"push",
		"push Red",
		"push RGB 1 0 0",
		"Push rgb 1 0 0",
		"rgb 1 0 0",
		"",
		"   ",
		"push hsb 420 100 100",
		"push hsb -10 100 100",
		"push hsb 1e400 100 100",
	} {
		s := &fakeStack{}
		Interpret(s, white, arg)
		require.Empty(t, s.entries, arg)
		require.Zero(t, s.pops, arg)
	}
}

func TestPopOnEmptyStack(t *testing.T) {
	def := rgba(0, 0, 0)
	s := &fakeStack{def: def}
	cmd := Interpret(s, white, "pop")
	require.Equal(t, OpPop, cmd.Op)
	require.Equal(t, 1, s.pops)
	require.Equal(t, def, s.top())
}

func TestPushPopRestoresPrevious(t *testing.T) {
	s := &fakeStack{def: rgba(0, 0, 0)}
	seq := []struct {
		arg string
		top color.RGBA
	}{
		{"push rgb 1 0 0", rgba(255, 0, 0)},
		{"push gray 1", rgba(255, 255, 255)},
		{"push cmyk 0 0 0 1", rgba(0, 0, 0)},
		{"pop", rgba(255, 255, 255)},
		{"push hsb 240 100 100", rgba(0, 0, 255)},
		{"pop", rgba(255, 255, 255)},
		{"pop", rgba(255, 0, 0)},
		{"pop", rgba(0, 0, 0)},
		{"pop", rgba(0, 0, 0)},
	}
	for i, step := range seq {
		Interpret(s, white, step.arg)
		require.Equal(t, step.top, s.top(), "step %d: %s", i, step.arg)
	}
}

func TestParseNumbers(t *testing.T) {
	tests := []struct {
		arg  string
		want Command
	}{
		{"push rgb 0.1 0.2 0.3", Command{OpPushRGB, [4]float64{0.1, 0.2, 0.3}, 3}},
		{"push rgb 0.1", Command{OpPushRGB, [4]float64{0.1}, 1}},
		{"push rgb 0.1 x 0.3", Command{OpPushRGB, [4]float64{0.1}, 1}},
		{"push rgb .5abc 1e-1 +1.", Command{OpPushRGB, [4]float64{0.5, 0.1, 1}, 3}},
		{"push cmyk 1 2 3 4 5", Command{OpPushCMYK, [4]float64{1, 2, 3, 4}, 4}},
		{"push gray 2e", Command{OpPushGray, [4]float64{2}, 1}},
		{"pop extra", Command{Op: OpPop}},
	}
	for _, tt := range tests {
		if d := cmp.Diff(tt.want, Parse(tt.arg)); d != "" {
			t.Errorf("Parse(%q) (-want +got)\n%s", tt.arg, d)
		}
	}
}

func TestOpString(t *testing.T) {
	require.Equal(t, "push cmyk", OpPushCMYK.String())
	require.Equal(t, "unknown", Op(42).String())
}
