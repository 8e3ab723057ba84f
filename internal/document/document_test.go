package document_test

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alefaraci/GoDVI/internal/document"
	"github.com/alefaraci/GoDVI/internal/dvi"
	"github.com/alefaraci/GoDVI/internal/dvi/dvitest"
	"github.com/alefaraci/GoDVI/internal/geometry"
)

var (
	white = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	black = color.RGBA{0, 0, 0, 0xFF}
	red   = color.RGBA{0xFF, 0, 0, 0xFF}
)

// countingLocker records how many goroutines hold it at once.
type countingLocker struct {
	mu      sync.Mutex
	active  atomic.Int32
	maxSeen atomic.Int32
	locks   atomic.Int32
}

func (l *countingLocker) Lock() {
	l.mu.Lock()
	n := l.active.Add(1)
	l.locks.Add(1)
	for {
		m := l.maxSeen.Load()
		if n <= m || l.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
}

func (l *countingLocker) Unlock() {
	l.active.Add(-1)
	l.mu.Unlock()
}

// sampleFile is a two page document of 40x30 units; at 600 dpi one unit is
// one pixel before shrinking.
func sampleFile(t *testing.T) string {
	t.Helper()
	return dvitest.New().Units(254000, 600).PageSize(40, 30).
		BeginPage(1).
		Down(10).Right(5).
		Special("color push rgb 1 0 0").
		SetRule(3, 4).
		Special("color pop").
		SetRule(3, 4).
		Special("color push cornflowerblue").
		SetRule(3, 4).
		EndPage().
		BeginPage(2).
		Special("color push gray 0.5").
		Down(29).PutRule(30, 40).
		EndPage().
		WriteFile(t, "sample.dvi")
}

func pixelParams() dvi.Params {
	p := dvi.DefaultParams()
	p.HShrink, p.VShrink = 1, 1
	return p
}

func TestOpenComputesBaseSize(t *testing.T) {
	doc, err := document.Open(sampleFile(t))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 2, doc.PageCount())
	assert.NotEmpty(t, doc.ID())
	assert.Equal(t, "sample.dvi", filepath.Base(doc.Path()))

	// 40 units at shrink 8 plus 2in at 600dpi shrunk by 8.
	w, h := doc.BaseSize()
	assert.InDelta(t, 155.0, w, 1e-9)
	assert.InDelta(t, 153.75, h, 1e-9)

	pw, ph, err := doc.PageSize(1)
	require.NoError(t, err)
	assert.Equal(t, w, pw)
	assert.Equal(t, h, ph)

	_, _, err = doc.PageSize(2)
	assert.ErrorIs(t, err, document.ErrPageRange)
}

func TestOpenFailures(t *testing.T) {
	_, err := document.Open(filepath.Join(t.TempDir(), "nope.dvi"))
	assert.ErrorIs(t, err, document.ErrEngineUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)

	junk := filepath.Join(t.TempDir(), "junk.dvi")
	require.NoError(t, os.WriteFile(junk, []byte("hello"), 0o644))
	_, err = document.Open(junk)
	assert.ErrorIs(t, err, document.ErrEngineUnavailable)
	assert.ErrorIs(t, err, dvi.ErrNotDVI)

	empty := dvitest.New().WriteFile(t, "empty.dvi")
	_, err = document.Open(empty)
	assert.ErrorIs(t, err, document.ErrEngineUnavailable)

	_, err = document.Open(sampleFile(t), document.WithMargins("1 furlong"))
	assert.ErrorIs(t, err, geometry.ErrInvalidUnit)
}

func TestOpenFailureReleasesLock(t *testing.T) {
	var mu sync.Mutex
	_, err := document.Open(filepath.Join(t.TempDir(), "nope.dvi"), document.WithLocker(&mu))
	require.Error(t, err)
	require.True(t, mu.TryLock())
	mu.Unlock()
}

func TestRenderPlacement(t *testing.T) {
	doc, err := document.Open(sampleFile(t))
	require.NoError(t, err)
	defer doc.Close()

	tests := []struct {
		name string
		vp   document.Viewport
		want document.Placement
	}{
		{
			name: "scale one",
			vp:   document.Viewport{Scale: 1},
			want: document.Placement{
				HShrink: 8, VShrink: 8,
				PageWidth: 5, PageHeight: 3,
				Width: 155, Height: 154,
				MarginX: 75, MarginY: 75,
			},
		},
		{
			name: "scale two",
			vp:   document.Viewport{Scale: 2},
			want: document.Placement{
				HShrink: 4, VShrink: 4,
				PageWidth: 10, PageHeight: 7,
				Width: 310, Height: 308,
				MarginX: 150, MarginY: 150,
			},
		},
		{
			name: "explicit viewport",
			vp:   document.Viewport{Scale: 8, Width: 50, Height: 20},
			want: document.Placement{
				HShrink: 1, VShrink: 1,
				PageWidth: 40, PageHeight: 30,
				Width: 50, Height: 20,
				MarginX: 5, MarginY: 0,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := dvi.NewImageSurface(tt.want.Width, tt.want.Height, white)
			got, err := doc.Render(0, tt.vp, s)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("placement mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderColors(t *testing.T) {
	doc, err := document.Open(sampleFile(t),
		document.WithParams(pixelParams()),
		document.WithMargins("0pt"))
	require.NoError(t, err)
	defer doc.Close()

	s := dvi.NewImageSurface(40, 30, white)
	pl, err := doc.Render(0, document.Viewport{Scale: 1}, s)
	require.NoError(t, err)
	assert.Zero(t, pl.MarginX)
	assert.Zero(t, pl.MarginY)

	assert.Equal(t, red, s.Img.RGBAAt(5, 8))
	assert.Equal(t, black, s.Img.RGBAAt(9, 8))
	// The unknown named color leaves black on top of the stack.
	assert.Equal(t, black, s.Img.RGBAAt(13, 8))
	assert.Equal(t, white, s.Img.RGBAAt(17, 8))

	// Page 2 is one gray rule covering the page.
	gray := color.RGBA{128, 128, 128, 0xFF}
	s = dvi.NewImageSurface(40, 30, white)
	_, err = doc.Render(1, document.Viewport{Scale: 1}, s)
	require.NoError(t, err)
	assert.Equal(t, gray, s.Img.RGBAAt(0, 0))
	assert.Equal(t, gray, s.Img.RGBAAt(39, 29))
}

func TestRenderErrors(t *testing.T) {
	locker := &countingLocker{}
	doc, err := document.Open(sampleFile(t), document.WithLocker(locker))
	require.NoError(t, err)
	defer doc.Close()

	s := dvi.NewImageSurface(10, 10, white)
	before := locker.locks.Load()
	for _, scale := range []float64{0, -1} {
		_, err = doc.Render(0, document.Viewport{Scale: scale}, s)
		assert.ErrorIs(t, err, geometry.ErrInvalidScale)
	}
	assert.Equal(t, before, locker.locks.Load(), "bad scales must not touch the engine")

	_, err = doc.Render(2, document.Viewport{Scale: 1}, s)
	assert.ErrorIs(t, err, document.ErrPageRange)
	_, err = doc.Render(-1, document.Viewport{Scale: 1}, s)
	assert.ErrorIs(t, err, document.ErrPageRange)
}

func TestRenderCorruptPageKeepsPlacement(t *testing.T) {
	path := dvitest.New().Units(254000, 600).PageSize(10, 10).
		BeginPage(1).PutRule(2, 2).Pop().EndPage().
		WriteFile(t, "bad.dvi")
	doc, err := document.Open(path, document.WithParams(pixelParams()), document.WithMargins("0in"))
	require.NoError(t, err)
	defer doc.Close()

	s := dvi.NewImageSurface(10, 10, white)
	pl, err := doc.Render(0, document.Viewport{Scale: 1}, s)
	assert.ErrorIs(t, err, dvi.ErrCorrupt)
	assert.Equal(t, 10, pl.Width)

	// The document stays usable.
	_, err = doc.Render(0, document.Viewport{Scale: 1}, s)
	assert.ErrorIs(t, err, dvi.ErrCorrupt)
}

func TestClose(t *testing.T) {
	doc, err := document.Open(sampleFile(t))
	require.NoError(t, err)

	require.NoError(t, doc.Close())
	assert.ErrorIs(t, doc.Close(), document.ErrClosed)

	_, err = doc.Render(0, document.Viewport{Scale: 1}, dvi.NewImageSurface(1, 1, white))
	assert.ErrorIs(t, err, document.ErrClosed)
	_, _, err = doc.PageSize(0)
	assert.ErrorIs(t, err, document.ErrClosed)
}

func TestConcurrentRendersAreSerialized(t *testing.T) {
	locker := &countingLocker{}
	doc, err := document.Open(sampleFile(t), document.WithLocker(locker))
	require.NoError(t, err)
	defer doc.Close()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*4)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 4 {
				scale := float64(1 + (i+j)%3)
				s := dvi.NewImageSurface(64, 64, white)
				if _, err := doc.Render((i+j)%2, document.Viewport{Scale: scale}, s); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int32(1), locker.maxSeen.Load())
}

func TestSharedLockerSpansDocuments(t *testing.T) {
	locker := &countingLocker{}
	a, err := document.Open(sampleFile(t), document.WithLocker(locker))
	require.NoError(t, err)
	defer a.Close()
	b, err := document.Open(sampleFile(t), document.WithLocker(locker))
	require.NoError(t, err)
	defer b.Close()
	assert.NotEqual(t, a.ID(), b.ID())

	var wg sync.WaitGroup
	for _, doc := range []*document.Document{a, b, a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := doc.Render(0, document.Viewport{Scale: 1}, dvi.NewImageSurface(8, 8, white))
			if err != nil && !errors.Is(err, document.ErrClosed) {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), locker.maxSeen.Load())
}

func TestViewportSize(t *testing.T) {
	doc, err := document.Open(sampleFile(t))
	require.NoError(t, err)
	defer doc.Close()

	w, h := doc.ViewportSize(document.Viewport{Scale: 1})
	assert.Equal(t, 155, w)
	assert.Equal(t, 154, h)

	w, h = doc.ViewportSize(document.Viewport{Scale: 0.5, Width: 100})
	assert.Equal(t, 100, w)
	assert.Equal(t, 77, h)
}
