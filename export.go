package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/alefaraci/GoDVI/internal/document"
	"github.com/alefaraci/GoDVI/internal/dvi"
	"github.com/alefaraci/GoDVI/internal/geometry"
	"github.com/alefaraci/GoDVI/internal/logging"
)

var white = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}

// renderedPage is one page after the engine is done with it.
type renderedPage struct {
	page   int // 0-based
	img    *image.RGBA
	pl     document.Placement
	layers []colorLayer // traced inks, vector PDF output only
}

// outputFormat picks the format from the output extension, falling back to
// def for anything else.
func outputFormat(path, def string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".pdf":
		return "pdf"
	}
	return def
}

func openDocument(input string, cfg *Config) (*document.Document, error) {
	params, err := cfg.Render.Params()
	if err != nil {
		return nil, err
	}
	opts := []document.Option{
		document.WithParams(params),
		document.WithLogger(logging.WithComponent(logging.ComponentDocument)),
	}
	if cfg.Render.Margin != "" {
		opts = append(opts, document.WithMargins(cfg.Render.Margin))
	}
	return document.Open(input, opts...)
}

// maxSurfacePixels bounds the surface allocated for a single page.
const maxSurfacePixels = 1 << 28

var errSurfaceTooLarge = errors.New("surface too large")

// renderToImage renders one page into a fresh surface sized for vp.
func renderToImage(doc *document.Document, page int, vp document.Viewport) (*image.RGBA, document.Placement, error) {
	if err := geometry.CheckScale(vp.Scale); err != nil {
		return nil, document.Placement{}, err
	}
	w, h := doc.ViewportSize(vp)
	if w <= 0 || h <= 0 || w > maxSurfacePixels || h > maxSurfacePixels ||
		int64(w)*int64(h) > maxSurfacePixels {
		return nil, document.Placement{}, fmt.Errorf("%w: %dx%d", errSurfaceTooLarge, w, h)
	}
	s := dvi.NewImageSurface(w, h, doc.Params().BG)
	pl, err := doc.Render(page, vp, s)
	return s.Img, pl, err
}

// ExportDVI renders the selected pages of the DVI file at inputPath and
// writes them to outputPath as PDF or PNG. With parallel set, pages are
// rendered by a pool of workers sharing the document.
func ExportDVI(inputPath, outputPath string, parallel bool, cfg *Config) error {
	doc, err := openDocument(inputPath, cfg)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inputPath, err)
	}
	defer doc.Close()

	sel, err := parsePageRange(cfg.Output.Pages, doc.PageCount())
	if err != nil {
		return err
	}
	pages := selectedPages(sel)
	vp := document.Viewport{
		Scale:  cfg.Output.Scale,
		Width:  cfg.Output.Width,
		Height: cfg.Output.Height,
	}
	format := outputFormat(outputPath, cfg.Output.Format)
	trace := format == "pdf" && cfg.Output.PDFMode != "raster"
	bg := doc.Params().BG

	start := time.Now()
	results := make([]renderedPage, len(pages))
	errs := make([]error, len(pages))
	renderPage := func(i int) {
		img, pl, err := renderToImage(doc, pages[i], vp)
		if err != nil {
			errs[i] = err
			return
		}
		rp := renderedPage{page: pages[i], img: img, pl: pl}
		// Traced outside the document lock.
		if trace {
			if rp.layers, err = traceColorLayers(img, bg); err != nil {
				errs[i] = fmt.Errorf("tracing page %d: %w", pages[i]+1, err)
				return
			}
		}
		results[i] = rp
	}

	workers := 1
	if parallel {
		workers = cfg.Output.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
	}
	if workers > 1 {
		var wg sync.WaitGroup
		sem := make(chan struct{}, workers)
		for i := range pages {
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				renderPage(i)
			}()
		}
		wg.Wait()
	} else {
		for i := range pages {
			renderPage(i)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	switch format {
	case "png":
		err = writePNGPages(outputPath, results, cfg)
	default:
		err = writePDFPages(inputPath, outputPath, results, doc.Params(), cfg)
	}
	if err != nil {
		return err
	}

	logging.InfoWithComponent(logging.ComponentExport, "exported document",
		"input", inputPath,
		"output", outputPath,
		"format", format,
		"pages", len(pages),
		"elapsed", time.Since(start))
	return nil
}

// pngPagePath numbers the output file when more than one page is written.
func pngPagePath(outputPath string, page, total int) string {
	if total == 1 {
		return outputPath
	}
	ext := filepath.Ext(outputPath)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(outputPath, ext), page+1, ext)
}

func writePNGPages(outputPath string, pages []renderedPage, cfg *Config) error {
	params, err := cfg.Render.Params()
	if err != nil {
		return err
	}
	for _, rp := range pages {
		var img image.Image = rp.img
		if cfg.Output.CropMargins {
			if r := contentBounds(rp.img, params.BG); !r.Empty() {
				img = rp.img.SubImage(r)
			}
		}
		img = reduceDepth(img, cfg.Output.BitDepth)
		path := pngPagePath(outputPath, rp.page, len(pages))
		if err := writePNGFile(path, img); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// pagePoints is the physical size of a rendered page in PDF points: each
// pixel stands for shrink device dots.
func pagePoints(rp renderedPage, params dvi.Params) (w, h float64) {
	b := rp.img.Bounds()
	w = float64(b.Dx()*rp.pl.HShrink) / float64(params.DPI) * 72
	h = float64(b.Dy()*rp.pl.VShrink) / float64(params.VDPI) * 72
	return w, h
}

func writePDFPages(inputPath, outputPath string, pages []renderedPage, params dvi.Params, cfg *Config) error {
	out := make([]pdfPage, len(pages))
	crops := make([]pageCrop, 0, len(pages))
	for i, rp := range pages {
		b := rp.img.Bounds()
		wPt, hPt := pagePoints(rp, params)
		p := pdfPage{
			width:    b.Dx(),
			height:   b.Dy(),
			widthPt:  wPt,
			heightPt: hPt,
		}
		if cfg.Output.PDFMode == "raster" {
			p.rgb = rgbBytes(rp.img)
		} else {
			p.layers = rp.layers
			if params.BG != white {
				bg := params.BG
				p.bg = &bg
			}
		}
		out[i] = p
		if cfg.Output.CropMargins {
			crops = append(crops, pageCrop{
				page:     i + 1,
				content:  contentBounds(rp.img, params.BG),
				sx:       wPt / float64(max(b.Dx(), 1)),
				sy:       hPt / float64(max(b.Dy(), 1)),
				widthPt:  wPt,
				heightPt: hPt,
			})
		}
	}

	title := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	if err := writePDFFile(outputPath, out, title); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	return cropPDFMargins(outputPath, crops)
}
