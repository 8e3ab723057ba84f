package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/alefaraci/GoDVI/internal/document"
	"github.com/alefaraci/GoDVI/internal/geometry"
	"github.com/alefaraci/GoDVI/internal/logging"
)

// pageServer serves the pages of one open document.
type pageServer struct {
	doc      *document.Document
	cfg      *Config
	limiters sync.Map // client IP -> *rate.Limiter
	limit    rate.Limit
	burst    int
}

func newPageServer(doc *document.Document, cfg *Config) *pageServer {
	s := &pageServer{doc: doc, cfg: cfg, limit: rate.Inf}
	if n := cfg.Server.RendersPerMinute; n > 0 {
		s.limit = rate.Every(time.Minute / time.Duration(n))
		s.burst = n
	}
	return s
}

func (s *pageServer) limiter(ip string) *rate.Limiter {
	if val, ok := s.limiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	val, _ := s.limiters.LoadOrStore(ip, rate.NewLimiter(s.limit, s.burst))
	return val.(*rate.Limiter)
}

// rateLimit rejects renders from clients over their per-minute budget.
func (s *pageServer) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limit != rate.Inf && !s.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many render requests"})
			return
		}
		c.Next()
	}
}

func requestLog() gin.HandlerFunc {
	log := logging.WithComponent(logging.ComponentServer)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
			"elapsed", time.Since(start))
	}
}

func newRouter(s *pageServer) *gin.Engine {
	if mode := s.cfg.Server.GinMode; mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLog(), gin.Recovery())

	if origins := s.cfg.Server.AllowOrigins; len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		if len(origins) == 1 && origins[0] == "*" {
			corsConfig.AllowAllOrigins = true
		} else {
			corsConfig.AllowOrigins = origins
		}
		corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	api := router.Group("/api")
	api.GET("/document", s.handleDocument)
	api.GET("/pages/:page", s.rateLimit(), s.handlePage)
	return router
}

func (s *pageServer) handleDocument(c *gin.Context) {
	w, h := s.doc.BaseSize()
	c.JSON(http.StatusOK, gin.H{
		"id":          s.doc.ID(),
		"path":        s.doc.Path(),
		"pages":       s.doc.PageCount(),
		"base_width":  w,
		"base_height": h,
	})
}

// handlePage renders a page as PNG. The page number in the path is
// 1-based; scale, width and height come from the query string and default
// to the [output] section.
func (s *pageServer) handlePage(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page number"})
		return
	}
	vp := document.Viewport{
		Scale:  s.cfg.Output.Scale,
		Width:  s.cfg.Output.Width,
		Height: s.cfg.Output.Height,
	}
	if err := queryFloat(c, "scale", &vp.Scale); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := queryInt(c, "width", &vp.Width); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := queryInt(c, "height", &vp.Height); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img, pl, err := renderToImage(s.doc, page-1, vp)
	switch {
	case errors.Is(err, document.ErrPageRange):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, geometry.ErrInvalidScale), errors.Is(err, errSurfaceTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logging.ErrorWithComponent(logging.ComponentServer, "rendering page", "page", page, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rendering failed"})
		return
	}

	var buf bytes.Buffer
	if err := encodePNG(&buf, reduceDepth(img, s.cfg.Output.BitDepth)); err != nil {
		logging.ErrorWithComponent(logging.ComponentServer, "encoding page", "page", page, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding failed"})
		return
	}
	c.Header("X-Shrink", fmt.Sprintf("%d,%d", pl.HShrink, pl.VShrink))
	c.Header("X-Margins", fmt.Sprintf("%d,%d", pl.MarginX, pl.MarginY))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func queryFloat(c *gin.Context, key string, dst *float64) error {
	v, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*dst = f
	return nil
}

func queryInt(c *gin.Context, key string, dst *int) error {
	v, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*dst = n
	return nil
}

// runServer opens input and serves it until SIGINT or SIGTERM.
func runServer(input string, cfg *Config) error {
	doc, err := openDocument(input, cfg)
	if err != nil {
		return fmt.Errorf("opening %s: %w", input, err)
	}
	defer doc.Close()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(newPageServer(doc, cfg)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.InfoWithComponent(logging.ComponentServer, "listening", "address", cfg.Server.Addr, "document", doc.ID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.InfoWithComponent(logging.ComponentServer, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
