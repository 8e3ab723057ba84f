package main

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, cfg *Config) http.Handler {
	t.Helper()
	cfg.Server.GinMode = "test"
	doc, err := openDocument(sampleDVI(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { doc.Close() })
	return newRouter(newPageServer(doc, cfg))
}

func get(h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.1:4321"
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServeDocument(t *testing.T) {
	h := newTestRouter(t, testConfig())

	w := get(h, "/api/document")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ID         string  `json:"id"`
		Pages      int     `json:"pages"`
		BaseWidth  float64 `json:"base_width"`
		BaseHeight float64 `json:"base_height"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, 2, body.Pages)
	assert.Equal(t, 40.0, body.BaseWidth)
	assert.Equal(t, 30.0, body.BaseHeight)
}

func TestServePage(t *testing.T) {
	h := newTestRouter(t, testConfig())

	w := get(h, "/api/pages/1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "1,1", w.Header().Get("X-Shrink"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, red, rgbaAt(img, 6, 6))

	w = get(h, "/api/pages/2?width=60&height=50")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10,10", w.Header().Get("X-Margins"))
	img, err = png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 60, img.Bounds().Dx())
	assert.Equal(t, black, rgbaAt(img, 30, 26))

	w = get(h, "/api/pages/1?scale=0.5")
	require.Equal(t, http.StatusOK, w.Code)
	img, err = png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 15, img.Bounds().Dy())
}

func TestServePageErrors(t *testing.T) {
	h := newTestRouter(t, testConfig())

	tests := []struct {
		target string
		want   int
	}{
		{"/api/pages/x", http.StatusBadRequest},
		{"/api/pages/0", http.StatusNotFound},
		{"/api/pages/3", http.StatusNotFound},
		{"/api/pages/1?scale=-1", http.StatusBadRequest},
		{"/api/pages/1?scale=abc", http.StatusBadRequest},
		{"/api/pages/1?width=-4", http.StatusBadRequest},
		{"/api/pages/1?scale=1e9", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, get(h, tt.target).Code)
		})
	}
}

func TestServeRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RendersPerMinute = 2
	h := newTestRouter(t, cfg)

	assert.Equal(t, http.StatusOK, get(h, "/api/pages/1").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/pages/1").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/api/pages/1").Code)
	// document metadata is not limited
	assert.Equal(t, http.StatusOK, get(h, "/api/document").Code)
}

func TestServeCORS(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowOrigins = []string{"https://viewer.example"}
	h := newTestRouter(t, cfg)

	w := get(h, "/api/document", "Origin", "https://viewer.example")
	assert.Equal(t, "https://viewer.example", w.Header().Get("Access-Control-Allow-Origin"))
}
