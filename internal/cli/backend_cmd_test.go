package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	goimage "image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intrapaint/internal/app"
	"intrapaint/internal/config"
	"intrapaint/internal/image"
)

const dataPrefix = "data:image/png;base64,"

// webuiServer answers the interrogate and extra-single-image endpoints and
// records the decoded request bodies.
type webuiServer struct {
	*httptest.Server
	caption  string
	requests map[string]map[string]any
}

func newWebUIServer(t *testing.T, caption string) *webuiServer {
	t.Helper()
	s := &webuiServer{caption: caption, requests: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/sdapi/v1/interrogate", func(w http.ResponseWriter, r *http.Request) {
		s.requests[r.URL.Path] = decodeRequest(t, r)
		writeReply(w, map[string]any{"caption": s.caption})
	})
	mux.HandleFunc("/sdapi/v1/extra-single-image", func(w http.ResponseWriter, r *http.Request) {
		body := decodeRequest(t, r)
		s.requests[r.URL.Path] = body
		rw, _ := body["upscaling_resize_w"].(float64)
		rh, _ := body["upscaling_resize_h"].(float64)
		out := goimage.NewRGBA(goimage.Rect(0, 0, int(rw), int(rh)))
		for i := range out.Pix {
			if i%4 == 0 || i%4 == 3 {
				out.Pix[i] = 0xff
			}
		}
		writeReply(w, map[string]any{"image": pngData(t, out)})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func writeReply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func pngData(t *testing.T, img goimage.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return dataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeData(t *testing.T, v any) goimage.Image {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, dataPrefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestInterrogateWebUI(t *testing.T) {
	srv := newWebUIServer(t, "a lighthouse at dusk")
	h := newHarness(t)
	src := h.writeImage(t, "photo.png", photo(64, 48))

	out, err := h.run(t, "--backend", "webui", "--server-url", srv.URL, "interrogate", src, "--area", "8,8,32,32")
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse at dusk\n", out)

	body := srv.requests["/sdapi/v1/interrogate"]
	require.NotNil(t, body)
	assert.Equal(t, "clip", body["model"])
	sent := decodeData(t, body["image"])
	assert.Equal(t, goimage.Pt(32, 32), sent.Bounds().Size(), "only the area is described")

	cache := config.LoadCache(h.cache)
	assert.Equal(t, "a lighthouse at dusk", cache.String(config.CacheLastPrompt))
	assert.Equal(t, config.BackendWebUI, cache.String(config.CacheLastBackend))
}

func TestInterrogateUnsupportedBackend(t *testing.T) {
	h := newHarness(t)
	src := h.writeImage(t, "photo.png", photo(16, 16))

	_, err := h.run(t, "--backend", "mock", "interrogate", src)
	assert.ErrorIs(t, err, app.ErrUnsupported)
}

func TestUpscaleWebUI(t *testing.T) {
	srv := newWebUIServer(t, "")
	h := newHarness(t)
	src := h.writeImage(t, "photo.png", photo(16, 16))

	out, err := h.run(t, "--backend", "webui", "--server-url", srv.URL, "upscale", src,
		"--width", "64", "--height", "32", "--out", h.dir)
	require.NoError(t, err)
	path := filepath.Join(h.dir, "upscaled.png")
	assert.Equal(t, path+"\n", out)

	body := srv.requests["/sdapi/v1/extra-single-image"]
	require.NotNil(t, body)
	assert.Equal(t, "Lanczos", body["upscaler_1"])
	assert.EqualValues(t, 64, body["upscaling_resize_w"])
	assert.EqualValues(t, 32, body["upscaling_resize_h"])

	img, err := image.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, goimage.Pt(64, 32), img.Bounds().Size())
	assert.Equal(t, color.RGBAModel.Convert(color.RGBA{R: 0xff, A: 0xff}), color.RGBAModel.Convert(img.At(10, 10)))
}

func TestUpscaleMockResizesLocally(t *testing.T) {
	h := newHarness(t)
	src := h.writeImage(t, "photo.png", photo(16, 16))

	_, err := h.run(t, "--backend", "mock", "upscale", src, "--width", "40", "--height", "24", "--out", h.dir)
	require.NoError(t, err)
	img, err := image.Decode(filepath.Join(h.dir, "upscaled.png"))
	require.NoError(t, err)
	assert.Equal(t, goimage.Pt(40, 24), img.Bounds().Size())
}

func TestUpscaleRequiresSize(t *testing.T) {
	h := newHarness(t)
	src := h.writeImage(t, "photo.png", photo(16, 16))

	_, err := h.run(t, "--backend", "mock", "upscale", src, "--width", "40")
	assert.Error(t, err)
	_, err = h.run(t, "--backend", "mock", "upscale", src, "--width", "0", "--height", "8")
	assert.ErrorContains(t, err, "must be positive")
}
