package backend

import (
	"context"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intrapaint/internal/generation"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestWebUITxt2Img(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, webuiTxt2Img, r.URL.Path)
		body = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{
			"images": []string{encoded(t, 16, 8, false), encoded(t, 16, 8, false)},
			"info":   `{"seed": 99, "all_seeds": [99, 100]}`,
		})
	}))
	defer srv.Close()

	c := NewWebUI(WebUIOptions{BaseURL: srv.URL + "/"})
	res, err := c.Generate(context.Background(), testRequest(generation.TextToImage))
	require.NoError(t, err)

	require.Len(t, res.Images, 2)
	assert.Equal(t, 16, res.Images[0].Bounds().Dx())
	assert.EqualValues(t, 99, res.Info["seed"])

	assert.Equal(t, "a red barn", body["prompt"])
	assert.EqualValues(t, 16, body["width"])
	assert.EqualValues(t, 8, body["height"])
	assert.EqualValues(t, 2, body["batch_size"])
	assert.EqualValues(t, 1, body["n_iter"])
	assert.Equal(t, true, body["send_images"])
	assert.NotContains(t, body, "init_images")
	assert.NotContains(t, body, "mask")
	assert.NotContains(t, body, "denoising_strength")
}

func TestWebUIInpaintSendsMask(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, webuiImg2Img, r.URL.Path)
		body = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{
			"images": []string{encoded(t, 16, 8, false)},
			"info":   map[string]any{"seed": 5},
		})
	}))
	defer srv.Close()

	c := NewWebUI(WebUIOptions{BaseURL: srv.URL})
	res, err := c.Generate(context.Background(), testRequest(generation.Inpaint))
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.EqualValues(t, 5, res.Info["seed"])

	inits, ok := body["init_images"].([]any)
	require.True(t, ok)
	require.Len(t, inits, 1)
	assert.Contains(t, inits[0], pngDataPrefix)
	assert.Contains(t, body["mask"], pngDataPrefix)
	assert.EqualValues(t, 0, body["inpainting_mask_invert"])
	assert.EqualValues(t, 4, body["mask_blur"])
	assert.EqualValues(t, 32, body["inpaint_full_res_padding"])
	assert.InDelta(t, 0.6, body["denoising_strength"], 1e-9)
	assert.Equal(t, false, body["include_init_images"])
}

func TestWebUIImg2ImgOmitsMask(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{"images": []string{encoded(t, 16, 8, false)}})
	}))
	defer srv.Close()

	req := testRequest(generation.ImageToImage)
	req.Mask = testRequest(generation.Inpaint).Mask
	_, err := NewWebUI(WebUIOptions{BaseURL: srv.URL}).Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, body, "init_images")
	assert.NotContains(t, body, "mask")
}

func TestWebUIErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "OutOfMemoryError",
			"detail": "CUDA out of memory",
		})
	}))
	defer srv.Close()

	_, err := NewWebUI(WebUIOptions{BaseURL: srv.URL}).Generate(context.Background(), testRequest(generation.Inpaint))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "webui img2img", se.Op)
	assert.Contains(t, se.Message, "CUDA out of memory")
}

func TestWebUIEmptyImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"images": []string{}})
	}))
	defer srv.Close()

	_, err := NewWebUI(WebUIOptions{BaseURL: srv.URL}).Generate(context.Background(), testRequest(generation.TextToImage))
	assert.ErrorContains(t, err, "no images")
}

func TestWebUIProgress(t *testing.T) {
	current := "abc"
	var reply any = map[string]any{"progress": 0.25, "eta_relative": 12.5, "current_image": nil}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, webuiProgress, r.URL.Path)
		writeJSON(w, http.StatusOK, reply)
	}))
	defer srv.Close()
	c := NewWebUI(WebUIOptions{BaseURL: srv.URL})

	p, err := c.CheckProgress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.Fraction)
	assert.Equal(t, 12.5, p.ETARelative)
	assert.False(t, p.CurrentImageActive)

	reply = map[string]any{"progress": 0.5, "current_image": current}
	p, err = c.CheckProgress(context.Background())
	require.NoError(t, err)
	assert.True(t, p.CurrentImageActive)
}

func TestWebUIProgressFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWebUI(WebUIOptions{BaseURL: srv.URL}).CheckProgress(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestWebUIHealthCheck(t *testing.T) {
	cases := []struct {
		name string
		code int
		body any
		want bool
	}{
		{"ok", http.StatusOK, map[string]any{}, true},
		{"needs auth", http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"}, true},
		{"other 401", http.StatusUnauthorized, map[string]any{"detail": "Bad token"}, false},
		{"server error", http.StatusInternalServerError, map[string]any{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, webuiLoginChk, r.URL.Path)
				writeJSON(w, tc.code, tc.body)
			}))
			defer srv.Close()
			assert.Equal(t, tc.want, NewWebUI(WebUIOptions{BaseURL: srv.URL}).HealthCheck(context.Background()))
		})
	}
}

func TestWebUIHealthCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	assert.False(t, NewWebUI(WebUIOptions{BaseURL: url}).HealthCheck(context.Background()))
}

func TestWebUILoginRetry(t *testing.T) {
	var loggedIn atomic.Bool
	var generateCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(webuiLogin, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "ada" || r.PostForm.Get("password") != "pw" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Incorrect credentials"})
			return
		}
		loggedIn.Store(true)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc(webuiTxt2Img, func(w http.ResponseWriter, r *http.Request) {
		generateCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ada", user)
		assert.Equal(t, "pw", pass)
		if !loggedIn.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"images": []string{encoded(t, 16, 8, false)}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewWebUI(WebUIOptions{BaseURL: srv.URL, Username: "ada", Password: "pw"})
	res, err := c.Generate(context.Background(), testRequest(generation.TextToImage))
	require.NoError(t, err)
	assert.Len(t, res.Images, 1)
	assert.EqualValues(t, 2, generateCalls.Load())
	assert.True(t, c.LoggedIn())
}

func TestWebUILoginRequiresUsername(t *testing.T) {
	assert.Error(t, NewWebUI(WebUIOptions{}).Login(context.Background()))
}

func TestParseInfo(t *testing.T) {
	assert.Nil(t, parseInfo(nil))
	assert.Nil(t, parseInfo(json.RawMessage(`"not json"`)))
	assert.Equal(t, map[string]any{"a": 1.0}, parseInfo(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, map[string]any{"a": 1.0}, parseInfo(json.RawMessage(`"{\"a\":1}"`)))
}

func TestWebUIInterrogate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, webuiCaption, r.URL.Path)
		body = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{"caption": " a red barn in a field \n"})
	}))
	defer srv.Close()

	c := NewWebUI(WebUIOptions{BaseURL: srv.URL, InterrogateModel: "deepdanbooru"})
	caption, err := c.Interrogate(context.Background(), solid(16, 8, color.RGBA{G: 255, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, "a red barn in a field", caption)
	assert.Equal(t, "deepdanbooru", body["model"])
	assert.Contains(t, body["image"], pngDataPrefix)
}

func TestWebUIInterrogateDefaultModel(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{"caption": "x"})
	}))
	defer srv.Close()

	_, err := NewWebUI(WebUIOptions{BaseURL: srv.URL}).Interrogate(context.Background(), solid(4, 4, color.White))
	require.NoError(t, err)
	assert.Equal(t, "clip", body["model"])
}

func TestWebUIUpscale(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, webuiUpscale, r.URL.Path)
		body = decodeBody(t, r)
		writeJSON(w, http.StatusOK, map[string]any{
			"image":     encoded(t, 32, 16, false),
			"html_info": "<p>done</p>",
		})
	}))
	defer srv.Close()

	c := NewWebUI(WebUIOptions{BaseURL: srv.URL, Upscaler: "R-ESRGAN 4x+"})
	img, err := c.Upscale(context.Background(), solid(16, 8, color.White), 32, 16)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())

	assert.Contains(t, body["image"], pngDataPrefix)
	assert.EqualValues(t, 1, body["resize_mode"])
	assert.EqualValues(t, 32, body["upscaling_resize_w"])
	assert.EqualValues(t, 16, body["upscaling_resize_h"])
	assert.Equal(t, "R-ESRGAN 4x+", body["upscaler_1"])
}

func TestWebUIUpscaleErrors(t *testing.T) {
	var reply any = map[string]any{"image": ""}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reply)
	}))
	defer srv.Close()
	c := NewWebUI(WebUIOptions{BaseURL: srv.URL})

	_, err := c.Upscale(context.Background(), solid(4, 4, color.White), 0, 8)
	assert.ErrorContains(t, err, "invalid size")

	_, err = c.Upscale(context.Background(), solid(4, 4, color.White), 8, 8)
	assert.ErrorContains(t, err, "no image")

	reply = map[string]any{"image": "%%%"}
	_, err = c.Upscale(context.Background(), solid(4, 4, color.White), 8, 8)
	assert.ErrorContains(t, err, "decode base64")
}
