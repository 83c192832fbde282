package backend

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intrapaint/internal/generation"
)

func fastGLID(url string) *GLID {
	return NewGLID(GLIDOptions{
		BaseURL:     url,
		MinInterval: time.Millisecond,
		MaxInterval: 5 * time.Millisecond,
		MaxErrors:   2,
	})
}

type sampleReply struct {
	code int
	body any
}

// glidServer accepts one POST and answers /sample polls from a script; the
// last reply repeats.
type glidServer struct {
	t       *testing.T
	mu      sync.Mutex
	posted  map[string]any
	polls   []map[string]any
	replies []sampleReply
	postErr *sampleReply
}

func (s *glidServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/":
		s.posted = body
		if s.postErr != nil {
			writeJSON(w, s.postErr.code, s.postErr.body)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case r.Method == http.MethodGet && r.URL.Path == "/sample":
		s.polls = append(s.polls, body)
		i := len(s.polls) - 1
		if i >= len(s.replies) {
			i = len(s.replies) - 1
		}
		writeJSON(w, s.replies[i].code, s.replies[i].body)
	default:
		http.NotFound(w, r)
	}
}

func sample(t *testing.T, ts int) map[string]any {
	return map[string]any{"image": encoded(t, 16, 8, false), "timestamp": ts}
}

func TestGLIDStreamsSamples(t *testing.T) {
	gs := &glidServer{t: t, replies: []sampleReply{
		{http.StatusOK, map[string]any{"samples": map[string]any{"0": sample(t, 1)}, "in_progress": true}},
		{http.StatusOK, map[string]any{"samples": map[string]any{"1": sample(t, 1), "0": sample(t, 2)}, "in_progress": false}},
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	c := fastGLID(srv.URL)
	var indexes []int
	var fractions []float64
	info, err := c.GenerateStream(context.Background(), testRequest(generation.Inpaint), func(img image.Image, index int) {
		indexes = append(indexes, index)
		p, perr := c.CheckProgress(context.Background())
		assert.NoError(t, perr)
		fractions = append(fractions, p.Fraction)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 1}, indexes)
	assert.Equal(t, []float64{0.5, 0.5, 1}, fractions)
	assert.Equal(t, 2, info["samples"])
	assert.Equal(t, 3, info["updates"])

	gs.mu.Lock()
	defer gs.mu.Unlock()
	assert.Equal(t, "a red barn", gs.posted["prompt"])
	assert.Equal(t, "blurry", gs.posted["negative"])
	assert.EqualValues(t, 7.5, gs.posted["guidanceScale"])
	assert.EqualValues(t, 2, gs.posted["batch_size"])
	assert.EqualValues(t, 1, gs.posted["num_batches"])
	assert.EqualValues(t, 16, gs.posted["width"])
	assert.NotContains(t, gs.posted["edit"], "data:")

	require.Len(t, gs.polls, 2)
	assert.Empty(t, gs.polls[0]["samples"])
	assert.Equal(t, map[string]any{"0": 1.0}, gs.polls[1]["samples"])

	p, err := c.CheckProgress(context.Background())
	require.NoError(t, err)
	assert.Zero(t, p.Fraction)
}

func TestGLIDGenerateCollectsLatestSamples(t *testing.T) {
	gs := &glidServer{t: t, replies: []sampleReply{
		{http.StatusOK, map[string]any{"samples": map[string]any{"1": sample(t, 1)}, "in_progress": true}},
		{http.StatusOK, map[string]any{"samples": map[string]any{"0": sample(t, 1), "1": sample(t, 2)}, "in_progress": false}},
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	res, err := fastGLID(srv.URL).Generate(context.Background(), testRequest(generation.Inpaint))
	require.NoError(t, err)
	assert.Len(t, res.Images, 2)
}

func TestGLIDSendsFullMaskWithoutInpainting(t *testing.T) {
	gs := &glidServer{t: t, replies: []sampleReply{
		{http.StatusOK, map[string]any{"samples": map[string]any{}, "in_progress": false}},
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	_, err := fastGLID(srv.URL).GenerateStream(context.Background(), testRequest(generation.ImageToImage), func(image.Image, int) {})
	require.NoError(t, err)

	gs.mu.Lock()
	defer gs.mu.Unlock()
	mask, err := decodeImage(gs.posted["mask"].(string))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), mask.Bounds())
	r, _, _, _ := mask.At(15, 7).RGBA()
	assert.EqualValues(t, 0xffff, r)
}

func TestGLIDRecoversFromTransientErrors(t *testing.T) {
	gs := &glidServer{t: t, replies: []sampleReply{
		{http.StatusServiceUnavailable, map[string]any{"error": "busy"}},
		{http.StatusServiceUnavailable, map[string]any{"error": "busy"}},
		{http.StatusOK, map[string]any{"samples": map[string]any{"0": sample(t, 1)}, "in_progress": false}},
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	var got int
	_, err := fastGLID(srv.URL).GenerateStream(context.Background(), testRequest(generation.Inpaint), func(image.Image, int) { got++ })
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestGLIDGivesUpAfterMaxErrors(t *testing.T) {
	gs := &glidServer{t: t, replies: []sampleReply{
		{http.StatusInternalServerError, map[string]any{"error": "model crashed"}},
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	_, err := fastGLID(srv.URL).GenerateStream(context.Background(), testRequest(generation.Inpaint), func(image.Image, int) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
	assert.Contains(t, err.Error(), "model crashed")

	gs.mu.Lock()
	defer gs.mu.Unlock()
	assert.Len(t, gs.polls, 3)
}

func TestGLIDRequestRejected(t *testing.T) {
	gs := &glidServer{t: t, postErr: &sampleReply{http.StatusBadRequest, map[string]any{"error": "mask size mismatch"}}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	_, err := fastGLID(srv.URL).Generate(context.Background(), testRequest(generation.Inpaint))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "mask size mismatch", se.Message)
}

func TestGLIDCancelledWhilePolling(t *testing.T) {
	gs := &glidServer{t: t, replies: []sampleReply{
		{http.StatusOK, map[string]any{"samples": map[string]any{}, "in_progress": true}},
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := fastGLID(srv.URL).GenerateStream(ctx, testRequest(generation.Inpaint), func(image.Image, int) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGLIDHealthCheck(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"success", "application/json", `{"success": true}`, true},
		{"not ready", "application/json", `{"success": false}`, false},
		{"html", "text/html", `<html></html>`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			assert.Equal(t, tc.want, fastGLID(srv.URL).HealthCheck(context.Background()))
		})
	}
}

func TestGLIDNgrokRateLimit(t *testing.T) {
	assert.Equal(t, ngrokMinInterval, NewGLID(GLIDOptions{BaseURL: "https://abcd.ngrok.io"}).MinInterval())
	assert.Equal(t, generation.DefaultMinInterval,
		NewGLID(GLIDOptions{BaseURL: "https://abcd.ngrok.io", FastNgrok: true}).MinInterval())
	assert.Equal(t, generation.DefaultMinInterval, NewGLID(GLIDOptions{}).MinInterval())
	assert.Equal(t, DefaultGLIDURL, NewGLID(GLIDOptions{}).BaseURL())
}

func TestGLIDThroughCoordinator(t *testing.T) {
	var polls atomic.Int32
	gs := &glidServer{t: t, replies: []sampleReply{
		{http.StatusOK, map[string]any{"samples": map[string]any{"0": sample(t, 1)}, "in_progress": true}},
		{http.StatusOK, map[string]any{"samples": map[string]any{"1": sample(t, 1)}, "in_progress": false}},
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sample" {
			polls.Add(1)
		}
		gs.ServeHTTP(w, r)
	}))
	defer srv.Close()

	coord, err := generation.NewCoordinator(fastGLID(srv.URL), generation.Options{
		MinInterval: time.Millisecond,
		MaxInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	var delivered []int
	res, err := coord.Generate(context.Background(), testRequest(generation.Inpaint), generation.Handlers{
		OnImage: func(_ image.Image, index int) { delivered = append(delivered, index) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, delivered)
	assert.Len(t, res.Images, 2)
	assert.EqualValues(t, 2, polls.Load())
}
