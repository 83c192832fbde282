package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intrapaint/internal/generation"
	"intrapaint/internal/logging"
)

// DefaultGLIDURL is the default GLID-3-XL server address.
const DefaultGLIDURL = "http://localhost:5555"

// Free ngrok tunnels allow about 20 connections a minute.
const ngrokMinInterval = 3 * time.Second

// GLIDOptions configures NewGLID. Zero polling fields fall back to the
// generation package defaults.
type GLIDOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
	// FastNgrok keeps the normal polling rate for ngrok tunnels.
	FastNgrok   bool
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxErrors   int
	Logger      *zerolog.Logger
}

// GLID is a client for the GLID-3-XL inpainting server. The server has no
// progress endpoint; samples are fetched by polling and streamed out as
// they change.
type GLID struct {
	httpClient *http.Client
	baseURL    string
	minWait    time.Duration
	maxWait    time.Duration
	maxErrors  int
	log        zerolog.Logger

	mu       sync.Mutex
	expected int
	received map[int]bool
	active   bool
}

// NewGLID returns a client for the server at opts.BaseURL, or at
// DefaultGLIDURL when it is empty. ngrok URLs are polled no faster than
// every three seconds unless FastNgrok is set.
func NewGLID(opts GLIDOptions) *GLID {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultGLIDURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	minWait := opts.MinInterval
	if minWait <= 0 {
		minWait = generation.DefaultMinInterval
	}
	if strings.Contains(base, ".ngrok") && !opts.FastNgrok && minWait < ngrokMinInterval {
		minWait = ngrokMinInterval
	}
	maxWait := opts.MaxInterval
	if maxWait <= 0 {
		maxWait = generation.DefaultMaxInterval
	}
	if maxWait < minWait {
		maxWait = minWait
	}
	maxErrors := opts.MaxErrors
	if maxErrors <= 0 {
		maxErrors = generation.DefaultMaxErrors
	}
	return &GLID{
		httpClient: client,
		baseURL:    base,
		minWait:    minWait,
		maxWait:    maxWait,
		maxErrors:  maxErrors,
		log:        logging.OrNop(opts.Logger).With().Str("backend", "glid").Logger(),
	}
}

// BaseURL returns the server address requests go to.
func (c *GLID) BaseURL() string { return c.baseURL }

// MinInterval is the polling interval after rate limiting is applied.
func (c *GLID) MinInterval() time.Duration { return c.minWait }

type glidRequest struct {
	BatchSize     int     `json:"batch_size"`
	NumBatches    int     `json:"num_batches"`
	Edit          string  `json:"edit"`
	Mask          string  `json:"mask"`
	Prompt        string  `json:"prompt"`
	Negative      string  `json:"negative"`
	GuidanceScale float64 `json:"guidanceScale"`
	SkipSteps     int     `json:"skipSteps"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
}

type glidSample struct {
	Image     string          `json:"image"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type glidSampleResponse struct {
	Samples    map[string]glidSample `json:"samples"`
	InProgress bool                  `json:"in_progress"`
}

// Generate collects the streamed samples into one result.
func (c *GLID) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	var images []image.Image
	info, err := c.GenerateStream(ctx, req, func(img image.Image, index int) {
		for len(images) <= index {
			images = append(images, nil)
		}
		images[index] = img
	})
	if err != nil {
		return nil, err
	}
	out := images[:0]
	for _, img := range images {
		if img != nil {
			out = append(out, img)
		}
	}
	return &generation.Result{Images: out, Info: info}, nil
}

// GenerateStream posts the request and polls /sample until the server
// reports it is done. A sample index is emitted again whenever its
// timestamp changes.
func (c *GLID) GenerateStream(ctx context.Context, req generation.Request, emit func(image.Image, int)) (map[string]any, error) {
	payload, err := newGLIDRequest(req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if _, err := c.do(ctx, http.MethodPost, "", data, "new inpainting request"); err != nil {
		return nil, err
	}

	c.begin(req.ExpectedOutputs())
	defer c.end()

	seen := make(map[string]json.RawMessage)
	errorCount := 0
	updates := 0
	for {
		if err := sleepContext(ctx, generation.BackoffInterval(c.minWait, c.maxWait, errorCount)); err != nil {
			return nil, err
		}

		body, err := c.poll(ctx, seen)
		if err != nil {
			errorCount++
			c.log.Warn().Err(err).Int("error_count", errorCount).Msg("sample update failed")
			if errorCount > c.maxErrors {
				return nil, fmt.Errorf("glid: giving up after %d failed sample requests: %w", errorCount, err)
			}
			continue
		}
		errorCount = 0

		for _, name := range sortedSampleNames(body.Samples) {
			sample := body.Samples[name]
			index, err := strconv.Atoi(name)
			if err != nil || index < 0 {
				c.log.Warn().Str("sample", name).Msg("ignoring sample with invalid name")
				continue
			}
			img, err := decodeImage(sample.Image)
			if err != nil {
				errorCount++
				c.log.Warn().Err(err).Str("sample", name).Msg("could not decode sample")
				continue
			}
			seen[name] = sample.Timestamp
			c.markReceived(index)
			updates++
			emit(img, index)
		}
		if !body.InProgress {
			return map[string]any{"samples": len(seen), "updates": updates}, nil
		}
	}
}

func newGLIDRequest(req generation.Request) (glidRequest, error) {
	w, h := req.Size()
	edit, err := encodePNG(req.Source, false)
	if err != nil {
		return glidRequest{}, err
	}
	mask := req.Mask
	if mask == nil {
		// The server only inpaints; without a mask the whole area is
		// regenerated.
		mask = solidMask(w, h)
	}
	maskData, err := encodePNG(mask, false)
	if err != nil {
		return glidRequest{}, err
	}
	return glidRequest{
		BatchSize:     req.BatchSize,
		NumBatches:    req.BatchCount,
		Edit:          edit,
		Mask:          maskData,
		Prompt:        req.Params.Prompt,
		Negative:      req.Params.NegativePrompt,
		GuidanceScale: req.Params.GuidanceScale,
		SkipSteps:     req.Params.SkipSteps,
		Width:         w,
		Height:        h,
	}, nil
}

func solidMask(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = 0xff
	}
	return m
}

func sortedSampleNames(samples map[string]glidSample) []string {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, errA := strconv.Atoi(names[i])
		b, errB := strconv.Atoi(names[j])
		if errA != nil || errB != nil {
			return names[i] < names[j]
		}
		return a < b
	})
	return names
}

// poll sends the timestamps of samples already received so the server only
// returns new or updated ones.
func (c *GLID) poll(ctx context.Context, seen map[string]json.RawMessage) (*glidSampleResponse, error) {
	data, err := json.Marshal(map[string]any{"samples": seen})
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodGet, "/sample", data, "sample update request")
	if err != nil {
		return nil, err
	}
	var out glidSampleResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("glid sample update request: decode response: %w", err)
	}
	return &out, nil
}

func (c *GLID) do(ctx context.Context, method, path string, payload []byte, op string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("glid %s: %w", op, err)
	}
	defer resp.Body.Close()
	return readBody("glid "+op, resp)
}

// CheckProgress reports how many distinct samples the running request has
// produced. It makes no network call.
func (c *GLID) CheckProgress(ctx context.Context) (generation.Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.expected == 0 {
		return generation.Progress{}, nil
	}
	return generation.Progress{Fraction: float64(len(c.received)) / float64(c.expected)}, nil
}

// HealthCheck expects a JSON body with "success": true at the base URL.
func (c *GLID) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("url", c.baseURL).Msg("health check connection failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return false
	}
	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Success
}

func (c *GLID) begin(expected int) {
	c.mu.Lock()
	c.active = true
	c.expected = expected
	c.received = make(map[int]bool)
	c.mu.Unlock()
}

func (c *GLID) markReceived(index int) {
	c.mu.Lock()
	c.received[index] = true
	c.mu.Unlock()
}

func (c *GLID) end() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
