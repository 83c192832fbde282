package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intrapaint/internal/generation"
	"intrapaint/internal/logging"
)

// DefaultWebUIURL is where stable-diffusion-webui listens by default.
const DefaultWebUIURL = "http://localhost:7860"

// DefaultUpscaler is used when no upscaler is configured.
const DefaultUpscaler = "Lanczos"

const (
	webuiTxt2Img  = "/sdapi/v1/txt2img"
	webuiImg2Img  = "/sdapi/v1/img2img"
	webuiProgress = "/sdapi/v1/progress"
	webuiCaption  = "/sdapi/v1/interrogate"
	webuiUpscale  = "/sdapi/v1/extra-single-image"
	webuiLogin    = "/login"
	webuiLoginChk = "/login_check"

	authErrorDetail = "Not authenticated"
	probeTimeout    = 20 * time.Second
)

// WebUIOptions configures NewWebUI. Username enables basic auth and the
// login retry after a 401.
type WebUIOptions struct {
	BaseURL  string
	Username string
	Password string
	// Upscaler is the upscaler name sent to extra-single-image; empty
	// means DefaultUpscaler.
	Upscaler string
	// InterrogateModel is the captioning model; empty means "clip".
	InterrogateModel string
	// HTTPClient replaces the default client. Its Jar is used for the
	// login session when set.
	HTTPClient *http.Client
	// Timeout bounds generation requests; zero leaves them to the context.
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// WebUI is a client for the stable-diffusion-webui (A1111) HTTP API.
type WebUI struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	upscaler   string
	model      string
	log        zerolog.Logger

	mu       sync.Mutex
	loggedIn bool
}

// NewWebUI returns a client for the server at opts.BaseURL, or at
// DefaultWebUIURL when it is empty.
func NewWebUI(opts WebUIOptions) *WebUI {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultWebUIURL
	}
	client := opts.HTTPClient
	if client == nil {
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Timeout: opts.Timeout, Jar: jar}
	}
	upscaler := opts.Upscaler
	if upscaler == "" {
		upscaler = DefaultUpscaler
	}
	model := opts.InterrogateModel
	if model == "" {
		model = "clip"
	}
	return &WebUI{
		httpClient: client,
		baseURL:    base,
		username:   opts.Username,
		password:   opts.Password,
		upscaler:   upscaler,
		model:      model,
		log:        logging.OrNop(opts.Logger).With().Str("backend", "webui").Logger(),
	}
}

// BaseURL returns the server address requests go to.
func (c *WebUI) BaseURL() string { return c.baseURL }

type webuiRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	SamplerName    string  `json:"sampler_name,omitempty"`
	BatchSize      int     `json:"batch_size"`
	NIter          int     `json:"n_iter"`
	Steps          int     `json:"steps,omitempty"`
	CFGScale       float64 `json:"cfg_scale,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           int64   `json:"seed"`
	RestoreFaces   bool    `json:"restore_faces"`
	Tiling         bool    `json:"tiling"`
	SendImages     bool    `json:"send_images"`
	SaveImages     bool    `json:"save_images"`

	DenoisingStrength *float64 `json:"denoising_strength,omitempty"`
	InitImages        []string `json:"init_images,omitempty"`
	IncludeInitImages *bool    `json:"include_init_images,omitempty"`

	Mask                  string `json:"mask,omitempty"`
	MaskBlur              *int   `json:"mask_blur,omitempty"`
	InpaintingMaskInvert  *int   `json:"inpainting_mask_invert,omitempty"`
	InpaintFullRes        *bool  `json:"inpaint_full_res,omitempty"`
	InpaintFullResPadding *int   `json:"inpaint_full_res_padding,omitempty"`
}

type webuiResponse struct {
	Images []string        `json:"images"`
	Info   json.RawMessage `json:"info"`
}

type webuiProgressResponse struct {
	Progress    float64 `json:"progress"`
	ETARelative float64 `json:"eta_relative"`
	// CurrentImage is set while the server is working on a job.
	CurrentImage *string `json:"current_image"`
}

func newWebUIRequest(req generation.Request) (webuiRequest, error) {
	w, h := req.Size()
	p := req.Params
	body := webuiRequest{
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		SamplerName:    p.SamplerName,
		BatchSize:      req.BatchSize,
		NIter:          req.BatchCount,
		Steps:          p.Steps,
		CFGScale:       p.GuidanceScale,
		Width:          w,
		Height:         h,
		Seed:           p.Seed,
		RestoreFaces:   p.RestoreFaces,
		Tiling:         p.Tiling,
		SendImages:     true,
	}
	if req.Mode == generation.TextToImage {
		return body, nil
	}

	source, err := encodePNG(req.Source, true)
	if err != nil {
		return body, err
	}
	strength := p.DenoisingStrength
	include := false
	body.InitImages = []string{source}
	body.DenoisingStrength = &strength
	body.IncludeInitImages = &include

	if req.Mode == generation.Inpaint && req.Mask != nil {
		mask, err := encodePNG(req.Mask, true)
		if err != nil {
			return body, err
		}
		invert := 0
		blur := p.MaskBlur
		fullRes := p.InpaintFullRes
		padding := p.InpaintPadding
		body.Mask = mask
		body.InpaintingMaskInvert = &invert
		body.MaskBlur = &blur
		body.InpaintFullRes = &fullRes
		body.InpaintFullResPadding = &padding
	}
	return body, nil
}

// Generate runs txt2img or img2img depending on the request mode. The mask is
// only sent for inpainting.
func (c *WebUI) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	body, err := newWebUIRequest(req)
	if err != nil {
		return nil, err
	}
	endpoint, op := webuiImg2Img, "webui img2img"
	if req.Mode == generation.TextToImage {
		endpoint, op = webuiTxt2Img, "webui txt2img"
	}
	c.log.Debug().Str("request_id", req.ID.String()).Str("endpoint", endpoint).
		Int("width", body.Width).Int("height", body.Height).Msg("sending generation request")

	data, err := c.postJSON(ctx, op, endpoint, body)
	if err != nil {
		return nil, err
	}

	var out webuiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("%s: response contained no images", op)
	}
	images, err := decodeAll(ctx, out.Images)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	info := parseInfo(out.Info)
	if info != nil {
		c.log.Debug().Interface("info", info).Msg("generation result info")
	}
	return &generation.Result{Images: images, Info: info}, nil
}

// parseInfo accepts the info field either as an object or as a string
// holding JSON, which is what the webui actually sends.
func parseInfo(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		raw = json.RawMessage(s)
	}
	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil
	}
	return info
}

type webuiCaptionRequest struct {
	Image string `json:"image"`
	Model string `json:"model"`
}

type webuiUpscaleRequest struct {
	Image string `json:"image"`
	// ResizeMode 1 scales to UpscalingResizeW x UpscalingResizeH.
	ResizeMode        int    `json:"resize_mode"`
	UpscalingResizeW  int    `json:"upscaling_resize_w"`
	UpscalingResizeH  int    `json:"upscaling_resize_h"`
	UpscalingCrop     bool   `json:"upscaling_crop"`
	Upscaler1         string `json:"upscaler_1"`
	ShowExtrasResults bool   `json:"show_extras_results"`
}

type webuiUpscaleResponse struct {
	Image    string `json:"image"`
	HTMLInfo string `json:"html_info"`
}

// Interrogate asks the server's captioning model for a prompt describing
// img.
func (c *WebUI) Interrogate(ctx context.Context, img image.Image) (string, error) {
	const op = "webui interrogate"
	encoded, err := encodePNG(img, true)
	if err != nil {
		return "", err
	}
	data, err := c.postJSON(ctx, op, webuiCaption, webuiCaptionRequest{Image: encoded, Model: c.model})
	if err != nil {
		return "", err
	}
	var out struct {
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", op, err)
	}
	caption := strings.TrimSpace(out.Caption)
	c.log.Debug().Str("model", c.model).Str("caption", caption).Msg("interrogate finished")
	return caption, nil
}

// Upscale resizes img to w x h with the configured webui upscaler.
func (c *WebUI) Upscale(ctx context.Context, img image.Image, w, h int) (image.Image, error) {
	const op = "webui upscale"
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%s: invalid size %dx%d", op, w, h)
	}
	encoded, err := encodePNG(img, true)
	if err != nil {
		return nil, err
	}
	body := webuiUpscaleRequest{
		Image:             encoded,
		ResizeMode:        1,
		UpscalingResizeW:  w,
		UpscalingResizeH:  h,
		Upscaler1:         c.upscaler,
		ShowExtrasResults: true,
	}
	c.log.Debug().Str("upscaler", c.upscaler).Int("width", w).Int("height", h).Msg("sending upscale request")
	data, err := c.postJSON(ctx, op, webuiUpscale, body)
	if err != nil {
		return nil, err
	}
	var out webuiUpscaleResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if out.Image == "" {
		return nil, fmt.Errorf("%s: response contained no image", op)
	}
	result, err := decodeImage(out.Image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CheckProgress reads the server's progress endpoint.
func (c *WebUI) CheckProgress(ctx context.Context) (generation.Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, webuiProgress, nil)
	if err != nil {
		return generation.Progress{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return generation.Progress{}, fmt.Errorf("webui progress: %w", err)
	}
	defer resp.Body.Close()
	data, err := readBody("webui progress", resp)
	if err != nil {
		return generation.Progress{}, err
	}
	var out webuiProgressResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return generation.Progress{}, fmt.Errorf("webui progress: decode response: %w", err)
	}
	return generation.Progress{
		Fraction:           out.Progress,
		ETARelative:        out.ETARelative,
		CurrentImageActive: out.CurrentImage != nil,
	}, nil
}

// HealthCheck reports whether a webui API answers at the base URL. A server
// that demands authentication still counts as present.
func (c *WebUI) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, webuiLoginChk, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("url", c.baseURL).Msg("login check connection failed")
		return false
	}
	defer resp.Body.Close()
	data, err := readBody("webui login check", resp)
	if err == nil {
		return true
	}
	if resp.StatusCode == http.StatusUnauthorized {
		var body struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &body) == nil && body.Detail == authErrorDetail {
			return true
		}
	}
	c.log.Debug().Err(err).Msg("login check returned failure response")
	return false
}

// Login authenticates the session cookie with the configured credentials.
func (c *WebUI) Login(ctx context.Context) error {
	if c.username == "" {
		return errors.New("webui login: no username configured")
	}
	form := url.Values{"username": {c.username}, "password": {c.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+webuiLogin,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webui login: %w", err)
	}
	defer resp.Body.Close()
	if _, err := readBody("webui login", resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	c.log.Info().Str("user", c.username).Msg("logged in")
	return nil
}

// LoggedIn reports whether Login has succeeded.
func (c *WebUI) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// postJSON sends body and, when a username is configured, logs in and
// retries once after a 401.
func (c *WebUI) postJSON(ctx context.Context, op, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	data, err := c.post(ctx, op, endpoint, payload)
	if IsUnauthorized(err) && c.username != "" {
		if lerr := c.Login(ctx); lerr != nil {
			return nil, lerr
		}
		data, err = c.post(ctx, op, endpoint, payload)
	}
	return data, err
}

func (c *WebUI) post(ctx context.Context, op, endpoint string, payload []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	return readBody(op, resp)
}

func (c *WebUI) newRequest(ctx context.Context, method, endpoint string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}
