// Package config loads intrapaint settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"intrapaint/internal/generation"
	"intrapaint/internal/staging"
)

const (
	appDir     = "intrapaint"
	configFile = "intrapaint.yaml"
)

// Backend modes.
const (
	BackendAuto  = "auto"
	BackendWebUI = "webui"
	BackendGLID  = "glid"
	BackendMock  = "mock"
)

// Environment variables that override file values.
const (
	EnvServerURL = "INTRAPAINT_SERVER_URL"
	EnvBackend   = "INTRAPAINT_BACKEND"
	EnvLogLevel  = "INTRAPAINT_LOG_LEVEL"
	EnvUsername  = "SD_UNAME"
	EnvPassword  = "SD_PASS"
)

// Config is the full application configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Generation GenerationConfig `yaml:"generation"`
	Staging    StagingConfig    `yaml:"staging"`
	Polling    PollingConfig    `yaml:"polling"`
	Log        LogConfig        `yaml:"log"`
}

type BackendConfig struct {
	Mode      string        `yaml:"mode"`
	ServerURL string        `yaml:"server_url"`
	Timeout   time.Duration `yaml:"timeout"`
	// FastNgrok disables the reduced polling rate used for ngrok tunnels.
	FastNgrok bool   `yaml:"fast_ngrok"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	// Upscaler names the webui upscaler used when enlarging the image.
	Upscaler string `yaml:"upscaler"`
	// InterrogateModel is the webui captioning model, "clip" or "deepdanbooru".
	InterrogateModel string `yaml:"interrogate_model"`
}

type GenerationConfig struct {
	EditMode          string  `yaml:"edit_mode"`
	BatchSize         int     `yaml:"batch_size"`
	BatchCount        int     `yaml:"batch_count"`
	Prompt            string  `yaml:"prompt"`
	NegativePrompt    string  `yaml:"negative_prompt"`
	Steps             int     `yaml:"steps"`
	CFGScale          float64 `yaml:"cfg_scale"`
	Seed              int64   `yaml:"seed"`
	DenoisingStrength float64 `yaml:"denoising_strength"`
	SamplerName       string  `yaml:"sampler_name"`
	SkipSteps         int     `yaml:"skip_steps"`
	MaxEditSize       int     `yaml:"max_edit_size"`
	ScaleSelection    bool    `yaml:"scale_selection"`
	InpaintFullRes    bool    `yaml:"inpaint_full_res"`
	InpaintPadding    int     `yaml:"inpaint_padding"`
	MaskBlur          int     `yaml:"mask_blur"`
	RestoreFaces      bool    `yaml:"restore_faces"`
	Tiling            bool    `yaml:"tiling"`
}

type StagingConfig struct {
	UpscaleMode           string `yaml:"upscale_mode"`
	DownscaleMode         string `yaml:"downscale_mode"`
	RemoveUnmaskedChanges bool   `yaml:"remove_unmasked_changes"`
	SaveSketchInResult    bool   `yaml:"save_sketch_in_result"`
	Feather               int    `yaml:"feather"`
	CropToMask            bool   `yaml:"crop_to_mask"`
	MaskPadding           int    `yaml:"mask_padding"`
}

type PollingConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	MaxErrors   int           `yaml:"max_errors"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Mode:             BackendAuto,
			Timeout:          30 * time.Second,
			Upscaler:         "Lanczos",
			InterrogateModel: "clip",
		},
		Generation: GenerationConfig{
			EditMode:          generation.Inpaint.String(),
			BatchSize:         3,
			BatchCount:        1,
			Steps:             30,
			CFGScale:          7.0,
			Seed:              -1,
			DenoisingStrength: 0.5,
			SamplerName:       "Euler a",
			MaxEditSize:       512,
			InpaintPadding:    32,
			MaskBlur:          4,
		},
		Staging: StagingConfig{
			UpscaleMode:   staging.PolicyBiLinear,
			DownscaleMode: staging.PolicyCatmullRom,
			MaskPadding:   16,
		},
		Polling: PollingConfig{
			MinInterval: generation.DefaultMinInterval,
			MaxInterval: generation.DefaultMaxInterval,
			MaxErrors:   generation.DefaultMaxErrors,
		},
		Log: LogConfig{Level: "info", Pretty: true},
	}
}

// DefaultPath returns ~/.config/intrapaint/intrapaint.yaml, or the
// platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, appDir, configFile)
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; an empty path uses DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		c.Backend.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackend)); v != "" {
		c.Backend.Mode = strings.ToLower(v)
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.Backend.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Backend.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend.Mode {
	case BackendAuto, BackendWebUI, BackendGLID, BackendMock:
	default:
		return fmt.Errorf("backend.mode: unknown backend %q", c.Backend.Mode)
	}
	if _, err := generation.ParseEditMode(c.Generation.EditMode); err != nil {
		return fmt.Errorf("generation.edit_mode: %w", err)
	}
	if c.Generation.BatchSize < 1 || c.Generation.BatchCount < 1 {
		return fmt.Errorf("generation: batch_size and batch_count must be positive, got %d and %d",
			c.Generation.BatchSize, c.Generation.BatchCount)
	}
	if c.Generation.DenoisingStrength < 0 || c.Generation.DenoisingStrength > 1 {
		return fmt.Errorf("generation.denoising_strength: %s out of range [0,1]",
			strconv.FormatFloat(c.Generation.DenoisingStrength, 'g', -1, 64))
	}
	for _, name := range []string{c.Staging.UpscaleMode, c.Staging.DownscaleMode} {
		if _, err := staging.LookupPolicy(name); err != nil {
			return fmt.Errorf("staging: %w", err)
		}
	}
	if c.Polling.MinInterval <= 0 || c.Polling.MaxInterval < c.Polling.MinInterval {
		return fmt.Errorf("polling: invalid interval range %s..%s", c.Polling.MinInterval, c.Polling.MaxInterval)
	}
	if c.Polling.MaxErrors < 1 {
		return fmt.Errorf("polling.max_errors: must be at least 1, got %d", c.Polling.MaxErrors)
	}
	return nil
}

// EditMode returns the parsed generation edit mode.
func (c Config) EditMode() generation.EditMode {
	m, err := generation.ParseEditMode(c.Generation.EditMode)
	if err != nil {
		return generation.Inpaint
	}
	return m
}

// Params converts the generation section to backend parameters.
func (c Config) Params() generation.Params {
	g := c.Generation
	return generation.Params{
		Prompt:            g.Prompt,
		NegativePrompt:    g.NegativePrompt,
		Steps:             g.Steps,
		GuidanceScale:     g.CFGScale,
		Seed:              g.Seed,
		DenoisingStrength: g.DenoisingStrength,
		SamplerName:       g.SamplerName,
		SkipSteps:         g.SkipSteps,
		MaskBlur:          g.MaskBlur,
		InpaintFullRes:    g.InpaintFullRes,
		InpaintPadding:    g.InpaintPadding,
		RestoreFaces:      g.RestoreFaces,
		Tiling:            g.Tiling,
	}
}

// CoordinatorOptions converts the polling section.
func (c Config) CoordinatorOptions() generation.Options {
	return generation.Options{
		MinInterval: c.Polling.MinInterval,
		MaxInterval: c.Polling.MaxInterval,
		MaxErrors:   c.Polling.MaxErrors,
	}
}

// StagerOptions converts the staging and edit size settings.
func (c Config) StagerOptions() staging.Options {
	up, _ := staging.LookupPolicy(c.Staging.UpscaleMode)
	down, _ := staging.LookupPolicy(c.Staging.DownscaleMode)
	return staging.Options{
		Upscale:               up,
		Downscale:             down,
		ScaleToEditSize:       c.Generation.ScaleSelection,
		MaxEditSize:           c.Generation.MaxEditSize,
		CropToMask:            c.Staging.CropToMask,
		MaskPadding:           c.Staging.MaskPadding,
		RemoveUnmaskedChanges: c.Staging.RemoveUnmaskedChanges,
		Feather:               c.Staging.Feather,
		KeepSketch:            c.Staging.SaveSketchInResult,
	}
}
