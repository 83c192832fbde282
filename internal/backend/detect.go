package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"intrapaint/internal/config"
	"intrapaint/internal/generation"
	"intrapaint/internal/logging"
)

// ErrNoBackend is returned by Detect when no server answered.
var ErrNoBackend = errors.New("no generation backend found")

// Default probe targets, replaced in tests.
var (
	defaultWebUIURL = DefaultWebUIURL
	defaultGLIDURL  = DefaultGLIDURL
)

// Selection is a resolved backend.
type Selection struct {
	Mode      string
	ServerURL string
}

// Detect resolves config.BackendAuto to a concrete backend. An explicit
// server URL is tried as a webui server, then as a GLID server; after that
// the default local ports are probed. Non-auto modes are returned as is.
func Detect(ctx context.Context, cfg config.BackendConfig, log *zerolog.Logger) (Selection, error) {
	l := logging.OrNop(log)
	if cfg.Mode != config.BackendAuto && cfg.Mode != "" {
		return Selection{Mode: cfg.Mode, ServerURL: cfg.ServerURL}, nil
	}
	if cfg.ServerURL != "" {
		if newWebUI(cfg, cfg.ServerURL, log).HealthCheck(ctx) {
			return Selection{Mode: config.BackendWebUI, ServerURL: cfg.ServerURL}, nil
		}
		if newGLID(cfg, config.PollingConfig{}, cfg.ServerURL, log).HealthCheck(ctx) {
			return Selection{Mode: config.BackendGLID, ServerURL: cfg.ServerURL}, nil
		}
		l.Warn().Str("url", cfg.ServerURL).Msg("unable to identify server type, checking default local ports")
	}
	if newWebUI(cfg, defaultWebUIURL, log).HealthCheck(ctx) {
		return Selection{Mode: config.BackendWebUI, ServerURL: defaultWebUIURL}, nil
	}
	if newGLID(cfg, config.PollingConfig{}, defaultGLIDURL, log).HealthCheck(ctx) {
		return Selection{Mode: config.BackendGLID, ServerURL: defaultGLIDURL}, nil
	}
	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}
	return Selection{}, ErrNoBackend
}

// Open detects the backend described by cfg and builds its client.
func Open(ctx context.Context, cfg config.Config, log *zerolog.Logger) (generation.Generator, Selection, error) {
	sel, err := Detect(ctx, cfg.Backend, log)
	if err != nil {
		return nil, sel, err
	}
	logging.OrNop(log).Info().Str("backend", sel.Mode).Str("url", sel.ServerURL).Msg("using backend")
	switch sel.Mode {
	case config.BackendWebUI:
		return newWebUI(cfg.Backend, sel.ServerURL, log), sel, nil
	case config.BackendGLID:
		return newGLID(cfg.Backend, cfg.Polling, sel.ServerURL, log), sel, nil
	case config.BackendMock:
		return NewMock(0), sel, nil
	}
	return nil, sel, fmt.Errorf("unknown backend %q", sel.Mode)
}

func newWebUI(cfg config.BackendConfig, url string, log *zerolog.Logger) *WebUI {
	return NewWebUI(WebUIOptions{
		BaseURL:          url,
		Username:         cfg.Username,
		Password:         cfg.Password,
		Upscaler:         cfg.Upscaler,
		InterrogateModel: cfg.InterrogateModel,
		Logger:           log,
	})
}

func newGLID(cfg config.BackendConfig, poll config.PollingConfig, url string, log *zerolog.Logger) *GLID {
	return NewGLID(GLIDOptions{
		BaseURL:     url,
		Timeout:     cfg.Timeout,
		FastNgrok:   cfg.FastNgrok,
		MinInterval: poll.MinInterval,
		MaxInterval: poll.MaxInterval,
		MaxErrors:   poll.MaxErrors,
		Logger:      log,
	})
}
