// Package cli implements the intrapaint command line.
package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"intrapaint/internal/config"
	"intrapaint/internal/logging"
)

// session is the state every subcommand shares, filled in by the root
// command before any of them run.
type session struct {
	configPath string
	cachePath  string
	backend    string
	serverURL  string
	logLevel   string

	cfg   config.Config
	cache *config.Cache
	log   zerolog.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	s := &session{}

	cmd := &cobra.Command{
		Use:   "intrapaint",
		Short: "Inpainting and image generation against Stable Diffusion servers",
		Long: `IntraPaint sends a selected area of an image to a Stable Diffusion
backend and maps the results back onto the image.

Supported backends are the Automatic1111 stable-diffusion-webui API and
GLID-3-XL servers. With --backend auto the server type is detected.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env if present; ignore errors for missing file
			_ = godotenv.Load()
			return s.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&s.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	flags.StringVar(&s.cachePath, "cache", "", "session cache file (default "+config.DefaultCachePath()+")")
	flags.StringVar(&s.backend, "backend", "", "backend: auto, webui, glid or mock")
	flags.StringVar(&s.serverURL, "server-url", "", "generation server URL")
	flags.StringVar(&s.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newGenerateCmd(s))
	cmd.AddCommand(newStageCmd(s))
	cmd.AddCommand(newInterrogateCmd(s))
	cmd.AddCommand(newUpscaleCmd(s))
	cmd.AddCommand(newHealthCmd(s))

	return cmd
}

func (s *session) init(cmd *cobra.Command) error {
	path := s.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s.backend != "" {
		cfg.Backend.Mode = s.backend
	}
	if s.serverURL != "" {
		cfg.Backend.ServerURL = s.serverURL
	}
	if s.logLevel != "" {
		cfg.Log.Level = s.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.cache = config.LoadCache(s.cachePath)
	s.cache.ApplyTo(&cfg)
	s.cfg = cfg
	s.log = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
	s.log.Debug().Str("config", path).Str("cache", s.cache.Path()).Msg("configuration loaded")
	return nil
}

// remember records the settings of a successful run for the next one.
func (s *session) remember(backend, serverURL string) {
	s.cache.SetString(config.CacheLastBackend, backend)
	if serverURL != "" {
		s.cache.SetString(config.CacheLastServerURL, serverURL)
	}
	s.cache.SetString(config.CacheLastPrompt, s.cfg.Generation.Prompt)
	s.cache.SetInt(config.CacheLastSeed, s.cfg.Generation.Seed)
	if err := s.cache.Save(); err != nil {
		s.log.Warn().Err(err).Str("path", s.cache.Path()).Msg("unable to save session cache")
	}
}
