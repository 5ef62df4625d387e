// Package config loads the orchestrator's settings file with
// github.com/spf13/viper: a typed Settings struct, CLOVIS_* environment
// overrides, and a bootstrap routine that rewrites host/port back to disk
// once an ephemeral port has been chosen.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// OverlayConfig is the overlay WebSocket bind address. The bootstrap
// routine may rewrite Port after an ephemeral bind.
type OverlayConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ScreenConfig names the physical screen dimensions used to normalize
// coordinate tools.
type ScreenConfig struct {
	Width  int `mapstructure:"screen_width"`
	Height int `mapstructure:"screen_height"`
}

// ViewportConfig names the overlay renderer's logical viewport, used by
// the Draw Action Queue's text-layout and coordinate-normalization rules.
type ViewportConfig struct {
	Width  int `mapstructure:"viewport_width"`
	Height int `mapstructure:"viewport_height"`
}

// TTSConfig describes the optional text-to-speech endpoint. The core only
// fires a "speak this text" side effect and tolerates missing
// configuration.
type TTSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// ModelProviderConfig describes the OpenAI-compatible chat completions
// endpoint backing every modelclient.Invoker call. The provider itself is
// external; only the settings that locate it live here.
type ModelProviderConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// CLIRunnerConfig locates the external cli-runner bundle the CLI Agent
// drives.
type CLIRunnerConfig struct {
	NodeBin    string `mapstructure:"node_bin"`
	RunnerPath string `mapstructure:"runner_path"`
	APIKeyEnv  string `mapstructure:"api_key_env"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Settings is the root settings object: overlay bind address, screen and
// viewport dimensions, per-role model names, personalization, TTS, plus
// logging, model provider location, and cli-runner location.
type Settings struct {
	Overlay            OverlayConfig       `mapstructure:"overlay"`
	Screen             ScreenConfig        `mapstructure:"screen"`
	Viewport           ViewportConfig      `mapstructure:"viewport"`
	RapidResponseModel string              `mapstructure:"rapid_response_model"`
	ClovisModel        string              `mapstructure:"clovis_model"`
	VisionModel        string              `mapstructure:"vision_model"`
	VisionLocatorModel string              `mapstructure:"vision_locator_model"`
	ScreenJudgeModel   string              `mapstructure:"screen_judge_model"`
	Personalization    string              `mapstructure:"personalization"`
	TTS                TTSConfig           `mapstructure:"tts"`
	ModelProvider      ModelProviderConfig `mapstructure:"model_provider"`
	CLIRunner          CLIRunnerConfig     `mapstructure:"cli_runner"`
	Log                LogConfig           `mapstructure:"log"`

	path string
}

var (
	mu     sync.Mutex
	loaded *Settings
)

// SetDefaults installs every Settings default onto v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("overlay.host", "127.0.0.1")
	v.SetDefault("overlay.port", 8765)
	v.SetDefault("screen.screen_width", 1920)
	v.SetDefault("screen.screen_height", 1080)
	v.SetDefault("viewport.viewport_width", 1920)
	v.SetDefault("viewport.viewport_height", 1080)
	v.SetDefault("rapid_response_model", "gpt-4o-mini")
	v.SetDefault("clovis_model", "gpt-4o")
	v.SetDefault("vision_model", "gpt-4o")
	v.SetDefault("vision_locator_model", "gpt-4o-mini")
	v.SetDefault("screen_judge_model", "gpt-4o-mini")
	v.SetDefault("personalization", "")
	v.SetDefault("tts.enabled", false)
	v.SetDefault("cli_runner.node_bin", "node")
	v.SetDefault("cli_runner.api_key_env", "CLOVIS_CLI_API_KEY")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads settings from path (falling back to defaults for anything the
// file or environment does not set). Environment overrides use the
// CLOVIS_ prefix with "." replaced by "_" (e.g. CLOVIS_OVERLAY_PORT).
func Load(path string) (*Settings, error) {
	mu.Lock()
	defer mu.Unlock()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("CLOVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
				if !os.IsNotExist(err) {
					return nil, fmt.Errorf("config: parse %s: %w", expanded, err)
				}
			}
		}
		path = expanded
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.path = path
	loaded = &cfg
	return &cfg, nil
}

// PersistBoundPort rewrites host/port back to the settings file after the
// Overlay Transport chose an ephemeral port because the configured one was
// taken.
func (s *Settings) PersistBoundPort(host string, port int) error {
	mu.Lock()
	defer mu.Unlock()

	s.Overlay.Host = host
	s.Overlay.Port = port
	if s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	_ = v.ReadInConfig()
	v.Set("overlay.host", host)
	v.Set("overlay.port", port)
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("config: persist %s: %w", s.path, err)
	}
	return nil
}

// PersistModelAPIKey writes the model provider API key back to the
// settings file, creating the file if it does not exist yet. An empty key
// clears the stored credential.
func (s *Settings) PersistModelAPIKey(key string) error {
	mu.Lock()
	defer mu.Unlock()

	s.ModelProvider.APIKey = key
	if s.path == "" {
		return fmt.Errorf("config: no settings file path to persist to")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	_ = v.ReadInConfig()
	v.Set("model_provider.api_key", key)
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("config: persist %s: %w", s.path, err)
	}
	return nil
}

// Path returns the settings file this Settings was loaded from, or "" if
// it was constructed purely from defaults/environment.
func (s *Settings) Path() string { return s.path }
