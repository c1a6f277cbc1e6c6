package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all runtime settings for the IRIS desktop companion.
type Config struct {
	BindAddr         string        `mapstructure:"app_bind_addr"`
	ShutdownTimeout  time.Duration `mapstructure:"app_shutdown_timeout"`
	MetricsNamespace string        `mapstructure:"app_metrics_namespace"`
	AllowAnyOrigin   bool          `mapstructure:"app_allow_any_origin"`
	LogFormat        string        `mapstructure:"log_format"`
	LogLevel         string        `mapstructure:"log_level"`

	APIKey            string `mapstructure:"iris_api_key"`
	Transport         string `mapstructure:"iris_transport"`
	LiveURL           string `mapstructure:"iris_live_url"`
	Model             string `mapstructure:"iris_model"`
	Voice             string `mapstructure:"iris_voice"`
	SystemInstruction string `mapstructure:"iris_system_instruction"`

	CaptureFrame     time.Duration `mapstructure:"audio_capture_frame"`
	CaptureRate      int           `mapstructure:"audio_capture_rate"`
	PlaybackRate     int           `mapstructure:"audio_playback_rate"`
	ScheduleEpsilon  time.Duration `mapstructure:"audio_schedule_epsilon"`
	PlaybackDisabled bool          `mapstructure:"audio_playback_disabled"`

	WatcherInterval     time.Duration `mapstructure:"watcher_interval"`
	ToolTimeout         time.Duration `mapstructure:"tool_timeout"`
	HistoryContextLimit int           `mapstructure:"history_context_limit"`
	RedactHistory       bool          `mapstructure:"history_redact_pii"`

	DatabaseURL  string `mapstructure:"database_url"`
	AppsFile     string `mapstructure:"apps_alias_file"`
	WorkspaceDir string `mapstructure:"workspace_dir"`
}

var defaults = map[string]any{
	"app_bind_addr":           "127.0.0.1:8787",
	"app_shutdown_timeout":    "15s",
	"app_metrics_namespace":   "iris",
	"app_allow_any_origin":    false,
	"log_format":              "text",
	"log_level":               "info",
	"iris_transport":          "websocket",
	"iris_live_url":           "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent",
	"iris_model":              "models/gemini-2.5-flash-native-audio-preview-12-2025",
	"iris_voice":              "Puck",
	"audio_capture_frame":     "20ms",
	"audio_capture_rate":      0,
	"audio_playback_rate":     24000,
	"audio_schedule_epsilon":  "50ms",
	"audio_playback_disabled": false,
	"watcher_interval":        "10s",
	"tool_timeout":            "20s",
	"history_context_limit":   10,
	"history_redact_pii":      false,
}

// Load reads the optional config file and environment variables and applies safe defaults.
// An empty cfgFile searches for iris.yaml in the user config dir and the working directory.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetDefault("workspace_dir", defaultWorkspaceDir())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("iris")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "iris"))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.AutomaticEnv()
	for key := range defaults {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
	for _, key := range []string{"iris_api_key", "database_url", "apps_alias_file", "workspace_dir"} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
	// The Gemini tooling convention is honoured as a fallback credential source.
	_ = v.BindEnv("iris_api_key", "IRIS_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Transport {
	case "websocket", "genai":
	default:
		return fmt.Errorf("IRIS_TRANSPORT must be websocket or genai, got %q", c.Transport)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("IRIS_MODEL must not be empty")
	}
	if c.CaptureFrame < 5*time.Millisecond || c.CaptureFrame > 200*time.Millisecond {
		return fmt.Errorf("AUDIO_CAPTURE_FRAME must be between 5ms and 200ms")
	}
	if c.CaptureRate < 0 {
		return fmt.Errorf("AUDIO_CAPTURE_RATE must be >= 0")
	}
	if c.PlaybackRate <= 0 {
		return fmt.Errorf("AUDIO_PLAYBACK_RATE must be positive")
	}
	if c.ScheduleEpsilon < 0 {
		return fmt.Errorf("AUDIO_SCHEDULE_EPSILON must be >= 0")
	}
	if c.WatcherInterval < time.Second {
		return fmt.Errorf("WATCHER_INTERVAL must be at least 1s")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT must be positive")
	}
	if c.HistoryContextLimit < 0 {
		return fmt.Errorf("HISTORY_CONTEXT_LIMIT must be >= 0")
	}
	return nil
}

func defaultWorkspaceDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "."
	}
	return filepath.Join(home, "Desktop")
}
