package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arc-hci/arcgrid/internal/domain"
	"github.com/arc-hci/arcgrid/internal/editor"
)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "ARCGRID_CONFIG"

// DefaultConfigFile is the file Discover falls back to in the working directory.
const DefaultConfigFile = "config.yaml"

// Config holds the server's runtime configuration.
type Config struct {
	DBPath           string   `yaml:"db_path"`
	TaskDirs         []string `yaml:"task_dirs"`
	ListenAddr       string   `yaml:"listen_addr"`
	LogLevel         string   `yaml:"log_level"`
	CORSOrigin       string   `yaml:"cors_origin"`
	StreamIntervalMs int      `yaml:"stream_interval_ms"`
	SessionIdleMin   int      `yaml:"session_idle_minutes"`

	ActionLimit      int     `yaml:"action_limit"`
	WarningThreshold int     `yaml:"warning_threshold"`
	MinCellSizePx    float64 `yaml:"min_cell_size_px"`
	MaxDisplaySizePx float64 `yaml:"max_display_size_px"`
}

// Discover picks the config file path: the explicit flag value, then
// $ARCGRID_CONFIG, then config.yaml in the working directory.
func Discover(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigFile
}

// Load reads a YAML (or JSON) config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9800"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = "*"
	}
	if c.StreamIntervalMs == 0 {
		c.StreamIntervalMs = 1000
	}
	if c.SessionIdleMin == 0 {
		c.SessionIdleMin = 120
	}
	defaults := editor.DefaultConfig()
	if c.ActionLimit == 0 {
		c.ActionLimit = defaults.ActionLimit
	}
	if c.WarningThreshold == 0 {
		// 90% of the limit; the editor default when the limit is the default.
		c.WarningThreshold = c.ActionLimit * 9 / 10
		if c.ActionLimit == defaults.ActionLimit {
			c.WarningThreshold = defaults.WarningThreshold
		}
	}
	if c.MinCellSizePx == 0 {
		c.MinCellSizePx = defaults.MinCellSizePx
	}
	if c.MaxDisplaySizePx == 0 {
		c.MaxDisplaySizePx = defaults.MaxDisplaySizePx
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if len(c.TaskDirs) == 0 {
		problems = append(problems, "at least one task_dirs entry is required")
	}
	if c.ActionLimit < 0 {
		problems = append(problems, "action_limit must be positive")
	}
	if c.WarningThreshold < 0 || c.WarningThreshold > c.ActionLimit {
		problems = append(problems, "warning_threshold must be between 1 and action_limit")
	}
	if c.MinCellSizePx < 0 {
		problems = append(problems, "min_cell_size_px must be positive")
	}
	if c.MaxDisplaySizePx < c.MinCellSizePx {
		problems = append(problems, "max_display_size_px must be at least min_cell_size_px")
	}
	if c.StreamIntervalMs < 0 {
		problems = append(problems, "stream_interval_ms must be positive")
	}
	if c.SessionIdleMin < 0 {
		problems = append(problems, "session_idle_minutes must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// Editor returns the editor settings carried by the config.
func (c *Config) Editor() editor.Config {
	return editor.Config{
		ActionLimit:      c.ActionLimit,
		WarningThreshold: c.WarningThreshold,
		MinCellSizePx:    c.MinCellSizePx,
		MaxDisplaySizePx: c.MaxDisplaySizePx,
	}
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q is not one of debug, info, warn, error", s)
	}
	return lvl, nil
}
