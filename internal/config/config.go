// Package config loads littlemic settings from YAML, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPerPromptLimit caps recordings per (program, instance, prompt).
const DefaultPerPromptLimit = 30

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Token     string        `mapstructure:"token" yaml:"token,omitempty"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Extension string        `mapstructure:"extension" yaml:"extension"`
}

type GatewayConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AssetsConfig holds the naming templates for static program audio.
// Templates may use {base}, {program} and {order}.
type AssetsConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Intro      string `mapstructure:"intro" yaml:"intro"`
	Outro      string `mapstructure:"outro" yaml:"outro"`
	PromptCue  string `mapstructure:"prompt_cue" yaml:"prompt_cue"`
	Background string `mapstructure:"background" yaml:"background"`
}

type CaptureConfig struct {
	Command        []string `mapstructure:"command" yaml:"command"`
	PerPromptLimit int      `mapstructure:"per_prompt_limit" yaml:"per_prompt_limit"`
}

type UploadConfig struct {
	Concurrency   int     `mapstructure:"concurrency" yaml:"concurrency"`
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

type PlannerConfig struct {
	IncludeRemote bool `mapstructure:"include_remote" yaml:"include_remote"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"`
}

// Config is the fully resolved configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Assets  AssetsConfig  `mapstructure:"assets" yaml:"assets"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Upload  UploadConfig  `mapstructure:"upload" yaml:"upload"`
	Planner PlannerConfig `mapstructure:"planner" yaml:"planner"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultDir is ~/.littlemic.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".littlemic"
	}
	return filepath.Join(home, ".littlemic")
}

// DefaultPath is the config file read when no explicit path is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", filepath.Join(DefaultDir(), "recordings.db"))
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("remote.extension", "mp3")
	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.timeout", 2*time.Minute)
	v.SetDefault("assets.base_url", "")
	v.SetDefault("assets.intro", "{base}/other/intro.mp3")
	v.SetDefault("assets.outro", "{base}/other/outro.mp3")
	v.SetDefault("assets.prompt_cue", "{base}/{program}/{program}-{order}.mp3")
	v.SetDefault("assets.background", "{base}/{program}/{program}-background.mp3")
	v.SetDefault("capture.command", []string{"pw-record", "--rate", "48000", "--channels", "1", "-"})
	v.SetDefault("capture.per_prompt_limit", DefaultPerPromptLimit)
	v.SetDefault("upload.concurrency", 2)
	v.SetDefault("upload.rate_per_second", 4.0)
	v.SetDefault("planner.include_remote", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("metrics.textfile", "")
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads the YAML file at path (or the default path when empty) and
// applies LITTLEMIC_* environment overrides. A missing default file is not
// an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LITTLEMIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || explicit {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Capture.PerPromptLimit <= 0 {
		return fmt.Errorf("capture.per_prompt_limit must be positive, got %d", c.Capture.PerPromptLimit)
	}
	if c.Upload.Concurrency <= 0 {
		return fmt.Errorf("upload.concurrency must be positive, got %d", c.Upload.Concurrency)
	}
	if c.Upload.RatePerSecond < 0 {
		return fmt.Errorf("upload.rate_per_second must not be negative")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	if strings.Contains(c.Remote.Extension, "/") {
		return fmt.Errorf("remote.extension %q must not contain '/'", c.Remote.Extension)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// YAML renders the configuration with the token redacted.
func (c *Config) YAML() ([]byte, error) {
	cp := *c
	if cp.Remote.Token != "" {
		cp.Remote.Token = "<redacted>"
	}
	out, err := yaml.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
