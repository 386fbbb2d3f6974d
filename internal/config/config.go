// Package config loads memory settings from defaults, an optional YAML file
// and AIDE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig       = "AIDE_CONFIG"
	EnvDir          = "AIDE_MEMORY_DIR"
	EnvShortTermMax = "AIDE_SHORT_TERM_MAX"
	EnvMaxFacts     = "AIDE_MAX_FACTS"
	EnvLogLevel     = "AIDE_LOG_LEVEL"
	EnvListen       = "AIDE_LISTEN"
)

// Config holds memory subsystem settings.
type Config struct {
	// Dir is the base storage directory.
	Dir string `yaml:"dir"`
	// ShortTermMax caps the short-term window.
	ShortTermMax int `yaml:"short_term_max"`
	// MaxFacts caps the long-term partition.
	MaxFacts int `yaml:"max_facts"`
	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Listen is the address of the dev HTTP surface.
	Listen string `yaml:"listen"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Dir:          "./aide-memory",
		ShortTermMax: 20,
		MaxFacts:     200,
		LogLevel:     "info",
		Listen:       "127.0.0.1:8089",
	}
}

// Load builds a Config. path names a YAML file; when empty, $AIDE_CONFIG is
// used if set. A missing file named only by the environment is ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDir); v != "" {
		c.Dir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	for env, dst := range map[string]*int{EnvShortTermMax: &c.ShortTermMax, EnvMaxFacts: &c.MaxFacts} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		*dst = n
	}
	return nil
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("memory dir is required")
	}
	if c.ShortTermMax < 1 {
		return fmt.Errorf("short_term_max must be positive, got %d", c.ShortTermMax)
	}
	if c.MaxFacts < 1 {
		return fmt.Errorf("max_facts must be positive, got %d", c.MaxFacts)
	}
	return nil
}
