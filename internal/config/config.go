// Package config loads the readmark service configuration from a YAML file
// and READMARK_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/article"
	"github.com/hazyhaar/readmark/prefs"
	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Engine   annotate.Config `yaml:"engine"`
	Article  article.Config  `yaml:"article"`
	Store    StoreConfig     `yaml:"store"`
	Sinks    []SinkConfig    `yaml:"sinks"`
	Prefs    prefs.Prefs     `yaml:"prefs"`
	LogLevel string          `yaml:"log_level"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	MaxBody      int64         `yaml:"max_body"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MCP          *bool         `yaml:"mcp"` // default true
	// QueueSize is the per-page notification buffer.
	QueueSize int `yaml:"queue_size"`
}

// MCPEnabled reports whether the /mcp endpoint is mounted.
func (s ServerConfig) MCPEnabled() bool { return s.MCP == nil || *s.MCP }

// StoreConfig locates the highlight database. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SinkConfig defines a host notification backend.
type SinkConfig struct {
	Type    string        `yaml:"type"` // stdout | webhook
	URL     string        `yaml:"url"`  // for webhook
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path when set, else starts from defaults, then applies the
// environment overrides and validates.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the listen address, database path, log level and
// article base URL from READMARK_ADDR, READMARK_DB, READMARK_LOG_LEVEL and
// READMARK_BASE_URL.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("READMARK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("READMARK_DB"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("READMARK_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getenv("READMARK_BASE_URL"); v != "" {
		c.Article.BaseURL = v
	}
}

// Validate checks values defaults cannot repair.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	if err := c.Prefs.Validate(); err != nil {
		return fmt.Errorf("config: prefs: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8417"
	}
	if c.Server.MaxBody <= 0 {
		c.Server.MaxBody = 4 << 20
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 256
	}
	c.Engine.ApplyDefaults()
	if c.Article.Timeout <= 0 {
		c.Article.Timeout = 30 * time.Second
	}
	if c.Prefs == (prefs.Prefs{}) {
		c.Prefs = prefs.Default()
	}
	if c.Prefs.FontSize == 0 {
		c.Prefs.FontSize = prefs.DefaultFontSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "" {
			c.Sinks[i].Type = "stdout"
		}
	}
}
