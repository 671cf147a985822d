package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Idempotency backends.
const (
	IdempotencyBackendMemory = "memory"
	IdempotencyBackendRedis  = "redis"
)

// Config represents the application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	MCP         MCPConfig         `yaml:"mcp"`
	Store       StoreConfig       `yaml:"store"`
	Mirror      MirrorConfig      `yaml:"mirror"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Resources   ResourcesConfig   `yaml:"resources"`
	Watcher     WatcherConfig     `yaml:"watcher"`
}

// Validate validates every configuration section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.MCP.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Mirror.Validate(); err != nil {
		return err
	}
	if err := c.Idempotency.Validate(); err != nil {
		return err
	}
	if err := c.Resources.Validate(); err != nil {
		return err
	}
	return c.Watcher.Validate()
}

// LogConfig controls the JSON logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured name onto a slog level. Unset means info.
func (c *LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// MCPConfig names the server advertised during the MCP handshake.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Validate validates the MCP configuration.
func (c *MCPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Version, validation.Required),
	)
}

// StoreConfig holds SQLite database configuration.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// MirrorConfig locates the git mirror and sets its commit identity.
type MirrorConfig struct {
	Path        string `yaml:"path"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Validate validates the mirror configuration.
func (c *MirrorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.AuthorName, validation.Required),
		validation.Field(&c.AuthorEmail, validation.Required),
	)
}

// IdempotencyConfig selects the replay-cache backend.
//
// Backend controls where idempotency records live:
//   - "memory" (default): in-process cache, suitable for a single server.
//   - "redis": shared cache in Redis; Redis.Addr must be non-empty.
type IdempotencyConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Validate validates the idempotency configuration.
func (c *IdempotencyConfig) Validate() error {
	// Normalise empty backend to "memory" for backward compatibility.
	if c.Backend == "" {
		c.Backend = IdempotencyBackendMemory
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(IdempotencyBackendMemory, IdempotencyBackendRedis)),
	); err != nil {
		return err
	}
	if c.Backend == IdempotencyBackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("idempotency: backend is %q but redis.addr is empty", IdempotencyBackendRedis)
	}
	return nil
}

// ResourcesConfig tunes the read-side resource cache.
type ResourcesConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the configured TTL as a duration.
func (c *ResourcesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Validate validates the resources configuration.
func (c *ResourcesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheTTLSeconds, validation.Min(0)),
	)
}

// WatcherConfig controls the out-of-band mirror watcher.
type WatcherConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Debounce returns the settle window as a duration.
func (c *WatcherConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Port: 8080},
		MCP: MCPConfig{
			Name:    "Cooking Lab Notebook",
			Version: "1.0.0",
		},
		Store: StoreConfig{Path: "./cooking-mcp.db"},
		Mirror: MirrorConfig{
			Path:        "./mirror",
			AuthorName:  "Lab Notebook",
			AuthorEmail: "lab@example.com",
		},
		Idempotency: IdempotencyConfig{Backend: IdempotencyBackendMemory},
		Resources:   ResourcesConfig{CacheTTLSeconds: 300},
		Watcher:     WatcherConfig{Enabled: true, DebounceMS: 500},
	}
}
