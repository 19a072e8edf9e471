// Package config provides the configuration schema, loader, and provider registry
// for the scriptsync alignment service.
package config

import (
	"time"

	"github.com/MrWong99/scriptsync/pkg/align"
)

// LogLevel controls log verbosity for the scriptsync server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultLogLevel       = LogInfo
	DefaultMaxUploadBytes = 64 << 20
	DefaultLanguage       = "en"
	MaxLookahead          = 64
)

// Config is the root configuration structure for scriptsync.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Aligner AlignerConfig `yaml:"aligner"`
	STT     ProviderEntry `yaml:"stt"`
	Cache   CacheConfig   `yaml:"cache"`

	// STTFallbacks are tried in order when the primary STT provider fails or
	// its circuit breaker is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// Breaker tunes the circuit breaker placed in front of each STT provider
	// when fallbacks are configured.
	Breaker BreakerConfig `yaml:"breaker"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the TCP address serving Prometheus /metrics. Empty
	// disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxUploadBytes caps the size of a request body. Zero selects
	// [DefaultMaxUploadBytes].
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ShutdownTimeout bounds graceful shutdown. Zero means 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AlignerConfig tunes the alignment engine.
type AlignerConfig struct {
	// Lookahead is the number of recognised tokens examined per script word.
	Lookahead int `yaml:"lookahead"`

	// Interpolation selects how unmatched words are detected.
	Interpolation align.InterpolationMode `yaml:"interpolation"`
}

// Options returns the aligner options described by c.
func (c AlignerConfig) Options() []align.Option {
	return []align.Option{
		align.WithLookahead(c.Lookahead),
		align.WithInterpolation(c.Interpolation),
	}
}

// ProviderEntry is the configuration block for a speech-to-text provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "openai").
	// Empty disables transcription.
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1"),
	// or the model file for in-process inference.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// Language returns the "language" option, or [DefaultLanguage].
func (e ProviderEntry) Language() string {
	if s, ok := e.Options["language"].(string); ok && s != "" {
		return s
	}
	return DefaultLanguage
}

// CacheConfig configures the transcript cache.
type CacheConfig struct {
	// Path is the SQLite database file. Empty disables caching.
	Path string `yaml:"path"`

	// MaxAge prunes entries older than this on startup. Zero keeps everything.
	MaxAge time.Duration `yaml:"max_age"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Zero selects 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing the
	// provider again. Zero selects 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Aligner.Lookahead == 0 {
		cfg.Aligner.Lookahead = align.DefaultLookahead
	}
	if cfg.Aligner.Interpolation == "" {
		cfg.Aligner.Interpolation = align.InterpolateUnmatched
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
