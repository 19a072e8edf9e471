package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTNames lists the STT provider names known to this build.
// Used by [Validate] to warn about unrecognised provider names.
var ValidSTTNames = []string{"whisper", "whisper-native", "openai", "deepgram", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected. An empty document yields [Default].
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if cfg.Server.MetricsAddr != "" && cfg.Server.MetricsAddr == cfg.Server.ListenAddr {
		errs = append(errs, fmt.Errorf("server.metrics_addr %q must differ from server.listen_addr", cfg.Server.MetricsAddr))
	}

	// Aligner
	if cfg.Aligner.Lookahead != 0 && (cfg.Aligner.Lookahead < 1 || cfg.Aligner.Lookahead > MaxLookahead) {
		errs = append(errs, fmt.Errorf("aligner.lookahead %d is out of range [1, %d]", cfg.Aligner.Lookahead, MaxLookahead))
	}
	if cfg.Aligner.Interpolation != "" && !cfg.Aligner.Interpolation.IsValid() {
		errs = append(errs, fmt.Errorf("aligner.interpolation %q is invalid; valid values: unmatched, zero_timestamps", cfg.Aligner.Interpolation))
	}

	// STT
	validateProviderName(cfg.STT.Name)
	switch cfg.STT.Name {
	case "openai", "deepgram":
		if cfg.STT.APIKey == "" {
			errs = append(errs, fmt.Errorf("stt.api_key is required for provider %s", cfg.STT.Name))
		}
	case "whisper-native":
		if cfg.STT.Model == "" {
			errs = append(errs, errors.New("stt.model must point at a model file for provider whisper-native"))
		}
	}

	for i, fb := range cfg.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName(fb.Name)
	}
	if len(cfg.STTFallbacks) > 0 && cfg.STT.Name == "" {
		errs = append(errs, errors.New("stt_fallbacks requires a primary stt provider"))
	}
	if cfg.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures %d must not be negative", cfg.Breaker.MaxFailures))
	}
	if cfg.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("breaker.reset_timeout %s must not be negative", cfg.Breaker.ResetTimeout))
	}

	// Cache
	if cfg.Cache.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("cache.max_age %s must not be negative", cfg.Cache.MaxAge))
	}
	if cfg.Cache.Path != "" && cfg.STT.Name == "" {
		slog.Warn("cache.path is set but no stt provider is configured; the cache will stay empty")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidSTTNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidSTTNames, name) {
		return
	}
	slog.Warn("unknown stt provider name; may be a typo or third-party provider",
		"name", name,
		"known", ValidSTTNames,
	)
}
