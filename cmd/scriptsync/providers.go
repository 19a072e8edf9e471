package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/scriptsync/internal/config"
	"github.com/MrWong99/scriptsync/internal/health"
	"github.com/MrWong99/scriptsync/internal/resilience"
	"github.com/MrWong99/scriptsync/internal/service"
	"github.com/MrWong99/scriptsync/internal/tokenfile"
	"github.com/MrWong99/scriptsync/internal/transcriptcache"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
	"github.com/MrWong99/scriptsync/pkg/provider/stt/deepgram"
	"github.com/MrWong99/scriptsync/pkg/provider/stt/mock"
	oaistt "github.com/MrWong99/scriptsync/pkg/provider/stt/openai"
	"github.com/MrWong99/scriptsync/pkg/provider/stt/whisper"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the speech-to-text factories that ship with
// scriptsync into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		opts = append(opts, whisper.WithLanguage(entry.Language()))
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(modelPath, whisper.WithNativeLanguage(entry.Language()))
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaistt.WithTimeout(d))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{
			deepgram.WithModel(entry.Model),
			deepgram.WithLanguage(entry.Language()),
			deepgram.WithEndpoint(entry.BaseURL),
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, deepgram.WithTimeout(d))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// mock replays a token file as the transcript of every recording. Useful
	// for demos and for exercising the pipeline without a model.
	reg.RegisterSTT("mock", func(entry config.ProviderEntry) (stt.Provider, error) {
		p := &mock.Provider{}
		path := optString(entry.Options, "tokens_file")
		if path == "" {
			return p, nil
		}
		tokens, _, err := tokenfile.ReadFile(path, tokenfile.FormatAuto)
		if err != nil {
			return nil, err
		}
		words := make([]stt.WordDetail, len(tokens))
		for i, t := range tokens {
			words[i] = stt.WordDetail{
				Word:       t.Text,
				Start:      time.Duration(t.StartMs) * time.Millisecond,
				End:        time.Duration(t.EndMs) * time.Millisecond,
				Confidence: t.Confidence,
			}
		}
		p.Result = stt.Transcript{Words: words}
		return p, nil
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// pipeline bundles the service with the resources that must be released when
// the command exits.
type pipeline struct {
	svc      *service.Service
	cache    *transcriptcache.Cache
	provider stt.Provider
	checks   []health.Checker
}

func (r *pipeline) Close() {
	if c, ok := r.provider.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close stt provider", "err", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			slog.Warn("close transcript cache", "err", err)
		}
	}
}

// buildPipeline instantiates the configured provider and cache and returns a
// ready service. With requireSTT set a missing provider is an error.
func buildPipeline(ctx context.Context, cfg *config.Config, requireSTT bool, extra ...service.Option) (*pipeline, error) {
	pl := &pipeline{}
	opts := []service.Option{service.WithAligner(cfg.Aligner)}

	if name := cfg.STT.Name; name != "" {
		reg := config.NewRegistry()
		registerBuiltinProviders(reg)
		p, err := reg.CreateSTT(cfg.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "stt", "name", name, "model", cfg.STT.Model)
		pl.provider = p
		pl.checks = append(pl.checks, sttChecks("stt", cfg.STT)...)

		if len(cfg.STTFallbacks) > 0 {
			chain := resilience.NewChain(p, name, resilience.BreakerConfig{
				MaxFailures:  cfg.Breaker.MaxFailures,
				ResetTimeout: cfg.Breaker.ResetTimeout,
			})
			pl.provider = chain
			for i, entry := range cfg.STTFallbacks {
				fb, err := reg.CreateSTT(entry)
				if err != nil {
					pl.Close()
					return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
				}
				label := entry.Name + "#" + strconv.Itoa(i+1)
				chain.Add(label, fb)
				pl.checks = append(pl.checks, sttChecks("stt_fallback_"+strconv.Itoa(i+1), entry)...)
				slog.Info("provider created", "kind", "stt_fallback", "name", entry.Name, "model", entry.Model)
			}
		}
		opts = append(opts, service.WithSTT(pl.provider, cfg.STT))
	} else if requireSTT {
		return nil, errors.New("no stt provider configured; set stt.name in the config file")
	}

	if path := cfg.Cache.Path; path != "" && pl.provider != nil {
		cache, err := transcriptcache.Open(ctx, path, transcriptcache.WithMaxAge(cfg.Cache.MaxAge))
		if err != nil {
			pl.Close()
			return nil, err
		}
		pl.cache = cache
		opts = append(opts, service.WithCache(cache))
		pl.checks = append(pl.checks, health.PingCheck("cache", cache))

		if cfg.Cache.MaxAge > 0 {
			n, err := cache.Prune(ctx, time.Now().Add(-cfg.Cache.MaxAge))
			if err != nil {
				slog.Warn("prune transcript cache", "err", err)
			} else if n > 0 {
				slog.Info("pruned transcript cache", "removed", n)
			}
		}
	}

	pl.svc = service.New(append(opts, extra...)...)
	return pl, nil
}

// sttChecks returns the readiness checks for a network-backed provider.
func sttChecks(name string, entry config.ProviderEntry) []health.Checker {
	if entry.Name != "whisper" || entry.BaseURL == "" {
		return nil
	}
	return []health.Checker{health.HTTPCheck(name, &http.Client{Timeout: 3 * time.Second}, entry.BaseURL)}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration option such as "90s". Invalid values are
// logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
