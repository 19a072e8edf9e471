// Package service ties the alignment engine to speech-to-text providers and
// the transcript cache. It is the single entry point used by the HTTP API,
// the MCP tool server and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/scriptsync/internal/config"
	"github.com/MrWong99/scriptsync/internal/observe"
	"github.com/MrWong99/scriptsync/internal/transcriptcache"
	pcmaudio "github.com/MrWong99/scriptsync/pkg/audio"
	"github.com/MrWong99/scriptsync/pkg/align"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

// ErrNoProvider is returned by transcription operations when the service was
// built without a speech-to-text provider.
var ErrNoProvider = errors.New("service: no speech-to-text provider configured")

// Alignment sources recorded on metrics.
const (
	sourceTokens = "tokens"
	sourceAudio  = "audio"
)

// Cache is the subset of [transcriptcache.Cache] used by the service.
type Cache interface {
	Get(ctx context.Context, key transcriptcache.Key) (transcriptcache.Entry, error)
	Put(ctx context.Context, key transcriptcache.Key, text string, tokens []align.RecognizedToken) error
}

var _ Cache = (*transcriptcache.Cache)(nil)

// Transcription is the recognised speech for one recording.
type Transcription struct {
	Text   string                  `json:"text"`
	Tokens []align.RecognizedToken `json:"tokens"`
	Cached bool                    `json:"cached"`
}

// Result is the outcome of [Service.TranscribeAndAlign].
type Result struct {
	align.Alignment
	Transcription Transcription `json:"transcription"`
}

// Option configures a [Service].
type Option func(*Service)

// WithSTT attaches a speech-to-text provider. entry identifies the provider
// configuration for cache keys and metrics.
func WithSTT(p stt.Provider, entry config.ProviderEntry) Option {
	return func(s *Service) {
		s.stt = p
		s.sttName = entry.Name
		s.model = entry.Model
		s.language = entry.Language()
	}
}

// WithCache enables transcript caching.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAligner sets the initial aligner configuration.
func WithAligner(cfg config.AlignerConfig) Option {
	return func(s *Service) { s.aligner.Store(align.New(cfg.Options()...)) }
}

// Service runs alignments. All methods are safe for concurrent use.
type Service struct {
	aligner atomic.Pointer[align.Aligner]

	stt      stt.Provider
	sttName  string
	model    string
	language string

	cache   Cache
	metrics *observe.Metrics
}

// New builds a [Service]. Without [WithAligner] the engine defaults apply.
func New(opts ...Option) *Service {
	s := &Service{}
	s.aligner.Store(align.New())
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// HasSTT reports whether transcription is available.
func (s *Service) HasSTT() bool { return s.stt != nil }

// Aligner returns the aligner currently in use.
func (s *Service) Aligner() *align.Aligner { return s.aligner.Load() }

// Reconfigure swaps the aligner for one built from cfg. In-flight
// alignments finish with the previous settings.
func (s *Service) Reconfigure(cfg config.AlignerConfig) {
	a := align.New(cfg.Options()...)
	s.aligner.Store(a)
	observe.Logger(context.Background()).Info("aligner reconfigured", "lookahead", a.Lookahead(), "interpolation", a.Interpolation())
}

// Align aligns tokens against script with the current aligner.
func (s *Service) Align(ctx context.Context, tokens []align.RecognizedToken, script string) align.Alignment {
	return s.align(ctx, sourceTokens, tokens, script)
}

func (s *Service) align(ctx context.Context, source string, tokens []align.RecognizedToken, script string) align.Alignment {
	ctx, span := observe.StartSpan(ctx, "service.Align")
	defer span.End()

	start := time.Now()
	res := s.aligner.Load().AlignDetailed(tokens, script)
	elapsed := time.Since(start)

	st := res.Stats
	span.SetAttributes(
		attribute.String("align.source", source),
		attribute.Int("align.reference_words", st.ReferenceWords),
		attribute.Int("align.tokens", st.Tokens),
		attribute.Int("align.matched", st.Matched),
	)
	s.metrics.RecordAlignment(ctx, source, "ok", elapsed, st.Matched, st.Interpolated)
	observe.Logger(ctx).Debug("alignment complete",
		"source", source,
		"words", st.ReferenceWords,
		"tokens", st.Tokens,
		"matched", st.Matched,
		"coverage", st.Coverage,
		"duration", elapsed,
	)
	return res
}

// Transcribe returns recognised tokens for audio, consulting the cache
// first. Audio in any PCM format is converted to 16 kHz mono before it
// reaches the provider.
func (s *Service) Transcribe(ctx context.Context, audio stt.Audio) (Transcription, error) {
	if s.stt == nil {
		return Transcription{}, ErrNoProvider
	}
	if len(audio.PCM) == 0 {
		return Transcription{}, fmt.Errorf("service: transcribe: %w", stt.ErrNoAudio)
	}

	ctx, span := observe.StartSpan(ctx, "service.Transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("stt.provider", s.sttName))

	audio = toSpeechFormat(audio)
	key := transcriptcache.Key{Provider: s.sttName, Model: s.model, Language: s.language, Audio: audio}
	log := observe.Logger(ctx)

	if s.cache != nil {
		entry, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			s.metrics.RecordCacheLookup(ctx, "hit")
			span.SetAttributes(attribute.Bool("stt.cached", true))
			return Transcription{Text: entry.Text, Tokens: entry.Tokens, Cached: true}, nil
		case errors.Is(err, transcriptcache.ErrMiss):
			s.metrics.RecordCacheLookup(ctx, "miss")
		default:
			s.metrics.RecordCacheLookup(ctx, "error")
			log.Warn("transcript cache lookup failed", "err", err)
		}
	}

	start := time.Now()
	tr, err := s.stt.Transcribe(ctx, audio)
	s.metrics.RecordTranscription(ctx, s.sttName, time.Since(start))
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.sttName)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Transcription{}, fmt.Errorf("service: transcribe with %s: %w", s.sttName, err)
	}
	tokens := stt.Tokens(tr)

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, tr.Text, tokens); err != nil {
			log.Warn("transcript cache store failed", "err", err)
		}
	}
	log.Debug("transcription complete", "provider", s.sttName, "tokens", len(tokens), "duration", tr.Duration)
	return Transcription{Text: tr.Text, Tokens: tokens}, nil
}

// TranscribeAndAlign transcribes audio and aligns the result against script.
func (s *Service) TranscribeAndAlign(ctx context.Context, audio stt.Audio, script string) (Result, error) {
	tr, err := s.Transcribe(ctx, audio)
	if err != nil {
		s.metrics.RecordAlignment(ctx, sourceAudio, "error", 0, 0, 0)
		return Result{}, err
	}
	return Result{
		Alignment:     s.align(ctx, sourceAudio, tr.Tokens, script),
		Transcription: tr,
	}, nil
}

func toSpeechFormat(a stt.Audio) stt.Audio {
	from := pcmaudio.Format{SampleRate: a.SampleRate, Channels: a.Channels}
	if from.SampleRate <= 0 {
		from.SampleRate = pcmaudio.SpeechFormat.SampleRate
	}
	if from.Channels <= 0 {
		from.Channels = pcmaudio.SpeechFormat.Channels
	}
	to := pcmaudio.SpeechFormat
	return stt.Audio{PCM: pcmaudio.Convert(a.PCM, from, to), SampleRate: to.SampleRate, Channels: to.Channels}
}
