// Package openai provides an STT provider backed by the OpenAI audio
// transcription API with word-level timestamp granularity.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/scriptsync/pkg/audio"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

// DefaultModel is the default transcription model. It is the only OpenAI
// model that reports word timestamps.
const DefaultModel = string(oai.AudioModelWhisper1)

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Any server that
// implements the /audio/transcriptions endpoint works.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with each request.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests.
// Negative values keep the client default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI STT Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider. The recording is uploaded as WAV and
// the verbose JSON response is decoded for its word list. OpenAI does not
// report per-word confidence, so every word carries confidence 1.
func (p *Provider) Transcribe(ctx context.Context, a stt.Audio) (stt.Transcript, error) {
	if len(a.PCM) == 0 {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", stt.ErrNoAudio)
	}

	var wav bytes.Buffer
	pcm := audio.PCM{Data: a.PCM, Format: audio.Format{SampleRate: a.SampleRate, Channels: a.Channels}}
	if err := audio.EncodeWAV(&wav, pcm); err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(&wav, "audio.wav", "audio/wav"),
		Model:                  oai.AudioModel(p.model),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return parseVerbose([]byte(resp.RawJSON()))
}

// verboseTranscription is the verbose_json body. Times are in seconds.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func parseVerbose(raw []byte) (stt.Transcript, error) {
	var v verboseTranscription
	if err := json.Unmarshal(raw, &v); err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: decode verbose response: %w", err)
	}
	tr := stt.Transcript{
		Text:     strings.TrimSpace(v.Text),
		Language: v.Language,
		Duration: stt.Seconds(v.Duration),
		Words:    make([]stt.WordDetail, 0, len(v.Words)),
	}
	for _, w := range v.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		tr.Words = append(tr.Words, stt.WordDetail{
			Word:       text,
			Start:      stt.Seconds(w.Start),
			End:        stt.Seconds(w.End),
			Confidence: 1,
		})
	}
	if len(tr.Words) == 0 && tr.Text != "" {
		return stt.Transcript{}, errors.New("openai stt: response has text but no word timestamps")
	}
	return tr, nil
}
