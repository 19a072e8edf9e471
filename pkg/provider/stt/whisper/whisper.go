// Package whisper provides whisper.cpp-backed STT providers that report
// word-level timestamps.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST API
// at POST /inference. The recording is uploaded as a WAV file and the server is
// asked for its verbose JSON response, whose segments carry per-word timing.
// Servers that omit word timing still return segment timing; the words of such
// a segment are spread evenly across it.
//
// [NativeProvider] runs the same model in-process through the whisper.cpp CGO
// bindings and merges sub-word tokens into words itself.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	tr, err := p.Transcribe(ctx, stt.Audio{PCM: pcm, SampleRate: 16000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	pcmaudio "github.com/MrWong99/scriptsync/pkg/audio"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which audio is considered silent. The maximum possible value
	// for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultTimeout    = 5 * time.Minute
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
// Defaults to five minutes; long recordings take a while on CPU.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient = &http.Client{Timeout: d}
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
// Functional options may be provided to override defaults.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads audio to the whisper.cpp server and returns its words
// with timing. A recording whose energy never rises above the silence
// threshold yields an empty transcript without contacting the server.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if len(audio.PCM) < 2 {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", stt.ErrNoAudio)
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	sr, ch := audio.SampleRate, audio.Channels
	if sr <= 0 {
		sr = defaultSampleRate
	}
	if ch <= 0 {
		ch = 1
	}
	if computeRMS(audio.PCM) < defaultRMSThreshold {
		return stt.Transcript{Language: p.language, Words: []stt.WordDetail{}}, nil
	}

	var wav bytes.Buffer
	if err := pcmaudio.EncodeWAV(&wav, pcmaudio.PCM{Data: audio.PCM, Format: pcmaudio.Format{SampleRate: sr, Channels: ch}}); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: encode wav: %w", err)
	}
	resp, err := p.infer(ctx, wav.Bytes())
	if err != nil {
		return stt.Transcript{}, err
	}
	tr := resp.transcript()
	if tr.Language == "" {
		tr.Language = p.language
	}
	if tr.Duration == 0 {
		tr.Duration = stt.Audio{PCM: audio.PCM, SampleRate: sr, Channels: ch}.Duration()
	}
	return tr, nil
}

// infer POSTs wav to the whisper.cpp /inference endpoint as
// multipart/form-data and decodes the verbose JSON response.
func (p *Provider) infer(ctx context.Context, wav []byte) (*inferenceResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"temperature", "0.0"},
	}
	if p.language != "" {
		fields = append(fields, [2]string{"language", p.language})
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("whisper: server error: %s", result.Error)
	}
	return &result, nil
}

// ---- response ---------------------------------------------------------------

// inferenceResponse is the verbose_json body returned by whisper-server.
// Times are in seconds.
type inferenceResponse struct {
	Error    string    `json:"error"`
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []segment `json:"segments"`
}

type segment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	AvgLogprob float64 `json:"avg_logprob"`
	Words      []word  `json:"words"`
}

type word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// transcript flattens the response into an stt.Transcript.
func (r *inferenceResponse) transcript() stt.Transcript {
	tr := stt.Transcript{
		Text:     strings.TrimSpace(r.Text),
		Language: r.Language,
		Duration: stt.Seconds(r.Duration),
		Words:    []stt.WordDetail{},
	}
	for _, seg := range r.Segments {
		if len(seg.Words) == 0 {
			tr.Words = append(tr.Words, spreadSegment(seg)...)
			continue
		}
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			tr.Words = append(tr.Words, stt.WordDetail{
				Word:       text,
				Start:      stt.Seconds(w.Start),
				End:        stt.Seconds(w.End),
				Confidence: w.Probability,
			})
		}
	}
	if tr.Text == "" {
		parts := make([]string, 0, len(r.Segments))
		for _, seg := range r.Segments {
			if s := strings.TrimSpace(seg.Text); s != "" {
				parts = append(parts, s)
			}
		}
		tr.Text = strings.Join(parts, " ")
	}
	return tr
}

// spreadSegment splits a segment without word timing on whitespace and
// divides its time span evenly among the words. Confidence is derived from the
// segment's average log probability.
func spreadSegment(seg segment) []stt.WordDetail {
	fields := strings.Fields(seg.Text)
	if len(fields) == 0 {
		return nil
	}
	start, end := stt.Seconds(seg.Start), stt.Seconds(seg.End)
	step := max(end-start, 0) / time.Duration(len(fields))
	conf := math.Exp(seg.AvgLogprob)
	out := make([]stt.WordDetail, len(fields))
	for i, f := range fields {
		out[i] = stt.WordDetail{
			Word:       f,
			Start:      start + time.Duration(i)*step,
			End:        start + time.Duration(i+1)*step,
			Confidence: conf,
		}
	}
	out[len(out)-1].End = max(end, start)
	return out
}

// ---- helpers ----------------------------------------------------------------

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
