// Package deepgram provides a Deepgram-backed STT provider. A recording is
// streamed over the Deepgram live WebSocket API and the final results are
// collected into one transcript with per-word timing.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// chunkDuration is the amount of audio sent per binary frame.
	chunkDuration = 100 * time.Millisecond

	readLimit = 4 << 20

	// serverErrorGrace bounds the wait for a parsed server error after a
	// failed send.
	serverErrorGrace = 200 * time.Millisecond
)

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		if language != "" {
			p.language = language
		}
	}
}

// WithEndpoint overrides the WebSocket endpoint, e.g. for a self-hosted
// Deepgram deployment.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// WithTimeout bounds a whole transcription. Zero means no limit beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	timeout  time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams audio to Deepgram, asks it to flush with a CloseStream
// message and returns the words of every final result in order.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if len(audio.PCM) < 2 {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", stt.ErrNoAudio)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	sr, ch := audio.SampleRate, audio.Channels
	if sr <= 0 {
		sr = 16000
	}
	if ch <= 0 {
		ch = 1
	}

	wsURL, err := p.buildURL(sr, ch)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	type readResult struct {
		tr  stt.Transcript
		err error
	}
	done := make(chan readResult, 1)
	go func() {
		tr, err := collect(ctx, conn)
		done <- readResult{tr, err}
	}()

	if err := sendAudio(ctx, conn, audio.PCM, chunkBytes(sr, ch)); err != nil {
		// A server-side Error frame usually explains the broken upload.
		select {
		case res := <-done:
			if res.err != nil {
				return stt.Transcript{}, res.err
			}
		case <-time.After(serverErrorGrace):
		}
		return stt.Transcript{}, err
	}

	select {
	case res := <-done:
		if res.err != nil {
			return stt.Transcript{}, res.err
		}
		res.tr.Duration = audio.Duration()
		conn.Close(websocket.StatusNormalClosure, "")
		return res.tr, nil
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", ctx.Err())
	}
}

// buildURL constructs the live endpoint URL for raw 16-bit PCM at the given
// format.
func (p *Provider) buildURL(sampleRate, channels int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func chunkBytes(sampleRate, channels int) int {
	frame := 2 * channels
	n := int(int64(sampleRate) * int64(chunkDuration) / int64(time.Second))
	return max(n, 1) * frame
}

func sendAudio(ctx context.Context, conn *websocket.Conn, pcm []byte, chunk int) error {
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// collect reads messages until Deepgram sends its closing Metadata message
// or closes the connection normally.
func collect(ctx context.Context, conn *websocket.Conn) (stt.Transcript, error) {
	var (
		tr    stt.Transcript
		texts []string
	)
	finish := func() stt.Transcript {
		tr.Text = strings.Join(texts, " ")
		return tr
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finish(), nil
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}

		msg, err := parseMessage(data)
		if err != nil {
			return stt.Transcript{}, err
		}
		switch msg.Type {
		case "Results":
			if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript != "" {
				texts = append(texts, alt.Transcript)
			}
			tr.Words = append(tr.Words, alt.words()...)
		case "Metadata":
			return finish(), nil
		}
	}
}

// message is the subset of the Deepgram live response used here.
type message struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
	Message     string `json:"message"`
	Channel     struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

type alternative struct {
	Transcript string `json:"transcript"`
	Words      []struct {
		Word           string  `json:"word"`
		PunctuatedWord string  `json:"punctuated_word"`
		Start          float64 `json:"start"`
		End            float64 `json:"end"`
		Confidence     float64 `json:"confidence"`
	} `json:"words"`
}

func (a alternative) words() []stt.WordDetail {
	out := make([]stt.WordDetail, 0, len(a.Words))
	for _, w := range a.Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		out = append(out, stt.WordDetail{
			Word:       text,
			Start:      stt.Seconds(w.Start),
			End:        stt.Seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return out
}

// parseMessage decodes a text frame. Error frames are turned into errors.
func parseMessage(data []byte) (message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message{}, fmt.Errorf("deepgram: decode message: %w", err)
	}
	if msg.Type == "Error" {
		desc := msg.Description
		if desc == "" {
			desc = msg.Message
		}
		return message{}, fmt.Errorf("deepgram: server error: %s", desc)
	}
	return msg, nil
}
