package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/scriptsync/pkg/audio"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
	"github.com/MrWong99/scriptsync/pkg/provider/stt/openai"
)

type captured struct {
	model       string
	format      string
	granularity []string
	language    string
	sampleRate  int
}

func newServer(t *testing.T, body any, got *captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		pcm, err := audio.DecodeWAV(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got.model = r.FormValue("model")
			got.format = r.FormValue("response_format")
			got.granularity = r.MultipartForm.Value["timestamp_granularities[]"]
			got.language = r.FormValue("language")
			got.sampleRate = pcm.SampleRate
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func clip() stt.Audio {
	return stt.Audio{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTranscribe_Words(t *testing.T) {
	t.Parallel()

	body := map[string]any{
		"task":     "transcribe",
		"language": "english",
		"duration": 1.25,
		"text":     "Hello and welcome.",
		"words": []map[string]any{
			{"word": "Hello", "start": 0.0, "end": 0.5},
			{"word": "and", "start": 0.5, "end": 0.7},
			{"word": "welcome", "start": 0.7, "end": 1.2},
		},
	}
	var got captured
	srv := newServer(t, body, &got)
	defer srv.Close()

	p, err := openai.New("key", "", openai.WithBaseURL(srv.URL), openai.WithLanguage("en"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), clip())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	want := []stt.WordDetail{
		{Word: "Hello", Start: 0, End: 500 * time.Millisecond, Confidence: 1},
		{Word: "and", Start: 500 * time.Millisecond, End: 700 * time.Millisecond, Confidence: 1},
		{Word: "welcome", Start: 700 * time.Millisecond, End: 1200 * time.Millisecond, Confidence: 1},
	}
	if len(tr.Words) != len(want) {
		t.Fatalf("len(Words) = %d, want %d", len(tr.Words), len(want))
	}
	for i := range want {
		if tr.Words[i] != want[i] {
			t.Errorf("word %d = %+v, want %+v", i, tr.Words[i], want[i])
		}
	}
	if tr.Duration != 1250*time.Millisecond {
		t.Errorf("Duration = %v, want 1.25s", tr.Duration)
	}

	if got.model != openai.DefaultModel {
		t.Errorf("model = %q, want %q", got.model, openai.DefaultModel)
	}
	if got.format != "verbose_json" {
		t.Errorf("response_format = %q, want verbose_json", got.format)
	}
	if got.language != "en" {
		t.Errorf("language = %q, want en", got.language)
	}
	if got.sampleRate != 16000 {
		t.Errorf("uploaded sample rate = %d, want 16000", got.sampleRate)
	}
}

func TestTranscribe_TextWithoutWordsFails(t *testing.T) {
	t.Parallel()

	srv := newServer(t, map[string]any{"text": "Hello"}, nil)
	defer srv.Close()

	p, _ := openai.New("key", "gpt-4o-transcribe", openai.WithBaseURL(srv.URL), openai.WithMaxRetries(0))
	if _, err := p.Transcribe(context.Background(), clip()); err == nil {
		t.Fatal("expected error when no word timestamps are returned")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	p, _ := openai.New("key", "")
	if _, err := p.Transcribe(context.Background(), stt.Audio{}); !errors.Is(err, stt.ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := openai.New("key", "", openai.WithBaseURL(srv.URL), openai.WithMaxRetries(0))
	if _, err := p.Transcribe(context.Background(), clip()); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}
