// Package server exposes the alignment service over HTTP.
//
//	POST /v1/align              JSON {tokens, script}           -> {words, stats}
//	POST /v1/transcribe-align   multipart audio (WAV) + script  -> {words, stats, transcription}
//	POST /v1/lookup             JSON {words, position_ms}       -> {index, word, duration_ms}
//	GET  /v1/info               aligner and provider settings
//	GET  /healthz, /readyz      probes
//
// Errors are returned as {"error": "..."} with a 4xx or 5xx status.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/scriptsync/internal/config"
	"github.com/MrWong99/scriptsync/internal/health"
	"github.com/MrWong99/scriptsync/internal/observe"
	"github.com/MrWong99/scriptsync/internal/service"
)

// multipartMemory is the part of a multipart body held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts the given probes. Without it only a liveness probe is
// served and /readyz always passes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxUploadBytes caps request bodies. Non-positive values select
// [config.DefaultMaxUploadBytes].
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// WithVersion sets the version reported by /v1/info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server routes HTTP requests to a [service.Service].
type Server struct {
	svc       *service.Service
	health    *health.Handler
	metrics   *observe.Metrics
	maxUpload int64
	version   string
}

// New creates a [Server] for svc.
func New(svc *service.Service, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = config.DefaultMaxUploadBytes
	}
	return s
}

// Handler returns the routed handler wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/align", s.handleAlign)
	mux.HandleFunc("POST /v1/transcribe-align", s.handleTranscribeAlign)
	mux.HandleFunc("POST /v1/lookup", s.handleLookup)
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a size-limited JSON body into v. It writes the error
// response itself and reports whether decoding succeeded.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !s.limitBody(w, r) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// limitBody rejects requests whose declared length exceeds the upload limit
// and caps the body of the rest.
func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	return true
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
