package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/MrWong99/scriptsync/internal/observe"
	"github.com/MrWong99/scriptsync/internal/service"
	pcmaudio "github.com/MrWong99/scriptsync/pkg/audio"
	"github.com/MrWong99/scriptsync/pkg/align"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

type alignRequest struct {
	Tokens []align.RecognizedToken `json:"tokens"`
	Script *string                 `json:"script"`
}

// handleAlign handles POST /v1/align.
func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	var req alignRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Script == nil {
		writeError(w, http.StatusBadRequest, "script is required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Align(r.Context(), req.Tokens, *req.Script))
}

// handleTranscribeAlign handles POST /v1/transcribe-align. The audio part
// must be a WAV file. The script may be sent as a form field or a file part.
func (s *Server) handleTranscribeAlign(w http.ResponseWriter, r *http.Request) {
	if !s.svc.HasSTT() {
		writeError(w, http.StatusServiceUnavailable, "speech-to-text is not configured")
		return
	}

	if !s.limitBody(w, r) {
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	script, err := formText(r, "script")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer f.Close()
	pcm, err := pcmaudio.DecodeWAV(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audio: "+err.Error())
		return
	}

	audio := stt.Audio{PCM: pcm.Data, SampleRate: pcm.SampleRate, Channels: pcm.Channels}
	res, err := s.svc.TranscribeAndAlign(r.Context(), audio, script)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, stt.ErrNoAudio):
		writeError(w, http.StatusBadRequest, "audio contains no samples")
	case errors.Is(err, service.ErrNoProvider):
		writeError(w, http.StatusServiceUnavailable, "speech-to-text is not configured")
	case r.Context().Err() != nil:
		// Client went away; nobody reads the response.
		observe.Logger(r.Context()).Debug("transcribe-align cancelled", "err", err)
	default:
		observe.Logger(r.Context()).Error("transcribe-align failed", "err", err)
		writeError(w, http.StatusBadGateway, "transcription failed: "+err.Error())
	}
}

// formText returns a multipart value sent either as a plain field or as a
// file part.
func formText(r *http.Request, name string) (string, error) {
	if vs, ok := r.MultipartForm.Value[name]; ok && len(vs) > 0 {
		return vs[0], nil
	}
	f, _, err := r.FormFile(name)
	if err != nil {
		return "", errors.New(name + " is required")
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", errors.New("read " + name + ": " + err.Error())
	}
	return string(b), nil
}

type lookupRequest struct {
	Words      []align.AlignedWord `json:"words"`
	PositionMs *int64              `json:"position_ms"`
}

type lookupResponse struct {
	Index      int                `json:"index"`
	Word       *align.AlignedWord `json:"word,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

// handleLookup handles POST /v1/lookup.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.PositionMs == nil {
		writeError(w, http.StatusBadRequest, "position_ms is required")
		return
	}

	resp := lookupResponse{
		Index:      align.WordAt(req.Words, *req.PositionMs),
		DurationMs: align.Duration(req.Words),
	}
	if resp.Index >= 0 {
		resp.Word = &req.Words[resp.Index]
	}
	writeJSON(w, http.StatusOK, resp)
}

type infoResponse struct {
	Version       string                  `json:"version,omitempty"`
	Lookahead     int                     `json:"lookahead"`
	Interpolation align.InterpolationMode `json:"interpolation"`
	STT           bool                    `json:"stt"`
}

// handleInfo handles GET /v1/info.
func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	a := s.svc.Aligner()
	writeJSON(w, http.StatusOK, infoResponse{
		Version:       s.version,
		Lookahead:     a.Lookahead(),
		Interpolation: a.Interpolation(),
		STT:           s.svc.HasSTT(),
	})
}
