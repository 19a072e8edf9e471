// Package mcpserver exposes the alignment service as Model Context Protocol
// tools so that assistants can align transcripts and look up playback
// positions.
//
// Tools:
//
//   - align_script: recognised tokens + script -> aligned words and stats.
//   - word_at: aligned words + playback position -> index of the spoken word.
//   - transcribe_align: base64 WAV audio + script -> aligned words. Only
//     registered when a speech-to-text provider is configured.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/scriptsync/internal/service"
	pcmaudio "github.com/MrWong99/scriptsync/pkg/audio"
	"github.com/MrWong99/scriptsync/pkg/align"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

// Name is the implementation name announced to MCP clients.
const Name = "scriptsync"

// Server is an MCP server backed by a [service.Service].
type Server struct {
	svc    *service.Service
	server *mcp.Server
}

// New creates a [Server] and registers its tools.
func New(svc *service.Service, version string) *Server {
	s := &Server{
		svc: svc,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    Name,
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve serves MCP over t.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	if err := s.server.Run(ctx, t); err != nil {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "align_script",
		Description: "Align speech-recognizer tokens to a reference script. " +
			"Returns every script word with start/end milliseconds; words the recognizer missed get interpolated times.",
	}, s.handleAlignScript)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "word_at",
		Description: "Find the index of the aligned word being spoken at a playback position in milliseconds. Returns -1 when no word covers the position.",
	}, s.handleWordAt)

	if s.svc.HasSTT() {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "transcribe_align",
			Description: "Transcribe a base64-encoded WAV recording with the configured speech-to-text provider and align it to a reference script.",
		}, s.handleTranscribeAlign)
	}
}

// AlignScriptArgs is the input of the align_script tool.
type AlignScriptArgs struct {
	Script string                  `json:"script" jsonschema:"the reference script text"`
	Tokens []align.RecognizedToken `json:"tokens" jsonschema:"recognised tokens in recognition order with start_ms and end_ms"`
}

// WordAtArgs is the input of the word_at tool.
type WordAtArgs struct {
	Words      []align.AlignedWord `json:"words" jsonschema:"aligned words as returned by align_script"`
	PositionMs int64               `json:"position_ms" jsonschema:"playback position in milliseconds"`
}

// WordAtResult is the output of the word_at tool.
type WordAtResult struct {
	Index int                `json:"index"`
	Word  *align.AlignedWord `json:"word,omitempty"`
}

// TranscribeAlignArgs is the input of the transcribe_align tool.
type TranscribeAlignArgs struct {
	Audio  string `json:"audio" jsonschema:"base64-encoded WAV file"`
	Script string `json:"script" jsonschema:"the reference script text"`
}

func (s *Server) handleAlignScript(ctx context.Context, _ *mcp.CallToolRequest, args AlignScriptArgs) (*mcp.CallToolResult, any, error) {
	res := s.svc.Align(ctx, args.Tokens, args.Script)
	return jsonResult(res)
}

func (s *Server) handleWordAt(_ context.Context, _ *mcp.CallToolRequest, args WordAtArgs) (*mcp.CallToolResult, any, error) {
	out := WordAtResult{Index: align.WordAt(args.Words, args.PositionMs)}
	if out.Index >= 0 {
		out.Word = &args.Words[out.Index]
	}
	return jsonResult(out)
}

func (s *Server) handleTranscribeAlign(ctx context.Context, _ *mcp.CallToolRequest, args TranscribeAlignArgs) (*mcp.CallToolResult, any, error) {
	raw, err := base64.StdEncoding.DecodeString(args.Audio)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	pcm, err := pcmaudio.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid audio: %w", err)
	}
	res, err := s.svc.TranscribeAndAlign(ctx, stt.Audio{
		PCM:        pcm.Data,
		SampleRate: pcm.SampleRate,
		Channels:   pcm.Channels,
	}, args.Script)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}
