// Command scriptsync aligns speech-recognizer output to reference scripts.
//
// Subcommands:
//
//	align       align a token file against a script file
//	transcribe  transcribe a WAV recording and align it against a script
//	lookup      find the word spoken at a playback position
//	serve       run the HTTP API with metrics and config hot reload
//	mcp         serve MCP tools over stdio
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "scriptsync: %v\n", err)
		}
		return 1
	}
	return 0
}
