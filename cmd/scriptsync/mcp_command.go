package main

import (
	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptsync/internal/mcpserver"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the aligner as an MCP tool server over stdio",
		Long: `mcp speaks the Model Context Protocol on stdin/stdout so assistants can
call align_script and word_at (and transcribe_align when a speech-to-text
provider is configured). Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pl, err := buildPipeline(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer pl.Close()
			return mcpserver.New(pl.svc, version).Run(cmd.Context())
		},
	}
}
