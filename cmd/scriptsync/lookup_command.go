package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptsync/internal/tokenfile"
	"github.com/MrWong99/scriptsync/pkg/align"
)

type lookupResult struct {
	Index      int                `json:"index"`
	Word       *align.AlignedWord `json:"word,omitempty"`
	PositionMs *int64             `json:"position_ms,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

func newLookupCommand(_ *commandContext) *cobra.Command {
	var (
		alignedPath string
		at          int64
		index       int
		format      string
	)

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Find the word at a playback position, or the seek target of a word",
		Example: `  scriptsync lookup --aligned take1.aligned.json --at 1250
  scriptsync lookup --aligned take1.aligned.json --index 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			atSet := cmd.Flags().Changed("at")
			indexSet := cmd.Flags().Changed("index")
			if atSet == indexSet {
				return fmt.Errorf("exactly one of --at or --index is required")
			}

			words, err := tokenfile.ReadAlignedFile(alignedPath)
			if err != nil {
				return err
			}

			out := lookupResult{Index: -1, DurationMs: align.Duration(words)}
			if atSet {
				out.Index = align.WordAt(words, at)
			} else {
				pos, ok := align.SeekTarget(words, index)
				if !ok {
					return fmt.Errorf("--index %d is out of range [0, %d)", index, len(words))
				}
				out.Index = index
				out.PositionMs = &pos
			}
			if out.Index >= 0 {
				out.Word = &words[out.Index]
			}

			f, err := resolveFormat(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if f != formatTable {
				return writeJSON(cmd, out)
			}
			if out.Word == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No word at %s (recording %s)\n", formatMs(at), formatMs(out.DurationMs))
				return nil
			}
			t := newTable("#", "Word", "Start", "End", "Matched")
			t.AppendRow(table.Row{out.Index, out.Word.Word, formatMs(out.Word.StartMs), formatMs(out.Word.EndMs), out.Word.Matched})
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&alignedPath, "aligned", "", "Alignment JSON produced by align or transcribe")
	cmd.Flags().Int64Var(&at, "at", 0, "Playback position in milliseconds")
	cmd.Flags().IntVar(&index, "index", 0, "Word index to seek to")
	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or table")
	_ = cmd.MarkFlagRequired("aligned")
	return cmd
}
