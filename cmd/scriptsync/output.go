package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptsync/pkg/align"
)

// Output formats accepted by --format.
const (
	formatAuto  = "auto"
	formatJSON  = "json"
	formatTable = "table"
)

// resolveFormat maps --format to json or table. auto picks a table when w is
// a terminal.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch format {
	case formatJSON, formatTable:
		return format, nil
	case formatAuto, "":
		if isTerminal(w) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("invalid --format %q; valid values: auto, json, table", format)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(headers))
	return tw
}

// renderAlignment renders aligned words followed by a summary line.
func renderAlignment(res align.Alignment) string {
	tw := newTable("#", "Word", "Start", "End", "Matched", "Token")
	for i, w := range res.Words {
		matched, token := "yes", strconv.Itoa(w.TokenIndex)
		if !w.Matched {
			matched, token = "-", "-"
		}
		tw.AppendRow(table.Row{i, w.Word, formatMs(w.StartMs), formatMs(w.EndMs), matched, token})
	}
	st := res.Stats
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d words", st.ReferenceWords), "", "",
		fmt.Sprintf("%d/%d", st.Matched, st.ReferenceWords), fmt.Sprintf("%.0f%%", st.Coverage*100)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}

// renderTokens renders recognised tokens.
func renderTokens(tokens []align.RecognizedToken) string {
	tw := newTable("#", "Token", "Start", "End", "Confidence")
	for i, t := range tokens {
		tw.AppendRow(table.Row{i, t.Text, formatMs(t.StartMs), formatMs(t.EndMs), fmt.Sprintf("%.2f", t.Confidence)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

// formatMs renders milliseconds as m:ss.mmm.
func formatMs(ms int64) string {
	sign := ""
	if ms < 0 {
		sign, ms = "-", -ms
	}
	return fmt.Sprintf("%s%d:%02d.%03d", sign, ms/60000, ms/1000%60, ms%1000)
}
