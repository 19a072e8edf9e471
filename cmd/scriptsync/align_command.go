package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptsync/internal/config"
	"github.com/MrWong99/scriptsync/internal/service"
	"github.com/MrWong99/scriptsync/internal/tokenfile"
	"github.com/MrWong99/scriptsync/pkg/align"
)

type alignFlags struct {
	lookahead     int
	interpolation string
	format        string
	output        string
}

// register adds the flags shared by align and transcribe.
func (f *alignFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.lookahead, "lookahead", 0, "Candidate window per script word (default from config)")
	cmd.Flags().StringVar(&f.interpolation, "interpolation", "", "Interpolation mode: unmatched or zero_timestamps (default from config)")
	cmd.Flags().StringVarP(&f.format, "format", "f", formatAuto, "Output format: auto, json or table")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the alignment as JSON to this file")
}

// alignerConfig applies flag overrides to the configured aligner settings.
func (f *alignFlags) alignerConfig(cmd *cobra.Command, base config.AlignerConfig) (config.AlignerConfig, error) {
	cfg := base
	if cmd.Flags().Changed("lookahead") {
		if f.lookahead < 1 || f.lookahead > config.MaxLookahead {
			return cfg, fmt.Errorf("--lookahead %d is out of range [1, %d]", f.lookahead, config.MaxLookahead)
		}
		cfg.Lookahead = f.lookahead
	}
	if cmd.Flags().Changed("interpolation") {
		mode := align.InterpolationMode(f.interpolation)
		if !mode.IsValid() {
			return cfg, fmt.Errorf("invalid --interpolation %q; valid values: unmatched, zero_timestamps", f.interpolation)
		}
		cfg.Interpolation = mode
	}
	return cfg, nil
}

// emit writes res to --output when set and prints it in the chosen format.
func (f *alignFlags) emit(cmd *cobra.Command, res align.Alignment, full any) error {
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		if err := tokenfile.WriteAligned(file, res); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}

	format, err := resolveFormat(f.format, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if format == formatTable {
		fmt.Fprintln(cmd.OutOrStdout(), renderAlignment(res))
		return nil
	}
	return writeJSON(cmd, full)
}

func newAlignCommand(ctx *commandContext) *cobra.Command {
	var (
		flags       alignFlags
		tokensPath  string
		scriptPath  string
		tokenFormat string
	)

	cmd := &cobra.Command{
		Use:   "align",
		Short: "Align a recognised-token file against a script",
		Long: `Align reads recognised tokens (native JSON, whisper.cpp full JSON or WhisperX
JSON) and a plain-text script, and prints the timing of every script word.
Use "-" to read either file from stdin.`,
		Example: `  scriptsync align --tokens take1.json --script script.txt
  whisper-cli -ojf -f take1.wav && scriptsync align -t take1.wav.json -s script.txt -f table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tokensPath == "-" && scriptPath == "-" {
				return fmt.Errorf("--tokens and --script cannot both read stdin")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			alignerCfg, err := flags.alignerConfig(cmd, cfg.Aligner)
			if err != nil {
				return err
			}
			format, err := tokenfile.ParseFormat(tokenFormat)
			if err != nil {
				return err
			}

			tokens, err := readTokens(cmd, tokensPath, format)
			if err != nil {
				return err
			}
			script, err := readText(cmd, scriptPath)
			if err != nil {
				return err
			}

			svc := service.New(service.WithAligner(alignerCfg))
			res := svc.Align(cmd.Context(), tokens, script)
			return flags.emit(cmd, res, res)
		},
	}

	cmd.Flags().StringVarP(&tokensPath, "tokens", "t", "", "Recognised-token JSON file")
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "Reference script text file")
	cmd.Flags().StringVar(&tokenFormat, "token-format", "auto", "Token file format: auto, native, whisper-cpp or whisperx")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("tokens")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func readTokens(cmd *cobra.Command, path string, format tokenfile.Format) ([]align.RecognizedToken, error) {
	if path == "-" {
		tokens, _, err := tokenfile.Read(cmd.InOrStdin(), format)
		return tokens, err
	}
	tokens, _, err := tokenfile.ReadFile(path, format)
	return tokens, err
}

func readText(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}
