package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptsync/internal/service"
	"github.com/MrWong99/scriptsync/internal/tokenfile"
	"github.com/MrWong99/scriptsync/pkg/align"
	pcmaudio "github.com/MrWong99/scriptsync/pkg/audio"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var (
		flags      alignFlags
		audioPath  string
		scriptPath string
		saveTokens string
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe a WAV recording with the configured provider and align it",
		Long: `Transcribe sends a WAV recording to the speech-to-text provider from the
config file (consulting the transcript cache first) and aligns the result
against the script. Without --script only the recognised tokens are printed.`,
		Example: `  scriptsync -c scriptsync.yaml transcribe --audio take1.wav --script script.txt
  scriptsync transcribe -a take1.wav --save-tokens take1.tokens.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			alignerCfg, err := flags.alignerConfig(cmd, cfg.Aligner)
			if err != nil {
				return err
			}
			runCfg := *cfg
			runCfg.Aligner = alignerCfg

			audio, err := readWAV(audioPath)
			if err != nil {
				return err
			}

			pl, err := buildPipeline(cmd.Context(), &runCfg, true)
			if err != nil {
				return err
			}
			defer pl.Close()

			tr, err := pl.svc.Transcribe(cmd.Context(), audio)
			if err != nil {
				return err
			}
			if saveTokens != "" {
				if err := writeTokensFile(saveTokens, tr.Tokens); err != nil {
					return err
				}
			}

			if scriptPath == "" {
				format, err := resolveFormat(flags.format, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if format == formatTable {
					fmt.Fprintln(cmd.OutOrStdout(), renderTokens(tr.Tokens))
					return nil
				}
				return writeJSON(cmd, tr)
			}

			script, err := readText(cmd, scriptPath)
			if err != nil {
				return err
			}
			res := pl.svc.Align(cmd.Context(), tr.Tokens, script)
			return flags.emit(cmd, res, service.Result{Alignment: res, Transcription: tr})
		},
	}

	cmd.Flags().StringVarP(&audioPath, "audio", "a", "", "WAV recording to transcribe")
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "Reference script text file (\"-\" for stdin)")
	cmd.Flags().StringVar(&saveTokens, "save-tokens", "", "Also write the recognised tokens to this file")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

func readWAV(path string) (stt.Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return stt.Audio{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()
	pcm, err := pcmaudio.DecodeWAV(f)
	if err != nil {
		return stt.Audio{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return stt.Audio{PCM: pcm.Data, SampleRate: pcm.SampleRate, Channels: pcm.Channels}, nil
}

func writeTokensFile(path string, tokens []align.RecognizedToken) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create tokens file: %w", err)
	}
	if err := tokenfile.Write(f, tokens); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
