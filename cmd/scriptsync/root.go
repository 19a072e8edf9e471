package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptsync/internal/config"
)

// defaultConfigPath is used when --config is not given and the file exists.
const defaultConfigPath = "scriptsync.yaml"

type commandContext struct {
	configFlag   string
	logLevelFlag string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	// level backs the default logger so hot reload can change verbosity.
	level slog.LevelVar
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "scriptsync",
		Short:         "Align speech-recognizer tokens to a reference script",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := cfg.Server.LogLevel
			if ctx.logLevelFlag != "" {
				level = config.LogLevel(strings.ToLower(ctx.logLevelFlag))
				if !level.IsValid() {
					return fmt.Errorf("invalid --log-level %q", ctx.logLevelFlag)
				}
			}
			ctx.level.Set(slogLevel(level))
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: &ctx.level})))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default: ./"+defaultConfigPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(newAlignCommand(ctx))
	rootCmd.AddCommand(newTranscribeCommand(ctx))
	rootCmd.AddCommand(newLookupCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMCPCommand(ctx))

	return rootCmd
}

// ensureConfig loads the configuration once. An explicit --config must
// exist; the implicit default path is optional and falls back to
// [config.Default].
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		if path == "" {
			if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
				c.config = config.Default()
				return
			}
			path = defaultConfigPath
		}
		c.config, c.configErr = config.Load(path)
		c.configPath = path
	})
	return c.config, c.configErr
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
