package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scriptsync/internal/config"
	"github.com/MrWong99/scriptsync/internal/health"
	"github.com/MrWong99/scriptsync/internal/observe"
	"github.com/MrWong99/scriptsync/internal/server"
	"github.com/MrWong99/scriptsync/internal/service"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP alignment API",
		Long: `Serve exposes the aligner over HTTP. When a config file is in use it is
watched for changes: the log level and aligner settings are applied live,
other changes are logged and take effect after a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.ListenAddr = listenAddr
			}
			return ctx.serve(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Override server.listen_addr")
	return cmd
}

func (c *commandContext) serve(ctx context.Context, cfg *config.Config, out io.Writer) error {
	// ── Telemetry ─────────────────────────────────────────────────────────────
	metricsHandler, shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "scriptsync",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pl, err := buildPipeline(ctx, cfg, false, service.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer pl.Close()

	api := server.New(pl.svc,
		server.WithHealth(health.New(pl.checks...)),
		server.WithMetrics(metrics),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithVersion(version),
	)

	printStartupSummary(out, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listenAndServe(gctx, "api", cfg.Server.ListenAddr, api.Handler(), cfg.Server.ShutdownTimeout)
	})

	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metricsHandler)
		g.Go(func() error {
			return listenAndServe(gctx, "metrics", addr, mux, cfg.Server.ShutdownTimeout)
		})
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if c.configPath != "" {
		w, err := config.NewWatcher(c.configPath, func(old, new *config.Config) {
			c.applyReload(pl.svc, config.Diff(old, new))
		})
		if err != nil {
			slog.Warn("config watcher disabled", "path", c.configPath, "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	slog.Info("scriptsync ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// applyReload applies the hot-reloadable part of d.
func (c *commandContext) applyReload(svc *service.Service, d config.ConfigDiff) {
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		if c.logLevelFlag != "" {
			slog.Info("config log level ignored, --log-level takes precedence", "level", d.NewLogLevel)
		} else {
			c.level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
	}
	if d.AlignerChanged {
		svc.Reconfigure(d.NewAligner)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// listenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully within timeout.
func listenAndServe(ctx context.Context, name, addr string, h http.Handler, timeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s listen: %w", name, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.Info(name+" server listening", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
	}

	slog.Info("shutting down "+name+" server")
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("%s shutdown: %w", name, err)
	}
	return nil
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	stt := "(not configured)"
	if cfg.STT.Name != "" {
		stt = cfg.STT.Name
		if cfg.STT.Model != "" {
			stt += " / " + cfg.STT.Model
		}
	}
	cache := "(disabled)"
	if cfg.Cache.Path != "" {
		cache = cfg.Cache.Path
	}
	metrics := "(disabled)"
	if cfg.Server.MetricsAddr != "" {
		metrics = cfg.Server.MetricsAddr
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("scriptsync " + version)
	tw.AppendRows([]table.Row{
		{"Listen addr", cfg.Server.ListenAddr},
		{"Metrics addr", metrics},
		{"STT", stt},
		{"Transcript cache", cache},
		{"Lookahead", cfg.Aligner.Lookahead},
		{"Interpolation", string(cfg.Aligner.Interpolation)},
	})
	fmt.Fprintln(w, tw.Render())
}
