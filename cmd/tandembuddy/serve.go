package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tandembuddy/internal/app"
	"github.com/MrWong99/tandembuddy/internal/config"
	"github.com/MrWong99/tandembuddy/internal/health"
	"github.com/MrWong99/tandembuddy/internal/observe"
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the web front end and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), g)
		},
	}
}

func serve(parent context.Context, g *globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	slog.Info("tandembuddy starting",
		"version", version,
		"config", g.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry := observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}
	if cfg.Telemetry.LogSpans {
		telemetry.SpanExporter = observe.NewSpanLogger(slog.Default())
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	ps, err := providers(cfg)
	if err != nil {
		return err
	}
	printStartupSummary(cfg)

	// ── Config hot reload ─────────────────────────────────────────────────────
	var appOpts []app.Option
	watcher, err := config.NewWatcher(g.configPath, envLookup, app.ConfigReloader(g.level))
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
		appOpts = append(appOpts, app.WithReadiness(health.Ping("config", watcher)))
	}

	application, err := app.New(ctx, cfg, ps, appOpts...)
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      Tandem Buddy: startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", providerLabel(cfg.Providers.LLM, len(cfg.Providers.Fallbacks.LLM)))
	printRow("STT", providerLabel(cfg.Providers.STT, len(cfg.Providers.Fallbacks.STT)))
	printRow("TTS", providerLabel(cfg.Providers.TTS, len(cfg.Providers.Fallbacks.TTS)))
	printRow("Practising", cfg.Partner.TargetLanguage+" "+cfg.Partner.Level)
	if cfg.Archive.PostgresDSN != "" {
		printRow("Archive", "postgres")
	} else {
		printRow("Archive", "(memory)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry, fallbacks int) string {
	v := e.Name
	if e.Model != "" {
		v += " / " + e.Model
	}
	if fallbacks > 0 {
		v += fmt.Sprintf(" +%d", fallbacks)
	}
	return v
}

func printRow(key, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", key, value)
}
