// Package app wires all Tandem Buddy subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP front end until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithArchive,
// WithMetrics, WithListener). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tandembuddy/internal/archive"
	"github.com/MrWong99/tandembuddy/internal/audiostore"
	"github.com/MrWong99/tandembuddy/internal/config"
	"github.com/MrWong99/tandembuddy/internal/conversation"
	"github.com/MrWong99/tandembuddy/internal/health"
	"github.com/MrWong99/tandembuddy/internal/observe"
	"github.com/MrWong99/tandembuddy/internal/partner"
	"github.com/MrWong99/tandembuddy/internal/speech"
	"github.com/MrWong99/tandembuddy/internal/web"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
)

// shutdownGrace bounds the HTTP server drain once Run's context ends.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	audio    *audiostore.Store
	archive  archive.Store
	speech   *speech.Service
	partner  *partner.LanguagePartner
	session  *conversation.Session
	handler  http.Handler
	listener net.Listener

	// readiness holds extra /readyz checks supplied by the caller.
	readiness []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArchive injects an archive instead of creating one from config.
func WithArchive(s archive.Store) Option {
	return func(a *App) { a.archive = s }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithReadiness adds checkers to /readyz next to the built-in audio
// directory and archive checks.
func WithReadiness(checkers ...health.Checker) Option {
	return func(a *App) { a.readiness = append(a.readiness, checkers...) }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders] or, in tests, from mocks.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: llm, stt and tts providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Audio store ───────────────────────────────────────────────────
	store, err := audiostore.New(cfg.Session.AudioDir, cfg.Session.AudioFormat)
	if err != nil {
		return nil, fmt.Errorf("app: init audio store: %w", err)
	}
	a.audio = store

	// ── 2. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 3. Speech + partner ──────────────────────────────────────────────
	if err := a.initCollaborators(); err != nil {
		return nil, err
	}

	// ── 4. Conversation session ──────────────────────────────────────────
	sessOpts := []conversation.Option{
		conversation.WithArchive(a.archive),
		conversation.WithMetrics(a.metrics),
		conversation.WithCallTimeout(cfg.Session.CallTimeout),
		conversation.WithRetry(cfg.Session.MaxAttempts, cfg.Session.RetryBackoff),
	}
	if cfg.Session.BusyPolicy == config.BusyReject {
		sessOpts = append(sessOpts, conversation.WithRejectWhenBusy())
	}
	a.session, err = conversation.New(a.speech, a.partner, a.audio, sessOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 5. HTTP routes ───────────────────────────────────────────────────
	a.handler = a.routes()

	return a, nil
}

// initArchive opens the PostgreSQL archive or falls back to memory.
func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil
	}
	dsn := a.cfg.Archive.PostgresDSN
	if dsn == "" {
		slog.Info("archive: postgres_dsn not set, keeping turns in memory")
		a.archive = archive.NewMemStore()
		return nil
	}
	store, err := archive.NewPostgresStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.archive = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

func (a *App) initCollaborators() error {
	cfg := a.cfg
	var err error
	a.speech, err = speech.New(a.providers.STT, a.providers.TTS,
		speech.WithLanguage(cfg.Speech.Language),
		speech.WithInputMIMEType(cfg.Speech.InputMIMEType),
		speech.WithVoice(tts.VoiceProfile{ID: cfg.Speech.VoiceID, Provider: cfg.Providers.TTS.Name}),
	)
	if err != nil {
		return fmt.Errorf("app: init speech: %w", err)
	}

	pcfg := partner.Config{
		TargetLanguage: cfg.Partner.TargetLanguage,
		Level:          cfg.Partner.Level,
		SystemPrompt:   cfg.Partner.SystemPrompt,
		MaxTokens:      cfg.Partner.MaxTokens,
		MaxHistory:     cfg.Partner.MaxHistory,
	}
	if cfg.Partner.Temperature != nil {
		pcfg.Temperature = *cfg.Partner.Temperature
	}
	a.partner, err = partner.New(a.providers.LLM, pcfg)
	if err != nil {
		return fmt.Errorf("app: init partner: %w", err)
	}
	return nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	web.New(a.session, a.audio).Register(mux)
	checks := append([]health.Checker{
		health.DirWritable("audio_dir", a.audio.Dir()),
		health.Ping("archive", a.archive),
	}, a.readiness...)
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// Session returns the conversation session.
func (a *App) Session() *conversation.Session { return a.session }

// Speech returns the speech adapter.
func (a *App) Speech() *speech.Service { return a.speech }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// When ctx is done, Run drains in-flight requests and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln := a.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", srv.Addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", srv.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tlsCfg := a.cfg.Server.TLS; tlsCfg != nil {
			err = srv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ConfigReloader returns a watcher callback that applies log-level changes to
// level and warns about edits that only take effect after a restart.
func ConfigReloader(level *slog.LevelVar) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.SlogLevel())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes require a restart", "sections", d.RestartRequired)
		}
	}
}
