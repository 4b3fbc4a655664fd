package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/prmonitor/internal/adapter/driven/desktop"
	githubadapter "github.com/ericfisherdev/prmonitor/internal/adapter/driven/github"
	"github.com/ericfisherdev/prmonitor/internal/adapter/driven/messenger"
	"github.com/ericfisherdev/prmonitor/internal/adapter/driven/netprobe"
	sqliteadapter "github.com/ericfisherdev/prmonitor/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/prmonitor/internal/adapter/driving/http"
	"github.com/ericfisherdev/prmonitor/internal/application"
	"github.com/ericfisherdev/prmonitor/internal/config"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// probeTimeout bounds the connectivity check before each refresh.
const probeTimeout = 3 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"refresh_timeout", cfg.RefreshTimeout,
		"github_api_url", cfg.GitHubAPIURL,
		"open_browser", cfg.OpenBrowser,
	)
	if !cfg.HasSecretKey() {
		slog.Warn("PRMONITOR_SECRET_KEY not set, the GitHub token cannot be stored")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire stores and store the bootstrap token if none is stored yet.
	stores := sqliteadapter.NewStores(db, cfg.SecretKey)
	if err := bootstrapToken(ctx, stores.Token, cfg.GitHubToken); err != nil {
		return err
	}

	// 6. Wire driven adapters.
	loader, err := githubadapter.NewLoader(cfg.GitHubAPIURL)
	if err != nil {
		return err
	}
	probe, err := netprobe.NewProbe(cfg.GitHubAPIURL, probeTimeout)
	if err != nil {
		return err
	}
	slog.Debug("connectivity probe configured", "addr", probe.Addr())
	bus := messenger.NewBus()
	defer bus.Close()
	badger := desktop.NewBadger()
	notifier := desktop.NewNotifier(os.Stdout)
	opener := desktop.NewTabOpener(cfg.OpenBrowser)

	// 7. Create and start the Core.
	core := application.NewCore(
		loader,
		stores,
		notifier,
		badger,
		bus,
		opener,
		probe,
		application.WithRefreshTimeout(cfg.RefreshTimeout),
		application.WithLogger(slog.Default()),
	)
	if err := core.Start(ctx); err != nil {
		slog.Warn("initial load incomplete", "error", err)
	}

	// 8. Create and start poll service.
	pollSvc := application.NewPollService(core, bus, cfg.PollInterval)
	go pollSvc.Start(ctx)

	// 9. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(core, bus, pollSvc, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("prmonitor started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
	)

	// 10. Wait for shutdown signal or a server failure.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serverErr:
		stop()
		return err
	}

	// 11. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// bootstrapToken stores token when it is set and nothing is stored yet. A
// token saved through the API always wins over the environment.
func bootstrapToken(ctx context.Context, store driven.Store[string], token string) error {
	if token == "" {
		return nil
	}

	stored, err := store.Load(ctx)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		slog.Warn("ignoring PRMONITOR_GITHUB_TOKEN, set PRMONITOR_SECRET_KEY to store it")
		return nil
	}
	if err != nil {
		return err
	}
	if stored != "" {
		return nil
	}

	if err := store.Save(ctx, token); err != nil {
		return err
	}
	slog.Info("stored github token from environment")
	return nil
}
