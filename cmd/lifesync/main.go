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

	"github.com/ericfisherdev/lifesync/internal/adapter/driven/memstore"
	provideradapter "github.com/ericfisherdev/lifesync/internal/adapter/driven/provider"
	sqliteadapter "github.com/ericfisherdev/lifesync/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/lifesync/internal/adapter/driving/http"
	"github.com/ericfisherdev/lifesync/internal/application"
	"github.com/ericfisherdev/lifesync/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"tick_interval", cfg.TickInterval,
		"encryption_key_set", cfg.HasEncryptionKey(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
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

	// 5. Wire driven adapters.
	encryptionKey, err := cfg.EncryptionKey()
	if err != nil {
		return err
	}
	if encryptionKey == nil {
		slog.Warn("no encryption key configured; secret operations will fail until LIFESYNC_SECRET_KEY is set")
	}

	connStore := sqliteadapter.NewConnectionRepo(db)
	secretStore := sqliteadapter.NewSecretRepo(db, encryptionKey)
	policyStore := sqliteadapter.NewPolicyRepo(db)
	recordStore := memstore.NewRecordStore()

	registry := provideradapter.NewRegistry()
	credentials, err := cfg.OAuthCredentials()
	if err != nil {
		return err
	}
	oauth := provideradapter.NewOAuth(registry, credentials, cfg.RedirectURL())
	client := provideradapter.NewClient(registry)

	// 6. Wire application services.
	authSvc := application.NewAuthService(registry, oauth, client, connStore, secretStore, policyStore)
	ingestSvc := application.NewIngestService(connStore, secretStore, policyStore, recordStore)
	syncSvc := application.NewSyncService(
		policyStore,
		connStore,
		secretStore,
		client,
		ingestSvc,
		authSvc,
		cfg.TickInterval,
		cfg.SyncTimeout,
	)
	go syncSvc.Start(ctx)

	// 7. Create HTTP handler and server.
	apiHandler := httphandler.NewHandler(registry, connStore, recordStore, authSvc, syncSvc, ingestSvc, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("lifesync started",
		"listen_addr", cfg.ListenAddr,
		"tick_interval", cfg.TickInterval,
	)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
