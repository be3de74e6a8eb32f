package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otp-drop/internal/config"
	"otp-drop/internal/db"
	"otp-drop/internal/identity"
	"otp-drop/internal/server"
	"otp-drop/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg, os.Stdout)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("db_connect_failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	if err := db.RunMigrations(conn, logger); err != nil {
		logger.Error("migration_failed", slog.Any("err", err))
		os.Exit(1)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	blobs, err := newBlobs(initCtx, cfg)
	cancelInit()
	if err != nil {
		logger.Error("storage_init_failed", slog.String("backend", cfg.StorageBackend), slog.Any("err", err))
		os.Exit(1)
	}

	files, err := store.NewService(store.Options{
		Blobs:          blobs,
		Repo:           store.NewRepository(conn),
		MaxUploadBytes: cfg.MaxUploadBytes,
		OTPAttempts:    cfg.OTPAttempts,
		ZipWorkers:     cfg.ZipWorkers,
		TempDir:        cfg.TempDir,
		Logger:         logger.With(slog.String("component", "store")),
	})
	if err != nil {
		logger.Error("store_init_failed", slog.Any("err", err))
		os.Exit(1)
	}

	accounts := newAccounts(cfg, conn, logger)

	srv := server.New(server.Config{
		Addr:             cfg.Addr,
		Store:            files,
		Accounts:         accounts,
		DB:               conn,
		APIKey:           cfg.APIKey,
		PublicBaseURL:    cfg.PublicBaseURL,
		AccessRatePerMin: cfg.AccessRatePerMin,
		Build:            server.BuildInfo{Version: cfg.Version, Commit: cfg.Commit},
		Logger:           logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting",
			slog.String("addr", cfg.Addr),
			slog.String("storage", cfg.StorageBackend),
			slog.String("commit", cfg.Commit))
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting_down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown_error", slog.Any("err", err))
			os.Exit(1)
		}
		logger.Info("shutdown_complete")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// newBlobs selects the storage backend named by SFD_STORAGE_BACKEND.
func newBlobs(ctx context.Context, cfg *config.Config) (store.Blobs, error) {
	switch cfg.StorageBackend {
	case config.BackendLocal:
		return store.NewLocalBlobs(cfg.UploadDir)
	case config.BackendS3:
		return store.NewMinioBlobs(ctx, store.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newAccounts(cfg *config.Config, conn *sql.DB, logger *slog.Logger) *identity.Service {
	kc := identity.NewKeycloak(identity.KeycloakConfig{
		BaseURL:           cfg.Keycloak.ServerURL,
		Realm:             cfg.Keycloak.Realm,
		AdminClientID:     cfg.Keycloak.AdminClientID,
		AdminClientSecret: cfg.Keycloak.AdminClientSecret,
		AppClientID:       cfg.Keycloak.ClientID,
		AppClientSecret:   cfg.Keycloak.ClientSecret,
		Timeout:           cfg.Keycloak.Timeout,
	}, nil, logger.With(slog.String("component", "keycloak")))

	return identity.NewService(kc, identity.NewUserRepository(conn), cfg.Keycloak.DefaultRole,
		logger.With(slog.String("component", "identity")))
}
