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

	"github.com/spf13/cobra"

	"github.com/erazemk/darilo/internal/api"
	"github.com/erazemk/darilo/internal/config"
	"github.com/erazemk/darilo/internal/coordinator"
	"github.com/erazemk/darilo/internal/db"
	"github.com/erazemk/darilo/internal/notify"
	"github.com/erazemk/darilo/internal/store"
)

// tokenPurgeInterval is how often expired revocations are dropped.
const tokenPurgeInterval = time.Hour

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (creates the database on first run)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg)
		},
	}
	cmd.Flags().StringP("addr", "a", ":8080", "listen address")
	_ = a.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// openDatabase opens the database at cfg.DB, creating it with an admin
// account if it does not exist yet, and applies migrations.
func openDatabase(cfg *config.Config, firstRun bool) (*sql.DB, error) {
	if _, err := os.Stat(cfg.DB); errors.Is(err, os.ErrNotExist) {
		if !firstRun {
			return nil, fmt.Errorf("database %s does not exist, run init first", cfg.DB)
		}
		database, password, err := initDatabase(cfg.DB, cfg.AdminUser)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(os.Stdout, cfg.DB, cfg.AdminUser, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", cfg.DB)
	return database, nil
}

func newCoordinator(cfg *config.Config, entities store.Entities, sink notify.Sink) *coordinator.Coordinator {
	return coordinator.New(entities, sink,
		coordinator.WithPolicy(cfg.Policy()),
		coordinator.WithRetry(coordinator.Retry{Attempts: cfg.Retry.Attempts, Backoff: cfg.Retry.Backoff}),
		coordinator.WithLogger(slog.Default()),
	)
}

func serve(ctx context.Context, cfg *config.Config) error {
	database, err := openDatabase(cfg, true)
	if err != nil {
		return err
	}
	defer database.Close()

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	entities := store.NewSQLite(database)
	hub := notify.NewHub(slog.Default())
	coord := newCoordinator(cfg, entities, notify.Multi{hub, notify.LogSink{}})

	// Claims are authoritative; fix any sets a previous process left behind.
	if fixed, err := coord.Repair(ctx); err != nil {
		slog.Error("startup repair failed", "error", err)
	} else if fixed > 0 {
		slog.Warn("startup repair rewrote entities", "count", fixed)
	}

	coord.Reconciler().Start(ctx, cfg.Reconcile.Interval)
	go purgeRevokedTokens(ctx, database, tokenPurgeInterval)

	router := api.NewRouter(api.Deps{
		DB:          database,
		Store:       entities,
		Coordinator: coord,
		Hub:         hub,
		JWTSecret:   jwtSecret,
		TokenTTL:    cfg.TokenTTL,
		LoginRate:   cfg.LoginLimit(),
		LoginBurst:  cfg.Login.Burst,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "policy", cfg.Fulfillment.Policy)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	if n := len(coord.Reconciler().Pending()); n > 0 {
		slog.Warn("dependent updates still pending at shutdown", "count", n)
	}
	slog.Info("server stopped, closing database")
	return nil
}

// purgeRevokedTokens drops expired revocations every interval until ctx is
// done.
func purgeRevokedTokens(ctx context.Context, database *sql.DB, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.PurgeRevokedTokens(ctx, database, now)
			if err != nil {
				slog.Error("failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged revoked tokens", "count", n)
			}
		}
	}
}
