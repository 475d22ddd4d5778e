package main

import (
	"context"
	"database/sql"
	"errors"
	"lifeos_api/internal/api"
	"lifeos_api/internal/app/service"
	"lifeos_api/internal/common/security"
	"lifeos_api/internal/domain/repository"
	"lifeos_api/internal/platform/config"
	"lifeos_api/internal/platform/database"
	"lifeos_api/internal/platform/logging"
	"lifeos_api/internal/platform/metrics"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var servePort string

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides API_PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if servePort != "" {
		cfg.APIPort = servePort
	}
	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logger := logging.SetDefault(cfg.ServiceName, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Database + schema
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DBConnStr)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.DBDriver).Wrap(err)
	}
	defer db.Close()
	logger.Info("database connected", "driver", cfg.DBDriver)

	if err := database.Migrate(ctx, db, cfg.DBDriver, logger); err != nil {
		return oops.Code("MIGRATION_FAILED").With("driver", cfg.DBDriver).Wrap(err)
	}

	// 2. Router & HTTP server
	handler, err := buildHandler(cfg, db, logger, metrics.New())
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 3. Graceful shutdown
	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("SERVER_LISTEN_FAILED").With("port", cfg.APIPort).Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SERVER_SHUTDOWN_FAILED").Wrap(err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// buildHandler wires repository, hasher, token service and auth service
// into the router.
func buildHandler(cfg *config.Config, db *sql.DB, logger *slog.Logger, m *metrics.Metrics) (http.Handler, error) {
	userRepo, err := repository.NewUserRepository(cfg.DBDriver, db)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	tokens := security.NewTokenService(cfg.JWTAlgorithm, cfg.JWTKey, cfg.JWTExp)
	authService := service.NewAuthService(userRepo, hasher, tokens, logger, m)

	return api.NewRouter(authService, api.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
		Metrics:        m,
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, db, 2*time.Second)
		},
	}), nil
}
