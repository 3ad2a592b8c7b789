package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"it-inventory-api/internal"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/db"
	"it-inventory-api/internal/logger"
	"it-inventory-api/internal/store"
	"it-inventory-api/pkg/importer"
)

func main() {
	// Load and validate configuration
	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "it-inventory-api")
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DBDSN == "" {
		return errors.New("DB_DSN environment variable is required")
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := db.Open(openCtx, cfg.DBDriver, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.EnsureSchema(openCtx, conn.DB, conn.Dialect); err != nil {
		return err
	}

	mapping, err := importer.LoadMapping(cfg.ImportMapping)
	if err != nil {
		return err
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err := jwtManager.ValidateConfig(); err != nil {
		return err
	}

	srv := internal.NewServer(cfg, lg, store.New(conn.DB), jwtManager, mapping)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting it-inventory-api",
			zap.String("addr", cfg.ListenAddr),
			zap.String("db_driver", string(conn.Dialect)),
			zap.String("jwt_issuer", cfg.JWTIssuer),
			zap.String("jwt_audience", cfg.JWTAudience),
			zap.Duration("jwt_expiry", cfg.JWTExpiry),
			zap.String("location_delete_policy", cfg.LocationDeletePolicy),
			zap.Bool("metrics", cfg.EnableMetrics),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}
