package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	convgrpc "provider-messaging/backend/conversation/grpc"
	"provider-messaging/backend/pkg/config"
	"provider-messaging/backend/pkg/di"
	"provider-messaging/backend/pkg/logger"
	"provider-messaging/backend/pkg/router"
	"provider-messaging/backend/pkg/secrets"
	"provider-messaging/backend/shared/observability"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "service", cfg.Observability.ServiceName, "env", cfg.Server.Env, "version", os.Getenv("APP_VERSION"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secretManager, err := secrets.NewVaultManager(secrets.VaultConfig{
		Enabled:    cfg.Vault.Enabled,
		Address:    cfg.Vault.Address,
		Token:      cfg.Vault.Token,
		MountPath:  cfg.Vault.MountPath,
		SecretPath: cfg.Vault.SecretPath,
	}, log)
	if err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}
	defer secretManager.Close()

	jwtSecret, err := secretManager.GetSecret(ctx, "jwt-secret")
	if err != nil {
		log.LogError(err, "JWT secret is not configured")
		os.Exit(1)
	}

	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	metrics, err := observability.SetupPrometheusMetrics(cfg.Observability.ServiceName)
	if err != nil {
		log.LogError(err, "Failed to initialize metrics")
		os.Exit(1)
	}
	metricsSrv := observability.MetricsServer(cfg.Observability.MetricsPort, metrics.Handler)

	db, err := config.NewDB(cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	if err := di.Migrate(db); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	container, err := di.New(ctx, db, cfg, log, jwtSecret)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	defer container.Close()

	r := router.New(container)
	r.SetupRoutes()

	container.Health.Start(ctx)
	go container.RateLimiter.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	grpcSrv := convgrpc.NewServer(container.Health, log)
	grpcLis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.LogError(err, "Failed to listen for gRPC", "port", cfg.Server.GRPCPort)
		os.Exit(1)
	}
	go grpcSrv.Watch(ctx, 15*time.Second)

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()
	go func() {
		log.Info("Metrics server starting", "port", cfg.Observability.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Metrics server failed")
		}
	}()
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.LogError(err, "gRPC server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	grpcSrv.Stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	if err := metrics.Provider.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Failed to flush metrics")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("Server exited gracefully")
}
