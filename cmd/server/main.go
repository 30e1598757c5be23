package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drip-admin-console/internal/cache"
	"drip-admin-console/internal/client"
	"drip-admin-console/internal/config"
	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/handlers"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/notify"
	"drip-admin-console/internal/slice"
	"drip-admin-console/internal/storage"
	"drip-admin-console/internal/store"
	"drip-admin-console/internal/telemetry"
	"drip-admin-console/internal/utils"
)

const version = "1.0.0"

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	utils.SetupLogging(cfg.LogLevel)
	cfg.LogSummary()

	slog.Info("Starting Drip admin console", "version", version)
	ctx := context.Background()

	// Initialize OpenTelemetry metrics
	otelTelemetry, err := telemetry.InitMetrics(ctx, "drip-admin-console", cfg.MetricsExporter)
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	gatewayTelemetry, err := telemetry.NewGatewayTelemetry(otelTelemetry.Meter())
	if err != nil {
		os.Exit(1)
	}
	consoleTelemetry, err := telemetry.NewConsoleTelemetry(otelTelemetry.Meter())
	if err != nil {
		os.Exit(1)
	}

	registry := entities.DefaultRegistry()
	if cfg.EntitiesFile != "" {
		if err := registry.LoadOverrides(cfg.EntitiesFile); err != nil {
			slog.Error("Failed to load entity overrides", "path", cfg.EntitiesFile, "error", err)
			os.Exit(1)
		}
	}

	session, err := storage.NewFileSessionStorage(cfg.SessionFile)
	if err != nil {
		slog.Error("Failed to open session storage", "path", cfg.SessionFile, "error", err)
		os.Exit(1)
	}

	gateway := client.NewAdminClient(cfg.APIBaseURL, session,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithObserver(gatewayTelemetry))

	feed := notify.NewFeed(cfg.NotificationBuffer, notify.LogNotifier{})
	sliceOpts := []slice.Option{slice.WithNotifier(feed)}
	if cfg.StaleResponseGuard {
		sliceOpts = append(sliceOpts, slice.WithStaleResponseGuard())
	}
	st := store.New(registry, gateway, sliceOpts...)

	downloads := cache.NewTTLCache[*models.Download](cfg.ExportCacheTTL, time.Minute)
	defer downloads.Stop()

	router := handlers.NewRouter(handlers.RouterConfig{
		Version:         version,
		Store:           st,
		Exporter:        gateway,
		Downloads:       downloads,
		Feed:            feed,
		DefaultPageSize: cfg.DefaultPageSize,
		APIKeys:         cfg.ConsoleAPIKeys,
		Session:         session,
		Telemetry:       consoleTelemetry,
		MetricsHandler:  otelTelemetry.Handler(),
	})

	// Dashboard warm-up; failures stay visible in each list view
	go func() {
		if _, err := session.Get(storage.TokenKey); err != nil {
			slog.Warn("No session token stored, skipping warm-up; run dripctl login")
			return
		}
		_ = st.RefreshAll(ctx, cfg.DefaultPageSize)
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server ready to accept connections", "address", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := otelTelemetry.Close(shutdownCtx); err != nil {
		slog.Error("Telemetry shutdown failed", "error", err)
	}

	slog.Info("Server exited")
}
