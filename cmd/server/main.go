// Command server runs the transcribe HTTP service: it loads the inference
// engine in the background and serves authenticated transcription requests
// while requests arriving during warm-up wait a bounded time for readiness.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newrality/transcribe/cmd/server/internal/api"
	"github.com/newrality/transcribe/cmd/server/internal/audit"
	"github.com/newrality/transcribe/cmd/server/internal/config"
	"github.com/newrality/transcribe/cmd/server/internal/engine"
	"github.com/newrality/transcribe/cmd/server/internal/lifecycle"
	"github.com/newrality/transcribe/cmd/server/internal/middleware"
	"github.com/newrality/transcribe/cmd/server/internal/orchestrator"
	"github.com/newrality/transcribe/cmd/server/internal/upload"
	"github.com/newrality/transcribe/pkg/logger"
)

const version = "1.0.0"

// healthProbeInterval paces the readiness probes during engine load.
const healthProbeInterval = 2 * time.Second

func main() {
	logInstance, err := logger.Init(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: os.Getenv("ENV"),
		WithSource:  false,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "transcribe-server")

	cfg, err := config.Load()
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "model", cfg.Whisper.Model)
	fmt.Println(cfg.Print())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Model lifecycle: construct the engine and probe it until it answers,
	// bounded by the configured load timeout. The manager publishes the
	// outcome to all waiting requests.
	manager := lifecycle.NewManager(engineBuilder(cfg), appLogger.With("component", "lifecycle"))
	manager.StartLoadingAsync()

	ingester := upload.NewIngester(cfg.Upload.TempDir, cfg.Upload.MaxFileSizeBytes(), cfg.Upload.AllowedFormats)
	invoker := orchestrator.NewInvoker(cfg.Transcription.MaxConcurrent, appLogger.With("component", "invoker"))
	orch := orchestrator.New(cfg, ingester, manager, invoker, appLogger.With("component", "orchestrator"))

	var auditLog *audit.Logger
	if cfg.Audit.LogPath != "" {
		auditLog = audit.NewLogger(cfg.Audit.LogPath)
		appLogger.Info("audit log enabled", "path", cfg.Audit.LogPath)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Security.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.APIKeyHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	startTime := time.Now()
	r.GET("/health", api.HandleHealth(manager, cfg, version, startTime))
	r.GET("/readiness", api.HandleReadiness(manager))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/v1/models", api.HandleListModels(cfg.Whisper.Model))

	protected := r.Group("/api/v1")
	protected.Use(middleware.APIKeyAuth(cfg.Security.APIKeys))
	protected.POST("/transcribe", api.HandleTranscribe(orch, auditLog))

	srv := &http.Server{
		Addr:    cfg.ServerAddr(),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		appLogger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server stopped")
}

// engineBuilder returns the lifecycle builder for the configured engine.
// Construction validates static prerequisites; the probe loop then waits
// for the backend to answer health checks, bounded by the load timeout.
func engineBuilder(cfg *config.Config) lifecycle.Builder {
	return func(ctx context.Context) (engine.Engine, error) {
		eng, err := engine.New(cfg.Whisper)
		if err != nil {
			return nil, err
		}

		probeCtx, cancel := context.WithTimeout(ctx, cfg.Whisper.LoadTimeout)
		defer cancel()

		var lastErr error
		for {
			checkCtx, checkCancel := context.WithTimeout(probeCtx, 10*time.Second)
			healthy, err := eng.HealthCheck(checkCtx)
			checkCancel()

			if healthy {
				return eng, nil
			}
			if err != nil {
				lastErr = err
			}

			select {
			case <-probeCtx.Done():
				if lastErr != nil {
					return nil, fmt.Errorf("engine did not become healthy within %s: %w", cfg.Whisper.LoadTimeout, lastErr)
				}
				return nil, fmt.Errorf("engine did not become healthy within %s", cfg.Whisper.LoadTimeout)
			case <-time.After(healthProbeInterval):
			}
		}
	}
}
