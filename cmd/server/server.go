package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/ThilakNarasimhamurthy/CogniShape/api/handlers"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/auth"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/config"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/db"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/gameconfig"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/logging"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/repository"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/session"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/telemetry"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "cognishape", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to flush traces")
		}
	}()

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if cfg.RecordDir != "" {
		if err := os.MkdirAll(cfg.RecordDir, 0755); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	repo := repository.NewSessionRepository(database)

	service := ws.NewService(logger, session.Config{
		Archive:   repo,
		RecordDir: cfg.RecordDir,
	}, ws.HandlerConfig{
		SendBuffer:  cfg.SendBuffer,
		CheckOrigin: cfg.CheckOrigin(),
	})
	defer service.Close()

	planner := session.NewPlanner(newGenerator(cfg, logger), repo, logger)
	router := newRouter(service, planner, repo, auth.New(cfg.JWTSecret, cfg.JWTIssuer), logger)

	go service.RunReaper(ctx, cfg.ReapInterval, cfg.Retention)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	return nil
}

func newGenerator(cfg config.Config, logger zerolog.Logger) gameconfig.Generator {
	if cfg.OpenAIAPIKey == "" {
		logger.Info().Msg("OPENAI_API_KEY not set, sessions use the fallback config")
		return gameconfig.StaticGenerator{}
	}
	return gameconfig.NewOpenAIGenerator(cfg.OpenAIModel, option.WithAPIKey(cfg.OpenAIAPIKey))
}

func newRouter(service *ws.Service, planner *session.Planner, history session.SummaryLister, authorizer auth.Authorizer, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), corsMiddleware())

	handlers.NewHealthHandler(service.HubManager()).RegisterRoutes(r)
	handlers.NewWebSocketHandler(service.Handler(), authorizer, logger).RegisterRoutes(r)

	api := r.Group("/api")
	{
		handlers.NewSessionHandler(service.Sessions(), planner, history).RegisterRoutes(api)
		handlers.NewControlHandler(service.Sessions()).RegisterRoutes(api)
		handlers.NewFeedHandler(service.HubManager()).RegisterRoutes(api)
	}
	return r
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
