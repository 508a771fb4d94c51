package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"splask/internal/config"
	logpkg "splask/internal/logger"
	"splask/internal/metrics"
	openaiTransport "splask/internal/transport/openai"
	splunkTransport "splask/internal/transport/splunk"
	"splask/internal/version"

	chiTransport "splask/internal/transport/chi"
	askuc "splask/internal/usecase/ask"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting splask gateway",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", cfg.Env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("splunk_host", cfg.Splunk.Host),
		zap.String("openai_deployment", cfg.OpenAI.Deployment),
	)

	// Register upstream metrics explicitly (no init())
	metrics.RegisterUpstreamMetrics()

	completer := openaiTransport.NewCompleter(&openaiTransport.Config{
		Endpoint:          cfg.OpenAI.Endpoint,
		APIKey:            cfg.OpenAI.APIKey,
		Deployment:        cfg.OpenAI.Deployment,
		APIVersion:        cfg.OpenAI.APIVersion,
		SummaryMaxResults: cfg.Ask.SummaryMaxResults,
		Logger:            logger,
	})

	searcher := splunkTransport.NewClient(splunkTransport.Config{
		Host:         cfg.Splunk.Host,
		Port:         cfg.Splunk.Port,
		Username:     cfg.Splunk.Username,
		Password:     cfg.Splunk.Password,
		Scheme:       cfg.Splunk.Scheme,
		VerifySSL:    cfg.Splunk.VerifySSL,
		Timeout:      cfg.Splunk.Timeout(),
		PollInterval: cfg.Splunk.PollInterval(),
		Logger:       logger,
	})

	askSvc := askuc.New(completer, searcher).
		WithRetry(cfg.Ask.RetryAttempts, time.Duration(cfg.Ask.RetryBackoffSec)*time.Second)

	server := chiTransport.NewServer(askSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", server.Health)
	r.Get("/metrics", server.Metrics)
	r.Post("/ask", server.Ask)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
