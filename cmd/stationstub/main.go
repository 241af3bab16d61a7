// Package main runs a fake station service for local development.
//
//	STUB_MODE=ok|flaky|slow|down  (default ok)
//	STUB_FAILURE_RATE=0.5         share of 503s in flaky mode
//	STUB_LATENCY=3s               added delay in slow mode
//
// Station ids starting with "404" always answer 404.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/blackstrype/trainline/internal/middleware"
	"github.com/blackstrype/trainline/internal/stationstub"
	"github.com/blackstrype/trainline/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(logger)

	cfg := stationstub.Config{Mode: os.Getenv("STUB_MODE")}
	if v := os.Getenv("STUB_FAILURE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			logger.Error("invalid STUB_FAILURE_RATE", "value", v, "error", err)
			os.Exit(1)
		}
		cfg.FailureRate = rate
	}
	if v := os.Getenv("STUB_LATENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid STUB_LATENCY", "value", v, "error", err)
			os.Exit(1)
		}
		cfg.Latency = d
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	stub := stationstub.New(cfg)
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Mount("/", stub.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("station stub starting", "addr", srv.Addr, "mode", cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("station stub stopped", "calls", stub.Calls())
}
