// agentd - loopback deep-search agent server for local development
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/deepchat/internal/agentd"
	"github.com/ashureev/deepchat/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting agent server", "port", cfg.Port)

	agent := &agentd.EchoAgent{
		ReasoningLines: []string{
			"Parsing the question...",
			"Searching relevant sources...",
			"Drafting the answer...",
		},
		StepDelay:       500 * time.Millisecond,
		FollowUpTrigger: "clarify",
		AskEvaluation:   true,
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     agentd.New(agent, logger),
		ReadTimeout: 30 * time.Second,
		// No write timeout: push-channel sessions stay open indefinitely.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Agent server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Agent server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Agent server forced to shutdown", "error", err)
	}
	slog.Info("Agent server stopped")
}
