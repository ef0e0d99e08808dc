package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p32929/github-trending-repos/internal/api"
	"github.com/p32929/github-trending-repos/internal/cache"
	"github.com/p32929/github-trending-repos/internal/config"
	"github.com/p32929/github-trending-repos/internal/events"
	"github.com/p32929/github-trending-repos/internal/refresh"
	"github.com/p32929/github-trending-repos/internal/trending"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trending HTTP server",
	Long: `Run the HTTP server exposing the refresh trigger, the trending
endpoint, and the live SSE progress feed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	slog.Info("opening cache", "path", cfg.CachePath)
	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	hub := events.NewHub()

	coord := refresh.New(refresh.Config{
		Fetcher: trending.NewHTTPFetcher(trending.HTTPFetcherConfig{
			BaseURL:   cfg.BaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.FetchTimeout,
		}),
		Store:      store,
		Hub:        hub,
		Categories: cfg.Categories(),
	})

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     api.NewServer(coord, store, hub),
		ReadTimeout: 10 * time.Second,
	}

	slog.Info("starting trending server",
		"addr", cfg.ListenAddr,
		"languages", len(cfg.Languages),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
