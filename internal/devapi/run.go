package devapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spectra-gallery/spectra/internal/config"
	"github.com/spectra-gallery/spectra/logging"
)

// Run seeds a store and serves the dev API on cfg.Addr until ctx is cancelled.
func Run(ctx context.Context, cfg config.DevAPIConfig, logger *logging.Logger) error {
	store := NewStore()
	password := cfg.AdminPassword
	if password == "" {
		password = uuid.NewString()
		logger.Warn(category, "generated admin password", map[string]any{"username": cfg.AdminUsername, "password": password})
	}
	if err := Seed(store, SeedOptions{AdminUsername: cfg.AdminUsername, AdminPassword: password}); err != nil {
		return err
	}
	if cfg.UsesDevelopmentSecret() {
		logger.Warn(category, "signing tokens with the built-in development secret", nil)
	}
	tokens, err := NewTokens(cfg.Secret, cfg.TokenTTL())
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	router, err := NewRouter(Options{
		Store:      store,
		Tokens:     tokens,
		Logger:     logger,
		Registerer: reg,
		Gatherer:   reg,
		Themes:     DefaultThemes(cfg.DefaultTheme),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info(category, "dev API listening", map[string]any{"addr": cfg.Addr, "prefix": prefix})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
