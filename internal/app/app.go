// Package app wires the API client and the client-state stores into one value
// owned by the program root.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spectra-gallery/spectra/internal/api"
	"github.com/spectra-gallery/spectra/internal/config"
	"github.com/spectra-gallery/spectra/internal/session"
	"github.com/spectra-gallery/spectra/internal/storage"
	"github.com/spectra-gallery/spectra/internal/theme"
	"github.com/spectra-gallery/spectra/logging"
)

// Options configures New.
type Options struct {
	Config config.Config
	// Slots persists the token and theme preference. Defaults to memory.
	Slots storage.Store
	// Document receives theme applications. Nil skips them.
	Document theme.Document
	Logger   *logging.Logger
	// Registerer receives client metrics. Nil disables them.
	Registerer prometheus.Registerer
	HTTPClient *http.Client
	// FetchTheme loads the remote palette table on startup.
	FetchTheme bool
}

// App is the context object handed to every consumer.
type App struct {
	Config  config.Config
	Logger  *logging.Logger
	API     *api.Client
	Session *session.Store
	Theme   *theme.Store
	Slots   storage.Store
}

// New builds the client and both stores. Session hydration and the theme
// config fetch start in the background; see Ready.
func New(ctx context.Context, opts Options) (*App, error) {
	slots := opts.Slots
	if slots == nil {
		slots = &storage.Memory{}
	}
	clientOpts := []api.Option{
		api.WithHTTPClient(opts.HTTPClient),
		api.WithTimeout(opts.Config.Timeout()),
	}
	if opts.Logger != nil {
		clientOpts = append(clientOpts, api.WithLogger(opts.Logger))
	}
	if opts.Registerer != nil {
		clientOpts = append(clientOpts, api.WithMetrics(api.NewMetrics(opts.Registerer)))
	}
	client, err := api.New(opts.Config.API.BaseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	var source theme.ConfigSource
	if opts.FetchTheme {
		source = client
	}
	return &App{
		Config:  opts.Config,
		Logger:  opts.Logger,
		API:     client,
		Session: session.New(ctx, client, slots, opts.Logger),
		Theme:   theme.New(ctx, source, slots, opts.Document, opts.Logger),
		Slots:   slots,
	}, nil
}

// Ready blocks until session hydration and the theme config fetch are done.
func (a *App) Ready(ctx context.Context) error {
	for _, ch := range []<-chan struct{}{a.Session.Hydrated(), a.Theme.Loaded()} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
