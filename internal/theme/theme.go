// Package theme tracks the active colour theme, persists the preference and
// applies server-supplied palettes to a document.
package theme

import (
	"context"
	"strings"
	"sync"

	"github.com/spectra-gallery/spectra/internal/model"
	"github.com/spectra-gallery/spectra/internal/reactive"
	"github.com/spectra-gallery/spectra/internal/storage"
	"github.com/spectra-gallery/spectra/logging"
)

const category = "theme"

// Built-in theme names.
const (
	Dark  = "dark"
	Light = "light"
)

// ConfigSource supplies the palette table, normally the API client.
type ConfigSource interface {
	ThemeConfig(ctx context.Context) (*model.ThemeConfig, error)
}

// Store holds the active theme name.
type Store struct {
	slots  storage.Store
	doc    Document
	logger *logging.Logger
	value  *reactive.Value[string]

	mu     sync.RWMutex
	config *model.ThemeConfig

	loaded chan struct{}
}

// New reads the persisted preference and, when source is non-nil, fetches the
// palette table in the background. Loaded is closed once that attempt ends.
// Without a source the persisted name is applied attribute-only right away.
func New(ctx context.Context, source ConfigSource, slots storage.Store, doc Document, logger *logging.Logger) *Store {
	if slots == nil {
		slots = &storage.Memory{}
	}
	s := &Store{
		slots:  slots,
		doc:    doc,
		logger: logger,
		loaded: make(chan struct{}),
	}
	s.value = reactive.NewValue(s.persisted())

	if source == nil {
		s.apply(s.value.Get())
		close(s.loaded)
		return s
	}
	go func() {
		defer close(s.loaded)
		s.load(ctx, source)
	}()
	return s
}

func (s *Store) persisted() string {
	if name, ok := s.slots.Get(storage.ThemeKey); ok && strings.TrimSpace(name) != "" {
		return name
	}
	return Dark
}

func (s *Store) load(ctx context.Context, source ConfigSource) {
	cfg, err := source.ThemeConfig(ctx)
	if err != nil {
		s.logger.Warn(category, "theme config unavailable, using attribute only", map[string]any{"error": err.Error()})
		s.apply(s.persisted())
		return
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()

	preferred := Dark
	if name, ok := s.slots.Get(storage.ThemeKey); ok && strings.TrimSpace(name) != "" {
		preferred = name
	} else if def := strings.TrimSpace(cfg.Site.DefaultTheme); def != "" {
		preferred = def
	}
	s.value.Set(preferred)
	s.apply(preferred)
	s.logger.Debug(category, "theme config loaded", map[string]any{"themes": len(cfg.Themes), "active": preferred})
}

// Loaded is closed when the config fetch has finished, successfully or not.
func (s *Store) Loaded() <-chan struct{} {
	return s.loaded
}

// Value returns the active theme name.
func (s *Store) Value() string {
	return s.value.Get()
}

// Subscribe calls fn with the current name and after every change.
func (s *Store) Subscribe(fn func(string)) (unsubscribe func()) {
	return s.value.Subscribe(fn)
}

// Config returns the loaded palette table, or nil. Callers must not modify it.
func (s *Store) Config() *model.ThemeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Current resolves the active theme against the loaded config.
func (s *Store) Current() Application {
	return Resolve(s.Value(), s.Config())
}

// Toggle switches dark to light and anything else to dark, persists the
// choice and re-applies it. It returns the new name.
func (s *Store) Toggle() string {
	next := s.value.Update(func(current string) string {
		if current == Dark {
			return Light
		}
		return Dark
	})
	if err := s.slots.Set(storage.ThemeKey, next); err != nil {
		s.logger.Error(category, "persist theme", err, nil)
	}
	s.apply(next)
	s.logger.Info(category, "theme toggled", map[string]any{"theme": next})
	return next
}

func (s *Store) apply(name string) {
	Resolve(name, s.Config()).Apply(s.doc)
}
