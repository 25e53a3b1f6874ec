package devapi

import (
	"fmt"

	"github.com/spectra-gallery/spectra/internal/model"
)

// DefaultThemes returns the built-in dark and light palettes with
// defaultTheme advertised as the site default.
func DefaultThemes(defaultTheme string) *model.ThemeConfig {
	return &model.ThemeConfig{
		Themes: map[string]map[string]string{
			"dark": {
				"bg_color":      "#121212",
				"text_color":    "#e0e0e0",
				"primary_color": "#bb86fc",
				"card_bg_color": "#1e1e1e",
				"border_color":  "#333333",
			},
			"light": {
				"bg_color":      "#ffffff",
				"text_color":    "#1a1a1a",
				"primary_color": "#6200ee",
				"card_bg_color": "#f5f5f5",
				"border_color":  "#dddddd",
			},
		},
		Site: model.SiteThemeSettings{DefaultTheme: defaultTheme},
	}
}

// SeedOptions describes the demo content loaded into a fresh store.
type SeedOptions struct {
	AdminUsername string
	AdminPassword string
}

// Seed creates the owner account, a demo user and a handful of posts.
func Seed(store *Store, opts SeedOptions) error {
	owner, err := store.CreateUser(opts.AdminUsername, opts.AdminUsername+"@spectra.local", opts.AdminPassword, model.RoleOwner)
	if err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}
	demo, err := store.CreateUser("demo", "demo@spectra.local", "demo-password", model.RoleUser)
	if err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}

	samples := []struct {
		by       model.User
		title    string
		filename string
		tags     []string
	}{
		{owner, "Harbour at dusk", "harbour.jpg", []string{"sunset", "sea", "city"}},
		{demo, "Fern macro", "fern.png", []string{"nature", "macro"}},
		{demo, "Night market", "market.webp", []string{"city", "night"}},
		{owner, "Dune ridge", "dune.jpg", []string{"desert", "sunset"}},
	}
	for _, sample := range samples {
		store.AddPost(sample.by, sample.title, sample.filename, sample.tags)
	}
	return nil
}
