package api

import (
	"context"
	"net/http"

	"github.com/spectra-gallery/spectra/internal/model"
)

// ThemeConfig fetches the server palette table from theme-config.
func (c *Client) ThemeConfig(ctx context.Context) (*model.ThemeConfig, error) {
	var cfg model.ThemeConfig
	if err := c.do(ctx, request{op: "theme_config", method: http.MethodGet, path: "theme-config"}, &cfg); err != nil {
		return nil, err
	}
	if cfg.Themes == nil {
		cfg.Themes = map[string]map[string]string{}
	}
	return &cfg, nil
}
