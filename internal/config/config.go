// Package config loads client and dev API settings from a JSON file, an
// optional .env file and SPECTRA_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIURL       = "http://127.0.0.1:8000/api/v1"
	defaultLogLevel     = "WARN"
	defaultDevAddr      = "127.0.0.1:8000"
	defaultDevTheme     = "dark"
	defaultTokenTTL     = 30 * 60
	defaultStateName    = "state.json"
	fallbackStateFile   = ".spectra-state.json"
	developmentSecret   = "spectra-development-secret"
	defaultAdminAccount = "admin"
)

// APIConfig points the client at the REST API.
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ClientConfig holds local client settings.
type ClientConfig struct {
	StatePath string `json:"state_path"`
	LogLevel  string `json:"log_level"`
}

// DevAPIConfig configures the in-memory development API.
type DevAPIConfig struct {
	Addr            string `json:"addr"`
	Secret          string `json:"secret"`
	TokenTTLSeconds int    `json:"token_ttl_seconds"`
	DefaultTheme    string `json:"default_theme"`
	AdminUsername   string `json:"admin_username"`
	AdminPassword   string `json:"admin_password"`
	// LogDir, when set, also writes request logs to a rotating devapi.log there.
	LogDir string `json:"log_dir"`
}

// Config is the combined runtime configuration.
type Config struct {
	API    APIConfig    `json:"api"`
	Client ClientConfig `json:"client"`
	DevAPI DevAPIConfig `json:"devapi"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{BaseURL: defaultAPIURL},
		Client: ClientConfig{
			StatePath: defaultStatePath(),
			LogLevel:  defaultLogLevel,
		},
		DevAPI: DevAPIConfig{
			Addr:            defaultDevAddr,
			Secret:          developmentSecret,
			TokenTTLSeconds: defaultTokenTTL,
			DefaultTheme:    defaultDevTheme,
			AdminUsername:   defaultAdminAccount,
		},
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return fallbackStateFile
	}
	return filepath.Join(dir, "spectra", defaultStateName)
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the JSON config at path, fills defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	normalise(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.API.BaseURL, "SPECTRA_API_URL")
	setString(&cfg.Client.StatePath, "SPECTRA_STATE_FILE")
	setString(&cfg.Client.LogLevel, "SPECTRA_LOG_LEVEL")
	setString(&cfg.DevAPI.Addr, "SPECTRA_DEVAPI_ADDR")
	setString(&cfg.DevAPI.Secret, "SPECTRA_DEVAPI_SECRET")
	setString(&cfg.DevAPI.DefaultTheme, "SPECTRA_DEFAULT_THEME")
	setString(&cfg.DevAPI.AdminUsername, "SPECTRA_DEVAPI_ADMIN_USERNAME")
	setString(&cfg.DevAPI.AdminPassword, "SPECTRA_DEVAPI_ADMIN_PASSWORD")
	setString(&cfg.DevAPI.LogDir, "SPECTRA_DEVAPI_LOG_DIR")
	if err := setInt(&cfg.API.TimeoutSeconds, "SPECTRA_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	return setInt(&cfg.DevAPI.TokenTTLSeconds, "SPECTRA_DEVAPI_TOKEN_TTL_SECONDS")
}

func setString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func normalise(cfg *Config) {
	cfg.API.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaultAPIURL
	}
	if cfg.API.TimeoutSeconds < 0 {
		cfg.API.TimeoutSeconds = 0
	}
	if strings.TrimSpace(cfg.Client.StatePath) == "" {
		cfg.Client.StatePath = defaultStatePath()
	}
	cfg.Client.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.Client.LogLevel))
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = defaultLogLevel
	}
	if cfg.DevAPI.Addr == "" {
		cfg.DevAPI.Addr = defaultDevAddr
	}
	if cfg.DevAPI.Secret == "" {
		cfg.DevAPI.Secret = developmentSecret
	}
	if cfg.DevAPI.TokenTTLSeconds <= 0 {
		cfg.DevAPI.TokenTTLSeconds = defaultTokenTTL
	}
	if cfg.DevAPI.DefaultTheme == "" {
		cfg.DevAPI.DefaultTheme = defaultDevTheme
	}
	if cfg.DevAPI.AdminUsername == "" {
		cfg.DevAPI.AdminUsername = defaultAdminAccount
	}
}

// Timeout is the per-request API timeout; zero means none.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// TokenTTL is the lifetime of tokens issued by the dev API.
func (c DevAPIConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// UsesDevelopmentSecret reports whether the dev API still signs with the
// built-in secret.
func (c DevAPIConfig) UsesDevelopmentSecret() bool {
	return c.Secret == developmentSecret
}
