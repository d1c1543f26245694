package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the environment variable that points at an optional YAML config file.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched for a config file when CONFIG_PATH is unset.
var DefaultPaths = []string{"config.yaml", "config.yml"}

// Config captures all runtime configuration. Keys match the environment
// variable names in lower case.
type Config struct {
	Port                   string `koanf:"port"`
	AuthToken              string `koanf:"auth_token"`
	DBURL                  string `koanf:"db_url"`
	CatalogURL             string `koanf:"catalog_url"`
	CatalogAPIKey          string `koanf:"catalog_api_key"`
	CatalogTimeoutSecs     int    `koanf:"catalog_timeout_secs"`
	CatalogBreakerFailures int    `koanf:"catalog_breaker_failures"`
	ReadTimeoutSecs        int    `koanf:"server_read_timeout"`
	WriteTimeoutSecs       int    `koanf:"server_write_timeout"`
	IdleTimeoutSecs        int    `koanf:"server_idle_timeout"`
	DBMaxConns             int    `koanf:"db_max_conns"`
	DBMinConns             int    `koanf:"db_min_conns"`
	DBMaxIdleSecs          int    `koanf:"db_max_conn_idle_secs"`
	DBMaxLifeSecs          int    `koanf:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs      int    `koanf:"db_conn_timeout_secs"`
	DBStatementCache       int    `koanf:"db_statement_cache_capacity"`
	LogLevel               string `koanf:"log_level"`
	LogFormat              string `koanf:"log_format"`
	RateLimitRequests      int    `koanf:"rate_limit_requests"`
	RateLimitWindowSecs    int    `koanf:"rate_limit_window_secs"`
	CORSAllowedOrigins     string `koanf:"cors_allowed_origins"`
	PickTimezone           string `koanf:"pick_timezone"`
}

func defaults() Config {
	return Config{
		Port:                   "8080",
		CatalogTimeoutSecs:     5,
		CatalogBreakerFailures: 5,
		ReadTimeoutSecs:        15,
		WriteTimeoutSecs:       15,
		IdleTimeoutSecs:        60,
		DBMaxConns:             20,
		DBMinConns:             2,
		DBMaxIdleSecs:          300,
		DBMaxLifeSecs:          3600,
		DBConnTimeoutSecs:      10,
		DBStatementCache:       256,
		LogLevel:               "info",
		LogFormat:              "json",
		RateLimitRequests:      30,
		RateLimitWindowSecs:    60,
		PickTimezone:           "UTC",
	}
}

// Load layers defaults, an optional YAML file and environment variables, then validates the result.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	known := make(map[string]struct{})
	for _, key := range k.Keys() {
		known[key] = struct{}{}
	}
	envProvider := env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(key)
		if _, ok := known[key]; !ok || value == "" {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (cfg Config) Validate() error {
	if cfg.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if cfg.CatalogURL == "" {
		return fmt.Errorf("CATALOG_URL is required")
	}
	if cfg.CatalogAPIKey == "" {
		return fmt.Errorf("CATALOG_API_KEY is required")
	}
	if cfg.CatalogTimeoutSecs <= 0 {
		return fmt.Errorf("CATALOG_TIMEOUT_SECS must be positive")
	}
	if cfg.CatalogBreakerFailures <= 0 {
		return fmt.Errorf("CATALOG_BREAKER_FAILURES must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.RateLimitRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be non-negative")
	}
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindowSecs <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECS must be positive")
	}
	if _, err := time.LoadLocation(cfg.PickTimezone); err != nil {
		return fmt.Errorf("PICK_TIMEZONE is invalid: %w", err)
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (cfg Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(cfg.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Location returns the time zone used to decide which day's pick is current.
func (cfg Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.PickTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func findFile() string {
	if path := os.Getenv(PathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
