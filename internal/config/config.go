// Package config loads runtime settings from the environment, optionally seeded
// from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "CAMGUARD_"

// Config holds every runtime setting of the API process.
type Config struct {
	Env      string
	HTTPAddr string

	PostgresDSN string

	AuthSecret   string
	SessionTTL   time.Duration
	RoleCacheTTL time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	TenantCacheTTL time.Duration

	AMQPURL string

	RateBurst  int
	RatePerSec int

	CORSOrigins   []string
	PlatformHosts []string

	// Seeds a super_admin into the in-memory store; ignored with Postgres.
	DevAdminEmail    string
	DevAdminPassword string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Config{
		Env:              getenv("ENV", "development"),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:      getenv("PG_DSN", ""),
		AuthSecret:       getenv("AUTH_SECRET", ""),
		RedisAddr:        getenv("REDIS_ADDR", ""),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		AMQPURL:          getenv("AMQP_URL", ""),
		CORSOrigins:      splitList(getenv("CORS_ORIGINS", "")),
		PlatformHosts:    splitList(getenv("PLATFORM_HOSTS", "localhost")),
		DevAdminEmail:    getenv("DEV_ADMIN_EMAIL", ""),
		DevAdminPassword: getenv("DEV_ADMIN_PASSWORD", ""),
	}

	var err error
	if cfg.SessionTTL, err = durationVar("SESSION_TTL", 12*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.TenantCacheTTL, err = durationVar("TENANT_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RoleCacheTTL, err = durationVar("ROLE_CACHE_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = intVar("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = intVar("RATE_BURST", 200); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSec, err = intVar("RATE_PER_SEC", 100); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the API cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("config: CAMGUARD_AUTH_SECRET is required")
	}
	if len(c.AuthSecret) < 16 {
		return errors.New("config: CAMGUARD_AUTH_SECRET must be at least 16 characters")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: CAMGUARD_SESSION_TTL must be positive")
	}
	if c.RoleCacheTTL < 0 {
		return errors.New("config: CAMGUARD_ROLE_CACHE_TTL must not be negative")
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		return errors.New("config: rate limit values must be positive")
	}
	return nil
}

// Production reports whether the process runs with production defaults.
func (c Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func intVar(key string, def int) (int, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid int for %s%s: %q", envPrefix, key, raw)
	}
	return n, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration for %s%s: %q", envPrefix, key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
