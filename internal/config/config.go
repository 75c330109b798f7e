// Package config loads process configuration from the environment, with an
// optional .env file hydration step for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting a sentineld process needs regardless of which
// role it runs. Role-specific settings (which monitors, which channels) are
// read directly from env vars by the component that needs them, the same
// split the original settings-database/env-var split drew.
type Config struct {
	LogLevel  string
	LogPretty bool

	BrokerURL      string
	ExchangeName   string
	RestartPeriod  time.Duration
	HeartbeatEvery time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ConfigDir string
	Namespace string
}

// Load hydrates .env (if present, silently ignored if not) and then reads
// every required variable from the environment. It fails fast: a missing
// required variable is a startup error, never a silently-zero default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:  getenvDefault("LOG_LEVEL", "info"),
		LogPretty: getenvBool("LOG_PRETTY", false),

		ExchangeName: getenvDefault("BROKER_EXCHANGE", "sentinel"),
		ConfigDir:    getenvDefault("CONFIG_DIR", "/etc/sentinel/conf.d"),
		Namespace:    getenvDefault("NAMESPACE", "sentinel"),

		RedisDB: getenvIntDefault("REDIS_DB", 0),
	}

	var err error
	if cfg.BrokerURL, err = required("BROKER_URL"); err != nil {
		return nil, err
	}
	if cfg.RedisAddr, err = required("REDIS_ADDR"); err != nil {
		return nil, err
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if cfg.RestartPeriod, err = getenvDurationDefault("RESTART_PERIOD", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HeartbeatEvery, err = getenvDurationDefault("HEARTBEAT_EVERY", 30*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func required(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: required environment variable %s is not set", key)
	}
	return v, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDurationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration for %s: %w", key, err)
	}
	return d, nil
}
