package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func Load() (Config, error) {
	cfg := Config{}

	cfg.HTTP.Port = getEnvInt("RIG_HTTP_PORT", 8080)
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return Config{}, fmt.Errorf("RIG_HTTP_PORT %d is outside the valid range 1-65535", cfg.HTTP.Port)
	}
	cfg.HTTP.EventHistory = getEnvInt("RIG_EVENT_HISTORY", 50)
	if cfg.HTTP.EventHistory < 0 {
		return Config{}, fmt.Errorf("RIG_EVENT_HISTORY must not be negative")
	}

	cfg.Run.AutoStart = getEnvBool("RIG_AUTO_START", true)
	cfg.Run.MaxAttempts = getEnvInt("RIG_MAX_ATTEMPTS", 3)
	if cfg.Run.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("RIG_MAX_ATTEMPTS must be at least 1")
	}

	var err error
	if cfg.Run.RetryDelay, err = getEnvDuration("RIG_RETRY_DELAY", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Run.PrintTimeout, err = getEnvDuration("RIG_PRINT_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Hotplug.PollInterval, err = getEnvDuration("RIG_POLL_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}

	cfg.Run.ImageDir = getEnv("RIG_IMAGE_DIR", filepath.Join(os.TempDir(), "printrig-images"))
	cfg.Hotplug.ProfilesFile = os.Getenv("RIG_PROFILES_FILE")
	cfg.Archive.DSN = os.Getenv("RIG_DB_DSN")
	cfg.Fleet.NATSURL = os.Getenv("RIG_NATS_URL")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
