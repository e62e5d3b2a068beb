package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString reports the value of key when it is set and non-blank.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overrides cfg with any SCRAPER_* variables present in the
// environment.
func ApplyEnv(cfg *Config) error {
	if v, ok := EnvString("SCRAPER_SOURCE_URL"); ok {
		cfg.SourceURL = v
	}
	if v, ok := EnvString("SCRAPER_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = v
	}
	if v, ok := EnvString("SCRAPER_FORMAT"); ok {
		cfg.OutputFormat = strings.ToLower(v)
	}
	if v, ok := EnvString("SCRAPER_STATUS_LOG"); ok {
		cfg.StatusLogFile = v
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SCRAPER_PAGES", &cfg.MaxPages},
		{"SCRAPER_CONNECTION_ATTEMPTS", &cfg.ConnectionAttempts},
		{"SCRAPER_MAX_CONNECTION_FAILURES", &cfg.MaxConnectionFailures},
		{"SCRAPER_SERVER_RETRIES", &cfg.ServerRetries},
		{"SCRAPER_DETAIL_CACHE", &cfg.DetailCacheSize},
	}
	for _, item := range ints {
		value, ok, err := EnvInt(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = value
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCRAPER_TIMEOUT", &cfg.Timeout},
		{"SCRAPER_CONNECTION_BACKOFF", &cfg.ConnectionBackoff},
		{"SCRAPER_SERVER_BACKOFF", &cfg.ServerBackoff},
	}
	for _, item := range durations {
		value, ok, err := EnvDuration(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = value
		}
	}
	return nil
}
