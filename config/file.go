package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// fileConfig mirrors Config for YAML files. Pointers distinguish "absent"
// from a zero value so a file only overrides what it names.
type fileConfig struct {
	SourceURL             *string `yaml:"source_url"`
	BaseURL               *string `yaml:"base_url"`
	MaxPages              *int    `yaml:"max_pages"`
	Timeout               *string `yaml:"timeout"`
	ConnectionAttempts    *int    `yaml:"connection_attempts"`
	ConnectionBackoff     *string `yaml:"connection_backoff"`
	MaxConnectionFailures *int    `yaml:"max_connection_failures"`
	ServerRetries         *int    `yaml:"server_retries"`
	ServerBackoff         *string `yaml:"server_backoff"`
	DetailCacheSize       *int    `yaml:"detail_cache_size"`
	OutputFile            *string `yaml:"output_file"`
	OutputFormat          *string `yaml:"output_format"`
	StatusLogFile         *string `yaml:"status_log_file"`
	UserAgent             *string `yaml:"user_agent"`
	CurrencySymbol        *string `yaml:"currency_symbol"`
	MetricsAddr           *string `yaml:"metrics_addr"`
	RespectRobotsTxt      *bool   `yaml:"respect_robots_txt"`
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.SourceURL, fc.SourceURL)
	setString(&cfg.BaseURL, fc.BaseURL)
	setString(&cfg.OutputFile, fc.OutputFile)
	setString(&cfg.OutputFormat, fc.OutputFormat)
	setString(&cfg.StatusLogFile, fc.StatusLogFile)
	setString(&cfg.UserAgent, fc.UserAgent)
	setString(&cfg.CurrencySymbol, fc.CurrencySymbol)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setInt(&cfg.MaxPages, fc.MaxPages)
	setInt(&cfg.ConnectionAttempts, fc.ConnectionAttempts)
	setInt(&cfg.MaxConnectionFailures, fc.MaxConnectionFailures)
	setInt(&cfg.ServerRetries, fc.ServerRetries)
	setInt(&cfg.DetailCacheSize, fc.DetailCacheSize)
	if fc.RespectRobotsTxt != nil {
		cfg.RespectRobotsTxt = *fc.RespectRobotsTxt
	}

	for name, pair := range map[string]struct {
		src *string
		dst *time.Duration
	}{
		"timeout":            {fc.Timeout, &cfg.Timeout},
		"connection_backoff": {fc.ConnectionBackoff, &cfg.ConnectionBackoff},
		"server_backoff":     {fc.ServerBackoff, &cfg.ServerBackoff},
	} {
		if pair.src == nil {
			continue
		}
		d, err := time.ParseDuration(*pair.src)
		if err != nil {
			return fmt.Errorf("config file %s: %w", name, err)
		}
		*pair.dst = d
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
