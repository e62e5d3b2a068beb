package config

import (
	"fmt"
	"net/url"
	"time"
)

// ConnectionErrorMarker is written to the status log in place of a status
// code when a URL exhausts its connection retries.
const ConnectionErrorMarker = "ConnectionError"

// Config holds scraper configuration.
type Config struct {
	SourceURL             string
	BaseURL               string
	MaxPages              int // 0 walks until the site stops paginating
	Timeout               time.Duration
	ConnectionAttempts    int
	ConnectionBackoff     time.Duration
	MaxConnectionFailures int
	ServerRetries         int
	ServerBackoff         time.Duration
	DetailCacheSize       int
	OutputFile            string
	OutputFormat          string // csv, json, or dual
	StatusLogFile         string
	UserAgent             string
	CurrencySymbol        string
	MetricsAddr           string
	Verbose               bool
	RespectRobotsTxt      bool
}

// DefaultConfig returns the settings of the bestseller crawl against amazon.in.
func DefaultConfig() *Config {
	return &Config{
		SourceURL:             "https://www.amazon.in/gp/bestsellers/books/",
		BaseURL:               "https://www.amazon.in",
		MaxPages:              0,
		Timeout:               10 * time.Second,
		ConnectionAttempts:    3,
		ConnectionBackoff:     10 * time.Second,
		MaxConnectionFailures: 3,
		ServerRetries:         5,
		ServerBackoff:         2 * time.Second,
		DetailCacheSize:       256,
		OutputFile:            "amazon_books_bestsellers.csv",
		OutputFormat:          "csv",
		StatusLogFile:         "url_log.txt",
		UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/113.0",
		CurrencySymbol:        "₹",
		MetricsAddr:           "",
		Verbose:               false,
		RespectRobotsTxt:      false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	base, err := validateURL("base URL", c.BaseURL)
	if err != nil {
		return err
	}
	source, err := validateURL("source URL", c.SourceURL)
	if err != nil {
		return err
	}
	if source.Host != base.Host {
		return fmt.Errorf("source URL host %q must match base URL host %q", source.Host, base.Host)
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ConnectionAttempts <= 0 {
		return fmt.Errorf("connection attempts must be positive")
	}
	if c.ConnectionBackoff < 0 {
		return fmt.Errorf("connection backoff cannot be negative")
	}
	if c.MaxConnectionFailures <= 0 {
		return fmt.Errorf("max connection failures must be positive")
	}
	if c.ServerRetries < 0 {
		return fmt.Errorf("server retries cannot be negative")
	}
	if c.ServerBackoff < 0 {
		return fmt.Errorf("server backoff cannot be negative")
	}
	if c.DetailCacheSize < 0 {
		return fmt.Errorf("detail cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.StatusLogFile == "" {
		return fmt.Errorf("status log file cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func validateURL(name, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%s must include a scheme and host", name)
	}
	return parsed, nil
}
