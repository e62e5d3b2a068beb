package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-bestsellers/config"
	"github.com/aluiziolira/go-scrape-bestsellers/models"
	"github.com/aluiziolira/go-scrape-bestsellers/pipeline"
	"github.com/aluiziolira/go-scrape-bestsellers/scraper"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaults := config.DefaultConfig()

	configFile := flag.String("config", "", "Optional YAML config file")
	sourceURL := flag.String("source-url", defaults.SourceURL, "First bestseller listing page")
	baseURL := flag.String("base-url", defaults.BaseURL, "Origin that relative links resolve against")
	maxPages := flag.Int("pages", defaults.MaxPages, "Maximum listing pages to walk (0 = all)")
	timeout := flag.Duration("timeout", defaults.Timeout, "Per-request timeout")
	connectionAttempts := flag.Int("connection-attempts", defaults.ConnectionAttempts, "Attempts per URL on connection failure")
	connectionBackoff := flag.Duration("connection-backoff", defaults.ConnectionBackoff, "Backoff step between connection attempts")
	maxFailures := flag.Int("max-connection-failures", defaults.MaxConnectionFailures, "Exhausted URLs before the run is aborted")
	serverRetries := flag.Int("server-retries", defaults.ServerRetries, "Re-requests of a URL answering 5xx")
	serverBackoff := flag.Duration("server-backoff", defaults.ServerBackoff, "Backoff step between server-error retries")
	cacheSize := flag.Int("detail-cache", defaults.DetailCacheSize, "Detail pages remembered per run (0 disables)")
	outputFile := flag.String("output", defaults.OutputFile, "Output file path")
	outputFormat := flag.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	statusLog := flag.String("status-log", defaults.StatusLogFile, "File recording URLs that yielded no page")
	respectRobots := flag.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	metricsAddr := flag.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", defaults.Verbose, "Enable verbose logging")

	flag.Parse()

	cfg := config.DefaultConfig()
	if *configFile != "" {
		if err := config.LoadFile(*configFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	// Flags given on the command line win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source-url":
			cfg.SourceURL = *sourceURL
		case "base-url":
			cfg.BaseURL = *baseURL
		case "pages":
			cfg.MaxPages = *maxPages
		case "timeout":
			cfg.Timeout = *timeout
		case "connection-attempts":
			cfg.ConnectionAttempts = *connectionAttempts
		case "connection-backoff":
			cfg.ConnectionBackoff = *connectionBackoff
		case "max-connection-failures":
			cfg.MaxConnectionFailures = *maxFailures
		case "server-retries":
			cfg.ServerRetries = *serverRetries
		case "server-backoff":
			cfg.ServerBackoff = *serverBackoff
		case "detail-cache":
			cfg.DetailCacheSize = *cacheSize
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "status-log":
			cfg.StatusLogFile = *statusLog
		case "respect-robots":
			cfg.RespectRobotsTxt = *respectRobots
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "v":
			cfg.Verbose = *verbose
		}
	})

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	existing, err := loadPrevious(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("loading previous results", slog.Any("error", err))
		return 1
	}
	slog.Info("starting scrape",
		slog.String("source_url", cfg.SourceURL),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("existing_rows", len(existing)),
	)

	s, err := scraper.NewScraper(cfg, pipeline.NewStatusLog(cfg.StatusLogFile))
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	p := pipeline.NewPipeline(writer, existing).WithLogger(s.Logger())
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)
	if err := p.Close(); err != nil && runErr == nil {
		runErr = err
	}

	metrics := p.GetMetrics()
	if persisted, ok := metrics["persisted_rows"].(int); ok {
		result.PersistedCount = persisted
	}
	printSummary(result, cfg.OutputFile, metrics)

	switch {
	case errors.Is(runErr, scraper.ErrNetworkDown):
		slog.Error("Stopped after retries, check network connection", slog.Any("error", runErr))
		return 1
	case errors.Is(runErr, context.Canceled):
		slog.Warn("scrape interrupted", slog.Int("persisted_rows", result.PersistedCount))
		return 1
	case runErr != nil:
		slog.Error("scraping failed", slog.Any("error", runErr))
		return 1
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func loadPrevious(format, filename string) ([]*models.Book, error) {
	if format == "json" {
		return pipeline.LoadJSONBooks(filename)
	}
	return pipeline.LoadBooks(filename)
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.ScraperResult, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	fmt.Printf("  Run ID:        %s\n", result.RunID)
	fmt.Printf("  Books:         %d\n", result.TotalCount)
	fmt.Printf("  Rows written:  %d\n", result.PersistedCount)
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Cache hits:    %d\n", result.CacheHits)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
