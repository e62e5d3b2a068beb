package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-bestsellers/config"
)

// Retrier wraps a PageFetcher and retries transport failures with a linear
// backoff. It owns the count of URLs that exhausted their attempts; once the
// count reaches its limit every further Fetch is refused with ErrNetworkDown.
type Retrier struct {
	next    PageFetcher
	status  StatusRecorder
	metrics *Metrics
	stats   *runStats
	log     *slog.Logger

	attempts    int
	backoff     time.Duration
	maxFailures int

	exhausted int

	sleep func(context.Context, time.Duration) error
}

func newRetrier(next PageFetcher, cfg *config.Config, status StatusRecorder, metrics *Metrics, stats *runStats, log *slog.Logger) *Retrier {
	return &Retrier{
		next:        next,
		status:      status,
		metrics:     metrics,
		stats:       stats,
		log:         log,
		attempts:    cfg.ConnectionAttempts,
		backoff:     cfg.ConnectionBackoff,
		maxFailures: cfg.MaxConnectionFailures,
		sleep:       sleepContext,
	}
}

// Fetch calls the wrapped fetcher up to the configured number of attempts.
// A URL that never gets through is logged with the connection error marker
// and skipped, unless it is the one that reaches the failure limit.
func (r *Retrier) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if r.exhausted >= r.maxFailures {
		return nil, ErrNetworkDown
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		doc, err := r.next.Fetch(ctx, rawURL)
		if err == nil {
			return doc, nil
		}
		if !isTransportFailure(err) {
			return nil, err
		}
		lastErr = err
		if attempt == r.attempts {
			break
		}

		delay := time.Duration(attempt) * r.backoff
		r.stats.retries++
		r.metrics.IncRetries("connection")
		r.log.Warn("request failed, retrying",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Duration("sleep", delay),
			slog.Any("error", err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	r.exhausted++
	r.stats.addFailure(rawURL, errorTypeLabel(lastErr))
	r.log.Error("connection retries exhausted",
		slog.String("url", rawURL),
		slog.Int("attempts", r.attempts),
		slog.Int("exhausted_urls", r.exhausted),
		slog.Any("error", lastErr),
	)
	if err := r.status.Record(rawURL, config.ConnectionErrorMarker); err != nil {
		return nil, fmt.Errorf("status log: %w", err)
	}

	if r.exhausted >= r.maxFailures {
		r.log.Error("stopped after retries, check network connection",
			slog.Int("exhausted_urls", r.exhausted),
		)
		return nil, fmt.Errorf("%w: %d URLs exhausted their retries: %w", ErrNetworkDown, r.exhausted, lastErr)
	}
	return nil, nil
}
