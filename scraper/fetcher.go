package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-bestsellers/config"
)

const (
	responseKey = "response"
	startKey    = "start"
)

// StatusRecorder persists the status of a URL that produced no page.
type StatusRecorder interface {
	Record(url, status string) error
}

// PageFetcher returns the parsed page at a URL. A nil document with a nil
// error means the URL was skipped; any error is either a transport failure
// or fatal to the run.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// Fetcher issues one GET per call through a synchronous colly collector and
// classifies the response.
type Fetcher struct {
	collector *colly.Collector
	status    StatusRecorder
	metrics   *Metrics
	stats     *runStats
	log       *slog.Logger

	serverRetries int
	serverBackoff time.Duration

	sleep func(context.Context, time.Duration) error
}

func newCollector(cfg *config.Config) (*colly.Collector, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	return collector, nil
}

func newFetcher(collector *colly.Collector, cfg *config.Config, status StatusRecorder, metrics *Metrics, stats *runStats, log *slog.Logger) *Fetcher {
	f := &Fetcher{
		collector:     collector,
		status:        status,
		metrics:       metrics,
		stats:         stats,
		log:           log,
		serverRetries: cfg.ServerRetries,
		serverBackoff: cfg.ServerBackoff,
		sleep:         sleepContext,
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(startKey, time.Now())
	})
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
		if start, ok := r.Request.Ctx.GetAny(startKey).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})
	return f
}

// Fetch returns the parsed page for a 200 response. Client errors and
// unexpected statuses are written to the status log and skipped; server
// errors are re-requested a few times and skipped silently when they persist.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := f.get(ctx, rawURL, "initial")
	if err != nil || resp == nil {
		return nil, err
	}

	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return f.parse(resp), nil
	case code >= 400 && code <= 499:
		f.log.Warn("client error response",
			slog.String("url", rawURL),
			slog.Int("status", code),
		)
		f.countError(rawURL, classifyError(nil, code))
		return nil, f.record(rawURL, code)
	case code >= 500 && code <= 599:
		f.log.Warn("server error response, retrying",
			slog.String("url", rawURL),
			slog.Int("status", code),
		)
		return f.retryServerError(ctx, rawURL)
	default:
		f.log.Warn("unexpected response status",
			slog.String("url", rawURL),
			slog.Int("status", code),
		)
		f.countError(rawURL, classifyError(nil, code))
		return nil, f.record(rawURL, code)
	}
}

func (f *Fetcher) retryServerError(ctx context.Context, rawURL string) (*goquery.Document, error) {
	lastStatus := 0
	for attempt := 1; attempt <= f.serverRetries; attempt++ {
		f.stats.retries++
		f.metrics.IncRetries("server_error")

		resp, err := f.get(ctx, rawURL, "server_retry")
		if err != nil {
			return nil, err
		}
		if resp != nil {
			if resp.StatusCode == http.StatusOK {
				return f.parse(resp), nil
			}
			lastStatus = resp.StatusCode
		}
		f.log.Debug("server retry failed",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Int("status", lastStatus),
		)

		if attempt < f.serverRetries {
			if err := f.sleep(ctx, time.Duration(attempt)*f.serverBackoff); err != nil {
				return nil, err
			}
		}
	}

	f.log.Warn("server errors persisted, skipping",
		slog.String("url", rawURL),
		slog.Int("retries", f.serverRetries),
	)
	f.countError(rawURL, ErrStatus{StatusCode: lastStatus})
	return nil, nil
}

// get performs a single request. It returns a classified error only for
// transport failures; requests the collector refuses are logged and skipped.
func (f *Fetcher) get(ctx context.Context, rawURL, phase string) (*colly.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.stats.requests++
	f.metrics.IncRequest(phase)

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil); err != nil {
		classified := classifyError(err, 0)
		if isTransportFailure(classified) {
			f.metrics.IncError(errorTypeLabel(classified))
			return nil, classified
		}
		f.log.Warn("request not sent",
			slog.String("url", rawURL),
			slog.Any("error", err),
		)
		f.countError(rawURL, classified)
		return nil, nil
	}

	resp, ok := reqCtx.GetAny(responseKey).(*colly.Response)
	if !ok {
		f.log.Warn("no response captured", slog.String("url", rawURL))
		return nil, nil
	}
	f.metrics.IncResponse(resp.StatusCode)
	return resp, nil
}

func (f *Fetcher) parse(resp *colly.Response) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		f.log.Warn("unparseable page",
			slog.String("url", resp.Request.URL.String()),
			slog.Any("error", err),
		)
		return nil
	}
	return doc
}

func (f *Fetcher) record(rawURL string, statusCode int) error {
	if err := f.status.Record(rawURL, strconv.Itoa(statusCode)); err != nil {
		return fmt.Errorf("status log: %w", err)
	}
	return nil
}

func (f *Fetcher) countError(rawURL string, err error) {
	label := errorTypeLabel(err)
	f.metrics.IncError(label)
	f.stats.addFailure(rawURL, label)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
