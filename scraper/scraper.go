package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-bestsellers/config"
	"github.com/aluiziolira/go-scrape-bestsellers/models"
	"github.com/aluiziolira/go-scrape-bestsellers/parser"
)

// Sink receives every book extracted during a run.
type Sink interface {
	Process(books ...*models.Book) error
}

// Scraper walks the paginated bestseller listing and extracts a book from
// every detail page it links to. Requests are strictly sequential.
type Scraper struct {
	cfg       *config.Config
	base      *url.URL
	collector *colly.Collector
	pages     PageFetcher
	extractor *parser.Extractor
	cache     *lru.Cache[string, models.Book]
	stats     *runStats
	log       *slog.Logger

	// RunID tags every log line of this run.
	RunID   string
	Metrics *Metrics
}

// NewScraper builds a scraper instance configured from cfg. Pages that yield
// nothing are reported to status.
func NewScraper(cfg *config.Config, status StatusRecorder) (*Scraper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	collector, err := newCollector(cfg)
	if err != nil {
		return nil, err
	}

	var cache *lru.Cache[string, models.Book]
	if cfg.DetailCacheSize > 0 {
		cache, err = lru.New[string, models.Book](cfg.DetailCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create detail cache: %w", err)
		}
	}

	runID := uuid.NewString()
	log := slog.Default().With(slog.String("run_id", runID))
	metrics := NewMetrics()
	stats := newRunStats()

	fetcher := newFetcher(collector, cfg, status, metrics, stats, log)
	return &Scraper{
		cfg:       cfg,
		base:      base,
		collector: collector,
		pages:     newRetrier(fetcher, cfg, status, metrics, stats, log),
		extractor: parser.NewExtractor(cfg.CurrencySymbol),
		cache:     cache,
		stats:     stats,
		log:       log,
		RunID:     runID,
		Metrics:   metrics,
	}, nil
}

// Logger returns the logger of this run, tagged with its run id.
func (s *Scraper) Logger() *slog.Logger {
	return s.log
}

// Run walks the listing from the configured source URL until the site stops
// paginating. The result is returned even when the run is cut short; the
// error is then ErrNetworkDown, a persistence failure, or ctx's error.
func (s *Scraper) Run(ctx context.Context, sink Sink) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	s.log.Info("crawl started", slog.String("source_url", s.cfg.SourceURL))
	err := s.walk(ctx, sink)

	result := &models.ScraperResult{
		RunID:        s.RunID,
		StartTime:    start,
		EndTime:      time.Now(),
		TotalCount:   s.stats.books,
		ErrorCount:   s.stats.errors,
		FailedURLs:   s.stats.snapshotFailedURLs(),
		ErrorsByType: s.stats.snapshotErrors(),
		RetryCount:   s.stats.retries,
		RequestCount: s.stats.requests,
		PageCount:    s.stats.pages,
		CacheHits:    s.stats.cacheHits,
	}
	return result, err
}

func (s *Scraper) walk(ctx context.Context, sink Sink) error {
	next := s.cfg.SourceURL
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cfg.MaxPages > 0 && s.stats.pages >= s.cfg.MaxPages {
			s.log.Info("page limit reached", slog.Int("pages", s.stats.pages))
			return nil
		}

		doc, err := s.pages.Fetch(ctx, next)
		if err != nil {
			return err
		}
		if doc == nil {
			s.log.Info("listing page unavailable, stopping", slog.String("url", next))
			return nil
		}

		s.stats.pages++
		s.Metrics.IncPages()
		links := parser.DetailLinks(doc, s.base)
		s.log.Info("listing page",
			slog.Int("page", s.stats.pages),
			slog.String("url", next),
			slog.Int("items", len(links)),
		)
		if len(links) > 0 {
			if err := s.extractDetails(ctx, links, sink); err != nil {
				return err
			}
		}

		nextURL, ok := parser.NextPage(doc, s.base)
		if !ok {
			s.log.Info("no next page, crawl complete", slog.Int("pages", s.stats.pages))
			return nil
		}
		next = nextURL
	}
}

func (s *Scraper) extractDetails(ctx context.Context, links []string, sink Sink) error {
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}

		book, err := s.detail(ctx, link)
		if err != nil {
			return err
		}
		if book == nil {
			continue
		}

		s.log.Info("book extracted", slog.String("title", book.Title), slog.String("url", book.URL))
		s.stats.books++
		s.Metrics.IncItems()
		if err := sink.Process(book); err != nil {
			return fmt.Errorf("persist %s: %w", link, err)
		}
	}
	return nil
}

// detail returns the book behind link, from the cache when this run already
// extracted it.
func (s *Scraper) detail(ctx context.Context, link string) (*models.Book, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(link); ok {
			s.stats.cacheHits++
			s.Metrics.IncCacheHits()
			return &cached, nil
		}
	}

	doc, err := s.pages.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	book := s.extractor.ExtractBook(doc, link)
	if s.cache != nil {
		s.cache.Add(link, *book)
	}
	return book, nil
}

// runStats are the counters of one run. The scraper is sequential, so they
// need no locking.
type runStats struct {
	requests  int
	pages     int
	books     int
	retries   int
	cacheHits int
	errors    int

	failedURLs   []string
	errorsByType map[string]int
}

func newRunStats() *runStats {
	return &runStats{errorsByType: make(map[string]int)}
}

func (rs *runStats) addFailure(rawURL, label string) {
	rs.errors++
	rs.errorsByType[label]++
	rs.failedURLs = append(rs.failedURLs, rawURL)
}

func (rs *runStats) snapshotFailedURLs() []string {
	out := make([]string, len(rs.failedURLs))
	copy(out, rs.failedURLs)
	return out
}

func (rs *runStats) snapshotErrors() map[string]int {
	out := make(map[string]int, len(rs.errorsByType))
	for k, v := range rs.errorsByType {
		out[k] = v
	}
	return out
}
