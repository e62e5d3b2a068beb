// Package pipeline owns the result set of a run: it validates extracted
// books, merges them with the rows of earlier runs, and persists the
// deduplicated snapshot after every record.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-bestsellers/models"
	"github.com/aluiziolira/go-scrape-bestsellers/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter persists a full snapshot of the result set. Each Write
// replaces whatever the previous Write stored.
type OutputWriter interface {
	Write(books []*models.Book) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, merging with prior rows, de-duplication,
// and output writing.
type Pipeline struct {
	writer   OutputWriter
	existing []*models.Book
	books    []*models.Book

	metrics metrics
	log     *slog.Logger

	mu     sync.Mutex // guards books/closed/err
	closed bool
	err    error

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline that merges new books after existing, the
// rows loaded from a previous run.
func NewPipeline(writer OutputWriter, existing []*models.Book) *Pipeline {
	return &Pipeline{
		writer:   writer,
		existing: existing,
		metrics:  newMetrics(len(existing)),
		log:      slog.Default(),
		shutdown: make(chan struct{}),
	}
}

// WithLogger routes the pipeline's log lines through log, typically the
// logger of the run it persists.
func (p *Pipeline) WithLogger(log *slog.Logger) *Pipeline {
	if log != nil {
		p.log = log
	}
	return p
}

// Process appends books to the result set and rewrites the output once per
// accepted book. Invalid books are counted and skipped.
func (p *Pipeline) Process(books ...*models.Book) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	for _, book := range books {
		if book == nil {
			continue
		}
		if err := parser.ValidateBook(book); err != nil {
			p.log.Warn("dropping invalid record", slog.String("url", book.URL), slog.Any("error", err))
			p.metrics.addValidation("invalid_url")
			continue
		}

		p.books = append(p.books, book)
		p.metrics.incrementProcessed()

		merged := p.mergedLocked()
		if err := p.writer.Write(merged); err != nil {
			p.err = fmt.Errorf("write snapshot: %w", err)
			p.closed = true
			p.signalShutdown()
			return p.err
		}
		p.metrics.setPersisted(len(merged))
	}
	return nil
}

// Snapshot returns the merged, de-duplicated result set as it was last persisted.
func (p *Pipeline) Snapshot() []*models.Book {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mergedLocked()
}

// Close prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	err := p.err
	p.mu.Unlock()

	p.signalShutdown()
	return err
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				p.log.Info("pipeline progress",
					slog.Int64("processed", metrics["processed_books"].(int64)),
					slog.Int("persisted_rows", metrics["persisted_rows"].(int)),
					slog.Int("validation_errors", len(metrics["validation_errors"].(map[string]int))),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) mergedLocked() []*models.Book {
	all := make([]*models.Book, 0, len(p.existing)+len(p.books))
	all = append(all, p.existing...)
	all = append(all, p.books...)
	return Dedupe(all)
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Dedupe keeps the first occurrence of every distinct row. Rows are equal
// only when every field matches, so a book whose price changed between runs
// is kept twice.
func Dedupe(books []*models.Book) []*models.Book {
	seen := make(map[models.Book]struct{}, len(books))
	out := make([]*models.Book, 0, len(books))
	for _, book := range books {
		if book == nil {
			continue
		}
		if _, ok := seen[*book]; ok {
			continue
		}
		seen[*book] = struct{}{}
		out = append(out, book)
	}
	return out
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	loaded     int
	persisted  int
	validation map[string]int
}

func newMetrics(loaded int) metrics {
	return metrics{
		loaded:     loaded,
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) setPersisted(rows int) {
	m.mu.Lock()
	m.persisted = rows
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_books":   m.processed,
		"loaded_rows":       m.loaded,
		"persisted_rows":    m.persisted,
		"validation_errors": copyValidation,
	}
}
