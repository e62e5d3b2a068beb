package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-bestsellers/config"
	"github.com/aluiziolira/go-scrape-bestsellers/models"
	"github.com/aluiziolira/go-scrape-bestsellers/pipeline"
)

const (
	sourceURL = "http://example.test/bestsellers/books/"
	page2URL  = "http://example.test/bestsellers/books/page-2"
)

func buildListingPage(next string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div id=\"gridItemRoot\">")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<div class="a-column a-span12 a-text-center _cDEzb_grid-column_2hIsc"><div class="zg-grid-general-faceout"><a class="a-link-normal" tabindex="-1" href="%s"><img alt="cover"></a></div></div>`, href)
	}
	b.WriteString("</div><ul class=\"a-pagination\">")
	if next != "" {
		fmt.Fprintf(&b, `<li class="a-last"><a href="%s">Next page</a></li>`, next)
	} else {
		b.WriteString(`<li class="a-disabled a-last">Next page</li>`)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func buildDetailPage(title string) string {
	return fmt.Sprintf(`<html><body><span id="productTitle">%s</span></body></html>`, title)
}

const fullDetailPage = `<html><body>
<span id="productTitle">  The Psychology of Money  </span>
<span class="cat-link">in Personal Finance</span>
<i class="a-icon a-icon-addon p13n-best-seller-badge">#1 Best Seller</i>
<span class="author notFaded"><a href="/e/B07">Morgan Housel</a> (Author)</span>
<span id="listPrice">₹399.00</span>
<span id="price">₹236.00</span>
<span id="savingsPercentage">(-41%)</span>
</body></html>`

func newTestScraper(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport, status StatusRecorder) *Scraper {
	t.Helper()
	s, err := NewScraper(cfg, status)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)
	s.log = discardLogger()
	s.pages.(*Retrier).log = s.log
	s.pages.(*Retrier).next.(*Fetcher).log = s.log
	return s
}

type collectingSink struct {
	books []*models.Book
}

func (cs *collectingSink) Process(books ...*models.Book) error {
	cs.books = append(cs.books, books...)
	return nil
}

func TestScraperRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	outputFile := filepath.Join(dir, "books.csv")
	statusFile := filepath.Join(dir, "url_log.txt")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", sourceURL, htmlResponder(buildListingPage("/bestsellers/books/page-2", "/dp/1", "/dp/2")))
	transport.RegisterResponder("GET", page2URL, htmlResponder(buildListingPage("", "/dp/3", "/dp/1", "/dp/4")))
	transport.RegisterResponder("GET", "http://example.test/dp/1", htmlResponder(fullDetailPage))
	transport.RegisterResponder("GET", "http://example.test/dp/2", httpmock.NewStringResponder(http.StatusNotFound, ""))
	transport.RegisterResponder("GET", "http://example.test/dp/3", htmlResponder(buildDetailPage("Ikigai")))
	transport.RegisterResponder("GET", "http://example.test/dp/4", sequenceResponder(buildDetailPage("Atomic Habits"), http.StatusServiceUnavailable, http.StatusOK))

	writer, err := pipeline.NewCSVWriter(outputFile)
	if err != nil {
		t.Fatalf("csv writer: %v", err)
	}
	p := pipeline.NewPipeline(writer, nil)
	s := newTestScraper(t, testConfig(), transport, pipeline.NewStatusLog(statusFile))

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if result.RunID == "" || result.RunID != s.RunID {
		t.Fatalf("run id=%q, want %q", result.RunID, s.RunID)
	}
	if result.TotalCount != 4 {
		t.Fatalf("total=%d, want 4", result.TotalCount)
	}
	if result.PageCount != 2 {
		t.Fatalf("pages=%d, want 2", result.PageCount)
	}
	if result.RequestCount != 7 {
		t.Fatalf("requests=%d, want 7", result.RequestCount)
	}
	if result.CacheHits != 1 {
		t.Fatalf("cache hits=%d, want 1", result.CacheHits)
	}
	if result.RetryCount != 1 {
		t.Fatalf("retries=%d, want 1", result.RetryCount)
	}
	if result.ErrorCount != 1 || result.ErrorsByType["not_found"] != 1 {
		t.Fatalf("errors=%d %v, want one not_found", result.ErrorCount, result.ErrorsByType)
	}

	rows, err := pipeline.LoadBooks(outputFile)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
	want := models.Book{
		Title:             "The Psychology of Money",
		URL:               "http://example.test/dp/1",
		Category:          "Personal Finance",
		Rank:              "#1",
		Author:            "Morgan Housel",
		OriginalPrice:     "399.00",
		Price:             "236.00",
		SavingsPercentage: "-41%",
	}
	if *rows[0] != want {
		t.Fatalf("first row=%+v, want %+v", *rows[0], want)
	}
	if rows[1].Title != "Ikigai" || rows[2].Title != "Atomic Habits" {
		t.Fatalf("rows out of listing order: %q, %q", rows[1].Title, rows[2].Title)
	}

	log, err := os.ReadFile(statusFile)
	if err != nil {
		t.Fatalf("read status log: %v", err)
	}
	if got, want := string(log), "url, status_code\nhttp://example.test/dp/2, 404\n"; got != want {
		t.Fatalf("status log=%q, want %q", got, want)
	}
}

func TestScraperRunStopsWhenNetworkDown(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", sourceURL, htmlResponder(buildListingPage("/bestsellers/books/page-2", "/dp/1", "/dp/2", "/dp/3", "/dp/4")))
	transport.RegisterNoResponder(httpmock.NewErrorResponder(connectionRefused()))
	status := &recordingStatus{}
	sink := &collectingSink{}
	s := newTestScraper(t, testConfig(), transport, status)

	result, err := s.Run(context.Background(), sink)
	if !errors.Is(err, ErrNetworkDown) {
		t.Fatalf("err=%v, want ErrNetworkDown", err)
	}
	if result == nil {
		t.Fatalf("expected a result for an aborted run")
	}
	if len(status.entries) != 3 {
		t.Fatalf("status entries=%v, want 3", status.entries)
	}
	for _, entry := range status.entries {
		if entry.status != config.ConnectionErrorMarker {
			t.Fatalf("entry=%+v, want the connection error marker", entry)
		}
	}
	if calls := transport.GetTotalCallCount(); calls != 10 {
		t.Fatalf("calls=%d, want the listing plus 3 attempts for 3 URLs", calls)
	}
	if result.ErrorsByType["connection"] != 3 || len(result.FailedURLs) != 3 {
		t.Fatalf("errors=%v failed=%v", result.ErrorsByType, result.FailedURLs)
	}
	if len(sink.books) != 0 {
		t.Fatalf("books=%d, want none", len(sink.books))
	}
}

func TestScraperRunListingUnavailable(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests} {
		t.Run(fmt.Sprintf("status_%d", code), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", sourceURL, httpmock.NewStringResponder(code, ""))
			status := &recordingStatus{}
			s := newTestScraper(t, testConfig(), transport, status)

			result, err := s.Run(context.Background(), &collectingSink{})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if result.PageCount != 0 || result.TotalCount != 0 {
				t.Fatalf("pages=%d total=%d, want nothing", result.PageCount, result.TotalCount)
			}
			want := statusEntry{url: sourceURL, status: fmt.Sprint(code)}
			if len(status.entries) != 1 || status.entries[0] != want {
				t.Fatalf("status entries=%v, want %v", status.entries, want)
			}
			expected := errorTypeLabel(classifyError(nil, code))
			if result.ErrorsByType[expected] != 1 {
				t.Fatalf("errors=%v, want one %s", result.ErrorsByType, expected)
			}
		})
	}
}

func TestScraperRunHonorsMaxPages(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", sourceURL, htmlResponder(buildListingPage("/bestsellers/books/page-2")))
	cfg := testConfig()
	cfg.MaxPages = 1
	s := newTestScraper(t, cfg, transport, &recordingStatus{})

	result, err := s.Run(context.Background(), &collectingSink{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.PageCount != 1 {
		t.Fatalf("pages=%d, want 1", result.PageCount)
	}
	if calls := transport.GetTotalCallCount(); calls != 1 {
		t.Fatalf("calls=%d, the second page must not be requested", calls)
	}
}

func TestScraperRunWithoutCache(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", sourceURL, htmlResponder(buildListingPage("", "/dp/1", "/dp/1")))
	transport.RegisterResponder("GET", "http://example.test/dp/1", htmlResponder(buildDetailPage("Ikigai")))
	cfg := testConfig()
	cfg.DetailCacheSize = 0
	sink := &collectingSink{}
	s := newTestScraper(t, cfg, transport, &recordingStatus{})

	result, err := s.Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.CacheHits != 0 || transport.GetTotalCallCount() != 3 {
		t.Fatalf("cache hits=%d calls=%d, want every link fetched", result.CacheHits, transport.GetTotalCallCount())
	}
	if len(sink.books) != 2 || *sink.books[0] != *sink.books[1] {
		t.Fatalf("repeated links must yield identical books")
	}
}

func TestScraperRunPersistenceFailure(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", sourceURL, htmlResponder(buildListingPage("", "/dp/1", "/dp/2")))
	transport.RegisterResponder("GET", "http://example.test/dp/1", htmlResponder(buildDetailPage("Ikigai")))
	s := newTestScraper(t, testConfig(), transport, &recordingStatus{})

	boom := errors.New("disk full")
	_, err := s.Run(context.Background(), failingSink{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}
	if calls := transport.GetTotalCallCount(); calls != 2 {
		t.Fatalf("calls=%d, the run must stop at the failed write", calls)
	}
}

func TestScraperRunCanceled(t *testing.T) {
	transport := httpmock.NewMockTransport()
	s := newTestScraper(t, testConfig(), transport, &recordingStatus{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, &collectingSink{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if result.RequestCount != 0 {
		t.Fatalf("requests=%d, want none", result.RequestCount)
	}
}

type failingSink struct {
	err error
}

func (fs failingSink) Process(...*models.Book) error {
	return fs.err
}
