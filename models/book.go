// Package models defines data structures for the scraper.
package models

import "time"

// CSVHeader is the column order of the result file.
var CSVHeader = []string{"title", "url", "category", "rank", "author", "original_price", "price", "savings_percentage"}

// Book is one bestseller record extracted from a detail page. Every field is
// best-effort: a missing element yields an empty string. Two books are the
// same row only when all fields are equal, so Book is usable as a map key.
type Book struct {
	Title             string `csv:"title" json:"title"`
	URL               string `csv:"url" json:"url"`
	Category          string `csv:"category" json:"category"`
	Rank              string `csv:"rank" json:"rank"`
	Author            string `csv:"author" json:"author"`
	OriginalPrice     string `csv:"original_price" json:"original_price"`
	Price             string `csv:"price" json:"price"`
	SavingsPercentage string `csv:"savings_percentage" json:"savings_percentage"`
}

// Record returns the book as a CSV row in CSVHeader order.
func (b *Book) Record() []string {
	return []string{
		b.Title,
		b.URL,
		b.Category,
		b.Rank,
		b.Author,
		b.OriginalPrice,
		b.Price,
		b.SavingsPercentage,
	}
}

// BookFromRecord maps a CSV row onto a Book using the column positions in
// index. Columns missing from index or from the row become empty strings.
func BookFromRecord(index map[string]int, row []string) *Book {
	get := func(column string) string {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	return &Book{
		Title:             get("title"),
		URL:               get("url"),
		Category:          get("category"),
		Rank:              get("rank"),
		Author:            get("author"),
		OriginalPrice:     get("original_price"),
		Price:             get("price"),
		SavingsPercentage: get("savings_percentage"),
	}
}

// ScraperResult holds the overall result of a scraping run.
type ScraperResult struct {
	RunID          string
	StartTime      time.Time
	EndTime        time.Time
	TotalCount     int
	ErrorCount     int
	FailedURLs     []string
	ErrorsByType   map[string]int
	RetryCount     int
	RequestCount   int
	PageCount      int
	CacheHits      int
	PersistedCount int
}
