// Package parser extracts bestseller records from listing and detail pages.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-bestsellers/models"
)

// ValidateBook ensures the record can be persisted: it must carry an
// absolute URL, which is also its natural key. Every other field is
// best-effort and may be empty.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("book missing url")
	}
	parsed, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("book url %q: %w", b.URL, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("book url %q is not absolute", b.URL)
	}
	return nil
}

// NormalizeCategory removes the "in " lead-in of the category link text.
func NormalizeCategory(text string) string {
	text = strings.TrimPrefix(text, "in ")
	text = strings.TrimSuffix(text, "in ")
	return strings.TrimSpace(text)
}

// NormalizeRank drops the badge wording, leaving e.g. "#1 in Books".
func NormalizeRank(text string) string {
	text = strings.ReplaceAll(text, " Best Seller", "")
	text = strings.ReplaceAll(text, " Most Gifted", "")
	return strings.TrimSpace(text)
}

// NormalizeAuthor removes the contributor role suffix.
func NormalizeAuthor(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, " (Author)", ""))
}

// NormalizePrice removes the currency symbol and surrounding whitespace.
func NormalizePrice(price, symbol string) string {
	price = strings.TrimSpace(price)
	if symbol != "" {
		price = strings.TrimSpace(strings.TrimPrefix(price, symbol))
		price = strings.TrimSpace(strings.TrimSuffix(price, symbol))
	}
	return price
}

// NormalizeSavings strips the parentheses around a savings figure such as "(-41%)".
func NormalizeSavings(text string) string {
	text = strings.Trim(text, "(")
	text = strings.Trim(text, ")")
	return strings.TrimSpace(text)
}
