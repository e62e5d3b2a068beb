package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-bestsellers/models"
)

// Detail page selectors.
const (
	TitleSelector         = "span#productTitle"
	CategorySelector      = "span.cat-link"
	RankSelector          = "i.a-icon.a-icon-addon.p13n-best-seller-badge"
	AuthorSelector        = "span.author.notFaded"
	OriginalPriceSelector = "span#listPrice"
	PriceSelector         = "span#price"
	SavingsSelector       = "span#savingsPercentage"
)

// Extractor turns detail documents into books.
type Extractor struct {
	currency string
}

// NewExtractor returns an Extractor stripping currency from price fields.
func NewExtractor(currency string) *Extractor {
	return &Extractor{currency: currency}
}

// ExtractBook reads every field of a detail page independently; a field whose
// element is missing is left empty and never prevents the others.
func (e *Extractor) ExtractBook(doc *goquery.Document, pageURL string) *models.Book {
	price := func(text string) string { return NormalizePrice(text, e.currency) }

	return &models.Book{
		Title:             orEmpty(extract(doc, TitleSelector, nil)),
		URL:               pageURL,
		Category:          orEmpty(extract(doc, CategorySelector, NormalizeCategory)),
		Rank:              orEmpty(extract(doc, RankSelector, NormalizeRank)),
		Author:            orEmpty(extract(doc, AuthorSelector, NormalizeAuthor)),
		OriginalPrice:     orEmpty(extract(doc, OriginalPriceSelector, price)),
		Price:             orEmpty(extract(doc, PriceSelector, price)),
		SavingsPercentage: orEmpty(extract(doc, SavingsSelector, NormalizeSavings)),
	}
}

// extract cleans the first element matching selector and applies normalize.
// ok is false when the document has no such element.
func extract(doc *goquery.Document, selector string, normalize func(string) string) (string, bool) {
	if doc == nil {
		return "", false
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", false
	}
	text := Clean(sel)
	if normalize != nil {
		text = normalize(text)
	}
	return text, true
}

func orEmpty(value string, ok bool) string {
	if !ok {
		return ""
	}
	return value
}
