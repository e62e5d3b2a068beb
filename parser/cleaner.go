package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Private-use runes stand in for the angle brackets of <sup>/<sub> tags while
// the rest of the markup is stripped.
const (
	markOpen  = "\uE000"
	markClose = "\uE001"
)

var (
	supSubTag    = regexp.MustCompile(`(?i)<(/?)(sup|sub)>`)
	whitespace   = regexp.MustCompile(`[\s\p{Z}]+`)
	markStripper = strings.NewReplacer(markOpen, "", markClose, "")
	markDecoder  = strings.NewReplacer(markOpen, "<", markClose, ">")
)

// Clean flattens the first node of sel into display text. Whitespace runs,
// non-breaking spaces included, collapse to one space and <sup>/<sub> tags
// survive; every other tag is dropped. A nil or empty selection yields "".
func Clean(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	fragment, err := goquery.OuterHtml(sel.First())
	if err != nil {
		return ""
	}
	return CleanHTML(fragment)
}

// CleanHTML is Clean for a raw HTML fragment.
func CleanHTML(fragment string) string {
	if fragment == "" {
		return ""
	}

	encoded := supSubTag.ReplaceAllString(markStripper.Replace(fragment), markOpen+"$1$2"+markClose)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(encoded))
	if err != nil {
		return ""
	}

	text := markDecoder.Replace(doc.Text())
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
