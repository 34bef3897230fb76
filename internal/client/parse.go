package client

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrParse marks a response whose shape matched none of the known page
// layouts. Discovery treats it as fatal; seller and product fetchers drop
// the single branch and move on.
var ErrParse = errors.New("page layout did not match any known extractor")

var productIDRegex = regexp.MustCompile(`(?:/item/|item/)(\d{6,})`)

// ParseProductID extracts the numeric product ID from the common item URL
// formats, or "" when the URL carries none.
func ParseProductID(url string) string {
	m := productIDRegex.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// firstText returns the first non-empty trimmed text among the selectors.
// Selectors carrying a content attribute (meta tags) read that instead.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if content, ok := node.Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

// absoluteURL resolves scheme-relative and path-relative hrefs against the
// marketplace origin.
func absoluteURL(href, base string) string {
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	default:
		return strings.TrimSuffix(base, "/") + href
	}
}

// canonicalStoreURL strips query noise so one storefront dedupes to one key.
func canonicalStoreURL(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	return strings.TrimSuffix(href, "/")
}
