package domain

import (
	"regexp"
	"strings"
	"time"
)

// Query is the immutable input of a single scrape run.
type Query struct {
	Text         string
	Country      string
	LocaleCookie string
}

// ScrapeResult is the sole externally visible artifact of a run. Suppliers
// appear in discovery order regardless of fetch completion order.
type ScrapeResult struct {
	Query      string   `json:"query"`
	ScrapeTime string   `json:"scrape_time"`
	Suppliers  []Seller `json:"suppliers"`
}

// TotalProducts counts products across all suppliers.
func (r *ScrapeResult) TotalProducts() int {
	total := 0
	for _, s := range r.Suppliers {
		total += len(s.Products)
	}
	return total
}

// ISONow formats the current local time the way the output contract expects.
func ISONow() string {
	return time.Now().Format(time.RFC3339)
}

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a query string into a stable key for state and storage.
func Slugify(text string) string {
	s := slugRegex.ReplaceAllString(strings.ToLower(text), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "query"
	}
	return s
}
