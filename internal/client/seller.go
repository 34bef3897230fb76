package client

import (
	"context"
	"fmt"
	"strings"

	"aliexpress/scraper/internal/domain"
	"aliexpress/scraper/internal/proxy"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// SellerClient fetches one storefront page and extracts seller metadata plus
// its ordered product endpoint list. A parse failure drops the seller only,
// never the run.
type SellerClient interface {
	Fetch(ctx context.Context, lead domain.SellerLead) (*domain.RawSeller, []string, error)
}

type sellerClient struct {
	executor proxy.Client
	country  string
	cookie   string
	render   bool
}

func NewSellerClient(executor proxy.Client, country, cookie string, render bool) SellerClient {
	return &sellerClient{
		executor: executor,
		country:  country,
		cookie:   cookie,
		render:   render,
	}
}

func (c *sellerClient) Fetch(ctx context.Context, lead domain.SellerLead) (*domain.RawSeller, []string, error) {
	resp, err := c.executor.Execute(ctx, proxy.Request{
		TargetURL: lead.URL,
		Country:   c.country,
		Render:    c.render,
		Cookie:    c.cookie,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("seller fetch %s: %w", lead.URL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("seller page %s: %w", lead.URL, ErrParse)
	}

	raw, ok := extractStoreHeader(doc)
	if !ok {
		return nil, nil, fmt.Errorf("seller page %s: %w", lead.URL, ErrParse)
	}
	if raw.Name == "" {
		raw.Name = lead.Name
	}
	raw.URL = lead.URL

	// Search-page previews come first; store-page listings follow, dedup'd.
	endpoints := append([]string(nil), lead.ProductURLs...)
	doc.Find("a[href*='/item/']").Each(func(i int, link *goquery.Selection) {
		href, exists := link.Attr("href")
		if !exists {
			return
		}
		endpoints = appendUnique(endpoints, absoluteURL(href, marketplaceBaseURL))
	})

	log.Debugf("Parsed seller %s with %d product endpoints", lead.URL, len(endpoints))
	return raw, endpoints, nil
}

// extractStoreHeader reads storefront metadata from the two header layouts
// seen in the wild. A page showing neither layout marker is unparseable.
func extractStoreHeader(doc *goquery.Document) (*domain.RawSeller, bool) {
	matched := doc.Find(".store-info, [data-role='store-header'], .store-header, #store-info").Length() > 0
	if !matched {
		return nil, false
	}

	raw := &domain.RawSeller{
		Name:      firstText(doc, ".store-name", "[data-role='store-name']", ".store-header h1"),
		Rating:    firstText(doc, ".store-rating-score", "span.score", "[data-role='store-rating']"),
		Followers: firstText(doc, ".store-followers", "span.follow-num", "[data-role='store-followers']"),
		Location:  firstText(doc, ".store-location", "span.store-loc", "[data-role='store-location']"),
	}

	doc.Find(".store-badges .badge, .store-badges img[alt]").Each(func(i int, s *goquery.Selection) {
		badge := strings.TrimSpace(s.Text())
		if badge == "" {
			badge, _ = s.Attr("alt")
			badge = strings.TrimSpace(badge)
		}
		if badge != "" {
			raw.Badges = append(raw.Badges, badge)
		}
	})

	return raw, true
}
