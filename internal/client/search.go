package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"aliexpress/scraper/internal/config"
	"aliexpress/scraper/internal/domain"
	"aliexpress/scraper/internal/proxy"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

const (
	marketplaceBaseURL = "https://www.aliexpress.com"
	searchURLTemplate  = marketplaceBaseURL + "/wholesale?SearchText=%s&SortType=default&page=%d"

	// Polite ceiling on how many search pages one run scans.
	maxSearchPages = 3
)

var initDataRegex = regexp.MustCompile(`(?s)_init_data_\s*=\s*{\s*data:\s*({.+}) }`)

// SearchClient issues the initial query and extracts an ordered, deduplicated
// list of candidate seller endpoints.
type SearchClient interface {
	Discover(ctx context.Context, q domain.Query) ([]domain.SellerLead, error)
}

type searchClient struct {
	cfg        config.ScrapeConfig
	executor   proxy.Client
	render     bool
	extractors []searchExtractor
}

// searchExtractor is one known result-page layout bound to its parser. The
// set is closed: a page matching none of them is a parse failure, never a
// silent misparse.
type searchExtractor struct {
	name string
	fn   func(body string) ([]searchHit, bool)
}

// searchHit is one product card on a result page with its storefront link.
type searchHit struct {
	storeName  string
	storeURL   string
	productURL string
}

func NewSearchClient(cfg config.ScrapeConfig, render bool, executor proxy.Client) SearchClient {
	return &searchClient{
		cfg:      cfg,
		executor: executor,
		render:   render,
		extractors: []searchExtractor{
			{name: "init_data_json", fn: extractSearchInitData},
			{name: "result_card_dom", fn: extractSearchCards},
		},
	}
}

// Discover scans search pages until the scan limit is met, deduplicates
// storefronts by canonical URL, and truncates to max_suppliers while
// preserving the relevance order of the response.
func (c *searchClient) Discover(ctx context.Context, q domain.Query) ([]domain.SellerLead, error) {
	var leads []domain.SellerLead
	index := make(map[string]int)
	processed := 0

	for page := 1; page <= maxSearchPages && processed < c.cfg.Limit; page++ {
		target := fmt.Sprintf(searchURLTemplate, url.QueryEscape(q.Text), page)
		resp, err := c.executor.Execute(ctx, proxy.Request{
			TargetURL: target,
			Country:   q.Country,
			Render:    c.render,
			Cookie:    q.LocaleCookie,
		})
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("search fetch failed: %w", err)
			}
			log.Warnf("⚠️ Search page %d fetch failed, stopping scan: %v", page, err)
			break
		}

		hits, err := c.parse(resp.Body)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Warnf("⚠️ Search page %d unparseable, stopping scan: %v", page, err)
			break
		}

		for _, hit := range hits {
			if processed >= c.cfg.Limit {
				break
			}
			processed++
			key := canonicalStoreURL(hit.storeURL)
			if i, ok := index[key]; ok {
				leads[i].ProductURLs = appendUnique(leads[i].ProductURLs, hit.productURL)
				continue
			}
			index[key] = len(leads)
			leads = append(leads, domain.SellerLead{
				Name:        hit.storeName,
				URL:         key,
				ProductURLs: []string{hit.productURL},
			})
		}
	}

	if len(leads) > c.cfg.MaxSuppliers {
		leads = leads[:c.cfg.MaxSuppliers]
	}
	log.Infof("🔎 Discovery for %q found %d candidate sellers (%d previews scanned)", q.Text, len(leads), processed)
	return leads, nil
}

func (c *searchClient) parse(body string) ([]searchHit, error) {
	for _, ex := range c.extractors {
		if hits, ok := ex.fn(body); ok {
			log.Debugf("Search page matched %s layout with %d hits", ex.name, len(hits))
			return hits, nil
		}
	}
	return nil, fmt.Errorf("search response: %w", ErrParse)
}

// extractSearchInitData pulls product previews out of the hidden JSON island
// embedded in the result page script.
func extractSearchInitData(body string) ([]searchHit, bool) {
	m := initDataRegex.FindStringSubmatch(body)
	if len(m) < 2 {
		return nil, false
	}

	var payload struct {
		Data struct {
			Root struct {
				Fields struct {
					Mods struct {
						ItemList struct {
							Content []struct {
								ProductID json.Number `json:"productId"`
								Store     struct {
									StoreName string `json:"storeName"`
									StoreURL  string `json:"storeUrl"`
								} `json:"store"`
							} `json:"content"`
						} `json:"itemList"`
					} `json:"mods"`
				} `json:"fields"`
			} `json:"root"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		return nil, false
	}

	var hits []searchHit
	for _, item := range payload.Data.Root.Fields.Mods.ItemList.Content {
		pid := item.ProductID.String()
		if pid == "" || item.Store.StoreURL == "" {
			continue
		}
		hits = append(hits, searchHit{
			storeName:  item.Store.StoreName,
			storeURL:   absoluteURL(item.Store.StoreURL, marketplaceBaseURL),
			productURL: fmt.Sprintf("%s/item/%s.html", marketplaceBaseURL, pid),
		})
	}
	if len(hits) == 0 {
		return nil, false
	}
	return hits, true
}

// extractSearchCards walks rendered result cards, pairing each item link with
// the storefront link on the same card.
func extractSearchCards(body string) ([]searchHit, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, false
	}

	var hits []searchHit
	doc.Find("[data-widget-cid] article, div[class*='search-item-card']").Each(func(i int, card *goquery.Selection) {
		productHref, _ := card.Find("a[href*='/item/']").First().Attr("href")
		storeLink := card.Find("a[href*='/store/']").First()
		storeHref, _ := storeLink.Attr("href")
		if productHref == "" || storeHref == "" {
			return
		}
		hits = append(hits, searchHit{
			storeName:  strings.TrimSpace(storeLink.Text()),
			storeURL:   absoluteURL(storeHref, marketplaceBaseURL),
			productURL: absoluteURL(productHref, marketplaceBaseURL),
		})
	})
	if len(hits) == 0 {
		return nil, false
	}
	return hits, true
}

func appendUnique(urls []string, candidate string) []string {
	for _, u := range urls {
		if u == candidate {
			return urls
		}
	}
	return append(urls, candidate)
}
