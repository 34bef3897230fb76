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

// ProductClient fetches one product page and extracts its raw fields for
// normalization.
type ProductClient interface {
	Fetch(ctx context.Context, productURL string) (*domain.RawProduct, error)
}

type productClient struct {
	executor   proxy.Client
	country    string
	cookie     string
	render     bool
	extractors []productExtractor
}

type productExtractor struct {
	name string
	fn   func(doc *goquery.Document, productURL string) (*domain.RawProduct, bool)
}

func NewProductClient(executor proxy.Client, country, cookie string, render bool) ProductClient {
	return &productClient{
		executor: executor,
		country:  country,
		cookie:   cookie,
		render:   render,
		extractors: []productExtractor{
			{name: "structured_meta", fn: extractProductMeta},
			{name: "legacy_dom", fn: extractProductLegacy},
		},
	}
}

func (c *productClient) Fetch(ctx context.Context, productURL string) (*domain.RawProduct, error) {
	resp, err := c.executor.Execute(ctx, proxy.Request{
		TargetURL: productURL,
		Country:   c.country,
		Render:    c.render,
		Cookie:    c.cookie,
	})
	if err != nil {
		return nil, fmt.Errorf("product fetch %s: %w", productURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("product page %s: %w", productURL, ErrParse)
	}

	for _, ex := range c.extractors {
		if raw, ok := ex.fn(doc, productURL); ok {
			log.Debugf("Product page %s matched %s layout", productURL, ex.name)
			return raw, nil
		}
	}
	return nil, fmt.Errorf("product page %s: %w", productURL, ErrParse)
}

// extractProductMeta reads the modern layout: data-pl heading plus itemprop
// meta tags.
func extractProductMeta(doc *goquery.Document, productURL string) (*domain.RawProduct, bool) {
	title := firstText(doc, "h1[data-pl]")
	price := firstText(doc, "meta[itemprop='price']", "span[class*='currentPrice']")
	if title == "" || price == "" {
		return nil, false
	}

	raw := sharedProductFields(doc, productURL)
	raw.Title = title
	raw.Price = price
	raw.Currency = firstText(doc, "meta[itemprop='priceCurrency']")
	raw.OriginalPrice = firstText(doc, "span[class*='originalPrice']", "del")
	raw.Rating = firstText(doc, "div[class*='rating--wrap'] div", "meta[itemprop='ratingValue']")
	raw.NumRatings = firstText(doc, "a[class*='reviewer--reviews']", "meta[itemprop='reviewCount']")
	raw.NumOrders = firstText(doc, "span[class*='reviewer--sold']")
	return raw, true
}

// extractProductLegacy reads the classic server-rendered layout.
func extractProductLegacy(doc *goquery.Document, productURL string) (*domain.RawProduct, bool) {
	title := firstText(doc, "h1.product-title-text", "h1")
	if title == "" {
		return nil, false
	}

	raw := sharedProductFields(doc, productURL)
	raw.Title = title
	raw.Price = firstText(doc, ".product-price-value", "span#j-sku-price", "span#j-sku-price2")
	raw.Currency = firstText(doc, "meta[itemprop='priceCurrency']")
	raw.OriginalPrice = firstText(doc, ".product-price-original", "del")
	raw.Rating = firstText(doc, "span.overview-rating-average", "span.product-reviewer-satisfaction")
	raw.NumRatings = firstText(doc, "span#j-cnt-review", "span.product-reviewer-reviews")
	raw.NumOrders = firstText(doc, "span#j-order-num", "span.product-reviewer-sold")
	return raw, true
}

// sharedProductFields collects everything both layouts express the same way.
func sharedProductFields(doc *goquery.Document, productURL string) *domain.RawProduct {
	raw := &domain.RawProduct{
		URL:               productURL,
		ID:                ParseProductID(productURL),
		DiscountPercent:   firstText(doc, "span[class*='discount']"),
		StockAvailability: firstText(doc, "div[class*='quantity--info']", ".product-quantity-tip", "[data-role='stock']"),
		EstimatedDelivery: firstText(doc, "div[class*='dynamic-shipping-line'] strong", "[data-role='delivery-estimate']"),
		ReturnPolicy:      firstText(doc, "div[class*='return-policy']", "[data-role='return-policy']"),
	}

	doc.Find("img[src^='http'], img[data-src^='http']").Each(func(i int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-src")
		}
		if src != "" && len(raw.ImageURLs) < 20 {
			raw.ImageURLs = appendUnique(raw.ImageURLs, src)
		}
	})

	doc.Find("div[class*='sku-item--property']").Each(func(i int, prop *goquery.Selection) {
		name := strings.TrimSuffix(strings.TrimSpace(prop.Find("div[class*='sku-item--title']").First().Text()), ":")
		if name == "" {
			return
		}
		prop.Find("div[class*='sku-item--box'] span, li [title]").Each(func(j int, val *goquery.Selection) {
			value := strings.TrimSpace(val.Text())
			if value == "" {
				value, _ = val.Attr("title")
			}
			if value != "" {
				raw.Skus = append(raw.Skus, domain.Sku{strings.ToLower(name): value})
			}
		})
	})

	doc.Find("div[class*='shipping--item']").Each(func(i int, opt *goquery.Selection) {
		raw.ShippingOptions = append(raw.ShippingOptions, domain.ShippingOption{
			Destination:   strings.TrimSpace(opt.Find("[class*='shipping--to']").Text()),
			Cost:          strings.TrimSpace(opt.Find("[class*='shipping--cost']").Text()),
			EstimatedDays: strings.TrimSpace(opt.Find("[class*='shipping--days']").Text()),
		})
	})

	return raw
}
