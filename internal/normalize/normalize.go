package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"aliexpress/scraper/internal/domain"
)

// ErrSchema marks a raw payload missing or mangling a required field. The
// caller drops the single record; the run is unaffected.
var ErrSchema = errors.New("schema violation")

// Normalizer maps raw scraped payloads into the canonical schema. It is pure
// given a fixed Now, and idempotent: normalizing an already-canonical record
// yields the same record.
type Normalizer struct {
	Now func() string
}

func New() *Normalizer {
	return &Normalizer{Now: domain.ISONow}
}

// Product validates and coerces a raw product payload.
func (n *Normalizer) Product(raw *domain.RawProduct) (*domain.Product, error) {
	title := strings.TrimSpace(raw.Title)
	url := strings.TrimSpace(raw.URL)
	if title == "" {
		return nil, fmt.Errorf("%w: product missing title", ErrSchema)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: product missing url", ErrSchema)
	}

	p := &domain.Product{
		ProductTitle:      title,
		ProductURL:        url,
		ProductID:         strings.TrimSpace(raw.ID),
		Price:             strings.TrimSpace(raw.Price),
		Currency:          strings.TrimSpace(raw.Currency),
		OriginalPrice:     strings.TrimSpace(raw.OriginalPrice),
		Rating:            Rating(raw.Rating),
		NumRatings:        Count(raw.NumRatings),
		NumOrders:         Count(raw.NumOrders),
		AvailableSkus:     raw.Skus,
		StockAvailability: strings.TrimSpace(raw.StockAvailability),
		ImageURLs:         raw.ImageURLs,
		ShippingOptions:   raw.ShippingOptions,
		EstimatedDelivery: strings.TrimSpace(raw.EstimatedDelivery),
		ReturnPolicy:      strings.TrimSpace(raw.ReturnPolicy),
		LastScraped:       n.Now(),
	}

	p.DiscountPercent = Discount(raw.DiscountPercent, p.Price, p.OriginalPrice)

	if p.AvailableSkus == nil {
		p.AvailableSkus = []domain.Sku{}
	}
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
	if p.ShippingOptions == nil {
		p.ShippingOptions = []domain.ShippingOption{}
	}

	return p, nil
}

// Seller validates and coerces a raw seller payload. Products are attached
// later by the aggregator.
func (n *Normalizer) Seller(raw *domain.RawSeller) (*domain.Seller, error) {
	name := strings.TrimSpace(raw.Name)
	url := strings.TrimSpace(raw.URL)
	if name == "" {
		return nil, fmt.Errorf("%w: seller missing name", ErrSchema)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: seller missing url", ErrSchema)
	}

	badges := raw.Badges
	if badges == nil {
		badges = []string{}
	}

	return &domain.Seller{
		SellerName:    name,
		SellerURL:     url,
		SellerRating:  Rating(raw.Rating),
		NumFollowers:  Count(raw.Followers),
		StoreLocation: strings.TrimSpace(raw.Location),
		SellerBadges:  badges,
		Products:      []domain.Product{},
	}, nil
}

var (
	countRegex   = regexp.MustCompile(`([0-9][0-9.,]*)\s*([kKmM]?)`)
	percentRegex = regexp.MustCompile(`\d+`)
)

// Count expands suffix notation into a non-negative integer: "12.3K" →
// 12300, "1.2M" → 1200000, "5,233 followers" → 5233. Unparseable text → 0.
func Count(text string) int {
	m := countRegex.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	num := strings.ReplaceAll(m[1], ",", "")
	f, err := strconv.ParseFloat(strings.TrimSuffix(num, "."), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		f *= 1_000
	case "M":
		f *= 1_000_000
	}
	return int(math.Round(f))
}

// Rating coerces rating text to a non-negative float: "4.8" → 4.8,
// "4,8 stars" → 4.8. Unparseable text → 0.
func Rating(text string) float64 {
	text = strings.ReplaceAll(text, ",", ".")
	var b strings.Builder
	for _, ch := range text {
		if (ch >= '0' && ch <= '9') || ch == '.' {
			b.WriteRune(ch)
		} else if b.Len() > 0 {
			break
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(b.String(), "."), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

// Discount parses an explicit percentage, or computes one from listed vs
// original price when the page showed none.
func Discount(text, price, originalPrice string) int {
	if m := percentRegex.FindString(text); m != "" {
		d, _ := strconv.Atoi(m)
		return d
	}

	p := priceValue(price)
	o := priceValue(originalPrice)
	if p <= 0 || o <= 0 || p >= o {
		return 0
	}
	return int(math.Round((1 - p/o) * 100))
}

func priceValue(text string) float64 {
	text = strings.ReplaceAll(text, ",", "")
	var b strings.Builder
	for _, ch := range text {
		if (ch >= '0' && ch <= '9') || ch == '.' {
			b.WriteRune(ch)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}
