package domain

// Sku is one purchasable variant expressed as attribute name/value pairs,
// e.g. {"color": "black", "storage": "128GB"}.
type Sku map[string]string

// ShippingOption describes one delivery choice offered on a product page.
type ShippingOption struct {
	Destination   string `json:"destination"`
	Cost          string `json:"cost"`
	EstimatedDays string `json:"estimated_days"`
}

// Product is the canonical, schema-validated product record. Field names and
// nesting are the contract consumed by downstream writers and must not change.
// Every key is always emitted, with its zero value when absent.
type Product struct {
	ProductTitle      string           `json:"product_title"`
	ProductURL        string           `json:"product_url"`
	ProductID         string           `json:"product_id"`
	Price             string           `json:"price"`
	Currency          string           `json:"currency"`
	OriginalPrice     string           `json:"original_price"`
	DiscountPercent   int              `json:"discount_percent"`
	Rating            float64          `json:"rating"`
	NumRatings        int              `json:"num_ratings"`
	NumOrders         int              `json:"num_orders"`
	AvailableSkus     []Sku            `json:"available_skus"`
	StockAvailability string           `json:"stock_availability"`
	ImageURLs         []string         `json:"image_urls"`
	ShippingOptions   []ShippingOption `json:"shipping_options"`
	EstimatedDelivery string           `json:"estimated_delivery"`
	ReturnPolicy      string           `json:"return_policy"`
	LastScraped       string           `json:"last_scraped"`
}
