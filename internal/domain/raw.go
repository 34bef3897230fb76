package domain

// RawProduct is the heterogeneous payload a product extractor pulls off a
// page before normalization. Numeric fields stay as the text the page showed
// ("4.8", "12.3K sold"); the normalizer coerces and validates them.
type RawProduct struct {
	Title             string
	URL               string
	ID                string
	Price             string
	Currency          string
	OriginalPrice     string
	DiscountPercent   string
	Rating            string
	NumRatings        string
	NumOrders         string
	Skus              []Sku
	StockAvailability string
	ImageURLs         []string
	ShippingOptions   []ShippingOption
	EstimatedDelivery string
	ReturnPolicy      string
}

// RawSeller is the pre-normalization counterpart of Seller.
type RawSeller struct {
	Name      string
	URL       string
	Rating    string
	Followers string
	Location  string
	Badges    []string
}
