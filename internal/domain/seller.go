package domain

// Seller is the canonical storefront record. Products are attached by the
// aggregator in fetch order.
type Seller struct {
	SellerName    string    `json:"seller_name"`
	SellerURL     string    `json:"seller_url"`
	SellerRating  float64   `json:"seller_rating"`
	NumFollowers  int       `json:"num_followers"`
	StoreLocation string    `json:"store_location"`
	SellerBadges  []string  `json:"seller_badges"`
	Products      []Product `json:"products"`
}

// SellerLead is a discovered storefront candidate: its endpoint, the display
// name seen on the search page, and the product URLs the search page already
// listed for it. Relevance order among leads is preserved end to end.
type SellerLead struct {
	Name        string
	URL         string
	ProductURLs []string
}
