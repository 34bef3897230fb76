package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"aliexpress/scraper/internal/client"
	"aliexpress/scraper/internal/config"
	"aliexpress/scraper/internal/domain"
	"aliexpress/scraper/internal/normalize"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

const frozenTime = "2026-08-30T10:00:00Z"

type stubSearch struct {
	leads []domain.SellerLead
	err   error
}

func (s *stubSearch) Discover(ctx context.Context, q domain.Query) ([]domain.SellerLead, error) {
	return s.leads, s.err
}

type sellerPage struct {
	raw       *domain.RawSeller
	endpoints []string
	err       error
	delay     time.Duration
	onFetch   func()
}

type stubSellers struct {
	pages map[string]sellerPage
}

func (s *stubSellers) Fetch(ctx context.Context, lead domain.SellerLead) (*domain.RawSeller, []string, error) {
	p, ok := s.pages[lead.URL]
	if !ok {
		return nil, nil, fmt.Errorf("seller fetch %s: no fixture", lead.URL)
	}
	if p.onFetch != nil {
		p.onFetch()
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.raw, p.endpoints, nil
}

type productPage struct {
	raw *domain.RawProduct
	err error
}

type stubProducts struct {
	mu    sync.Mutex
	pages map[string]productPage
	calls int
}

func (s *stubProducts) Fetch(ctx context.Context, productURL string) (*domain.RawProduct, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	p, ok := s.pages[productURL]
	if !ok {
		return nil, fmt.Errorf("product fetch %s: no fixture", productURL)
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.raw, nil
}

func lead(n int) domain.SellerLead {
	return domain.SellerLead{
		Name: fmt.Sprintf("Seller %d", n),
		URL:  fmt.Sprintf("https://www.aliexpress.com/store/%d", n),
	}
}

func rawSeller(n int) *domain.RawSeller {
	return &domain.RawSeller{
		Name:   fmt.Sprintf("Seller %d", n),
		URL:    fmt.Sprintf("https://www.aliexpress.com/store/%d", n),
		Rating: "97.6%",
	}
}

func productURL(id string) string {
	return "https://www.aliexpress.com/item/" + id + ".html"
}

func rawProduct(id string) *domain.RawProduct {
	return &domain.RawProduct{
		Title:    "Product " + id,
		URL:      productURL(id),
		ID:       id,
		Price:    "AU $9.99",
		Currency: "AUD",
	}
}

func testConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		MaxSuppliers:         2,
		MaxProductsPerSeller: 1,
		Limit:                10,
		SellerWorkers:        2,
		ProductWorkers:       2,
	}
}

func newTestService(cfg config.ScrapeConfig, search client.SearchClient, sellers client.SellerClient, products client.ProductClient) *Service {
	n := normalize.New()
	n.Now = func() string { return frozenTime }
	svc := NewService(cfg, search, sellers, products, n, nil)
	svc.now = func() string { return frozenTime }
	return svc
}

// fixturePipeline builds count sellers, each serving the given product ids.
func fixturePipeline(count int, productIDs func(n int) []string) (*stubSearch, *stubSellers, *stubProducts) {
	search := &stubSearch{}
	sellers := &stubSellers{pages: make(map[string]sellerPage)}
	products := &stubProducts{pages: make(map[string]productPage)}

	for n := 1; n <= count; n++ {
		l := lead(n)
		search.leads = append(search.leads, l)

		var endpoints []string
		for _, id := range productIDs(n) {
			endpoints = append(endpoints, productURL(id))
			products.pages[productURL(id)] = productPage{raw: rawProduct(id)}
		}
		sellers.pages[l.URL] = sellerPage{raw: rawSeller(n), endpoints: endpoints}
	}
	return search, sellers, products
}

func TestScrapeHappyPathAppliesLimits(t *testing.T) {
	search, sellers, products := fixturePipeline(3, func(n int) []string {
		return []string{fmt.Sprintf("%d01", n), fmt.Sprintf("%d02", n)}
	})

	svc := newTestService(testConfig(), search, sellers, products)
	result, err := svc.Scrape(context.Background(), domain.Query{Text: "wireless earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}

	if result.Query != "wireless earbuds" {
		t.Errorf("query = %q", result.Query)
	}
	if result.ScrapeTime != frozenTime {
		t.Errorf("scrape_time = %q", result.ScrapeTime)
	}
	if len(result.Suppliers) != 2 {
		t.Fatalf("suppliers = %d, want max_suppliers 2", len(result.Suppliers))
	}
	for i, sup := range result.Suppliers {
		if want := fmt.Sprintf("Seller %d", i+1); sup.SellerName != want {
			t.Errorf("suppliers[%d] = %q, want %q (discovery order)", i, sup.SellerName, want)
		}
		if len(sup.Products) != 1 {
			t.Errorf("suppliers[%d] products = %d, want max_products_per_seller 1", i, len(sup.Products))
		}
	}
	if result.Suppliers[0].Products[0].LastScraped != frozenTime {
		t.Errorf("last_scraped = %q", result.Suppliers[0].Products[0].LastScraped)
	}
}

func TestScrapeDropsFailedSellerAndKeepsRest(t *testing.T) {
	search, sellers, products := fixturePipeline(2, func(n int) []string {
		return []string{fmt.Sprintf("%d01", n)}
	})
	sellers.pages[lead(1).URL] = sellerPage{err: fmt.Errorf("seller page %s: %w", lead(1).URL, client.ErrParse)}

	hook := logtest.NewGlobal()
	defer hook.Reset()

	svc := newTestService(testConfig(), search, sellers, products)
	result, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}

	if len(result.Suppliers) != 1 || result.Suppliers[0].SellerName != "Seller 2" {
		t.Fatalf("suppliers = %+v, want the surviving seller only", result.Suppliers)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel && strings.Contains(e.Message, lead(1).URL) {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a warning naming the dropped seller")
	}
}

func TestScrapeDropsUnparseableProductAndKeepsSibling(t *testing.T) {
	search, sellers, products := fixturePipeline(1, func(n int) []string {
		return []string{"101", "102"}
	})
	// First endpoint is missing its title and fails normalization.
	bad := rawProduct("101")
	bad.Title = ""
	products.pages[productURL("101")] = productPage{raw: bad}

	cfg := testConfig()
	cfg.MaxSuppliers = 1
	cfg.MaxProductsPerSeller = 2
	cfg.ProductWorkers = 1
	svc := newTestService(cfg, search, sellers, products)

	result, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(result.Suppliers) != 1 {
		t.Fatalf("suppliers = %+v", result.Suppliers)
	}
	got := result.Suppliers[0].Products
	if len(got) != 1 || got[0].ProductID != "102" {
		t.Fatalf("products = %+v, want the sibling to survive the dropped record", got)
	}
}

func TestScrapeFailedFetchFreesSlotForLaterEndpoint(t *testing.T) {
	search, sellers, products := fixturePipeline(1, func(n int) []string {
		return []string{"101", "102", "103"}
	})
	products.pages[productURL("101")] = productPage{err: fmt.Errorf("product fetch: boom")}

	cfg := testConfig()
	cfg.MaxSuppliers = 1
	cfg.MaxProductsPerSeller = 1
	cfg.Limit = 1
	cfg.ProductWorkers = 1
	svc := newTestService(cfg, search, sellers, products)

	result, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	got := result.Suppliers[0].Products
	if len(got) != 1 || got[0].ProductID != "102" {
		t.Fatalf("products = %+v, want the reclaimed slot spent on the next endpoint", got)
	}
}

func TestScrapeGlobalLimitAcrossSellers(t *testing.T) {
	search, sellers, products := fixturePipeline(3, func(n int) []string {
		return []string{fmt.Sprintf("%d01", n), fmt.Sprintf("%d02", n), fmt.Sprintf("%d03", n)}
	})

	cfg := testConfig()
	cfg.MaxSuppliers = 3
	cfg.MaxProductsPerSeller = 2
	cfg.Limit = 4
	svc := newTestService(cfg, search, sellers, products)

	result, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if got := result.TotalProducts(); got != 4 {
		t.Errorf("total products = %d, want the global limit 4", got)
	}
	for i, sup := range result.Suppliers {
		if len(sup.Products) > 2 {
			t.Errorf("suppliers[%d] has %d products, want at most 2", i, len(sup.Products))
		}
	}
	if products.calls > 4 {
		t.Errorf("product fetches = %d, limits must be enforced before fetching, not after", products.calls)
	}
}

func TestScrapeDeduplicatesProductsWithinSeller(t *testing.T) {
	search, sellers, products := fixturePipeline(1, func(n int) []string {
		return []string{"101"}
	})
	// Same listing reachable through two endpoint variants.
	variant := productURL("101") + "?spm=variant"
	products.pages[variant] = productPage{raw: rawProduct("101")}
	page := sellers.pages[lead(1).URL]
	page.endpoints = append(page.endpoints, variant)
	sellers.pages[lead(1).URL] = page

	cfg := testConfig()
	cfg.MaxSuppliers = 1
	cfg.MaxProductsPerSeller = 5
	cfg.ProductWorkers = 1
	svc := newTestService(cfg, search, sellers, products)

	result, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if got := result.Suppliers[0].Products; len(got) != 1 {
		t.Fatalf("products = %+v, want duplicates collapsed by product id", got)
	}
}

func TestScrapeOrderIndependentOfCompletionOrder(t *testing.T) {
	search, sellers, products := fixturePipeline(3, func(n int) []string {
		return []string{fmt.Sprintf("%d01", n)}
	})
	// The first seller finishes last.
	slow := sellers.pages[lead(1).URL]
	slow.delay = 50 * time.Millisecond
	sellers.pages[lead(1).URL] = slow

	cfg := testConfig()
	cfg.MaxSuppliers = 3
	cfg.SellerWorkers = 3
	svc := newTestService(cfg, search, sellers, products)

	result, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(result.Suppliers) != 3 {
		t.Fatalf("suppliers = %d", len(result.Suppliers))
	}
	for i, sup := range result.Suppliers {
		if want := fmt.Sprintf("Seller %d", i+1); sup.SellerName != want {
			t.Errorf("suppliers[%d] = %q, want %q", i, sup.SellerName, want)
		}
	}
}

func TestScrapeCancellationYieldsPartialResult(t *testing.T) {
	search, sellers, products := fixturePipeline(2, func(n int) []string {
		return []string{fmt.Sprintf("%d01", n)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The second seller's fetch observes the cancellation mid-run.
	second := sellers.pages[lead(2).URL]
	second.onFetch = cancel
	second.err = fmt.Errorf("seller fetch: %w", context.Canceled)
	sellers.pages[lead(2).URL] = second

	cfg := testConfig()
	cfg.SellerWorkers = 1
	svc := newTestService(cfg, search, sellers, products)

	result, err := svc.Scrape(ctx, domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("cancellation must yield a partial result, not an error: %v", err)
	}
	if result.ScrapeTime != frozenTime {
		t.Errorf("scrape_time = %q", result.ScrapeTime)
	}
	if len(result.Suppliers) != 1 || result.Suppliers[0].SellerName != "Seller 1" {
		t.Fatalf("suppliers = %+v, want the work completed before cancellation", result.Suppliers)
	}
}

func TestScrapeDiscoveryFailureIsFatal(t *testing.T) {
	search := &stubSearch{err: fmt.Errorf("search fetch failed: quota exceeded")}
	svc := newTestService(testConfig(), search, &stubSellers{}, &stubProducts{})

	if _, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"}); err == nil {
		t.Fatalf("expected discovery failure to abort the run")
	}
}

func TestScrapeNoSellersDiscovered(t *testing.T) {
	svc := newTestService(testConfig(), &stubSearch{}, &stubSellers{}, &stubProducts{})

	result, err := svc.Scrape(context.Background(), domain.Query{Text: "earbuds"})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(result.Suppliers) != 0 || result.Suppliers == nil {
		t.Fatalf("suppliers = %#v, want an empty, non-nil list", result.Suppliers)
	}
}
