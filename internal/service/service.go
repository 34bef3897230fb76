package service

import (
	"context"
	"fmt"
	"sync"

	"aliexpress/scraper/internal/client"
	"aliexpress/scraper/internal/config"
	"aliexpress/scraper/internal/domain"
	"aliexpress/scraper/internal/metrics"
	"aliexpress/scraper/internal/normalize"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// Service orchestrates discovery, seller fan-out, product fan-out, and
// normalization into one deterministic ScrapeResult. It owns limit
// enforcement: budgets are reserved before a fetch is issued, never trimmed
// after the fact.
type Service struct {
	cfg        config.ScrapeConfig
	search     client.SearchClient
	sellers    client.SellerClient
	products   client.ProductClient
	normalizer *normalize.Normalizer
	metrics    *metrics.Metrics
	now        func() string
}

func NewService(
	cfg config.ScrapeConfig,
	search client.SearchClient,
	sellers client.SellerClient,
	products client.ProductClient,
	normalizer *normalize.Normalizer,
	m *metrics.Metrics,
) *Service {
	return &Service{
		cfg:        cfg,
		search:     search,
		sellers:    sellers,
		products:   products,
		normalizer: normalizer,
		metrics:    m,
		now:        domain.ISONow,
	}
}

// Scrape runs the full pipeline for one query. Discovery failure is fatal;
// every per-seller and per-product failure is contained, logged, and
// excluded. Cancellation yields whatever was normalized so far as a partial
// result rather than an error.
func (s *Service) Scrape(ctx context.Context, q domain.Query) (*domain.ScrapeResult, error) {
	result := &domain.ScrapeResult{
		Query:      q.Text,
		ScrapeTime: s.now(),
		Suppliers:  []domain.Seller{},
	}

	leads, err := s.search.Discover(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	if len(leads) == 0 {
		log.Warnf("⚠️ No sellers discovered for %q", q.Text)
		return result, nil
	}
	if len(leads) > s.cfg.MaxSuppliers {
		leads = leads[:s.cfg.MaxSuppliers]
	}

	// Slots are keyed by discovery index so the final ordering never
	// depends on completion order. One write per completed seller.
	slots := make([]*domain.Seller, len(leads))
	var slotMutex sync.Mutex
	budget := newBudget(s.cfg.Limit)

	g := new(errgroup.Group)
	sem := make(chan struct{}, s.cfg.SellerWorkers)
	for i, lead := range leads {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			seller := s.scrapeSeller(ctx, lead, budget)
			if seller != nil {
				slotMutex.Lock()
				slots[i] = seller
				slotMutex.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	for _, seller := range slots {
		if seller != nil {
			result.Suppliers = append(result.Suppliers, *seller)
		}
	}

	if ctx.Err() != nil {
		log.Warnf("🛑 Run cancelled, returning partial result: %d suppliers, %d products",
			len(result.Suppliers), result.TotalProducts())
	} else {
		log.Infof("✅ Scrape %q complete: %d suppliers, %d products", q.Text, len(result.Suppliers), result.TotalProducts())
	}
	return result, nil
}

// scrapeSeller resolves one discovered lead into a populated seller, or nil
// when the branch is dropped.
func (s *Service) scrapeSeller(ctx context.Context, lead domain.SellerLead, budget *budget) *domain.Seller {
	raw, endpoints, err := s.sellers.Fetch(ctx, lead)
	if err != nil {
		log.Warnf("⚠️ Skipping seller %s: %v", lead.URL, err)
		s.metrics.IncDropped("seller_fetch")
		return nil
	}

	seller, err := s.normalizer.Seller(raw)
	if err != nil {
		log.Warnf("⚠️ Dropping seller %s: %v", lead.URL, err)
		s.metrics.IncDropped("normalize")
		return nil
	}

	seller.Products = s.scrapeProducts(ctx, lead.URL, endpoints, budget)
	s.metrics.IncSellers()
	return seller
}

// scrapeProducts runs a bounded worker pool over a seller's endpoints.
// Workers reserve a slot against both the per-seller cap and the global
// budget before fetching, and hand the slot back on failure so a later
// endpoint can use it. Accepted products keep endpoint order.
func (s *Service) scrapeProducts(ctx context.Context, sellerURL string, endpoints []string, budget *budget) []domain.Product {
	slots := make([]*domain.Product, len(endpoints))
	seenIDs := make(map[string]bool)

	var mu sync.Mutex
	next, accepted, inflight := 0, 0, 0

	workers := s.cfg.ProductWorkers
	if workers > len(endpoints) {
		workers = len(endpoints)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}

				mu.Lock()
				if next >= len(endpoints) || accepted+inflight >= s.cfg.MaxProductsPerSeller {
					mu.Unlock()
					return
				}
				if !budget.reserve() {
					mu.Unlock()
					return
				}
				idx := next
				next++
				inflight++
				mu.Unlock()

				product := s.scrapeProduct(ctx, endpoints[idx])

				mu.Lock()
				inflight--
				ok := product != nil && !seenIDs[productKey(product)]
				if ok {
					seenIDs[productKey(product)] = true
					slots[idx] = product
					accepted++
				}
				mu.Unlock()

				if ok {
					s.metrics.IncProducts()
				} else {
					budget.release()
				}
			}
		}()
	}
	wg.Wait()

	products := make([]domain.Product, 0, accepted)
	for _, p := range slots {
		if p != nil {
			products = append(products, *p)
		}
	}
	if len(products) > 0 {
		log.Debugf("Seller %s yielded %d products", sellerURL, len(products))
	}
	return products
}

func (s *Service) scrapeProduct(ctx context.Context, endpoint string) *domain.Product {
	raw, err := s.products.Fetch(ctx, endpoint)
	if err != nil {
		log.Warnf("⚠️ Dropping product %s: %v", endpoint, err)
		s.metrics.IncDropped("product_fetch")
		return nil
	}

	product, err := s.normalizer.Product(raw)
	if err != nil {
		log.Warnf("⚠️ Dropping product %s: %v", endpoint, err)
		s.metrics.IncDropped("normalize")
		return nil
	}
	return product
}

// productKey dedupes products within one seller. Pages without a parseable
// ID fall back to the URL.
func productKey(p *domain.Product) string {
	if p.ProductID != "" {
		return p.ProductID
	}
	return p.ProductURL
}

// budget is the global product allowance shared across all sellers.
type budget struct {
	mu        sync.Mutex
	remaining int
}

func newBudget(limit int) *budget {
	return &budget{remaining: limit}
}

func (b *budget) reserve() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

func (b *budget) release() {
	b.mu.Lock()
	b.remaining++
	b.mu.Unlock()
}
