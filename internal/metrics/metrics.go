package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scrape engine. All helpers
// are nil-safe so components can run without a registry wired in.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	SellersAccepted  prometheus.Counter
	ProductsAccepted prometheus.Counter
	RecordsDropped   *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_proxy_requests_total",
			Help: "Total fetch attempts issued through the render proxy.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_proxy_request_duration_seconds",
			Help:    "Latency of individual proxy fetch attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_proxy_retries_total",
			Help: "Total retry attempts scheduled by the executor.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_errors_total",
			Help: "Terminal fetch failures by classified kind.",
		},
		[]string{"kind"},
	)
	sellers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_sellers_accepted_total",
			Help: "Sellers that survived fetch and normalization.",
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_accepted_total",
			Help: "Products that survived fetch and normalization.",
		},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_dropped_total",
			Help: "Records dropped per stage (seller_parse, product_fetch, normalize).",
		},
		[]string{"stage"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_response_cache_hits_total",
			Help: "Fetches served from the response cache without a proxy call.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, sellers, products, dropped, cacheHits)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		SellersAccepted:  sellers,
		ProductsAccepted: products,
		RecordsDropped:   dropped,
		CacheHitsTotal:   cacheHits,
	}
}

// IncRequest counts one fetch attempt with its outcome label.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records one attempt's latency.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries counts one scheduled retry.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError counts one terminal failure by kind.
func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// IncSellers counts one accepted seller.
func (m *Metrics) IncSellers() {
	if m == nil {
		return
	}
	m.SellersAccepted.Inc()
}

// IncProducts counts one accepted product.
func (m *Metrics) IncProducts() {
	if m == nil {
		return
	}
	m.ProductsAccepted.Inc()
}

// IncDropped counts one dropped record per pipeline stage.
func (m *Metrics) IncDropped(stage string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(stage).Inc()
}

// IncCacheHits counts one response served from cache.
func (m *Metrics) IncCacheHits() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}
