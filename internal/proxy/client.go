package proxy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"aliexpress/scraper/internal/config"
	"aliexpress/scraper/internal/metrics"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

// Request describes one target to fetch through the render proxy.
type Request struct {
	TargetURL string
	Country   string
	Render    bool
	Cookie    string
}

// Response is the proxy's envelope around the rendered upstream page.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	Rendered   bool   `json:"rendered"`
}

// Client issues single fetches through the render proxy with concurrency
// limiting, pacing, retry with backoff, and failure classification.
type Client interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

type client struct {
	cfg        config.ProxyConfig
	httpClient *resty.Client
	rl         ratelimit.Limiter
	sem        chan struct{}
	clk        clock.Clock
	jitter     func() float64
	matcher    *AntiBotMatcher
	cache      *lru.Cache[string, *Response]
	metrics    *metrics.Metrics

	// Anti-bot detections per in-flight target. A second strike abandons the
	// target; resolved targets are pruned so the map never outgrows the
	// concurrency bound.
	strikeMutex sync.Mutex
	strikes     map[string]int
}

// retryState tracks one in-flight request across its attempts. It dies with
// the Execute call that owns it.
type retryState struct {
	attempt   int
	nextDelay time.Duration
	lastKind  FailKind
}

func NewClient(cfg config.ProxyConfig, matcher *AntiBotMatcher, m *metrics.Metrics) Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout()).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("Accept-Language", "en-US,en;q=0.5").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	if matcher == nil {
		matcher = DefaultAntiBotMatcher()
	}

	rps := cfg.MaxRequestsPerSecond
	rl := ratelimit.NewUnlimited()
	if rps > 0 {
		rl = ratelimit.New(rps)
	}

	var cache *lru.Cache[string, *Response]
	if cfg.CacheSize > 0 {
		cache, _ = lru.New[string, *Response](cfg.CacheSize)
	}

	return &client{
		cfg:        cfg,
		httpClient: httpClient,
		rl:         rl,
		sem:        make(chan struct{}, cfg.MaxConcurrent),
		clk:        clock.New(),
		jitter:     rand.Float64,
		matcher:    matcher,
		cache:      cache,
		metrics:    m,
		strikes:    make(map[string]int),
	}
}

// Execute fetches one target. The caller's slot in the shared limiter is
// held for the full lifetime of the request, retries included. Failures come
// back as *FetchError carrying the classified kind.
func (c *client) Execute(ctx context.Context, req Request) (*Response, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(req.TargetURL); ok {
			log.Debugf("Cache hit for %s", req.TargetURL)
			c.metrics.IncCacheHits()
			return cached, nil
		}
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &FetchError{Kind: KindTimeout, Target: req.TargetURL, Err: ctx.Err()}
	}
	defer func() { <-c.sem }()
	defer c.clearStrikes(req.TargetURL)

	st := &retryState{}
	for {
		st.attempt++

		pacing := c.pacingDelay()
		if err := c.sleep(ctx, pacing); err != nil {
			return nil, &FetchError{Kind: KindTimeout, Target: req.TargetURL, Attempts: st.attempt - 1, Err: err}
		}
		c.rl.Take()

		start := c.clk.Now()
		resp, err := c.attempt(ctx, req)
		c.metrics.ObserveDuration(c.clk.Since(start))

		fail := c.classifyAttempt(err, resp, req.TargetURL)
		if fail == nil {
			log.Debugf("✅ Fetched %s (attempt %d, paced %v)", req.TargetURL, st.attempt, pacing.Round(time.Millisecond))
			c.metrics.IncRequest("success")
			if c.cache != nil {
				c.cache.Add(req.TargetURL, resp)
			}
			return resp, nil
		}

		st.lastKind = fail.kind
		c.metrics.IncRequest(string(fail.kind))

		if fail.terminal || st.attempt >= c.cfg.MaxAttempts {
			log.Warnf("❌ Giving up on %s after attempt %d: %s (%v)", req.TargetURL, st.attempt, fail.kind, fail.err)
			c.metrics.IncError(string(fail.kind))
			return nil, &FetchError{Kind: fail.kind, Target: req.TargetURL, Attempts: st.attempt, Err: fail.err}
		}

		st.nextDelay = c.backoff(st, fail.kind)
		log.Warnf("🔁 Attempt %d for %s failed (%s), backing off %v", st.attempt, req.TargetURL, fail.kind, st.nextDelay.Round(time.Millisecond))
		c.metrics.IncRetries()

		if err := c.sleep(ctx, st.nextDelay); err != nil {
			return nil, &FetchError{Kind: st.lastKind, Target: req.TargetURL, Attempts: st.attempt, Err: err}
		}
	}
}

// attempt issues one proxy call and decodes its envelope. The returned error
// covers transport problems only; upstream failures live in the envelope.
func (c *client) attempt(ctx context.Context, req Request) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	r := c.httpClient.R().
		SetContext(reqCtx).
		SetQueryParams(map[string]string{
			"key":       c.cfg.APIKey,
			"url":       req.TargetURL,
			"country":   req.Country,
			"render_js": strconv.FormatBool(req.Render),
		})
	if req.Cookie != "" {
		r.SetHeader("Cookie", req.Cookie)
	}

	resp, err := r.Get(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("proxy call failed: %w", err)
	}

	if resp.IsError() {
		// The proxy itself refused us (quota, auth, outage). Surface its
		// status so classification can tell 429 from 5xx.
		return &Response{StatusCode: resp.StatusCode(), Body: resp.String()}, nil
	}

	var env Response
	if err := json.Unmarshal([]byte(resp.String()), &env); err != nil {
		return nil, fmt.Errorf("decode proxy envelope: %w", err)
	}
	return &env, nil
}

func (c *client) classifyAttempt(err error, resp *Response, target string) *attemptFailure {
	var statusCode int
	var body string
	if resp != nil {
		statusCode = resp.StatusCode
		body = resp.Body
	}

	fail := classify(err, statusCode, body, c.matcher)
	if fail == nil {
		return nil
	}

	if fail.kind == KindAntiBot {
		c.strikeMutex.Lock()
		c.strikes[target]++
		if c.strikes[target] > 1 {
			fail.terminal = true
		}
		c.strikeMutex.Unlock()
	}
	return fail
}

func (c *client) clearStrikes(target string) {
	c.strikeMutex.Lock()
	delete(c.strikes, target)
	c.strikeMutex.Unlock()
}

// pacingDelay draws a randomized pre-attempt delay from the configured range
// to avoid request-rate patterns that trigger detection.
func (c *client) pacingDelay() time.Duration {
	min, max := c.cfg.PacingMin(), c.cfg.PacingMax()
	if max <= min {
		return min
	}
	return min + time.Duration(c.jitter()*float64(max-min))
}

// backoff computes the next retry delay: base doubled per attempt, capped,
// plus jitter. Rate-limit and anti-bot failures get raised floors.
func (c *client) backoff(st *retryState, kind FailKind) time.Duration {
	delay := c.cfg.BackoffBase() * time.Duration(1<<(st.attempt-1))
	if max := c.cfg.BackoffMax(); max > 0 && delay > max {
		delay = max
	}
	delay += time.Duration(c.jitter() * float64(c.cfg.BackoffBase()))

	switch kind {
	case KindRateLimited:
		if floor := c.cfg.RateLimitFloor(); delay < floor {
			delay = floor
		}
	case KindAntiBot:
		if floor := c.cfg.AntiBotBackoff(); delay < floor {
			delay = floor
		}
	}
	return delay
}

func (c *client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
