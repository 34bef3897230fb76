package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FailKind classifies a failed fetch. Expected failure conditions travel as
// classified values, never as panics or untyped errors.
type FailKind string

const (
	KindNetwork     FailKind = "network_error"
	KindTimeout     FailKind = "timeout"
	KindRateLimited FailKind = "rate_limited"
	KindAntiBot     FailKind = "anti_bot_detected"
)

// Retryable reports whether the executor may schedule another attempt for
// this kind. Anti-bot retries are additionally capped per target.
func (k FailKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindAntiBot:
		return true
	}
	return false
}

// FetchError is the classified outcome of an exhausted or abandoned fetch.
type FetchError struct {
	Kind     FailKind
	Target   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Kind, e.Target, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain, or "" if the error
// did not originate in the executor.
func KindOf(err error) FailKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// AntiBotMatcher recognizes bot-challenge interstitials by response body
// markers and distinguishing status codes. The exact challenge surface
// drifts, so the set is pluggable rather than hard-coded in the executor.
type AntiBotMatcher struct {
	Markers     []string
	StatusCodes []int
}

// DefaultAntiBotMatcher covers the challenge pages observed in the wild.
func DefaultAntiBotMatcher() *AntiBotMatcher {
	return &AntiBotMatcher{
		Markers: []string{
			"captcha",
			"verify you are human",
			"cloudflare",
			"attention required",
			"unusual traffic",
		},
		StatusCodes: []int{407, 419},
	}
}

// Match reports whether the upstream response looks like a bot challenge.
func (m *AntiBotMatcher) Match(statusCode int, body string) bool {
	if m == nil {
		return false
	}
	for _, code := range m.StatusCodes {
		if statusCode == code {
			return true
		}
	}
	lower := strings.ToLower(body)
	for _, marker := range m.Markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classify maps a completed attempt onto the failure taxonomy. A nil return
// means the attempt succeeded. Order matters: an anti-bot interstitial often
// arrives with a 2xx, so the body check runs before the status buckets.
func classify(err error, statusCode int, body string, matcher *AntiBotMatcher) *attemptFailure {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &attemptFailure{kind: KindTimeout, err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &attemptFailure{kind: KindTimeout, err: err}
		}
		return &attemptFailure{kind: KindNetwork, err: err}
	}

	if matcher.Match(statusCode, body) {
		return &attemptFailure{kind: KindAntiBot, err: fmt.Errorf("bot challenge in response (status %d)", statusCode)}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &attemptFailure{kind: KindRateLimited, err: fmt.Errorf("http status %d", statusCode)}
	case statusCode >= 500:
		return &attemptFailure{kind: KindNetwork, err: fmt.Errorf("http status %d", statusCode)}
	case statusCode >= 400:
		// Client errors other than 429 will not heal with a retry.
		return &attemptFailure{kind: KindNetwork, terminal: true, err: fmt.Errorf("http status %d", statusCode)}
	}

	return nil
}

type attemptFailure struct {
	kind     FailKind
	terminal bool
	err      error
}
