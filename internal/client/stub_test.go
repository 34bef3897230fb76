package client

import (
	"context"
	"sync"

	"aliexpress/scraper/internal/proxy"
)

// stubExecutor serves canned page bodies by target URL.
type stubExecutor struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{
		pages: make(map[string]string),
		errs:  make(map[string]error),
	}
}

func (s *stubExecutor) Execute(ctx context.Context, req proxy.Request) (*proxy.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req.TargetURL)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &proxy.FetchError{Kind: proxy.KindTimeout, Target: req.TargetURL, Err: err}
	}
	if err, ok := s.errs[req.TargetURL]; ok {
		return nil, err
	}
	body, ok := s.pages[req.TargetURL]
	if !ok {
		return nil, &proxy.FetchError{Kind: proxy.KindNetwork, Target: req.TargetURL, Attempts: 1}
	}
	return &proxy.Response{StatusCode: 200, Body: body, Rendered: req.Render}, nil
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
