package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPResearcher talks to an external research service over HTTP. Requests
// are rate-limited and routed through a circuit breaker so a failing service
// degrades cycles instead of stalling them.
type HTTPResearcher struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *CircuitBreaker
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// NewHTTPResearcher constructs a researcher for the given endpoint.
// ratePerSec bounds outgoing requests; timeout bounds each request.
func NewHTTPResearcher(endpoint string, ratePerSec float64, timeout time.Duration) *HTTPResearcher {
	if ratePerSec <= 0 {
		ratePerSec = 0.5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPResearcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), 1),
		breaker:  NewCircuitBreaker("research"),
	}
}

// Search issues a research query and decodes the results. Failures map to
// the collaborator error sentinels: deadline overruns to ErrTimeout,
// connection and server errors to ErrUnavailable, malformed payloads to
// ErrDecode.
func (r *HTTPResearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	out, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		return r.doSearch(ctx, query)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return out.([]SearchResult), nil
}

func (r *HTTPResearcher) doSearch(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		var ue interface{ Timeout() bool }
		if errors.As(err, &ue) && ue.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: search service returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrDecode, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return sr.Results, nil
}
