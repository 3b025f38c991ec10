package collab

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{
		MaxFailures:          3,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{
		MaxFailures:          1,
		Timeout:              20 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, errors.New("boom") })
	require.Error(t, err)

	_, err = cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	require.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)

	out, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestHTTPResearcherSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"text":"fact one","source_url":"https://example.com/a"}]}`))
	}))
	defer srv.Close()

	r := NewHTTPResearcher(srv.URL, 100, 2*time.Second)
	results, err := r.Search(context.Background(), "graph theory")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact one", results[0].Text)
	assert.Equal(t, "https://example.com/a", results[0].SourceURL)
}

func TestHTTPResearcherServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewHTTPResearcher(srv.URL, 100, 2*time.Second)
	_, err := r.Search(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPResearcherMalformedPayloadIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": not-json`))
	}))
	defer srv.Close()

	r := NewHTTPResearcher(srv.URL, 100, 2*time.Second)
	_, err := r.Search(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestHTTPResearcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	r := NewHTTPResearcher(srv.URL, 100, 2*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Search(ctx, "slow")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPResearcherConnectionRefusedIsUnavailable(t *testing.T) {
	r := NewHTTPResearcher("http://127.0.0.1:1/search", 100, time.Second)
	_, err := r.Search(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStaticCollaboratorsAreDeterministic(t *testing.T) {
	ctx := context.Background()

	a, err := StaticResearcher{}.Search(ctx, "logic")
	require.NoError(t, err)
	b, err := StaticResearcher{}.Search(ctx, "logic")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)

	videos, err := StaticDiscoverer{}.Discover(ctx, "logic")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "youtube", videos[0].Platform)

	vis, err := StaticAnalyzer{}.Analyze(ctx, videos[0].URL)
	require.NoError(t, err)
	assert.NotEmpty(t, vis.SummaryText)
	assert.Greater(t, vis.QualityScore, 0.0)
}

func TestFailingCollaborators(t *testing.T) {
	ctx := context.Background()

	_, err := FailingResearcher{}.Search(ctx, "x")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = FailingResearcher{Err: ErrTimeout}.Search(ctx, "x")
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = FailingDiscoverer{}.Discover(ctx, "x")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = FailingAnalyzer{}.Analyze(ctx, "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}
