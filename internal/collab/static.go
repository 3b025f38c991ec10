package collab

import (
	"context"
	"fmt"
)

// StaticResearcher serves deterministic results derived from the query. It
// is the default researcher when no external search endpoint is configured,
// and keeps learning cycles runnable offline.
type StaticResearcher struct{}

func (StaticResearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []SearchResult{
		{
			Text:      fmt.Sprintf("Overview of %s: core ideas, terminology, and open problems.", query),
			SourceURL: "static://research/" + query,
		},
		{
			Text:      fmt.Sprintf("Recent developments in %s and their practical implications.", query),
			SourceURL: "static://research/" + query + "/recent",
		},
	}, nil
}

// StaticDiscoverer returns a fixed candidate video per topic.
type StaticDiscoverer struct{}

func (StaticDiscoverer) Discover(ctx context.Context, topic string) ([]VideoResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []VideoResult{
		{
			Title:    fmt.Sprintf("Introduction to %s", topic),
			URL:      "static://video/" + topic,
			Platform: "youtube",
		},
	}, nil
}

// StaticAnalyzer produces a deterministic analysis for any media reference.
type StaticAnalyzer struct{}

func (StaticAnalyzer) Analyze(ctx context.Context, mediaRef string) (*VisionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &VisionResult{
		SummaryText:     "Visual summary for " + mediaRef,
		DetectedObjects: []string{"text", "diagram"},
		ExtractedText:   "",
		QualityScore:    0.7,
	}, nil
}

// FailingResearcher always fails with the configured error. Used in tests to
// exercise degraded-cycle behavior.
type FailingResearcher struct {
	Err error
}

func (f FailingResearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, ErrUnavailable
}

// FailingDiscoverer always fails with the configured error.
type FailingDiscoverer struct {
	Err error
}

func (f FailingDiscoverer) Discover(ctx context.Context, topic string) ([]VideoResult, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, ErrUnavailable
}

// FailingAnalyzer always fails with the configured error.
type FailingAnalyzer struct {
	Err error
}

func (f FailingAnalyzer) Analyze(ctx context.Context, mediaRef string) (*VisionResult, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, ErrUnavailable
}
