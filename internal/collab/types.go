// Package collab defines the contracts for the external collaborators the
// scheduler drives: web research, video discovery, and vision analysis. The
// core never branches on loosely-shaped collaborator output; each contract
// has explicit result types.
package collab

import (
	"context"
	"errors"
)

var (
	// ErrTimeout indicates a collaborator call exceeded its deadline.
	ErrTimeout = errors.New("collaborator timed out")

	// ErrUnavailable indicates the collaborator could not be reached or
	// refused to serve the request.
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrDecode indicates the collaborator returned content that could not
	// be decoded (malformed media or payload).
	ErrDecode = errors.New("collaborator response could not be decoded")
)

// SearchResult is one item returned by the research collaborator.
type SearchResult struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
}

// VideoResult is one candidate returned by the video discovery collaborator.
type VideoResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
}

// VisionResult is the analysis of one media reference.
type VisionResult struct {
	SummaryText     string   `json:"summary_text"`
	DetectedObjects []string `json:"detected_objects"`
	ExtractedText   string   `json:"extracted_text"`
	QualityScore    float64  `json:"quality_score"`
}

// Researcher issues research queries. Deadlines arrive via ctx; a timed-out
// call fails with ErrTimeout.
type Researcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// VideoDiscoverer finds candidate video content for a topic.
type VideoDiscoverer interface {
	Discover(ctx context.Context, topic string) ([]VideoResult, error)
}

// VisionAnalyzer analyzes a media reference (URL or local path).
type VisionAnalyzer interface {
	Analyze(ctx context.Context, mediaRef string) (*VisionResult, error)
}
