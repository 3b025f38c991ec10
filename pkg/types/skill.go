package types

import "time"

// SkillRecord is a named, bounded capability score tracked over time.
//
// Scores are monotonically non-decreasing except for an explicit decay pass,
// and never exceed the configured ceiling.
type SkillRecord struct {
	Name        string    `json:"name"`         // Unique skill key
	Score       float64   `json:"score"`        // Current score in [0, ceiling]
	Trend       float64   `json:"trend"`        // Delta applied by the most recent update
	LastUpdated time.Time `json:"last_updated"` // When the score last changed
}
