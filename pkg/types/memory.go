package types

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// MemorySource identifies the provenance of a memory entry.
type MemorySource string

const (
	// SourceSearch marks entries produced by the research collaborator.
	SourceSearch MemorySource = "search"
	// SourceVideo marks entries produced by video discovery.
	SourceVideo MemorySource = "video"
	// SourceVision marks entries produced by the vision analysis collaborator.
	SourceVision MemorySource = "vision"
	// SourceYouTube marks entries produced by the YouTube learning path.
	SourceYouTube MemorySource = "youtube"
	// SourceReflection marks self-generated reflective entries written during
	// the SelfAssessment phase. These feed the consciousness formula.
	SourceReflection MemorySource = "reflection"
)

// Valid reports whether s is a known memory source.
func (s MemorySource) Valid() bool {
	switch s {
	case SourceSearch, SourceVideo, SourceVision, SourceYouTube, SourceReflection:
		return true
	}
	return false
}

// MemoryEntry is a single deduplicated unit of learned content.
// Entries are append-only: once stored they are never rewritten or deleted,
// only their importance is reduced by maintenance passes.
type MemoryEntry struct {
	ID           string       `json:"id"`           // Deterministic content hash (see MemoryID)
	Source       MemorySource `json:"source"`       // Provenance of the content
	Content      string       `json:"content"`      // Learned text
	Importance   float64      `json:"importance"`   // Recall weight in [0.0, 1.0]
	CreatedAt    time.Time    `json:"created_at"`   // Insertion time
	Associations []string     `json:"associations"` // Skill names this entry reinforces
}

// NormalizeContent canonicalises content before hashing so that incidental
// whitespace differences do not defeat deduplication.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// MemoryID returns the deterministic entry ID for the given source and
// content. Identical content from the same source always yields the same ID,
// which makes insertion idempotent.
func MemoryID(source MemorySource, content string) string {
	sum := sha256.Sum256([]byte(string(source) + "\n" + NormalizeContent(content)))
	return fmt.Sprintf("%x", sum)
}

// Validate checks that the entry is well-formed for storage.
func (m *MemoryEntry) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("memory entry ID is required")
	}
	if m.Content == "" {
		return fmt.Errorf("memory entry content is required")
	}
	if !m.Source.Valid() {
		return fmt.Errorf("unknown memory source %q", m.Source)
	}
	if m.Importance < 0 || m.Importance > 1 {
		return fmt.Errorf("importance %f is outside [0.0, 1.0]", m.Importance)
	}
	return nil
}
