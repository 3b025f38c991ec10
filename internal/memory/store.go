// Package memory provides the append-only, deduplicated knowledge log the
// scheduler commits learned content into.
package memory

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// pageSize is how many entries the iterator fetches per storage round trip.
const pageSize = 100

// Candidate is an unstored memory entry produced by the Processing phase.
type Candidate struct {
	Source       types.MemorySource
	Content      string
	Importance   float64
	Associations []string
}

// Store wraps a storage backend with dedup-by-content-hash insertion, lazy
// querying, and the importance maintenance pass. Entry counts only ever grow;
// maintenance reduces importance but never deletes.
type Store struct {
	backend storage.MemoryStore

	decayAge    time.Duration
	decayFactor float64
}

// NewStore creates a memory store over the given backend. decayAge and
// decayFactor govern the importance maintenance pass.
func NewStore(backend storage.MemoryStore, decayAge time.Duration, decayFactor float64) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("memory backend is required")
	}
	if decayFactor < 0 || decayFactor > 1 {
		return nil, fmt.Errorf("decay factor %f is outside [0.0, 1.0]", decayFactor)
	}
	return &Store{backend: backend, decayAge: decayAge, decayFactor: decayFactor}, nil
}

// Insert stores a candidate, computing its deterministic content-hash ID.
// When an entry with the same ID already exists, the existing entry is
// returned with inserted=false and nothing is written.
func (s *Store) Insert(ctx context.Context, cand Candidate) (*types.MemoryEntry, bool, error) {
	if cand.Content == "" {
		return nil, false, fmt.Errorf("%w: candidate content is required", storage.ErrInvalidInput)
	}

	importance := cand.Importance
	if importance <= 0 {
		importance = 0.5
	}
	if importance > 1 {
		importance = 1
	}

	entry := &types.MemoryEntry{
		ID:           types.MemoryID(cand.Source, cand.Content),
		Source:       cand.Source,
		Content:      types.NormalizeContent(cand.Content),
		Importance:   importance,
		CreatedAt:    time.Now().UTC(),
		Associations: cand.Associations,
	}

	inserted, err := s.backend.Insert(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return entry, true, nil
	}

	existing, err := s.backend.Get(ctx, entry.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Query returns a lazy sequence of entries matching the filter, ordered by
// created_at ascending. The sequence is restartable (each range starts over)
// and finite (bounded by the store size when iteration reaches the end).
// Iteration errors are yielded as the second value and terminate the walk.
func (s *Store) Query(ctx context.Context, filter storage.MemoryFilter) iter.Seq2[*types.MemoryEntry, error] {
	return func(yield func(*types.MemoryEntry, error) bool) {
		offset := 0
		for {
			page, err := s.backend.List(ctx, filter, storage.ListOptions{Offset: offset, Limit: pageSize})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			offset += len(page)
		}
	}
}

// Get retrieves a single entry by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.MemoryEntry, error) {
	return s.backend.Get(ctx, id)
}

// Counts returns total and per-source cardinalities.
func (s *Store) Counts(ctx context.Context) (storage.MemoryCounts, error) {
	return s.backend.Counts(ctx)
}

// ImportanceDecayPass reduces the importance of entries older than the
// configured age. It bounds recall weight without ever deleting entries, so
// total and per-source counts stay monotonic. Returns the entries updated.
func (s *Store) ImportanceDecayPass(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.decayAge)
	return s.backend.DecayImportance(ctx, cutoff, s.decayFactor)
}
