package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/cogito/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// PersistenceError wraps a failed store write. A persistence failure is fatal
// for the current cycle (the scheduler cannot claim progress it could not
// durably record) but must never corrupt previously committed state.
type PersistenceError struct {
	Op  string // The store operation that failed (e.g. "memories.insert")
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvariantViolationError indicates that one of the data model's guarantees
// has been broken (e.g. two active goals for the same skill). It signals a
// logic defect and is surfaced loudly, never silently swallowed.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation (%s): %s", e.Invariant, e.Detail)
}

// MemoryFilter narrows memory queries. Zero values mean "no filter".
type MemoryFilter struct {
	// Source restricts results to one provenance.
	Source types.MemorySource

	// Skill restricts results to entries associated with the named skill.
	Skill string

	// Since restricts results to entries created at or after this time.
	Since time.Time
}

// ListOptions provides windowing for list operations. Results are always
// ordered by created_at ascending so that paging is restartable.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return (default: 100).
	Limit int
}

// MemoryCounts summarises store cardinalities for status reporting and the
// consciousness formula.
type MemoryCounts struct {
	Total    int
	BySource map[types.MemorySource]int
}
