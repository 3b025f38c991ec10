package types_test

import (
	"testing"

	"github.com/scrypster/cogito/pkg/types"
)

func TestMemoryIDIsDeterministic(t *testing.T) {
	a := types.MemoryID(types.SourceSearch, "the mitochondria is the powerhouse of the cell")
	b := types.MemoryID(types.SourceSearch, "the mitochondria is the powerhouse of the cell")
	if a != b {
		t.Errorf("same source+content produced different IDs: %s vs %s", a, b)
	}
}

func TestMemoryIDNormalizesWhitespace(t *testing.T) {
	a := types.MemoryID(types.SourceSearch, "go  is a\tlanguage")
	b := types.MemoryID(types.SourceSearch, "go is a language")
	if a != b {
		t.Errorf("whitespace variants should hash identically: %s vs %s", a, b)
	}
}

func TestMemoryIDVariesBySource(t *testing.T) {
	a := types.MemoryID(types.SourceSearch, "identical content")
	b := types.MemoryID(types.SourceVideo, "identical content")
	if a == b {
		t.Error("same content from different sources must not collide")
	}
}

func TestMemoryEntryValidate(t *testing.T) {
	cases := []struct {
		name    string
		entry   types.MemoryEntry
		wantErr bool
	}{
		{
			name: "valid",
			entry: types.MemoryEntry{
				ID:         types.MemoryID(types.SourceSearch, "x"),
				Source:     types.SourceSearch,
				Content:    "x",
				Importance: 0.5,
			},
		},
		{
			name:    "missing id",
			entry:   types.MemoryEntry{Source: types.SourceSearch, Content: "x"},
			wantErr: true,
		},
		{
			name:    "missing content",
			entry:   types.MemoryEntry{ID: "abc", Source: types.SourceSearch},
			wantErr: true,
		},
		{
			name:    "unknown source",
			entry:   types.MemoryEntry{ID: "abc", Source: "telepathy", Content: "x"},
			wantErr: true,
		},
		{
			name:    "importance out of range",
			entry:   types.MemoryEntry{ID: "abc", Source: types.SourceSearch, Content: "x", Importance: 1.5},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestOutcomeWorst(t *testing.T) {
	cases := []struct {
		a, b, want types.CycleOutcome
	}{
		{types.OutcomeSuccess, types.OutcomeSuccess, types.OutcomeSuccess},
		{types.OutcomeSuccess, types.OutcomePartial, types.OutcomePartial},
		{types.OutcomePartial, types.OutcomeSuccess, types.OutcomePartial},
		{types.OutcomePartial, types.OutcomeFailed, types.OutcomeFailed},
		{types.OutcomeFailed, types.OutcomeSuccess, types.OutcomeFailed},
	}

	for _, tc := range cases {
		if got := tc.a.Worst(tc.b); got != tc.want {
			t.Errorf("%s.Worst(%s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}
