// Package handlers provides the read-only status API and the websocket
// event stream for the Cogito agent. The API exposes committed state only;
// all mutations happen on the scheduler's control flow.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/scrypster/cogito/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MemoriesResponse is the response format for GET /api/memories.
type MemoriesResponse struct {
	Entries []*types.MemoryEntry `json:"entries"`
	Total   int                  `json:"total"`
}

// ConsciousnessResponse is the response format for GET /api/consciousness.
type ConsciousnessResponse struct {
	Level   float64            `json:"level"`
	History []types.LevelPoint `json:"history"`
}

// CyclesResponse is the response format for GET /api/cycles.
type CyclesResponse struct {
	Cycles []types.LearningCycle `json:"cycles"`
}

// CycleEvent is the message pushed over the websocket when a cycle ends.
type CycleEvent struct {
	Type  string              `json:"type"` // Always "cycle_completed"
	Cycle types.LearningCycle `json:"cycle"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("ERROR: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
