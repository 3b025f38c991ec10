package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scrypster/cogito/internal/config"
	"github.com/scrypster/cogito/internal/goals"
	"github.com/scrypster/cogito/internal/scheduler"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// maxListLimit caps list endpoints to prevent resource exhaustion.
const maxListLimit = 1000

// API serves the read-only status surface over the committed state.
type API struct {
	sched   *scheduler.Scheduler
	goals   *goals.Manager
	cycles  storage.CycleStore
	metrics storage.MetricStore
}

// NewAPI creates the API handler set.
func NewAPI(sched *scheduler.Scheduler, goalMgr *goals.Manager, cycles storage.CycleStore, metrics storage.MetricStore) *API {
	return &API{sched: sched, goals: goalMgr, cycles: cycles, metrics: metrics}
}

// NewRouter builds the chi router with auth and rate limiting applied to the
// API subtree, plus the websocket endpoint.
func NewRouter(api *API, hub *EventHub, cfg *config.Config) http.Handler {
	rl := NewRateLimiter(20, 40)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RateLimitMiddleware(next, rl) })
		r.Use(func(next http.Handler) http.Handler { return RequireAuth(next, cfg) })
		r.Get("/status", api.GetStatus)
		r.Get("/skills", api.ListSkills)
		r.Get("/goals", api.ListGoals)
		r.Get("/memories", api.ListMemories)
		r.Get("/cycles", api.ListCycles)
		r.Get("/consciousness", api.GetConsciousness)
	})
	r.Handle("/ws", hub)
	return r
}

// GetStatus handles GET /api/status.
func (a *API) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sched.Status())
}

// ListSkills handles GET /api/skills.
func (a *API) ListSkills(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sched.Status().Skills)
}

// ListGoals handles GET /api/goals?status=active|satisfied|abandoned.
func (a *API) ListGoals(w http.ResponseWriter, r *http.Request) {
	status := types.GoalStatus(r.URL.Query().Get("status"))
	list, err := a.goals.List(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORAGE", "failed to list goals")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListMemories handles GET /api/memories with optional source, skill, since
// and limit query parameters.
func (a *API) ListMemories(w http.ResponseWriter, r *http.Request) {
	filter := storage.MemoryFilter{
		Source: types.MemorySource(r.URL.Query().Get("source")),
		Skill:  r.URL.Query().Get("skill"),
	}
	if filter.Source != "" && !filter.Source.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_SOURCE", "unknown memory source")
		return
	}
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		filter.Since = ts
	}

	limit := parseInt(r.URL.Query().Get("limit"), 100)
	if limit > maxListLimit {
		limit = maxListLimit
	}

	entries := make([]*types.MemoryEntry, 0, limit)
	for entry, err := range a.sched.QueryMemory(r.Context(), filter) {
		if err != nil {
			writeError(w, http.StatusInternalServerError, "STORAGE", "failed to query memories")
			return
		}
		entries = append(entries, entry)
		if len(entries) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, MemoriesResponse{Entries: entries, Total: len(entries)})
}

// ListCycles handles GET /api/cycles?limit=N (newest first).
func (a *API) ListCycles(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 20)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	cycles, err := a.cycles.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORAGE", "failed to list cycles")
		return
	}
	writeJSON(w, http.StatusOK, CyclesResponse{Cycles: cycles})
}

// GetConsciousness handles GET /api/consciousness.
func (a *API) GetConsciousness(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 100)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	history, err := a.metrics.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORAGE", "failed to load history")
		return
	}
	resp := ConsciousnessResponse{History: history}
	if len(history) > 0 {
		resp.Level = history[len(history)-1].Level
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
