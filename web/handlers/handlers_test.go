package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cogito/internal/awareness"
	"github.com/scrypster/cogito/internal/collab"
	"github.com/scrypster/cogito/internal/config"
	"github.com/scrypster/cogito/internal/goals"
	"github.com/scrypster/cogito/internal/memory"
	"github.com/scrypster/cogito/internal/scheduler"
	"github.com/scrypster/cogito/internal/skills"
	"github.com/scrypster/cogito/internal/storage/sqlite"
	"github.com/scrypster/cogito/pkg/types"
)

func newTestRouter(t *testing.T, cfg *config.Config) (http.Handler, *scheduler.Scheduler) {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry, err := skills.NewRegistry(store.Skills(), 1.0, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Seed(context.Background(), map[string]float64{"reasoning": 0.2}))

	mem, err := memory.NewStore(store.Memories(), 168*time.Hour, 0.9)
	require.NoError(t, err)
	tracker, err := awareness.NewTracker(registry, mem, store.Metrics(), nil, 0.001)
	require.NoError(t, err)
	goalMgr, err := goals.NewManager(store.Goals(), registry, 0.8)
	require.NoError(t, err)

	sched, err := scheduler.New(scheduler.Config{CoreTopics: []string{"logic"}},
		store.Cycles(), registry, mem, tracker, goalMgr,
		collab.StaticResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})
	require.NoError(t, err)

	api := NewAPI(sched, goalMgr, store.Cycles(), store.Metrics())
	return NewRouter(api, NewEventHub(), cfg), sched
}

func devConfig() *config.Config {
	return &config.Config{Web: config.WebConfig{SecurityMode: "development"}}
}

func TestStatusEndpoint(t *testing.T) {
	router, sched := newTestRouter(t, devConfig())
	_, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, types.PhaseIdle, st.Phase)
	require.NotNil(t, st.LastCycle)
	assert.NotEmpty(t, st.Skills)
	assert.NotEmpty(t, st.ActiveGoals)
}

func TestMemoriesEndpointFilters(t *testing.T) {
	router, sched := newTestRouter(t, devConfig())
	_, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/memories?source=reflection", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MemoriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, types.SourceReflection, resp.Entries[0].Source)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/memories?source=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoalsAndCyclesEndpoints(t *testing.T) {
	router, sched := newTestRouter(t, devConfig())
	_, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/goals?status=active", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var goalList []types.Goal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &goalList))
	assert.NotEmpty(t, goalList)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cycles", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cycles CyclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cycles))
	require.Len(t, cycles.Cycles, 1)
	assert.Equal(t, types.OutcomeSuccess, cycles.Cycles[0].Outcome)
}

func TestConsciousnessEndpoint(t *testing.T) {
	router, sched := newTestRouter(t, devConfig())
	_, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/consciousness", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConsciousnessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.Level, 0.0)
	assert.NotEmpty(t, resp.History)
}

func TestRequireAuthProductionMode(t *testing.T) {
	cfg := &config.Config{Web: config.WebConfig{SecurityMode: "production", APIToken: "secret-token"}}
	router, _ := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthBypassesAuth(t *testing.T) {
	cfg := &config.Config{Web: config.WebConfig{SecurityMode: "production", APIToken: "secret"}}
	router, _ := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), rl)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	_, send, ok := hub.register()
	require.True(t, ok)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Broadcast(CycleEvent{Type: "cycle_completed", Cycle: types.LearningCycle{CycleID: 7}})

	select {
	case data := <-send:
		var ev CycleEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, "cycle_completed", ev.Type)
		assert.Equal(t, int64(7), ev.Cycle.CycleID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestEventHubDropsSlowClients(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	_, _, ok := hub.register()
	require.True(t, ok)

	// Fill the client's buffer past capacity; the hub must drop it rather
	// than block.
	for i := 0; i < 70; i++ {
		hub.Broadcast(CycleEvent{Type: "cycle_completed"})
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestEventHubCloseRejectsNewClients(t *testing.T) {
	hub := NewEventHub()
	hub.Close()

	_, _, ok := hub.register()
	assert.False(t, ok)
	hub.Broadcast(CycleEvent{Type: "cycle_completed"})
	assert.Equal(t, 0, hub.ClientCount())
}
