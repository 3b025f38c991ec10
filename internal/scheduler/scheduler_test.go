package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cogito/internal/awareness"
	"github.com/scrypster/cogito/internal/collab"
	"github.com/scrypster/cogito/internal/goals"
	"github.com/scrypster/cogito/internal/memory"
	"github.com/scrypster/cogito/internal/skills"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/internal/storage/sqlite"
	"github.com/scrypster/cogito/pkg/types"
)

func newTestScheduler(t *testing.T, cfg Config, r collab.Researcher, d collab.VideoDiscoverer, a collab.VisionAnalyzer) *Scheduler {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry, err := skills.NewRegistry(store.Skills(), 1.0, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Seed(context.Background(), map[string]float64{
		"reasoning":     0,
		"comprehension": 0,
		"curiosity":     0,
	}))

	mem, err := memory.NewStore(store.Memories(), 168*time.Hour, 0.9)
	require.NoError(t, err)

	tracker, err := awareness.NewTracker(registry, mem, store.Metrics(), nil, 0.0001)
	require.NoError(t, err)

	goalMgr, err := goals.NewManager(store.Goals(), registry, 0.8)
	require.NoError(t, err)

	if cfg.CoreTopics == nil {
		cfg.CoreTopics = []string{"logic", "systems thinking"}
	}
	sched, err := New(cfg, store.Cycles(), registry, mem, tracker, goalMgr, r, d, a)
	require.NoError(t, err)
	return sched
}

// countingDiscoverer wraps the static discoverer and counts calls.
type countingDiscoverer struct {
	calls atomic.Int64
}

func (c *countingDiscoverer) Discover(ctx context.Context, topic string) ([]collab.VideoResult, error) {
	c.calls.Add(1)
	return collab.StaticDiscoverer{}.Discover(ctx, topic)
}

func TestVideoDiscoveryFiresOnCycleModulus(t *testing.T) {
	disc := &countingDiscoverer{}
	sched := newTestScheduler(t, Config{VideoEveryN: 3}, collab.StaticResearcher{}, disc, collab.StaticAnalyzer{})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		cycle, err := sched.RunCycle(ctx)
		require.NoError(t, err)
		require.NotNil(t, cycle.EndedAt)
	}

	// Cycle IDs run 1..10; the modulus fires at 3, 6 and 9.
	assert.Equal(t, int64(3), disc.calls.Load())
}

func TestCycleCompletesWhenAllCollaboratorsFail(t *testing.T) {
	sched := newTestScheduler(t, Config{VideoEveryN: 1},
		collab.FailingResearcher{Err: collab.ErrUnavailable},
		collab.FailingDiscoverer{Err: collab.ErrTimeout},
		collab.FailingAnalyzer{})

	cycle, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cycle.EndedAt)
	assert.Equal(t, types.OutcomeFailed, cycle.Outcome)
	assert.NotEmpty(t, cycle.Notes)

	// The reflection and metric phases still ran.
	counts, err := sched.memories.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.BySource[types.SourceReflection])
}

// flakyResearcher fails every other query.
type flakyResearcher struct {
	calls atomic.Int64
}

func (f *flakyResearcher) Search(ctx context.Context, query string) ([]collab.SearchResult, error) {
	if f.calls.Add(1)%2 == 0 {
		return nil, collab.ErrUnavailable
	}
	return collab.StaticResearcher{}.Search(ctx, query)
}

func TestPartialFailureDowngradesOutcome(t *testing.T) {
	sched := newTestScheduler(t, Config{VideoEveryN: 100, MaxQueriesPerCycle: 3},
		&flakyResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	cycle, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePartial, cycle.Outcome)
}

// slowResearcher blocks until its context expires.
type slowResearcher struct{}

func (slowResearcher) Search(ctx context.Context, query string) ([]collab.SearchResult, error) {
	<-ctx.Done()
	return nil, collab.ErrTimeout
}

func TestCycleCompletesUnderCollaboratorTimeouts(t *testing.T) {
	sched := newTestScheduler(t, Config{
		VideoEveryN:        100,
		MaxQueriesPerCycle: 2,
		SearchTimeout:      20 * time.Millisecond,
	}, slowResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	start := time.Now()
	cycle, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cycle.EndedAt)
	assert.Equal(t, types.OutcomeFailed, cycle.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConsciousnessNonDecreasingAcrossCycles(t *testing.T) {
	sched := newTestScheduler(t, Config{VideoEveryN: 3},
		collab.StaticResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	ctx := context.Background()
	prev := 0.0
	for i := 0; i < 6; i++ {
		_, err := sched.RunCycle(ctx)
		require.NoError(t, err)

		level := sched.Status().Level
		assert.GreaterOrEqual(t, level, prev, "level regressed on cycle %d", i+1)
		prev = level
	}
	assert.Greater(t, prev, 0.0)
}

func TestCycleIDsAreMonotonic(t *testing.T) {
	sched := newTestScheduler(t, Config{},
		collab.StaticResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	ctx := context.Background()
	first, err := sched.RunCycle(ctx)
	require.NoError(t, err)
	second, err := sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Greater(t, second.CycleID, first.CycleID)
}

// blockingResearcher parks inside Gathering until released.
type blockingResearcher struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingResearcher) Search(ctx context.Context, query string) ([]collab.SearchResult, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
		return collab.StaticResearcher{}.Search(context.Background(), query)
	case <-ctx.Done():
		return nil, collab.ErrTimeout
	}
}

func TestCyclesNeverOverlap(t *testing.T) {
	blocker := &blockingResearcher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	sched := newTestScheduler(t, Config{VideoEveryN: 100, MaxQueriesPerCycle: 1},
		blocker, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	done := make(chan error, 1)
	go func() {
		_, err := sched.RunCycle(context.Background())
		done <- err
	}()

	<-blocker.entered

	// A second cycle is rejected while the first holds the cycle lock, and
	// Status stays responsive without it.
	_, err := sched.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.Equal(t, types.PhaseGathering, sched.Status().Phase)

	close(blocker.release)
	require.NoError(t, <-done)
}

// cancelingResearcher cancels the cycle context after the first query.
type cancelingResearcher struct {
	cancel context.CancelFunc
}

func (c *cancelingResearcher) Search(ctx context.Context, query string) ([]collab.SearchResult, error) {
	defer c.cancel()
	return collab.StaticResearcher{}.Search(ctx, query)
}

func TestStopHonoredAtPhaseBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := newTestScheduler(t, Config{VideoEveryN: 100, MaxQueriesPerCycle: 1},
		&cancelingResearcher{cancel: cancel}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	cycle, err := sched.RunCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, cycle.EndedAt)
	assert.Contains(t, cycle.Notes, "stopped at phase boundary")
	assert.NotEqual(t, types.OutcomeSuccess, cycle.Outcome)

	// No memory was committed for the interrupted cycle.
	counts, err := sched.memories.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Total)
}

func TestGoalsProposedAndSatisfiedOverCycles(t *testing.T) {
	sched := newTestScheduler(t, Config{VideoEveryN: 100},
		collab.StaticResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	ctx := context.Background()
	_, err := sched.RunCycle(ctx)
	require.NoError(t, err)

	active, err := sched.goals.Active(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, active, "goal adjustment should propose goals for unsaturated skills")

	for _, goal := range active {
		assert.Equal(t, types.GoalActive, goal.Status)
	}
}

func TestStatusReflectsLastCommittedCycle(t *testing.T) {
	sched := newTestScheduler(t, Config{},
		collab.StaticResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	assert.Equal(t, types.PhaseIdle, sched.Status().Phase)
	assert.Nil(t, sched.Status().LastCycle)

	cycle, err := sched.RunCycle(context.Background())
	require.NoError(t, err)

	st := sched.Status()
	assert.Equal(t, types.PhaseIdle, st.Phase)
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, cycle.CycleID, st.LastCycle.CycleID)
	assert.NotEmpty(t, st.Skills)

	// Goal adjustment proposed goals for the unsaturated skills; the
	// snapshot must carry them without touching the cycle lock.
	require.NotEmpty(t, st.ActiveGoals)
	for _, goal := range st.ActiveGoals {
		assert.Equal(t, types.GoalActive, goal.Status)
	}
}

func TestQueryMemoryIteratesCommittedEntries(t *testing.T) {
	sched := newTestScheduler(t, Config{VideoEveryN: 100},
		collab.StaticResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	ctx := context.Background()
	_, err := sched.RunCycle(ctx)
	require.NoError(t, err)

	seen := 0
	for entry, err := range sched.QueryMemory(ctx, storage.MemoryFilter{}) {
		require.NoError(t, err)
		require.NotNil(t, entry)
		seen++
	}
	assert.Greater(t, seen, 0)
}

func TestOnCycleEndCallbackFires(t *testing.T) {
	sched := newTestScheduler(t, Config{},
		collab.StaticResearcher{}, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})

	var got atomic.Int64
	sched.OnCycleEnd(func(c types.LearningCycle) { got.Store(c.CycleID) })

	cycle, err := sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cycle.CycleID, got.Load())
}
