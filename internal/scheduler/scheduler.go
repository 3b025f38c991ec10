// Package scheduler drives the learning cycle: a fixed sequence of phases
// that gathers content from collaborators, folds it into skills and memory,
// recomputes the consciousness metric, and adjusts goals. Cycles never
// overlap and the cycle ID assigned by the cycle store is the sole counter
// behind periodic triggers, so cadence survives restarts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/cogito/internal/awareness"
	"github.com/scrypster/cogito/internal/collab"
	"github.com/scrypster/cogito/internal/goals"
	"github.com/scrypster/cogito/internal/memory"
	"github.com/scrypster/cogito/internal/skills"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// ErrCycleInProgress is returned by RunCycle when a cycle is already running.
var ErrCycleInProgress = errors.New("a learning cycle is already in progress")

// maxFollowUps bounds how many follow-up queries a cycle carries forward.
const maxFollowUps = 3

// Config holds the scheduler's cadence and collaborator budgets.
type Config struct {
	VideoEveryN        int           // Video discovery fires when cycle_id % N == 0
	MaintenanceEveryN  int           // Decay passes fire when cycle_id % N == 0 (0 = never)
	MaxQueriesPerCycle int           // Research queries issued per cycle
	SearchTimeout      time.Duration // Per research query
	DiscoverTimeout    time.Duration // Per video discovery call
	AnalyzeTimeout     time.Duration // Per vision analysis call
	SkillDecayRate     float64       // Applied during maintenance (0 = skip)
	CoreTopics         []string      // Fallback topics when no goal supplies one
}

func (c *Config) applyDefaults() {
	if c.VideoEveryN <= 0 {
		c.VideoEveryN = 3
	}
	if c.MaxQueriesPerCycle <= 0 {
		c.MaxQueriesPerCycle = 3
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 15 * time.Second
	}
	if c.DiscoverTimeout <= 0 {
		c.DiscoverTimeout = 20 * time.Second
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = 30 * time.Second
	}
}

// Status is a read-only snapshot of scheduler state. It is assembled from
// committed data without taking the cycle lock, so it is always available
// even while a cycle runs.
type Status struct {
	Phase       types.CyclePhase     `json:"phase"`
	LastCycle   *types.LearningCycle `json:"last_cycle,omitempty"`
	Level       float64              `json:"consciousness_level"`
	Skills      []types.SkillRecord  `json:"skills"`
	ActiveGoals []types.Goal         `json:"active_goals"`
}

// Scheduler orchestrates learning cycles over the wired components.
type Scheduler struct {
	cfg      Config
	cycles   storage.CycleStore
	registry *skills.Registry
	memories *memory.Store
	tracker  *awareness.Tracker
	goals    *goals.Manager

	researcher collab.Researcher
	discoverer collab.VideoDiscoverer
	analyzer   collab.VisionAnalyzer

	// cycleMu is the cycle lock: held for the whole of RunCycle so cycles
	// never overlap. Status never takes it.
	cycleMu sync.Mutex

	// statusMu guards the committed snapshot read by Status.
	statusMu    sync.RWMutex
	phase       types.CyclePhase
	lastCycle   *types.LearningCycle
	level       float64
	activeGoals []types.Goal

	// topicCursor round-robins over ranked goals across cycles.
	topicCursor int
	followUps   []string

	onCycleEnd func(types.LearningCycle)
}

// New wires a scheduler. All components are required; collaborators may be
// the static fakes when no external service is configured.
func New(cfg Config, cycles storage.CycleStore, registry *skills.Registry, memories *memory.Store, tracker *awareness.Tracker, goalMgr *goals.Manager, researcher collab.Researcher, discoverer collab.VideoDiscoverer, analyzer collab.VisionAnalyzer) (*Scheduler, error) {
	if cycles == nil || registry == nil || memories == nil || tracker == nil || goalMgr == nil {
		return nil, fmt.Errorf("cycle store, registry, memory store, tracker and goal manager are required")
	}
	if researcher == nil || discoverer == nil || analyzer == nil {
		return nil, fmt.Errorf("all three collaborators are required")
	}
	cfg.applyDefaults()
	return &Scheduler{
		cfg:        cfg,
		cycles:     cycles,
		registry:   registry,
		memories:   memories,
		tracker:    tracker,
		goals:      goalMgr,
		researcher: researcher,
		discoverer: discoverer,
		analyzer:   analyzer,
		phase:      types.PhaseIdle,
	}, nil
}

// OnCycleEnd registers a callback invoked with every finalized cycle record.
// Must be set before the scheduler starts running.
func (s *Scheduler) OnCycleEnd(fn func(types.LearningCycle)) {
	s.onCycleEnd = fn
}

// Status returns the committed state snapshot. It never blocks on a running
// cycle.
func (s *Scheduler) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st := Status{
		Phase:       s.phase,
		Level:       s.level,
		Skills:      s.registry.Snapshot(),
		ActiveGoals: append([]types.Goal(nil), s.activeGoals...),
	}
	if s.lastCycle != nil {
		c := *s.lastCycle
		st.LastCycle = &c
	}
	return st
}

// QueryMemory exposes the memory store's lazy query to callers that hold a
// scheduler handle (the status API, the inspect CLI).
func (s *Scheduler) QueryMemory(ctx context.Context, filter storage.MemoryFilter) iter.Seq2[*types.MemoryEntry, error] {
	return s.memories.Query(ctx, filter)
}

// RunForever runs cycles separated by interval until ctx is canceled.
// A failed cycle is logged and the loop keeps going.
func (s *Scheduler) RunForever(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ERROR: learning cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// gathered is the intermediate product of the collaborator phases.
type gathered struct {
	results []collab.SearchResult
	videos  []collab.VideoResult
	visions []*collab.VisionResult
}

// RunCycle executes one full learning cycle. Collaborator failures downgrade
// the outcome but never abort the remaining phases; a persistence failure
// ends the cycle (outcome failed) without touching previously committed
// state. The stop signal is honored at phase boundaries.
func (s *Scheduler) RunCycle(ctx context.Context) (*types.LearningCycle, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	cycle := &types.LearningCycle{
		StartedAt: time.Now().UTC(),
		Phase:     types.PhaseGathering,
		Outcome:   types.OutcomeFailed,
	}
	if err := s.cycles.Begin(ctx, cycle); err != nil {
		return nil, &storage.PersistenceError{Op: "cycles.begin", Err: err}
	}

	topic, goalSkill := s.selectTopic(ctx)
	cycle.Topic = topic
	log.Printf("cycle %d: topic %q (skill %q)", cycle.CycleID, topic, goalSkill)

	outcome := types.OutcomeSuccess
	var notes []string

	// Gathering
	s.setPhase(cycle, types.PhaseGathering)
	g := &gathered{}
	searchOutcome := s.gather(ctx, topic, g, &notes)
	outcome = outcome.Worst(searchOutcome)

	// VideoDiscovery: periodic, keyed to the durable cycle ID.
	if cycle.CycleID%int64(s.cfg.VideoEveryN) == 0 {
		if stopped := s.checkStop(ctx, cycle, outcome, &notes); stopped != nil {
			return stopped, nil
		}
		s.setPhase(cycle, types.PhaseVideoDiscovery)
		outcome = outcome.Worst(s.discoverVideos(ctx, topic, g, &notes))
	}

	if stopped := s.checkStop(ctx, cycle, outcome, &notes); stopped != nil {
		return stopped, nil
	}

	// Processing
	s.setPhase(cycle, types.PhaseProcessing)
	candidates, deltas := s.process(topic, goalSkill, g)

	if stopped := s.checkStop(ctx, cycle, outcome, &notes); stopped != nil {
		return stopped, nil
	}

	// SkillUpdate
	s.setPhase(cycle, types.PhaseSkillUpdate)
	if len(deltas) > 0 {
		if err := s.registry.ApplyDeltas(ctx, deltas); err != nil {
			return s.failCycle(cycle, notes, &storage.PersistenceError{Op: "skills.apply", Err: err})
		}
	}

	if stopped := s.checkStop(ctx, cycle, outcome, &notes); stopped != nil {
		return stopped, nil
	}

	// MemoryCommit
	s.setPhase(cycle, types.PhaseMemoryCommit)
	inserted := 0
	for _, cand := range candidates {
		_, fresh, err := s.memories.Insert(ctx, cand)
		if err != nil {
			return s.failCycle(cycle, notes, &storage.PersistenceError{Op: "memories.insert", Err: err})
		}
		if fresh {
			inserted++
		}
	}

	if stopped := s.checkStop(ctx, cycle, outcome, &notes); stopped != nil {
		return stopped, nil
	}

	// SelfAssessment: reflect, then recompute so the metric sees the
	// reflection.
	s.setPhase(cycle, types.PhaseSelfAssessment)
	if err := s.reflect(ctx, cycle, topic, goalSkill, inserted, len(candidates)); err != nil {
		return s.failCycle(cycle, notes, &storage.PersistenceError{Op: "memories.reflect", Err: err})
	}
	metric, err := s.tracker.Recompute(ctx)
	if err != nil {
		return s.failCycle(cycle, notes, &storage.PersistenceError{Op: "metrics.recompute", Err: err})
	}

	if stopped := s.checkStop(ctx, cycle, outcome, &notes); stopped != nil {
		return stopped, nil
	}

	// GoalAdjustment
	s.setPhase(cycle, types.PhaseGoalAdjustment)
	if err := s.adjustGoals(ctx); err != nil {
		return s.failCycle(cycle, notes, &storage.PersistenceError{Op: "goals.adjust", Err: err})
	}

	// Maintenance between cycles, never inside the learning phases.
	if s.cfg.MaintenanceEveryN > 0 && cycle.CycleID%int64(s.cfg.MaintenanceEveryN) == 0 {
		if err := s.maintenance(ctx); err != nil {
			log.Printf("WARNING: maintenance pass failed: %v", err)
			notes = append(notes, "maintenance: "+err.Error())
			outcome = outcome.Worst(types.OutcomePartial)
		}
	}

	return s.finalize(ctx, cycle, outcome, notes, metric.Level)
}

// selectTopic round-robins over the ranked active goals and falls back to
// the configured core topics when no goal is active. It returns the topic
// string and the goal's target skill ("" when the topic came from the
// fallback list).
func (s *Scheduler) selectTopic(ctx context.Context) (string, string) {
	if len(s.followUps) > 0 {
		topic := s.followUps[0]
		s.followUps = s.followUps[1:]
		return topic, ""
	}

	active, err := s.goals.Active(ctx)
	if err != nil {
		log.Printf("WARNING: could not load active goals for topic selection: %v", err)
	}
	if len(active) > 0 {
		goal := active[s.topicCursor%len(active)]
		s.topicCursor++
		return goal.TargetSkill, goal.TargetSkill
	}

	if len(s.cfg.CoreTopics) > 0 {
		topic := s.cfg.CoreTopics[s.topicCursor%len(s.cfg.CoreTopics)]
		s.topicCursor++
		return topic, ""
	}
	return "general knowledge", ""
}

// gather runs the configured number of research queries for the topic.
// Returns failed when nothing at all came back, partial when some queries
// failed, success otherwise.
func (s *Scheduler) gather(ctx context.Context, topic string, g *gathered, notes *[]string) types.CycleOutcome {
	queries := []string{topic}
	for i := 1; i < s.cfg.MaxQueriesPerCycle; i++ {
		queries = append(queries, fmt.Sprintf("%s key concepts %d", topic, i))
	}

	failures := 0
	for _, query := range queries {
		qctx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
		results, err := s.researcher.Search(qctx, query)
		cancel()
		if err != nil {
			failures++
			log.Printf("WARNING: research query %q failed: %v", query, err)
			*notes = append(*notes, "search: "+err.Error())
			continue
		}
		g.results = append(g.results, results...)
	}

	switch {
	case failures == len(queries):
		return types.OutcomeFailed
	case failures > 0:
		return types.OutcomePartial
	default:
		return types.OutcomeSuccess
	}
}

// discoverVideos finds candidate videos for the topic and analyzes the first
// one. A failure in either collaborator degrades the cycle to partial.
func (s *Scheduler) discoverVideos(ctx context.Context, topic string, g *gathered, notes *[]string) types.CycleOutcome {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DiscoverTimeout)
	videos, err := s.discoverer.Discover(dctx, topic)
	cancel()
	if err != nil {
		log.Printf("WARNING: video discovery for %q failed: %v", topic, err)
		*notes = append(*notes, "discover: "+err.Error())
		return types.OutcomePartial
	}
	g.videos = videos

	if len(videos) == 0 {
		return types.OutcomeSuccess
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AnalyzeTimeout)
	vision, err := s.analyzer.Analyze(actx, videos[0].URL)
	cancel()
	if err != nil {
		log.Printf("WARNING: vision analysis of %q failed: %v", videos[0].URL, err)
		*notes = append(*notes, "analyze: "+err.Error())
		return types.OutcomePartial
	}
	g.visions = append(g.visions, vision)
	return types.OutcomeSuccess
}

// process turns gathered content into memory candidates and skill deltas,
// and queues bounded follow-up queries for later cycles.
func (s *Scheduler) process(topic, goalSkill string, g *gathered) ([]memory.Candidate, map[string]float64) {
	assoc := []string{"comprehension"}
	if goalSkill != "" {
		assoc = append(assoc, goalSkill)
	}

	var candidates []memory.Candidate
	for _, result := range g.results {
		candidates = append(candidates, memory.Candidate{
			Source:       types.SourceSearch,
			Content:      result.Text,
			Importance:   0.5,
			Associations: assoc,
		})
	}
	for _, video := range g.videos {
		candidates = append(candidates, memory.Candidate{
			Source:       types.SourceVideo,
			Content:      fmt.Sprintf("%s (%s) %s", video.Title, video.Platform, video.URL),
			Importance:   0.4,
			Associations: append([]string{"curiosity"}, assoc...),
		})
		if len(s.followUps) < maxFollowUps {
			s.followUps = append(s.followUps, video.Title)
		}
	}
	for _, vision := range g.visions {
		content := vision.SummaryText
		if vision.ExtractedText != "" {
			content += " " + vision.ExtractedText
		}
		candidates = append(candidates, memory.Candidate{
			Source:       types.SourceVision,
			Content:      content,
			Importance:   clamp01(vision.QualityScore),
			Associations: assoc,
		})
	}

	deltas := make(map[string]float64)
	if n := len(g.results); n > 0 {
		deltas["comprehension"] = 0.01 * float64(n)
		if goalSkill != "" {
			deltas[goalSkill] = 0.02 * float64(n)
		}
	}
	if n := len(g.videos) + len(g.visions); n > 0 {
		deltas["curiosity"] = 0.015 * float64(n)
	}
	return candidates, deltas
}

// reflect writes the self-generated reflective entry for the cycle. The
// cycle ID in the content keeps each reflection distinct under dedup.
func (s *Scheduler) reflect(ctx context.Context, cycle *types.LearningCycle, topic, goalSkill string, inserted, total int) error {
	subject := topic
	if goalSkill != "" {
		subject = fmt.Sprintf("%s (goal: %s)", topic, goalSkill)
	}
	content := fmt.Sprintf(
		"Cycle %d reflection: studied %s; kept %d of %d gathered entries; average skill now %.3f across %d skills.",
		cycle.CycleID, subject, inserted, total, s.registry.Average(), s.registry.Len(),
	)

	assoc := []string{"reasoning"}
	if goalSkill != "" {
		assoc = append(assoc, goalSkill)
	}
	_, _, err := s.memories.Insert(ctx, memory.Candidate{
		Source:       types.SourceReflection,
		Content:      content,
		Importance:   0.6,
		Associations: assoc,
	})
	return err
}

// adjustGoals proposes goals for skills still under the satisfied threshold
// and reranks the active list.
func (s *Scheduler) adjustGoals(ctx context.Context) error {
	for _, rec := range s.registry.Snapshot() {
		if rec.Score >= s.goals.Threshold() {
			continue
		}
		if _, err := s.goals.ProposeGoal(ctx, rec.Name, ""); err != nil {
			return err
		}
	}
	_, err := s.goals.Rerank(ctx)
	return err
}

// maintenance runs the importance decay pass and, when configured, skill
// decay. It runs between learning phases only.
func (s *Scheduler) maintenance(ctx context.Context) error {
	updated, err := s.memories.ImportanceDecayPass(ctx)
	if err != nil {
		return fmt.Errorf("importance decay: %w", err)
	}
	if updated > 0 {
		log.Printf("maintenance: decayed importance of %d entries", updated)
	}
	if s.cfg.SkillDecayRate > 0 {
		if err := s.registry.Decay(ctx, s.cfg.SkillDecayRate); err != nil {
			return fmt.Errorf("skill decay: %w", err)
		}
	}
	return nil
}

// checkStop finalizes the cycle early when ctx was canceled at a phase
// boundary. It returns the finalized record, or nil when the cycle should
// continue.
func (s *Scheduler) checkStop(ctx context.Context, cycle *types.LearningCycle, outcome types.CycleOutcome, notes *[]string) *types.LearningCycle {
	if ctx.Err() == nil {
		return nil
	}
	*notes = append(*notes, "stopped at phase boundary")
	done, err := s.finalize(context.WithoutCancel(ctx), cycle, outcome.Worst(types.OutcomePartial), *notes, s.committedLevel())
	if err != nil {
		log.Printf("ERROR: could not finalize stopped cycle %d: %v", cycle.CycleID, err)
		return cycle
	}
	return done
}

// failCycle finalizes the cycle as failed after a persistence error and
// returns the error. Previously committed state is untouched.
func (s *Scheduler) failCycle(cycle *types.LearningCycle, notes []string, cause error) (*types.LearningCycle, error) {
	log.Printf("ERROR: cycle %d aborted: %v", cycle.CycleID, cause)
	notes = append(notes, cause.Error())
	if _, err := s.finalize(context.Background(), cycle, types.OutcomeFailed, notes, s.committedLevel()); err != nil {
		log.Printf("ERROR: could not finalize failed cycle %d: %v", cycle.CycleID, err)
	}
	return cycle, cause
}

// finalize writes the cycle's end record and publishes the committed
// snapshot read by Status.
func (s *Scheduler) finalize(ctx context.Context, cycle *types.LearningCycle, outcome types.CycleOutcome, notes []string, level float64) (*types.LearningCycle, error) {
	now := time.Now().UTC()
	cycle.EndedAt = &now
	cycle.Outcome = outcome
	cycle.Notes = strings.Join(notes, "; ")
	if err := s.cycles.Finalize(ctx, cycle); err != nil {
		return nil, &storage.PersistenceError{Op: "cycles.finalize", Err: err}
	}

	activeGoals, err := s.goals.Active(ctx)
	if err != nil {
		log.Printf("WARNING: could not load active goals for status: %v", err)
	}

	s.statusMu.Lock()
	s.phase = types.PhaseIdle
	c := *cycle
	s.lastCycle = &c
	s.level = level
	s.activeGoals = activeGoals
	s.statusMu.Unlock()

	log.Printf("cycle %d finished: outcome %s, level %.4f", cycle.CycleID, outcome, level)
	if s.onCycleEnd != nil {
		s.onCycleEnd(*cycle)
	}
	return cycle, nil
}

func (s *Scheduler) setPhase(cycle *types.LearningCycle, phase types.CyclePhase) {
	cycle.Phase = phase
	s.statusMu.Lock()
	s.phase = phase
	s.statusMu.Unlock()
}

func (s *Scheduler) committedLevel() float64 {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.level
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
