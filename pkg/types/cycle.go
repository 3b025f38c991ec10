package types

import "time"

// CyclePhase identifies a step in the learning cycle state machine.
type CyclePhase string

const (
	PhaseIdle           CyclePhase = "idle"
	PhaseGathering      CyclePhase = "gathering"
	PhaseVideoDiscovery CyclePhase = "video_discovery"
	PhaseProcessing     CyclePhase = "processing"
	PhaseSkillUpdate    CyclePhase = "skill_update"
	PhaseMemoryCommit   CyclePhase = "memory_commit"
	PhaseSelfAssessment CyclePhase = "self_assessment"
	PhaseGoalAdjustment CyclePhase = "goal_adjustment"
)

// CycleOutcome summarises how a completed cycle went.
type CycleOutcome string

const (
	OutcomeSuccess CycleOutcome = "success"
	OutcomePartial CycleOutcome = "partial"
	OutcomeFailed  CycleOutcome = "failed"
)

// severity orders outcomes from best to worst.
func (o CycleOutcome) severity() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomePartial:
		return 1
	case OutcomeFailed:
		return 2
	}
	return 2
}

// Worst returns the more severe of the two outcomes
// (failed > partial > success).
func (o CycleOutcome) Worst(other CycleOutcome) CycleOutcome {
	if other.severity() > o.severity() {
		return other
	}
	return o
}

// LearningCycle is the append-only record of one pass of the scheduler.
// CycleID is the sole counter used to decide periodic triggers: video
// discovery fires when CycleID mod N == 0.
type LearningCycle struct {
	CycleID   int64        `json:"cycle_id"` // Monotonic, assigned by the cycle store
	Phase     CyclePhase   `json:"phase"`    // Last phase reached
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Outcome   CycleOutcome `json:"outcome"` // Worst sub-phase result
	Topic     string       `json:"topic,omitempty"`
	Notes     string       `json:"notes,omitempty"` // Degradation details (failed phases, timeouts)
}
