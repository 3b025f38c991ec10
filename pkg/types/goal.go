package types

import (
	"fmt"
	"time"
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	// GoalActive marks a goal still being pursued.
	GoalActive GoalStatus = "active"
	// GoalSatisfied marks a goal whose target skill crossed the threshold.
	GoalSatisfied GoalStatus = "satisfied"
	// GoalAbandoned marks a goal retired without being satisfied.
	GoalAbandoned GoalStatus = "abandoned"
)

// Valid reports whether s is a known goal status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalSatisfied, GoalAbandoned:
		return true
	}
	return false
}

// Goal is a prioritized target tied to improving one skill's score.
// At most one active goal may exist per target skill at any time.
type Goal struct {
	ID          string     `json:"id"`           // Unique identifier (format: goal:<uuid>)
	Description string     `json:"description"`  // Human-readable statement of intent
	TargetSkill string     `json:"target_skill"` // Skill this goal aims to improve
	Priority    float64    `json:"priority"`     // Skill gap at last rerank (higher = more urgent)
	Status      GoalStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks that the goal is well-formed for storage.
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("goal ID is required")
	}
	if g.TargetSkill == "" {
		return fmt.Errorf("goal target skill is required")
	}
	if !g.Status.Valid() {
		return fmt.Errorf("unknown goal status %q", g.Status)
	}
	return nil
}
