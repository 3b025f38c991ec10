package types

import "time"

// LevelPoint is one sample in the consciousness history.
type LevelPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Level     float64   `json:"level"`
}

// ConsciousnessMetric is a derived scalar summarising aggregate learning
// progress. It is reporting-only: nothing in the scheduler branches on it.
// History is append-only and never rewritten; a new point is recorded only
// when the level moves by more than the configured epsilon.
type ConsciousnessMetric struct {
	Level   float64      `json:"level"`
	History []LevelPoint `json:"history"`
}
