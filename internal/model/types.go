package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Run status values for TuneRunRecord.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped"
	RunStatusFailed    = "failed"
)

// TuneRunRecord is the archived description of one gain-tuning run.
type TuneRunRecord struct {
	VersionedRecord
	ID         string    `json:"id"`
	Variant    string    `json:"variant"`
	Seed       int64     `json:"seed"`
	Status     string    `json:"status"`
	Particles  int       `json:"particles"`
	Iterations int       `json:"iterations"`
	BestCost   float64   `json:"best_cost"`
	BoundsMin  []float64 `json:"bounds_min"`
	BoundsMax  []float64 `json:"bounds_max"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// BestGainsRecord holds the winning gain vector of a tuning run.
type BestGainsRecord struct {
	VersionedRecord
	RunID   string    `json:"run_id"`
	Variant string    `json:"variant"`
	Gains   []float64 `json:"gains"`
	Cost    float64   `json:"cost"`
}

// TrajectorySummary condenses a validation simulation of the tuned gains.
type TrajectorySummary struct {
	VersionedRecord
	RunID             string    `json:"run_id"`
	Samples           int       `json:"samples"`
	Duration          float64   `json:"duration"`
	Unstable          bool      `json:"unstable"`
	MaxAbsControl     float64   `json:"max_abs_control"`
	SingularityEvents int       `json:"singularity_events"`
	FinalState        []float64 `json:"final_state"`
}
