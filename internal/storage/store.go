package storage

import (
	"context"

	"diptune/internal/model"
)

// Store defines persistence operations for the tuning-run archive.
type Store interface {
	Init(ctx context.Context) error
	SaveTuneRun(ctx context.Context, run model.TuneRunRecord) error
	GetTuneRun(ctx context.Context, id string) (model.TuneRunRecord, bool, error)
	ListTuneRuns(ctx context.Context) ([]model.TuneRunRecord, error)
	SaveCostHistory(ctx context.Context, runID string, history []float64) error
	GetCostHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveBestGains(ctx context.Context, record model.BestGainsRecord) error
	GetBestGains(ctx context.Context, runID string) (model.BestGainsRecord, bool, error)
	SaveTrajectorySummary(ctx context.Context, summary model.TrajectorySummary) error
	GetTrajectorySummary(ctx context.Context, runID string) (model.TrajectorySummary, bool, error)
}
