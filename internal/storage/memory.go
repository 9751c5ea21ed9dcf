package storage

import (
	"context"
	"sort"
	"sync"

	"diptune/internal/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]model.TuneRunRecord
	history   map[string][]float64
	bestGains map[string]model.BestGainsRecord
	summaries map[string]model.TrajectorySummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.TuneRunRecord)
	s.history = make(map[string][]float64)
	s.bestGains = make(map[string]model.BestGainsRecord)
	s.summaries = make(map[string]model.TrajectorySummary)
	return nil
}

func (s *MemoryStore) SaveTuneRun(_ context.Context, run model.TuneRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.BoundsMin = append([]float64(nil), run.BoundsMin...)
	run.BoundsMax = append([]float64(nil), run.BoundsMax...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetTuneRun(_ context.Context, id string) (model.TuneRunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.TuneRunRecord{}, false, nil
	}
	run.BoundsMin = append([]float64(nil), run.BoundsMin...)
	run.BoundsMax = append([]float64(nil), run.BoundsMax...)
	return run, true, nil
}

func (s *MemoryStore) ListTuneRuns(_ context.Context) ([]model.TuneRunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.TuneRunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.BoundsMin = append([]float64(nil), run.BoundsMin...)
		run.BoundsMax = append([]float64(nil), run.BoundsMax...)
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}

func (s *MemoryStore) SaveCostHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := append([]float64(nil), history...)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetCostHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := append([]float64(nil), history...)
	return copied, true, nil
}

func (s *MemoryStore) SaveBestGains(_ context.Context, record model.BestGainsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Gains = append([]float64(nil), record.Gains...)
	s.bestGains[record.RunID] = record
	return nil
}

func (s *MemoryStore) GetBestGains(_ context.Context, runID string) (model.BestGainsRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.bestGains[runID]
	if !ok {
		return model.BestGainsRecord{}, false, nil
	}
	record.Gains = append([]float64(nil), record.Gains...)
	return record, true, nil
}

func (s *MemoryStore) SaveTrajectorySummary(_ context.Context, summary model.TrajectorySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary.FinalState = append([]float64(nil), summary.FinalState...)
	s.summaries[summary.RunID] = summary
	return nil
}

func (s *MemoryStore) GetTrajectorySummary(_ context.Context, runID string) (model.TrajectorySummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[runID]
	if !ok {
		return model.TrajectorySummary{}, false, nil
	}
	summary.FinalState = append([]float64(nil), summary.FinalState...)
	return summary, true, nil
}
