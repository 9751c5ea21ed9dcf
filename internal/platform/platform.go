package platform

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"diptune/internal/cost"
	"diptune/internal/model"
	"diptune/internal/plant"
	"diptune/internal/pso"
	"diptune/internal/simulate"
	"diptune/internal/smc"
	"diptune/internal/storage"
)

type Config struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type StopReason string

const (
	StopReasonShutdown StopReason = "shutdown"
	StopReasonUser     StopReason = "user_request"
	StopReasonFailure  StopReason = "failure"
)

// Platform owns the store, the background-task supervisor and the
// registry of active tuning runs.
type Platform struct {
	store storage.Store
	log   *slog.Logger
	sup   *Supervisor

	mu       sync.RWMutex
	started  bool
	runs     map[string]chan pso.Command
	lastStop StopReason
}

func New(cfg Config) (*Platform, error) {
	store, err := storage.NewStore(cfg.StoreKind, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		store: store,
		log:   logger,
		sup:   NewSupervisor(SupervisorPolicy{}),
		runs:  make(map[string]chan pso.Command),
	}, nil
}

func (p *Platform) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	p.started = true
	return nil
}

func (p *Platform) Store() storage.Store { return p.store }

func (p *Platform) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Platform) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStop
}

func (p *Platform) Shutdown() {
	p.StopWithReason(StopReasonShutdown)
}

func (p *Platform) StopWithReason(reason StopReason) {
	p.mu.Lock()
	for id, control := range p.runs {
		select {
		case control <- pso.CommandStop:
		default:
			p.log.Warn("run control channel full during shutdown", "run_id", id)
		}
	}
	p.lastStop = reason
	p.started = false
	p.mu.Unlock()

	p.sup.StopAll()
	if err := storage.CloseIfSupported(p.store); err != nil {
		p.log.Warn("closing store", "err", err)
	}
}

// TuningConfig describes one gain-tuning run end to end: the plant, the
// controller variant, the closed-loop simulation and the swarm search.
type TuningConfig struct {
	RunID   string
	Variant string

	Plant        plant.Params
	InitialState plant.State

	Dt            float64
	Duration      float64
	Integrator    plant.Integrator
	MaxForce      float64
	BoundaryLayer float64
	SwitchMethod  string

	Optimizer   pso.Config
	Cost        cost.Config
	Uncertainty cost.UncertaintyConfig
}

type TuningResult struct {
	RunID      string
	Variant    string
	BestGains  []float64
	BestCost   float64
	History    []float64
	Iterations int
	Stopped    bool
	Summary    model.TrajectorySummary
}

// DefaultBounds returns the search-space limits used when a run does not
// supply its own: angle gains in [1, 100], surface slopes in [1, 20],
// the switching gain in [5, 150] and the derivative or adaptation gain
// in [0.1, 10].
func DefaultBounds(variant string) (pso.Bounds, error) {
	n, err := smc.GainCount(variant)
	if err != nil {
		return pso.Bounds{}, err
	}
	switch n {
	case 6:
		return pso.Bounds{
			Min: []float64{1, 1, 1, 1, 5, 0.1},
			Max: []float64{100, 100, 20, 20, 150, 10},
		}, nil
	case 5:
		return pso.Bounds{
			Min: []float64{1, 1, 1, 1, 0.1},
			Max: []float64{100, 100, 20, 20, 10},
		}, nil
	case 4:
		return pso.Bounds{
			Min: []float64{1, 1, 1, 1},
			Max: []float64{100, 100, 20, 20},
		}, nil
	default:
		return pso.Bounds{}, fmt.Errorf("no default bounds for %d gains", n)
	}
}

// RunTuning executes a full tuning run: swarm search over the gain space,
// persistence of the run record, cost history and winning gains, and a
// validation simulation of the tuned controller on the nominal plant.
func (p *Platform) RunTuning(ctx context.Context, cfg TuningConfig) (TuningResult, error) {
	if !p.Started() {
		return TuningResult{}, fmt.Errorf("platform is not initialized")
	}

	variant, ok := smc.CanonicalVariant(cfg.Variant)
	if !ok {
		return TuningResult{}, fmt.Errorf("unknown controller variant %q (available: %v)", cfg.Variant, smc.Variants())
	}
	if cfg.Plant == (plant.Params{}) {
		cfg.Plant = plant.DefaultParams()
	}
	if cfg.Dt == 0 {
		cfg.Dt = 0.01
	}
	if cfg.Duration == 0 {
		cfg.Duration = 5.0
	}
	if len(cfg.Optimizer.Bounds.Min) == 0 {
		bounds, err := DefaultBounds(variant)
		if err != nil {
			return TuningResult{}, err
		}
		cfg.Optimizer.Bounds = bounds
	}
	if n, _ := smc.GainCount(variant); len(cfg.Optimizer.Bounds.Min) != n {
		return TuningResult{}, fmt.Errorf("%s needs %d-dimensional bounds, got %d", variant, n, len(cfg.Optimizer.Bounds.Min))
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	control := cfg.Optimizer.Control
	if control == nil {
		control = make(chan pso.Command, 16)
		cfg.Optimizer.Control = control
	}
	if err := p.registerRunControl(runID, control); err != nil {
		return TuningResult{}, err
	}
	defer p.unregisterRunControl(runID)

	tuner, err := pso.NewTuner(cfg.Optimizer)
	if err != nil {
		return TuningResult{}, err
	}
	objective, err := p.buildObjective(cfg, variant)
	if err != nil {
		return TuningResult{}, err
	}

	record := model.TuneRunRecord{
		VersionedRecord: currentVersion(),
		ID:              runID,
		Variant:         variant,
		Seed:            cfg.Optimizer.Seed,
		Status:          model.RunStatusRunning,
		BoundsMin:       cfg.Optimizer.Bounds.Min,
		BoundsMax:       cfg.Optimizer.Bounds.Max,
		StartedAt:       time.Now().UTC(),
	}
	if err := p.store.SaveTuneRun(ctx, record); err != nil {
		return TuningResult{}, fmt.Errorf("save run record: %w", err)
	}

	p.log.Info("tuning run started", "run_id", runID, "variant", variant, "seed", cfg.Optimizer.Seed)

	result, err := tuner.Run(ctx, objective)
	if err != nil {
		record.Status = model.RunStatusFailed
		record.FinishedAt = time.Now().UTC()
		// Best effort: the original error matters more than the save.
		_ = p.store.SaveTuneRun(context.WithoutCancel(ctx), record)
		return TuningResult{}, err
	}

	record.Status = model.RunStatusCompleted
	if result.Stopped {
		record.Status = model.RunStatusStopped
	}
	record.Particles = tuner.Particles()
	record.Iterations = result.Iterations
	record.BestCost = result.BestCost
	record.FinishedAt = time.Now().UTC()

	summary, err := p.validateGains(ctx, cfg, variant, runID, result.BestGains)
	if err != nil {
		p.log.Warn("validation simulation failed", "run_id", runID, "err", err)
	}

	if err := p.store.SaveTuneRun(ctx, record); err != nil {
		return TuningResult{}, fmt.Errorf("save run record: %w", err)
	}
	if err := p.store.SaveCostHistory(ctx, runID, result.History); err != nil {
		return TuningResult{}, fmt.Errorf("save cost history: %w", err)
	}
	if err := p.store.SaveBestGains(ctx, model.BestGainsRecord{
		VersionedRecord: currentVersion(),
		RunID:           runID,
		Variant:         variant,
		Gains:           result.BestGains,
		Cost:            result.BestCost,
	}); err != nil {
		return TuningResult{}, fmt.Errorf("save best gains: %w", err)
	}

	p.log.Info("tuning run finished", "run_id", runID, "status", record.Status,
		"best_cost", result.BestCost, "iterations", result.Iterations)

	return TuningResult{
		RunID:      runID,
		Variant:    variant,
		BestGains:  result.BestGains,
		BestCost:   result.BestCost,
		History:    result.History,
		Iterations: result.Iterations,
		Stopped:    result.Stopped,
		Summary:    summary,
	}, nil
}

// StartTuningTask launches a tuning run under the supervisor. The run is
// restarted on failure per the supervisor policy; onDone receives the
// outcome of the final attempt.
func (p *Platform) StartTuningTask(name string, cfg TuningConfig, onDone func(TuningResult, error)) error {
	if !p.Started() {
		return fmt.Errorf("platform is not initialized")
	}
	return p.sup.StartSpec(SupervisorChildSpec{
		Name:    name,
		Restart: SupervisorRestartTransient,
	}, func(ctx context.Context) error {
		result, err := p.RunTuning(ctx, cfg)
		if onDone != nil {
			onDone(result, err)
		}
		return err
	})
}

// SupervisedTasks reports the background tuning tasks currently running.
func (p *Platform) SupervisedTasks() []string { return p.sup.Tasks() }

// buildObjective captures the uncertainty draws up front so that every
// candidate is scored against the same perturbed plants and parallel
// evaluation stays deterministic.
func (p *Platform) buildObjective(cfg TuningConfig, variant string) (pso.Objective, error) {
	draws, err := cost.Draws(cfg.Plant, cfg.Uncertainty, cfg.Optimizer.Seed)
	if err != nil {
		return nil, err
	}
	models := make([]*plant.Model, len(draws))
	for i, params := range draws {
		models[i], err = plant.NewModel(params)
		if err != nil {
			return nil, fmt.Errorf("perturbed plant %d: %w", i, err)
		}
	}
	evaluator, err := cost.NewEvaluator(cfg.Cost)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, gains []float64) (float64, error) {
		costs := make([]float64, len(models))
		for i, m := range models {
			ctrl, err := smc.Build(variant, gains, smc.Config{
				Model:         m,
				Dt:            cfg.Dt,
				MaxForce:      cfg.MaxForce,
				BoundaryLayer: cfg.BoundaryLayer,
				SwitchMethod:  cfg.SwitchMethod,
			})
			if err != nil {
				return 0, err
			}
			traj, err := simulate.Run(ctx, simulate.Config{
				Model:      m,
				Dt:         cfg.Dt,
				Duration:   cfg.Duration,
				Integrator: cfg.Integrator,
			}, ctrl, cfg.InitialState)
			if err != nil {
				return 0, err
			}
			costs[i] = evaluator.Evaluate(traj)
		}
		return cost.Aggregate(costs, cfg.Uncertainty.Aggregate), nil
	}, nil
}

func (p *Platform) validateGains(ctx context.Context, cfg TuningConfig, variant, runID string, gains []float64) (model.TrajectorySummary, error) {
	if len(gains) == 0 {
		return model.TrajectorySummary{}, fmt.Errorf("no gains to validate")
	}
	nominal, err := plant.NewModel(cfg.Plant)
	if err != nil {
		return model.TrajectorySummary{}, err
	}
	ctrl, err := smc.Build(variant, gains, smc.Config{
		Model:         nominal,
		Dt:            cfg.Dt,
		MaxForce:      cfg.MaxForce,
		BoundaryLayer: cfg.BoundaryLayer,
		SwitchMethod:  cfg.SwitchMethod,
	})
	if err != nil {
		return model.TrajectorySummary{}, err
	}
	traj, err := simulate.Run(ctx, simulate.Config{
		Model:      nominal,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Integrator: cfg.Integrator,
	}, ctrl, cfg.InitialState)
	if err != nil {
		return model.TrajectorySummary{}, err
	}

	summary := summarize(runID, traj)
	if err := p.store.SaveTrajectorySummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("save trajectory summary: %w", err)
	}
	return summary, nil
}

func summarize(runID string, traj simulate.Trajectory) model.TrajectorySummary {
	maxAbs := 0.0
	for _, sample := range traj.Samples {
		if a := math.Abs(sample.Control); a > maxAbs {
			maxAbs = a
		}
	}
	summary := model.TrajectorySummary{
		VersionedRecord:   currentVersion(),
		RunID:             runID,
		Samples:           len(traj.Samples),
		Duration:          traj.Duration,
		Unstable:          traj.Unstable,
		MaxAbsControl:     maxAbs,
		SingularityEvents: traj.SingularityEvents,
	}
	if n := len(traj.Samples); n > 0 {
		final := traj.Samples[n-1].State.Vector()
		summary.FinalState = final[:]
	}
	return summary
}

func (p *Platform) PauseRun(runID string) error {
	return p.sendRunCommand(runID, pso.CommandPause)
}

func (p *Platform) ContinueRun(runID string) error {
	return p.sendRunCommand(runID, pso.CommandContinue)
}

func (p *Platform) StopRun(runID string) error {
	return p.sendRunCommand(runID, pso.CommandStop)
}

func (p *Platform) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	return ids
}

func (p *Platform) registerRunControl(runID string, control chan pso.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("platform is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = control
	return nil
}

func (p *Platform) unregisterRunControl(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Platform) sendRunCommand(runID string, cmd pso.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}
