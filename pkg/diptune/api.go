package diptune

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"diptune/internal/cost"
	"diptune/internal/plant"
	"diptune/internal/platform"
	"diptune/internal/pso"
	"diptune/internal/simulate"
	"diptune/internal/smc"
	"diptune/internal/storage"
)

const (
	defaultDBPath     = "diptune.db"
	defaultExportsDir = "exports"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	Logger     *slog.Logger
}

// Client is the embedding-friendly entry point: it owns a platform
// instance and exposes tuning, simulation and archive queries with
// plain types.
type Client struct {
	platform   *platform.Platform
	exportsDir string
}

type TuneRequest struct {
	Variant string
	RunID   string
	Seed    int64

	Particles  int
	Iterations int
	Workers    int

	Inertia       float64
	InertiaFinal  float64
	Cognitive     float64
	Social        float64
	VelocityClamp float64

	StagnationWindow int

	BoundsMin []float64
	BoundsMax []float64

	Dt            float64
	Duration      float64
	Integrator    string
	MaxForce      float64
	BoundaryLayer float64
	SwitchMethod  string
	InitialState  []float64

	StateErrorWeight  float64
	ControlWeight     float64
	ControlRateWeight float64
	StabilityWeight   float64

	UncertaintyEvals     int
	UncertaintyScale     float64
	UncertaintyAggregate string
}

type TuneResult struct {
	RunID         string
	Variant       string
	BestGains     []float64
	BestCost      float64
	History       []float64
	Iterations    int
	Stopped       bool
	Unstable      bool
	MaxAbsControl float64
}

type SimulateRequest struct {
	Variant       string
	Gains         []float64
	Dt            float64
	Duration      float64
	Integrator    string
	MaxForce      float64
	BoundaryLayer float64
	SwitchMethod  string
	InitialState  []float64
}

// TrajectoryPoint is one closed-loop sample: time, the six-component
// state, the applied force and the sliding variable.
type TrajectoryPoint struct {
	T       float64    `json:"t"`
	State   [6]float64 `json:"state"`
	Control float64    `json:"control"`
	Sigma   float64    `json:"sigma"`
}

type SimulateResult struct {
	Points   []TrajectoryPoint
	Unstable bool
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Variant      string
	Seed         int64
	Particles    int
	Iterations   int
	Status       string
	BestCost     float64
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type RunDetail struct {
	Run     RunItem
	Gains   []float64
	History []float64
	Summary *TrajectorySummaryItem
}

type TrajectorySummaryItem struct {
	Samples           int
	Duration          float64
	Unstable          bool
	MaxAbsControl     float64
	SingularityEvents int
	FinalState        []float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	p, err := platform.New(platform.Config{
		StoreKind: storeKind,
		DBPath:    dbPath,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		platform:   p,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	c.platform.Shutdown()
	return nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.platform.Init(ctx)
}

// Variants lists the canonical controller variant names.
func (c *Client) Variants() []string { return smc.Variants() }

func (c *Client) Tune(ctx context.Context, req TuneRequest) (TuneResult, error) {
	if req.Variant == "" {
		req.Variant = "classical_smc"
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}

	initial, err := stateFromSlice(req.InitialState)
	if err != nil {
		return TuneResult{}, err
	}
	integrator, err := plant.ParseIntegrator(req.Integrator)
	if err != nil {
		return TuneResult{}, err
	}

	weights := cost.DefaultWeights()
	if req.StateErrorWeight != 0 || req.ControlWeight != 0 || req.ControlRateWeight != 0 || req.StabilityWeight != 0 {
		weights = cost.Weights{
			StateError:    req.StateErrorWeight,
			ControlEffort: req.ControlWeight,
			ControlRate:   req.ControlRateWeight,
			Stability:     req.StabilityWeight,
		}
	}

	cfg := platform.TuningConfig{
		RunID:         req.RunID,
		Variant:       req.Variant,
		InitialState:  initial,
		Dt:            req.Dt,
		Duration:      req.Duration,
		Integrator:    integrator,
		MaxForce:      req.MaxForce,
		BoundaryLayer: req.BoundaryLayer,
		SwitchMethod:  req.SwitchMethod,
		Optimizer: pso.Config{
			Bounds:           pso.Bounds{Min: req.BoundsMin, Max: req.BoundsMax},
			Particles:        req.Particles,
			Iterations:       req.Iterations,
			Inertia:          req.Inertia,
			InertiaFinal:     req.InertiaFinal,
			Cognitive:        req.Cognitive,
			Social:           req.Social,
			VelocityClamp:    req.VelocityClamp,
			Seed:             req.Seed,
			Workers:          req.Workers,
			StagnationWindow: req.StagnationWindow,
		},
		Cost: cost.Config{Weights: weights},
		Uncertainty: cost.UncertaintyConfig{
			Evals:     req.UncertaintyEvals,
			Scale:     req.UncertaintyScale,
			Aggregate: req.UncertaintyAggregate,
		},
	}

	result, err := c.platform.RunTuning(ctx, cfg)
	if err != nil {
		return TuneResult{}, err
	}
	return TuneResult{
		RunID:         result.RunID,
		Variant:       result.Variant,
		BestGains:     result.BestGains,
		BestCost:      result.BestCost,
		History:       result.History,
		Iterations:    result.Iterations,
		Stopped:       result.Stopped,
		Unstable:      result.Summary.Unstable,
		MaxAbsControl: result.Summary.MaxAbsControl,
	}, nil
}

func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateResult, error) {
	if req.Variant == "" {
		req.Variant = "classical_smc"
	}
	if len(req.Gains) == 0 {
		return SimulateResult{}, fmt.Errorf("gains are required")
	}

	initial, err := stateFromSlice(req.InitialState)
	if err != nil {
		return SimulateResult{}, err
	}
	integrator, err := plant.ParseIntegrator(req.Integrator)
	if err != nil {
		return SimulateResult{}, err
	}

	model, err := plant.NewModel(plant.DefaultParams())
	if err != nil {
		return SimulateResult{}, err
	}
	ctrl, err := smc.Build(req.Variant, req.Gains, smc.Config{
		Model:         model,
		Dt:            req.Dt,
		MaxForce:      req.MaxForce,
		BoundaryLayer: req.BoundaryLayer,
		SwitchMethod:  req.SwitchMethod,
	})
	if err != nil {
		return SimulateResult{}, err
	}

	traj, err := simulate.Run(ctx, simulate.Config{
		Model:      model,
		Dt:         req.Dt,
		Duration:   req.Duration,
		Integrator: integrator,
	}, ctrl, initial)
	if err != nil {
		return SimulateResult{}, err
	}

	points := make([]TrajectoryPoint, 0, len(traj.Samples))
	for _, sample := range traj.Samples {
		points = append(points, TrajectoryPoint{
			T:       sample.T,
			State:   sample.State.Vector(),
			Control: sample.Control,
			Sigma:   sample.Sigma,
		})
	}
	return SimulateResult{Points: points, Unstable: traj.Unstable}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	runs, err := c.platform.Store().ListTuneRuns(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, RunItem{
			RunID:        run.ID,
			CreatedAtUTC: run.StartedAt.UTC().Format(time.RFC3339),
			Variant:      run.Variant,
			Seed:         run.Seed,
			Particles:    run.Particles,
			Iterations:   run.Iterations,
			Status:       run.Status,
			BestCost:     run.BestCost,
		})
	}
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[len(items)-req.Limit:]
	}
	return items, nil
}

func (c *Client) Show(ctx context.Context, req ShowRequest) (RunDetail, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return RunDetail{}, err
	}

	run, ok, err := c.platform.Store().GetTuneRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		return RunDetail{}, fmt.Errorf("run not found: %s", runID)
	}

	detail := RunDetail{Run: RunItem{
		RunID:        run.ID,
		CreatedAtUTC: run.StartedAt.UTC().Format(time.RFC3339),
		Variant:      run.Variant,
		Seed:         run.Seed,
		Particles:    run.Particles,
		Iterations:   run.Iterations,
		Status:       run.Status,
		BestCost:     run.BestCost,
	}}

	if gains, ok, err := c.platform.Store().GetBestGains(ctx, runID); err != nil {
		return RunDetail{}, err
	} else if ok {
		detail.Gains = gains.Gains
	}
	if history, ok, err := c.platform.Store().GetCostHistory(ctx, runID); err != nil {
		return RunDetail{}, err
	} else if ok {
		detail.History = history
	}
	if summary, ok, err := c.platform.Store().GetTrajectorySummary(ctx, runID); err != nil {
		return RunDetail{}, err
	} else if ok {
		detail.Summary = &TrajectorySummaryItem{
			Samples:           summary.Samples,
			Duration:          summary.Duration,
			Unstable:          summary.Unstable,
			MaxAbsControl:     summary.MaxAbsControl,
			SingularityEvents: summary.SingularityEvents,
			FinalState:        summary.FinalState,
		}
	}
	return detail, nil
}

// Export writes the archived artifacts of a run as JSON files under
// <out>/<run-id>/.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	detail, err := c.Show(ctx, ShowRequest{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return ExportSummary{}, err
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir := filepath.Join(outDir, detail.Run.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportSummary{}, err
	}

	files := map[string]any{
		"run.json":     detail.Run,
		"gains.json":   detail.Gains,
		"history.json": detail.History,
	}
	if detail.Summary != nil {
		files["summary.json"] = detail.Summary
	}
	for name, payload := range files {
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return ExportSummary{}, err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return ExportSummary{}, err
		}
	}

	return ExportSummary{RunID: detail.Run.RunID, Directory: dir}, nil
}

func (c *Client) PauseRun(runID string) error    { return c.platform.PauseRun(runID) }
func (c *Client) ContinueRun(runID string) error { return c.platform.ContinueRun(runID) }
func (c *Client) StopRun(runID string) error     { return c.platform.StopRun(runID) }

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", fmt.Errorf("run id is required (or pass latest)")
	}
	runs, err := c.platform.Store().ListTuneRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs archived")
	}
	return runs[len(runs)-1].ID, nil
}

// stateFromSlice maps an optional 6-element [x, th1, th2, xdot, th1dot,
// th2dot] slice to a state. Empty input uses the standard tuning
// perturbation: both pendulums slightly off upright, at rest.
func stateFromSlice(values []float64) (plant.State, error) {
	if len(values) == 0 {
		return plant.State{Theta1: 0.1, Theta2: -0.05}, nil
	}
	if len(values) != 6 {
		return plant.State{}, fmt.Errorf("initial state needs 6 components, got %d", len(values))
	}
	var vec [6]float64
	copy(vec[:], values)
	return plant.StateFromVector(vec), nil
}
