package cost

import (
	"math"
	"testing"

	"diptune/internal/plant"
	"diptune/internal/simulate"
)

func fixedTrajectory() simulate.Trajectory {
	traj := simulate.Trajectory{Dt: 0.01, Duration: 0.05, ElapsedFraction: 1.0}
	controls := []float64{10, -8, 6, -4, 2}
	sigmas := []float64{0.5, 0.4, 0.3, 0.2, 0.1}
	for i := range controls {
		traj.Samples = append(traj.Samples, simulate.Sample{
			T:       float64(i) * traj.Dt,
			State:   plant.State{Theta1: 0.05, Theta2: -0.03},
			Control: controls[i],
			Sigma:   sigmas[i],
		})
	}
	return traj
}

func TestEvaluatorRejectsInvalidConfig(t *testing.T) {
	if _, err := NewEvaluator(Config{Weights: Weights{StateError: -1}}); err == nil {
		t.Fatalf("expected error for negative weight")
	}
	if _, err := NewEvaluator(Config{InstabilityPenalty: -5}); err == nil {
		t.Fatalf("expected error for negative penalty")
	}
	if _, err := NewEvaluator(Config{InstabilityPenalty: 10, MaxCost: 5}); err == nil {
		t.Fatalf("expected error when max cost does not exceed penalty")
	}
	if _, err := NewEvaluator(Config{}); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
}

func TestCostMonotoneInControlEffortWeight(t *testing.T) {
	traj := fixedTrajectory()

	low, err := NewEvaluator(Config{Weights: Weights{StateError: 1, ControlEffort: 0.1, ControlRate: 0.1, Stability: 0.1}})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	high, err := NewEvaluator(Config{Weights: Weights{StateError: 1, ControlEffort: 1.0, ControlRate: 0.1, Stability: 0.1}})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	if lc, hc := low.Evaluate(traj), high.Evaluate(traj); hc <= lc {
		t.Fatalf("cost must grow with control-effort weight: low=%v high=%v", lc, hc)
	}
}

func TestInstabilityPenaltyDominatesAndGrades(t *testing.T) {
	ev, err := NewEvaluator(Config{})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	stable := fixedTrajectory()
	stableCost := ev.Evaluate(stable)

	late := fixedTrajectory()
	late.Unstable = true
	late.ElapsedFraction = 0.9
	lateCost := ev.Evaluate(late)

	early := fixedTrajectory()
	early.Unstable = true
	early.ElapsedFraction = 0.1
	earlyCost := ev.Evaluate(early)

	if lateCost <= stableCost {
		t.Fatalf("unstable cost must dominate stable cost: stable=%v unstable=%v", stableCost, lateCost)
	}
	if earlyCost <= lateCost {
		t.Fatalf("earlier failure must cost more: early=%v late=%v", earlyCost, lateCost)
	}
	if lateCost-stableCost < ev.cfg.InstabilityPenalty {
		t.Fatalf("penalty too small to dominate: delta=%v", lateCost-stableCost)
	}
}

func TestPathologicalCostMapsToMaxCost(t *testing.T) {
	ev, err := NewEvaluator(Config{})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	traj := fixedTrajectory()
	traj.Samples[2].Control = math.NaN()
	if got := ev.Evaluate(traj); got != ev.cfg.MaxCost {
		t.Fatalf("NaN trajectory must map to max cost, got %v", got)
	}

	traj = fixedTrajectory()
	traj.Samples[1].State.XDot = math.Inf(1)
	if got := ev.Evaluate(traj); got != ev.cfg.MaxCost {
		t.Fatalf("Inf trajectory must map to max cost, got %v", got)
	}
}

func TestUncertaintyDrawsDeterministic(t *testing.T) {
	base := plant.DefaultParams()
	cfg := UncertaintyConfig{Evals: 5, Scale: 0.1}

	a, err := Draws(base, cfg, 42)
	if err != nil {
		t.Fatalf("draws: %v", err)
	}
	b, err := Draws(base, cfg, 42)
	if err != nil {
		t.Fatalf("draws: %v", err)
	}
	if len(a) != 5 || len(b) != 5 {
		t.Fatalf("draw count mismatch: %d %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draws differ at %d with identical seed", i)
		}
		if err := a[i].Validate(); err != nil {
			t.Fatalf("perturbed params invalid at %d: %v", i, err)
		}
	}

	c, err := Draws(base, cfg, 43)
	if err != nil {
		t.Fatalf("draws: %v", err)
	}
	if a[0] == c[0] {
		t.Fatalf("different seeds should perturb differently")
	}
}

func TestUncertaintyDisabledReturnsNominal(t *testing.T) {
	base := plant.DefaultParams()
	draws, err := Draws(base, UncertaintyConfig{}, 7)
	if err != nil {
		t.Fatalf("draws: %v", err)
	}
	if len(draws) != 1 || draws[0] != base {
		t.Fatalf("disabled uncertainty must return the nominal plant")
	}
}

func TestAggregate(t *testing.T) {
	costs := []float64{1, 3, 2}
	if got := Aggregate(costs, AggregateMean); got != 2 {
		t.Fatalf("mean: got %v want 2", got)
	}
	if got := Aggregate(costs, AggregateWorst); got != 3 {
		t.Fatalf("worst: got %v want 3", got)
	}
	if got := Aggregate(nil, AggregateMean); !math.IsInf(got, 1) {
		t.Fatalf("empty aggregate must be +Inf, got %v", got)
	}
}
