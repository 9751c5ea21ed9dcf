package cost

import (
	"fmt"
	"math"

	"diptune/internal/simulate"
)

// Weights are the four cost-term weights. All must be >= 0.
type Weights struct {
	StateError    float64 `json:"state_error"`
	ControlEffort float64 `json:"control_effort"`
	ControlRate   float64 `json:"control_rate"`
	Stability     float64 `json:"stability"`
}

func DefaultWeights() Weights {
	return Weights{
		StateError:    50.0,
		ControlEffort: 0.2,
		ControlRate:   0.1,
		Stability:     0.1,
	}
}

func (w Weights) Validate() error {
	if w.StateError < 0 || w.ControlEffort < 0 || w.ControlRate < 0 || w.Stability < 0 {
		return fmt.Errorf("cost weights must be >= 0")
	}
	return nil
}

type Config struct {
	Weights            Weights
	InstabilityPenalty float64
	MaxCost            float64
}

func (c Config) withDefaults() Config {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.InstabilityPenalty == 0 {
		c.InstabilityPenalty = 1000.0
	}
	if c.MaxCost == 0 {
		c.MaxCost = 1e12
	}
	return c
}

// Evaluator reduces a trajectory to a single scalar cost.
type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) (*Evaluator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.InstabilityPenalty <= 0 {
		return nil, fmt.Errorf("instability penalty must be > 0")
	}
	if cfg.MaxCost <= cfg.InstabilityPenalty {
		return nil, fmt.Errorf("max cost must exceed the instability penalty")
	}
	return &Evaluator{cfg: cfg}, nil
}

func (e *Evaluator) Weights() Weights { return e.cfg.Weights }

// Evaluate computes
//
//	w_e*ISE + w_u*int(u^2) + w_du*int((du/dt)^2) + w_s*int(sigma^2)
//
// with every integral normalized by the horizon, plus a graded penalty
// when the trajectory ended early. The penalty grows linearly the earlier
// the failure occurred and always dominates any stable-run cost. A
// pathological (non-finite) cost maps to the configured maximum instead
// of propagating NaN into swarm statistics.
func (e *Evaluator) Evaluate(traj simulate.Trajectory) float64 {
	w := e.cfg.Weights

	var ise, effort, rate, surface float64
	dt := traj.Dt
	for i, sample := range traj.Samples {
		v := sample.State.Vector()
		for _, x := range v {
			ise += x * x * dt
		}
		effort += sample.Control * sample.Control * dt
		surface += sample.Sigma * sample.Sigma * dt
		if i > 0 {
			du := (sample.Control - traj.Samples[i-1].Control) / dt
			rate += du * du * dt
		}
	}
	if traj.Duration > 0 {
		ise /= traj.Duration
		effort /= traj.Duration
		rate /= traj.Duration
		surface /= traj.Duration
	}

	total := w.StateError*ise + w.ControlEffort*effort + w.ControlRate*rate + w.Stability*surface
	if traj.Unstable {
		// Linear-in-earliness grading: a failure at the start of the
		// horizon costs twice one at the very end.
		total += e.cfg.InstabilityPenalty * (1 + w.Stability) * (2 - traj.ElapsedFraction)
	}

	if math.IsNaN(total) || math.IsInf(total, 0) || total > e.cfg.MaxCost {
		return e.cfg.MaxCost
	}
	return total
}
