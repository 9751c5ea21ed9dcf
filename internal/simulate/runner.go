package simulate

import (
	"context"
	"fmt"
	"math"

	"diptune/internal/plant"
	"diptune/internal/smc"
)

// Config describes one closed-loop run.
type Config struct {
	Model      *plant.Model
	Dt         float64
	Duration   float64
	Integrator plant.Integrator

	// Instability guard bounds. A state outside these bounds (or a
	// non-finite one) terminates the trajectory early.
	MaxCartPos  float64
	MaxAngle    float64
	MaxVelocity float64
}

func (c Config) withDefaults() Config {
	if c.Dt == 0 {
		c.Dt = 0.01
	}
	if c.Duration == 0 {
		c.Duration = 5.0
	}
	if c.Integrator == "" {
		c.Integrator = plant.IntegratorRK4
	}
	if c.MaxCartPos == 0 {
		c.MaxCartPos = 2.5
	}
	if c.MaxAngle == 0 {
		c.MaxAngle = math.Pi / 2
	}
	if c.MaxVelocity == 0 {
		c.MaxVelocity = 50
	}
	return c
}

func (c Config) validate() error {
	if c.Model == nil {
		return fmt.Errorf("plant model is required")
	}
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be > 0")
	}
	if c.Duration < c.Dt {
		return fmt.Errorf("duration must cover at least one step")
	}
	if c.MaxCartPos <= 0 || c.MaxAngle <= 0 || c.MaxVelocity <= 0 {
		return fmt.Errorf("instability bounds must be > 0")
	}
	return nil
}

// Sample is one point of a closed-loop trajectory.
type Sample struct {
	T       float64     `json:"t"`
	State   plant.State `json:"state"`
	Control float64     `json:"control"`
	Sigma   float64     `json:"sigma"`
}

// Trajectory is the full record of one run. Instability is a terminal
// status of the trajectory, never an error.
type Trajectory struct {
	Samples           []Sample
	Dt                float64
	Duration          float64
	Unstable          bool
	ElapsedFraction   float64
	SingularityEvents int
}

// Run integrates the closed loop over the configured horizon. It returns
// an error only for invalid configuration or context cancellation.
func Run(ctx context.Context, cfg Config, ctrl smc.Controller, initial plant.State) (Trajectory, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Trajectory{}, fmt.Errorf("invalid simulation config: %w", err)
	}
	if ctrl == nil {
		return Trajectory{}, fmt.Errorf("controller is required")
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	traj := Trajectory{
		Samples:         make([]Sample, 0, steps+1),
		Dt:              cfg.Dt,
		Duration:        cfg.Duration,
		ElapsedFraction: 1.0,
	}

	s := initial
	last := 0.0
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return Trajectory{}, err
		}
		if unstable(cfg, s) {
			traj.Unstable = true
			traj.ElapsedFraction = float64(i) / float64(steps)
			return traj, nil
		}

		out := ctrl.Compute(s, last)
		traj.Samples = append(traj.Samples, Sample{
			T:       float64(i) * cfg.Dt,
			State:   s,
			Control: out.Force,
			Sigma:   out.Sigma,
		})
		if solver, ok := out.Trace["solver"].(smc.SolveDiagnostics); ok {
			if solver.Degenerate || solver.PseudoInverse {
				traj.SingularityEvents++
			}
		}

		next, err := cfg.Model.Step(s, out.Force, cfg.Dt, cfg.Integrator)
		if err != nil {
			// A singular plant solve ends the trajectory as unstable.
			traj.Unstable = true
			traj.ElapsedFraction = float64(i) / float64(steps)
			return traj, nil
		}
		s = next
		last = out.Force
	}

	// The whole horizon was integrated, so the elapsed fraction stays 1
	// even when the final state lands outside the guard bounds.
	if unstable(cfg, s) {
		traj.Unstable = true
		return traj, nil
	}
	traj.Samples = append(traj.Samples, Sample{T: cfg.Duration, State: s, Control: last})
	return traj, nil
}

func unstable(cfg Config, s plant.State) bool {
	if !s.Finite() {
		return true
	}
	if math.Abs(s.X) > cfg.MaxCartPos {
		return true
	}
	if math.Abs(s.Theta1) > cfg.MaxAngle || math.Abs(s.Theta2) > cfg.MaxAngle {
		return true
	}
	if math.Abs(s.XDot) > cfg.MaxVelocity ||
		math.Abs(s.Theta1Dot) > cfg.MaxVelocity ||
		math.Abs(s.Theta2Dot) > cfg.MaxVelocity {
		return true
	}
	return false
}
