package smc

import (
	"fmt"

	"diptune/internal/plant"
)

// Classical implements boundary-layer sliding-mode control,
// u = u_eq - K*sat(sigma/eps) - kd*sigma.
type Classical struct {
	surface Surface
	gainK   float64
	gainKd  float64
	cfg     Config
	eq      *EquivalentControl
}

// NewClassical expects gains [k1, k2, lam1, lam2, K, kd].
func NewClassical(gains []float64, cfg Config) (*Classical, error) {
	if len(gains) != 6 {
		return nil, fmt.Errorf("classical smc requires 6 gains, got %d", len(gains))
	}
	surface, err := NewSurface(gains[0], gains[1], gains[2], gains[3])
	if err != nil {
		return nil, err
	}
	if gains[4] <= 0 {
		return nil, fmt.Errorf("switching gain K must be > 0, got %v", gains[4])
	}
	if gains[5] < 0 {
		return nil, fmt.Errorf("derivative gain kd must be >= 0, got %v", gains[5])
	}
	return &Classical{
		surface: surface,
		gainK:   gains[4],
		gainKd:  gains[5],
		cfg:     cfg,
		eq:      NewEquivalentControl(cfg.Model),
	}, nil
}

func (c *Classical) Name() string { return "classical_smc" }

func (c *Classical) Gains() []float64 {
	return []float64{c.surface.K1, c.surface.K2, c.surface.Lam1, c.surface.Lam2, c.gainK, c.gainKd}
}

func (c *Classical) Compute(s plant.State, _ float64) Output {
	sigma := c.surface.Sigma(s)
	ueq, diag := c.eq.Compute(s, c.surface.coefficients(), c.surface.drift(s))

	u := ueq - c.gainK*saturate(sigma, c.cfg.BoundaryLayer, c.cfg.SwitchMethod) - c.gainKd*sigma
	u = clamp(u, -c.cfg.MaxForce, c.cfg.MaxForce)

	return Output{
		Force:      u,
		Sigma:      sigma,
		Equivalent: ueq,
		Trace: Trace{
			"sigma":      sigma,
			"equivalent": ueq,
			"solver":     diag,
		},
	}
}

// Reset is a no-op; the classical law carries no internal state.
func (c *Classical) Reset() {}
