package smc

import (
	"fmt"
	"math"

	"diptune/internal/plant"
)

// Default surface gains used when the short two-gain form is given.
var staDefaultSurface = [4]float64{5, 3, 2, 1}

// SuperTwisting implements the second-order sliding-mode law. The
// switching discontinuity is moved into the integrator state z, so the
// control signal itself stays continuous.
type SuperTwisting struct {
	surface Surface
	gainK1  float64
	gainK2  float64
	cfg     Config
	eq      *EquivalentControl

	z float64
}

// NewSuperTwisting expects gains [K1, K2] or [K1, K2, k1, k2, lam1, lam2].
func NewSuperTwisting(gains []float64, cfg Config) (*SuperTwisting, error) {
	if len(gains) != 2 && len(gains) != 6 {
		return nil, fmt.Errorf("super-twisting smc requires 2 or 6 gains, got %d", len(gains))
	}
	if gains[0] <= 0 || gains[1] <= 0 {
		return nil, fmt.Errorf("algorithmic gains K1, K2 must be > 0, got [%v %v]", gains[0], gains[1])
	}

	sg := staDefaultSurface
	if len(gains) == 6 {
		sg = [4]float64{gains[2], gains[3], gains[4], gains[5]}
	}
	surface, err := NewSurface(sg[0], sg[1], sg[2], sg[3])
	if err != nil {
		return nil, err
	}

	return &SuperTwisting{
		surface: surface,
		gainK1:  gains[0],
		gainK2:  gains[1],
		cfg:     cfg,
		eq:      NewEquivalentControl(cfg.Model),
	}, nil
}

func (c *SuperTwisting) Name() string { return "sta_smc" }

func (c *SuperTwisting) Gains() []float64 {
	return []float64{c.gainK1, c.gainK2, c.surface.K1, c.surface.K2, c.surface.Lam1, c.surface.Lam2}
}

func (c *SuperTwisting) Compute(s plant.State, _ float64) Output {
	sigma := c.surface.Sigma(s)
	ueq, diag := c.eq.Compute(s, c.surface.coefficients(), c.surface.drift(s))

	sw := saturate(sigma, c.cfg.BoundaryLayer, c.cfg.SwitchMethod)
	continuous := -c.gainK1 * math.Sqrt(math.Abs(sigma)) * sw

	u := clamp(ueq+continuous+c.z, -c.cfg.MaxForce, c.cfg.MaxForce)

	// Integrator update after the control is formed; clamped against windup.
	c.z = clamp(c.z-c.gainK2*sw*c.cfg.Dt, -c.cfg.MaxForce, c.cfg.MaxForce)

	return Output{
		Force:      u,
		Sigma:      sigma,
		Equivalent: ueq,
		Trace: Trace{
			"sigma":      sigma,
			"equivalent": ueq,
			"integrator": c.z,
			"solver":     diag,
		},
	}
}

func (c *SuperTwisting) Reset() { c.z = 0 }
