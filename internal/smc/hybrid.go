package smc

import (
	"fmt"
	"math"

	"diptune/internal/plant"
)

// Hybrid combines the super-twisting structure with online adaptation of
// both algorithmic gains, over a single surface that also recenters the
// cart: sigma = c1*(th1dot + lam1*th1) + c2*(th2dot + lam2*th2)
//             + p_gain*(xdot + p_lambda*x).
type Hybrid struct {
	c1, lam1 float64
	c2, lam2 float64
	cfg      Config
	eq       *EquivalentControl

	k1    *BoundedGain
	k2    *BoundedGain
	integ float64
}

// NewHybrid expects gains [c1, lam1, c2, lam2].
func NewHybrid(gains []float64, cfg Config) (*Hybrid, error) {
	if len(gains) < 4 {
		return nil, fmt.Errorf("hybrid adaptive sta smc requires at least 4 gains, got %d", len(gains))
	}
	for i, g := range gains[:4] {
		if g <= 0 {
			return nil, fmt.Errorf("hybrid surface gain %d must be > 0, got %v", i, g)
		}
	}

	k1, err := NewBoundedGain(2.0, cfg.DeadZone, cfg.LeakRate, cfg.AdaptRateLimit, cfg.KMin, cfg.KMax, cfg.KInit)
	if err != nil {
		return nil, err
	}
	k2, err := NewBoundedGain(1.0, cfg.DeadZone, cfg.LeakRate, cfg.AdaptRateLimit, cfg.KMin, cfg.KMax, cfg.KInit)
	if err != nil {
		return nil, err
	}

	return &Hybrid{
		c1:   gains[0],
		lam1: gains[1],
		c2:   gains[2],
		lam2: gains[3],
		cfg:  cfg,
		eq:   NewEquivalentControl(cfg.Model),
		k1:   k1,
		k2:   k2,
	}, nil
}

func (c *Hybrid) Name() string { return "hybrid_adaptive_sta_smc" }

func (c *Hybrid) Gains() []float64 {
	return []float64{c.c1, c.lam1, c.c2, c.lam2}
}

func (c *Hybrid) sigma(s plant.State) float64 {
	return c.c1*(s.Theta1Dot+c.lam1*s.Theta1) +
		c.c2*(s.Theta2Dot+c.lam2*s.Theta2) +
		c.cfg.CartPGain*(s.XDot+c.cfg.CartPLambda*s.X)
}

func (c *Hybrid) Compute(s plant.State, _ float64) Output {
	sigma := c.sigma(s)

	k1 := c.k1.Update(math.Abs(sigma), c.cfg.Dt)
	k2 := c.k2.Update(math.Abs(sigma), c.cfg.Dt)

	var ueq float64
	var diag SolveDiagnostics
	if c.cfg.EnableEquivalent {
		coeff := [3]float64{c.cfg.CartPGain, c.c1, c.c2}
		drift := c.cfg.CartPGain*c.cfg.CartPLambda*s.XDot +
			c.c1*c.lam1*s.Theta1Dot +
			c.c2*c.lam2*s.Theta2Dot
		ueq, diag = c.eq.Compute(s, coeff, drift)
	}

	sw := saturate(sigma, c.cfg.BoundaryLayer, c.cfg.SwitchMethod)
	continuous := -k1 * math.Sqrt(math.Abs(sigma)) * sw

	c.integ = clamp(c.integ-k2*sw*c.cfg.Dt, -c.cfg.UIntMax, c.cfg.UIntMax)

	u := clamp(ueq+continuous+c.integ-c.cfg.DampingGain*sigma, -c.cfg.MaxForce, c.cfg.MaxForce)

	return Output{
		Force:      u,
		Sigma:      sigma,
		Equivalent: ueq,
		Trace: Trace{
			"sigma":      sigma,
			"k1":         k1,
			"k2":         k2,
			"integrator": c.integ,
			"equivalent": ueq,
			"solver":     diag,
		},
	}
}

func (c *Hybrid) Reset() {
	c.k1.Reset()
	c.k2.Reset()
	c.integ = 0
}
