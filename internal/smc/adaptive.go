package smc

import (
	"fmt"

	"diptune/internal/plant"
)

// BoundedGain is a dead-zone adaptive gain with leak and rate limiting,
// clamped to [Min, Max]. It is shared by the adaptive and hybrid variants.
type BoundedGain struct {
	Gamma     float64
	DeadZone  float64
	LeakRate  float64
	RateLimit float64
	Min       float64
	Max       float64

	init  float64
	value float64
}

func NewBoundedGain(gamma, deadZone, leakRate, rateLimit, min, max, init float64) (*BoundedGain, error) {
	if gamma <= 0 {
		return nil, fmt.Errorf("adaptation rate gamma must be > 0, got %v", gamma)
	}
	if deadZone < 0 || leakRate < 0 {
		return nil, fmt.Errorf("dead zone and leak rate must be >= 0")
	}
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be > 0")
	}
	if min <= 0 || max <= min {
		return nil, fmt.Errorf("gain bounds require 0 < min < max, got [%v %v]", min, max)
	}
	if init < min || init > max {
		return nil, fmt.Errorf("initial gain %v outside [%v, %v]", init, min, max)
	}
	return &BoundedGain{
		Gamma:     gamma,
		DeadZone:  deadZone,
		LeakRate:  leakRate,
		RateLimit: rateLimit,
		Min:       min,
		Max:       max,
		init:      init,
		value:     init,
	}, nil
}

// Update advances the gain by one step. Outside the dead zone the gain
// grows with |sigma|; inside it, it leaks back toward its initial value.
func (b *BoundedGain) Update(absSigma, dt float64) float64 {
	var rate float64
	if absSigma > b.DeadZone {
		rate = b.Gamma * absSigma
	} else {
		rate = -b.LeakRate * (b.value - b.init)
	}
	rate = clamp(rate, -b.RateLimit, b.RateLimit)
	b.value = clamp(b.value+rate*dt, b.Min, b.Max)
	return b.value
}

func (b *BoundedGain) Value() float64 { return b.value }

func (b *BoundedGain) Reset() { b.value = b.init }

// Adaptive implements sliding-mode control with an online switching gain,
// u = -K(t)*sat(sigma/eps). No disturbance bound needs to be known ahead
// of time; K grows until the surface is reached.
type Adaptive struct {
	surface Surface
	gain    *BoundedGain
	cfg     Config
}

// NewAdaptive expects gains [k1, k2, lam1, lam2, gamma].
func NewAdaptive(gains []float64, cfg Config) (*Adaptive, error) {
	if len(gains) < 5 {
		return nil, fmt.Errorf("adaptive smc requires at least 5 gains, got %d", len(gains))
	}
	surface, err := NewSurface(gains[0], gains[1], gains[2], gains[3])
	if err != nil {
		return nil, err
	}
	gain, err := NewBoundedGain(gains[4], cfg.DeadZone, cfg.LeakRate, cfg.AdaptRateLimit, cfg.KMin, cfg.KMax, cfg.KInit)
	if err != nil {
		return nil, err
	}
	return &Adaptive{surface: surface, gain: gain, cfg: cfg}, nil
}

func (c *Adaptive) Name() string { return "adaptive_smc" }

func (c *Adaptive) Gains() []float64 {
	return []float64{c.surface.K1, c.surface.K2, c.surface.Lam1, c.surface.Lam2, c.gain.Gamma}
}

func (c *Adaptive) Compute(s plant.State, _ float64) Output {
	sigma := c.surface.Sigma(s)
	k := c.gain.Update(abs(sigma), c.cfg.Dt)

	u := clamp(-k*saturate(sigma, c.cfg.BoundaryLayer, c.cfg.SwitchMethod), -c.cfg.MaxForce, c.cfg.MaxForce)

	return Output{
		Force: u,
		Sigma: sigma,
		Trace: Trace{
			"sigma":         sigma,
			"adaptive_gain": k,
		},
	}
}

func (c *Adaptive) Reset() { c.gain.Reset() }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
