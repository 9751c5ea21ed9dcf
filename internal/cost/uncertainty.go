package cost

import (
	"fmt"
	"math"
	"math/rand"

	"diptune/internal/plant"
)

const (
	AggregateMean  = "mean"
	AggregateWorst = "worst"
)

// UncertaintyConfig describes robust evaluation over perturbed plants.
// Evals = 0 disables it (single nominal-plant evaluation).
type UncertaintyConfig struct {
	Evals     int     `json:"evals"`
	Scale     float64 `json:"scale"`
	Aggregate string  `json:"aggregate"`
}

func (c UncertaintyConfig) withDefaults() UncertaintyConfig {
	if c.Scale == 0 {
		c.Scale = 0.1
	}
	if c.Aggregate == "" {
		c.Aggregate = AggregateMean
	}
	return c
}

func (c UncertaintyConfig) validate() error {
	if c.Evals < 0 {
		return fmt.Errorf("uncertainty evals must be >= 0")
	}
	if c.Scale <= 0 || c.Scale >= 1 {
		return fmt.Errorf("uncertainty scale must be in (0, 1)")
	}
	if c.Aggregate != AggregateMean && c.Aggregate != AggregateWorst {
		return fmt.Errorf("aggregate must be one of [mean worst], got %q", c.Aggregate)
	}
	return nil
}

// Draws generates the perturbed parameter sets for robust evaluation.
// The draws are produced once from the given seed so every candidate in
// an optimization run is scored against the same plants, keeping parallel
// evaluation deterministic.
func Draws(base plant.Params, cfg UncertaintyConfig, seed int64) ([]plant.Params, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid uncertainty config: %w", err)
	}
	if cfg.Evals == 0 {
		return []plant.Params{base}, nil
	}

	rng := rand.New(rand.NewSource(seed))
	draws := make([]plant.Params, 0, cfg.Evals)
	for i := 0; i < cfg.Evals; i++ {
		draws = append(draws, perturb(base, cfg.Scale, rng))
	}
	return draws, nil
}

func perturb(p plant.Params, scale float64, rng *rand.Rand) plant.Params {
	factor := func() float64 { return 1 + scale*(2*rng.Float64()-1) }

	p.CartMass *= factor()
	p.Pendulum1Mass *= factor()
	p.Pendulum2Mass *= factor()
	p.Pendulum1Length *= factor()
	p.Pendulum2Length *= factor()
	p.Pendulum1Inertia *= factor()
	p.Pendulum2Inertia *= factor()
	p.CartFriction *= factor()
	p.Joint1Friction *= factor()
	p.Joint2Friction *= factor()

	// Keep the centers of mass on their links.
	p.Pendulum1COM = math.Min(p.Pendulum1COM*factor(), p.Pendulum1Length)
	p.Pendulum2COM = math.Min(p.Pendulum2COM*factor(), p.Pendulum2Length)
	return p
}

// Aggregate reduces the per-draw costs to the single robust cost.
func Aggregate(costs []float64, mode string) float64 {
	if len(costs) == 0 {
		return math.Inf(1)
	}
	switch mode {
	case AggregateWorst:
		worst := costs[0]
		for _, c := range costs[1:] {
			if c > worst {
				worst = c
			}
		}
		return worst
	default:
		total := 0.0
		for _, c := range costs {
			total += c
		}
		return total / float64(len(costs))
	}
}
