package pso

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// Command steers a running tuner from outside. Commands are consumed at
// iteration boundaries only.
type Command int

const (
	CommandPause Command = iota
	CommandContinue
	CommandStop
)

// Objective scores one candidate gain vector. It must be deterministic in
// its input: the tuner evaluates particles in parallel and relies on the
// objective for reproducibility.
type Objective func(ctx context.Context, gains []float64) (float64, error)

// Bounds are the per-dimension search-space limits.
type Bounds struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

func (b Bounds) Validate() error {
	if len(b.Min) == 0 {
		return fmt.Errorf("bounds are required")
	}
	if len(b.Min) != len(b.Max) {
		return fmt.Errorf("bounds length mismatch: min=%d max=%d", len(b.Min), len(b.Max))
	}
	for i := range b.Min {
		if !(b.Min[i] < b.Max[i]) {
			return fmt.Errorf("bounds dimension %d requires min < max, got [%v, %v]", i, b.Min[i], b.Max[i])
		}
	}
	return nil
}

func (b Bounds) dims() int { return len(b.Min) }

type Config struct {
	Bounds Bounds

	Particles  int
	Iterations int

	Inertia      float64
	InertiaFinal float64 // 0 keeps inertia constant
	Cognitive    float64
	Social       float64

	// VelocityClamp limits |v| per dimension to this fraction of the
	// bound range. 0 disables clamping.
	VelocityClamp float64

	Seed    int64
	Workers int

	// StagnationWindow stops early when the best cost has not improved
	// by more than StagnationTol for this many iterations. 0 disables.
	StagnationWindow int
	StagnationTol    float64

	Control chan Command
}

func (c Config) withDefaults() Config {
	if c.Particles == 0 {
		c.Particles = 100
	}
	if c.Iterations == 0 {
		c.Iterations = 200
	}
	if c.Inertia == 0 {
		c.Inertia = 0.5
	}
	if c.Cognitive == 0 {
		c.Cognitive = 1.5
	}
	if c.Social == 0 {
		c.Social = 1.5
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.StagnationWindow > 0 && c.StagnationTol == 0 {
		c.StagnationTol = 1e-9
	}
	return c
}

func (c Config) validate() error {
	if err := c.Bounds.Validate(); err != nil {
		return err
	}
	if c.Particles <= 0 {
		return fmt.Errorf("particle count must be > 0")
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iteration count must be > 0")
	}
	if c.Inertia < 0 || c.Cognitive < 0 || c.Social < 0 {
		return fmt.Errorf("pso coefficients must be >= 0")
	}
	if c.InertiaFinal < 0 {
		return fmt.Errorf("final inertia must be >= 0")
	}
	if c.VelocityClamp < 0 || c.VelocityClamp > 1 {
		return fmt.Errorf("velocity clamp must be in [0, 1]")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be > 0")
	}
	if c.StagnationWindow < 0 {
		return fmt.Errorf("stagnation window must be >= 0")
	}
	return nil
}

type particle struct {
	position []float64
	velocity []float64
	bestPos  []float64
	bestCost float64
}

// Result is the outcome of one optimization run.
type Result struct {
	BestGains  []float64 `json:"best_gains"`
	BestCost   float64   `json:"best_cost"`
	History    []float64 `json:"history"`
	Iterations int       `json:"iterations"`
	Stopped    bool      `json:"stopped"`
}

// Tuner owns its RNG stream; two tuners built with the same config and
// seed produce identical results.
type Tuner struct {
	cfg Config
	rng *rand.Rand
}

// Particles reports the effective swarm size after defaults.
func (t *Tuner) Particles() int { return t.cfg.Particles }

func NewTuner(cfg Config) (*Tuner, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid pso config: %w", err)
	}
	return &Tuner{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run executes the swarm search. A stop command (or stagnation) ends the
// run gracefully after the current iteration with the best result so far;
// context cancellation aborts with an error.
func (t *Tuner) Run(ctx context.Context, objective Objective) (Result, error) {
	if objective == nil {
		return Result{}, fmt.Errorf("objective is required")
	}

	dims := t.cfg.Bounds.dims()
	swarm := make([]particle, t.cfg.Particles)
	for i := range swarm {
		pos := make([]float64, dims)
		for d := 0; d < dims; d++ {
			lo, hi := t.cfg.Bounds.Min[d], t.cfg.Bounds.Max[d]
			pos[d] = lo + t.rng.Float64()*(hi-lo)
		}
		swarm[i] = particle{
			position: pos,
			velocity: make([]float64, dims),
			bestPos:  append([]float64(nil), pos...),
			bestCost: math.Inf(1),
		}
	}

	result := Result{
		BestCost: math.Inf(1),
		History:  make([]float64, 0, t.cfg.Iterations),
	}

	for iter := 0; iter < t.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		stop, err := t.handleCommands(ctx)
		if err != nil {
			return Result{}, err
		}
		if stop {
			result.Stopped = true
			break
		}

		costs, err := t.evaluateSwarm(ctx, swarm, objective)
		if err != nil {
			return Result{}, err
		}

		// Personal and global bests update only at the generation
		// boundary, after every particle has been scored.
		for i := range swarm {
			c := costs[i]
			if math.IsNaN(c) || math.IsInf(c, 0) {
				c = math.MaxFloat64
			}
			if c < swarm[i].bestCost {
				swarm[i].bestCost = c
				copy(swarm[i].bestPos, swarm[i].position)
			}
			if c < result.BestCost {
				result.BestCost = c
				result.BestGains = append([]float64(nil), swarm[i].position...)
			}
		}
		result.History = append(result.History, result.BestCost)
		result.Iterations = iter + 1

		if t.stagnated(result.History) {
			result.Stopped = true
			break
		}
		if iter == t.cfg.Iterations-1 {
			break
		}

		t.moveSwarm(swarm, result.BestGains, iter)
	}

	return result, nil
}

func (t *Tuner) inertiaAt(iter int) float64 {
	if t.cfg.InertiaFinal == 0 || t.cfg.Iterations <= 1 {
		return t.cfg.Inertia
	}
	frac := float64(iter) / float64(t.cfg.Iterations-1)
	return t.cfg.Inertia + (t.cfg.InertiaFinal-t.cfg.Inertia)*frac
}

func (t *Tuner) moveSwarm(swarm []particle, globalBest []float64, iter int) {
	dims := t.cfg.Bounds.dims()
	w := t.inertiaAt(iter)
	for i := range swarm {
		p := &swarm[i]
		for d := 0; d < dims; d++ {
			r1 := t.rng.Float64()
			r2 := t.rng.Float64()
			v := w*p.velocity[d] +
				t.cfg.Cognitive*r1*(p.bestPos[d]-p.position[d]) +
				t.cfg.Social*r2*(globalBest[d]-p.position[d])
			if t.cfg.VelocityClamp > 0 {
				span := t.cfg.VelocityClamp * (t.cfg.Bounds.Max[d] - t.cfg.Bounds.Min[d])
				v = clamp(v, -span, span)
			}
			p.velocity[d] = v
			p.position[d] = clamp(p.position[d]+v, t.cfg.Bounds.Min[d], t.cfg.Bounds.Max[d])
		}
	}
}

func (t *Tuner) evaluateSwarm(ctx context.Context, swarm []particle, objective Objective) ([]float64, error) {
	type job struct {
		idx   int
		gains []float64
	}
	type outcome struct {
		idx  int
		cost float64
		err  error
	}

	jobs := make(chan job)
	results := make(chan outcome, len(swarm))

	workerCount := t.cfg.Workers
	if workerCount > len(swarm) {
		workerCount = len(swarm)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- outcome{idx: j.idx, err: err}
					continue
				}
				c, err := objective(ctx, j.gains)
				results <- outcome{idx: j.idx, cost: c, err: err}
			}
		}()
	}

	for i := range swarm {
		jobs <- job{idx: i, gains: append([]float64(nil), swarm[i].position...)}
	}
	close(jobs)

	wg.Wait()
	close(results)

	costs := make([]float64, len(swarm))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		costs[res.idx] = res.cost
	}
	return costs, nil
}

func (t *Tuner) handleCommands(ctx context.Context) (stop bool, err error) {
	if t.cfg.Control == nil {
		return false, nil
	}
	for {
		select {
		case cmd := <-t.cfg.Control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				// Block until told to continue or stop.
				for {
					select {
					case next := <-t.cfg.Control:
						if next == CommandStop {
							return true, nil
						}
						if next == CommandContinue {
							return false, nil
						}
					case <-ctx.Done():
						return false, ctx.Err()
					}
				}
			}
		case <-ctx.Done():
			return false, ctx.Err()
		default:
			return false, nil
		}
	}
}

func (t *Tuner) stagnated(history []float64) bool {
	w := t.cfg.StagnationWindow
	if w <= 0 || len(history) <= w {
		return false
	}
	prev := history[len(history)-1-w]
	cur := history[len(history)-1]
	return prev-cur <= t.cfg.StagnationTol
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
