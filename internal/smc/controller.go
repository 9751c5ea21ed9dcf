package smc

import (
	"fmt"
	"math"
	"sort"

	"diptune/internal/plant"
)

// Trace carries per-step controller diagnostics for inspection and tests.
type Trace map[string]any

// Output is the result of one control step.
type Output struct {
	Force      float64
	Sigma      float64
	Equivalent float64
	Trace      Trace
}

// Controller computes a saturated cart force from the plant state.
// Compute never fails for finite input; numerical trouble inside the
// equivalent-control solve degrades to a zero model-based component.
type Controller interface {
	Name() string
	Gains() []float64
	Compute(s plant.State, lastControl float64) Output
	Reset()
}

const (
	SwitchTanh   = "tanh"
	SwitchLinear = "linear"
)

// Config supplies the fixed controller parameters that are not subject to
// gain optimization.
type Config struct {
	Model *plant.Model

	Dt            float64
	MaxForce      float64
	BoundaryLayer float64
	SwitchMethod  string

	// Bounded adaptive gain shared by the adaptive and hybrid variants.
	DeadZone       float64
	LeakRate       float64
	AdaptRateLimit float64
	KMin           float64
	KMax           float64
	KInit          float64

	// Hybrid variant only.
	DampingGain      float64
	UIntMax          float64
	CartPGain        float64
	CartPLambda      float64
	EnableEquivalent bool
}

func (c Config) withDefaults() Config {
	if c.Dt == 0 {
		c.Dt = 0.01
	}
	if c.MaxForce == 0 {
		c.MaxForce = 150
	}
	if c.BoundaryLayer == 0 {
		c.BoundaryLayer = 0.01
	}
	if c.SwitchMethod == "" {
		c.SwitchMethod = SwitchTanh
	}
	if c.DeadZone == 0 {
		c.DeadZone = 0.05
	}
	if c.LeakRate == 0 {
		c.LeakRate = 0.1
	}
	if c.AdaptRateLimit == 0 {
		c.AdaptRateLimit = 5.0
	}
	if c.KMin == 0 {
		c.KMin = 0.1
	}
	if c.KMax == 0 {
		c.KMax = 100
	}
	if c.KInit == 0 {
		c.KInit = 10
	}
	if c.DampingGain == 0 {
		c.DampingGain = 3.0
	}
	if c.UIntMax == 0 {
		c.UIntMax = 50
	}
	if c.CartPGain == 0 {
		c.CartPGain = 80
	}
	if c.CartPLambda == 0 {
		c.CartPLambda = 2.0
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
	if c.MaxForce <= 0 {
		return fmt.Errorf("max force must be > 0")
	}
	if c.BoundaryLayer <= 0 {
		return fmt.Errorf("boundary layer must be > 0")
	}
	if c.SwitchMethod != SwitchTanh && c.SwitchMethod != SwitchLinear {
		return fmt.Errorf("switch method must be one of [tanh linear], got %q", c.SwitchMethod)
	}
	if c.DeadZone < 0 || c.LeakRate < 0 {
		return fmt.Errorf("dead zone and leak rate must be >= 0")
	}
	if c.AdaptRateLimit <= 0 {
		return fmt.Errorf("adapt rate limit must be > 0")
	}
	if c.KMin <= 0 || c.KMax <= c.KMin {
		return fmt.Errorf("adaptive gain bounds require 0 < K_min < K_max")
	}
	if c.KInit < c.KMin || c.KInit > c.KMax {
		return fmt.Errorf("initial adaptive gain must be within [K_min, K_max]")
	}
	if c.UIntMax <= 0 {
		return fmt.Errorf("integral clip must be > 0")
	}
	return nil
}

type builder func(gains []float64, cfg Config) (Controller, error)

var variantBuilders = map[string]builder{
	"classical_smc": func(gains []float64, cfg Config) (Controller, error) {
		return NewClassical(gains, cfg)
	},
	"sta_smc": func(gains []float64, cfg Config) (Controller, error) {
		return NewSuperTwisting(gains, cfg)
	},
	"adaptive_smc": func(gains []float64, cfg Config) (Controller, error) {
		return NewAdaptive(gains, cfg)
	},
	"hybrid_adaptive_sta_smc": func(gains []float64, cfg Config) (Controller, error) {
		return NewHybrid(gains, cfg)
	},
}

var variantAliases = map[string]string{
	"classic_smc":    "classical_smc",
	"classical":      "classical_smc",
	"sta":            "sta_smc",
	"super_twisting": "sta_smc",
	"adaptive":       "adaptive_smc",
	"hybrid":         "hybrid_adaptive_sta_smc",
}

// CanonicalVariant resolves a variant name or alias to its canonical key.
func CanonicalVariant(name string) (string, bool) {
	if _, ok := variantBuilders[name]; ok {
		return name, true
	}
	canonical, ok := variantAliases[name]
	return canonical, ok
}

// Variants lists the canonical controller names.
func Variants() []string {
	names := make([]string, 0, len(variantBuilders))
	for name := range variantBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs a controller of the named variant with the given gain
// vector. Gain validation happens here, once, before any simulation runs.
func Build(variant string, gains []float64, cfg Config) (Controller, error) {
	canonical, ok := CanonicalVariant(variant)
	if !ok {
		return nil, fmt.Errorf("unknown controller variant %q (available: %v)", variant, Variants())
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid controller config: %w", err)
	}
	return variantBuilders[canonical](append([]float64(nil), gains...), cfg)
}

// GainCount returns the expected gain-vector length for a variant. The
// super-twisting variant also accepts the short two-gain form.
func GainCount(variant string) (int, error) {
	canonical, ok := CanonicalVariant(variant)
	if !ok {
		return 0, fmt.Errorf("unknown controller variant %q", variant)
	}
	switch canonical {
	case "classical_smc", "sta_smc":
		return 6, nil
	case "adaptive_smc":
		return 5, nil
	case "hybrid_adaptive_sta_smc":
		return 4, nil
	}
	return 0, fmt.Errorf("unknown controller variant %q", variant)
}

func saturate(sigma, eps float64, method string) float64 {
	switch method {
	case SwitchLinear:
		return clamp(sigma/eps, -1, 1)
	default:
		return math.Tanh(sigma / eps)
	}
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
