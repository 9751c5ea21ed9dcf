package smc

import (
	"math"
	"testing"

	"diptune/internal/plant"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	model, err := plant.NewModel(plant.DefaultParams())
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return Config{Model: model}
}

func TestBuildValidatesGains(t *testing.T) {
	cfg := testConfig(t)

	cases := []struct {
		name    string
		variant string
		gains   []float64
		wantErr bool
	}{
		{"classical valid", "classical_smc", []float64{10, 5, 2, 1, 50, 0.1}, false},
		{"classical zero kd", "classical_smc", []float64{10, 5, 2, 1, 50, 0}, false},
		{"classical short", "classical_smc", []float64{10, 5, 2, 1, 50}, true},
		{"classical negative surface", "classical_smc", []float64{-10, 5, 2, 1, 50, 0.1}, true},
		{"classical zero K", "classical_smc", []float64{10, 5, 2, 1, 0, 0.1}, true},
		{"classical negative kd", "classical_smc", []float64{10, 5, 2, 1, 50, -0.1}, true},
		{"sta short form", "sta_smc", []float64{8, 4}, false},
		{"sta long form", "sta_smc", []float64{8, 4, 10, 5, 2, 1}, false},
		{"sta bad length", "sta_smc", []float64{8, 4, 10}, true},
		{"sta zero K2", "sta_smc", []float64{8, 0}, true},
		{"adaptive valid", "adaptive_smc", []float64{10, 5, 2, 1, 0.5}, false},
		{"adaptive short", "adaptive_smc", []float64{10, 5, 2, 1}, true},
		{"adaptive zero gamma", "adaptive_smc", []float64{10, 5, 2, 1, 0}, true},
		{"hybrid valid", "hybrid_adaptive_sta_smc", []float64{5, 2, 3, 1}, false},
		{"hybrid short", "hybrid_adaptive_sta_smc", []float64{5, 2, 3}, true},
		{"hybrid zero gain", "hybrid_adaptive_sta_smc", []float64{5, 0, 3, 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.variant, tc.gains, cfg)
			if tc.wantErr && err == nil {
				t.Fatalf("expected construction error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected construction error: %v", err)
			}
		})
	}
}

func TestBuildResolvesAliases(t *testing.T) {
	cfg := testConfig(t)

	ctrl, err := Build("classic_smc", []float64{10, 5, 2, 1, 50, 0.1}, cfg)
	if err != nil {
		t.Fatalf("alias build failed: %v", err)
	}
	if ctrl.Name() != "classical_smc" {
		t.Fatalf("alias resolved to %q", ctrl.Name())
	}

	if _, err := Build("mpc", nil, cfg); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

func TestGainCount(t *testing.T) {
	for variant, want := range map[string]int{
		"classical_smc":           6,
		"sta_smc":                 6,
		"adaptive_smc":            5,
		"hybrid_adaptive_sta_smc": 4,
	} {
		got, err := GainCount(variant)
		if err != nil {
			t.Fatalf("gain count %s: %v", variant, err)
		}
		if got != want {
			t.Fatalf("gain count %s: got %d want %d", variant, got, want)
		}
	}
	if _, err := GainCount("lqr"); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

func TestConfigValidation(t *testing.T) {
	model, err := plant.NewModel(plant.DefaultParams())
	if err != nil {
		t.Fatalf("new model: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"nil model", Config{}},
		{"negative dt", Config{Model: model, Dt: -0.01}},
		{"bad switch method", Config{Model: model, SwitchMethod: "sign"}},
		{"inverted gain bounds", Config{Model: model, KMin: 10, KMax: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build("classical_smc", []float64{10, 5, 2, 1, 50, 0.1}, tc.cfg); err == nil {
				t.Fatalf("expected config error")
			}
		})
	}
}

// runClosedLoop drives the plant with the controller and returns per-step
// forces and sigmas.
func runClosedLoop(t *testing.T, model *plant.Model, ctrl Controller, s plant.State, steps int, dt float64) (forces, sigmas []float64) {
	t.Helper()
	last := 0.0
	for i := 0; i < steps; i++ {
		out := ctrl.Compute(s, last)
		forces = append(forces, out.Force)
		sigmas = append(sigmas, out.Sigma)
		next, err := model.StepRK4(s, out.Force, dt)
		if err != nil {
			t.Fatalf("plant step %d: %v", i, err)
		}
		s = next
		last = out.Force
	}
	return forces, sigmas
}

func TestSuperTwistingLyapunovDecrease(t *testing.T) {
	cfg := testConfig(t)
	ctrl, err := Build("sta_smc", []float64{15, 8, 10, 5, 2, 1}, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	s := plant.State{Theta1: 0.05, Theta2: -0.03}
	_, sigmas := runClosedLoop(t, cfg.Model, ctrl, s, 500, 0.01)

	// After the transient, the surface energy V = sigma^2/2 must not grow
	// from one window to the next.
	const window = 50
	prevMax := math.Inf(1)
	for start := 100; start+window <= len(sigmas); start += window {
		maxV := 0.0
		for _, sg := range sigmas[start : start+window] {
			if v := sg * sg / 2; v > maxV {
				maxV = v
			}
		}
		if maxV > prevMax+1e-6 {
			t.Fatalf("surface energy grew between windows: prev=%v cur=%v (start=%d)", prevMax, maxV, start)
		}
		prevMax = maxV
	}

	initial := math.Abs(sigmas[0])
	final := math.Abs(sigmas[len(sigmas)-1])
	if final >= initial {
		t.Fatalf("sliding variable did not converge: initial=%v final=%v", initial, final)
	}
}

func TestControllerResetIdempotence(t *testing.T) {
	cfg := testConfig(t)
	s0 := plant.State{Theta1: 0.05, Theta2: -0.03}

	variants := []struct {
		name  string
		gains []float64
	}{
		{"classical_smc", []float64{10, 5, 2, 1, 50, 0.1}},
		{"sta_smc", []float64{8, 4, 10, 5, 2, 1}},
		{"adaptive_smc", []float64{10, 5, 2, 1, 0.5}},
		{"hybrid_adaptive_sta_smc", []float64{5, 2, 3, 1}},
	}
	for _, tc := range variants {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, err := Build(tc.name, tc.gains, cfg)
			if err != nil {
				t.Fatalf("build: %v", err)
			}

			first, _ := runClosedLoop(t, cfg.Model, ctrl, s0, 100, 0.01)
			ctrl.Reset()
			second, _ := runClosedLoop(t, cfg.Model, ctrl, s0, 100, 0.01)

			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("control output diverged after reset at step %d: %v vs %v", i, first[i], second[i])
				}
			}
		})
	}
}

func TestComputeSaturatesForce(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxForce = 20
	ctrl, err := Build("classical_smc", []float64{50, 40, 10, 10, 500, 5}, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := ctrl.Compute(plant.State{Theta1: 1.0, Theta2: -0.8, Theta1Dot: 5, Theta2Dot: -4}, 0)
	if math.Abs(out.Force) > 20 {
		t.Fatalf("force exceeds actuator limit: %v", out.Force)
	}
	if math.IsNaN(out.Force) {
		t.Fatalf("force is NaN")
	}
}

func TestAdaptiveGainStaysBounded(t *testing.T) {
	cfg := testConfig(t)
	cfg = cfg.withDefaults()
	ctrl, err := NewAdaptive([]float64{10, 5, 2, 1, 5.0}, cfg)
	if err != nil {
		t.Fatalf("new adaptive: %v", err)
	}

	// A large persistent surface error pushes K toward its ceiling.
	s := plant.State{Theta1: 0.8, Theta1Dot: 4}
	for i := 0; i < 10000; i++ {
		ctrl.Compute(s, 0)
	}
	if got := ctrl.gain.Value(); got > cfg.KMax || got < cfg.KMin {
		t.Fatalf("adaptive gain escaped bounds: %v not in [%v, %v]", got, cfg.KMin, cfg.KMax)
	}
	if got := ctrl.gain.Value(); got != cfg.KMax {
		t.Fatalf("persistent error should drive gain to K_max, got %v", got)
	}

	// Back inside the dead zone the gain leaks toward its initial value.
	for i := 0; i < 100000; i++ {
		ctrl.Compute(plant.State{}, 0)
	}
	if got := ctrl.gain.Value(); math.Abs(got-cfg.KInit) > 0.5 {
		t.Fatalf("gain did not leak toward initial value: got %v want ~%v", got, cfg.KInit)
	}
}
