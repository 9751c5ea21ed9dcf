package main

import (
	"os"
	"path/filepath"
	"testing"

	tuneapi "diptune/pkg/diptune"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tune.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func tuneRequestFixture() tuneapi.TuneRequest {
	return tuneapi.TuneRequest{
		Variant:    "sta_smc",
		Seed:       7,
		Particles:  12,
		Iterations: 25,
	}
}

func TestLoadTuneRequestFromConfig(t *testing.T) {
	path := writeConfig(t, `{
		"variant": "sta_smc",
		"run_id": "run-9",
		"seed": 77,
		"particles": 12,
		"iterations": 25,
		"workers": 2,
		"inertia": 0.7,
		"inertia_final": 0.3,
		"velocity_clamp": 0.2,
		"stagnation_window": 15,
		"bounds_min": [1, 1, 1, 1, 5, 0.1],
		"bounds_max": [100, 100, 20, 20, 150, 10],
		"dt": 0.005,
		"duration": 3.5,
		"integrator": "rk45",
		"max_force": 120,
		"boundary_layer": 0.02,
		"switch_method": "linear",
		"initial_state": [0, 0.1, -0.05, 0, 0, 0],
		"weights": {"state_error": 40, "control_effort": 0.3, "control_rate": 0.2, "stability": 0.5},
		"uncertainty": {"evals": 4, "scale": 0.15, "aggregate": "worst"}
	}`)

	req, err := loadTuneRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if req.Variant != "sta_smc" || req.RunID != "run-9" || req.Seed != 77 {
		t.Fatalf("identity fields wrong: %+v", req)
	}
	if req.Particles != 12 || req.Iterations != 25 || req.Workers != 2 {
		t.Fatalf("swarm fields wrong: %+v", req)
	}
	if req.Inertia != 0.7 || req.InertiaFinal != 0.3 || req.VelocityClamp != 0.2 || req.StagnationWindow != 15 {
		t.Fatalf("schedule fields wrong: %+v", req)
	}
	if len(req.BoundsMin) != 6 || req.BoundsMin[4] != 5 || req.BoundsMax[4] != 150 {
		t.Fatalf("bounds wrong: %+v", req)
	}
	if req.Dt != 0.005 || req.Duration != 3.5 || req.Integrator != "rk45" {
		t.Fatalf("simulation fields wrong: %+v", req)
	}
	if req.MaxForce != 120 || req.BoundaryLayer != 0.02 || req.SwitchMethod != "linear" {
		t.Fatalf("controller fields wrong: %+v", req)
	}
	if len(req.InitialState) != 6 || req.InitialState[1] != 0.1 {
		t.Fatalf("initial state wrong: %+v", req.InitialState)
	}
	if req.StateErrorWeight != 40 || req.ControlWeight != 0.3 || req.ControlRateWeight != 0.2 || req.StabilityWeight != 0.5 {
		t.Fatalf("weights wrong: %+v", req)
	}
	if req.UncertaintyEvals != 4 || req.UncertaintyScale != 0.15 || req.UncertaintyAggregate != "worst" {
		t.Fatalf("uncertainty wrong: %+v", req)
	}
}

func TestLoadTuneRequestRejectsBadFile(t *testing.T) {
	if _, err := loadTuneRequestFromConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := writeConfig(t, "{not json")
	if _, err := loadTuneRequestFromConfig(path); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestOverrideFromFlagsOnlyTouchesSetFlags(t *testing.T) {
	req := tuneRequestFixture()
	set := map[string]bool{"seed": true, "variant": true, "bounds-min": true}

	err := overrideFromFlags(&req, set, map[string]any{
		"seed":       int64(99),
		"variant":    "adaptive_smc",
		"bounds-min": []float64{2, 2, 2, 2, 0.5},
		"particles":  500,
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}

	if req.Seed != 99 || req.Variant != "adaptive_smc" {
		t.Fatalf("set flags not applied: %+v", req)
	}
	if len(req.BoundsMin) != 5 || req.BoundsMin[4] != 0.5 {
		t.Fatalf("bounds override not applied: %+v", req.BoundsMin)
	}
	if req.Particles != 12 {
		t.Fatalf("unset flag clobbered particles: %d", req.Particles)
	}
}

func TestOverrideFromFlagsDefaultsVariant(t *testing.T) {
	req := tuneRequestFixture()
	req.Variant = ""
	if err := overrideFromFlags(&req, map[string]bool{}, map[string]any{}); err != nil {
		t.Fatalf("override: %v", err)
	}
	if req.Variant != "classical_smc" {
		t.Fatalf("variant default missing: %q", req.Variant)
	}
}

func TestParseFloats(t *testing.T) {
	values, err := parseFloats(" 1, 2.5 ,-3 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(values) != 3 || values[1] != 2.5 || values[2] != -3 {
		t.Fatalf("wrong values: %v", values)
	}
	if got, err := parseFloats(""); err != nil || got != nil {
		t.Fatalf("empty input must parse to nil: %v %v", got, err)
	}
	if _, err := parseFloats("1,two"); err == nil {
		t.Fatalf("expected error for non-numeric entry")
	}
}
