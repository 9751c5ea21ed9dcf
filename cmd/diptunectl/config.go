package main

import (
	"encoding/json"
	"fmt"
	"os"

	tuneapi "diptune/pkg/diptune"
)

func loadTuneRequestFromConfig(path string) (tuneapi.TuneRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tuneapi.TuneRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return tuneapi.TuneRequest{}, err
	}

	var req tuneapi.TuneRequest
	if v, ok := asString(raw["variant"]); ok {
		req.Variant = v
	}
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["particles"]); ok {
		req.Particles = v
	}
	if v, ok := asInt(raw["iterations"]); ok {
		req.Iterations = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asFloat64(raw["inertia"]); ok {
		req.Inertia = v
	}
	if v, ok := asFloat64(raw["inertia_final"]); ok {
		req.InertiaFinal = v
	}
	if v, ok := asFloat64(raw["cognitive"]); ok {
		req.Cognitive = v
	}
	if v, ok := asFloat64(raw["social"]); ok {
		req.Social = v
	}
	if v, ok := asFloat64(raw["velocity_clamp"]); ok {
		req.VelocityClamp = v
	}
	if v, ok := asInt(raw["stagnation_window"]); ok {
		req.StagnationWindow = v
	}
	if v, ok := asFloatSlice(raw["bounds_min"]); ok {
		req.BoundsMin = v
	}
	if v, ok := asFloatSlice(raw["bounds_max"]); ok {
		req.BoundsMax = v
	}
	if v, ok := asFloat64(raw["dt"]); ok {
		req.Dt = v
	}
	if v, ok := asFloat64(raw["duration"]); ok {
		req.Duration = v
	}
	if v, ok := asString(raw["integrator"]); ok {
		req.Integrator = v
	}
	if v, ok := asFloat64(raw["max_force"]); ok {
		req.MaxForce = v
	}
	if v, ok := asFloat64(raw["boundary_layer"]); ok {
		req.BoundaryLayer = v
	}
	if v, ok := asString(raw["switch_method"]); ok {
		req.SwitchMethod = v
	}
	if v, ok := asFloatSlice(raw["initial_state"]); ok {
		req.InitialState = v
	}

	if weights, ok := raw["weights"].(map[string]any); ok {
		if v, ok := asFloat64(weights["state_error"]); ok {
			req.StateErrorWeight = v
		}
		if v, ok := asFloat64(weights["control_effort"]); ok {
			req.ControlWeight = v
		}
		if v, ok := asFloat64(weights["control_rate"]); ok {
			req.ControlRateWeight = v
		}
		if v, ok := asFloat64(weights["stability"]); ok {
			req.StabilityWeight = v
		}
	}

	if unc, ok := raw["uncertainty"].(map[string]any); ok {
		if v, ok := asInt(unc["evals"]); ok {
			req.UncertaintyEvals = v
		}
		if v, ok := asFloat64(unc["scale"]); ok {
			req.UncertaintyScale = v
		}
		if v, ok := asString(unc["aggregate"]); ok {
			req.UncertaintyAggregate = v
		}
	}

	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asFloatSlice(v any) ([]float64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	values := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := asFloat64(item)
		if !ok {
			return nil, false
		}
		values = append(values, f)
	}
	return values, true
}

func overrideFromFlags(req *tuneapi.TuneRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "variant":
			req.Variant = v.(string)
		case "run-id":
			req.RunID = v.(string)
		case "seed":
			req.Seed = v.(int64)
		case "particles":
			req.Particles = v.(int)
		case "iterations":
			req.Iterations = v.(int)
		case "workers":
			req.Workers = v.(int)
		case "inertia":
			req.Inertia = v.(float64)
		case "inertia-final":
			req.InertiaFinal = v.(float64)
		case "cognitive":
			req.Cognitive = v.(float64)
		case "social":
			req.Social = v.(float64)
		case "velocity-clamp":
			req.VelocityClamp = v.(float64)
		case "stagnation-window":
			req.StagnationWindow = v.(int)
		case "bounds-min":
			req.BoundsMin = v.([]float64)
		case "bounds-max":
			req.BoundsMax = v.([]float64)
		case "dt":
			req.Dt = v.(float64)
		case "duration":
			req.Duration = v.(float64)
		case "integrator":
			req.Integrator = v.(string)
		case "max-force":
			req.MaxForce = v.(float64)
		case "boundary-layer":
			req.BoundaryLayer = v.(float64)
		case "switch-method":
			req.SwitchMethod = v.(string)
		case "initial-state":
			req.InitialState = v.([]float64)
		case "w-state":
			req.StateErrorWeight = v.(float64)
		case "w-effort":
			req.ControlWeight = v.(float64)
		case "w-rate":
			req.ControlRateWeight = v.(float64)
		case "w-stability":
			req.StabilityWeight = v.(float64)
		case "uncertainty-evals":
			req.UncertaintyEvals = v.(int)
		case "uncertainty-scale":
			req.UncertaintyScale = v.(float64)
		case "uncertainty-aggregate":
			req.UncertaintyAggregate = v.(string)
		}
	}
	if req.Variant == "" {
		req.Variant = "classical_smc"
	}
	return nil
}

func loadOrDefaultTuneRequest(configPath string) (tuneapi.TuneRequest, error) {
	if configPath == "" {
		return tuneapi.TuneRequest{}, nil
	}
	req, err := loadTuneRequestFromConfig(configPath)
	if err != nil {
		return tuneapi.TuneRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
