package plant

import (
	"fmt"
	"math"
)

type Integrator string

const (
	IntegratorEuler Integrator = "euler"
	IntegratorRK4   Integrator = "rk4"
	IntegratorRK45  Integrator = "rk45"
)

func ParseIntegrator(name string) (Integrator, error) {
	switch Integrator(name) {
	case "", IntegratorRK4:
		return IntegratorRK4, nil
	case IntegratorEuler:
		return IntegratorEuler, nil
	case IntegratorRK45:
		return IntegratorRK45, nil
	default:
		return "", fmt.Errorf("unsupported integrator: %s", name)
	}
}

// Step advances the state by dt under a force held constant over the step.
func (m *Model) Step(s State, force, dt float64, method Integrator) (State, error) {
	switch method {
	case IntegratorEuler:
		return m.StepEuler(s, force, dt)
	case IntegratorRK4, "":
		return m.StepRK4(s, force, dt)
	case IntegratorRK45:
		return m.StepRK45(s, force, dt)
	default:
		return State{}, fmt.Errorf("unsupported integrator: %s", method)
	}
}

func (m *Model) StepEuler(s State, force, dt float64) (State, error) {
	d, err := m.RHS(s, force)
	if err != nil {
		return State{}, err
	}
	return advance(s, d, dt), nil
}

func (m *Model) StepRK4(s State, force, dt float64) (State, error) {
	k1, err := m.RHS(s, force)
	if err != nil {
		return State{}, err
	}
	k2, err := m.RHS(advance(s, k1, dt/2), force)
	if err != nil {
		return State{}, err
	}
	k3, err := m.RHS(advance(s, k2, dt/2), force)
	if err != nil {
		return State{}, err
	}
	k4, err := m.RHS(advance(s, k3, dt), force)
	if err != nil {
		return State{}, err
	}

	sum := combine(
		[]float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
		[]Derivative{k1, k2, k3, k4},
	)
	return advance(s, sum, dt), nil
}

const (
	rk45AbsTol    = 1e-8
	rk45RelTol    = 1e-6
	rk45Safety    = 0.9
	rk45MinShrink = 0.2
	rk45MaxGrow   = 5.0
)

// StepRK45 advances by dt using an embedded Fehlberg 4(5) pair with
// adaptive internal substeps. The force is held constant across the whole
// interval, matching the zero-order hold of the control loop.
func (m *Model) StepRK45(s State, force, dt float64) (State, error) {
	remaining := dt
	h := dt
	minStep := dt / 1024

	for remaining > 1e-14 {
		if h > remaining {
			h = remaining
		}

		next, errEst, err := m.fehlbergStep(s, force, h)
		if err != nil {
			return State{}, err
		}

		tol := rk45AbsTol + rk45RelTol*stateNorm(s)
		if errEst <= tol || h <= minStep {
			s = next
			remaining -= h
		}

		// Standard step-size controller for a 4th-order error estimate.
		factor := rk45MaxGrow
		if errEst > 0 {
			factor = rk45Safety * math.Pow(tol/errEst, 0.2)
		}
		if factor < rk45MinShrink {
			factor = rk45MinShrink
		}
		if factor > rk45MaxGrow {
			factor = rk45MaxGrow
		}
		h *= factor
		if h < minStep {
			h = minStep
		}
	}
	return s, nil
}

func (m *Model) fehlbergStep(s State, force, h float64) (State, float64, error) {
	k1, err := m.RHS(s, force)
	if err != nil {
		return State{}, 0, err
	}
	k2, err := m.RHS(advanceWeighted(s, h, []float64{0.25}, []Derivative{k1}), force)
	if err != nil {
		return State{}, 0, err
	}
	k3, err := m.RHS(advanceWeighted(s, h, []float64{3.0 / 32, 9.0 / 32}, []Derivative{k1, k2}), force)
	if err != nil {
		return State{}, 0, err
	}
	k4, err := m.RHS(advanceWeighted(s, h, []float64{1932.0 / 2197, -7200.0 / 2197, 7296.0 / 2197}, []Derivative{k1, k2, k3}), force)
	if err != nil {
		return State{}, 0, err
	}
	k5, err := m.RHS(advanceWeighted(s, h, []float64{439.0 / 216, -8, 3680.0 / 513, -845.0 / 4104}, []Derivative{k1, k2, k3, k4}), force)
	if err != nil {
		return State{}, 0, err
	}
	k6, err := m.RHS(advanceWeighted(s, h, []float64{-8.0 / 27, 2, -3544.0 / 2565, 1859.0 / 4104, -11.0 / 40}, []Derivative{k1, k2, k3, k4, k5}), force)
	if err != nil {
		return State{}, 0, err
	}

	fourth := advanceWeighted(s, h, []float64{25.0 / 216, 0, 1408.0 / 2565, 2197.0 / 4104, -1.0 / 5}, []Derivative{k1, k2, k3, k4, k5})
	fifth := advanceWeighted(s, h, []float64{16.0 / 135, 0, 6656.0 / 12825, 28561.0 / 56430, -9.0 / 50, 2.0 / 55}, []Derivative{k1, k2, k3, k4, k5, k6})

	errEst := 0.0
	fv, gv := fourth.Vector(), fifth.Vector()
	for i := range fv {
		if d := math.Abs(fv[i] - gv[i]); d > errEst {
			errEst = d
		}
	}
	return fifth, errEst, nil
}

func advance(s State, d Derivative, dt float64) State {
	return State{
		X:         s.X + dt*d.XDot,
		Theta1:    s.Theta1 + dt*d.Theta1Dot,
		Theta2:    s.Theta2 + dt*d.Theta2Dot,
		XDot:      s.XDot + dt*d.XDDot,
		Theta1Dot: s.Theta1Dot + dt*d.Theta1DDot,
		Theta2Dot: s.Theta2Dot + dt*d.Theta2DDot,
	}
}

func advanceWeighted(s State, h float64, weights []float64, ks []Derivative) State {
	sum := combine(weights, ks[:len(weights)])
	return advance(s, sum, h)
}

func combine(weights []float64, ks []Derivative) Derivative {
	var out Derivative
	for i, w := range weights {
		k := ks[i]
		out.XDot += w * k.XDot
		out.Theta1Dot += w * k.Theta1Dot
		out.Theta2Dot += w * k.Theta2Dot
		out.XDDot += w * k.XDDot
		out.Theta1DDot += w * k.Theta1DDot
		out.Theta2DDot += w * k.Theta2DDot
	}
	return out
}

func stateNorm(s State) float64 {
	max := 0.0
	for _, v := range s.Vector() {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	return max
}
