package plant

import "math"

// State is the full configuration of the cart and both links.
// Angles are measured from the upright position.
type State struct {
	X         float64 `json:"x"`
	Theta1    float64 `json:"theta1"`
	Theta2    float64 `json:"theta2"`
	XDot      float64 `json:"x_dot"`
	Theta1Dot float64 `json:"theta1_dot"`
	Theta2Dot float64 `json:"theta2_dot"`
}

func (s State) Vector() [6]float64 {
	return [6]float64{s.X, s.Theta1, s.Theta2, s.XDot, s.Theta1Dot, s.Theta2Dot}
}

func StateFromVector(v [6]float64) State {
	return State{X: v[0], Theta1: v[1], Theta2: v[2], XDot: v[3], Theta1Dot: v[4], Theta2Dot: v[5]}
}

func (s State) Finite() bool {
	for _, v := range s.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Derivative is the time derivative of State.
type Derivative struct {
	XDot       float64
	Theta1Dot  float64
	Theta2Dot  float64
	XDDot      float64
	Theta1DDot float64
	Theta2DDot float64
}
