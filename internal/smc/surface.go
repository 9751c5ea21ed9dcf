package smc

import (
	"fmt"

	"diptune/internal/plant"
)

// Surface is the linear sliding surface over the two pendulum errors,
// sigma = k1*(th1dot + lam1*th1) + k2*(th2dot + lam2*th2).
type Surface struct {
	K1   float64
	K2   float64
	Lam1 float64
	Lam2 float64
}

func NewSurface(k1, k2, lam1, lam2 float64) (Surface, error) {
	f := Surface{K1: k1, K2: k2, Lam1: lam1, Lam2: lam2}
	if k1 <= 0 || k2 <= 0 || lam1 <= 0 || lam2 <= 0 {
		return Surface{}, fmt.Errorf("surface gains must be > 0, got [%v %v %v %v]", k1, k2, lam1, lam2)
	}
	return f, nil
}

func (f Surface) Sigma(s plant.State) float64 {
	return f.K1*(s.Theta1Dot+f.Lam1*s.Theta1) + f.K2*(s.Theta2Dot+f.Lam2*s.Theta2)
}

// drift is the velocity-proportional part of sigma-dot that does not
// involve accelerations. Used by the equivalent-control solve.
func (f Surface) drift(s plant.State) float64 {
	return f.K1*f.Lam1*s.Theta1Dot + f.K2*f.Lam2*s.Theta2Dot
}

// coefficients maps the surface onto the generalized accelerations
// (xddot, th1ddot, th2ddot).
func (f Surface) coefficients() [3]float64 {
	return [3]float64{0, f.K1, f.K2}
}
