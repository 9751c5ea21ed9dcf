package plant

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Model evaluates the rigid-body dynamics of the double inverted pendulum.
// All methods are safe for concurrent use; the model itself is immutable.
type Model struct {
	p Params
}

func NewModel(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plant params: %w", err)
	}
	return &Model{p: p}, nil
}

func (m *Model) Params() Params { return m.p }

// Matrices assembles the inertia matrix H, the Coriolis/friction matrix C
// and the gravity vector G in the generalized coordinates (x, q1, q2).
func (m *Model) Matrices(s State) (*mat.SymDense, *mat.Dense, *mat.VecDense) {
	p := m.p
	c1, s1 := math.Cos(s.Theta1), math.Sin(s.Theta1)
	c2, s2 := math.Cos(s.Theta2), math.Sin(s.Theta2)
	c12 := math.Cos(s.Theta1 - s.Theta2)
	s12 := math.Sin(s.Theta1 - s.Theta2)

	h11 := p.CartMass + p.Pendulum1Mass + p.Pendulum2Mass
	h12 := (p.Pendulum1Mass*p.Pendulum1COM + p.Pendulum2Mass*p.Pendulum1Length) * c1
	h13 := p.Pendulum2Mass * p.Pendulum2COM * c2
	h22 := p.Pendulum1Mass*p.Pendulum1COM*p.Pendulum1COM + p.Pendulum2Mass*p.Pendulum1Length*p.Pendulum1Length + p.Pendulum1Inertia
	h23 := p.Pendulum2Mass * p.Pendulum1Length * p.Pendulum2COM * c12
	h33 := p.Pendulum2Mass*p.Pendulum2COM*p.Pendulum2COM + p.Pendulum2Inertia

	h := mat.NewSymDense(3, []float64{
		h11, h12, h13,
		h12, h22, h23,
		h13, h23, h33,
	})

	coupling := p.Pendulum2Mass * p.Pendulum1Length * p.Pendulum2COM
	c := mat.NewDense(3, 3, []float64{
		p.CartFriction, 0, 0,
		0, p.Joint1Friction, -coupling * s12 * s.Theta2Dot,
		0, coupling * s12 * s.Theta1Dot, p.Joint2Friction,
	})

	g := mat.NewVecDense(3, []float64{
		0,
		(p.Pendulum1Mass*p.Pendulum1COM + p.Pendulum2Mass*p.Pendulum1Length) * p.Gravity * s1,
		p.Pendulum2Mass * p.Pendulum2COM * p.Gravity * s2,
	})

	return h, c, g
}

// Regularization returns the Tikhonov term to add to the diagonal of h and
// the estimated condition number of the raw matrix. The term scales with the
// largest singular value and grows when the condition number exceeds the
// configured maximum.
func (m *Model) Regularization(h *mat.SymDense) (reg, cond float64) {
	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDNone) {
		return m.p.MinRegularization, math.Inf(1)
	}
	values := svd.Values(nil)
	sigmaMax := values[0]
	sigmaMin := values[len(values)-1]

	tol := m.p.ConditionTolFactor * sigmaMax
	denom := sigmaMin
	if denom <= tol {
		denom = tol
	}
	if denom <= 0 {
		cond = math.Inf(1)
	} else {
		cond = sigmaMax / denom
	}

	if m.p.UseFixedRegularization {
		return m.p.MinRegularization, cond
	}
	reg = m.p.RegularizationAlpha * sigmaMax
	if reg < m.p.MinRegularization {
		reg = m.p.MinRegularization
	}
	if cond > m.p.MaxConditionNumber {
		reg *= cond / m.p.MaxConditionNumber
	}
	return reg, cond
}

// RHS computes the state derivative under the applied cart force. The
// inertia solve is regularized; an error is returned only when the
// regularized matrix is still effectively singular.
func (m *Model) RHS(s State, force float64) (Derivative, error) {
	h, c, g := m.Matrices(s)

	qdot := mat.NewVecDense(3, []float64{s.XDot, s.Theta1Dot, s.Theta2Dot})
	rhs := mat.NewVecDense(3, []float64{force, 0, 0})
	var cq mat.VecDense
	cq.MulVec(c, qdot)
	rhs.SubVec(rhs, &cq)
	rhs.SubVec(rhs, g)

	reg, _ := m.Regularization(h)
	hreg := mat.NewSymDense(3, nil)
	hreg.CopySym(h)
	for i := 0; i < 3; i++ {
		hreg.SetSym(i, i, hreg.At(i, i)+reg)
	}

	var chol mat.Cholesky
	var qddot mat.VecDense
	if chol.Factorize(hreg) {
		if err := chol.SolveVecTo(&qddot, rhs); err != nil {
			return Derivative{}, fmt.Errorf("inertia solve: %w", err)
		}
	} else {
		var dense mat.Dense
		dense.CloneFrom(hreg)
		if err := qddot.SolveVec(&dense, rhs); err != nil {
			return Derivative{}, fmt.Errorf("inertia matrix singular after regularization: %w", err)
		}
	}
	for i := 0; i < 3; i++ {
		if v := qddot.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return Derivative{}, fmt.Errorf("non-finite acceleration from inertia solve")
		}
	}

	return Derivative{
		XDot:       s.XDot,
		Theta1Dot:  s.Theta1Dot,
		Theta2Dot:  s.Theta2Dot,
		XDDot:      qddot.AtVec(0),
		Theta1DDot: qddot.AtVec(1),
		Theta2DDot: qddot.AtVec(2),
	}, nil
}
