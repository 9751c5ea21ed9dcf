package smc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"diptune/internal/plant"
)

// SolveDiagnostics reports how the equivalent-control solve went.
type SolveDiagnostics struct {
	Cond           float64 `json:"cond"`
	Regularization float64 `json:"regularization"`
	PseudoInverse  bool    `json:"pseudo_inverse"`
	Degenerate     bool    `json:"degenerate"`
}

// EquivalentControl solves for the model-based control component that
// cancels the nominal dynamics on the sliding surface. It fails closed:
// any unrecoverable numerical condition yields zero equivalent control
// and a diagnostic flag instead of an error.
type EquivalentControl struct {
	model *plant.Model
}

func NewEquivalentControl(model *plant.Model) *EquivalentControl {
	return &EquivalentControl{model: model}
}

// minDenominator guards the division by the surface-to-input coupling.
const minDenominator = 1e-10

// Compute returns u_eq for a surface whose derivative is
// coeff . qddot + drift. The inertia matrix is always regularized before
// inversion; above the singularity condition threshold the direct solve is
// replaced by a pseudo-inverse.
func (e *EquivalentControl) Compute(s plant.State, coeff [3]float64, drift float64) (float64, SolveDiagnostics) {
	h, c, g := e.model.Matrices(s)
	reg, cond := e.model.Regularization(h)
	diag := SolveDiagnostics{Cond: cond, Regularization: reg}

	hreg := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := h.At(i, j)
			if i == j {
				v += reg
			}
			hreg.Set(i, j, v)
		}
	}

	// Right-hand sides: the drift forces and the input direction.
	qdot := mat.NewVecDense(3, []float64{s.XDot, s.Theta1Dot, s.Theta2Dot})
	fDrift := mat.NewVecDense(3, nil)
	fDrift.MulVec(c, qdot)
	fDrift.AddVec(fDrift, g)
	fDrift.ScaleVec(-1, fDrift)
	fInput := mat.NewVecDense(3, []float64{1, 0, 0})

	var yDrift, yInput mat.VecDense
	usePinv := cond > e.model.Params().SingularityThreshold
	if !usePinv {
		errA := yDrift.SolveVec(hreg, fDrift)
		errB := yInput.SolveVec(hreg, fInput)
		if errA != nil || errB != nil {
			usePinv = true
		}
	}
	if usePinv {
		diag.PseudoInverse = true
		var ok bool
		yDrift, ok = pinvSolve(hreg, fDrift)
		if !ok {
			diag.Degenerate = true
			return 0, diag
		}
		yInput, ok = pinvSolve(hreg, fInput)
		if !ok {
			diag.Degenerate = true
			return 0, diag
		}
	}

	num := drift
	den := 0.0
	for i := 0; i < 3; i++ {
		num += coeff[i] * yDrift.AtVec(i)
		den += coeff[i] * yInput.AtVec(i)
	}
	if math.Abs(den) < minDenominator || math.IsNaN(num) || math.IsInf(num, 0) {
		diag.Degenerate = true
		return 0, diag
	}

	ueq := -num / den
	if math.IsNaN(ueq) || math.IsInf(ueq, 0) {
		diag.Degenerate = true
		return 0, diag
	}
	return ueq, diag
}

// pinvSolve computes pinv(a) * b through the SVD, zeroing singular values
// below a relative tolerance.
func pinvSolve(a *mat.Dense, b *mat.VecDense) (mat.VecDense, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return mat.VecDense{}, false
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := values[0] * 1e-15 * float64(len(values))
	n := b.Len()

	var ub mat.VecDense
	ub.MulVec(u.T(), b)
	scaled := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if values[i] > tol {
			scaled.SetVec(i, ub.AtVec(i)/values[i])
		}
	}

	var out mat.VecDense
	out.MulVec(&v, scaled)
	for i := 0; i < out.Len(); i++ {
		if val := out.AtVec(i); math.IsNaN(val) || math.IsInf(val, 0) {
			return mat.VecDense{}, false
		}
	}
	return out, true
}
