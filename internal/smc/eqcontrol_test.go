package smc

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"diptune/internal/plant"
)

func TestEquivalentControlFiniteAtUpright(t *testing.T) {
	cfg := testConfig(t)
	eq := NewEquivalentControl(cfg.Model)

	surface, err := NewSurface(10, 5, 2, 1)
	if err != nil {
		t.Fatalf("new surface: %v", err)
	}

	s := plant.State{Theta1: 0.05, Theta2: -0.03, Theta1Dot: 0.2}
	ueq, diag := eq.Compute(s, surface.coefficients(), surface.drift(s))
	if math.IsNaN(ueq) || math.IsInf(ueq, 0) {
		t.Fatalf("equivalent control not finite: %v", ueq)
	}
	if diag.Degenerate {
		t.Fatalf("well-posed solve flagged degenerate: %+v", diag)
	}
	if diag.Cond <= 0 {
		t.Fatalf("condition estimate missing: %+v", diag)
	}
}

func TestEquivalentControlFailsClosedOnZeroCoupling(t *testing.T) {
	cfg := testConfig(t)
	eq := NewEquivalentControl(cfg.Model)

	// A surface with no projection onto any acceleration has zero input
	// coupling; the solver must return zero rather than divide by it.
	ueq, diag := eq.Compute(plant.State{Theta1: 0.1}, [3]float64{}, 0)
	if ueq != 0 {
		t.Fatalf("degenerate solve must return zero, got %v", ueq)
	}
	if !diag.Degenerate {
		t.Fatalf("degenerate flag not set: %+v", diag)
	}
}

func TestPseudoInverseSolveSingularMatrix(t *testing.T) {
	// Intentionally rank-deficient: second row is a multiple of the first.
	a := mat.NewDense(2, 2, []float64{1, 2, 2, 4})
	b := mat.NewVecDense(2, []float64{1, 2})

	x, ok := pinvSolve(a, b)
	if !ok {
		t.Fatalf("pseudo-inverse solve failed on singular matrix")
	}
	for i := 0; i < x.Len(); i++ {
		if v := x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("pseudo-inverse produced non-finite component %d: %v", i, v)
		}
	}

	// The minimum-norm solution still satisfies a*x = b for a consistent
	// right-hand side.
	var back mat.VecDense
	back.MulVec(a, &x)
	for i := 0; i < back.Len(); i++ {
		if math.Abs(back.AtVec(i)-b.AtVec(i)) > 1e-9 {
			t.Fatalf("residual too large at %d: got %v want %v", i, back.AtVec(i), b.AtVec(i))
		}
	}
}

func TestHybridEquivalentControlToggle(t *testing.T) {
	cfg := testConfig(t)
	s := plant.State{X: 0.2, Theta1: 0.05, Theta2: -0.03}

	off, err := Build("hybrid_adaptive_sta_smc", []float64{5, 2, 3, 1}, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if out := off.Compute(s, 0); out.Equivalent != 0 {
		t.Fatalf("equivalent control computed while disabled: %v", out.Equivalent)
	}

	cfg.EnableEquivalent = true
	on, err := Build("hybrid_adaptive_sta_smc", []float64{5, 2, 3, 1}, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out := on.Compute(s, 0)
	if math.IsNaN(out.Equivalent) || math.IsInf(out.Equivalent, 0) {
		t.Fatalf("equivalent control not finite: %v", out.Equivalent)
	}
}
