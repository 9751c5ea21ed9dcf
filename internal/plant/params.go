package plant

import "fmt"

// Params holds the physical constants of the double inverted pendulum
// together with the regularization knobs used when inverting the inertia
// matrix.
type Params struct {
	CartMass float64 `json:"cart_mass"`

	Pendulum1Mass    float64 `json:"pendulum1_mass"`
	Pendulum2Mass    float64 `json:"pendulum2_mass"`
	Pendulum1Length  float64 `json:"pendulum1_length"`
	Pendulum2Length  float64 `json:"pendulum2_length"`
	Pendulum1COM     float64 `json:"pendulum1_com"`
	Pendulum2COM     float64 `json:"pendulum2_com"`
	Pendulum1Inertia float64 `json:"pendulum1_inertia"`
	Pendulum2Inertia float64 `json:"pendulum2_inertia"`

	Gravity float64 `json:"gravity"`

	CartFriction   float64 `json:"cart_friction"`
	Joint1Friction float64 `json:"joint1_friction"`
	Joint2Friction float64 `json:"joint2_friction"`

	// Regularization of the inertia matrix solve. The base term scales
	// with the largest singular value and is increased further when the
	// condition number exceeds MaxConditionNumber.
	RegularizationAlpha    float64 `json:"regularization_alpha"`
	MinRegularization      float64 `json:"min_regularization"`
	MaxConditionNumber     float64 `json:"max_condition_number"`
	ConditionTolFactor     float64 `json:"condition_tol_factor"`
	SingularityThreshold   float64 `json:"singularity_cond_threshold"`
	UseFixedRegularization bool    `json:"use_fixed_regularization"`
}

// DefaultParams returns the nominal benchmark pendulum.
func DefaultParams() Params {
	return Params{
		CartMass:             1.5,
		Pendulum1Mass:        0.2,
		Pendulum2Mass:        0.15,
		Pendulum1Length:      0.4,
		Pendulum2Length:      0.3,
		Pendulum1COM:         0.2,
		Pendulum2COM:         0.15,
		Pendulum1Inertia:     0.00265,
		Pendulum2Inertia:     0.00115,
		Gravity:              9.81,
		CartFriction:         0.2,
		Joint1Friction:       0.005,
		Joint2Friction:       0.004,
		RegularizationAlpha:  1e-4,
		MinRegularization:    1e-10,
		MaxConditionNumber:   1e14,
		ConditionTolFactor:   1e-12,
		SingularityThreshold: 1e8,
	}
}

func (p Params) Validate() error {
	if p.CartMass <= 0 || p.Pendulum1Mass <= 0 || p.Pendulum2Mass <= 0 {
		return fmt.Errorf("masses must be > 0")
	}
	if p.Pendulum1Length <= 0 || p.Pendulum2Length <= 0 {
		return fmt.Errorf("link lengths must be > 0")
	}
	if p.Pendulum1COM <= 0 || p.Pendulum1COM > p.Pendulum1Length {
		return fmt.Errorf("pendulum1 com must be in (0, length]")
	}
	if p.Pendulum2COM <= 0 || p.Pendulum2COM > p.Pendulum2Length {
		return fmt.Errorf("pendulum2 com must be in (0, length]")
	}
	if p.Pendulum1Inertia <= 0 || p.Pendulum2Inertia <= 0 {
		return fmt.Errorf("link inertias must be > 0")
	}
	if p.Gravity <= 0 {
		return fmt.Errorf("gravity must be > 0")
	}
	if p.CartFriction < 0 || p.Joint1Friction < 0 || p.Joint2Friction < 0 {
		return fmt.Errorf("friction coefficients must be >= 0")
	}
	if p.RegularizationAlpha <= 0 {
		return fmt.Errorf("regularization alpha must be > 0")
	}
	if p.MinRegularization <= 0 {
		return fmt.Errorf("min regularization must be > 0")
	}
	if p.MaxConditionNumber <= 1 {
		return fmt.Errorf("max condition number must be > 1")
	}
	if p.ConditionTolFactor <= 0 {
		return fmt.Errorf("condition tolerance factor must be > 0")
	}
	if p.SingularityThreshold <= 1 {
		return fmt.Errorf("singularity condition threshold must be > 1")
	}
	return nil
}
