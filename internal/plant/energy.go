package plant

import "math"

func (m *Model) KineticEnergy(s State) float64 {
	p := m.p
	tCart := 0.5 * p.CartMass * s.XDot * s.XDot

	v1x := s.XDot - p.Pendulum1COM*s.Theta1Dot*math.Sin(s.Theta1)
	v1y := p.Pendulum1COM * s.Theta1Dot * math.Cos(s.Theta1)
	t1 := 0.5*p.Pendulum1Mass*(v1x*v1x+v1y*v1y) + 0.5*p.Pendulum1Inertia*s.Theta1Dot*s.Theta1Dot

	v2x := s.XDot - p.Pendulum1Length*s.Theta1Dot*math.Sin(s.Theta1) - p.Pendulum2COM*s.Theta2Dot*math.Sin(s.Theta2)
	v2y := p.Pendulum1Length*s.Theta1Dot*math.Cos(s.Theta1) + p.Pendulum2COM*s.Theta2Dot*math.Cos(s.Theta2)
	t2 := 0.5*p.Pendulum2Mass*(v2x*v2x+v2y*v2y) + 0.5*p.Pendulum2Inertia*s.Theta2Dot*s.Theta2Dot

	return tCart + t1 + t2
}

func (m *Model) PotentialEnergy(s State) float64 {
	p := m.p
	v1 := p.Pendulum1Mass * p.Gravity * p.Pendulum1COM * (1 - math.Cos(s.Theta1))
	v2 := p.Pendulum2Mass * p.Gravity * (p.Pendulum1Length*(1-math.Cos(s.Theta1)) + p.Pendulum2COM*(1-math.Cos(s.Theta2)))
	return v1 + v2
}

func (m *Model) TotalEnergy(s State) float64 {
	return m.KineticEnergy(s) + m.PotentialEnergy(s)
}
