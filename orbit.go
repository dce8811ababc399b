package rendezvous

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// Elements are the classical orbital elements of a state. Angles are in radians.
type Elements struct {
	SMA      float64 `json:"sma_m"`
	Ecc      float64 `json:"ecc"`
	Inc      float64 `json:"inc_rad"`
	RAAN     float64 `json:"raan_rad"`
	ArgPeri  float64 `json:"arg_peri_rad"`
	TrueAnom float64 `json:"true_anomaly_rad"`
	Energy   float64 `json:"energy"`
	H        float64 `json:"h"`
	μ        float64
}

// NewElements returns the orbital elements of the provided state.
func NewElements(s State, μ float64) Elements {
	// From Vallado's RV2COE, page 113
	hVec := s.H()
	n := Vec3{0, 0, 1}.Cross(hVec)
	v := s.V.Norm()
	r := s.R.Norm()
	ξ := (v*v)/2 - μ/r
	a := -μ / (2 * ξ)
	rv := s.R.Dot(s.V)
	eVec := s.R.Scale(v*v - μ/r).Sub(s.V.Scale(rv)).Scale(1 / μ)
	e := eVec.Norm()
	i := math.Acos(clamp(hVec[2] / hVec.Norm()))
	// Equatorial orbits have no node and circular ones no periapsis: those angles are then zero.
	var Ω, ω float64
	if nn := n.Norm(); !scalar.EqualWithinAbs(nn, 0, zeroTol) {
		Ω = math.Acos(clamp(n[0] / nn))
		if n[1] < 0 {
			Ω = 2*math.Pi - Ω
		}
		if !scalar.EqualWithinAbs(e, 0, zeroTol) {
			ω = math.Acos(clamp(n.Dot(eVec) / (nn * e)))
			if eVec[2] < 0 {
				ω = 2*math.Pi - ω
			}
		}
	}
	var ν float64
	if !scalar.EqualWithinAbs(e, 0, zeroTol) {
		ν = math.Acos(clamp(eVec.Dot(s.R) / (e * r)))
		if rv < 0 {
			ν = 2*math.Pi - ν
		}
	}
	return Elements{SMA: a, Ecc: e, Inc: i, RAAN: Ω, ArgPeri: ω, TrueAnom: ν, Energy: ξ, H: hVec.Norm(), μ: μ}
}

// clamp bounds a cosine to [-1, 1] to avoid a NaN from rounding errors.
func clamp(cosθ float64) float64 {
	if math.Abs(cosθ) > 1 {
		return sign(cosθ)
	}
	return cosθ
}

// MeanMotion returns the mean motion in radians per second, or zero for open orbits.
func (e Elements) MeanMotion() float64 {
	if e.SMA <= 0 {
		return 0
	}
	return MeanMotion(e.μ, e.SMA)
}

// Period returns the orbital period in seconds, or zero for open orbits.
func (e Elements) Period() float64 {
	n := e.MeanMotion()
	if n == 0 {
		return 0
	}
	return 2 * math.Pi / n
}

// CircularState returns the state on a circular equatorial orbit of radius r at longitude λ (radians).
func CircularState(r, λ, μ float64) State {
	s, c := math.Sincos(λ)
	v := math.Sqrt(μ / r)
	return State{R: Vec3{r * c, r * s, 0}, V: Vec3{-v * s, v * c, 0}}
}
