package rendezvous

import "math"

// RIC is the Radial / In-track / Cross-track frame of a reference spacecraft.
// R is along the position, C along the angular momentum and I = C x R.
type RIC struct {
	R, I, C Vec3
}

// NewRIC computes the RIC frame of the provided reference state.
// A null position or angular momentum yields zero axes.
func NewRIC(ref State) RIC {
	R := ref.R.Unit()
	C := ref.H().Unit()
	return RIC{R: R, I: C.Cross(R), C: C}
}

// DCM returns the ECI to RIC direction cosine matrix (rows are the RIC axes).
func (f RIC) DCM() Mat3 {
	return Mat3{f.R, f.I, f.C}
}

// FromECI projects an inertial vector on this frame.
func (f RIC) FromECI(v Vec3) Vec3 {
	return Vec3{v.Dot(f.R), v.Dot(f.I), v.Dot(f.C)}
}

// ToECI converts RIC components into an inertial vector.
func (f RIC) ToECI(v Vec3) Vec3 {
	return f.R.Scale(v[0]).Add(f.I.Scale(v[1])).Add(f.C.Scale(v[2]))
}

// ECIToRIC expresses the inertial vector v in the RIC frame of ref.
func ECIToRIC(v Vec3, ref State) Vec3 {
	return NewRIC(ref).FromECI(v)
}

// RICToECI converts a RIC vector of the ref frame into an inertial vector.
func RICToECI(v Vec3, ref State) Vec3 {
	return NewRIC(ref).ToECI(v)
}

// RelativePosition returns the position of chase with respect to target, in the target's RIC frame.
func RelativePosition(chase, target State) Vec3 {
	return ECIToRIC(chase.R.Sub(target.R), target)
}

// RelativeVelocity returns the velocity of chase as seen from the rotating RIC frame of target.
// The frame rate is approximated by the mean motion n about the cross-track axis.
func RelativeVelocity(chase, target State, n float64) Vec3 {
	f := NewRIC(target)
	ρ := f.FromECI(chase.R.Sub(target.R))
	dv := f.FromECI(chase.V.Sub(target.V))
	ω := Vec3{0, 0, n}
	return dv.Sub(ω.Cross(ρ))
}

// Range returns the distance between both spacecraft.
func Range(chase, target State) float64 {
	return chase.R.Sub(target.R).Norm()
}

// RangeRate returns the time derivative of the range, positive when opening.
func RangeRate(chase, target State) float64 {
	Δr := chase.R.Sub(target.R)
	ρ := Δr.Norm()
	if ρ == 0 {
		return 0
	}
	return Δr.Dot(chase.V.Sub(target.V)) / ρ
}

// MeanMotion returns sqrt(μ/a^3).
func MeanMotion(μ, a float64) float64 {
	return math.Sqrt(μ / (a * a * a))
}
