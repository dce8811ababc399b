package rendezvous

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// ErrCWSingular is returned when the Clohessy-Wiltshire transfer matrix cannot be inverted,
// typically for a time of flight which is a multiple of the orbital period.
var ErrCWSingular = errors.New("singular Clohessy-Wiltshire transfer")

const (
	stationKeepingKp = 0.01 // Position gain, 1/s.
	stationKeepingKv = 0.1  // Velocity gain.
)

// RelState is a relative position and velocity in a rotating RIC frame.
type RelState struct {
	Pos Vec3 `json:"position_ric_m"`
	Vel Vec3 `json:"velocity_ric_ms"`
}

// NewRelState returns the state of chase relative to target, in the target's rotating RIC frame.
func NewRelState(chase, target State, n float64) RelState {
	return RelState{Pos: RelativePosition(chase, target), Vel: RelativeVelocity(chase, target, n)}
}

// PropagateCW propagates the linearized relative motion about a circular reference orbit of mean motion n.
func PropagateCW(rel RelState, n, dt float64) RelState {
	x0, y0, z0 := rel.Pos[0], rel.Pos[1], rel.Pos[2]
	vx0, vy0, vz0 := rel.Vel[0], rel.Vel[1], rel.Vel[2]
	nt := n * dt
	s, c := math.Sincos(nt)
	return RelState{
		Pos: Vec3{
			(4-3*c)*x0 + s/n*vx0 + 2/n*(1-c)*vy0,
			6*(s-nt)*x0 + y0 - 2/n*(1-c)*vx0 + (4*s/n-3*dt)*vy0,
			z0*c + vz0/n*s,
		},
		Vel: Vec3{
			3*n*s*x0 + c*vx0 + 2*s*vy0,
			6*n*(c-1)*x0 - 2*s*vx0 + (4*c-3)*vy0,
			-z0*n*s + vz0*c,
		},
	}
}

// CWTransfer returns the relative velocity needed at r0 to reach rf after tof, and the velocity at arrival.
func CWTransfer(r0, rf Vec3, tof, n float64) (v0, vf Vec3, err error) {
	if tof <= 0 || n <= 0 {
		return v0, vf, fmt.Errorf("%w: tof=%f n=%f", ErrCWSingular, tof, n)
	}
	nt := n * tof
	s, c := math.Sincos(nt)
	// Φrv
	φ11 := s / n
	φ12 := 2 * (1 - c) / n
	φ21 := -2 * (1 - c) / n
	φ22 := (4*s - 3*nt) / n
	φ33 := s / n
	// Target position minus the natural motion of r0.
	adj := Vec3{
		rf[0] - (4-3*c)*r0[0],
		rf[1] - (6*(s-nt)*r0[0] + r0[1]),
		rf[2] - c*r0[2],
	}
	det := φ11*φ22 - φ12*φ21
	if scalar.EqualWithinAbs(det, 0, 1e-9*tof*tof) {
		return v0, vf, fmt.Errorf("%w: tof=%f is too close to a multiple of the period", ErrCWSingular, tof)
	}
	v0[0] = (φ22*adj[0] - φ12*adj[1]) / det
	v0[1] = (-φ21*adj[0] + φ11*adj[1]) / det
	// No cross-track control at half periods.
	if scalar.EqualWithinAbs(φ33, 0, 1e-9*tof) {
		if !scalar.EqualWithinAbs(adj[2], 0, 1e-6) {
			return v0, vf, fmt.Errorf("%w: cross-track target unreachable after tof=%f", ErrCWSingular, tof)
		}
	} else {
		v0[2] = adj[2] / φ33
	}
	vf = PropagateCW(RelState{Pos: r0, Vel: v0}, n, tof).Vel
	return v0, vf, nil
}

// StationKeepingDV returns a proportional-derivative Δv (RIC) driving rel toward hold.
func StationKeepingDV(rel RelState, hold Vec3) Vec3 {
	return hold.Sub(rel.Pos).Scale(stationKeepingKp).Sub(rel.Vel.Scale(stationKeepingKv))
}

// FootballOrbit returns the natural motion ellipse from a pure radial offset x0:
// the in-track amplitude is twice the radial one and the period is the orbital period.
func FootballOrbit(x0, n float64) (inTrack, radial, period float64) {
	return 2 * x0, x0, 2 * math.Pi / n
}

// Leg is one impulsive transfer between two relative positions.
type Leg struct {
	From Vec3    `json:"from_ric_m"`
	To   Vec3    `json:"to_ric_m"`
	TOF  float64 `json:"tof_s"`
	DV1  Vec3    `json:"dv1_ric_ms"`
	DV2  Vec3    `json:"dv2_ric_ms"`
	Hold float64 `json:"hold_s"`
}

// DV returns the Δv magnitude of this leg.
func (l Leg) DV() float64 {
	return l.DV1.Norm() + l.DV2.Norm()
}

// newLeg plans a leg starting at rest in the rotating frame and stopping at the destination.
func newLeg(from, to Vec3, tof, n, hold float64) (Leg, error) {
	v0, vf, err := CWTransfer(from, to, tof, n)
	if err != nil {
		return Leg{}, err
	}
	return Leg{From: from, To: to, TOF: tof, DV1: v0, DV2: vf.Scale(-1), Hold: hold}, nil
}

// PlanCircumnavigation plans waypoints on a circle of the provided radius in the R-I plane,
// one orbital period being split evenly between the legs.
func PlanCircumnavigation(start Vec3, radius float64, waypoints int, n float64) ([]Leg, error) {
	if waypoints < 2 {
		return nil, fmt.Errorf("need at least two waypoints, got %d", waypoints)
	}
	const hold = 60.0
	legTime := 2 * math.Pi / n / float64(waypoints)
	legs := make([]Leg, 0, waypoints)
	current := start
	for i := 0; i < waypoints; i++ {
		s, c := math.Sincos(2 * math.Pi * float64(i) / float64(waypoints))
		wp := Vec3{radius * c, radius * s, 0}
		leg, err := newLeg(current, wp, legTime, n, hold)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		legs = append(legs, leg)
		current = wp
	}
	return legs, nil
}

// PlanApproach plans a straight approach to the hold point at the given closing rate.
// A hold point on the in-track axis is a V-bar approach, on the radial axis an R-bar one.
func PlanApproach(current, hold Vec3, rate, n float64) (Leg, error) {
	if rate <= 0 {
		return Leg{}, fmt.Errorf("approach rate must be positive, got %f", rate)
	}
	return newLeg(current, hold, hold.Sub(current).Norm()/rate, n, 0)
}
