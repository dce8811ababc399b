package rendezvous

import (
	"errors"
	"fmt"
	"math"

	"github.com/orbitalarena/rendezvous/integrator"
)

const (
	// DefaultMaxStep is the largest RK4 substep, in seconds.
	DefaultMaxStep = 60.0
	// EarthMu is the Earth gravitational parameter in m^3/s^2.
	EarthMu = 3.986004418e14
)

var (
	// ErrInvalidState is returned for NaN, infinite or null position or velocity vectors.
	ErrInvalidState = errors.New("invalid spacecraft state")
	// ErrInvalidDuration is returned for NaN, infinite or otherwise unusable durations.
	ErrInvalidDuration = errors.New("invalid duration")
)

// State is an inertial (ECI) position and velocity, in meters and meters per second.
type State struct {
	R Vec3 `json:"position_eci_m"`
	V Vec3 `json:"velocity_eci_ms"`
}

// Validate returns an error wrapping ErrInvalidState if this state cannot be propagated.
func (s State) Validate() error {
	switch {
	case !s.R.IsFinite():
		return fmt.Errorf("%w: position %s is not finite", ErrInvalidState, s.R)
	case !s.V.IsFinite():
		return fmt.Errorf("%w: velocity %s is not finite", ErrInvalidState, s.V)
	case s.R.IsZero():
		return fmt.Errorf("%w: null position", ErrInvalidState)
	case s.V.IsZero():
		return fmt.Errorf("%w: null velocity", ErrInvalidState)
	}
	return nil
}

// Energy returns the specific orbital energy.
func (s State) Energy(μ float64) float64 {
	v := s.V.Norm()
	return v*v/2 - μ/s.R.Norm()
}

// H returns the specific angular momentum vector.
func (s State) H() Vec3 {
	return s.R.Cross(s.V)
}

func (s State) vector() []float64 {
	return []float64{s.R[0], s.R[1], s.R[2], s.V[0], s.V[1], s.V[2]}
}

func stateFromVector(f []float64) State {
	return State{Vec3{f[0], f[1], f[2]}, Vec3{f[3], f[4], f[5]}}
}

// Propagator propagates two-body motion with a fixed step RK4.
// It is a value type without any internal state, hence safe for concurrent use.
type Propagator struct {
	Mu      float64 // Gravitational parameter, m^3/s^2.
	MaxStep float64 // Largest substep in seconds.
}

// NewPropagator returns a propagator for the provided gravitational parameter.
func NewPropagator(μ float64) Propagator {
	return Propagator{Mu: μ, MaxStep: DefaultMaxStep}
}

// substeps splits dt into n equal substeps no longer than MaxStep.
func (p Propagator) substeps(dt float64) (uint64, float64, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) {
		return 0, 0, fmt.Errorf("%w: %f", ErrInvalidDuration, dt)
	}
	maxStep := p.MaxStep
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	n := uint64(math.Ceil(math.Abs(dt) / maxStep))
	if n == 0 {
		n = 1
	}
	return n, dt / float64(n), nil
}

func (p Propagator) check(s State) error {
	if p.Mu <= 0 || math.IsNaN(p.Mu) || math.IsInf(p.Mu, 0) {
		return fmt.Errorf("gravitational parameter must be positive, got %f", p.Mu)
	}
	return s.Validate()
}

// Propagate returns the state after dt seconds (which may be negative) of Keplerian motion.
func (p Propagator) Propagate(s State, dt float64) (State, error) {
	if err := p.check(s); err != nil {
		return State{}, err
	}
	if dt == 0 {
		return s, nil
	}
	n, h, err := p.substeps(dt)
	if err != nil {
		return State{}, err
	}
	tb := &twoBody{μ: p.Mu, state: s.vector(), steps: n}
	rk, err := integrator.NewRK4(0, h, tb)
	if err != nil {
		return State{}, err
	}
	rk.Solve()
	final := stateFromVector(tb.state)
	if !final.R.IsFinite() || !final.V.IsFinite() {
		return State{}, fmt.Errorf("%w: propagation diverged", ErrInvalidState)
	}
	return final, nil
}

// twoBody is the integrable Keplerian motion.
type twoBody struct {
	μ     float64
	state []float64
	steps uint64
}

func (tb *twoBody) GetState() []float64 {
	return tb.state
}

func (tb *twoBody) SetState(i uint64, s []float64) {
	tb.state = s
}

func (tb *twoBody) Stop(i uint64) bool {
	return i >= tb.steps
}

func (tb *twoBody) Func(t float64, f []float64) []float64 {
	fDot := make([]float64, 6)
	r := math.Sqrt(f[0]*f[0] + f[1]*f[1] + f[2]*f[2])
	bodyAcc := -tb.μ / (r * r * r)
	fDot[0] = f[3]
	fDot[1] = f[4]
	fDot[2] = f[5]
	fDot[3] = bodyAcc * f[0]
	fDot[4] = bodyAcc * f[1]
	fDot[5] = bodyAcc * f[2]
	return fDot
}

// Propagate propagates with the default maximum step.
func Propagate(s State, dt, μ float64) (State, error) {
	return NewPropagator(μ).Propagate(s, dt)
}
